package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
)

// Ranking parameters. Retrieval blends semantic similarity with stored
// importance; high-importance facts survive even with weak similarity.
const (
	similarityWeight = 0.7
	importanceWeight = 0.3
	scoreFloor       = 0.2
	importanceFloor  = 4

	// duplicateThreshold is the cosine similarity above which a candidate
	// fact is considered a near-duplicate of an existing one.
	duplicateThreshold = 0.8

	// scrollLimit bounds how many rows one retrieval scans per user.
	scrollLimit = 1000
)

// ErrMemoryNotFound is returned when an update or delete targets a row
// that does not exist.
var ErrMemoryNotFound = errors.New("memory not found")

// Fact is one stored long-term memory row.
type Fact struct {
	ID         string
	UserEmail  string
	Text       string
	Importance int
	Embedding  []float64
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Store persists facts in the agent_memory table.
type Store struct {
	db *sql.DB
}

// NewStore wraps a database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Save inserts a new fact, embedding the text. Importance is clamped to
// the 1..5 scale the analyzer emits.
func (s *Store) Save(ctx context.Context, userEmail, text string, importance int) (*Fact, error) {
	if importance < 1 {
		importance = 1
	}
	if importance > 5 {
		importance = 5
	}
	embedding := Embed(text)
	rawEmb, err := json.Marshal(embedding)
	if err != nil {
		return nil, fmt.Errorf("encode embedding: %w", err)
	}

	now := time.Now().UTC()
	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO agent_memory (id, user_email, fact_text, importance, embedding, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)`,
		id, userEmail, text, importance, rawEmb, now)
	if err != nil {
		return nil, fmt.Errorf("save memory for %s: %w", userEmail, err)
	}
	return &Fact{
		ID: id, UserEmail: userEmail, Text: text, Importance: importance,
		Embedding: embedding, CreatedAt: now, UpdatedAt: now,
	}, nil
}

// Update replaces a fact's text and importance, re-embedding the text.
func (s *Store) Update(ctx context.Context, id string, text string, importance int) error {
	rawEmb, err := json.Marshal(Embed(text))
	if err != nil {
		return fmt.Errorf("encode embedding: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE agent_memory
		SET fact_text = $2, importance = $3, embedding = $4, updated_at = $5
		WHERE id = $1`,
		id, text, importance, rawEmb, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update memory %s: %w", id, ErrMemoryNotFound)
	}
	return nil
}

// Delete removes a fact.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agent_memory WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete memory %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("delete memory %s: %w", id, ErrMemoryNotFound)
	}
	return nil
}

// scroll loads up to scrollLimit facts for a user.
func (s *Store) scroll(ctx context.Context, userEmail string) ([]Fact, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_email, fact_text, importance, embedding, created_at,
		       COALESCE(updated_at, created_at)
		FROM agent_memory
		WHERE user_email = $1
		ORDER BY COALESCE(updated_at, created_at) DESC
		LIMIT $2`,
		userEmail, scrollLimit)
	if err != nil {
		return nil, fmt.Errorf("scroll memories for %s: %w", userEmail, err)
	}
	defer func() { _ = rows.Close() }()

	var facts []Fact
	for rows.Next() {
		var f Fact
		var rawEmb []byte
		if err := rows.Scan(&f.ID, &f.UserEmail, &f.Text, &f.Importance, &rawEmb, &f.CreatedAt, &f.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan memory row: %w", err)
		}
		if err := json.Unmarshal(rawEmb, &f.Embedding); err != nil {
			return nil, fmt.Errorf("decode embedding for memory %s: %w", f.ID, err)
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// FindSimilar returns the user's fact most similar to text when its cosine
// similarity reaches duplicateThreshold, nil otherwise. Used by the write
// path to prefer updates over near-duplicate inserts.
func (s *Store) FindSimilar(ctx context.Context, userEmail, text string) (*Fact, float64, error) {
	facts, err := s.scroll(ctx, userEmail)
	if err != nil {
		return nil, 0, err
	}
	query := Embed(text)

	var best *Fact
	bestSim := 0.0
	for i := range facts {
		sim := Cosine(query, facts[i].Embedding)
		if sim > bestSim {
			best = &facts[i]
			bestSim = sim
		}
	}
	if best == nil || bestSim < duplicateThreshold {
		return nil, bestSim, nil
	}
	return best, bestSim, nil
}

// scored pairs a fact with its blended relevance score.
type scored struct {
	fact  Fact
	score float64
}

// GetRelevant ranks the user's facts against the query and returns the
// top-k fact texts. Score = 0.7·cosine + 0.3·(importance−1)/4; facts below
// the 0.2 floor are dropped unless importance ≥ 4, which always surfaces
// critical constraints (allergies, phobias, hard budgets).
func (s *Store) GetRelevant(ctx context.Context, userEmail, query string, topK int) ([]string, error) {
	facts, err := s.scroll(ctx, userEmail)
	if err != nil {
		return nil, err
	}
	if len(facts) == 0 {
		return nil, nil
	}
	queryVec := Embed(query)

	candidates := make([]scored, 0, len(facts))
	for _, f := range facts {
		sim := Cosine(queryVec, f.Embedding)
		score := similarityWeight*sim + importanceWeight*float64(f.Importance-1)/4.0
		if score <= scoreFloor && f.Importance < importanceFloor {
			continue
		}
		candidates = append(candidates, scored{fact: f, score: score})
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.fact.Text
	}
	return texts, nil
}
