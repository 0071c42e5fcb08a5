// Package turn is the inbound boundary of the orchestration core: one
// call, HandleTurn, takes a user message through the full graph and
// returns the synthesized answer plus the persisted side effects.
package turn

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/voyagent/voyagent/pkg/agent/feedback"
	"github.com/voyagent/voyagent/pkg/agent/plan"
	"github.com/voyagent/voyagent/pkg/agent/workers"
	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/graph"
	"github.com/voyagent/voyagent/pkg/llm"
	"github.com/voyagent/voyagent/pkg/llm/pii"
	"github.com/voyagent/voyagent/pkg/memory"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
	"github.com/voyagent/voyagent/pkg/pipeline"
	"github.com/voyagent/voyagent/pkg/stm"
	"github.com/voyagent/voyagent/pkg/toolreg"
	"github.com/voyagent/voyagent/pkg/tripplan"
)

// Service wires the graph and its stores. One Service serves all
// requests; per-request state lives in the graph.State it creates.
type Service struct {
	cfg *config.Config
	rec *audit.Recorder

	// llmFor maps worker/system names to their provider clients.
	llmFor   map[string]llm.Client
	systemLLM llm.Client

	stm       *stm.Store
	memories  *memory.Manager
	tripPlans *tripplan.Store
	chats     *chatLog
	redactor  *pii.Redactor
}

// NewService resolves providers, builds the per-worker tool clients
// lazily per request, and wires the stores.
func NewService(cfg *config.Config, db *sql.DB, stmStore *stm.Store, rec *audit.Recorder) (*Service, error) {
	systemProvider, err := cfg.GetLLMProvider("")
	if err != nil {
		return nil, fmt.Errorf("resolve default llm provider: %w", err)
	}
	systemLLM, err := llm.NewOpenAIClient(systemProvider)
	if err != nil {
		return nil, fmt.Errorf("build default llm client: %w", err)
	}

	llmFor := make(map[string]llm.Client, len(cfg.Workers))
	for name, wc := range cfg.Workers {
		provider, err := cfg.ProviderForWorker(wc)
		if err != nil {
			return nil, fmt.Errorf("resolve provider for worker %s: %w", name, err)
		}
		client, err := llm.NewOpenAIClient(provider)
		if err != nil {
			return nil, fmt.Errorf("build llm client for worker %s: %w", name, err)
		}
		llmFor[name] = client
	}

	memStore := memory.NewStore(db)
	return &Service{
		cfg:       cfg,
		rec:       rec,
		llmFor:    llmFor,
		systemLLM: systemLLM,
		stm:       stmStore,
		memories:  memory.NewManager(memStore, memory.NewAnalyzer(systemLLM)),
		tripPlans: tripplan.NewStore(db),
		chats:     &chatLog{db: db},
		redactor:  pii.NewRedactor(cfg.PII),
	}, nil
}

// NewServiceWithClients is the test constructor: every external boundary
// injected.
func NewServiceWithClients(cfg *config.Config, db *sql.DB, stmStore *stm.Store,
	rec *audit.Recorder, systemLLM llm.Client, llmFor map[string]llm.Client) *Service {
	memStore := memory.NewStore(db)
	return &Service{
		cfg:       cfg,
		rec:       rec,
		llmFor:    llmFor,
		systemLLM: systemLLM,
		stm:       stmStore,
		memories:  memory.NewManager(memStore, memory.NewAnalyzer(systemLLM)),
		tripPlans: tripplan.NewStore(db),
		chats:     &chatLog{db: db},
		redactor:  pii.NewRedactor(cfg.PII),
	}
}

func (s *Service) workerLLM(name string) llm.Client {
	if c, ok := s.llmFor[name]; ok {
		return c
	}
	return s.systemLLM
}

// HandleTurn runs one full turn:
//  1. Seed state from short-term memory
//  2. Drive the graph under the request deadline
//  3. Persist messages, results, and the interaction transcript
func (s *Service) HandleTurn(ctx context.Context, userEmail, sessionID, userMessage string) (*models.TurnResponse, error) {
	deadline := s.cfg.Limits.RequestDeadline
	if deadline <= 0 {
		deadline = 120 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	state := graph.NewState(userEmail, sessionID, userMessage)
	if err := s.seedFromSTM(runCtx, state); err != nil {
		slog.Warn("Short-term memory unavailable, starting cold",
			"session_id", sessionID, "error", err)
	}

	engine, err := s.buildGraph()
	if err != nil {
		metrics.Turns.WithLabelValues("error").Inc()
		return nil, err
	}

	start := time.Now()
	if err := engine.Run(runCtx, state); err != nil {
		metrics.Turns.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("run turn graph: %w", err)
	}

	s.persist(ctx, state)
	s.rec.Interaction(sessionID, map[string]any{
		"user_email":    userEmail,
		"user_message":  userMessage,
		"response":      state.LastResponse,
		"agents_called": state.AgentsCalled,
		"rfi_status":    state.RFIStatus,
		"duration_ms":   time.Since(start).Milliseconds(),
	})
	metrics.Turns.WithLabelValues(turnStatus(state)).Inc()

	return &models.TurnResponse{
		Response:     state.LastResponse,
		AgentsCalled: state.AgentsCalled,
		SessionID:    sessionID,
	}, nil
}

// seedFromSTM loads the cross-turn context into the fresh state.
func (s *Service) seedFromSTM(ctx context.Context, state *graph.State) error {
	rec, err := s.stm.Get(ctx, state.SessionID)
	if err != nil {
		return err
	}
	state.STMSummary = rec.Summary
	state.RecentMessages = rec.LastMessages
	state.RFIContext = rec.RFIContext
	state.TripPlanSummary = rec.TripPlan.Steps
	for worker, r := range rec.LastResults {
		state.LastResults[worker] = r
	}
	return nil
}

// persist writes the turn's side effects. Uses the parent context so a
// graph deadline does not lose the messages that were produced.
func (s *Service) persist(ctx context.Context, state *graph.State) {
	persistCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := s.chats.record(persistCtx, state.UserEmail, state.SessionID, models.RoleUser, state.UserMessage); err != nil {
		slog.Warn("Chat log write failed", "session_id", state.SessionID, "error", err)
	}
	if err := s.stm.Append(persistCtx, state.SessionID, state.UserEmail, models.ChatMessage{
		Role: models.RoleUser, Text: state.UserMessage, Timestamp: time.Now().UTC(),
	}); err != nil {
		slog.Warn("STM append failed", "session_id", state.SessionID, "error", err)
	}

	if state.LastResponse != "" {
		if err := s.chats.record(persistCtx, state.UserEmail, state.SessionID, models.RoleAgent, state.LastResponse); err != nil {
			slog.Warn("Chat log write failed", "session_id", state.SessionID, "error", err)
		}
		if err := s.stm.Append(persistCtx, state.SessionID, state.UserEmail, models.ChatMessage{
			Role: models.RoleAgent, Text: state.LastResponse, Timestamp: time.Now().UTC(),
		}); err != nil {
			slog.Warn("STM append failed", "session_id", state.SessionID, "error", err)
		}
	}

	// Unsafe / out-of-scope turns never persist tool results.
	if state.RFIStatus == graph.RFIUnsafe || state.RFIStatus == graph.RFIOutOfScope {
		return
	}

	if len(state.Results) > 0 {
		if err := s.stm.SetLastResults(persistCtx, state.SessionID, state.Results); err != nil {
			slog.Warn("STM last-results write failed", "session_id", state.SessionID, "error", err)
		}
	}
	if state.TripPlanSummary != nil {
		if err := s.stm.SetTripPlanSummary(persistCtx, state.SessionID, state.TripPlanSummary); err != nil {
			slog.Warn("STM trip-plan write failed", "session_id", state.SessionID, "error", err)
		}
	}
	if err := s.stm.SetRFIContext(persistCtx, state.SessionID, state.RFIContext); err != nil {
		slog.Warn("STM rfi-context write failed", "session_id", state.SessionID, "error", err)
	}
}

func turnStatus(state *graph.State) string {
	switch state.RFIStatus {
	case graph.RFIUnsafe, graph.RFIOutOfScope:
		return "rejected"
	case graph.RFIMissingInfo:
		return "clarifying"
	}
	if state.LastResponse == "" {
		return "empty"
	}
	return "ok"
}

// buildGraph assembles the node table and edges for one request. Tool
// clients are request-scoped: each worker gets a fresh allow-listed
// client whose transport is torn down when the request ends.
func (s *Service) buildGraph() (*graph.Engine, error) {
	limits := s.cfg.Limits
	engine := graph.NewEngine(graph.NodePII, limits.RecursionBudget)

	add := func(name, slotOwner string, fn graph.NodeFunc) {
		engine.AddNode(name, graph.Wrap(name, slotOwner, s.rec, fn))
	}

	// Pre-planning pipeline.
	add(graph.NodePII, "", pipeline.NewPIINode(s.redactor).Node)
	add(graph.NodeMemory, "", pipeline.NewMemoryNode(s.memories, limits.MemoryTopK).Node)
	add(graph.NodeRFI, "", pipeline.NewRFINode(s.systemLLM, s.rec).Node)
	engine.AddEdge(graph.NodePII, graph.NodeMemory)
	engine.AddEdge(graph.NodeMemory, graph.NodeRFI)
	engine.AddEdge(graph.NodeRFI, graph.NodePlanner)

	// Planning.
	add(graph.NodePlanner, "", plan.NewPlanner(s.systemLLM, s.rec).Node)
	add(graph.NodePlanFeedback, "", feedback.NewPlanValidator(s.systemLLM, s.rec, limits.MaxFeedbackRetries).Node)
	add(graph.NodeExecutor, "", plan.NewExecutor().Node)
	add(graph.NodeDispatcher, "", plan.NewDispatcher().Node)
	add(graph.NodeJoin, "", plan.NewJoin(limits.MaxJoinPolls, limits.JoinPollInterval).Node)
	engine.AddEdge(graph.NodePlanner, graph.NodePlanFeedback)

	// Workers and their validators.
	for _, name := range models.PlannableWorkers {
		wc, err := s.cfg.GetWorker(name)
		if err != nil {
			return nil, err
		}
		tools := toolreg.NewClient(name, wc.AllowedTools, s.cfg.ToolRegistry, s.rec)
		worker := s.newWorker(name, wc, tools)
		add(name, name, worker)
		add(graph.FeedbackNode(name), "",
			feedback.NewWorkerValidator(name, s.systemLLM, s.rec, limits.MaxFeedbackRetries).Node)

		workerName := name
		engine.AddConditionalEdge(name, func(st *graph.State) []string {
			if st.ParallelMode {
				return []string{graph.NodeJoin}
			}
			// Sequential rerun after a feedback retry: straight back to
			// the worker's own validator.
			return []string{graph.FeedbackNode(workerName)}
		})
	}

	// Post-plan: trip-plan mutations, then the responder and its validator.
	add(graph.NodeTripPlanner, models.WorkerTripPlanner,
		workers.NewTripPlanner(s.systemLLM, s.tripPlans, s.rec).Node)
	add(graph.NodeResponder, "",
		workers.NewConversational(s.workerLLM(models.WorkerConversational), s.rec).Node)
	add(graph.NodeResponseFeedback, "",
		feedback.NewResponseValidator(s.systemLLM, s.rec, limits.MaxFeedbackRetries).Node)
	engine.AddEdge(graph.NodeTripPlanner, graph.NodeResponder)
	engine.AddEdge(graph.NodeResponder, graph.NodeResponseFeedback)

	return engine, nil
}

func (s *Service) newWorker(name string, wc config.WorkerConfig, tools *toolreg.Client) graph.NodeFunc {
	client := s.workerLLM(name)
	switch name {
	case models.WorkerFlight:
		return workers.NewFlight(wc, client, tools, s.rec).Node
	case models.WorkerHotel:
		return workers.NewHotel(wc, client, tools, s.rec).Node
	case models.WorkerVisa:
		return workers.NewVisa(wc, client, tools, s.rec).Node
	case models.WorkerTripAdvisor:
		return workers.NewTripAdvisor(wc, client, tools, s.rec).Node
	default:
		return workers.NewUtilities(wc, client, tools, s.rec).Node
	}
}
