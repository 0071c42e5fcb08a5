// Package tripplan persists the per-(user, session) travel plan: an ordered
// list of items (flights, hotels, activities) with idempotent upsert keyed
// by normalized content.
package tripplan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// NormalizedKey derives the deterministic upsert key for an item:
// sha256 over the item type plus the canonicalized details. When details
// are empty the title fingerprint stands in, so title-only items still
// dedupe.
func NormalizedKey(itemType string, details map[string]any, title string) string {
	canonical := Canonicalize(details)
	if canonical == "" || canonical == "{}" {
		canonical = "title:" + strings.ToLower(strings.TrimSpace(title))
	}
	sum := sha256.Sum256([]byte(strings.ToLower(itemType) + "|" + canonical))
	return hex.EncodeToString(sum[:])
}

// Canonicalize renders a details document in a form stable under key
// reordering and case/whitespace noise inside strings: keys sorted
// recursively, strings lowercased and trimmed, numbers in their shortest
// JSON form.
func Canonicalize(details map[string]any) string {
	if len(details) == 0 {
		return "{}"
	}
	var b strings.Builder
	writeCanonical(&b, details)
	return b.String()
}

func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(b, "%q:", strings.ToLower(k))
			writeCanonical(b, val[k])
		}
		b.WriteByte('}')
	case []any:
		b.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				b.WriteByte(',')
			}
			writeCanonical(b, item)
		}
		b.WriteByte(']')
	case string:
		fmt.Fprintf(b, "%q", strings.ToLower(strings.Join(strings.Fields(val), " ")))
	case nil:
		b.WriteString("null")
	default:
		// Numbers and bools render via encoding/json for the shortest
		// stable form (1 not 1.000000).
		raw, err := json.Marshal(val)
		if err != nil {
			fmt.Fprintf(b, "%q", fmt.Sprint(val))
			return
		}
		b.Write(raw)
	}
}
