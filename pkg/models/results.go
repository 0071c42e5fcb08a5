package models

import "encoding/json"

// WorkerResult is the typed value a worker writes into its state slot.
// Exactly one of Data or Err is meaningful: Err non-nil means the worker
// failed and Data should be ignored.
type WorkerResult struct {
	Worker string `json:"worker"`
	// Tool is the registry tool that produced the data (empty for
	// conversational results or synthesized errors).
	Tool string `json:"tool,omitempty"`
	// Args holds the normalized tool arguments, kept for deduplication:
	// a later call with identical normalized args reuses this result.
	Args map[string]any `json:"args,omitempty"`
	// Data is the raw tool payload. Kept as RawMessage so the responder
	// can re-serialize it for the LLM without a lossy round-trip.
	Data json.RawMessage `json:"data,omitempty"`
	// MultipleResults marks utilities-style results assembled from more
	// than one tool call in a single pass.
	MultipleResults bool `json:"multiple_results,omitempty"`
	// Subresults carries per-tool payloads when MultipleResults is set.
	Subresults map[string]json.RawMessage `json:"subresults,omitempty"`
	Err        *ErrorEnvelope             `json:"err,omitempty"`
}

// OK reports whether the result carries usable data.
func (r *WorkerResult) OK() bool {
	return r != nil && r.Err == nil
}

// Failed reports whether the result is an error envelope.
func (r *WorkerResult) Failed() bool {
	return r != nil && r.Err != nil
}

// Retriable reports whether a feedback retry could plausibly fix the result.
func (r *WorkerResult) Retriable() bool {
	return r != nil && r.Err.IsRetriable()
}

// FlightOption is one itinerary in a flight search result.
type FlightOption struct {
	Airline       string   `json:"airline"`
	Segments      []string `json:"segments"`
	TotalDuration string   `json:"total_duration"`
	Price         float64  `json:"price"`
	Currency      string   `json:"currency"`
	BookingURL    string   `json:"booking_url,omitempty"`
	GoogleFlights string   `json:"google_flights_url,omitempty"`
}

// FlightSearch is the decoded payload of a flight worker result.
// Outbound and return are independent lists.
type FlightSearch struct {
	Outbound []FlightOption `json:"outbound"`
	Return   []FlightOption `json:"return,omitempty"`
}

// HotelOption is one property in a hotel search result.
type HotelOption struct {
	Name       string  `json:"name"`
	Location   string  `json:"location"`
	Rating     float64 `json:"rating,omitempty"`
	Price      float64 `json:"price,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	BookingURL string  `json:"booking_url,omitempty"`
}
