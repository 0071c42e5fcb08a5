package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a scripted Client for tests. Responses are consumed in
// FIFO order; an optional Route function can key responses by a tag the
// test derives from the request (e.g. the system prompt's first line).
type MockClient struct {
	mu        sync.Mutex
	responses []*Completion
	errs      []error
	byTag     map[string][]*Completion
	// Route extracts a routing tag from a request; empty tag falls back
	// to the FIFO queue.
	Route func(req Request) string
	// Calls records every request seen, for assertions.
	Calls []Request
}

// NewMockClient creates an empty scripted client.
func NewMockClient() *MockClient {
	return &MockClient{byTag: make(map[string][]*Completion)}
}

// Enqueue appends a scripted completion to the FIFO queue.
func (m *MockClient) Enqueue(c *Completion) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, c)
	m.errs = append(m.errs, nil)
	return m
}

// EnqueueText is shorthand for a plain-text completion.
func (m *MockClient) EnqueueText(text string) *MockClient {
	return m.Enqueue(&Completion{Content: text})
}

// EnqueueError appends a scripted provider failure.
func (m *MockClient) EnqueueError(err error) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, nil)
	m.errs = append(m.errs, err)
	return m
}

// OnTag scripts completions for a routing tag (requires Route to be set).
func (m *MockClient) OnTag(tag string, cs ...*Completion) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byTag[tag] = append(m.byTag[tag], cs...)
	return m
}

// Complete pops the next scripted response.
func (m *MockClient) Complete(_ context.Context, req Request) (*Completion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Calls = append(m.Calls, req)

	if m.Route != nil {
		if tag := m.Route(req); tag != "" {
			if queue := m.byTag[tag]; len(queue) > 0 {
				next := queue[0]
				m.byTag[tag] = queue[1:]
				return next, nil
			}
		}
	}

	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock llm: no scripted response for call %d", len(m.Calls))
	}
	next, err := m.responses[0], m.errs[0]
	m.responses = m.responses[1:]
	m.errs = m.errs[1:]
	if err != nil {
		return nil, err
	}
	return next, nil
}
