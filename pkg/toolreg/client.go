package toolreg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/voyagent/voyagent/pkg/audit"
	"github.com/voyagent/voyagent/pkg/config"
	"github.com/voyagent/voyagent/pkg/metrics"
	"github.com/voyagent/voyagent/pkg/models"
)

// Client is a permissioned registry client. One instance per worker; each
// carries its own name and allow-list, sharing nothing but configuration.
// Thread-safe: workers in a parallel step may invoke concurrently.
type Client struct {
	name    string
	allowed map[string]bool
	cfg     config.ToolRegistryConfig
	rec     *audit.Recorder

	mu     sync.Mutex
	http   *http.Client
	closed bool

	// Tool cache (populated on first ListTools; client instances are
	// request-scoped so the cache is naturally fresh).
	toolsMu sync.RWMutex
	tools   []ToolSpec

	// Compiled argument schemas by tool name (lazy, only when
	// cfg.ValidateArgs is set).
	schemasMu sync.Mutex
	schemas   map[string]*jsonschema.Schema
}

// NewClient creates a registry client restricted to allowedTools.
func NewClient(name string, allowedTools []string, cfg config.ToolRegistryConfig, rec *audit.Recorder) *Client {
	allowed := make(map[string]bool, len(allowedTools))
	for _, t := range allowedTools {
		allowed[t] = true
	}
	c := &Client{
		name:    name,
		allowed: allowed,
		cfg:     cfg,
		rec:     rec,
		schemas: make(map[string]*jsonschema.Schema),
	}
	c.http = c.newHTTPClient()
	return c
}

// newHTTPClient builds the pooled transport with the configured connect
// and overall deadlines.
func (c *Client) newHTTPClient() *http.Client {
	return &http.Client{
		Timeout: c.cfg.Timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout: c.cfg.ConnectTimeout,
			}).DialContext,
			MaxIdleConnsPerHost: 4,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// resetTransport recreates the pooled connection set. Called when a
// closed-client or connection-class error indicates pool breakage.
func (c *Client) resetTransport() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	c.http = c.newHTTPClient()
	slog.Debug("Tool client transport recreated", "client", c.name)
}

// Close shuts the client down; further calls fail with ErrClientClosed.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	if t, ok := c.http.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}

func (c *Client) httpClient() (*http.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClientClosed
	}
	return c.http, nil
}

// ListTools returns the registry's tools filtered by the allow-list.
func (c *Client) ListTools(ctx context.Context) ([]ToolSpec, error) {
	c.toolsMu.RLock()
	if c.tools != nil {
		cached := c.tools
		c.toolsMu.RUnlock()
		return cached, nil
	}
	c.toolsMu.RUnlock()

	var parsed listResponse
	err := c.do(ctx, http.MethodGet, "/tools/list", nil, &parsed)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	filtered := make([]ToolSpec, 0, len(parsed.Tools))
	for _, t := range parsed.Tools {
		if c.allowed[t.Name] {
			filtered = append(filtered, t)
		}
	}

	c.toolsMu.Lock()
	c.tools = filtered
	c.toolsMu.Unlock()
	return filtered, nil
}

// Invoke executes one tool call. Allow-list membership is checked first;
// arguments are optionally validated against the tool's inputSchema. The
// returned payload may itself be an error envelope — that is data for the
// feedback loop, not a Go error.
func (c *Client) Invoke(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	if !c.allowed[tool] {
		metrics.ToolInvocations.WithLabelValues(tool, "denied").Inc()
		return nil, fmt.Errorf("%w: client %q may not call %q", ErrToolNotAllowed, c.name, tool)
	}

	if c.cfg.ValidateArgs {
		if envelope := c.validateArgs(ctx, tool, args); envelope != nil {
			metrics.ToolInvocations.WithLabelValues(tool, "invalid_args").Inc()
			raw, _ := json.Marshal(envelope)
			return raw, nil
		}
	}

	start := time.Now()
	result, err := c.invokeWithRetry(ctx, tool, args)
	metrics.ToolDuration.WithLabelValues(tool).Observe(time.Since(start).Seconds())
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ToolInvocations.WithLabelValues(tool, outcome).Inc()

	c.rec.APICall("tool_registry", map[string]any{
		"client": c.name, "tool": tool, "args": args,
		"duration_ms": time.Since(start).Milliseconds(),
		"error":       errString(err),
	})
	return result, err
}

// invokeWithRetry performs the call with bounded retries on
// connection-class errors, backoff 0.5s × attempt.
func (c *Client) invokeWithRetry(ctx context.Context, tool string, args map[string]any) (json.RawMessage, error) {
	var lastErr error
	for attempt := 0; attempt <= MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(attempt) * RetryBackoffUnit
			slog.Info("Tool call failed, retrying",
				"client", c.name, "tool", tool,
				"attempt", attempt, "backoff", backoff, "error", lastErr)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		var parsed invokeResponse
		err := c.do(ctx, http.MethodPost, "/tools/invoke", invokeRequest{Tool: tool, Parameters: args}, &parsed)
		if err == nil {
			return parsed.Result, nil
		}
		lastErr = err

		switch ClassifyError(err) {
		case NoRetry:
			return nil, err
		case RetryNewTransport:
			c.resetTransport()
		case RetrySameTransport:
			// fall through to next attempt
		}
	}
	return nil, fmt.Errorf("tool %q failed after %d retries: %w", tool, MaxRetries, lastErr)
}

// do performs one HTTP round-trip against the registry.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	client, err := c.httpClient()
	if err != nil {
		return err
	}

	var reqBody *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	} else {
		reqBody = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		var errBody struct {
			Error        string `json:"error"`
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		msg := errBody.ErrorMessage
		if msg == "" {
			msg = errBody.Error
		}
		return fmt.Errorf("registry returned %d: %s", resp.StatusCode, msg)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// validateArgs checks args against the tool's published inputSchema.
// Returns a validation envelope on mismatch, nil when valid or when the
// schema is unavailable (validation is advisory, the registry re-checks).
func (c *Client) validateArgs(ctx context.Context, tool string, args map[string]any) *models.ErrorEnvelope {
	sch, err := c.schemaFor(ctx, tool)
	if err != nil || sch == nil {
		return nil
	}

	// Round-trip through JSON so numeric types match what the schema
	// library expects from decoded documents.
	raw, err := json.Marshal(args)
	if err != nil {
		return nil
	}
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(raw))
	if err != nil {
		return nil
	}
	if err := sch.Validate(doc); err != nil {
		return models.Errorf(models.ErrCodeValidation, "arguments for %s rejected: %v", tool, err)
	}
	return nil
}

func (c *Client) schemaFor(ctx context.Context, tool string) (*jsonschema.Schema, error) {
	c.schemasMu.Lock()
	if sch, ok := c.schemas[tool]; ok {
		c.schemasMu.Unlock()
		return sch, nil
	}
	c.schemasMu.Unlock()

	tools, err := c.ListTools(ctx)
	if err != nil {
		return nil, err
	}
	var spec *ToolSpec
	for i := range tools {
		if tools[i].Name == tool {
			spec = &tools[i]
			break
		}
	}
	if spec == nil || len(spec.InputSchema) == 0 {
		return nil, nil
	}

	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(spec.InputSchema))
	if err != nil {
		return nil, fmt.Errorf("parse schema for %s: %w", tool, err)
	}
	compiler := jsonschema.NewCompiler()
	resource := fmt.Sprintf("registry:///%s.json", tool)
	if err := compiler.AddResource(resource, doc); err != nil {
		return nil, fmt.Errorf("register schema for %s: %w", tool, err)
	}
	sch, err := compiler.Compile(resource)
	if err != nil {
		return nil, fmt.Errorf("compile schema for %s: %w", tool, err)
	}

	c.schemasMu.Lock()
	c.schemas[tool] = sch
	c.schemasMu.Unlock()
	return sch, nil
}

// Name returns the client's identity (the owning worker).
func (c *Client) Name() string { return c.name }

// Allowed reports allow-list membership.
func (c *Client) Allowed(tool string) bool { return c.allowed[tool] }

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
