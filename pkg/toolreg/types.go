// Package toolreg provides the permissioned RPC client for the remote tool
// registry. Every client instance carries an allow-list; invoking a tool
// outside it is a typed permission error, never a silent no-op.
package toolreg

import (
	"encoding/json"
	"errors"
)

// Sentinel errors.
var (
	ErrToolNotAllowed = errors.New("tool not in allow-list")
	ErrToolUnknown    = errors.New("tool not found in registry")
	ErrClientClosed   = errors.New("tool client closed")
)

// ToolSpec describes one registry tool.
type ToolSpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// listResponse is the registry's GET /tools/list body.
type listResponse struct {
	Tools []ToolSpec `json:"tools"`
}

// invokeRequest is the registry's POST /tools/invoke body.
type invokeRequest struct {
	Tool       string         `json:"tool"`
	Parameters map[string]any `json:"parameters"`
}

// invokeResponse wraps the tool payload. The payload itself may carry an
// error envelope (result.error=true) which is surfaced as data, not as a
// transport failure.
type invokeResponse struct {
	Result json.RawMessage `json:"result"`
}
