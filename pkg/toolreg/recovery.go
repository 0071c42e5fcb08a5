package toolreg

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"syscall"
	"time"
)

// RecoveryAction determines how to handle a registry call failure.
type RecoveryAction int

const (
	// NoRetry — the error is not recoverable (bad request, context done).
	NoRetry RecoveryAction = iota
	// RetrySameTransport — transient error, retry on the existing pool.
	RetrySameTransport
	// RetryNewTransport — the pooled connection set is broken; recreate
	// it transparently before retrying.
	RetryNewTransport
)

// Recovery configuration constants.
const (
	// MaxRetries is the number of retry attempts after the initial failure.
	MaxRetries = 3

	// RetryBackoffUnit scales linearly with the attempt number:
	// attempt n sleeps n × RetryBackoffUnit.
	RetryBackoffUnit = 500 * time.Millisecond
)

// ClassifyError determines the recovery action for a registry call error.
func ClassifyError(err error) RecoveryAction {
	if err == nil {
		return NoRetry
	}

	// Context errors — the caller's deadline governs, never retry past it.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return NoRetry
	}

	// Closed-client errors require a fresh transport (survives event-loop
	// lifecycles on the registry side).
	if isClosedClientError(err) {
		return RetryNewTransport
	}

	// Network-level errors.
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return RetrySameTransport
		}
		return RetryNewTransport
	}
	if isConnectionError(err) {
		return RetryNewTransport
	}

	return NoRetry
}

// isConnectionError detects connection-class failures: reset, refused,
// broken pipe, unexpected EOF from a remote disconnect.
func isConnectionError(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.EOF) {
		return true
	}
	msg := err.Error()
	for _, marker := range []string{
		"connection reset",
		"connection refused",
		"broken pipe",
		"server closed idle connection",
		"remote error",
		"EOF",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func isClosedClientError(err error) bool {
	if errors.Is(err, ErrClientClosed) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "client is closed") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "http: client connection lost")
}
