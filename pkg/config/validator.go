package config

import (
	"errors"
	"fmt"
)

// Validation sentinel errors.
var (
	ErrNoWorkers     = errors.New("no workers configured")
	ErrNoProviders   = errors.New("no llm providers configured")
	ErrBadLimit      = errors.New("limit must be positive")
	ErrMissingTools  = errors.New("worker has empty tool allow-list")
	ErrUnknownWorker = errors.New("defaults reference unknown worker")
)

// validate checks the assembled configuration for internal consistency.
// Called by Initialize after merging; failures abort startup.
func validate(cfg *Config) error {
	if len(cfg.Workers) == 0 {
		return ErrNoWorkers
	}
	if len(cfg.LLMProviders) == 0 {
		return ErrNoProviders
	}

	for name, w := range cfg.Workers {
		if len(w.AllowedTools) == 0 {
			return fmt.Errorf("%w: %s", ErrMissingTools, name)
		}
		if w.LLMProvider != "" {
			if _, ok := cfg.LLMProviders[w.LLMProvider]; !ok {
				return fmt.Errorf("worker %q references unknown llm provider %q", name, w.LLMProvider)
			}
		}
	}

	if cfg.Defaults.LLMProvider != "" {
		if _, ok := cfg.LLMProviders[cfg.Defaults.LLMProvider]; !ok {
			return fmt.Errorf("default llm provider %q not configured", cfg.Defaults.LLMProvider)
		}
	}

	for _, check := range []struct {
		name string
		v    int
	}{
		{"max_feedback_retries", cfg.Limits.MaxFeedbackRetries},
		{"max_join_polls", cfg.Limits.MaxJoinPolls},
		{"recursion_budget", cfg.Limits.RecursionBudget},
		{"stm_window", cfg.Limits.STMWindow},
		{"memory_top_k", cfg.Limits.MemoryTopK},
	} {
		if check.v <= 0 {
			return fmt.Errorf("%w: %s", ErrBadLimit, check.name)
		}
	}
	if cfg.Limits.JoinPollInterval <= 0 || cfg.Limits.RequestDeadline <= 0 {
		return fmt.Errorf("%w: durations", ErrBadLimit)
	}
	return nil
}
