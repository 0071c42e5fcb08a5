package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// VoyagentYAMLConfig mirrors the voyagent.yaml file structure.
type VoyagentYAMLConfig struct {
	Defaults     *Defaults               `yaml:"defaults"`
	Limits       *Limits                 `yaml:"limits"`
	Workers      map[string]WorkerConfig `yaml:"workers"`
	ToolRegistry *ToolRegistryConfig     `yaml:"tool_registry"`
	PII          *PIIConfig              `yaml:"pii"`
	Redis        *RedisConfig            `yaml:"redis"`
	Audit        *AuditConfig            `yaml:"audit"`
}

// LLMProvidersYAMLConfig mirrors the llm-providers.yaml file structure.
type LLMProvidersYAMLConfig struct {
	LLMProviders map[string]LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, merges, validates, and returns ready-to-use configuration.
//
// Steps performed:
//  1. Load voyagent.yaml and llm-providers.yaml from configDir
//  2. Expand environment variables ({{.VAR}} syntax)
//  3. Merge user-defined workers and limits over built-in defaults
//  4. Apply operational fallbacks (timeouts, retry budgets)
//  5. Validate the assembled configuration
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized",
		"workers", stats.Workers,
		"llm_providers", stats.LLMProviders)
	return cfg, nil
}

func load(configDir string) (*Config, error) {
	var userCfg VoyagentYAMLConfig
	if err := loadYAML(filepath.Join(configDir, "voyagent.yaml"), &userCfg); err != nil {
		return nil, err
	}

	var providersCfg LLMProvidersYAMLConfig
	if err := loadYAML(filepath.Join(configDir, "llm-providers.yaml"), &providersCfg); err != nil {
		return nil, err
	}

	builtin := GetBuiltinConfig()

	// User-defined workers override built-ins field by field; unknown
	// workers are added as-is.
	workers := builtin.Workers
	for name, w := range userCfg.Workers {
		w.Name = name
		if base, ok := workers[name]; ok {
			if err := mergo.Merge(&w, base); err != nil {
				return nil, fmt.Errorf("merge worker %q: %w", name, err)
			}
		}
		workers[name] = w
	}

	limits := builtin.Limits
	if userCfg.Limits != nil {
		if err := mergo.Merge(userCfg.Limits, limits); err != nil {
			return nil, fmt.Errorf("merge limits: %w", err)
		}
		limits = *userCfg.Limits
	}

	providers := providersCfg.LLMProviders
	if providers == nil {
		providers = make(map[string]LLMProviderConfig)
	}
	for name, p := range providers {
		p.Name = name
		providers[name] = p
	}

	cfg := &Config{
		configDir:    configDir,
		Defaults:     userCfg.Defaults,
		Limits:       limits,
		Workers:      workers,
		LLMProviders: providers,
	}
	if cfg.Defaults == nil {
		cfg.Defaults = &Defaults{}
	}
	if userCfg.ToolRegistry != nil {
		cfg.ToolRegistry = *userCfg.ToolRegistry
	}
	if userCfg.PII != nil {
		cfg.PII = *userCfg.PII
	}
	if userCfg.Redis != nil {
		cfg.Redis = *userCfg.Redis
	}
	if userCfg.Audit != nil {
		cfg.Audit = *userCfg.Audit
	}
	applyFallbacks(cfg)

	return cfg, nil
}

// loadYAML reads, env-expands, and decodes one YAML file into out.
// A missing file is not an error: built-ins and env fallbacks cover it.
func loadYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Warn("Configuration file not found, using defaults", "path", path)
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(ExpandEnv(data), out); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// applyFallbacks fills operational knobs that user YAML left at zero.
func applyFallbacks(cfg *Config) {
	if cfg.ToolRegistry.BaseURL == "" {
		cfg.ToolRegistry.BaseURL = envOr("TOOL_REGISTRY_URL", "http://localhost:8600")
	}
	if cfg.ToolRegistry.Timeout == 0 {
		cfg.ToolRegistry.Timeout = 60 * time.Second
	}
	if cfg.ToolRegistry.ConnectTimeout == 0 {
		cfg.ToolRegistry.ConnectTimeout = 10 * time.Second
	}
	if cfg.ToolRegistry.MaxRetries == 0 {
		cfg.ToolRegistry.MaxRetries = 3
	}
	if cfg.PII.Timeout == 0 {
		cfg.PII.Timeout = 10 * time.Second
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = envOr("REDIS_ADDR", "localhost:6379")
	}
	if cfg.Audit.Dir == "" {
		cfg.Audit.Dir = envOr("AUDIT_DIR", "./audit-logs")
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
