package config

import "fmt"

// Config is the umbrella configuration object returned by Initialize and
// threaded through the application. Registries are immutable after load.
type Config struct {
	configDir string

	Defaults     *Defaults
	Limits       Limits
	Workers      map[string]WorkerConfig
	LLMProviders map[string]LLMProviderConfig
	ToolRegistry ToolRegistryConfig
	PII          PIIConfig
	Redis        RedisConfig
	Audit        AuditConfig
}

// Stats contains statistics about loaded configuration.
type Stats struct {
	Workers      int
	LLMProviders int
}

// Stats returns configuration statistics for startup logging.
func (c *Config) Stats() Stats {
	return Stats{Workers: len(c.Workers), LLMProviders: len(c.LLMProviders)}
}

// ConfigDir returns the configuration directory path.
func (c *Config) ConfigDir() string { return c.configDir }

// GetWorker retrieves a worker configuration by name.
func (c *Config) GetWorker(name string) (WorkerConfig, error) {
	w, ok := c.Workers[name]
	if !ok {
		return WorkerConfig{}, fmt.Errorf("worker %q not configured", name)
	}
	return w, nil
}

// GetLLMProvider retrieves a provider by name, falling back to the default
// provider when name is empty.
func (c *Config) GetLLMProvider(name string) (LLMProviderConfig, error) {
	if name == "" && c.Defaults != nil {
		name = c.Defaults.LLMProvider
	}
	p, ok := c.LLMProviders[name]
	if !ok {
		return LLMProviderConfig{}, fmt.Errorf("llm provider %q not configured", name)
	}
	return p, nil
}

// ProviderForWorker resolves the effective provider for a worker.
func (c *Config) ProviderForWorker(w WorkerConfig) (LLMProviderConfig, error) {
	return c.GetLLMProvider(w.LLMProvider)
}
