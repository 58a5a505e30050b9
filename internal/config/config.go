// Package config loads the project manifest into one immutable Config value.
// The Config is constructed once at process start and handed to every
// component constructor; nothing re-reads the manifest after that.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all stitcher configuration.
type Config struct {
	// Core settings
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version" yaml:"version"`

	// Generation backend
	LLM LLMConfig `json:"llm" yaml:"llm"`

	// Model identifiers per generation role
	Models ModelConfig `json:"models" yaml:"models"`

	// Security policy for generated payloads
	Security SecurityConfig `json:"security_settings" yaml:"security_settings"`

	// Component library available to layout planning
	AvailableComponents []string `json:"available_components" yaml:"available_components"`

	// Pipeline behaviour
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`

	// Logging
	Logging LoggingConfig `json:"logging" yaml:"logging"`
}

// LLMConfig configures the generation backend client.
type LLMConfig struct {
	Provider string `json:"provider" yaml:"provider"` // gemini, openai-compat
	APIKey   string `json:"api_key" yaml:"api_key"`
	BaseURL  string `json:"base_url" yaml:"base_url"`
	Timeout  string `json:"timeout" yaml:"timeout"`
}

// ModelConfig names the model used for each generation role.
type ModelConfig struct {
	Layout   string `json:"layout_model" yaml:"layout_model"`
	Writing  string `json:"writing_model" yaml:"writing_model"`
	Assembly string `json:"assembly_model" yaml:"assembly_model"`
	Research string `json:"research_model" yaml:"research_model"`
}

// SecurityConfig holds the sanitization policy. Patterns are applied in
// declaration order; order is part of the policy.
type SecurityConfig struct {
	MaxPayloadSize      int      `json:"max_payload_size" yaml:"max_payload_size"`
	BlacklistedPatterns []string `json:"blacklisted_patterns" yaml:"blacklisted_patterns"`
}

// PipelineConfig configures stage behaviour.
type PipelineConfig struct {
	VariantCount int    `json:"variant_count" yaml:"variant_count"`
	OutputDir    string `json:"output_dir" yaml:"output_dir"`
	Vibe         string `json:"vibe" yaml:"vibe"`
}

// LoggingConfig configures the categorized file logger.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Level      string          `json:"level" yaml:"level"`
	Categories map[string]bool `json:"categories" yaml:"categories"`
}

// Default returns the configuration used when no manifest exists.
// A missing manifest is not an error: the run continues on defaults.
func Default() *Config {
	return &Config{
		Name:    "stitcher",
		Version: "1.0.0",
		LLM: LLMConfig{
			Provider: "openai-compat",
			BaseURL:  "http://localhost:11434/v1",
			Timeout:  "120s",
		},
		Models: ModelConfig{
			Layout:   "qwen2.5-coder:7b",
			Writing:  "llama3.2:1b",
			Assembly: "qwen2.5-coder:7b",
			Research: "llama3.2:1b",
		},
		Security: SecurityConfig{
			MaxPayloadSize: 500000,
			BlacklistedPatterns: []string{
				`<script[^>]*>[\s\S]*?</script>`,
				`<script[^>]*>`,
				`</script>`,
				`on\w+\s*=\s*"[^"]*"`,
				`on\w+\s*=\s*'[^']*'`,
				`<iframe[^>]*>[\s\S]*?</iframe>`,
				`<iframe[^>]*>`,
				`javascript:`,
			},
		},
		AvailableComponents: []string{"hero", "features", "pricing", "testimonials", "footer"},
		Pipeline: PipelineConfig{
			VariantCount: 5,
			OutputDir:    "output",
			Vibe:         "Cyber-Industrial",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the manifest from the workspace and returns the merged Config.
// It looks for project_manifest.json first, then project_manifest.yaml.
// A missing manifest yields Default() with no error; a present but unreadable
// manifest is an error so a broken policy file never silently degrades to
// defaults.
func Load(workspace string) (*Config, error) {
	jsonPath := filepath.Join(workspace, "project_manifest.json")
	yamlPath := filepath.Join(workspace, "project_manifest.yaml")

	cfg := Default()

	data, err := os.ReadFile(jsonPath)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", jsonPath, err)
		}
	case os.IsNotExist(err):
		data, yerr := os.ReadFile(yamlPath)
		if yerr != nil {
			if os.IsNotExist(yerr) {
				return cfg, nil
			}
			return nil, fmt.Errorf("failed to read manifest: %w", yerr)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", yamlPath, err)
		}
	default:
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	cfg.applyFloors()
	return cfg, nil
}

// applyFloors restores required minimums after a partial manifest overwrote
// a section with zero values.
func (c *Config) applyFloors() {
	d := Default()
	if c.Security.MaxPayloadSize <= 0 {
		c.Security.MaxPayloadSize = d.Security.MaxPayloadSize
	}
	if c.Pipeline.VariantCount <= 0 {
		c.Pipeline.VariantCount = d.Pipeline.VariantCount
	}
	if strings.TrimSpace(c.Pipeline.OutputDir) == "" {
		c.Pipeline.OutputDir = d.Pipeline.OutputDir
	}
	if len(c.AvailableComponents) == 0 {
		c.AvailableComponents = d.AvailableComponents
	}
	if c.Models.Layout == "" {
		c.Models.Layout = d.Models.Layout
	}
	if c.Models.Writing == "" {
		c.Models.Writing = d.Models.Writing
	}
	if c.Models.Assembly == "" {
		c.Models.Assembly = d.Models.Assembly
	}
	if c.Models.Research == "" {
		c.Models.Research = d.Models.Research
	}
}

// LLMTimeout parses the configured backend timeout, defaulting to two minutes.
func (c *Config) LLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 120 * time.Second
	}
	return d
}
