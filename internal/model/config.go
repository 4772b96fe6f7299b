// Package model defines vibe's configuration tree, built-in agent table and exit codes.
package model

import (
	"errors"
	"fmt"
	"os"
	"strings"

	yamlv3 "gopkg.in/yaml.v3"
)

// DefaultConfigFile is read from the working directory when no --config is given.
const DefaultConfigFile = "vibe.yaml"

var ErrUnknownAgent = errors.New("unknown agent")

type Config struct {
	Agents    map[string]AgentConfig `yaml:"agents"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Sandbox   SandboxConfig          `yaml:"sandbox"`
	Output    OutputConfig           `yaml:"output"`
	Logging   LoggingConfig          `yaml:"logging"`
	Watch     WatchConfig            `yaml:"watch"`
}

// AgentConfig describes how to invoke one agent. Args may contain the
// {prompt}, {prompt_file} and {agent} tokens.
type AgentConfig struct {
	Command string   `yaml:"command"`
	Args    []string `yaml:"args"`
}

type RateLimitConfig struct {
	Patterns []string `yaml:"patterns"`
}

type SandboxConfig struct {
	Tool          string   `yaml:"tool"`
	ReadOnlyPaths []string `yaml:"ro_paths"`
	ExtraROPaths  []string `yaml:"extra_ro_paths"`
	ShareNetwork  *bool    `yaml:"share_network"`
}

type OutputConfig struct {
	Extension string `yaml:"extension"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

type WatchConfig struct {
	DebounceMs int `yaml:"debounce_ms"`
}

const (
	defaultOutputExt  = ".json"
	defaultLogLevel   = "warn"
	defaultSandboxBin = "bwrap"
	defaultDebounceMs = 500
)

// DefaultAgentOrder is the rotation order used when --agents is not given.
var DefaultAgentOrder = []string{"claude", "codex", "gemini"}

// DefaultRateLimitPatterns are matched case-insensitively against agent output.
var DefaultRateLimitPatterns = []string{"rate limit", "rate-limit", "too many requests", "429"}

// DefaultReadOnlyPaths are the system paths mounted read-only inside the sandbox.
var DefaultReadOnlyPaths = []string{"/usr", "/bin", "/sbin", "/lib", "/lib32", "/lib64", "/etc", "/opt"}

// BuiltinAgents returns a fresh copy of the built-in agent table.
func BuiltinAgents() map[string]AgentConfig {
	return map[string]AgentConfig{
		"claude": {
			Command: "claude",
			Args:    []string{"-p", "{prompt}", "--allowedTools", "Read,Grep,Glob,Edit,Update"},
		},
		"codex": {
			Command: "codex",
			Args:    []string{"run", "--agent", "{agent}", "--read", "--network", "--prompt-file", "{prompt_file}"},
		},
		"gemini": {
			Command: "gemini",
			Args:    []string{"-p", "{prompt}", "-y", "--output-format", "text"},
		},
	}
}

// LoadConfig reads a YAML config file. A missing file is an error.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read %s: %w", path, err)
	}
	var cfg Config
	if err := yamlv3.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return ApplyDefaults(cfg), nil
}

// LoadConfigOrDefault reads path when it exists and returns defaults otherwise.
func LoadConfigOrDefault(path string) (Config, error) {
	cfg, err := LoadConfig(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ApplyDefaults(Config{}), nil
		}
		return Config{}, err
	}
	return cfg, nil
}

// ApplyDefaults fills unset fields and merges configured agents over the built-ins.
func ApplyDefaults(cfg Config) Config {
	agents := BuiltinAgents()
	for name, ac := range cfg.Agents {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		base, ok := agents[name]
		if ac.Command == "" {
			ac.Command = base.Command
			if ac.Command == "" {
				ac.Command = name
			}
		}
		if ac.Args == nil && ok {
			ac.Args = base.Args
		}
		agents[name] = ac
	}
	cfg.Agents = agents

	if len(cfg.RateLimit.Patterns) == 0 {
		cfg.RateLimit.Patterns = append([]string(nil), DefaultRateLimitPatterns...)
	}
	if cfg.Sandbox.Tool == "" {
		cfg.Sandbox.Tool = defaultSandboxBin
	}
	if len(cfg.Sandbox.ReadOnlyPaths) == 0 {
		cfg.Sandbox.ReadOnlyPaths = append([]string(nil), DefaultReadOnlyPaths...)
	}
	if cfg.Sandbox.ShareNetwork == nil {
		share := true
		cfg.Sandbox.ShareNetwork = &share
	}
	if cfg.Output.Extension == "" {
		cfg.Output.Extension = defaultOutputExt
	} else if !strings.HasPrefix(cfg.Output.Extension, ".") {
		cfg.Output.Extension = "." + cfg.Output.Extension
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = defaultLogLevel
	}
	if cfg.Watch.DebounceMs <= 0 {
		cfg.Watch.DebounceMs = defaultDebounceMs
	}
	return cfg
}

// ResolveAgents validates a rotation order against the configured agents.
// Duplicate names keep their first position.
func (c Config) ResolveAgents(order []string) ([]string, error) {
	seen := make(map[string]bool, len(order))
	out := make([]string, 0, len(order))
	for _, name := range order {
		name = strings.TrimSpace(name)
		if name == "" || seen[name] {
			continue
		}
		if _, ok := c.Agents[name]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, name)
		}
		seen[name] = true
		out = append(out, name)
	}
	return out, nil
}

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(val string) []string {
	parts := strings.Split(val, ",")
	out := []string{}
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
