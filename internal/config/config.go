// ABOUTME: Configuration loading and parsing for class-relay
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete class-relay configuration
type Config struct {
	Transport TransportConfig `yaml:"transport"`
	Roles     RolesConfig     `yaml:"roles"`
	Chats     ChatsConfig     `yaml:"chats"`
	Database  DatabaseConfig  `yaml:"database"`
	Policy    PolicyConfig    `yaml:"policy"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// TransportConfig holds chat transport credentials
type TransportConfig struct {
	Token string `yaml:"token"`
}

// RolesConfig names the fixed privileged identities. Everyone else is a learner.
type RolesConfig struct {
	InstructorID string `yaml:"instructor_id"`
	OwnerID      string `yaml:"owner_id"`
}

// ChatsConfig holds the shared chat identifiers
type ChatsConfig struct {
	// GroupID is the learner group used for membership checks, moderation
	// and group posts.
	GroupID string `yaml:"group_id"`
	// WorkspaceID is the instructor forum chat where per-learner discussion
	// threads are created.
	WorkspaceID string `yaml:"workspace_id"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// PolicyConfig holds deployment policy switches
type PolicyConfig struct {
	RequireRegistration bool `yaml:"require_registration"`
	RequireMembership   bool `yaml:"require_membership"`
	BroadcastWindow     int  `yaml:"broadcast_window"`

	DedupeTTL time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	DedupeTTLRaw string `yaml:"dedupe_ttl"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if cfg.Policy.DedupeTTLRaw != "" {
		cfg.Policy.DedupeTTL, err = time.ParseDuration(cfg.Policy.DedupeTTLRaw)
		if err != nil {
			return nil, fmt.Errorf("parsing dedupe_ttl %q: %w", cfg.Policy.DedupeTTLRaw, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment
// variable values. Unset variables expand to the empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Roles.InstructorID == "" {
		return fmt.Errorf("roles.instructor_id is required")
	}
	if c.Roles.OwnerID == "" {
		return fmt.Errorf("roles.owner_id is required")
	}
	if c.Chats.GroupID == "" {
		return fmt.Errorf("chats.group_id is required")
	}
	if c.Chats.WorkspaceID == "" {
		return fmt.Errorf("chats.workspace_id is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Policy.BroadcastWindow < 0 {
		return fmt.Errorf("policy.broadcast_window must not be negative")
	}
	return nil
}
