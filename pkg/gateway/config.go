package gateway

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// CollisionStrategy decides what happens when two backend connections expose
// the same tool name.
type CollisionStrategy string

const (
	// CollisionNamespace prefixes the duplicate with the connection's
	// namespace key and the separator. Default.
	CollisionNamespace CollisionStrategy = "namespace"
	// CollisionSkip drops the duplicate and logs it.
	CollisionSkip CollisionStrategy = "skip"
	// CollisionError fails the catalog build.
	CollisionError CollisionStrategy = "error"
)

// DefaultSeparator joins namespace key and tool name under CollisionNamespace.
const DefaultSeparator = "::"

// ConnectionConfig describes one backend MCP connection.
type ConnectionConfig struct {
	Name      string `yaml:"name"`
	Endpoint  string `yaml:"endpoint"`
	Namespace string `yaml:"namespace,omitempty"` // defaults to Name
}

// Config is the gateway catalog configuration, loaded from YAML.
type Config struct {
	Collision   CollisionStrategy  `yaml:"collision,omitempty"`
	Separator   string             `yaml:"separator,omitempty"`
	Connections []ConnectionConfig `yaml:"connections"`
}

// LoadConfig reads and validates a gateway catalog file.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway config %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse gateway config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid gateway config %s: %w", path, err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Connections) == 0 {
		return fmt.Errorf("no connections configured")
	}
	seen := make(map[string]bool, len(c.Connections))
	for i := range c.Connections {
		conn := &c.Connections[i]
		if conn.Name == "" {
			return fmt.Errorf("connection %d has no name", i)
		}
		if conn.Endpoint == "" {
			return fmt.Errorf("connection %q has no endpoint", conn.Name)
		}
		if seen[conn.Name] {
			return fmt.Errorf("duplicate connection name %q", conn.Name)
		}
		seen[conn.Name] = true
	}
	switch c.Collision {
	case "", CollisionNamespace, CollisionSkip, CollisionError:
	default:
		return fmt.Errorf("unknown collision strategy %q", c.Collision)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Collision == "" {
		c.Collision = CollisionNamespace
	}
	if c.Separator == "" {
		c.Separator = DefaultSeparator
	}
	for i := range c.Connections {
		if c.Connections[i].Namespace == "" {
			c.Connections[i].Namespace = c.Connections[i].Name
		}
	}
}
