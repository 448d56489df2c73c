package server

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oakline/agent-console/pkg/agents"
)

// Config holds the complete console configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Identity     IdentityConfig     `yaml:"identity"`
	ConnectHub   ConnectHubConfig   `yaml:"connecthub"`
	Session      SessionConfig      `yaml:"session"`
	Agents       AgentsConfig       `yaml:"agents"`
	ServiceKeys  []ServiceKeyConfig `yaml:"service_keys"`
	ToolkitCache ToolkitCacheConfig `yaml:"toolkit_cache"`
	MCP          MCPConfig          `yaml:"mcp"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address string `yaml:"address"`

	// SiteURL is the public origin of the console. When set it overrides
	// forwarded-header origin resolution for auth redirects.
	SiteURL string `yaml:"site_url"`

	// ShutdownGrace bounds graceful shutdown on SIGINT/SIGTERM.
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// IdentityConfig configures the identity provider integration.
type IdentityConfig struct {
	BaseURL       string `yaml:"base_url"`
	APIKey        string `yaml:"api_key"`
	SigningSecret string `yaml:"signing_secret"`
	Issuer        string `yaml:"issuer"`
	Audience      string `yaml:"audience"`
}

// ConnectHubConfig configures the tool-connection provider client.
type ConnectHubConfig struct {
	BaseURL string `yaml:"base_url"`

	// APIKey may be empty; the server starts and reports misconfiguration
	// per request instead of refusing to boot.
	APIKey string `yaml:"api_key"`

	WaitTimeout time.Duration `yaml:"wait_timeout"`
}

// SessionConfig configures browser sessions.
type SessionConfig struct {
	TTL             time.Duration `yaml:"ttl"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
	SecureCookies   bool          `yaml:"secure_cookies"`
}

// AgentsConfig configures the agent catalog.
type AgentsConfig struct {
	// RuntimeURL is the external agent runtime base; used to build the
	// builtin catalog when no agents are configured explicitly.
	RuntimeURL string         `yaml:"runtime_url"`
	Default    string         `yaml:"default"`
	Catalog    []agents.Agent `yaml:"catalog"`
}

// ServiceKeyConfig authorizes a machine caller by bcrypt hash.
type ServiceKeyConfig struct {
	Name string `yaml:"name"`
	Hash string `yaml:"hash"`
}

// ToolkitCacheConfig sizes the toolkit metadata cache.
type ToolkitCacheConfig struct {
	Size int           `yaml:"size"`
	TTL  time.Duration `yaml:"ttl"`
}

// MCPConfig configures the MCP tool surface for the agent process.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoadConfig loads configuration from a file.
// The path comes from command line arguments, controlled by the operator.
func LoadConfig(path string) (*Config, error) {
	// #nosec G304 -- path is from CLI args, controlled by the operator
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	data = []byte(expandEnvVars(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	applyDefaults(&cfg)
	return &cfg, nil
}

// DefaultConfig returns the configuration used when no file is supplied;
// secrets come from the environment.
func DefaultConfig() *Config {
	cfg := &Config{
		Identity: IdentityConfig{
			BaseURL:       os.Getenv("IDENTITY_BASE_URL"),
			APIKey:        os.Getenv("IDENTITY_API_KEY"),
			SigningSecret: os.Getenv("IDENTITY_SIGNING_SECRET"),
		},
		ConnectHub: ConnectHubConfig{
			BaseURL: os.Getenv("CONNECTHUB_BASE_URL"),
			APIKey:  os.Getenv("CONNECTHUB_API_KEY"),
		},
		Agents: AgentsConfig{
			RuntimeURL: os.Getenv("AGENT_RUNTIME_URL"),
		},
	}
	applyDefaults(cfg)
	return cfg
}

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)
	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		return os.Getenv(varName)
	})
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ShutdownGrace == 0 {
		cfg.Server.ShutdownGrace = 10 * time.Second
	}
	if cfg.Session.TTL == 0 {
		cfg.Session.TTL = 24 * time.Hour
	}
	if cfg.Session.CleanupInterval == 0 {
		cfg.Session.CleanupInterval = 5 * time.Minute
	}
	if cfg.ToolkitCache.Size == 0 {
		cfg.ToolkitCache.Size = 256
	}
	if cfg.ToolkitCache.TTL == 0 {
		cfg.ToolkitCache.TTL = 5 * time.Minute
	}
	if cfg.Agents.RuntimeURL == "" {
		cfg.Agents.RuntimeURL = "http://localhost:8124"
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = "/mcp"
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Identity.SigningSecret == "" {
		errs = append(errs, "identity.signing_secret is required")
	}
	for i, agent := range c.Agents.Catalog {
		if strings.TrimSpace(agent.ID) == "" {
			errs = append(errs, fmt.Sprintf("agents.catalog[%d].id is required", i))
		}
		if strings.TrimSpace(agent.URL) == "" {
			errs = append(errs, fmt.Sprintf("agents.catalog[%d].url is required", i))
		}
	}
	for i, key := range c.ServiceKeys {
		if key.Name == "" {
			errs = append(errs, fmt.Sprintf("service_keys[%d].name is required", i))
		}
		if key.Hash == "" {
			errs = append(errs, fmt.Sprintf("service_keys[%d].hash is required", i))
		}
	}
	if c.MCP.Enabled && len(c.ServiceKeys) == 0 {
		errs = append(errs, "mcp.enabled requires at least one service key")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
