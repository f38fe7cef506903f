package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var DefaultConfigYAML []byte

type Config struct {
	Reddit    Reddit    `yaml:"reddit"`
	WebSearch WebSearch `yaml:"websearch"`
	LLM       LLM       `yaml:"llm"`
	Schedule  Schedule  `yaml:"schedule"`
	Output    Output    `yaml:"output"`
	Logging   Logging   `yaml:"logging"`
}

type Reddit struct {
	ClientIDEnv     string `yaml:"client_id_env"`
	ClientSecretEnv string `yaml:"client_secret_env"`
	UserAgent       string `yaml:"user_agent"`

	// Resolved from the env at load time.
	ClientID     string `yaml:"-"`
	ClientSecret string `yaml:"-"`
}

type WebSearch struct {
	APIKeyEnv string `yaml:"api_key_env"`
}

type LLM struct {
	Provider  string `yaml:"provider"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type Schedule struct {
	Cron string `yaml:"cron"`
}

type Output struct {
	DataDir string `yaml:"data_dir"`
}

type Logging struct {
	Level string `yaml:"level"`
}

// ConfigDir returns the XDG config directory for replypilot.
func ConfigDir() string {
	return filepath.Join(homeDir(), ".config", "replypilot")
}

// DataDir returns the XDG data directory for replypilot.
func DataDir() string {
	return filepath.Join(homeDir(), ".local", "share", "replypilot")
}

// ResolveConfigPath finds the config file following priority:
// explicit path > ~/.config/replypilot/config.yaml > ./config.yaml
func ResolveConfigPath(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	xdgConfig := filepath.Join(ConfigDir(), "config.yaml")
	if _, err := os.Stat(xdgConfig); err == nil {
		return xdgConfig, nil
	}

	cwdConfig := "config.yaml"
	if _, err := os.Stat(cwdConfig); err == nil {
		return cwdConfig, nil
	}

	return "", fmt.Errorf(
		"no config file found; searched:\n  %s\n  ./config.yaml\n\nRun 'replypilot init' to create a default config",
		xdgConfig,
	)
}

// Load reads and parses a config YAML file and resolves env-backed
// credentials.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Reddit.ClientID = os.Getenv(cfg.Reddit.ClientIDEnv)
	cfg.Reddit.ClientSecret = os.Getenv(cfg.Reddit.ClientSecretEnv)
	return cfg, nil
}

// parse parses YAML bytes into a Config, applying defaults.
func parse(data []byte) (*Config, error) {
	cfg := &Config{
		Reddit: Reddit{
			ClientIDEnv:     "REDDIT_CLIENT_ID",
			ClientSecretEnv: "REDDIT_CLIENT_SECRET",
			UserAgent:       "replypilot/1.0",
		},
		WebSearch: WebSearch{APIKeyEnv: "SERPER_API_KEY"},
		LLM: LLM{
			Provider:  "gemini",
			Model:     "gemini-2.0-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
		Schedule: Schedule{Cron: "0 */6 * * *"},
		Logging:  Logging{Level: "INFO"},
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, nil
}

// Validate reports missing required credentials. The pipeline refuses
// to start without them.
func (c *Config) Validate() error {
	var missing []string
	if c.Reddit.ClientID == "" {
		missing = append(missing, c.Reddit.ClientIDEnv)
	}
	if c.Reddit.ClientSecret == "" {
		missing = append(missing, c.Reddit.ClientSecretEnv)
	}
	if os.Getenv(c.WebSearch.APIKeyEnv) == "" {
		missing = append(missing, c.WebSearch.APIKeyEnv)
	}
	if os.Getenv(c.LLM.APIKeyEnv) == "" {
		missing = append(missing, c.LLM.APIKeyEnv)
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %v", missing)
	}
	return nil
}

// GetDataDir returns the effective data directory from config or XDG default.
func (c *Config) GetDataDir() string {
	if c.Output.DataDir != "" {
		return c.Output.DataDir
	}
	return DataDir()
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}
