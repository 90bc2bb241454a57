// config/config.go
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Server     ServerConfig     `toml:"server"`
	Security   SecurityConfig   `toml:"security"`
	Provider   ProviderConfig   `toml:"provider"`
	OAuth      OAuthConfig      `toml:"oauth"`
	IMAP       IMAPConfig       `toml:"imap"`
	Storage    StorageConfig    `toml:"storage"`
	Pipeline   PipelineConfig   `toml:"pipeline"`
	Classifier ClassifierConfig `toml:"classifier"`
}

type ServerConfig struct {
	Host  string `toml:"host"`
	Port  int    `toml:"port"`
	Debug bool   `toml:"debug"`
}

// Duration accepts TOML values like "60s" or "24h".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

type SecurityConfig struct {
	SessionDirectory string   `toml:"session_directory"`
	SessionTimeout   Duration `toml:"session_timeout"`
	JWTSecret        string   `toml:"jwt_secret"`
	// SealKey encrypts provider credentials held in the session.
	// Must be exactly 32 bytes (AES-256).
	SealKey string `toml:"seal_key"`
}

type ProviderConfig struct {
	// Kind selects the mailbox backend: "gmail" or "imap".
	Kind string `toml:"kind"`
}

type OAuthConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

type IMAPConfig struct {
	Server        string `toml:"server"`
	Port          int    `toml:"port"`
	UseSSL        bool   `toml:"use_ssl"`
	ArchiveFolder string `toml:"archive_folder"`
}

type StorageConfig struct {
	EmailsFile     string `toml:"emails_file"`
	CategoriesFile string `toml:"categories_file"`
}

type PipelineConfig struct {
	BatchSize int `toml:"batch_size"`
}

type ClassifierConfig struct {
	URL     string   `toml:"url"`
	Model   string   `toml:"model"`
	Mode    string   `toml:"mode"` // "generate" (Ollama) or "chat" (OpenAI-style)
	Timeout Duration `toml:"timeout"`
}

// Default configuration values
var defaultConfig = Config{
	Server: ServerConfig{
		Host: "localhost",
		Port: 3000,
	},
	Security: SecurityConfig{
		SessionDirectory: "sessions",
		SessionTimeout:   Duration(24 * time.Hour),
	},
	Provider: ProviderConfig{
		Kind: "gmail",
	},
	IMAP: IMAPConfig{
		Port:          993,
		UseSSL:        true,
		ArchiveFolder: "Archive",
	},
	Storage: StorageConfig{
		EmailsFile:     "emails.json",
		CategoriesFile: "categories.json",
	},
	Pipeline: PipelineConfig{
		BatchSize: 5,
	},
	Classifier: ClassifierConfig{
		URL:     "http://localhost:11434/api/generate",
		Model:   "mistral",
		Mode:    "generate",
		Timeout: Duration(60 * time.Second),
	},
}

// Load loads the configuration from the specified path, falling back to
// standard locations when path is empty.
func Load(path string) (*Config, error) {
	config := defaultConfig

	if path == "" {
		configLocations := []string{
			"./config.toml",
			"~/.config/mailsift/config.toml",
			"/etc/mailsift/config.toml",
		}

		for _, loc := range configLocations {
			expanded, err := expandPath(loc)
			if err != nil {
				continue
			}
			if _, err := os.Stat(expanded); err == nil {
				path = expanded
				break
			}
		}
	}

	if path != "" {
		if _, err := toml.DecodeFile(path, &config); err != nil {
			return nil, fmt.Errorf("error loading config: %w", err)
		}
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// validate checks if the configuration is valid
func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port number: %d", c.Server.Port)
	}

	if c.Security.SessionTimeout.Std() < time.Minute {
		return fmt.Errorf("session timeout must be at least 1 minute")
	}

	if c.Security.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be set")
	}

	if len(c.Security.SealKey) != 32 {
		return fmt.Errorf("seal key must be exactly 32 bytes, got %d", len(c.Security.SealKey))
	}

	switch c.Provider.Kind {
	case "gmail", "imap":
	default:
		return fmt.Errorf("unknown provider kind: %q", c.Provider.Kind)
	}

	if c.Pipeline.BatchSize < 1 || c.Pipeline.BatchSize > 10 {
		return fmt.Errorf("pipeline batch size must be between 1 and 10, got %d", c.Pipeline.BatchSize)
	}

	switch c.Classifier.Mode {
	case "generate", "chat":
	default:
		return fmt.Errorf("unknown classifier mode: %q", c.Classifier.Mode)
	}

	if c.Classifier.Timeout.Std() < time.Second {
		return fmt.Errorf("classifier timeout must be at least 1 second")
	}

	return nil
}

// expandPath expands the ~ in paths to the user's home directory
func expandPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// Save saves the current configuration to a file
func (c *Config) Save(path string) error {
	expanded, err := expandPath(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(expanded)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(expanded, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(c)
}
