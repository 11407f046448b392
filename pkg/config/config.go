package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
)

// Config is the persisted clawbridge configuration. It is read once at
// startup, overlaid with environment variables, and written back whenever
// a status- or identity-bearing transport event changes the bridge state.
type Config struct {
	Bridge    BridgeConfig    `json:"bridge"`
	Transport TransportConfig `json:"transport"`
	Engine    EngineConfig    `json:"engine"`
	Log       LogConfig       `json:"log,omitzero"`

	// path the config was loaded from, used by Save. Not serialized.
	path string
}

// BridgeConfig holds the gatekeeper state that survives restarts: whether
// the bridge is armed, the owner identity resolved on the last successful
// connection, and coarse connection bookkeeping.
type BridgeConfig struct {
	Enabled         bool   `json:"enabled" env:"CLAWBRIDGE_ENABLED"`
	OwnerJID        string `json:"owner_jid,omitempty"`
	OwnerLID        string `json:"owner_lid,omitempty"`
	Status          string `json:"status,omitempty"`
	LastConnectedAt int64  `json:"last_connected_at,omitempty"`
}

type TransportConfig struct {
	Kind     string         `json:"kind" env:"CLAWBRIDGE_TRANSPORT"`
	WhatsApp WhatsAppConfig `json:"whatsapp,omitzero"`
	Telegram TelegramConfig `json:"telegram,omitzero"`
	Discord  DiscordConfig  `json:"discord,omitzero"`
	Slack    SlackConfig    `json:"slack,omitzero"`
}

// WhatsAppConfig points at the local bridge daemon that owns the WhatsApp
// socket crypto. SessionPath is the directory holding its persisted
// session credentials; it is purged on terminal close causes.
type WhatsAppConfig struct {
	BridgeURL   string `json:"bridge_url" env:"CLAWBRIDGE_WA_BRIDGE_URL"`
	SessionPath string `json:"session_path,omitempty" env:"CLAWBRIDGE_WA_SESSION_PATH"`
}

type TelegramConfig struct {
	Token   string `json:"token,omitempty" env:"CLAWBRIDGE_TELEGRAM_TOKEN"`
	OwnerID string `json:"owner_id,omitempty" env:"CLAWBRIDGE_TELEGRAM_OWNER"`
}

type DiscordConfig struct {
	Token   string `json:"token,omitempty" env:"CLAWBRIDGE_DISCORD_TOKEN"`
	OwnerID string `json:"owner_id,omitempty" env:"CLAWBRIDGE_DISCORD_OWNER"`
}

type SlackConfig struct {
	BotToken string `json:"bot_token,omitempty" env:"CLAWBRIDGE_SLACK_BOT_TOKEN"`
	AppToken string `json:"app_token,omitempty" env:"CLAWBRIDGE_SLACK_APP_TOKEN"`
	OwnerID  string `json:"owner_id,omitempty" env:"CLAWBRIDGE_SLACK_OWNER"`
}

type EngineConfig struct {
	Kind      string `json:"kind" env:"CLAWBRIDGE_ENGINE"`
	Model     string `json:"model,omitempty" env:"CLAWBRIDGE_MODEL"`
	APIKey    string `json:"api_key,omitempty" env:"ANTHROPIC_API_KEY"`
	Workspace string `json:"workspace,omitempty" env:"CLAWBRIDGE_WORKSPACE"`
}

type LogConfig struct {
	Level string `json:"level,omitempty" env:"CLAWBRIDGE_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Bridge: BridgeConfig{Enabled: false},
		Transport: TransportConfig{
			Kind: "whatsapp",
			WhatsApp: WhatsAppConfig{
				BridgeURL: "ws://127.0.0.1:8055/ws",
			},
		},
		Engine: EngineConfig{
			Kind: "claude-cli",
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultConfigPath returns ~/.clawbridge/config.json.
func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawbridge", "config.json")
}

// LoadConfig reads the config file at path, falling back to defaults when
// the file does not exist, then applies environment variable overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.path = path

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			if err := env.Parse(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, err
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the config atomically: temp file in the same directory,
// fsync, then rename over the target.
func (c *Config) Save() error {
	if c.path == "" {
		return nil
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	tmpFile, err := os.CreateTemp(dir, "config-*.tmp")
	if err != nil {
		return err
	}

	tmpPath := tmpFile.Name()
	cleanup := true
	defer func() {
		if cleanup {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Chmod(0600); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, c.path); err != nil {
		return err
	}
	cleanup = false
	return nil
}

// SetPath overrides the save target. Used by tests and the composition root.
func (c *Config) SetPath(path string) {
	c.path = path
}

// SessionCredentials manages the on-disk session state of the WhatsApp
// bridge. Terminal transport causes (logout, forbidden, corrupt session)
// must purge it so a stale session is never replayed.
type SessionCredentials struct {
	Path string
}

func (s SessionCredentials) PurgeSessionCredentials() error {
	if s.Path == "" {
		return nil
	}
	if err := os.RemoveAll(s.Path); err != nil {
		return fmt.Errorf("purge session credentials: %w", err)
	}
	return nil
}
