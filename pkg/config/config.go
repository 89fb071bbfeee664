// Package config loads broker and bridge configuration: JSON file with full
// defaults, overridden by BURROW_* environment variables. Validation is
// fail-fast — a process missing required key material never starts.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/caarlos0/env/v11"
)

// BrokerConfig configures burrowd.
type BrokerConfig struct {
	ListenAddr string `json:"listen_addr" env:"BURROW_BROKER_LISTEN_ADDR"`

	// Broker key material, base64 raw bytes.
	BoxPublicKey   string `json:"box_public_key" env:"BURROW_BROKER_BOX_PUBLIC_KEY"`
	BoxPrivateKey  string `json:"box_private_key" env:"BURROW_BROKER_BOX_PRIVATE_KEY"`
	SignPublicKey  string `json:"sign_public_key" env:"BURROW_BROKER_SIGN_PUBLIC_KEY"`
	SignPrivateKey string `json:"sign_private_key" env:"BURROW_BROKER_SIGN_PRIVATE_KEY"`

	// Slack app credentials.
	SlackSigningSecret string `json:"slack_signing_secret" env:"BURROW_SLACK_SIGNING_SECRET"`
	SlackClientID      string `json:"slack_client_id" env:"BURROW_SLACK_CLIENT_ID"`
	SlackClientSecret  string `json:"slack_client_secret" env:"BURROW_SLACK_CLIENT_SECRET"`
	SlackRedirectURL   string `json:"slack_redirect_url" env:"BURROW_SLACK_REDIRECT_URL"`

	// Storage backend: "memory" or "redis".
	StorageBackend string `json:"storage_backend" env:"BURROW_STORAGE_BACKEND"`
	RedisAddr      string `json:"redis_addr" env:"BURROW_REDIS_ADDR"`
	RedisPassword  string `json:"redis_password" env:"BURROW_REDIS_PASSWORD"`
	InboxMaxDepth  int    `json:"inbox_max_depth" env:"BURROW_INBOX_MAX_DEPTH"`

	Logging LoggingConfig `json:"logging"`
}

// BridgeConfig configures burrow-bridge. All key material fields are
// required in pull mode.
type BridgeConfig struct {
	BrokerURL   string `json:"broker_url" env:"BURROW_BRIDGE_BROKER_URL"`
	WorkspaceID string `json:"workspace_id" env:"BURROW_BRIDGE_WORKSPACE_ID"`

	// This server's key material, base64 raw bytes.
	BoxPublicKey   string `json:"box_public_key" env:"BURROW_BRIDGE_BOX_PUBLIC_KEY"`
	BoxPrivateKey  string `json:"box_private_key" env:"BURROW_BRIDGE_BOX_PRIVATE_KEY"`
	SignPublicKey  string `json:"sign_public_key" env:"BURROW_BRIDGE_SIGN_PUBLIC_KEY"`
	SignPrivateKey string `json:"sign_private_key" env:"BURROW_BRIDGE_SIGN_PRIVATE_KEY"`

	// Broker public keys, from GET /keys at provisioning time.
	BrokerBoxPublicKey  string `json:"broker_box_public_key" env:"BURROW_BRIDGE_BROKER_BOX_PUBLIC_KEY"`
	BrokerSignPublicKey string `json:"broker_sign_public_key" env:"BURROW_BRIDGE_BROKER_SIGN_PUBLIC_KEY"`

	// Direct mode: when set, outbound calls go straight to the platform API
	// instead of back through the broker.
	SlackBotToken string `json:"slack_bot_token" env:"BURROW_BRIDGE_SLACK_BOT_TOKEN"`

	PollIntervalSeconds int `json:"poll_interval_seconds" env:"BURROW_BRIDGE_POLL_INTERVAL_SECONDS"`
	MaxMessagesPerPull  int `json:"max_messages_per_pull" env:"BURROW_BRIDGE_MAX_MESSAGES_PER_PULL"`
	DedupTTLSeconds     int `json:"dedup_ttl_seconds" env:"BURROW_BRIDGE_DEDUP_TTL_SECONDS"`

	// Max accepted age of a pulled envelope timestamp. 0 disables the check.
	MaxMessageAgeSeconds int `json:"max_message_age_seconds" env:"BURROW_BRIDGE_MAX_MESSAGE_AGE_SECONDS"`

	// Local automation process control socket.
	ClawSocketPath        string `json:"claw_socket_path" env:"BURROW_BRIDGE_CLAW_SOCKET_PATH"`
	ClawTimeoutSeconds    int    `json:"claw_timeout_seconds" env:"BURROW_BRIDGE_CLAW_TIMEOUT_SECONDS"`
	ThreadRegistryMaxSize int    `json:"thread_registry_max_size" env:"BURROW_BRIDGE_THREAD_REGISTRY_MAX_SIZE"`

	// Loopback API for the automation process's outbound replies.
	LocalListenAddr    string  `json:"local_listen_addr" env:"BURROW_BRIDGE_LOCAL_LISTEN_ADDR"`
	LocalRatePerSecond float64 `json:"local_rate_per_second" env:"BURROW_BRIDGE_LOCAL_RATE_PER_SECOND"`
	LocalRateBurst     int     `json:"local_rate_burst" env:"BURROW_BRIDGE_LOCAL_RATE_BURST"`

	Logging LoggingConfig `json:"logging"`
}

type LoggingConfig struct {
	FileEnabled bool   `json:"file_enabled" env:"BURROW_LOGGING_FILE_ENABLED"`
	FilePath    string `json:"file_path" env:"BURROW_LOGGING_FILE_PATH"`
	Debug       bool   `json:"debug" env:"BURROW_LOGGING_DEBUG"`
}

func DefaultBrokerConfig() *BrokerConfig {
	return &BrokerConfig{
		ListenAddr:     ":8080",
		StorageBackend: "memory",
		RedisAddr:      "localhost:6379",
		InboxMaxDepth:  1000,
		Logging: LoggingConfig{
			FileEnabled: false,
			FilePath:    "~/.burrow/burrowd.log",
		},
	}
}

func DefaultBridgeConfig() *BridgeConfig {
	return &BridgeConfig{
		PollIntervalSeconds:   3,
		MaxMessagesPerPull:    10,
		DedupTTLSeconds:       3600,
		MaxMessageAgeSeconds:  86400,
		ClawSocketPath:        "~/.burrow/claw.sock",
		ClawTimeoutSeconds:    10,
		ThreadRegistryMaxSize: 1000,
		LocalListenAddr:       "127.0.0.1:8710",
		LocalRatePerSecond:    5,
		LocalRateBurst:        10,
		Logging: LoggingConfig{
			FileEnabled: false,
			FilePath:    "~/.burrow/bridge.log",
		},
	}
}

// LoadBrokerConfig reads path (missing file means defaults) and applies env
// overrides.
func LoadBrokerConfig(path string) (*BrokerConfig, error) {
	cfg := DefaultBrokerConfig()
	if err := loadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBridgeConfig reads path (missing file means defaults) and applies env
// overrides.
func LoadBridgeConfig(path string) (*BridgeConfig, error) {
	cfg := DefaultBridgeConfig()
	if err := loadInto(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadInto(path string, cfg interface{}) error {
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return err
		}
		if err == nil {
			if err := json.Unmarshal(data, cfg); err != nil {
				return fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}
	return env.Parse(cfg)
}

// Validate reports every missing required broker field at once.
func (c *BrokerConfig) Validate() error {
	missing := requireAll(map[string]string{
		"box_public_key":       c.BoxPublicKey,
		"box_private_key":      c.BoxPrivateKey,
		"sign_public_key":      c.SignPublicKey,
		"sign_private_key":     c.SignPrivateKey,
		"slack_signing_secret": c.SlackSigningSecret,
	})
	if c.StorageBackend != "memory" && c.StorageBackend != "redis" {
		missing = append(missing, fmt.Sprintf("storage_backend (%q is not memory or redis)", c.StorageBackend))
	}
	if c.StorageBackend == "redis" && c.RedisAddr == "" {
		missing = append(missing, "redis_addr")
	}
	if len(missing) > 0 {
		return errors.New("broker config missing: " + strings.Join(missing, ", "))
	}
	return nil
}

// Validate reports every missing required bridge field at once. Pull mode
// needs the full key material plus broker coordinates.
func (c *BridgeConfig) Validate() error {
	missing := requireAll(map[string]string{
		"broker_url":             c.BrokerURL,
		"workspace_id":           c.WorkspaceID,
		"box_public_key":         c.BoxPublicKey,
		"box_private_key":        c.BoxPrivateKey,
		"sign_public_key":        c.SignPublicKey,
		"sign_private_key":       c.SignPrivateKey,
		"broker_box_public_key":  c.BrokerBoxPublicKey,
		"broker_sign_public_key": c.BrokerSignPublicKey,
	})
	if c.PollIntervalSeconds <= 0 {
		missing = append(missing, "poll_interval_seconds (must be positive)")
	}
	if c.MaxMessagesPerPull <= 0 {
		missing = append(missing, "max_messages_per_pull (must be positive)")
	}
	if c.DedupTTLSeconds <= 0 {
		missing = append(missing, "dedup_ttl_seconds (must be positive)")
	}
	if len(missing) > 0 {
		return errors.New("bridge config missing: " + strings.Join(missing, ", "))
	}
	return nil
}

func requireAll(fields map[string]string) []string {
	var missing []string
	for name, value := range fields {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, name)
		}
	}
	// Deterministic order for error messages and tests.
	sort.Strings(missing)
	return missing
}
