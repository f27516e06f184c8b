// Package config provides configuration loading and management for ticketbridge.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete ticketbridge configuration
type Config struct {
	Discord      DiscordConfig  `yaml:"discord"`
	Intercom     IntercomConfig `yaml:"intercom"`
	Server       ServerConfig   `yaml:"server"`
	NATS         NATSConfig     `yaml:"nats"`
	Store        StoreConfig    `yaml:"store"`
	QuickReplies []QuickReply   `yaml:"quick_replies"`
}

// DiscordConfig configures the Discord side of the bridge
type DiscordConfig struct {
	// Token is the bot token (env: TICKETBRIDGE_DISCORD_TOKEN)
	Token string `yaml:"token"`
	// ApplicationID is the Discord application ID used for interaction followups
	ApplicationID string `yaml:"application_id"`
	// PublicKey is the hex-encoded Ed25519 key Discord signs interactions with
	PublicKey string `yaml:"public_key"`
	// ChannelID is the channel fresh tickets are posted to
	ChannelID string `yaml:"channel_id"`
}

// IntercomConfig configures the Intercom API connection
type IntercomConfig struct {
	// AccessToken authenticates against the Intercom API
	// (env: TICKETBRIDGE_INTERCOM_TOKEN)
	AccessToken string `yaml:"access_token"`
	// WebhookSecret verifies webhook signatures. Empty disables verification.
	// (env: TICKETBRIDGE_INTERCOM_WEBHOOK_SECRET)
	WebhookSecret string `yaml:"webhook_secret"`
	// AdminID is the admin replies and closes are attributed to
	AdminID string `yaml:"admin_id"`
	// BaseURL is the API endpoint (default: https://api.intercom.io)
	BaseURL string `yaml:"base_url"`
}

// ServerConfig configures the webhook HTTP server
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// ShutdownTimeout bounds graceful shutdown
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// NATSConfig configures the internal event bus
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to run an in-process NATS server
	Embedded bool `yaml:"embedded"`
}

// StoreConfig configures the ticket store
type StoreConfig struct {
	// Path is the SQLite database path
	Path string `yaml:"path"`
}

// QuickReply is a canned response offered as a button on each ticket.
type QuickReply struct {
	// Key identifies the reply in button custom IDs. Must be unique.
	Key string `yaml:"key"`
	// Label is the button text shown in Discord
	Label string `yaml:"label"`
	// Reply is the message sent to the Intercom conversation
	Reply string `yaml:"reply"`
	// CloseTicket closes the conversation after sending the reply
	CloseTicket bool `yaml:"close_ticket"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Intercom: IntercomConfig{
			BaseURL: "https://api.intercom.io",
		},
		Server: ServerConfig{
			Host:            "localhost",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
		},
		NATS: NATSConfig{
			URL:      "",
			Embedded: true,
		},
		Store: StoreConfig{
			Path: "tickets.db",
		},
		QuickReplies: DefaultQuickReplies(),
	}
}

// DefaultQuickReplies returns the built-in canned responses.
func DefaultQuickReplies() []QuickReply {
	return []QuickReply{
		{
			Key:         "no_robux",
			Label:       "Sorry, we don't sell Robux anymore",
			Reply:       "I apologize, but we no longer sell Robux. Is there anything else I can help you with?",
			CloseTicket: true,
		},
		{
			Key:   "out_of_stock",
			Label: "Item out of stock",
			Reply: "Unfortunately, this item is currently out of stock. We'll notify you when it's available again.",
		},
		{
			Key:   "pricing_info",
			Label: "Pricing information",
			Reply: "Here's our current pricing information: [Link to pricing page]. Let me know if you need any clarification!",
		},
		{
			Key:   "technical_support",
			Label: "Technical support",
			Reply: "I'm transferring you to our technical support team. They'll be with you shortly.",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Discord.Token == "" {
		return fmt.Errorf("discord.token is required")
	}
	if c.Discord.ChannelID == "" {
		return fmt.Errorf("discord.channel_id is required")
	}
	if c.Intercom.AccessToken == "" {
		return fmt.Errorf("intercom.access_token is required")
	}
	if c.Intercom.BaseURL == "" {
		return fmt.Errorf("intercom.base_url is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	return ValidateQuickReplies(c.QuickReplies)
}

// ValidateQuickReplies checks quick replies independently so a hot reload can
// reject a bad set without touching the rest of the config.
func ValidateQuickReplies(replies []QuickReply) error {
	seen := make(map[string]bool, len(replies))
	for i, qr := range replies {
		if qr.Key == "" {
			return fmt.Errorf("quick_replies[%d]: key is required", i)
		}
		if qr.Label == "" {
			return fmt.Errorf("quick_replies[%q]: label is required", qr.Key)
		}
		if qr.Reply == "" {
			return fmt.Errorf("quick_replies[%q]: reply is required", qr.Key)
		}
		if seen[qr.Key] {
			return fmt.Errorf("quick_replies[%q]: duplicate key", qr.Key)
		}
		seen[qr.Key] = true
	}
	return nil
}

// QuickReply returns the quick reply for key, if configured.
func (c *Config) QuickReply(key string) (QuickReply, bool) {
	for _, qr := range c.QuickReplies {
		if qr.Key == key {
			return qr, true
		}
	}
	return QuickReply{}, false
}

// Merge overlays non-zero fields from other onto c.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}
	if other.Discord.Token != "" {
		c.Discord.Token = other.Discord.Token
	}
	if other.Discord.ApplicationID != "" {
		c.Discord.ApplicationID = other.Discord.ApplicationID
	}
	if other.Discord.PublicKey != "" {
		c.Discord.PublicKey = other.Discord.PublicKey
	}
	if other.Discord.ChannelID != "" {
		c.Discord.ChannelID = other.Discord.ChannelID
	}
	if other.Intercom.AccessToken != "" {
		c.Intercom.AccessToken = other.Intercom.AccessToken
	}
	if other.Intercom.WebhookSecret != "" {
		c.Intercom.WebhookSecret = other.Intercom.WebhookSecret
	}
	if other.Intercom.AdminID != "" {
		c.Intercom.AdminID = other.Intercom.AdminID
	}
	if other.Intercom.BaseURL != "" {
		c.Intercom.BaseURL = other.Intercom.BaseURL
	}
	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.ShutdownTimeout != 0 {
		c.Server.ShutdownTimeout = other.Server.ShutdownTimeout
	}
	if other.NATS.URL != "" {
		c.NATS.URL = other.NATS.URL
		c.NATS.Embedded = false
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if len(other.QuickReplies) > 0 {
		c.QuickReplies = other.QuickReplies
	}
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	config := &Config{}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
