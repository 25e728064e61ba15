// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - Load layers a YAML file and the environment over those defaults.
// - External errors must be wrapped via this package's sentinel errors.
package config

import (
	"fmt"
	"net"
	"time"
)

// TierCount is the number of tier bands.
const TierCount = 5

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json output.
	LogFormat string `koanf:"log_format"`

	// Addr configures the operations HTTP listen address. The operations
	// routes carry moderator data without authentication, so the default
	// binds loopback only.
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database file.
	DBPath string `koanf:"db_path"`

	// Discord credentials and identifiers. The gateway is disabled when the token is empty.
	DiscordToken      string `koanf:"discord_token"`
	GuildID           string `koanf:"guild_id"`
	SubmitChannelID   string `koanf:"submit_channel_id"`
	ReviewChannelID   string `koanf:"review_channel_id"`
	TierlistChannelID string `koanf:"tierlist_channel_id"`
	ModRoleID         string `koanf:"mod_role_id"`
	LogChannelID      string `koanf:"log_channel_id"`
	TierlistRoleID    string `koanf:"tierlist_role_id"`

	// CooldownSeconds is the minimum gap between two accepted submissions of one member.
	CooldownSeconds int `koanf:"cooldown_seconds"`
	// ExpireHours is the age after which a pending submission expires on the next moderator action.
	ExpireHours int `koanf:"expire_hours"`
	// TierFloors are the lower bounds of tiers 1..5.
	TierFloors []int `koanf:"tier_floors"`
	// RejectReasonMax bounds the stored rejection reason, in characters.
	RejectReasonMax int `koanf:"reject_reason_max"`
	// RetentionDays prunes resolved submissions older than this; 0 keeps them forever.
	RetentionDays int `koanf:"retention_days"`

	// HookQueueSize bounds the post-commit hook queue.
	HookQueueSize int `koanf:"hook_queue_size"`
	// HookWorkers is the number of hook workers.
	HookWorkers int `koanf:"hook_workers"`
	// DedupeSize bounds the remembered inbound message ids.
	DedupeSize int `koanf:"dedupe_size"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            "127.0.0.1:9080",
		DBPath:          "data/tierboard.db",
		CooldownSeconds: 120,
		ExpireHours:     48,
		TierFloors:      []int{15, 35, 60, 90, 120},
		RejectReasonMax: 800,
		RetentionDays:   0,
		HookQueueSize:   1024,
		HookWorkers:     1,
		DedupeSize:      10_000,
	}
}

// Cooldown returns the cooldown window as a duration.
func (c *Config) Cooldown() time.Duration {
	return time.Duration(c.CooldownSeconds) * time.Second
}

// Expiry returns the pending expiry window as a duration.
func (c *Config) Expiry() time.Duration {
	return time.Duration(c.ExpireHours) * time.Hour
}

// Retention returns the retention window; zero disables pruning.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.RetentionDays) * 24 * time.Hour
}

// Floors returns the tier floors as a fixed array. Call after Validate.
func (c *Config) Floors() [TierCount]int {
	var out [TierCount]int
	copy(out[:], c.TierFloors)
	return out
}

// GatewayEnabled reports whether the Discord gateway should run.
func (c *Config) GatewayEnabled() bool {
	return c.DiscordToken != ""
}

// LocalOnly reports whether Addr binds a loopback interface.
func (c *Config) LocalOnly() bool {
	host, _, err := net.SplitHostPort(c.Addr)
	if err != nil {
		return false
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

// Validate checks the configuration for values the service cannot run with.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path must not be empty", ErrInvalidConfig)
	}
	if len(c.TierFloors) != TierCount {
		return fmt.Errorf("%w: tier_floors needs exactly %d values, got %d", ErrInvalidConfig, TierCount, len(c.TierFloors))
	}
	for i, f := range c.TierFloors {
		if f <= 0 {
			return fmt.Errorf("%w: tier_floors[%d] must be positive", ErrInvalidConfig, i)
		}
		if i > 0 && f <= c.TierFloors[i-1] {
			return fmt.Errorf("%w: tier_floors must be strictly increasing", ErrInvalidConfig)
		}
	}
	if c.CooldownSeconds < 0 {
		return fmt.Errorf("%w: cooldown_seconds must not be negative", ErrInvalidConfig)
	}
	if c.ExpireHours <= 0 {
		return fmt.Errorf("%w: expire_hours must be positive", ErrInvalidConfig)
	}
	if c.RejectReasonMax <= 0 {
		return fmt.Errorf("%w: reject_reason_max must be positive", ErrInvalidConfig)
	}
	if c.RetentionDays < 0 {
		return fmt.Errorf("%w: retention_days must not be negative", ErrInvalidConfig)
	}
	if c.GatewayEnabled() {
		required := map[string]string{
			"guild_id":            c.GuildID,
			"submit_channel_id":   c.SubmitChannelID,
			"review_channel_id":   c.ReviewChannelID,
			"tierlist_channel_id": c.TierlistChannelID,
		}
		for _, key := range []string{"guild_id", "submit_channel_id", "review_channel_id", "tierlist_channel_id"} {
			if required[key] == "" {
				return fmt.Errorf("%w: %s is required when discord_token is set", ErrInvalidConfig, key)
			}
		}
	}
	return nil
}
