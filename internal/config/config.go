// Package config loads teampulse configuration.
//
// Values are layered, lowest priority first:
//
//  1. Built-in defaults
//  2. YAML file: $TEAMPULSE_CONFIG, ./teampulse.yaml or ~/.teampulse/config.yaml
//  3. Environment: TEAMPULSE_<SECTION>__<KEY>, e.g. TEAMPULSE_GITHUB__ORGANIZATION
//
// The bare GITHUB_TOKEN, JIRA_URL, JIRA_USER_EMAIL, JIRA_PAT and BONUSLY_API_TOKEN
// variables are honoured when the corresponding setting is still empty.
package config

import (
	"time"

	"github.com/colthorp/teampulse-go/internal/core"
)

// Config is the complete runtime configuration.
type Config struct {
	GitHub  GitHubConfig  `koanf:"github"`
	Jira    JiraConfig    `koanf:"jira"`
	Bonusly BonuslyConfig `koanf:"bonusly"`
	HTTP    HTTPConfig    `koanf:"http"`
	Cache   CacheConfig   `koanf:"cache"`
	Report  ReportConfig  `koanf:"report"`
	Roster  RosterConfig  `koanf:"roster"`
	Server  ServerConfig  `koanf:"server"`
	Log     LogConfig     `koanf:"log"`
}

type GitHubConfig struct {
	Token          string        `koanf:"token"`
	BaseURL        string        `koanf:"base_url" validate:"required,url"`
	Organization   string        `koanf:"organization"`
	PageSize       int           `koanf:"page_size" validate:"min=1,max=1000"`
	MaxPages       int           `koanf:"max_pages" validate:"min=1"`
	CommitPageSize int           `koanf:"commit_page_size" validate:"min=1,max=1000"`
	PageDelay      time.Duration `koanf:"page_delay" validate:"min=0"`
}

type JiraConfig struct {
	BaseURL          string `koanf:"base_url" validate:"omitempty,url"`
	User             string `koanf:"user"`
	Token            string `koanf:"token"`
	PageSize         int    `koanf:"page_size" validate:"min=1,max=1000"`
	StoryPointsField string `koanf:"story_points_field" validate:"required"`
}

type BonuslyConfig struct {
	BaseURL   string `koanf:"base_url" validate:"required,url"`
	Token     string `koanf:"token"`
	BotMarker string `koanf:"bot_marker"`
	Limit     int    `koanf:"limit" validate:"min=1"`
}

// HTTPConfig tunes the shared upstream client.
type HTTPConfig struct {
	Timeout         time.Duration `koanf:"timeout" validate:"gt=0"`
	MaxRetries      int           `koanf:"max_retries" validate:"min=0,max=10"`
	BreakerFailures int           `koanf:"breaker_failures" validate:"min=1"`
	BreakerTimeout  time.Duration `koanf:"breaker_timeout" validate:"gt=0"`
}

type CacheConfig struct {
	Backend      string        `koanf:"backend" validate:"oneof=badger filesystem memory sturdyc"`
	Path         string        `koanf:"path"`
	TTL          time.Duration `koanf:"ttl" validate:"gt=0"`
	PRFreshness  time.Duration `koanf:"pr_freshness" validate:"gt=0"`
	Capacity     int           `koanf:"capacity" validate:"min=1"`
	Shards       int           `koanf:"shards" validate:"min=1"`
	SingleFlight bool          `koanf:"single_flight"`
}

type ReportConfig struct {
	OldPRDays    int    `koanf:"old_pr_days" validate:"min=0"`
	SnapshotPath string `koanf:"snapshot_path"`
}

type RosterConfig struct {
	Path string `koanf:"path"`
}

type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required,hostname_port"`
	// AllowedOrigins enables CORS for browser dashboards when non-empty.
	AllowedOrigins []string `koanf:"allowed_origins"`
	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int `koanf:"rate_limit" validate:"min=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error disabled"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			BaseURL:        core.GitHubBaseURL,
			PageSize:       core.SearchPageSize,
			MaxPages:       core.SearchMaxPages,
			CommitPageSize: core.CommitPageSize,
			PageDelay:      core.DefaultPageDelay,
		},
		Jira: JiraConfig{
			PageSize:         core.TicketPageSize,
			StoryPointsField: core.DefaultStoryPoints,
		},
		Bonusly: BonuslyConfig{
			BaseURL:   core.BonuslyBaseURL,
			BotMarker: core.DefaultBotMarker,
			Limit:     core.BonuslyLimit,
		},
		HTTP: HTTPConfig{
			Timeout:         core.DefaultRequestTimeout,
			MaxRetries:      core.DefaultMaxRetries,
			BreakerFailures: core.DefaultBreakerFailures,
			BreakerTimeout:  core.DefaultBreakerTimeout,
		},
		Cache: CacheConfig{
			Backend:      "badger",
			TTL:          core.DefaultTTL,
			PRFreshness:  core.PullDetailFreshness,
			Capacity:     core.DefaultCacheCapacity,
			Shards:       core.DefaultCacheShards,
			SingleFlight: true,
		},
		Report: ReportConfig{
			OldPRDays:    core.DefaultOldItemDays,
			SnapshotPath: core.SnapshotPath(),
		},
		Server: ServerConfig{
			Addr:      core.DefaultServerAddr,
			RateLimit: core.DefaultServerRateLimit,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// JiraEnabled reports whether enough is configured to query the ticket tracker.
func (c *Config) JiraEnabled() bool {
	return c.Jira.BaseURL != "" && c.Jira.Token != ""
}

// BonuslyEnabled reports whether a recognition token is configured.
func (c *Config) BonuslyEnabled() bool {
	return c.Bonusly.Token != ""
}
