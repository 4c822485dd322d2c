// Package core provides shared constants and defaults for teampulse.
package core

import (
	"os"
	"path/filepath"
	"time"
)

// Upstream endpoints
const (
	GitHubBaseURL  = "https://api.github.com"
	BonuslyBaseURL = "https://bonus.ly/api/v1"
)

// Date formats
const (
	APIDateFmt     = "2006-01-02"
	APIDatetimeFmt = "2006-01-02 15:04:05"
	MonthFmt       = "2006-01"
)

// Cache defaults
const (
	// DefaultTTL is the structural lifetime of a cache entry.
	DefaultTTL = 30 * 24 * time.Hour

	// PullDetailFreshness is how long a cached PR detail is trusted even though
	// the entry itself lives for DefaultTTL.
	PullDetailFreshness = 24 * time.Hour

	DefaultCacheCapacity = 10000
	DefaultCacheShards   = 64
)

// Pagination
const (
	SearchPageSize = 200
	SearchMaxPages = 10
	CommitPageSize = 100
	TicketPageSize = 100
	BonuslyLimit   = 50
)

// Connector defaults
const (
	DefaultPageDelay       = time.Second
	DefaultRequestTimeout  = 30 * time.Second
	DefaultMaxRetries      = 3
	DefaultBreakerFailures = 5
	DefaultBreakerTimeout  = time.Minute
)

// Report defaults
const (
	DefaultOldItemDays     = 5
	DefaultBotMarker       = "bot+"
	DefaultStoryPoints     = "customfield_12919"
	DefaultServerAddr      = "127.0.0.1:4089"
	DefaultServerRateLimit = 60 // requests per minute per client IP
	UnassignedTicketUser   = "Unassigned"
)

// CacheRoot returns the default cache directory path.
func CacheRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".teampulse", "cache")
}

// SnapshotPath returns the default location of the last-report snapshot.
func SnapshotPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	return filepath.Join(home, ".teampulse", "snapshot.json")
}

// Version is the current CLI version.
const Version = "0.3.0"
