// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() initializer to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"time"
)

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabasePath is the SQLite database file path.
	DatabasePath string `koanf:"database_path"`

	// SiteName is shown in page titles and API metadata.
	SiteName string `koanf:"site_name"`

	// Hoster names the operator shown in the site footer.
	Hoster string `koanf:"hoster"`

	// CorporationID identifies the corporation whose kills are tracked.
	CorporationID int64 `koanf:"corporation_id"`

	// AllianceID is the corporation's alliance, 0 for an independent corp.
	AllianceID int64 `koanf:"alliance_id"`

	// LocalTZ is the IANA timezone name used for display timestamps.
	LocalTZ string `koanf:"local_tz"`

	// StartDate bounds the selectable dashboard years, format 2006-01-02.
	StartDate string `koanf:"start_date"`

	// ESIEndpoint is the base URL of the EVE Swagger Interface.
	ESIEndpoint string `koanf:"esi_endpoint"`

	// ZkillEndpoint is the base URL of the zKillboard API.
	ZkillEndpoint string `koanf:"zkill_endpoint"`

	// EverefEndpoint is the base URL of the EVERef killmail archive.
	EverefEndpoint string `koanf:"everef_endpoint"`

	// SDEEndpoint is the base URL for Fuzzwork SDE dumps.
	SDEEndpoint string `koanf:"sde_endpoint"`

	// TempDir holds downloaded archives during imports.
	TempDir string `koanf:"temp_dir"`

	// WorkerCount sets the number of import workers.
	WorkerCount int `koanf:"worker_count"`

	// QueueSize bounds the import task queue.
	QueueSize int `koanf:"queue_size"`

	// DedupeSize sets the size of the killmail-ID dedupe cache.
	DedupeSize int `koanf:"dedupe_size"`

	// MaxSearchLimit caps killmail search page sizes.
	MaxSearchLimit int `koanf:"max_search_limit"`

	// MaxUploadBytes caps accepted monthly upload request bodies.
	MaxUploadBytes int64 `koanf:"max_upload_bytes"`

	// PAPQuota is the monthly PAP count required for qualified status.
	PAPQuota float64 `koanf:"pap_quota"`

	// FineIncomeISK is the income above which missing quota draws a fine.
	FineIncomeISK float64 `koanf:"fine_income_isk"`

	// RookieDays is the protection window after a player's join date.
	RookieDays int `koanf:"rookie_days"`

	// SessionTTLMinutes bounds admin session lifetime.
	SessionTTLMinutes int `koanf:"session_ttl_minutes"`

	// AdminUser and AdminPassword seed the initial admin account on initdb.
	AdminUser     string `koanf:"admin_user"`
	AdminPassword string `koanf:"admin_password"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:          "info",
		Addr:              ":9080",
		DatabasePath:      "instance/kmstat.db",
		SiteName:          "Corp KM Stats",
		Hoster:            "",
		CorporationID:     0,
		AllianceID:        0,
		LocalTZ:           "Asia/Shanghai",
		StartDate:         "2020-01-01",
		ESIEndpoint:       "https://esi.evetech.net/latest",
		ZkillEndpoint:     "https://zkillboard.com/api",
		EverefEndpoint:    "https://data.everef.net",
		SDEEndpoint:       "https://www.fuzzwork.co.uk/dump/latest",
		TempDir:           "instance/temp",
		WorkerCount:       4,
		QueueSize:         10_000,
		DedupeSize:        100_000,
		MaxSearchLimit:    200,
		MaxUploadBytes:    16 << 20,
		PAPQuota:          3,
		FineIncomeISK:     1_000_000_000,
		RookieDays:        90,
		SessionTTLMinutes: 720,
		AdminUser:         "admin",
		AdminPassword:     "",
	}
}

// Location resolves the configured display timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.LocalTZ)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Start parses the configured start date. Invalid values yield the zero time.
func (c *Config) Start() time.Time {
	t, err := time.Parse("2006-01-02", c.StartDate)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Independent reports whether the corporation is outside any alliance.
func (c *Config) Independent() bool {
	return c.AllianceID == 0
}
