// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New() to build a Config with defaults; Load layers file and env.
// - External errors must be wrapped via this package's error helpers.
package config

// Config contains process configuration. Extend as needed.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DBPath locates the SQLite telemetry database file.
	DBPath string `koanf:"db_path"`

	// MetadataDir is the root of the on-disk metadata bundles, laid out
	// as <container>/<buildType>/<buildName>.json.
	MetadataDir string `koanf:"metadata_dir"`

	// AuthSecret is the HMAC secret shared with the identity service.
	// Empty disables token verification entirely, which is only
	// acceptable for local development.
	AuthSecret string `koanf:"auth_secret"`

	// TokenIssuer, when set, must match the iss claim of every token.
	TokenIssuer string `koanf:"token_issuer"`

	// DefaultLanguage is the display language assumed when a query
	// omits one.
	DefaultLanguage string `koanf:"default_language"`

	// MaxPageSize caps GET /api/sessions?limit.
	MaxPageSize int `koanf:"max_page_size"`

	// MostFailedLimit bounds the most-failed-questions ranking.
	MostFailedLimit int `koanf:"most_failed_limit"`

	// StatsSessionCap bounds how many sessions one build-stats query
	// will aggregate over.
	StatsSessionCap int `koanf:"stats_session_cap"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		Addr:            ":9080",
		DBPath:          "telemetry.db",
		MetadataDir:     "metadata",
		DefaultLanguage: "fr",
		MaxPageSize:     100,
		MostFailedLimit: 5,
		StatsSessionCap: 10_000,
	}
}
