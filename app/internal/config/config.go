package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all process configuration
type Config struct {
	// Server
	Port           string
	TrustedProxies string
	DBPath         string
	LogLevel       string
	LogFormat      string

	// Detector preferences file (YAML)
	SettingsFile string

	// Remote API
	RemoteAPIURL   string
	RemoteAPIToken string
	RemoteTimeout  time.Duration
	ProbeURL       string

	// Data logging
	LogDataLocal        bool
	LogDataRemote       bool
	LogDataRemoteMobile bool
	Metered             bool
	EventDuration       time.Duration
	RemoteLogPeriod     time.Duration

	// Retention
	AutoPrune      bool
	RetentionDays  int
	PrunePeriod    time.Duration
	LogKeepEntries int
}

// Load reads configuration from environment variables (and .env if present)
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:           getenv("PORT", "8080"),
		TrustedProxies: getenv("TRUSTED_PROXIES", ""),
		DBPath:         getenv("DB_PATH", "./osdData.db"),
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogFormat:      strings.ToLower(getenv("LOG_FORMAT", "json")),

		SettingsFile: getenv("SETTINGS_FILE", "./settings.yaml"),

		RemoteAPIURL:   strings.TrimSuffix(getenv("REMOTE_API_URL", ""), "/"),
		RemoteAPIToken: getenv("REMOTE_API_TOKEN", ""),
		RemoteTimeout:  envDurSecs("REMOTE_TIMEOUT_SECONDS", 20),
		ProbeURL:       getenv("NETWORK_PROBE_URL", ""),

		LogDataLocal:        envBool("LOG_DATA_LOCAL", true),
		LogDataRemote:       envBool("LOG_DATA_REMOTE", false),
		LogDataRemoteMobile: envBool("LOG_DATA_REMOTE_MOBILE", false),
		Metered:             envBool("METERED_CONNECTION", false),
		EventDuration:       time.Duration(envInt("EVENT_DURATION_MINUTES", 2)) * time.Minute,
		RemoteLogPeriod:     envDurSecs("REMOTE_LOG_PERIOD_SECONDS", 60),

		AutoPrune:      envBool("AUTO_PRUNE", true),
		RetentionDays:  envInt("RETENTION_DAYS", 7),
		PrunePeriod:    time.Duration(envInt("PRUNE_PERIOD_MINUTES", 60)) * time.Minute,
		LogKeepEntries: envInt("LOG_KEEP_ENTRIES", 5000),
	}
}

// Helper functions
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envBool(k string, def bool) bool {
	v := strings.ToLower(getenv(k, ""))
	if v == "" {
		return def
	}
	return v == "1" || v == "true" || v == "yes"
}

func envDurSecs(k string, def int) time.Duration {
	return time.Duration(envInt(k, def)) * time.Second
}
