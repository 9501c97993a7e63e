package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigFileEnv names the environment variable pointing at an optional YAML/TOML/JSON file.
const ConfigFileEnv = "FINTRACK_CONFIG"

type Config struct {
	// Local storage
	StorageBackend string
	SQLiteDBPath   string
	BoltDBPath     string

	// Remote ledger
	LedgerAPIURL         string
	LedgerAPIToken       string
	LedgerRequestTimeout time.Duration

	// Connectivity
	ConnectivityProbeAddr     string
	ConnectivityProbeInterval time.Duration

	// AMQP fan-out of change events (optional)
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string

	// Category reference data
	CategorySource           string
	CategoriesFile           string
	CategoryCacheTTL         time.Duration
	GoogleSpreadsheetID      string
	GoogleCategoriesRange    string
	GoogleServiceAccountFile string
	GoogleServiceAccountJSON string

	// Worker
	SyncInterval           time.Duration
	AccountRefreshInterval time.Duration
	FetchWindowDays        int

	// Logging
	LogLevel  string
	LogFormat string
}

var (
	validBackends        = []string{"sqlite", "bolt", "memory"}
	validCategorySources = []string{"remote", "sheets", "file"}
	validLogFormats      = []string{"text", "json"}
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("storage_backend", "sqlite")
	v.SetDefault("sqlite_db_path", "./data/fintrack.db")
	v.SetDefault("bolt_db_path", "./data/fintrack.bolt")

	v.SetDefault("ledger_api_url", "http://localhost:8090")
	v.SetDefault("ledger_api_token", "")
	v.SetDefault("ledger_request_timeout", 15*time.Second)

	v.SetDefault("connectivity_probe_addr", "")
	v.SetDefault("connectivity_probe_interval", 10*time.Second)

	v.SetDefault("amqp_url", "")
	v.SetDefault("amqp_exchange", "fintrack")
	v.SetDefault("amqp_routing_key", "transactions.changed")

	v.SetDefault("category_source", "remote")
	v.SetDefault("categories_file", "./data/categories.yaml")
	v.SetDefault("category_cache_ttl", 10*time.Minute)
	v.SetDefault("google_spreadsheet_id", "")
	v.SetDefault("google_categories_range", "Categories!A2:D")
	v.SetDefault("google_service_account_file", "")
	v.SetDefault("google_service_account_json", "")

	v.SetDefault("sync_interval", 30*time.Second)
	v.SetDefault("account_refresh_interval", 5*time.Minute)
	v.SetDefault("fetch_window_days", 31)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
}

// Load layers defaults, the optional file named by FINTRACK_CONFIG, and the environment.
// Keys are the flat environment names, e.g. SQLITE_DB_PATH or sqlite_db_path in a file.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := strings.TrimSpace(os.Getenv(ConfigFileEnv)); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	v.AutomaticEnv()

	cfg := &Config{
		StorageBackend: strings.ToLower(v.GetString("storage_backend")),
		SQLiteDBPath:   v.GetString("sqlite_db_path"),
		BoltDBPath:     v.GetString("bolt_db_path"),

		LedgerAPIURL:         strings.TrimRight(v.GetString("ledger_api_url"), "/"),
		LedgerAPIToken:       v.GetString("ledger_api_token"),
		LedgerRequestTimeout: v.GetDuration("ledger_request_timeout"),

		ConnectivityProbeAddr:     v.GetString("connectivity_probe_addr"),
		ConnectivityProbeInterval: v.GetDuration("connectivity_probe_interval"),

		AMQPURL:        v.GetString("amqp_url"),
		AMQPExchange:   v.GetString("amqp_exchange"),
		AMQPRoutingKey: v.GetString("amqp_routing_key"),

		CategorySource:           strings.ToLower(v.GetString("category_source")),
		CategoriesFile:           v.GetString("categories_file"),
		CategoryCacheTTL:         v.GetDuration("category_cache_ttl"),
		GoogleSpreadsheetID:      v.GetString("google_spreadsheet_id"),
		GoogleCategoriesRange:    v.GetString("google_categories_range"),
		GoogleServiceAccountFile: v.GetString("google_service_account_file"),
		GoogleServiceAccountJSON: v.GetString("google_service_account_json"),

		SyncInterval:           v.GetDuration("sync_interval"),
		AccountRefreshInterval: v.GetDuration("account_refresh_interval"),
		FetchWindowDays:        v.GetInt("fetch_window_days"),

		LogLevel:  strings.ToLower(v.GetString("log_level")),
		LogFormat: strings.ToLower(v.GetString("log_format")),
	}

	if cfg.ConnectivityProbeAddr == "" {
		cfg.ConnectivityProbeAddr = probeAddrFromURL(cfg.LedgerAPIURL)
	}
	return cfg, nil
}

// probeAddrFromURL derives host:port from the ledger URL, using the scheme's default port.
func probeAddrFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	if u.Port() != "" {
		return u.Host
	}
	port := "80"
	if u.Scheme == "https" {
		port = "443"
	}
	return net.JoinHostPort(u.Hostname(), port)
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if !contains(validBackends, c.StorageBackend) {
		errors = append(errors, fmt.Sprintf("invalid storage backend '%s': must be one of %v", c.StorageBackend, validBackends))
	}
	if c.StorageBackend == "sqlite" && c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
	}
	if c.StorageBackend == "bolt" && c.BoltDBPath == "" {
		errors = append(errors, "bolt database path cannot be empty when using bolt backend")
	}

	if parsed, err := url.Parse(c.LedgerAPIURL); err != nil || c.LedgerAPIURL == "" {
		errors = append(errors, fmt.Sprintf("invalid ledger API URL '%s'", c.LedgerAPIURL))
	} else if parsed.Scheme != "http" && parsed.Scheme != "https" {
		errors = append(errors, fmt.Sprintf("invalid ledger API URL scheme '%s': must be 'http' or 'https'", parsed.Scheme))
	}
	if c.LedgerRequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid ledger request timeout %v: must be at least 1 second", c.LedgerRequestTimeout))
	}

	if c.ConnectivityProbeAddr != "" {
		if _, _, err := net.SplitHostPort(c.ConnectivityProbeAddr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid connectivity probe address '%s': %v", c.ConnectivityProbeAddr, err))
		}
	}
	if c.ConnectivityProbeInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid connectivity probe interval %v: must be at least 1 second", c.ConnectivityProbeInterval))
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPRoutingKey == "" {
			errors = append(errors, "AMQP routing key cannot be empty when AMQP URL is provided")
		}
	}

	if !contains(validCategorySources, c.CategorySource) {
		errors = append(errors, fmt.Sprintf("invalid category source '%s': must be one of %v", c.CategorySource, validCategorySources))
	}
	switch c.CategorySource {
	case "file":
		if c.CategoriesFile == "" {
			errors = append(errors, "categories file is required when using file category source")
		} else if _, err := os.Stat(c.CategoriesFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("categories file does not exist: %s", c.CategoriesFile))
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets category source")
		}
		if c.GoogleCategoriesRange == "" {
			errors = append(errors, "Google categories range is required when using sheets category source")
		}
		if c.GoogleServiceAccountFile == "" && c.GoogleServiceAccountJSON == "" {
			errors = append(errors, "either GOOGLE_SERVICE_ACCOUNT_FILE or GOOGLE_SERVICE_ACCOUNT_JSON must be provided for sheets category source")
		}
	}
	if c.CategoryCacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("invalid category cache TTL %v: must be positive", c.CategoryCacheTTL))
	}

	if c.SyncInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at least 1 second", c.SyncInterval))
	} else if c.SyncInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sync interval %v: must be at most 24 hours", c.SyncInterval))
	}
	if c.AccountRefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid account refresh interval %v: must be at least 1 second", c.AccountRefreshInterval))
	}
	if c.FetchWindowDays < 1 || c.FetchWindowDays > 366 {
		errors = append(errors, fmt.Sprintf("invalid fetch window %d days: must be between 1 and 366", c.FetchWindowDays))
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "warning", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s'", c.LogLevel))
	}
	if !contains(validLogFormats, c.LogFormat) {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be one of %v", c.LogFormat, validLogFormats))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
