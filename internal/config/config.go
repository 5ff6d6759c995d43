package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix              = "PNEUS"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultDatabaseDriver  = "sqlite"
	defaultDatabasePath    = "pneus.db"
	defaultLogLevel        = "info"
	defaultLogFormat       = "json"
	defaultTokenTTLMinutes = 720
	defaultStorageBackend  = "local"
	defaultStorageLocalDir = "data/photos"
	defaultExportLayout    = "report"
	defaultExportTimezone  = "America/Sao_Paulo"
)

// AppConfig captures runtime configuration for the API server and CLI commands.
type AppConfig struct {
	HTTPAddress    string
	AllowedOrigins []string

	DatabaseDriver string
	DatabasePath   string
	DatabaseDSN    string

	LogLevel  string
	LogFormat string

	SigningSecret string
	TokenTTL      time.Duration

	StorageBackend  string
	StorageLocalDir string
	PublicBaseURL   string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string

	ExportLayout   string
	ExportTimezone string
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("http.allowed_origins", []string{"*"})
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("log.format", defaultLogFormat)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("storage.backend", defaultStorageBackend)
	configViper.SetDefault("storage.local_dir", defaultStorageLocalDir)
	configViper.SetDefault("storage.s3.region", "us-east-1")
	configViper.SetDefault("export.layout", defaultExportLayout)
	configViper.SetDefault("export.timezone", defaultExportTimezone)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:     configViper.GetString("http.address"),
		AllowedOrigins:  configViper.GetStringSlice("http.allowed_origins"),
		DatabaseDriver:  strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:    configViper.GetString("database.path"),
		DatabaseDSN:     configViper.GetString("database.dsn"),
		LogLevel:        configViper.GetString("log.level"),
		LogFormat:       configViper.GetString("log.format"),
		SigningSecret:   configViper.GetString("auth.signing_secret"),
		TokenTTL:        time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		StorageBackend:  strings.ToLower(strings.TrimSpace(configViper.GetString("storage.backend"))),
		StorageLocalDir: configViper.GetString("storage.local_dir"),
		PublicBaseURL:   strings.TrimRight(configViper.GetString("storage.public_base_url"), "/"),
		S3Bucket:        configViper.GetString("storage.s3.bucket"),
		S3Region:        configViper.GetString("storage.s3.region"),
		S3Endpoint:      configViper.GetString("storage.s3.endpoint"),
		S3AccessKey:     configViper.GetString("storage.s3.access_key"),
		S3SecretKey:     configViper.GetString("storage.s3.secret_key"),
		ExportLayout:    strings.ToLower(strings.TrimSpace(configViper.GetString("export.layout"))),
		ExportTimezone:  configViper.GetString("export.timezone"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

// LoadStorage parses only the keys needed by commands that never serve HTTP.
func LoadStorage(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		DatabaseDriver: strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:   configViper.GetString("database.path"),
		DatabaseDSN:    configViper.GetString("database.dsn"),
		LogLevel:       configViper.GetString("log.level"),
		LogFormat:      configViper.GetString("log.format"),
		ExportLayout:   strings.ToLower(strings.TrimSpace(configViper.GetString("export.layout"))),
		ExportTimezone: configViper.GetString("export.timezone"),
	}
	if err := cfg.validateDatabase(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	switch c.StorageBackend {
	case "local":
		if strings.TrimSpace(c.StorageLocalDir) == "" {
			return fmt.Errorf("storage.local_dir is required for the local backend")
		}
	case "s3":
		if strings.TrimSpace(c.S3Bucket) == "" {
			return fmt.Errorf("storage.s3.bucket is required for the s3 backend")
		}
		if strings.TrimSpace(c.S3Region) == "" {
			return fmt.Errorf("storage.s3.region is required for the s3 backend")
		}
	default:
		return fmt.Errorf("unsupported storage.backend %q", c.StorageBackend)
	}
	switch c.ExportLayout {
	case "report", "table":
	default:
		return fmt.Errorf("unsupported export.layout %q", c.ExportLayout)
	}
	return nil
}

func (c AppConfig) validateDatabase() error {
	switch c.DatabaseDriver {
	case "sqlite":
		if strings.TrimSpace(c.DatabasePath) == "" {
			return fmt.Errorf("database.path is required")
		}
	case "postgres":
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			return fmt.Errorf("database.dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.DatabaseDriver)
	}
	return nil
}
