package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // postgres or sqlite
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	Path            string        `mapstructure:"path"` // sqlite file path
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// DSN builds the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode)
	}
	return c.Path
}

// IngestConfig holds the tunables of the bulk-upload pipeline.
// Thresholds and sizes are observed operating points, not derived
// constants; override per deployment as throughput targets demand.
type IngestConfig struct {
	ChunkSize          int           `mapstructure:"chunk_size"`
	BatchSize          int           `mapstructure:"batch_size"`
	Workers            int           `mapstructure:"workers"`
	ErrorRateThreshold float64       `mapstructure:"error_rate_threshold"`
	MinErrorSample     int           `mapstructure:"min_error_sample"`
	RetryCount         int           `mapstructure:"retry_count"`
	RetryBackoff       time.Duration `mapstructure:"retry_backoff"`
	ChunkTimeout       time.Duration `mapstructure:"chunk_timeout"`
	MaxRowErrors       int           `mapstructure:"max_row_errors"`
	DedupPolicy        string        `mapstructure:"dedup_policy"` // reject or flag
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // local, s3, r2
	LocalPath string `mapstructure:"local_path"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
}

type NotifyConfig struct {
	WebhookURL string        `mapstructure:"webhook_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "mangalm_sales")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.path", "./data/mangalm.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.batch_size", 100)
	v.SetDefault("ingest.workers", 8)
	v.SetDefault("ingest.error_rate_threshold", 0.20)
	v.SetDefault("ingest.min_error_sample", 100)
	v.SetDefault("ingest.retry_count", 3)
	v.SetDefault("ingest.retry_backoff", 2*time.Second)
	v.SetDefault("ingest.chunk_timeout", 60*time.Second)
	v.SetDefault("ingest.max_row_errors", 100)
	v.SetDefault("ingest.dedup_policy", "reject")
	v.SetDefault("storage.type", "local")
	v.SetDefault("storage.local_path", "./data/uploads")
	v.SetDefault("storage.use_ssl", false)
	v.SetDefault("storage.bucket", "mangalm-uploads")
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.timeout", 10*time.Second)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.name", "DB_NAME")
	v.BindEnv("storage.endpoint", "STORAGE_ENDPOINT")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("storage.use_ssl", "STORAGE_USE_SSL")
	v.BindEnv("notify.webhook_url", "UPLOAD_WEBHOOK_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
