// Package config loads process settings from the environment, an optional
// .env file and command line flags.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	AppName                       string `mapstructure:"app_name" env:"APP_NAME" env-default:"clover"`
	Port                          int    `mapstructure:"port" env:"PORT" env-default:"3010" flag:"port" validate:"min=1,max=65535"`
	LogLevel                      string `mapstructure:"log_level" env:"LOG_LEVEL" env-default:"info" flag:"log-level" validate:"oneof=debug info warn error"`
	PrettyLogs                    bool   `mapstructure:"pretty_logs" env:"PRETTY_LOGS" env-default:"false" flag:"pretty-logs"`
	HttpServerWriteTimeoutSeconds int    `mapstructure:"http_server_write_timeout_seconds" env:"HTTP_SERVER_WRITE_TIMEOUT_SECONDS" env-default:"600"` // generation runs inside the request
	HttpServerReadTimeoutSeconds  int    `mapstructure:"http_server_read_timeout_seconds" env:"HTTP_SERVER_READ_TIMEOUT_SECONDS" env-default:"10"`
	HttpServerIdleTimeoutSeconds  int    `mapstructure:"http_server_idle_timeout_seconds" env:"HTTP_SERVER_IDLE_TIMEOUT_SECONDS" env-default:"10"`
	MaxHeaderBytes                int    `mapstructure:"http_server_max_header_bytes" env:"HTTP_SERVER_MAX_HEADER_BYTES" env-default:"64000"` // 64KB
	ReadHeaderTimeoutSeconds      int    `mapstructure:"http_server_read_header_timeout_seconds" env:"HTTP_SERVER_READ_HEADER_TIMEOUT_SECONDS" env-default:"10"`
	AllowOrigins                  string `mapstructure:"http_server_allow_origins" env:"HTTP_SERVER_ALLOW_ORIGINS" env-default:"*"`
	AllowMethods                  string `mapstructure:"http_server_allow_methods" env:"HTTP_SERVER_ALLOW_METHODS" env-default:"GET,POST,DELETE"`
	StartupMaxAttempts            int    `mapstructure:"startup_max_attempts" env:"STARTUP_MAX_ATTEMPTS" env-default:"5" validate:"min=1"`
	ShutdownTimeoutSeconds        int    `mapstructure:"shutdown_timeout_seconds" env:"SHUTDOWN_TIMEOUT_SECONDS" env-default:"30"`

	// Data folders
	MicrodataFolder string `mapstructure:"microdata_folder" env:"MICRODATA_FOLDER" env-default:"data/microdata" flag:"output-folder" validate:"required"`
	RawFolder       string `mapstructure:"raw_folder" env:"RAW_FOLDER" env-default:"data/raw" flag:"raw-folder" validate:"required"`
	RawSourceFolder string `mapstructure:"raw_source_folder" env:"RAW_SOURCE_FOLDER" env-default:"data/source" flag:"source-folder"`
	DatasetsFolder  string `mapstructure:"datasets_folder" env:"DATASETS_FOLDER" env-default:"" flag:"datasets-folder"` // extra YAML definitions

	// Generation catalog
	CatalogEnabled                bool          `mapstructure:"catalog_enabled" env:"CATALOG_ENABLED" env-default:"true" flag:"catalog"`
	CatalogDriver                 string        `mapstructure:"catalog_driver" env:"CATALOG_DRIVER" env-default:"sqlite" validate:"oneof=sqlite postgres"`
	CatalogPath                   string        `mapstructure:"catalog_path" env:"CATALOG_PATH" env-default:"data/catalog.db"`
	DatabaseHost                  string        `mapstructure:"db_host" env:"DB_HOST" env-default:""`
	DatabasePort                  string        `mapstructure:"db_port" env:"DB_PORT" env-default:"5432"`
	DatabaseUserName              string        `mapstructure:"db_user_name" env:"DB_USER_NAME" env-default:""`
	DatabasePassword              string        `mapstructure:"db_password" env:"DB_PASSWORD" env-default:""`
	DatabaseName                  string        `mapstructure:"db_name" env:"DB_NAME" env-default:"clover"`
	DatabaseSSLMode               string        `mapstructure:"db_ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`
	DatabaseMaxOpenConns          int           `mapstructure:"db_max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	DatabaseMaxIdleConns          int           `mapstructure:"db_max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"db_conn_max_lifetime" env:"DB_CONN_MAX_LIFETIME" env-default:"10s"`
	DatabaseMigrationVersion      int           `mapstructure:"db_migration_version" env:"DB_MIGRATION_VERSION" env-default:"0"`
	DatabaseMigrationForce        int           `mapstructure:"db_migration_force" env:"DB_MIGRATION_FORCE" env-default:"0"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"db_migration_auto_rollback" env:"DB_MIGRATION_AUTO_ROLLBACK" env-default:"true"`

	// Redis generation locks
	RedisEnabled  bool          `mapstructure:"redis_enabled" env:"REDIS_ENABLED" env-default:"false"`
	RedisHost     string        `mapstructure:"redis_host" env:"REDIS_HOST" env-default:"localhost"`
	RedisPort     int           `mapstructure:"redis_port" env:"REDIS_PORT" env-default:"6379"`
	RedisPassword string        `mapstructure:"redis_password" env:"REDIS_PASSWORD" env-default:""`
	RedisDB       int           `mapstructure:"redis_db" env:"REDIS_DB" env-default:"0"`
	LockTTL       time.Duration `mapstructure:"lock_ttl" env:"LOCK_TTL" env-default:"30m"`
	LockWait      time.Duration `mapstructure:"lock_wait" env:"LOCK_WAIT" env-default:"0s"`

	// Kafka dataset events
	KafkaEnabled      bool   `mapstructure:"kafka_enabled" env:"KAFKA_ENABLED" env-default:"false"`
	KafkaBrokers      string `mapstructure:"kafka_brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092"`
	KafkaOutputTopic  string `mapstructure:"kafka_output_topic" env:"KAFKA_OUTPUT_TOPIC" env-default:"dataset-events"`
	KafkaBatchSize    int    `mapstructure:"kafka_batch_size" env:"KAFKA_BATCH_SIZE" env-default:"1"`
	KafkaBatchTimeout int    `mapstructure:"kafka_batch_timeout_ms" env:"KAFKA_BATCH_TIMEOUT_MS" env-default:"100"`
	KafkaRequiredAcks int    `mapstructure:"kafka_required_acks" env:"KAFKA_REQUIRED_ACKS" env-default:"-1"`
	KafkaCompression  string `mapstructure:"kafka_compression" env:"KAFKA_COMPRESSION" env-default:"snappy" validate:"oneof=snappy gzip lz4 zstd none"`

	// Tracing
	TracingEndpoint string        `mapstructure:"otel_exporter_otlp_endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:""`
	TracingProtocol string        `mapstructure:"otel_exporter_otlp_protocol" env:"OTEL_EXPORTER_OTLP_PROTOCOL" env-default:"grpc" validate:"oneof=grpc http"`
	TracingInsecure bool          `mapstructure:"otel_exporter_otlp_insecure" env:"OTEL_EXPORTER_OTLP_INSECURE" env-default:"true"`
	TracingTimeout  time.Duration `mapstructure:"otel_exporter_otlp_timeout" env:"OTEL_EXPORTER_OTLP_TIMEOUT" env-default:"10s"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads the optional env files, then resolves every field from, in
// priority order: a changed flag, the environment, the env-default tag.
// flags may be nil.
func Load(flags *pflag.FlagSet, envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if _, err := os.Stat(file); err != nil {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", file, err)
		}
	}

	v := viper.New()
	typ := reflect.TypeOf(Config{})
	for i := 0; i < typ.NumField(); i++ {
		field := typ.Field(i)
		key := field.Tag.Get("env")
		if key == "" {
			continue
		}

		v.SetDefault(key, field.Tag.Get("env-default"))
		if err := v.BindEnv(key); err != nil {
			return nil, err
		}
		if name := field.Tag.Get("flag"); name != "" && flags != nil {
			if flag := flags.Lookup(name); flag != nil {
				if err := v.BindPFlag(key, flag); err != nil {
					return nil, err
				}
			}
		}
	}

	// viper's default decode hooks parse durations and weakly type the rest
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration value: %w", err)
	}

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// List splits a comma-separated setting.
func List(value string) []string {
	out := []string{}
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}

func (c *Config) ReadTimeout() time.Duration {
	return seconds(c.HttpServerReadTimeoutSeconds)
}

func (c *Config) WriteTimeout() time.Duration {
	return seconds(c.HttpServerWriteTimeoutSeconds)
}

func (c *Config) IdleTimeout() time.Duration {
	return seconds(c.HttpServerIdleTimeoutSeconds)
}

func (c *Config) ReadHeaderTimeout() time.Duration {
	return seconds(c.ReadHeaderTimeoutSeconds)
}

func (c *Config) ShutdownTimeout() time.Duration {
	return seconds(c.ShutdownTimeoutSeconds)
}
