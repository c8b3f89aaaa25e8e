/*
Package config provides configuration loading and validation for the
bookshelf application server.

Settings come from struct defaults overlaid with environment variables. The
variable for each setting is declared with an `env` struct tag.
*/
package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"reflect"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// Config represents the complete application configuration
type Config struct {
	// Debug enables verbose logging and detailed error responses
	Debug bool `koanf:"debug" env:"DEBUG"`

	// Server holds HTTP listener settings
	Server ServerConfig `koanf:"server"`

	// Database holds PostgreSQL connection settings
	Database DatabaseConfig `koanf:"database"`

	// Media holds static and uploaded file locations
	Media MediaConfig `koanf:"media"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	Host            string        `koanf:"host" env:"SERVER_HOST"`
	Port            int           `koanf:"port" env:"PORT" validate:"min=1,max=65535"`
	CORSOrigins     string        `koanf:"cors_origins" env:"CORS_ORIGINS"`
	ReadTimeout     time.Duration `koanf:"read_timeout" env:"SERVER_READ_TIMEOUT" validate:"min=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" env:"SERVER_WRITE_TIMEOUT" validate:"min=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" env:"SERVER_SHUTDOWN_TIMEOUT" validate:"min=0"`
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// DatabaseConfig configures the PostgreSQL connection
type DatabaseConfig struct {
	Host         string        `koanf:"host" env:"DB_HOST" validate:"required"`
	Port         int           `koanf:"port" env:"DB_PORT" validate:"min=1,max=65535"`
	Name         string        `koanf:"name" env:"DB_NAME" validate:"required"`
	User         string        `koanf:"user" env:"DB_USER" validate:"required"`
	Password     string        `koanf:"password" env:"DB_PASS"`
	SSLMode      string        `koanf:"ssl_mode" env:"DB_SSLMODE" validate:"oneof=disable allow prefer require verify-ca verify-full"`
	MaxConns     int32         `koanf:"max_conns" env:"DB_MAX_CONNS" validate:"min=1"`
	WaitRetries  uint64        `koanf:"wait_retries" env:"DB_WAIT_RETRIES"`
	WaitInterval time.Duration `koanf:"wait_interval" env:"DB_WAIT_INTERVAL" validate:"min=0"`
}

// DSN returns the connection URL for the database
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

// MediaConfig configures file storage
type MediaConfig struct {
	StaticRoot    string `koanf:"static_root" env:"STATIC_ROOT" validate:"required"`
	MediaRoot     string `koanf:"media_root" env:"MEDIA_ROOT" validate:"required"`
	StaticURL     string `koanf:"static_url" env:"STATIC_URL" validate:"startswith=/"`
	MediaURL      string `koanf:"media_url" env:"MEDIA_URL" validate:"startswith=/"`
	MaxUploadSize int    `koanf:"max_upload_size" env:"MAX_UPLOAD_SIZE" validate:"min=1"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			CORSOrigins:     "*",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Host:         "localhost",
			Port:         5432,
			Name:         "devdb",
			User:         "devuser",
			SSLMode:      "disable",
			MaxConns:     10,
			WaitRetries:  30,
			WaitInterval: time.Second,
		},
		Media: MediaConfig{
			StaticRoot:    "/vol/web/static",
			MediaRoot:     "/vol/web/media",
			StaticURL:     "/static",
			MediaURL:      "/media",
			MaxUploadSize: 10 << 20,
		},
	}
}

// Load reads the configuration from defaults and the process environment
func Load() (*Config, error) {
	return LoadFrom(os.Environ)
}

// LoadFrom reads the configuration from defaults and the given environment
func LoadFrom(environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	mappings := EnvMappings()
	if err := k.Load(env.Provider(".", env.Opt{
		EnvironFunc: environ,
		TransformFunc: func(key, value string) (string, any) {
			if path, ok := mappings[key]; ok {
				return path, value
			}
			return "", nil
		},
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// EnvMappings maps environment variable names to koanf paths using the env struct tags
func EnvMappings() map[string]string {
	mappings := make(map[string]string)
	extractMappings(reflect.TypeOf(Config{}), "", mappings)
	return mappings
}

func extractMappings(t reflect.Type, prefix string, out map[string]string) {
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("koanf")
		if !field.IsExported() || tag == "" || tag == "-" {
			continue
		}

		path := tag
		if prefix != "" {
			path = prefix + "." + tag
		}

		if name := field.Tag.Get("env"); name != "" && name != "-" {
			out[name] = path
		}

		if field.Type.Kind() == reflect.Struct && field.Type.PkgPath() != "time" {
			extractMappings(field.Type, path, out)
		}
	}
}
