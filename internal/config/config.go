package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the server.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	SQLitePath  string
	RedisURL    string

	JWTSecret string
	TokenTTL  time.Duration

	CORSOrigins string
	UploadDir   string

	LogLevel  string
	LogPretty bool

	// Requests per window (15 minutes for auth, 1 minute for the API); 0 disables the limiter.
	AuthRateLimit int
	APIRateLimit  int

	PresenceTTL time.Duration
}

// Load reads configuration from a .env file (if present), an optional
// config.yaml and environment variables. Environment wins over the file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := &Config{
		Port:          v.GetString("port"),
		Env:           v.GetString("env"),
		DatabaseURL:   v.GetString("database_url"),
		SQLitePath:    v.GetString("sqlite_path"),
		RedisURL:      v.GetString("redis_url"),
		JWTSecret:     v.GetString("jwt_secret"),
		TokenTTL:      v.GetDuration("token_ttl"),
		CORSOrigins:   v.GetString("cors_origins"),
		UploadDir:     v.GetString("upload_dir"),
		LogLevel:      v.GetString("log_level"),
		LogPretty:     v.GetBool("log_pretty"),
		AuthRateLimit: v.GetInt("auth_rate_limit"),
		APIRateLimit:  v.GetInt("api_rate_limit"),
		PresenceTTL:   v.GetDuration("presence_ttl"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "")
	v.SetDefault("redis_url", "")
	v.SetDefault("jwt_secret", "dev-secret-change-me")
	v.SetDefault("token_ttl", 7*24*time.Hour)
	v.SetDefault("cors_origins", "http://localhost:5173")
	v.SetDefault("upload_dir", "./uploads")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_pretty", false)
	v.SetDefault("auth_rate_limit", 20)
	v.SetDefault("api_rate_limit", 120)
	v.SetDefault("presence_ttl", 90*time.Second)
}

func (c *Config) validate() error {
	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == "dev-secret-change-me") {
		return fmt.Errorf("JWT_SECRET is required in production")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("TOKEN_TTL must be positive, got %s", c.TokenTTL)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
