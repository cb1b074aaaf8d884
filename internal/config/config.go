package config

import (
	"errors"
	"os"
	"time"
)

type Config struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	JWTExpiry       time.Duration
	SettingsTimeout time.Duration
}

func Load() *Config {
	config := &Config{
		JWTSecret:       getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTIssuer:       getEnv("JWT_ISS", "gear-lending-api"),
		JWTAudience:     getEnv("JWT_AUD", "gear-lending-api"),
		JWTExpiry:       24 * time.Hour, // Default to 24 hours
		SettingsTimeout: 2 * time.Second,
	}

	// Parse JWT expiry from environment if provided
	if expiryStr := os.Getenv("JWT_EXPIRY"); expiryStr != "" {
		if expiry, err := time.ParseDuration(expiryStr); err == nil {
			config.JWTExpiry = expiry
		}
	}

	// Parse settings fetch timeout from environment if provided
	if timeoutStr := os.Getenv("SETTINGS_TIMEOUT"); timeoutStr != "" {
		if timeout, err := time.ParseDuration(timeoutStr); err == nil && timeout > 0 {
			config.SettingsTimeout = timeout
		}
	}

	return config
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT secret must not be empty")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("JWT secret must be at least 16 characters")
	}
	if os.Getenv("ENVIRONMENT") == "production" && c.JWTSecret == "your-secret-key-change-in-production" {
		return errors.New("JWT secret must be changed in production")
	}
	if c.JWTIssuer == "" {
		return errors.New("JWT issuer must not be empty")
	}
	if c.JWTAudience == "" {
		return errors.New("JWT audience must not be empty")
	}
	if c.JWTExpiry < time.Minute {
		return errors.New("JWT expiry must be at least one minute")
	}
	if c.JWTExpiry > 30*24*time.Hour {
		return errors.New("JWT expiry must not exceed 30 days")
	}
	return nil
}

// LoadAndValidate loads the configuration and validates it.
func LoadAndValidate() (*Config, error) {
	cfg := Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
