package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds all configuration for the connection service.
// Tags use mapstructure for Viper unmarshalling.
type ServerConfig struct {
	HTTPPort  string `mapstructure:"HTTP_PORT"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogPretty bool   `mapstructure:"LOG_PRETTY"`

	// ConnectionStore selects the record backend: memory, bbolt, mongo.
	ConnectionStore string `mapstructure:"CONNECTION_STORE"`
	BoltPath        string `mapstructure:"BOLT_PATH"`
	MongoURI        string `mapstructure:"MONGO_URI"`
	MongoDBName     string `mapstructure:"MONGO_DB_NAME"`

	// StateStore selects the pending-state backend: memory, redis.
	StateStore string `mapstructure:"STATE_STORE"`
	RedisAddr  string `mapstructure:"REDIS_ADDR"`

	// VaultMode selects the credential vault: obfuscate (legacy XOR) or
	// sealed (ChaCha20-Poly1305). VaultKey feeds either.
	VaultMode string `mapstructure:"VAULT_MODE"`
	VaultKey  string `mapstructure:"VAULT_KEY"`

	// RedirectURI is the dashboard's OAuth callback, used when an
	// exchange request omits one.
	RedirectURI string `mapstructure:"REDIRECT_URI"`

	// RelayFallback enables the public CORS relay chain on outbound API
	// calls. Leave off in production; keep the direct path only.
	RelayFallback bool `mapstructure:"RELAY_FALLBACK"`
}

// LoadConfig reads configuration from file, environment variables, and
// defaults.
func LoadConfig() (*ServerConfig, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/adconnect/")
	v.AddConfigPath("$HOME/.adconnect")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("HTTP_PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_PRETTY", true)
	v.SetDefault("CONNECTION_STORE", "bbolt")
	v.SetDefault("BOLT_PATH", "data/adconnect.db")
	v.SetDefault("MONGO_URI", "mongodb://localhost:27017/adconnect")
	v.SetDefault("MONGO_DB_NAME", "adconnect")
	v.SetDefault("STATE_STORE", "memory")
	v.SetDefault("REDIS_ADDR", "localhost:6379")
	v.SetDefault("VAULT_MODE", "obfuscate")
	v.SetDefault("VAULT_KEY", "")
	v.SetDefault("REDIRECT_URI", "")
	v.SetDefault("RELAY_FALLBACK", false)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}

	return &cfg, nil
}
