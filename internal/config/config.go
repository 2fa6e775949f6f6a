package config

import (
	"log"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Config holds everything the client binary needs.
type Config struct {
	API       APIConfig
	Socket    SocketConfig
	Reconcile ReconcileConfig
	Log       LogConfig
}

type APIConfig struct {
	BaseURL  string
	Token    string
	Username string
	Password string
}

type SocketConfig struct {
	URL                  string
	DialTimeout          time.Duration
	PingInterval         time.Duration
	PongTimeout          time.Duration
	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration
}

type ReconcileConfig struct {
	EchoWindow time.Duration
	TypingTTL  time.Duration
	PageSize   int
}

type LogConfig struct {
	Level   string
	Backend string // "text" or "zap"
}

var (
	instance *Config
	once     sync.Once
)

// Load reads the configuration from .env and environment variables.
func Load() *Config {
	once.Do(func() {
		// Viper setup
		viper.SetConfigName(".env")
		viper.SetConfigType("env")
		viper.AddConfigPath(".")

		// Set defaults
		viper.SetDefault("CHATSPHERE_API_URL", "http://localhost:8000")
		viper.SetDefault("CHATSPHERE_WS_URL", "ws://localhost:8000/ws")
		viper.SetDefault("CHATSPHERE_TOKEN", "")
		viper.SetDefault("CHATSPHERE_USERNAME", "")
		viper.SetDefault("CHATSPHERE_PASSWORD", "")
		viper.SetDefault("CHATSPHERE_DIAL_TIMEOUT", "10s")
		viper.SetDefault("CHATSPHERE_PING_INTERVAL", "30s")
		viper.SetDefault("CHATSPHERE_PONG_TIMEOUT", "45s")
		viper.SetDefault("CHATSPHERE_MAX_RECONNECT_ATTEMPTS", 5)
		viper.SetDefault("CHATSPHERE_RECONNECT_BASE_DELAY", "1s")
		viper.SetDefault("CHATSPHERE_RECONNECT_MAX_DELAY", "30s")
		viper.SetDefault("CHATSPHERE_ECHO_WINDOW", "5s")
		viper.SetDefault("CHATSPHERE_TYPING_TTL", "5s")
		viper.SetDefault("CHATSPHERE_HISTORY_PAGE_SIZE", 50)
		viper.SetDefault("CHATSPHERE_LOG_LEVEL", "info")
		viper.SetDefault("CHATSPHERE_LOG_BACKEND", "text")
		viper.AutomaticEnv()

		// Read the .env file
		if err := viper.ReadInConfig(); err != nil {
			log.Printf("Warning: Error reading .env file: %v", err)
			log.Printf("Using environment variables and defaults")
		}

		instance = &Config{
			API: APIConfig{
				BaseURL:  viper.GetString("CHATSPHERE_API_URL"),
				Token:    viper.GetString("CHATSPHERE_TOKEN"),
				Username: viper.GetString("CHATSPHERE_USERNAME"),
				Password: viper.GetString("CHATSPHERE_PASSWORD"),
			},
			Socket: SocketConfig{
				URL:                  viper.GetString("CHATSPHERE_WS_URL"),
				DialTimeout:          mustDuration("CHATSPHERE_DIAL_TIMEOUT"),
				PingInterval:         mustDuration("CHATSPHERE_PING_INTERVAL"),
				PongTimeout:          mustDuration("CHATSPHERE_PONG_TIMEOUT"),
				MaxReconnectAttempts: viper.GetInt("CHATSPHERE_MAX_RECONNECT_ATTEMPTS"),
				ReconnectBaseDelay:   mustDuration("CHATSPHERE_RECONNECT_BASE_DELAY"),
				ReconnectMaxDelay:    mustDuration("CHATSPHERE_RECONNECT_MAX_DELAY"),
			},
			Reconcile: ReconcileConfig{
				EchoWindow: mustDuration("CHATSPHERE_ECHO_WINDOW"),
				TypingTTL:  mustDuration("CHATSPHERE_TYPING_TTL"),
				PageSize:   viper.GetInt("CHATSPHERE_HISTORY_PAGE_SIZE"),
			},
			Log: LogConfig{
				Level:   viper.GetString("CHATSPHERE_LOG_LEVEL"),
				Backend: viper.GetString("CHATSPHERE_LOG_BACKEND"),
			},
		}
	})
	return instance
}

func mustDuration(key string) time.Duration {
	d, err := time.ParseDuration(viper.GetString(key))
	if err != nil {
		log.Fatalf("Invalid %s format: %v", key, err)
	}
	return d
}
