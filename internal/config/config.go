// Package config loads service settings from an optional config file
// and BOARDSYNC_-prefixed environment variables, with environment
// taking precedence over the file and both over defaults.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Board     BoardConfig     `mapstructure:"board"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Log       LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// BoardConfig carries the synchronization timing knobs. DebounceDelay
// is how long an edit burst must go quiet before the snapshot is
// persisted; IdleTimeout is the inactivity ceiling on a session.
type BoardConfig struct {
	DebounceDelay     time.Duration `mapstructure:"debounce_delay"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	IdleCheckInterval time.Duration `mapstructure:"idle_check_interval"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
}

type WebSocketConfig struct {
	SendBuffer       int           `mapstructure:"send_buffer"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)

	v.SetDefault("database.path", "./boardsync.db")

	// No sensible default; registered so AutomaticEnv binds the key.
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("board.debounce_delay", 5*time.Second)
	v.SetDefault("board.heartbeat_interval", 30*time.Second)
	v.SetDefault("board.idle_check_interval", 60*time.Second)
	v.SetDefault("board.idle_timeout", 30*time.Minute)

	v.SetDefault("websocket.send_buffer", 64)
	v.SetDefault("websocket.write_timeout", 10*time.Second)
	v.SetDefault("websocket.handshake_timeout", 10*time.Second)

	v.SetDefault("log.level", "info")
}

// Load reads configuration. An empty path skips the file and uses
// environment variables and defaults only; a non-empty path that
// cannot be read is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BOARDSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth jwt_secret is required")
	}
	if c.Board.DebounceDelay <= 0 {
		return fmt.Errorf("board debounce delay must be positive")
	}
	if c.Board.HeartbeatInterval <= 0 {
		return fmt.Errorf("board heartbeat interval must be positive")
	}
	if c.Board.IdleCheckInterval <= 0 {
		return fmt.Errorf("board idle check interval must be positive")
	}
	if c.Board.IdleTimeout <= c.Board.IdleCheckInterval {
		return fmt.Errorf("board idle timeout must exceed the idle check interval")
	}
	if c.WebSocket.SendBuffer <= 0 {
		return fmt.Errorf("websocket send buffer must be positive")
	}
	if c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket write timeout must be positive")
	}
	return nil
}

// Addr is the listen address in host:port form.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
