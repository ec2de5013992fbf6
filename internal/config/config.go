package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Bus      BusConfig      `yaml:"bus"`
	Auth     AuthConfig     `yaml:"auth"`
}

// ServerConfig identifies the monitored game server
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Host            string        `yaml:"host"`
	QueryPort       int           `yaml:"query_port"`
	GamePort        int           `yaml:"game_port"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
	RefreshInterval time.Duration `yaml:"refresh_interval"`
}

// QueryAddress returns the host:port for A2S queries
func (s ServerConfig) QueryAddress() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.QueryPort))
}

// GameAddress returns the host:port players connect to, shown in snapshots
func (s ServerConfig) GameAddress() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.GamePort))
}

// RemoteConfig holds SFTP settings for fetching the server console logs
type RemoteConfig struct {
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	User           string        `yaml:"user"`
	Password       string        `yaml:"password"`
	KeyFile        string        `yaml:"key_file"`
	BaseLogPath    string        `yaml:"base_log_path"`
	ArchiveDir     string        `yaml:"archive_dir"` // empty disables local gzip archives
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// Address returns the host:port of the SFTP endpoint
func (r RemoteConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// DatabaseConfig holds SQLite settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// APIConfig holds HTTP server settings
type APIConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	HTTPPort   int    `yaml:"http_port"`
}

// BusConfig holds embedded NATS settings. Port -1 picks a random free port.
type BusConfig struct {
	ListenAddr string `yaml:"listen_addr"`
	Port       int    `yaml:"port"`
}

// AuthConfig holds authentication settings
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenDuration time.Duration `yaml:"token_duration"`
}

// Load reads configuration from a YAML file and applies defaults
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Set defaults
	if cfg.Server.Name == "" {
		cfg.Server.Name = "Arma Reforger Server"
	}
	if cfg.Server.QueryTimeout == 0 {
		cfg.Server.QueryTimeout = 10 * time.Second
	}
	if cfg.Server.RefreshInterval == 0 {
		cfg.Server.RefreshInterval = 60 * time.Second
	}
	if cfg.Server.GamePort == 0 {
		cfg.Server.GamePort = 2001
	}
	if cfg.Remote.Port == 0 {
		cfg.Remote.Port = 22
	}
	if cfg.Remote.ConnectTimeout == 0 {
		cfg.Remote.ConnectTimeout = 10 * time.Second
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "/var/lib/reforgerwatch/reforgerwatch.db"
	}
	if cfg.API.ListenAddr == "" {
		cfg.API.ListenAddr = "127.0.0.1"
	}
	if cfg.API.HTTPPort == 0 {
		cfg.API.HTTPPort = 8080
	}
	if cfg.Bus.ListenAddr == "" {
		cfg.Bus.ListenAddr = "127.0.0.1"
	}
	if cfg.Bus.Port == 0 {
		cfg.Bus.Port = -1
	}
	if cfg.Auth.TokenDuration == 0 {
		cfg.Auth.TokenDuration = 24 * time.Hour
	}

	return &cfg, nil
}

// Validate checks that the settings required before scheduling can start are
// present. A failure here is fatal at startup.
func (c *Config) Validate() error {
	if c.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if c.Server.QueryPort == 0 {
		return fmt.Errorf("server.query_port is required")
	}
	if c.Remote.Host == "" {
		return fmt.Errorf("remote.host is required")
	}
	if c.Remote.User == "" {
		return fmt.Errorf("remote.user is required")
	}
	if c.Remote.Password == "" && c.Remote.KeyFile == "" {
		return fmt.Errorf("remote.password or remote.key_file is required")
	}
	if c.Remote.BaseLogPath == "" {
		return fmt.Errorf("remote.base_log_path is required")
	}
	return nil
}
