package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Remote   RemoteConfig   `yaml:"remote"`
	Monitor  MonitorConfig  `yaml:"monitor"`
	Store    StoreConfig    `yaml:"store"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Terminal TerminalConfig `yaml:"terminal"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	PathPrefix      string `yaml:"path_prefix"`
	MaxDocumentSize int64  `yaml:"max_document_size"`
	// RateLimit is the number of API requests allowed per client per minute;
	// negative disables limiting.
	RateLimit int `yaml:"rate_limit"`
}

type RemoteConfig struct {
	Binary         string   `yaml:"binary"`
	Host           string   `yaml:"host"`
	User           string   `yaml:"user"`
	Port           int      `yaml:"port"`
	IdentityFile   string   `yaml:"identity_file"`
	ConnectTimeout string   `yaml:"connect_timeout"`
	Options        []string `yaml:"options"`
	ReadTimeout    string   `yaml:"read_timeout"`
	WriteTimeout   string   `yaml:"write_timeout"`
}

type MonitorConfig struct {
	Enabled            *bool  `yaml:"enabled"`
	Interval           string `yaml:"interval"`
	ProbeTimeout       string `yaml:"probe_timeout"`
	ProbeCommand       string `yaml:"probe_command"`
	ConnectedMarker    string `yaml:"connected_marker"`
	DisconnectedMarker string `yaml:"disconnected_marker"`
}

// StoreConfig describes where the device keeps its macro documents and how
// preset files are named.
type StoreConfig struct {
	Dir            string   `yaml:"dir"`
	ActiveFile     string   `yaml:"active_file"`
	ActiveAlias    string   `yaml:"active_alias"`
	Prefix         string   `yaml:"prefix"`
	RequirePrefix  *bool    `yaml:"require_prefix"`
	Glob           string   `yaml:"glob"`
	DefaultNewName string   `yaml:"default_new_name"`
	Protected      []string `yaml:"protected"`
	ApplyMode      string   `yaml:"apply_mode"`
	CommandFIFO    string   `yaml:"command_fifo"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
	// SnapshotKeep bounds the document history; negative keeps everything.
	SnapshotKeep int `yaml:"snapshot_keep"`
}

type AuthConfig struct {
	// TokenHash is a bcrypt hash of the API token. Empty disables auth.
	TokenHash  string `yaml:"token_hash"`
	TOTPSecret string `yaml:"totp_secret"`
	BcryptCost int    `yaml:"bcrypt_cost"`
}

type TerminalConfig struct {
	Enabled bool     `yaml:"enabled"`
	Env     []string `yaml:"env"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

const (
	ApplyModeFIFO = "fifo"
	ApplyModeCopy = "copy"
)

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func (c *RemoteConfig) GetConnectTimeout() time.Duration {
	return parseDuration(c.ConnectTimeout, time.Second)
}

func (c *RemoteConfig) GetReadTimeout() time.Duration {
	return parseDuration(c.ReadTimeout, 3*time.Second)
}

func (c *RemoteConfig) GetWriteTimeout() time.Duration {
	return parseDuration(c.WriteTimeout, 6*time.Second)
}

func (c *MonitorConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// PrefixRequired reports whether preset names get the prefix; on unless
// require_prefix is set to false.
func (c *StoreConfig) PrefixRequired() bool {
	return c.RequirePrefix == nil || *c.RequirePrefix
}

func (c *MonitorConfig) GetInterval() time.Duration {
	return parseDuration(c.Interval, time.Second)
}

// GetProbeTimeout returns the probe timeout, kept strictly below the interval
// so probes never overlap.
func (c *MonitorConfig) GetProbeTimeout() time.Duration {
	interval := c.GetInterval()
	timeout := parseDuration(c.ProbeTimeout, 1500*time.Millisecond)
	if timeout >= interval {
		timeout = interval * 9 / 10
	}
	return timeout
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	setDefaults(&cfg)
	applyEnv(&cfg)

	return &cfg, nil
}

// Default returns a configuration with every default applied.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	applyEnv(&cfg)
	return &cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MACROSYNC_REMOTE_HOST"); v != "" {
		cfg.Remote.Host = v
	}
	if v := os.Getenv("MACROSYNC_REMOTE_USER"); v != "" {
		cfg.Remote.User = v
	}
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "127.0.0.1"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.MaxDocumentSize == 0 {
		cfg.Server.MaxDocumentSize = 1 << 20
	}
	if cfg.Server.RateLimit == 0 {
		cfg.Server.RateLimit = 240
	}
	if cfg.Remote.Binary == "" {
		cfg.Remote.Binary = "ssh"
	}
	if cfg.Remote.Host == "" {
		cfg.Remote.Host = "raspberrypi.local"
	}
	if cfg.Remote.User == "" {
		cfg.Remote.User = "pi"
	}
	if cfg.Monitor.ProbeCommand == "" {
		cfg.Monitor.ProbeCommand = "timeout 1 sh -c 'echo status > /tmp/proxykbd_cmd' 2>/dev/null; cat /tmp/proxykbd_status 2>/dev/null; echo ok"
	}
	if cfg.Monitor.ConnectedMarker == "" {
		cfg.Monitor.ConnectedMarker = "connected"
	}
	if cfg.Monitor.DisconnectedMarker == "" {
		cfg.Monitor.DisconnectedMarker = "disconnected"
	}
	if cfg.Store.Dir == "" {
		cfg.Store.Dir = "/opt/bong_macro"
	}
	if cfg.Store.ActiveFile == "" {
		cfg.Store.ActiveFile = "macros.json"
	}
	if cfg.Store.ActiveAlias == "" {
		cfg.Store.ActiveAlias = "macros_active.json"
	}
	if cfg.Store.Prefix == "" {
		cfg.Store.Prefix = "macros_"
	}
	if cfg.Store.Glob == "" {
		cfg.Store.Glob = "macros*.json"
	}
	if cfg.Store.DefaultNewName == "" {
		cfg.Store.DefaultNewName = "macros_new.json"
	}
	if cfg.Store.ApplyMode == "" {
		cfg.Store.ApplyMode = ApplyModeFIFO
	}
	if cfg.Store.CommandFIFO == "" {
		cfg.Store.CommandFIFO = "/tmp/proxykbd_cmd"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/macrosync.db"
	}
	if cfg.Database.SnapshotKeep == 0 {
		cfg.Database.SnapshotKeep = 100
	}
	if cfg.Auth.BcryptCost == 0 {
		cfg.Auth.BcryptCost = 12
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}
