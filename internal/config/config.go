package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/loykin/foxy/internal/auth"
	"github.com/loykin/foxy/internal/logger"
	tlsx "github.com/loykin/foxy/internal/tls"
)

// Defaults used when neither the config file, the environment nor flags set a value.
const (
	DefaultLockDir         = "/tmp/foxy"
	DefaultListen          = "127.0.0.1:9105"
	DefaultHistoryTimeout  = 5 * time.Second
	DefaultShutdownTimeout = 5 * time.Second
	EnvPrefix              = "FOXY"
)

// Config is the launcher configuration. It is loaded once per invocation
// and passed explicitly to every component.
//
// Example TOML:
//
//	lock_dir = "/var/run/foxy"
//	exclusive = true
//	env = ["PATH=/opt/tools/bin:${PATH}"]
//	env_files = ["/etc/foxy/jobs.env"]
//
//	[log]
//	file = "/var/log/foxy.log"
//	level = "info"
//
//	[history]
//	dsn = "sqlite:///var/lib/foxy/history.db"
//
//	[metrics]
//	textfile = "/var/lib/node_exporter/foxy_{id}.prom"
type Config struct {
	LockDir    string        `mapstructure:"lock_dir"`
	Exclusive  bool          `mapstructure:"exclusive"`
	ReuseCheck bool          `mapstructure:"reuse_check"` // owner start time vs record mtime; needs one shared clock
	Env        []string      `mapstructure:"env"`         // KEY=VALUE overrides for the child
	EnvFiles   []string      `mapstructure:"env_files"`   // read before Env
	Log        logger.Config `mapstructure:"log"`
	History    HistoryConfig `mapstructure:"history"`
	Metrics    MetricsConfig `mapstructure:"metrics"`
	Serve      ServeConfig   `mapstructure:"serve"`
}

// HistoryConfig selects where run events are exported.
type HistoryConfig struct {
	DSN     string        `mapstructure:"dsn"`     // empty disables history
	Timeout time.Duration `mapstructure:"timeout"` // per-event send timeout
}

// MetricsConfig controls Prometheus output of one-shot launches.
type MetricsConfig struct {
	// Textfile is written after every launch for node_exporter's textfile
	// collector. "{id}" is replaced by the command identifier.
	Textfile string `mapstructure:"textfile"`
}

// ServeConfig configures the status server.
type ServeConfig struct {
	Listen          string        `mapstructure:"listen"`
	BasePath        string        `mapstructure:"base_path"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	TLS             tlsx.Config   `mapstructure:"tls"`
	Auth            auth.Config   `mapstructure:"auth"`
}

// flagKeys maps CLI flag names to config keys.
var flagKeys = map[string]string{
	"lock-dir":    "lock_dir",
	"exclusive":   "exclusive",
	"reuse-check": "reuse_check",
	"log-file":    "log.file",
	"log-level":   "log.level",
	"console":     "log.console",
	"history-dsn": "history.dsn",
	"textfile":    "metrics.textfile",
	"listen":      "serve.listen",
	"base-path":   "serve.base_path",
	"env":         "env",
	"tls-cert":    "serve.tls.cert_file",
	"tls-key":     "serve.tls.key_file",
}

// Default returns the configuration used when nothing is configured.
func Default() Config {
	return Config{
		LockDir: DefaultLockDir,
		Log: logger.Config{
			File:       logger.DefaultFile,
			Level:      "info",
			MaxSizeMB:  logger.DefaultMaxSizeMB,
			MaxBackups: logger.DefaultMaxBackups,
			MaxAgeDays: logger.DefaultMaxAgeDays,
		},
		History: HistoryConfig{Timeout: DefaultHistoryTimeout},
		Serve: ServeConfig{
			Listen:          DefaultListen,
			ShutdownTimeout: DefaultShutdownTimeout,
			Auth:            auth.Config{TokenTTL: auth.DefaultTokenTTL},
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("lock_dir", d.LockDir)
	v.SetDefault("exclusive", d.Exclusive)
	v.SetDefault("reuse_check", d.ReuseCheck)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.console", d.Log.Console)
	v.SetDefault("log.max_size_mb", d.Log.MaxSizeMB)
	v.SetDefault("log.max_backups", d.Log.MaxBackups)
	v.SetDefault("log.max_age_days", d.Log.MaxAgeDays)
	v.SetDefault("log.compress", d.Log.Compress)
	v.SetDefault("history.dsn", d.History.DSN)
	v.SetDefault("history.timeout", d.History.Timeout)
	v.SetDefault("metrics.textfile", d.Metrics.Textfile)
	v.SetDefault("serve.listen", d.Serve.Listen)
	v.SetDefault("serve.base_path", d.Serve.BasePath)
	v.SetDefault("serve.shutdown_timeout", d.Serve.ShutdownTimeout)
	v.SetDefault("serve.tls.cert_file", "")
	v.SetDefault("serve.tls.key_file", "")
	v.SetDefault("serve.tls.min_version", "")
	v.SetDefault("serve.tls.auto_generate", false)
	v.SetDefault("serve.auth.enabled", d.Serve.Auth.Enabled)
	v.SetDefault("serve.auth.jwt_secret", d.Serve.Auth.JWTSecret)
	v.SetDefault("serve.auth.token_ttl", d.Serve.Auth.TokenTTL)
}

// Load builds the configuration. Precedence, highest first: changed flags,
// FOXY_* environment variables, the TOML file at path (optional), defaults.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return Config{}, err
				}
			}
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports configuration values the launcher cannot work with.
func (c Config) Validate() error {
	if strings.TrimSpace(c.LockDir) == "" {
		return errors.New("lock_dir must not be empty")
	}
	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.History.Timeout < 0 {
		return errors.New("history.timeout must not be negative")
	}
	for _, kv := range c.Env {
		if k, _, ok := strings.Cut(kv, "="); !ok || k == "" {
			return fmt.Errorf("env entry %q is not KEY=VALUE", kv)
		}
	}
	if err := c.Serve.TLS.Validate(); err != nil {
		return err
	}
	return c.Serve.Auth.Validate()
}
