// Package config holds the settings of the tierdoc command line and their
// binding to flags, TIERDOC_ environment variables and a toml file.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/guyvdb/tierdoc/database"
	"github.com/guyvdb/tierdoc/store"
)

const ENV_PREFIX string = "TIERDOC"

const (
	BackendBolt = "bolt"
	BackendAWS  = "aws"
)

type Config struct {
	// Backend is BackendBolt or BackendAWS.
	Backend  string
	Database string

	Bolt struct {
		Path string
	}

	AWS store.AWSConfig

	Propagation struct {
		Timeout  time.Duration
		Interval time.Duration
	}

	Log struct {
		Level  string
		Format string
	}

	// Metrics dumps store call counters to stderr when the command ends.
	Metrics bool
}

// NewConfig returns a Config with the defaults applied.
func NewConfig() *Config {
	c := &Config{
		Backend: BackendBolt,
	}
	c.Bolt.Path = "tierdoc.db"
	c.AWS.Region = "us-east-1"
	c.Propagation.Timeout = database.DefaultPropagationTimeout
	c.Propagation.Interval = database.DefaultPropagationInterval
	c.Log.Level = "info"
	c.Log.Format = "text"
	return c
}

// Flags registers every option on fs, bound to c. The flag names double as
// the keys of the config file.
func Flags(fs *pflag.FlagSet, c *Config) {
	fs.StringVar(&c.Backend, "backend", c.Backend, "Storage backend: bolt or aws.")
	fs.StringVarP(&c.Database, "database", "d", c.Database, "Database name.")
	fs.StringVar(&c.Bolt.Path, "bolt.path", c.Bolt.Path, "Path of the bolt file used by the bolt backend.")
	fs.StringVar(&c.AWS.Region, "aws.region", c.AWS.Region, "AWS region.")
	fs.StringVar(&c.AWS.Profile, "aws.profile", c.AWS.Profile, "Shared credentials profile.")
	fs.StringVar(&c.AWS.Key, "aws.key", c.AWS.Key, "AWS access key id.")
	fs.StringVar(&c.AWS.Secret, "aws.secret", c.AWS.Secret, "AWS secret access key.")
	fs.StringVar(&c.AWS.Endpoint, "aws.endpoint", c.AWS.Endpoint, "Override the AWS service endpoint.")
	fs.BoolVar(&c.AWS.PathStyle, "aws.path-style", c.AWS.PathStyle, "Use path style S3 addressing.")
	fs.DurationVar(&c.Propagation.Timeout, "propagation.timeout", c.Propagation.Timeout, "How long init waits for the new database to become readable.")
	fs.DurationVar(&c.Propagation.Interval, "propagation.interval", c.Propagation.Interval, "First interval between readability checks.")
	fs.StringVar(&c.Log.Level, "log.level", c.Log.Level, "Log level: debug, info, warn or error.")
	fs.StringVar(&c.Log.Format, "log.format", c.Log.Format, "Log format: text or json.")
	fs.BoolVar(&c.Metrics, "metrics", c.Metrics, "Print store call metrics on exit.")
}

// Load applies configuration to the flags in fs in priority order: flags set
// on the command line, then TIERDOC_ environment variables (dots and dashes
// become underscores), then the toml file named by the "config" flag, then
// the defaults.
func Load(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	valid := make(map[string]bool)
	fs.VisitAll(func(f *pflag.Flag) {
		valid[f.Name] = true
	})

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading configuration file '%s': %w", path, err)
		}
		for _, key := range v.AllKeys() {
			if !valid[key] {
				return fmt.Errorf("invalid option in configuration file: %s", key)
			}
		}
	}

	var flagErr error
	fs.VisitAll(func(f *pflag.Flag) {
		if flagErr != nil || f.Changed {
			return
		}
		if err := f.Value.Set(v.GetString(f.Name)); err != nil {
			flagErr = fmt.Errorf("option %s: %w", f.Name, err)
		}
	})
	return flagErr
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendBolt:
		if c.Bolt.Path == "" {
			return fmt.Errorf("bolt backend needs bolt.path")
		}
	case BackendAWS:
		if c.AWS.Region == "" {
			return fmt.Errorf("aws backend needs aws.region")
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
	if c.Propagation.Timeout <= 0 || c.Propagation.Interval <= 0 {
		return fmt.Errorf("propagation timeout and interval must be positive")
	}
	return nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid log level %q", s)
	}
	return level, nil
}

// NewLogger builds the logger described by c, writing to w.
func (c *Config) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	switch c.Log.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})), nil
	case "text", "":
		return slog.New(tint.NewHandler(w, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})), nil
	}
	return nil, fmt.Errorf("invalid log format %q", c.Log.Format)
}
