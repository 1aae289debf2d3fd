package config

import (
	"math"
	"os"
	"strings"

	"codeberg.org/mutker/infologger/internal/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	DefaultListen     = "127.0.0.1:8642"
	DefaultInterval   = 1000
	DefaultLogLevel   = string(LogLevelWarning)
	DefaultArchiveDB  = "/var/lib/infologger/archive.db"
	DefaultEnvPrefix  = "INFOLOGGER"
	defaultConfigName = "infologger"
	defaultConfigDir  = "/etc"
)

type Config struct {
	Listen    string `mapstructure:"listen"`
	Interval  int    `mapstructure:"interval"`
	AppName   string `mapstructure:"app_name"`
	PID       int    `mapstructure:"pid"`
	GPU       bool   `mapstructure:"gpu"`
	GPUIndex  int    `mapstructure:"gpu_index"`
	LogLevel  string `mapstructure:"log_level"`
	Debug     bool   `mapstructure:"debug"`
	Verbose   bool   `mapstructure:"verbose"`
	Metrics   bool   `mapstructure:"metrics"`
	Archive   bool   `mapstructure:"archive"`
	ArchiveDB string `mapstructure:"archive_db"`
}

func Load(opts ...Option) (*Config, error) {
	errFactory := errors.New()

	o := &options{
		envPrefix: DefaultEnvPrefix,
		args:      os.Args[1:],
	}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	// Define flags
	flags := pflag.NewFlagSet("infologger", pflag.ContinueOnError)
	flags.String("listen", DefaultListen, "Address of the control API")
	flags.Int("interval", DefaultInterval, "Sampling interval in milliseconds")
	flags.String("app-name", "", "Application name used in log file names")
	flags.Int("pid", 0, "Process to sample (0 = this process)")
	flags.Bool("gpu", true, "Read GPU memory through NVML")
	flags.Int("gpu-index", 0, "NVML device index")
	flags.String("log-level", DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("debug", false, "Enable debugging mode")
	flags.Bool("verbose", false, "Enable verbose logging")
	flags.Bool("metrics", false, "Expose Prometheus metrics on /metrics")
	flags.Bool("archive", false, "Keep finalized record sets in a SQLite archive")
	flags.String("archive-db", DefaultArchiveDB, "Path of the archive database")
	flags.String("config", "", "Path to config file")

	if err := flags.Parse(o.args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}

	// Flag names use dashes, config keys use underscores
	var bindErr error
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = err
		}
	})
	if bindErr != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, bindErr)
	}

	v.SetEnvPrefix(o.envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	// Load configuration from file
	configPath := o.configPath
	if path, _ := flags.GetString("config"); path != "" {
		configPath = path
	}
	if configPath == "" {
		configPath = os.Getenv(o.envPrefix + "_CONFIG")
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("toml")
	} else {
		v.SetConfigName(defaultConfigName)
		v.SetConfigType("toml")
		v.AddConfigPath(defaultConfigDir)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, errFactory.Wrap(errors.ErrReadConfig, err)
		}
	}

	config := &Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", DefaultListen)
	v.SetDefault("interval", DefaultInterval)
	v.SetDefault("gpu", true)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("archive_db", DefaultArchiveDB)
}

// Validate checks value ranges after all sources were merged.
func (c *Config) Validate() error {
	errFactory := errors.New()

	if c.Interval <= 0 {
		return errFactory.WithData(errors.ErrInvalidInterval, c.Interval)
	}
	if !LogLevel(c.LogLevel).IsValid() {
		return errFactory.WithData(errors.ErrInvalidLogLevel, c.LogLevel)
	}
	if c.PID < 0 || c.PID > math.MaxInt32 {
		return errFactory.WithData(errors.ErrInvalidConfig, "pid must be between 0 and 2147483647")
	}
	if c.GPUIndex < 0 {
		return errFactory.WithData(errors.ErrInvalidConfig, "gpu_index must not be negative")
	}
	if c.Archive && c.ArchiveDB == "" {
		return errFactory.WithData(errors.ErrInvalidConfig, "archive_db must be set when archive is enabled")
	}

	return nil
}
