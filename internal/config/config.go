package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/user/wzgo/internal/logger"
	"github.com/user/wzgo/pkg/keystream"
	"github.com/user/wzgo/pkg/wz"
)

const (
	// AppName is the application name used for config files
	AppName = "wzgo"

	// EnvPrefix is the prefix for environment variables
	EnvPrefix = "WZGO"
)

// Config holds the tool configuration
type Config struct {
	IV         string `mapstructure:"iv"`          // gms, ems, zero or 8 hex digits
	Version    int    `mapstructure:"version"`     // 0 detects the version
	MaxVersion int    `mapstructure:"max_version"` // upper bound for detection
	CacheSize  int    `mapstructure:"cache_size"`  // 0 keeps every expanded image

	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`
}

// NewViper returns a viper instance with defaults and environment binding.
func NewViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("iv", "gms")
	v.SetDefault("version", 0)
	v.SetDefault("max_version", wz.DefaultMaxVersion)
	v.SetDefault("cache_size", 0)
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")
}

// Load reads cfgFile, or wzgo.yaml from the working directory when cfgFile
// is empty, and unmarshals v into a Config. A missing default file is not an
// error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values viper cannot check by type.
func (c *Config) Validate() error {
	if _, err := keystream.ParseIV(c.IV); err != nil {
		return err
	}
	if c.Version < 0 {
		return fmt.Errorf("invalid version %d", c.Version)
	}
	if c.MaxVersion < 0 {
		return fmt.Errorf("invalid max_version %d", c.MaxVersion)
	}
	if c.CacheSize < 0 {
		return fmt.Errorf("invalid cache_size %d", c.CacheSize)
	}
	switch c.LogFormat {
	case "json", "human":
	default:
		return fmt.Errorf("invalid log_format %q (want json or human)", c.LogFormat)
	}
	return nil
}

// Logger returns the logger settings.
func (c *Config) Logger() logger.Config {
	return logger.Config{Debug: c.Debug, LogFormat: c.LogFormat, LogFile: c.LogFile}
}

// ArchiveOptions turns the configuration into options for wz.Open.
func (c *Config) ArchiveOptions(log *zap.Logger) ([]wz.Option, error) {
	iv, err := keystream.ParseIV(c.IV)
	if err != nil {
		return nil, err
	}
	opts := []wz.Option{
		wz.WithIV(iv),
		wz.WithVersion(c.Version),
		wz.WithMaxVersion(c.MaxVersion),
		wz.WithLogger(log),
	}
	if c.CacheSize > 0 {
		cache, err := wz.NewARCImageCache(c.CacheSize)
		if err != nil {
			return nil, err
		}
		opts = append(opts, wz.WithImageCache(cache))
	}
	return opts, nil
}
