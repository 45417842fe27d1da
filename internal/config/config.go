// Package config loads rgkit settings from an optional YAML file and
// RGKIT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/joshuapare/rgkit/gfs/mount"
)

const (
	// AppName is the base name of the config file searched for.
	AppName = "rgkit"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "RGKIT"
)

// Config holds every setting the CLI and a mount consume.
type Config struct {
	Debug     bool   `mapstructure:"debug"`
	LogFormat string `mapstructure:"log_format"`
	LogFile   string `mapstructure:"log_file"`

	Tune struct {
		ClumpSize        uint32 `mapstructure:"clump_size"`
		RgrpTryThreshold uint32 `mapstructure:"rgrp_try_threshold"`
		MaxMHC           int    `mapstructure:"max_mhc"`
		Journals         uint32 `mapstructure:"journals"`
		JID              uint32 `mapstructure:"jid"`
	} `mapstructure:"tune"`

	Flush struct {
		Mode string `mapstructure:"mode"` // auto, data, full
	} `mapstructure:"flush"`

	Mkfs struct {
		BlockSize  uint32 `mapstructure:"block_size"`
		RgrpBlocks uint32 `mapstructure:"rgrp_blocks"`
		LockTable  string `mapstructure:"lock_table"`
	} `mapstructure:"mkfs"`
}

// Load reads the config file at path, or searches the working directory and
// $HOME/.config/rgkit when path is empty. A missing file is not an error;
// defaults and environment variables still apply.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(AppName)
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/rgkit")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("log_format", "human")
	v.SetDefault("log_file", "")

	v.SetDefault("tune.clump_size", 64)
	v.SetDefault("tune.rgrp_try_threshold", 100)
	v.SetDefault("tune.max_mhc", 10000)
	v.SetDefault("tune.journals", 1)
	v.SetDefault("tune.jid", 0)

	v.SetDefault("flush.mode", "auto")

	v.SetDefault("mkfs.block_size", 4096)
	v.SetDefault("mkfs.rgrp_blocks", 8192)
	v.SetDefault("mkfs.lock_table", "")
}

func (c Config) validate() error {
	if c.Tune.ClumpSize == 0 {
		return errors.New("config: tune.clump_size must be positive")
	}
	if c.Tune.Journals == 0 {
		return errors.New("config: tune.journals must be positive")
	}
	if c.Tune.JID >= c.Tune.Journals {
		return fmt.Errorf("config: tune.jid %d out of range for %d journals", c.Tune.JID, c.Tune.Journals)
	}
	switch c.Flush.Mode {
	case "auto", "data", "full":
	default:
		return fmt.Errorf("config: unknown flush.mode %q", c.Flush.Mode)
	}
	return nil
}

// Tunables maps the tune section onto per-mount settings.
func (c Config) Tunables() mount.Tunables {
	return mount.Tunables{
		ClumpSize:    c.Tune.ClumpSize,
		TryThreshold: c.Tune.RgrpTryThreshold,
		MaxMHC:       c.Tune.MaxMHC,
		Journals:     c.Tune.Journals,
		JID:          c.Tune.JID,
	}
}
