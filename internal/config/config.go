// Package config loads relay settings from flags, DRAWBOARD_* environment
// variables and an optional drawboard.toml file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"

	"github.com/shared-canvas/backend/internal/model"
)

const (
	EnvPrefix  = "DRAWBOARD"
	configName = "drawboard"
	configType = "toml"
)

// Keys
const (
	KeyPort             = "port"
	KeyDBPath           = "db_path"
	KeyLogDir           = "log_dir"
	KeyMaxBoards        = "max_boards"
	KeyBoardWidth       = "board_width"
	KeyBoardHeight      = "board_height"
	KeyMaxBoardWidth    = "max_board_width"
	KeyMaxBoardHeight   = "max_board_height"
	KeyMaxStrokeWidth   = "max_stroke_width"
	KeyCompactThreshold = "compact_threshold"
	KeyAuthSecret       = "auth_secret"
	KeyRedisAddr        = "redis_addr"
	KeyMDNS             = "mdns"
	KeyDefaultBoard     = "default_board"
)

// Config is the effective relay configuration.
type Config struct {
	Port             int     `mapstructure:"port" toml:"port"`
	DBPath           string  `mapstructure:"db_path" toml:"db_path"`
	LogDir           string  `mapstructure:"log_dir" toml:"log_dir"`
	MaxBoards        int     `mapstructure:"max_boards" toml:"max_boards"`
	BoardWidth       int     `mapstructure:"board_width" toml:"board_width"`
	BoardHeight      int     `mapstructure:"board_height" toml:"board_height"`
	MaxBoardWidth    int     `mapstructure:"max_board_width" toml:"max_board_width"`
	MaxBoardHeight   int     `mapstructure:"max_board_height" toml:"max_board_height"`
	MaxStrokeWidth   float64 `mapstructure:"max_stroke_width" toml:"max_stroke_width"`
	CompactThreshold int     `mapstructure:"compact_threshold" toml:"compact_threshold"`
	AuthSecret       string  `mapstructure:"auth_secret" toml:"auth_secret,omitempty"`
	RedisAddr        string  `mapstructure:"redis_addr" toml:"redis_addr,omitempty"`
	MDNS             bool    `mapstructure:"mdns" toml:"mdns"`
	DefaultBoard     string  `mapstructure:"default_board" toml:"default_board"`
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyPort, 8080)
	v.SetDefault(KeyDBPath, "data/boards.db")
	v.SetDefault(KeyLogDir, "data/logs")
	v.SetDefault(KeyMaxBoards, 100)
	v.SetDefault(KeyBoardWidth, model.DefaultBoardWidth)
	v.SetDefault(KeyBoardHeight, model.DefaultBoardHeight)
	v.SetDefault(KeyMaxBoardWidth, model.MaxBoardWidth)
	v.SetDefault(KeyMaxBoardHeight, model.MaxBoardHeight)
	v.SetDefault(KeyMaxStrokeWidth, model.DefaultMaxStrokeWidth)
	v.SetDefault(KeyCompactThreshold, 1000)
	v.SetDefault(KeyAuthSecret, "")
	v.SetDefault(KeyRedisAddr, "")
	v.SetDefault(KeyMDNS, false)
	v.SetDefault(KeyDefaultBoard, "default")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return v
}

// Load reads the config file, if any, and decodes the result. An empty file
// searches the working directory and the user config directory.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(configName)
		v.SetConfigType(configType)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, configName))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks ranges.
func (c *Config) Validate() error {
	switch {
	case c.Port <= 0 || c.Port > 65535:
		return fmt.Errorf("invalid port %d", c.Port)
	case c.MaxBoardWidth <= 0 || c.MaxBoardWidth > model.MaxBoardWidth ||
		c.MaxBoardHeight <= 0 || c.MaxBoardHeight > model.MaxBoardHeight:
		return fmt.Errorf("%w: max board size %dx%d must be within %dx%d", model.ErrInvalidDimensions,
			c.MaxBoardWidth, c.MaxBoardHeight, model.MaxBoardWidth, model.MaxBoardHeight)
	case c.MaxStrokeWidth <= 0:
		return fmt.Errorf("max_stroke_width must be positive, got %g", c.MaxStrokeWidth)
	case c.CompactThreshold < 0:
		return fmt.Errorf("compact_threshold must not be negative, got %d", c.CompactThreshold)
	}
	return model.CheckDimensions(c.BoardWidth, c.BoardHeight, c.MaxBoardWidth, c.MaxBoardHeight)
}

// Addr returns the listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

// TOML renders the config with the auth secret masked.
func (c *Config) TOML() ([]byte, error) {
	masked := *c
	if masked.AuthSecret != "" {
		masked.AuthSecret = "********"
	}
	data, err := toml.Marshal(masked)
	if err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return data, nil
}
