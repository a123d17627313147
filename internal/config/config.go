// Package config loads dnnmodeler settings from defaults, an optional TOML
// file and DNNMODELER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvConfigPath names the environment variable holding an explicit config file.
const EnvConfigPath = "DNNMODELER_CONFIG"

// Config holds application configuration.
type Config struct {
	Service ServiceConfig `mapstructure:"service"`
	Storage StorageConfig `mapstructure:"storage"`
	Log     LogConfig     `mapstructure:"log"`
}

// ServiceConfig locates the remote services.
type ServiceConfig struct {
	BaseURL           string        `mapstructure:"base_url"`
	CatalogPath       string        `mapstructure:"catalog_path"`
	CompatibilityPath string        `mapstructure:"compatibility_path"`
	BuildPath         string        `mapstructure:"build_path"`
	Timeout           time.Duration `mapstructure:"timeout"`
}

// StorageConfig holds the catalog snapshot settings.
type StorageConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from file and env. The file is
// $DNNMODELER_CONFIG when set, else ~/.config/dnnmodeler/config.toml if it
// exists.
func Load() (Config, error) {
	return LoadFile(os.Getenv(EnvConfigPath))
}

// LoadFile is Load with an explicit config file. An empty path searches the
// default location. A named file that does not exist is an error; a missing
// default file is not.
func LoadFile(path string) (Config, error) {
	v := viper.New()
	home, _ := os.UserHomeDir()

	v.SetDefault("service.base_url", "http://localhost:8000")
	v.SetDefault("service.catalog_path", "/available-blocks")
	v.SetDefault("service.compatibility_path", "/check-compatibility")
	v.SetDefault("service.build_path", "/build-model")
	v.SetDefault("service.timeout", "0s")
	v.SetDefault("storage.path", filepath.Join(home, ".dnnmodeler", "badger"))
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetConfigType("toml")
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "dnnmodeler"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DNNMODELER")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
