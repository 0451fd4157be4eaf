// Package config resolves runtime settings from defaults, an optional config
// file (a .env file in the working directory when none is named),
// PICCAPTION_* environment variables and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/jayzes/piccaption/internal/imaging"
	"github.com/jayzes/piccaption/internal/keywords"
	"github.com/jayzes/piccaption/internal/mirror"
)

// EnvPrefix prefixes every environment variable, e.g. PICCAPTION_MODEL.
const EnvPrefix = "PICCAPTION"

// DefaultEnvFile is read from the working directory when no config file is given.
const DefaultEnvFile = ".env"

// MaxKeywordsLimit is the highest accepted keyword bound.
const MaxKeywordsLimit = 10

// Config holds every tunable of a run.
type Config struct {
	Model            string        `mapstructure:"model"`
	BaseURL          string        `mapstructure:"base_url"`
	APIKey           string        `mapstructure:"api_key"`
	MaxKeywords      int           `mapstructure:"max_keywords"`
	Pace             time.Duration `mapstructure:"pace"`
	Timeout          time.Duration `mapstructure:"timeout"`
	Retries          int           `mapstructure:"retries"`
	Prompt           string        `mapstructure:"prompt"`
	PreviewMaxDim    uint          `mapstructure:"preview_max_dim"`
	ScratchPath      string        `mapstructure:"scratch_path"`
	RenameExtensions []string      `mapstructure:"rename_extensions"`
	Converters       []string      `mapstructure:"converters"`
	JPEGQuality      int           `mapstructure:"jpeg_quality"`
}

// flagKeys maps command-line flag names to config keys.
var flagKeys = map[string]string{
	"model":        "model",
	"url":          "base_url",
	"max-keywords": "max_keywords",
	"pace":         "pace",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model", "granite3.2-vision:2b")
	v.SetDefault("base_url", "http://localhost:11434")
	v.SetDefault("api_key", "")
	v.SetDefault("max_keywords", 4)
	v.SetDefault("pace", time.Second)
	v.SetDefault("timeout", 2*time.Minute)
	v.SetDefault("retries", 2)
	v.SetDefault("prompt", keywords.DefaultPrompt)
	v.SetDefault("preview_max_dim", 1024)
	v.SetDefault("scratch_path", mirror.DefaultScratchPath())
	v.SetDefault("rename_extensions", mirror.DefaultRenamable)
	v.SetDefault("converters", imaging.DefaultConverters)
	v.SetDefault("jpeg_quality", 92)
}

// Load resolves the configuration. configPath may be empty; flags may be nil.
// Only flags the user actually set override lower layers.
func Load(configPath string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := readConfigFile(v, configPath); err != nil {
		return nil, err
	}

	if flags != nil {
		for name, key := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.RenameExtensions = splitList(cfg.RenameExtensions)
	cfg.Converters = splitList(cfg.Converters)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func readConfigFile(v *viper.Viper, configPath string) error {
	if configPath == "" {
		if _, err := os.Stat(DefaultEnvFile); err != nil {
			return nil
		}
		configPath = DefaultEnvFile
	}

	v.SetConfigFile(configPath)
	if ext := strings.TrimPrefix(filepath.Ext(configPath), "."); ext == "" || ext == "env" {
		v.SetConfigType("env")
	}
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}
	return nil
}

// splitList accepts both proper lists and a single comma separated entry,
// which is what environment variables and .env files produce.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Model) == "" {
		errs = append(errs, errors.New("model must not be empty"))
	}
	if strings.TrimSpace(c.BaseURL) == "" {
		errs = append(errs, errors.New("base_url must not be empty"))
	}
	if c.MaxKeywords < 1 || c.MaxKeywords > MaxKeywordsLimit {
		errs = append(errs, fmt.Errorf("max_keywords must be between 1 and %d, got %d", MaxKeywordsLimit, c.MaxKeywords))
	}
	if c.Pace < 0 {
		errs = append(errs, fmt.Errorf("pace must not be negative, got %s", c.Pace))
	}
	if c.Timeout < 0 {
		errs = append(errs, fmt.Errorf("timeout must not be negative, got %s", c.Timeout))
	}
	if c.Retries < 0 {
		errs = append(errs, fmt.Errorf("retries must not be negative, got %d", c.Retries))
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		errs = append(errs, fmt.Errorf("jpeg_quality must be between 1 and 100, got %d", c.JPEGQuality))
	}
	if c.ScratchPath == "" {
		errs = append(errs, errors.New("scratch_path must not be empty"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}
