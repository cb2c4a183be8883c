package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/okian/rankready/pkg/logger"
)

// Environment variables read by the loader itself.
const (
	EnvPrefix  = "RANKREADY_"
	EnvConfig  = "RANKREADY_CONFIG"
	EnvEnvFile = "RANKREADY_ENV_FILE"
)

const defaultEnvFile = ".env"

// Load builds a Config by layering defaults, optional .env, optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. file (YAML) if RANKREADY_CONFIG is set
//  3. env (prefix RANKREADY_), including values from the .env file
func Load(ctx context.Context) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	return LoadFile(ctx, os.Getenv(EnvConfig))
}

// LoadFile is Load with an explicit YAML path; an empty path skips the file layer.
func LoadFile(_ context.Context, path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// RANKREADY_QUEUE_SIZE -> queue_size; underscores are kept to match the koanf tags.
	envProvider := env.Provider(EnvPrefix, ".", func(s string) string {
		return strings.TrimPrefix(strings.ToLower(s), strings.ToLower(EnvPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}
	// loader-only variables are not config keys
	k.Delete("config")
	k.Delete("env_file")

	cfg := New()
	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFile exports variables from the .env file without overriding the real environment.
func loadEnvFile() error {
	path := os.Getenv(EnvEnvFile)
	if path == "" {
		path = defaultEnvFile
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
	}
	return nil
}

// Watch reloads the YAML file at path whenever it changes and hands every
// valid result to fn. Invalid reloads are logged and skipped. Watching stops
// when ctx is done.
func Watch(ctx context.Context, path string, fn func(*Config)) error {
	if path == "" {
		return fmt.Errorf("%w: watch requires a config file", ErrLoadConfig)
	}
	log := logger.Get().Named("config")
	f := file.Provider(path)

	err := f.Watch(func(_ interface{}, werr error) {
		if werr != nil {
			log.Warn(ctx, "config watch error", logger.Error(werr))
			return
		}
		cfg, lerr := LoadFile(ctx, path)
		if lerr != nil {
			log.Warn(ctx, "ignoring invalid config reload", logger.String("path", path), logger.Error(lerr))
			return
		}
		log.Info(ctx, "config reloaded", logger.String("path", path))
		fn(cfg)
	})
	if err != nil {
		return fmt.Errorf("%w: watch %s: %w", ErrLoadConfig, path, err)
	}

	go func() {
		<-ctx.Done()
		_ = f.Unwatch()
	}()
	return nil
}
