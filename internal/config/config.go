// Package config loads server configuration from defaults, an optional
// YAML file, RECALLKIT_* environment variables, and command-line flags, in
// that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const envPrefix = "RECALLKIT_"

// Config holds the server settings.
type Config struct {
	// Addr is the HTTP listen address.
	Addr string `koanf:"addr" validate:"required"`
	// DB is the path to the sqlite database file.
	DB string `koanf:"db" validate:"required"`
	// Repos is the directory where git deck sources are mirrored.
	Repos string `koanf:"repos" validate:"required"`
	// Limit caps the due queue returned for a review session.
	Limit int `koanf:"limit" validate:"gt=0"`
	// History controls whether graded reviews are appended to the
	// review log. Passed through to storage as an explicit capability
	// flag on every review write.
	History bool `koanf:"history"`
	// Sync runs a full source sync at startup.
	Sync bool `koanf:"sync"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Addr:    ":8484",
		DB:      "recallkit.db",
		Repos:   "repos",
		Limit:   50,
		History: true,
	}
}

// Load layers configuration from the YAML file at path (skipped when empty
// or absent), RECALLKIT_* environment variables, and the given flag set,
// then validates the result.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("failed to load config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	}), nil); err != nil {
		return Config{}, fmt.Errorf("failed to load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return Config{}, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Flags returns the flag set understood by Load. Flag defaults mirror
// Default so unset flags never override file or env values.
func Flags() *pflag.FlagSet {
	d := Default()
	f := pflag.NewFlagSet("recallkit", pflag.ContinueOnError)
	f.String("config", "recallkit.yml", "path to the YAML config file")
	f.String("addr", d.Addr, "HTTP listen address")
	f.String("db", d.DB, "path to the sqlite database file")
	f.String("repos", d.Repos, "directory for git deck mirrors")
	f.Int("limit", d.Limit, "maximum cards per review session")
	f.Bool("history", d.History, "record graded reviews in the review log")
	f.Bool("sync", d.Sync, "sync all sources at startup")
	return f
}
