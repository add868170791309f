package main

import (
	"errors"
	"log/slog"
	"net/http"
	"os"

	"github.com/spf13/pflag"

	"github.com/recallkit/recallkit/internal/config"
	"github.com/recallkit/recallkit/internal/storage"
	"github.com/recallkit/recallkit/internal/sync"
	"github.com/recallkit/recallkit/internal/web"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	flags := config.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		slog.Error("failed to parse flags", "error", err)
		os.Exit(2)
	}

	cfgPath, err := flags.GetString("config")
	if err != nil {
		slog.Error("failed to read config flag", "error", err)
		os.Exit(2)
	}
	cfg, err := config.Load(cfgPath, flags)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DB)
	if err != nil {
		slog.Error("failed to open database", "path", cfg.DB, "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.DB)

	if cfg.Sync {
		if err := sync.Run(db, cfg.Repos); err != nil {
			slog.Error("startup sync failed", "error", err)
			os.Exit(1)
		}
	}

	srv := web.NewServer(db, web.Options{
		Limit:      cfg.Limit,
		LogHistory: cfg.History,
		ReposDir:   cfg.Repos,
	})

	slog.Info("listening", "addr", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, srv); err != nil {
		slog.Error("server stopped", "error", err)
		os.Exit(1)
	}
}
