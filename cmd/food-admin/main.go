package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/poku-e/foodadmin/internal/catalog"
	"github.com/poku-e/foodadmin/internal/config"
	"github.com/poku-e/foodadmin/internal/interference"
	"github.com/poku-e/foodadmin/internal/logger"
	"github.com/poku-e/foodadmin/internal/prefs"
	"github.com/poku-e/foodadmin/internal/server"
)

func main() {
	var configPath string
	var addr string
	var foodsPath string

	flag.StringVar(&configPath, "config", "", "Path to the YAML config file (optional)")
	flag.StringVar(&addr, "addr", "", "Listen address (overrides config)")
	flag.StringVar(&foodsPath, "foods", "", "Path to the food table, .csv or .xlsx (overrides config)")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx, configPath, addr, foodsPath); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

// run serves until ctx is done.
func run(ctx context.Context, configPath, addr, foodsPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if foodsPath != "" {
		cfg.Storage.FoodsPath = foodsPath
	}
	for _, p := range []*string{&cfg.Storage.FoodsPath, &cfg.Storage.PrefsPath} {
		if !filepath.IsAbs(*p) {
			if abs, err := filepath.Abs(*p); err == nil {
				*p = abs
			}
		}
	}

	base, err := logger.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = base.Sync() }()

	ic := cfg.Interference
	dl, err := ic.Denylist()
	if err != nil {
		return fmt.Errorf("build denylist: %w", err)
	}
	mode, err := interference.ParseFetchMode(ic.FetchMode)
	if err != nil {
		return err
	}
	filter := interference.New(dl,
		interference.WithLogger(base.Named("interference")),
		interference.WithJournal(ic.JournalSize),
		interference.WithStyleHeuristic(*ic.StyleHeuristic),
	)

	// Everything else logs through a core that drops extension noise.
	log := base.WithOptions(zap.WrapCore(func(c zapcore.Core) zapcore.Core {
		return interference.NewCore(c, filter)
	}))

	foods, err := catalog.Load(cfg.Storage.FoodsPath)
	if err != nil {
		return fmt.Errorf("load foods: %w", err)
	}
	if foods.Len() == 0 {
		return fmt.Errorf("no foods parsed from %s", cfg.Storage.FoodsPath)
	}
	store, err := prefs.Open(cfg.Storage.PrefsPath)
	if err != nil {
		return fmt.Errorf("load preferences: %w", err)
	}

	log.Info("catalog loaded",
		logger.Int("foods", foods.Len()),
		logger.Strings("meal_types", foods.MealTypes()),
		logger.String("path", cfg.Storage.FoodsPath))
	log.Info("interference filter ready",
		logger.String("revision", string(dl.Revision())),
		logger.Int("entries", dl.Len()),
		logger.String("fetch_mode", string(mode)))

	sweeper := filter.Sweeper(
		interference.WithInterval(ic.SweepInterval),
		interference.WithSweepLogger(log.Named("sweep")),
	)
	srv, err := server.New(server.Options{
		Addr:            cfg.Server.Addr,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		Catalog:         foods,
		Prefs:           store,
		Filter:          filter,
		Sweeper:         sweeper,
		FetchMode:       mode,
		SweepInterval:   ic.SweepInterval,
		StyleHeuristic:  *ic.StyleHeuristic,
		Logger:          log,
	})
	if err != nil {
		return err
	}

	return srv.ListenAndServe(ctx)
}
