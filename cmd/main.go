package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	"tinking/backend/internal/api/handlers"
	"tinking/backend/internal/api/routes"
	"tinking/backend/internal/compiler"
	"tinking/backend/internal/config"
	"tinking/backend/internal/metrics"
	"tinking/backend/internal/recipe"
	"tinking/backend/internal/recorder"
	"tinking/backend/internal/services"
	"tinking/backend/internal/store"
	"tinking/backend/pkg/database"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const shutdownTimeout = 10 * time.Second

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	if cfg.Server.Mode == gin.DebugMode {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	// Initialize storage
	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.MustNewMetrics(reg)

	manager := recipe.NewManager(recipe.ManagerConfig{
		Drafts:         st,
		DebounceWindow: cfg.Editor.DraftDebounce,
		Observer:       m,
		Logger:         logger,
	})

	driver, err := compiler.ParseDriver(cfg.Compiler.Driver)
	if err != nil {
		return err
	}

	launcher := recorder.NewLauncher(cfg.Chrome, logger.With("component", "recorder"))
	h := handlers.New(handlers.Config{
		Manager: manager,
		Tinks:   st,
		OpenPage: func(ctx context.Context, pageURL string) (handlers.LivePage, error) {
			live, err := launcher.Open(ctx, pageURL)
			if err != nil {
				return nil, err
			}
			return live, nil
		},
		Metrics: m,
		Compile: compiler.Options{
			Driver: driver,
			Timing: compiler.Timing{
				RetryDelay: cfg.Compiler.RetryDelay,
				PageDelay:  cfg.Compiler.PageDelay,
				KeyDelay:   cfg.Compiler.KeyDelay,
				MaxPages:   cfg.Compiler.MaxPages,
			},
		},
		Logger: logger,
	})

	// Initialize janitor
	janitor := services.NewJanitor(cfg.Janitor, manager, st, m, logger.With("component", "janitor"))
	if err := janitor.Start(); err != nil {
		return err
	}

	// Set Gin mode
	gin.SetMode(cfg.Server.Mode)
	router := routes.SetupRoutes(h, reg)

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", addr, "store", cfg.Database.Driver, "driver", driver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// Setup graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		janitor.Stop()
		return err
	case <-stop:
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("server shutdown incomplete", "error", err)
	}
	janitor.Stop()
	manager.CloseAll()
	launcher.CloseAll()

	logger.Info("server shutdown complete")
	return nil
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Database.Driver {
	case "mysql":
		db, err := database.Open(cfg, logger)
		if err != nil {
			return nil, err
		}
		return store.NewGorm(db), nil
	default:
		logger.Warn("using in-memory store, recipes are lost on restart")
		return store.NewMemory(), nil
	}
}
