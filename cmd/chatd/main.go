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

	"github.com/petasbytes/chatd/internal/config"
	"github.com/petasbytes/chatd/internal/conversation"
	"github.com/petasbytes/chatd/internal/httpapi"
	"github.com/petasbytes/chatd/internal/provider"
	"github.com/petasbytes/chatd/memory"
)

const shutdownTimeout = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "chatd: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	store, err := memory.Open(cfg.StoreKind, cfg.StorePath)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreKind, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("close store", "err", err)
		}
	}()

	completer, err := provider.New(cfg.Provider)
	if err != nil {
		return err
	}

	mgr := conversation.NewManager(store, completer, conversation.Options{
		Model:            cfg.Model,
		SystemPrompt:     cfg.SystemPrompt,
		MaxExchanges:     cfg.MaxExchanges,
		Mode:             cfg.WindowMode,
		RetrimAfterReply: cfg.RetrimAfterReply,
		ProviderTimeout:  cfg.ProviderTimeout,
		Logger:           logger,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpapi.New(mgr, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Shut down gracefully on Ctrl-C (SIGINT) / SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigch := make(chan os.Signal, 1)
	signal.Notify(sigch, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigch)
	go func() {
		select {
		case sig := <-sigch:
			logger.Info("shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("listening",
			"addr", cfg.Addr,
			"store", cfg.StoreKind,
			"store_path", cfg.StorePath,
			"provider", completer.Name(),
			"model", cfg.Model,
			"max_exchanges", cfg.MaxExchanges,
			"window_mode", cfg.WindowMode)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	sctx, scancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer scancel()
	if err := srv.Shutdown(sctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
