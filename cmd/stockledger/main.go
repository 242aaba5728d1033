package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apm287/stockledger/internal/approval"
	"github.com/apm287/stockledger/internal/config"
	"github.com/apm287/stockledger/internal/domain"
	"github.com/apm287/stockledger/internal/feed"
	"github.com/apm287/stockledger/internal/handler"
	"github.com/apm287/stockledger/internal/journal"
	"github.com/apm287/stockledger/internal/ledger"
)

// startingPriceCents is the price every generated symbol starts at.
const startingPriceCents = 10_000 // 100.00

func main() {
	healthcheck := flag.Bool("healthcheck", false, "Run health check against running server")
	flag.Parse()

	// Handle -healthcheck flag: HTTP GET to localhost:PORT/healthz, exit 0/1.
	if *healthcheck {
		port := os.Getenv("PORT")
		if port == "" {
			port = "8080"
		}
		resp, err := http.Get(fmt.Sprintf("http://localhost:%s/healthz", port))
		if err != nil || resp.StatusCode != http.StatusOK {
			os.Exit(1)
		}
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// Set up slog logger with configured level.
	var logLevel slog.Level
	switch cfg.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	startingBalance, err := domain.DollarsToCents(cfg.StartingBalance)
	if err != nil {
		logger.Error("invalid starting balance", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rnd := rand.New(rand.NewSource(time.Now().UnixNano()))

	// Approval gate behind the circuit breaker.
	gate := approval.NewBreakerGate(
		approval.NewRandomGate(cfg.ApprovalMinDelay, cfg.ApprovalMaxDelay, cfg.ApproveAlways, rnd),
		uint32(cfg.BreakerMaxFailures),
		cfg.BreakerCallTimeout,
		cfg.BreakerResetTimeout,
		logger,
	)

	// Ledger, per configured strategy. Only the mailbox strategy carries
	// the durable journal and supports the restart drill.
	var (
		ld        ledger.Ledger
		restarter handler.Restarter
		cleanup   func()
	)
	switch cfg.Strategy {
	case config.StrategyAtomic:
		ld = ledger.NewAtomicLedger(startingBalance, cfg.ApproveThreshold, gate)
	case config.StrategyMailbox:
		jrnl, err := journal.Open(cfg.JournalPath)
		if err != nil {
			logger.Error("failed to open journal", slog.String("error", err.Error()))
			os.Exit(1)
		}
		mailbox, err := ledger.NewMailboxLedger(startingBalance, cfg.ApproveThreshold, gate, jrnl, logger)
		if err != nil {
			logger.Error("failed to start mailbox ledger", slog.String("error", err.Error()))
			os.Exit(1)
		}
		ld = mailbox
		restarter = mailbox
		cleanup = func() {
			mailbox.Close()
			if err := jrnl.Close(); err != nil {
				logger.Error("journal close error", slog.String("error", err.Error()))
			}
		}
	default:
		ld = ledger.NewMutexLedger(startingBalance, cfg.ApproveThreshold, gate)
	}
	logger.Info("ledger ready",
		slog.String("strategy", cfg.Strategy),
		slog.Float64("balance", cfg.StartingBalance),
	)

	// Price feed over internally generated symbols.
	symbols := domain.GenerateSymbols(cfg.SymbolCount, rnd)
	priceFeed := feed.New(ld, symbols, startingPriceCents, cfg.TickInterval, rnd, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go priceFeed.Start(ctx)

	// Router.
	router := handler.NewRouter(ld, restarter, logger)

	// Configure HTTP server.
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	// Start HTTP server in a goroutine.
	go func() {
		logger.Info("server starting", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	// Wait for SIGINT/SIGTERM.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown signal received", slog.String("signal", sig.String()))

	// Graceful shutdown: stop HTTP server, cancel context (stops feed),
	// then stop the ledger and close the journal.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	if cleanup != nil {
		cleanup()
	}

	logger.Info("server stopped")
}
