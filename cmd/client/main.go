package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/integrity"
	"github.com/stemsi/exstem-client/internal/localstore"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/runtime"
)

// Exit codes map the runtime's navigation-redirect analogs for wrapper
// processes (kiosk shells) that dispatch on them.
var exitCodes = map[runtime.ExitReason]int{
	runtime.ExitCompleted:       0,
	runtime.ExitCancelled:       0,
	runtime.ExitNotFound:        2,
	runtime.ExitUnauthenticated: 3,
	runtime.ExitDuplicateLogin:  4,
	runtime.ExitSuspended:       5,
	runtime.ExitUnavailable:     6,
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("server", cfg.ServerBaseURL).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem client runtime")

	if cfg.ExamTicket == "" {
		log.Fatal().Msg("EXAM_TICKET is required")
	}

	// ─── Open Local Store ──────────────────────────────────────────────
	// A failed open degrades identity and review recovery, it never blocks
	// the exam.
	store, err := localstore.Open(cfg.LocalStoreDir)
	if err != nil {
		log.Warn().Err(err).Msg("Local store unavailable, running degraded")
		store = nil
	} else {
		defer store.Close()
	}

	// ─── Host Signals ──────────────────────────────────────────────────
	// The headless host feeds no browser signals; native wrappers push
	// theirs through this source.
	src := integrity.NewChannelSource(64)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-quit
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
		cancel()
	}()

	// ─── Run ───────────────────────────────────────────────────────────
	rt := runtime.New(cfg, store, src, log)
	reason, err := rt.Run(ctx)
	if err != nil && reason != runtime.ExitCancelled {
		log.Error().Err(err).Str("reason", string(reason)).Msg("Runtime ended with error")
	} else {
		log.Info().Str("reason", string(reason)).Msg("Runtime ended")
	}

	os.Exit(exitCodes[reason])
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
