package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/devserver"
	"github.com/stemsi/exstem-client/internal/logger"
	"github.com/stemsi/exstem-client/internal/model"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Msg("Starting ExStem devserver")

	srv := devserver.New(cfg, log)

	// Seed one demo exam so a freshly started client has something to join.
	exam := demoExam()
	srv.SeedExam(exam)
	ticket, err := srv.IssueTicket(exam.ExamID, "demo-candidate")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to issue demo ticket")
	}
	log.Info().
		Str("exam_id", exam.ExamID.String()).
		Str("ticket", ticket).
		Msg("Demo exam seeded")

	httpSrv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: srv.Router(),
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", httpSrv.Addr).Msg("Server listening")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}

func demoExam() model.ExamContent {
	sectionA := model.Section{
		ID:    uuid.New(),
		Title: "Reading Comprehension",
	}
	for i := 0; i < 3; i++ {
		sectionA.Questions = append(sectionA.Questions, model.Question{
			ID:    uuid.New(),
			Type:  model.QuestionTypeMultipleChoice,
			Title: "Demo question",
		})
	}
	sectionB := model.Section{
		ID:    uuid.New(),
		Title: "Short Essay",
		Questions: []model.Question{
			{ID: uuid.New(), Type: model.QuestionTypeEssay, Title: "Demo essay"},
		},
	}
	return model.ExamContent{
		ExamID:            uuid.New(),
		Title:             "Demo Exam",
		Sections:          []model.Section{sectionA, sectionB},
		DurationSeconds:   1800,
		TabSwitchLimit:    3,
		MonitoringEnabled: true,
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
