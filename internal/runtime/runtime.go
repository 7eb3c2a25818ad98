// Package runtime wires the exam session components together and owns their
// startup order: identity and content first, then session start/resume, then
// the channel, pipeline, monitor and countdown, with the submission
// coordinator mutating the state machine until a terminal condition.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/api"
	"github.com/stemsi/exstem-client/internal/autosave"
	"github.com/stemsi/exstem-client/internal/channel"
	"github.com/stemsi/exstem-client/internal/config"
	"github.com/stemsi/exstem-client/internal/countdown"
	"github.com/stemsi/exstem-client/internal/identity"
	"github.com/stemsi/exstem-client/internal/integrity"
	"github.com/stemsi/exstem-client/internal/localstore"
	"github.com/stemsi/exstem-client/internal/model"
	"github.com/stemsi/exstem-client/internal/remote"
	"github.com/stemsi/exstem-client/internal/session"
	"github.com/stemsi/exstem-client/internal/submission"
	ws "github.com/stemsi/exstem-client/internal/websocket"
)

// ExitReason is the in-process analog of a navigation redirect on a fatal or
// terminal condition.
type ExitReason string

const (
	ExitCompleted       ExitReason = "COMPLETED"
	ExitNotFound        ExitReason = "EXAM_NOT_FOUND"
	ExitUnauthenticated ExitReason = "UNAUTHENTICATED"
	ExitDuplicateLogin  ExitReason = "DUPLICATE_LOGIN"
	ExitSuspended       ExitReason = "SUSPENDED"
	ExitCancelled       ExitReason = "CANCELLED"
	ExitUnavailable     ExitReason = "SERVER_UNAVAILABLE"
)

// Runtime is one exam attempt from load to terminal state.
type Runtime struct {
	cfg   *config.Config
	log   zerolog.Logger
	store *localstore.Store
	src   integrity.SignalSource

	// Assembled during Run.
	Controller  *session.Controller
	Coordinator *submission.Coordinator
	Monitor     *integrity.Monitor
	Countdown   *countdown.Countdown
}

// New creates a Runtime. store may be nil (degraded identity, no local
// recovery). src supplies host integrity signals.
func New(cfg *config.Config, store *localstore.Store, src integrity.SignalSource, log zerolog.Logger) *Runtime {
	return &Runtime{
		cfg:   cfg,
		log:   log.With().Str("component", "runtime").Logger(),
		store: store,
		src:   src,
	}
}

// Run drives the session until a terminal condition and returns the exit
// reason. Structural remote errors map onto exit reasons; transient ones are
// absorbed below this layer.
func (r *Runtime) Run(ctx context.Context) (ExitReason, error) {
	claims, err := api.ParseTicketUnverified(r.cfg.ExamTicket)
	if err != nil {
		return ExitUnauthenticated, fmt.Errorf("exam ticket: %w", err)
	}
	examID, err := uuid.Parse(claims.ExamID)
	if err != nil {
		return ExitUnauthenticated, fmt.Errorf("exam id in ticket: %w", err)
	}
	// When the deployment pins an exam id, a ticket minted for any other
	// exam is rejected before touching the server.
	if r.cfg.ExamID != "" && r.cfg.ExamID != claims.ExamID {
		return ExitUnauthenticated, fmt.Errorf("exam ticket is for exam %s, client is pinned to %s", claims.ExamID, r.cfg.ExamID)
	}

	// Interface wiring goes through explicit nil checks so a missing local
	// store degrades instead of hiding behind a typed-nil interface.
	var devStore identity.DeviceStore
	var reviewCache autosave.ReviewCache
	if r.store != nil {
		devStore = r.store
		reviewCache = r.store
	}

	resolver := identity.NewResolver(devStore, r.log)
	deviceID := resolver.DeviceID()
	tabID := resolver.TabID()

	store := remote.NewClient(r.cfg.ServerBaseURL, r.cfg.ExamTicket, r.cfg.RequestTimeout, r.log)

	content, err := store.GetExamContent(ctx, examID)
	if err != nil {
		return exitFor(err), err
	}

	sess, err := store.StartOrResumeSession(ctx, examID, model.StartSessionRequest{
		CandidateID: claims.CandidateID,
		DeviceID:    deviceID,
		TabID:       tabID,
		Metadata:    map[string]string{"client": "exstem-client"},
	})
	if err != nil {
		return exitFor(err), err
	}

	r.log.Info().
		Str("session_id", sess.ID.String()).
		Str("exam_id", examID.String()).
		Time("started_at", sess.StartedAt).
		Msg("Session started or resumed")

	if r.store != nil {
		if err := r.store.SetLastSessionID(examID.String(), claims.CandidateID, sess.ID.String()); err != nil {
			r.log.Warn().Err(err).Msg("Session id cache write failed")
		}
	}

	// Server-restored answers are the base; locally cached review markers
	// overlay them, and legacy nested last-position objects are flattened.
	cachedReview := map[string]string{}
	if r.store != nil {
		if cached, err := r.store.ReviewMarkers(examID.String(), claims.CandidateID); err == nil {
			cachedReview = cached
		}
	}
	sess.Answers = autosave.Merge(sess.Answers, cachedReview)

	ctrl := session.New(sess, content, r.log)
	r.Controller = ctrl

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	exitCh := make(chan ExitReason, 1)
	exit := func(reason ExitReason) {
		select {
		case exitCh <- reason:
		default:
		}
	}

	ch := channel.New(r.cfg.ChannelURL, ws.JoinRequest{
		ExamID:      examID.String(),
		CandidateID: claims.CandidateID,
		Role:        "candidate",
		DeviceID:    deviceID,
		TabID:       tabID,
	}, r.log)
	ch.OnTerminal(func(reason channel.TerminalReason, msg string) {
		// A takeover or suspension is a terminal disconnect, never retried:
		// no partial-UI state is safe to keep.
		switch reason {
		case channel.ReasonTakeover:
			exit(ExitDuplicateLogin)
		default:
			exit(ExitSuspended)
		}
	})
	if content.MonitoringEnabled {
		ch.OnLiveView(func() {
			r.log.Info().Msg("Live view requested by remote monitor")
		})
	}
	if err := ch.Start(runCtx); err != nil {
		// The channel reconnects on its own once up; only the very first
		// dial is fatal here.
		return exitFor(err), fmt.Errorf("channel dial: %w", err)
	}

	pipeline := autosave.New(ch, reviewCache, sess.ID, examID.String(), claims.CandidateID, r.cfg.AnswerDebounce, r.log)
	ctrl.AttachSink(pipeline)

	coordinator := submission.New(ctrl, pipeline, store, ch, r.trail(), sess.ID, examID.String(), claims.CandidateID, r.log)
	coordinator.OnSubmitted(func() { exit(ExitCompleted) })
	r.Coordinator = coordinator

	monitor := integrity.New(r.src, ch, ctrl, *sess, content.MonitoringEnabled, content.TabSwitchLimit, r.cfg.OfflineGrace, r.log)
	r.Monitor = monitor
	go monitor.Run(runCtx)

	cd := countdown.New(sess.StartedAt, time.Duration(content.DurationSeconds)*time.Second, func() {
		if err := coordinator.ForceSubmit(context.Background()); err != nil {
			r.log.Error().Err(err).Msg("Auto-submit failed")
			exit(ExitCompleted)
		}
	}, r.log)
	r.Countdown = cd
	go cd.Run(runCtx)

	// If the session was already terminal server-side there is nothing to
	// drive; land straight on the completed view.
	if sess.Status == model.SessionStatusCompleted {
		return ExitCompleted, nil
	}

	select {
	case <-ctx.Done():
		return ExitCancelled, ctx.Err()
	case reason := <-exitCh:
		return reason, nil
	}
}

func (r *Runtime) trail() submission.Trail {
	if r.store == nil {
		return nil
	}
	return r.store
}

// exitFor maps structural remote errors onto exit reasons. Anything unmapped
// (network failures, server errors) is transient, not a missing exam.
func exitFor(err error) ExitReason {
	switch {
	case errors.Is(err, remote.ErrNotFound):
		return ExitNotFound
	case errors.Is(err, remote.ErrUnauthenticated):
		return ExitUnauthenticated
	case errors.Is(err, remote.ErrConflict):
		return ExitDuplicateLogin
	case errors.Is(err, remote.ErrSuspended):
		return ExitSuspended
	default:
		return ExitUnavailable
	}
}
