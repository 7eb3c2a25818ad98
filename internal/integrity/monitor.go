// Package integrity observes host-level signals (tab visibility, fullscreen
// state, network presence) and turns each transition into exactly one
// violation event on the channel. Signals arrive through the SignalSource
// capability interface, one implementation per host environment, so the rest
// of the runtime stays host-agnostic and unit-testable without a browser.
package integrity

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
)

// SignalKind enumerates host signals.
type SignalKind string

const (
	SignalVisibilityHidden  SignalKind = "VISIBILITY_HIDDEN"
	SignalVisibilityVisible SignalKind = "VISIBILITY_VISIBLE"
	SignalFullscreenEnter   SignalKind = "FULLSCREEN_ENTER"
	SignalFullscreenExit    SignalKind = "FULLSCREEN_EXIT"
	SignalNetworkUp         SignalKind = "NETWORK_UP"
	SignalNetworkDown       SignalKind = "NETWORK_DOWN"
)

// Signal is one host-level transition. Evidence (e.g. a frame snapshot) is
// supplied by an external detection collaborator and attached opaquely.
type Signal struct {
	Kind     SignalKind
	Evidence json.RawMessage
	At       time.Time
}

// SignalSource is the capability interface implemented per host environment.
type SignalSource interface {
	Signals() <-chan Signal
}

// Emitter receives the violation events, normally the channel client.
type Emitter interface {
	LogViolation(ev model.ViolationEvent) error
}

// SwitchRecorder persists the running tab-switch counters on the session,
// normally the session controller.
type SwitchRecorder interface {
	RecordTabSwitch(out bool) (in, out2 int)
	Completed() bool
}

// Monitor consumes signals and emits violations.
type Monitor struct {
	src      SignalSource
	emitter  Emitter
	recorder SwitchRecorder
	log      zerolog.Logger

	session model.Session

	// monitoring mirrors the exam's live-monitoring flag; when false,
	// evidence payloads are stripped from emitted events.
	monitoring bool

	// tabSwitchLimit of 0 disables the limit. Enforcement (forced
	// termination) is delegated to the remote collaborator; the client only
	// flags the condition.
	tabSwitchLimit  int
	onLimitExceeded func(switchesOut int)

	offlineGrace time.Duration

	mu                sync.Mutex
	fullscreenWarning bool
	offline           bool
	offlineTimer      *time.Timer
	limitFlagged      bool
}

// New creates a Monitor for one session. session carries the ids stamped on
// every violation event; monitoring is the exam's live-monitoring flag.
func New(src SignalSource, emitter Emitter, recorder SwitchRecorder, session model.Session, monitoring bool, tabSwitchLimit int, offlineGrace time.Duration, log zerolog.Logger) *Monitor {
	return &Monitor{
		src:            src,
		emitter:        emitter,
		recorder:       recorder,
		log:            log.With().Str("component", "integrity").Logger(),
		session:        session,
		monitoring:     monitoring,
		tabSwitchLimit: tabSwitchLimit,
		offlineGrace:   offlineGrace,
	}
}

// OnLimitExceeded registers the local flag callback for the tab-switch limit.
func (m *Monitor) OnLimitExceeded(fn func(switchesOut int)) {
	m.onLimitExceeded = fn
}

// Run consumes signals until the context ends or the source closes.
func (m *Monitor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case sig, ok := <-m.src.Signals():
			if !ok {
				return
			}
			m.handle(sig)
		}
	}
}

func (m *Monitor) handle(sig Signal) {
	switch sig.Kind {
	case SignalVisibilityHidden:
		_, out := m.recorder.RecordTabSwitch(true)
		m.emit(model.ViolationTabSwitchOut, "candidate left the exam tab", sig)
		m.checkLimit(out)

	case SignalVisibilityVisible:
		m.recorder.RecordTabSwitch(false)
		m.emit(model.ViolationTabSwitchIn, "candidate returned to the exam tab", sig)

	case SignalFullscreenExit:
		m.mu.Lock()
		m.fullscreenWarning = true
		m.mu.Unlock()
		m.emit(model.ViolationFullscreenExit, "document left fullscreen", sig)

	case SignalFullscreenEnter:
		m.mu.Lock()
		m.fullscreenWarning = false
		m.mu.Unlock()

	case SignalNetworkDown:
		m.scheduleOffline(sig)

	case SignalNetworkUp:
		m.cancelOffline()
	}
}

// scheduleOffline arms the delayed offline indicator so brief drops never
// surface to the candidate.
func (m *Monitor) scheduleOffline(sig Signal) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offlineTimer != nil || m.offline {
		return
	}
	m.offlineTimer = time.AfterFunc(m.offlineGrace, func() {
		m.mu.Lock()
		m.offline = true
		m.offlineTimer = nil
		m.mu.Unlock()
		m.emit(model.ViolationOffline, "network unreachable", sig)
	})
}

func (m *Monitor) cancelOffline() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.offlineTimer != nil {
		m.offlineTimer.Stop()
		m.offlineTimer = nil
	}
	m.offline = false
}

func (m *Monitor) checkLimit(switchesOut int) {
	if m.tabSwitchLimit <= 0 || switchesOut <= m.tabSwitchLimit {
		return
	}

	m.mu.Lock()
	already := m.limitFlagged
	m.limitFlagged = true
	m.mu.Unlock()

	if !already {
		m.log.Warn().Int("switches_out", switchesOut).Int("limit", m.tabSwitchLimit).Msg("Tab-switch limit exceeded")
		if m.onLimitExceeded != nil {
			m.onLimitExceeded(switchesOut)
		}
	}
}

func (m *Monitor) emit(t model.ViolationType, msg string, sig Signal) {
	at := sig.At
	if at.IsZero() {
		at = time.Now()
	}
	ev := model.ViolationEvent{
		SessionID:   m.session.ID,
		ExamID:      m.session.ExamID,
		CandidateID: m.session.CandidateID,
		Type:        t,
		Message:     msg,
		Evidence:    sig.Evidence,
		Timestamp:   at,
	}
	if !m.monitoring {
		// Captured evidence belongs to the live-monitoring layer; with
		// monitoring disabled only the bare event goes out.
		ev.Evidence = nil
	}
	if err := m.emitter.LogViolation(ev); err != nil {
		// The channel queues undeliverable events and replays them after
		// reconnect; an error here means the session went terminal.
		m.log.Debug().Err(err).Str("type", string(t)).Msg("Violation emit dropped")
	}
}

// FullscreenWarningActive reports whether the persistent fullscreen warning
// should show. Always false once the session is terminal.
func (m *Monitor) FullscreenWarningActive() bool {
	if m.recorder.Completed() {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fullscreenWarning
}

// Offline reports whether the debounced offline indicator is showing.
func (m *Monitor) Offline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.offline
}

// LimitFlagged reports whether the tab-switch limit was exceeded locally.
func (m *Monitor) LimitFlagged() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.limitFlagged
}
