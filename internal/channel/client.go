// Package channel maintains the bidirectional real-time connection to the
// exam gateway. Its lifecycle is an explicit state machine — connecting,
// connected, reconnecting, terminated — so the rule that a takeover must
// never auto-reconnect is a structural transition, not a scattered flag.
package channel

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
	ws "github.com/stemsi/exstem-client/internal/websocket"
)

// State is the channel lifecycle state.
type State string

const (
	StateConnecting   State = "CONNECTING"
	StateConnected    State = "CONNECTED"
	StateReconnecting State = "RECONNECTING"
	StateTerminated   State = "TERMINATED"
)

// TerminalReason distinguishes why the channel will never reconnect.
type TerminalReason string

const (
	// ReasonTakeover: a second device or tab claimed the same identity.
	ReasonTakeover TerminalReason = "DUPLICATE_LOGIN"
	// ReasonSuspended: administrative termination.
	ReasonSuspended TerminalReason = "SUSPENDED"
	// ReasonClosed: explicit client-side disconnect after final submission.
	ReasonClosed TerminalReason = "CLOSED"
)

// ErrNotConnected is returned for sends while the channel is down; the
// debounced pipeline absorbs it and the value goes out with a later write.
var ErrNotConnected = errors.New("channel: not connected")

// errTerminated rejects dials after the terminal transition.
var errTerminated = errors.New("channel: terminated")

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	pingInterval   = 30 * time.Second

	// maxPendingViolations bounds the replay queue for violation events
	// emitted while the connection is down.
	maxPendingViolations = 256
)

// Client is the reconnecting channel client.
type Client struct {
	url    string
	join   ws.JoinRequest
	dialer *websocket.Dialer
	log    zerolog.Logger

	onTerminal func(reason TerminalReason, msg string)
	onLiveView func()

	mu      sync.Mutex
	conn    *websocket.Conn
	state   State
	pending []ws.LogViolationRequest

	done chan struct{}
}

// New creates a channel client for the given gateway URL and join identity.
func New(url string, join ws.JoinRequest, log zerolog.Logger) *Client {
	join.Action = ws.ActionJoin
	return &Client{
		url:    url,
		join:   join,
		dialer: &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		log:    log.With().Str("component", "channel").Logger(),
		state:  StateConnecting,
		done:   make(chan struct{}),
	}
}

// OnTerminal registers the callback for terminal disconnects (takeover,
// suspension). Must be set before Start.
func (c *Client) OnTerminal(fn func(reason TerminalReason, msg string)) {
	c.onTerminal = fn
}

// OnLiveView registers the callback for the remote monitor's live-view
// command. Must be set before Start.
func (c *Client) OnLiveView(fn func()) {
	c.onLiveView = fn
}

// Start dials the gateway, sends the join message and launches the read and
// keepalive loops. The initial dial failure is returned to the caller;
// after that, transient drops reconnect automatically with backoff.
func (c *Client) Start(ctx context.Context) error {
	if err := c.dial(ctx); err != nil {
		return err
	}
	go c.run(ctx)
	go c.keepalive(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) error {
	if c.State() == StateTerminated {
		return errTerminated
	}

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	if err := ws.WriteTyped(conn, c.join); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	// The state machine may have gone terminal while this dial was in
	// flight; a terminated channel must never come back up.
	if c.state == StateTerminated {
		c.mu.Unlock()
		conn.Close()
		return errTerminated
	}
	c.conn = conn
	c.state = StateConnected
	queued := c.pending
	c.pending = nil
	c.mu.Unlock()

	c.log.Info().Str("exam_id", c.join.ExamID).Msg("Channel connected")
	c.replay(queued)
	return nil
}

// replay pushes violation events that were queued while the connection was
// down, in emission order. Events that still fail go back on the queue.
func (c *Client) replay(queued []ws.LogViolationRequest) {
	for i, req := range queued {
		if err := c.write(req); err != nil {
			c.mu.Lock()
			c.pending = append(queued[i:], c.pending...)
			c.mu.Unlock()
			c.log.Debug().Err(err).Int("remaining", len(queued)-i).Msg("Violation replay interrupted")
			return
		}
	}
	if len(queued) > 0 {
		c.log.Info().Int("count", len(queued)).Msg("Replayed queued violations")
	}
}

// run is the read loop. Read errors trigger reconnection unless the state
// machine already reached TERMINATED.
func (c *Client) run(ctx context.Context) {
	for {
		c.mu.Lock()
		conn, state := c.conn, c.state
		c.mu.Unlock()

		if state == StateTerminated {
			return
		}

		var env ws.ErrorResponse
		if err := ws.ReadJSON(conn, &env); err != nil {
			if !c.reconnect(ctx) {
				return
			}
			continue
		}

		switch env.Event {
		case ws.EventError:
			if reason, terminal := Classify(env.Error); terminal {
				c.log.Warn().Str("reason", string(reason)).Str("message", env.Error).Msg("Terminal channel error")
				c.terminate(reason, env.Error)
				return
			}
			c.log.Debug().Str("message", env.Error).Msg("Transient channel error")
		case ws.EventLiveView:
			if c.onLiveView != nil {
				c.onLiveView()
			}
		case ws.EventPong, ws.EventSuccess:
			// Acknowledgements carry no state.
		}
	}
}

// reconnect re-dials with exponential backoff. Returns false when the state
// machine went terminal (or the context ended) while backing off.
func (c *Client) reconnect(ctx context.Context) bool {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return false
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.state = StateReconnecting
	c.mu.Unlock()

	backoff := initialBackoff
	for {
		select {
		case <-ctx.Done():
			return false
		case <-c.done:
			return false
		case <-time.After(backoff):
		}

		if err := c.dial(ctx); err == nil {
			return true
		} else {
			c.log.Debug().Err(err).Dur("backoff", backoff).Msg("Reconnect attempt failed")
		}

		if backoff *= 2; backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

func (c *Client) keepalive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case <-ticker.C:
			c.write(ws.PingRequest{Action: ws.ActionPing})
		}
	}
}

func (c *Client) write(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateConnected || c.conn == nil {
		return ErrNotConnected
	}
	return ws.WriteTyped(c.conn, v)
}

// SaveAnswer pushes one answer entry. Implements autosave.RemoteSink.
func (c *Client) SaveAnswer(sessionID uuid.UUID, key, value string) error {
	return c.write(ws.SaveAnswerRequest{
		Action:    ws.ActionSaveAnswer,
		SessionID: sessionID.String(),
		Key:       key,
		Value:     value,
	})
}

// LogViolation appends one integrity event to the remote trail. Unlike
// answers, violations have no durable local overlay to replay from, so events
// that cannot be sent are queued and replayed on the next successful dial.
// The error return is reserved for the terminal state, where no replay can
// ever happen.
func (c *Client) LogViolation(ev model.ViolationEvent) error {
	req := ws.LogViolationRequest{
		Action:      ws.ActionLogViolation,
		SessionID:   ev.SessionID.String(),
		ExamID:      ev.ExamID.String(),
		CandidateID: ev.CandidateID,
		Type:        ev.Type,
		Message:     ev.Message,
		Evidence:    ev.Evidence,
		Timestamp:   ev.Timestamp,
	}
	if err := c.write(req); err != nil {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.state == StateTerminated {
			return err
		}
		if len(c.pending) >= maxPendingViolations {
			c.pending = c.pending[1:]
		}
		c.pending = append(c.pending, req)
	}
	return nil
}

// Terminate performs the explicit client-side terminal disconnect, used after
// final submission. No callback fires and no reconnect will ever happen.
func (c *Client) Terminate() {
	c.terminate(ReasonClosed, "")
}

func (c *Client) terminate(reason TerminalReason, msg string) {
	c.mu.Lock()
	if c.state == StateTerminated {
		c.mu.Unlock()
		return
	}
	c.state = StateTerminated
	conn := c.conn
	c.conn = nil
	close(c.done)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if reason != ReasonClosed && c.onTerminal != nil {
		c.onTerminal(reason, msg)
	}
}

// State returns the current lifecycle state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Classify matches an inbound error message against the terminal conditions.
// Takeover and suspension are terminal; anything else is transient.
func Classify(msg string) (TerminalReason, bool) {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "another device") || strings.Contains(lower, "duplicate"):
		return ReasonTakeover, true
	case strings.Contains(lower, "suspended") || strings.Contains(lower, "terminated"):
		return ReasonSuspended, true
	default:
		return "", false
	}
}
