// Package autosave is the offline-tolerant answer synchronization pipeline.
// Edits update the in-memory map synchronously (in the session controller)
// and reach the remote store through a debounced write per answer key: rapid
// repeated edits to the same question coalesce into one network write, edits
// to different questions schedule independently. The remote store is a
// last-write-wins map keyed by question id, so replaying a write on
// reconnect is a safe no-op.
package autosave

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/model"
)

// RemoteSink pushes one answer entry to the remote session store. Writes are
// fire-and-forget from the UI's perspective; transient failures are absorbed
// here and retried by the channel layer.
type RemoteSink interface {
	SaveAnswer(sessionID uuid.UUID, key, value string) error
}

// ReviewCache persists review markers locally so a refresh before the
// debounce fires does not lose them.
type ReviewCache interface {
	PutReviewMarker(examID, candidateID, key, value string) error
}

type pendingWrite struct {
	value string
	timer *time.Timer
}

// Pipeline buffers answer edits and flushes them debounced. One pending slot
// per key: the latest value plus its timer handle, never a set of
// uncoordinated timers.
type Pipeline struct {
	mu  sync.Mutex
	log zerolog.Logger

	sink  RemoteSink
	cache ReviewCache

	sessionID   uuid.UUID
	examID      string
	candidateID string
	debounce    time.Duration

	pending map[string]*pendingWrite
	closed  bool
}

// New creates a Pipeline. cache may be nil (no local review recovery).
func New(sink RemoteSink, cache ReviewCache, sessionID uuid.UUID, examID, candidateID string, debounce time.Duration, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		log:         log.With().Str("component", "autosave").Logger(),
		sink:        sink,
		cache:       cache,
		sessionID:   sessionID,
		examID:      examID,
		candidateID: candidateID,
		debounce:    debounce,
		pending:     make(map[string]*pendingWrite),
	}
}

// Queue schedules a debounced remote write for key. Review markers are
// additionally flushed synchronously to the local cache. Implements
// session.AnswerSink.
func (p *Pipeline) Queue(key, value string) {
	if _, ok := model.IsReviewKey(key); ok && p.cache != nil {
		if err := p.cache.PutReviewMarker(p.examID, p.candidateID, key, value); err != nil {
			p.log.Warn().Err(err).Str("key", key).Msg("Review cache write failed")
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}

	if pw, ok := p.pending[key]; ok {
		// Coalesce: keep the timer, replace the value. Last write wins.
		pw.value = value
		return
	}

	pw := &pendingWrite{value: value}
	pw.timer = time.AfterFunc(p.debounce, func() { p.fire(key) })
	p.pending[key] = pw
}

func (p *Pipeline) fire(key string) {
	p.mu.Lock()
	pw, ok := p.pending[key]
	if !ok {
		p.mu.Unlock()
		return
	}
	delete(p.pending, key)
	value := pw.value
	p.mu.Unlock()

	if err := p.sink.SaveAnswer(p.sessionID, key, value); err != nil {
		p.log.Debug().Err(err).Str("key", key).Msg("Deferred answer write failed")
	}
}

// FlushAll cancels every pending timer and synchronously pushes the full
// answer map. Used once, right before the terminal transition; best-effort —
// the first error is returned but every entry is attempted, because failing
// to let a candidate exit a timed exam is worse than a lost write.
func (p *Pipeline) FlushAll(answers map[string]string) error {
	p.mu.Lock()
	for key, pw := range p.pending {
		pw.timer.Stop()
		delete(p.pending, key)
	}
	p.mu.Unlock()

	var firstErr error
	for key, value := range answers {
		if err := p.sink.SaveAnswer(p.sessionID, key, value); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// PendingCount reports the number of keys with scheduled writes.
func (p *Pipeline) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close stops every pending timer. Queued values are dropped; callers flush
// first when they matter.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true
	for key, pw := range p.pending {
		pw.timer.Stop()
		delete(p.pending, key)
	}
}
