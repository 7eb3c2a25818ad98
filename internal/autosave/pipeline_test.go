package autosave

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-client/internal/model"
)

type fakeSink struct {
	mu     sync.Mutex
	writes []savedWrite
	err    error
}

type savedWrite struct {
	key   string
	value string
}

func (f *fakeSink) SaveAnswer(_ uuid.UUID, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, savedWrite{key, value})
	return f.err
}

func (f *fakeSink) snapshot() []savedWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]savedWrite(nil), f.writes...)
}

type fakeReviewCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func (f *fakeReviewCache) PutReviewMarker(_, _, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.entries == nil {
		f.entries = make(map[string]string)
	}
	f.entries[key] = value
	return nil
}

func newTestPipeline(sink RemoteSink, cache ReviewCache, debounce time.Duration) *Pipeline {
	return New(sink, cache, uuid.New(), "exam-1", "cand-1", debounce, zerolog.Nop())
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func TestRapidEditsCoalesceIntoOneWrite(t *testing.T) {
	sink := &fakeSink{}
	p := newTestPipeline(sink, nil, 50*time.Millisecond)
	defer p.Close()

	p.Queue("q1", "d")
	p.Queue("q1", "dr")
	p.Queue("q1", "draft")

	assert.Equal(t, 1, p.PendingCount())
	waitFor(t, func() bool { return len(sink.snapshot()) == 1 })

	got := sink.snapshot()
	require.Len(t, got, 1)
	assert.Equal(t, savedWrite{"q1", "draft"}, got[0], "only the final value reaches the wire")
	assert.Equal(t, 0, p.PendingCount())
}

func TestDistinctKeysScheduleIndependently(t *testing.T) {
	sink := &fakeSink{}
	p := newTestPipeline(sink, nil, 30*time.Millisecond)
	defer p.Close()

	p.Queue("q1", "one")
	p.Queue("q2", "two")
	assert.Equal(t, 2, p.PendingCount())

	waitFor(t, func() bool { return len(sink.snapshot()) == 2 })
	keys := map[string]string{}
	for _, w := range sink.snapshot() {
		keys[w.key] = w.value
	}
	assert.Equal(t, map[string]string{"q1": "one", "q2": "two"}, keys)
}

func TestReviewMarkersHitLocalCacheSynchronously(t *testing.T) {
	sink := &fakeSink{}
	cache := &fakeReviewCache{}
	p := newTestPipeline(sink, cache, time.Hour)
	defer p.Close()

	key := model.ReviewKey("q1")
	p.Queue(key, model.MarkerTrue)

	// Cache write happens before any debounce fires.
	cache.mu.Lock()
	assert.Equal(t, model.MarkerTrue, cache.entries[key])
	cache.mu.Unlock()
	assert.Empty(t, sink.snapshot())
}

func TestFlushAllCancelsPendingAndPushesEverything(t *testing.T) {
	sink := &fakeSink{}
	p := newTestPipeline(sink, nil, time.Hour)
	defer p.Close()

	p.Queue("q1", "stale")
	answers := map[string]string{"q1": "final", "q2": "two"}

	require.NoError(t, p.FlushAll(answers))
	assert.Equal(t, 0, p.PendingCount())

	got := map[string]string{}
	for _, w := range sink.snapshot() {
		got[w.key] = w.value
	}
	assert.Equal(t, answers, got, "flush pushes the map, not the stale pending values")
}

func TestFlushAllReturnsFirstErrorButAttemptsAll(t *testing.T) {
	sink := &fakeSink{err: errors.New("down")}
	p := newTestPipeline(sink, nil, time.Hour)
	defer p.Close()

	err := p.FlushAll(map[string]string{"q1": "a", "q2": "b"})
	assert.Error(t, err)
	assert.Len(t, sink.snapshot(), 2)
}

func TestCloseDropsQueuedWrites(t *testing.T) {
	sink := &fakeSink{}
	p := newTestPipeline(sink, nil, 20*time.Millisecond)

	p.Queue("q1", "v")
	p.Close()

	time.Sleep(60 * time.Millisecond)
	assert.Empty(t, sink.snapshot())
	p.Queue("q2", "late")
	assert.Equal(t, 0, p.PendingCount())
}

func TestMergeOverlaysLocalReviewMarkers(t *testing.T) {
	server := map[string]string{
		"q1":                    "answer",
		model.ReviewKey("q1"):   "false",
		model.SubmittedKey("q1"): model.MarkerTrue,
	}
	local := map[string]string{model.ReviewKey("q1"): model.MarkerTrue}

	out := Merge(server, local)
	assert.Equal(t, model.MarkerTrue, out[model.ReviewKey("q1")], "local review marker wins")
	assert.Equal(t, "answer", out["q1"])
	assert.Equal(t, "false", server[model.ReviewKey("q1")], "inputs are not mutated")
}

func TestMergeFlattensLegacyPosition(t *testing.T) {
	server := map[string]string{
		keyLegacyLastPosition: `{"section_id":"sec-1","question_id":"q-7"}`,
	}

	out := Merge(server, nil)
	assert.Equal(t, "sec-1", out[keyLastSectionID])
	assert.Equal(t, "q-7", out[keyLastQuestionID])
	assert.NotContains(t, out, keyLegacyLastPosition)
}

func TestMergeKeepsExplicitPositionOverLegacy(t *testing.T) {
	server := map[string]string{
		keyLegacyLastPosition: `{"section_id":"old-sec","question_id":"old-q"}`,
		keyLastSectionID:      "new-sec",
		keyLastQuestionID:     "new-q",
	}

	out := Merge(server, nil)
	assert.Equal(t, "new-sec", out[keyLastSectionID])
	assert.Equal(t, "new-q", out[keyLastQuestionID])
}

func TestMergeIgnoresMalformedLegacyPosition(t *testing.T) {
	out := Merge(map[string]string{keyLegacyLastPosition: "not json"}, nil)
	assert.NotContains(t, out, keyLegacyLastPosition)
	assert.NotContains(t, out, keyLastSectionID)
}
