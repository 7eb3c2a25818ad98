package identity

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-client/internal/localstore"
)

// DeviceStore persists the device identifier across runs.
type DeviceStore interface {
	DeviceID() (string, error)
	SetDeviceID(id string) error
}

// Resolver derives a stable device identifier (persisted for the lifetime of
// the profile) and a tab identifier scoped to this process. Identity
// resolution must never block exam flow: when persistence is unavailable the
// device identifier degrades to a fresh value per call.
type Resolver struct {
	store DeviceStore
	log   zerolog.Logger

	mu       sync.Mutex
	deviceID string
	tabID    string
	warned   bool
}

// NewResolver creates a Resolver. store may be nil (fully degraded mode).
func NewResolver(store DeviceStore, log zerolog.Logger) *Resolver {
	return &Resolver{
		store: store,
		log:   log.With().Str("component", "identity").Logger(),
		tabID: uuid.New().String(),
	}
}

// DeviceID returns the stable device identifier, generating and persisting it
// on first use. Idempotent once persisted.
func (r *Resolver) DeviceID() string {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.deviceID != "" {
		return r.deviceID
	}

	if r.store == nil {
		return r.degraded(errors.New("no device store"))
	}

	existing, err := r.store.DeviceID()
	if err == nil && existing != "" {
		r.deviceID = existing
		return existing
	}
	if err != nil && !errors.Is(err, localstore.ErrNotFound) {
		return r.degraded(err)
	}

	generated := uuid.New().String()
	if err := r.store.SetDeviceID(generated); err != nil {
		return r.degraded(err)
	}

	r.deviceID = generated
	return generated
}

// TabID returns the identifier for this tab/process lifetime. Idempotent.
func (r *Resolver) TabID() string {
	return r.tabID
}

// degraded returns a one-shot identifier without caching it, so each call
// regenerates until persistence recovers.
func (r *Resolver) degraded(err error) string {
	if !r.warned {
		r.log.Warn().Err(err).Msg("Device id persistence unavailable, degrading to per-call ids")
		r.warned = true
	}
	return uuid.New().String()
}
