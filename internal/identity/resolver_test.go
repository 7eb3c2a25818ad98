package identity

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-client/internal/localstore"
)

type memDeviceStore struct {
	id      string
	getErr  error
	setErr  error
	setCall int
}

func (m *memDeviceStore) DeviceID() (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	if m.id == "" {
		return "", localstore.ErrNotFound
	}
	return m.id, nil
}

func (m *memDeviceStore) SetDeviceID(id string) error {
	m.setCall++
	if m.setErr != nil {
		return m.setErr
	}
	m.id = id
	return nil
}

func TestDeviceIDGeneratedOnceAndPersisted(t *testing.T) {
	store := &memDeviceStore{}
	r := NewResolver(store, zerolog.Nop())

	first := r.DeviceID()
	require.NotEmpty(t, first)
	_, err := uuid.Parse(first)
	require.NoError(t, err)

	assert.Equal(t, first, r.DeviceID(), "repeated calls return the cached id")
	assert.Equal(t, first, store.id)
	assert.Equal(t, 1, store.setCall)
}

func TestDeviceIDReusesPersistedValue(t *testing.T) {
	store := &memDeviceStore{id: "existing-device"}
	r := NewResolver(store, zerolog.Nop())

	assert.Equal(t, "existing-device", r.DeviceID())
	assert.Equal(t, 0, store.setCall)
}

func TestDeviceIDDegradesWithoutStore(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())

	first := r.DeviceID()
	second := r.DeviceID()
	assert.NotEmpty(t, first)
	assert.NotEqual(t, first, second, "degraded mode regenerates per call")
}

func TestDeviceIDDegradesOnStoreFailure(t *testing.T) {
	store := &memDeviceStore{getErr: errors.New("disk gone")}
	r := NewResolver(store, zerolog.Nop())

	assert.NotEqual(t, r.DeviceID(), r.DeviceID())
}

func TestDeviceIDDegradesWhenPersistFails(t *testing.T) {
	store := &memDeviceStore{setErr: errors.New("read-only")}
	r := NewResolver(store, zerolog.Nop())

	assert.NotEqual(t, r.DeviceID(), r.DeviceID())
}

func TestTabIDStableWithinProcess(t *testing.T) {
	r := NewResolver(nil, zerolog.Nop())
	assert.Equal(t, r.TabID(), r.TabID())

	other := NewResolver(nil, zerolog.Nop())
	assert.NotEqual(t, r.TabID(), other.TabID(), "each tab gets its own id")
}
