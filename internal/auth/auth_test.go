package auth

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streakkeeper/internal/models"
	"streakkeeper/internal/storage"
)

func newStore(t *testing.T) *storage.StateStore {
	t.Helper()
	return storage.NewStateStore(filepath.Join(t.TempDir(), "state.json"), nil)
}

func TestFirstContactBindsAndOthersAreDenied(t *testing.T) {
	store := newStore(t)
	gate := NewGate(store, true, nil)
	st := store.Load()

	d, err := gate.Authorize(st, "111")
	require.NoError(t, err)
	assert.Equal(t, BindAndAllow, d)
	assert.Equal(t, "111", st.BoundOperatorID)
	assert.Equal(t, "111", store.Load().BoundOperatorID)

	d, err = gate.Authorize(st, "111")
	require.NoError(t, err)
	assert.Equal(t, Allowed, d)

	before := store.Load()
	d, err = gate.Authorize(st, "222")
	require.NoError(t, err)
	assert.Equal(t, Denied, d)
	assert.Equal(t, before, store.Load())
	assert.Equal(t, "111", st.BoundOperatorID)
}

func TestNoAutoBindDeniesEveryone(t *testing.T) {
	store := newStore(t)
	gate := NewGate(store, false, nil)
	st := store.Load()

	d, err := gate.Authorize(st, "111")
	require.NoError(t, err)
	assert.Equal(t, Denied, d)
	assert.False(t, store.Exists())
}

func TestBindingRaceWithAnotherProcess(t *testing.T) {
	store := newStore(t)
	gate := NewGate(store, true, nil)
	st := store.Load()

	// another process bound a different chat after st was loaded
	other := store.Load()
	other.BoundOperatorID = "999"
	require.NoError(t, store.Save(other))

	d, err := gate.Authorize(st, "111")
	require.NoError(t, err)
	assert.Equal(t, Denied, d)
	assert.Equal(t, "999", st.BoundOperatorID)
}

func TestPreconfigure(t *testing.T) {
	store := newStore(t)
	gate := NewGate(store, false, nil)
	st := store.Load()

	require.NoError(t, gate.Preconfigure(st, "555"))
	assert.Equal(t, "555", st.BoundOperatorID)

	require.NoError(t, gate.Preconfigure(st, "666"))
	assert.Equal(t, "555", store.Load().BoundOperatorID)

	d, err := gate.Authorize(st, "555")
	require.NoError(t, err)
	assert.Equal(t, Allowed, d)
}

func TestEmptyOperatorDenied(t *testing.T) {
	gate := NewGate(newStore(t), true, nil)
	d, err := gate.Authorize(models.DefaultState(), "")
	require.NoError(t, err)
	assert.Equal(t, Denied, d)
	assert.Equal(t, "denied", d.String())
}
