package snapshot

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T, s Store) {
	ctx := context.Background()

	data, err := s.Load(ctx, "hello")
	require.NoError(t, err)
	assert.Nil(t, data, "missing snapshot loads as nil")

	require.NoError(t, s.Save(ctx, "hello", []byte(`{"a":1}`)))
	require.NoError(t, s.Save(ctx, "other", []byte(`{}`)))
	require.NoError(t, s.Save(ctx, "hello", []byte(`{"a":2}`)))

	data, err = s.Load(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))

	require.NoError(t, s.Delete(ctx, "hello"))
	require.NoError(t, s.Delete(ctx, "hello"), "deleting twice is fine")
	data, err = s.Load(ctx, "hello")
	require.NoError(t, err)
	assert.Nil(t, data)

	data, err = s.Load(ctx, "other")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	testStore(t, s)
	assert.Equal(t, 1, s.Len())

	buf := []byte("x")
	require.NoError(t, s.Save(context.Background(), "copy", buf))
	buf[0] = 'y'
	got, _ := s.Load(context.Background(), "copy")
	assert.Equal(t, "x", string(got), "Save copies its input")

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Save(context.Background(), "a", nil), ErrStoreClosed{})
	_, err := s.Load(context.Background(), "a")
	assert.ErrorIs(t, err, ErrStoreClosed{})
}

func TestBoltStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snapshots.db")
	s, err := OpenBolt(path)
	require.NoError(t, err)
	testStore(t, s)

	apps, err := s.Apps()
	require.NoError(t, err)
	assert.Equal(t, []string{"other"}, apps)
	require.NoError(t, s.Close())

	reopened, err := OpenBolt(path)
	require.NoError(t, err)
	defer reopened.Close()
	data, err := reopened.Load(context.Background(), "other")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data), "snapshots survive reopening")
}

func TestBoltStoreCanceledContext(t *testing.T) {
	s, err := OpenBolt(filepath.Join(t.TempDir(), "snapshots.db"))
	require.NoError(t, err)
	defer s.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, s.Save(ctx, "a", []byte("{}")), context.Canceled)
}

func TestEncodeDecode(t *testing.T) {
	now := time.Date(2024, 2, 29, 13, 5, 9, 0, time.UTC)
	data, err := Encode("hello", map[string]any{"input1": map[string]any{"value": "hi", "n": 3}}, now)
	require.NoError(t, err)

	snap, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, "hello", snap.App)
	assert.True(t, now.Equal(snap.SavedAt))
	assert.Equal(t, map[string]any{"input1": map[string]any{"value": "hi", "n": float64(3)}}, snap.State)

	empty, err := Encode("x", nil, now)
	require.NoError(t, err)
	snap, err = Decode(empty)
	require.NoError(t, err)
	assert.NotNil(t, snap.State)

	_, err = Decode([]byte("{"))
	assert.Error(t, err)
}
