package archive

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exerciseArchive(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	data := []byte("sealed payload bytes")
	handle, err := s.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, HandleFor(data), handle)

	// Idempotent by content addressing.
	again, err := s.Store(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, handle, again)

	got, err := s.Retrieve(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	ok, err := s.Exists(ctx, handle)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Exists(ctx, HandleFor([]byte("something else")))
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Retrieve(ctx, "not-a-handle")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	exerciseArchive(t, NewMemoryStore())
}

func TestFileStore(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	exerciseArchive(t, s)
}

func TestSealRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}

	plaintext := []byte("my last will and testament")
	sealed, err := Seal(key, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(sealed), "testament")

	opened, err := Open(key, sealed)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestOpenRejectsWrongKey(t *testing.T) {
	key := make([]byte, 32)
	sealed, err := Seal(key, []byte("secret"))
	require.NoError(t, err)

	wrong := make([]byte, 32)
	wrong[0] = 1
	_, err = Open(wrong, sealed)
	assert.Error(t, err)
}

func TestFactoryDefaultsToMemory(t *testing.T) {
	s, err := New(context.Background(), Config{})
	require.NoError(t, err)
	_, ok := s.(*MemoryStore)
	assert.True(t, ok)
}
