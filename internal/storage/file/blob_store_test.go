package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketcart/internal/domain"
)

func TestBlobStore_RoundTrip(t *testing.T) {
	store, err := Open(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Get(ctx, "cart")
	require.ErrorIs(t, err, domain.ErrKeyNotFound)

	require.NoError(t, store.Put(ctx, "cart", []byte(`[{"id":1,"qty":2}]`)))
	require.NoError(t, store.Put(ctx, "cart", []byte(`[]`)))

	got, err := store.Get(ctx, "cart")
	require.NoError(t, err)
	assert.Equal(t, "[]", string(got))

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1, "временные файлы удаляются")
	assert.Equal(t, "cart.json", entries[0].Name())

	require.NoError(t, store.Delete(ctx, "cart"))
	require.NoError(t, store.Delete(ctx, "cart"))
	_, err = store.Get(ctx, "cart")
	assert.ErrorIs(t, err, domain.ErrKeyNotFound)
}

func TestBlobStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	first, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, "token", []byte(`"abc"`)))

	second, err := Open(dir)
	require.NoError(t, err)
	got, err := second.Get(ctx, "token")
	require.NoError(t, err)
	assert.Equal(t, `"abc"`, string(got))
}

func TestBlobStore_RejectsUnsafeKeys(t *testing.T) {
	store, err := Open(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape", "a/b"} {
		assert.ErrorIs(t, store.Put(context.Background(), key, nil), domain.ErrKeyRequired, key)
	}
}

func TestBlobStore_Ping(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	store, err := Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))

	require.NoError(t, os.RemoveAll(dir))
	assert.Error(t, store.Ping(context.Background()))
}

func TestOpen_RequiresDir(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}
