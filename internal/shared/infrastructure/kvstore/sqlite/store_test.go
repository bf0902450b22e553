package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
)

func openMemory(t *testing.T, namespace string) kvstore.Store {
	t.Helper()
	s, err := Open(context.Background(), kvstore.Config{SQLitePath: ":memory:", Namespace: namespace})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_GetPutDelete(t *testing.T) {
	ctx := context.Background()
	s := openMemory(t, "test")

	_, err := s.Get(ctx, "products")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)

	require.NoError(t, s.Put(ctx, "products", "[]"))
	require.NoError(t, s.Put(ctx, "products", `[{"productId":"a"}]`))

	value, err := s.Get(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, `[{"productId":"a"}]`, value)

	require.NoError(t, s.Delete(ctx, "products"))
	_, err = s.Get(ctx, "products")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "store.db")
	cfg := kvstore.Config{SQLitePath: path, Namespace: "app"}

	s, err := Open(ctx, cfg)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "purchases", `[]`))
	require.NoError(t, s.Close())

	reopened, err := Open(ctx, cfg)
	require.NoError(t, err)
	defer reopened.Close()

	value, err := reopened.Get(ctx, "purchases")
	require.NoError(t, err)
	assert.Equal(t, "[]", value)

	other, err := Open(ctx, kvstore.Config{SQLitePath: path, Namespace: "other"})
	require.NoError(t, err)
	defer other.Close()
	_, err = other.Get(ctx, "purchases")
	assert.ErrorIs(t, err, kvstore.ErrNotFound, "namespaces are isolated")
}

func TestOpen_RegisteredWithFactory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := kvstore.Open(context.Background(), kvstore.Config{URL: "sqlite://" + path})
	require.NoError(t, err)
	defer s.Close()

	_, ok := s.(*Store)
	assert.True(t, ok)
}
