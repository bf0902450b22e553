package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/shared/infrastructure/kvstore"
)

func TestOpen_RequiresURL(t *testing.T) {
	_, err := Open(context.Background(), kvstore.Config{})
	assert.Error(t, err)
}

func TestStore_Integration(t *testing.T) {
	url := os.Getenv("BILLINGSIM_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("BILLINGSIM_TEST_POSTGRES_URL not set")
	}

	ctx := context.Background()
	s, err := kvstore.Open(ctx, kvstore.Config{URL: url, Namespace: t.Name()})
	require.NoError(t, err)
	defer s.Close()
	defer func() { _ = s.Delete(ctx, "products") }()

	require.NoError(t, s.Put(ctx, "products", "[]"))
	value, err := s.Get(ctx, "products")
	require.NoError(t, err)
	assert.Equal(t, "[]", value)

	require.NoError(t, s.Delete(ctx, "products"))
	_, err = s.Get(ctx, "products")
	assert.ErrorIs(t, err, kvstore.ErrNotFound)
}
