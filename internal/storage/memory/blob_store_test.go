package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlobStorePutObjectCopiesData(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	payload := []byte("%PDF-1.7")
	uri, err := store.PutObject(context.Background(), "brochures/a.pdf", "application/pdf", payload)
	require.NoError(t, err)
	assert.Equal(t, "memory://brochures/a.pdf", uri)

	payload[0] = 'X'
	stored, contentType, ok := store.Object("brochures/a.pdf")
	require.True(t, ok)
	assert.Equal(t, "%PDF-1.7", string(stored))
	assert.Equal(t, "application/pdf", contentType)
}

func TestBlobStoreExists(t *testing.T) {
	t.Parallel()

	store := NewBlobStore()
	ctx := context.Background()
	_, ok, err := store.Exists(ctx, "brochures/a.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.PutObject(ctx, "brochures/a.pdf", "application/pdf", []byte("x"))
	require.NoError(t, err)
	uri, ok, err := store.Exists(ctx, "brochures/a.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "memory://brochures/a.pdf", uri)
	assert.Equal(t, 1, store.Len())

	_, err = store.PutObject(ctx, " ", "application/pdf", []byte("x"))
	require.Error(t, err)
}
