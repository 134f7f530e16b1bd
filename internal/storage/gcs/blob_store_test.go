package gcs

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

const testBucket = "test-bucket"

func newTestStore(t *testing.T, handler http.Handler) *BlobStore {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := storage.NewClient(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	store, err := New(client, Config{Bucket: testBucket})
	require.NoError(t, err)
	return store
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "b"})
	require.Error(t, err)

	client, err := storage.NewClient(context.Background(), option.WithoutAuthentication())
	require.NoError(t, err)
	defer client.Close() //nolint:errcheck // test cleanup
	_, err = New(client, Config{})
	require.Error(t, err)
}

func TestPutObjectUploadsPDF(t *testing.T) {
	t.Parallel()

	key := "brochures/lidl-bg_bg_10.07.2025_16.07.2025_x.pdf"
	payload := "%PDF-1.7 brochure"

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Contains(t, r.URL.Path, fmt.Sprintf("/b/%s/o", testBucket))
		assert.Equal(t, key, r.URL.Query().Get("name"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Contains(t, string(body), payload)
		assert.Contains(t, string(body), `"contentType":"application/pdf"`)
		assert.Contains(t, string(body), `"cacheControl":"public, max-age=31536000"`)
		assert.Contains(t, string(body), `"crc32c"`)

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"name":%q,"bucket":%q}`, key, testBucket)
	}))

	uri, err := store.PutObject(context.Background(), key, "application/pdf", []byte(payload))
	require.NoError(t, err)
	assert.Equal(t, "gs://test-bucket/"+key, uri)
}

func TestPutObjectServerError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `{"error":{"code":403,"message":"denied"}}`)
	}))

	_, err := store.PutObject(context.Background(), "brochures/x.pdf", "application/pdf", []byte("%PDF"))
	require.Error(t, err)
}

func TestExists(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "application/json")
		if strings.HasSuffix(r.URL.Path, "present.pdf") {
			fmt.Fprintf(w, `{"name":"brochures/present.pdf","bucket":%q}`, testBucket)
			return
		}
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":404,"message":"No such object"}}`)
	}))

	uri, ok, err := store.Exists(context.Background(), "brochures/present.pdf")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "gs://test-bucket/brochures/present.pdf", uri)

	_, ok, err = store.Exists(context.Background(), "brochures/absent.pdf")
	require.NoError(t, err)
	assert.False(t, ok)

	_, _, err = store.Exists(context.Background(), "")
	require.Error(t, err)
}
