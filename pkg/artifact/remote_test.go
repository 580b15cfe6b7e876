package artifact

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modeldb-client/pkg/api"
	"modeldb-client/pkg/transport"
)

// presignServer issues URLs pointing back at itself and stores blobs in memory.
func presignServer(t *testing.T) (*httptest.Server, *int) {
	t.Helper()
	var mu sync.Mutex
	blobs := map[string][]byte{}
	puts := 0

	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		if r.URL.Path == api.PathGetURLForArtifact {
			var req api.GetURLRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			_ = json.NewEncoder(w).Encode(api.GetURLResponse{URL: srv.URL + "/blobs/" + req.StorageKey})
			return
		}
		key := strings.TrimPrefix(r.URL.Path, "/blobs/")
		switch r.Method {
		case http.MethodHead, http.MethodGet:
			blob, ok := blobs[key]
			if !ok {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			_, _ = w.Write(blob)
		case http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			blobs[key] = b
			puts++
		}
	}))
	return srv, &puts
}

func TestRemoteStore_RoundTrip(t *testing.T) {
	srv, puts := presignServer(t)
	defer srv.Close()

	c := NewClient(NewRemoteStore(transport.NewClient(srv.URL)))
	ctx := context.Background()

	res, err := c.Put(ctx, []byte("blob"))
	require.NoError(t, err)
	assert.True(t, res.Uploaded)

	again, err := c.Put(ctx, []byte("blob"))
	require.NoError(t, err)
	assert.False(t, again.Uploaded)
	assert.Equal(t, 1, *puts)

	got, err := c.Get(ctx, res.Key)
	require.NoError(t, err)
	assert.Equal(t, "blob", string(got))
}

func TestRemoteStore_ExistsFalseOnNotFound(t *testing.T) {
	srv, _ := presignServer(t)
	defer srv.Close()

	ok, err := NewRemoteStore(transport.NewClient(srv.URL)).Exists(context.Background(), StorageKey(Checksum(nil)))
	require.NoError(t, err)
	assert.False(t, ok)
}
