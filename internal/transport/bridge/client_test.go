package bridge

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"chessbot/internal/transport"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeBridge struct {
	mu        sync.Mutex
	squares   map[string]string
	triggered []string
}

func (b *fakeBridge) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/endpoints/"):
		label := strings.TrimPrefix(r.URL.Path, "/endpoints/")
		handle, ok := b.squares[label]
		if !ok {
			http.NotFound(w, r)
			return
		}
		json.NewEncoder(w).Encode(EndpointResponse{Handle: handle})

	case r.Method == http.MethodPost && r.URL.Path == "/interactions":
		var req InteractionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if req.Handle == "stale" {
			w.WriteHeader(http.StatusConflict)
			json.NewEncoder(w).Encode(map[string]string{"error": "element detached", "code": "CONFLICT"})
			return
		}
		b.mu.Lock()
		b.triggered = append(b.triggered, req.Handle)
		b.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestResolveEndpoint(t *testing.T) {
	fb := &fakeBridge{squares: map[string]string{"e2": "node-12"}}
	srv := httptest.NewServer(fb)
	defer srv.Close()

	c := New(srv.URL+"/", zap.NewNop())

	h, ok := c.ResolveEndpoint("e2")
	require.True(t, ok)
	assert.Equal(t, transport.Handle("node-12"), h)

	_, ok = c.ResolveEndpoint("e4")
	assert.False(t, ok)
}

func TestResolveEndpointServerDown(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	_, ok := New(base, zap.NewNop()).ResolveEndpoint("e2")
	assert.False(t, ok)
}

func TestTriggerInteraction(t *testing.T) {
	fb := &fakeBridge{}
	srv := httptest.NewServer(fb)
	defer srv.Close()

	c := New(srv.URL, zap.NewNop())
	require.NoError(t, c.TriggerInteraction("node-12"))
	assert.Equal(t, []string{"node-12"}, fb.triggered)

	err := c.TriggerInteraction("stale")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "element detached")
}

// The HTTP client satisfies the surface capability
var _ transport.Surface = (*Client)(nil)
