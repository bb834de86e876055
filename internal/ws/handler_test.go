package ws

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"goodwill_sniper/internal/logbus"
)

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func TestHandler_StateFirstThenReplayThenLive(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()
	bus.Log("info", "sniper started", nil)
	bus.Publish("state", map[string]any{"phase": "idle"})

	srv := httptest.NewServer(NewHandler(bus, nil))
	defer srv.Close()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var msg logbus.Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Type)
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "log", msg.Type)

	bus.Publish("notify", map[string]any{"title": "Bid placed"})
	for {
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == "notify" {
			break
		}
	}
}

func TestHandler_RejectsUnknownOrigin(t *testing.T) {
	bus := logbus.New(10)
	defer bus.Close()
	srv := httptest.NewServer(NewHandler(bus, []string{"http://localhost:3000"}))
	defer srv.Close()

	_, resp, err := dial(t, srv, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(t, srv, "http://LOCALHOST:3000")
	require.NoError(t, err)
	_ = conn.Close()
}
