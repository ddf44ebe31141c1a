package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wireEvent struct {
	Type      EventType       `json:"type"`
	RequestID string          `json:"request_id"`
	Data      json.RawMessage `json:"data"`
}

func testConfig() config.WebSocketConfig {
	cfg := config.GetDefaults().WebSocket
	cfg.Username = "admin"
	cfg.Password = "secret"
	return cfg
}

func startHub(t *testing.T, cfg config.WebSocketConfig) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(cfg, logger.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWebSocket))
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, user, pass string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	header := http.Header{}
	if user != "" {
		header.Set("Authorization", "Basic "+base64.StdEncoding.EncodeToString([]byte(user+":"+pass)))
	}
	return websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
}

func connect(t *testing.T, hub *Hub, srv *httptest.Server, wantActive int64) *websocket.Conn {
	t.Helper()
	conn, _, err := dial(t, srv, "admin", "secret")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool {
		return hub.GetStats().ActiveConnections == wantActive
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) wireEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev wireEvent
	require.NoError(t, conn.ReadJSON(&ev))
	return ev
}

func TestHandleWebSocketRequiresCredentials(t *testing.T) {
	_, srv := startHub(t, testConfig())

	_, resp, err := dial(t, srv, "", "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	_, resp, err = dial(t, srv, "admin", "wrong")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBroadcastRedaction(t *testing.T) {
	hub, srv := startHub(t, testConfig())
	conn := connect(t, hub, srv, 1)

	hub.BroadcastRedaction(RedactionEvent{
		RequestID:     "req-1",
		Source:        "text",
		Mode:          "placeholder",
		Counts:        map[string]int{"EMAIL": 1, "NAME": 1},
		TotalEntities: 2,
	})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeRedaction, ev.Type)
	assert.Equal(t, "req-1", ev.RequestID)

	var data RedactionEvent
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, 2, data.TotalEntities)
	assert.Equal(t, map[string]int{"EMAIL": 1, "NAME": 1}, data.Counts)
}

func TestConnectionEventsReachOtherClients(t *testing.T) {
	hub, srv := startHub(t, testConfig())
	first := connect(t, hub, srv, 1)
	connect(t, hub, srv, 2)

	ev := readEvent(t, first)
	assert.Equal(t, EventTypeConnection, ev.Type)

	var data ConnectionEvent
	require.NoError(t, json.Unmarshal(ev.Data, &data))
	assert.Equal(t, "connected", data.Action)
}

func TestSubscriptionFiltersEvents(t *testing.T) {
	hub, srv := startHub(t, testConfig())
	conn := connect(t, hub, srv, 1)

	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"type": "subscribe",
		"data": map[string]interface{}{
			"events": []string{"redaction"},
			"filter": map[string]interface{}{"sources": []string{"file"}},
		},
	}))
	assert.Equal(t, EventTypeSubscribed, readEvent(t, conn).Type)

	hub.BroadcastSystemStatus(SystemStatusEvent{Status: "healthy"})
	hub.BroadcastRedaction(RedactionEvent{RequestID: "from-text", Source: "text"})
	hub.BroadcastRedaction(RedactionEvent{RequestID: "from-file", Source: "file"})

	ev := readEvent(t, conn)
	assert.Equal(t, EventTypeRedaction, ev.Type)
	assert.Equal(t, "from-file", ev.RequestID)
}

func TestPingMessage(t *testing.T) {
	hub, srv := startHub(t, testConfig())
	conn := connect(t, hub, srv, 1)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "ping"}))
	assert.Equal(t, EventTypePong, readEvent(t, conn).Type)
}

func TestDisabledEventTypesAreNotQueued(t *testing.T) {
	cfg := testConfig()
	cfg.Events.BroadcastRedactions = false
	hub := NewHub(cfg, logger.NewNop())

	hub.BroadcastRedaction(RedactionEvent{RequestID: "x"})
	assert.Len(t, hub.broadcast, 0)

	hub.BroadcastEvent(Event{Type: "unknown"})
	assert.Len(t, hub.broadcast, 0)
}

func TestBroadcastNeverBlocks(t *testing.T) {
	hub := NewHub(testConfig(), logger.NewNop())

	for i := 0; i < sendBufferSize+10; i++ {
		hub.BroadcastSystemStatus(SystemStatusEvent{Status: "healthy"})
	}
	assert.Equal(t, int64(10), hub.GetStats().DroppedEvents)
}

func TestApplyEventFilter(t *testing.T) {
	ev := Event{Type: EventTypeRedaction, Data: RedactionEvent{Source: "batch", TotalEntities: 3}}

	assert.True(t, applyEventFilter(&EventFilter{}, ev))
	assert.True(t, applyEventFilter(&EventFilter{Sources: []string{"batch"}, MinEntities: 3}, ev))
	assert.False(t, applyEventFilter(&EventFilter{MinEntities: 4}, ev))
	assert.False(t, applyEventFilter(&EventFilter{Sources: []string{"text"}}, ev))
	assert.True(t, applyEventFilter(&EventFilter{MinEntities: 4}, Event{Type: EventTypeSystemStatus, Data: SystemStatusEvent{}}))
}

func TestHubStopsOnCancel(t *testing.T) {
	hub, srv := startHub(t, testConfig())
	ctx, cancel := context.WithCancel(context.Background())
	other := NewHub(testConfig(), logger.NewNop())
	go other.Run(ctx)
	cancel()

	select {
	case <-other.done:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	// the running hub is unaffected
	connect(t, hub, srv, 1)
}
