package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xelth-com/eckclockgo/internal/events"
)

func dial(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readRun(t *testing.T, conn *websocket.Conn) (runMessage, error) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(300 * time.Millisecond))
	var msg runMessage
	_, data, err := conn.ReadMessage()
	if err != nil {
		return msg, err
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg, nil
}

func TestHubBroadcastsRuns(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	ev := events.RunEvent{RunID: uuid.New(), DeviceID: uuid.New(), Action: "sync_attendance", Status: "completed", Synced: 2}
	require.NoError(t, hub.NotifyRun(ctx, ev))

	msg, err := readRun(t, conn)
	require.NoError(t, err)
	assert.Equal(t, "SYNC_FINISHED", msg.Type)
	assert.Equal(t, ev.RunID, msg.Run.RunID)
	assert.Equal(t, 2, msg.Run.Synced)
}

func TestHubSubscriptionFilters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn := dial(t, hub)
	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	watched := uuid.New()
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "SUBSCRIBE", "deviceId": watched.String(), "msgId": "1"}))

	var ack map[string]string
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "ACK", ack["type"])

	require.NoError(t, hub.NotifyRun(ctx, events.RunEvent{DeviceID: uuid.New(), Action: "sync_users"}))
	require.NoError(t, hub.NotifyRun(ctx, events.RunEvent{DeviceID: watched, Action: "test_connection"}))

	msg, err := readRun(t, conn)
	require.NoError(t, err)
	assert.Equal(t, watched, msg.Run.DeviceID, "events for other devices are filtered out")
}

func TestHubRejectsBadSubscription(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	hub := NewHub()
	go hub.Run(ctx)

	conn := dial(t, hub)
	require.NoError(t, conn.WriteJSON(map[string]string{"type": "SUBSCRIBE", "deviceId": "nope"}))

	var reply map[string]string
	conn.SetReadDeadline(time.Now().Add(time.Second))
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "ERROR", reply["type"])
}
