package events

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNATSPublisher(t *testing.T) {
	if testing.Short() {
		t.Skip("short")
	}
	url := os.Getenv("TEST_NATS_URL")
	if url == "" {
		t.Skip("TEST_NATS_URL not set; skipping integration test")
	}

	subject := "eckclock.test." + uuid.NewString()
	pub, err := ConnectNATS(url, subject)
	require.NoError(t, err)
	defer pub.Close()

	sub, err := nats.Connect(url)
	require.NoError(t, err)
	defer sub.Close()

	msgs := make(chan *nats.Msg, 1)
	s, err := sub.ChanSubscribe(subject, msgs)
	require.NoError(t, err)
	defer s.Unsubscribe()
	require.NoError(t, sub.Flush())

	ev := RunEvent{RunID: uuid.New(), Action: "sync_attendance", Status: "completed", Synced: 2, Total: 2}
	require.NoError(t, pub.NotifyRun(context.Background(), ev))

	select {
	case msg := <-msgs:
		var got RunEvent
		require.NoError(t, json.Unmarshal(msg.Data, &got))
		assert.Equal(t, ev.RunID, got.RunID)
		assert.Equal(t, 2, got.Synced)
	case <-time.After(5 * time.Second):
		t.Fatal("event not received")
	}
}
