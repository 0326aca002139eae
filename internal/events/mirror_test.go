package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/session"
)

type fakePublisher struct {
	mu       sync.Mutex
	err      error
	channels []string
	payloads [][]byte
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.channels = append(f.channels, channel)
	f.payloads = append(f.payloads, message.([]byte))
	cmd := redis.NewIntCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	}
	return cmd
}

func TestHandlePublishesSnapshot(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, zap.NewNop())

	m.Handle(session.Snapshot{
		Status:      session.StatusLive,
		SessionID:   "s1",
		ViewerCount: 3,
		Revenue:     500,
	})

	require.Equal(t, []string{"broadcast:s1"}, pub.channels)

	var p payload
	require.NoError(t, json.Unmarshal(pub.payloads[0], &p))
	require.Equal(t, session.StatusLive, p.Snapshot.Status)
	require.Equal(t, 3, p.Snapshot.ViewerCount)
	require.Equal(t, int64(500), p.Snapshot.Revenue)
	require.NotZero(t, p.At)
}

func TestHandleTeardownGoesToBareChannel(t *testing.T) {
	pub := &fakePublisher{}
	m := NewMirror(pub, zap.NewNop())

	m.Handle(session.Snapshot{Status: session.StatusEnded})

	require.Equal(t, []string{"broadcast:"}, pub.channels)
}

func TestHandlePublishFailureIsSwallowed(t *testing.T) {
	pub := &fakePublisher{err: errors.New("connection refused")}
	m := NewMirror(pub, zap.NewNop())

	m.Handle(session.Snapshot{Status: session.StatusLive, SessionID: "s1"})
	m.Handle(session.Snapshot{Status: session.StatusLive, SessionID: "s1"})

	require.Len(t, pub.channels, 2, "publish failures do not stop the mirror")
}
