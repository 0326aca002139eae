// Package events mirrors session state to Redis pub/sub so companion
// processes (overlay renderers, local dashboards) can follow the broadcast
// with their own subscriber clients instead of touching the signaling channel.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/session"
)

const (
	channelPrefix  = "broadcast:"
	publishTimeout = 5 * time.Second
)

// Publisher is the slice of the redis client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// payload is the message published per snapshot.
type payload struct {
	Snapshot session.Snapshot `json:"snapshot"`
	At       int64            `json:"at"`
}

// Mirror publishes session snapshots to a per-session Redis channel.
type Mirror struct {
	pub    Publisher
	logger *zap.Logger
}

// NewMirror creates a session mirror.
func NewMirror(pub Publisher, logger *zap.Logger) *Mirror {
	return &Mirror{pub: pub, logger: logger}
}

// Handle is a session.UpdateHandler. Snapshots without a session id (idle,
// post-cleanup) go to the bare channel prefix so subscribers can observe
// teardown.
func (m *Mirror) Handle(snap session.Snapshot) {
	channel := channelPrefix + snap.SessionID
	body, err := json.Marshal(payload{Snapshot: snap, At: time.Now().Unix()})
	if err != nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := m.pub.Publish(ctx, channel, body).Err(); err != nil {
		m.logger.Debug("snapshot publish failed", zap.Error(err))
	}
}
