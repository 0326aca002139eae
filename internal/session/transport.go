package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/models"
	"github.com/creatorlive/broadcaster/internal/signaling"
)

// GatewayDialer opens the platform gateway WebSocket for a session and runs
// its read loop. TokenFunc supplies the bearer token, either the static
// platform token or one minted per session by the gateway token service.
type GatewayDialer struct {
	URL       string
	Purpose   string
	TokenFunc func(sess *models.StreamSession) (string, error)
	Logger    *zap.Logger
}

// Dial implements TransportDialer.
func (d *GatewayDialer) Dial(ctx context.Context, sess *models.StreamSession, onMessage func(signaling.Message)) (Transport, error) {
	token, err := d.TokenFunc(sess)
	if err != nil {
		return nil, err
	}
	ch, err := signaling.Dial(ctx, signaling.DialOptions{
		URL:     d.URL,
		Token:   token,
		Purpose: d.Purpose,
	}, d.Logger)
	if err != nil {
		return nil, err
	}
	go ch.Run(onMessage)
	return ch, nil
}
