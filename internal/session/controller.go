// Package session implements the broadcaster-side stream session state
// machine: it owns local media capture, drives the session registry and the
// signaling channel through the lifecycle, folds incoming events into
// session counters, and routes negotiation messages to the peer manager.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/media"
	"github.com/creatorlive/broadcaster/internal/models"
	"github.com/creatorlive/broadcaster/internal/peer"
	"github.com/creatorlive/broadcaster/internal/signaling"
)

const (
	// DefaultGiftOverlayDuration is how long the gift overlay stays visible.
	// A new gift restarts the timer; gifts are not queued for sequential display.
	DefaultGiftOverlayDuration = 5 * time.Second

	// DefaultAnalyticsPollInterval is how often the registry analytics
	// endpoint is polled while live.
	DefaultAnalyticsPollInterval = 5 * time.Second

	// RoleHost identifies the broadcaster on the signaling channel.
	RoleHost = "host"
)

// Registry is the session registry surface the controller depends on.
type Registry interface {
	CreateSession(ctx context.Context, cfg models.StreamConfig) (*models.StreamSession, error)
	StartSession(ctx context.Context, sessionID string) error
	EndSession(ctx context.Context, sessionID string) error
	StreamAnalytics(ctx context.Context, streamID string) (*models.AnalyticsSnapshot, error)
}

// Transport is an open signaling channel.
type Transport interface {
	Send(msg signaling.Message) error
	Close() error
}

// TransportDialer opens the signaling channel for a created session and
// delivers incoming messages, in arrival order, to onMessage.
type TransportDialer interface {
	Dial(ctx context.Context, sess *models.StreamSession, onMessage func(signaling.Message)) (Transport, error)
}

// PeerManager is the per-viewer negotiation surface.
type PeerManager interface {
	AttachTracks(tracks []media.Track)
	HandleOffer(viewerID string, offer webrtc.SessionDescription)
	HandleAnswer(viewerID string, answer webrtc.SessionDescription)
	HandleICECandidate(viewerID string, candidate webrtc.ICECandidateInit)
	Close(viewerID string)
	CloseAll()
	Len() int
}

// PeerManagerFactory builds a peer manager for one session.
type PeerManagerFactory func(cfg webrtc.Configuration, sender peer.Sender, logger *zap.Logger) PeerManager

// Snapshot is the presentation-facing view of the session.
type Snapshot struct {
	Status            Status          `json:"status"`
	SessionID         string          `json:"sessionId,omitempty"`
	StreamID          string          `json:"streamId,omitempty"`
	ViewerCount       int             `json:"viewerCount"`
	Revenue           int64           `json:"revenue"`
	Engagement        float64         `json:"engagement,omitempty"`
	GiftVisible       bool            `json:"giftVisible"`
	LastGift          *models.Gift    `json:"lastGift,omitempty"`
	PendingCoStars    []models.CoStar `json:"pendingCoStars,omitempty"`
	ActiveCoStars     []models.CoStar `json:"activeCoStars,omitempty"`
	ViewerConnections int             `json:"viewerConnections"`
}

// UpdateHandler receives a snapshot after every observable state change.
type UpdateHandler func(Snapshot)

// Options configure a Controller. Registry, Dialer and Capturer are required;
// Peers defaults to the pion-backed manager.
type Options struct {
	Registry              Registry
	Dialer                TransportDialer
	Capturer              media.Capturer
	Peers                 PeerManagerFactory
	Logger                *zap.Logger
	GiftOverlayDuration   time.Duration
	AnalyticsPollInterval time.Duration
}

// Controller is the stream session state machine. Lifecycle calls are
// serialized; event dispatch and the analytics poller run on their own
// goroutines and synchronize on the state mutex.
type Controller struct {
	registry        Registry
	dialer          TransportDialer
	capturer        media.Capturer
	newPeers        PeerManagerFactory
	logger          *zap.Logger
	overlayDuration time.Duration
	pollInterval    time.Duration

	lifecycleMu sync.Mutex // serializes Create / GoLive / End

	mu          sync.Mutex
	status      Status
	sess        *models.StreamSession
	tracks      []media.Track
	transport   Transport
	peers       PeerManager
	counters    models.Counters
	engagement  float64
	giftVisible bool
	lastGift    *models.Gift
	giftTimer   *time.Timer
	pending     []models.CoStar
	active      []models.CoStar
	pollCancel  context.CancelFunc
	onUpdate    UpdateHandler
}

// NewController creates an idle controller.
func NewController(opts Options) *Controller {
	c := &Controller{
		registry:        opts.Registry,
		dialer:          opts.Dialer,
		capturer:        opts.Capturer,
		newPeers:        opts.Peers,
		logger:          opts.Logger,
		overlayDuration: opts.GiftOverlayDuration,
		pollInterval:    opts.AnalyticsPollInterval,
		status:          StatusIdle,
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.overlayDuration <= 0 {
		c.overlayDuration = DefaultGiftOverlayDuration
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultAnalyticsPollInterval
	}
	if c.newPeers == nil {
		c.newPeers = func(cfg webrtc.Configuration, sender peer.Sender, logger *zap.Logger) PeerManager {
			return peer.NewManager(cfg, sender, logger)
		}
	}
	return c
}

// SetUpdateHandler registers the presentation callback.
func (c *Controller) SetUpdateHandler(h UpdateHandler) {
	c.mu.Lock()
	c.onUpdate = h
	c.mu.Unlock()
}

// Create acquires local media, registers the session and opens the signaling
// channel. Capture denial is fatal and happens before any registry call; a
// registry failure releases capture and opens no channel.
func (c *Controller) Create(ctx context.Context, cfg models.StreamConfig) (*models.StreamSession, error) {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if !c.status.CanTransition(StatusWaiting) {
		status := c.status
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: create from %s", ErrInvalidTransition, status)
	}
	c.mu.Unlock()

	tracks, err := c.capturer.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire media: %w", err)
	}

	sess, err := c.registry.CreateSession(ctx, cfg)
	if err != nil {
		stopTracks(tracks)
		return nil, err
	}

	peers := c.newPeers(peer.Configuration(sess.ICEServers), &transportSender{c: c}, c.logger)
	peers.AttachTracks(tracks)

	transport, err := c.dialer.Dial(ctx, sess, c.dispatch)
	if err != nil {
		stopTracks(tracks)
		if endErr := c.registry.EndSession(ctx, sess.SessionID); endErr != nil {
			c.logger.Warn("end session after dial failure", zap.Error(endErr))
		}
		return nil, fmt.Errorf("open signaling channel: %w", err)
	}

	join, err := signaling.NewMessage(signaling.MessageJoinStream, signaling.JoinPayload{
		SessionID: sess.SessionID,
		Role:      RoleHost,
	})
	if err == nil {
		err = transport.Send(join)
	}
	if err != nil {
		c.logger.Warn("join_stream send failed", zap.Error(err))
	}

	c.mu.Lock()
	c.status = StatusWaiting
	c.sess = sess
	c.tracks = tracks
	c.transport = transport
	c.peers = peers
	c.counters = models.Counters{}
	c.engagement = 0
	c.pending = nil
	c.active = nil
	c.mu.Unlock()

	c.notify()
	return sess, nil
}

// GoLive transitions the session to live. A registry failure leaves the
// state at waiting.
func (c *Controller) GoLive(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.status != StatusWaiting || c.sess == nil {
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: go live from %s", ErrInvalidTransition, status)
	}
	sessionID := c.sess.SessionID
	streamID := c.sess.StreamID
	c.mu.Unlock()

	if err := c.registry.StartSession(ctx, sessionID); err != nil {
		return err
	}

	pollCtx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.status = StatusLive
	c.pollCancel = cancel
	c.mu.Unlock()
	go c.pollAnalytics(pollCtx, streamID)

	c.notify()
	return nil
}

// End ends the backend session and performs full local cleanup. Cleanup
// always runs, even when the registry call fails or a negotiation is
// mid-flight; the registry error is returned afterwards for surfacing.
func (c *Controller) End(ctx context.Context) error {
	c.lifecycleMu.Lock()
	defer c.lifecycleMu.Unlock()

	c.mu.Lock()
	if c.status != StatusWaiting && c.status != StatusLive {
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("%w: end from %s", ErrInvalidTransition, status)
	}
	sessionID := ""
	if c.sess != nil {
		sessionID = c.sess.SessionID
	}
	c.mu.Unlock()

	var endErr error
	if sessionID != "" {
		if endErr = c.registry.EndSession(ctx, sessionID); endErr != nil {
			c.logger.Warn("end session call failed, running local cleanup anyway",
				zap.String("session_id", sessionID), zap.Error(endErr))
		}
	}

	c.cleanup()
	c.notify()
	return endErr
}

// AcceptCoStar moves a pending co-star request to the active list and
// notifies the backend over the signaling channel.
func (c *Controller) AcceptCoStar(id string) error {
	c.mu.Lock()
	idx := -1
	for i, cs := range c.pending {
		if cs.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return fmt.Errorf("no pending co-star request %q", id)
	}
	cs := c.pending[idx]
	c.pending = append(c.pending[:idx], c.pending[idx+1:]...)
	c.active = append(c.active, cs)
	transport := c.transport
	c.mu.Unlock()

	if transport != nil {
		msg, err := signaling.NewMessage(signaling.MessageCoStarAccept, signaling.CoStarPayload{CoStar: cs})
		if err == nil {
			err = transport.Send(msg)
		}
		if err != nil {
			c.logger.Warn("co_star_accept send failed", zap.String("co_star_id", id), zap.Error(err))
		}
	}

	c.notify()
	return nil
}

// SetTrackEnabled mutes or unmutes every local track of the given kind.
// The mutation is visible to all connected viewers at once.
func (c *Controller) SetTrackEnabled(kind webrtc.RTPCodecType, enabled bool) error {
	c.mu.Lock()
	tracks := c.tracks
	c.mu.Unlock()

	found := false
	for _, t := range tracks {
		if t.Kind() == kind {
			t.SetEnabled(enabled)
			found = true
		}
	}
	if !found {
		return fmt.Errorf("no %s track captured", kind)
	}
	c.notify()
	return nil
}

// Snapshot returns the current presentation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	snap := Snapshot{
		Status:         c.status,
		ViewerCount:    c.counters.ViewerCount,
		Revenue:        c.counters.Revenue,
		Engagement:     c.engagement,
		GiftVisible:    c.giftVisible,
		LastGift:       c.lastGift,
		PendingCoStars: append([]models.CoStar(nil), c.pending...),
		ActiveCoStars:  append([]models.CoStar(nil), c.active...),
	}
	if c.sess != nil {
		snap.SessionID = c.sess.SessionID
		snap.StreamID = c.sess.StreamID
	}
	if c.peers != nil {
		snap.ViewerConnections = c.peers.Len()
	}
	return snap
}

func (c *Controller) notify() {
	c.mu.Lock()
	h := c.onUpdate
	snap := c.snapshotLocked()
	c.mu.Unlock()
	if h != nil {
		h(snap)
	}
}

func (c *Controller) cleanup() {
	c.mu.Lock()
	if c.pollCancel != nil {
		c.pollCancel()
		c.pollCancel = nil
	}
	if c.giftTimer != nil {
		c.giftTimer.Stop()
		c.giftTimer = nil
	}
	tracks := c.tracks
	transport := c.transport
	peers := c.peers
	c.tracks = nil
	c.transport = nil
	c.peers = nil
	c.sess = nil
	c.counters = models.Counters{}
	c.engagement = 0
	c.giftVisible = false
	c.lastGift = nil
	c.pending = nil
	c.active = nil
	c.status = StatusEnded
	c.mu.Unlock()

	stopTracks(tracks)
	if peers != nil {
		peers.CloseAll()
	}
	if transport != nil {
		_ = transport.Close()
	}
}

func stopTracks(tracks []media.Track) {
	for _, t := range tracks {
		t.Stop()
	}
}

// pollAnalytics periodically fetches the authoritative counter snapshot
// while the session is live. A snapshot always overwrites the incremental
// counters; when a poll response races a fresher incremental event the last
// arrival wins and the next poll corrects it.
func (c *Controller) pollAnalytics(ctx context.Context, streamID string) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reqCtx, cancel := context.WithTimeout(ctx, c.pollInterval)
			snap, err := c.registry.StreamAnalytics(reqCtx, streamID)
			cancel()
			if err != nil {
				c.logger.Debug("analytics poll failed", zap.String("stream_id", streamID), zap.Error(err))
				continue
			}
			c.applyAnalytics(*snap)
		}
	}
}

// transportSender adapts the controller's signaling transport to the peer
// manager's Sender.
type transportSender struct {
	c *Controller
}

func (s *transportSender) SendAnswer(viewerID string, answer webrtc.SessionDescription) error {
	msg, err := signaling.NewMessage(signaling.MessageAnswer, signaling.AnswerPayload{
		ViewerID: viewerID,
		Answer:   answer,
	})
	if err != nil {
		return err
	}
	return s.send(msg)
}

func (s *transportSender) SendCandidate(viewerID string, candidate webrtc.ICECandidateInit) error {
	msg, err := signaling.NewMessage(signaling.MessageICECandidate, signaling.CandidatePayload{
		ViewerID:  viewerID,
		Candidate: candidate,
	})
	if err != nil {
		return err
	}
	return s.send(msg)
}

func (s *transportSender) send(msg signaling.Message) error {
	s.c.mu.Lock()
	transport := s.c.transport
	s.c.mu.Unlock()
	if transport == nil {
		return nil
	}
	return transport.Send(msg)
}
