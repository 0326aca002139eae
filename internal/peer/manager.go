// Package peer owns the viewerId -> peer connection mapping and drives
// per-viewer media negotiation. It is bookkeeping plus forwarding only; no
// media processing happens here.
package peer

import (
	"sync"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/media"
	"github.com/creatorlive/broadcaster/internal/models"
)

// Sender emits locally generated negotiation payloads back through the
// signaling channel.
type Sender interface {
	SendAnswer(viewerID string, answer webrtc.SessionDescription) error
	SendCandidate(viewerID string, candidate webrtc.ICECandidateInit) error
}

// Manager holds one peer connection per viewer. Each viewer negotiates an
// independent transport path, so there is no shared broadcast object. All
// negotiation failures stop at this boundary: the viewer entry is discarded
// and logged, other viewers and the broadcaster's media are unaffected.
type Manager struct {
	cfg    webrtc.Configuration
	api    *webrtc.API
	sender Sender
	logger *zap.Logger

	// Negotiation messages arrive on a single dispatch goroutine, but the
	// session close path touches the map too.
	mu     sync.Mutex
	tracks []media.Track
	conns  map[string]*webrtc.PeerConnection
}

var defaultICE = []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}}

// Configuration converts registry-issued ICE servers to a pion configuration,
// falling back to a public STUN server when the registry supplied none.
func Configuration(servers []models.ICEServer) webrtc.Configuration {
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		if len(s.URLs) == 0 {
			continue
		}
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	if len(out) == 0 {
		out = defaultICE
	}
	return webrtc.Configuration{ICEServers: out}
}

// NewManager creates a manager for one session.
func NewManager(cfg webrtc.Configuration, sender Sender, logger *zap.Logger) *Manager {
	mediaEngine := &webrtc.MediaEngine{}
	_ = mediaEngine.RegisterDefaultCodecs()
	m := &Manager{
		cfg:    cfg,
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine)),
		sender: sender,
		logger: logger,
		conns:  make(map[string]*webrtc.PeerConnection),
	}
	return m
}

// AttachTracks sets the local track set forwarded to every connection
// created afterwards. Called once per session, after capture succeeds.
func (m *Manager) AttachTracks(tracks []media.Track) {
	m.mu.Lock()
	m.tracks = tracks
	m.mu.Unlock()
}

// HandleOffer creates (or replaces) the viewer's connection, applies the
// remote offer, and answers through the sender. A second offer from the same
// viewer replaces the existing entry rather than duplicating it.
func (m *Manager) HandleOffer(viewerID string, offer webrtc.SessionDescription) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if old, ok := m.conns[viewerID]; ok {
		delete(m.conns, viewerID)
		_ = old.Close()
	}

	pc, err := m.api.NewPeerConnection(m.cfg)
	if err != nil {
		m.logger.Warn("peer connection create failed", zap.String("viewer_id", viewerID), zap.Error(err))
		return
	}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		if err := m.sender.SendCandidate(viewerID, c.ToJSON()); err != nil {
			m.logger.Warn("candidate send failed", zap.String("viewer_id", viewerID), zap.Error(err))
		}
	})

	for _, t := range m.tracks {
		if _, err := pc.AddTrack(t.Local()); err != nil {
			m.discard(pc, viewerID, "add track", err)
			return
		}
	}
	if err := pc.SetRemoteDescription(offer); err != nil {
		m.discard(pc, viewerID, "set remote description", err)
		return
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		m.discard(pc, viewerID, "create answer", err)
		return
	}
	if err := pc.SetLocalDescription(answer); err != nil {
		m.discard(pc, viewerID, "set local description", err)
		return
	}

	m.conns[viewerID] = pc
	if err := m.sender.SendAnswer(viewerID, answer); err != nil {
		m.logger.Warn("answer send failed", zap.String("viewer_id", viewerID), zap.Error(err))
	}
}

// HandleAnswer applies a remote answer. An answer for an unknown or
// already-closed viewer is a benign race: no-op, not an error.
func (m *Manager) HandleAnswer(viewerID string, answer webrtc.SessionDescription) {
	m.mu.Lock()
	pc, ok := m.conns[viewerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := pc.SetRemoteDescription(answer); err != nil {
		m.logger.Warn("set answer failed", zap.String("viewer_id", viewerID), zap.Error(err))
	}
}

// HandleICECandidate applies a remote candidate with the same no-op policy
// as HandleAnswer.
func (m *Manager) HandleICECandidate(viewerID string, candidate webrtc.ICECandidateInit) {
	m.mu.Lock()
	pc, ok := m.conns[viewerID]
	m.mu.Unlock()
	if !ok {
		return
	}
	if err := pc.AddICECandidate(candidate); err != nil {
		m.logger.Warn("add candidate failed", zap.String("viewer_id", viewerID), zap.Error(err))
	}
}

// Close releases one viewer's connection, if held.
func (m *Manager) Close(viewerID string) {
	m.mu.Lock()
	pc, ok := m.conns[viewerID]
	if ok {
		delete(m.conns, viewerID)
	}
	m.mu.Unlock()
	if ok {
		_ = pc.Close()
	}
}

// CloseAll terminates every held connection and clears the mapping. Invoked
// on session end, unconditionally, even mid-negotiation.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	conns := m.conns
	m.conns = make(map[string]*webrtc.PeerConnection)
	m.mu.Unlock()
	for _, pc := range conns {
		_ = pc.Close()
	}
}

// Len reports how many viewer connections are held.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.conns)
}

func (m *Manager) discard(pc *webrtc.PeerConnection, viewerID, op string, err error) {
	m.logger.Warn("viewer negotiation failed, discarding",
		zap.String("viewer_id", viewerID),
		zap.String("op", op),
		zap.Error(err),
	)
	_ = pc.Close()
	delete(m.conns, viewerID)
}
