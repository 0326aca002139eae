// Package media models the broadcaster's local capture capability. The core
// depends on captured tracks but does not implement device acquisition; the
// encoder path feeds samples into the tracks created here.
package media

import (
	"context"
	"errors"
	"sync"

	"github.com/pion/webrtc/v3"
	pionmedia "github.com/pion/webrtc/v3/pkg/media"
)

// ErrCaptureDenied is returned when camera/microphone access is unavailable.
// It is fatal to starting a session: no registry call is made.
var ErrCaptureDenied = errors.New("media capture denied")

// Track is one locally captured media track shared by every viewer
// connection. Toggling Enabled is a global mutation: muting affects all
// viewers at once because they attach the same underlying track.
type Track interface {
	ID() string
	Kind() webrtc.RTPCodecType
	Local() webrtc.TrackLocal
	Enabled() bool
	SetEnabled(bool)
	Stop()
}

// Capturer acquires the local track set for a session.
type Capturer interface {
	Acquire(ctx context.Context) ([]Track, error)
}

// SampleTrack wraps a pion static sample track with a mute gate and a stop
// flag. Samples written while muted or stopped are dropped.
type SampleTrack struct {
	local   *webrtc.TrackLocalStaticSample
	mu      sync.RWMutex
	enabled bool
	stopped bool
}

// NewSampleTrack creates an enabled track for the given codec.
func NewSampleTrack(capability webrtc.RTPCodecCapability, id, streamID string) (*SampleTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(capability, id, streamID)
	if err != nil {
		return nil, err
	}
	return &SampleTrack{local: local, enabled: true}, nil
}

func (t *SampleTrack) ID() string { return t.local.ID() }

func (t *SampleTrack) Kind() webrtc.RTPCodecType { return t.local.Kind() }

func (t *SampleTrack) Local() webrtc.TrackLocal { return t.local }

func (t *SampleTrack) Enabled() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.enabled && !t.stopped
}

func (t *SampleTrack) SetEnabled(enabled bool) {
	t.mu.Lock()
	t.enabled = enabled
	t.mu.Unlock()
}

// Stop permanently silences the track. Peer connections holding it are
// closed separately by the peer manager.
func (t *SampleTrack) Stop() {
	t.mu.Lock()
	t.stopped = true
	t.mu.Unlock()
}

// WriteSample forwards an encoded sample to every bound connection, or drops
// it when the track is muted or stopped.
func (t *SampleTrack) WriteSample(s pionmedia.Sample) error {
	if !t.Enabled() {
		return nil
	}
	return t.local.WriteSample(s)
}

// StaticCapturer produces one VP8 video track and one Opus audio track per
// acquisition, the shape the encoder pipeline expects.
type StaticCapturer struct {
	StreamID string
}

// Acquire creates the local track set.
func (c *StaticCapturer) Acquire(ctx context.Context) ([]Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	streamID := c.StreamID
	if streamID == "" {
		streamID = "broadcast"
	}
	video, err := NewSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", streamID)
	if err != nil {
		return nil, ErrCaptureDenied
	}
	audio, err := NewSampleTrack(webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", streamID)
	if err != nil {
		return nil, ErrCaptureDenied
	}
	return []Track{video, audio}, nil
}
