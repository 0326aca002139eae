package models

// StreamSession is one broadcast instance as issued by the session registry.
// BroadcastKey is the ingest secret; it must never appear in logs.
type StreamSession struct {
	SessionID    string      `json:"sessionId"`
	StreamID     string      `json:"streamId"`
	BroadcastKey string      `json:"broadcastKey"`
	ICEServers   []ICEServer `json:"iceServers"`
}

// ICEServer is one negotiation-assistance endpoint supplied at session creation.
type ICEServer struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// StreamConfig is the creation request sent to the session registry.
type StreamConfig struct {
	Title               string `json:"title"`
	Description         string `json:"description,omitempty"`
	Visibility          string `json:"visibility,omitempty"`
	PricePerMinute      int64  `json:"pricePerMinute,omitempty"`
	RequireVerification bool   `json:"requireVerification,omitempty"`
}

// Counters is the aggregated presentation state for an active session.
// Revenue is in minor currency units.
type Counters struct {
	ViewerCount int   `json:"viewerCount"`
	Revenue     int64 `json:"revenue"`
}

// AnalyticsSnapshot is the authoritative counter snapshot polled from the
// registry or pushed over the signaling channel. It overrides locally
// accumulated counters wholesale.
type AnalyticsSnapshot struct {
	Engagement  float64 `json:"engagement,omitempty"`
	ViewerCount int     `json:"viewerCount"`
	Revenue     int64   `json:"revenue"`
}

// Gift is a monetization event received during a live session.
type Gift struct {
	ID     string `json:"id,omitempty"`
	Name   string `json:"name,omitempty"`
	Amount int64  `json:"amount"`
	Sender string `json:"sender,omitempty"`
}

// CoStar is a second broadcaster requesting to join the session.
type CoStar struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}
