package signaling

import (
	"encoding/json"

	"github.com/pion/webrtc/v3"

	"github.com/creatorlive/broadcaster/internal/models"
)

// MessageType discriminates signaling messages. Unknown types are ignored by
// receivers, never fatal.
type MessageType string

// Broadcaster -> backend.
const (
	MessageJoinStream   MessageType = "join_stream"
	MessageCoStarAccept MessageType = "co_star_accept"
)

// Backend -> broadcaster.
const (
	MessageViewerJoined    MessageType = "viewer_joined"
	MessageViewerLeft      MessageType = "viewer_left"
	MessageGiftReceived    MessageType = "gift_received"
	MessageCoStarRequest   MessageType = "co_star_request"
	MessageStreamAnalytics MessageType = "stream_analytics"
)

// Both directions (negotiation relay).
const (
	MessageOffer        MessageType = "webrtc_offer"
	MessageAnswer       MessageType = "webrtc_answer"
	MessageICECandidate MessageType = "webrtc_ice_candidate"
)

// Message is the wire envelope: a type discriminator plus a JSON payload.
type Message struct {
	Type MessageType     `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// JoinPayload announces the broadcaster on channel open.
type JoinPayload struct {
	SessionID string `json:"sessionId"`
	Role      string `json:"role"`
}

// ViewerLeftPayload may carry the viewer whose connection should be released.
type ViewerLeftPayload struct {
	ViewerID string `json:"viewerId,omitempty"`
}

// GiftPayload wraps a gift event.
type GiftPayload struct {
	Gift models.Gift `json:"gift"`
}

// CoStarPayload wraps a co-star join request or acceptance.
type CoStarPayload struct {
	CoStar models.CoStar `json:"coStar"`
}

// OfferPayload is a viewer's SDP offer relayed by the backend.
type OfferPayload struct {
	ViewerID string                    `json:"viewerId"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

// AnswerPayload is an SDP answer, either direction.
type AnswerPayload struct {
	ViewerID string                    `json:"viewerId"`
	Answer   webrtc.SessionDescription `json:"answer"`
}

// CandidatePayload is a trickled ICE candidate, either direction.
type CandidatePayload struct {
	ViewerID  string                  `json:"viewerId"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// NewMessage builds an envelope with a marshaled payload.
func NewMessage(t MessageType, payload interface{}) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Data: data}, nil
}
