package session

import (
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/models"
	"github.com/creatorlive/broadcaster/internal/signaling"
)

// dispatch folds one signaling message into session state. It runs on the
// channel's read goroutine, so messages for a given viewer are handled in
// arrival order. Unknown message types are ignored, never fatal, and a
// message still in flight when the session ends is dropped rather than
// mutating torn-down state.
func (c *Controller) dispatch(msg signaling.Message) {
	if !c.isActive() {
		c.logger.Debug("dropping signaling message, no active session", zap.String("type", string(msg.Type)))
		return
	}
	switch msg.Type {
	case signaling.MessageViewerJoined:
		c.mu.Lock()
		c.counters.ViewerCount++
		c.mu.Unlock()
		c.notify()

	case signaling.MessageViewerLeft:
		var payload signaling.ViewerLeftPayload
		_ = json.Unmarshal(msg.Data, &payload)
		c.mu.Lock()
		if c.counters.ViewerCount > 0 {
			c.counters.ViewerCount--
		}
		peers := c.peers
		c.mu.Unlock()
		if payload.ViewerID != "" && peers != nil {
			peers.Close(payload.ViewerID)
		}
		c.notify()

	case signaling.MessageGiftReceived:
		var payload signaling.GiftPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Warn("malformed gift payload", zap.Error(err))
			return
		}
		c.applyGift(payload.Gift)

	case signaling.MessageCoStarRequest:
		var payload signaling.CoStarPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Warn("malformed co-star payload", zap.Error(err))
			return
		}
		c.mu.Lock()
		c.pending = append(c.pending, payload.CoStar)
		c.mu.Unlock()
		c.notify()

	case signaling.MessageStreamAnalytics:
		var snap models.AnalyticsSnapshot
		if err := json.Unmarshal(msg.Data, &snap); err != nil {
			c.logger.Warn("malformed analytics payload", zap.Error(err))
			return
		}
		c.applyAnalytics(snap)

	case signaling.MessageOffer:
		var payload signaling.OfferPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Warn("malformed offer payload", zap.Error(err))
			return
		}
		if peers := c.currentPeers(); peers != nil {
			peers.HandleOffer(payload.ViewerID, payload.Offer)
			c.notify()
		}

	case signaling.MessageAnswer:
		var payload signaling.AnswerPayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Warn("malformed answer payload", zap.Error(err))
			return
		}
		if peers := c.currentPeers(); peers != nil {
			peers.HandleAnswer(payload.ViewerID, payload.Answer)
		}

	case signaling.MessageICECandidate:
		var payload signaling.CandidatePayload
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.logger.Warn("malformed candidate payload", zap.Error(err))
			return
		}
		if peers := c.currentPeers(); peers != nil {
			peers.HandleICECandidate(payload.ViewerID, payload.Candidate)
		}

	default:
		c.logger.Debug("ignoring signaling message", zap.String("type", string(msg.Type)))
	}
}

func (c *Controller) currentPeers() PeerManager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peers
}

func (c *Controller) isActive() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activeLocked()
}

func (c *Controller) activeLocked() bool {
	return c.status == StatusWaiting || c.status == StatusLive
}

// applyGift accumulates revenue and shows the gift overlay. A gift arriving
// while the overlay is visible restarts the timer; previous gifts are not
// queued for sequential display.
func (c *Controller) applyGift(gift models.Gift) {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	c.counters.Revenue += gift.Amount
	g := gift
	c.lastGift = &g
	c.giftVisible = true
	if c.giftTimer != nil {
		c.giftTimer.Stop()
	}
	c.giftTimer = time.AfterFunc(c.overlayDuration, c.clearGiftOverlay)
	c.mu.Unlock()
	c.notify()
}

func (c *Controller) clearGiftOverlay() {
	c.mu.Lock()
	c.giftVisible = false
	c.giftTimer = nil
	c.mu.Unlock()
	c.notify()
}

// applyAnalytics overwrites the incremental counters with an authoritative
// snapshot. Last arrival wins.
func (c *Controller) applyAnalytics(snap models.AnalyticsSnapshot) {
	c.mu.Lock()
	if !c.activeLocked() {
		c.mu.Unlock()
		return
	}
	c.counters.ViewerCount = snap.ViewerCount
	c.counters.Revenue = snap.Revenue
	c.engagement = snap.Engagement
	c.mu.Unlock()
	c.notify()
}
