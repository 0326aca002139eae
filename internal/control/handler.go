// Package control exposes the local HTTP surface that drives the broadcast
// lifecycle. It is a pure consumer of session state: lifecycle errors are
// mapped to user-visible notifications, never swallowed.
package control

import (
	"errors"

	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"

	"github.com/creatorlive/broadcaster/internal/media"
	"github.com/creatorlive/broadcaster/internal/models"
	"github.com/creatorlive/broadcaster/internal/registry"
	"github.com/creatorlive/broadcaster/internal/session"
	"github.com/creatorlive/broadcaster/pkg/response"
)

// Handler drives the session controller from HTTP.
type Handler struct {
	ctrl   *session.Controller
	logger *zap.Logger
}

// NewHandler creates a control handler.
func NewHandler(ctrl *session.Controller, logger *zap.Logger) *Handler {
	return &Handler{ctrl: ctrl, logger: logger}
}

// Register mounts the broadcast routes.
func (h *Handler) Register(r gin.IRoutes) {
	r.POST("/broadcast/create", h.Create)
	r.POST("/broadcast/start", h.Start)
	r.POST("/broadcast/end", h.End)
	r.GET("/broadcast/status", h.Status)
	r.POST("/broadcast/costars/:id/accept", h.AcceptCoStar)
	r.POST("/broadcast/tracks/:kind/toggle", h.ToggleTrack)
}

// Create creates a session and opens the signaling channel.
func (h *Handler) Create(c *gin.Context) {
	var cfg models.StreamConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		response.BadRequest(c, "invalid stream config: "+err.Error())
		return
	}
	if cfg.Title == "" {
		response.BadRequest(c, "title is required")
		return
	}
	sess, err := h.ctrl.Create(c.Request.Context(), cfg)
	if err != nil {
		h.fail(c, err)
		return
	}
	// The broadcast key goes to the encoder via this response only; it is
	// never logged.
	response.Created(c, sess)
}

// Start takes the session live.
func (h *Handler) Start(c *gin.Context) {
	if err := h.ctrl.GoLive(c.Request.Context()); err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.ctrl.Snapshot())
}

// End ends the session. Local cleanup always runs; a registry failure is
// still reported so the user knows the backend may disagree.
func (h *Handler) End(c *gin.Context) {
	err := h.ctrl.End(c.Request.Context())
	if err != nil && !errors.Is(err, session.ErrInvalidTransition) {
		var regErr *registry.Error
		if errors.As(err, &regErr) {
			response.OK(c, gin.H{
				"snapshot": h.ctrl.Snapshot(),
				"warning":  "session ended locally but registry reported: " + regErr.Message,
			})
			return
		}
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	response.OK(c, h.ctrl.Snapshot())
}

// Status returns the current session snapshot.
func (h *Handler) Status(c *gin.Context) {
	response.OK(c, h.ctrl.Snapshot())
}

// AcceptCoStar accepts a pending co-star request.
func (h *Handler) AcceptCoStar(c *gin.Context) {
	if err := h.ctrl.AcceptCoStar(c.Param("id")); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, h.ctrl.Snapshot())
}

type toggleRequest struct {
	Enabled bool `json:"enabled"`
}

// ToggleTrack mutes or unmutes a local track kind for every viewer at once.
func (h *Handler) ToggleTrack(c *gin.Context) {
	kind := webrtc.NewRTPCodecType(c.Param("kind"))
	if kind == webrtc.RTPCodecType(0) {
		response.BadRequest(c, "kind must be audio or video")
		return
	}
	var req toggleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid toggle request")
		return
	}
	if err := h.ctrl.SetTrackEnabled(kind, req.Enabled); err != nil {
		response.NotFound(c, err.Error())
		return
	}
	response.OK(c, h.ctrl.Snapshot())
}

func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, media.ErrCaptureDenied):
		response.ServiceUnavailable(c, "camera or microphone unavailable")
	case errors.Is(err, session.ErrInvalidTransition):
		response.Conflict(c, err.Error())
	default:
		var regErr *registry.Error
		if errors.As(err, &regErr) {
			if regErr.StatusCode >= 400 && regErr.StatusCode < 500 {
				response.BadRequest(c, regErr.Message)
				return
			}
			response.ServiceUnavailable(c, regErr.Message)
			return
		}
		h.logger.Error("broadcast operation failed", zap.Error(err))
		response.Internal(c, "broadcast operation failed")
	}
}
