package action

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mwhitt/trustrail/internal/metrics"
	"github.com/mwhitt/trustrail/internal/trust"
	"github.com/mwhitt/trustrail/internal/validation"
)

// Notifier receives block decisions, for alerting.
type Notifier interface {
	NotifyBlocked(ctx context.Context, accountID string, score float64, reason string)
}

// Broadcaster streams decisions to realtime subscribers.
type Broadcaster interface {
	BroadcastDecision(accountID, action, reason string)
}

// Handler provides the decision endpoint.
type Handler struct {
	engine    *trust.Engine
	policy    *Policy
	notify    Notifier    // optional
	broadcast Broadcaster // optional
}

// NewHandler creates a new decision handler.
func NewHandler(engine *trust.Engine, policy *Policy, notify Notifier) *Handler {
	return &Handler{engine: engine, policy: policy, notify: notify}
}

// WithBroadcaster attaches a realtime broadcaster.
func (h *Handler) WithBroadcaster(b Broadcaster) *Handler {
	h.broadcast = b
	return h
}

// RegisterRoutes sets up the decision endpoint.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/decision", h.Decide)
}

// DecisionRequest asks for a fresh score plus an enforcement decision.
type DecisionRequest struct {
	Account   string             `json:"account" binding:"required"`
	DeviceID  string             `json:"deviceId"`
	Overrides map[string]float64 `json:"overrides"`
}

// Decide recomputes the account's score and applies the action policy.
// POST /v1/decision
func (h *Handler) Decide(c *gin.Context) {
	var req DecisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "account is required",
		})
		return
	}

	ctx := c.Request.Context()
	result, err := h.engine.CalculateScore(ctx, req.Account, req.DeviceID, req.Overrides)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"details": verrs,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "failed to calculate score",
		})
		return
	}

	profile, err := h.engine.Profile(ctx, req.Account)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "failed to load profile",
		})
		return
	}
	flags := h.engine.ActiveFlags(profile)

	decision := h.policy.Decide(result.Score, result.Tier, flags)
	metrics.ActionDecisionsTotal.WithLabelValues(string(decision.Action)).Inc()

	if decision.Action == ActionBlock && h.notify != nil {
		h.notify.NotifyBlocked(ctx, req.Account, result.Score, decision.Reason)
	}
	if h.broadcast != nil {
		h.broadcast.BroadcastDecision(req.Account, string(decision.Action), decision.Reason)
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId": req.Account,
		"score":     result.Score,
		"tier":      result.Tier,
		"action":    decision.Action,
		"reason":    decision.Reason,
	})
}
