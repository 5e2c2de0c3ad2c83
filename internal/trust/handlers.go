package trust

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mwhitt/trustrail/internal/validation"
)

// EventEmitter receives scoring lifecycle events, for streaming and alerting.
type EventEmitter interface {
	ScoreCalculated(ctx context.Context, accountID string, score float64, tier string)
	FlagAdded(ctx context.Context, accountID, flagID, reason string)
}

// Handler provides HTTP endpoints for trust scoring.
type Handler struct {
	engine *Engine
	events EventEmitter // optional
}

// NewHandler creates a new trust handler.
func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// WithEvents attaches an event emitter.
func (h *Handler) WithEvents(events EventEmitter) *Handler {
	h.events = events
	return h
}

// RegisterRoutes sets up trust scoring endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/accounts/:account/score", h.CalculateScore)
	r.GET("/accounts/:account/profile", h.GetProfile)
	r.POST("/accounts/:account/flags", h.AddFlag)
	r.POST("/accounts/:account/payments/success", h.PaymentSuccess)
	r.POST("/accounts/:account/payments/failure", h.PaymentFailure)
}

// ScoreRequest is the body for a score calculation.
type ScoreRequest struct {
	DeviceID  string             `json:"deviceId"`
	Overrides map[string]float64 `json:"overrides"`
}

// CalculateScore recomputes an account's trust score.
// POST /v1/accounts/:account/score
func (h *Handler) CalculateScore(c *gin.Context) {
	accountID := c.Param("account")

	var req ScoreRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "request body must be valid JSON",
			})
			return
		}
	}

	result, err := h.engine.CalculateScore(c.Request.Context(), accountID, req.DeviceID, req.Overrides)
	if err != nil {
		respondError(c, err, "failed to calculate score")
		return
	}
	if h.events != nil {
		h.events.ScoreCalculated(c.Request.Context(), accountID, result.Score, string(result.Tier))
	}
	c.JSON(http.StatusOK, result)
}

// GetProfile returns the stored trust profile.
// GET /v1/accounts/:account/profile
func (h *Handler) GetProfile(c *gin.Context) {
	accountID := c.Param("account")

	profile, err := h.engine.Profile(c.Request.Context(), accountID)
	if err != nil {
		respondError(c, err, "failed to load profile")
		return
	}
	if profile == nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "account has no trust profile",
		})
		return
	}
	c.JSON(http.StatusOK, profile)
}

// FlagRequest is the body for a risk flag.
type FlagRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// AddFlag attaches a risk flag to an account.
// POST /v1/accounts/:account/flags
func (h *Handler) AddFlag(c *gin.Context) {
	accountID := c.Param("account")

	var req FlagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "reason is required",
		})
		return
	}

	flag, err := h.engine.AddRiskFlag(c.Request.Context(), accountID, req.Reason)
	if err != nil {
		respondError(c, err, "failed to add flag")
		return
	}
	if h.events != nil {
		h.events.FlagAdded(c.Request.Context(), accountID, flag.ID, flag.Reason)
	}
	c.JSON(http.StatusCreated, flag)
}

// PaymentRequest is the body for a successful payment record.
type PaymentRequest struct {
	AmountCents int64 `json:"amountCents"`
}

// PaymentSuccess records a successful transaction.
// POST /v1/accounts/:account/payments/success
func (h *Handler) PaymentSuccess(c *gin.Context) {
	accountID := c.Param("account")

	var req PaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "amountCents is required",
		})
		return
	}

	if err := h.engine.RecordPaymentSuccess(c.Request.Context(), accountID, req.AmountCents); err != nil {
		respondError(c, err, "failed to record payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

// PaymentFailure records a failed transaction.
// POST /v1/accounts/:account/payments/failure
func (h *Handler) PaymentFailure(c *gin.Context) {
	accountID := c.Param("account")

	if err := h.engine.RecordPaymentFailure(c.Request.Context(), accountID); err != nil {
		respondError(c, err, "failed to record payment")
		return
	}
	c.JSON(http.StatusOK, gin.H{"recorded": true})
}

func respondError(c *gin.Context, err error, fallback string) {
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
		"message": fallback,
	})
}
