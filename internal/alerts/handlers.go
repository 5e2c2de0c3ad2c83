package alerts

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mwhitt/trustrail/internal/idgen"
	"github.com/mwhitt/trustrail/internal/security"
	"github.com/mwhitt/trustrail/internal/validation"
)

// Handler provides HTTP endpoints for alert configuration.
type Handler struct {
	store Store
}

// NewHandler creates a new alerts handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up alert config endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/alerts", h.CreateConfig)
	r.GET("/alerts/:id", h.GetConfig)
	r.DELETE("/alerts/:id", h.DeleteConfig)
	r.GET("/accounts/:account/alerts", h.ListForAccount)
}

// CreateConfigRequest registers a webhook for fraud alerts.
type CreateConfigRequest struct {
	AccountID string   `json:"accountId" binding:"required"`
	URL       string   `json:"url" binding:"required"`
	Triggers  []string `json:"triggers" binding:"required"`
}

// CreateConfig registers an alert webhook.
// POST /v1/alerts
func (h *Handler) CreateConfig(c *gin.Context) {
	var req CreateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "accountId, url, and triggers are required",
		})
		return
	}

	if req.AccountID != "*" && !validation.IsValidAccountID(req.AccountID) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "accountId must be a valid account handle or *",
		})
		return
	}
	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "validation_failed",
			"message": "url rejected: " + err.Error(),
		})
		return
	}

	triggers := make([]Trigger, 0, len(req.Triggers))
	for _, t := range req.Triggers {
		trigger := Trigger(t)
		if trigger != TriggerFlagged && trigger != TriggerBlocked {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "validation_failed",
				"message": "unknown trigger: " + t,
			})
			return
		}
		triggers = append(triggers, trigger)
	}

	cfg := &Config{
		ID:        idgen.WithPrefix("alertcfg_"),
		AccountID: req.AccountID,
		URL:       req.URL,
		Triggers:  triggers,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := h.store.Create(c.Request.Context(), cfg); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "failed to create alert config",
		})
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

// GetConfig returns one alert config.
// GET /v1/alerts/:id
func (h *Handler) GetConfig(c *gin.Context) {
	cfg, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "not_found",
			"message": "alert config not found",
		})
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// DeleteConfig removes an alert config.
// DELETE /v1/alerts/:id
func (h *Handler) DeleteConfig(c *gin.Context) {
	if err := h.store.Delete(c.Request.Context(), c.Param("id")); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "failed to delete alert config",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

// ListForAccount returns the configs that fire for an account.
// GET /v1/accounts/:account/alerts
func (h *Handler) ListForAccount(c *gin.Context) {
	configs, err := h.store.ForAccount(c.Request.Context(), c.Param("account"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "storage_error",
			"message": "failed to query alert configs",
		})
		return
	}
	if configs == nil {
		configs = []*Config{}
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs, "count": len(configs)})
}
