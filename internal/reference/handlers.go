package reference

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/mwhitt/trustrail/internal/metrics"
	"github.com/mwhitt/trustrail/internal/validation"
)

// Handler provides HTTP endpoints for the reference index.
type Handler struct {
	service *Service
}

// NewHandler creates a new reference handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up reference endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/references", h.Register)
	r.GET("/references/lookup", h.Lookup)
	r.GET("/references/cross-lookup", h.CrossLookup)
	r.GET("/accounts/:account/references", h.ForAccount)
}

// RegisterRequest accepts either a precomputed digest or a raw value to
// hash server-side. Raw values are hashed immediately and never stored.
type RegisterRequest struct {
	AccountID     string `json:"accountId"`
	ReferenceType string `json:"referenceType"`
	ValueHash     string `json:"valueHash,omitempty"`
	Value         string `json:"value,omitempty"`
}

// Register links a hashed identifier to an account.
// POST /v1/references
func (h *Handler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be a valid reference registration",
		})
		return
	}
	if (req.ValueHash == "") == (req.Value == "") {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "exactly one of value or valueHash is required",
		})
		return
	}

	t := Type(req.ReferenceType)
	var (
		digest string
		err    error
	)
	if req.Value != "" {
		digest, err = h.service.RegisterValue(c.Request.Context(), req.AccountID, t, req.Value)
	} else {
		digest = req.ValueHash
		err = h.service.Register(c.Request.Context(), req.AccountID, t, digest)
	}

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
			"message": "failed to register reference",
		})
		return
	}

	metrics.ReferenceRegistrationsTotal.WithLabelValues(req.ReferenceType).Inc()
	c.JSON(http.StatusCreated, gin.H{
		"accountId":     req.AccountID,
		"referenceType": t,
		"valueHash":     digest,
	})
}

// Lookup returns accounts linked to a digest.
// GET /v1/references/lookup?type=&hash=
func (h *Handler) Lookup(c *gin.Context) {
	t := Type(c.Query("type"))
	hash := c.Query("hash")

	accounts, err := h.service.Lookup(c.Request.Context(), t, hash)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": "lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"referenceType": t,
		"valueHash":     hash,
		"accountIds":    accounts,
		"count":         len(accounts),
	})
}

// CrossLookup returns shared-identifier groups.
// GET /v1/references/cross-lookup?type=&min_accounts=
func (h *Handler) CrossLookup(c *gin.Context) {
	t := Type(c.Query("type"))

	minAccounts := DefaultMinAccounts
	if raw := c.Query("min_accounts"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "min_accounts must be a positive integer",
			})
			return
		}
		minAccounts = n
	}

	groups, err := h.service.CrossLookup(c.Request.Context(), t, minAccounts)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": "cross lookup failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"groups": groups,
		"count":  len(groups),
	})
}

// ForAccount returns all references registered for an account.
// GET /v1/accounts/:account/references
func (h *Handler) ForAccount(c *gin.Context) {
	accountID := c.Param("account")

	links, err := h.service.ForAccount(c.Request.Context(), accountID)
	if err != nil {
		var verrs validation.ValidationErrors
		if errors.As(err, &verrs) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": verrs})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "message": "failed to list references"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accountId":  accountID,
		"references": links,
		"count":      len(links),
	})
}
