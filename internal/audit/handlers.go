package audit

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mwhitt/trustrail/internal/metrics"
	"github.com/mwhitt/trustrail/internal/validation"
)

// Handler provides HTTP endpoints for the audit trail.
type Handler struct {
	service *Service
}

// NewHandler creates a new audit handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up audit endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/events", h.RecordEvent)
	r.GET("/accounts/:account/history", h.GetHistory)
}

// RecordEvent appends a new event to the audit trail.
// POST /v1/events
func (h *Handler) RecordEvent(c *gin.Context) {
	var in RecordInput
	if err := c.ShouldBindJSON(&in); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "request body must be a valid event",
		})
		return
	}

	id, err := h.service.Record(c.Request.Context(), in)
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
			"message": "failed to record event",
		})
		return
	}

	metrics.EventsRecordedTotal.WithLabelValues(in.EventType).Inc()
	c.JSON(http.StatusCreated, gin.H{"id": id})
}

// GetHistory returns an account's event history, newest first.
// GET /v1/accounts/:account/history?type=&since=&limit=&cursor=
func (h *Handler) GetHistory(c *gin.Context) {
	accountID := c.Param("account")

	filter := HistoryFilter{
		EventType: EventType(c.Query("type")),
	}
	if sinceStr := c.Query("since"); sinceStr != "" {
		since, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "since must be an RFC3339 timestamp",
			})
			return
		}
		filter.Since = since
	}
	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_request",
				"message": "limit must be a positive integer",
			})
			return
		}
		filter.Limit = limit
	}

	events, nextCursor, hasMore, err := h.service.HistoryPage(c.Request.Context(), accountID, filter, c.Query("cursor"))
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
			"message": "failed to query history",
		})
		return
	}

	resp := gin.H{
		"accountId": accountID,
		"events":    events,
		"count":     len(events),
		"hasMore":   hasMore,
	}
	if nextCursor != "" {
		resp["nextCursor"] = nextCursor
	}
	c.JSON(http.StatusOK, resp)
}
