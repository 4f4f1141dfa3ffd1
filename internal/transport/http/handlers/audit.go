package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/usecase"
)

// AuditHandler serves the audit trail.
type AuditHandler struct {
	audit *usecase.AuditService
}

func NewAuditHandler(audit *usecase.AuditService) *AuditHandler {
	return &AuditHandler{audit: audit}
}

// RegisterRoutes wires the audit endpoints. The view middleware enforces the
// audit view capability.
func (h *AuditHandler) RegisterRoutes(r *gin.RouterGroup, view gin.HandlerFunc) {
	r.GET("", view, h.List)
}

// List returns audit rows newest first, narrowed by the optional filters.
func (h *AuditHandler) List(c *gin.Context) {
	filter := domain.AuditFilter{
		Name: strings.TrimSpace(c.Query("name")),
	}

	for name, target := range map[string]**int64{
		"user_id":         &filter.UserID,
		"related_user_id": &filter.RelatedUserID,
		"context_id":      &filter.ContextID,
	} {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		value, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid "+name+" parameter"))
			return
		}
		*target = &value
	}

	limit, err := queryInt64(c, "limit", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid limit parameter"))
		return
	}
	offset, err := queryInt64(c, "offset", 0)
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid offset parameter"))
		return
	}

	filter.Limit = int(limit)
	filter.Offset = int(offset)

	events, err := h.audit.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list audit events"))
		return
	}

	payload := make([]AuditEventPayload, 0, len(events))
	for _, event := range events {
		payload = append(payload, toAuditEventPayload(event))
	}

	c.JSON(http.StatusOK, payload)
}
