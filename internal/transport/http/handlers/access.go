package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/infra/telemetry"
	"github.com/nexosupport/access-service/internal/repository"
	"github.com/nexosupport/access-service/internal/usecase"
)

// AccessHandler answers capability checks.
type AccessHandler struct {
	access    *usecase.AccessService
	contexts  *usecase.ContextService
	telemetry *telemetry.Provider
}

func NewAccessHandler(access *usecase.AccessService, contexts *usecase.ContextService, provider *telemetry.Provider) *AccessHandler {
	return &AccessHandler{access: access, contexts: contexts, telemetry: provider}
}

// RegisterRoutes wires the access check endpoint.
func (h *AccessHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/check", h.Check)
}

// Check resolves whether a user holds a capability at a context. A missing
// context_id checks against the system context. The verdict is always 200;
// denial is data, not an error.
func (h *AccessHandler) Check(c *gin.Context) {
	userID, err := queryInt64(c, "user_id", 0)
	if err != nil || userID < 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid user_id parameter"))
		return
	}

	capability := strings.TrimSpace(c.Query("capability"))
	if capability == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "capability query parameter is required"))
		return
	}

	contextID, err := queryInt64(c, "context_id", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid context_id parameter"))
		return
	}

	var node *domain.Context
	if contextID == 0 {
		node, err = h.contexts.SystemContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve system context"))
			return
		}
	} else {
		node, err = h.contexts.ContextByID(c.Request.Context(), contextID)
		if err != nil {
			RespondWithMappedError(c, err, []ErrorCase{
				{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "context not found"},
			}, http.StatusInternalServerError, "failed to resolve context")
			return
		}
	}

	allowed := h.access.HasCapability(c.Request.Context(), capability, userID, *node)
	h.telemetry.ObserveCheck(allowed)

	c.JSON(http.StatusOK, AccessCheckResponse{
		UserID:     userID,
		Capability: capability,
		ContextID:  node.ID,
		Allowed:    allowed,
	})
}
