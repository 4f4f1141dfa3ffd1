package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/usecase"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// GetActorID returns the acting user forwarded on the request, if any.
func GetActorID(c *gin.Context) (int64, bool) {
	reqCtx := GetRequestContext(c)
	if reqCtx == nil || reqCtx.ActorID <= 0 {
		return 0, false
	}
	return reqCtx.ActorID, true
}

// RequireCapability guards an endpoint behind a capability check at the
// system context. The acting user comes from the X-Actor-ID header set by
// the calling service; requests without it are rejected.
func RequireCapability(access *usecase.AccessService, contexts *usecase.ContextService, capability string) gin.HandlerFunc {
	return func(c *gin.Context) {
		actorID, ok := GetActorID(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing or invalid X-Actor-ID header"))
			return
		}

		sys, err := contexts.SystemContext(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError,
				newErrorResponse(c, "failed to resolve system context"))
			return
		}

		if !access.HasCapability(c.Request.Context(), capability, actorID, *sys) {
			c.AbortWithStatusJSON(http.StatusForbidden,
				newErrorResponse(c, "insufficient permissions"))
			return
		}

		c.Next()
	}
}
