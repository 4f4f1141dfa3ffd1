package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/transport/http/middleware"
	"github.com/nexosupport/access-service/internal/usecase"
)

func actorFrom(c *gin.Context) usecase.Actor {
	reqCtx := middleware.GetRequestContext(c)
	return usecase.Actor{ID: reqCtx.ActorID, IP: reqCtx.IP}
}

// pathID parses a numeric path parameter, responding 400 on failure.
func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid "+name+" parameter"))
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional numeric query parameter, returning fallback
// when absent.
func queryInt64(c *gin.Context, name string, fallback int64) (int64, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.ParseInt(raw, 10, 64)
}
