package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/repository"
	"github.com/nexosupport/access-service/internal/usecase"
)

// ContextHandler serves the context hierarchy.
type ContextHandler struct {
	contexts *usecase.ContextService
}

func NewContextHandler(contexts *usecase.ContextService) *ContextHandler {
	return &ContextHandler{contexts: contexts}
}

// RegisterRoutes wires the context endpoints.
func (h *ContextHandler) RegisterRoutes(r *gin.RouterGroup, view, manage gin.HandlerFunc) {
	r.POST("", manage, h.Resolve)
	r.GET("/:id", view, h.GetContext)
	r.GET("/:id/parents", view, h.Parents)
}

// Resolve locates the context for an instance, creating it on first use.
func (h *ContextHandler) Resolve(c *gin.Context) {
	var req ContextResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid context payload"))
		return
	}

	level := domain.ContextLevel(req.Level)
	if level != domain.LevelSystem && level != domain.LevelUser && level != domain.LevelCourse {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "unknown context level"))
		return
	}

	node, err := h.contexts.ContextFor(c.Request.Context(), level, req.InstanceID, true)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve context"))
		return
	}

	c.JSON(http.StatusOK, toContextPayload(*node))
}

func (h *ContextHandler) GetContext(c *gin.Context) {
	contextID, ok := pathID(c, "id")
	if !ok {
		return
	}

	node, err := h.contexts.ContextByID(c.Request.Context(), contextID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "context not found"},
		}, http.StatusInternalServerError, "failed to load context")
		return
	}

	c.JSON(http.StatusOK, toContextPayload(*node))
}

// Parents returns the ancestor chain of a context, root first, excluding the
// context itself.
func (h *ContextHandler) Parents(c *gin.Context) {
	contextID, ok := pathID(c, "id")
	if !ok {
		return
	}

	node, err := h.contexts.ContextByID(c.Request.Context(), contextID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "context not found"},
		}, http.StatusInternalServerError, "failed to load context")
		return
	}

	parents, err := h.contexts.ParentContexts(c.Request.Context(), *node)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load parent contexts"))
		return
	}

	payload := make([]ContextPayload, 0, len(parents))
	for _, parent := range parents {
		payload = append(payload, toContextPayload(parent))
	}

	c.JSON(http.StatusOK, payload)
}
