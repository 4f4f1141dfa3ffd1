package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/repository"
	"github.com/nexosupport/access-service/internal/usecase"
)

// AssignmentHandler serves role membership within a context.
type AssignmentHandler struct {
	assignments *usecase.AssignmentService
	contexts    *usecase.ContextService
}

func NewAssignmentHandler(assignments *usecase.AssignmentService, contexts *usecase.ContextService) *AssignmentHandler {
	return &AssignmentHandler{assignments: assignments, contexts: contexts}
}

// RegisterRoutes wires the assignment endpoints under /contexts/:id. The
// assign middleware enforces the role assignment capability.
func (h *AssignmentHandler) RegisterRoutes(r *gin.RouterGroup, assign gin.HandlerFunc) {
	r.POST("/:id/assignments", assign, h.Assign)
	r.DELETE("/:id/assignments", assign, h.Unassign)
	r.GET("/:id/users/:user_id/roles", assign, h.UserRoles)
	r.GET("/:id/users/:user_id/has-role", assign, h.UserHasRole)
}

func (h *AssignmentHandler) node(c *gin.Context) (*domain.Context, bool) {
	contextID, ok := pathID(c, "id")
	if !ok {
		return nil, false
	}

	node, err := h.contexts.ContextByID(c.Request.Context(), contextID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "context not found"},
		}, http.StatusInternalServerError, "failed to resolve context")
		return nil, false
	}
	return node, true
}

func (h *AssignmentHandler) Assign(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}

	var req AssignmentCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}

	assignmentID, err := h.assignments.Assign(c.Request.Context(), actorFrom(c), *node, usecase.AssignInput{
		RoleID:    req.RoleID,
		UserID:    req.UserID,
		ExpiresAt: req.ExpiresAt,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to assign role")
		return
	}

	c.JSON(http.StatusCreated, AssignmentResponse{
		AssignmentID: assignmentID,
		RoleID:       req.RoleID,
		UserID:       req.UserID,
		ContextID:    node.ID,
	})
}

func (h *AssignmentHandler) Unassign(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}

	var req AssignmentDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid assignment payload"))
		return
	}

	removed, err := h.assignments.Unassign(c.Request.Context(), actorFrom(c), *node, req.RoleID, req.UserID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to unassign role"))
		return
	}

	if !removed {
		c.JSON(http.StatusOK, MessageResponse{Message: "no assignment to remove"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role unassigned"})
}

// UserHasRole reports whether the user holds the named role directly in this
// context.
func (h *AssignmentHandler) UserHasRole(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}

	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	shortname := strings.TrimSpace(c.Query("shortname"))
	if shortname == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "shortname query parameter is required"))
		return
	}

	held, err := h.assignments.UserHasRole(c.Request.Context(), userID, shortname, *node)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to check role membership"))
		return
	}

	c.JSON(http.StatusOK, UserHasRolePayload{
		UserID:    userID,
		ContextID: node.ID,
		Shortname: shortname,
		HasRole:   held,
	})
}

func (h *AssignmentHandler) UserRoles(c *gin.Context) {
	node, ok := h.node(c)
	if !ok {
		return
	}

	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}

	roles, err := h.assignments.RolesOfUser(c.Request.Context(), userID, *node)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list user roles"))
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, toRolePayload(role))
	}

	c.JSON(http.StatusOK, payload)
}
