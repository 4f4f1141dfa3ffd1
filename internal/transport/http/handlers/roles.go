package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/nexosupport/access-service/internal/core/domain"
	"github.com/nexosupport/access-service/internal/repository"
	"github.com/nexosupport/access-service/internal/usecase"
)

// RoleHandler serves role definitions and capability grants.
type RoleHandler struct {
	roles    *usecase.RoleService
	contexts *usecase.ContextService
}

func NewRoleHandler(roles *usecase.RoleService, contexts *usecase.ContextService) *RoleHandler {
	return &RoleHandler{roles: roles, contexts: contexts}
}

// RegisterRoutes wires the role endpoints. The view and manage middlewares
// enforce the corresponding capabilities.
func (h *RoleHandler) RegisterRoutes(r *gin.RouterGroup, view, manage gin.HandlerFunc) {
	r.GET("", view, h.ListRoles)
	r.GET("/:id", view, h.GetRole)
	r.GET("/:id/capabilities", view, h.Capabilities)
	r.GET("/:id/users", view, h.Users)
	r.POST("", manage, h.CreateRole)
	r.PATCH("/:id", manage, h.UpdateRole)
	r.DELETE("/:id", manage, h.DeleteRole)
	r.POST("/:id/move-up", manage, h.MoveUp)
	r.POST("/:id/move-down", manage, h.MoveDown)
	r.POST("/:id/capabilities", manage, h.GrantCapability)
	r.DELETE("/:id/capabilities", manage, h.RevokeCapability)
}

// nodeFromQuery resolves the context_id query parameter, defaulting to the
// system context when absent.
func (h *RoleHandler) nodeFromQuery(c *gin.Context) (*domain.Context, bool) {
	contextID, err := queryInt64(c, "context_id", 0)
	if err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid context_id parameter"))
		return nil, false
	}

	if contextID == 0 {
		node, err := h.contexts.SystemContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve system context"))
			return nil, false
		}
		return node, true
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

func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roles.ListRoles(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list roles"))
		return
	}

	payload := make([]RolePayload, 0, len(roles))
	for _, role := range roles {
		payload = append(payload, toRolePayload(role))
	}

	c.JSON(http.StatusOK, payload)
}

func (h *RoleHandler) GetRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	role, err := h.roles.GetRole(c.Request.Context(), roleID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to load role")
		return
	}

	c.JSON(http.StatusOK, toRolePayload(*role))
}

func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req RoleCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	sys, err := h.contexts.SystemContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve system context"))
		return
	}

	input := usecase.CreateRoleInput{
		Shortname: strings.TrimSpace(req.Shortname),
		Name:      strings.TrimSpace(req.Name),
		Archetype: strings.TrimSpace(req.Archetype),
	}

	if req.Description != nil {
		trimmed := strings.TrimSpace(*req.Description)
		if trimmed != "" {
			descCopy := trimmed
			input.Description = &descCopy
		}
	}

	role, err := h.roles.CreateRole(c.Request.Context(), actorFrom(c), *sys, input)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidShortname, Status: http.StatusBadRequest, Message: "invalid role shortname"},
			{Err: usecase.ErrRoleExists, Status: http.StatusConflict, Message: "role already exists"},
		}, http.StatusInternalServerError, "failed to create role")
		return
	}

	c.JSON(http.StatusCreated, toRolePayload(*role))
}

func (h *RoleHandler) UpdateRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req RoleUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid role payload"))
		return
	}

	sys, err := h.contexts.SystemContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve system context"))
		return
	}

	role, err := h.roles.UpdateRole(c.Request.Context(), actorFrom(c), *sys, usecase.UpdateRoleInput{
		ID:          roleID,
		Name:        req.Name,
		Description: req.Description,
	})
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to update role")
		return
	}

	c.JSON(http.StatusOK, toRolePayload(*role))
}

func (h *RoleHandler) DeleteRole(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	sys, err := h.contexts.SystemContext(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve system context"))
		return
	}

	if err := h.roles.DeleteRole(c.Request.Context(), actorFrom(c), *sys, roleID); err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
			{Err: usecase.ErrProtectedRole, Status: http.StatusConflict, Message: "system role cannot be deleted"},
		}, http.StatusInternalServerError, "failed to delete role")
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "role deleted"})
}

func (h *RoleHandler) MoveUp(c *gin.Context) {
	h.move(c, h.roles.MoveUp)
}

func (h *RoleHandler) MoveDown(c *gin.Context) {
	h.move(c, h.roles.MoveDown)
}

func (h *RoleHandler) move(c *gin.Context, moveFn func(ctx context.Context, roleID int64) (bool, error)) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	moved, err := moveFn(c.Request.Context(), roleID)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to move role")
		return
	}

	c.JSON(http.StatusOK, RoleMoveResponse{Moved: moved})
}

func (h *RoleHandler) GrantCapability(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	var req CapabilityGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid grant payload"))
		return
	}

	node, ok := h.nodeFromBody(c, req.ContextID)
	if !ok {
		return
	}

	permission := domain.Permission(req.Permission)
	grantID, err := h.roles.GrantCapability(c.Request.Context(), actorFrom(c), roleID, req.Capability, permission, *node)
	if err != nil {
		RespondWithMappedError(c, err, []ErrorCase{
			{Err: usecase.ErrInvalidCapability, Status: http.StatusBadRequest, Message: "capability is required"},
			{Err: usecase.ErrInvalidPermission, Status: http.StatusBadRequest, Message: "invalid permission value"},
			{Err: repository.ErrNotFound, Status: http.StatusNotFound, Message: "role not found"},
		}, http.StatusInternalServerError, "failed to set capability")
		return
	}

	c.JSON(http.StatusOK, CapabilityGrantResponse{
		GrantID:    grantID,
		Capability: req.Capability,
		Permission: permission.String(),
		ContextID:  node.ID,
	})
}

func (h *RoleHandler) RevokeCapability(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	capability := strings.TrimSpace(c.Query("capability"))
	if capability == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "capability query parameter is required"))
		return
	}

	node, ok := h.nodeFromQuery(c)
	if !ok {
		return
	}

	removed, err := h.roles.RevokeCapability(c.Request.Context(), actorFrom(c), roleID, capability, *node)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to revoke capability"))
		return
	}

	if !removed {
		c.JSON(http.StatusOK, MessageResponse{Message: "no grant to revoke"})
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "capability revoked"})
}

func (h *RoleHandler) Capabilities(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	node, ok := h.nodeFromQuery(c)
	if !ok {
		return
	}

	grants, err := h.roles.CapabilitiesOf(c.Request.Context(), roleID, *node)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to load capabilities"))
		return
	}

	capabilities := make(map[string]string, len(grants))
	for capability, permission := range grants {
		capabilities[capability] = permission.String()
	}

	c.JSON(http.StatusOK, CapabilityMapResponse{
		RoleID:       roleID,
		ContextID:    node.ID,
		Capabilities: capabilities,
	})
}

func (h *RoleHandler) Users(c *gin.Context) {
	roleID, ok := pathID(c, "id")
	if !ok {
		return
	}

	node, ok := h.nodeFromQuery(c)
	if !ok {
		return
	}

	users, err := h.roles.UsersWithRole(c.Request.Context(), roleID, *node)
	if err != nil {
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to list role holders"))
		return
	}

	payload := make([]RoleUserPayload, 0, len(users))
	for _, user := range users {
		payload = append(payload, RoleUserPayload{
			ID:        user.ID,
			Username:  user.Username,
			FirstName: user.FirstName,
			LastName:  user.LastName,
		})
	}

	c.JSON(http.StatusOK, payload)
}

// nodeFromBody resolves a context id from a request body, defaulting to the
// system context when zero.
func (h *RoleHandler) nodeFromBody(c *gin.Context, contextID int64) (*domain.Context, bool) {
	if contextID == 0 {
		node, err := h.contexts.SystemContext(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to resolve system context"))
			return nil, false
		}
		return node, true
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
