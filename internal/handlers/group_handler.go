package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

type GroupHandler struct {
	BaseHandler
	service services.GroupService
}

func NewGroupHandler(service services.GroupService, logger utils.Logger) *GroupHandler {
	return &GroupHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// CreateGroup creates a group with an optional initial membership
// @Router /groups [post]
func (h *GroupHandler) CreateGroup(c *gin.Context) {
	h.LogRequest(c, "Creating group")

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.CreateGroupRequest
	if !h.bindJSON(c, &req) {
		return
	}

	group, err := h.service.Create(c.Request.Context(), principal, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, group)
}

// GetGroup returns a group with its members
// @Router /groups/{id} [get]
func (h *GroupHandler) GetGroup(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	group, err := h.service.Get(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, group)
}

// AddMembers adds students to a group; existing members are ignored
// @Router /groups/{id}/members [post]
func (h *GroupHandler) AddMembers(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Adding group members", "group_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.GroupMembersRequest
	if !h.bindJSON(c, &req) {
		return
	}

	result, err := h.service.AddMembers(c.Request.Context(), principal, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// RemoveMember removes one student from a group
// @Router /groups/{id}/members/{student_id} [delete]
func (h *GroupHandler) RemoveMember(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	studentID := h.parseStringIDParam(c, "student_id")
	if studentID == "" {
		return
	}

	h.LogRequest(c, "Removing group member", "group_id", id, "student_id", studentID)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	if err := h.service.RemoveMember(c.Request.Context(), principal, id, studentID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Member removed successfully",
	})
}
