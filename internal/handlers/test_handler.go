package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

type TestHandler struct {
	BaseHandler
	service services.TestService
}

func NewTestHandler(service services.TestService, logger utils.Logger) *TestHandler {
	return &TestHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// CreateTest creates an unpublished test owned by the caller
// @Router /tests [post]
func (h *TestHandler) CreateTest(c *gin.Context) {
	h.LogRequest(c, "Creating test")

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.CreateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.service.Create(c.Request.Context(), principal, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, test)
}

// GetTest returns a test with its window state and attempt count
// @Router /tests/{id} [get]
func (h *TestHandler) GetTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Getting test", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	test, err := h.service.GetByID(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// ListTests lists the caller's tests; school admins see every test
// @Param page query int false "Page number (default: 1)"
// @Param size query int false "Page size (default: 20, max: 100)"
// @Param q query string false "Title search"
// @Param published query bool false "Filter by publish state"
// @Router /tests [get]
func (h *TestHandler) ListTests(c *gin.Context) {
	h.LogRequest(c, "Listing tests")

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	result, err := h.service.List(c.Request.Context(), principal, h.parseTestFilters(c))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// UpdateTest changes title or schedule
// @Router /tests/{id} [put]
func (h *TestHandler) UpdateTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating test", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.UpdateTestRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.service.Update(c.Request.Context(), principal, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// UpdateStructure replaces the question tree (editor autosave)
// @Router /tests/{id}/structure [put]
func (h *TestHandler) UpdateStructure(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Updating test structure", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.UpdateStructureRequest
	if !h.bindJSON(c, &req) {
		return
	}

	test, err := h.service.UpdateStructure(c.Request.Context(), principal, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, test)
}

// DeleteTest removes a test that nobody has attempted
// @Router /tests/{id} [delete]
func (h *TestHandler) DeleteTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting test", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), principal, id); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Test deleted successfully",
	})
}

// DuplicateTest copies a test without its assignment or publish state
// @Router /tests/{id}/duplicate [post]
func (h *TestHandler) DuplicateTest(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Duplicating test", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	test, err := h.service.Duplicate(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, test)
}

// TogglePublish flips the publish state, subject to the publish guard
// @Success 200 {object} services.PublishToggleResponse
// @Failure 400 {object} ErrorResponse "Precondition failed, reason in message"
// @Router /tests/{id}/publish-toggle [post]
func (h *TestHandler) TogglePublish(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Toggling test publish state", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	result, err := h.service.TogglePublish(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetAssignment returns the three id-sets and the live eligible set
// @Router /tests/{id}/assignment [get]
func (h *TestHandler) GetAssignment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	assignment, err := h.service.GetAssignment(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assignment)
}

// SetAssignment replaces the assignment of a test
// @Router /tests/{id}/assignment [put]
func (h *TestHandler) SetAssignment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Setting test assignment", "test_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.AssignmentRequest
	if !h.bindJSON(c, &req) {
		return
	}

	assignment, err := h.service.SetAssignment(c.Request.Context(), principal, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assignment)
}

// CheckEligibility reports whether a student may take the test. Students
// may omit the student parameter to ask about themselves.
// @Param student query string false "Student ID"
// @Router /tests/{id}/eligibility [get]
func (h *TestHandler) CheckEligibility(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	result, err := h.service.CheckEligibility(c.Request.Context(), principal, id, strings.TrimSpace(c.Query("student")))
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// ===== HELPER METHODS =====

func (h *TestHandler) parseTestFilters(c *gin.Context) repositories.TestFilters {
	page := h.parseIntQuery(c, "page", 1)
	if page < 1 {
		page = 1
	}
	size := h.parseIntQuery(c, "size", 20)

	filters := repositories.TestFilters{
		Query:     strings.TrimSpace(c.Query("q")),
		Limit:     size,
		Offset:    (page - 1) * size,
		SortBy:    c.Query("sort_by"),
		SortOrder: c.Query("sort_order"),
	}

	switch c.Query("published") {
	case "true":
		published := true
		filters.Published = &published
	case "false":
		published := false
		filters.Published = &published
	}

	return filters
}
