package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

type StudentHandler struct {
	BaseHandler
	service services.TestService
}

func NewStudentHandler(service services.TestService, logger utils.Logger) *StudentHandler {
	return &StudentHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// ===== STUDENT ENDPOINTS =====

// GetStudentTests returns the published tests the current student is assigned to
// @Summary Get student tests
// @Description Lists assigned tests with window state and the student's attempt state
// @Tags students
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 403 {object} ErrorResponse "Not a student"
// @Router /students/me/tests [get]
func (h *StudentHandler) GetStudentTests(c *gin.Context) {
	h.LogRequest(c, "Getting student tests")

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	tests, err := h.service.ListAvailable(c.Request.Context(), principal)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tests": tests,
		"total": len(tests),
	})
}
