package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

// ErrorResponse is the body of every non-2xx response. Code is stable and
// meant for clients to branch on.
type ErrorResponse struct {
	Message string      `json:"message"`
	Code    string      `json:"code,omitempty"`
	Details interface{} `json:"details,omitempty"`
}

type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// BaseHandler carries what every handler needs: logging, parameter parsing,
// the caller's principal and error mapping
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

func (h *BaseHandler) LogRequest(c *gin.Context, msg string, args ...any) {
	args = append(args, "user_id", c.GetString("user_id"))
	utils.GetLogger(c, h.logger).Info(msg, args...)
}

func (h *BaseHandler) LogError(c *gin.Context, err error, msg string, args ...any) {
	args = append(args, "error", err, "user_id", c.GetString("user_id"))
	utils.GetLogger(c, h.logger).Error(msg, args...)
}

// principal returns the authenticated caller, answering 401 when the auth
// middleware did not run
func (h *BaseHandler) principal(c *gin.Context) (models.Principal, bool) {
	if v, ok := c.Get(principalContextKey); ok {
		if p, ok := v.(models.Principal); ok {
			return p, true
		}
	}
	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Message: "User not authenticated",
		Code:    "unauthenticated",
	})
	return models.Principal{}, false
}

func (h *BaseHandler) parseIDParam(c *gin.Context, param string) uint {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		details := "ID must be a positive integer"
		if err != nil {
			details = err.Error()
		}
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Code:    "invalid_parameter",
			Details: details,
		})
		return 0
	}
	return uint(id)
}

func (h *BaseHandler) parseStringIDParam(c *gin.Context, param string) string {
	idStr := strings.TrimSpace(c.Param(param))
	if idStr == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + param,
			Code:    "invalid_parameter",
			Details: "ID cannot be empty",
		})
		return ""
	}
	return idStr
}

func (h *BaseHandler) parseIntQuery(c *gin.Context, param string, defaultValue int) int {
	valueStr := c.Query(param)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// bindJSON decodes the request body, answering 400 on malformed input
func (h *BaseHandler) bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Code:    "invalid_payload",
			Details: err.Error(),
		})
		return false
	}
	return true
}

func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Code:    "validation_failed",
			Details: validationErrors,
		})
		return
	}

	if pe, ok := services.IsPreconditionError(err); ok {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: pe.Reason,
			Code:    pe.Code,
			Details: pe,
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Code:    "not_authorized",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	case errors.Is(err, services.ErrNotAuthorized):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Code:    "not_authorized",
		})

	// Window and attempt state
	case errors.Is(err, services.ErrNotYetOpen):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Test has not opened yet",
			Code:    "not_yet_open",
		})
	case errors.Is(err, services.ErrWindowClosed):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Test window has closed",
			Code:    "window_closed",
		})
	case errors.Is(err, services.ErrAttemptNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt is not active",
			Code:    "attempt_not_active",
		})
	case errors.Is(err, services.ErrAttemptNotStarted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Attempt has not been started",
			Code:    "attempt_not_started",
		})

	// Lookups
	case errors.Is(err, services.ErrTestNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Test not found", Code: "test_not_found"})
	case errors.Is(err, services.ErrAttemptNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Attempt not found", Code: "attempt_not_found"})
	case errors.Is(err, services.ErrGroupNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Group not found", Code: "group_not_found"})
	case errors.Is(err, services.ErrStudentNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Student not found", Code: "student_not_found", Details: err.Error()})
	case errors.Is(err, services.ErrQuestionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Question not found in test", Code: "question_not_found"})
	case errors.Is(err, services.ErrImportSessionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Message: "Import session not found", Code: "import_session_not_found"})

	// Input
	case errors.Is(err, services.ErrInvalidImportFile):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid import file",
			Code:    "invalid_import_file",
			Details: err.Error(),
		})
	case errors.Is(err, services.ErrValidationFailed):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Code:    "validation_failed",
			Details: err.Error(),
		})

	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
			Code:    "internal",
		})
	}
}
