package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

// AttemptHandler serves the student side of taking a test: starting,
// autosaving answers and submitting
type AttemptHandler struct {
	BaseHandler
	attemptService services.AttemptService
	answerService  services.AnswerService
}

func NewAttemptHandler(
	attemptService services.AttemptService,
	answerService services.AnswerService,
	logger utils.Logger,
) *AttemptHandler {
	return &AttemptHandler{
		BaseHandler:    NewBaseHandler(logger),
		attemptService: attemptService,
		answerService:  answerService,
	}
}

// StartAttempt starts, or resumes, the caller's attempt
// @Summary Start test attempt
// @Tags attempts
// @Produce json
// @Param id path uint true "Test ID"
// @Success 200 {object} services.AttemptResponse
// @Failure 403 {object} ErrorResponse "Not assigned or not published"
// @Failure 409 {object} ErrorResponse "Window not open or closed"
// @Router /tests/{id}/attempts/start [post]
func (h *AttemptHandler) StartAttempt(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	h.LogRequest(c, "Starting test attempt", "test_id", testID)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Start(c.Request.Context(), principal, testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// GetMyAttempt returns the caller's attempt snapshot
// @Router /tests/{id}/attempts/me [get]
func (h *AttemptHandler) GetMyAttempt(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.GetAttempt(c.Request.Context(), principal, testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// SubmitAttempt finalises the caller's attempt. Submitting twice returns
// the same snapshot with already_submitted set.
// @Router /tests/{id}/submit [post]
func (h *AttemptHandler) SubmitAttempt(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	h.LogRequest(c, "Submitting test attempt", "test_id", testID)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	attempt, err := h.attemptService.Submit(c.Request.Context(), principal, testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, attempt)
}

// ListAttempts gives the test owner an overview of every attempt
// @Router /tests/{id}/attempts [get]
func (h *AttemptHandler) ListAttempts(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	h.LogRequest(c, "Listing test attempts", "test_id", testID)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	attempts, err := h.attemptService.ListByTest(c.Request.Context(), principal, testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"test_id":  testID,
		"attempts": attempts,
	})
}

// SaveAnswer autosaves the text of one question
// @Param answer body services.SaveAnswerRequest true "Answer data"
// @Success 200 {object} services.SaveAnswerResponse
// @Failure 409 {object} ErrorResponse "Attempt not active or window closed"
// @Router /tests/{id}/answers [post]
func (h *AttemptHandler) SaveAnswer(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.SaveAnswerRequest
	if !h.bindJSON(c, &req) {
		return
	}

	saved, err := h.answerService.SaveAnswer(c.Request.Context(), principal, testID, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, saved)
}

// GetAnswers returns every saved answer of the caller's attempt
// @Router /tests/{id}/answers [get]
func (h *AttemptHandler) GetAnswers(c *gin.Context) {
	testID := h.parseIDParam(c, "id")
	if testID == 0 {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	answers, err := h.answerService.GetAnswers(c.Request.Context(), principal, testID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, answers)
}
