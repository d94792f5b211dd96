package handlers

import (
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

const (
	maxRosterFileSize = 10 << 20
	xlsxContentType   = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// ImportHandler serves roster imports into group membership
type ImportHandler struct {
	BaseHandler
	service services.ImportService
}

func NewImportHandler(service services.ImportService, logger utils.Logger) *ImportHandler {
	return &ImportHandler{
		BaseHandler: NewBaseHandler(logger),
		service:     service,
	}
}

// CreateImport uploads a roster workbook and stages its rows for review
// @Accept multipart/form-data
// @Param file formData file true "Roster workbook (.xlsx)"
// @Param group_id formData uint true "Target group"
// @Router /imports [post]
func (h *ImportHandler) CreateImport(c *gin.Context) {
	h.LogRequest(c, "Creating roster import")

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	groupID, err := strconv.ParseUint(c.PostForm("group_id"), 10, 32)
	if err != nil || groupID == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid group_id",
			Code:    "invalid_parameter",
		})
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Roster file is required",
			Code:    "invalid_import_file",
			Details: err.Error(),
		})
		return
	}
	if header.Size > maxRosterFileSize {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Roster file is too large",
			Code:    "invalid_import_file",
		})
		return
	}
	if !strings.EqualFold(filepath.Ext(header.Filename), ".xlsx") {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Roster file must be an .xlsx workbook",
			Code:    "invalid_import_file",
		})
		return
	}

	file, err := header.Open()
	if err != nil {
		h.LogError(c, err, "Failed to open uploaded roster")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Could not read roster file",
			Code:    "invalid_import_file",
		})
		return
	}
	defer file.Close()

	req := services.CreateImportRequest{
		GroupID:  uint(groupID),
		FileName: filepath.Base(header.Filename),
	}

	session, err := h.service.CreateSession(c.Request.Context(), principal, &req, file)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetImport returns an import session with its rows
// @Router /imports/{id} [get]
func (h *ImportHandler) GetImport(c *gin.Context) {
	id := h.parseStringIDParam(c, "id")
	if id == "" {
		return
	}

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	session, err := h.service.GetSession(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ReviewImport marks rows the teacher rejected and moves the session to reviewed
// @Router /imports/{id}/review [post]
func (h *ImportHandler) ReviewImport(c *gin.Context) {
	id := h.parseStringIDParam(c, "id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Reviewing roster import", "import_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req services.ReviewImportRequest
	if !h.bindJSON(c, &req) {
		return
	}

	session, err := h.service.Review(c.Request.Context(), principal, id, &req)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// CommitImport adds every accepted row to the group
// @Router /imports/{id}/commit [post]
func (h *ImportHandler) CommitImport(c *gin.Context) {
	id := h.parseStringIDParam(c, "id")
	if id == "" {
		return
	}

	h.LogRequest(c, "Committing roster import", "import_id", id)

	principal, ok := h.principal(c)
	if !ok {
		return
	}

	result, err := h.service.Commit(c.Request.Context(), principal, id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// DownloadTemplate serves an empty roster workbook
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Router /imports/template [get]
func (h *ImportHandler) DownloadTemplate(c *gin.Context) {
	data, err := h.service.Template()
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", `attachment; filename="roster_template.xlsx"`)
	c.Data(http.StatusOK, xlsxContentType, data)
}
