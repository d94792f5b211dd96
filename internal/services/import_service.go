package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories"
	"github.com/SAP-F-2025/test-access-service/internal/validator"
)

const (
	rosterSheet        = "Roster"
	studentIDHeader    = "Student ID"
	studentNameHeader  = "Name"
	reasonDuplicate    = "duplicate of row %d"
	reasonMissingID    = "missing student id"
	reasonUnknown      = "not a student account"
	reasonReviewReject = "rejected in review"
)

type importService struct {
	repo      repositories.Repository
	clock     Clock
	ttl       time.Duration
	publisher events.EventPublisher
	logger    *slog.Logger
	validator *validator.Validator
}

func NewImportService(
	repo repositories.Repository,
	clock Clock,
	ttl time.Duration,
	publisher events.EventPublisher,
	logger *slog.Logger,
	validator *validator.Validator,
) ImportService {
	return &importService{
		repo:      repo,
		clock:     clock,
		ttl:       ttl,
		publisher: publisher,
		logger:    logger,
		validator: validator,
	}
}

// CreateSession parses an uploaded roster into a pending session for the
// given group. Nothing is added to the group until the session is committed.
func (s *importService) CreateSession(ctx context.Context, principal models.Principal, req *CreateImportRequest, file io.Reader) (*models.ImportSession, error) {
	s.logger.Info("Creating roster import",
		"group_id", req.GroupID,
		"file_name", req.FileName,
		"user_id", principal.UserID)

	if err := validate(s.validator, req); err != nil {
		return nil, err
	}
	if _, err := loadOwnedGroup(ctx, s.repo, principal, req.GroupID, "import into"); err != nil {
		return nil, err
	}

	rows, err := parseRoster(file)
	if err != nil {
		return nil, err
	}
	if err := s.flagUnknownStudents(ctx, rows); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	session := &models.ImportSession{
		ID:        uuid.NewString(),
		GroupID:   req.GroupID,
		FileName:  req.FileName,
		Status:    models.ImportPending,
		CreatedBy: principal.UserID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	session.SetRows(rows)

	if err := s.repo.ImportSession().Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create import session: %w", err)
	}

	s.logger.Info("Roster import staged",
		"session_id", session.ID,
		"rows", len(rows),
		"accepted", len(session.AcceptedStudentIDs()))
	return session, nil
}

func (s *importService) GetSession(ctx context.Context, principal models.Principal, id string) (*models.ImportSession, error) {
	return s.loadSession(ctx, principal, id, "view")
}

// Review marks the listed row numbers as rejected and moves the session to
// reviewed
func (s *importService) Review(ctx context.Context, principal models.Principal, id string, req *ReviewImportRequest) (*models.ImportSession, error) {
	if err := validate(s.validator, req); err != nil {
		return nil, err
	}
	session, err := s.loadSession(ctx, principal, id, "review")
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, session, models.ImportReviewed); err != nil {
		return nil, err
	}

	rejected := make(map[int]struct{}, len(req.RejectedRows))
	for _, n := range req.RejectedRows {
		rejected[n] = struct{}{}
	}

	rows := append([]models.ImportRow(nil), session.RowList()...)
	for i := range rows {
		if _, ok := rejected[rows[i].RowNumber]; ok && !rows[i].Rejected {
			rows[i].Rejected = true
			rows[i].Reason = reasonReviewReject
		}
		delete(rejected, rows[i].RowNumber)
	}
	if len(rejected) > 0 {
		return nil, fmt.Errorf("%w: rejected_rows names rows not in the import", ErrValidationFailed)
	}

	now := s.clock.Now()
	session.SetRows(rows)
	session.Status = models.ImportReviewed
	session.ReviewedAt = &now
	session.UpdatedAt = now

	if err := s.repo.ImportSession().Update(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to update import session: %w", err)
	}
	return session, nil
}

// Commit adds every accepted student to the group and closes the session
func (s *importService) Commit(ctx context.Context, principal models.Principal, id string) (*ImportCommitResponse, error) {
	session, err := s.loadSession(ctx, principal, id, "commit")
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, session, models.ImportCommitted); err != nil {
		return nil, err
	}
	if _, err := loadOwnedGroup(ctx, s.repo, principal, session.GroupID, "import into"); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	accepted := session.AcceptedStudentIDs()
	var added int
	err = s.repo.WithTransaction(ctx, func(tx repositories.Repository) error {
		var err error
		if added, err = tx.Group().AddMembers(ctx, session.GroupID, accepted); err != nil {
			return fmt.Errorf("failed to add members: %w", err)
		}

		session.Status = models.ImportCommitted
		session.CommittedAt = &now
		session.UpdatedAt = now
		if err := tx.ImportSession().Update(ctx, session); err != nil {
			return fmt.Errorf("failed to update import session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Roster import committed",
		"session_id", session.ID,
		"group_id", session.GroupID,
		"added", added)

	publishEvent(ctx, s.publisher, s.logger, events.NewEvent(events.ImportCommitted, now, map[string]interface{}{
		"session_id": session.ID,
		"group_id":   session.GroupID,
		"added":      added,
		"user_id":    principal.UserID,
	}))

	return &ImportCommitResponse{Session: session, Added: added}, nil
}

// Template returns an empty roster workbook with the expected headers
func (s *importService) Template() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rosterSheet); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(rosterSheet, "A1", studentIDHeader); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(rosterSheet, "B1", studentNameHeader); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(rosterSheet, "A1", "B1", bold); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(rosterSheet, "A", "B", 30); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write template: %w", err)
	}
	return buf.Bytes(), nil
}

// ExpireStale expires pending and reviewed sessions older than the TTL
func (s *importService) ExpireStale(ctx context.Context) (int64, error) {
	cutoff := s.clock.Now().Add(-s.ttl)
	n, err := s.repo.ImportSession().ExpireBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to expire import sessions: %w", err)
	}
	if n > 0 {
		s.logger.Info("Expired stale import sessions", "count", n, "cutoff", cutoff)
	}
	return n, nil
}

// ===== HELPERS =====

func (s *importService) loadSession(ctx context.Context, principal models.Principal, id, action string) (*models.ImportSession, error) {
	if !principal.CanManageTests() {
		return nil, NewPermissionError(principal.UserID, id, "import session", action, "teacher role required")
	}

	session, err := s.repo.ImportSession().GetByID(ctx, id)
	if err != nil {
		if repositories.IsNotFoundError(err) {
			return nil, ErrImportSessionNotFound
		}
		return nil, fmt.Errorf("failed to get import session: %w", err)
	}
	if !principal.Owns(session.CreatedBy) {
		return nil, NewPermissionError(principal.UserID, id, "import session", action, "not the owner")
	}
	return session, nil
}

// transition checks that the session may move to next. A session past its
// TTL is expired on the spot.
func (s *importService) transition(ctx context.Context, session *models.ImportSession, next models.ImportStatus) error {
	now := s.clock.Now()
	if session.Status.CanTransitionTo(models.ImportExpired) && now.Sub(session.CreatedAt) > s.ttl {
		session.Status = models.ImportExpired
		session.UpdatedAt = now
		if err := s.repo.ImportSession().Update(ctx, session); err != nil {
			return fmt.Errorf("failed to expire import session: %w", err)
		}
		return NewPreconditionError(ReasonSessionExpired, "import session has expired")
	}

	if !session.Status.CanTransitionTo(next) {
		return NewPreconditionError(ReasonInvalidTransition,
			fmt.Sprintf("cannot move import session from %s to %s", session.Status, next))
	}
	return nil
}

func (s *importService) flagUnknownStudents(ctx context.Context, rows []models.ImportRow) error {
	var ids []string
	for _, row := range rows {
		if !row.Rejected {
			ids = append(ids, row.StudentID)
		}
	}

	missing, err := unknownStudents(ctx, s.repo.User(), ids)
	if err != nil {
		return err
	}
	unknown := make(map[string]struct{}, len(missing))
	for _, id := range missing {
		unknown[id] = struct{}{}
	}

	for i := range rows {
		if _, ok := unknown[rows[i].StudentID]; ok && !rows[i].Rejected {
			rows[i].Rejected = true
			rows[i].Reason = reasonUnknown
		}
	}
	return nil
}

// parseRoster reads the first sheet of an .xlsx workbook. The first row is
// the header and must contain a Student ID column; blank rows are skipped
// and repeated ids are kept but rejected.
func parseRoster(r io.Reader) ([]models.ImportRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrInvalidImportFile)
	}
	grid, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImportFile, err)
	}
	if len(grid) == 0 {
		return nil, fmt.Errorf("%w: sheet is empty", ErrInvalidImportFile)
	}

	idCol, nameCol := -1, -1
	for i, cell := range grid[0] {
		switch normalizeHeader(cell) {
		case "studentid":
			idCol = i
		case "name", "fullname":
			nameCol = i
		}
	}
	if idCol < 0 {
		return nil, fmt.Errorf("%w: header row has no %q column", ErrInvalidImportFile, studentIDHeader)
	}

	var rows []models.ImportRow
	seen := make(map[string]int)
	for i, line := range grid[1:] {
		if isBlankRow(line) {
			continue
		}

		row := models.ImportRow{
			RowNumber: i + 2,
			StudentID: cellAt(line, idCol),
			Name:      cellAt(line, nameCol),
		}
		switch first, dup := seen[row.StudentID]; {
		case row.StudentID == "":
			row.Rejected = true
			row.Reason = reasonMissingID
		case dup:
			row.Rejected = true
			row.Reason = fmt.Sprintf(reasonDuplicate, first)
		default:
			seen[row.StudentID] = row.RowNumber
		}
		rows = append(rows, row)
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no student rows", ErrInvalidImportFile)
	}
	return rows, nil
}

func normalizeHeader(cell string) string {
	cell = strings.ToLower(strings.TrimSpace(cell))
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(cell)
}

func cellAt(line []string, col int) string {
	if col < 0 || col >= len(line) {
		return ""
	}
	return strings.TrimSpace(line[col])
}

func isBlankRow(line []string) bool {
	for _, cell := range line {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
