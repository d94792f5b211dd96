package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/casdoor/casdoor-go-sdk/casdoorsdk"
	"github.com/gin-gonic/gin"

	"github.com/SAP-F-2025/test-access-service/internal/events"
	"github.com/SAP-F-2025/test-access-service/internal/models"
	"github.com/SAP-F-2025/test-access-service/internal/repositories/memory"
	"github.com/SAP-F-2025/test-access-service/internal/services"
	"github.com/SAP-F-2025/test-access-service/internal/utils"
)

// fakeTokens treats the bearer token as the user id
type fakeTokens struct{}

func (fakeTokens) ParseJwtToken(token string) (*casdoorsdk.Claims, error) {
	if token == "expired" {
		return nil, errors.New("token is expired")
	}
	return &casdoorsdk.Claims{User: casdoorsdk.User{Id: token}}, nil
}

func newTestRouter(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	slogger := slog.New(slog.NewTextHandler(io.Discard, nil))
	logger := utils.NewSlogLogger(slogger)

	users := memory.NewUserDirectory(
		&models.User{ID: "teacher-1", FullName: "Teacher One", Role: models.RoleTeacher},
		&models.User{ID: "s1", FullName: "Student One", Role: models.RoleStudent},
		&models.User{ID: "s2", FullName: "Student Two", Role: models.RoleStudent},
	)

	sm := services.NewServiceManager(services.ServiceDependencies{
		Repo:      memory.NewRepository(users),
		Publisher: events.NewMockEventPublisher(slogger),
		Logger:    slogger,
	}, services.DefaultServiceManagerConfig())
	if err := sm.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}

	router := gin.New()
	SetupMiddleware(router, logger)
	NewHandlerManager(sm, logger, NewAuthMiddleware(fakeTokens{}, users), users).SetupRoutes(router)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dest); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func expectStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d (body %s)", w.Code, want, w.Body.String())
	}
}

// createPublishedTest creates a test as teacher-1, assigns it to students and publishes it
func createPublishedTest(t *testing.T, router *gin.Engine, body map[string]interface{}, students ...string) uint {
	t.Helper()

	w := doRequest(t, router, http.MethodPost, "/api/v1/tests", "teacher-1", body)
	expectStatus(t, w, http.StatusCreated)
	var created struct {
		ID uint `json:"id"`
	}
	decode(t, w, &created)

	base := fmt.Sprintf("/api/v1/tests/%d", created.ID)
	w = doRequest(t, router, http.MethodPut, base+"/assignment", "teacher-1", map[string]interface{}{
		"direct_student_ids": students,
	})
	expectStatus(t, w, http.StatusOK)

	w = doRequest(t, router, http.MethodPost, base+"/publish-toggle", "teacher-1", nil)
	expectStatus(t, w, http.StatusOK)

	return created.ID
}

func sampleQuestions() []map[string]interface{} {
	return []map[string]interface{}{
		{"id": "q1", "prompt": "Define entropy", "marks": 5},
		{"id": "q2", "prompt": "State the first law", "marks": 5},
	}
}

func TestRouter_Authentication(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name     string
		method   string
		path     string
		token    string
		wantCode int
		wantErr  string
	}{
		{name: "missing token", method: http.MethodGet, path: "/api/v1/tests", wantCode: http.StatusUnauthorized, wantErr: "unauthenticated"},
		{name: "rejected token", method: http.MethodGet, path: "/api/v1/tests", token: "expired", wantCode: http.StatusUnauthorized, wantErr: "unauthenticated"},
		{name: "unknown user", method: http.MethodGet, path: "/api/v1/tests", token: "ghost", wantCode: http.StatusForbidden, wantErr: "unknown_role"},
		{name: "student on teacher route", method: http.MethodGet, path: "/api/v1/tests", token: "s1", wantCode: http.StatusForbidden, wantErr: "not_authorized"},
		{name: "teacher on student route", method: http.MethodGet, path: "/api/v1/students/me/tests", token: "teacher-1", wantCode: http.StatusForbidden, wantErr: "not_authorized"},
		{name: "teacher lists tests", method: http.MethodGet, path: "/api/v1/tests", token: "teacher-1", wantCode: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, tt.method, tt.path, tt.token, nil)
			expectStatus(t, w, tt.wantCode)
			if tt.wantErr == "" {
				return
			}
			var resp ErrorResponse
			decode(t, w, &resp)
			if resp.Code != tt.wantErr {
				t.Errorf("code = %q, want %q", resp.Code, tt.wantErr)
			}
		})
	}
}

func TestRouter_TakeTestFlow(t *testing.T) {
	router := newTestRouter(t)

	id := createPublishedTest(t, router, map[string]interface{}{
		"title":            "Physics midterm",
		"duration_minutes": 60,
		"questions":        sampleQuestions(),
	}, "s1")
	base := fmt.Sprintf("/api/v1/tests/%d", id)

	w := doRequest(t, router, http.MethodGet, "/api/v1/students/me/tests", "s1", nil)
	expectStatus(t, w, http.StatusOK)
	var listed struct {
		Total int `json:"total"`
	}
	decode(t, w, &listed)
	if listed.Total != 1 {
		t.Fatalf("student sees %d tests, want 1", listed.Total)
	}

	w = doRequest(t, router, http.MethodPost, base+"/attempts/start", "s1", nil)
	expectStatus(t, w, http.StatusOK)
	var started services.AttemptResponse
	decode(t, w, &started)
	if started.State != models.AttemptInProgress {
		t.Errorf("state = %q, want %q", started.State, models.AttemptInProgress)
	}

	w = doRequest(t, router, http.MethodPost, base+"/answers", "s1", map[string]string{
		"question_id": "q1",
		"text":        "A measure of disorder",
	})
	expectStatus(t, w, http.StatusOK)

	w = doRequest(t, router, http.MethodPost, base+"/answers", "s1", map[string]string{
		"question_id": "q9",
		"text":        "no such question",
	})
	expectStatus(t, w, http.StatusNotFound)

	w = doRequest(t, router, http.MethodGet, base+"/answers", "s1", nil)
	expectStatus(t, w, http.StatusOK)
	var answers services.AnswersResponse
	decode(t, w, &answers)
	if answers.Answers["q1"] != "A measure of disorder" {
		t.Errorf("answers = %v", answers.Answers)
	}

	w = doRequest(t, router, http.MethodPost, base+"/submit", "s1", nil)
	expectStatus(t, w, http.StatusOK)
	var submitted services.AttemptResponse
	decode(t, w, &submitted)
	if submitted.State != models.AttemptSubmitted || submitted.AlreadySubmitted {
		t.Errorf("first submit: state = %q already_submitted = %v", submitted.State, submitted.AlreadySubmitted)
	}

	w = doRequest(t, router, http.MethodPost, base+"/submit", "s1", nil)
	expectStatus(t, w, http.StatusOK)
	decode(t, w, &submitted)
	if !submitted.AlreadySubmitted {
		t.Error("second submit should report already_submitted")
	}

	w = doRequest(t, router, http.MethodPost, base+"/answers", "s1", map[string]string{
		"question_id": "q2",
		"text":        "too late",
	})
	expectStatus(t, w, http.StatusConflict)

	// s2 exists but is not assigned
	w = doRequest(t, router, http.MethodPost, base+"/attempts/start", "s2", nil)
	expectStatus(t, w, http.StatusForbidden)

	w = doRequest(t, router, http.MethodGet, base+"/attempts", "teacher-1", nil)
	expectStatus(t, w, http.StatusOK)
}

func TestRouter_StartBeforeOpen(t *testing.T) {
	router := newTestRouter(t)

	start := time.Now().Add(24 * time.Hour).UTC()
	id := createPublishedTest(t, router, map[string]interface{}{
		"title":            "Tomorrow's quiz",
		"start_time":       start,
		"duration_minutes": 30,
		"questions":        sampleQuestions(),
	}, "s1")

	w := doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/tests/%d/attempts/start", id), "s1", nil)
	expectStatus(t, w, http.StatusConflict)

	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Code != "not_yet_open" {
		t.Errorf("code = %q, want not_yet_open", resp.Code)
	}
}

func TestRouter_PublishWithoutStudents(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodPost, "/api/v1/tests", "teacher-1", map[string]interface{}{
		"title":     "Unassigned",
		"questions": sampleQuestions(),
	})
	expectStatus(t, w, http.StatusCreated)
	var created struct {
		ID uint `json:"id"`
	}
	decode(t, w, &created)

	w = doRequest(t, router, http.MethodPost, fmt.Sprintf("/api/v1/tests/%d/publish-toggle", created.ID), "teacher-1", nil)
	expectStatus(t, w, http.StatusBadRequest)

	var resp ErrorResponse
	decode(t, w, &resp)
	if resp.Code != "no_students_assigned" {
		t.Errorf("code = %q, want no_students_assigned", resp.Code)
	}
}

func TestRouter_InvalidInput(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     interface{}
		wantCode int
	}{
		{name: "non-numeric id", method: http.MethodGet, path: "/api/v1/tests/abc", wantCode: http.StatusBadRequest},
		{name: "zero id", method: http.MethodGet, path: "/api/v1/tests/0", wantCode: http.StatusBadRequest},
		{name: "missing test", method: http.MethodGet, path: "/api/v1/tests/999", wantCode: http.StatusNotFound},
		{name: "blank title", method: http.MethodPost, path: "/api/v1/tests", body: map[string]string{"title": "  "}, wantCode: http.StatusBadRequest},
		{name: "unknown student in group", method: http.MethodPost, path: "/api/v1/groups", body: map[string]interface{}{"name": "Class A", "student_ids": []string{"nobody"}}, wantCode: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, router, tt.method, tt.path, "teacher-1", tt.body)
			expectStatus(t, w, tt.wantCode)
		})
	}
}

func TestRouter_HealthAndTemplate(t *testing.T) {
	router := newTestRouter(t)

	w := doRequest(t, router, http.MethodGet, "/health", "", nil)
	expectStatus(t, w, http.StatusOK)

	w = doRequest(t, router, http.MethodGet, "/ready", "", nil)
	expectStatus(t, w, http.StatusOK)

	w = doRequest(t, router, http.MethodGet, "/api/v1/imports/template", "teacher-1", nil)
	expectStatus(t, w, http.StatusOK)
	if got := w.Header().Get("Content-Type"); got != xlsxContentType {
		t.Errorf("Content-Type = %q, want %q", got, xlsxContentType)
	}
	if w.Body.Len() == 0 {
		t.Error("template body is empty")
	}
}
