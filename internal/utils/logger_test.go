package utils

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func TestLoggerMiddleware_WritesRequestLine(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger := NewSlogLogger(slog.New(slog.NewJSONHandler(&buf, nil)))

	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set("request_id", "req-1")
		c.Next()
	})
	router.Use(ContextLogger(logger), LoggerMiddleware(logger))
	router.GET("/ping", func(c *gin.Context) {
		if LoggerFromContext(c.Request.Context(), nil) == nil {
			t.Error("request context has no logger")
		}
		c.Status(http.StatusTeapot)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))

	line := strings.TrimSpace(buf.String())
	var entry map[string]any
	if err := json.Unmarshal([]byte(line), &entry); err != nil {
		t.Fatalf("log line is not JSON: %q", line)
	}
	if entry["request_id"] != "req-1" || entry["path"] != "/ping" || entry["level"] != "WARN" {
		t.Errorf("log entry = %v", entry)
	}
	if entry["status"].(float64) != http.StatusTeapot {
		t.Errorf("status = %v", entry["status"])
	}
}
