package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"", zerolog.InfoLevel},
		{"verbose", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := ParseLevel(tt.in); got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.log")
	l, closer := New(Config{Level: "info", Output: path, Component: "test", JSONFormat: true})

	l.Debug().Msg("hidden")
	l.Info().Str("symbol", "LTCUSDT_UMCBL").Msg("visible")
	if err := closer.Close(); err != nil {
		t.Fatalf("Unexpected close error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 1 {
		t.Fatalf("Expected 1 line, got %d: %s", len(lines), data)
	}

	var entry map[string]interface{}
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("Expected JSON output: %v", err)
	}
	if entry["component"] != "test" {
		t.Errorf("Expected component test, got %v", entry["component"])
	}
	if entry["symbol"] != "LTCUSDT_UMCBL" {
		t.Errorf("Expected symbol field, got %v", entry["symbol"])
	}
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	fallback := zerolog.New(&buf)

	got := FromContext(context.Background(), fallback)
	got.Info().Msg("fallback")
	if !strings.Contains(buf.String(), "fallback") {
		t.Error("Expected fallback logger without a context logger")
	}

	var scoped bytes.Buffer
	ctx := NewContext(context.Background(), zerolog.New(&scoped))
	l := FromContext(ctx, fallback)
	l.Info().Msg("scoped")
	if !strings.Contains(scoped.String(), "scoped") {
		t.Error("Expected context logger to be used")
	}
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var buf bytes.Buffer
	r := gin.New()
	r.Use(GinMiddleware(zerolog.New(&buf)))
	r.GET("/ping", func(c *gin.Context) {
		reqLog := FromContext(c.Request.Context(), zerolog.Nop())
		reqLog.Info().Msg("inside")
		c.String(http.StatusOK, "pong")
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Trace-ID", "trace-123")
	r.ServeHTTP(w, req)

	if w.Header().Get("X-Trace-ID") != "trace-123" {
		t.Errorf("Expected trace header to be echoed, got %q", w.Header().Get("X-Trace-ID"))
	}
	out := buf.String()
	if strings.Count(out, "trace-123") != 2 {
		t.Errorf("Expected trace id on both log lines, got %s", out)
	}
	if !strings.Contains(out, `"status_code":200`) {
		t.Errorf("Expected status code in completion log, got %s", out)
	}
}
