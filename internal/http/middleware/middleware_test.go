package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(mw...)
	e.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return e
}

func get(e *gin.Engine, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	e.ServeHTTP(w, req)
	return w
}

// captureLogs swaps the global logger for a buffer for the test's duration.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	log.Logger = zerolog.New(&buf)
	t.Cleanup(func() { log.Logger = prev })
	return &buf
}

func TestRequestID_Generated(t *testing.T) {
	e := newEngine(RequestID())
	w := get(e, "/ping", nil)
	if rid := w.Header().Get("X-Request-ID"); rid == "" {
		t.Fatalf("missing generated request id")
	}
}

func TestRequestID_Propagated(t *testing.T) {
	e := newEngine(RequestID())
	w := get(e, "/ping", map[string]string{"X-Request-ID": "abc-123"})
	if rid := w.Header().Get("X-Request-ID"); rid != "abc-123" {
		t.Fatalf("request id = %q, want abc-123", rid)
	}
}

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	buf := captureLogs(t)

	gin.SetMode(gin.TestMode)
	e := gin.New()
	e.Use(RequestID(), Recovery())
	e.GET("/boom", func(c *gin.Context) { panic("kaboom") })

	w := get(e, "/boom", nil)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	if body["code"] != "internal_error" || body["request_id"] == "" {
		t.Fatalf("body = %v", body)
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged: %s", buf.String())
	}
}

func TestRedactingLogger_ScrubsTokenAndSecret(t *testing.T) {
	buf := captureLogs(t)

	const token = "7133920532:AAHk3yZqWvNb8cDeFgHiJkLmNoPqRsTuVwX"
	e := newEngine(RequestID(), RedactingLogger(RedactOptions{}))
	get(e, "/ping?token="+token, map[string]string{
		SecretTokenHeader: "hunter2",
		"Authorization":   "Bearer " + token,
	})

	out := buf.String()
	if strings.Contains(out, token) {
		t.Fatalf("token leaked in logs: %s", out)
	}
	if strings.Contains(out, "hunter2") {
		t.Fatalf("webhook secret leaked in logs: %s", out)
	}
	if !strings.Contains(out, "[REDACTED") {
		t.Fatalf("no redaction markers in logs: %s", out)
	}
}

func TestRedactingLogger_ScrubsEmails(t *testing.T) {
	buf := captureLogs(t)

	e := newEngine(RedactingLogger(RedactOptions{}))
	get(e, "/ping?contact=alice@example.com", nil)

	out := buf.String()
	if strings.Contains(out, "alice@example.com") {
		t.Fatalf("email leaked in logs: %s", out)
	}
	if !strings.Contains(out, "[REDACTED:email]") {
		t.Fatalf("email not scrubbed: %s", out)
	}
}

func TestRateLimiter_BurstThen429(t *testing.T) {
	e := newEngine(NewRateLimiter(0, 2, KeyByIP()).Handler())

	for i := 0; i < 2; i++ {
		if w := get(e, "/ping", nil); w.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d", i, w.Code)
		}
	}
	w := get(e, "/ping", nil)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatalf("missing Retry-After")
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	if body["code"] != "rate_limited" {
		t.Fatalf("body = %v", body)
	}
}

func TestSecurityHeaders_Baseline(t *testing.T) {
	e := newEngine(SecurityHeaders(SecurityOptions{}))
	w := get(e, "/ping", nil)

	if w.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Fatalf("missing nosniff")
	}
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Fatalf("missing frame options")
	}
	if w.Header().Get("Referrer-Policy") != "no-referrer" {
		t.Fatalf("missing referrer policy")
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS set without opting in")
	}
}

func TestSecurityHeaders_HSTSOnlyOverHTTPS(t *testing.T) {
	e := newEngine(SecurityHeaders(SecurityOptions{EnableHSTS: true}))

	w := get(e, "/ping", nil)
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Fatalf("HSTS emitted for plain HTTP")
	}

	w = get(e, "/ping", map[string]string{"X-Forwarded-Proto": "https"})
	hsts := w.Header().Get("Strict-Transport-Security")
	if !strings.Contains(hsts, "max-age=") || !strings.Contains(hsts, "includeSubDomains") {
		t.Fatalf("HSTS = %q", hsts)
	}
}
