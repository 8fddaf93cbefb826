package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/config"
	"github.com/tbourn/go-support-relay/internal/relay"
	"github.com/tbourn/go-support-relay/internal/store/memstore"
	"github.com/tbourn/go-support-relay/internal/telegram"
)

type nopRouter struct{}

func (nopRouter) HandleUpdate(context.Context, *telegram.Update) error { return nil }

type nopGateway struct{}

func (nopGateway) SendMessage(context.Context, telegram.SendMessageParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (nopGateway) SendPhoto(context.Context, telegram.SendMediaParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (nopGateway) SendDocument(context.Context, telegram.SendMediaParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (nopGateway) SendVideo(context.Context, telegram.SendMediaParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (nopGateway) GetUserProfilePhotos(context.Context, int64) (*telegram.UserProfilePhotos, error) {
	return &telegram.UserProfilePhotos{}, nil
}
func (nopGateway) GetFile(context.Context, string) (*telegram.File, error) {
	return &telegram.File{}, nil
}
func (nopGateway) CreateForumTopic(context.Context, int64, string) (*telegram.ForumTopic, error) {
	return &telegram.ForumTopic{MessageThreadID: 1}, nil
}
func (nopGateway) GetMe(context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, IsBot: true}, nil
}

func newTestEngine(t *testing.T, cfg config.Config) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterRoutes(r, memstore.New(), nopRouter{}, relay.NewChannelConfig(0), nopGateway{}, cfg)
	return r
}

func baseConfig() config.Config {
	return config.Config{
		BotToken:    "123:abc",
		UpdateTTL:   time.Hour,
		APIBasePath: "/api/v1",
		RateRPS:     100,
		RateBurst:   100,
	}
}

func serve(r *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_Health(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	w := serve(r, http.MethodGet, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	if body["status"] != "ok" {
		t.Fatalf("body = %v", body)
	}
}

func TestRouter_NoRouteEnvelope(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	w := serve(r, http.MethodGet, "/nope")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body %q: %v", w.Body.String(), err)
	}
	if body["code"] != "not_found" {
		t.Fatalf("body = %v", body)
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	w := serve(r, http.MethodDelete, "/health")
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestRouter_MetricsExposed(t *testing.T) {
	r := newTestEngine(t, baseConfig())

	serve(r, http.MethodGet, "/health")
	w := serve(r, http.MethodGet, "/metrics")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics output missing request counter")
	}
}

func TestRouter_WebhookBypassesRateLimiter(t *testing.T) {
	cfg := baseConfig()
	cfg.RateRPS = 0
	cfg.RateBurst = 1
	r := newTestEngine(t, cfg)

	// Exhaust the API bucket.
	serve(r, http.MethodGet, "/api/v1/users")
	if w := serve(r, http.MethodGet, "/api/v1/users"); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second API request = %d, want 429", w.Code)
	}

	// Webhook deliveries keep flowing.
	for i := 0; i < 3; i++ {
		body := strings.NewReader(fmt.Sprintf(`{"update_id":%d}`, i+1))
		req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", body)
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Fatalf("webhook delivery %d = %d, want 200", i, w.Code)
		}
	}
}

func TestRouter_CustomBasePath(t *testing.T) {
	cfg := baseConfig()
	cfg.APIBasePath = "/api/v2"
	r := newTestEngine(t, cfg)

	if w := serve(r, http.MethodGet, "/api/v2/users"); w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if w := serve(r, http.MethodGet, "/api/v1/users"); w.Code != http.StatusNotFound {
		t.Fatalf("old base path should 404, got %d", w.Code)
	}
}
