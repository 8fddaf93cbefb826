package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-support-relay/internal/relay"
	"github.com/tbourn/go-support-relay/internal/store/memstore"
	"github.com/tbourn/go-support-relay/internal/telegram"
)

// ---------- stubs ----------

// stubRouter records routed updates and can be told to fail.
type stubRouter struct {
	mu      sync.Mutex
	updates []*telegram.Update
	err     error
}

func (r *stubRouter) HandleUpdate(_ context.Context, upd *telegram.Update) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, upd)
	return r.err
}

func (r *stubRouter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.updates)
}

// stubGateway satisfies the gateway contract; only GetMe matters here.
type stubGateway struct {
	meErr error
}

func (g *stubGateway) SendMessage(context.Context, telegram.SendMessageParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (g *stubGateway) SendPhoto(context.Context, telegram.SendMediaParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (g *stubGateway) SendDocument(context.Context, telegram.SendMediaParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (g *stubGateway) SendVideo(context.Context, telegram.SendMediaParams) (*telegram.Message, error) {
	return &telegram.Message{}, nil
}
func (g *stubGateway) GetUserProfilePhotos(context.Context, int64) (*telegram.UserProfilePhotos, error) {
	return &telegram.UserProfilePhotos{}, nil
}
func (g *stubGateway) GetFile(context.Context, string) (*telegram.File, error) {
	return &telegram.File{}, nil
}
func (g *stubGateway) CreateForumTopic(context.Context, int64, string) (*telegram.ForumTopic, error) {
	return &telegram.ForumTopic{}, nil
}
func (g *stubGateway) GetMe(context.Context) (*telegram.User, error) {
	if g.meErr != nil {
		return nil, g.meErr
	}
	return &telegram.User{ID: 99, IsBot: true, Username: "relay_bot", FirstName: "Relay"}, nil
}

// ---------- harness ----------

type harness struct {
	engine  *gin.Engine
	store   *memstore.Store
	router  *stubRouter
	channel *relay.ChannelConfig
	gateway *stubGateway
}

// newHarness wires the handlers onto a bare engine, middleware-free: these
// tests exercise handler behavior, not the middleware chain.
func newHarness(t *testing.T, secret string) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		store:   memstore.New(),
		router:  &stubRouter{},
		channel: relay.NewChannelConfig(0),
		gateway: &stubGateway{},
	}
	hd := New(h.store, h.router, h.channel, h.gateway, secret, time.Hour)

	e := gin.New()
	e.POST("/telegram/webhook", hd.Webhook)
	e.GET("/api/v1/conversations", hd.ListConversations)
	e.GET("/api/v1/conversations/:id", hd.GetConversation)
	e.GET("/api/v1/conversations/:id/messages", hd.ListConversationMessages)
	e.PUT("/api/v1/conversations/:id/status", hd.UpdateConversationStatus)
	e.GET("/api/v1/users", hd.ListUsers)
	e.GET("/api/v1/users/:id", hd.GetUser)
	e.GET("/api/v1/users/:id/issues", hd.ListUserIssues)
	e.PUT("/api/v1/issues/:id", hd.UpdateIssue)
	e.GET("/api/v1/settings/support-chat", hd.GetSupportChat)
	e.PUT("/api/v1/settings/support-chat", hd.SetSupportChat)
	e.DELETE("/api/v1/settings/support-chat", hd.ClearSupportChat)
	e.GET("/api/v1/me", hd.Me)
	h.engine = e
	return h
}

func (h *harness) do(t *testing.T, method, path, body string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rdr *strings.Reader
	if body == "" {
		rdr = strings.NewReader("")
	} else {
		rdr = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rdr)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	return w
}

func decodeJSON(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
}

var errStub = errors.New("stub failure")

func codeOf(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var er ErrorResponse
	decodeJSON(t, w, &er)
	return er.Code
}

func mustStatus(t *testing.T, w *httptest.ResponseRecorder, want int) {
	t.Helper()
	if w.Code != want {
		t.Fatalf("status = %d, want %d; body=%s", w.Code, want, w.Body.String())
	}
}
