package relay

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store/memstore"
	"github.com/tbourn/go-support-relay/internal/telegram"
)

const (
	aliceID     = int64(9001)
	supportChat = int64(-100200300)
)

// fakeGateway records outbound calls and lets tests fail selected steps.
type fakeGateway struct {
	mu sync.Mutex

	messages  []telegram.SendMessageParams
	photos    []telegram.SendMediaParams
	documents []telegram.SendMediaParams
	videos    []telegram.SendMediaParams
	topics    []string

	nextThreadID int64

	topicErr   error
	sendErr    error
	profileErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{nextThreadID: 500}
}

func (g *fakeGateway) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.messages = append(g.messages, p)
	return &telegram.Message{MessageID: int64(1000 + len(g.messages))}, nil
}

func (g *fakeGateway) SendPhoto(_ context.Context, p telegram.SendMediaParams) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sendErr != nil {
		return nil, g.sendErr
	}
	g.photos = append(g.photos, p)
	return &telegram.Message{}, nil
}

func (g *fakeGateway) SendDocument(_ context.Context, p telegram.SendMediaParams) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.documents = append(g.documents, p)
	return &telegram.Message{}, nil
}

func (g *fakeGateway) SendVideo(_ context.Context, p telegram.SendMediaParams) (*telegram.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.videos = append(g.videos, p)
	return &telegram.Message{}, nil
}

func (g *fakeGateway) GetUserProfilePhotos(_ context.Context, _ int64) (*telegram.UserProfilePhotos, error) {
	if g.profileErr != nil {
		return nil, g.profileErr
	}
	return &telegram.UserProfilePhotos{
		TotalCount: 1,
		Photos: [][]telegram.PhotoSize{
			{{FileID: "prof-small"}, {FileID: "prof-big"}},
		},
	}, nil
}

func (g *fakeGateway) GetFile(_ context.Context, fileID string) (*telegram.File, error) {
	return &telegram.File{FileID: fileID, FilePath: "files/" + fileID}, nil
}

func (g *fakeGateway) CreateForumTopic(_ context.Context, _ int64, name string) (*telegram.ForumTopic, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.topicErr != nil {
		return nil, g.topicErr
	}
	g.nextThreadID++
	g.topics = append(g.topics, name)
	return &telegram.ForumTopic{MessageThreadID: g.nextThreadID, Name: name}, nil
}

func (g *fakeGateway) GetMe(_ context.Context) (*telegram.User, error) {
	return &telegram.User{ID: 1, IsBot: true, Username: "relay_bot"}, nil
}

// messagesTo returns the recorded text sends addressed to chatID.
func (g *fakeGateway) messagesTo(chatID int64) []telegram.SendMessageParams {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []telegram.SendMessageParams
	for _, m := range g.messages {
		if m.ChatID == chatID {
			out = append(out, m)
		}
	}
	return out
}

func newTestService(gw *fakeGateway, channelSet bool) (*Service, *memstore.Store) {
	st := memstore.New()
	var initial int64
	if channelSet {
		initial = supportChat
	}
	svc := New(st, gw, NewChannelConfig(initial), zerolog.Nop())
	return svc, st
}

func userUpdate(updateID int64, text string) *telegram.Update {
	return &telegram.Update{
		UpdateID: updateID,
		Message: &telegram.Message{
			MessageID: updateID * 10,
			From:      &telegram.User{ID: aliceID, FirstName: "Alice", LanguageCode: "en"},
			Chat:      telegram.Chat{ID: aliceID, Type: "private"},
			Date:      time.Now().Unix(),
			Text:      text,
		},
	}
}

func TestFirstContact_FullFlow(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	if err := svc.HandleUpdate(ctx, userUpdate(1, "hello, my order is stuck")); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	// User registered with photo attached from the profile fetch.
	user, err := st.GetUserByTelegramID(ctx, aliceID)
	if err != nil {
		t.Fatalf("user not created: %v", err)
	}
	if user.FirstName != "Alice" || user.PhotoFileID != "prof-big" {
		t.Fatalf("user = %+v", user)
	}

	// Welcome went to Alice exactly once.
	toAlice := gw.messagesTo(aliceID)
	if len(toAlice) != 1 || !strings.Contains(toAlice[0].Text, "support team") {
		t.Fatalf("welcome sends = %+v", toAlice)
	}

	// Conversation opened and bound to a fresh thread.
	conv, err := st.GetConversationByUserID(ctx, aliceID)
	if err != nil {
		t.Fatalf("conversation not created: %v", err)
	}
	if conv.Status != domain.ConversationOpen || conv.ThreadID == nil {
		t.Fatalf("conversation = %+v", conv)
	}

	// Intro plus forwarded text landed in the support chat, the forward
	// inside the thread and prefixed with the sender's name.
	toSupport := gw.messagesTo(supportChat)
	if len(toSupport) != 2 {
		t.Fatalf("support sends = %+v", toSupport)
	}
	if !strings.Contains(toSupport[0].Text, "Alice") || toSupport[0].MessageThreadID != 0 {
		t.Fatalf("intro = %+v", toSupport[0])
	}
	if toSupport[1].Text != "Alice: hello, my order is stuck" || toSupport[1].MessageThreadID != *conv.ThreadID {
		t.Fatalf("forward = %+v", toSupport[1])
	}

	// One pending issue titled after the user.
	issue, err := st.GetSupportIssueByConversationID(ctx, conv.ID)
	if err != nil {
		t.Fatalf("issue not created: %v", err)
	}
	if issue.Status != domain.IssuePending || issue.Title != "Alice" {
		t.Fatalf("issue = %+v", issue)
	}

	// The inbound text is in the transcript.
	msgs, err := st.ListMessagesByConversation(ctx, conv.ID, 0)
	if err != nil || len(msgs) != 1 {
		t.Fatalf("transcript = %d messages, %v", len(msgs), err)
	}
	if msgs[0].SenderType != domain.SenderUser || msgs[0].Text != "hello, my order is stuck" {
		t.Fatalf("message = %+v", msgs[0])
	}
}

func TestWelcome_OncePerUser(t *testing.T) {
	gw := newFakeGateway()
	svc, _ := newTestService(gw, true)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if err := svc.HandleUpdate(ctx, userUpdate(i, "ping")); err != nil {
			t.Fatalf("HandleUpdate %d: %v", i, err)
		}
	}
	if n := len(gw.messagesTo(aliceID)); n != 1 {
		t.Fatalf("welcome count = %d, want 1", n)
	}
}

func TestIssue_OnePerConversation(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	_ = svc.HandleUpdate(ctx, userUpdate(1, "first"))
	_ = svc.HandleUpdate(ctx, userUpdate(2, "second"))

	issues, err := st.ListSupportIssuesByUserID(ctx, aliceID, 0)
	if err != nil || len(issues) != 1 {
		t.Fatalf("issues = %d, %v", len(issues), err)
	}
}

func TestChannelUnset_StoresWithoutForwarding(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, false)
	ctx := context.Background()

	if err := svc.HandleUpdate(ctx, userUpdate(1, "anyone there?")); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	conv, err := st.GetConversationByUserID(ctx, aliceID)
	if err != nil || conv.ThreadID != nil {
		t.Fatalf("conversation = %+v, %v", conv, err)
	}
	if n, _ := st.CountMessages(ctx, conv.ID); n != 1 {
		t.Fatalf("message count = %d", n)
	}
	// Only the welcome went out; nothing reached any support chat.
	if len(gw.messages) != 1 || gw.messages[0].ChatID != aliceID {
		t.Fatalf("sends = %+v", gw.messages)
	}
	if len(gw.topics) != 0 {
		t.Fatalf("unexpected topics: %v", gw.topics)
	}
}

func TestTopicFailure_RetriedOnNextMessage(t *testing.T) {
	gw := newFakeGateway()
	gw.topicErr = errors.New("upstream down")
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	if err := svc.HandleUpdate(ctx, userUpdate(1, "first try")); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	conv, _ := st.GetConversationByUserID(ctx, aliceID)
	if conv.ThreadID != nil {
		t.Fatalf("thread bound despite topic failure: %+v", conv)
	}

	gw.topicErr = nil
	if err := svc.HandleUpdate(ctx, userUpdate(2, "second try")); err != nil {
		t.Fatalf("HandleUpdate retry: %v", err)
	}
	conv, _ = st.GetConversationByUserID(ctx, aliceID)
	if conv.ThreadID == nil {
		t.Fatalf("thread still unbound after retry")
	}
	// Both inbound messages were stored even though only the second one
	// could be forwarded.
	if n, _ := st.CountMessages(ctx, conv.ID); n != 2 {
		t.Fatalf("message count = %d, want 2", n)
	}
}

func TestSupportReply_RelayedToUser(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	_ = svc.HandleUpdate(ctx, userUpdate(1, "help"))
	conv, _ := st.GetConversationByUserID(ctx, aliceID)
	if conv.ThreadID == nil {
		t.Fatalf("setup failed, no thread")
	}

	reply := &telegram.Update{
		UpdateID: 2,
		Message: &telegram.Message{
			MessageID:      7001,
			From:           &telegram.User{ID: 555, FirstName: "Dana"},
			Chat:           telegram.Chat{ID: supportChat, Type: "supergroup"},
			Date:           time.Now().Unix(),
			ReplyToMessage: &telegram.Message{MessageID: *conv.ThreadID},
			Text:           "we are on it",
		},
	}
	if err := svc.HandleUpdate(ctx, reply); err != nil {
		t.Fatalf("HandleUpdate reply: %v", err)
	}

	// Relayed verbatim, no name prefix in this direction.
	toAlice := gw.messagesTo(aliceID)
	last := toAlice[len(toAlice)-1]
	if last.Text != "we are on it" {
		t.Fatalf("relayed text = %q", last.Text)
	}

	msgs, _ := st.ListMessagesByConversation(ctx, conv.ID, 0)
	lastMsg := msgs[len(msgs)-1]
	if lastMsg.SenderType != domain.SenderAdmin || lastMsg.SenderName != "Dana" {
		t.Fatalf("admin message = %+v", lastMsg)
	}
}

func TestSupportReply_UnknownThreadIsNoOp(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	reply := &telegram.Update{
		UpdateID: 1,
		Message: &telegram.Message{
			MessageID:      7001,
			From:           &telegram.User{ID: 555, FirstName: "Dana"},
			Chat:           telegram.Chat{ID: supportChat, Type: "supergroup"},
			Date:           time.Now().Unix(),
			ReplyToMessage: &telegram.Message{MessageID: 31337},
			Text:           "who am I talking to",
		},
	}
	if err := svc.HandleUpdate(ctx, reply); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}
	if len(gw.messages) != 0 {
		t.Fatalf("unexpected sends: %+v", gw.messages)
	}
	if list, _ := st.ListConversations(ctx, 0); len(list) != 0 {
		t.Fatalf("conversation created from stray reply")
	}
}

func TestMedia_PhotoWinsPrecedence(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	upd := userUpdate(1, "")
	upd.Message.Caption = "receipt attached"
	upd.Message.Photo = []telegram.PhotoSize{{FileID: "ph-small"}, {FileID: "ph-big"}}
	upd.Message.Document = &telegram.Document{FileID: "doc-1"}

	if err := svc.HandleUpdate(ctx, upd); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	conv, _ := st.GetConversationByUserID(ctx, aliceID)
	msgs, _ := st.ListMessagesByConversation(ctx, conv.ID, 0)
	if msgs[0].MediaKind != domain.MediaPhoto || msgs[0].MediaFileID != "ph-big" {
		t.Fatalf("captured media = %q %q", msgs[0].MediaKind, msgs[0].MediaFileID)
	}
	if msgs[0].Text != "receipt attached" {
		t.Fatalf("caption not stored as text: %q", msgs[0].Text)
	}

	if len(gw.photos) != 1 || len(gw.documents) != 0 {
		t.Fatalf("forwards: photos=%d documents=%d", len(gw.photos), len(gw.documents))
	}
	if gw.photos[0].Caption != "Alice: receipt attached" {
		t.Fatalf("forwarded caption = %q", gw.photos[0].Caption)
	}
}

func TestMedia_VoiceStoredNotForwarded(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	upd := userUpdate(1, "")
	upd.Message.Voice = &telegram.Voice{FileID: "voice-1", Duration: 4}

	if err := svc.HandleUpdate(ctx, upd); err != nil {
		t.Fatalf("HandleUpdate: %v", err)
	}

	conv, _ := st.GetConversationByUserID(ctx, aliceID)
	msgs, _ := st.ListMessagesByConversation(ctx, conv.ID, 0)
	if msgs[0].MediaKind != domain.MediaVoice || msgs[0].MediaFileID != "voice-1" {
		t.Fatalf("captured media = %q %q", msgs[0].MediaKind, msgs[0].MediaFileID)
	}
	if len(gw.photos)+len(gw.documents)+len(gw.videos) != 0 {
		t.Fatalf("voice was forwarded")
	}
}

func TestIgnoredVariants(t *testing.T) {
	gw := newFakeGateway()
	svc, st := newTestService(gw, true)
	ctx := context.Background()

	edited := &telegram.Update{
		UpdateID:      1,
		EditedMessage: userUpdate(1, "edited text").Message,
	}
	if err := svc.HandleUpdate(ctx, edited); err != nil {
		t.Fatalf("edited: %v", err)
	}

	fromBot := userUpdate(2, "echo")
	fromBot.Message.From.IsBot = true
	if err := svc.HandleUpdate(ctx, fromBot); err != nil {
		t.Fatalf("bot sender: %v", err)
	}

	if users, _ := st.ListUsers(ctx, 0); len(users) != 0 {
		t.Fatalf("ignored update created a user")
	}
	if len(gw.messages) != 0 {
		t.Fatalf("ignored update sent something: %+v", gw.messages)
	}
}

func TestWelcomeOverride(t *testing.T) {
	gw := newFakeGateway()
	svc, _ := newTestService(gw, true)
	svc.WelcomeOverride = "Custom greeting."
	ctx := context.Background()

	_ = svc.HandleUpdate(ctx, userUpdate(1, "hi"))
	toAlice := gw.messagesTo(aliceID)
	if len(toAlice) == 0 || toAlice[0].Text != "Custom greeting." {
		t.Fatalf("welcome = %+v", toAlice)
	}
}
