// Package relay implements the message-routing core: given an inbound
// webhook update, decide whether it comes from an end user or from the
// support channel, resolve or create the backing records, and forward the
// content to the correct destination while recording it.
//
// The per-conversation state machine is linear:
//
//	no-user -> user-no-conversation -> conversation-no-thread ->
//	conversation-with-thread
//
// Closing a conversation is an administrative action on the query surface,
// not a transition this package performs.
//
// Error posture (one inbound event at a time): validation failures drop the
// single event; a missing referenced record is a silent no-op; failures of
// best-effort steps (profile photo, intro post, topic creation, forwarding)
// are logged and routing continues in a degraded state, retrying topic
// creation on the next inbound message. Nothing here retries, queues, or
// rolls back already-committed writes.
package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-support-relay/internal/domain"
	"github.com/tbourn/go-support-relay/internal/store"
	"github.com/tbourn/go-support-relay/internal/sysutil"
	"github.com/tbourn/go-support-relay/internal/telegram"
)

// ErrInvalidEvent marks an inbound event that failed validation and was
// dropped. The webhook surface logs it and still acknowledges the delivery.
var ErrInvalidEvent = errors.New("invalid inbound event")

// Gateway is the messaging-platform surface the router needs. Implemented
// by telegram.Client; faked in tests.
type Gateway interface {
	SendMessage(ctx context.Context, p telegram.SendMessageParams) (*telegram.Message, error)
	SendPhoto(ctx context.Context, p telegram.SendMediaParams) (*telegram.Message, error)
	SendDocument(ctx context.Context, p telegram.SendMediaParams) (*telegram.Message, error)
	SendVideo(ctx context.Context, p telegram.SendMediaParams) (*telegram.Message, error)
	GetUserProfilePhotos(ctx context.Context, userID int64) (*telegram.UserProfilePhotos, error)
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*telegram.ForumTopic, error)
	GetMe(ctx context.Context) (*telegram.User, error)
}

// Service routes inbound updates between end users and the support channel.
type Service struct {
	Store   store.Store
	Gateway Gateway
	Channel *ChannelConfig
	Log     zerolog.Logger

	// WelcomeOverride replaces the built-in localized greeting when set.
	WelcomeOverride string
}

// New constructs the router.
func New(st store.Store, gw Gateway, ch *ChannelConfig, log zerolog.Logger) *Service {
	return &Service{Store: st, Gateway: gw, Channel: ch, Log: log}
}

// HandleUpdate consumes one webhook envelope. Only new messages are acted
// upon; edited messages and channel posts are accepted and ignored. The
// returned error covers the single event only; the caller logs it and
// acknowledges the delivery either way.
func (s *Service) HandleUpdate(ctx context.Context, upd *telegram.Update) error {
	tr := otel.Tracer("relay/Service")
	ctx, span := tr.Start(ctx, "HandleUpdate",
		trace.WithAttributes(attribute.Int64("update.id", upd.UpdateID)),
	)
	defer span.End()

	msg := upd.Message
	if msg == nil {
		// Edits and channel posts are a deliberate no-op.
		updatesTotal.WithLabelValues(outcomeIgnored).Inc()
		return nil
	}
	if msg.From == nil {
		updatesTotal.WithLabelValues(outcomeIgnored).Inc()
		return nil
	}
	if msg.From.IsBot {
		// Covers our own intro/forward posts echoed back from the channel.
		updatesTotal.WithLabelValues(outcomeIgnored).Inc()
		return nil
	}

	var err error
	if supportID, ok := s.Channel.Get(); ok && msg.Chat.ID == supportID {
		err = s.handleSupportReply(ctx, msg)
	} else {
		err = s.handleUserMessage(ctx, msg)
	}
	if err != nil {
		updatesTotal.WithLabelValues(outcomeDropped).Inc()
		return err
	}
	updatesTotal.WithLabelValues(outcomeRouted).Inc()
	return nil
}

// ---- end-user side ----

func (s *Service) handleUserMessage(ctx context.Context, msg *telegram.Message) error {
	tr := otel.Tracer("relay/Service")
	ctx, span := tr.Start(ctx, "handleUserMessage",
		trace.WithAttributes(attribute.Int64("user.telegram_id", msg.From.ID)),
	)
	defer span.End()

	user, created, err := s.ensureUser(ctx, msg.From)
	if err != nil {
		return err
	}
	if created {
		// Exactly one welcome per new user, before anything else.
		if out := s.sendWelcome(ctx, user); !out.OK() {
			s.Log.Warn().Err(out.Err).Int64("user", user.TelegramID).Msg("welcome message failed")
		}
	}

	conv, err := s.ensureConversation(ctx, user)
	if err != nil {
		return err
	}

	media := mediaFromMessage(msg)
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	rec := &domain.Message{
		ConversationID:    conv.ID,
		TelegramMessageID: msg.MessageID,
		SenderTelegramID:  msg.From.ID,
		SenderType:        domain.SenderUser,
		SenderName:        user.DisplayName(),
		Text:              text,
		MediaKind:         media.Kind,
		MediaFileID:       media.FileID,
		SentAt:            sentAt(msg),
	}
	if _, err := s.Store.CreateMessage(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	supportID, configured := s.Channel.Get()
	if !configured {
		// Stored for the record; nothing to forward to yet.
		return nil
	}

	if conv.ThreadID == nil {
		conv = s.establishThread(ctx, supportID, user, conv)
	}
	if conv.ThreadID == nil {
		// Topic creation failed; the next inbound message retries.
		return nil
	}

	name := user.DisplayName()
	if msg.Text != "" {
		out := s.forwardText(ctx, supportID, *conv.ThreadID, name+": "+msg.Text)
		if out.OK() {
			forwardsTotal.WithLabelValues(directionToSupport, "text").Inc()
		} else {
			s.Log.Warn().Err(out.Err).Int64("thread", *conv.ThreadID).Msg("text forward to support failed")
		}
	}
	if media.Forwardable() {
		caption := name
		if msg.Caption != "" {
			caption = name + ": " + msg.Caption
		}
		out := s.forwardMedia(ctx, media, telegram.SendMediaParams{
			ChatID:          supportID,
			FileID:          media.FileID,
			Caption:         caption,
			MessageThreadID: *conv.ThreadID,
		})
		if out.OK() {
			forwardsTotal.WithLabelValues(directionToSupport, string(media.Kind)).Inc()
		} else {
			s.Log.Warn().Err(out.Err).Int64("thread", *conv.ThreadID).
				Str("kind", string(media.Kind)).Msg("media forward to support failed")
		}
	}
	return nil
}

// ensureUser resolves the sender, creating the record on first contact.
// The bool result reports whether a new user was created.
func (s *Service) ensureUser(ctx context.Context, from *telegram.User) (*domain.User, bool, error) {
	u, err := s.Store.GetUserByTelegramID(ctx, from.ID)
	if err == nil {
		return u, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, err
	}

	created, err := s.Store.CreateUser(ctx, &domain.User{
		TelegramID:   from.ID,
		FirstName:    from.FirstName,
		LastName:     from.LastName,
		Username:     from.Username,
		LanguageCode: from.LanguageCode,
		IsPremium:    from.IsPremium,
	})
	if errors.Is(err, store.ErrDuplicate) {
		// Racing delivery created it first; last write wins elsewhere,
		// first write wins here.
		u, err := s.Store.GetUserByTelegramID(ctx, from.ID)
		return u, false, err
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return created, true, nil
}

// ensureConversation resolves the user's conversation, creating an open,
// threadless one when absent.
func (s *Service) ensureConversation(ctx context.Context, user *domain.User) (*domain.Conversation, error) {
	conv, err := s.Store.GetConversationByUserID(ctx, user.TelegramID)
	if err == nil {
		return conv, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	conv, err = s.Store.CreateConversation(ctx, &domain.Conversation{
		UserTelegramID: user.TelegramID,
		Status:         domain.ConversationOpen,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}
	return conv, nil
}

// establishThread runs the support-side setup sequence for a conversation
// that has no thread yet: profile photo (best-effort), intro post, topic
// creation, thread binding, support issue. Every step that fails is logged
// and the rest of the sequence degrades gracefully; the returned
// conversation carries the thread reference only when creation succeeded.
func (s *Service) establishThread(ctx context.Context, supportID int64, user *domain.User, conv *domain.Conversation) *domain.Conversation {
	tr := otel.Tracer("relay/Service")
	ctx, span := tr.Start(ctx, "establishThread",
		trace.WithAttributes(attribute.Int64("conversation.id", conv.ID)),
	)
	defer span.End()

	if photo, out := s.fetchProfilePhoto(ctx, user.TelegramID); !out.OK() {
		s.Log.Warn().Err(out.Err).Int64("user", user.TelegramID).Msg("profile photo fetch failed")
	} else if photo != "" && user.PhotoFileID == "" {
		if _, err := s.Store.UpdateUser(ctx, user.ID, store.UserUpdate{PhotoFileID: &photo}); err != nil {
			s.Log.Warn().Err(err).Int64("user", user.TelegramID).Msg("photo attach failed")
		} else {
			user.PhotoFileID = photo
		}
	}

	if out := s.postIntro(ctx, supportID, user); !out.OK() {
		s.Log.Warn().Err(out.Err).Int64("chat", supportID).Msg("intro post failed")
	}

	topic, out := s.createTopic(ctx, supportID, user)
	if !out.OK() {
		s.Log.Warn().Err(out.Err).Int64("chat", supportID).Msg("topic creation failed; will retry on next message")
		return conv
	}

	tid := topic.MessageThreadID
	updated, err := s.Store.UpdateConversation(ctx, conv.ID, store.ConversationUpdate{ThreadID: &tid})
	if err != nil {
		s.Log.Error().Err(err).Int64("conversation", conv.ID).Msg("thread binding failed")
		return conv
	}

	// One issue per conversation's initial support episode.
	if _, err := s.Store.GetSupportIssueByConversationID(ctx, conv.ID); errors.Is(err, store.ErrNotFound) {
		_, err = s.Store.CreateSupportIssue(ctx, &domain.SupportIssue{
			UserTelegramID: user.TelegramID,
			ConversationID: conv.ID,
			Title:          issueTitle(user),
			Status:         domain.IssuePending,
		})
		if err != nil {
			s.Log.Error().Err(err).Int64("conversation", conv.ID).Msg("support issue creation failed")
		}
	}
	return updated
}

// ---- support side ----

func (s *Service) handleSupportReply(ctx context.Context, msg *telegram.Message) error {
	tr := otel.Tracer("relay/Service")
	ctx, span := tr.Start(ctx, "handleSupportReply")
	defer span.End()

	// Only replies into a tracked thread are relayed; everything else in
	// the channel is stray chatter.
	if msg.ReplyToMessage == nil {
		return nil
	}
	conv, err := s.Store.GetConversationByThreadID(ctx, msg.ReplyToMessage.MessageID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	agent := strings.TrimSpace(msg.From.FirstName + " " + msg.From.LastName)
	media := mediaFromMessage(msg)
	text := msg.Text
	if text == "" {
		text = msg.Caption
	}
	rec := &domain.Message{
		ConversationID:    conv.ID,
		TelegramMessageID: msg.MessageID,
		SenderTelegramID:  msg.From.ID,
		SenderType:        domain.SenderAdmin,
		SenderName:        agent,
		Text:              text,
		MediaKind:         media.Kind,
		MediaFileID:       media.FileID,
		SentAt:            sentAt(msg),
	}
	if _, err := s.Store.CreateMessage(ctx, rec); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidEvent, err)
	}

	if msg.Text != "" {
		_, err := s.Gateway.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: conv.UserTelegramID,
			Text:   msg.Text,
		})
		if err != nil {
			s.Log.Warn().Err(err).Int64("user", conv.UserTelegramID).Msg("text forward to user failed")
		} else {
			forwardsTotal.WithLabelValues(directionToUser, "text").Inc()
		}
	}
	if media.Forwardable() {
		// Captions travel unchanged in this direction.
		out := s.forwardMedia(ctx, media, telegram.SendMediaParams{
			ChatID:  conv.UserTelegramID,
			FileID:  media.FileID,
			Caption: msg.Caption,
		})
		if out.OK() {
			forwardsTotal.WithLabelValues(directionToUser, string(media.Kind)).Inc()
		} else {
			s.Log.Warn().Err(out.Err).Int64("user", conv.UserTelegramID).
				Str("kind", string(media.Kind)).Msg("media forward to user failed")
		}
	}
	return nil
}

// ---- best-effort steps ----

func (s *Service) sendWelcome(ctx context.Context, user *domain.User) Outcome {
	text := sysutil.FirstNonEmpty(s.WelcomeOverride, welcomeText(user.LanguageCode))
	_, err := s.Gateway.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: user.TelegramID,
		Text:   text,
	})
	if err != nil {
		return failed(err)
	}
	return succeeded()
}

func (s *Service) fetchProfilePhoto(ctx context.Context, telegramID int64) (string, Outcome) {
	photos, err := s.Gateway.GetUserProfilePhotos(ctx, telegramID)
	if err != nil {
		return "", failed(err)
	}
	if photos.TotalCount == 0 || len(photos.Photos) == 0 {
		return "", succeeded()
	}
	return telegram.BestPhoto(photos.Photos[0]), succeeded()
}

func (s *Service) postIntro(ctx context.Context, supportID int64, user *domain.User) Outcome {
	var b strings.Builder
	fmt.Fprintf(&b, "New conversation\n%s", user.DisplayName())
	if user.Username != "" {
		fmt.Fprintf(&b, " (@%s)", user.Username)
	}
	fmt.Fprintf(&b, "\nid: %d", user.TelegramID)
	if user.LanguageCode != "" {
		fmt.Fprintf(&b, "\nlanguage: %s", user.LanguageCode)
	}
	if user.IsPremium {
		b.WriteString("\npremium: yes")
	}
	_, err := s.Gateway.SendMessage(ctx, telegram.SendMessageParams{
		ChatID: supportID,
		Text:   b.String(),
	})
	if err != nil {
		return failed(err)
	}
	return succeeded()
}

func (s *Service) createTopic(ctx context.Context, supportID int64, user *domain.User) (*telegram.ForumTopic, Outcome) {
	topic, err := s.Gateway.CreateForumTopic(ctx, supportID, issueTitle(user))
	if err != nil {
		return nil, failed(err)
	}
	return topic, succeeded()
}

func (s *Service) forwardText(ctx context.Context, chatID, threadID int64, text string) Outcome {
	_, err := s.Gateway.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          chatID,
		Text:            text,
		MessageThreadID: threadID,
	})
	if err != nil {
		return failed(err)
	}
	return succeeded()
}

// forwardMedia dispatches on the forwardable kinds. Audio and voice never
// reach here; Forwardable() already excludes them.
func (s *Service) forwardMedia(ctx context.Context, media domain.Media, p telegram.SendMediaParams) Outcome {
	var err error
	switch media.Kind {
	case domain.MediaPhoto:
		_, err = s.Gateway.SendPhoto(ctx, p)
	case domain.MediaDocument:
		_, err = s.Gateway.SendDocument(ctx, p)
	case domain.MediaVideo:
		_, err = s.Gateway.SendVideo(ctx, p)
	default:
		return succeeded()
	}
	if err != nil {
		return failed(err)
	}
	return succeeded()
}

// ---- helpers ----

// mediaFromMessage captures at most one attachment, in the fixed
// precedence order photo > document > video > audio > voice.
func mediaFromMessage(msg *telegram.Message) domain.Media {
	if fid := telegram.BestPhoto(msg.Photo); fid != "" {
		return domain.Media{Kind: domain.MediaPhoto, FileID: fid}
	}
	if msg.Document != nil {
		return domain.Media{Kind: domain.MediaDocument, FileID: msg.Document.FileID}
	}
	if msg.Video != nil {
		return domain.Media{Kind: domain.MediaVideo, FileID: msg.Video.FileID}
	}
	if msg.Audio != nil {
		return domain.Media{Kind: domain.MediaAudio, FileID: msg.Audio.FileID}
	}
	if msg.Voice != nil {
		return domain.Media{Kind: domain.MediaVoice, FileID: msg.Voice.FileID}
	}
	return domain.Media{}
}

func sentAt(msg *telegram.Message) time.Time {
	if msg.Date > 0 {
		return time.Unix(msg.Date, 0).UTC()
	}
	return time.Now().UTC()
}

var issueTitleCaser = cases.Title(language.English)

// issueTitle derives the topic/issue name from the user's identity.
func issueTitle(user *domain.User) string {
	name := issueTitleCaser.String(strings.ToLower(user.DisplayName()))
	if name == "" {
		name = fmt.Sprintf("User %d", user.TelegramID)
	}
	return name
}
