// Bot API gateway, backed by github.com/go-telegram/bot.
//
// The SDK owns the wire work (request encoding, the {"ok":..,"result":..}
// envelope, rate-limit retries). This file narrows it to the handful of
// methods the relay calls and converts between the SDK's models and the
// local types the webhook router already parses, so the rest of the
// codebase never imports the SDK directly.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
)

// DefaultBaseURL is the public Bot API endpoint.
const DefaultBaseURL = "https://api.telegram.org"

// Client is a typed Bot API client bound to one bot token.
type Client struct {
	b     *bot.Bot
	token string
}

// NewClient builds a client for the given token. An empty baseURL selects
// the public endpoint; timeout bounds every outbound call. Identity is
// verified separately via GetMe, not at construction.
func NewClient(token, baseURL string, timeout time.Duration) (*Client, error) {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	b, err := bot.New(token,
		bot.WithServerURL(strings.TrimRight(baseURL, "/")),
		bot.WithHTTPClient(timeout, &http.Client{Timeout: timeout}),
		bot.WithSkipGetMe(),
	)
	if err != nil {
		return nil, redactToken(err, token)
	}
	return &Client{b: b, token: token}, nil
}

// redactToken masks the bot token inside errors that embed the request URL.
func redactToken(err error, token string) error {
	if err == nil || token == "" || !strings.Contains(err.Error(), token) {
		return err
	}
	return fmt.Errorf("%s", strings.ReplaceAll(err.Error(), token, "***"))
}

// SendMessageParams are the options for SendMessage.
type SendMessageParams struct {
	ChatID          int64
	Text            string
	MessageThreadID int64
}

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, p SendMessageParams) (*Message, error) {
	m, err := c.b.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:          p.ChatID,
		Text:            p.Text,
		MessageThreadID: int(p.MessageThreadID),
	})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return messageFromModel(m), nil
}

// SendMediaParams are the shared options for the media send methods. FileID
// must be a file reference previously issued by the platform; the relay
// never uploads raw bytes.
type SendMediaParams struct {
	ChatID          int64
	FileID          string
	Caption         string
	MessageThreadID int64
}

// SendPhoto sends a photo by file reference.
func (c *Client) SendPhoto(ctx context.Context, p SendMediaParams) (*Message, error) {
	m, err := c.b.SendPhoto(ctx, &bot.SendPhotoParams{
		ChatID:          p.ChatID,
		Photo:           &models.InputFileString{Data: p.FileID},
		Caption:         p.Caption,
		MessageThreadID: int(p.MessageThreadID),
	})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return messageFromModel(m), nil
}

// SendDocument sends a document by file reference.
func (c *Client) SendDocument(ctx context.Context, p SendMediaParams) (*Message, error) {
	m, err := c.b.SendDocument(ctx, &bot.SendDocumentParams{
		ChatID:          p.ChatID,
		Document:        &models.InputFileString{Data: p.FileID},
		Caption:         p.Caption,
		MessageThreadID: int(p.MessageThreadID),
	})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return messageFromModel(m), nil
}

// SendVideo sends a video by file reference.
func (c *Client) SendVideo(ctx context.Context, p SendMediaParams) (*Message, error) {
	m, err := c.b.SendVideo(ctx, &bot.SendVideoParams{
		ChatID:          p.ChatID,
		Video:           &models.InputFileString{Data: p.FileID},
		Caption:         p.Caption,
		MessageThreadID: int(p.MessageThreadID),
	})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return messageFromModel(m), nil
}

// GetUserProfilePhotos fetches the user's current profile photo, if any.
func (c *Client) GetUserProfilePhotos(ctx context.Context, userID int64) (*UserProfilePhotos, error) {
	res, err := c.b.GetUserProfilePhotos(ctx, &bot.GetUserProfilePhotosParams{
		UserID: userID,
		Limit:  1,
	})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	out := &UserProfilePhotos{TotalCount: res.TotalCount}
	for _, renditions := range res.Photos {
		sizes := make([]PhotoSize, 0, len(renditions))
		for _, s := range renditions {
			sizes = append(sizes, PhotoSize{
				FileID:       s.FileID,
				FileUniqueID: s.FileUniqueID,
				Width:        s.Width,
				Height:       s.Height,
				FileSize:     int64(s.FileSize),
			})
		}
		out.Photos = append(out.Photos, sizes)
	}
	return out, nil
}

// GetFile resolves a file reference to a downloadable path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	f, err := c.b.GetFile(ctx, &bot.GetFileParams{FileID: fileID})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return &File{
		FileID:       f.FileID,
		FileUniqueID: f.FileUniqueID,
		FileSize:     f.FileSize,
		FilePath:     f.FilePath,
	}, nil
}

// FileURL builds the download URL for a resolved file. The URL embeds the
// bot token and must not be logged unredacted.
func (c *Client) FileURL(f *File) string {
	if f == nil || f.FilePath == "" {
		return ""
	}
	return c.b.FileDownloadLink(&models.File{FilePath: f.FilePath})
}

// CreateForumTopic creates a dedicated topic in a forum-enabled group.
func (c *Client) CreateForumTopic(ctx context.Context, chatID int64, name string) (*ForumTopic, error) {
	topic, err := c.b.CreateForumTopic(ctx, &bot.CreateForumTopicParams{
		ChatID: chatID,
		Name:   name,
	})
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return &ForumTopic{
		MessageThreadID: int64(topic.MessageThreadID),
		Name:            topic.Name,
		IconColor:       topic.IconColor,
	}, nil
}

// GetMe returns the bot's own identity.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	me, err := c.b.GetMe(ctx)
	if err != nil {
		return nil, redactToken(err, c.token)
	}
	return &User{
		ID:           me.ID,
		IsBot:        me.IsBot,
		FirstName:    me.FirstName,
		LastName:     me.LastName,
		Username:     me.Username,
		LanguageCode: me.LanguageCode,
		IsPremium:    me.IsPremium,
	}, nil
}

// messageFromModel converts the SDK's message into the local wire type; only
// the identity fields matter to callers, which record the sent message id.
func messageFromModel(m *models.Message) *Message {
	if m == nil {
		return &Message{}
	}
	return &Message{
		MessageID: int64(m.ID),
		Date:      int64(m.Date),
	}
}
