// Package telegram provides the minimal Bot API surface the relay needs:
// the inbound webhook envelope, the wire types it references, and a thin
// outbound client over the go-telegram SDK. Only the fields the routing
// logic reads are declared; unknown JSON fields are ignored on decode.
package telegram

// Update is the webhook envelope. At most one of the payload fields is set
// per delivery; the relay acts on Message only, and accepts-but-ignores the
// edited and channel-post variants.
type Update struct {
	UpdateID          int64    `json:"update_id"`
	Message           *Message `json:"message,omitempty"`
	EditedMessage     *Message `json:"edited_message,omitempty"`
	ChannelPost       *Message `json:"channel_post,omitempty"`
	EditedChannelPost *Message `json:"edited_channel_post,omitempty"`
}

// User is a Telegram account as it appears inside updates.
type User struct {
	ID           int64  `json:"id"`
	IsBot        bool   `json:"is_bot"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name,omitempty"`
	Username     string `json:"username,omitempty"`
	LanguageCode string `json:"language_code,omitempty"`
	IsPremium    bool   `json:"is_premium,omitempty"`
}

// Chat identifies the conversation an inbound message arrived in.
type Chat struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"` // private, group, supergroup, channel
	Title   string `json:"title,omitempty"`
	IsForum bool   `json:"is_forum,omitempty"`
}

// Message is an inbound or outbound platform message. Attachment fields are
// mutually mostly-exclusive on the wire but a single message can carry, for
// example, a photo with a caption.
type Message struct {
	MessageID       int64       `json:"message_id"`
	From            *User       `json:"from,omitempty"`
	Chat            Chat        `json:"chat"`
	Date            int64       `json:"date"`
	MessageThreadID int64       `json:"message_thread_id,omitempty"`
	ReplyToMessage  *Message    `json:"reply_to_message,omitempty"`
	Text            string      `json:"text,omitempty"`
	Caption         string      `json:"caption,omitempty"`
	Photo           []PhotoSize `json:"photo,omitempty"`
	Document        *Document   `json:"document,omitempty"`
	Video           *Video      `json:"video,omitempty"`
	Audio           *Audio      `json:"audio,omitempty"`
	Voice           *Voice      `json:"voice,omitempty"`
}

// PhotoSize is one rendition of a photo; the API sends several, smallest
// first.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Document is a generic file attachment.
type Document struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MimeType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Video is a video attachment.
type Video struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     int    `json:"duration"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Audio is a music-file attachment.
type Audio struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	Title        string `json:"title,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// Voice is a voice-note attachment.
type Voice struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// ForumTopic is the result of createForumTopic. MessageThreadID is the
// opaque thread reference the relay stores on the conversation.
type ForumTopic struct {
	MessageThreadID int64  `json:"message_thread_id"`
	Name            string `json:"name"`
	IconColor       int    `json:"icon_color,omitempty"`
}

// UserProfilePhotos is the result of getUserProfilePhotos.
type UserProfilePhotos struct {
	TotalCount int           `json:"total_count"`
	Photos     [][]PhotoSize `json:"photos"`
}

// File is the result of getFile; FilePath combines with the token-scoped
// download URL to resolve a file link.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

// BestPhoto returns the file reference of the largest rendition, or ""
// when the slice is empty. The API orders renditions smallest first.
func BestPhoto(sizes []PhotoSize) string {
	if len(sizes) == 0 {
		return ""
	}
	return sizes[len(sizes)-1].FileID
}
