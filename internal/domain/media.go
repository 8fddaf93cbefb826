// Media variant handling.
//
// An inbound platform event can carry several attachment types at once. The
// relay captures at most one of them per message, as a tagged variant with a
// fixed precedence, and applies an explicit, total forwarding policy: some
// kinds are relayed to the other side, others are stored for the record only.
package domain

// MediaKind tags the single media attachment captured on a message.
type MediaKind string

// The closed set of media kinds. MediaNone marks a text-only message.
const (
	MediaNone     MediaKind = ""
	MediaPhoto    MediaKind = "photo"
	MediaDocument MediaKind = "document"
	MediaVideo    MediaKind = "video"
	MediaAudio    MediaKind = "audio"
	MediaVoice    MediaKind = "voice"
)

// CapturePrecedence is the fixed order in which attachment types are
// checked on an inbound event. When an event carries several, the first
// present kind wins and the rest are not recorded.
var CapturePrecedence = []MediaKind{
	MediaPhoto, MediaDocument, MediaVideo, MediaAudio, MediaVoice,
}

// Media is the tagged variant {none | photo | document | video | audio | voice}
// with the platform file reference for the non-none kinds.
type Media struct {
	Kind   MediaKind `json:"kind"`
	FileID string    `json:"file_id,omitempty"`
}

// None reports whether the variant carries no attachment.
func (m Media) None() bool { return m.Kind == MediaNone }

// Forwardable is the total mapping from media kind to "relayed to the other
// side: yes/no". Audio and voice notes are captured for the conversation
// record but intentionally not relayed; see the forwarding policy notes in
// the relay package.
func (m Media) Forwardable() bool {
	switch m.Kind {
	case MediaPhoto, MediaDocument, MediaVideo:
		return true
	case MediaNone, MediaAudio, MediaVoice:
		return false
	default:
		return false
	}
}

// Validate checks the internal consistency of the variant: a kind from the
// closed set, and kind and file reference either both present or both absent.
func (m Media) Validate() error {
	switch m.Kind {
	case MediaNone:
		if m.FileID != "" {
			return ErrFileIDWithoutKind
		}
		return nil
	case MediaPhoto, MediaDocument, MediaVideo, MediaAudio, MediaVoice:
		if m.FileID == "" {
			return ErrMediaWithoutFileID
		}
		return nil
	default:
		return ErrInvalidMediaKind
	}
}
