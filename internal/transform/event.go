package transform

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/Napageneral/chronicle-imessage/imessage"
)

// DedupeKey identifies a record for idempotent re-ingestion: two records with
// equal keys represent the same real-world entity and collapse to one
// downstream.
type DedupeKey struct {
	Source   string `json:"source"`
	SourceID string `json:"source_id"`
	Type     string `json:"type"`
}

// Attachment is a normalized media attachment nested in a message.
type Attachment struct {
	Title     string    `json:"title"`
	Type      string    `json:"type"` // image, audio or video
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Data      string    `json:"data,omitempty"` // base64 payload
	OCRText   string    `json:"ocr_text,omitempty"`
	DedupeKey DedupeKey `json:"dedupe_key"`
}

// Message is the normalized message object nested in an event.
type Message struct {
	Text        string       `json:"text"`
	Source      string       `json:"source"`
	SourceID    string       `json:"source_id"`
	Recipients  []Identity   `json:"recipients"`
	Attachments []Attachment `json:"attachments,omitempty"`
	DedupeKey   DedupeKey    `json:"dedupe_key"`
}

// Event is the final normalized communication event.
type Event struct {
	EndTime   int64     `json:"end_time"` // Unix seconds
	Source    string    `json:"source"`
	SourceID  string    `json:"source_id"`
	Agent     Identity  `json:"agent"`
	Object    Message   `json:"object"`
	DedupeKey DedupeKey `json:"dedupe_key"`
}

// Normalizer assembles events from raw rows and resolved actors. The decoder,
// encoder and recognizer are swappable collaborators; a nil recognizer just
// skips OCR.
type Normalizer struct {
	Decoder    imessage.BodyDecoder
	Encoder    Encoder
	Recognizer TextRecognizer
	Home       string // home directory used for ~ expansion in attachment paths
}

// NewNormalizer returns a Normalizer with the default marker-based body
// decoder and base64 file encoder. OCR is off until a recognizer is set.
func NewNormalizer() *Normalizer {
	home, _ := os.UserHomeDir()
	return &Normalizer{
		Decoder: imessage.MarkerDecoder{},
		Encoder: Base64FileEncoder{},
		Home:    home,
	}
}

// EventSource maps the raw service string to the event's source value. In the
// wild the service column is either NULL, "SMS" or "iMessage".
func EventSource(service string) string {
	if service == "" {
		return "imessage"
	}
	return strings.ToLower(service)
}

// Event builds the normalized event for one message. The event and its nested
// message object carry independent dedupe keys because they are separately
// addressable downstream.
func (n *Normalizer) Event(msg imessage.MessageRow, actors Actors, attachments []imessage.AttachmentRow) *Event {
	source := EventSource(msg.Service.String)

	text := msg.Text.String
	if text == "" && n.Decoder != nil {
		text = n.Decoder.Decode(msg.AttributedBody)
	}

	object := Message{
		Text:       text,
		Source:     source,
		SourceID:   msg.GUID,
		Recipients: actors.Recipients,
		DedupeKey:  DedupeKey{Source: source, SourceID: msg.GUID, Type: "message"},
	}
	for _, row := range attachments {
		if att, ok := n.Attachment(row); ok {
			object.Attachments = append(object.Attachments, att)
		}
	}

	return &Event{
		EndTime:   imessage.AppleNanosToUnix(msg.Date),
		Source:    source,
		SourceID:  msg.GUID,
		Agent:     actors.Agent,
		Object:    object,
		DedupeKey: DedupeKey{Source: source, SourceID: msg.GUID, Type: "action"},
	}
}

// Attachment filters and normalizes one attachment row. ok is false when the
// row is unsupported or its file is gone; that is a drop, not an error.
func (n *Normalizer) Attachment(row imessage.AttachmentRow) (Attachment, bool) {
	if !row.MimeType.Valid {
		return Attachment{}, false
	}
	major := MediaType(row.MimeType.String)
	if major == "" {
		return Attachment{}, false
	}
	if !row.Filename.Valid || row.Filename.String == "" {
		return Attachment{}, false
	}

	path := expandHome(row.Filename.String, n.Home)
	if _, err := os.Stat(path); err != nil {
		return Attachment{}, false
	}

	att := Attachment{
		Title:     filepath.Base(row.Filename.String),
		Type:      major,
		Source:    "imessage",
		SourceID:  row.GUID,
		DedupeKey: DedupeKey{Source: "imessage", SourceID: row.GUID, Type: major},
	}

	if n.Encoder != nil {
		data, err := n.Encoder.EncodeFile(path, row.MimeType.String)
		if err != nil {
			return Attachment{}, false
		}
		att.Data = data
	}
	if major == "image" && n.Recognizer != nil {
		if text, err := n.Recognizer.RecognizeFile(path); err == nil {
			att.OCRText = text
		}
	}

	return att, true
}

// MediaType returns the supported major media type for a mime type, or ""
// when the attachment should be dropped.
func MediaType(mimeType string) string {
	major, _, _ := strings.Cut(strings.ToLower(mimeType), "/")
	switch major {
	case "image", "audio", "video":
		return major
	}
	return ""
}

// expandHome replaces a leading ~ in an attachment path with the home
// directory, matching how chat.db records filenames.
func expandHome(path, home string) string {
	if home == "" || !strings.HasPrefix(path, "~") {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
