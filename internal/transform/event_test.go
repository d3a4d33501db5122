package transform

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Napageneral/chronicle-imessage/imessage"
)

type fakeEncoder struct {
	payload string
	err     error
}

func (f fakeEncoder) EncodeFile(path, mimeType string) (string, error) {
	return f.payload, f.err
}

type fakeRecognizer struct {
	text string
	err  error
}

func (f fakeRecognizer) RecognizeFile(path string) (string, error) {
	return f.text, f.err
}

type fakeDecoder struct{ text string }

func (f fakeDecoder) Decode([]byte) string { return f.text }

func testNormalizer(t *testing.T) *Normalizer {
	t.Helper()
	return &Normalizer{
		Decoder: imessage.MarkerDecoder{},
		Encoder: fakeEncoder{payload: "ZGF0YQ=="},
		Home:    t.TempDir(),
	}
}

func touch(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestEventScenarioFromMe(t *testing.T) {
	msg := imessage.MessageRow{
		GUID:     "g1",
		Date:     700000000 * 1000000000,
		IsFromMe: true,
		Service:  nullString("iMessage"),
		Text:     nullString("hi"),
	}
	participants := []imessage.ChatParticipant{
		{ExternalID: "+15551234567", FullName: "Alice"},
	}
	me := Me{ICloud: &ICloudIdentity{AccountID: "me@icloud.com", AccountDSID: "999", DisplayName: "Bob"}}

	actors, err := ResolveActors(msg, participants, me)
	require.NoError(t, err)

	event := testNormalizer(t).Event(msg, actors, nil)

	assert.Equal(t, int64(700000000+978307200), event.EndTime)
	assert.Equal(t, "imessage", event.Source)
	assert.Equal(t, "g1", event.SourceID)
	assert.Equal(t, "icloud", event.Agent.Source)
	assert.Equal(t, "me@icloud.com", event.Agent.Slug)

	require.Len(t, event.Object.Recipients, 1)
	assert.Equal(t, Identity{Name: "Alice", Source: "icloud", Slug: "+15551234567"}, event.Object.Recipients[0])

	assert.Equal(t, "hi", event.Object.Text)
	assert.Equal(t, DedupeKey{Source: "imessage", SourceID: "g1", Type: "action"}, event.DedupeKey)
	assert.Equal(t, DedupeKey{Source: "imessage", SourceID: "g1", Type: "message"}, event.Object.DedupeKey)
}

func TestEventSourceMapping(t *testing.T) {
	assert.Equal(t, "imessage", EventSource(""))
	assert.Equal(t, "sms", EventSource("SMS"))
	assert.Equal(t, "imessage", EventSource("iMessage"))
}

func TestEventDedupeKeysStable(t *testing.T) {
	msg := imessage.MessageRow{
		GUID:     "g1",
		Date:     700000000 * 1000000000,
		IsFromMe: true,
		Service:  nullString("SMS"),
		Text:     nullString("hi"),
	}
	me := Me{Phone: &PhoneIdentity{PhoneNumber: "+15550001111"}}

	n := testNormalizer(t)
	actors, err := ResolveActors(msg, nil, me)
	require.NoError(t, err)

	first := n.Event(msg, actors, nil)
	second := n.Event(msg, actors, nil)
	assert.Equal(t, first.DedupeKey, second.DedupeKey)
	assert.Equal(t, first.Object.DedupeKey, second.Object.DedupeKey)
	assert.Equal(t, first, second, "reprocessing an identical row is byte-identical")
}

func TestEventTextFallsBackToDecoder(t *testing.T) {
	msg := imessage.MessageRow{
		GUID:           "g2",
		Service:        nullString("iMessage"),
		Text:           sql.NullString{},
		AttributedBody: []byte("whatever"),
		IsFromMe:       true,
	}
	me := Me{ICloud: &ICloudIdentity{AccountID: "me@icloud.com"}}
	actors, err := ResolveActors(msg, nil, me)
	require.NoError(t, err)

	n := testNormalizer(t)
	n.Decoder = fakeDecoder{text: "recovered"}

	event := n.Event(msg, actors, nil)
	assert.Equal(t, "recovered", event.Object.Text)
}

func TestMediaType(t *testing.T) {
	assert.Equal(t, "image", MediaType("image/png"))
	assert.Equal(t, "audio", MediaType("audio/amr"))
	assert.Equal(t, "video", MediaType("video/mp4"))
	assert.Equal(t, "image", MediaType("IMAGE/PNG"))
	assert.Equal(t, "", MediaType("text/plain"))
	assert.Equal(t, "", MediaType("application/pdf"))
	assert.Equal(t, "", MediaType(""))
}

func TestAttachmentAccepted(t *testing.T) {
	n := testNormalizer(t)
	touch(t, n.Home, "photo.png")

	att, ok := n.Attachment(imessage.AttachmentRow{
		GUID:     "att1",
		MimeType: nullString("image/png"),
		Filename: nullString("~/photo.png"),
	})
	require.True(t, ok)
	assert.Equal(t, "photo.png", att.Title)
	assert.Equal(t, "image", att.Type)
	assert.Equal(t, "imessage", att.Source)
	assert.Equal(t, "att1", att.SourceID)
	assert.Equal(t, "ZGF0YQ==", att.Data)
	assert.Equal(t, DedupeKey{Source: "imessage", SourceID: "att1", Type: "image"}, att.DedupeKey)
}

func TestAttachmentRejections(t *testing.T) {
	n := testNormalizer(t)
	touch(t, n.Home, "photo.png")
	touch(t, n.Home, "notes.txt")

	tests := []struct {
		name string
		row  imessage.AttachmentRow
	}{
		{"missing mime type", imessage.AttachmentRow{GUID: "a", Filename: nullString("~/photo.png")}},
		{"unsupported major type", imessage.AttachmentRow{GUID: "a", MimeType: nullString("text/plain"), Filename: nullString("~/notes.txt")}},
		{"missing filename", imessage.AttachmentRow{GUID: "a", MimeType: nullString("image/png")}},
		{"file absent on disk", imessage.AttachmentRow{GUID: "a", MimeType: nullString("image/png"), Filename: nullString("~/gone.png")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, ok := n.Attachment(tt.row)
			assert.False(t, ok)
		})
	}
}

func TestAttachmentEncoderFailureDrops(t *testing.T) {
	n := testNormalizer(t)
	n.Encoder = fakeEncoder{err: errors.New("read failed")}
	touch(t, n.Home, "photo.png")

	_, ok := n.Attachment(imessage.AttachmentRow{
		GUID:     "att1",
		MimeType: nullString("image/png"),
		Filename: nullString("~/photo.png"),
	})
	assert.False(t, ok)
}

func TestAttachmentOCROnlyForImages(t *testing.T) {
	n := testNormalizer(t)
	n.Recognizer = fakeRecognizer{text: "sign text"}
	touch(t, n.Home, "photo.png")
	touch(t, n.Home, "clip.mp4")

	image, ok := n.Attachment(imessage.AttachmentRow{
		GUID:     "att1",
		MimeType: nullString("image/png"),
		Filename: nullString("~/photo.png"),
	})
	require.True(t, ok)
	assert.Equal(t, "sign text", image.OCRText)

	video, ok := n.Attachment(imessage.AttachmentRow{
		GUID:     "att2",
		MimeType: nullString("video/mp4"),
		Filename: nullString("~/clip.mp4"),
	})
	require.True(t, ok)
	assert.Empty(t, video.OCRText)
}

func TestEventDropsRejectedAttachments(t *testing.T) {
	n := testNormalizer(t)
	touch(t, n.Home, "photo.png")

	msg := imessage.MessageRow{
		GUID:     "g1",
		IsFromMe: true,
		Service:  nullString("iMessage"),
		Text:     nullString("look"),
	}
	me := Me{ICloud: &ICloudIdentity{AccountID: "me@icloud.com"}}
	actors, err := ResolveActors(msg, nil, me)
	require.NoError(t, err)

	rows := []imessage.AttachmentRow{
		{GUID: "att1", MimeType: nullString("image/png"), Filename: nullString("~/photo.png")},
		{GUID: "att2", MimeType: nullString("text/plain"), Filename: nullString("~/photo.png")},
	}
	event := n.Event(msg, actors, rows)
	require.Len(t, event.Object.Attachments, 1)
	assert.Equal(t, "att1", event.Object.Attachments[0].SourceID)
}
