// Package imessage provides read-only access to Apple's Messages chat.db:
// the joined row types, the queries that reconstruct message/chat/attachment
// relationships, and the timestamp and rich-text conversions the transform
// stage needs.
package imessage

import "database/sql"

// MessageRow is one message joined with its sender handle and its
// chat-membership row.
type MessageRow struct {
	RowID            int64
	GUID             string
	ChatID           int64
	Date             int64 // Apple timestamp (nanoseconds since 2001-01-01)
	IsFromMe         bool
	Service          sql.NullString // "iMessage", "SMS", or NULL
	Text             sql.NullString
	AttributedBody   []byte
	HandleIdentifier sql.NullString // phone number or email of the sender when not me
}

// ChatParticipant links a chat to one handle.
type ChatParticipant struct {
	ChatID     int64
	ExternalID string // phone number or email from the handle table
	FullName   string // contact name when the address book resolves one
}

// AttachmentRow is one attachment joined to its owning message.
type AttachmentRow struct {
	MessageRowID int64
	GUID         string
	MimeType     sql.NullString
	Filename     sql.NullString // may start with a ~ that needs home expansion
}

// NameLookup resolves a raw handle identifier to a contact display name.
type NameLookup interface {
	NameFor(identifier string) (string, bool)
}
