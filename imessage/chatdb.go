package imessage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBPath returns the path to the per-user Messages chat.db.
func DefaultDBPath() string {
	if override := os.Getenv("CHRONICLE_IMESSAGE_CHAT_DB"); override != "" {
		return os.ExpandEnv(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Messages", "chat.db")
}

// ChatDB provides read-only access to a chat.db snapshot.
type ChatDB struct {
	db   *sql.DB
	path string
}

// Open opens the chat.db with read-only optimized pragmas.
func Open(path string) (*ChatDB, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("chat.db not found at %s", path)
	}

	// Note: don't use immutable=1 for a live macOS Messages DB (uses WAL)
	uri := fmt.Sprintf("file:%s?mode=ro", path)
	db, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open chat.db: %w", err)
	}

	pragmas := []string{
		"PRAGMA query_only=ON",
		"PRAGMA synchronous=OFF",
		"PRAGMA journal_mode=OFF",
		"PRAGMA temp_store=MEMORY",
		"PRAGMA cache_size=-262144",  // 256MB cache
		"PRAGMA mmap_size=268435456", // 256MB memory map
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			// Ignore pragma errors (some may not be supported)
			continue
		}
	}

	return &ChatDB{db: db, path: path}, nil
}

// Close closes the chat.db connection
func (c *ChatDB) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Path returns the path to the chat.db file
func (c *ChatDB) Path() string {
	return c.path
}

// MessageQuery filters LoadMessages. Zero values mean "unbounded".
type MessageQuery struct {
	SinceUnix           int64 // exclusive lower bound, Unix seconds
	UntilUnix           int64 // exclusive upper bound, Unix seconds
	Limit               int
	OnlyWithAttachments bool
}

// LoadMessages reads message rows joined with their sender handle and chat
// membership. Results are always ordered newest first; Limit caps the result
// count after ordering so limit/offset behavior stays deterministic.
func (c *ChatDB) LoadMessages(q MessageQuery) ([]MessageRow, error) {
	query := `
		SELECT
			m.ROWID,
			m.guid,
			cmj.chat_id,
			m.date,
			m.is_from_me,
			m.service,
			m.text,
			m.attributedBody,
			h.id
		FROM message m
		LEFT OUTER JOIN handle h ON m.handle_id = h.ROWID
		INNER JOIN chat_message_join cmj ON m.ROWID = cmj.message_id`

	var conds []string
	var args []interface{}
	if q.SinceUnix != 0 {
		conds = append(conds, "m.date > ?")
		args = append(args, UnixToApple(q.SinceUnix)*1000000000)
	}
	if q.UntilUnix != 0 {
		conds = append(conds, "m.date < ?")
		args = append(args, UnixToApple(q.UntilUnix)*1000000000)
	}
	if q.OnlyWithAttachments {
		conds = append(conds, "m.cache_has_attachments = 1")
	}
	if len(conds) > 0 {
		query += "\n\t\tWHERE " + strings.Join(conds, " AND ")
	}
	query += "\n\t\tORDER BY m.date DESC"
	if q.Limit > 0 {
		query += "\n\t\tLIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var messages []MessageRow
	for rows.Next() {
		var msg MessageRow
		if err := rows.Scan(
			&msg.RowID,
			&msg.GUID,
			&msg.ChatID,
			&msg.Date,
			&msg.IsFromMe,
			&msg.Service,
			&msg.Text,
			&msg.AttributedBody,
			&msg.HandleIdentifier,
		); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating messages: %w", err)
	}

	return messages, nil
}

// LoadChatParticipants reads chat membership grouped by chat ROWID. When a
// name lookup is supplied, each participant's FullName is enriched by exact
// identifier match before grouping.
func (c *ChatDB) LoadChatParticipants(names NameLookup) (map[int64][]ChatParticipant, error) {
	query := `
		SELECT chj.chat_id, h.id
		FROM chat_handle_join chj
		INNER JOIN handle h ON chj.handle_id = h.ROWID
		INNER JOIN chat ch ON ch.ROWID = chj.chat_id
		ORDER BY chj.chat_id, h.ROWID`

	rows, err := c.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query chat participants: %w", err)
	}
	defer rows.Close()

	grouped := make(map[int64][]ChatParticipant)
	for rows.Next() {
		var p ChatParticipant
		if err := rows.Scan(&p.ChatID, &p.ExternalID); err != nil {
			return nil, fmt.Errorf("failed to scan chat participant: %w", err)
		}
		if names != nil {
			if name, ok := names.NameFor(p.ExternalID); ok {
				p.FullName = name
			}
		}
		grouped[p.ChatID] = append(grouped[p.ChatID], p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating chat participants: %w", err)
	}
	return grouped, nil
}

// LoadAttachments reads attachment rows for the given message ROWIDs, grouped
// by message. Attachment metadata is left-joined so a dangling join row still
// surfaces (and gets filtered later on its missing mime type). An empty id set
// returns an empty map without touching the database.
func (c *ChatDB) LoadAttachments(messageRowIDs []int64) (map[int64][]AttachmentRow, error) {
	grouped := make(map[int64][]AttachmentRow)
	if len(messageRowIDs) == 0 {
		return grouped, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(messageRowIDs)), ",")
	query := fmt.Sprintf(`
		SELECT maj.message_id, a.guid, a.mime_type, a.filename
		FROM message_attachment_join maj
		LEFT JOIN attachment a ON a.ROWID = maj.attachment_id
		WHERE maj.message_id IN (%s)
		ORDER BY maj.message_id, maj.attachment_id`, placeholders)

	args := make([]interface{}, len(messageRowIDs))
	for i, id := range messageRowIDs {
		args[i] = id
	}

	rows, err := c.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var att AttachmentRow
		var guid sql.NullString
		if err := rows.Scan(&att.MessageRowID, &guid, &att.MimeType, &att.Filename); err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		att.GUID = guid.String
		grouped[att.MessageRowID] = append(grouped[att.MessageRowID], att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}
	return grouped, nil
}

// CountMessages returns the total number of rows in the message table.
func (c *ChatDB) CountMessages() (int, error) {
	var total int
	if err := c.db.QueryRow(`SELECT COUNT(*) FROM message`).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return total, nil
}
