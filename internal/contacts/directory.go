// Package contacts reads the synced macOS address book and the operator's
// own identity records. Everything is loaded once at construction; lookups
// afterwards are memoized map reads.
package contacts

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAddressBookNotFound is returned when no synced address book database
// exists under the search directory.
var ErrAddressBookNotFound = errors.New("no address book database found")

// Contact is one address book entry.
type Contact struct {
	FirstName string
	LastName  string
}

// FullName joins the name parts, tolerating either being empty.
func (c Contact) FullName() string {
	return strings.TrimSpace(strings.TrimSpace(c.FirstName) + " " + strings.TrimSpace(c.LastName))
}

// PhoneContact is the operator's own phone record from the address book.
type PhoneContact struct {
	PhoneNumber string
	FullName    string
}

// Directory maps normalized phone/email identifiers to contacts.
type Directory struct {
	contacts map[string]Contact
	myPhone  *PhoneContact
}

// NewEmpty returns a directory with no contacts, used when the address book
// cannot be found and the run degrades to identifier-only participants.
func NewEmpty() *Directory {
	return &Directory{contacts: make(map[string]Contact)}
}

// DefaultSourcesDir returns the search root for synced address book databases.
// The synced store doesn't have a stable folder under Sources, so callers
// search it rather than assuming a path.
func DefaultSourcesDir() string {
	if override := os.Getenv("CHRONICLE_IMESSAGE_ADDRESS_BOOK_DIR"); override != "" {
		return os.ExpandEnv(override)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, "Library", "Application Support", "AddressBook", "Sources")
}

// FindAddressBook walks root and returns the first .abcddb database found.
func FindAddressBook(root string) (string, error) {
	if root == "" {
		return "", ErrAddressBookNotFound
	}

	var found string
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return nil
		}
		if d == nil || d.IsDir() {
			return nil
		}
		if filepath.Ext(d.Name()) != ".abcddb" {
			return nil
		}
		found = path
		return filepath.SkipAll
	})

	if found == "" {
		return "", ErrAddressBookNotFound
	}
	return found, nil
}

// Open loads phone and email contacts from the address book at dbPath into
// one normalized-identifier map, and picks up the record flagged as the
// operator's own card if one exists.
func Open(dbPath string) (*Directory, error) {
	uri := fmt.Sprintf("file:%s?mode=ro", dbPath)
	conn, err := sql.Open("sqlite3", uri)
	if err != nil {
		return nil, fmt.Errorf("failed to open address book: %w", err)
	}
	defer conn.Close()

	d := NewEmpty()
	if err := d.loadPhones(conn); err != nil {
		return nil, err
	}
	if err := d.loadEmails(conn); err != nil {
		return nil, err
	}
	if err := d.loadMyPhone(conn); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Directory) loadPhones(conn *sql.DB) error {
	query := `
		SELECT p.ZFULLNUMBER, r.ZFIRSTNAME, r.ZLASTNAME
		FROM ZABCDRECORD r
		JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
		WHERE p.ZFULLNUMBER IS NOT NULL`

	rows, err := conn.Query(query)
	if err != nil {
		return fmt.Errorf("failed to query phone numbers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var number, first, last sql.NullString
		if err := rows.Scan(&number, &first, &last); err != nil {
			return fmt.Errorf("failed to scan phone number: %w", err)
		}
		key := NormalizePhone(number.String)
		if key == "" {
			continue
		}
		d.contacts[key] = Contact{FirstName: first.String, LastName: last.String}
	}
	return rows.Err()
}

func (d *Directory) loadEmails(conn *sql.DB) error {
	// The store already normalizes email addresses; take them as stored.
	query := `
		SELECT e.ZADDRESSNORMALIZED, r.ZFIRSTNAME, r.ZLASTNAME
		FROM ZABCDRECORD r
		JOIN ZABCDEMAILADDRESS e ON e.ZOWNER = r.Z_PK
		WHERE e.ZADDRESSNORMALIZED IS NOT NULL`

	rows, err := conn.Query(query)
	if err != nil {
		return fmt.Errorf("failed to query email addresses: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var address, first, last sql.NullString
		if err := rows.Scan(&address, &first, &last); err != nil {
			return fmt.Errorf("failed to scan email address: %w", err)
		}
		key := strings.ToLower(strings.TrimSpace(address.String))
		if key == "" {
			continue
		}
		d.contacts[key] = Contact{FirstName: first.String, LastName: last.String}
	}
	return rows.Err()
}

func (d *Directory) loadMyPhone(conn *sql.DB) error {
	// The address book marks the operator's own card via the
	// container-where-contact-is-me relation.
	query := `
		SELECT p.ZFULLNUMBER, r.ZFIRSTNAME, r.ZLASTNAME
		FROM ZABCDRECORD r
		JOIN ZABCDPHONENUMBER p ON p.ZOWNER = r.Z_PK
		WHERE r.ZCONTAINERWHERECONTACTISME IS NOT NULL
		  AND p.ZFULLNUMBER IS NOT NULL
		LIMIT 1`

	var number, first, last sql.NullString
	err := conn.QueryRow(query).Scan(&number, &first, &last)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		// Older store revisions lack the me marker column; treat as absent.
		return nil
	}

	phone := NormalizePhone(number.String)
	if phone == "" {
		return nil
	}
	d.myPhone = &PhoneContact{
		PhoneNumber: phone,
		FullName:    Contact{FirstName: first.String, LastName: last.String}.FullName(),
	}
	return nil
}

// NameFor implements imessage.NameLookup: it normalizes the raw handle
// identifier and returns the matching contact's full name.
func (d *Directory) NameFor(identifier string) (string, bool) {
	c, ok := d.contacts[NormalizeIdentifier(identifier)]
	if !ok {
		return "", false
	}
	name := c.FullName()
	if name == "" {
		return "", false
	}
	return name, true
}

// Contacts returns the loaded identifier-to-contact map.
func (d *Directory) Contacts() map[string]Contact {
	return d.contacts
}

// MyPhoneContact returns the operator's own phone record, if the address book
// has a card flagged as "me".
func (d *Directory) MyPhoneContact() (PhoneContact, bool) {
	if d.myPhone == nil {
		return PhoneContact{}, false
	}
	return *d.myPhone, true
}
