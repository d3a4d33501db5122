// Package transform turns raw chat.db rows into normalized communication
// events: it resolves who sent and received each message and assembles the
// event/message/attachment records with their dedupe keys.
package transform

import (
	"fmt"

	"github.com/Napageneral/chronicle-imessage/imessage"
)

// Namespace is the identity space a message's participants live in. SMS
// identities belong to the phone namespace; iMessage identities to icloud.
type Namespace string

const (
	NamespaceICloud Namespace = "icloud"
	NamespacePhone  Namespace = "phone"
)

// NamespaceForService maps a message's service string to its identity
// namespace. Anything that isn't SMS (including a missing service) defaults
// to icloud.
func NamespaceForService(service string) Namespace {
	if service == "SMS" {
		return NamespacePhone
	}
	return NamespaceICloud
}

// Identity is a normalized participant identity.
type Identity struct {
	Name     string `json:"name,omitempty"`
	Source   string `json:"source"`
	Slug     string `json:"slug"`
	SourceID string `json:"source_id,omitempty"`
}

// Equal reports whether two identities refer to the same participant.
// Identity records are rebuilt per message, so equality is on (source, slug),
// never on pointers.
func (i Identity) Equal(other Identity) bool {
	return i.Source == other.Source && i.Slug == other.Slug
}

// PhoneIdentity is the operator's identity in the phone namespace.
type PhoneIdentity struct {
	PhoneNumber string
	Name        string
}

// ICloudIdentity is the operator's identity in the icloud namespace.
type ICloudIdentity struct {
	AccountID   string
	AccountDSID string
	DisplayName string
}

// Me carries whichever operator identity branches could be resolved for this
// run. A nil branch is only an error once a message actually needs it.
type Me struct {
	Phone  *PhoneIdentity
	ICloud *ICloudIdentity
}

// Identity builds the operator's normalized identity in the given namespace.
func (m Me) Identity(ns Namespace) (Identity, error) {
	switch ns {
	case NamespacePhone:
		if m.Phone == nil {
			return Identity{}, &MissingIdentityError{Namespace: ns}
		}
		return Identity{
			Name:   m.Phone.Name,
			Source: string(ns),
			Slug:   m.Phone.PhoneNumber,
		}, nil
	default:
		if m.ICloud == nil {
			return Identity{}, &MissingIdentityError{Namespace: ns}
		}
		return Identity{
			Name:     m.ICloud.DisplayName,
			Source:   string(ns),
			Slug:     m.ICloud.AccountID,
			SourceID: m.ICloud.AccountDSID,
		}, nil
	}
}

// MissingIdentityError reports that a message needed an operator identity
// branch that was never resolved. The namespace tells the operator which
// configuration value to supply.
type MissingIdentityError struct {
	Namespace Namespace
}

func (e *MissingIdentityError) Error() string {
	if e.Namespace == NamespacePhone {
		return "operator phone identity unresolved: set my_phone_number or add a me card to the address book"
	}
	return "operator icloud identity unresolved: set icloud_account_id or sign in to an iCloud account"
}

// MissingAgentError reports a message whose sender handle matched none of its
// chat's participants. That is a relational integrity violation in the source
// database, not a normal data shape.
type MissingAgentError struct {
	MessageGUID string
	Handle      string
}

func (e *MissingAgentError) Error() string {
	return fmt.Sprintf("message %s: sender handle %q not among chat participants", e.MessageGUID, e.Handle)
}

// Actors is the resolved sender and recipient set of one message.
type Actors struct {
	Agent      Identity
	Recipients []Identity
}

// ResolveActors determines the sender and recipients for one message given
// its chat's participant list and the operator's resolved identity.
//
// Chat membership never includes the operator, so for an outgoing message the
// participant list is already the full recipient set. For an incoming message
// the sender is matched by handle identifier, removed from the recipients by
// value equality, and the operator is added as a recipient.
func ResolveActors(msg imessage.MessageRow, participants []imessage.ChatParticipant, me Me) (Actors, error) {
	ns := NamespaceForService(msg.Service.String)

	meIdentity, err := me.Identity(ns)
	if err != nil {
		return Actors{}, err
	}

	ids := make([]Identity, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, Identity{
			Name:   p.FullName,
			Source: string(ns),
			Slug:   p.ExternalID,
		})
	}

	if msg.IsFromMe {
		return Actors{Agent: meIdentity, Recipients: ids}, nil
	}

	if !msg.HandleIdentifier.Valid || msg.HandleIdentifier.String == "" {
		return Actors{}, &MissingAgentError{MessageGUID: msg.GUID}
	}
	handle := msg.HandleIdentifier.String

	agentIdx := -1
	for i, p := range participants {
		if p.ExternalID == handle {
			agentIdx = i
			break
		}
	}
	if agentIdx < 0 {
		return Actors{}, &MissingAgentError{MessageGUID: msg.GUID, Handle: handle}
	}

	agent := ids[agentIdx]
	recipients := make([]Identity, 0, len(ids))
	for _, id := range ids {
		if id.Equal(agent) {
			continue
		}
		recipients = append(recipients, id)
	}
	recipients = append(recipients, meIdentity)

	return Actors{Agent: agent, Recipients: recipients}, nil
}
