package mailbox

import "time"

// Email is the metadata record the monitor works with. Bodies are never
// loaded here, only the configured field set.
type Email struct {
	// The email identifier, unique within its folder.
	ID EmailID
	// The normalized Message-ID header, possibly empty.
	MessageID MessageID
	// The normalized References and In-Reply-To identifiers.
	References []MessageID
	// The subject line, only loaded with the envelope field set.
	Subject string
	// The date from the message header.
	Date time.Time
	// The date the message was received by the server.
	Received time.Time
	// The message flags.
	Flags Flags
	// The folder holding this email.
	Folder Path
}

// Ancestors returns the union of the email's own Message-ID with all of its
// references. The own Message-ID is always part of the result when present;
// an email carrying neither gets a synthesized identifier from its EmailID so
// it can form a conversation of its own.
func (e *Email) Ancestors() []MessageID {
	ancestors := make([]MessageID, 0, len(e.References)+1)
	seen := make(map[MessageID]struct{}, len(e.References)+1)
	if !e.MessageID.IsZero() {
		ancestors = append(ancestors, e.MessageID)
		seen[e.MessageID] = struct{}{}
	}
	for _, ref := range e.References {
		if ref.IsZero() {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		ancestors = append(ancestors, ref)
		seen[ref] = struct{}{}
	}
	if len(ancestors) == 0 {
		ancestors = append(ancestors, SyntheticMessageID(e.ID))
	}
	return ancestors
}

// SyntheticMessageID builds a stand-in identifier for an email with no
// Message-ID and no references. The prefix cannot appear in a normalized
// RFC-822 identifier taken from the wire.
func SyntheticMessageID(id EmailID) MessageID {
	return MessageID("<synthetic>" + id.String())
}
