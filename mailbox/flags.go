package mailbox

import (
	"strings"

	"github.com/emersion/go-imap"
)

// Flags is a set over the closed list of message flags the monitor cares
// about. The zero value is the empty set.
type Flags uint8

const (
	FlagUnread Flags = 1 << iota
	FlagFlagged
	FlagDraft
	FlagAnswered
	FlagDeleted
)

func (f Flags) Contains(flag Flags) bool {
	return f&flag != 0
}

func (f Flags) With(flag Flags) Flags {
	return f | flag
}

func (f Flags) Without(flag Flags) Flags {
	return f &^ flag
}

func (f Flags) Equal(other Flags) bool {
	return f == other
}

func (f Flags) String() string {
	names := make([]string, 0, 5)
	if f.Contains(FlagUnread) {
		names = append(names, "unread")
	}
	if f.Contains(FlagFlagged) {
		names = append(names, "flagged")
	}
	if f.Contains(FlagDraft) {
		names = append(names, "draft")
	}
	if f.Contains(FlagAnswered) {
		names = append(names, "answered")
	}
	if f.Contains(FlagDeleted) {
		names = append(names, "deleted")
	}
	return strings.Join(names, ",")
}

// FlagsFromIMAP converts IMAP flag strings. An email with no \Seen flag is
// unread.
func FlagsFromIMAP(source []string) Flags {
	flags := FlagUnread
	for _, flag := range source {
		switch flag {
		case imap.SeenFlag:
			flags = flags.Without(FlagUnread)
		case imap.FlaggedFlag:
			flags = flags.With(FlagFlagged)
		case imap.DraftFlag:
			flags = flags.With(FlagDraft)
		case imap.AnsweredFlag:
			flags = flags.With(FlagAnswered)
		case imap.DeletedFlag:
			flags = flags.With(FlagDeleted)
		}
	}
	return flags
}

// FlagsToIMAP converts back to IMAP flag strings.
func FlagsToIMAP(flags Flags) []string {
	source := make([]string, 0, 5)
	if !flags.Contains(FlagUnread) {
		source = append(source, imap.SeenFlag)
	}
	if flags.Contains(FlagFlagged) {
		source = append(source, imap.FlaggedFlag)
	}
	if flags.Contains(FlagDraft) {
		source = append(source, imap.DraftFlag)
	}
	if flags.Contains(FlagAnswered) {
		source = append(source, imap.AnsweredFlag)
	}
	if flags.Contains(FlagDeleted) {
		source = append(source, imap.DeletedFlag)
	}
	return source
}
