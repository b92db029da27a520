package mdir

import (
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/emersion/go-maildir"
)

func toFlags(flags mailbox.Flags) []maildir.Flag {
	output := make([]maildir.Flag, 0, 3)
	if !flags.Contains(mailbox.FlagUnread) {
		output = append(output, maildir.FlagSeen)
	}
	if flags.Contains(mailbox.FlagFlagged) {
		output = append(output, maildir.FlagFlagged)
	}
	if flags.Contains(mailbox.FlagDraft) {
		output = append(output, maildir.FlagDraft)
	}
	if flags.Contains(mailbox.FlagAnswered) {
		output = append(output, maildir.FlagReplied)
	}
	if flags.Contains(mailbox.FlagDeleted) {
		output = append(output, maildir.FlagTrashed)
	}
	return output
}
