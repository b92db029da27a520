package monitor

import (
	"github.com/creativeprojects/convmon/conversation"
	"github.com/creativeprojects/convmon/mailbox"
)

// Listener receives the monitor's change notifications. Notifications are
// emitted from the operation queue worker, one operation at a time; a
// listener must not call back into the monitor's mutating API.
type Listener interface {
	MonitoringStarted()
	MonitoringStopped(retrying bool)
	// ScanStarted opens every scan-bearing operation and ScanCompleted closes
	// it when it succeeds; a failing operation gets ScanError instead.
	ScanStarted(localOnly bool)
	ScanError(err error)
	ScanCompleted(localOnly bool)
	// SeedCompleted fires at most once per monitoring session, after the
	// first reseed from the remote server.
	SeedCompleted()
	ConversationsAdded(conversations []*conversation.Conversation)
	ConversationAppended(conv *conversation.Conversation, emails []mailbox.Email)
	ConversationTrimmed(conv *conversation.Conversation, emails []mailbox.Email)
	ConversationRemoved(conv *conversation.Conversation)
	EmailFlagsChanged(conv *conversation.Conversation, email mailbox.Email)
}

// NoListener is a Listener ignoring every notification. Embed it to only
// implement the notifications you care about.
type NoListener struct{}

func (l *NoListener) MonitoringStarted()                                                      {}
func (l *NoListener) MonitoringStopped(retrying bool)                                         {}
func (l *NoListener) ScanStarted(localOnly bool)                                              {}
func (l *NoListener) ScanError(err error)                                                     {}
func (l *NoListener) ScanCompleted(localOnly bool)                                            {}
func (l *NoListener) SeedCompleted()                                                          {}
func (l *NoListener) ConversationsAdded(conversations []*conversation.Conversation)           {}
func (l *NoListener) ConversationAppended(conv *conversation.Conversation, e []mailbox.Email) {}
func (l *NoListener) ConversationTrimmed(conv *conversation.Conversation, e []mailbox.Email)  {}
func (l *NoListener) ConversationRemoved(conv *conversation.Conversation)                     {}
func (l *NoListener) EmailFlagsChanged(conv *conversation.Conversation, email mailbox.Email)  {}

// verify interface
var _ Listener = &NoListener{}
