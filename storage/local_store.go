package storage

import (
	"io"

	"github.com/creativeprojects/convmon/mailbox"
)

// LocalStore is the on-disk mirror of an account: email metadata indexed by
// folder and by Message-ID, plus optionally the message bodies. The remote
// account writes through it; the monitor reads it for local listings and
// thread expansion.
type LocalStore interface {
	Close() error
	// CreateFolder doesn't return an error when the folder already exists.
	CreateFolder(path mailbox.Path) error
	ListFolders() ([]mailbox.Path, error)
	DeleteFolder(path mailbox.Path) error
	PutEmail(email mailbox.Email) error
	GetEmail(path mailbox.Path, id mailbox.EmailID) (*mailbox.Email, error)
	// ListEmails returns the emails of a folder ordered oldest to newest.
	ListEmails(path mailbox.Path) ([]mailbox.Email, error)
	DeleteEmails(path mailbox.Path, ids []mailbox.EmailID) error
	// SearchMessageID returns every stored email carrying the identifier
	// among its ancestors, excluding the given folders.
	SearchMessageID(id mailbox.MessageID, exclude []mailbox.Path) ([]mailbox.Email, error)
	// PutBody stores the raw message body.
	PutBody(path mailbox.Path, id mailbox.EmailID, body io.Reader) error
	HasBody(path mailbox.Path, id mailbox.EmailID) (bool, error)
}
