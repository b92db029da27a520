package storage

import (
	"context"

	"github.com/creativeprojects/convmon/mailbox"
)

// CollectEmails drains a channel-based listing into a slice. The lister runs
// in the background while the emails are received.
func CollectEmails(lister func(emails chan<- *mailbox.Email) error) ([]mailbox.Email, error) {
	receiver := make(chan *mailbox.Email, 10)
	done := make(chan error, 1)
	go func() {
		done <- lister(receiver)
	}()

	emails := make([]mailbox.Email, 0)
	for email := range receiver {
		emails = append(emails, *email)
	}
	// wait until all the emails arrived
	err := <-done
	if err != nil {
		return emails, err
	}
	return emails, nil
}

// ListAll is a convenience around Folder.ListByID collecting the result.
func ListAll(ctx context.Context, folder Folder, start *mailbox.EmailID, count int, fields Field, flags ListFlag) ([]mailbox.Email, error) {
	return CollectEmails(func(emails chan<- *mailbox.Email) error {
		return folder.ListByID(ctx, start, count, fields, flags, emails)
	})
}

// ListSparse is a convenience around Folder.ListBySparseID collecting the result.
func ListSparse(ctx context.Context, folder Folder, ids []mailbox.EmailID, fields Field, flags ListFlag) ([]mailbox.Email, error) {
	return CollectEmails(func(emails chan<- *mailbox.Email) error {
		return folder.ListBySparseID(ctx, ids, fields, flags, emails)
	})
}
