package mdir

import (
	"bytes"
	"runtime"
	"testing"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMaildir(t *testing.T) *Maildir {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("maildir is not supported on Windows")
	}
	store, err := NewWithLogger(t.TempDir(), lib.NewTestLogger(t, "mdir"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func maildirEmail(uid uint32, messageID mailbox.MessageID, folder string, refs ...mailbox.MessageID) mailbox.Email {
	return mailbox.Email{
		ID:         mailbox.NewEmailIDFromUint(uid),
		MessageID:  messageID,
		References: refs,
		Date:       time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Hour),
		Received:   time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Hour),
		Flags:      mailbox.FlagUnread,
		Folder:     mailbox.NewPath(folder, Delimiter),
	}
}

func TestMaildirFolders(t *testing.T) {
	store := newTestMaildir(t)
	require.NoError(t, store.CreateFolder(mailbox.NewPath("INBOX", Delimiter)))
	require.NoError(t, store.CreateFolder(mailbox.NewPath("INBOX", Delimiter)))
	require.NoError(t, store.CreateFolder(mailbox.NewPath("Archive", Delimiter)))

	list, err := store.ListFolders()
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, store.DeleteFolder(mailbox.NewPath("Archive", Delimiter)))
	list, err = store.ListFolders()
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestMaildirEmails(t *testing.T) {
	store := newTestMaildir(t)
	inbox := mailbox.NewPath("INBOX", Delimiter)
	require.NoError(t, store.CreateFolder(inbox))

	require.NoError(t, store.PutEmail(maildirEmail(2, "B@host", "INBOX", "A@host")))
	require.NoError(t, store.PutEmail(maildirEmail(1, "A@host", "INBOX")))

	email, err := store.GetEmail(inbox, mailbox.NewEmailIDFromUint(1))
	require.NoError(t, err)
	assert.Equal(t, mailbox.MessageID("A@host"), email.MessageID)

	emails, err := store.ListEmails(inbox)
	require.NoError(t, err)
	require.Len(t, emails, 2)
	assert.Equal(t, mailbox.NewEmailIDFromUint(1), emails[0].ID)

	found, err := store.SearchMessageID("A@host", nil)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	require.NoError(t, store.DeleteEmails(inbox, []mailbox.EmailID{mailbox.NewEmailIDFromUint(2)}))
	found, err = store.SearchMessageID("B@host", nil)
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestMaildirBody(t *testing.T) {
	store := newTestMaildir(t)
	inbox := mailbox.NewPath("INBOX", Delimiter)
	require.NoError(t, store.CreateFolder(inbox))
	require.NoError(t, store.PutEmail(maildirEmail(1, "A@host", "INBOX")))

	id := mailbox.NewEmailIDFromUint(1)
	has, err := store.HasBody(inbox, id)
	require.NoError(t, err)
	assert.False(t, has)

	body := lib.GenerateEmail("from@example.org", "to@example.org", 1)
	require.NoError(t, store.PutBody(inbox, id, bytes.NewReader(body)))

	has, err = store.HasBody(inbox, id)
	require.NoError(t, err)
	assert.True(t, has)

	// the metadata survives the body write
	email, err := store.GetEmail(inbox, id)
	require.NoError(t, err)
	assert.Equal(t, mailbox.MessageID("A@host"), email.MessageID)
}
