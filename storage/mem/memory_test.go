package mem

import (
	"context"
	"testing"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEmail(uid uint32, messageID mailbox.MessageID, refs ...mailbox.MessageID) mailbox.Email {
	return mailbox.Email{
		ID:         mailbox.NewEmailIDFromUint(uid),
		MessageID:  messageID,
		References: refs,
		Date:       time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Hour),
		Received:   time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(uid) * time.Hour),
		Flags:      mailbox.FlagUnread,
		Folder:     mailbox.NewPath("INBOX", Delimiter),
	}
}

func TestListByID(t *testing.T) {
	account := New()
	defer account.Close()
	folder := account.CreateFolder(mailbox.NewPath("INBOX", Delimiter))
	folder.Put(newEmail(1, "A"), newEmail(2, "B"), newEmail(3, "C"), newEmail(4, "D"))

	t.Run("NewestFirstFromTop", func(t *testing.T) {
		emails, err := storage.ListAll(context.Background(), folder, nil, 2, storage.FieldsRequired, storage.ListNone)
		require.NoError(t, err)
		require.Len(t, emails, 2)
		assert.Equal(t, mailbox.NewEmailIDFromUint(4), emails[0].ID)
		assert.Equal(t, mailbox.NewEmailIDFromUint(3), emails[1].ID)
	})

	t.Run("BelowStartExclusive", func(t *testing.T) {
		start := mailbox.NewEmailIDFromUint(3)
		emails, err := storage.ListAll(context.Background(), folder, &start, storage.CountUnlimited, storage.FieldsRequired, storage.ListNone)
		require.NoError(t, err)
		require.Len(t, emails, 2)
		assert.Equal(t, mailbox.NewEmailIDFromUint(2), emails[0].ID)
	})

	t.Run("OldestToNewestIncluding", func(t *testing.T) {
		start := mailbox.NewEmailIDFromUint(2)
		emails, err := storage.ListAll(context.Background(), folder, &start, storage.CountUnlimited,
			storage.FieldsRequired, storage.ListOldestToNewest|storage.ListIncludingID)
		require.NoError(t, err)
		require.Len(t, emails, 3)
		assert.Equal(t, mailbox.NewEmailIDFromUint(2), emails[0].ID)
		assert.Equal(t, mailbox.NewEmailIDFromUint(4), emails[2].ID)
	})
}

func TestListLocalOnly(t *testing.T) {
	account := New()
	defer account.Close()
	folder := account.CreateFolder(mailbox.NewPath("INBOX", Delimiter))
	folder.Put(newEmail(1, "A"), newEmail(2, "B"))
	folder.AppendRemote(newEmail(3, "C"))

	emails, err := storage.ListAll(context.Background(), folder, nil, storage.CountUnlimited, storage.FieldsRequired, storage.ListLocalOnly)
	require.NoError(t, err)
	assert.Len(t, emails, 2)

	id, offset, err := folder.FetchLocalNewest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, mailbox.NewEmailIDFromUint(2), id)
	assert.Equal(t, 1, offset)
}

func TestFindBoundaries(t *testing.T) {
	account := New()
	defer account.Close()
	folder := account.CreateFolder(mailbox.NewPath("INBOX", Delimiter))
	folder.Put(newEmail(2, "B"), newEmail(5, "E"), newEmail(9, "I"))

	earliest, latest, err := folder.FindBoundaries(context.Background(), []mailbox.EmailID{
		mailbox.NewEmailIDFromUint(5),
		mailbox.NewEmailIDFromUint(9),
		mailbox.NewEmailIDFromUint(4), // not in the folder
	})
	require.NoError(t, err)
	assert.Equal(t, mailbox.NewEmailIDFromUint(5), earliest)
	assert.Equal(t, mailbox.NewEmailIDFromUint(9), latest)
}

func TestSearchMessageID(t *testing.T) {
	account := NewWithLogger(lib.NewTestLogger(t, "mem"))
	defer account.Close()
	inbox := account.CreateFolder(mailbox.NewPath("INBOX", Delimiter))
	trash := account.CreateFolder(mailbox.NewPath("Trash", Delimiter))
	inbox.Put(newEmail(1, "A"))
	trashed := newEmail(2, "B", "A")
	trashed.Folder = mailbox.NewPath("Trash", Delimiter)
	trash.Put(trashed)

	found, err := account.SearchMessageID(context.Background(), "A", storage.FieldsRequired, nil)
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = account.SearchMessageID(context.Background(), "A", storage.FieldsRequired,
		[]mailbox.Path{mailbox.NewPath("Trash", Delimiter)})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, mailbox.NewEmailIDFromUint(1), found[0].ID)
}

func TestOpenStateTransitions(t *testing.T) {
	account := New()
	defer account.Close()
	folder := account.CreateFolder(mailbox.NewPath("INBOX", Delimiter))

	require.Equal(t, storage.StateClosed, folder.OpenState())
	require.NoError(t, folder.Open(context.Background(), storage.OpenNone))
	assert.Equal(t, storage.StateLocal, folder.OpenState())

	account.SetRemoteAvailable(true)
	assert.Equal(t, storage.StateBoth, folder.OpenState())

	account.SetRemoteAvailable(false)
	assert.Equal(t, storage.StateLocal, folder.OpenState())

	require.NoError(t, folder.Close(context.Background()))
	assert.Equal(t, storage.StateClosed, folder.OpenState())
}
