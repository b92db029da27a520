package conversation

import (
	"testing"
	"time"

	"github.com/creativeprojects/convmon/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testFolder = mailbox.NewPath("INBOX", ".")

func newTestEmail(uid uint32, messageID mailbox.MessageID, date int, refs ...mailbox.MessageID) mailbox.Email {
	day := time.Date(2022, 3, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, date)
	return mailbox.Email{
		ID:         mailbox.NewEmailIDFromUint(uid),
		MessageID:  messageID,
		References: refs,
		Date:       day,
		Received:   day,
		Flags:      mailbox.FlagUnread,
		Folder:     testFolder,
	}
}

func TestSimpleThread(t *testing.T) {
	set := NewSet(testFolder)
	changes := set.AddAll([]mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(2, "B", 11, "A"),
		newTestEmail(3, "C", 12, "B", "A"),
	})

	require.Len(t, changes.Added, 1)
	require.Len(t, changes.Appended, 2)
	assert.Empty(t, changes.RemovedByMerge)

	conv := changes.Added[0]
	assert.Same(t, conv, changes.Appended[0].Conversation)
	assert.Same(t, conv, changes.Appended[1].Conversation)
	assert.Equal(t, 3, conv.Size())
	assert.Equal(t, []mailbox.MessageID{"A", "B", "C"}, conv.MessageIDs())
	assert.Equal(t, 1, set.Size())
	assert.Equal(t, 3, set.EmailCount())
}

func TestMergeViaBridge(t *testing.T) {
	set := NewSet(testFolder)

	changes := set.AddAll([]mailbox.Email{newTestEmail(1, "A", 10)})
	require.Len(t, changes.Added, 1)
	first := changes.Added[0]

	changes = set.AddAll([]mailbox.Email{newTestEmail(4, "D", 11)})
	require.Len(t, changes.Added, 1)
	second := changes.Added[0]
	assert.Equal(t, 2, set.Size())

	changes = set.AddAll([]mailbox.Email{newTestEmail(2, "B", 12, "A", "D")})
	assert.Empty(t, changes.Added)
	require.Len(t, changes.RemovedByMerge, 1)
	require.Len(t, changes.Appended, 1)

	// both originals have one email, the tie breaks on the oldest EmailID
	assert.Same(t, first, changes.Appended[0].Conversation)
	assert.Same(t, second, changes.RemovedByMerge[0])
	assert.Equal(t, 3, first.Size())
	assert.Equal(t, 1, set.Size())
	assert.Equal(t, []mailbox.MessageID{"A", "B", "D"}, first.MessageIDs())

	// the emails merged in plus the bridge itself
	require.Len(t, changes.Appended[0].Emails, 2)
}

func TestMergeSurvivorIsLargest(t *testing.T) {
	set := NewSet(testFolder)
	set.AddAll([]mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(2, "B", 11, "A"),
	})
	big := set.GetByEmailID(mailbox.NewEmailIDFromUint(1))

	set.AddAll([]mailbox.Email{newTestEmail(3, "C", 12)})
	require.Equal(t, 2, set.Size())

	changes := set.AddAll([]mailbox.Email{newTestEmail(4, "D", 13, "B", "C")})
	require.Len(t, changes.RemovedByMerge, 1)
	assert.Same(t, big, changes.Appended[0].Conversation)
	assert.Equal(t, 4, big.Size())
	assert.Equal(t, 1, set.Size())
}

func TestMergeInsideOneBatchStaysInvisible(t *testing.T) {
	set := NewSet(testFolder)
	changes := set.AddAll([]mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(4, "D", 11),
		newTestEmail(2, "B", 12, "A", "D"),
	})

	// one of the two new conversations is absorbed before the batch ends:
	// it is neither added nor removed by merge
	require.Len(t, changes.Added, 1)
	assert.Empty(t, changes.RemovedByMerge)
	assert.Equal(t, 1, set.Size())
	assert.Equal(t, 3, changes.Added[0].Size())
}

func TestAddAllIsIdempotent(t *testing.T) {
	batch := []mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(2, "B", 11, "A"),
		newTestEmail(3, "C", 12, "B", "A"),
	}
	set := NewSet(testFolder)
	set.AddAll(batch)
	size := set.Size()
	count := set.EmailCount()

	changes := set.AddAll(batch)
	assert.True(t, changes.IsZero())
	assert.Equal(t, size, set.Size())
	assert.Equal(t, count, set.EmailCount())
}

func TestRemoveTrimsWithoutSplit(t *testing.T) {
	set := NewSet(testFolder)
	set.AddAll([]mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(2, "B", 11, "A"),
		newTestEmail(3, "C", 12, "B", "A"),
	})

	result := set.Remove([]mailbox.EmailID{mailbox.NewEmailIDFromUint(2)})
	require.Len(t, result.Trimmed, 1)
	assert.Empty(t, result.Removed)

	conv := result.Trimmed[0].Conversation
	assert.Equal(t, 2, conv.Size())
	assert.True(t, conv.HasEmail(mailbox.NewEmailIDFromUint(1)))
	assert.True(t, conv.HasEmail(mailbox.NewEmailIDFromUint(3)))
	assert.Equal(t, []mailbox.MessageID{"A", "C"}, conv.MessageIDs())
	assert.False(t, set.HasMessageID("B"))
	assert.Equal(t, 1, set.Size())
}

func TestRemoveLastEmailRemovesConversation(t *testing.T) {
	set := NewSet(testFolder)
	changes := set.AddAll([]mailbox.Email{newTestEmail(1, "A", 10)})
	conv := changes.Added[0]

	result := set.Remove([]mailbox.EmailID{mailbox.NewEmailIDFromUint(1)})
	require.Len(t, result.Removed, 1)
	assert.Same(t, conv, result.Removed[0])
	assert.Empty(t, result.Trimmed)
	assert.Equal(t, 0, set.Size())
	assert.Equal(t, 0, set.EmailCount())
	assert.False(t, set.HasMessageID("A"))
}

func TestRemoveUnknownEmailIsNoop(t *testing.T) {
	set := NewSet(testFolder)
	set.AddAll([]mailbox.Email{newTestEmail(1, "A", 10)})
	result := set.Remove([]mailbox.EmailID{mailbox.NewEmailIDFromUint(99)})
	assert.Empty(t, result.Trimmed)
	assert.Empty(t, result.Removed)
}

func TestIndicesStayConsistent(t *testing.T) {
	set := NewSet(testFolder)
	set.AddAll([]mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(4, "D", 11),
		newTestEmail(2, "B", 12, "A", "D"),
		newTestEmail(5, "E", 13),
	})
	set.Remove([]mailbox.EmailID{mailbox.NewEmailIDFromUint(2)})

	// every email id maps to a conversation that contains it, and every
	// closure identifier maps back to its own conversation
	for _, conv := range set.List() {
		for _, id := range conv.MessageIDs() {
			assert.Same(t, conv, set.byMessageID[id])
		}
		for _, email := range conv.Emails(OrderingOldestFirst, LocationAnywhere, nil) {
			assert.Same(t, conv, set.byEmailID[email.ID])
		}
	}
}

func TestListIsNewestFirst(t *testing.T) {
	set := NewSet(testFolder)
	set.AddAll([]mailbox.Email{
		newTestEmail(1, "A", 10),
		newTestEmail(2, "B", 30),
		newTestEmail(3, "C", 20),
	})
	list := set.List()
	require.Len(t, list, 3)
	assert.True(t, list[0].NewestDate().After(list[1].NewestDate()))
	assert.True(t, list[1].NewestDate().After(list[2].NewestDate()))
}

func TestSetFlags(t *testing.T) {
	set := NewSet(testFolder)
	set.AddAll([]mailbox.Email{newTestEmail(1, "A", 10)})
	id := mailbox.NewEmailIDFromUint(1)

	conv, email, changed := set.SetFlags(id, mailbox.FlagFlagged)
	require.True(t, changed)
	assert.Equal(t, mailbox.FlagFlagged, email.Flags)
	assert.False(t, conv.IsUnread())
	assert.True(t, conv.IsFlagged())

	_, _, changed = set.SetFlags(id, mailbox.FlagFlagged)
	assert.False(t, changed)

	_, _, changed = set.SetFlags(mailbox.NewEmailIDFromUint(9), mailbox.FlagFlagged)
	assert.False(t, changed)
}
