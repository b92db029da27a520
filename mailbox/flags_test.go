package mailbox

import (
	"testing"

	"github.com/emersion/go-imap"
	"github.com/stretchr/testify/assert"
)

func TestFlagsSetOperations(t *testing.T) {
	var flags Flags
	assert.False(t, flags.Contains(FlagUnread))

	flags = flags.With(FlagUnread).With(FlagFlagged)
	assert.True(t, flags.Contains(FlagUnread))
	assert.True(t, flags.Contains(FlagFlagged))
	assert.False(t, flags.Contains(FlagDraft))

	flags = flags.Without(FlagUnread)
	assert.False(t, flags.Contains(FlagUnread))
	assert.True(t, flags.Equal(FlagFlagged))
}

func TestFlagsFromIMAP(t *testing.T) {
	fixtures := []struct {
		source   []string
		expected Flags
	}{
		{nil, FlagUnread},
		{[]string{imap.SeenFlag}, 0},
		{[]string{imap.SeenFlag, imap.FlaggedFlag}, FlagFlagged},
		{[]string{imap.DraftFlag}, FlagUnread | FlagDraft},
		{[]string{imap.SeenFlag, imap.AnsweredFlag, imap.DeletedFlag}, FlagAnswered | FlagDeleted},
		{[]string{imap.RecentFlag}, FlagUnread},
	}

	for _, fixture := range fixtures {
		result := FlagsFromIMAP(fixture.source)
		assert.Equal(t, fixture.expected, result, "source=%v", fixture.source)
	}
}

func TestFlagsRoundTrip(t *testing.T) {
	flags := FlagFlagged | FlagAnswered
	assert.Equal(t, flags, FlagsFromIMAP(FlagsToIMAP(flags)))
}
