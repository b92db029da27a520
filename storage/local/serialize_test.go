package local

import (
	"testing"
	"time"

	"github.com/creativeprojects/convmon/mailbox"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSerializeEmail(t *testing.T) {
	email := mailbox.Email{
		ID:         mailbox.NewEmailIDFromUint(42),
		MessageID:  "id@host",
		References: []mailbox.MessageID{"parent@host"},
		Date:       time.Date(2022, 3, 1, 10, 30, 0, 0, time.UTC),
		Received:   time.Date(2022, 3, 1, 10, 31, 0, 0, time.UTC),
		Flags:      mailbox.FlagUnread | mailbox.FlagFlagged,
		Folder:     mailbox.NewPath("INBOX", "."),
	}
	data, err := SerializeObject(&email)
	require.NoError(t, err)

	result, err := DeserializeObject[mailbox.Email](data)
	require.NoError(t, err)
	assert.Equal(t, email, *result)
}

func TestSerializeInt(t *testing.T) {
	data, err := SerializeInt(11)
	require.NoError(t, err)

	value, err := DeserializeInt(data)
	require.NoError(t, err)
	assert.Equal(t, 11, value)
}
