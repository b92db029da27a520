package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAncestorsAlwaysIncludeOwnMessageID(t *testing.T) {
	email := &Email{
		ID:         NewEmailIDFromUint(1),
		MessageID:  "own@host",
		References: []MessageID{"parent@host", "own@host", "root@host"},
	}
	ancestors := email.Ancestors()
	assert.Equal(t, []MessageID{"own@host", "parent@host", "root@host"}, ancestors)
}

func TestAncestorsWithoutMessageID(t *testing.T) {
	email := &Email{
		ID:         NewEmailIDFromUint(2),
		References: []MessageID{"parent@host"},
	}
	assert.Equal(t, []MessageID{"parent@host"}, email.Ancestors())
}

func TestAncestorsSynthesized(t *testing.T) {
	email := &Email{
		ID: NewEmailIDFromUint(3),
	}
	ancestors := email.Ancestors()
	assert.Len(t, ancestors, 1)
	assert.Equal(t, SyntheticMessageID(email.ID), ancestors[0])

	other := &Email{ID: NewEmailIDFromUint(4)}
	assert.NotEqual(t, ancestors[0], other.Ancestors()[0])
}
