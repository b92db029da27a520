package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeMessageID(t *testing.T) {
	fixtures := []struct {
		raw      string
		expected MessageID
	}{
		{"", ""},
		{"   ", ""},
		{"<id@host>", "id@host"},
		{"id@host", "id@host"},
		{" <id@host> ", "id@host"},
		{"<Id@Host>", "Id@Host"},
		{"< spaced@host >", "spaced@host"},
	}

	for _, fixture := range fixtures {
		result := NormalizeMessageID(fixture.raw)
		assert.Equal(t, fixture.expected, result, "raw=%q", fixture.raw)
	}
}

func TestParseMessageIDList(t *testing.T) {
	fixtures := []struct {
		raw      string
		expected []MessageID
	}{
		{"", nil},
		{"<one@host>", []MessageID{"one@host"}},
		{"<one@host> <two@host>", []MessageID{"one@host", "two@host"}},
		{"<one@host>\r\n\t<two@host>", []MessageID{"one@host", "two@host"}},
		{"bare@host", []MessageID{"bare@host"}},
		{"bare@host other@host", []MessageID{"bare@host", "other@host"}},
		{"<>", nil},
	}

	for _, fixture := range fixtures {
		result := ParseMessageIDList(fixture.raw)
		assert.Equal(t, fixture.expected, result, "raw=%q", fixture.raw)
	}
}
