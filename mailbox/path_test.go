package mailbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPathEqual(t *testing.T) {
	fixtures := []struct {
		left     Path
		right    Path
		expected bool
	}{
		{NewPath("INBOX", "."), NewPath("INBOX", "."), true},
		{NewPath("INBOX", "."), NewPath("INBOX", "/"), true},
		{NewPath("Work.2022", "."), NewPath("Work/2022", "/"), true},
		{NewPath("Work.2022", "."), NewPath("Work/2023", "/"), false},
		{NewPath("INBOX", "."), NewPath("Trash", "."), false},
	}

	for _, fixture := range fixtures {
		assert.Equal(t, fixture.expected, fixture.left.Equal(fixture.right),
			"%q == %q", fixture.left.Name, fixture.right.Name)
	}
}

func TestPathIsDescendantOf(t *testing.T) {
	fixtures := []struct {
		child    Path
		parent   Path
		expected bool
	}{
		{NewPath("Work.2022", "."), NewPath("Work", "."), true},
		{NewPath("Work/2022/Q1", "/"), NewPath("Work", "/"), true},
		{NewPath("Work.2022", "."), NewPath("Work", "/"), true},
		{NewPath("Work", "."), NewPath("Work", "."), false},
		{NewPath("Workshop", "."), NewPath("Work", "."), false},
		{NewPath("", "."), NewPath("Work", "."), false},
	}

	for _, fixture := range fixtures {
		assert.Equal(t, fixture.expected, fixture.child.IsDescendantOf(fixture.parent),
			"%q descendant of %q", fixture.child.Name, fixture.parent.Name)
	}
}

func TestContainsPath(t *testing.T) {
	blacklist := []Path{
		NewPath("Trash", "."),
		NewPath("Junk", "."),
	}
	assert.True(t, ContainsPath(blacklist, NewPath("Trash", ".")))
	assert.True(t, ContainsPath(blacklist, NewPath("Trash.2020", ".")))
	assert.True(t, ContainsPath(blacklist, NewPath("Junk/old", "/")))
	assert.False(t, ContainsPath(blacklist, NewPath("INBOX", ".")))
	assert.False(t, ContainsPath(nil, NewPath("INBOX", ".")))
}
