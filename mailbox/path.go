package mailbox

import (
	"strings"

	"github.com/creativeprojects/convmon/lib"
)

// Path is the hierarchical name of a folder, together with the delimiter the
// backend uses to separate levels.
type Path struct {
	// The server's path separator.
	Delimiter string
	// The folder name.
	Name string
}

func NewPath(name, delimiter string) Path {
	return Path{
		Delimiter: delimiter,
		Name:      name,
	}
}

func (p Path) IsZero() bool {
	return p.Name == ""
}

func (p Path) String() string {
	return p.Name
}

// ChangeDelimiter rewrites the path with another delimiter.
func (p Path) ChangeDelimiter(delimiter string) Path {
	return Path{
		Delimiter: delimiter,
		Name:      lib.VerifyDelimiter(p.Name, p.Delimiter, delimiter),
	}
}

// Equal compares two paths, normalizing the delimiter first.
func (p Path) Equal(other Path) bool {
	if p.Delimiter == other.Delimiter {
		return p.Name == other.Name
	}
	return p.Name == other.ChangeDelimiter(p.Delimiter).Name
}

// IsDescendantOf indicates whether the path sits anywhere under parent.
func (p Path) IsDescendantOf(parent Path) bool {
	if parent.IsZero() || p.IsZero() {
		return false
	}
	name := p.Name
	if p.Delimiter != parent.Delimiter {
		name = p.ChangeDelimiter(parent.Delimiter).Name
	}
	return strings.HasPrefix(name, parent.Name+parent.Delimiter)
}

// ContainsPath indicates whether the list holds a path equal to target, or an
// ancestor of it.
func ContainsPath(list []Path, target Path) bool {
	for _, path := range list {
		if target.Equal(path) || target.IsDescendantOf(path) {
			return true
		}
	}
	return false
}
