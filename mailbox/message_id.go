package mailbox

import "strings"

// MessageID is a normalized RFC-822 Message-ID: angle brackets stripped,
// surrounding whitespace removed, case preserved. Equality is byte-exact.
type MessageID string

// NormalizeMessageID accepts the forms "<id@host>" and "id@host". It returns
// an empty MessageID when the input holds no identifier.
func NormalizeMessageID(raw string) MessageID {
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "<")
	raw = strings.TrimSuffix(raw, ">")
	raw = strings.TrimSpace(raw)
	return MessageID(raw)
}

// ParseMessageIDList parses a References or In-Reply-To header value into the
// list of normalized identifiers it contains, in order of appearance.
func ParseMessageIDList(raw string) []MessageID {
	var list []MessageID
	for {
		start := strings.IndexByte(raw, '<')
		if start < 0 {
			break
		}
		end := strings.IndexByte(raw[start:], '>')
		if end < 0 {
			break
		}
		id := NormalizeMessageID(raw[start : start+end+1])
		if id != "" {
			list = append(list, id)
		}
		raw = raw[start+end+1:]
	}
	if list == nil && strings.TrimSpace(raw) != "" {
		// a bare id@host with no angle brackets
		for _, field := range strings.Fields(raw) {
			id := NormalizeMessageID(field)
			if id != "" {
				list = append(list, id)
			}
		}
	}
	return list
}

func (m MessageID) IsZero() bool {
	return m == ""
}

func (m MessageID) String() string {
	return string(m)
}
