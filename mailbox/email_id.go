package mailbox

import "strconv"

var (
	EmptyEmailID EmailID
)

// EmailID identifies an email inside a folder. Folders backed by IMAP use the
// numeric form (the message UID), maildir folders use the string form (the
// maildir key). IDs of the same form follow the folder's receive order.
type EmailID struct {
	uid uint32
	key string
}

func NewEmailIDFromUint(uid uint32) EmailID {
	return EmailID{
		uid: uid,
	}
}

func NewEmailIDFromString(key string) EmailID {
	return EmailID{
		key: key,
	}
}

func (i EmailID) IsZero() bool {
	return i.uid == 0 && i.key == ""
}

func (i EmailID) IsUint() bool {
	return i.uid > 0
}

func (i EmailID) IsString() bool {
	return i.key != ""
}

func (i EmailID) AsUint() uint32 {
	return i.uid
}

func (i EmailID) AsString() string {
	return i.key
}

// Compare returns -1, 0 or 1. Numeric IDs order numerically, string IDs
// lexically, and a numeric ID always sorts before a string one.
func (i EmailID) Compare(other EmailID) int {
	if i.IsUint() != other.IsUint() {
		if i.IsUint() {
			return -1
		}
		return 1
	}
	switch {
	case i.uid < other.uid:
		return -1
	case i.uid > other.uid:
		return 1
	}
	switch {
	case i.key < other.key:
		return -1
	case i.key > other.key:
		return 1
	}
	return 0
}

func (i EmailID) Less(other EmailID) bool {
	return i.Compare(other) < 0
}

func (i EmailID) String() string {
	if i.IsUint() {
		return strconv.FormatUint(uint64(i.uid), 10)
	}
	return i.key
}

// GobEncode makes the unexported fields survive gob serialization (the local
// store keeps EmailID inside its email records).
func (i EmailID) GobEncode() ([]byte, error) {
	if i.IsUint() {
		return []byte("u" + strconv.FormatUint(uint64(i.uid), 10)), nil
	}
	return []byte("s" + i.key), nil
}

func (i *EmailID) GobDecode(data []byte) error {
	if len(data) == 0 {
		*i = EmailID{}
		return nil
	}
	switch data[0] {
	case 'u':
		uid, err := strconv.ParseUint(string(data[1:]), 10, 32)
		if err != nil {
			return err
		}
		*i = EmailID{uid: uint32(uid)}
	default:
		*i = EmailID{key: string(data[1:])}
	}
	return nil
}
