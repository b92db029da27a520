package storage

import (
	"context"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
)

// OpenState of a folder.
type OpenState int

const (
	StateClosed OpenState = iota
	StateOpening
	StateLocal
	StateRemote
	StateBoth
)

func (s OpenState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateLocal:
		return "local"
	case StateRemote:
		return "remote"
	case StateBoth:
		return "both"
	default:
		return "closed"
	}
}

// IsRemote indicates the remote half of the folder is available.
func (s OpenState) IsRemote() bool {
	return s == StateRemote || s == StateBoth
}

// OpenFlag controls how a folder is opened.
type OpenFlag uint8

const (
	OpenNone OpenFlag = 0
	// OpenLocalOnly never connects to the remote server.
	OpenLocalOnly OpenFlag = 1 << iota
	// OpenReestablishConnections asks the folder to report connection loss so
	// the caller can schedule a reconnection.
	OpenReestablishConnections
)

func (f OpenFlag) Contains(flag OpenFlag) bool {
	return f&flag != 0
}

// Field selects which email metadata a listing loads.
type Field uint8

const (
	FieldReferences Field = 1 << iota
	FieldFlags
	FieldDate
	FieldSize
	FieldEnvelope

	// FieldsRequired is the minimum set the monitor always requests.
	FieldsRequired = FieldReferences | FieldFlags | FieldDate
)

func (f Field) Contains(field Field) bool {
	return f&field != 0
}

// ListFlag alters the behaviour of ListByID.
type ListFlag uint8

const (
	ListNone ListFlag = 0
	// ListLocalOnly restricts the listing to the local mirror.
	ListLocalOnly ListFlag = 1 << iota
	// ListOldestToNewest reverses the natural newest-first order.
	ListOldestToNewest
	// ListIncludingID makes the start identifier part of the result.
	ListIncludingID
)

func (f ListFlag) Contains(flag ListFlag) bool {
	return f&flag != 0
}

// CountUnlimited lists every email from the starting point.
const CountUnlimited = 0

// Properties of a folder.
type Properties struct {
	// The total number of emails in the folder.
	EmailTotal int
}

// FolderListener receives change notifications from a folder. Callbacks must
// be quick and must not call back into the folder.
type FolderListener interface {
	// EmailsAppended: new emails arrived at the top of the folder.
	EmailsAppended(ids []mailbox.EmailID)
	// EmailsInserted: emails appeared below the newest one (e.g. a partial
	// sync back-filling older mail).
	EmailsInserted(ids []mailbox.EmailID)
	// EmailsRemoved: emails disappeared from the folder.
	EmailsRemoved(ids []mailbox.EmailID)
	// OpenStateChanged: the folder moved to another open state; count is the
	// total number of emails known at that point.
	OpenStateChanged(state OpenState, count int)
}

// AccountListener receives account-wide notifications.
type AccountListener interface {
	// FlagsChanged: flags changed on emails of the given folder.
	FlagsChanged(folder mailbox.Path, flags map[mailbox.EmailID]mailbox.Flags)
	// LocallyComplete: the bodies of the given emails finished syncing into
	// the local store.
	LocallyComplete(folder mailbox.Path, ids []mailbox.EmailID)
}

// Folder is the monitor's view of a single folder: a local mirror plus,
// when opened without OpenLocalOnly, the remote server behind it.
type Folder interface {
	Path() mailbox.Path
	Properties() Properties
	OpenState() OpenState
	Open(ctx context.Context, flags OpenFlag) error
	Close(ctx context.Context) error
	// ListByID lists count emails starting at start (nil for the newest),
	// newest first unless ListOldestToNewest is set. The channel is closed
	// when the listing ends.
	ListByID(ctx context.Context, start *mailbox.EmailID, count int, fields Field, flags ListFlag, emails chan<- *mailbox.Email) error
	// ListBySparseID fetches a specific set of emails.
	ListBySparseID(ctx context.Context, ids []mailbox.EmailID, fields Field, flags ListFlag, emails chan<- *mailbox.Email) error
	// FindBoundaries returns the chronologically lowest and highest of the
	// given identifiers still present in the folder.
	FindBoundaries(ctx context.Context, ids []mailbox.EmailID) (earliest, latest mailbox.EmailID, err error)
	// FetchLocalNewest returns the newest email of the local mirror and its
	// offset from the top of the folder.
	FetchLocalNewest(ctx context.Context) (mailbox.EmailID, int, error)
	// Subscribe registers a listener; the returned function removes it.
	Subscribe(listener FolderListener) (cancel func())
}

// SpecialUse designates well-known folders of an account.
type SpecialUse int

const (
	SpecialInbox SpecialUse = iota
	SpecialSpam
	SpecialTrash
	SpecialDrafts
	SpecialOutbox
	SpecialSent
	SpecialArchive
	SpecialSearch
)

// Account gives cross-folder access to the local store.
type Account interface {
	DebugLogger(logger lib.Logger)
	// Folder returns a handle on the given folder.
	Folder(path mailbox.Path) (Folder, error)
	// SpecialFolder returns the path of a well-known folder when the account
	// has one.
	SpecialFolder(use SpecialUse) (mailbox.Path, bool)
	// LocalFetch reads an email from the local store, any folder.
	LocalFetch(ctx context.Context, folder mailbox.Path, id mailbox.EmailID, fields Field) (*mailbox.Email, error)
	// SearchMessageID returns every locally stored email carrying the given
	// Message-ID, excluding the given folders and their descendants.
	SearchMessageID(ctx context.Context, id mailbox.MessageID, fields Field, exclude []mailbox.Path) ([]mailbox.Email, error)
	// Subscribe registers a listener; the returned function removes it.
	Subscribe(listener AccountListener) (cancel func())
	Close() error
}
