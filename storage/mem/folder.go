package mem

import (
	"context"
	"sort"
	"sync"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
)

type memEmail struct {
	email mailbox.Email
	// local indicates the email is present in the local mirror
	local bool
}

// Folder is the in-memory implementation of storage.Folder.
type Folder struct {
	mu        sync.Mutex
	account   *Account
	path      mailbox.Path
	emails    []memEmail // ordered oldest to newest
	state     storage.OpenState
	openFlags storage.OpenFlag
	listeners map[int]storage.FolderListener
	nextID    int
}

func newFolder(account *Account, path mailbox.Path) *Folder {
	return &Folder{
		account:   account,
		path:      path,
		emails:    make([]memEmail, 0),
		state:     storage.StateClosed,
		listeners: make(map[int]storage.FolderListener),
	}
}

func (f *Folder) Path() mailbox.Path {
	return f.path
}

func (f *Folder) Properties() storage.Properties {
	f.mu.Lock()
	defer f.mu.Unlock()
	return storage.Properties{
		EmailTotal: len(f.emails),
	}
}

func (f *Folder) OpenState() storage.OpenState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *Folder) Open(ctx context.Context, flags storage.OpenFlag) error {
	f.mu.Lock()
	if f.state != storage.StateClosed {
		f.mu.Unlock()
		return lib.ErrAlreadyOpen
	}
	f.openFlags = flags
	f.state = storage.StateLocal
	if !flags.Contains(storage.OpenLocalOnly) && f.account.remoteAvailable() {
		f.state = storage.StateBoth
	}
	state := f.state
	count := len(f.emails)
	f.mu.Unlock()

	f.notifyOpenStateChanged(state, count)
	return nil
}

func (f *Folder) Close(ctx context.Context) error {
	f.mu.Lock()
	f.state = storage.StateClosed
	f.mu.Unlock()
	return nil
}

func (f *Folder) ListByID(ctx context.Context, start *mailbox.EmailID, count int, fields storage.Field, flags storage.ListFlag, emails chan<- *mailbox.Email) error {
	defer close(emails)

	ordered := f.snapshot(flags.Contains(storage.ListLocalOnly))
	if !flags.Contains(storage.ListOldestToNewest) {
		reverse(ordered)
	}

	started := start == nil
	sent := 0
	for index := range ordered {
		email := ordered[index]
		if !started {
			if email.ID.Compare(*start) != 0 {
				continue
			}
			started = true
			if !flags.Contains(storage.ListIncludingID) {
				continue
			}
		}
		if count != storage.CountUnlimited && sent >= count {
			break
		}
		select {
		case emails <- &email:
			sent++
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Folder) ListBySparseID(ctx context.Context, ids []mailbox.EmailID, fields storage.Field, flags storage.ListFlag, emails chan<- *mailbox.Email) error {
	defer close(emails)

	ordered := f.snapshot(flags.Contains(storage.ListLocalOnly))
	byID := make(map[mailbox.EmailID]mailbox.Email, len(ordered))
	for _, email := range ordered {
		byID[email.ID] = email
	}
	for _, id := range ids {
		email, ok := byID[id]
		if !ok {
			continue
		}
		select {
		case emails <- &email:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Folder) FindBoundaries(ctx context.Context, ids []mailbox.EmailID) (mailbox.EmailID, mailbox.EmailID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	present := make(map[mailbox.EmailID]struct{}, len(f.emails))
	for _, item := range f.emails {
		present[item.email.ID] = struct{}{}
	}
	var earliest, latest mailbox.EmailID
	for _, id := range ids {
		if _, ok := present[id]; !ok {
			continue
		}
		if earliest.IsZero() || id.Less(earliest) {
			earliest = id
		}
		if latest.IsZero() || latest.Less(id) {
			latest = id
		}
	}
	return earliest, latest, nil
}

func (f *Folder) FetchLocalNewest(ctx context.Context) (mailbox.EmailID, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for offset, index := 0, len(f.emails)-1; index >= 0; index-- {
		if f.emails[index].local {
			return f.emails[index].email.ID, offset, nil
		}
		offset++
	}
	return mailbox.EmptyEmailID, 0, lib.ErrEmailNotFound
}

func (f *Folder) Subscribe(listener storage.FolderListener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.listeners[id] = listener
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

// Append adds emails at the top of the folder (test hook), marked as locally
// available, and notifies the listeners.
func (f *Folder) Append(emails ...mailbox.Email) {
	f.add(true, emails...)
	f.notify(func(listener storage.FolderListener) {
		listener.EmailsAppended(emailIDs(emails))
	})
}

// AppendRemote adds emails only known remotely (test hook).
func (f *Folder) AppendRemote(emails ...mailbox.Email) {
	f.add(false, emails...)
	f.notify(func(listener storage.FolderListener) {
		listener.EmailsAppended(emailIDs(emails))
	})
}

// Insert adds older emails below the newest one (test hook).
func (f *Folder) Insert(emails ...mailbox.Email) {
	f.add(true, emails...)
	f.notify(func(listener storage.FolderListener) {
		listener.EmailsInserted(emailIDs(emails))
	})
}

// Put adds emails without any notification (test hook for pre-seeding).
func (f *Folder) Put(emails ...mailbox.Email) {
	f.add(true, emails...)
}

// Remove drops emails from the folder (test hook).
func (f *Folder) Remove(ids ...mailbox.EmailID) {
	f.mu.Lock()
	kept := f.emails[:0]
	for _, item := range f.emails {
		found := false
		for _, id := range ids {
			if item.email.ID.Compare(id) == 0 {
				found = true
				break
			}
		}
		if !found {
			kept = append(kept, item)
		}
	}
	f.emails = kept
	f.mu.Unlock()

	f.notify(func(listener storage.FolderListener) {
		listener.EmailsRemoved(ids)
	})
}

// SetFlags updates the flags of an email and notifies the account listeners
// (test hook).
func (f *Folder) SetFlags(id mailbox.EmailID, flags mailbox.Flags) {
	f.mu.Lock()
	for index := range f.emails {
		if f.emails[index].email.ID.Compare(id) == 0 {
			f.emails[index].email.Flags = flags
			break
		}
	}
	f.mu.Unlock()

	f.account.notifyFlagsChanged(f.path, map[mailbox.EmailID]mailbox.Flags{id: flags})
}

// MarkLocal promotes remote-only emails into the local mirror and notifies
// the account listeners (test hook).
func (f *Folder) MarkLocal(ids ...mailbox.EmailID) {
	f.mu.Lock()
	for index := range f.emails {
		for _, id := range ids {
			if f.emails[index].email.ID.Compare(id) == 0 {
				f.emails[index].local = true
			}
		}
	}
	f.mu.Unlock()

	f.account.notifyLocallyComplete(f.path, ids)
}

func (f *Folder) add(local bool, emails ...mailbox.Email) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, email := range emails {
		f.emails = append(f.emails, memEmail{email: email, local: local})
	}
	sort.Slice(f.emails, func(i, j int) bool {
		return f.emails[i].email.ID.Less(f.emails[j].email.ID)
	})
}

func (f *Folder) remoteChanged(available bool) {
	f.mu.Lock()
	if f.state == storage.StateClosed || f.openFlags.Contains(storage.OpenLocalOnly) {
		f.mu.Unlock()
		return
	}
	if available {
		f.state = storage.StateBoth
	} else {
		f.state = storage.StateLocal
	}
	state := f.state
	count := len(f.emails)
	f.mu.Unlock()

	f.notifyOpenStateChanged(state, count)
}

// Disconnect simulates a connection loss closing the folder (test hook).
func (f *Folder) Disconnect() {
	f.mu.Lock()
	f.state = storage.StateClosed
	count := len(f.emails)
	f.mu.Unlock()

	f.notifyOpenStateChanged(storage.StateClosed, count)
}

func (f *Folder) localFetch(id mailbox.EmailID) (*mailbox.Email, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, item := range f.emails {
		if item.local && item.email.ID.Compare(id) == 0 {
			email := item.email
			return &email, nil
		}
	}
	return nil, lib.ErrEmailNotFound
}

func (f *Folder) searchMessageID(id mailbox.MessageID) []mailbox.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	found := make([]mailbox.Email, 0)
	for _, item := range f.emails {
		if !item.local {
			continue
		}
		email := item.email
		for _, ancestor := range (&email).Ancestors() {
			if ancestor == id {
				found = append(found, email)
				break
			}
		}
	}
	return found
}

func (f *Folder) snapshot(localOnly bool) []mailbox.Email {
	f.mu.Lock()
	defer f.mu.Unlock()
	ordered := make([]mailbox.Email, 0, len(f.emails))
	for _, item := range f.emails {
		if localOnly && !item.local {
			continue
		}
		ordered = append(ordered, item.email)
	}
	return ordered
}

func (f *Folder) notify(fn func(listener storage.FolderListener)) {
	f.mu.Lock()
	listeners := make([]storage.FolderListener, 0, len(f.listeners))
	for _, listener := range f.listeners {
		listeners = append(listeners, listener)
	}
	f.mu.Unlock()
	for _, listener := range listeners {
		fn(listener)
	}
}

func (f *Folder) notifyOpenStateChanged(state storage.OpenState, count int) {
	f.notify(func(listener storage.FolderListener) {
		listener.OpenStateChanged(state, count)
	})
}

func emailIDs(emails []mailbox.Email) []mailbox.EmailID {
	ids := make([]mailbox.EmailID, len(emails))
	for index, email := range emails {
		ids[index] = email.ID
	}
	return ids
}

func reverse(emails []mailbox.Email) {
	for i, j := 0, len(emails)-1; i < j; i, j = i+1, j-1 {
		emails[i], emails[j] = emails[j], emails[i]
	}
}

// verify interface
var _ storage.Folder = &Folder{}
