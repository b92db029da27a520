package mem

import (
	"context"
	"sync"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
)

const Delimiter = "."

// Account is an in-memory implementation of storage.Account. It doubles as
// the test double for the monitor: the mutation hooks on its folders emit
// the same notifications a real backend would.
type Account struct {
	mu        sync.Mutex
	log       lib.Logger
	folders   map[string]*Folder
	specials  map[storage.SpecialUse]mailbox.Path
	listeners map[int]storage.AccountListener
	nextID    int
	remote    bool
}

func New() *Account {
	return NewWithLogger(nil)
}

func NewWithLogger(logger lib.Logger) *Account {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	return &Account{
		log:       logger,
		folders:   make(map[string]*Folder),
		specials:  make(map[storage.SpecialUse]mailbox.Path),
		listeners: make(map[int]storage.AccountListener),
	}
}

func (a *Account) DebugLogger(logger lib.Logger) {
	a.log = logger
}

func (a *Account) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.folders = make(map[string]*Folder)
	return nil
}

// CreateFolder registers a folder on the account, or returns the existing
// one.
func (a *Account) CreateFolder(path mailbox.Path) *Folder {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	if folder, ok := a.folders[name]; ok {
		return folder
	}
	folder := newFolder(a, mailbox.NewPath(name, Delimiter))
	a.folders[name] = folder
	return folder
}

// SetSpecialFolder maps a well-known role to a folder path.
func (a *Account) SetSpecialFolder(use storage.SpecialUse, path mailbox.Path) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.specials[use] = path
}

// SetRemoteAvailable simulates the remote server coming and going. Folders
// currently open pick up the new state.
func (a *Account) SetRemoteAvailable(available bool) {
	a.mu.Lock()
	a.remote = available
	folders := make([]*Folder, 0, len(a.folders))
	for _, folder := range a.folders {
		folders = append(folders, folder)
	}
	a.mu.Unlock()

	for _, folder := range folders {
		folder.remoteChanged(available)
	}
}

func (a *Account) remoteAvailable() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remote
}

func (a *Account) Folder(path mailbox.Path) (storage.Folder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	folder, ok := a.folders[name]
	if !ok {
		return nil, lib.ErrFolderNotFound
	}
	return folder, nil
}

func (a *Account) SpecialFolder(use storage.SpecialUse) (mailbox.Path, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path, ok := a.specials[use]
	return path, ok
}

func (a *Account) LocalFetch(ctx context.Context, folder mailbox.Path, id mailbox.EmailID, fields storage.Field) (*mailbox.Email, error) {
	a.mu.Lock()
	name := folder.ChangeDelimiter(Delimiter).Name
	source, ok := a.folders[name]
	a.mu.Unlock()
	if !ok {
		return nil, lib.ErrFolderNotFound
	}
	return source.localFetch(id)
}

func (a *Account) SearchMessageID(ctx context.Context, id mailbox.MessageID, fields storage.Field, exclude []mailbox.Path) ([]mailbox.Email, error) {
	a.mu.Lock()
	folders := make([]*Folder, 0, len(a.folders))
	for _, folder := range a.folders {
		folders = append(folders, folder)
	}
	a.mu.Unlock()

	found := make([]mailbox.Email, 0)
	for _, folder := range folders {
		if mailbox.ContainsPath(exclude, folder.Path()) {
			continue
		}
		found = append(found, folder.searchMessageID(id)...)
	}
	return found, nil
}

func (a *Account) Subscribe(listener storage.AccountListener) func() {
	a.mu.Lock()
	defer a.mu.Unlock()
	id := a.nextID
	a.nextID++
	a.listeners[id] = listener
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		delete(a.listeners, id)
	}
}

func (a *Account) notifyFlagsChanged(folder mailbox.Path, flags map[mailbox.EmailID]mailbox.Flags) {
	for _, listener := range a.accountListeners() {
		listener.FlagsChanged(folder, flags)
	}
}

func (a *Account) notifyLocallyComplete(folder mailbox.Path, ids []mailbox.EmailID) {
	for _, listener := range a.accountListeners() {
		listener.LocallyComplete(folder, ids)
	}
}

func (a *Account) accountListeners() []storage.AccountListener {
	a.mu.Lock()
	defer a.mu.Unlock()
	listeners := make([]storage.AccountListener, 0, len(a.listeners))
	for _, listener := range a.listeners {
		listeners = append(listeners, listener)
	}
	return listeners
}

// verify interface
var _ storage.Account = &Account{}
