package remote

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
	"github.com/creativeprojects/convmon/storage/local"
	"github.com/emersion/go-imap"
	uidplus "github.com/emersion/go-imap-uidplus"
	"github.com/emersion/go-imap/client"
)

// DefaultPollInterval is how often a watched folder polls the server for
// changes.
const DefaultPollInterval = 60 * time.Second

type Config struct {
	ServerURL           string
	Username            string
	Password            string
	CacheDir            string
	DebugLogger         lib.Logger
	NoTLS               bool
	SkipTLSVerification bool
	// Store overrides the default bbolt mirror in CacheDir.
	Store storage.LocalStore
	// PollInterval overrides DefaultPollInterval.
	PollInterval time.Duration
	// SyncBodies downloads message bodies into the local store.
	SyncBodies bool
	// BodyRateLimit caps the body download speed, in bytes per second.
	BodyRateLimit float64
}

// Account is an IMAP backed storage.Account: a live connection to the server
// plus a local mirror all reads go through.
type Account struct {
	mu            sync.Mutex
	client        *client.Client
	uidplusClient *uidplus.Client
	log           lib.Logger
	store         storage.LocalStore
	delimiter     string
	specials      map[storage.SpecialUse]mailbox.Path
	folders       map[string]*Folder
	listeners     map[int]storage.AccountListener
	nextID        int
	config        Config
	tag           string
	selected      string
}

// withSelected runs one or more client commands with the given mailbox
// selected. The connection is shared between folders, so every command batch
// goes through here.
func (a *Account) withSelected(name string, fn func(c *client.Client) error) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.selected != name {
		_, err := a.client.Select(name, false)
		if err != nil {
			return fmt.Errorf("cannot select mailbox %q: %w", name, err)
		}
		a.selected = name
	}
	return fn(a.client)
}

// selectStatus re-selects the mailbox to refresh its status.
func (a *Account) selectStatus(name string) (*imap.MailboxStatus, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	status, err := a.client.Select(name, false)
	if err != nil {
		return nil, fmt.Errorf("cannot select mailbox %q: %w", name, err)
	}
	a.selected = name
	return status, nil
}

func NewAccount(cfg Config) (*Account, error) {
	log := cfg.DebugLogger
	if log == nil {
		log = &lib.NoLog{}
	}
	if cfg.ServerURL == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("missing information from Config object")
	}

	var imapClient *client.Client
	var err error
	log.Printf("Connecting to server %s...", cfg.ServerURL)
	if cfg.NoTLS {
		imapClient, err = client.Dial(cfg.ServerURL)
	} else {
		tlsConfig := &tls.Config{}
		if cfg.SkipTLSVerification {
			tlsConfig.InsecureSkipVerify = true
		}
		imapClient, err = client.DialTLS(cfg.ServerURL, tlsConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot connect to server %s: %w", cfg.ServerURL, err)
	}
	log.Print("Connected")

	if err := imapClient.Login(cfg.Username, cfg.Password); err != nil {
		return nil, fmt.Errorf("authentication failure: %w", err)
	}
	log.Printf("Logged in as %s", cfg.Username)

	if caps, err := imapClient.Capability(); err == nil {
		log.Printf("capabilities: %+v", caps)
	}

	// try to enable UIDPLUS extension
	uidExt := uidplus.NewClient(imapClient)
	supported, err := uidExt.SupportUidPlus()
	if err != nil || !supported {
		log.Print("IMAP server does NOT support UIDPLUS extension")
		uidExt = nil
	}

	store := cfg.Store
	tag := lib.AccountTag(cfg.ServerURL, cfg.Username)
	if store == nil {
		cacheDir := cfg.CacheDir
		if cacheDir == "" {
			wd, _ := os.Getwd()
			cacheDir = filepath.Join(wd, ".cache")
		}
		store, err = local.NewBoltStoreWithLogger(filepath.Join(cacheDir, tag+".db"), log)
		if err != nil {
			return nil, fmt.Errorf("cannot open local store: %w", err)
		}
	}

	account := &Account{
		client:        imapClient,
		uidplusClient: uidExt,
		log:           log,
		store:         store,
		specials:      make(map[storage.SpecialUse]mailbox.Path),
		folders:       make(map[string]*Folder),
		listeners:     make(map[int]storage.AccountListener),
		config:        cfg,
		tag:           tag,
	}
	err = account.loadFolders()
	if err != nil {
		_ = imapClient.Logout()
		return nil, err
	}
	return account, nil
}

func (a *Account) DebugLogger(logger lib.Logger) {
	a.log = logger
}

func (a *Account) Close() error {
	a.mu.Lock()
	folders := make([]*Folder, 0, len(a.folders))
	for _, folder := range a.folders {
		folders = append(folders, folder)
	}
	a.mu.Unlock()
	for _, folder := range folders {
		_ = folder.Close(context.Background())
	}

	a.log.Print("Closing connection")
	err := a.client.Logout()
	storeErr := a.store.Close()
	if err != nil {
		return err
	}
	return storeErr
}

func (a *Account) Delimiter() string {
	return a.delimiter
}

// loadFolders lists the server mailboxes, registers them and maps the
// special uses advertised with the SPECIAL-USE attributes.
func (a *Account) loadFolders() error {
	mailboxes := make(chan *imap.MailboxInfo, 10)
	done := make(chan error, 1)
	go func() {
		done <- a.client.List("", "*", mailboxes)
	}()

	a.log.Print("Listing mailboxes:")
	for m := range mailboxes {
		a.log.Printf("* %q: %+v (delimiter = %q)", m.Name, m.Attributes, m.Delimiter)
		if a.delimiter == "" {
			a.delimiter = m.Delimiter
		}
		path := mailbox.NewPath(m.Name, m.Delimiter)
		a.folders[m.Name] = newFolder(a, path)
		a.mapSpecialUse(path, m.Attributes)
	}
	if err := <-done; err != nil {
		return fmt.Errorf("cannot list mailboxes: %w", err)
	}
	return nil
}

func (a *Account) mapSpecialUse(path mailbox.Path, attributes []string) {
	if strings.EqualFold(path.Name, imap.InboxName) {
		a.specials[storage.SpecialInbox] = path
	}
	for _, attribute := range attributes {
		switch attribute {
		case imap.JunkAttr:
			a.specials[storage.SpecialSpam] = path
		case imap.TrashAttr:
			a.specials[storage.SpecialTrash] = path
		case imap.DraftsAttr:
			a.specials[storage.SpecialDrafts] = path
		case imap.SentAttr:
			a.specials[storage.SpecialSent] = path
		case imap.ArchiveAttr:
			a.specials[storage.SpecialArchive] = path
		}
	}
}

func (a *Account) Folder(path mailbox.Path) (storage.Folder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	name := path.Name
	if a.delimiter != "" {
		name = path.ChangeDelimiter(a.delimiter).Name
	}
	folder, ok := a.folders[name]
	if !ok {
		return nil, lib.ErrFolderNotFound
	}
	return folder, nil
}

// Folders returns every folder of the account.
func (a *Account) Folders() []*Folder {
	a.mu.Lock()
	defer a.mu.Unlock()
	folders := make([]*Folder, 0, len(a.folders))
	for _, folder := range a.folders {
		folders = append(folders, folder)
	}
	sort.Slice(folders, func(i, j int) bool {
		return folders[i].path.Name < folders[j].path.Name
	})
	return folders
}

func (a *Account) SpecialFolder(use storage.SpecialUse) (mailbox.Path, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	path, ok := a.specials[use]
	return path, ok
}

func (a *Account) LocalFetch(ctx context.Context, folder mailbox.Path, id mailbox.EmailID, fields storage.Field) (*mailbox.Email, error) {
	return a.store.GetEmail(folder, id)
}

func (a *Account) SearchMessageID(ctx context.Context, id mailbox.MessageID, fields storage.Field, exclude []mailbox.Path) ([]mailbox.Email, error) {
	return a.store.SearchMessageID(id, exclude)
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

func (a *Account) pollInterval() time.Duration {
	if a.config.PollInterval > 0 {
		return a.config.PollInterval
	}
	return DefaultPollInterval
}

// verify interface
var _ storage.Account = &Account{}
