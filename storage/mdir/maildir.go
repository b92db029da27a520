package mdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
	"github.com/emersion/go-maildir"
)

const Delimiter = "."

const metadataFileName = ".emails.json"

// metaEmail is the JSON form of an email record kept next to the maildir.
type metaEmail struct {
	UID        uint32    `json:"uid,omitempty"`
	Key        string    `json:"key,omitempty"`
	MessageID  string    `json:"messageID,omitempty"`
	References []string  `json:"references,omitempty"`
	Subject    string    `json:"subject,omitempty"`
	Date       time.Time `json:"date"`
	Received   time.Time `json:"received"`
	Flags      uint8     `json:"flags"`
	// BodyKey is the maildir key of the stored body, when there is one.
	BodyKey string `json:"bodyKey,omitempty"`
}

// Maildir is the maildir implementation of storage.LocalStore: one maildir
// per folder for the bodies, with a JSON metadata file carrying the email
// records.
type Maildir struct {
	mu   sync.Mutex
	root string
	log  lib.Logger
}

func New(root string) (*Maildir, error) {
	return NewWithLogger(root, nil)
}

func NewWithLogger(root string, logger lib.Logger) (*Maildir, error) {
	if runtime.GOOS == "windows" {
		return nil, errors.New("maildir is not supported on Windows")
	}
	if logger == nil {
		logger = &lib.NoLog{}
	}
	err := os.MkdirAll(root, 0700)
	if err != nil {
		return nil, err
	}
	return &Maildir{
		root: root,
		log:  logger,
	}, nil
}

func (m *Maildir) Close() error {
	return nil
}

func (m *Maildir) Root() string {
	return m.root
}

// CreateFolder doesn't return an error if the folder already exists.
func (m *Maildir) CreateFolder(path mailbox.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	dirName := filepath.Join(m.root, name)
	if _, err := os.Stat(dirName); err == nil || errors.Is(err, fs.ErrExist) {
		// folder already exists
		return nil
	}
	mbox := maildir.Dir(dirName)
	err := mbox.Init()
	if err != nil {
		return err
	}
	return m.saveMetadata(name, map[string]metaEmail{})
}

func (m *Maildir) ListFolders() ([]mailbox.Path, error) {
	list := make([]mailbox.Path, 0)
	files, err := os.ReadDir(m.root)
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if !file.IsDir() {
			continue
		}
		list = append(list, mailbox.NewPath(file.Name(), Delimiter))
	}
	return list, nil
}

func (m *Maildir) DeleteFolder(path mailbox.Path) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	return os.RemoveAll(filepath.Join(m.root, name))
}

func (m *Maildir) PutEmail(email mailbox.Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := email.Folder.ChangeDelimiter(Delimiter).Name
	metadata, err := m.loadMetadata(name)
	if err != nil {
		return err
	}
	entry := toMetaEmail(&email)
	if existing, ok := metadata[email.ID.String()]; ok {
		entry.BodyKey = existing.BodyKey
	}
	metadata[email.ID.String()] = entry
	return m.saveMetadata(name, metadata)
}

func (m *Maildir) GetEmail(path mailbox.Path, id mailbox.EmailID) (*mailbox.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	metadata, err := m.loadMetadata(name)
	if err != nil {
		return nil, err
	}
	entry, ok := metadata[id.String()]
	if !ok {
		return nil, lib.ErrEmailNotFound
	}
	email := fromMetaEmail(entry, name)
	return &email, nil
}

func (m *Maildir) ListEmails(path mailbox.Path) ([]mailbox.Email, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	metadata, err := m.loadMetadata(name)
	if err != nil {
		return nil, err
	}
	emails := make([]mailbox.Email, 0, len(metadata))
	for _, entry := range metadata {
		emails = append(emails, fromMetaEmail(entry, name))
	}
	sort.Slice(emails, func(i, j int) bool {
		return emails[i].ID.Less(emails[j].ID)
	})
	return emails, nil
}

func (m *Maildir) DeleteEmails(path mailbox.Path, ids []mailbox.EmailID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	metadata, err := m.loadMetadata(name)
	if err != nil {
		return err
	}
	mbox := maildir.Dir(filepath.Join(m.root, name))
	for _, id := range ids {
		entry, ok := metadata[id.String()]
		if !ok {
			continue
		}
		if entry.BodyKey != "" {
			err = mbox.Remove(entry.BodyKey)
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				m.log.Printf("cannot remove message %q: %s", entry.BodyKey, err)
			}
		}
		delete(metadata, id.String())
	}
	return m.saveMetadata(name, metadata)
}

func (m *Maildir) SearchMessageID(id mailbox.MessageID, exclude []mailbox.Path) ([]mailbox.Email, error) {
	folders, err := m.ListFolders()
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	found := make([]mailbox.Email, 0)
	for _, folder := range folders {
		if mailbox.ContainsPath(exclude, folder) {
			continue
		}
		metadata, err := m.loadMetadata(folder.Name)
		if err != nil {
			continue
		}
		for _, entry := range metadata {
			email := fromMetaEmail(entry, folder.Name)
			for _, ancestor := range (&email).Ancestors() {
				if ancestor == id {
					found = append(found, email)
					break
				}
			}
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].ID.Less(found[j].ID)
	})
	return found, nil
}

func (m *Maildir) PutBody(path mailbox.Path, id mailbox.EmailID, body io.Reader) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	metadata, err := m.loadMetadata(name)
	if err != nil {
		return err
	}
	entry, ok := metadata[id.String()]
	if !ok {
		return lib.ErrEmailNotFound
	}
	mbox := maildir.Dir(filepath.Join(m.root, name))
	msg, writer, err := mbox.Create(toFlags(mailbox.Flags(entry.Flags)))
	if err != nil {
		return err
	}
	_, err = io.Copy(writer, body)
	if err != nil {
		_ = writer.Close()
		return err
	}
	err = writer.Close()
	if err != nil {
		return err
	}
	entry.BodyKey = msg
	metadata[id.String()] = entry
	return m.saveMetadata(name, metadata)
}

func (m *Maildir) HasBody(path mailbox.Path, id mailbox.EmailID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := path.ChangeDelimiter(Delimiter).Name
	metadata, err := m.loadMetadata(name)
	if err != nil {
		return false, err
	}
	entry, ok := metadata[id.String()]
	if !ok {
		return false, nil
	}
	return entry.BodyKey != "", nil
}

func (m *Maildir) metadataFile(name string) string {
	return filepath.Join(m.root, name, metadataFileName)
}

func (m *Maildir) loadMetadata(name string) (map[string]metaEmail, error) {
	if _, err := os.Stat(filepath.Join(m.root, name)); err != nil {
		return nil, lib.ErrFolderNotFound
	}
	file, err := os.Open(m.metadataFile(name))
	if err != nil {
		// a folder with no metadata file yet is simply empty
		return map[string]metaEmail{}, nil
	}
	defer file.Close()

	metadata := map[string]metaEmail{}
	decoder := json.NewDecoder(file)
	err = decoder.Decode(&metadata)
	if err != nil {
		return nil, fmt.Errorf("error reading metadata file: %w", err)
	}
	return metadata, nil
}

func (m *Maildir) saveMetadata(name string, metadata map[string]metaEmail) error {
	file, err := os.Create(m.metadataFile(name))
	if err != nil {
		return fmt.Errorf("cannot save metadata: %w", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	err = encoder.Encode(metadata)
	if err != nil {
		return fmt.Errorf("cannot encode metadata: %w", err)
	}
	return nil
}

func toMetaEmail(email *mailbox.Email) metaEmail {
	var references []string
	for _, ref := range email.References {
		references = append(references, ref.String())
	}
	entry := metaEmail{
		MessageID:  email.MessageID.String(),
		References: references,
		Subject:    email.Subject,
		Date:       email.Date,
		Received:   email.Received,
		Flags:      uint8(email.Flags),
	}
	if email.ID.IsUint() {
		entry.UID = email.ID.AsUint()
	} else {
		entry.Key = email.ID.AsString()
	}
	return entry
}

func fromMetaEmail(entry metaEmail, folderName string) mailbox.Email {
	id := mailbox.NewEmailIDFromString(entry.Key)
	if entry.UID > 0 {
		id = mailbox.NewEmailIDFromUint(entry.UID)
	}
	var references []mailbox.MessageID
	for _, ref := range entry.References {
		references = append(references, mailbox.MessageID(ref))
	}
	return mailbox.Email{
		ID:         id,
		MessageID:  mailbox.MessageID(entry.MessageID),
		References: references,
		Subject:    entry.Subject,
		Date:       entry.Date,
		Received:   entry.Received,
		Flags:      mailbox.Flags(entry.Flags),
		Folder:     mailbox.NewPath(folderName, Delimiter),
	}
}

// verify interface
var _ storage.LocalStore = &Maildir{}
