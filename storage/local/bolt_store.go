package local

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
	bolt "go.etcd.io/bbolt"
)

const (
	metadataBucket  = "metadata"
	folderBucket    = "folder"
	indexBucket     = "message-id"
	emailPrefix     = "email-"
	bodyPrefix      = "body-"
	versionKey      = "version"
	boltFileVersion = 1
)

const Delimiter = "."

// locator points at one stored copy of an email.
type locator struct {
	Folder string
	ID     mailbox.EmailID
}

// BoltStore is the bbolt implementation of storage.LocalStore: one bucket
// per folder holding gob encoded email records and bodies, plus a global
// Message-ID index for thread expansion.
type BoltStore struct {
	dbFile string
	db     *bolt.DB
	log    lib.Logger
}

func NewBoltStore(filename string) (*BoltStore, error) {
	return NewBoltStoreWithLogger(filename, nil)
}

func NewBoltStoreWithLogger(filename string, logger lib.Logger) (*BoltStore, error) {
	if logger == nil {
		logger = &lib.NoLog{}
	}
	options := bolt.DefaultOptions
	options.Timeout = 10 * time.Second

	err := os.MkdirAll(filepath.Dir(filename), 0700)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", filename, err)
	}

	db, err := bolt.Open(filename, 0600, options)
	if err != nil {
		return nil, err
	}

	store := &BoltStore{
		dbFile: filename,
		db:     db,
		log:    logger,
	}
	err = store.init()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *BoltStore) init() error {
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(metadataBucket))
		if err != nil {
			return err
		}
		_, err = tx.CreateBucketIfNotExists([]byte(indexBucket))
		if err != nil {
			return err
		}
		version, err := SerializeInt(boltFileVersion)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(versionKey), version)
	})
}

func (s *BoltStore) Exists() bool {
	_, err := os.Stat(s.dbFile)
	return err == nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) CreateFolder(path mailbox.Path) error {
	name := path.ChangeDelimiter(Delimiter).Name
	return s.db.Update(func(tx *bolt.Tx) error {
		root, err := tx.CreateBucketIfNotExists([]byte(folderBucket))
		if err != nil {
			return err
		}
		_, err = root.CreateBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketExists) {
			// don't return an error when the bucket exists
			return nil
		}
		return err
	})
}

func (s *BoltStore) ListFolders() ([]mailbox.Path, error) {
	list := make([]mailbox.Path, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(folderBucket))
		if root == nil {
			return nil
		}
		return root.ForEach(func(name, value []byte) error {
			if value != nil {
				// not a bucket
				return nil
			}
			list = append(list, mailbox.NewPath(string(name), Delimiter))
			return nil
		})
	})
	return list, err
}

func (s *BoltStore) DeleteFolder(path mailbox.Path) error {
	name := path.ChangeDelimiter(Delimiter).Name
	return s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket([]byte(folderBucket))
		if root == nil {
			return nil
		}
		err := root.DeleteBucket([]byte(name))
		if errors.Is(err, bolt.ErrBucketNotFound) {
			return nil
		}
		return err
	})
}

func (s *BoltStore) PutEmail(email mailbox.Email) error {
	name := email.Folder.ChangeDelimiter(Delimiter).Name
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := s.folder(tx, name, true)
		if err != nil {
			return err
		}
		data, err := SerializeObject(&email)
		if err != nil {
			return err
		}
		err = bucket.Put(emailKey(email.ID), data)
		if err != nil {
			return err
		}
		return s.indexEmail(tx, &email, name)
	})
}

func (s *BoltStore) GetEmail(path mailbox.Path, id mailbox.EmailID) (*mailbox.Email, error) {
	name := path.ChangeDelimiter(Delimiter).Name
	var email *mailbox.Email
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket, err := s.folder(tx, name, false)
		if err != nil {
			return err
		}
		data := bucket.Get(emailKey(id))
		if data == nil {
			return lib.ErrEmailNotFound
		}
		email, err = DeserializeObject[mailbox.Email](data)
		return err
	})
	if err != nil {
		return nil, err
	}
	return email, nil
}

func (s *BoltStore) ListEmails(path mailbox.Path) ([]mailbox.Email, error) {
	name := path.ChangeDelimiter(Delimiter).Name
	emails := make([]mailbox.Email, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket, err := s.folder(tx, name, false)
		if err != nil {
			return err
		}
		cursor := bucket.Cursor()
		for key, value := cursor.Seek([]byte(emailPrefix)); key != nil; key, value = cursor.Next() {
			if !hasPrefix(key, emailPrefix) {
				break
			}
			email, err := DeserializeObject[mailbox.Email](value)
			if err != nil {
				return err
			}
			emails = append(emails, *email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	// bucket keys are not in receive order
	sort.Slice(emails, func(i, j int) bool {
		return emails[i].ID.Less(emails[j].ID)
	})
	return emails, nil
}

func (s *BoltStore) DeleteEmails(path mailbox.Path, ids []mailbox.EmailID) error {
	name := path.ChangeDelimiter(Delimiter).Name
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := s.folder(tx, name, false)
		if err != nil {
			return err
		}
		for _, id := range ids {
			data := bucket.Get(emailKey(id))
			if data == nil {
				continue
			}
			email, err := DeserializeObject[mailbox.Email](data)
			if err != nil {
				return err
			}
			err = bucket.Delete(emailKey(id))
			if err != nil {
				return err
			}
			_ = bucket.Delete(bodyKey(id))
			err = s.unindexEmail(tx, email, name)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) SearchMessageID(id mailbox.MessageID, exclude []mailbox.Path) ([]mailbox.Email, error) {
	found := make([]mailbox.Email, 0)
	err := s.db.View(func(tx *bolt.Tx) error {
		index := tx.Bucket([]byte(indexBucket))
		if index == nil {
			return nil
		}
		data := index.Get([]byte(id))
		if data == nil {
			return nil
		}
		locators, err := DeserializeObject[[]locator](data)
		if err != nil {
			return err
		}
		for _, entry := range *locators {
			path := mailbox.NewPath(entry.Folder, Delimiter)
			if mailbox.ContainsPath(exclude, path) {
				continue
			}
			bucket, err := s.folder(tx, entry.Folder, false)
			if err != nil {
				continue
			}
			raw := bucket.Get(emailKey(entry.ID))
			if raw == nil {
				continue
			}
			email, err := DeserializeObject[mailbox.Email](raw)
			if err != nil {
				return err
			}
			found = append(found, *email)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

func (s *BoltStore) PutBody(path mailbox.Path, id mailbox.EmailID, body io.Reader) error {
	name := path.ChangeDelimiter(Delimiter).Name
	content, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		bucket, err := s.folder(tx, name, false)
		if err != nil {
			return err
		}
		return bucket.Put(bodyKey(id), content)
	})
}

func (s *BoltStore) HasBody(path mailbox.Path, id mailbox.EmailID) (bool, error) {
	name := path.ChangeDelimiter(Delimiter).Name
	has := false
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket, err := s.folder(tx, name, false)
		if err != nil {
			return err
		}
		has = bucket.Get(bodyKey(id)) != nil
		return nil
	})
	return has, err
}

// Backup makes a copy of the store into filename.
func (s *BoltStore) Backup(filename string) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.CopyFile(filename, 0600)
	})
}

func (s *BoltStore) folder(tx *bolt.Tx, name string, create bool) (*bolt.Bucket, error) {
	root := tx.Bucket([]byte(folderBucket))
	if root == nil {
		if !create {
			return nil, lib.ErrFolderNotFound
		}
		var err error
		root, err = tx.CreateBucketIfNotExists([]byte(folderBucket))
		if err != nil {
			return nil, err
		}
	}
	bucket := root.Bucket([]byte(name))
	if bucket == nil {
		if !create {
			return nil, lib.ErrFolderNotFound
		}
		return root.CreateBucket([]byte(name))
	}
	return bucket, nil
}

func (s *BoltStore) indexEmail(tx *bolt.Tx, email *mailbox.Email, folderName string) error {
	index := tx.Bucket([]byte(indexBucket))
	entry := locator{Folder: folderName, ID: email.ID}
	for _, ancestor := range email.Ancestors() {
		locators := make([]locator, 0, 1)
		if data := index.Get([]byte(ancestor)); data != nil {
			existing, err := DeserializeObject[[]locator](data)
			if err != nil {
				return err
			}
			locators = *existing
		}
		if containsLocator(locators, entry) {
			continue
		}
		locators = append(locators, entry)
		data, err := SerializeObject(&locators)
		if err != nil {
			return err
		}
		err = index.Put([]byte(ancestor), data)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *BoltStore) unindexEmail(tx *bolt.Tx, email *mailbox.Email, folderName string) error {
	index := tx.Bucket([]byte(indexBucket))
	entry := locator{Folder: folderName, ID: email.ID}
	for _, ancestor := range email.Ancestors() {
		data := index.Get([]byte(ancestor))
		if data == nil {
			continue
		}
		existing, err := DeserializeObject[[]locator](data)
		if err != nil {
			return err
		}
		locators := make([]locator, 0, len(*existing))
		for _, item := range *existing {
			if item != entry {
				locators = append(locators, item)
			}
		}
		if len(locators) == 0 {
			err = index.Delete([]byte(ancestor))
		} else {
			data, err = SerializeObject(&locators)
			if err != nil {
				return err
			}
			err = index.Put([]byte(ancestor), data)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func emailKey(id mailbox.EmailID) []byte {
	return []byte(emailPrefix + id.String())
}

func bodyKey(id mailbox.EmailID) []byte {
	return []byte(bodyPrefix + id.String())
}

func hasPrefix(key []byte, prefix string) bool {
	return len(key) >= len(prefix) && string(key[:len(prefix)]) == prefix
}

func containsLocator(list []locator, entry locator) bool {
	for _, item := range list {
		if item == entry {
			return true
		}
	}
	return false
}

// verify interface
var _ storage.LocalStore = &BoltStore{}
