package remote

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
	compress "github.com/emersion/go-imap-compress"
	"github.com/emersion/go-imap/backend/memory"
	"github.com/emersion/go-imap/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/nettest"
)

func startTestServer(t *testing.T) string {
	t.Helper()
	// Create a memory backend
	be := memory.New()

	// Create a new server
	server := server.New(be)
	// Since we will use this server for testing only, we can allow plain text
	// authentication over non-encrypted connections
	server.AllowInsecureAuth = true
	server.Enable(compress.NewExtension())

	listener, err := nettest.NewLocalListener("tcp")
	require.NoError(t, err)

	t.Logf("Starting IMAP server at %s", listener.Addr().String())
	wg := sync.WaitGroup{}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = server.Serve(listener)
	}()
	t.Cleanup(func() {
		_ = server.Close()
		wg.Wait()
	})

	time.Sleep(100 * time.Millisecond)
	return listener.Addr().String()
}

func newTestAccount(t *testing.T, serverURL string) *Account {
	t.Helper()
	account, err := NewAccount(Config{
		ServerURL:    serverURL,
		Username:     "username",
		Password:     "password",
		NoTLS:        true,
		CacheDir:     t.TempDir(),
		DebugLogger:  lib.NewTestLogger(t, "imap"),
		PollInterval: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = account.Close()
	})
	return account
}

func TestAccountFolders(t *testing.T) {
	account := newTestAccount(t, startTestServer(t))

	folder, err := account.Folder(mailbox.NewPath("INBOX", account.Delimiter()))
	require.NoError(t, err)
	assert.Equal(t, "INBOX", folder.Path().Name)

	path, ok := account.SpecialFolder(storage.SpecialInbox)
	require.True(t, ok)
	assert.Equal(t, "INBOX", path.Name)

	_, err = account.Folder(mailbox.NewPath("Nowhere", account.Delimiter()))
	assert.ErrorIs(t, err, lib.ErrFolderNotFound)
}

func TestOpenMirrorsInbox(t *testing.T) {
	account := newTestAccount(t, startTestServer(t))

	folder, err := account.Folder(mailbox.NewPath("INBOX", account.Delimiter()))
	require.NoError(t, err)

	require.NoError(t, folder.Open(context.Background(), storage.OpenNone))
	defer folder.Close(context.Background())

	// the memory backend serves one sample message
	require.Eventually(t, func() bool {
		return folder.OpenState() == storage.StateBoth
	}, 5*time.Second, 10*time.Millisecond)

	emails, err := storage.ListAll(context.Background(), folder, nil, storage.CountUnlimited,
		storage.FieldsRequired, storage.ListNone)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.True(t, emails[0].ID.IsUint())
	assert.False(t, emails[0].Flags.Contains(mailbox.FlagUnread))

	id, offset, err := folder.FetchLocalNewest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, emails[0].ID, id)
	assert.Equal(t, 0, offset)
}

func TestWatcherSeesAppendedEmail(t *testing.T) {
	account := newTestAccount(t, startTestServer(t))

	folder, err := account.Folder(mailbox.NewPath("INBOX", account.Delimiter()))
	require.NoError(t, err)
	imapFolder := folder.(*Folder)

	var mu sync.Mutex
	appended := make([]mailbox.EmailID, 0)
	cancel := folder.Subscribe(&testFolderListener{
		onAppended: func(ids []mailbox.EmailID) {
			mu.Lock()
			defer mu.Unlock()
			appended = append(appended, ids...)
		},
	})
	defer cancel()

	require.NoError(t, folder.Open(context.Background(), storage.OpenNone))
	defer folder.Close(context.Background())
	require.Eventually(t, func() bool {
		return folder.OpenState() == storage.StateBoth
	}, 5*time.Second, 10*time.Millisecond)

	body := lib.GenerateEmail("from@example.org", "username@example.org", 2)
	_, err = imapFolder.AppendEmail(context.Background(), nil, time.Now(), bytes.NewBuffer(body))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(appended) == 1
	}, 5*time.Second, 10*time.Millisecond)

	emails, err := storage.ListAll(context.Background(), folder, nil, storage.CountUnlimited,
		storage.FieldsRequired, storage.ListNone)
	require.NoError(t, err)
	assert.Len(t, emails, 2)
}

func TestSearchMessageIDFromMirror(t *testing.T) {
	account := newTestAccount(t, startTestServer(t))

	folder, err := account.Folder(mailbox.NewPath("INBOX", account.Delimiter()))
	require.NoError(t, err)
	require.NoError(t, folder.Open(context.Background(), storage.OpenNone))
	defer folder.Close(context.Background())
	require.Eventually(t, func() bool {
		return folder.OpenState() == storage.StateBoth
	}, 5*time.Second, 10*time.Millisecond)

	emails, err := storage.ListAll(context.Background(), folder, nil, storage.CountUnlimited,
		storage.FieldsRequired, storage.ListNone)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	if emails[0].MessageID.IsZero() {
		t.Skip("sample message has no Message-ID")
	}

	found, err := account.SearchMessageID(context.Background(), emails[0].MessageID, storage.FieldsRequired, nil)
	require.NoError(t, err)
	assert.Len(t, found, 1)
}

type testFolderListener struct {
	onAppended func(ids []mailbox.EmailID)
}

func (l *testFolderListener) EmailsAppended(ids []mailbox.EmailID) {
	if l.onAppended != nil {
		l.onAppended(ids)
	}
}
func (l *testFolderListener) EmailsInserted(ids []mailbox.EmailID)                {}
func (l *testFolderListener) EmailsRemoved(ids []mailbox.EmailID)                 {}
func (l *testFolderListener) OpenStateChanged(state storage.OpenState, count int) {}
