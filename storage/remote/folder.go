package remote

import (
	"bufio"
	"context"
	"net/textproto"
	"sort"
	"sync"
	"time"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/limitio"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
)

// referencesSection asks for the threading headers only.
var referencesSection = &imap.BodySectionName{
	BodyPartName: imap.BodyPartName{
		Specifier: imap.HeaderSpecifier,
		Fields:    []string{"References", "In-Reply-To"},
	},
	Peek: true,
}

// bodySection fetches the whole message without marking it read.
var bodySection = &imap.BodySectionName{Peek: true}

// Folder is an IMAP mailbox watched through a local mirror: the remote side
// keeps the mirror in sync and every read serves from the mirror.
type Folder struct {
	account   *Account
	path      mailbox.Path
	mu        sync.Mutex
	state     storage.OpenState
	openFlags storage.OpenFlag
	listeners map[int]storage.FolderListener
	nextID    int
	// known maps the mirrored uids to the flags last seen on the server.
	known       map[uint32]mailbox.Flags
	total       int
	uidValidity uint32
	stop        chan struct{}
	watcher     sync.WaitGroup
}

func newFolder(account *Account, path mailbox.Path) *Folder {
	return &Folder{
		account:   account,
		path:      path,
		state:     storage.StateClosed,
		listeners: make(map[int]storage.FolderListener),
		known:     make(map[uint32]mailbox.Flags),
	}
}

func (f *Folder) Path() mailbox.Path {
	return f.path
}

func (f *Folder) Properties() storage.Properties {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := f.total
	if total == 0 {
		emails, err := f.account.store.ListEmails(f.path)
		if err == nil {
			total = len(emails)
		}
	}
	return storage.Properties{
		EmailTotal: total,
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
	f.state = storage.StateOpening
	f.openFlags = flags
	f.stop = make(chan struct{})
	f.mu.Unlock()

	err := f.account.store.CreateFolder(f.path)
	if err != nil {
		f.setState(storage.StateClosed)
		return err
	}
	local, err := f.account.store.ListEmails(f.path)
	if err != nil {
		f.setState(storage.StateClosed)
		return err
	}
	f.mu.Lock()
	f.state = storage.StateLocal
	f.mu.Unlock()
	f.notifyOpenStateChanged(storage.StateLocal, len(local))

	if flags.Contains(storage.OpenLocalOnly) {
		return nil
	}

	// the remote side connects in the background: the caller gets the local
	// view immediately and an open state change when the sync is done
	f.watcher.Add(1)
	go func() {
		defer f.watcher.Done()
		err := f.connect()
		if err != nil {
			f.account.log.Printf("cannot sync folder %s: %s", f.path, err)
			f.connectionLost()
			return
		}
		f.watch()
	}()
	return nil
}

func (f *Folder) Close(ctx context.Context) error {
	f.mu.Lock()
	if f.state == storage.StateClosed {
		f.mu.Unlock()
		return nil
	}
	stop := f.stop
	f.state = storage.StateClosed
	f.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	f.watcher.Wait()
	return nil
}

func (f *Folder) ListByID(ctx context.Context, start *mailbox.EmailID, count int, fields storage.Field, flags storage.ListFlag, emails chan<- *mailbox.Email) error {
	defer close(emails)

	ordered, err := f.account.store.ListEmails(f.path)
	if err != nil {
		return err
	}
	if !flags.Contains(storage.ListOldestToNewest) {
		for i, j := 0, len(ordered)-1; i < j; i, j = i+1, j-1 {
			ordered[i], ordered[j] = ordered[j], ordered[i]
		}
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

	for _, id := range ids {
		email, err := f.account.store.GetEmail(f.path, id)
		if err != nil {
			// skip emails not mirrored
			continue
		}
		select {
		case emails <- email:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (f *Folder) FindBoundaries(ctx context.Context, ids []mailbox.EmailID) (mailbox.EmailID, mailbox.EmailID, error) {
	var earliest, latest mailbox.EmailID
	for _, id := range ids {
		_, err := f.account.store.GetEmail(f.path, id)
		if err != nil {
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
	emails, err := f.account.store.ListEmails(f.path)
	if err != nil {
		return mailbox.EmptyEmailID, 0, err
	}
	if len(emails) == 0 {
		return mailbox.EmptyEmailID, 0, lib.ErrEmailNotFound
	}
	newest := emails[len(emails)-1]
	offset := 0
	f.mu.Lock()
	if f.total > len(emails) {
		offset = f.total - len(emails)
	}
	f.mu.Unlock()
	return newest.ID, offset, nil
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

// connect selects the mailbox, mirrors the missing emails and transitions to
// the BOTH state.
func (f *Folder) connect() error {
	status, err := f.account.selectStatus(f.path.Name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	if f.uidValidity != 0 && f.uidValidity != status.UidValidity {
		// the server re-numbered everything: the mirror is stale
		f.account.log.Printf("folder %s: UIDVALIDITY changed from %d to %d", f.path, f.uidValidity, status.UidValidity)
		f.known = make(map[uint32]mailbox.Flags)
	}
	f.uidValidity = status.UidValidity
	f.total = int(status.Messages)
	f.mu.Unlock()

	_, err = f.syncOnce(true)
	if err != nil {
		return err
	}

	select {
	case <-f.stop:
		// the folder was closed during the sync
		return nil
	default:
	}

	f.mu.Lock()
	f.state = storage.StateBoth
	total := f.total
	f.mu.Unlock()
	f.notifyOpenStateChanged(storage.StateBoth, total)
	return nil
}

// watch polls the server until the folder is closed.
func (f *Folder) watch() {
	ticker := time.NewTicker(f.account.pollInterval())
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			_, err := f.syncOnce(false)
			if err != nil {
				f.account.log.Printf("folder %s: lost connection: %s", f.path, err)
				f.connectionLost()
				return
			}
		}
	}
}

// syncOnce reconciles the mirror with the server: new emails are fetched and
// stored, gone emails are dropped, flag changes are forwarded. It reports
// whether the email total changed.
func (f *Folder) syncOnce(initial bool) (bool, error) {
	status, err := f.account.selectStatus(f.path.Name)
	if err != nil {
		return false, err
	}
	uids := make([]uint32, 0, status.Messages)
	if status.Messages > 0 {
		seqset := new(imap.SeqSet)
		seqset.AddRange(1, status.Messages)
		err = f.account.withSelected(f.path.Name, func(c *client.Client) error {
			receiver := make(chan *imap.Message, 10)
			done := make(chan error, 1)
			go func() {
				done <- c.Fetch(seqset, []imap.FetchItem{imap.FetchUid}, receiver)
			}()
			for msg := range receiver {
				uids = append(uids, msg.Uid)
			}
			return <-done
		})
		if err != nil {
			return false, err
		}
	}

	remote := make(map[uint32]struct{}, len(uids))
	for _, uid := range uids {
		remote[uid] = struct{}{}
	}

	f.mu.Lock()
	newUIDs := make([]uint32, 0)
	for _, uid := range uids {
		if _, ok := f.known[uid]; !ok {
			newUIDs = append(newUIDs, uid)
		}
	}
	goneUIDs := make([]uint32, 0)
	for uid := range f.known {
		if _, ok := remote[uid]; !ok {
			goneUIDs = append(goneUIDs, uid)
		}
	}
	previousTotal := f.total
	f.total = len(uids)
	f.mu.Unlock()
	sort.Slice(newUIDs, func(i, j int) bool { return newUIDs[i] < newUIDs[j] })
	sort.Slice(goneUIDs, func(i, j int) bool { return goneUIDs[i] < goneUIDs[j] })

	if len(newUIDs) > 0 {
		err = f.mirrorEmails(newUIDs, !initial)
		if err != nil {
			return false, err
		}
	}
	if len(goneUIDs) > 0 {
		ids := make([]mailbox.EmailID, 0, len(goneUIDs))
		for _, uid := range goneUIDs {
			ids = append(ids, mailbox.NewEmailIDFromUint(uid))
			f.mu.Lock()
			delete(f.known, uid)
			f.mu.Unlock()
		}
		err = f.account.store.DeleteEmails(f.path, ids)
		if err != nil {
			return false, err
		}
		f.notify(func(listener storage.FolderListener) {
			listener.EmailsRemoved(ids)
		})
	}
	if !initial {
		err = f.syncFlags(uids)
		if err != nil {
			return false, err
		}
	}
	if f.account.config.SyncBodies {
		err = f.syncBodies(newUIDs)
		if err != nil {
			return false, err
		}
	}
	return previousTotal != len(uids), nil
}

// mirrorEmails fetches the metadata of the given uids into the local store.
func (f *Folder) mirrorEmails(uids []uint32, notify bool) error {
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	items := []imap.FetchItem{
		imap.FetchUid, imap.FetchFlags, imap.FetchInternalDate, imap.FetchEnvelope,
		referencesSection.FetchItem(),
	}

	stored := make([]mailbox.EmailID, 0, len(uids))
	err := f.account.withSelected(f.path.Name, func(c *client.Client) error {
		receiver := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seqset, items, receiver)
		}()
		for msg := range receiver {
			email := f.emailFromMessage(msg)
			err := f.account.store.PutEmail(email)
			if err != nil {
				// drain the rest of the responses
				for range receiver {
				}
				<-done
				return err
			}
			f.mu.Lock()
			f.known[msg.Uid] = email.Flags
			f.mu.Unlock()
			stored = append(stored, email.ID)
		}
		return <-done
	})
	if err != nil {
		return err
	}
	if notify && len(stored) > 0 {
		f.notify(func(listener storage.FolderListener) {
			listener.EmailsAppended(stored)
		})
	}
	return nil
}

// syncFlags diffs the flags of the mirrored emails against the server and
// forwards the changes.
func (f *Folder) syncFlags(uids []uint32) error {
	if len(uids) == 0 {
		return nil
	}
	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	changed := make(map[mailbox.EmailID]mailbox.Flags)

	err := f.account.withSelected(f.path.Name, func(c *client.Client) error {
		receiver := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, imap.FetchFlags}, receiver)
		}()
		for msg := range receiver {
			flags := mailbox.FlagsFromIMAP(msg.Flags)
			f.mu.Lock()
			previous, ok := f.known[msg.Uid]
			if ok && !previous.Equal(flags) {
				f.known[msg.Uid] = flags
				changed[mailbox.NewEmailIDFromUint(msg.Uid)] = flags
			}
			f.mu.Unlock()
		}
		return <-done
	})
	if err != nil {
		return err
	}
	if len(changed) == 0 {
		return nil
	}
	for id, flags := range changed {
		email, err := f.account.store.GetEmail(f.path, id)
		if err != nil {
			continue
		}
		email.Flags = flags
		_ = f.account.store.PutEmail(*email)
	}
	f.account.notifyFlagsChanged(f.path, changed)
	return nil
}

// syncBodies downloads the missing message bodies into the local store,
// rate limited when the configuration asks for it.
func (f *Folder) syncBodies(uids []uint32) error {
	pending := make([]uint32, 0, len(uids))
	for _, uid := range uids {
		has, err := f.account.store.HasBody(f.path, mailbox.NewEmailIDFromUint(uid))
		if err == nil && !has {
			pending = append(pending, uid)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(pending...)
	completed := make([]mailbox.EmailID, 0, len(pending))

	err := f.account.withSelected(f.path.Name, func(c *client.Client) error {
		receiver := make(chan *imap.Message, 10)
		done := make(chan error, 1)
		go func() {
			done <- c.UidFetch(seqset, []imap.FetchItem{imap.FetchUid, bodySection.FetchItem()}, receiver)
		}()
		for msg := range receiver {
			literal := msg.GetBody(bodySection)
			if literal == nil {
				continue
			}
			reader := limitio.NewReader(literal)
			if f.account.config.BodyRateLimit > 0 {
				reader.SetRateLimit(f.account.config.BodyRateLimit, 64*1024)
			}
			id := mailbox.NewEmailIDFromUint(msg.Uid)
			err := f.account.store.PutBody(f.path, id, reader)
			if err != nil {
				f.account.log.Printf("cannot store body of email %v: %s", id, err)
				continue
			}
			completed = append(completed, id)
		}
		return <-done
	})
	if err != nil {
		return err
	}
	if len(completed) > 0 {
		f.account.notifyLocallyComplete(f.path, completed)
	}
	return nil
}

// AppendEmail uploads a raw message to the folder. With UIDPLUS available
// the new uid comes back from the server.
func (f *Folder) AppendEmail(ctx context.Context, flags []string, date time.Time, body imap.Literal) (mailbox.EmailID, error) {
	name := f.path.Name
	flags = lib.StripRecentFlag(flags)
	var uid uint32
	var err error
	if f.account.uidplusClient != nil {
		_, uid, err = f.account.uidplusClient.Append(name, flags, date, body)
	} else {
		err = f.account.client.Append(name, flags, date, body)
	}
	if err != nil {
		return mailbox.EmptyEmailID, err
	}
	return mailbox.NewEmailIDFromUint(uid), nil
}

// Expunge permanently removes the given emails from the server. With UIDPLUS
// available only those emails are expunged, otherwise every email flagged
// deleted in the folder goes away.
func (f *Folder) Expunge(ctx context.Context, ids []mailbox.EmailID) error {
	seqset := new(imap.SeqSet)
	for _, id := range ids {
		if id.IsUint() {
			seqset.AddNum(id.AsUint())
		}
	}
	if seqset.Empty() {
		return nil
	}
	return f.account.withSelected(f.path.Name, func(c *client.Client) error {
		item := imap.FormatFlagsOp(imap.AddFlags, true)
		err := c.UidStore(seqset, item, []interface{}{imap.DeletedFlag}, nil)
		if err != nil {
			return err
		}
		if f.account.uidplusClient != nil {
			return f.account.uidplusClient.UidExpunge(seqset, nil)
		}
		return c.Expunge(nil)
	})
}

func (f *Folder) emailFromMessage(msg *imap.Message) mailbox.Email {
	email := mailbox.Email{
		ID:       mailbox.NewEmailIDFromUint(msg.Uid),
		Received: msg.InternalDate,
		Flags:    mailbox.FlagsFromIMAP(msg.Flags),
		Folder:   f.path,
	}
	if msg.Envelope != nil {
		email.MessageID = mailbox.NormalizeMessageID(msg.Envelope.MessageId)
		email.Subject = msg.Envelope.Subject
		email.Date = msg.Envelope.Date
		if email.Date.IsZero() {
			email.Date = msg.InternalDate
		}
		for _, ref := range mailbox.ParseMessageIDList(msg.Envelope.InReplyTo) {
			email.References = appendMessageID(email.References, ref)
		}
	}
	literal := msg.GetBody(referencesSection)
	if literal != nil {
		header, err := textproto.NewReader(bufio.NewReader(literal)).ReadMIMEHeader()
		if err == nil || len(header) > 0 {
			for _, ref := range mailbox.ParseMessageIDList(header.Get("References")) {
				email.References = appendMessageID(email.References, ref)
			}
			for _, ref := range mailbox.ParseMessageIDList(header.Get("In-Reply-To")) {
				email.References = appendMessageID(email.References, ref)
			}
		}
	}
	return email
}

func (f *Folder) setState(state storage.OpenState) {
	f.mu.Lock()
	f.state = state
	f.mu.Unlock()
}

// connectionLost closes the folder and tells the listeners: the monitor
// schedules a reconnection from there.
func (f *Folder) connectionLost() {
	f.mu.Lock()
	if f.state == storage.StateClosed {
		f.mu.Unlock()
		return
	}
	f.state = storage.StateClosed
	total := f.total
	f.mu.Unlock()
	f.notifyOpenStateChanged(storage.StateClosed, total)
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

func appendMessageID(list []mailbox.MessageID, id mailbox.MessageID) []mailbox.MessageID {
	for _, item := range list {
		if item == id {
			return list
		}
	}
	return append(list, id)
}

// verify interface
var _ storage.Folder = &Folder{}
