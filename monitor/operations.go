package monitor

import (
	"context"
	"errors"
	"fmt"

	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
)

type opKind int

const (
	opLocalLoad opKind = iota
	opReseed
	opFillWindow
	opAppend
	opRemove
	opExternalAppend
	opExpandConversations
	opUpdateFlags
)

func (k opKind) String() string {
	switch k {
	case opLocalLoad:
		return "local-load"
	case opReseed:
		return "reseed"
	case opFillWindow:
		return "fill-window"
	case opAppend:
		return "append"
	case opRemove:
		return "remove"
	case opExternalAppend:
		return "external-append"
	case opExpandConversations:
		return "expand-conversations"
	case opUpdateFlags:
		return "update-flags"
	default:
		return "unknown"
	}
}

// operation is a tagged variant rather than an interface: the queue needs to
// peek at kinds to apply its coalescing rules.
type operation struct {
	kind opKind
	// Append, Remove, ExternalAppend
	ids []mailbox.EmailID
	// FillWindow
	insert bool
	// Reseed
	reason string
	// ExternalAppend
	folder mailbox.Path
	// ExpandConversations
	messageIDs []mailbox.MessageID
	// UpdateFlags
	flags map[mailbox.EmailID]mailbox.Flags
}

func (op *operation) run(ctx context.Context, m *Monitor) error {
	switch op.kind {
	case opLocalLoad:
		return m.runLocalLoad(ctx)
	case opReseed:
		return m.runReseed(ctx, op.reason)
	case opFillWindow:
		return m.runFillWindow(ctx, op.insert)
	case opAppend:
		return m.runAppend(ctx, op.ids)
	case opRemove:
		return m.runRemove(ctx, op.ids)
	case opExternalAppend:
		return m.runExternalAppend(ctx, op.folder, op.ids)
	case opExpandConversations:
		return m.runExpandConversations(ctx, op.messageIDs)
	case opUpdateFlags:
		return m.runUpdateFlags(ctx, op.flags)
	default:
		return fmt.Errorf("unknown operation kind %d", op.kind)
	}
}

// runLocalLoad seeds the conversation set from the local mirror: enough
// emails to cover the window, or down to the newest locally mirrored email
// when it sits deeper than that.
func (m *Monitor) runLocalLoad(ctx context.Context) error {
	count := m.WindowCount()
	_, offset, err := m.folder.FetchLocalNewest(ctx)
	if err == nil && offset+1 > count {
		count = offset + 1
	}

	m.listener.ScanStarted(true)
	emails, err := storage.ListAll(ctx, m.folder, nil, count, m.fields, storage.ListLocalOnly)
	if err != nil {
		return fmt.Errorf("cannot load local emails: %w", err)
	}
	err = m.process(ctx, emails)
	if err != nil {
		return err
	}
	m.listener.ScanCompleted(true)
	return nil
}

// runReseed re-lists everything from the lowest held email upward, typically
// when the remote becomes available. The seed notification fires once per
// monitoring session.
func (m *Monitor) runReseed(ctx context.Context, reason string) error {
	m.log.Printf("reseeding: %s", reason)
	m.listener.ScanStarted(false)

	var emails []mailbox.Email
	lowest, ok, err := m.lowestHeldID(ctx)
	if err != nil {
		return err
	}
	if ok {
		emails, err = storage.ListAll(ctx, m.folder, &lowest, storage.CountUnlimited, m.fields,
			storage.ListOldestToNewest|storage.ListIncludingID)
	} else {
		emails, err = storage.ListAll(ctx, m.folder, nil, m.WindowCount(), m.fields, storage.ListNone)
	}
	if err != nil {
		return fmt.Errorf("cannot reseed: %w", err)
	}
	err = m.process(ctx, emails)
	if err != nil {
		return err
	}
	m.listener.ScanCompleted(false)

	m.mu.Lock()
	notify := !m.seedNotified
	m.seedNotified = true
	m.mu.Unlock()
	if notify {
		m.listener.SeedCompleted()
	}
	return nil
}

// runFillWindow loads older emails until the window holds enough
// conversations, re-enqueuing itself as long as it makes progress.
func (m *Monitor) runFillWindow(ctx context.Context, insert bool) error {
	m.mu.RLock()
	window := m.windowCount
	size := m.conversations.Size()
	before := m.conversations.InFolderCount()
	monitoring := m.monitoring
	m.mu.RUnlock()
	if size >= window || !monitoring {
		return nil
	}

	listFlags := storage.ListNone
	if !m.folder.OpenState().IsRemote() {
		listFlags = storage.ListLocalOnly
	}
	localOnly := listFlags.Contains(storage.ListLocalOnly)

	lowest, ok, err := m.lowestHeldID(ctx)
	if err != nil {
		return err
	}

	m.listener.ScanStarted(localOnly)
	var emails []mailbox.Email
	if !insert && ok {
		count := window - size
		if count < WindowFillMessageCount {
			count = WindowFillMessageCount
		}
		emails, err = storage.ListAll(ctx, m.folder, &lowest, count, m.fields, listFlags)
	} else {
		emails, err = storage.ListAll(ctx, m.folder, nil, window, m.fields, listFlags)
	}
	if err != nil {
		return fmt.Errorf("cannot fill window: %w", err)
	}
	err = m.process(ctx, emails)
	if err != nil {
		return err
	}
	m.listener.ScanCompleted(localOnly)

	total := m.folder.Properties().EmailTotal
	m.mu.Lock()
	after := m.conversations.InFolderCount()
	m.allLoaded = after >= total
	stillShort := m.conversations.Size() < m.windowCount
	allLoaded := m.allLoaded
	m.mu.Unlock()

	if after > before && stillShort && !allLoaded {
		m.enqueue(&operation{kind: opFillWindow})
	}
	return nil
}

// runAppend threads new folder emails into the set.
func (m *Monitor) runAppend(ctx context.Context, ids []mailbox.EmailID) error {
	m.listener.ScanStarted(false)
	emails, err := storage.ListSparse(ctx, m.folder, ids, m.fields, storage.ListNone)
	if err != nil {
		return fmt.Errorf("cannot fetch appended emails: %w", err)
	}
	err = m.process(ctx, emails)
	if err != nil {
		return err
	}
	m.listener.ScanCompleted(false)
	return nil
}

// runRemove drops emails from the set. Trimmed conversations get an expand
// step queued to re-materialize out-of-folder emails still representing the
// thread.
func (m *Monitor) runRemove(ctx context.Context, ids []mailbox.EmailID) error {
	m.mu.Lock()
	result := m.conversations.Remove(ids)
	m.mu.Unlock()

	expand := make([]mailbox.MessageID, 0)
	for _, trimmed := range result.Trimmed {
		expand = append(expand, trimmed.Conversation.MessageIDs()...)
	}
	if len(expand) > 0 {
		m.enqueue(&operation{kind: opExpandConversations, messageIDs: expand})
	}

	for _, trimmed := range result.Trimmed {
		m.listener.ConversationTrimmed(trimmed.Conversation, trimmed.Emails)
	}
	for _, conv := range result.Removed {
		m.listener.ConversationRemoved(conv)
	}
	return nil
}

// runExpandConversations searches the local store for emails carrying any of
// the given Message-IDs and threads the findings back in.
func (m *Monitor) runExpandConversations(ctx context.Context, ids []mailbox.MessageID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := m.searchLocal(ctx, ids)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		return nil
	}
	return m.process(ctx, found)
}

// runExternalAppend considers emails that arrived in another folder: the
// ones threading into a held conversation are loaded from the local store
// and merged in.
func (m *Monitor) runExternalAppend(ctx context.Context, folder mailbox.Path, ids []mailbox.EmailID) error {
	if folder.IsZero() || folder.Equal(m.folder.Path()) || mailbox.ContainsPath(m.blacklist, folder) {
		return nil
	}
	m.mu.RLock()
	empty := m.conversations.Size() == 0
	m.mu.RUnlock()
	if empty {
		return nil
	}

	foreign, err := m.account.Folder(folder)
	if err != nil {
		if errors.Is(err, lib.ErrFolderNotFound) {
			return nil
		}
		return err
	}
	err = foreign.Open(ctx, storage.OpenLocalOnly)
	openedHere := err == nil
	if err != nil && !errors.Is(err, lib.ErrAlreadyOpen) {
		return fmt.Errorf("cannot open folder %s: %w", folder, err)
	}
	if openedHere {
		defer func() {
			closeErr := foreign.Close(context.Background())
			if closeErr != nil {
				m.log.Printf("cannot close folder %s: %s", folder, closeErr)
			}
		}()
	}

	// first pass: references only, to find the ones threading into the set
	candidates, err := storage.ListSparse(ctx, foreign, ids, storage.FieldReferences, storage.ListLocalOnly)
	if err != nil {
		return err
	}
	matching := make([]mailbox.EmailID, 0, len(candidates))
	m.mu.RLock()
	for index := range candidates {
		if m.conversations.HasAnyMessageID((&candidates[index]).Ancestors()) {
			matching = append(matching, candidates[index].ID)
		}
	}
	m.mu.RUnlock()
	if len(matching) == 0 {
		return nil
	}

	// second pass: full field set on the matching ones
	emails, err := storage.ListSparse(ctx, foreign, matching, m.fields, storage.ListLocalOnly)
	if err != nil {
		return err
	}
	for index := range emails {
		fetched, err := m.account.LocalFetch(ctx, folder, emails[index].ID, m.fields)
		if err == nil && fetched != nil {
			emails[index] = *fetched
		}
	}
	return m.process(ctx, emails)
}

// runUpdateFlags refreshes the flags of held emails in place.
func (m *Monitor) runUpdateFlags(ctx context.Context, flags map[mailbox.EmailID]mailbox.Flags) error {
	for id, value := range flags {
		m.mu.Lock()
		conv, email, changed := m.conversations.SetFlags(id, value)
		m.mu.Unlock()
		if changed {
			m.listener.EmailFlagsChanged(conv, email)
		}
	}
	return nil
}

// lowestHeldID returns the chronologically lowest in-folder email currently
// held, confirmed against the folder.
func (m *Monitor) lowestHeldID(ctx context.Context) (mailbox.EmailID, bool, error) {
	m.mu.RLock()
	ids := m.conversations.InFolderEmailIDs()
	m.mu.RUnlock()
	if len(ids) == 0 {
		return mailbox.EmptyEmailID, false, nil
	}
	earliest, _, err := m.folder.FindBoundaries(ctx, ids)
	if err != nil {
		return mailbox.EmptyEmailID, false, fmt.Errorf("cannot find boundaries: %w", err)
	}
	if earliest.IsZero() {
		return mailbox.EmptyEmailID, false, nil
	}
	return earliest, true, nil
}
