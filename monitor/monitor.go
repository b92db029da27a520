package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/creativeprojects/convmon/conversation"
	"github.com/creativeprojects/convmon/lib"
	"github.com/creativeprojects/convmon/mailbox"
	"github.com/creativeprojects/convmon/storage"
)

const (
	// DefaultWindowCount is the number of conversations kept materialized
	// when the configuration doesn't say otherwise.
	DefaultWindowCount = 50
	// WindowFillMessageCount is the minimum number of emails a window fill
	// loads per round.
	WindowFillMessageCount = 5
	// RetryConnectionInterval is the pause before reconnecting after a
	// connection loss.
	RetryConnectionInterval = 15 * time.Second
)

// Config tunes a Monitor.
type Config struct {
	// OpenFlags are passed to the folder when monitoring starts.
	OpenFlags storage.OpenFlag
	// Fields loaded for each email; the monitor always adds the fields it
	// needs for threading.
	Fields storage.Field
	// WindowCount is the minimum number of conversations to materialize.
	WindowCount int
	// RetryInterval overrides RetryConnectionInterval.
	RetryInterval time.Duration
	// Listener receives the change notifications.
	Listener Listener
	// DebugLogger sends debug information.
	DebugLogger lib.Logger
}

// Monitor maintains a windowed, incrementally updated view of a folder,
// grouped into conversations. All mutations go through the operation queue;
// external callbacks only enqueue.
type Monitor struct {
	account       storage.Account
	folder        storage.Folder
	openFlags     storage.OpenFlag
	fields        storage.Field
	retryInterval time.Duration
	listener      Listener
	log           lib.Logger
	blacklist     []mailbox.Path

	mu            sync.RWMutex
	conversations *conversation.Set
	windowCount   int
	allLoaded     bool
	monitoring    bool
	seedNotified  bool
	retrying      bool
	queue         *operationQueue
	cancel        context.CancelFunc
	unsubscribe   []func()
	retryStop     chan struct{}
	activity      func(active bool)
}

// NewMonitor creates a monitor on the given folder. It doesn't touch the
// folder until Start is called.
func NewMonitor(account storage.Account, folder storage.Folder, config Config) *Monitor {
	listener := config.Listener
	if listener == nil {
		listener = &NoListener{}
	}
	logger := config.DebugLogger
	if logger == nil {
		logger = &lib.NoLog{}
	}
	windowCount := config.WindowCount
	if windowCount <= 0 {
		windowCount = DefaultWindowCount
	}
	retryInterval := config.RetryInterval
	if retryInterval <= 0 {
		retryInterval = RetryConnectionInterval
	}
	return &Monitor{
		account:       account,
		folder:        folder,
		openFlags:     config.OpenFlags,
		fields:        config.Fields | storage.FieldsRequired,
		retryInterval: retryInterval,
		listener:      listener,
		log:           logger,
		conversations: conversation.NewSet(folder.Path()),
		windowCount:   windowCount,
		retryStop:     make(chan struct{}, 1),
	}
}

// Start opens the folder and begins monitoring. It returns true when the
// monitor transitioned to monitoring, false when it already was.
func (m *Monitor) Start(ctx context.Context) (bool, error) {
	m.mu.Lock()
	if m.monitoring {
		m.mu.Unlock()
		return false, nil
	}
	// reentrancy guard: the flag is set before the first suspension point
	m.monitoring = true
	// discard a stop signal left over from a previous session
	select {
	case <-m.retryStop:
	default:
	}
	m.seedNotified = false
	m.allLoaded = false
	m.conversations = conversation.NewSet(m.folder.Path())
	sessionCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.queue = newOperationQueue(m.log)
	queue := m.queue
	activity := m.activity
	m.mu.Unlock()
	queue.setActivityFunc(activity)

	m.blacklist = m.searchBlacklist()

	queue.add(&operation{kind: opLocalLoad})
	if m.folder.OpenState().IsRemote() {
		queue.add(&operation{kind: opReseed, reason: "already opened"})
	}
	queue.add(&operation{kind: opFillWindow})

	m.subscribe()

	err := m.folder.Open(ctx, m.openFlags)
	if err != nil && !errors.Is(err, lib.ErrAlreadyOpen) {
		m.unsubscribeAll()
		m.mu.Lock()
		m.monitoring = false
		m.mu.Unlock()
		cancel()
		return false, fmt.Errorf("cannot open folder %s: %w", m.folder.Path(), err)
	}

	m.listener.MonitoringStarted()
	go queue.run(sessionCtx, m)
	return true, nil
}

// Stop ends the monitoring session: it cancels pending adapter calls, waits
// for the running operation, drains the queue and closes the folder. Closing
// errors are reported but the monitor is stopped regardless.
func (m *Monitor) Stop(ctx context.Context) error {
	select {
	case m.retryStop <- struct{}{}:
	default:
	}
	return m.stop(ctx, false)
}

func (m *Monitor) stop(ctx context.Context, retrying bool) error {
	m.mu.Lock()
	if !m.monitoring {
		m.mu.Unlock()
		return nil
	}
	cancel := m.cancel
	queue := m.queue
	m.mu.Unlock()

	cancel()
	queue.stop()

	m.mu.Lock()
	m.monitoring = false
	m.mu.Unlock()
	m.unsubscribeAll()

	err := m.folder.Close(ctx)
	if err != nil {
		m.log.Printf("error closing folder %s: %s", m.folder.Path(), err)
	}
	m.listener.MonitoringStopped(retrying)
	return err
}

// IncreaseWindow grows the window by delta conversations and schedules a
// fill. It returns false when a fill is already pending, when everything is
// already loaded, or when delta isn't positive.
func (m *Monitor) IncreaseWindow(delta int) bool {
	if delta <= 0 {
		return false
	}
	m.mu.RLock()
	queue := m.queue
	allowed := m.monitoring && !m.allLoaded && queue != nil
	m.mu.RUnlock()
	if !allowed || queue.has(opFillWindow) {
		return false
	}

	m.mu.Lock()
	m.windowCount += delta
	m.mu.Unlock()

	queue.add(&operation{kind: opFillWindow})
	return true
}

// Conversations returns a snapshot of the conversations, newest first.
func (m *Monitor) Conversations() []*conversation.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversations.List()
}

// ConversationFor returns the conversation holding the given email.
func (m *Monitor) ConversationFor(id mailbox.EmailID) *conversation.Conversation {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversations.GetByEmailID(id)
}

func (m *Monitor) ConversationCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversations.Size()
}

func (m *Monitor) EmailCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conversations.EmailCount()
}

func (m *Monitor) AllMessagesLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.allLoaded
}

func (m *Monitor) IsMonitoring() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.monitoring
}

func (m *Monitor) WindowCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.windowCount
}

// IsProcessing indicates at least one operation is queued or running.
func (m *Monitor) IsProcessing() bool {
	m.mu.RLock()
	queue := m.queue
	m.mu.RUnlock()
	if queue == nil {
		return false
	}
	return queue.isProcessing()
}

// SetActivityFunc registers a callback fired when the operation queue goes
// busy or idle. Set it before Start.
func (m *Monitor) SetActivityFunc(activity func(active bool)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activity = activity
}

// searchBlacklist is the set of folders excluded from thread expansion: the
// junk folders, the drafts, and the monitored folder itself.
func (m *Monitor) searchBlacklist() []mailbox.Path {
	blacklist := make([]mailbox.Path, 0, 4)
	for _, use := range []storage.SpecialUse{storage.SpecialSpam, storage.SpecialTrash, storage.SpecialDrafts} {
		if path, ok := m.account.SpecialFolder(use); ok {
			blacklist = append(blacklist, path)
		}
	}
	return append(blacklist, m.folder.Path())
}

func (m *Monitor) enqueue(op *operation) {
	m.mu.RLock()
	queue := m.queue
	monitoring := m.monitoring
	m.mu.RUnlock()
	if !monitoring || queue == nil {
		return
	}
	queue.add(op)
}

func (m *Monitor) subscribe() {
	events := &monitorEvents{monitor: m}
	cancels := []func(){
		m.folder.Subscribe(events),
		m.account.Subscribe(events),
	}
	m.mu.Lock()
	m.unsubscribe = cancels
	m.mu.Unlock()
}

func (m *Monitor) unsubscribeAll() {
	m.mu.Lock()
	cancels := m.unsubscribe
	m.unsubscribe = nil
	m.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
}

// monitorEvents adapts the folder and account notifications into queue
// operations. Callbacks stay O(1) and never touch the conversation set.
type monitorEvents struct {
	monitor *Monitor
}

func (e *monitorEvents) EmailsAppended(ids []mailbox.EmailID) {
	e.monitor.enqueue(&operation{kind: opAppend, ids: ids})
}

func (e *monitorEvents) EmailsInserted(ids []mailbox.EmailID) {
	// inserted emails sit below the newest: refill the window from the top
	e.monitor.enqueue(&operation{kind: opFillWindow, insert: true})
}

func (e *monitorEvents) EmailsRemoved(ids []mailbox.EmailID) {
	e.monitor.enqueue(&operation{kind: opRemove, ids: ids})
}

func (e *monitorEvents) OpenStateChanged(state storage.OpenState, count int) {
	m := e.monitor
	m.log.Printf("folder %s is now %s (%d emails)", m.folder.Path(), state, count)
	if state.IsRemote() {
		m.enqueue(&operation{kind: opReseed, reason: "state " + state.String()})
		m.enqueue(&operation{kind: opFillWindow})
		return
	}
	if state == storage.StateClosed && m.openFlags.Contains(storage.OpenReestablishConnections) && m.IsMonitoring() {
		m.scheduleRetry()
	}
}

func (e *monitorEvents) FlagsChanged(folder mailbox.Path, flags map[mailbox.EmailID]mailbox.Flags) {
	e.monitor.enqueue(&operation{kind: opUpdateFlags, flags: flags})
}

func (e *monitorEvents) LocallyComplete(folder mailbox.Path, ids []mailbox.EmailID) {
	e.monitor.enqueue(&operation{kind: opExternalAppend, folder: folder, ids: ids})
}

// scheduleRetry stops the session and tries to start a new one after the
// retry interval, until it succeeds or Stop is called.
func (m *Monitor) scheduleRetry() {
	m.mu.Lock()
	if m.retrying {
		m.mu.Unlock()
		return
	}
	m.retrying = true
	m.mu.Unlock()

	m.log.Printf("connection lost, retrying in %s", m.retryInterval)
	go func() {
		defer func() {
			m.mu.Lock()
			m.retrying = false
			m.mu.Unlock()
		}()
		_ = m.stop(context.Background(), true)
		for {
			select {
			case <-time.After(m.retryInterval):
			case <-m.retryStop:
				return
			}
			_, err := m.Start(context.Background())
			if err == nil {
				return
			}
			m.log.Printf("cannot restart monitoring: %s", err)
		}
	}()
}

// verify interfaces
var (
	_ storage.FolderListener  = &monitorEvents{}
	_ storage.AccountListener = &monitorEvents{}
)
