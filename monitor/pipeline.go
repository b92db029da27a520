package monitor

import (
	"context"
	"sort"
	"sync"

	"github.com/creativeprojects/convmon/mailbox"
	"golang.org/x/sync/errgroup"
)

// localSearchParallelism bounds the concurrent local store searches run for
// one batch of missing Message-IDs.
const localSearchParallelism = 4

// process is the ingestion pipeline shared by every operation bringing
// emails in: it collapses duplicates, recursively pulls locally stored
// emails referenced by the batch, then applies the whole accumulated set to
// the conversations in one atomic step and emits the notifications.
//
// The recursion terminates because every round only adds email identifiers
// never seen before; it is bounded by the size of the local store.
func (m *Monitor) process(ctx context.Context, emails []mailbox.Email) error {
	collected := make(map[mailbox.EmailID]mailbox.Email, len(emails))
	order := make([]mailbox.EmailID, 0, len(emails))
	for _, email := range emails {
		if _, ok := collected[email.ID]; ok {
			continue
		}
		collected[email.ID] = email
		order = append(order, email.ID)
	}

	searched := make(map[mailbox.MessageID]struct{})
	for {
		needed := m.neededMessageIDs(collected, searched)
		if len(needed) == 0 {
			break
		}
		found, err := m.searchLocal(ctx, needed)
		if err != nil {
			return err
		}
		progress := false
		for _, email := range found {
			if _, ok := collected[email.ID]; ok {
				continue
			}
			collected[email.ID] = email
			order = append(order, email.ID)
			progress = true
		}
		if !progress {
			break
		}
	}

	batch := make([]mailbox.Email, 0, len(order))
	for _, id := range order {
		batch = append(batch, collected[id])
	}

	m.mu.Lock()
	changes := m.conversations.AddAll(batch)
	m.mu.Unlock()
	if changes.IsZero() {
		return nil
	}

	for _, conv := range changes.RemovedByMerge {
		m.listener.ConversationRemoved(conv)
	}
	if len(changes.Added) > 0 {
		m.listener.ConversationsAdded(changes.Added)
	}
	for _, appended := range changes.Appended {
		m.listener.ConversationAppended(appended.Conversation, appended.Emails)
	}
	return nil
}

// neededMessageIDs lists the ancestors of the batch that neither the batch
// itself nor the conversation set resolves, skipping the ones already
// searched.
func (m *Monitor) neededMessageIDs(collected map[mailbox.EmailID]mailbox.Email, searched map[mailbox.MessageID]struct{}) []mailbox.MessageID {
	known := make(map[mailbox.MessageID]struct{}, len(collected))
	for _, email := range collected {
		if !email.MessageID.IsZero() {
			known[email.MessageID] = struct{}{}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	needed := make([]mailbox.MessageID, 0)
	for _, email := range collected {
		for _, ancestor := range (&email).Ancestors() {
			if _, ok := searched[ancestor]; ok {
				continue
			}
			searched[ancestor] = struct{}{}
			if _, ok := known[ancestor]; ok {
				continue
			}
			if m.conversations.HasMessageID(ancestor) {
				continue
			}
			needed = append(needed, ancestor)
		}
	}
	sort.Slice(needed, func(i, j int) bool {
		return needed[i] < needed[j]
	})
	return needed
}

// searchLocal runs one bounded parallel round of local store searches, one
// per Message-ID, scoped with the folder and flag blacklists. The result is
// sorted for deterministic threading.
func (m *Monitor) searchLocal(ctx context.Context, ids []mailbox.MessageID) ([]mailbox.Email, error) {
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(localSearchParallelism)

	var mu sync.Mutex
	found := make([]mailbox.Email, 0)
	for _, id := range ids {
		id := id
		group.Go(func() error {
			results, err := m.account.SearchMessageID(groupCtx, id, m.fields, m.blacklist)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, email := range results {
				if email.Flags.Contains(mailbox.FlagDraft) {
					continue
				}
				found = append(found, email)
			}
			return nil
		})
	}
	err := group.Wait()
	if err != nil {
		return nil, err
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].ID.Less(found[j].ID)
	})
	return found, nil
}
