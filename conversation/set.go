package conversation

import (
	"sort"

	"github.com/creativeprojects/convmon/mailbox"
)

// Appended records emails added to a conversation that already existed when
// the batch started (or was announced earlier in the same batch).
type Appended struct {
	Conversation *Conversation
	Emails       []mailbox.Email
}

// ChangeSet is the outcome of one AddAll batch. A consumer applying the three
// lists in order (merges, additions, appends) observes the batch atomically.
type ChangeSet struct {
	RemovedByMerge []*Conversation
	Added          []*Conversation
	Appended       []Appended
}

func (c ChangeSet) IsZero() bool {
	return len(c.RemovedByMerge) == 0 && len(c.Added) == 0 && len(c.Appended) == 0
}

// Trimmed records a conversation that lost emails but still has some left.
type Trimmed struct {
	Conversation *Conversation
	Emails       []mailbox.Email
}

// RemoveSet is the outcome of one Remove batch.
type RemoveSet struct {
	Trimmed []Trimmed
	Removed []*Conversation
}

// Set is the in-memory conversation index: every known email belongs to
// exactly one conversation, and every Message-ID of a conversation closure
// maps back to it. Base is the monitored folder.
type Set struct {
	base        mailbox.Path
	byEmailID   map[mailbox.EmailID]*Conversation
	byMessageID map[mailbox.MessageID]*Conversation
}

func NewSet(base mailbox.Path) *Set {
	return &Set{
		base:        base,
		byEmailID:   make(map[mailbox.EmailID]*Conversation),
		byMessageID: make(map[mailbox.MessageID]*Conversation),
	}
}

func (s *Set) Base() mailbox.Path {
	return s.base
}

// Size is the number of conversations.
func (s *Set) Size() int {
	count := 0
	seen := make(map[*Conversation]struct{})
	for _, conv := range s.byEmailID {
		if _, ok := seen[conv]; ok {
			continue
		}
		seen[conv] = struct{}{}
		count++
	}
	return count
}

// EmailCount is the total number of emails across all conversations.
func (s *Set) EmailCount() int {
	return len(s.byEmailID)
}

// InFolderCount is the number of emails belonging to the monitored folder.
func (s *Set) InFolderCount() int {
	count := 0
	for id := range s.byEmailID {
		email, _ := s.byEmailID[id].Email(id)
		if email.Folder.Equal(s.base) {
			count++
		}
	}
	return count
}

func (s *Set) HasEmailID(id mailbox.EmailID) bool {
	_, ok := s.byEmailID[id]
	return ok
}

func (s *Set) GetByEmailID(id mailbox.EmailID) *Conversation {
	return s.byEmailID[id]
}

func (s *Set) HasMessageID(id mailbox.MessageID) bool {
	_, ok := s.byMessageID[id]
	return ok
}

// HasAnyMessageID reports whether at least one of the identifiers belongs to
// a conversation closure.
func (s *Set) HasAnyMessageID(ids []mailbox.MessageID) bool {
	for _, id := range ids {
		if s.HasMessageID(id) {
			return true
		}
	}
	return false
}

// InFolderEmailIDs returns the identifiers of the emails held for the
// monitored folder.
func (s *Set) InFolderEmailIDs() []mailbox.EmailID {
	ids := make([]mailbox.EmailID, 0, len(s.byEmailID))
	for id, conv := range s.byEmailID {
		email, _ := conv.Email(id)
		if email.Folder.Equal(s.base) {
			ids = append(ids, id)
		}
	}
	return ids
}

// List returns the conversations ordered by newest date descending.
func (s *Set) List() []*Conversation {
	seen := make(map[*Conversation]struct{})
	list := make([]*Conversation, 0)
	for _, conv := range s.byEmailID {
		if _, ok := seen[conv]; ok {
			continue
		}
		seen[conv] = struct{}{}
		list = append(list, conv)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].newestDate.Equal(list[j].newestDate) {
			return list[i].newestDate.After(list[j].newestDate)
		}
		if !list[i].newestReceived.Equal(list[j].newestReceived) {
			return list[i].newestReceived.After(list[j].newestReceived)
		}
		return list[i].oldestEmailID().Less(list[j].oldestEmailID())
	})
	return list
}

// AddAll threads a batch of emails into the set. Emails already present are
// ignored. Conversations created and absorbed within the same batch are
// never reported: their emails surface through the surviving conversation.
func (s *Set) AddAll(emails []mailbox.Email) ChangeSet {
	created := make(map[*Conversation]struct{})
	addedOrder := make([]*Conversation, 0)
	appendedEvents := make([]Appended, 0)
	removed := make([]*Conversation, 0)

	dropAppendedFor := func(conv *Conversation) {
		kept := appendedEvents[:0]
		for _, event := range appendedEvents {
			if event.Conversation != conv {
				kept = append(kept, event)
			}
		}
		appendedEvents = kept
	}

	for _, email := range emails {
		if _, ok := s.byEmailID[email.ID]; ok {
			continue
		}
		keys := (&email).Ancestors()
		matches := s.distinctMatches(keys)

		var target *Conversation
		switch len(matches) {
		case 0:
			target = newConversation(s.base)
			created[target] = struct{}{}
			addedOrder = append(addedOrder, target)
		case 1:
			target = matches[0]
			appendedEvents = append(appendedEvents, Appended{
				Conversation: target,
				Emails:       []mailbox.Email{email},
			})
		default:
			var absorbed []*Conversation
			target, absorbed = pickSurvivor(matches)
			merged := make([]mailbox.Email, 0)
			for _, conv := range absorbed {
				merged = append(merged, s.absorb(target, conv)...)
				dropAppendedFor(conv)
				if _, ok := created[conv]; ok {
					// never announced, keep it invisible
					delete(created, conv)
					addedOrder = removeConversation(addedOrder, conv)
				} else {
					removed = append(removed, conv)
				}
			}
			if _, ok := created[target]; !ok {
				appendedEvents = append(appendedEvents, Appended{
					Conversation: target,
					Emails:       append(merged, email),
				})
			}
		}

		target.add(email)
		for _, key := range keys {
			s.byMessageID[key] = target
		}
		s.byEmailID[email.ID] = target
	}

	changes := ChangeSet{}
	if len(removed) > 0 {
		changes.RemovedByMerge = removed
	}
	if len(addedOrder) > 0 {
		changes.Added = addedOrder
	}
	if len(appendedEvents) > 0 {
		changes.Appended = appendedEvents
	}
	return changes
}

// Remove drops the emails from their conversations. A conversation losing
// its last email is removed; one losing a bridging email is trimmed but
// never split.
func (s *Set) Remove(ids []mailbox.EmailID) RemoveSet {
	trimmed := make(map[*Conversation][]mailbox.Email)
	trimmedOrder := make([]*Conversation, 0)
	removed := make([]*Conversation, 0)

	for _, id := range ids {
		conv, ok := s.byEmailID[id]
		if !ok {
			continue
		}
		oldClosure := conv.MessageIDs()
		email, ok := conv.remove(id)
		if !ok {
			continue
		}
		delete(s.byEmailID, id)

		if conv.Size() == 0 {
			for _, key := range oldClosure {
				if s.byMessageID[key] == conv {
					delete(s.byMessageID, key)
				}
			}
			delete(trimmed, conv)
			trimmedOrder = removeConversation(trimmedOrder, conv)
			removed = append(removed, conv)
			continue
		}

		// drop the closure keys the trim released
		for _, key := range oldClosure {
			if _, still := conv.closure[key]; !still && s.byMessageID[key] == conv {
				delete(s.byMessageID, key)
			}
		}
		if _, ok := trimmed[conv]; !ok {
			trimmedOrder = append(trimmedOrder, conv)
		}
		trimmed[conv] = append(trimmed[conv], email)
	}

	result := RemoveSet{}
	for _, conv := range trimmedOrder {
		result.Trimmed = append(result.Trimmed, Trimmed{
			Conversation: conv,
			Emails:       trimmed[conv],
		})
	}
	if len(removed) > 0 {
		result.Removed = removed
	}
	return result
}

// SetFlags refreshes the flags of an email in place and returns the updated
// email with its conversation.
func (s *Set) SetFlags(id mailbox.EmailID, flags mailbox.Flags) (*Conversation, mailbox.Email, bool) {
	conv, ok := s.byEmailID[id]
	if !ok {
		return nil, mailbox.Email{}, false
	}
	email, changed := conv.setFlags(id, flags)
	return conv, email, changed
}

// distinctMatches returns the conversations matching the keys, deduplicated,
// in first-seen order.
func (s *Set) distinctMatches(keys []mailbox.MessageID) []*Conversation {
	matches := make([]*Conversation, 0, 1)
	seen := make(map[*Conversation]struct{}, 1)
	for _, key := range keys {
		conv, ok := s.byMessageID[key]
		if !ok {
			continue
		}
		if _, ok := seen[conv]; ok {
			continue
		}
		seen[conv] = struct{}{}
		matches = append(matches, conv)
	}
	return matches
}

// absorb moves every email and closure key of source into target and drops
// source from the indices. It returns the emails that moved.
func (s *Set) absorb(target, source *Conversation) []mailbox.Email {
	moved := make([]mailbox.Email, 0, source.Size())
	for id, email := range source.emails {
		target.add(email)
		s.byEmailID[id] = target
		moved = append(moved, email)
	}
	for key := range source.closure {
		target.closure[key] = struct{}{}
		s.byMessageID[key] = target
	}
	sort.Slice(moved, func(i, j int) bool {
		return moved[i].ID.Less(moved[j].ID)
	})
	source.emails = make(map[mailbox.EmailID]mailbox.Email)
	source.closure = make(map[mailbox.MessageID]struct{})
	return moved
}

// pickSurvivor chooses the conversation with the most emails, breaking ties
// with the oldest EmailID. The others are returned in merge order.
func pickSurvivor(matches []*Conversation) (*Conversation, []*Conversation) {
	survivor := matches[0]
	for _, conv := range matches[1:] {
		if conv.Size() > survivor.Size() {
			survivor = conv
			continue
		}
		if conv.Size() == survivor.Size() && conv.oldestEmailID().Less(survivor.oldestEmailID()) {
			survivor = conv
		}
	}
	absorbed := make([]*Conversation, 0, len(matches)-1)
	for _, conv := range matches {
		if conv != survivor {
			absorbed = append(absorbed, conv)
		}
	}
	sort.Slice(absorbed, func(i, j int) bool {
		return absorbed[i].oldestEmailID().Less(absorbed[j].oldestEmailID())
	})
	return survivor, absorbed
}

func removeConversation(list []*Conversation, conv *Conversation) []*Conversation {
	for i, item := range list {
		if item == conv {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
