package conversation

import (
	"sort"
	"time"

	"github.com/creativeprojects/convmon/mailbox"
)

// Location filters the emails returned by the read accessors, relative to the
// folder the conversation set monitors.
type Location int

const (
	// LocationInFolder only considers emails of the monitored folder.
	LocationInFolder Location = iota
	// LocationInFolderOutOfFolder considers every email, excluding blacklisted folders.
	LocationInFolderOutOfFolder
	// LocationAnywhere considers every email, ignoring the blacklist.
	LocationAnywhere
)

// Ordering of the emails returned by Emails.
type Ordering int

const (
	OrderingNewestFirst Ordering = iota
	OrderingOldestFirst
)

// Conversation is a set of emails sharing a transitive Message-ID closure.
// Conversations are owned and mutated by a Set; everything exported here is
// read-only.
type Conversation struct {
	base           mailbox.Path
	emails         map[mailbox.EmailID]mailbox.Email
	closure        map[mailbox.MessageID]struct{}
	newestDate     time.Time
	newestReceived time.Time
}

func newConversation(base mailbox.Path) *Conversation {
	return &Conversation{
		base:    base,
		emails:  make(map[mailbox.EmailID]mailbox.Email),
		closure: make(map[mailbox.MessageID]struct{}),
	}
}

// Size is the number of emails in the conversation.
func (c *Conversation) Size() int {
	return len(c.emails)
}

func (c *Conversation) HasEmail(id mailbox.EmailID) bool {
	_, ok := c.emails[id]
	return ok
}

func (c *Conversation) Email(id mailbox.EmailID) (mailbox.Email, bool) {
	email, ok := c.emails[id]
	return email, ok
}

// Emails returns the conversation's emails in the requested order, filtered
// by location and blacklist.
func (c *Conversation) Emails(ordering Ordering, location Location, blacklist []mailbox.Path) []mailbox.Email {
	list := make([]mailbox.Email, 0, len(c.emails))
	for _, email := range c.emails {
		if !c.matches(email, location, blacklist) {
			continue
		}
		list = append(list, email)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].Date.Equal(list[j].Date) {
			if ordering == OrderingOldestFirst {
				return list[i].Date.Before(list[j].Date)
			}
			return list[i].Date.After(list[j].Date)
		}
		if ordering == OrderingOldestFirst {
			return list[i].ID.Less(list[j].ID)
		}
		return list[j].ID.Less(list[i].ID)
	})
	return list
}

// LatestReceived returns the email with the most recent received date among
// those matching the location filter and blacklist.
func (c *Conversation) LatestReceived(location Location, blacklist []mailbox.Path) (mailbox.Email, bool) {
	var latest mailbox.Email
	found := false
	for _, email := range c.emails {
		if !c.matches(email, location, blacklist) {
			continue
		}
		if !found || email.Received.After(latest.Received) {
			latest = email
			found = true
		}
	}
	return latest, found
}

func (c *Conversation) IsUnread() bool {
	for _, email := range c.emails {
		if email.Flags.Contains(mailbox.FlagUnread) {
			return true
		}
	}
	return false
}

func (c *Conversation) IsFlagged() bool {
	for _, email := range c.emails {
		if email.Flags.Contains(mailbox.FlagFlagged) {
			return true
		}
	}
	return false
}

// MessageIDs returns the conversation's Message-ID closure.
func (c *Conversation) MessageIDs() []mailbox.MessageID {
	list := make([]mailbox.MessageID, 0, len(c.closure))
	for id := range c.closure {
		list = append(list, id)
	}
	sort.Slice(list, func(i, j int) bool {
		return list[i] < list[j]
	})
	return list
}

func (c *Conversation) NewestDate() time.Time {
	return c.newestDate
}

func (c *Conversation) NewestReceived() time.Time {
	return c.newestReceived
}

func (c *Conversation) matches(email mailbox.Email, location Location, blacklist []mailbox.Path) bool {
	switch location {
	case LocationInFolder:
		if !email.Folder.Equal(c.base) {
			return false
		}
	case LocationAnywhere:
		return true
	}
	return !mailbox.ContainsPath(blacklist, email.Folder)
}

// add inserts the email and extends the closure with its ancestors.
// It reports whether the email was not already present.
func (c *Conversation) add(email mailbox.Email) bool {
	if _, ok := c.emails[email.ID]; ok {
		return false
	}
	c.emails[email.ID] = email
	for _, ancestor := range (&email).Ancestors() {
		c.closure[ancestor] = struct{}{}
	}
	if email.Date.After(c.newestDate) {
		c.newestDate = email.Date
	}
	if email.Received.After(c.newestReceived) {
		c.newestReceived = email.Received
	}
	return true
}

// remove drops the email, recomputes the closure from the remaining emails
// and refreshes the derived dates. The closure keeps the own Message-ID of
// each remaining email (or its full ancestor set when it has none), so a
// dangling reference to a removed email no longer holds the thread together.
func (c *Conversation) remove(id mailbox.EmailID) (mailbox.Email, bool) {
	email, ok := c.emails[id]
	if !ok {
		return email, false
	}
	delete(c.emails, id)
	c.recompute()
	return email, true
}

func (c *Conversation) recompute() {
	c.closure = make(map[mailbox.MessageID]struct{}, len(c.emails))
	c.newestDate = time.Time{}
	c.newestReceived = time.Time{}
	for _, email := range c.emails {
		if !email.MessageID.IsZero() {
			c.closure[email.MessageID] = struct{}{}
		} else {
			for _, ancestor := range (&email).Ancestors() {
				c.closure[ancestor] = struct{}{}
			}
		}
		if email.Date.After(c.newestDate) {
			c.newestDate = email.Date
		}
		if email.Received.After(c.newestReceived) {
			c.newestReceived = email.Received
		}
	}
}

// oldestEmailID is used to break ties when choosing a merge survivor.
func (c *Conversation) oldestEmailID() mailbox.EmailID {
	var oldest mailbox.EmailID
	first := true
	for id := range c.emails {
		if first || id.Less(oldest) {
			oldest = id
			first = false
		}
	}
	return oldest
}

// setFlags refreshes the flags of an email in place.
func (c *Conversation) setFlags(id mailbox.EmailID, flags mailbox.Flags) (mailbox.Email, bool) {
	email, ok := c.emails[id]
	if !ok || email.Flags.Equal(flags) {
		return email, false
	}
	email.Flags = flags
	c.emails[id] = email
	return email, true
}
