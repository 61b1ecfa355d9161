// Package directory tracks every user who has ever talked to the bot:
// their most recently observed handle, their delivery destination, the
// tickets they opened and the at-most-one active ticket pointer.
package directory

import (
	"sort"
	"strings"
	"sync"

	"github.com/AntonysrmNafi/blockveil-support-bot/pkg/protocol"
)

// Directory is an in-memory user registry. State is process-lifetime only.
type Directory struct {
	mu    sync.RWMutex
	users map[string]*protocol.User
}

// New creates an empty directory.
func New() *Directory {
	return &Directory{users: make(map[string]*protocol.User)}
}

// Observe records an interaction from a user, creating the record on first
// contact. Handle, display name and chat destination are last-write-wins:
// the directory always reflects the latest values the transport reported.
// Empty handle/name values do not erase previously observed ones.
func (d *Directory) Observe(id, handle, name, channel, chatID string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	u, ok := d.users[id]
	if !ok {
		u = &protocol.User{ID: id}
		d.users[id] = u
	}
	if handle != "" {
		u.Handle = handle
	}
	if name != "" {
		u.DisplayName = name
	}
	u.Channel = channel
	u.ChatID = chatID
}

// Get returns a copy of the user record.
func (d *Directory) Get(id string) (protocol.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return protocol.User{}, false
	}
	return copyUser(u), true
}

// Resolve looks a user up by "@handle" or by raw user id. Handles are a
// display convenience and may be stale; the id is the authoritative key.
func (d *Directory) Resolve(ref string) (protocol.User, bool) {
	if h, ok := strings.CutPrefix(ref, "@"); ok {
		return d.byHandle(h)
	}
	return d.Get(ref)
}

func (d *Directory) byHandle(handle string) (protocol.User, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, u := range d.users {
		if strings.EqualFold(u.Handle, handle) {
			return copyUser(u), true
		}
	}
	return protocol.User{}, false
}

// RecordTicket appends a ticket id to the user's owned list and marks it active.
func (d *Directory) RecordTicket(userID, ticketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[userID]
	if !ok {
		u = &protocol.User{ID: userID}
		d.users[userID] = u
	}
	u.Tickets = append(u.Tickets, ticketID)
	u.Active = ticketID
}

// ActiveTicket returns the user's current non-closed ticket id, if any.
func (d *Directory) ActiveTicket(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[userID]
	if !ok || u.Active == "" {
		return "", false
	}
	return u.Active, true
}

// SetActive restores the active pointer, used when a ticket is reopened.
func (d *Directory) SetActive(userID, ticketID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		u.Active = ticketID
	}
}

// ClearActive drops the active pointer, used when a ticket is closed.
func (d *Directory) ClearActive(userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if u, ok := d.users[userID]; ok {
		u.Active = ""
	}
}

// Snapshot returns a copy of every user record, ordered by user id.
// Broadcast iterates the snapshot so delivery never holds the lock.
func (d *Directory) Snapshot() []protocol.User {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]protocol.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, copyUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns the number of known users.
func (d *Directory) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.users)
}

func copyUser(u *protocol.User) protocol.User {
	cp := *u
	cp.Tickets = append([]string(nil), u.Tickets...)
	return cp
}
