package typing

import (
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/clock"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

type typingEntry struct {
	timer clock.Timer
}

// Tracker holds the set of remote participants typing in each room. Entries
// expire after the timeout unless refreshed.
type Tracker struct {
	mu       sync.Mutex
	clock    clock.Clock
	timeout  time.Duration
	rooms    map[types.ID]map[types.ID]*typingEntry
	onChange func(roomId types.ID)
}

func NewTracker(c clock.Clock, timeout time.Duration, onChange func(roomId types.ID)) *Tracker {
	if timeout <= 0 {
		timeout = RemoteTypingTimeout
	}
	return &Tracker{
		clock:    c,
		timeout:  timeout,
		rooms:    make(map[types.ID]map[types.ID]*typingEntry),
		onChange: onChange,
	}
}

// Set records a typing signal from userId in roomId.
func (t *Tracker) Set(roomId, userId types.ID, typing bool) {
	t.mu.Lock()
	changed := false
	users := t.rooms[roomId]

	if typing {
		if users == nil {
			users = make(map[types.ID]*typingEntry)
			t.rooms[roomId] = users
		}
		if e, ok := users[userId]; ok {
			e.timer.Reset(t.timeout)
		} else {
			e := &typingEntry{}
			e.timer = t.clock.AfterFunc(t.timeout, func() { t.expire(roomId, userId, e) })
			users[userId] = e
			changed = true
		}
	} else if e, ok := users[userId]; ok {
		e.timer.Stop()
		t.removeLocked(roomId, userId)
		changed = true
	}
	t.mu.Unlock()

	if changed {
		t.notify(roomId)
	}
}

// Typing returns the participants currently typing in roomId, sorted.
func (t *Tracker) Typing(roomId types.ID) []types.ID {
	t.mu.Lock()
	defer t.mu.Unlock()

	ids := make([]types.ID, 0, len(t.rooms[roomId]))
	for id := range t.rooms[roomId] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Clear drops every entry for roomId.
func (t *Tracker) Clear(roomId types.ID) {
	t.mu.Lock()
	users, ok := t.rooms[roomId]
	if ok {
		for _, e := range users {
			e.timer.Stop()
		}
		delete(t.rooms, roomId)
	}
	t.mu.Unlock()

	if ok && len(users) > 0 {
		t.notify(roomId)
	}
}

func (t *Tracker) expire(roomId, userId types.ID, e *typingEntry) {
	t.mu.Lock()
	if t.rooms[roomId][userId] != e {
		t.mu.Unlock()
		return
	}
	t.removeLocked(roomId, userId)
	t.mu.Unlock()

	t.notify(roomId)
}

func (t *Tracker) removeLocked(roomId, userId types.ID) {
	users := t.rooms[roomId]
	delete(users, userId)
	if len(users) == 0 {
		delete(t.rooms, roomId)
	}
}

func (t *Tracker) notify(roomId types.ID) {
	if t.onChange != nil {
		t.onChange(roomId)
	}
}
