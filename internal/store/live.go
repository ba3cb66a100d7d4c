package store

import (
	"github.com/npezzotti/go-chatroom-client/internal/normalize"
	"github.com/npezzotti/go-chatroom-client/internal/stats"
	"github.com/npezzotti/go-chatroom-client/internal/transport"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

// onLiveMessage merges a pushed message. Messages for the active room are
// appended if absent; messages for other rooms only bump the unread counter.
// The room preview is updated either way.
func (s *Store) onLiveMessage(ev transport.Event) {
	if ev.Message == nil {
		return
	}
	s.incr(stats.MetricMessagesReceived)

	msg := normalize.Normalize(*ev.Message)
	if msg.RoomId == "" {
		msg.RoomId = ev.RoomId
	}

	s.mu.Lock()
	change := ChangeMessages
	if msg.RoomId == s.active {
		if !s.appendLocked(msg) {
			merged := false
			for _, userId := range msg.ReadBy {
				if s.markReadByLocked(userId, []types.ID{msg.Id}) {
					merged = true
				}
			}
			s.mu.Unlock()
			s.incr(stats.MetricMessagesDeduplicated)
			if merged {
				s.notify(Change{Kind: ChangeMessages, RoomId: msg.RoomId})
			}
			return
		}
	} else if !s.IsOwn(msg) {
		s.unread[msg.RoomId]++
		change = ChangeUnread
		s.incr(stats.MetricUnreadIncrements)
	}
	s.updatePreviewLocked(msg)
	s.mu.Unlock()

	// a message from someone ends their typing indicator
	s.tracker.Set(msg.RoomId, msg.Sender.Id, false)
	s.notify(Change{Kind: change, RoomId: msg.RoomId})
}

func (s *Store) onTyping(ev transport.Event) {
	t := ev.Typing
	if t == nil || t.UserId == "" || t.UserId == s.userId {
		return
	}
	s.tracker.Set(t.RoomId, t.UserId, t.IsTyping)
}

func (s *Store) onRead(ev transport.Event) {
	r := ev.Read
	if r == nil || r.UserId == "" {
		return
	}

	s.mu.Lock()
	changed := r.RoomId == s.active && s.markReadByLocked(r.UserId, r.MessageIds)
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeMessages, RoomId: r.RoomId})
	}
}

// onPresence updates the participant in every room it belongs to.
func (s *Store) onPresence(ev transport.Event) {
	p := ev.Presence
	if p == nil || p.UserId == "" {
		return
	}

	s.mu.Lock()
	changed := false
	for i := range s.rooms {
		if part, ok := s.rooms[i].Participant(p.UserId); ok {
			part.IsOnline = p.IsOnline
			if !p.LastSeen.IsZero() {
				part.LastSeen = p.LastSeen
			}
			changed = true
		}
	}
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: ChangeRooms, RoomId: p.RoomId})
	}
}

// onTransportError arms a single re-bind attempt when the active room's
// binding fails.
func (s *Store) onTransportError(ev transport.Event) {
	s.mu.Lock()
	active := ev.RoomId == s.active && s.active != ""
	if active {
		s.rebind = true
	}
	s.mu.Unlock()

	s.logf("transport error on room %q: %v", ev.RoomId, ev.Err)
	if active {
		s.notify(Change{Kind: ChangeBinding, RoomId: ev.RoomId})
	}
}

func (s *Store) onBindingChange(ev transport.Event) {
	s.notify(Change{Kind: ChangeBinding, RoomId: ev.RoomId})
}
