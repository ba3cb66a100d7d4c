package store

import (
	"context"
	"fmt"

	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/normalize"
	"github.com/npezzotti/go-chatroom-client/internal/stats"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"golang.org/x/sync/errgroup"
)

// ListRooms replaces the room collection with the backend's list. Message
// logs and unread counters are left alone.
func (s *Store) ListRooms(ctx context.Context) ([]types.Room, error) {
	rooms, err := s.gw.ListRooms(ctx)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	s.mu.Lock()
	s.rooms = make([]types.Room, len(rooms))
	out := make([]types.Room, len(rooms))
	for i, r := range rooms {
		s.rooms[i] = copyRoom(r)
		out[i] = copyRoom(r)
	}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRooms})
	return out, nil
}

// SelectRoom makes roomId the active room. The room and its first history
// page are fetched concurrently; if another SelectRoom started in the
// meantime the result is discarded. On failure the previously active room
// stays selected. A failed binding does not fail the selection: the store
// re-binds on the next interaction.
func (s *Store) SelectRoom(ctx context.Context, roomId types.ID) error {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.phase = PhaseLoading
	s.loading = roomId
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeActive, RoomId: roomId})

	var (
		room types.Room
		page types.Page
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		room, err = s.gw.GetRoom(gctx, roomId)
		return err
	})
	g.Go(func() error {
		var err error
		page, err = s.gw.GetMessages(gctx, roomId, "")
		return err
	})
	err := g.Wait()

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.discardStale("select room", roomId)
		return nil
	}
	if err != nil {
		s.phase = PhaseIdle
		if s.active != "" {
			s.phase = PhaseReady
		}
		s.loading = ""
		s.mu.Unlock()
		s.notify(Change{Kind: ChangeActive, RoomId: roomId})
		return fmt.Errorf("select room %q: %w", roomId, err)
	}

	prev := s.active
	s.active = roomId
	s.loading = ""
	s.phase = PhaseReady
	s.rebind = false
	s.upsertRoomLocked(room)
	s.resetLogLocked()
	for _, msg := range normalize.NormalizeAll(page.Messages) {
		if msg.RoomId == "" {
			msg.RoomId = roomId
		}
		s.appendLocked(msg)
	}
	s.next = page.Next
	s.unread[roomId] = 0
	s.mu.Unlock()

	if prev != roomId {
		s.debouncer.Cancel(prev)
		s.tracker.Clear(prev)
	}
	s.notify(Change{Kind: ChangeActive, RoomId: roomId})
	s.notify(Change{Kind: ChangeMessages, RoomId: roomId})
	s.notify(Change{Kind: ChangeUnread, RoomId: roomId})

	s.bind(ctx, gen, roomId)
	return nil
}

// bind binds the connection to roomId if gen is still the latest selection.
func (s *Store) bind(ctx context.Context, gen uint64, roomId types.ID) {
	s.bindMu.Lock()
	defer s.bindMu.Unlock()

	s.mu.Lock()
	current := s.gen == gen
	s.mu.Unlock()
	if !current {
		s.discardStale("bind", roomId)
		return
	}

	if err := s.conn.Bind(ctx, roomId, s.token); err != nil {
		s.logf("bind room %q: %v", roomId, err)
	}
}

// maybeRebind makes a single re-bind attempt after a transport error on the
// active room's binding.
func (s *Store) maybeRebind(ctx context.Context) {
	s.mu.Lock()
	if !s.rebind || s.active == "" {
		s.mu.Unlock()
		return
	}
	s.rebind = false
	roomId, gen := s.active, s.gen
	s.mu.Unlock()

	s.incr(stats.MetricRebinds)
	s.logf("re-binding room %q after transport error", roomId)
	s.bind(ctx, gen, roomId)
}

func (s *Store) discardStale(op string, roomId types.ID) {
	s.incr(stats.MetricStaleResultsDiscarded)
	s.logf("%s %q: discarding stale result", op, roomId)
}

// LeaveRoom closes the binding and clears the active room.
func (s *Store) LeaveRoom() {
	s.mu.Lock()
	s.gen++
	prev := s.active
	s.active = ""
	s.loading = ""
	s.phase = PhaseIdle
	s.rebind = false
	s.resetLogLocked()
	s.mu.Unlock()

	if prev != "" {
		s.debouncer.Cancel(prev)
		s.tracker.Clear(prev)
	}

	s.bindMu.Lock()
	s.conn.Unbind()
	s.bindMu.Unlock()

	s.notify(Change{Kind: ChangeActive, RoomId: prev})
}

// LoadOlder fetches the next page of the active room's history and merges it
// into the log. It returns the number of messages added.
func (s *Store) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	roomId, next, gen := s.active, s.next, s.gen
	s.mu.Unlock()

	if roomId == "" {
		return 0, ErrNoActiveRoom
	}
	if next == "" {
		return 0, nil
	}

	page, err := s.gw.GetMessages(ctx, roomId, next)
	if err != nil {
		return 0, fmt.Errorf("load older messages: %w", err)
	}

	s.mu.Lock()
	if s.gen != gen {
		s.mu.Unlock()
		s.discardStale("load older", roomId)
		return 0, nil
	}
	added := 0
	for _, msg := range normalize.NormalizeAll(page.Messages) {
		if msg.RoomId == "" {
			msg.RoomId = roomId
		}
		if s.appendLocked(msg) {
			added++
		} else {
			s.incr(stats.MetricMessagesDeduplicated)
		}
	}
	s.next = page.Next
	s.mu.Unlock()

	if added > 0 {
		s.notify(Change{Kind: ChangeMessages, RoomId: roomId})
	}
	return added, nil
}

// CreateRoom creates a room on the backend and adds it to the collection.
func (s *Store) CreateRoom(ctx context.Context, params gateway.CreateRoomParams) (types.Room, error) {
	if len(params.ParticipantIds) == 0 {
		return types.Room{}, &ValidationError{Field: "participants", Err: fmt.Errorf("at least one participant is required")}
	}

	room, err := s.gw.CreateRoom(ctx, params)
	if err != nil {
		return types.Room{}, fmt.Errorf("create room: %w", err)
	}

	s.mu.Lock()
	s.upsertRoomLocked(copyRoom(room))
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeRooms, RoomId: room.Id})
	return room, nil
}

// SearchParticipants looks up users by query, leaving out the current user.
func (s *Store) SearchParticipants(ctx context.Context, query string) ([]types.Participant, error) {
	users, err := s.gw.SearchParticipants(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("search participants: %w", err)
	}

	out := users[:0:0]
	for _, u := range users {
		if s.userId != "" && u.Id == s.userId {
			continue
		}
		out = append(out, u)
	}
	return out, nil
}
