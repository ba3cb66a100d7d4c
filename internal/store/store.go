// Package store keeps the local view of the user's rooms and the active
// room's message log synchronized with the history API and the push channel.
package store

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/clock"
	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/stats"
	"github.com/npezzotti/go-chatroom-client/internal/transport"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/npezzotti/go-chatroom-client/internal/typing"
)

// Conn is the push-channel connection the store binds to the active room.
type Conn interface {
	Bind(ctx context.Context, roomId types.ID, token string) error
	Unbind()
	Send(p transport.Payload) error
	State() transport.State
	Subscribe(kind transport.EventKind, h transport.Handler) transport.Subscription
	Unsubscribe(sub transport.Subscription)
}

var _ Conn = (*transport.Connection)(nil)

type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
)

type ChangeKind string

const (
	ChangeRooms    ChangeKind = "rooms"
	ChangeActive   ChangeKind = "active"
	ChangeMessages ChangeKind = "messages"
	ChangeUnread   ChangeKind = "unread"
	ChangeTyping   ChangeKind = "typing"
	ChangeBinding  ChangeKind = "binding"
)

// Change tells a listener which part of the state was updated.
type Change struct {
	Kind   ChangeKind
	RoomId types.ID
}

type Options struct {
	Gateway gateway.Gateway
	Conn    Conn
	Token   string
	// UserId identifies the authenticated user for IsOwn and for filtering
	// our own typing echoes.
	UserId      types.ID
	Clock       clock.Clock
	QuietPeriod time.Duration
	Stats       stats.StatsProvider
	Log         *log.Logger
}

// Store is the single writer of synchronized client state. Its mutex is
// never held across a Gateway or Conn call.
type Store struct {
	log    *log.Logger
	gw     gateway.Gateway
	conn   Conn
	token  string
	userId types.ID
	clock  clock.Clock
	stats  stats.StatsProvider

	debouncer *typing.Debouncer
	tracker   *typing.Tracker
	subs      []transport.Subscription

	// bindMu makes "check generation, then bind" atomic so the latest
	// selection owns the binding.
	bindMu sync.Mutex

	mu       sync.Mutex
	gen      uint64
	phase    Phase
	loading  types.ID
	active   types.ID
	rooms    []types.Room
	messages []types.Message
	seen     map[types.ID]struct{}
	next     string
	unread   map[types.ID]int
	rebind   bool

	listenersMu sync.RWMutex
	listeners   []func(Change)
}

func New(opts Options) *Store {
	c := opts.Clock
	if c == nil {
		c = clock.New()
	}

	s := &Store{
		log:    opts.Log,
		gw:     opts.Gateway,
		conn:   opts.Conn,
		token:  opts.Token,
		userId: opts.UserId,
		clock:  c,
		stats:  opts.Stats,
		phase:  PhaseIdle,
		seen:   make(map[types.ID]struct{}),
		unread: make(map[types.ID]int),
	}
	s.debouncer = typing.NewDebouncer(c, opts.QuietPeriod, s.emitTyping, opts.Log)
	s.tracker = typing.NewTracker(c, typing.RemoteTypingTimeout, func(roomId types.ID) {
		s.notify(Change{Kind: ChangeTyping, RoomId: roomId})
	})

	if s.stats != nil {
		for _, name := range []string{
			stats.MetricMessagesReceived,
			stats.MetricMessagesDeduplicated,
			stats.MetricStaleResultsDiscarded,
			stats.MetricUnreadIncrements,
			stats.MetricRebinds,
			stats.MetricSendFailures,
		} {
			s.stats.RegisterMetric(name)
		}
	}

	s.subs = []transport.Subscription{
		s.conn.Subscribe(transport.EventMessage, s.onLiveMessage),
		s.conn.Subscribe(transport.EventTyping, s.onTyping),
		s.conn.Subscribe(transport.EventRead, s.onRead),
		s.conn.Subscribe(transport.EventPresence, s.onPresence),
		s.conn.Subscribe(transport.EventError, s.onTransportError),
		s.conn.Subscribe(transport.EventOpened, s.onBindingChange),
		s.conn.Subscribe(transport.EventClosed, s.onBindingChange),
	}

	return s
}

// Close detaches the store from the connection and closes the binding.
func (s *Store) Close() {
	for _, sub := range s.subs {
		s.conn.Unsubscribe(sub)
	}
	s.subs = nil
	s.debouncer.Close()

	s.bindMu.Lock()
	s.conn.Unbind()
	s.bindMu.Unlock()
}

// OnChange registers a listener called after every state change. Listeners
// run without the store lock held and may call Snapshot.
func (s *Store) OnChange(fn func(Change)) {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// IsOwn reports whether msg was sent by the authenticated user.
func (s *Store) IsOwn(msg types.Message) bool {
	return s.userId != "" && msg.Sender.Id == s.userId
}

func (s *Store) UserId() types.ID {
	return s.userId
}

type Snapshot struct {
	Phase      Phase            `json:"phase"`
	ActiveRoom types.ID         `json:"active_room,omitempty"`
	Loading    types.ID         `json:"loading,omitempty"`
	Binding    transport.State  `json:"binding"`
	Rooms      []types.Room     `json:"rooms"`
	Messages   []types.Message  `json:"messages"`
	Unread     map[types.ID]int `json:"unread"`
	Typing     []types.ID       `json:"typing"`
	HasOlder   bool             `json:"has_older"`
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() Snapshot {
	binding := s.conn.State()

	s.mu.Lock()
	snap := Snapshot{
		Phase:      s.phase,
		ActiveRoom: s.active,
		Binding:    binding,
		Rooms:      make([]types.Room, len(s.rooms)),
		Messages:   make([]types.Message, len(s.messages)),
		Unread:     make(map[types.ID]int, len(s.unread)),
		HasOlder:   s.next != "",
	}
	if s.phase == PhaseLoading {
		snap.Loading = s.loading
	}
	for i, r := range s.rooms {
		snap.Rooms[i] = copyRoom(r)
	}
	copy(snap.Messages, s.messages)
	for id, n := range s.unread {
		if n > 0 {
			snap.Unread[id] = n
		}
	}
	active := s.active
	s.mu.Unlock()

	snap.Typing = []types.ID{}
	if active != "" {
		snap.Typing = s.tracker.Typing(active)
	}
	return snap
}

// Unread returns the unread count of a room.
func (s *Store) Unread(roomId types.ID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unread[roomId]
}

func (s *Store) notify(ch Change) {
	s.listenersMu.RLock()
	listeners := append([]func(Change){}, s.listeners...)
	s.listenersMu.RUnlock()

	for _, fn := range listeners {
		fn(ch)
	}
}

func (s *Store) incr(name string) {
	if s.stats != nil {
		s.stats.Incr(name)
	}
}

func (s *Store) logf(format string, v ...any) {
	if s.log != nil {
		s.log.Printf(format, v...)
	}
}

// appendLocked inserts msg into the active log in timestamp order unless a
// message with the same id is already present.
func (s *Store) appendLocked(msg types.Message) bool {
	if _, ok := s.seen[msg.Id]; ok {
		return false
	}

	i := sort.Search(len(s.messages), func(i int) bool {
		return s.messages[i].CreatedAt.After(msg.CreatedAt)
	})
	s.messages = append(s.messages, types.Message{})
	copy(s.messages[i+1:], s.messages[i:])
	s.messages[i] = msg
	s.seen[msg.Id] = struct{}{}
	return true
}

func (s *Store) removeLocked(id types.ID) bool {
	if _, ok := s.seen[id]; !ok {
		return false
	}
	delete(s.seen, id)

	for i := range s.messages {
		if s.messages[i].Id == id {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
			return true
		}
	}
	return false
}

func (s *Store) resetLogLocked() {
	s.messages = nil
	s.seen = make(map[types.ID]struct{})
	s.next = ""
}

func (s *Store) roomLocked(id types.ID) *types.Room {
	for i := range s.rooms {
		if s.rooms[i].Id == id {
			return &s.rooms[i]
		}
	}
	return nil
}

// upsertRoomLocked replaces the room with the same id or adds it to the front
// of the collection. A known preview is kept if the new copy has none.
func (s *Store) upsertRoomLocked(room types.Room) {
	if r := s.roomLocked(room.Id); r != nil {
		if room.LastMessage == nil {
			room.LastMessage = r.LastMessage
		}
		*r = room
		return
	}
	s.rooms = append([]types.Room{room}, s.rooms...)
}

func (s *Store) updatePreviewLocked(msg types.Message) {
	r := s.roomLocked(msg.RoomId)
	if r == nil {
		return
	}
	if r.LastMessage != nil && r.LastMessage.CreatedAt.After(msg.CreatedAt) {
		return
	}
	r.LastMessage = msg.Preview()
	r.UpdatedAt = msg.CreatedAt
}

func copyRoom(r types.Room) types.Room {
	r.Participants = append([]types.Participant(nil), r.Participants...)
	if r.LastMessage != nil {
		p := *r.LastMessage
		r.LastMessage = &p
	}
	return r
}
