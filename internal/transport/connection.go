package transport

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/npezzotti/go-chatroom-client/internal/stats"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendQueueSize  = 64
)

type State string

const (
	StateIdle       State = "idle"
	StateConnecting State = "connecting"
	StateOpen       State = "open"
	StateClosing    State = "closing"
	StateErrored    State = "errored"
)

// URLBuilder returns the push-channel address for a room binding.
type URLBuilder func(roomId types.ID, token string) string

type Handler func(Event)

// Subscription identifies a registered handler for Unsubscribe.
type Subscription struct {
	kind EventKind
	id   uint64
}

type subscriber struct {
	id      uint64
	handler Handler
}

// Connection owns at most one push-channel binding at a time. Handlers run
// on the goroutine that produced the event and must not call Bind or Unbind.
type Connection struct {
	log    *log.Logger
	dialer *websocket.Dialer
	url    URLBuilder
	stats  stats.StatsProvider

	// opMu serializes Bind and Unbind
	opMu sync.Mutex

	mu    sync.Mutex
	state State
	cur   *binding
	last  *binding

	subsMu    sync.RWMutex
	subs      map[EventKind][]subscriber
	nextSubId uint64
}

type binding struct {
	id     string
	roomId types.ID
	conn   *websocket.Conn
	send   chan []byte
	stop   chan struct{}
	// done is closed once both pumps have exited and every event of the
	// binding has been emitted
	done chan struct{}
	wg   sync.WaitGroup
}

func NewConnection(dialer *websocket.Dialer, url URLBuilder, l *log.Logger, st stats.StatsProvider) *Connection {
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	if st != nil {
		st.RegisterMetric(stats.MetricBinds)
		st.RegisterMetric(stats.MetricTransportErrors)
		st.RegisterMetric(stats.MetricFramesReceived)
	}

	return &Connection{
		log:    l,
		dialer: dialer,
		url:    url,
		stats:  st,
		state:  StateIdle,
		subs:   make(map[EventKind][]subscriber),
	}
}

func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// RoomId returns the room of the open binding, or "" when not bound.
func (c *Connection) RoomId() types.ID {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cur == nil {
		return ""
	}
	return c.cur.roomId
}

// Subscribe registers h for events of the given kind. Handlers of one kind
// are invoked in registration order.
func (c *Connection) Subscribe(kind EventKind, h Handler) Subscription {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	c.nextSubId++
	c.subs[kind] = append(c.subs[kind], subscriber{id: c.nextSubId, handler: h})
	return Subscription{kind: kind, id: c.nextSubId}
}

func (c *Connection) Unsubscribe(sub Subscription) {
	c.subsMu.Lock()
	defer c.subsMu.Unlock()

	subs := c.subs[sub.kind]
	for i, s := range subs {
		if s.id == sub.id {
			c.subs[sub.kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Bind closes any existing binding and then opens a binding to roomId,
// carrying token as the credential. The old binding's closed event is
// emitted before the new binding's opened event.
func (c *Connection) Bind(ctx context.Context, roomId types.ID, token string) error {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.closeCurrent()
	c.setState(StateConnecting)

	addr := c.url(roomId, token)
	c.log.Printf("binding to room %q", roomId)
	conn, resp, err := c.dialer.DialContext(ctx, addr, nil)
	if err != nil {
		tErr := &TransportError{RoomId: roomId, Op: "dial", Err: err}
		if resp != nil {
			tErr.StatusCode = resp.StatusCode
		}
		c.fail(roomId, "", tErr)
		return tErr
	}

	b := &binding{
		id:     uuid.NewString(),
		roomId: roomId,
		conn:   conn,
		send:   make(chan []byte, sendQueueSize),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	c.mu.Lock()
	c.cur = b
	c.last = b
	c.state = StateOpen
	c.mu.Unlock()

	c.incr(stats.MetricBinds)
	c.log.Printf("binding %s open for room %q", b.id, roomId)
	c.emit(Event{Kind: EventOpened, RoomId: roomId, BindingId: b.id})

	b.wg.Add(2)
	go c.write(b)
	go c.read(b)
	go func() {
		b.wg.Wait()
		close(b.done)
	}()

	return nil
}

// Unbind closes the current binding. It is a no-op when idle.
func (c *Connection) Unbind() {
	c.opMu.Lock()
	defer c.opMu.Unlock()

	c.closeCurrent()
}

// Send transmits p on the open binding.
func (c *Connection) Send(p Payload) error {
	c.mu.Lock()
	b := c.cur
	open := c.state == StateOpen
	c.mu.Unlock()

	if !open || b == nil {
		return ErrNotConnected
	}

	data, err := json.Marshal(p)
	if err != nil {
		return err
	}

	select {
	case b.send <- data:
	default:
		c.log.Printf("send queue full for binding %s", b.id)
		return ErrSendQueueFull
	}

	return nil
}

// closeCurrent tears down the binding we own, or waits for a binding that is
// already shutting down on its own after a transport error.
func (c *Connection) closeCurrent() {
	c.mu.Lock()
	b := c.cur
	last := c.last
	if b != nil {
		c.cur = nil
		c.state = StateClosing
	}
	c.mu.Unlock()

	if b == nil {
		if last != nil {
			<-last.done
		}
		return
	}

	close(b.stop)
	<-b.done

	c.setState(StateIdle)
	c.log.Printf("binding %s closed for room %q", b.id, b.roomId)
	c.emit(Event{Kind: EventClosed, RoomId: b.roomId, BindingId: b.id})
}

// fail reports a transport error: Errored, error event, Idle, closed event.
func (c *Connection) fail(roomId types.ID, bindingId string, err error) {
	c.incr(stats.MetricTransportErrors)
	c.log.Printf("transport error: %v", err)

	c.setState(StateErrored)
	c.emit(Event{Kind: EventError, RoomId: roomId, BindingId: bindingId, Err: err})

	c.mu.Lock()
	if c.state == StateErrored {
		c.state = StateIdle
	}
	c.mu.Unlock()
	c.emit(Event{Kind: EventClosed, RoomId: roomId, BindingId: bindingId})
}

func (c *Connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Connection) emit(ev Event) {
	c.subsMu.RLock()
	subs := append([]subscriber(nil), c.subs[ev.Kind]...)
	c.subsMu.RUnlock()

	for _, s := range subs {
		s.handler(ev)
	}
}

func (c *Connection) incr(name string) {
	if c.stats != nil {
		c.stats.Incr(name)
	}
}

func (c *Connection) write(b *binding) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		b.conn.Close()
		b.wg.Done()
	}()

	for {
		select {
		case data := <-b.send:
			if !c.sendFrame(b, websocket.TextMessage, data) {
				return
			}
		case <-ticker.C:
			if !c.sendFrame(b, websocket.PingMessage, nil) {
				return
			}
		case <-b.stop:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			b.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
			return
		}
	}
}

func (c *Connection) sendFrame(b *binding, msgType int, data []byte) bool {
	b.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := b.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %v", err)
		}
		return false
	}

	return true
}

func (c *Connection) read(b *binding) {
	defer b.wg.Done()

	b.conn.SetReadLimit(maxMessageSize)
	b.conn.SetReadDeadline(time.Now().Add(pongWait))
	b.conn.SetPongHandler(func(string) error { b.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })

	for {
		_, raw, err := b.conn.ReadMessage()
		if err != nil {
			c.readFailed(b, err)
			return
		}

		c.incr(stats.MetricFramesReceived)
		var frame serverFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.log.Printf("error parsing frame on binding %s: %v", b.id, err)
			continue
		}

		ev, ok := frame.toEvent(b.roomId)
		if !ok {
			c.log.Printf("ignoring frame of type %q on binding %s", frame.Type, b.id)
			continue
		}
		ev.BindingId = b.id
		c.emit(ev)
	}
}

// readFailed handles the end of the read loop. If the binding is still
// current the failure was not requested and is reported as a transport error.
func (c *Connection) readFailed(b *binding, err error) {
	c.mu.Lock()
	owned := c.cur == b
	if owned {
		c.cur = nil
	}
	c.mu.Unlock()

	if !owned {
		// closed by closeCurrent, which emits the closed event
		return
	}

	close(b.stop)
	c.fail(b.roomId, b.id, &TransportError{RoomId: b.roomId, Op: "read", Err: err})
}
