// Package typing turns local keystroke activity into start/stop typing
// signals and tracks which remote participants are currently typing.
package typing

import (
	"log"
	"sync"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/clock"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

const (
	// DefaultQuietPeriod is how long local activity must pause before a
	// typing-stop signal is emitted.
	DefaultQuietPeriod = 800 * time.Millisecond
	// RemoteTypingTimeout expires a remote typing entry that was never
	// refreshed or explicitly stopped.
	RemoteTypingTimeout = 3 * time.Second
)

// Emitter receives typing-start (true) and typing-stop (false) signals.
type Emitter func(roomId types.ID, typing bool)

type armedRoom struct {
	timer        clock.Timer
	lastActivity time.Time
}

type Debouncer struct {
	mu     sync.Mutex
	clock  clock.Clock
	quiet  time.Duration
	emit   Emitter
	log    *log.Logger
	active map[types.ID]*armedRoom
}

func NewDebouncer(c clock.Clock, quiet time.Duration, emit Emitter, l *log.Logger) *Debouncer {
	if quiet <= 0 {
		quiet = DefaultQuietPeriod
	}
	return &Debouncer{
		clock:  c,
		quiet:  quiet,
		emit:   emit,
		log:    l,
		active: make(map[types.ID]*armedRoom),
	}
}

// OnActivity records keystroke activity in a room. The first call of a burst
// emits typing-start; later calls only push the quiet-period deadline out.
func (d *Debouncer) OnActivity(roomId types.ID) {
	d.mu.Lock()
	now := d.clock.Now()
	if a, ok := d.active[roomId]; ok {
		a.lastActivity = now
		a.timer.Reset(d.quiet)
		d.mu.Unlock()
		return
	}

	a := &armedRoom{lastActivity: now}
	a.timer = d.clock.AfterFunc(d.quiet, func() { d.fire(roomId, a) })
	d.active[roomId] = a
	d.mu.Unlock()

	d.emit(roomId, true)
}

// Cancel disarms the room without emitting typing-stop.
func (d *Debouncer) Cancel(roomId types.ID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if a, ok := d.active[roomId]; ok {
		a.timer.Stop()
		delete(d.active, roomId)
	}
}

// Armed reports whether a typing-start is outstanding for the room.
func (d *Debouncer) Armed(roomId types.ID) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	_, ok := d.active[roomId]
	return ok
}

// Close disarms every room without emitting.
func (d *Debouncer) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	for id, a := range d.active {
		a.timer.Stop()
		delete(d.active, id)
	}
}

func (d *Debouncer) fire(roomId types.ID, a *armedRoom) {
	d.mu.Lock()
	if d.active[roomId] != a {
		// cancelled or replaced
		d.mu.Unlock()
		return
	}

	// a real timer may fire concurrently with a Reset from OnActivity
	if idle := d.clock.Now().Sub(a.lastActivity); idle < d.quiet {
		a.timer.Reset(d.quiet - idle)
		d.mu.Unlock()
		return
	}

	delete(d.active, roomId)
	d.mu.Unlock()

	if d.log != nil {
		d.log.Printf("typing stopped in room %q", roomId)
	}
	d.emit(roomId, false)
}
