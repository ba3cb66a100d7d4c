package typing

import (
	"sync"
	"testing"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/clock"
	"github.com/npezzotti/go-chatroom-client/internal/testutil"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/stretchr/testify/assert"
)

type signal struct {
	roomId types.ID
	typing bool
}

type recorder struct {
	mu      sync.Mutex
	signals []signal
}

func (r *recorder) emit(roomId types.ID, typing bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals = append(r.signals, signal{roomId, typing})
}

func (r *recorder) all() []signal {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]signal(nil), r.signals...)
}

func TestDebouncerBurst(t *testing.T) {
	c := clock.NewFake()
	rec := &recorder{}
	d := NewDebouncer(c, DefaultQuietPeriod, rec.emit, testutil.TestLogger(t))

	for i := 0; i < 10; i++ {
		d.OnActivity("r1")
		c.Advance(100 * time.Millisecond)
	}

	assert.Equal(t, []signal{{"r1", true}}, rec.all(), "expected exactly one typing-start during the burst")
	assert.True(t, d.Armed("r1"), "expected room to stay armed during the burst")

	c.Advance(DefaultQuietPeriod)
	assert.Equal(t, []signal{{"r1", true}, {"r1", false}}, rec.all(), "expected exactly one typing-stop after the quiet period")
	assert.False(t, d.Armed("r1"), "expected room to be disarmed after typing-stop")

	c.Advance(10 * DefaultQuietPeriod)
	assert.Len(t, rec.all(), 2, "expected no further signals")
}

func TestDebouncerNewBurstAfterStop(t *testing.T) {
	c := clock.NewFake()
	rec := &recorder{}
	d := NewDebouncer(c, 0, rec.emit, nil)

	d.OnActivity("r1")
	c.Advance(DefaultQuietPeriod)
	d.OnActivity("r1")
	c.Advance(DefaultQuietPeriod)

	assert.Equal(t, []signal{
		{"r1", true}, {"r1", false},
		{"r1", true}, {"r1", false},
	}, rec.all(), "expected a start/stop pair per burst")
}

func TestDebouncerCancel(t *testing.T) {
	c := clock.NewFake()
	rec := &recorder{}
	d := NewDebouncer(c, DefaultQuietPeriod, rec.emit, nil)

	d.OnActivity("r1")
	d.Cancel("r1")
	c.Advance(2 * DefaultQuietPeriod)

	assert.Equal(t, []signal{{"r1", true}}, rec.all(), "expected cancel to suppress typing-stop")
	assert.False(t, d.Armed("r1"), "expected room to be disarmed")

	// cancelling an idle room is a no-op
	d.Cancel("r2")
}

func TestDebouncerRoomsAreIndependent(t *testing.T) {
	c := clock.NewFake()
	rec := &recorder{}
	d := NewDebouncer(c, DefaultQuietPeriod, rec.emit, nil)

	d.OnActivity("r1")
	c.Advance(400 * time.Millisecond)
	d.OnActivity("r2")
	c.Advance(400 * time.Millisecond)

	assert.Equal(t, []signal{{"r1", true}, {"r2", true}, {"r1", false}}, rec.all(), "expected r1 to stop before r2")

	c.Advance(400 * time.Millisecond)
	assert.Equal(t, signal{"r2", false}, rec.all()[3], "expected r2 to stop after its own quiet period")
}

func TestDebouncerClose(t *testing.T) {
	c := clock.NewFake()
	rec := &recorder{}
	d := NewDebouncer(c, DefaultQuietPeriod, rec.emit, nil)

	d.OnActivity("r1")
	d.OnActivity("r2")
	d.Close()
	c.Advance(time.Second)

	assert.Len(t, rec.all(), 2, "expected only the two typing-start signals")
	assert.Equal(t, 0, c.Pending(), "expected every timer to be disarmed")
}
