package typing

import (
	"testing"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/clock"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/stretchr/testify/assert"
)

func TestTrackerSetAndExpire(t *testing.T) {
	c := clock.NewFake()
	var changes []types.ID
	tr := NewTracker(c, time.Second, func(roomId types.ID) { changes = append(changes, roomId) })

	tr.Set("r1", "u2", true)
	tr.Set("r1", "u1", true)
	assert.Equal(t, []types.ID{"u1", "u2"}, tr.Typing("r1"), "expected both users typing")

	c.Advance(600 * time.Millisecond)
	tr.Set("r1", "u1", true) // refresh
	c.Advance(600 * time.Millisecond)
	assert.Equal(t, []types.ID{"u1"}, tr.Typing("r1"), "expected u2 to expire and u1 to be refreshed")

	c.Advance(time.Second)
	assert.Empty(t, tr.Typing("r1"), "expected u1 to expire")
	assert.Equal(t, []types.ID{"r1", "r1", "r1", "r1"}, changes, "expected a change per add and expiry")
}

func TestTrackerStop(t *testing.T) {
	c := clock.NewFake()
	tr := NewTracker(c, 0, nil)

	tr.Set("r1", "u1", true)
	tr.Set("r1", "u1", false)
	assert.Empty(t, tr.Typing("r1"), "expected explicit stop to remove the entry")
	assert.Equal(t, 0, c.Pending(), "expected expiry timer to be stopped")

	// stop for an unknown user is ignored
	tr.Set("r1", "u9", false)
}

func TestTrackerClear(t *testing.T) {
	c := clock.NewFake()
	changes := 0
	tr := NewTracker(c, time.Second, func(types.ID) { changes++ })

	tr.Set("r1", "u1", true)
	tr.Set("r2", "u1", true)
	tr.Clear("r1")

	assert.Empty(t, tr.Typing("r1"), "expected r1 to be cleared")
	assert.Equal(t, []types.ID{"u1"}, tr.Typing("r2"), "expected r2 to be untouched")
	assert.Equal(t, 3, changes, "expected clear to notify once")

	tr.Clear("r1")
	assert.Equal(t, 3, changes, "expected clearing an empty room not to notify")
}
