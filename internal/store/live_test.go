package store

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/transport"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/npezzotti/go-chatroom-client/internal/typing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

func TestLiveMessageDedup(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.expectRoom("r1",
		rawMessage("m1", "r1", "7", 1),
		rawMessage("m2", "r1", "7", 2),
	)
	assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")

	ts.conn.pushMessage(rawMessage("m2", "r1", "7", 2))
	ts.conn.pushMessage(rawMessage("m3", "r1", "7", 3))

	snap := ts.Snapshot()
	assert.Equal(t, []types.ID{"m1", "m2", "m3"}, messageIds(snap.Messages), "expected no duplicate m2")
	assert.Equal(t, "message m3", snap.Rooms[0].LastMessage.Content, "expected preview of the latest message")
	assert.Zero(t, ts.Unread("r1"), "expected no unread for the active room")
}

func TestLiveDuplicateMergesReadBy(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.expectRoom("r1", rawMessage("m1", "r1", testUserId, 1))
	assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")

	var changes int
	ts.OnChange(func(ch Change) {
		if ch.Kind == ChangeMessages {
			changes++
		}
	})

	dup := rawMessage("m1", "r1", testUserId, 1)
	dup.ReadBy = []types.ID{"8"}
	ts.conn.pushMessage(dup)

	dup.ReadBy = []types.ID{"8", "9"}
	ts.conn.pushMessage(dup)
	ts.conn.pushMessage(dup)

	snap := ts.Snapshot()
	if assert.Len(t, snap.Messages, 1, "expected a single copy of m1") {
		assert.Equal(t, []types.ID{"8", "9"}, snap.Messages[0].ReadBy, "expected read_by merged from duplicates")
	}
	assert.Equal(t, 2, changes, "expected a change only when read_by grew")
}

func TestLiveMessageOverlapProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 50; round++ {
		t.Run(fmt.Sprintf("round %d", round), func(t *testing.T) {
			ts := newTestStore(t, nil)

			n := 2 + rng.Intn(10)
			all := make([]types.RawMessage, n)
			for i := range all {
				all[i] = rawMessage(fmt.Sprintf("m%02d", i), "r1", "7", rng.Intn(5))
			}

			var history []types.RawMessage
			for _, m := range all {
				if rng.Intn(2) == 0 {
					history = append(history, m)
				}
			}
			ts.expectRoom("r1", history...)
			assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")

			for i := 0; i < 2*n; i++ {
				ts.conn.pushMessage(all[rng.Intn(n)])
			}
			for _, m := range all {
				ts.conn.pushMessage(m)
			}

			msgs := ts.Snapshot().Messages
			assert.Len(t, msgs, n, "expected each message exactly once")

			seen := make(map[types.ID]bool)
			for _, m := range msgs {
				assert.False(t, seen[m.Id], "duplicate message %s", m.Id)
				seen[m.Id] = true
			}
			assert.True(t, sort.SliceIsSorted(msgs, func(i, j int) bool {
				return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
			}), "expected log ordered by timestamp")
		})
	}
}

func TestUnreadCounters(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.gw.On("ListRooms", mock.Anything).Return([]types.Room{{Id: "r1"}, {Id: "r2"}}, nil)
	_, err := ts.ListRooms(context.Background())
	assert.NoError(t, err, "expected rooms to load")

	ts.expectRoom("r1")
	ts.expectRoom("r2", rawMessage("x1", "r2", "7", 1), rawMessage("x2", "r2", "7", 2))
	assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")

	var changes []Change
	ts.OnChange(func(ch Change) { changes = append(changes, ch) })

	ts.conn.pushMessage(rawMessage("x1", "r2", "7", 1))
	ts.conn.pushMessage(rawMessage("x2", "r2", "7", 2))
	ts.conn.pushMessage(rawMessage("x3", "r2", testUserId, 3))
	ts.conn.pushMessage(rawMessage("m1", "r1", "7", 4))

	snap := ts.Snapshot()
	assert.Equal(t, map[types.ID]int{"r2": 2}, snap.Unread, "expected unread only for the inactive room")
	assert.Equal(t, []types.ID{"m1"}, messageIds(snap.Messages), "expected other rooms not to touch the active log")
	assert.Equal(t, "message x3", snap.Rooms[1].LastMessage.Content, "expected preview of the inactive room to update")
	assert.Contains(t, changes, Change{Kind: ChangeUnread, RoomId: "r2"}, "expected unread change notification")

	assert.NoError(t, ts.SelectRoom(context.Background(), "r2"), "expected select to succeed")
	assert.Zero(t, ts.Unread("r2"), "expected unread to reset on activation")
	assert.Empty(t, ts.Snapshot().Unread, "expected no unread rooms")
}

func TestRemoteTyping(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.expectRoom("r1")
	assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")

	typingEvent := func(userId types.ID, isTyping bool) transport.Event {
		return transport.Event{
			Kind:   transport.EventTyping,
			RoomId: "r1",
			Typing: &transport.Typing{RoomId: "r1", UserId: userId, IsTyping: isTyping},
		}
	}

	ts.conn.emit(typingEvent("7", true))
	ts.conn.emit(typingEvent("8", true))
	ts.conn.emit(typingEvent(testUserId, true))
	assert.Equal(t, []types.ID{"7", "8"}, ts.Snapshot().Typing, "expected remote typists without our own echo")

	ts.conn.emit(typingEvent("8", false))
	assert.Equal(t, []types.ID{"7"}, ts.Snapshot().Typing, "expected explicit stop to remove typist")

	ts.clock.Advance(typing.RemoteTypingTimeout - time.Millisecond)
	ts.conn.emit(typingEvent("7", true))
	ts.clock.Advance(typing.RemoteTypingTimeout - time.Millisecond)
	assert.Equal(t, []types.ID{"7"}, ts.Snapshot().Typing, "expected refresh to extend the entry")

	ts.clock.Advance(time.Millisecond)
	assert.Empty(t, ts.Snapshot().Typing, "expected entry to expire")

	ts.conn.emit(typingEvent("7", true))
	ts.conn.pushMessage(rawMessage("m1", "r1", "7", 1))
	assert.Empty(t, ts.Snapshot().Typing, "expected a message to end the typing indicator")
}

func TestReadReceipts(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.expectRoom("r1", rawMessage("m1", "r1", testUserId, 1), rawMessage("m2", "r1", testUserId, 2))
	assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")

	read := func(roomId types.ID, ids ...types.ID) {
		ts.conn.emit(transport.Event{
			Kind:   transport.EventRead,
			RoomId: roomId,
			Read:   &transport.Read{RoomId: roomId, UserId: "7", MessageIds: ids},
		})
	}
	read("r1", "m1")
	read("r1", "m1")
	read("r2", "m2")

	msgs := ts.Snapshot().Messages
	assert.Equal(t, []types.ID{"7"}, msgs[0].ReadBy, "expected reader recorded once")
	assert.Empty(t, msgs[1].ReadBy, "expected receipts for other rooms to be ignored")
}

func TestPresence(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.gw.On("ListRooms", mock.Anything).Return([]types.Room{
		{Id: "r1", Participants: []types.Participant{{Id: "7", Username: "bob"}}},
		{Id: "r2", IsGroup: true, Participants: []types.Participant{{Id: "8"}, {Id: "7", Username: "bob"}}},
	}, nil)
	_, err := ts.ListRooms(context.Background())
	assert.NoError(t, err, "expected rooms to load")

	seen := time.Date(2024, 3, 1, 13, 0, 0, 0, time.UTC)
	ts.conn.emit(transport.Event{
		Kind:     transport.EventPresence,
		RoomId:   "r1",
		Presence: &transport.Presence{RoomId: "r1", UserId: "7", IsOnline: true, LastSeen: seen},
	})

	rooms := ts.Snapshot().Rooms
	assert.True(t, rooms[0].Participants[0].IsOnline, "expected participant online in r1")
	assert.True(t, rooms[1].Participants[1].IsOnline, "expected participant online in r2")
	assert.Equal(t, seen, rooms[1].Participants[1].LastSeen, "expected last seen to update")
	assert.False(t, rooms[1].Participants[0].IsOnline, "expected other participants untouched")
}

func TestBindingChangeNotifications(t *testing.T) {
	ts := newTestStore(t, nil)
	ts.expectRoom("r1")

	var changes []Change
	ts.OnChange(func(ch Change) {
		if ch.Kind == ChangeBinding {
			changes = append(changes, ch)
		}
	})

	assert.NoError(t, ts.SelectRoom(context.Background(), "r1"), "expected select to succeed")
	ts.conn.fail("r1")

	assert.Equal(t, []Change{
		{Kind: ChangeBinding, RoomId: "r1"},
		{Kind: ChangeBinding, RoomId: "r1"},
		{Kind: ChangeBinding, RoomId: "r1"},
	}, changes, "expected opened, error and closed notifications")
}
