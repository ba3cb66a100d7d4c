package transport

import (
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/types"
)

type EventKind string

const (
	EventMessage  EventKind = "message"
	EventTyping   EventKind = "typing"
	EventRead     EventKind = "read"
	EventPresence EventKind = "presence"
	EventError    EventKind = "error"
	EventOpened   EventKind = "opened"
	EventClosed   EventKind = "closed"
)

// Event is delivered to subscribers. Exactly one of the payload pointers is
// set for message, typing, read and presence events; Err is set for errors.
type Event struct {
	Kind      EventKind
	RoomId    types.ID
	BindingId string
	Message   *types.RawMessage
	Typing    *Typing
	Read      *Read
	Presence  *Presence
	Err       error
}

type Typing struct {
	RoomId   types.ID `json:"room_id"`
	UserId   types.ID `json:"user_id"`
	IsTyping bool     `json:"is_typing"`
}

type Read struct {
	RoomId     types.ID   `json:"room_id"`
	UserId     types.ID   `json:"user_id"`
	MessageIds []types.ID `json:"message_ids"`
}

type Presence struct {
	RoomId   types.ID  `json:"room_id"`
	UserId   types.ID  `json:"user_id"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

// serverFrame is the envelope of every inbound push-channel frame.
type serverFrame struct {
	Type       string            `json:"type"`
	Message    *types.RawMessage `json:"message,omitempty"`
	RoomId     types.ID          `json:"room_id,omitempty"`
	UserId     types.ID          `json:"user_id,omitempty"`
	IsTyping   bool              `json:"is_typing,omitempty"`
	MessageIds []types.ID        `json:"message_ids,omitempty"`
	IsOnline   bool              `json:"is_online,omitempty"`
	LastSeen   time.Time         `json:"last_seen,omitempty"`
}

// toEvent maps a frame to an event. Frames without a room id belong to the
// binding's room.
func (f *serverFrame) toEvent(roomId types.ID) (Event, bool) {
	if f.RoomId != "" {
		roomId = f.RoomId
	}

	ev := Event{RoomId: roomId}
	switch EventKind(f.Type) {
	case EventMessage:
		if f.Message == nil {
			return Event{}, false
		}
		msg := *f.Message
		if msg.RoomId == "" {
			msg.RoomId = roomId
		}
		ev.Kind = EventMessage
		ev.RoomId = msg.RoomId
		ev.Message = &msg
	case EventTyping:
		ev.Kind = EventTyping
		ev.Typing = &Typing{RoomId: roomId, UserId: f.UserId, IsTyping: f.IsTyping}
	case EventRead:
		ev.Kind = EventRead
		ev.Read = &Read{RoomId: roomId, UserId: f.UserId, MessageIds: f.MessageIds}
	case EventPresence:
		ev.Kind = EventPresence
		ev.Presence = &Presence{RoomId: roomId, UserId: f.UserId, IsOnline: f.IsOnline, LastSeen: f.LastSeen}
	default:
		return Event{}, false
	}

	return ev, true
}

// Payload is an outbound push-channel frame.
type Payload struct {
	Type       string     `json:"type"`
	Message    string     `json:"message,omitempty"`
	FileURL    string     `json:"file_url,omitempty"`
	IsTyping   *bool      `json:"is_typing,omitempty"`
	MessageIds []types.ID `json:"message_ids,omitempty"`
}

func MessagePayload(body, fileURL string) Payload {
	return Payload{
		Type:    string(EventMessage),
		Message: body,
		FileURL: fileURL,
	}
}

func TypingPayload(isTyping bool) Payload {
	return Payload{
		Type:     string(EventTyping),
		IsTyping: &isTyping,
	}
}

func ReadPayload(ids []types.ID) Payload {
	return Payload{
		Type:       string(EventRead),
		MessageIds: ids,
	}
}
