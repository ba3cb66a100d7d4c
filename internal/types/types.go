package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ID is a server-assigned identifier. The backend emits numeric primary keys
// in some payloads and strings in others, so both decode into an ID.
type ID string

func (id *ID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("decode id: %w", err)
		}
		*id = ID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("decode id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string {
	return string(id)
}

// IDFromInt formats a numeric id.
func IDFromInt(n int) ID {
	return ID(strconv.Itoa(n))
}

type RoomKind string

const (
	RoomDirect RoomKind = "direct"
	RoomGroup  RoomKind = "group"
)

type Participant struct {
	Id       ID        `json:"id"`
	Username string    `json:"username"`
	Avatar   string    `json:"avatar,omitempty"`
	IsOnline bool      `json:"is_online"`
	LastSeen time.Time `json:"last_seen,omitempty"`
}

type Preview struct {
	Content    string    `json:"content"`
	SenderName string    `json:"sender_name,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

type Room struct {
	Id           ID            `json:"id"`
	Name         string        `json:"name,omitempty"`
	IsGroup      bool          `json:"is_group"`
	Participants []Participant `json:"participants"`
	LastMessage  *Preview      `json:"last_message,omitempty"`
	UpdatedAt    time.Time     `json:"updated_at,omitempty"`
}

func (r Room) Kind() RoomKind {
	if r.IsGroup {
		return RoomGroup
	}
	return RoomDirect
}

// Participant returns the participant with the given id, if present.
func (r *Room) Participant(id ID) (*Participant, bool) {
	for i := range r.Participants {
		if r.Participants[i].Id == id {
			return &r.Participants[i], true
		}
	}
	return nil, false
}

type Sender struct {
	Id     ID     `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// UnmarshalJSON accepts the "username" spelling used by some endpoints.
func (s *Sender) UnmarshalJSON(data []byte) error {
	var aux struct {
		Id       ID     `json:"id"`
		Name     string `json:"name"`
		Username string `json:"username"`
		Avatar   string `json:"avatar"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	s.Id = aux.Id
	s.Name = aux.Name
	if s.Name == "" {
		s.Name = aux.Username
	}
	s.Avatar = aux.Avatar
	return nil
}

type AttachmentKind string

const (
	AttachmentImage AttachmentKind = "image"
	AttachmentVideo AttachmentKind = "video"
	AttachmentAudio AttachmentKind = "audio"
	AttachmentFile  AttachmentKind = "file"
)

type Attachment struct {
	URL  string         `json:"url"`
	Kind AttachmentKind `json:"kind,omitempty"`
	Name string         `json:"name,omitempty"`
	Size int64          `json:"size,omitempty"`
}

// Message is the canonical message shape. Sender is always an object.
type Message struct {
	Id         ID          `json:"id"`
	RoomId     ID          `json:"room"`
	Sender     Sender      `json:"sender"`
	Content    string      `json:"content,omitempty"`
	Attachment *Attachment `json:"attachment,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
	ReadBy     []ID        `json:"read_by,omitempty"`
	// Pending is set on optimistic entries that still carry a client-temporary id.
	Pending bool `json:"pending,omitempty"`
}

// Preview builds the denormalized room preview for m.
func (m Message) Preview() *Preview {
	content := m.Content
	if content == "" && m.Attachment != nil {
		content = m.Attachment.Name
	}
	return &Preview{
		Content:    content,
		SenderName: m.Sender.Name,
		CreatedAt:  m.CreatedAt,
	}
}

// RawMessage is a message payload as delivered by either channel. Sender may
// be a bare identifier or an embedded object.
type RawMessage struct {
	Id         ID              `json:"id"`
	RoomId     ID              `json:"room"`
	Sender     json.RawMessage `json:"sender,omitempty"`
	SenderName string          `json:"sender_name,omitempty"`
	Content    string          `json:"content,omitempty"`
	Attachment *Attachment     `json:"attachment,omitempty"`
	FileURL    string          `json:"file_url,omitempty"`
	FileType   string          `json:"file_type,omitempty"`
	FileName   string          `json:"file_name,omitempty"`
	FileSize   int64           `json:"file_size,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
	ReadBy     []ID            `json:"read_by,omitempty"`
	Pending    bool            `json:"pending,omitempty"`
}

// Page is one page of message history. Next is empty on the last page.
type Page struct {
	Messages []RawMessage
	Count    int
	Next     string
}
