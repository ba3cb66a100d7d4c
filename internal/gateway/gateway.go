// Package gateway is the pull side of the client: room and history fetches
// and message sends over the backend's REST API.
package gateway

import (
	"context"
	"io"

	"github.com/npezzotti/go-chatroom-client/internal/types"
)

type Gateway interface {
	ListRooms(ctx context.Context) ([]types.Room, error)
	GetRoom(ctx context.Context, roomId types.ID) (types.Room, error)
	// GetMessages fetches a page of history. An empty next requests the
	// first page; otherwise it is the Next link of the previous page.
	GetMessages(ctx context.Context, roomId types.ID, next string) (types.Page, error)
	SendMessage(ctx context.Context, roomId types.ID, content string) (types.RawMessage, error)
	UploadMessage(ctx context.Context, roomId types.ID, content string, file Upload) (types.RawMessage, error)
	MarkRead(ctx context.Context, roomId types.ID, messageIds []types.ID) error
	SearchParticipants(ctx context.Context, query string) ([]types.Participant, error)
	CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error)
}

// Upload is an attachment to send with a message.
type Upload struct {
	Name        string
	ContentType string
	Body        io.Reader
}

type CreateRoomParams struct {
	ParticipantIds []types.ID `json:"participant_ids"`
	IsGroup        bool       `json:"is_group"`
	Name           string     `json:"name,omitempty"`
}

type sendMessageRequest struct {
	Room    types.ID `json:"room"`
	Content string   `json:"content"`
}

type markReadRequest struct {
	MessageIds []types.ID `json:"message_ids"`
}
