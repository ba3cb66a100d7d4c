// Package normalize converts message payloads from the history API and the
// push channel into the canonical types.Message shape.
package normalize

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/npezzotti/go-chatroom-client/internal/types"
)

// Normalize returns the canonical form of raw. A bare-identifier sender is
// expanded into a Sender using the sibling sender_name field; a structured
// sender passes through unchanged. Normalize is pure and idempotent.
func Normalize(raw types.RawMessage) types.Message {
	msg := types.Message{
		Id:        raw.Id,
		RoomId:    raw.RoomId,
		Sender:    normalizeSender(raw.Sender, raw.SenderName),
		Content:   raw.Content,
		CreatedAt: raw.CreatedAt,
		Pending:   raw.Pending,
	}

	if raw.Attachment != nil {
		att := *raw.Attachment
		msg.Attachment = &att
	} else if raw.FileURL != "" {
		msg.Attachment = &types.Attachment{
			URL:  raw.FileURL,
			Kind: AttachmentKind(raw.FileType),
			Name: raw.FileName,
			Size: raw.FileSize,
		}
	}

	if len(raw.ReadBy) > 0 {
		msg.ReadBy = append([]types.ID(nil), raw.ReadBy...)
	}

	return msg
}

// NormalizeAll normalizes every message of a history page.
func NormalizeAll(raws []types.RawMessage) []types.Message {
	msgs := make([]types.Message, len(raws))
	for i, raw := range raws {
		msgs[i] = Normalize(raw)
	}
	return msgs
}

// Raw converts a canonical message back to its wire shape, with the sender
// encoded as an object.
func Raw(msg types.Message) types.RawMessage {
	sender, _ := json.Marshal(msg.Sender)

	raw := types.RawMessage{
		Id:        msg.Id,
		RoomId:    msg.RoomId,
		Sender:    sender,
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
		Pending:   msg.Pending,
	}
	if msg.Attachment != nil {
		att := *msg.Attachment
		raw.Attachment = &att
	}
	if len(msg.ReadBy) > 0 {
		raw.ReadBy = append([]types.ID(nil), msg.ReadBy...)
	}
	return raw
}

func normalizeSender(data json.RawMessage, senderName string) types.Sender {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return types.Sender{Name: senderName}
	}

	if data[0] == '{' {
		var s types.Sender
		if err := json.Unmarshal(data, &s); err == nil {
			return s
		}
		return types.Sender{Name: senderName}
	}

	var id types.ID
	if err := json.Unmarshal(data, &id); err != nil {
		return types.Sender{Name: senderName}
	}
	return types.Sender{Id: id, Name: senderName}
}

// AttachmentKind classifies a file type or mime type.
func AttachmentKind(fileType string) types.AttachmentKind {
	switch types.AttachmentKind(fileType) {
	case types.AttachmentImage, types.AttachmentVideo, types.AttachmentAudio:
		return types.AttachmentKind(fileType)
	}

	// mime types such as "image/png"
	if i := strings.IndexByte(fileType, '/'); i > 0 {
		switch types.AttachmentKind(fileType[:i]) {
		case types.AttachmentImage, types.AttachmentVideo, types.AttachmentAudio:
			return types.AttachmentKind(fileType[:i])
		}
	}
	return types.AttachmentFile
}
