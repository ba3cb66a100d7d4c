package store

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/normalize"
	"github.com/npezzotti/go-chatroom-client/internal/stats"
	"github.com/npezzotti/go-chatroom-client/internal/transport"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/teris-io/shortid"
)

const pendingPrefix = "pending-"

// SendMessage posts a message through the gateway so it gets a durable id.
// A pending copy is shown in the active log while the call is in flight and
// is replaced by the durable message, or removed if the call fails. The push
// channel is not needed: sends succeed while the connection is idle.
func (s *Store) SendMessage(ctx context.Context, roomId types.ID, body string, upload *gateway.Upload) (types.Message, error) {
	if strings.TrimSpace(body) == "" && upload == nil {
		return types.Message{}, &ValidationError{Field: "message", Err: ErrEmptyMessage}
	}
	if roomId == "" {
		return types.Message{}, &ValidationError{Field: "room", Err: ErrNoActiveRoom}
	}

	s.maybeRebind(ctx)

	tempId, err := shortid.Generate()
	if err != nil {
		return types.Message{}, fmt.Errorf("send message: generate temporary id: %w", err)
	}
	pending := types.Message{
		Id:        types.ID(pendingPrefix + tempId),
		RoomId:    roomId,
		Sender:    types.Sender{Id: s.userId},
		Content:   body,
		CreatedAt: s.clock.Now(),
		Pending:   true,
	}
	if upload != nil {
		pending.Attachment = &types.Attachment{
			Name: upload.Name,
			Kind: uploadKind(upload),
		}
	}

	s.mu.Lock()
	shown := roomId == s.active && s.appendLocked(pending)
	s.mu.Unlock()
	if shown {
		s.notify(Change{Kind: ChangeMessages, RoomId: roomId})
	}

	var raw types.RawMessage
	if upload != nil {
		raw, err = s.gw.UploadMessage(ctx, roomId, body, *upload)
	} else {
		raw, err = s.gw.SendMessage(ctx, roomId, body)
	}

	if err != nil {
		s.mu.Lock()
		removed := s.removeLocked(pending.Id)
		s.mu.Unlock()
		if removed {
			s.notify(Change{Kind: ChangeMessages, RoomId: roomId})
		}
		s.incr(stats.MetricSendFailures)
		return types.Message{}, fmt.Errorf("send message: %w", err)
	}

	msg := normalize.Normalize(raw)
	if msg.RoomId == "" {
		msg.RoomId = roomId
	}
	msg.Pending = false

	s.mu.Lock()
	s.removeLocked(pending.Id)
	if msg.RoomId == s.active && !s.appendLocked(msg) {
		// the live copy arrived first
		s.incr(stats.MetricMessagesDeduplicated)
	}
	s.updatePreviewLocked(msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeMessages, RoomId: msg.RoomId})
	return msg, nil
}

// MarkRead acknowledges messages of a room as read. With no ids every
// durable message of the active log is marked when roomId is active.
func (s *Store) MarkRead(ctx context.Context, roomId types.ID, messageIds []types.ID) error {
	s.maybeRebind(ctx)

	s.mu.Lock()
	isActive := roomId == s.active
	if len(messageIds) == 0 && isActive {
		for _, m := range s.messages {
			if !m.Pending {
				messageIds = append(messageIds, m.Id)
			}
		}
	}
	s.mu.Unlock()

	if len(messageIds) == 0 {
		return nil
	}

	if err := s.gw.MarkRead(ctx, roomId, messageIds); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}

	s.mu.Lock()
	s.unread[roomId] = 0
	if isActive && s.userId != "" {
		s.markReadByLocked(s.userId, messageIds)
	}
	s.mu.Unlock()
	s.notify(Change{Kind: ChangeUnread, RoomId: roomId})

	if isActive {
		if err := s.conn.Send(transport.ReadPayload(messageIds)); err != nil && !errors.Is(err, transport.ErrNotConnected) {
			s.logf("send read receipt for room %q: %v", roomId, err)
		}
	}
	return nil
}

// NotifyActivity records local typing activity in a room.
func (s *Store) NotifyActivity(ctx context.Context, roomId types.ID) {
	s.maybeRebind(ctx)
	s.debouncer.OnActivity(roomId)
}

// emitTyping forwards debounced typing signals for the active room over the
// push channel. Failures are dropped.
func (s *Store) emitTyping(roomId types.ID, isTyping bool) {
	s.mu.Lock()
	active := s.active
	s.mu.Unlock()
	if roomId != active {
		return
	}

	if err := s.conn.Send(transport.TypingPayload(isTyping)); err != nil {
		s.logf("send typing=%t for room %q: %v", isTyping, roomId, err)
	}
}

func (s *Store) markReadByLocked(userId types.ID, messageIds []types.ID) bool {
	ids := make(map[types.ID]struct{}, len(messageIds))
	for _, id := range messageIds {
		ids[id] = struct{}{}
	}

	changed := false
	for i := range s.messages {
		m := &s.messages[i]
		if _, ok := ids[m.Id]; !ok || containsId(m.ReadBy, userId) {
			continue
		}
		readBy := make([]types.ID, len(m.ReadBy), len(m.ReadBy)+1)
		copy(readBy, m.ReadBy)
		m.ReadBy = append(readBy, userId)
		changed = true
	}
	return changed
}

func containsId(ids []types.ID, id types.ID) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func uploadKind(u *gateway.Upload) types.AttachmentKind {
	ct := u.ContentType
	if ct == "" {
		ct = mime.TypeByExtension(filepath.Ext(u.Name))
	}
	return normalize.AttachmentKind(ct)
}
