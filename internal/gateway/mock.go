package gateway

import (
	"context"

	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/stretchr/testify/mock"
)

var _ Gateway = (*MockGateway)(nil)

type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGateway) GetRoom(ctx context.Context, roomId types.ID) (types.Room, error) {
	args := m.Called(ctx, roomId)
	return args.Get(0).(types.Room), args.Error(1)
}
func (m *MockGateway) GetMessages(ctx context.Context, roomId types.ID, next string) (types.Page, error) {
	args := m.Called(ctx, roomId, next)
	return args.Get(0).(types.Page), args.Error(1)
}
func (m *MockGateway) SendMessage(ctx context.Context, roomId types.ID, content string) (types.RawMessage, error) {
	args := m.Called(ctx, roomId, content)
	return args.Get(0).(types.RawMessage), args.Error(1)
}
func (m *MockGateway) UploadMessage(ctx context.Context, roomId types.ID, content string, file Upload) (types.RawMessage, error) {
	args := m.Called(ctx, roomId, content, file)
	return args.Get(0).(types.RawMessage), args.Error(1)
}
func (m *MockGateway) MarkRead(ctx context.Context, roomId types.ID, messageIds []types.ID) error {
	args := m.Called(ctx, roomId, messageIds)
	return args.Error(0)
}
func (m *MockGateway) SearchParticipants(ctx context.Context, query string) ([]types.Participant, error) {
	args := m.Called(ctx, query)
	if users, ok := args.Get(0).([]types.Participant); ok {
		return users, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *MockGateway) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	args := m.Called(ctx, params)
	return args.Get(0).(types.Room), args.Error(1)
}
