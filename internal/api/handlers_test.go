package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/store"
	"github.com/npezzotti/go-chatroom-client/internal/testutil"
	"github.com/npezzotti/go-chatroom-client/internal/transport"
	"github.com/npezzotti/go-chatroom-client/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockClient struct {
	mock.Mock
}

func (m *mockClient) Snapshot() store.Snapshot {
	args := m.Called()
	return args.Get(0).(store.Snapshot)
}
func (m *mockClient) ListRooms(ctx context.Context) ([]types.Room, error) {
	args := m.Called(ctx)
	if rooms, ok := args.Get(0).([]types.Room); ok {
		return rooms, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockClient) SelectRoom(ctx context.Context, roomId types.ID) error {
	args := m.Called(ctx, roomId)
	return args.Error(0)
}
func (m *mockClient) SendMessage(ctx context.Context, roomId types.ID, body string, upload *gateway.Upload) (types.Message, error) {
	args := m.Called(ctx, roomId, body, upload)
	return args.Get(0).(types.Message), args.Error(1)
}
func (m *mockClient) MarkRead(ctx context.Context, roomId types.ID, messageIds []types.ID) error {
	args := m.Called(ctx, roomId, messageIds)
	return args.Error(0)
}
func (m *mockClient) LoadOlder(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func newTestServer(t *testing.T, client Client) http.Handler {
	t.Helper()
	return NewDebugServer(http.NewServeMux(), testutil.TestLogger(t), client, "localhost:0", nil).Handler()
}

func Test_healthCheck(t *testing.T) {
	h := newTestServer(t, &mockClient{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
	assert.Equal(t, "OK", rr.Body.String(), "expected response body to be 'OK'")
}

func Test_getState(t *testing.T) {
	client := &mockClient{}
	defer client.AssertExpectations(t)

	snap := store.Snapshot{
		Phase:      store.PhaseReady,
		ActiveRoom: "r1",
		Binding:    transport.StateOpen,
		Rooms:      []types.Room{{Id: "r1", Name: "general"}},
		Messages:   []types.Message{{Id: "m1", RoomId: "r1", Content: "hi"}},
		Unread:     map[types.ID]int{"r2": 3},
		Typing:     []types.ID{"7"},
	}
	client.On("Snapshot").Return(snap).Once()

	rr := httptest.NewRecorder()
	newTestServer(t, client).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"), "expected json response")

	var got map[string]any
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&got), "expected valid json")
	assert.Equal(t, "ready", got["phase"], "expected phase")
	assert.Equal(t, "r1", got["active_room"], "expected active room")
	assert.Equal(t, "open", got["binding"], "expected binding state")
	assert.Equal(t, map[string]any{"r2": float64(3)}, got["unread"], "expected unread counts")
}

func Test_selectRoom(t *testing.T) {
	tcases := []struct {
		name         string
		err          error
		expectedCode int
	}{
		{
			name:         "success",
			expectedCode: http.StatusOK,
		},
		{
			name:         "backend unavailable",
			err:          fmt.Errorf("select room: %w", &gateway.NetworkError{Op: "get room", StatusCode: 503}),
			expectedCode: http.StatusBadGateway,
		},
		{
			name:         "room not found",
			err:          fmt.Errorf("select room: %w", &gateway.NetworkError{Op: "get room", StatusCode: 404}),
			expectedCode: http.StatusNotFound,
		},
		{
			name:         "not a participant",
			err:          fmt.Errorf("select room: %w", &gateway.NetworkError{Op: "get room", StatusCode: 403}),
			expectedCode: http.StatusForbidden,
		},
		{
			name:         "backend unreachable",
			err:          fmt.Errorf("select room: %w", &gateway.NetworkError{Op: "get room", Err: errors.New("connection refused")}),
			expectedCode: http.StatusBadGateway,
		},
		{
			name:         "unexpected error",
			err:          errors.New("boom"),
			expectedCode: http.StatusInternalServerError,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockClient{}
			defer client.AssertExpectations(t)

			client.On("SelectRoom", mock.Anything, types.ID("r1")).Return(tc.err).Once()
			if tc.err == nil {
				client.On("Snapshot").Return(store.Snapshot{ActiveRoom: "r1"}).Once()
			}

			rr := httptest.NewRecorder()
			newTestServer(t, client).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/rooms/r1/select", nil))

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")
			if tc.err != nil {
				var apiErr ApiError
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&apiErr), "expected error body")
				assert.Equal(t, tc.expectedCode, apiErr.StatusCode, "expected status code in body")
			}
		})
	}
}

func Test_sendMessage(t *testing.T) {
	tcases := []struct {
		name         string
		body         string
		mockMsg      types.Message
		mockErr      error
		callsClient  bool
		expectedCode int
	}{
		{
			name:         "success",
			body:         `{"content":"hello"}`,
			mockMsg:      types.Message{Id: "m1", RoomId: "r1", Content: "hello"},
			callsClient:  true,
			expectedCode: http.StatusCreated,
		},
		{
			name:         "empty message",
			body:         `{"content":""}`,
			mockErr:      &store.ValidationError{Field: "message", Err: store.ErrEmptyMessage},
			callsClient:  true,
			expectedCode: http.StatusBadRequest,
		},
		{
			name:         "invalid json",
			body:         `{`,
			expectedCode: http.StatusBadRequest,
		},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockClient{}
			defer client.AssertExpectations(t)

			if tc.callsClient {
				var content struct {
					Content string `json:"content"`
				}
				json.Unmarshal([]byte(tc.body), &content)
				client.On("SendMessage", mock.Anything, types.ID("r1"), content.Content, (*gateway.Upload)(nil)).
					Return(tc.mockMsg, tc.mockErr).Once()
			}

			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/rooms/r1/messages", strings.NewReader(tc.body))
			newTestServer(t, client).ServeHTTP(rr, req)

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")
			if tc.expectedCode == http.StatusCreated {
				var msg types.Message
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&msg), "expected message body")
				assert.Equal(t, tc.mockMsg.Id, msg.Id, "expected message id to match")
			}
		})
	}
}

func Test_markRead(t *testing.T) {
	client := &mockClient{}
	defer client.AssertExpectations(t)

	client.On("MarkRead", mock.Anything, types.ID("r1"), []types.ID{"m1", "m2"}).Return(nil).Once()
	client.On("MarkRead", mock.Anything, types.ID("r2"), []types.ID(nil)).Return(nil).Once()

	h := newTestServer(t, client)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/rooms/r1/read", strings.NewReader(`{"message_ids":["m1","m2"]}`)))
	assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/rooms/r2/read", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code, "expected status code to be 204 without a body")
}

func Test_refreshRooms(t *testing.T) {
	client := &mockClient{}
	defer client.AssertExpectations(t)

	rooms := []types.Room{{Id: "r1", Name: "general", IsGroup: true}}
	client.On("ListRooms", mock.Anything).Return(rooms, nil).Once()

	rr := httptest.NewRecorder()
	newTestServer(t, client).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/rooms/refresh", nil))

	assert.Equal(t, http.StatusOK, rr.Code, "expected status code to be 200")
	var got []types.Room
	assert.NoError(t, json.NewDecoder(rr.Body).Decode(&got), "expected rooms body")
	assert.Equal(t, rooms, got, "expected rooms to match")
}

func Test_loadOlder(t *testing.T) {
	tcases := []struct {
		name         string
		added        int
		err          error
		expectedCode int
	}{
		{name: "page loaded", added: 20, expectedCode: http.StatusOK},
		{name: "no active room", err: store.ErrNoActiveRoom, expectedCode: http.StatusConflict},
	}

	for _, tc := range tcases {
		t.Run(tc.name, func(t *testing.T) {
			client := &mockClient{}
			defer client.AssertExpectations(t)
			client.On("LoadOlder", mock.Anything).Return(tc.added, tc.err).Once()

			rr := httptest.NewRecorder()
			newTestServer(t, client).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/history/older", nil))

			assert.Equal(t, tc.expectedCode, rr.Code, "unexpected status code")
			if tc.err == nil {
				var resp LoadOlderResponse
				assert.NoError(t, json.NewDecoder(rr.Body).Decode(&resp), "expected response body")
				assert.Equal(t, tc.added, resp.Added, "expected added count")
			}
		})
	}
}
