package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/npezzotti/go-chatroom-client/internal/types"
)

const (
	defaultTimeout = 15 * time.Second
	maxErrorBody   = 4096
)

var _ Gateway = (*RestGateway)(nil)

// RestGateway talks to the backend's REST API with token authentication.
type RestGateway struct {
	log     *log.Logger
	baseURL *url.URL
	token   string
	client  *http.Client
}

func NewRestGateway(baseURL, token string, client *http.Client, l *log.Logger) (*RestGateway, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https, got %q", baseURL)
	}
	if client == nil {
		client = &http.Client{Timeout: defaultTimeout}
	}

	return &RestGateway{
		log:     l,
		baseURL: u,
		token:   token,
		client:  client,
	}, nil
}

func (g *RestGateway) ListRooms(ctx context.Context) ([]types.Room, error) {
	const op = "list rooms"

	body, err := g.do(ctx, op, http.MethodGet, "/api/chat/rooms/", nil, "")
	if err != nil {
		return nil, err
	}

	var rooms []types.Room
	if _, _, err := decodeList(body, &rooms); err != nil {
		return nil, newDecodeError(op, err)
	}
	return rooms, nil
}

func (g *RestGateway) GetRoom(ctx context.Context, roomId types.ID) (types.Room, error) {
	const op = "get room"

	body, err := g.do(ctx, op, http.MethodGet, roomPath(roomId, ""), nil, "")
	if err != nil {
		return types.Room{}, err
	}

	var room types.Room
	if err := json.Unmarshal(body, &room); err != nil {
		return types.Room{}, newDecodeError(op, err)
	}
	return room, nil
}

func (g *RestGateway) GetMessages(ctx context.Context, roomId types.ID, next string) (types.Page, error) {
	const op = "get messages"

	path := roomPath(roomId, "messages/")
	if next != "" {
		path = next
	}

	body, err := g.do(ctx, op, http.MethodGet, path, nil, "")
	if err != nil {
		return types.Page{}, err
	}

	var page types.Page
	page.Count, page.Next, err = decodeList(body, &page.Messages)
	if err != nil {
		return types.Page{}, newDecodeError(op, err)
	}
	if page.Count == 0 {
		page.Count = len(page.Messages)
	}
	return page, nil
}

func (g *RestGateway) SendMessage(ctx context.Context, roomId types.ID, content string) (types.RawMessage, error) {
	const op = "send message"

	payload, err := json.Marshal(sendMessageRequest{Room: roomId, Content: content})
	if err != nil {
		return types.RawMessage{}, fmt.Errorf("%s: %w", op, err)
	}

	body, err := g.do(ctx, op, http.MethodPost, "/api/chat/messages/", bytes.NewReader(payload), "application/json")
	if err != nil {
		return types.RawMessage{}, err
	}

	var msg types.RawMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return types.RawMessage{}, newDecodeError(op, err)
	}
	return msg, nil
}

func (g *RestGateway) UploadMessage(ctx context.Context, roomId types.ID, content string, file Upload) (types.RawMessage, error) {
	const op = "upload message"

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", file.Name)
	if err != nil {
		return types.RawMessage{}, fmt.Errorf("%s: %w", op, err)
	}
	if _, err := io.Copy(fw, file.Body); err != nil {
		return types.RawMessage{}, fmt.Errorf("%s: read attachment: %w", op, err)
	}
	if err := mw.WriteField("content", content); err != nil {
		return types.RawMessage{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.WriteField("room", roomId.String()); err != nil {
		return types.RawMessage{}, fmt.Errorf("%s: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return types.RawMessage{}, fmt.Errorf("%s: %w", op, err)
	}

	body, err := g.do(ctx, op, http.MethodPost, "/api/chat/messages/upload/", &buf, mw.FormDataContentType())
	if err != nil {
		return types.RawMessage{}, err
	}

	var msg types.RawMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return types.RawMessage{}, newDecodeError(op, err)
	}
	return msg, nil
}

func (g *RestGateway) MarkRead(ctx context.Context, roomId types.ID, messageIds []types.ID) error {
	const op = "mark read"

	payload, err := json.Marshal(markReadRequest{MessageIds: messageIds})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	_, err = g.do(ctx, op, http.MethodPost, roomPath(roomId, "mark-read/"), bytes.NewReader(payload), "application/json")
	return err
}

func (g *RestGateway) SearchParticipants(ctx context.Context, query string) ([]types.Participant, error) {
	const op = "search participants"

	body, err := g.do(ctx, op, http.MethodGet, "/api/chat/users/search/?q="+url.QueryEscape(query), nil, "")
	if err != nil {
		return nil, err
	}

	var users []types.Participant
	if _, _, err := decodeList(body, &users); err != nil {
		return nil, newDecodeError(op, err)
	}
	return users, nil
}

func (g *RestGateway) CreateRoom(ctx context.Context, params CreateRoomParams) (types.Room, error) {
	const op = "create room"

	payload, err := json.Marshal(params)
	if err != nil {
		return types.Room{}, fmt.Errorf("%s: %w", op, err)
	}

	body, err := g.do(ctx, op, http.MethodPost, "/api/chat/rooms/", bytes.NewReader(payload), "application/json")
	if err != nil {
		return types.Room{}, err
	}

	var room types.Room
	if err := json.Unmarshal(body, &room); err != nil {
		return types.Room{}, newDecodeError(op, err)
	}
	return room, nil
}

// do performs an authenticated request and returns the body of a 2xx
// response. ref may be a path or an absolute URL.
func (g *RestGateway) do(ctx context.Context, op, method, ref string, body io.Reader, contentType string) ([]byte, error) {
	target, err := g.baseURL.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	// the token must only ever reach the configured api host
	if target.Scheme != g.baseURL.Scheme || target.Host != g.baseURL.Host {
		return nil, fmt.Errorf("%s: %s: %w", op, target.Redacted(), ErrForeignLink)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if g.token != "" {
		req.Header.Set("Authorization", "Token "+g.token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, newTransportFailure(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := errorDetail(io.LimitReader(resp.Body, maxErrorBody))
		g.log.Printf("%s %s: status %d", method, target.Path, resp.StatusCode)
		return nil, newStatusError(op, resp.StatusCode, detail)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransportFailure(op, err)
	}
	return data, nil
}

func roomPath(roomId types.ID, suffix string) string {
	return "/api/chat/rooms/" + url.PathEscape(roomId.String()) + "/" + suffix
}

// decodeList accepts either a flat JSON array or a paged envelope
// {"count": n, "next": url, "results": [...]} and decodes the items into v.
func decodeList(data []byte, v any) (count int, next string, err error) {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		return 0, "", json.Unmarshal(data, v)
	}

	var envelope struct {
		Count   int             `json:"count"`
		Next    *string         `json:"next"`
		Results json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return 0, "", err
	}
	if len(envelope.Results) == 0 {
		return 0, "", fmt.Errorf("response is neither a list nor a paged envelope")
	}
	if err := json.Unmarshal(envelope.Results, v); err != nil {
		return 0, "", err
	}
	if envelope.Next != nil {
		next = *envelope.Next
	}
	return envelope.Count, next, nil
}

func errorDetail(r io.Reader) string {
	var body struct {
		Detail string `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return ""
	}
	if body.Detail != "" {
		return body.Detail
	}
	return body.Error
}
