package main

import (
	"context"
	"fmt"
	"io"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/store"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

const helpText = `commands:
  /rooms                  list rooms
  /join <room>            open a room
  /leave                  close the active room
  /older                  load older history
  /read                   mark the active room as read
  /search <query>         find people
  /new <id,id,...> [name] create a room
  /attach <path> [text]   send a file
  /who                    show who is typing
  /logout                 forget the stored token and exit
  /quit                   exit
anything else is sent to the active room
`

type tokenClearer interface {
	Clear() error
}

// console renders store changes as text and turns input lines into store
// operations.
type console struct {
	store  *store.Store
	tokens tokenClearer

	mu      sync.Mutex
	out     io.Writer
	room    types.ID
	printed map[types.ID]bool
}

func newConsole(s *store.Store, tokens tokenClearer, out io.Writer) *console {
	return &console{
		store:   s,
		tokens:  tokens,
		out:     out,
		printed: make(map[types.ID]bool),
	}
}

func (c *console) printf(format string, v ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.out, format, v...)
}

// parseCommand splits "/cmd rest of line" into its name and argument.
func parseCommand(line string) (name, arg string, ok bool) {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "/") {
		return "", line, false
	}

	name, arg, _ = strings.Cut(line[1:], " ")
	return strings.ToLower(name), strings.TrimSpace(arg), true
}

func (c *console) handle(ctx context.Context, line string) (bool, error) {
	name, arg, ok := parseCommand(line)
	if !ok {
		if arg == "" {
			return false, nil
		}
		return false, c.send(ctx, arg, nil)
	}

	switch name {
	case "quit", "exit":
		return true, nil
	case "logout":
		if err := c.tokens.Clear(); err != nil {
			return false, err
		}
		c.printf("logged out\n")
		return true, nil
	case "help":
		c.printf("%s", helpText)
	case "rooms":
		if _, err := c.store.ListRooms(ctx); err != nil {
			return false, err
		}
		c.printRooms()
	case "join":
		if arg == "" {
			return false, fmt.Errorf("usage: /join <room>")
		}
		return false, c.store.SelectRoom(ctx, types.ID(arg))
	case "leave":
		c.store.LeaveRoom()
	case "older":
		added, err := c.store.LoadOlder(ctx)
		if err != nil {
			return false, err
		}
		c.printf("loaded %d older messages\n", added)
	case "read":
		return false, c.store.MarkRead(ctx, c.store.Snapshot().ActiveRoom, nil)
	case "search":
		users, err := c.store.SearchParticipants(ctx, arg)
		if err != nil {
			return false, err
		}
		for _, u := range users {
			c.printf("  %s  %s%s\n", u.Id, u.Username, onlineMarker(u))
		}
	case "new":
		params, err := parseCreateRoom(arg)
		if err != nil {
			return false, err
		}
		room, err := c.store.CreateRoom(ctx, params)
		if err != nil {
			return false, err
		}
		c.printf("created room %s\n", room.Id)
	case "attach":
		path, caption, _ := strings.Cut(arg, " ")
		return false, c.attach(ctx, path, caption)
	case "who":
		typing := c.store.Snapshot().Typing
		if len(typing) == 0 {
			c.printf("nobody is typing\n")
		} else {
			c.printf("typing: %s\n", joinIds(typing))
		}
	default:
		return false, fmt.Errorf("unknown command /%s, try /help", name)
	}

	return false, nil
}

func (c *console) send(ctx context.Context, body string, upload *gateway.Upload) error {
	roomId := c.store.Snapshot().ActiveRoom
	if roomId == "" {
		return store.ErrNoActiveRoom
	}

	_, err := c.store.SendMessage(ctx, roomId, body, upload)
	return err
}

func (c *console) attach(ctx context.Context, path, caption string) error {
	if path == "" {
		return fmt.Errorf("usage: /attach <path> [text]")
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	return c.send(ctx, caption, &gateway.Upload{
		Name:        filepath.Base(path),
		ContentType: mime.TypeByExtension(filepath.Ext(path)),
		Body:        f,
	})
}

func parseCreateRoom(arg string) (gateway.CreateRoomParams, error) {
	ids, name, _ := strings.Cut(arg, " ")
	if ids == "" {
		return gateway.CreateRoomParams{}, fmt.Errorf("usage: /new <id,id,...> [name]")
	}

	var params gateway.CreateRoomParams
	for _, id := range strings.Split(ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			params.ParticipantIds = append(params.ParticipantIds, types.ID(id))
		}
	}
	params.Name = strings.TrimSpace(name)
	params.IsGroup = len(params.ParticipantIds) > 1 || params.Name != ""
	return params, nil
}

func (c *console) printRooms() {
	snap := c.store.Snapshot()

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, r := range snap.Rooms {
		marker := " "
		if r.Id == snap.ActiveRoom {
			marker = "*"
		}
		fmt.Fprintf(c.out, "%s %-8s %s", marker, r.Id, roomTitle(r, c.store.UserId()))
		if n := snap.Unread[r.Id]; n > 0 {
			fmt.Fprintf(c.out, " (%d unread)", n)
		}
		fmt.Fprintln(c.out)
	}
}

// onChange prints messages of the active room that have not been shown yet
// and unread notices for other rooms.
func (c *console) onChange(ch store.Change) {
	switch ch.Kind {
	case store.ChangeMessages, store.ChangeActive:
		snap := c.store.Snapshot()

		c.mu.Lock()
		defer c.mu.Unlock()
		if snap.ActiveRoom != c.room {
			c.room = snap.ActiveRoom
			c.printed = make(map[types.ID]bool)
			if c.room != "" {
				fmt.Fprintf(c.out, "-- room %s --\n", c.room)
			}
		}
		for _, m := range snap.Messages {
			if m.Pending || c.printed[m.Id] {
				continue
			}
			c.printed[m.Id] = true
			fmt.Fprintln(c.out, formatMessage(m, c.store.IsOwn(m)))
		}
	case store.ChangeUnread:
		if n := c.store.Unread(ch.RoomId); n > 0 {
			c.printf("[%s] %d unread\n", ch.RoomId, n)
		}
	}
}

func formatMessage(m types.Message, own bool) string {
	name := m.Sender.Name
	if own {
		name = "me"
	} else if name == "" {
		name = m.Sender.Id.String()
	}

	body := m.Content
	if m.Attachment != nil {
		if body != "" {
			body += " "
		}
		body += fmt.Sprintf("[%s %s]", m.Attachment.Kind, m.Attachment.URL)
	}
	return fmt.Sprintf("%s %s: %s", m.CreatedAt.Local().Format("15:04"), name, body)
}

// roomTitle names a direct room after the other participant.
func roomTitle(r types.Room, me types.ID) string {
	if r.Name != "" || r.Kind() == types.RoomGroup {
		return r.Name
	}
	for _, p := range r.Participants {
		if p.Id != me {
			return p.Username + onlineMarker(p)
		}
	}
	return ""
}

func onlineMarker(p types.Participant) string {
	if p.IsOnline {
		return " (online)"
	}
	return ""
}

func joinIds(ids []types.ID) string {
	s := make([]string, len(ids))
	for i, id := range ids {
		s[i] = id.String()
	}
	return strings.Join(s, ", ")
}
