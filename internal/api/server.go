// Package api serves the client's local debug and control endpoints.
package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/go-chatroom-client/internal/gateway"
	"github.com/npezzotti/go-chatroom-client/internal/store"
	"github.com/npezzotti/go-chatroom-client/internal/types"
)

// Client is the part of the store the debug server drives.
type Client interface {
	Snapshot() store.Snapshot
	ListRooms(ctx context.Context) ([]types.Room, error)
	SelectRoom(ctx context.Context, roomId types.ID) error
	SendMessage(ctx context.Context, roomId types.ID, body string, upload *gateway.Upload) (types.Message, error)
	MarkRead(ctx context.Context, roomId types.ID, messageIds []types.ID) error
	LoadOlder(ctx context.Context) (int, error)
}

var _ Client = (*store.Store)(nil)

type DebugServer struct {
	log    *log.Logger
	client Client
	srv    *http.Server
}

// NewDebugServer registers its routes on mux, which may already carry the
// stats handler, and wraps it with recovery, CORS and request logging.
func NewDebugServer(mux *http.ServeMux, logger *log.Logger, client Client, addr string, allowedOrigins []string) *DebugServer {
	s := &DebugServer{
		log:    logger,
		client: client,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("GET /api/state", s.getState)
	mux.HandleFunc("POST /api/rooms/refresh", s.refreshRooms)
	mux.HandleFunc("POST /api/rooms/{roomId}/select", s.selectRoom)
	mux.HandleFunc("POST /api/rooms/{roomId}/messages", s.sendMessage)
	mux.HandleFunc("POST /api/rooms/{roomId}/read", s.markRead)
	mux.HandleFunc("POST /api/history/older", s.loadOlder)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"http://localhost:3000"}
	}
	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(allowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
	)(mux)

	h = s.errorHandler(h)
	h = handlers.LoggingHandler(logger.Writer(), h)

	s.srv = &http.Server{
		Addr:    addr,
		Handler: h,
	}
	return s
}

func (s *DebugServer) Handler() http.Handler {
	return s.srv.Handler
}

func (s *DebugServer) Start() error {
	s.log.Printf("starting debug server on %s", s.srv.Addr)
	return s.srv.ListenAndServe()
}

func (s *DebugServer) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down debug server...")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("debug server shutdown: %w", err)
	}

	return nil
}
