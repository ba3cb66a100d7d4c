package api

import (
	"encoding/json"
	"net/http"

	"github.com/npezzotti/go-chatroom-client/internal/types"
)

type SendMessageRequest struct {
	Content string `json:"content"`
}

type MarkReadRequest struct {
	MessageIds []types.ID `json:"message_ids"`
}

type LoadOlderResponse struct {
	Added int `json:"added"`
}

func (s *DebugServer) writeJson(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *DebugServer) writeError(w http.ResponseWriter, err error) {
	errResp := errorFor(err)
	if errResp.StatusCode >= http.StatusInternalServerError {
		s.log.Printf("request failed: %v", err)
	}
	s.writeJson(w, errResp.StatusCode, errResp)
}

func (s *DebugServer) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (s *DebugServer) getState(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	s.writeJson(w, http.StatusOK, s.client.Snapshot())
}

func (s *DebugServer) refreshRooms(w http.ResponseWriter, r *http.Request) {
	rooms, err := s.client.ListRooms(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, rooms)
}

func (s *DebugServer) selectRoom(w http.ResponseWriter, r *http.Request) {
	roomId := types.ID(r.PathValue("roomId"))
	if err := s.client.SelectRoom(r.Context(), roomId); err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, s.client.Snapshot())
}

func (s *DebugServer) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	msg, err := s.client.SendMessage(r.Context(), types.ID(r.PathValue("roomId")), req.Content, nil)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusCreated, msg)
}

func (s *DebugServer) markRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			errResp := NewBadRequestError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}
	}

	if err := s.client.MarkRead(r.Context(), types.ID(r.PathValue("roomId")), req.MessageIds); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *DebugServer) loadOlder(w http.ResponseWriter, r *http.Request) {
	added, err := s.client.LoadOlder(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJson(w, http.StatusOK, LoadOlderResponse{Added: added})
}
