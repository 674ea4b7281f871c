package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rcliao/chat-memory/internal/calendar"
	"github.com/rcliao/chat-memory/internal/model"
	"github.com/rcliao/chat-memory/internal/store"
)

// DefaultMemoriesLimit applies to GET /memories/{user_id}.
const DefaultMemoriesLimit = 10

type chatRequest struct {
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

type chatResponse struct {
	Response string         `json:"response"`
	Context  memoriesResult `json:"context"`
	Detail   string         `json:"detail,omitempty"`
}

type memoriesResult struct {
	Memories []model.Result `json:"memories"`
}

type meetingRequest struct {
	Summary     string   `json:"summary"`
	Description string   `json:"description"`
	StartTime   string   `json:"start_time"`
	EndTime     string   `json:"end_time"`
	Attendees   []string `json:"attendees"`
	UserID      string   `json:"user_id"`
	Meet        bool     `json:"meet"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Business Assistant API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleChat handles POST /chat.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.UserID == "" || strings.TrimSpace(req.Message) == "" {
		writeError(w, http.StatusBadRequest, "message and user_id are required")
		return
	}

	reply, err := s.chat.Chat(r.Context(), req.UserID, req.Message)
	if err != nil && reply == nil {
		s.logger.Error("chat failed", "user", req.UserID, "error", err)
		status := http.StatusBadGateway
		if errors.Is(err, store.ErrStorage) || errors.Is(err, store.ErrEmbedding) {
			status = http.StatusInternalServerError
		}
		writeError(w, status, err.Error())
		return
	}

	resp := chatResponse{
		Response: reply.Response,
		Context:  memoriesResult{Memories: reply.Memories},
	}
	if err != nil {
		// Generated but not remembered.
		s.logger.Error("chat reply not stored", "user", req.UserID, "error", err)
		resp.Detail = err.Error()
		writeJSON(w, http.StatusInternalServerError, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleScheduleMeeting handles POST /schedule-meeting.
func (s *Server) handleScheduleMeeting(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar is not configured")
		return
	}

	var req meetingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	start, err := calendar.ParseTime(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	end, err := calendar.ParseTime(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	link, err := s.scheduler.CreateEvent(r.Context(), calendar.EventParams{
		UserID:      req.UserID,
		Summary:     req.Summary,
		Description: req.Description,
		StartTime:   start,
		EndTime:     end,
		Attendees:   req.Attendees,
		Meet:        req.Meet,
	})
	switch {
	case errors.Is(err, calendar.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, calendar.ErrNotAuthorized):
		writeError(w, http.StatusUnauthorized, err.Error()+"; visit /google-auth?user_id="+req.UserID)
	case err != nil:
		s.logger.Error("create event failed", "user", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	default:
		writeJSON(w, http.StatusOK, map[string]string{"meeting_link": link})
	}
}

// handleMemories handles GET /memories/{user_id}.
func (s *Server) handleMemories(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user_id")

	limit := DefaultMemoriesLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	var memories []model.Result
	if q := r.URL.Query().Get("query"); q != "" {
		var err error
		memories, err = s.memory.Search(r.Context(), q, userID, limit)
		if err != nil {
			s.logger.Error("memory search failed", "user", userID, "error", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		memories = s.memory.Recent(userID, limit)
	}

	writeJSON(w, http.StatusOK, memoriesResult{Memories: memories})
}

// handleGoogleAuth handles GET /google-auth.
func (s *Server) handleGoogleAuth(w http.ResponseWriter, r *http.Request) {
	if s.authorizer == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar is not configured")
		return
	}
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	http.Redirect(w, r, s.authorizer.AuthURL(userID), http.StatusTemporaryRedirect)
}

// handleGoogleCallback handles GET /google-auth/callback.
func (s *Server) handleGoogleCallback(w http.ResponseWriter, r *http.Request) {
	if s.authorizer == nil {
		writeError(w, http.StatusServiceUnavailable, "calendar is not configured")
		return
	}
	q := r.URL.Query()
	if e := q.Get("error"); e != "" {
		writeError(w, http.StatusBadRequest, "authorization denied: "+e)
		return
	}
	state, code := q.Get("state"), q.Get("code")
	if state == "" || code == "" {
		writeError(w, http.StatusBadRequest, "state and code are required")
		return
	}

	userID, err := s.authorizer.Exchange(r.Context(), state, code)
	switch {
	case errors.Is(err, calendar.ErrInvalidState):
		writeError(w, http.StatusBadRequest, "unknown or expired authorization request, start again at /google-auth")
		return
	case err != nil:
		s.logger.Error("oauth exchange failed", "user", userID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "calendar access granted",
		"user_id": userID,
	})
}
