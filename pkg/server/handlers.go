package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/entrhq/aqlmind/pkg/chat"
	"github.com/entrhq/aqlmind/pkg/session"
)

type loadURLRequest struct {
	APIKey string `json:"api_key"`
	URL    string `json:"url"`
}

type loadURLResponse struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	Response string `json:"response"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type sessionResponse struct {
	SessionID     string          `json:"session_id"`
	URL           string          `json:"url"`
	Transcript    []session.Entry `json:"transcript"`
	Turns         int             `json:"turns"`
	ContextTokens int             `json:"context_tokens"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

func (s *Server) handleLoadURL(w http.ResponseWriter, r *http.Request) {
	var req loadURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url is required")
		return
	}

	id, err := s.svc.Load(r.Context(), req.URL, req.APIKey)
	if err != nil {
		var fetchErr *chat.FetchError
		if errors.As(err, &fetchErr) {
			writeError(w, http.StatusBadRequest, "Error fetching URL: "+fetchErr.Err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "Error fetching URL: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, loadURLResponse{SessionID: id, Message: "Website loaded successfully"})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	reply, err := s.svc.Ask(r.Context(), req.SessionID, req.Message)
	if err != nil {
		var llmErr *chat.LLMError
		switch {
		case errors.Is(err, chat.ErrSessionNotFound):
			writeError(w, http.StatusNotFound, "Session not found")
		case errors.Is(err, chat.ErrEmptyMessage):
			writeError(w, http.StatusBadRequest, "message is required")
		case errors.As(err, &llmErr):
			writeError(w, http.StatusInternalServerError, "Error getting response: "+llmErr.Err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "Error getting response: "+err.Error())
		}
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, err := s.svc.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	tokens, err := s.svc.ContextTokens(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:     snap.ID,
		URL:           snap.SourceURL,
		Transcript:    snap.Transcript,
		Turns:         snap.Turns(),
		ContextTokens: tokens,
		CreatedAt:     snap.CreatedAt,
		UpdatedAt:     snap.UpdatedAt,
	})
}

// handleDeleteSession clears the conversation; with ?purge=true the session
// is removed entirely.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if r.URL.Query().Get("purge") == "true" {
		if err := s.svc.Delete(id); err != nil {
			writeError(w, http.StatusNotFound, "Session not found")
			return
		}
		writeJSON(w, http.StatusOK, messageResponse{Message: "Session deleted"})
		return
	}

	if _, err := s.svc.Clear(id); err != nil {
		writeError(w, http.StatusNotFound, "Session not found")
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Session cleared"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "healthy", Message: "AqlMind API is running"})
}

// decodeBody reads a size-limited JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}
