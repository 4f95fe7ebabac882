package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/txn2/mcp-interviewer/pkg/engine"
	"github.com/txn2/mcp-interviewer/pkg/interview"
	"github.com/txn2/mcp-interviewer/pkg/session"
)

const slogKeyError = "error"

// startResponse is returned by POST /session/start.
type startResponse struct {
	SessionID string          `json:"sessionId"`
	Reply     string          `json:"reply"`
	State     interview.State `json:"state"`
}

// deleteResponse is returned by /session/delete.
type deleteResponse struct {
	OK bool `json:"ok"`
}

// interactRequest is the body of POST /interaction/interact.
type interactRequest struct {
	Message string `json:"message"`
}

// interactResponse is returned by POST /interaction/interact.
type interactResponse struct {
	Reply          string          `json:"reply"`
	State          interview.State `json:"state,omitempty"`
	QuestionID     string          `json:"questionId,omitempty"`
	Completed      bool            `json:"completed,omitempty"`
	SessionExpired bool            `json:"sessionExpired,omitempty"`
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	id, reply, err := s.interviewer.Start(r.Context())
	if err != nil {
		slog.Error("starting session failed", slogKeyError, err)
		writeJSON(w, http.StatusInternalServerError, interactResponse{Reply: engine.ServiceErrorMessage})
		return
	}

	s.setSessionCookie(w, id)
	writeJSON(w, http.StatusOK, startResponse{SessionID: id, Reply: reply.Text, State: reply.State})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if id := sessionID(r); id != "" {
		if err := s.interviewer.End(r.Context(), id); err != nil {
			slog.Warn("ending session failed", "session_id", id, slogKeyError, err)
		}
	}

	s.clearSessionCookie(w)
	writeJSON(w, http.StatusOK, deleteResponse{OK: true})
}

func (s *Server) handleInteract(w http.ResponseWriter, r *http.Request) {
	var req interactRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, interactResponse{Reply: engine.EmptyMessageReply})
		return
	}

	id := sessionID(r)
	if id == "" {
		writeJSON(w, http.StatusOK, interactResponse{Reply: engine.SessionExpiredMessage, SessionExpired: true})
		return
	}

	reply, err := s.interviewer.Turn(r.Context(), id, req.Message)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, interactResponse{
			Reply:      reply.Text,
			State:      reply.State,
			QuestionID: reply.QuestionID,
			Completed:  reply.Completed,
		})
	case errors.Is(err, engine.ErrEmptyMessage):
		writeJSON(w, http.StatusBadRequest, interactResponse{Reply: engine.EmptyMessageReply})
	case errors.Is(err, session.ErrNotFound):
		s.clearSessionCookie(w)
		writeJSON(w, http.StatusOK, interactResponse{Reply: engine.SessionExpiredMessage, SessionExpired: true})
	default:
		slog.Error("processing turn failed", "session_id", id, slogKeyError, err)
		writeJSON(w, http.StatusInternalServerError, interactResponse{Reply: engine.ServiceErrorMessage})
	}
}

// sessionID reads the session from the cookie, falling back to the header.
func sessionID(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	return r.Header.Get(SessionHeader)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    id,
		Path:     "/",
		MaxAge:   int(s.cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response failed", slogKeyError, err)
	}
}
