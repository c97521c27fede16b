package server

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/kaiwa/internal/interview"
	"github.com/hyperjump/kaiwa/internal/models"
	"go.uber.org/zap"
)

type startResponse struct {
	Session *models.Session  `json:"session"`
	Reply   *interview.Reply `json:"reply"`
}

func (s *Server) handleStartSession(w http.ResponseWriter, r *http.Request) {
	var req interview.StartRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		s.respondError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	sess, reply, err := s.interviews.Start(r.Context(), req)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Debug("session started",
		zap.String("session_id", sess.ID),
		zap.String("style", string(sess.Config.Style)))
	s.respondJSON(w, http.StatusCreated, startResponse{Session: sess, Reply: reply})
}

type messageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	reply, err := s.interviews.Message(r.Context(), chi.URLParam(r, "id"), req.Message)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.interviews.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, sess)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	reply, err := s.interviews.End(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, reply)
}

func (s *Server) handleFeedback(w http.ResponseWriter, r *http.Request) {
	summary, err := s.interviews.Feedback(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, summary)
}
