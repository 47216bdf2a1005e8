package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/coder/websocket"

	"github.com/MrWong99/rehearsa/internal/interview"
	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/store"
)

const defaultListLimit = 20

type createSessionRequest struct {
	InterviewID string   `json:"interviewId,omitempty"`
	UserID      string   `json:"userId,omitempty"`
	Questions   []string `json:"questions,omitempty"`
}

type createSessionResponse struct {
	SessionID   string `json:"sessionId"`
	InterviewID string `json:"interviewId"`
	Total       int    `json:"total"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotImplemented, "sessions are not configured")
		return
	}
	var req createSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	user := r.Header.Get(UserHeader)
	if user == "" {
		user = req.UserID
	}

	sess, err := s.cfg.Sessions.Create(r.Context(), interview.StartRequest{
		InterviewID: req.InterviewID,
		UserID:      user,
		Questions:   req.Questions,
	})
	if err != nil {
		if errors.Is(err, interview.ErrMissingUser) {
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	st := sess.Status()
	writeJSON(w, http.StatusCreated, createSessionResponse{
		SessionID:   st.ID,
		InterviewID: st.InterviewID,
		Total:       st.Total,
	})
}

// ownedSession resolves the {id} path value to a session owned by the
// caller, writing the error response otherwise.
func (s *Server) ownedSession(w http.ResponseWriter, r *http.Request) (*interview.Session, bool) {
	if s.cfg.Sessions == nil {
		writeError(w, http.StatusNotImplemented, "sessions are not configured")
		return nil, false
	}
	user, ok := requireUser(w, r)
	if !ok {
		return nil, false
	}
	sess, err := s.cfg.Sessions.Get(r.PathValue("id"))
	if err != nil || sess.UserID() != user {
		writeError(w, http.StatusNotFound, interview.ErrSessionNotFound.Error())
		return nil, false
	}
	return sess, true
}

func (s *Server) handleSessionStatus(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sess.Status())
}

func (s *Server) handleStopAnswer(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Sessions.StopAnswer(sess.ID()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	if err := s.cfg.Sessions.End(sess.ID()); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// handleSessionSocket upgrades to a websocket, attaches the connection as
// the session's speaker and microphone and streams session events until the
// session terminates.
func (s *Server) handleSessionSocket(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.ownedSession(w, r)
	if !ok {
		return
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.AllowedOrigins,
	})
	if err != nil {
		s.log.Warn("websocket accept failed", "session_id", sess.ID(), "err", err)
		return
	}

	t := NewTransport(conn, observe.WithTrace(r.Context(), s.log).With("session_id", sess.ID()))
	if _, err := s.cfg.Sessions.Attach(sess.ID(), t, t); err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}
	t.Serve(r.Context(), sess)
}

func (s *Server) handleListInterviews(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusNotImplemented, "storage is not configured")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	ivs, err := s.cfg.Store.ListInterviews(r.Context(), user, limit)
	if err != nil {
		s.log.Error("list interviews failed", "err", err)
		writeError(w, http.StatusInternalServerError, "could not list interviews")
		return
	}
	if ivs == nil {
		ivs = []store.Interview{}
	}
	writeJSON(w, http.StatusOK, ivs)
}

func (s *Server) handleGetInterview(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusNotImplemented, "storage is not configured")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	iv, err := s.cfg.Store.GetInterview(r.Context(), r.PathValue("id"))
	if err != nil || iv.UserID != user {
		writeError(w, http.StatusNotFound, store.ErrNotFound.Error())
		return
	}
	writeJSON(w, http.StatusOK, iv)
}

func (s *Server) handleGetFeedback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Store == nil {
		writeError(w, http.StatusNotImplemented, "storage is not configured")
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	fb, err := s.cfg.Store.GetFeedback(r.Context(), r.PathValue("id"), user)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			s.log.Error("get feedback failed", "err", err)
		}
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, fb)
}
