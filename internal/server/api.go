package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/internal/feedback"
	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/questions"
	"github.com/MrWong99/rehearsa/pkg/types"
)

type ttsRequest struct {
	Text  string `json:"text"`
	Voice string `json:"voice,omitempty"`
}

func (s *Server) handleTextToSpeech(w http.ResponseWriter, r *http.Request) {
	if s.cfg.TTS == nil {
		writeError(w, http.StatusNotImplemented, "speech synthesis is not configured")
		return
	}
	var req ttsRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "Missing text")
		return
	}

	voice := s.cfg.Voice
	if req.Voice != "" {
		voice.ID = req.Voice
	}
	clip, err := s.cfg.TTS.Synthesize(r.Context(), req.Text, voice)
	if err != nil {
		observe.WithTrace(r.Context(), s.log).Warn("text-to-speech failed", "err", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	ct := clip.ContentType
	if ct == "" {
		ct = "audio/mpeg"
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Audio)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(clip.Audio)
}

type sttResponse struct {
	Success    bool   `json:"success"`
	Transcript string `json:"transcript"`
}

func (s *Server) handleSpeechToText(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Transcriber == nil {
		writeError(w, http.StatusNotImplemented, "transcription is not configured")
		return
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.MaxAudioBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "audio too large")
			return
		}
		writeError(w, http.StatusBadRequest, "could not read audio")
		return
	}

	text, err := s.cfg.Transcriber.Transcribe(r.Context(), body, r.Header.Get("Content-Type"))
	if err != nil {
		observe.WithTrace(r.Context(), s.log).Warn("speech-to-text failed", "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, sttResponse{Success: true, Transcript: text})
}

type nextQuestionRequest struct {
	Messages       []types.Message `json:"messages"`
	BaseQuestion   *string         `json:"baseQuestion"`
	RemainingCount *int            `json:"remainingCount"`
}

type nextQuestionResponse struct {
	Success  bool          `json:"success"`
	Type     decision.Kind `json:"type"`
	Question string        `json:"question,omitempty"`
}

func (s *Server) handleNextQuestion(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Decider == nil {
		writeError(w, http.StatusNotImplemented, "decisions are not configured")
		return
	}
	var req nextQuestionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, http.StatusBadRequest, "Missing conversation messages")
		return
	}
	remaining := s.cfg.DefaultRemaining
	if req.RemainingCount != nil {
		remaining = *req.RemainingCount
	}

	d, err := s.cfg.Decider.Decide(r.Context(), decision.Request{
		Messages:     req.Messages,
		BaseQuestion: req.BaseQuestion,
		Remaining:    remaining,
	})
	if err != nil {
		observe.WithTrace(r.Context(), s.log).Warn("next-question failed", "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, nextQuestionResponse{Success: true, Type: d.Kind, Question: d.Question})
}

type createFeedbackRequest struct {
	InterviewID string           `json:"interviewId"`
	UserID      string           `json:"userId"`
	Transcript  *[]types.Message `json:"transcript"`
	FeedbackID  string           `json:"feedbackId,omitempty"`
}

type createFeedbackResponse struct {
	Success    bool   `json:"success"`
	FeedbackID string `json:"feedbackId"`
}

func (s *Server) handleCreateFeedback(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Finalizer == nil {
		writeError(w, http.StatusNotImplemented, "feedback is not configured")
		return
	}
	var req createFeedbackRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.InterviewID == "" || req.UserID == "" || req.Transcript == nil {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	id, err := s.cfg.Finalizer.Finalize(r.Context(), feedback.Request{
		InterviewID: req.InterviewID,
		UserID:      req.UserID,
		Transcript:  *req.Transcript,
		FeedbackID:  req.FeedbackID,
	})
	if err != nil {
		observe.WithTrace(r.Context(), s.log).Error("create-feedback failed", "interview_id", req.InterviewID, "err", err)
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, createFeedbackResponse{Success: true, FeedbackID: id})
}

// flexInt accepts a JSON number or a numeric string. Unparseable values
// decode as zero.
type flexInt int

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		n, _ := strconv.Atoi(strings.TrimSpace(s))
		*f = flexInt(n)
		return nil
	}
	var n float64
	if err := json.Unmarshal(b, &n); err != nil {
		*f = 0
		return nil
	}
	*f = flexInt(n)
	return nil
}

type generateRequest struct {
	Type      string  `json:"type"`
	Role      string  `json:"role"`
	Level     string  `json:"level"`
	TechStack string  `json:"techstack"`
	Amount    flexInt `json:"amount"`
	UserID    string  `json:"userid"`
}

type generateResponse struct {
	Success bool   `json:"success"`
	ID      string `json:"id"`
}

func (s *Server) handleGenerateInterview(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Generator == nil {
		writeError(w, http.StatusNotImplemented, "question generation is not configured")
		return
	}
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Amount == 0 {
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	iv, err := s.cfg.Generator.Generate(r.Context(), questions.Request{
		UserID:    req.UserID,
		Role:      req.Role,
		Level:     req.Level,
		Type:      req.Type,
		TechStack: req.TechStack,
		Amount:    int(req.Amount),
	})
	switch {
	case errors.Is(err, questions.ErrMissingFields):
		writeError(w, http.StatusBadRequest, "Missing required fields")
		return
	case errors.Is(err, questions.ErrNoQuestions):
		writeError(w, http.StatusBadGateway, "Failed to generate questions")
		return
	case err != nil:
		observe.WithTrace(r.Context(), s.log).Error("generate-interview failed", "err", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{Success: true, ID: iv.ID})
}
