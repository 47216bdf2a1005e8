package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/rehearsa/internal/capture"
	"github.com/MrWong99/rehearsa/internal/interview"
	"github.com/MrWong99/rehearsa/internal/playback"
	"github.com/MrWong99/rehearsa/internal/store/memstore"
	"github.com/MrWong99/rehearsa/pkg/audio"
	ttsmock "github.com/MrWong99/rehearsa/pkg/provider/tts/mock"
)

type sessionFixture struct {
	handler   http.Handler
	manager   *interview.Manager
	finalizer *fakeFinalizer
}

func newSessionFixture(t *testing.T) *sessionFixture {
	t.Helper()
	st := memstore.New()
	fin := &fakeFinalizer{}
	m := interview.NewManager(interview.ManagerConfig{
		Interviews:  st,
		Transcriber: &fakeTranscriber{},
		Decider:     &fakeDecider{},
		Finalizer:   fin,
		Devices: func(player audio.Player, mic audio.Microphone) (interview.Speaker, interview.Recorder) {
			return playback.NewSpeaker(&ttsmock.Provider{}, player), capture.NewRecorder(mic)
		},
		MaxSessions: 4,
	})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = m.Shutdown(ctx)
	})
	return &sessionFixture{
		handler:   New(Config{Sessions: m, Store: st}).Handler(),
		manager:   m,
		finalizer: fin,
	}
}

func (f *sessionFixture) create(t *testing.T, user string, questions ...string) createSessionResponse {
	t.Helper()
	rec := do(t, f.handler, http.MethodPost, "/v1/sessions", user, map[string]any{"questions": questions})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body %s", rec.Code, rec.Body)
	}
	return decodeBody[createSessionResponse](t, rec)
}

func TestCreateSession(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)

	got := f.create(t, "u1", "Why Go?", "What is a channel?")
	if got.SessionID == "" || got.InterviewID == "" || got.Total != 2 {
		t.Errorf("response = %+v", got)
	}

	tests := []struct {
		name       string
		user       string
		body       any
		wantStatus int
	}{
		{"no user", "", map[string]any{"questions": []string{"Q"}}, http.StatusUnauthorized},
		{"user from body", "", map[string]any{"userId": "u9", "questions": []string{"Q"}}, http.StatusCreated},
		{"no questions", "u1", map[string]any{"questions": []string{" "}}, http.StatusBadRequest},
		{"unknown interview", "u1", map[string]any{"interviewId": "nope"}, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rec := do(t, f.handler, http.MethodPost, "/v1/sessions", tc.user, tc.body)
			if rec.Code != tc.wantStatus {
				t.Errorf("status = %d, want %d (body %s)", rec.Code, tc.wantStatus, rec.Body)
			}
		})
	}
}

func TestSessionStatus_Ownership(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	s := f.create(t, "u1", "Q1")

	rec := do(t, f.handler, http.MethodGet, "/v1/sessions/"+s.SessionID, "u1", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st := decodeBody[interview.Status](t, rec); st.Phase != interview.Idle || st.Total != 1 {
		t.Errorf("status = %+v", st)
	}

	for _, user := range []string{"u2", ""} {
		rec := do(t, f.handler, http.MethodGet, "/v1/sessions/"+s.SessionID, user, nil)
		if rec.Code == http.StatusOK {
			t.Errorf("user %q could read the session", user)
		}
	}
	if rec := do(t, f.handler, http.MethodPost, "/v1/sessions/missing/end", "u1", nil); rec.Code != http.StatusNotFound {
		t.Errorf("end missing = %d", rec.Code)
	}
}

func TestEndSession_BeforeAttachFinalizes(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	s := f.create(t, "u1", "Q1")

	if rec := do(t, f.handler, http.MethodPost, "/v1/sessions/"+s.SessionID+"/stop-answer", "u1", nil); rec.Code != http.StatusAccepted {
		t.Errorf("stop-answer = %d", rec.Code)
	}
	if rec := do(t, f.handler, http.MethodPost, "/v1/sessions/"+s.SessionID+"/end", "u1", nil); rec.Code != http.StatusAccepted {
		t.Fatalf("end = %d", rec.Code)
	}

	sess, err := f.manager.Get(s.SessionID)
	if err != nil {
		t.Fatal(err)
	}
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
	out, ok := sess.Outcome()
	if !ok || out.FeedbackID != "fb-1" {
		t.Errorf("outcome = %+v, %v", out, ok)
	}
	if calls := f.finalizer.Calls(); len(calls) != 1 || len(calls[0].Transcript) != 0 {
		t.Errorf("finalizer calls = %+v", calls)
	}
}

// wsFrame is the union of the instruction and event frames the browser sees.
type wsFrame struct {
	Type     string             `json:"type"`
	ID       int64              `json:"id"`
	Text     string             `json:"text"`
	HasAudio bool               `json:"hasAudio"`
	Phase    interview.Phase    `json:"phase"`
	Outcome  *interview.Outcome `json:"outcome"`
}

func TestSessionSocket_FullInterview(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	s := f.create(t, "u1", "Tell me about yourself.")

	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + s.SessionID + "/ws?userId=u1"
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.CloseNow()

	if err := wsjson.Write(ctx, conn, clientMessage{Type: ctrlMicGranted, ContentType: "audio/ogg"}); err != nil {
		t.Fatalf("write mic_granted: %v", err)
	}

	var (
		spoken  []string
		played  int
		outcome *interview.Outcome
	)
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.Fatalf("read: %v", err)
			}
			break
		}
		if typ == websocket.MessageBinary {
			played++
			continue
		}
		var fr wsFrame
		if err := json.Unmarshal(data, &fr); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		switch fr.Type {
		case cmdPlay:
			if fr.HasAudio {
				_ = wsjson.Write(ctx, conn, clientMessage{Type: ctrlAudible, ID: fr.ID})
				_ = wsjson.Write(ctx, conn, clientMessage{Type: ctrlEnded, ID: fr.ID})
			}
		case cmdRecord:
			_ = conn.Write(ctx, websocket.MessageBinary, []byte("answer-audio"))
			_ = wsjson.Write(ctx, conn, clientMessage{Type: ctrlStopAnswer})
		case string(interview.EventSpeak):
			spoken = append(spoken, fr.Text)
		case string(interview.EventOutcome):
			outcome = fr.Outcome
		}
	}

	if len(spoken) != 1 || spoken[0] != "Tell me about yourself." {
		t.Errorf("spoken = %q", spoken)
	}
	if played != 1 {
		t.Errorf("audio frames = %d, want 1", played)
	}
	if outcome == nil || outcome.FeedbackID != "fb-1" || outcome.Redirect != "/interview/"+s.InterviewID+"/feedback" {
		t.Fatalf("outcome = %+v", outcome)
	}

	calls := f.finalizer.Calls()
	if len(calls) != 1 {
		t.Fatalf("finalizer calls = %d", len(calls))
	}
	tr := calls[0].Transcript
	if len(tr) != 2 || tr[0].Content != "Tell me about yourself." || tr[1].Content != "an answer" {
		t.Errorf("transcript = %+v", tr)
	}
}

func TestSessionSocket_RejectsForeignUser(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	s := f.create(t, "u1", "Q1")

	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + s.SessionID + "/ws?userId=u2"
	_, resp, err := websocket.Dial(ctx, url, nil)
	if err == nil {
		t.Fatal("Dial succeeded for a foreign user")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("response = %+v", resp)
	}
}

func (f *sessionFixture) dial(ctx context.Context, t *testing.T, sessionID, user string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(f.handler)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + sessionID + "/ws?userId=" + user
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func (f *sessionFixture) waitOutcome(t *testing.T, sessionID string) interview.Outcome {
	t.Helper()
	sess, err := f.manager.Get(sessionID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	select {
	case <-sess.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("session did not terminate")
	}
	out, _ := sess.Outcome()
	return out
}

func TestSessionSocket_MicrophoneDenied(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	s := f.create(t, "u1", "Tell me about yourself.", "Why this role?")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := f.dial(ctx, t, s.SessionID, "u1")

	if err := wsjson.Write(ctx, conn, clientMessage{Type: ctrlMicDenied}); err != nil {
		t.Fatalf("write mic_denied: %v", err)
	}

	var outcome *interview.Outcome
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			break
		}
		if typ == websocket.MessageBinary {
			continue
		}
		var fr wsFrame
		if err := json.Unmarshal(data, &fr); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		switch fr.Type {
		case cmdPlay:
			if fr.HasAudio {
				_ = wsjson.Write(ctx, conn, clientMessage{Type: ctrlAudible, ID: fr.ID})
			}
		case cmdRecord:
			t.Error("recording requested after the candidate refused the microphone")
		case string(interview.EventOutcome):
			outcome = fr.Outcome
		}
	}

	if outcome == nil || !strings.Contains(outcome.Error, "microphone unavailable") {
		t.Fatalf("outcome = %+v, want the refusal surfaced", outcome)
	}
	if outcome.FeedbackID != "fb-1" {
		t.Errorf("feedback id = %q, want the partial transcript finalized", outcome.FeedbackID)
	}
	calls := f.finalizer.Calls()
	if len(calls) != 1 || len(calls[0].Transcript) != 1 {
		t.Errorf("finalizer calls = %+v, want one call with the opening question", calls)
	}
}

func TestSessionSocket_DisconnectWhileAnswering(t *testing.T) {
	t.Parallel()
	f := newSessionFixture(t)
	s := f.create(t, "u1", "Tell me about yourself.", "Why this role?")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	conn := f.dial(ctx, t, s.SessionID, "u1")

	if err := wsjson.Write(ctx, conn, clientMessage{Type: ctrlMicGranted}); err != nil {
		t.Fatalf("write mic_granted: %v", err)
	}
	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read before recording started: %v", err)
		}
		if typ == websocket.MessageBinary {
			continue
		}
		var fr wsFrame
		if err := json.Unmarshal(data, &fr); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if fr.Type == cmdPlay && fr.HasAudio {
			_ = wsjson.Write(ctx, conn, clientMessage{Type: ctrlAudible, ID: fr.ID})
		}
		if fr.Type == cmdRecord {
			_ = conn.Write(ctx, websocket.MessageBinary, []byte("half an answer"))
			conn.CloseNow()
			break
		}
	}

	out := f.waitOutcome(t, s.SessionID)
	if out.Err != nil || out.FeedbackID != "fb-1" {
		t.Errorf("outcome = %+v, want finalized without error", out)
	}
	calls := f.finalizer.Calls()
	if len(calls) != 1 {
		t.Fatalf("finalizer calls = %d, want 1", len(calls))
	}
	tr := calls[0].Transcript
	if len(tr) != 2 || tr[1].Content != "an answer" {
		t.Errorf("transcript = %+v, want the question and the interrupted answer", tr)
	}
}
