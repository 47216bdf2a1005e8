package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/MrWong99/rehearsa/internal/interview"
	"github.com/MrWong99/rehearsa/pkg/audio"
)

// Client control messages (client → server text frames).
const (
	ctrlAudible    = "audible"
	ctrlEnded      = "ended"
	ctrlMicGranted = "mic_granted"
	ctrlMicDenied  = "mic_denied"
	ctrlStopAnswer = "stop_answer"
	ctrlEnd        = "end"
)

// Server instructions (server → client text frames). Session events share
// the same channel and are told apart by their type.
const (
	cmdPlay       = "play"
	cmdStop       = "stop"
	cmdRecord     = "record"
	cmdRecordStop = "record_stop"
)

const (
	defaultPermissionTimeout = 30 * time.Second
	writeTimeout             = 10 * time.Second
	micBuffer                = 256
)

// ErrPermissionTimeout is returned by [Transport.Open] when the client did not
// answer the microphone permission request in time. Unlike a refusal it is not
// remembered, so a later Open asks again.
var ErrPermissionTimeout = errors.New("server: no microphone permission answer from client")

// clientMessage is a control frame sent by the browser.
type clientMessage struct {
	Type string `json:"type"`
	ID   int64  `json:"id,omitempty"`

	// ContentType is the recorder format, sent with mic_granted.
	ContentType string `json:"contentType,omitempty"`
}

// serverMessage is an instruction frame sent to the browser. A play message
// with HasAudio set is followed by one binary frame holding the clip.
type serverMessage struct {
	Type        string  `json:"type"`
	ID          int64   `json:"id,omitempty"`
	Text        string  `json:"text,omitempty"`
	ContentType string  `json:"contentType,omitempty"`
	Rate        float64 `json:"rate,omitempty"`
	HasAudio    bool    `json:"hasAudio,omitempty"`
}

type permission int

const (
	permUnknown permission = iota
	permGranted
	permDenied
)

// controller receives the candidate's session commands.
type controller interface {
	StopAnswer()
	End()
}

// Transport connects one browser tab to one session. It plays interviewer
// clips on the client and receives microphone chunks from it, implementing
// [audio.Player] and [audio.Microphone].
type Transport struct {
	conn              *websocket.Conn
	log               *slog.Logger
	permissionTimeout time.Duration

	writeMu sync.Mutex

	mu        sync.Mutex
	seq       int64
	playing   map[int64]*audio.Handle
	mic       *micStream
	perm      permission
	micType   string
	permKnown chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

var (
	_ audio.Player     = (*Transport)(nil)
	_ audio.Microphone = (*Transport)(nil)
)

// NewTransport wraps an accepted websocket connection.
func NewTransport(conn *websocket.Conn, log *slog.Logger) *Transport {
	if log == nil {
		log = slog.Default()
	}
	return &Transport{
		conn:              conn,
		log:               log,
		permissionTimeout: defaultPermissionTimeout,
		playing:           make(map[int64]*audio.Handle),
		micType:           defaultMicContentType,
		permKnown:         make(chan struct{}),
		closed:            make(chan struct{}),
	}
}

// Play implements [audio.Player]. A clip without audio is delivered as a
// caption and counts as audible and finished immediately.
func (t *Transport) Play(ctx context.Context, clip audio.Clip) (audio.Playback, error) {
	t.mu.Lock()
	t.seq++
	id := t.seq
	t.mu.Unlock()

	msg := serverMessage{
		Type:        cmdPlay,
		ID:          id,
		Text:        clip.Text,
		ContentType: clip.ContentType,
		Rate:        clip.Rate,
		HasAudio:    len(clip.Audio) > 0,
	}

	h := audio.NewHandle(func() {
		t.forget(id)
		if err := t.send(context.Background(), serverMessage{Type: cmdStop, ID: id}); err != nil {
			t.log.Debug("send stop", "id", id, "err", err)
		}
	})
	if !msg.HasAudio {
		if err := t.send(ctx, msg); err != nil {
			return nil, err
		}
		h.MarkAudible()
		h.MarkDone()
		return h, nil
	}

	t.mu.Lock()
	t.playing[id] = h
	t.mu.Unlock()

	if err := t.sendClip(ctx, msg, clip.Audio); err != nil {
		t.forget(id)
		return nil, err
	}
	return h, nil
}

// Open implements [audio.Microphone]. It waits for the client to report
// whether microphone access was granted.
func (t *Transport) Open(ctx context.Context) (audio.InputStream, error) {
	timer := time.NewTimer(t.permissionTimeout)
	defer timer.Stop()
	select {
	case <-t.permKnown:
	case <-timer.C:
		return nil, fmt.Errorf("%w within %s", ErrPermissionTimeout, t.permissionTimeout)
	case <-t.closed:
		return nil, audio.ErrDeviceClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	t.mu.Lock()
	if t.perm == permDenied {
		t.mu.Unlock()
		return nil, audio.ErrPermissionDenied
	}
	if t.mic != nil {
		t.mu.Unlock()
		return nil, errors.New("server: microphone already open")
	}
	s := &micStream{t: t, ch: make(chan []byte, micBuffer), contentType: t.micType}
	t.mic = s
	t.mu.Unlock()

	if err := t.send(ctx, serverMessage{Type: cmdRecord}); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// Serve pumps session events to the client and client frames to the session
// until the session ended or the client went away. A client that disconnects
// mid-interview ends the session.
func (t *Transport) Serve(ctx context.Context, sess *interview.Session) {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		t.readLoop(ctx, sess)
	}()

	for ev := range sess.Events() {
		wctx, cancel := context.WithTimeout(ctx, writeTimeout)
		err := t.writeJSON(wctx, ev)
		cancel()
		if err != nil {
			t.log.Debug("send event", "type", ev.Type, "err", err)
		}
	}
	t.conn.Close(websocket.StatusNormalClosure, "interview finished")
	wg.Wait()
}

func (t *Transport) readLoop(ctx context.Context, ctl controller) {
	defer t.shutdown()
	for {
		typ, data, err := t.conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				t.log.Debug("websocket read", "err", err)
			}
			ctl.End()
			return
		}
		switch typ {
		case websocket.MessageBinary:
			t.deliver(data)
		case websocket.MessageText:
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.log.Debug("malformed client message", "err", err)
				continue
			}
			t.handle(msg, ctl)
		}
	}
}

func (t *Transport) handle(msg clientMessage, ctl controller) {
	switch msg.Type {
	case ctrlAudible:
		if h := t.handleFor(msg.ID); h != nil {
			h.MarkAudible()
		}
	case ctrlEnded:
		if h := t.handleFor(msg.ID); h != nil {
			h.MarkAudible()
			h.MarkDone()
			t.forget(msg.ID)
		}
	case ctrlMicGranted:
		t.setPermission(permGranted, msg.ContentType)
	case ctrlMicDenied:
		t.setPermission(permDenied, "")
	case ctrlStopAnswer:
		ctl.StopAnswer()
	case ctrlEnd:
		ctl.End()
	default:
		t.log.Debug("unknown client message", "type", msg.Type)
	}
}

func (t *Transport) setPermission(p permission, contentType string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.perm != permUnknown {
		return
	}
	t.perm = p
	if contentType != "" {
		t.micType = contentType
	}
	close(t.permKnown)
}

// deliver hands a microphone chunk to the open stream. Chunks arriving while
// no answer is recorded are dropped.
func (t *Transport) deliver(chunk []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mic == nil {
		return
	}
	select {
	case t.mic.ch <- chunk:
	default:
		t.log.Warn("microphone buffer full, chunk dropped", "bytes", len(chunk))
	}
}

func (t *Transport) handleFor(id int64) *audio.Handle {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.playing[id]
}

func (t *Transport) forget(id int64) {
	t.mu.Lock()
	delete(t.playing, id)
	t.mu.Unlock()
}

// shutdown releases everything waiting on the client.
func (t *Transport) shutdown() {
	t.closeOnce.Do(func() {
		close(t.closed)
		t.mu.Lock()
		for id, h := range t.playing {
			h.MarkAudible()
			h.MarkDone()
			delete(t.playing, id)
		}
		t.mu.Unlock()
	})
}

func (t *Transport) send(ctx context.Context, msg serverMessage) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return t.writeJSON(wctx, msg)
}

func (t *Transport) writeJSON(ctx context.Context, v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	return wsjson.Write(ctx, t.conn, v)
}

// sendClip writes the play instruction and the audio frame back to back.
func (t *Transport) sendClip(ctx context.Context, msg serverMessage, data []byte) error {
	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if err := wsjson.Write(wctx, t.conn, msg); err != nil {
		return err
	}
	return t.conn.Write(wctx, websocket.MessageBinary, data)
}

// micStream is the [audio.InputStream] of one recorded answer.
type micStream struct {
	t           *Transport
	ch          chan []byte
	contentType string
	once        sync.Once
}

func (s *micStream) Chunks() <-chan []byte { return s.ch }

func (s *micStream) ContentType() string { return s.contentType }

func (s *micStream) Close() error {
	s.once.Do(func() {
		s.t.mu.Lock()
		if s.t.mic == s {
			s.t.mic = nil
		}
		close(s.ch)
		s.t.mu.Unlock()

		if err := s.t.send(context.Background(), serverMessage{Type: cmdRecordStop}); err != nil {
			s.t.log.Debug("send record_stop", "err", err)
		}
	})
	return nil
}

// defaultMicContentType is the MediaRecorder format browsers use by default.
const defaultMicContentType = "audio/webm"
