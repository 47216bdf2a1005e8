package elevenlabs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/rehearsa/pkg/types"
)

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestSynthesize_Request(t *testing.T) {
	var (
		gotPath   string
		gotFormat string
		gotKey    string
		gotBody   synthesisRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFormat = r.URL.Query().Get("output_format")
		gotKey = r.Header.Get("xi-api-key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = io.WriteString(w, "mp3")
	}))
	defer srv.Close()

	p, _ := New("el-key", WithBaseURL(srv.URL))
	clip, err := p.Synthesize(context.Background(), "Why this role?", types.VoiceProfile{ID: "voice-1", SpeedFactor: 1.5})
	if err != nil {
		t.Fatalf("Synthesize: %v", err)
	}
	if string(clip.Audio) != "mp3" {
		t.Errorf("audio = %q", clip.Audio)
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotFormat != "mp3_44100_128" {
		t.Errorf("output_format = %q", gotFormat)
	}
	if gotKey != "el-key" {
		t.Errorf("xi-api-key = %q", gotKey)
	}
	if gotBody.ModelID != "eleven_flash_v2_5" || gotBody.Text != "Why this role?" {
		t.Errorf("body = %+v", gotBody)
	}
	if gotBody.VoiceSettings == nil || gotBody.VoiceSettings.Speed != maxSpeed {
		t.Errorf("speed must be clamped to %v, got %+v", maxSpeed, gotBody.VoiceSettings)
	}
}

func TestSynthesize_Errors(t *testing.T) {
	p, _ := New("el-key")
	if _, err := p.Synthesize(context.Background(), "hi", types.VoiceProfile{}); err == nil {
		t.Error("expected error without any voice id")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()
	p2, _ := New("el-key", WithBaseURL(srv.URL), WithDefaultVoice("v"))
	if _, err := p2.Synthesize(context.Background(), "hi", types.VoiceProfile{}); err == nil {
		t.Error("expected error for HTTP 401")
	}
}
