package whisper

import (
	"context"
	"encoding/binary"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/rehearsa/pkg/provider/stt"
)

func TestNew_EmptyURL(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty server URL")
	}
}

func TestTranscribe_Multipart(t *testing.T) {
	var (
		gotFile     string
		gotLanguage string
		gotFormat   string
		gotAudio    []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/inference" {
			http.NotFound(w, r)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer f.Close()
		gotFile = hdr.Filename
		gotAudio, _ = io.ReadAll(f)
		gotLanguage = r.FormValue("language")
		gotFormat = r.FormValue("response_format")
		_, _ = io.WriteString(w, `{"text":"  I enjoy debugging.  "}`)
	}))
	defer srv.Close()

	p, err := New(srv.URL+"/", WithLanguage("en"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("opus"), ContentType: "audio/webm;codecs=opus"})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if tr.Text != "I enjoy debugging." {
		t.Errorf("Text = %q, want trimmed transcript", tr.Text)
	}
	if gotFile != "audio.webm" {
		t.Errorf("filename = %q, want audio.webm", gotFile)
	}
	if string(gotAudio) != "opus" {
		t.Errorf("audio = %q, want passthrough", gotAudio)
	}
	if gotLanguage != "en" || gotFormat != "json" {
		t.Errorf("language=%q response_format=%q", gotLanguage, gotFormat)
	}
}

func TestTranscribe_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p, _ := New(srv.URL)
	if _, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1, 2}}); err == nil {
		t.Fatal("expected error for HTTP 503")
	}
}

func TestPrepareUpload(t *testing.T) {
	p, _ := New("http://localhost:8080")

	tests := []struct {
		contentType string
		wantName    string
	}{
		{"audio/webm", "audio.webm"},
		{"audio/mpeg", "audio.mp3"},
		{"audio/ogg;codecs=opus", "audio.ogg"},
		{"audio/wav", "audio.wav"},
		{"application/octet-stream", "audio.webm"},
	}
	for _, tt := range tests {
		name, _ := p.prepareUpload(tt.contentType, []byte{0})
		if name != tt.wantName {
			t.Errorf("prepareUpload(%q) name = %q, want %q", tt.contentType, name, tt.wantName)
		}
	}

	pcm := make([]byte, 320)
	name, wav := p.prepareUpload("audio/l16;rate=8000", pcm)
	if name != "audio.wav" {
		t.Fatalf("raw PCM name = %q, want audio.wav", name)
	}
	if len(wav) != 44+len(pcm) {
		t.Fatalf("wav length = %d, want %d", len(wav), 44+len(pcm))
	}
	if rate := binary.LittleEndian.Uint32(wav[24:28]); rate != 8000 {
		t.Errorf("sample rate = %d, want 8000", rate)
	}
}

func TestEncodeWAV_Header(t *testing.T) {
	wav := encodeWAV(make([]byte, 100), 16000, 1)
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("malformed header: %q", wav[:44])
	}
	if size := binary.LittleEndian.Uint32(wav[40:44]); size != 100 {
		t.Errorf("data size = %d, want 100", size)
	}
	if br := binary.LittleEndian.Uint32(wav[28:32]); br != 32000 {
		t.Errorf("byte rate = %d, want 32000", br)
	}
}
