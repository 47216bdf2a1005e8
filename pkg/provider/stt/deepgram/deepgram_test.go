package deepgram

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/MrWong99/rehearsa/pkg/provider/stt"
)

func TestNew_EmptyKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Fatal("expected error for empty api key")
	}
}

func TestBuildURL_Defaults(t *testing.T) {
	p, err := New("test-key")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	rawURL, err := p.buildURL(stt.Request{})
	if err != nil {
		t.Fatalf("buildURL: %v", err)
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse URL: %v", err)
	}
	q := u.Query()

	assertEqual(t, "path", "/v1/listen", u.Path)
	assertEqual(t, "model", "nova-2", q.Get("model"))
	assertEqual(t, "smart_format", "true", q.Get("smart_format"))
	assertEqual(t, "language", "en", q.Get("language"))
}

func TestBuildURL_Overrides(t *testing.T) {
	p, _ := New("key", WithModel("nova-3"), WithLanguage("de"))
	rawURL, _ := p.buildURL(stt.Request{Language: "fr"})
	u, _ := url.Parse(rawURL)
	q := u.Query()

	assertEqual(t, "model", "nova-3", q.Get("model"))
	assertEqual(t, "language", "fr", q.Get("language"))
}

func TestParseListenResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{
			name: "transcript",
			body: `{"metadata":{"duration":2.5},"results":{"channels":[{"alternatives":[{"transcript":"I led the migration.","confidence":0.97}]}]}}`,
			want: "I led the migration.",
		},
		{name: "no channels", body: `{"results":{"channels":[]}}`, want: ""},
		{name: "no alternatives", body: `{"results":{"channels":[{"alternatives":[]}]}}`, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseListenResponse([]byte(tt.body))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			assertEqual(t, "text", tt.want, got.Text)
		})
	}

	got, _ := parseListenResponse([]byte(tests[0].body))
	if got.Duration != 2500*time.Millisecond {
		t.Errorf("duration = %v, want 2.5s", got.Duration)
	}
	if _, err := parseListenResponse([]byte("not json")); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestTranscribe_HTTP(t *testing.T) {
	var gotAuth, gotType, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotType = r.Header.Get("Content-Type")
		b, _ := io.ReadAll(r.Body)
		gotBody = string(b)
		_, _ = io.WriteString(w, `{"results":{"channels":[{"alternatives":[{"transcript":"hello there"}]}]}}`)
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL))
	tr, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte("webm-bytes")})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	assertEqual(t, "text", "hello there", tr.Text)
	assertEqual(t, "auth", "Token secret", gotAuth)
	assertEqual(t, "content-type", "audio/webm", gotType)
	assertEqual(t, "body", "webm-bytes", gotBody)
}

func TestTranscribe_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusPaymentRequired)
	}))
	defer srv.Close()

	p, _ := New("secret", WithBaseURL(srv.URL))
	_, err := p.Transcribe(context.Background(), stt.Request{Audio: []byte{1}})
	if err == nil || !strings.Contains(err.Error(), "402") {
		t.Fatalf("expected HTTP 402 error, got %v", err)
	}

	if _, err := p.Transcribe(context.Background(), stt.Request{}); err == nil {
		t.Error("expected error for empty audio")
	}
}

func assertEqual(t *testing.T, field, want, got string) {
	t.Helper()
	if got != want {
		t.Errorf("%s: want %q, got %q", field, want, got)
	}
}
