// Package deepgram provides a TTS provider backed by Deepgram's Aura
// text-to-speech REST API (POST /v1/speak).
package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/MrWong99/rehearsa/pkg/provider/tts"
	"github.com/MrWong99/rehearsa/pkg/types"
)

const (
	defaultBaseURL  = "https://api.deepgram.com"
	defaultVoice    = "aura-2-odysseus-en"
	defaultEncoding = "mp3"
	defaultTimeout  = 30 * time.Second
	maxErrorBody    = 512
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Deepgram TTS Provider.
type Option func(*Provider)

// WithDefaultVoice sets the Aura model used when the VoiceProfile has no ID.
func WithDefaultVoice(voice string) Option {
	return func(p *Provider) {
		p.voice = voice
	}
}

// WithEncoding sets the output encoding ("mp3", "linear16", "opus", ...).
func WithEncoding(enc string) Option {
	return func(p *Provider) {
		p.encoding = enc
	}
}

// WithBaseURL overrides the API base URL. Intended for tests and proxies.
func WithBaseURL(u string) Option {
	return func(p *Provider) {
		p.baseURL = u
	}
}

// WithHTTPClient replaces the HTTP client used for requests.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = c
	}
}

// Provider implements tts.Provider backed by Deepgram Aura.
type Provider struct {
	apiKey     string
	baseURL    string
	voice      string
	encoding   string
	httpClient *http.Client
}

// New creates a new Deepgram TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("deepgram: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		voice:      defaultVoice,
		encoding:   defaultEncoding,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

type speakRequest struct {
	Text string `json:"text"`
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) (tts.Clip, error) {
	if text == "" {
		return tts.Clip{}, errors.New("deepgram: text must not be empty")
	}

	body, err := json.Marshal(speakRequest{Text: text})
	if err != nil {
		return tts.Clip{}, fmt.Errorf("deepgram: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.buildURL(voice), bytes.NewReader(body))
	if err != nil {
		return tts.Clip{}, fmt.Errorf("deepgram: create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("deepgram: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return tts.Clip{}, fmt.Errorf("deepgram: speak returned HTTP %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return tts.Clip{}, fmt.Errorf("deepgram: read audio: %w", err)
	}
	if len(audio) == 0 {
		return tts.Clip{}, errors.New("deepgram: empty audio in response")
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = contentTypeFor(p.encoding)
	}
	return tts.Clip{Audio: audio, ContentType: contentType}, nil
}

func (p *Provider) buildURL(voice types.VoiceProfile) string {
	model := voice.ID
	if model == "" {
		model = p.voice
	}
	q := url.Values{}
	q.Set("model", model)
	q.Set("encoding", p.encoding)
	return p.baseURL + "/v1/speak?" + q.Encode()
}

func contentTypeFor(encoding string) string {
	switch encoding {
	case "mp3":
		return "audio/mpeg"
	case "opus":
		return "audio/ogg"
	case "linear16":
		return "audio/l16"
	default:
		return "application/octet-stream"
	}
}
