// Package mock provides a test double for the stt.Provider interface.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/rehearsa/pkg/provider/stt"
	"github.com/MrWong99/rehearsa/pkg/types"
)

// TranscribeCall records a single invocation of Transcribe.
type TranscribeCall struct {
	Req stt.Request
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Texts, when non-empty, are returned in order by successive calls. Once
	// exhausted, Text is used.
	Texts []string

	// Text is the transcript returned when Texts is exhausted.
	Text string

	// Errs, when non-empty, are consumed in order alongside Texts. A nil entry
	// means success for that call.
	Errs []error

	// Err, if non-nil, is returned by every call once Errs is exhausted.
	Err error

	// Block, when true, makes Transcribe wait for ctx cancellation.
	Block bool

	// TranscribeCalls records every invocation in order.
	TranscribeCalls []TranscribeCall
}

// Transcribe records the call and returns the next scripted result.
func (p *Provider) Transcribe(ctx context.Context, req stt.Request) (types.Transcript, error) {
	p.mu.Lock()
	audio := make([]byte, len(req.Audio))
	copy(audio, req.Audio)
	req.Audio = audio
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Req: req})

	text := p.Text
	if len(p.Texts) > 0 {
		text = p.Texts[0]
		p.Texts = p.Texts[1:]
	}
	err := p.Err
	if len(p.Errs) > 0 {
		err = p.Errs[0]
		p.Errs = p.Errs[1:]
	}
	block := p.Block
	p.mu.Unlock()

	if block {
		<-ctx.Done()
		return types.Transcript{}, ctx.Err()
	}
	if err != nil {
		return types.Transcript{}, err
	}
	return types.Transcript{Text: text}, nil
}

// Calls returns the number of Transcribe invocations. Thread-safe.
func (p *Provider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.TranscribeCalls)
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)
