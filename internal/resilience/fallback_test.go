package resilience

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func TestExecuteWithResult(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		failing   []string
		want      string
		wantCalls []string
		wantErr   error
	}{
		{
			name:      "primary answers",
			want:      "deepgram:hello",
			wantCalls: []string{"deepgram"},
		},
		{
			name:      "secondary takes over",
			failing:   []string{"deepgram"},
			want:      "whisper:hello",
			wantCalls: []string{"deepgram", "whisper"},
		},
		{
			name:      "every member fails",
			failing:   []string{"deepgram", "whisper"},
			wantCalls: []string{"deepgram", "whisper"},
			wantErr:   ErrAllFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			fg := NewFallbackGroup("deepgram", "deepgram", FallbackConfig{})
			fg.AddFallback("whisper", "whisper")

			var calls []string
			got, err := ExecuteWithResult(context.Background(), fg, func(name string) (string, error) {
				calls = append(calls, name)
				if slices.Contains(tt.failing, name) {
					return "", errTest
				}
				return name + ":hello", nil
			})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) || !errors.Is(err, errTest) {
					t.Fatalf("err = %v, want %v wrapping the last failure", err, tt.wantErr)
				}
			} else if err != nil {
				t.Fatalf("err = %v", err)
			}
			if got != tt.want {
				t.Errorf("result = %q, want %q", got, tt.want)
			}
			if !slices.Equal(calls, tt.wantCalls) {
				t.Errorf("calls = %v, want %v", calls, tt.wantCalls)
			}
		})
	}
}

func TestFallbackGroup_OpenPrimaryIsSkipped(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "elevenlabs", FallbackConfig{
		CircuitBreaker: CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour},
	})
	fg.AddFallback("deepgram", "secondary")

	var primaryCalls int
	call := func() error {
		return fg.Execute(context.Background(), func(v string) error {
			if v == "primary" {
				primaryCalls++
				return errTest
			}
			return nil
		})
	}
	for range 4 {
		if err := call(); err != nil {
			t.Fatalf("Execute: %v", err)
		}
	}
	if primaryCalls != 2 {
		t.Errorf("primary calls = %d, want 2 before its breaker opened", primaryCalls)
	}

	states := fg.States()
	if fg.Len() != 2 || states["elevenlabs"] != StateOpen || states["deepgram"] != StateClosed {
		t.Errorf("Len = %d, states = %v", fg.Len(), states)
	}
}

func TestFallbackGroup_StopsWhenContextDone(t *testing.T) {
	t.Parallel()
	fg := NewFallbackGroup("primary", "primary", FallbackConfig{})
	fg.AddFallback("secondary", "secondary")

	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	err := fg.Execute(ctx, func(v string) error {
		calls = append(calls, v)
		cancel()
		return context.Canceled
	})
	if !errors.Is(err, ErrAllFailed) || !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want ErrAllFailed wrapping context.Canceled", err)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only the primary", calls)
	}
	if fg.States()["primary"] != StateClosed {
		t.Error("cancellation counted against the primary's breaker")
	}
}
