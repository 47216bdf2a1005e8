// Package gateway adapts external collaborators for the interview
// orchestrator.
//
// Every gateway call is a single attempt bounded by a timeout ceiling;
// expiry counts as failure. A per-gateway circuit breaker turns a sustained
// outage into immediate failures, and each call is recorded in the
// provider metrics. Gateways are stateless apart from the breaker and are
// shared by all sessions.
package gateway

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/MrWong99/rehearsa/internal/observe"
	"github.com/MrWong99/rehearsa/internal/resilience"
)

// Option configures a gateway.
type Option func(*base)

// WithTimeout sets the per-call ceiling. Non-positive values are ignored.
func WithTimeout(d time.Duration) Option {
	return func(b *base) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMetrics records every call on m under the given provider name.
func WithMetrics(m *observe.Metrics, providerName string) Option {
	return func(b *base) {
		b.metrics = m
		b.name = providerName
	}
}

// WithCircuitBreaker overrides the breaker configuration.
func WithCircuitBreaker(cfg resilience.CircuitBreakerConfig) Option {
	return func(b *base) { b.breakerCfg = cfg }
}

type base struct {
	kind       string
	name       string
	timeout    time.Duration
	metrics    *observe.Metrics
	breakerCfg resilience.CircuitBreakerConfig
	breaker    *resilience.CircuitBreaker
}

func newBase(kind string, timeout time.Duration, opts []Option) base {
	b := base{
		kind:       kind,
		name:       kind,
		timeout:    timeout,
		breakerCfg: resilience.CircuitBreakerConfig{MaxFailures: 5, ResetTimeout: 30 * time.Second, HalfOpenMax: 1},
	}
	for _, o := range opts {
		o(&b)
	}
	if b.breakerCfg.Name == "" {
		b.breakerCfg.Name = "gateway/" + kind
	}
	if b.breakerCfg.OnStateChange == nil {
		b.breakerCfg.OnStateChange = b.reportTransition
	}
	b.breaker = resilience.NewCircuitBreaker(b.breakerCfg)
	return b
}

func (b *base) reportTransition(name string, from, to resilience.State) {
	level := slog.LevelInfo
	if to == resilience.StateOpen {
		level = slog.LevelWarn
	}
	slog.Log(context.Background(), level, "gateway breaker state changed",
		"breaker", name, "from", from.String(), "to", to.String())
	if b.metrics != nil {
		b.metrics.RecordBreakerTransition(context.Background(), name, to.String())
	}
}

// call runs fn once under the timeout and breaker and records the outcome.
func (b *base) call(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := observe.StartSpan(ctx, "gateway."+b.kind)
	defer span.End()
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	start := time.Now()
	err := b.breaker.Execute(func() error { return fn(ctx) })
	if b.metrics != nil {
		b.metrics.RecordProviderCall(ctx, b.name, b.kind, time.Since(start), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

// State reports the breaker state.
func (b *base) State() resilience.State { return b.breaker.State() }
