package gateway

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/MrWong99/rehearsa/internal/decision"
	"github.com/MrWong99/rehearsa/internal/observe"
)

const defaultDecisionTimeout = 10 * time.Second

// Decider is the reasoning collaborator behind the [Decision] gateway.
type Decider interface {
	Decide(ctx context.Context, req decision.Request) (decision.Decision, error)
}

// Decision asks a [Decider] for the next interviewer move and holds it to
// the budget contract whatever the collaborator answers.
type Decision struct {
	base
	svc Decider
}

// NewDecision returns a Decision gateway over svc.
func NewDecision(svc Decider, opts ...Option) *Decision {
	return &Decision{
		base: newBase(observe.KindDecision, defaultDecisionTimeout, opts),
		svc:  svc,
	}
}

// Decide returns the next move. With no budget left it returns End without
// calling the collaborator.
func (g *Decision) Decide(ctx context.Context, req decision.Request) (decision.Decision, error) {
	if req.Remaining <= 0 {
		return decision.Decision{Kind: decision.End}, nil
	}

	var d decision.Decision
	err := g.call(ctx, func(ctx context.Context) error {
		var err error
		d, err = g.svc.Decide(ctx, req)
		return err
	})
	if err != nil {
		return decision.Decision{}, fmt.Errorf("gateway: decide: %w", err)
	}

	switch d.Kind {
	case decision.Followup:
		n := utf8.RuneCountInString(d.Question)
		if n < decision.MinFollowupLen || n > decision.MaxFollowupLen {
			return decision.Decision{}, fmt.Errorf("gateway: decide: %w: follow-up length %d", decision.ErrInvalidDecision, n)
		}
	case decision.Proceed, decision.End:
	default:
		return decision.Decision{}, fmt.Errorf("gateway: decide: %w: type %q", decision.ErrInvalidDecision, d.Kind)
	}
	return decision.Enforce(d, req), nil
}
