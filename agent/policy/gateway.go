package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Gateway loads session compliance state, runs the rule chain over each
// observed event, and persists the result. State is keyed strictly by
// session id; concurrent sessions never share it.
type Gateway struct {
	store StateStore
	rules []Rule
	now   func() time.Time
}

type GatewayOption func(*Gateway)

func WithRules(rules ...Rule) GatewayOption {
	return func(g *Gateway) {
		if len(rules) > 0 {
			g.rules = rules
		}
	}
}

func WithClock(now func() time.Time) GatewayOption {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

func NewGateway(store StateStore, opts ...GatewayOption) (*Gateway, error) {
	if store == nil {
		return nil, errors.New("policy state store is required")
	}
	g := &Gateway{
		store: store,
		rules: DefaultRules(),
		now:   time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	return g, nil
}

// Observe evaluates one event. Unmatched events are allowed; a Cleanup
// decision deletes the persisted state entirely.
func (g *Gateway) Observe(ctx context.Context, ev Event) (Decision, error) {
	if strings.TrimSpace(ev.SessionID) == "" {
		return Decision{}, ErrInvalidSession
	}
	if ev.At.IsZero() {
		ev.At = g.now().UTC()
	}

	st, err := g.loadOrInit(ctx, ev.SessionID, ev.At)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{Action: ActionAllow}
	for _, rule := range g.rules {
		if d, matched := rule.Evaluate(ev, st); matched {
			decision = d
			break
		}
	}

	if decision.Action == ActionCleanup {
		if err := g.store.Delete(ctx, ev.SessionID); err != nil {
			return Decision{}, fmt.Errorf("cleanup policy state: %w", err)
		}
		return decision, nil
	}

	st.UpdatedAt = ev.At.UTC()
	if err := g.store.Save(ctx, st); err != nil {
		return Decision{}, fmt.Errorf("save policy state: %w", err)
	}

	if decision.Action == ActionDeny {
		log.Warn().
			Str("session_id", ev.SessionID).
			Str("tool", ev.Tool).
			Str("feedback", decision.Message).
			Msg("policy gateway denied call")
	}
	return decision, nil
}

// TaskCreated fires the pre-event for a CreateTask.
func (g *Gateway) TaskCreated(ctx context.Context, sessionID string) (Decision, error) {
	return g.Observe(ctx, Event{SessionID: sessionID, Kind: EventTaskCreated})
}

// CallObserved fires the post-event for a collaborator call that has already
// executed.
func (g *Gateway) CallObserved(ctx context.Context, sessionID, tool string) (Decision, error) {
	return g.Observe(ctx, Event{SessionID: sessionID, Kind: EventCollaboratorCall, Tool: tool})
}

// SessionEnded discards the session's compliance state.
func (g *Gateway) SessionEnded(ctx context.Context, sessionID string) (Decision, error) {
	return g.Observe(ctx, Event{SessionID: sessionID, Kind: EventSessionEnd})
}

func (g *Gateway) loadOrInit(ctx context.Context, sessionID string, at time.Time) (*State, error) {
	st, err := g.store.Load(ctx, sessionID)
	if err == nil {
		return st, nil
	}
	if !errors.Is(err, ErrStateNotFound) {
		return nil, err
	}
	return &State{
		SessionID: sessionID,
		CreatedAt: at.UTC(),
		UpdatedAt: at.UTC(),
	}, nil
}
