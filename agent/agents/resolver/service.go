// Package resolver is the session-facing surface of the resolution engine.
// One Resolver serves many sessions concurrently; all per-session state
// lives in the graph store and the compliance gateway, never on the struct.
package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/cloudwego/eino/compose"
	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	nodex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/nodes/resolver"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	retryx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/retry"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

var (
	ErrInvalidMessage = nodex.ErrInvalidMessage
	ErrInvalidSession = nodex.ErrInvalidSession
)

type Config struct {
	// RetryCeiling bounds the re-diagnosis loop; zero means the default.
	RetryCeiling int
}

type Resolver struct {
	store     graphx.Store
	diagnoser contractx.Diagnoser
	orders    contractx.OrderService
	tickets   contractx.TicketService
	gateway   *policyx.Gateway
	retries   retryx.Controller

	graphRunner compose.Runnable[nodex.GraphInput, nodex.GraphOutput]

	now func() time.Time
}

func New(
	store graphx.Store,
	diagnoser contractx.Diagnoser,
	orders contractx.OrderService,
	tickets contractx.TicketService,
	gateway *policyx.Gateway,
	cfg Config,
) (*Resolver, error) {
	if store == nil {
		return nil, errors.New("graph store is required")
	}
	if diagnoser == nil {
		return nil, errors.New("diagnoser is required")
	}
	if orders == nil {
		return nil, errors.New("order service is required")
	}
	if tickets == nil {
		return nil, errors.New("ticket service is required")
	}
	if gateway == nil {
		return nil, errors.New("policy gateway is required")
	}

	r := &Resolver{
		store:     store,
		diagnoser: diagnoser,
		orders:    orders,
		tickets:   tickets,
		gateway:   gateway,
		retries:   retryx.NewController(cfg.RetryCeiling),
		now:       time.Now,
	}

	graphRunner, err := r.compileHandleMessageGraph(context.Background())
	if err != nil {
		return nil, err
	}
	r.graphRunner = graphRunner

	return r, nil
}

// HandleMessage runs one customer message through the full turn pipeline and
// returns the reply plus what the turn produced.
func (r *Resolver) HandleMessage(ctx context.Context, sessionID string, text string) (Result, error) {
	out, err := r.graphRunner.Invoke(ctx, nodex.GraphInput{
		SessionID: sessionID,
		Text:      text,
	})
	if err != nil {
		return Result{}, err
	}
	return Result{
		Reply:     out.Reply,
		TicketID:  out.TicketID,
		Escalated: out.Escalated,
		Refunded:  out.Refunded,
	}, nil
}

// Result is what one handled turn produced.
type Result struct {
	Reply     string
	TicketID  string
	Escalated bool
	Refunded  bool
}

// ResumePoint describes where an interrupted session picks back up.
type ResumePoint struct {
	TaskID  string
	Subject string
	Status  graphx.TaskStatus
}

// Resume is a pure read: the earliest-created ready task of the persisted
// graph. The second return is false when the session is finished or stalled.
func (r *Resolver) Resume(ctx context.Context, sessionID string) (ResumePoint, bool, error) {
	g, err := r.store.Load(ctx, sessionID)
	if err != nil {
		if errors.Is(err, graphx.ErrGraphNotFound) {
			return ResumePoint{}, false, nil
		}
		return ResumePoint{}, false, err
	}

	id, ok := g.Resume()
	if !ok {
		return ResumePoint{}, false, nil
	}
	task, _ := g.Get(id)
	return ResumePoint{TaskID: id, Subject: task.Subject, Status: task.Status}, true, nil
}

// State returns the session's current variable snapshot.
func (r *Resolver) State(ctx context.Context, sessionID string) (map[string]string, error) {
	g, err := r.store.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	tracker, err := statex.Open(g)
	if err != nil {
		return nil, err
	}
	return tracker.Snapshot(), nil
}

// EndSession deletes the session graph and tells the gateway to discard its
// compliance state.
func (r *Resolver) EndSession(ctx context.Context, sessionID string) error {
	if err := r.store.Delete(ctx, sessionID); err != nil && !errors.Is(err, graphx.ErrGraphNotFound) {
		return err
	}
	if _, err := r.gateway.SessionEnded(ctx, sessionID); err != nil {
		return err
	}
	return nil
}
