package resolvernode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// LoadOrCreateGraph binds the session's task graph and tracker, creating
// both on the first turn. Creating the tracker is the session's first
// task-creation event, which is what flips the compliance gateway's
// graph-initialized flag.
func LoadOrCreateGraph(
	ctx context.Context,
	in *GraphState,
	store graphx.Store,
	gateway *policyx.Gateway,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	g, err := store.Load(ctx, in.SessionID)
	if err != nil {
		if !errors.Is(err, graphx.ErrGraphNotFound) {
			return nil, err
		}
		g = graphx.NewTaskGraph(in.SessionID, in.Now)
	}
	g.EnsureMaps()

	hadTracker := g.TrackerID != ""
	tracker, err := statex.Ensure(g, in.Now)
	if err != nil {
		return nil, err
	}
	if !hadTracker && gateway != nil {
		decision, err := gateway.TaskCreated(ctx, in.SessionID)
		if err != nil {
			return nil, err
		}
		if decision.Action == policyx.ActionDeny {
			in.PolicyFeedback = append(in.PolicyFeedback, decision.Message)
		}
	}

	in.Graph = g
	in.Tracker = tracker
	return in, nil
}

// ReadState reduces the tracker's note log to the current variable snapshot.
func ReadState(in *GraphState) (*GraphState, error) {
	if in == nil || in.Tracker == nil {
		return nil, fmt.Errorf("%w: tracker is not bound", contractx.ErrValidation)
	}
	in.Snapshot = in.Tracker.Snapshot()
	return in, nil
}
