// Package resolvernode holds the per-turn pipeline nodes of the resolution
// engine. Each node is a plain function over *GraphState so it can be tested
// without compiling the runtime graph.
package resolvernode

import (
	"context"
	"errors"
	"strings"
	"time"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	decisionx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/decision"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	retryx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/retry"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

var (
	ErrInvalidMessage = errors.New("message is empty")
	ErrInvalidSession = errors.New("session id is empty")
)

type GraphInput struct {
	SessionID string
	Text      string
}

type GraphOutput struct {
	Reply     string
	TicketID  string
	Escalated bool
	Refunded  bool
}

// GraphState is the scratch space one turn flows through. Nodes fill it in
// pipeline order; NeedsClarification short-circuits everything after
// diagnosis except persistence.
type GraphState struct {
	SessionID string
	Text      string
	Now       time.Time

	Graph    *graphx.TaskGraph
	Tracker  *statex.Tracker
	Snapshot map[string]string

	Diagnosis          contractx.DiagnosisResponse
	NeedsClarification bool
	ClarifyReply       string

	Customer    contractx.Customer
	HasCustomer bool
	Order       contractx.Order
	HasOrder    bool
	Facts       map[string]any

	Verdict           decisionx.RefundVerdict
	RefundRuleMatched bool
	Escalate          bool
	EscalateReason    string
	Priority          decisionx.Priority

	RetryOutcome retryx.Outcome

	Receipt   contractx.RefundReceipt
	Refunded  bool
	Ticket    contractx.Ticket
	HasTicket bool

	PolicyFeedback []string
}

func ValidateRequest(in GraphInput, nowFn func() time.Time) (*GraphState, error) {
	sessionID := strings.TrimSpace(in.SessionID)
	if sessionID == "" {
		return nil, ErrInvalidSession
	}

	text := strings.TrimSpace(in.Text)
	if text == "" {
		return nil, ErrInvalidMessage
	}

	return &GraphState{
		SessionID: sessionID,
		Text:      text,
		Now:       nowFn().UTC(),
		Facts:     map[string]any{},
	}, nil
}

// createTask adds a task to the session graph, wires its dependencies, and
// reports the creation to the compliance gateway. Gateway feedback is
// collected, never fatal.
func createTask(
	ctx context.Context,
	in *GraphState,
	gateway *policyx.Gateway,
	subject, description string,
	deps ...string,
) (*graphx.Task, error) {
	task := in.Graph.CreateTask(subject, description, in.Now)
	for _, dep := range deps {
		if err := in.Graph.AddDependency(task.ID, dep); err != nil {
			return nil, err
		}
	}

	if gateway != nil {
		decision, err := gateway.TaskCreated(ctx, in.SessionID)
		if err != nil {
			return nil, err
		}
		if decision.Action == policyx.ActionDeny {
			in.PolicyFeedback = append(in.PolicyFeedback, decision.Message)
		}
	}
	return task, nil
}

// observeCall reports an already-executed collaborator call. A Deny is
// corrective feedback for the rest of the turn, not a rollback.
func observeCall(ctx context.Context, in *GraphState, gateway *policyx.Gateway, tool string) error {
	if gateway == nil {
		return nil
	}
	decision, err := gateway.CallObserved(ctx, in.SessionID, tool)
	if err != nil {
		return err
	}
	if decision.Action == policyx.ActionDeny {
		in.PolicyFeedback = append(in.PolicyFeedback, decision.Message)
	}
	return nil
}
