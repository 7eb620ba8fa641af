// Package policy is the compliance gateway mediating every side-effecting
// call to the order/ticket collaborators. Enforcement is detective, not
// preventive: the post-event fires after the call already executed, so a
// Deny never rolls anything back. It returns corrective feedback the caller
// must fold into its next action.
package policy

import (
	"time"
)

type EventKind string

const (
	// EventTaskCreated is the pre-event fired on every CreateTask.
	EventTaskCreated EventKind = "task.created"
	// EventCollaboratorCall is the post-event fired after every order or
	// ticket call.
	EventCollaboratorCall EventKind = "collaborator.call"
	// EventSessionEnd signals session teardown.
	EventSessionEnd EventKind = "session.end"
)

// Tool names reported on collaborator post-events.
const (
	ToolLookupCustomer = "orders.lookup_customer"
	ToolGetOrder       = "orders.get_order"
	ToolOrderHistory   = "orders.order_history"
	ToolRefund         = "orders.refund"
	ToolCreateTicket   = "tickets.create_ticket"
	ToolGetTicket      = "tickets.get_ticket"
	ToolUpdateTicket   = "tickets.update_ticket"
	ToolEscalateTicket = "tickets.escalate_ticket"
	ToolListTickets    = "tickets.list_tickets"
	ToolResolveTicket  = "tickets.resolve_ticket"
)

type Event struct {
	SessionID string
	Kind      EventKind
	Tool      string
	At        time.Time
}

// State is the session-scoped compliance state, independent of the task
// graph. It is created lazily on the first observed event and discarded only
// on explicit teardown.
type State struct {
	SessionID string `json:"session_id"`
	// GraphInitialized flips true on the first task-creation event and is
	// then sticky for the session's lifetime.
	GraphInitialized bool      `json:"graph_initialized"`
	ObservedCalls    int       `json:"observed_calls"`
	Violations       int       `json:"violations"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type Action string

const (
	ActionAllow   Action = "allow"
	ActionDeny    Action = "deny"
	ActionCleanup Action = "cleanup"
)

// Decision is the outcome of evaluating one event. A Deny carries the
// corrective feedback for the caller's next action.
type Decision struct {
	Action  Action
	Message string
}

// Rule evaluates one event against the session state. It may mutate the
// state; the gateway persists whatever the matching rule leaves behind. The
// second return reports whether the rule matched; the chain short-circuits
// on the first match.
type Rule interface {
	Evaluate(ev Event, st *State) (Decision, bool)
}

// RuleFunc adapts a function to the Rule interface.
type RuleFunc func(ev Event, st *State) (Decision, bool)

func (f RuleFunc) Evaluate(ev Event, st *State) (Decision, bool) {
	return f(ev, st)
}

// DefaultRules is the declarative rule set the gateway ships with, in
// evaluation order.
func DefaultRules() []Rule {
	return []Rule{
		RuleFunc(graphInitRule),
		RuleFunc(orderingRule),
		RuleFunc(cleanupRule),
	}
}

// graphInitRule marks the session graph initialized on the first
// task-creation event.
func graphInitRule(ev Event, st *State) (Decision, bool) {
	if ev.Kind != EventTaskCreated {
		return Decision{}, false
	}
	st.GraphInitialized = true
	return Decision{Action: ActionAllow}, true
}

// deniedCallFeedback is the corrective text returned when a collaborator
// call is observed before the session graph exists. The call's side effect
// has already happened; the data it returned stays usable.
const deniedCallFeedback = "side-effecting call observed before the session task graph was initialized; " +
	"create the task graph now, then continue using the data already retrieved"

// orderingRule enforces the one hard ordering invariant: no collaborator
// call before the graph is initialized.
func orderingRule(ev Event, st *State) (Decision, bool) {
	if ev.Kind != EventCollaboratorCall {
		return Decision{}, false
	}
	st.ObservedCalls++
	if !st.GraphInitialized {
		st.Violations++
		return Decision{Action: ActionDeny, Message: deniedCallFeedback}, true
	}
	return Decision{Action: ActionAllow}, true
}

func cleanupRule(ev Event, st *State) (Decision, bool) {
	if ev.Kind != EventSessionEnd {
		return Decision{}, false
	}
	return Decision{Action: ActionCleanup}, true
}
