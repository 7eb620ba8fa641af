package resolvernode

import (
	"context"
	"fmt"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	decisionx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/decision"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// ExtendGraph appends this turn's work to the session graph: a fact-gathering
// step, the decision that depended on it, and the action that depended on the
// decision. Steps the engine finished are completed; a hand-off to a human
// stays in_progress so Resume points at it. Clarification turns that surfaced
// mid-pipeline fall back to the clarify bookkeeping.
func ExtendGraph(ctx context.Context, in *GraphState, gateway *policyx.Gateway) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NeedsClarification {
		return Clarify(ctx, in, gateway)
	}

	gather, err := createTask(ctx, in, gateway,
		fmt.Sprintf("Gather facts: %s", in.Diagnosis.Intent), in.Diagnosis.ResolutionPlan)
	if err != nil {
		return nil, err
	}
	if err := completeTask(in, gather.ID); err != nil {
		return nil, err
	}

	decide, err := createTask(ctx, in, gateway,
		fmt.Sprintf("Decide: %s", in.Diagnosis.Intent), decideNote(in), gather.ID)
	if err != nil {
		return nil, err
	}
	if err := completeTask(in, decide.ID); err != nil {
		return nil, err
	}

	act, err := createTask(ctx, in, gateway, actSubject(in), in.EscalateReason, decide.ID)
	if err != nil {
		return nil, err
	}
	if err := in.Graph.SetStatus(act.ID, graphx.StatusInProgress, in.Now); err != nil {
		return nil, err
	}
	if !in.Escalate {
		// Finished by the engine this turn. Escalated work stays open for
		// the human who now owns it.
		if err := in.Graph.SetStatus(act.ID, graphx.StatusCompleted, in.Now); err != nil {
			return nil, err
		}
	}

	if in.Refunded {
		note := fmt.Sprintf("refund %s issued for $%.2f", in.Receipt.RefundID, in.Receipt.Amount)
		if err := in.Graph.AppendNote(act.ID, note, in.Now); err != nil {
			return nil, err
		}
	}
	if in.HasTicket {
		note := fmt.Sprintf("ticket %s (%s, priority %s)", in.Ticket.TicketID, in.Ticket.Status, in.Ticket.Priority)
		if err := in.Graph.AppendNote(act.ID, note, in.Now); err != nil {
			return nil, err
		}
	}
	return in, nil
}

func completeTask(in *GraphState, taskID string) error {
	if err := in.Graph.SetStatus(taskID, graphx.StatusInProgress, in.Now); err != nil {
		return err
	}
	return in.Graph.SetStatus(taskID, graphx.StatusCompleted, in.Now)
}

func decideNote(in *GraphState) string {
	if in.RefundRuleMatched {
		return fmt.Sprintf("refund verdict %s (auto-approve %t), priority %s", in.Verdict.Action, in.Verdict.AutoApprove, in.Priority)
	}
	return fmt.Sprintf("priority %s, escalate %t", in.Priority, in.Escalate)
}

func actSubject(in *GraphState) string {
	switch {
	case in.Escalate:
		return "Escalate to human support"
	case in.Refunded:
		return fmt.Sprintf("Issue refund for order %s", in.Order.OrderID)
	case in.RefundRuleMatched && in.Verdict.Action == decisionx.DenyOfferCredit:
		return fmt.Sprintf("Deny refund for order %s, offer store credit", in.Order.OrderID)
	default:
		return "Reply to customer"
	}
}

// SaveGraph validates and persists the session graph. It runs on every path
// out of the turn, clarification included.
func SaveGraph(ctx context.Context, in *GraphState, store graphx.Store) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	in.Graph.Touch(in.Now)
	if err := store.Save(ctx, in.Graph); err != nil {
		return nil, err
	}
	return in, nil
}

// FinalizeReply composes the customer-facing reply from what actually
// happened, not from what the diagnosis proposed.
func FinalizeReply(in *GraphState) (GraphOutput, error) {
	if in == nil {
		return GraphOutput{}, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	if in.NeedsClarification {
		return GraphOutput{Reply: clarifyReplyOrDefault(in)}, nil
	}

	reply := in.Diagnosis.Reply
	switch {
	case in.Refunded:
		reply = fmt.Sprintf("%s Your refund of $%.2f for order %s has been issued (reference %s).",
			reply, in.Receipt.Amount, in.Receipt.OrderID, in.Receipt.RefundID)
	case in.RefundRuleMatched && in.Verdict.Action == decisionx.DenyOfferCredit && !in.Escalate:
		reply = fmt.Sprintf("%s The order is outside our refund window, but I can offer store credit instead.", reply)
	}
	if in.Escalate && in.HasTicket {
		reply = fmt.Sprintf("%s I've passed this to our support team (ticket %s); someone will follow up shortly.",
			reply, in.Ticket.TicketID)
	}

	out := GraphOutput{
		Reply:     reply,
		Escalated: in.Escalate,
		Refunded:  in.Refunded,
	}
	if in.HasTicket {
		out.TicketID = in.Ticket.TicketID
	} else {
		out.TicketID = in.Snapshot[string(statex.VarTicketID)]
	}
	return out, nil
}
