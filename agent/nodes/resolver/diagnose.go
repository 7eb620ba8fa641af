package resolvernode

import (
	"context"
	"fmt"
	"strings"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// Intents whose resolution requires an identified customer account.
func intentNeedsCustomer(d contractx.DiagnosisResponse) bool {
	switch d.Intent {
	case "refund_request", "order_status", "defective_item",
		"billing_dispute", "account_issue", "shipping_issue":
		return true
	}
	return d.HumanRequested || d.BillingDisputeOrFraud || d.DefectiveOrSafety
}

func intentNeedsOrder(intent string) bool {
	switch intent {
	case "refund_request", "order_status", "defective_item", "shipping_issue":
		return true
	}
	return false
}

// Diagnose runs the structured assessment of the turn and records the intent
// in the session state. A forced-low confidence persisted by the retry
// controller is sticky: it overrides whatever the fresh diagnosis claims.
func Diagnose(ctx context.Context, in *GraphState, diagnoser contractx.Diagnoser) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	resp, err := diagnoser.Diagnose(ctx, contractx.DiagnosisRequest{
		SessionID:   in.SessionID,
		UserMessage: in.Text,
		State:       in.Snapshot,
		RetryCount:  in.Tracker.RetryCount(),
		Facts:       in.Facts,
		Now:         in.Now,
	})
	if err != nil {
		return nil, err
	}

	if in.Snapshot[string(statex.VarConfidence)] == string(contractx.ConfidenceLow) {
		resp.Confidence = contractx.ConfidenceLow
	}
	in.Diagnosis = resp

	if err := in.Tracker.SetVariable(statex.VarIntent, resp.Intent, in.Now); err != nil {
		return nil, err
	}

	identifierKnown := in.Snapshot[string(statex.VarCustomer)] != "" ||
		resp.CustomerEmail != "" || resp.CustomerID != ""
	if intentNeedsCustomer(resp) && !identifierKnown {
		in.NeedsClarification = true
		in.ClarifyReply = resp.Reply
	}
	return in, nil
}

const clarifySubject = "Collect customer identifiers"

// Clarify records the open clarification step in the graph so Resume points
// at it, then short-circuits the rest of the turn. The task is reused across
// consecutive clarification turns instead of piling up duplicates.
func Clarify(ctx context.Context, in *GraphState, gateway *policyx.Gateway) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}

	for _, task := range in.Graph.ListTasks() {
		if task.ID == in.Graph.TrackerID || task.Subject != clarifySubject {
			continue
		}
		if task.Status != graphx.StatusCompleted {
			return in, in.Graph.AppendNote(task.ID, in.Text, in.Now)
		}
	}

	task, err := createTask(ctx, in, gateway, clarifySubject, in.Diagnosis.ResolutionPlan)
	if err != nil {
		return nil, err
	}
	if err := in.Graph.SetStatus(task.ID, graphx.StatusInProgress, in.Now); err != nil {
		return nil, err
	}
	return in, nil
}

func clarifyReplyOrDefault(in *GraphState) string {
	if strings.TrimSpace(in.ClarifyReply) != "" {
		return in.ClarifyReply
	}
	return "Could you share the email address or customer id on the account so I can look into this?"
}
