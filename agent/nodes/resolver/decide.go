package resolvernode

import (
	"fmt"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	decisionx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/decision"
	retryx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/retry"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// Decide runs the deterministic verdict tables over the gathered facts. No
// I/O happens here; everything Act executes later is fixed at this point.
func Decide(in *GraphState) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NeedsClarification {
		return in, nil
	}

	d := in.Diagnosis

	if d.Intent == "refund_request" {
		if in.HasOrder {
			verdict, matched := decisionx.Refund(decisionx.OrderFact{
				OrderStatus:       in.Order.Status,
				Delivered:         in.Order.Delivered(),
				DaysSinceDelivery: in.Order.DaysSinceDelivery(in.Now),
				Amount:            in.Order.Total,
				IsDefective:       d.DefectiveOrSafety,
			})
			in.Verdict = verdict
			in.RefundRuleMatched = matched
			if !matched {
				in.Escalate = true
				in.EscalateReason = fmt.Sprintf("no refund rule applies to order %s (status %s)", in.Order.OrderID, in.Order.Status)
			}
		} else {
			in.Escalate = true
			in.EscalateReason = "refund requested but no order could be identified"
		}
	}

	refundAmount := 0.0
	refundDelivered := false
	if d.Intent == "refund_request" && in.HasOrder {
		refundAmount = in.Order.Total
		refundDelivered = in.Order.Delivered()
	}
	if decisionx.ShouldEscalate(decisionx.EscalationFact{
		HumanRequested:        d.HumanRequested,
		RefundAmount:          refundAmount,
		RefundOrderDelivered:  refundDelivered,
		Confidence:            d.Confidence,
		RetryCount:            in.Tracker.RetryCount(),
		BillingDisputeOrFraud: d.BillingDisputeOrFraud,
		Tier:                  in.Customer.Tier,
		StrongDissatisfaction: d.StrongDissatisfaction,
	}) {
		in.Escalate = true
		if in.EscalateReason == "" {
			in.EscalateReason = escalateReason(d, in.Tracker.RetryCount())
		}
	}

	orderValue := 0.0
	if in.HasOrder {
		orderValue = in.Order.Total
	}
	in.Priority = decisionx.Assign(decisionx.PriorityFact{
		DefectiveOrSafety:       d.DefectiveOrSafety,
		Escalated:               in.Escalate,
		Tier:                    in.Customer.Tier,
		OrderValue:              orderValue,
		ExplicitDissatisfaction: d.Unsatisfied || d.StrongDissatisfaction,
	})
	// Priority never lowers across turns.
	in.Priority = decisionx.Raise(decisionx.Priority(in.Snapshot[string(statex.VarPriority)]), in.Priority)

	if err := in.Tracker.SetVariable(statex.VarConfidence, string(d.Confidence), in.Now); err != nil {
		return nil, err
	}
	if err := in.Tracker.SetVariable(statex.VarPriority, string(in.Priority), in.Now); err != nil {
		return nil, err
	}
	return in, nil
}

func escalateReason(d contractx.DiagnosisResponse, retryCount int) string {
	switch {
	case d.HumanRequested:
		return "customer asked for a human agent"
	case d.BillingDisputeOrFraud:
		return "billing dispute or suspected fraud"
	case d.Confidence == contractx.ConfidenceLow:
		return "diagnosis confidence is low"
	case d.StrongDissatisfaction:
		return "strong customer dissatisfaction"
	default:
		return fmt.Sprintf("resolution rejected %d times", retryCount)
	}
}

// RetryCheck records an unsatisfied customer push-back and applies the
// ceiling. A forced escalation from the ceiling overrides the decision
// stage's verdicts for this and every later turn.
func RetryCheck(in *GraphState, controller retryx.Controller) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NeedsClarification || !in.Diagnosis.Unsatisfied {
		return in, nil
	}

	outcome, err := controller.RecordUnsatisfied(in.Tracker, in.Now)
	if err != nil {
		return nil, err
	}
	in.RetryOutcome = outcome
	if outcome.ForceEscalate {
		in.Escalate = true
		in.Diagnosis.Confidence = contractx.ConfidenceLow
		in.EscalateReason = fmt.Sprintf("retry ceiling reached after %d rejected resolutions", outcome.Count)
	}
	return in, nil
}
