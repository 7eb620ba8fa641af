package resolvernode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	decisionx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/decision"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// Act executes what Decide fixed: an auto-approved refund, a hand-off to a
// human, or both the ticket and its escalation when the refund path cannot
// finish on its own. A refund the collaborator rejects downgrades the turn
// to a low-confidence escalation rather than erroring out.
func Act(
	ctx context.Context,
	in *GraphState,
	orders contractx.OrderService,
	tickets contractx.TicketService,
	gateway *policyx.Gateway,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NeedsClarification {
		return in, nil
	}

	if in.Diagnosis.Intent == "refund_request" && in.RefundRuleMatched && !in.Escalate {
		switch {
		case in.Verdict.Action == decisionx.DenyOfferCredit:
			// Nothing to execute; the credit offer is phrased in the reply.
		case in.Verdict.AutoApprove:
			receipt, err := orders.Refund(ctx, contractx.RefundRequest{
				OrderID: in.Order.OrderID,
				Amount:  in.Order.Total,
				Reason:  in.Diagnosis.ResolutionPlan,
			})
			if obsErr := observeCall(ctx, in, gateway, policyx.ToolRefund); obsErr != nil {
				return nil, obsErr
			}
			if err != nil {
				if !errors.Is(err, contractx.ErrCallRejected) {
					return nil, err
				}
				in.Escalate = true
				in.EscalateReason = fmt.Sprintf("refund for order %s was rejected: %v", in.Order.OrderID, err)
				in.Diagnosis.Confidence = contractx.ConfidenceLow
				if setErr := in.Tracker.SetVariable(statex.VarConfidence, string(contractx.ConfidenceLow), in.Now); setErr != nil {
					return nil, setErr
				}
			} else {
				in.Receipt = receipt
				in.Refunded = true
			}
		default:
			// Rule matched but above the auto-approval limit.
			in.Escalate = true
			in.EscalateReason = fmt.Sprintf("refund of $%.2f on order %s exceeds the auto-approval limit", in.Order.Total, in.Order.OrderID)
		}
	}

	if !in.Escalate {
		return in, nil
	}
	if !in.HasCustomer {
		// No account to open a ticket against; the reply asks for
		// identifiers and the graph keeps the step open.
		in.NeedsClarification = true
		in.ClarifyReply = "I need to pass this to a support agent. Could you share the email address or customer id on the account?"
		return in, nil
	}

	ticketID := in.Snapshot[string(statex.VarTicketID)]
	if ticketID == "" {
		ticket, err := tickets.CreateTicket(ctx, contractx.CreateTicketRequest{
			CustomerID:  in.Customer.CustomerID,
			Category:    categoryForIntent(in.Diagnosis.Intent),
			Subject:     ticketSubject(in),
			Description: in.Text,
			Priority:    string(in.Priority),
			OrderID:     orderIDOrEmpty(in),
		})
		if obsErr := observeCall(ctx, in, gateway, policyx.ToolCreateTicket); obsErr != nil {
			return nil, obsErr
		}
		if err != nil {
			return nil, err
		}
		ticketID = ticket.TicketID
		in.Ticket = ticket
		in.HasTicket = true
		if err := in.Tracker.SetVariable(statex.VarTicketID, ticketID, in.Now); err != nil {
			return nil, err
		}
	}

	ticket, err := tickets.EscalateTicket(ctx, ticketID, in.EscalateReason)
	if obsErr := observeCall(ctx, in, gateway, policyx.ToolEscalateTicket); obsErr != nil {
		return nil, obsErr
	}
	if err != nil {
		return nil, err
	}
	in.Ticket = ticket
	in.HasTicket = true
	return in, nil
}

func categoryForIntent(intent string) string {
	switch intent {
	case "refund_request":
		return contractx.CategoryRefund
	case "order_status":
		return contractx.CategoryOrderStatus
	case "billing_dispute":
		return contractx.CategoryBilling
	case "defective_item":
		return contractx.CategoryProductDefect
	case "shipping_issue":
		return contractx.CategoryShipping
	case "account_issue":
		return contractx.CategoryAccount
	default:
		return contractx.CategoryGeneralInquiry
	}
}

func ticketSubject(in *GraphState) string {
	plan := strings.TrimSpace(in.Diagnosis.ResolutionPlan)
	if plan != "" {
		return plan
	}
	return strings.ReplaceAll(in.Diagnosis.Intent, "_", " ")
}

func orderIDOrEmpty(in *GraphState) string {
	if in.HasOrder {
		return in.Order.OrderID
	}
	return ""
}
