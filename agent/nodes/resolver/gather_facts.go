package resolvernode

import (
	"context"
	"errors"
	"fmt"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
	statex "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/state"
)

// GatherFacts resolves the customer account and the order under discussion.
// Every collaborator call is reported to the compliance gateway after it
// executes. A rejected lookup (bad email, unknown order) flips the turn back
// to clarification instead of failing it; only infrastructure errors abort.
func GatherFacts(
	ctx context.Context,
	in *GraphState,
	orders contractx.OrderService,
	gateway *policyx.Gateway,
) (*GraphState, error) {
	if in == nil {
		return nil, fmt.Errorf("%w: graph state is nil", contractx.ErrValidation)
	}
	if in.NeedsClarification {
		return in, nil
	}
	if !intentNeedsCustomer(in.Diagnosis) {
		return in, nil
	}

	query := contractx.CustomerQuery{
		Email:      in.Diagnosis.CustomerEmail,
		CustomerID: in.Diagnosis.CustomerID,
	}
	if query.Empty() {
		query.CustomerID = in.Snapshot[string(statex.VarCustomer)]
	}

	customer, err := orders.LookupCustomer(ctx, query)
	if obsErr := observeCall(ctx, in, gateway, policyx.ToolLookupCustomer); obsErr != nil {
		return nil, obsErr
	}
	if err != nil {
		if errors.Is(err, contractx.ErrCallRejected) {
			in.NeedsClarification = true
			in.ClarifyReply = "I couldn't find an account with those details. Could you double-check the email address or customer id?"
			return in, nil
		}
		return nil, err
	}
	in.Customer = customer
	in.HasCustomer = true
	in.Facts["customer"] = customer
	if err := in.Tracker.SetVariable(statex.VarCustomer, customer.CustomerID, in.Now); err != nil {
		return nil, err
	}

	orderID := in.Diagnosis.OrderID
	if orderID == "" {
		orderID = in.Snapshot[string(statex.VarOrder)]
	}

	switch {
	case orderID != "":
		order, err := orders.GetOrder(ctx, orderID)
		if obsErr := observeCall(ctx, in, gateway, policyx.ToolGetOrder); obsErr != nil {
			return nil, obsErr
		}
		if err != nil {
			if errors.Is(err, contractx.ErrCallRejected) {
				in.NeedsClarification = true
				in.ClarifyReply = fmt.Sprintf("I couldn't find order %s on this account. Could you confirm the order number?", orderID)
				return in, nil
			}
			return nil, err
		}
		in.Order = order
		in.HasOrder = true

	case intentNeedsOrder(in.Diagnosis.Intent):
		history, err := orders.OrderHistory(ctx, customer.CustomerID)
		if obsErr := observeCall(ctx, in, gateway, policyx.ToolOrderHistory); obsErr != nil {
			return nil, obsErr
		}
		if err != nil && !errors.Is(err, contractx.ErrCallRejected) {
			return nil, err
		}
		if len(history) > 0 {
			// History is newest first; assume the latest order is the one
			// under discussion until the customer says otherwise.
			in.Order = history[0]
			in.HasOrder = true
		}
	}

	if in.HasOrder {
		in.Facts["order"] = in.Order
		if err := in.Tracker.SetVariable(statex.VarOrder, in.Order.OrderID, in.Now); err != nil {
			return nil, err
		}
	}
	return in, nil
}
