package decision

import (
	"testing"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
)

func TestRefundRuleTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		fact        OrderFact
		wantAction  RefundAction
		wantAuto    bool
		wantMatched bool
	}{
		{
			name:        "processing cancels and refunds",
			fact:        OrderFact{OrderStatus: contractx.OrderProcessing, Amount: 500},
			wantAction:  CancelAndRefund,
			wantAuto:    true,
			wantMatched: true,
		},
		{
			name:        "shipped cancels and refunds",
			fact:        OrderFact{OrderStatus: contractx.OrderShipped, Amount: 80},
			wantAction:  CancelAndRefund,
			wantAuto:    true,
			wantMatched: true,
		},
		{
			name:        "defective under limit auto-approves",
			fact:        OrderFact{OrderStatus: contractx.OrderDelivered, Delivered: true, DaysSinceDelivery: 45, Amount: 200, IsDefective: true},
			wantAction:  FullOrPartialRefund,
			wantAuto:    true,
			wantMatched: true,
		},
		{
			name:        "defective over limit needs approval",
			fact:        OrderFact{OrderStatus: contractx.OrderDelivered, Delivered: true, DaysSinceDelivery: 5, Amount: 200.01, IsDefective: true},
			wantAction:  FullOrPartialRefund,
			wantAuto:    false,
			wantMatched: true,
		},
		{
			name:        "delivered within window under limit",
			fact:        OrderFact{OrderStatus: contractx.OrderDelivered, Delivered: true, DaysSinceDelivery: 30, Amount: 150},
			wantAction:  FullOrPartialRefund,
			wantAuto:    true,
			wantMatched: true,
		},
		{
			name:        "delivered within window over limit",
			fact:        OrderFact{OrderStatus: contractx.OrderDelivered, Delivered: true, DaysSinceDelivery: 10, Amount: 151},
			wantAction:  FullOrPartialRefund,
			wantAuto:    false,
			wantMatched: true,
		},
		{
			name:        "delivered outside window denies with credit",
			fact:        OrderFact{OrderStatus: contractx.OrderDelivered, Delivered: true, DaysSinceDelivery: 31, Amount: 40},
			wantAction:  DenyOfferCredit,
			wantAuto:    true,
			wantMatched: true,
		},
		{
			name:        "defective rule beats the delivery window",
			fact:        OrderFact{OrderStatus: contractx.OrderDelivered, Delivered: true, DaysSinceDelivery: 90, Amount: 120, IsDefective: true},
			wantAction:  FullOrPartialRefund,
			wantAuto:    true,
			wantMatched: true,
		},
		{
			name:        "cancelled order matches no rule",
			fact:        OrderFact{OrderStatus: contractx.OrderCancelled, Amount: 60},
			wantMatched: false,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			verdict, matched := Refund(tc.fact)
			if matched != tc.wantMatched {
				t.Fatalf("matched = %t, want %t", matched, tc.wantMatched)
			}
			if !matched {
				return
			}
			if verdict.Action != tc.wantAction || verdict.AutoApprove != tc.wantAuto {
				t.Fatalf("verdict = %+v, want action=%s auto=%t", verdict, tc.wantAction, tc.wantAuto)
			}
		})
	}
}

func TestShouldEscalateAnyTrigger(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fact EscalationFact
		want bool
	}{
		{"no triggers", EscalationFact{Confidence: contractx.ConfidenceHigh}, false},
		{"human requested", EscalationFact{HumanRequested: true, Confidence: contractx.ConfidenceHigh}, true},
		{"large delivered refund", EscalationFact{RefundAmount: 150.01, RefundOrderDelivered: true, Confidence: contractx.ConfidenceHigh}, true},
		{"large refund but undelivered", EscalationFact{RefundAmount: 999, RefundOrderDelivered: false, Confidence: contractx.ConfidenceHigh}, false},
		{"low confidence", EscalationFact{Confidence: contractx.ConfidenceLow}, true},
		{"retry threshold reached", EscalationFact{RetryCount: 2, Confidence: contractx.ConfidenceHigh}, true},
		{"retry below threshold", EscalationFact{RetryCount: 1, Confidence: contractx.ConfidenceHigh}, false},
		{"billing dispute", EscalationFact{BillingDisputeOrFraud: true, Confidence: contractx.ConfidenceHigh}, true},
		{"gold tier dissatisfied", EscalationFact{Tier: "gold", StrongDissatisfaction: true, Confidence: contractx.ConfidenceHigh}, true},
		{"silver tier dissatisfied", EscalationFact{Tier: "silver", StrongDissatisfaction: true, Confidence: contractx.ConfidenceHigh}, false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := ShouldEscalate(tc.fact); got != tc.want {
				t.Fatalf("ShouldEscalate() = %t, want %t", got, tc.want)
			}
		})
	}
}

func TestAssignTakesMaximum(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		fact PriorityFact
		want Priority
	}{
		{"defaults to medium", PriorityFact{}, PriorityMedium},
		{"escalated is high", PriorityFact{Escalated: true}, PriorityHigh},
		{"gold tier is high", PriorityFact{Tier: "gold"}, PriorityHigh},
		{"high value order is high", PriorityFact{OrderValue: 300.01}, PriorityHigh},
		{"order value at threshold stays medium", PriorityFact{OrderValue: 300}, PriorityMedium},
		{"dissatisfaction is high", PriorityFact{ExplicitDissatisfaction: true}, PriorityHigh},
		{"defective wins over everything", PriorityFact{DefectiveOrSafety: true, Escalated: true, Tier: "gold"}, PriorityUrgent},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := Assign(tc.fact); got != tc.want {
				t.Fatalf("Assign() = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRaiseNeverLowers(t *testing.T) {
	t.Parallel()

	if got := Raise(PriorityUrgent, PriorityMedium); got != PriorityUrgent {
		t.Fatalf("Raise(urgent, medium) = %s", got)
	}
	if got := Raise(PriorityMedium, PriorityHigh); got != PriorityHigh {
		t.Fatalf("Raise(medium, high) = %s", got)
	}
	// Unknown persisted values rank below medium and never win.
	if got := Raise(Priority(""), PriorityMedium); got != PriorityMedium {
		t.Fatalf("Raise(unknown, medium) = %s", got)
	}
}
