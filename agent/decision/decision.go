// Package decision holds the deterministic verdict tables: pure, stateless
// functions from facts to refund, escalation, and priority outcomes. No
// package state, no I/O; the same facts always yield the same verdict.
package decision

import (
	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
)

type RefundAction string

const (
	CancelAndRefund     RefundAction = "cancel_and_refund"
	FullOrPartialRefund RefundAction = "full_or_partial_refund"
	DenyOfferCredit     RefundAction = "deny_offer_credit"
)

// Auto-approval thresholds in dollars.
const (
	defectiveAutoApproveLimit = 200
	deliveredAutoApproveLimit = 150
	recentDeliveryWindowDays  = 30
)

// OrderFact is the raw order evidence a refund verdict is computed from.
type OrderFact struct {
	OrderStatus       string
	Delivered         bool
	DaysSinceDelivery int
	Amount            float64
	IsDefective       bool
}

type RefundVerdict struct {
	Action      RefundAction
	AutoApprove bool
}

// Refund evaluates the refund rule table in order; the first matching rule
// wins. The second return is false when no rule applies (for example a
// cancelled order that is neither defective nor delivered), which callers
// route to escalation.
func Refund(f OrderFact) (RefundVerdict, bool) {
	switch {
	case f.OrderStatus == contractx.OrderProcessing || f.OrderStatus == contractx.OrderShipped:
		return RefundVerdict{Action: CancelAndRefund, AutoApprove: true}, true
	case f.IsDefective:
		return RefundVerdict{Action: FullOrPartialRefund, AutoApprove: f.Amount <= defectiveAutoApproveLimit}, true
	case f.Delivered && f.DaysSinceDelivery <= recentDeliveryWindowDays:
		return RefundVerdict{Action: FullOrPartialRefund, AutoApprove: f.Amount <= deliveredAutoApproveLimit}, true
	case f.Delivered && f.DaysSinceDelivery > recentDeliveryWindowDays:
		return RefundVerdict{Action: DenyOfferCredit, AutoApprove: true}, true
	}
	return RefundVerdict{}, false
}

// EscalationFact gathers every escalation trigger for one check.
type EscalationFact struct {
	HumanRequested        bool
	RefundAmount          float64
	RefundOrderDelivered  bool
	Confidence            contractx.Confidence
	RetryCount            int
	BillingDisputeOrFraud bool
	Tier                  string
	StrongDissatisfaction bool
}

// escalationRetryThreshold: a retry count of 2 means the third attempt has
// already failed.
const escalationRetryThreshold = 2

// ShouldEscalate is true when any single trigger holds.
func ShouldEscalate(f EscalationFact) bool {
	switch {
	case f.HumanRequested:
		return true
	case f.RefundAmount > deliveredAutoApproveLimit && f.RefundOrderDelivered:
		return true
	case f.Confidence == contractx.ConfidenceLow:
		return true
	case f.RetryCount >= escalationRetryThreshold:
		return true
	case f.BillingDisputeOrFraud:
		return true
	case f.Tier == "gold" && f.StrongDissatisfaction:
		return true
	}
	return false
}

type Priority string

const (
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

var priorityRank = map[Priority]int{
	PriorityMedium: 1,
	PriorityHigh:   2,
	PriorityUrgent: 3,
}

// Rank returns the ordering weight; unknown values rank below medium.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Raise returns the higher of the two priorities. Once raised, a case's
// priority is never lowered.
func Raise(current, candidate Priority) Priority {
	if candidate.Rank() > current.Rank() {
		return candidate
	}
	return current
}

const highValueOrderThreshold = 300

// PriorityFact gathers the priority escalators for one case.
type PriorityFact struct {
	DefectiveOrSafety       bool
	Escalated               bool
	Tier                    string
	OrderValue              float64
	ExplicitDissatisfaction bool
}

// Assign evaluates every priority rule and returns the maximum, defaulting
// to medium.
func Assign(f PriorityFact) Priority {
	p := PriorityMedium
	if f.Escalated {
		p = Raise(p, PriorityHigh)
	}
	if f.Tier == "gold" || f.OrderValue > highValueOrderThreshold || f.ExplicitDissatisfaction {
		p = Raise(p, PriorityHigh)
	}
	if f.DefectiveOrSafety {
		p = Raise(p, PriorityUrgent)
	}
	return p
}
