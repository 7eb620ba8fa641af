package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	contractx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/contract"
	graphx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/graph"
	policyx "github.com/kittipos/Casemate-Support-Resolution-Engine/agent/policy"
)

type fakeDiagnoser struct {
	responses []contractx.DiagnosisResponse
	calls     int
	requests  []contractx.DiagnosisRequest
}

func (f *fakeDiagnoser) Diagnose(ctx context.Context, req contractx.DiagnosisRequest) (contractx.DiagnosisResponse, error) {
	f.requests = append(f.requests, req)
	f.calls++
	idx := f.calls - 1
	if idx >= len(f.responses) {
		return contractx.DiagnosisResponse{}, fmt.Errorf("no diagnosis left at call=%d", f.calls)
	}
	return f.responses[idx], nil
}

type fakeOrders struct {
	customer  contractx.Customer
	lookupErr error
	orders    map[string]contractx.Order
	history   []contractx.Order
	refundErr error
	refunds   []contractx.RefundRequest
	lookups   int
	getOrders int
	histCalls int
}

func (f *fakeOrders) LookupCustomer(ctx context.Context, query contractx.CustomerQuery) (contractx.Customer, error) {
	f.lookups++
	if f.lookupErr != nil {
		return contractx.Customer{}, f.lookupErr
	}
	return f.customer, nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, orderID string) (contractx.Order, error) {
	f.getOrders++
	order, ok := f.orders[orderID]
	if !ok {
		return contractx.Order{}, fmt.Errorf("%w: order not found", contractx.ErrCallRejected)
	}
	return order, nil
}

func (f *fakeOrders) OrderHistory(ctx context.Context, customerID string) ([]contractx.Order, error) {
	f.histCalls++
	return f.history, nil
}

func (f *fakeOrders) Refund(ctx context.Context, req contractx.RefundRequest) (contractx.RefundReceipt, error) {
	f.refunds = append(f.refunds, req)
	if f.refundErr != nil {
		return contractx.RefundReceipt{}, f.refundErr
	}
	return contractx.RefundReceipt{
		RefundID: fmt.Sprintf("REF-%d", len(f.refunds)),
		OrderID:  req.OrderID,
		Amount:   req.Amount,
		Status:   "issued",
	}, nil
}

type fakeTickets struct {
	created    []contractx.CreateTicketRequest
	escalated  []string
	nextTicket int
}

func (f *fakeTickets) CreateTicket(ctx context.Context, req contractx.CreateTicketRequest) (contractx.Ticket, error) {
	f.created = append(f.created, req)
	f.nextTicket++
	return contractx.Ticket{
		TicketID:   fmt.Sprintf("TKT-%d", f.nextTicket),
		CustomerID: req.CustomerID,
		Category:   req.Category,
		Priority:   req.Priority,
		Status:     contractx.TicketOpen,
	}, nil
}

func (f *fakeTickets) GetTicket(ctx context.Context, ticketID string) (contractx.Ticket, error) {
	return contractx.Ticket{TicketID: ticketID, Status: contractx.TicketOpen}, nil
}

func (f *fakeTickets) UpdateTicket(ctx context.Context, req contractx.UpdateTicketRequest) (contractx.Ticket, error) {
	return contractx.Ticket{TicketID: req.TicketID, Status: req.Status}, nil
}

func (f *fakeTickets) EscalateTicket(ctx context.Context, ticketID, reason string) (contractx.Ticket, error) {
	f.escalated = append(f.escalated, ticketID)
	return contractx.Ticket{TicketID: ticketID, Status: contractx.TicketEscalated, Priority: "high"}, nil
}

func (f *fakeTickets) ListTickets(ctx context.Context, customerID string) ([]contractx.Ticket, error) {
	return nil, nil
}

func (f *fakeTickets) ResolveTicket(ctx context.Context, ticketID, resolution string) (contractx.Ticket, error) {
	return contractx.Ticket{TicketID: ticketID, Status: contractx.TicketResolved, Resolution: resolution}, nil
}

type testEngine struct {
	resolver    *Resolver
	store       *graphx.MemoryStore
	policyStore *policyx.MemoryStateStore
	diagnoser   *fakeDiagnoser
	orders      *fakeOrders
	tickets     *fakeTickets
}

func newTestEngine(t *testing.T, diagnoser *fakeDiagnoser, orders *fakeOrders, tickets *fakeTickets) *testEngine {
	t.Helper()

	store := graphx.NewMemoryStore()
	policyStore := policyx.NewMemoryStateStore()
	gateway, err := policyx.NewGateway(policyStore)
	if err != nil {
		t.Fatalf("NewGateway() error = %v", err)
	}

	r, err := New(store, diagnoser, orders, tickets, gateway, Config{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return &testEngine{
		resolver:    r,
		store:       store,
		policyStore: policyStore,
		diagnoser:   diagnoser,
		orders:      orders,
		tickets:     tickets,
	}
}

func TestHandleMessageInvalidInput(t *testing.T) {
	t.Parallel()

	e := newTestEngine(t, &fakeDiagnoser{}, &fakeOrders{}, &fakeTickets{})

	_, err := e.resolver.HandleMessage(context.Background(), "   ", "hello")
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}
	_, err = e.resolver.HandleMessage(context.Background(), "s1", "   ")
	if !errors.Is(err, ErrInvalidMessage) {
		t.Fatalf("expected ErrInvalidMessage, got %v", err)
	}
}

func TestClarificationTurn(t *testing.T) {
	t.Parallel()

	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{{
			Intent:     "refund_request",
			Confidence: contractx.ConfidenceLow,
			Reply:      "Could you share the email on your account and the order number?",
		}},
	}
	orders := &fakeOrders{}
	e := newTestEngine(t, diagnoser, orders, &fakeTickets{})

	result, err := e.resolver.HandleMessage(context.Background(), "session-1", "I want my money back")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.Contains(result.Reply, "email") {
		t.Fatalf("reply should ask for identifiers, got %q", result.Reply)
	}
	if result.Escalated || result.Refunded {
		t.Fatalf("clarification turn must not act: %+v", result)
	}
	if orders.lookups != 0 {
		t.Fatalf("no collaborator call expected, got %d lookups", orders.lookups)
	}

	point, ok, err := e.resolver.Resume(context.Background(), "session-1")
	if err != nil || !ok {
		t.Fatalf("Resume() = %+v, %t, %v", point, ok, err)
	}
	if point.Subject != "Collect customer identifiers" || point.Status != graphx.StatusInProgress {
		t.Fatalf("resume point = %+v", point)
	}
}

func TestAutoApprovedRefund(t *testing.T) {
	t.Parallel()

	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{{
			Intent:         "refund_request",
			CustomerEmail:  "jane@example.com",
			OrderID:        "ORD-1",
			ResolutionPlan: "Cancel the shipped order and refund in full",
			Confidence:     contractx.ConfidenceHigh,
			Reply:          "I can help with that refund.",
		}},
	}
	orders := &fakeOrders{
		customer: contractx.Customer{CustomerID: "CUST-001", Email: "jane@example.com", Tier: "standard"},
		orders: map[string]contractx.Order{
			"ORD-1": {OrderID: "ORD-1", CustomerID: "CUST-001", Status: contractx.OrderShipped, Total: 500},
		},
	}
	e := newTestEngine(t, diagnoser, orders, &fakeTickets{})

	result, err := e.resolver.HandleMessage(context.Background(), "session-1", "Please refund order ORD-1, jane@example.com")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !result.Refunded || result.Escalated {
		t.Fatalf("result = %+v, want refunded without escalation", result)
	}
	if len(orders.refunds) != 1 || orders.refunds[0].OrderID != "ORD-1" || orders.refunds[0].Amount != 500 {
		t.Fatalf("refunds = %+v", orders.refunds)
	}
	if !strings.Contains(result.Reply, "REF-1") {
		t.Fatalf("reply should reference the refund, got %q", result.Reply)
	}

	snapshot, err := e.resolver.State(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snapshot["CUSTOMER"] != "CUST-001" || snapshot["ORDER"] != "ORD-1" {
		t.Fatalf("snapshot = %+v", snapshot)
	}
	if snapshot["CONFIDENCE"] != string(contractx.ConfidenceHigh) {
		t.Fatalf("CONFIDENCE = %q", snapshot["CONFIDENCE"])
	}

	// The turn finished; nothing is left to resume but the engine recorded
	// the work as completed tasks.
	if point, ok, _ := e.resolver.Resume(context.Background(), "session-1"); ok {
		t.Fatalf("Resume() after a finished turn = %+v", point)
	}

	st, err := e.policyStore.Load(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("policy Load() error = %v", err)
	}
	if !st.GraphInitialized || st.Violations != 0 {
		t.Fatalf("policy state = %+v", st)
	}
}

func TestHumanRequestedEscalation(t *testing.T) {
	t.Parallel()

	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{{
			Intent:         "account_issue",
			CustomerID:     "CUST-001",
			ResolutionPlan: "Customer locked out of the account",
			Confidence:     contractx.ConfidenceHigh,
			Reply:          "I understand you'd like to speak with someone.",
			HumanRequested: true,
		}},
	}
	orders := &fakeOrders{customer: contractx.Customer{CustomerID: "CUST-001", Tier: "standard"}}
	tickets := &fakeTickets{}
	e := newTestEngine(t, diagnoser, orders, tickets)

	result, err := e.resolver.HandleMessage(context.Background(), "session-1", "Let me talk to a human")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !result.Escalated || result.TicketID != "TKT-1" {
		t.Fatalf("result = %+v", result)
	}
	if len(tickets.created) != 1 || tickets.created[0].Category != contractx.CategoryAccount {
		t.Fatalf("created tickets = %+v", tickets.created)
	}
	if tickets.created[0].Priority != "high" {
		t.Fatalf("escalated ticket priority = %q, want high", tickets.created[0].Priority)
	}
	if len(tickets.escalated) != 1 || tickets.escalated[0] != "TKT-1" {
		t.Fatalf("escalated = %+v", tickets.escalated)
	}

	snapshot, err := e.resolver.State(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snapshot["TICKET_ID"] != "TKT-1" {
		t.Fatalf("snapshot = %+v", snapshot)
	}

	// The hand-off stays open for the human who owns it now.
	point, ok, err := e.resolver.Resume(context.Background(), "session-1")
	if err != nil || !ok {
		t.Fatalf("Resume() = %+v, %t, %v", point, ok, err)
	}
	if point.Subject != "Escalate to human support" || point.Status != graphx.StatusInProgress {
		t.Fatalf("resume point = %+v", point)
	}
}

func TestRetryCeilingForcesEscalation(t *testing.T) {
	t.Parallel()

	unsatisfied := func() contractx.DiagnosisResponse {
		return contractx.DiagnosisResponse{
			Intent:      "account_issue",
			CustomerID:  "CUST-001",
			Confidence:  contractx.ConfidenceHigh,
			Reply:       "Let me try another fix.",
			Unsatisfied: true,
		}
	}
	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{unsatisfied(), unsatisfied(), unsatisfied()},
	}
	orders := &fakeOrders{customer: contractx.Customer{CustomerID: "CUST-001", Tier: "standard"}}
	tickets := &fakeTickets{}
	e := newTestEngine(t, diagnoser, orders, tickets)
	ctx := context.Background()

	r1, err := e.resolver.HandleMessage(ctx, "session-1", "that didn't work")
	if err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if r1.Escalated {
		t.Fatalf("turn 1 escalated too early: %+v", r1)
	}

	r2, err := e.resolver.HandleMessage(ctx, "session-1", "still broken")
	if err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}
	if r2.Escalated {
		t.Fatalf("turn 2 escalated too early: %+v", r2)
	}

	// Turn 3: the decision stage already sees two failed cycles, and the
	// retry controller hits the ceiling, forcing the low score.
	r3, err := e.resolver.HandleMessage(ctx, "session-1", "nope, still broken")
	if err != nil {
		t.Fatalf("turn 3 error = %v", err)
	}
	if !r3.Escalated {
		t.Fatalf("turn 3 must escalate: %+v", r3)
	}

	snapshot, err := e.resolver.State(ctx, "session-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snapshot["RETRY_COUNT"] != "3" {
		t.Fatalf("RETRY_COUNT = %q, want 3", snapshot["RETRY_COUNT"])
	}
	if snapshot["CONFIDENCE"] != string(contractx.ConfidenceLow) {
		t.Fatalf("CONFIDENCE = %q, want forced LOW", snapshot["CONFIDENCE"])
	}
}

func TestRejectedRefundDowngradesToEscalation(t *testing.T) {
	t.Parallel()

	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{{
			Intent:        "refund_request",
			CustomerEmail: "jane@example.com",
			OrderID:       "ORD-1",
			Confidence:    contractx.ConfidenceHigh,
			Reply:         "Processing your refund.",
		}},
	}
	orders := &fakeOrders{
		customer: contractx.Customer{CustomerID: "CUST-001", Tier: "standard"},
		orders: map[string]contractx.Order{
			"ORD-1": {OrderID: "ORD-1", Status: contractx.OrderProcessing, Total: 80},
		},
		refundErr: fmt.Errorf("%w: payment provider unavailable", contractx.ErrCallRejected),
	}
	tickets := &fakeTickets{}
	e := newTestEngine(t, diagnoser, orders, tickets)

	result, err := e.resolver.HandleMessage(context.Background(), "session-1", "refund ORD-1 please")
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if result.Refunded {
		t.Fatal("rejected refund must not report success")
	}
	if !result.Escalated || len(tickets.escalated) != 1 {
		t.Fatalf("rejected refund must escalate: %+v, escalated=%v", result, tickets.escalated)
	}

	snapshot, err := e.resolver.State(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("State() error = %v", err)
	}
	if snapshot["CONFIDENCE"] != string(contractx.ConfidenceLow) {
		t.Fatalf("CONFIDENCE = %q, want LOW after the rejection", snapshot["CONFIDENCE"])
	}
}

func TestTicketReusedAcrossTurns(t *testing.T) {
	t.Parallel()

	escalating := func(reply string) contractx.DiagnosisResponse {
		return contractx.DiagnosisResponse{
			Intent:                "billing_dispute",
			CustomerID:            "CUST-001",
			Confidence:            contractx.ConfidenceHigh,
			Reply:                 reply,
			BillingDisputeOrFraud: true,
		}
	}
	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{escalating("Looking into the charge."), escalating("Any update?")},
	}
	orders := &fakeOrders{customer: contractx.Customer{CustomerID: "CUST-001", Tier: "standard"}}
	tickets := &fakeTickets{}
	e := newTestEngine(t, diagnoser, orders, tickets)
	ctx := context.Background()

	if _, err := e.resolver.HandleMessage(ctx, "session-1", "this charge is wrong"); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if _, err := e.resolver.HandleMessage(ctx, "session-1", "any update on my dispute?"); err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}

	if len(tickets.created) != 1 {
		t.Fatalf("created %d tickets, want the first turn's ticket reused", len(tickets.created))
	}
	if len(tickets.escalated) != 2 || tickets.escalated[1] != "TKT-1" {
		t.Fatalf("escalated = %+v", tickets.escalated)
	}
}

func TestEndSessionDiscardsEverything(t *testing.T) {
	t.Parallel()

	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{{
			Intent:     "general_question",
			Confidence: contractx.ConfidenceHigh,
			Reply:      "Our returns window is 30 days.",
		}},
	}
	e := newTestEngine(t, diagnoser, &fakeOrders{}, &fakeTickets{})
	ctx := context.Background()

	if _, err := e.resolver.HandleMessage(ctx, "session-1", "what's your returns policy?"); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if err := e.resolver.EndSession(ctx, "session-1"); err != nil {
		t.Fatalf("EndSession() error = %v", err)
	}

	if _, err := e.store.Load(ctx, "session-1"); !errors.Is(err, graphx.ErrGraphNotFound) {
		t.Fatalf("graph should be deleted, got %v", err)
	}
	if _, err := e.policyStore.Load(ctx, "session-1"); !errors.Is(err, policyx.ErrStateNotFound) {
		t.Fatalf("policy state should be deleted, got %v", err)
	}

	// Ending an unknown session is harmless.
	if err := e.resolver.EndSession(ctx, "session-2"); err != nil {
		t.Fatalf("EndSession() on unknown session error = %v", err)
	}
}

func TestDiagnosisReceivesSessionState(t *testing.T) {
	t.Parallel()

	diagnoser := &fakeDiagnoser{
		responses: []contractx.DiagnosisResponse{
			{
				Intent:        "order_status",
				CustomerEmail: "jane@example.com",
				Confidence:    contractx.ConfidenceHigh,
				Reply:         "Your order is on the way.",
			},
			{
				Intent:     "order_status",
				Confidence: contractx.ConfidenceHigh,
				Reply:      "Still in transit.",
			},
		},
	}
	orders := &fakeOrders{
		customer: contractx.Customer{CustomerID: "CUST-001", Tier: "standard"},
		history:  []contractx.Order{{OrderID: "ORD-7", Status: contractx.OrderShipped, Total: 60}},
		orders: map[string]contractx.Order{
			"ORD-7": {OrderID: "ORD-7", Status: contractx.OrderShipped, Total: 60},
		},
	}
	e := newTestEngine(t, diagnoser, orders, &fakeTickets{})
	ctx := context.Background()

	if _, err := e.resolver.HandleMessage(ctx, "session-1", "where's my order? jane@example.com"); err != nil {
		t.Fatalf("turn 1 error = %v", err)
	}
	if _, err := e.resolver.HandleMessage(ctx, "session-1", "any movement?"); err != nil {
		t.Fatalf("turn 2 error = %v", err)
	}

	// The second diagnosis sees what the first turn persisted, so the
	// engine does not ask for identifiers again.
	second := diagnoser.requests[1]
	if second.State["CUSTOMER"] != "CUST-001" || second.State["ORDER"] != "ORD-7" {
		t.Fatalf("second diagnosis state = %+v", second.State)
	}
	if orders.histCalls != 1 {
		t.Fatalf("history calls = %d, want 1 (second turn reuses the stored order)", orders.histCalls)
	}
}
