package contract

import "context"

// Diagnoser is the external diagnosis collaborator: intent classification,
// issue diagnosis, and reply phrasing are irreducible judgment and never
// reimplemented inside the engine.
type Diagnoser interface {
	Diagnose(ctx context.Context, req DiagnosisRequest) (DiagnosisResponse, error)
}

// OrderService is the order/account collaborator contract.
type OrderService interface {
	LookupCustomer(ctx context.Context, query CustomerQuery) (Customer, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
	OrderHistory(ctx context.Context, customerID string) ([]Order, error)
	Refund(ctx context.Context, req RefundRequest) (RefundReceipt, error)
}

// TicketService is the support-ticket collaborator contract.
type TicketService interface {
	CreateTicket(ctx context.Context, req CreateTicketRequest) (Ticket, error)
	GetTicket(ctx context.Context, ticketID string) (Ticket, error)
	UpdateTicket(ctx context.Context, req UpdateTicketRequest) (Ticket, error)
	EscalateTicket(ctx context.Context, ticketID, reason string) (Ticket, error)
	ListTickets(ctx context.Context, customerID string) ([]Ticket, error)
	ResolveTicket(ctx context.Context, ticketID, resolution string) (Ticket, error)
}
