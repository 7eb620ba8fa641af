package contract

import "time"

// Confidence is the HIGH/LOW verdict on whether the engine can resolve an
// issue without a human.
type Confidence string

const (
	ConfidenceHigh Confidence = "HIGH"
	ConfidenceLow  Confidence = "LOW"
)

// Order status vocabulary of the order collaborator.
const (
	OrderProcessing = "processing"
	OrderShipped    = "shipped"
	OrderDelivered  = "delivered"
	OrderCancelled  = "cancelled"
	OrderRefunded   = "refunded"
)

// Ticket status vocabulary of the ticket collaborator.
const (
	TicketOpen              = "open"
	TicketInProgress        = "in-progress"
	TicketWaitingOnCustomer = "waiting-on-customer"
	TicketEscalated         = "escalated"
	TicketResolved          = "resolved"
	TicketClosed            = "closed"
)

// Ticket categories accepted by the ticket collaborator.
const (
	CategoryRefund         = "refund"
	CategoryOrderStatus    = "order-status"
	CategoryBilling        = "billing"
	CategoryProductDefect  = "product-defect"
	CategoryShipping       = "shipping"
	CategoryAccount        = "account"
	CategoryGeneralInquiry = "general-inquiry"
	CategoryComplaint      = "complaint"
)

type Customer struct {
	CustomerID    string  `json:"customer_id"`
	Name          string  `json:"name"`
	Email         string  `json:"email"`
	Phone         string  `json:"phone,omitempty"`
	Tier          string  `json:"tier"`
	LifetimeSpend float64 `json:"lifetime_spend"`
	OpenTickets   int     `json:"open_tickets"`
}

type OrderItem struct {
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Qty   int     `json:"qty"`
	Price float64 `json:"price"`
}

type Order struct {
	OrderID         string      `json:"order_id"`
	CustomerID      string      `json:"customer_id"`
	Status          string      `json:"status"`
	PlacedAt        time.Time   `json:"placed_at"`
	DeliveredAt     *time.Time  `json:"delivered_at,omitempty"`
	Total           float64     `json:"total"`
	Items           []OrderItem `json:"items,omitempty"`
	ShippingCarrier string      `json:"shipping_carrier,omitempty"`
	TrackingNumber  string      `json:"tracking_number,omitempty"`
	RefundEligible  bool        `json:"refund_eligible"`
}

// Delivered reports whether the order has reached the customer.
func (o Order) Delivered() bool {
	return o.Status == OrderDelivered && o.DeliveredAt != nil
}

// DaysSinceDelivery returns whole days elapsed since delivery, or -1 for
// undelivered orders.
func (o Order) DaysSinceDelivery(now time.Time) int {
	if o.DeliveredAt == nil {
		return -1
	}
	d := now.Sub(*o.DeliveredAt)
	if d < 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}

type RefundReceipt struct {
	RefundID        string  `json:"refund_id"`
	OrderID         string  `json:"order_id"`
	Amount          float64 `json:"amount"`
	Reason          string  `json:"reason"`
	Status          string  `json:"status"`
	EstimatedCredit string  `json:"estimated_credit"`
}

type TicketNote struct {
	Text      string    `json:"text"`
	Author    string    `json:"author"`
	Timestamp time.Time `json:"timestamp"`
}

type Ticket struct {
	TicketID    string       `json:"ticket_id"`
	CustomerID  string       `json:"customer_id"`
	Category    string       `json:"category"`
	Subject     string       `json:"subject"`
	Description string       `json:"description"`
	Priority    string       `json:"priority"`
	Status      string       `json:"status"`
	OrderID     string       `json:"order_id,omitempty"`
	AssignedTo  string       `json:"assigned_to,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
	Notes       []TicketNote `json:"notes,omitempty"`
	Resolution  string       `json:"resolution,omitempty"`
}

// CustomerQuery identifies a customer by email or id; at least one must be set.
type CustomerQuery struct {
	Email      string `json:"email,omitempty"`
	CustomerID string `json:"customer_id,omitempty"`
}

func (q CustomerQuery) Empty() bool {
	return q.Email == "" && q.CustomerID == ""
}

type RefundRequest struct {
	OrderID string  `json:"order_id"`
	Amount  float64 `json:"amount"`
	Reason  string  `json:"reason"`
}

type CreateTicketRequest struct {
	CustomerID  string `json:"customer_id"`
	Category    string `json:"category"`
	Subject     string `json:"subject"`
	Description string `json:"description"`
	Priority    string `json:"priority,omitempty"`
	OrderID     string `json:"order_id,omitempty"`
}

type UpdateTicketRequest struct {
	TicketID string `json:"ticket_id"`
	Status   string `json:"status,omitempty"`
	Note     string `json:"note,omitempty"`
}

// DiagnosisRequest carries everything the external diagnosis collaborator
// needs: the raw message, the persisted variable snapshot, and any facts the
// engine has already gathered this turn.
type DiagnosisRequest struct {
	SessionID   string            `json:"session_id"`
	UserMessage string            `json:"user_message"`
	State       map[string]string `json:"state,omitempty"`
	RetryCount  int               `json:"retry_count"`
	Facts       map[string]any    `json:"facts,omitempty"`
	Now         time.Time         `json:"now"`
}

// DiagnosisResponse is the typed judgment the engine consumes. Free-text
// classification and phrasing stay on the collaborator's side of this
// boundary.
type DiagnosisResponse struct {
	Intent                string     `json:"intent"`
	CustomerEmail         string     `json:"customer_email,omitempty"`
	CustomerID            string     `json:"customer_id,omitempty"`
	OrderID               string     `json:"order_id,omitempty"`
	ResolutionPlan        string     `json:"resolution_plan"`
	Confidence            Confidence `json:"confidence"`
	Reply                 string     `json:"reply"`
	HumanRequested        bool       `json:"human_requested,omitempty"`
	Unsatisfied           bool       `json:"unsatisfied,omitempty"`
	StrongDissatisfaction bool       `json:"strong_dissatisfaction,omitempty"`
	BillingDisputeOrFraud bool       `json:"billing_dispute_or_fraud,omitempty"`
	DefectiveOrSafety     bool       `json:"defective_or_safety,omitempty"`
}
