package order

import (
	"context"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/pricing"
)

var (
	// ErrNotFound is returned when a requested order does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrEmptyCart is returned when checkout is attempted on an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotCancellable is returned when cancellation is attempted after
	// the order left the cancellable states.
	ErrNotCancellable = errors.New("order can no longer be cancelled")
	// ErrStatusConflict is returned when a status transition loses the race
	// to a concurrent writer and the stored status is no longer the one the
	// transition was validated against.
	ErrStatusConflict = errors.New("order was updated concurrently")
)

// InvalidTransitionError indicates a status update that the state machine
// does not allow.
type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

// OutOfStockError indicates a checkout line exceeded the variant's current
// availability.
type OutOfStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *OutOfStockError) Error() string {
	return fmt.Sprintf("%s is out of stock: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}

// PaymentStatus tracks the recorded (never processed) payment state.
type PaymentStatus string

const (
	PaymentPending    PaymentStatus = "pending"
	PaymentProcessing PaymentStatus = "processing"
	PaymentPaid       PaymentStatus = "paid"
	PaymentFailed     PaymentStatus = "failed"
	PaymentRefunded   PaymentStatus = "refunded"
)

// PaymentMethodCOD is cash on delivery; orders paid this way start with
// payment status pending instead of processing.
const PaymentMethodCOD = "cod"

// numberPrefix starts every human-readable order number
// (ORD-YYYYMMDD-NNNNN); lookups use it to tell numbers apart from ids.
const numberPrefix = "ORD-"

// Order is an immutable snapshot of a cart at checkout time plus the status
// state machine. Items and pricing never change after creation; only status,
// payment, shipping, and cancellation fields mutate.
type Order struct {
	ID              string
	Number          string
	UserID          string
	Items           []Item
	ShippingAddress Address
	BillingAddress  Address
	Payment         Payment
	Pricing         Pricing
	Status          Status
	History         []StatusEntry
	Shipping        ShippingInfo
	Cancellation    *Cancellation
	Notes           string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Item is a frozen order line. All fields are copied values taken at
// checkout time, not references into the catalog.
type Item struct {
	ProductID string
	Name      string
	Image     string
	SKU       string
	Size      string
	Color     string
	Quantity  int
	UnitPrice decimal.Decimal
	LineTotal decimal.Decimal
}

// Address is a postal address snapshot.
type Address struct {
	FullName   string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
	Phone      string
}

// Payment records the payment method and its observed status. No gateway
// integration exists; these fields are bookkeeping only.
type Payment struct {
	Method        string
	Status        PaymentStatus
	TransactionID string
	PaidAt        *time.Time
}

// Pricing is the totals snapshot copied verbatim from the cart at checkout.
type Pricing struct {
	pricing.Totals
	CouponCode string
}

// StatusEntry is one append-only status history record.
type StatusEntry struct {
	Status    Status
	Timestamp time.Time
	Note      string
}

// ShippingInfo holds carrier metadata. Persisted only; no carrier calls.
type ShippingInfo struct {
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
	ShippedAt         *time.Time
	DeliveredAt       *time.Time
}

// Cancellation records who cancelled the order, when, and why.
type Cancellation struct {
	Reason      string
	CancelledAt time.Time
	CancelledBy string
}

// Page selects a slice of a listing.
type Page struct {
	Number int
	Limit  int
}

// Offset returns the row offset for the page.
func (p Page) Offset() int {
	if p.Number < 1 {
		return 0
	}
	return (p.Number - 1) * p.Limit
}

// ListFilter narrows admin order listings.
type ListFilter struct {
	Status Status
	UserID string
}

// Repository defines persistence for orders.
//
// Update persists the mutable fields (status, payment, shipping,
// cancellation) and appends the given history entry when non-nil; items and
// pricing are write-once via Create. Transition is Update guarded by the
// expected current status: it must write only when the stored status still
// equals from, and report ErrStatusConflict otherwise, so state-machine
// checks validated in memory cannot be invalidated by a concurrent writer.
// NextNumber returns a new globally unique order number for the given day,
// safe under concurrent callers.
type Repository interface {
	Create(ctx context.Context, o *Order) error
	GetByID(ctx context.Context, id string) (*Order, error)
	GetByNumber(ctx context.Context, number string) (*Order, error)
	ListByUser(ctx context.Context, userID string, p Page) ([]Order, int, error)
	List(ctx context.Context, f ListFilter, p Page) ([]Order, int, error)
	Update(ctx context.Context, o *Order, entry *StatusEntry) error
	Transition(ctx context.Context, o *Order, entry *StatusEntry, from Status) error
	NextNumber(ctx context.Context, day time.Time) (string, error)
}
