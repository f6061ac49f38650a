package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/threadline/storefront/internal/domain/order"
)

const orderColumns = `id, number, user_id, items, shipping_address, billing_address,
	payment_method, payment_status, payment_transaction_id, paid_at,
	subtotal, discount, coupon_code, shipping, tax, total,
	status, carrier, tracking_number, estimated_delivery, shipped_at, delivered_at,
	cancel_reason, cancelled_at, cancelled_by, notes, created_at, updated_at`

const (
	createOrderSQL = `INSERT INTO orders (id, number, user_id, items, shipping_address, billing_address,
			payment_method, payment_status, payment_transaction_id, paid_at,
			subtotal, discount, coupon_code, shipping, tax, total,
			status, carrier, tracking_number, estimated_delivery, shipped_at, delivered_at,
			cancel_reason, cancelled_at, cancelled_by, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`

	getOrderByIDSQL     = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	getOrderByNumberSQL = `SELECT ` + orderColumns + ` FROM orders WHERE number = $1`

	listOrdersByUserSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	countOrdersByUserSQL = `SELECT count(*) FROM orders WHERE user_id = $1`

	listOrdersSQL = `SELECT ` + orderColumns + ` FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR user_id = $2)
		ORDER BY created_at DESC LIMIT $3 OFFSET $4`
	countOrdersSQL = `SELECT count(*) FROM orders
		WHERE ($1 = '' OR status = $1) AND ($2 = '' OR user_id = $2)`

	updateOrderSQL = `UPDATE orders SET
			payment_status = $2, payment_transaction_id = $3, paid_at = $4,
			status = $5, carrier = $6, tracking_number = $7, estimated_delivery = $8,
			shipped_at = $9, delivered_at = $10,
			cancel_reason = $11, cancelled_at = $12, cancelled_by = $13, updated_at = $14
		WHERE id = $1`

	// transitionOrderSQL additionally matches the expected current status, so
	// a transition that lost a race to a concurrent writer affects zero rows
	// instead of overwriting the newer status.
	transitionOrderSQL = updateOrderSQL + ` AND status = $15`

	insertStatusEntrySQL = `INSERT INTO order_status_history (order_id, status, note, created_at)
		VALUES ($1, $2, $3, $4)`

	getStatusHistorySQL = `SELECT status, note, created_at
		FROM order_status_history WHERE order_id = $1 ORDER BY id`

	nextOrderNumberSQL = `INSERT INTO order_sequences (seq_date, counter) VALUES ($1, 1)
		ON CONFLICT (seq_date) DO UPDATE SET counter = order_sequences.counter + 1
		RETURNING counter`
)

var _ order.Repository = (*OrderRepository)(nil)

// OrderRepository implements order.Repository backed by PostgreSQL. Frozen
// snapshot data (items, addresses) is stored as JSONB; status history lives
// in an append-only side table.
type OrderRepository struct {
	pool *pgxpool.Pool
}

// NewOrderRepository returns an OrderRepository that uses the given pool.
func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// orderItemJSON is the JSONB shape of a frozen order line.
type orderItemJSON struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	SKU       string          `json:"sku"`
	Size      string          `json:"size"`
	Color     string          `json:"color"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	LineTotal decimal.Decimal `json:"lineTotal"`
}

// addressJSON is the JSONB shape of an address snapshot.
type addressJSON struct {
	FullName   string `json:"fullName"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postalCode"`
	Country    string `json:"country"`
	Phone      string `json:"phone,omitempty"`
}

// Create persists a new order together with its initial status history.
func (r *OrderRepository) Create(ctx context.Context, o *order.Order) error {
	itemsJSON, err := json.Marshal(itemsToJSON(o.Items))
	if err != nil {
		return fmt.Errorf("marshaling order items: %w", err)
	}
	shippingJSON, err := json.Marshal(addressToJSON(o.ShippingAddress))
	if err != nil {
		return fmt.Errorf("marshaling shipping address: %w", err)
	}
	billingJSON, err := json.Marshal(addressToJSON(o.BillingAddress))
	if err != nil {
		return fmt.Errorf("marshaling billing address: %w", err)
	}

	var cancelReason, cancelledBy *string
	var cancelledAt *time.Time
	if o.Cancellation != nil {
		cancelReason = &o.Cancellation.Reason
		cancelledAt = &o.Cancellation.CancelledAt
		cancelledBy = &o.Cancellation.CancelledBy
	}

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, createOrderSQL,
			o.ID, o.Number, o.UserID, itemsJSON, shippingJSON, billingJSON,
			o.Payment.Method, string(o.Payment.Status), o.Payment.TransactionID, o.Payment.PaidAt,
			o.Pricing.Subtotal, o.Pricing.Discount, o.Pricing.CouponCode,
			o.Pricing.Shipping, o.Pricing.Tax, o.Pricing.Total,
			string(o.Status), o.Shipping.Carrier, o.Shipping.TrackingNumber,
			o.Shipping.EstimatedDelivery, o.Shipping.ShippedAt, o.Shipping.DeliveredAt,
			cancelReason, cancelledAt, cancelledBy, o.Notes, o.CreatedAt, o.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("creating order %q: %w", o.Number, err)
		}

		for _, e := range o.History {
			if _, err := tx.Exec(ctx, insertStatusEntrySQL, o.ID, string(e.Status), e.Note, e.Timestamp); err != nil {
				return fmt.Errorf("inserting status history for %q: %w", o.Number, err)
			}
		}
		return nil
	})
}

// GetByID returns a single order with its full status history.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByIDSQL, id)
}

// GetByNumber returns a single order by its human-readable number.
func (r *OrderRepository) GetByNumber(ctx context.Context, number string) (*order.Order, error) {
	return r.getOne(ctx, getOrderByNumberSQL, number)
}

func (r *OrderRepository) getOne(ctx context.Context, query, arg string) (*order.Order, error) {
	rows, err := r.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	o, err := pgx.CollectExactlyOneRow(rows, scanOrder)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, order.ErrNotFound
		}
		return nil, fmt.Errorf("getting order %q: %w", arg, err)
	}

	histRows, err := r.pool.Query(ctx, getStatusHistorySQL, o.ID)
	if err != nil {
		return nil, fmt.Errorf("getting status history for %q: %w", o.ID, err)
	}
	history, err := pgx.CollectRows(histRows, scanStatusEntry)
	if err != nil {
		return nil, fmt.Errorf("getting status history for %q: %w", o.ID, err)
	}
	o.History = history

	return &o, nil
}

// ListByUser returns one page of the user's orders (history omitted) plus
// the total count.
func (r *OrderRepository) ListByUser(ctx context.Context, userID string, p order.Page) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countOrdersByUserSQL, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders for user %q: %w", userID, err)
	}

	rows, err := r.pool.Query(ctx, listOrdersByUserSQL, userID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders for user %q: %w", userID, err)
	}
	return orders, total, nil
}

// List returns one page of orders matching the filter (history omitted)
// plus the total count.
func (r *OrderRepository) List(ctx context.Context, f order.ListFilter, p order.Page) ([]order.Order, int, error) {
	var total int
	if err := r.pool.QueryRow(ctx, countOrdersSQL, string(f.Status), f.UserID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("counting orders: %w", err)
	}

	rows, err := r.pool.Query(ctx, listOrdersSQL, string(f.Status), f.UserID, p.Limit, p.Offset())
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	orders, err := pgx.CollectRows(rows, scanOrder)
	if err != nil {
		return nil, 0, fmt.Errorf("listing orders: %w", err)
	}
	return orders, total, nil
}

// Update persists the mutable order fields and appends the optional status
// history entry in one transaction.
func (r *OrderRepository) Update(ctx context.Context, o *order.Order, entry *order.StatusEntry) error {
	return r.persist(ctx, o, entry, updateOrderSQL, nil, order.ErrNotFound)
}

// Transition persists like Update but only while the stored status still
// equals from. Zero rows affected means another writer moved the order first
// and is reported as order.ErrStatusConflict.
func (r *OrderRepository) Transition(ctx context.Context, o *order.Order, entry *order.StatusEntry, from order.Status) error {
	return r.persist(ctx, o, entry, transitionOrderSQL, []any{string(from)}, order.ErrStatusConflict)
}

func (r *OrderRepository) persist(ctx context.Context, o *order.Order, entry *order.StatusEntry, query string, extra []any, zeroRows error) error {
	var cancelReason, cancelledBy *string
	var cancelledAt *time.Time
	if o.Cancellation != nil {
		cancelReason = &o.Cancellation.Reason
		cancelledAt = &o.Cancellation.CancelledAt
		cancelledBy = &o.Cancellation.CancelledBy
	}

	args := []any{
		o.ID,
		string(o.Payment.Status), o.Payment.TransactionID, o.Payment.PaidAt,
		string(o.Status), o.Shipping.Carrier, o.Shipping.TrackingNumber,
		o.Shipping.EstimatedDelivery, o.Shipping.ShippedAt, o.Shipping.DeliveredAt,
		cancelReason, cancelledAt, cancelledBy, o.UpdatedAt,
	}
	args = append(args, extra...)

	return pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("updating order %q: %w", o.Number, err)
		}
		if tag.RowsAffected() == 0 {
			return zeroRows
		}

		if entry != nil {
			_, err := tx.Exec(ctx, insertStatusEntrySQL, o.ID, string(entry.Status), entry.Note, entry.Timestamp)
			if err != nil {
				return fmt.Errorf("inserting status history for %q: %w", o.Number, err)
			}
		}
		return nil
	})
}

// NextNumber returns a new order number for the given day, formatted
// ORD-YYYYMMDD-NNNNN. The per-day counter is bumped with a conditional
// upsert, so concurrent checkouts never observe the same value.
func (r *OrderRepository) NextNumber(ctx context.Context, day time.Time) (string, error) {
	var counter int
	err := r.pool.QueryRow(ctx, nextOrderNumberSQL, day.UTC().Truncate(24*time.Hour)).Scan(&counter)
	if err != nil {
		return "", fmt.Errorf("bumping order sequence: %w", err)
	}
	return fmt.Sprintf("ORD-%s-%05d", day.UTC().Format("20060102"), counter), nil
}

func itemsToJSON(items []order.Item) []orderItemJSON {
	out := make([]orderItemJSON, len(items))
	for i, it := range items {
		out[i] = orderItemJSON{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			SKU:       it.SKU,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		}
	}
	return out
}

func itemsFromJSON(raw []byte) ([]order.Item, error) {
	var decoded []orderItemJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	items := make([]order.Item, len(decoded))
	for i, it := range decoded {
		items[i] = order.Item{
			ProductID: it.ProductID,
			Name:      it.Name,
			Image:     it.Image,
			SKU:       it.SKU,
			Size:      it.Size,
			Color:     it.Color,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			LineTotal: it.LineTotal,
		}
	}
	return items, nil
}

func addressToJSON(a order.Address) addressJSON {
	return addressJSON{
		FullName:   a.FullName,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
		Phone:      a.Phone,
	}
}

func addressFromJSON(raw []byte) (order.Address, error) {
	var decoded addressJSON
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return order.Address{}, err
	}
	return order.Address{
		FullName:   decoded.FullName,
		Line1:      decoded.Line1,
		Line2:      decoded.Line2,
		City:       decoded.City,
		State:      decoded.State,
		PostalCode: decoded.PostalCode,
		Country:    decoded.Country,
		Phone:      decoded.Phone,
	}, nil
}

func scanOrder(row pgx.CollectableRow) (order.Order, error) {
	var (
		o                         order.Order
		itemsRaw                  []byte
		shippingRaw               []byte
		billingRaw                []byte
		paymentStatus, status     string
		cancelReason, cancelledBy *string
		cancelledAt               *time.Time
	)
	err := row.Scan(
		&o.ID, &o.Number, &o.UserID, &itemsRaw, &shippingRaw, &billingRaw,
		&o.Payment.Method, &paymentStatus, &o.Payment.TransactionID, &o.Payment.PaidAt,
		&o.Pricing.Subtotal, &o.Pricing.Discount, &o.Pricing.CouponCode,
		&o.Pricing.Shipping, &o.Pricing.Tax, &o.Pricing.Total,
		&status, &o.Shipping.Carrier, &o.Shipping.TrackingNumber,
		&o.Shipping.EstimatedDelivery, &o.Shipping.ShippedAt, &o.Shipping.DeliveredAt,
		&cancelReason, &cancelledAt, &cancelledBy, &o.Notes, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return o, err
	}

	o.Payment.Status = order.PaymentStatus(paymentStatus)
	o.Status = order.Status(status)

	if o.Items, err = itemsFromJSON(itemsRaw); err != nil {
		return o, fmt.Errorf("decoding order items: %w", err)
	}
	if o.ShippingAddress, err = addressFromJSON(shippingRaw); err != nil {
		return o, fmt.Errorf("decoding shipping address: %w", err)
	}
	if o.BillingAddress, err = addressFromJSON(billingRaw); err != nil {
		return o, fmt.Errorf("decoding billing address: %w", err)
	}

	if cancelledAt != nil {
		c := order.Cancellation{CancelledAt: *cancelledAt}
		if cancelReason != nil {
			c.Reason = *cancelReason
		}
		if cancelledBy != nil {
			c.CancelledBy = *cancelledBy
		}
		o.Cancellation = &c
	}

	return o, nil
}

func scanStatusEntry(row pgx.CollectableRow) (order.StatusEntry, error) {
	var (
		e      order.StatusEntry
		status string
	)
	err := row.Scan(&status, &e.Note, &e.Timestamp)
	e.Status = order.Status(status)
	return e, err
}
