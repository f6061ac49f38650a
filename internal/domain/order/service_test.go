package order

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadline/storefront/internal/domain/cart"
	"github.com/threadline/storefront/internal/domain/inventory"
	"github.com/threadline/storefront/internal/domain/pricing"
	"github.com/threadline/storefront/internal/domain/product"
)

// --- Mock implementations ---

type mockOrderRepo struct {
	byID      map[string]*Order
	createErr error
	seq       int

	// beforeTransition runs between the guard's status read and its write,
	// standing in for a concurrent writer.
	beforeTransition func()
}

func newMockOrderRepo() *mockOrderRepo {
	return &mockOrderRepo{byID: make(map[string]*Order)}
}

func (m *mockOrderRepo) Create(_ context.Context, o *Order) error {
	if m.createErr != nil {
		return m.createErr
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) GetByID(_ context.Context, id string) (*Order, error) {
	o, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *mockOrderRepo) GetByNumber(_ context.Context, number string) (*Order, error) {
	for _, o := range m.byID {
		if o.Number == number {
			cp := *o
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockOrderRepo) ListByUser(_ context.Context, userID string, _ Page) ([]Order, int, error) {
	var out []Order
	for _, o := range m.byID {
		if o.UserID == userID {
			out = append(out, *o)
		}
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) List(_ context.Context, _ ListFilter, _ Page) ([]Order, int, error) {
	var out []Order
	for _, o := range m.byID {
		out = append(out, *o)
	}
	return out, len(out), nil
}

func (m *mockOrderRepo) Update(_ context.Context, o *Order, _ *StatusEntry) error {
	if _, ok := m.byID[o.ID]; !ok {
		return ErrNotFound
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) Transition(_ context.Context, o *Order, _ *StatusEntry, from Status) error {
	if m.beforeTransition != nil {
		m.beforeTransition()
	}
	stored, ok := m.byID[o.ID]
	if !ok {
		return ErrNotFound
	}
	if stored.Status != from {
		return ErrStatusConflict
	}
	cp := *o
	m.byID[o.ID] = &cp
	return nil
}

func (m *mockOrderRepo) NextNumber(_ context.Context, day time.Time) (string, error) {
	m.seq++
	return "ORD-" + day.UTC().Format("20060102") + "-00001", nil
}

type mockCartRepo struct {
	byUser map[string]*cart.Cart
}

func (m *mockCartRepo) GetByUser(_ context.Context, userID string) (*cart.Cart, error) {
	c, ok := m.byUser[userID]
	if !ok {
		return nil, cart.ErrNotFound
	}
	return c, nil
}

func (m *mockCartRepo) Save(_ context.Context, c *cart.Cart) error {
	m.byUser[c.UserID] = c
	return nil
}

type mockProductRepo struct {
	byID map[string]*product.Product
}

func (m *mockProductRepo) GetByID(_ context.Context, id string) (*product.Product, error) {
	p, ok := m.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	return p, nil
}

func (m *mockProductRepo) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	var out []product.Product
	for _, id := range ids {
		if p, ok := m.byID[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// ledgerOp records one inventory mutation for assertion.
type ledgerOp struct {
	op  string
	key inventory.VariantKey
	qty int
}

type mockLedger struct {
	stock      map[inventory.VariantKey]int
	ops        []ledgerOp
	failWhenAt inventory.VariantKey
	failWhen   bool
}

func (m *mockLedger) Reserve(_ context.Context, key inventory.VariantKey, qty int) error {
	if m.failWhen && key == m.failWhenAt {
		return &inventory.InsufficientStockError{Key: key, Requested: qty, Available: 0}
	}
	if m.stock[key] < qty {
		return &inventory.InsufficientStockError{Key: key, Requested: qty, Available: m.stock[key]}
	}
	m.stock[key] -= qty
	m.ops = append(m.ops, ledgerOp{op: "reserve", key: key, qty: qty})
	return nil
}

func (m *mockLedger) Restore(_ context.Context, key inventory.VariantKey, qty int) error {
	m.stock[key] += qty
	m.ops = append(m.ops, ledgerOp{op: "restore", key: key, qty: qty})
	return nil
}

func (m *mockLedger) CheckAvailable(_ context.Context, key inventory.VariantKey, qty int) (bool, error) {
	return m.stock[key] >= qty, nil
}

// --- Helpers ---

var (
	keyM = inventory.VariantKey{ProductID: "p1", Size: "M", Color: "black"}
	keyL = inventory.VariantKey{ProductID: "p1", Size: "L", Color: "black"}
)

func testCatalog(stockM, stockL int) *mockProductRepo {
	return &mockProductRepo{byID: map[string]*product.Product{
		"p1": {
			ID:    "p1",
			Name:  "Classic Tee",
			Price: decimal.RequireFromString("500.00"),
			Variants: []product.Variant{
				{SKU: "TEE-M-BLK", Size: "M", Color: "black", Stock: stockM},
				{SKU: "TEE-L-BLK", Size: "L", Color: "black", Stock: stockL},
			},
		},
	}}
}

func testCart(items ...cart.Item) *cart.Cart {
	calc := pricing.DefaultCalculator()
	lines := make([]pricing.LineItem, len(items))
	for i, it := range items {
		lines[i] = pricing.LineItem{UnitPrice: it.UnitPrice, Quantity: it.Quantity}
	}
	return &cart.Cart{
		ID:     "cart-1",
		UserID: "u1",
		Items:  items,
		Totals: calc.Compute(lines, decimal.Zero),
	}
}

func cartItem(key inventory.VariantKey, sku string, qty int) cart.Item {
	return cart.Item{
		ID:        "item-" + sku,
		ProductID: key.ProductID,
		SKU:       sku,
		Size:      key.Size,
		Color:     key.Color,
		Quantity:  qty,
		UnitPrice: decimal.RequireFromString("500.00"),
	}
}

func newTestService(c *cart.Cart, catalog *mockProductRepo, ledger *mockLedger) (*Service, *mockOrderRepo, *mockCartRepo) {
	orders := newMockOrderRepo()
	carts := &mockCartRepo{byUser: make(map[string]*cart.Cart)}
	if c != nil {
		carts.byUser[c.UserID] = c
	}
	svc := NewService(orders, carts, catalog, ledger)
	svc.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	return svc, orders, carts
}

func checkoutReq() CheckoutRequest {
	return CheckoutRequest{
		UserID: "u1",
		ShippingAddress: Address{
			FullName:   "Ada Lovelace",
			Line1:      "12 Analytical Row",
			City:       "London",
			PostalCode: "N1 7AA",
			Country:    "GB",
		},
		PaymentMethod: "card",
	}
}

// --- Tests ---

func TestCheckout_NoCart(t *testing.T) {
	svc, _, _ := newTestService(nil, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{}})

	_, err := svc.Checkout(context.Background(), checkoutReq())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_EmptyCart(t *testing.T) {
	svc, _, _ := newTestService(testCart(), testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{}})

	_, err := svc.Checkout(context.Background(), checkoutReq())
	require.ErrorIs(t, err, ErrEmptyCart)
}

func TestCheckout_Success(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 2))
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}}
	svc, orders, carts := newTestService(c, testCatalog(10, 10), ledger)

	o, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	assert.Equal(t, "ORD-20250601-00001", o.Number)
	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.History, 1)
	assert.Equal(t, StatusPending, o.History[0].Status)
	assert.Equal(t, PaymentProcessing, o.Payment.Status)

	require.Len(t, o.Items, 1)
	assert.Equal(t, "Classic Tee", o.Items[0].Name)
	assert.True(t, o.Items[0].LineTotal.Equal(decimal.RequireFromString("1000.00")))
	assert.True(t, o.Pricing.Subtotal.Equal(c.Totals.Subtotal))

	assert.Equal(t, 8, ledger.stock[keyM], "stock reserved")
	assert.Contains(t, orders.byID, o.ID)
	assert.Empty(t, carts.byUser["u1"].Items, "cart cleared after checkout")
	assert.True(t, carts.byUser["u1"].Totals.Total.IsZero())
}

func TestCheckout_CODStartsPaymentPending(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	req := checkoutReq()
	req.PaymentMethod = PaymentMethodCOD

	o, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, PaymentPending, o.Payment.Status)
}

func TestCheckout_BillingDefaultsToShipping(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	o, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	assert.Equal(t, o.ShippingAddress, o.BillingAddress)
}

func TestCheckout_SeparateBillingAddress(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	req := checkoutReq()
	billing := Address{FullName: "Billing Dept", Line1: "1 Invoice St", City: "London", PostalCode: "E1 1AA", Country: "GB"}
	req.BillingAddress = &billing

	o, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, billing, o.BillingAddress)
	assert.NotEqual(t, o.ShippingAddress, o.BillingAddress)
}

func TestCheckout_CatalogStockCheck(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 5))
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 3}}
	svc, _, _ := newTestService(c, testCatalog(3, 10), ledger)

	_, err := svc.Checkout(context.Background(), checkoutReq())

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, "p1", oos.ProductID)
	assert.Equal(t, 5, oos.Requested)
	assert.Equal(t, 3, oos.Available)
	assert.Empty(t, ledger.ops, "no reservations before the catalog check fails")
}

func TestCheckout_ReserveFailureCompensatesPriorLines(t *testing.T) {
	c := testCart(
		cartItem(keyM, "TEE-M-BLK", 2),
		cartItem(keyL, "TEE-L-BLK", 1),
	)
	ledger := &mockLedger{
		stock:      map[inventory.VariantKey]int{keyM: 10, keyL: 10},
		failWhen:   true,
		failWhenAt: keyL,
	}
	svc, orders, _ := newTestService(c, testCatalog(10, 10), ledger)

	_, err := svc.Checkout(context.Background(), checkoutReq())

	var oos *OutOfStockError
	require.ErrorAs(t, err, &oos)
	assert.Equal(t, 10, ledger.stock[keyM], "first reservation restored")
	assert.Empty(t, orders.byID, "no order created")

	require.Len(t, ledger.ops, 2)
	assert.Equal(t, ledgerOp{op: "reserve", key: keyM, qty: 2}, ledger.ops[0])
	assert.Equal(t, ledgerOp{op: "restore", key: keyM, qty: 2}, ledger.ops[1])
}

func TestCheckout_CreateFailureRestoresEverything(t *testing.T) {
	c := testCart(
		cartItem(keyM, "TEE-M-BLK", 2),
		cartItem(keyL, "TEE-L-BLK", 1),
	)
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10, keyL: 10}}
	svc, orders, carts := newTestService(c, testCatalog(10, 10), ledger)
	orders.createErr = errors.New("db down")

	_, err := svc.Checkout(context.Background(), checkoutReq())
	require.Error(t, err)

	assert.Equal(t, 10, ledger.stock[keyM])
	assert.Equal(t, 10, ledger.stock[keyL])
	assert.NotEmpty(t, carts.byUser["u1"].Items, "cart untouched on failed checkout")
}

func TestGet_ByNumberOrID(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	byID, err := svc.Get(context.Background(), placed.ID)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, byID.ID)

	byNumber, err := svc.Get(context.Background(), placed.Number)
	require.NoError(t, err)
	assert.Equal(t, placed.ID, byNumber.ID)
}

func TestGetForUser_OwnershipHidesOrder(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	_, err = svc.GetForUser(context.Background(), "someone-else", placed.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCancel_RestoresStock(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 2))
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}}
	svc, _, _ := newTestService(c, testCatalog(10, 10), ledger)

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	require.Equal(t, 8, ledger.stock[keyM])

	cancelled, err := svc.Cancel(context.Background(), "u1", placed.ID, "changed my mind")
	require.NoError(t, err)

	assert.Equal(t, StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.Cancellation)
	assert.Equal(t, "changed my mind", cancelled.Cancellation.Reason)
	assert.Equal(t, "u1", cancelled.Cancellation.CancelledBy)
	assert.Equal(t, 10, ledger.stock[keyM], "stock restored on cancel")

	require.Len(t, cancelled.History, 2)
	assert.Equal(t, StatusCancelled, cancelled.History[1].Status)
}

func TestCancel_RejectedAfterShipping(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}}
	svc, orders, _ := newTestService(c, testCatalog(10, 10), ledger)

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	orders.byID[placed.ID].Status = StatusShipped

	_, err = svc.Cancel(context.Background(), "u1", placed.ID, "too late")
	require.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 9, ledger.stock[keyM], "no restore on rejected cancel")
}

func TestCancel_LosesRaceToConcurrentShip(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 2))
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}}
	svc, orders, _ := newTestService(c, testCatalog(10, 10), ledger)

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	require.Equal(t, 8, ledger.stock[keyM])
	orders.byID[placed.ID].Status = StatusProcessing

	// An admin ships the order between this cancel's status read and its
	// write. The conditional flip must fail and nothing may be restored.
	orders.beforeTransition = func() {
		orders.byID[placed.ID].Status = StatusShipped
	}

	_, err = svc.Cancel(context.Background(), "u1", placed.ID, "changed my mind")
	require.ErrorIs(t, err, ErrNotCancellable)

	assert.Equal(t, StatusShipped, orders.byID[placed.ID].Status, "the shipped status must survive")
	assert.Equal(t, 8, ledger.stock[keyM], "no restore when the cancel loses the race")
}

func TestUpdateStatus_LosesRaceToConcurrentWriter(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, orders, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	orders.beforeTransition = func() {
		orders.byID[placed.ID].Status = StatusCancelled
	}

	_, err = svc.UpdateStatus(context.Background(), placed.ID, StatusUpdate{Status: StatusConfirmed})
	require.ErrorIs(t, err, ErrStatusConflict)
	assert.Equal(t, StatusCancelled, orders.byID[placed.ID].Status)
}

func TestUpdateStatus_HappyTransition(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	o, err := svc.UpdateStatus(context.Background(), placed.ID, StatusUpdate{
		Status: StatusConfirmed,
		Note:   "payment verified",
		Actor:  "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, o.Status)
	require.Len(t, o.History, 2)
	assert.Equal(t, "payment verified", o.History[1].Note)
}

func TestUpdateStatus_InvalidTransition(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	_, err = svc.UpdateStatus(context.Background(), placed.ID, StatusUpdate{Status: StatusDelivered})

	var ite *InvalidTransitionError
	require.ErrorAs(t, err, &ite)
	assert.Equal(t, StatusPending, ite.From)
	assert.Equal(t, StatusDelivered, ite.To)
}

func TestUpdateStatus_ShippedStampsTracking(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, orders, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)
	orders.byID[placed.ID].Status = StatusProcessing

	o, err := svc.UpdateStatus(context.Background(), placed.ID, StatusUpdate{
		Status:         StatusShipped,
		TrackingNumber: "TRK123",
		Carrier:        "bluedart",
	})
	require.NoError(t, err)
	assert.Equal(t, "TRK123", o.Shipping.TrackingNumber)
	assert.Equal(t, "bluedart", o.Shipping.Carrier)
	require.NotNil(t, o.Shipping.ShippedAt)
}

func TestUpdateStatus_DeliveredMarksCODPaid(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, orders, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	req := checkoutReq()
	req.PaymentMethod = PaymentMethodCOD
	placed, err := svc.Checkout(context.Background(), req)
	require.NoError(t, err)
	orders.byID[placed.ID].Status = StatusOutForDelivery

	o, err := svc.UpdateStatus(context.Background(), placed.ID, StatusUpdate{Status: StatusDelivered})
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, o.Payment.Status)
	require.NotNil(t, o.Payment.PaidAt)
	require.NotNil(t, o.Shipping.DeliveredAt)
}

func TestUpdateStatus_CancelledRunsFullCancel(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 2))
	ledger := &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}}
	svc, _, _ := newTestService(c, testCatalog(10, 10), ledger)

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	o, err := svc.UpdateStatus(context.Background(), placed.ID, StatusUpdate{
		Status: StatusCancelled,
		Note:   "fraud check failed",
		Actor:  "admin-1",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, o.Status)
	require.NotNil(t, o.Cancellation)
	assert.Equal(t, "admin-1", o.Cancellation.CancelledBy)
	assert.Equal(t, 10, ledger.stock[keyM], "admin cancel restores stock too")
}

func TestUpdatePayment_PaidStampsPaidAt(t *testing.T) {
	c := testCart(cartItem(keyM, "TEE-M-BLK", 1))
	svc, _, _ := newTestService(c, testCatalog(10, 10), &mockLedger{stock: map[inventory.VariantKey]int{keyM: 10}})

	placed, err := svc.Checkout(context.Background(), checkoutReq())
	require.NoError(t, err)

	o, err := svc.UpdatePayment(context.Background(), placed.ID, PaymentPaid, "txn-42")
	require.NoError(t, err)
	assert.Equal(t, PaymentPaid, o.Payment.Status)
	assert.Equal(t, "txn-42", o.Payment.TransactionID)
	require.NotNil(t, o.Payment.PaidAt)
}
