package checkout_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/lock"
	"github.com/noah-isme/storefront-checkout/internal/order"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

type fakeCart struct {
	snap cart.Snapshot
	err  error
}

func (f *fakeCart) Snapshot(context.Context, string) (cart.Snapshot, error) { return f.snap, f.err }

type fakeCoupons struct {
	apply func(ctx context.Context, code string, amount pricing.Money) (coupon.Instrument, error)
}

func (f *fakeCoupons) Apply(ctx context.Context, code string, amount pricing.Money) (coupon.Instrument, error) {
	return f.apply(ctx, code, amount)
}

type fakeWallet struct {
	balance int
	err     error
}

func (f *fakeWallet) Balance(context.Context, string) (int, error) { return f.balance, f.err }

type fakeCatalog struct {
	idx catalog.Index
	err error
}

func (f *fakeCatalog) Products(context.Context) (catalog.Index, error) { return f.idx, f.err }

type fakeGateways []settlement.Gateway

func (f fakeGateways) ListActive(context.Context) ([]settlement.Gateway, error) { return f, nil }

type fakeOrders struct {
	mu       sync.Mutex
	requests []order.Request
	pending  map[string]string
	err      error
}

func (f *fakeOrders) Create(_ context.Context, req order.Request) (order.Created, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return order.Created{}, f.err
	}
	f.requests = append(f.requests, req)
	return order.Created{ID: "ord-1", Status: "PENDING"}, nil
}

func (f *fakeOrders) MarkPaymentPending(_ context.Context, orderID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending == nil {
		f.pending = map[string]string{}
	}
	f.pending[orderID] = reason
	return nil
}

type fakeCharger struct {
	err  error
	reqs []payment.ChargeRequest
}

func (f *fakeCharger) Charge(_ context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return payment.Charge{}, f.err
	}
	return payment.Charge{Provider: "razorpay", ID: "order_Rz1", Amount: pricing.MinorUnits(req.Amount), Currency: req.Currency}, nil
}

type fixture struct {
	svc     *checkout.Service
	cart    *fakeCart
	coupons *fakeCoupons
	wallet  *fakeWallet
	catalog *fakeCatalog
	orders  *fakeOrders
	charger *fakeCharger
	events  []events.Event
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, _ := newRedis(t)
	f := &fixture{
		cart:    &fakeCart{snap: cart.Snapshot{Lines: sampleLines(), Subtotal: 800, Total: 800}},
		coupons: &fakeCoupons{apply: func(_ context.Context, code string, _ pricing.Money) (coupon.Instrument, error) {
			return flat(code, 100), nil
		}},
		wallet:  &fakeWallet{balance: 10000},
		catalog: &fakeCatalog{idx: catalog.Index{"face-wash": catalog.Row{"slug": "face-wash", "MRP ": "₹420"}}},
		orders:  &fakeOrders{},
		charger: &fakeCharger{},
	}
	bus := &events.Bus{Notifiers: []events.Notifier{events.NotifierFunc(func(_ context.Context, e events.Event) error {
		f.events = append(f.events, e)
		return nil
	})}}
	f.svc = &checkout.Service{
		Store:         checkout.NewRedisStore(client, time.Minute),
		Locks:         lock.Locker{R: client, Prefix: "checkout:lock:", RetryBackoff: 5 * time.Millisecond},
		Carts:         f.cart,
		Coupons:       f.coupons,
		Wallet:        f.wallet,
		Catalog:       f.catalog,
		GatewayConfig: fakeGateways{{ID: "cod", Name: "Cash on Delivery", IsActive: true}, {ID: "razorpay", Name: "Razorpay", IsActive: true}},
		Orders:        f.orders,
		Payments:      f.charger,
		Events:        bus,
		Logger:        zerolog.Nop(),
		Currency:      "INR",
		Now:           func() time.Time { return fixedNow },
	}
	return f
}

func (f *fixture) start(t *testing.T) checkout.Quote {
	t.Helper()
	q, err := f.svc.Start(context.Background(), "u1", checkout.StartInput{})
	require.NoError(t, err)
	return q
}

func shippingAddress() order.Address {
	return order.Address{FullName: "Asha Rao", Phone: "9876543210", AddressLine1: "12 MG Road", City: "Bengaluru", State: "KA", Pincode: "560001"}
}

func TestStartResolvesMRPFromCatalog(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)

	require.Equal(t, 10000, q.State.Coins.Available)
	require.Len(t, q.Totals.Lines, 2)
	require.Equal(t, pricing.MRPFromCart, q.Totals.Lines[0].MRPSource)
	require.Equal(t, pricing.MRPFromCatalog, q.Totals.Lines[1].MRPSource)
	require.Equal(t, 1020.0, q.Decision.MRPTotal)
	require.Equal(t, 220.0, q.Decision.ProductDiscount)

	again, err := f.svc.Quote(context.Background(), "u1", q.State.ID)
	require.NoError(t, err)
	require.Equal(t, q.Decision, again.Decision)
}

func TestStartFailsWhenWalletUnavailable(t *testing.T) {
	f := newFixture(t)
	f.wallet.err = errors.New("wallet down")
	_, err := f.svc.Start(context.Background(), "u1", checkout.StartInput{})
	require.ErrorContains(t, err, "wallet down")
}

func TestStartRejectsCartOutOfSync(t *testing.T) {
	f := newFixture(t)
	f.cart.snap.Subtotal = 1
	_, err := f.svc.Start(context.Background(), "u1", checkout.StartInput{})
	require.ErrorIs(t, err, cart.ErrOutOfSync)
	require.Empty(t, f.orders.requests)
}

func TestStartBuyNowIgnoresCartSubtotal(t *testing.T) {
	f := newFixture(t)
	f.cart.snap.Subtotal = 1
	q, err := f.svc.Start(context.Background(), "u1", checkout.StartInput{BuyNow: "face-wash"})
	require.NoError(t, err)
	require.Equal(t, 350.0, q.Decision.Subtotal)
}

func TestStartWithoutCart(t *testing.T) {
	f := newFixture(t)
	f.cart.snap = cart.Snapshot{}
	_, err := f.svc.Start(context.Background(), "u1", checkout.StartInput{})
	require.ErrorIs(t, err, pricing.ErrEmptyCart)

	f.cart.err = errors.New("cart service down")
	_, err = f.svc.Start(context.Background(), "u1", checkout.StartInput{})
	require.ErrorContains(t, err, "cart service down")
}

func TestCatalogFailureFallsBackToCurrentPrice(t *testing.T) {
	f := newFixture(t)
	f.catalog.err = errors.New("csv unavailable")
	q := f.start(t)
	require.Equal(t, pricing.MRPFromCurrentPrice, q.Totals.Lines[1].MRPSource)
	require.Equal(t, 350.0, q.Totals.Lines[1].MRP)
}

func TestSessionBelongsToUser(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	_, err := f.svc.Quote(context.Background(), "intruder", q.State.ID)
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestApplyCouponSendsSubtotal(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	var sent pricing.Money
	f.coupons.apply = func(_ context.Context, code string, amount pricing.Money) (coupon.Instrument, error) {
		sent = amount
		return coupon.Instrument{Code: code, Kind: coupon.KindPercentage, Value: 10}, nil
	}

	q, err := f.svc.ApplyCoupon(context.Background(), "u1", q.State.ID, " SAVE10 ")
	require.NoError(t, err)
	require.Equal(t, 800.0, sent)
	require.Equal(t, "SAVE10", q.State.Coupon.Code)
	require.Equal(t, 80.0, q.Decision.CouponDiscount)
}

func TestApplyCouponDropsResponseAfterRemoval(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	id := q.State.ID
	f.coupons.apply = func(ctx context.Context, code string, _ pricing.Money) (coupon.Instrument, error) {
		_, err := f.svc.RemoveCoupon(ctx, "u1", id)
		require.NoError(t, err)
		return flat(code, 100), nil
	}

	_, err := f.svc.ApplyCoupon(context.Background(), "u1", id, "LATE")
	require.ErrorIs(t, err, checkout.ErrSuperseded)

	q, err = f.svc.Quote(context.Background(), "u1", id)
	require.NoError(t, err)
	require.Nil(t, q.State.Coupon)
	require.Zero(t, q.Decision.CouponDiscount)
}

func TestApplyCouponInvalid(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	f.coupons.apply = func(context.Context, string, pricing.Money) (coupon.Instrument, error) {
		return coupon.Instrument{}, coupon.ErrInvalidCode
	}
	_, err := f.svc.ApplyCoupon(context.Background(), "u1", q.State.ID, "BOGUS")
	require.ErrorIs(t, err, coupon.ErrInvalidCode)

	_, err = f.svc.ApplyCoupon(context.Background(), "u1", q.State.ID, "  ")
	require.ErrorIs(t, err, coupon.ErrCodeRequired)
}

func TestPlaceOrderCoinOnly(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	id := q.State.ID

	q, err := f.svc.SetCoins(context.Background(), "u1", id, 50000)
	require.NoError(t, err)
	require.Equal(t, 8000, q.State.Coins.Requested)
	require.True(t, q.Decision.CoinOnly)

	placement, err := f.svc.PlaceOrder(context.Background(), "u1", id, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	require.Equal(t, "ord-1", placement.OrderID)
	require.Nil(t, placement.Charge)
	require.Empty(t, f.charger.reqs)

	require.Len(t, f.orders.requests, 1)
	req := f.orders.requests[0]
	require.Equal(t, settlement.MethodCoins, req.PaymentMethod)
	require.Equal(t, settlement.TypePrepaid, req.PaymentType)
	require.Zero(t, req.Total)
	require.Equal(t, 8000, req.CoinsUsed)
	require.Equal(t, 800.0, req.CoinDiscount)

	require.Len(t, f.events, 1)
	require.Equal(t, events.TopicOrderPlaced, f.events[0].Topic)

	_, err = f.svc.Quote(context.Background(), "u1", id)
	require.ErrorIs(t, err, checkout.ErrSessionNotFound)
}

func TestPlaceOrderChargesGateway(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	id := q.State.ID
	_, err := f.svc.SelectPayment(context.Background(), "u1", id, settlement.MethodRazorpay)
	require.NoError(t, err)

	placement, err := f.svc.PlaceOrder(context.Background(), "u1", id, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	require.NotNil(t, placement.Charge)
	require.Equal(t, int64(80000), placement.Charge.Amount)
	require.Len(t, f.charger.reqs, 1)
	require.Equal(t, "ord-1", f.charger.reqs[0].OrderID)
	require.Equal(t, 800.0, f.charger.reqs[0].Amount)
}

func TestPlaceOrderChargeFailureLeavesPaymentPending(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	id := q.State.ID
	_, err := f.svc.SelectPayment(context.Background(), "u1", id, settlement.MethodRazorpay)
	require.NoError(t, err)
	f.charger.err = errors.New("gateway timeout")

	placement, err := f.svc.PlaceOrder(context.Background(), "u1", id, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.Error(t, err)
	require.Equal(t, "ord-1", placement.OrderID)

	var appErr *common.AppError
	require.True(t, errors.As(err, &appErr))
	require.Equal(t, "PAYMENT_NOT_COMPLETED", appErr.Code)
	require.Equal(t, map[string]string{"orderId": "ord-1"}, appErr.Details)
	require.Equal(t, "charge_failed", f.orders.pending["ord-1"])
	require.Equal(t, events.TopicPaymentPending, f.events[len(f.events)-1].Topic)
}

func TestPlaceOrderRequiresPaymentMethod(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	_, err := f.svc.PlaceOrder(context.Background(), "u1", q.State.ID, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.ErrorIs(t, err, settlement.ErrPaymentMethodRequired)
	require.Empty(t, f.orders.requests)
}

func TestPlaceOrderValidatesAddresses(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	bad := shippingAddress()
	bad.Phone = "12345"
	billing := shippingAddress()
	billing.Pincode = "ABC123"

	_, err := f.svc.PlaceOrder(context.Background(), "u1", q.State.ID, checkout.PlaceOrderInput{ShippingAddress: bad, BillingAddress: &billing})
	var verr *order.ValidationError
	require.True(t, errors.As(err, &verr))
	require.Contains(t, verr.Fields, "shippingAddress.phone")
	require.Contains(t, verr.Fields, "billingAddress.pincode")
}

func TestGatewaysFollowEligibility(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	gateways, err := f.svc.Gateways(context.Background(), "u1", q.State.ID)
	require.NoError(t, err)
	require.Len(t, gateways, 2)

	_, err = f.svc.SetQuantity(context.Background(), "u1", q.State.ID, "p1", 3)
	require.NoError(t, err)
	gateways, err = f.svc.Gateways(context.Background(), "u1", q.State.ID)
	require.NoError(t, err)
	require.Len(t, gateways, 1)
	require.Equal(t, "razorpay", gateways[0].ID)
}

func TestPlaceOrderFullyDiscountedByCoupon(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	id := q.State.ID
	f.coupons.apply = func(_ context.Context, code string, _ pricing.Money) (coupon.Instrument, error) {
		return flat(code, 800), nil
	}

	q, err := f.svc.ApplyCoupon(context.Background(), "u1", id, "FREE800")
	require.NoError(t, err)
	require.Zero(t, q.Decision.GrandTotal)
	require.False(t, q.Decision.CoinOnly)
	require.Equal(t, settlement.Selection{Method: settlement.MethodRazorpay, Type: settlement.TypePrepaid}, q.State.Payment)

	placement, err := f.svc.PlaceOrder(context.Background(), "u1", id, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	require.Nil(t, placement.Charge)
	require.Empty(t, f.charger.reqs)

	require.Len(t, f.orders.requests, 1)
	req := f.orders.requests[0]
	require.Equal(t, settlement.MethodRazorpay, req.PaymentMethod)
	require.Equal(t, settlement.TypePrepaid, req.PaymentType)
	require.Zero(t, req.Total)
	require.Equal(t, 800.0, req.DiscountAmount)
}

func TestPaymentDismissedMarksOrderPending(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	_, err := f.svc.SelectPayment(context.Background(), "u1", q.State.ID, settlement.MethodRazorpay)
	require.NoError(t, err)
	_, err = f.svc.PlaceOrder(context.Background(), "u1", q.State.ID, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.NoError(t, err)

	require.NoError(t, f.svc.PaymentDismissed(context.Background(), "u1", "ord-1"))
	require.Equal(t, "payment_dismissed", f.orders.pending["ord-1"])
}

func TestPaymentDismissedChecksOwner(t *testing.T) {
	f := newFixture(t)
	q := f.start(t)
	_, err := f.svc.SelectPayment(context.Background(), "u1", q.State.ID, settlement.MethodRazorpay)
	require.NoError(t, err)
	_, err = f.svc.PlaceOrder(context.Background(), "u1", q.State.ID, checkout.PlaceOrderInput{ShippingAddress: shippingAddress()})
	require.NoError(t, err)
	emitted := len(f.events)

	err = f.svc.PaymentDismissed(context.Background(), "u2", "ord-1")
	require.ErrorIs(t, err, checkout.ErrOrderNotFound)
	err = f.svc.PaymentDismissed(context.Background(), "u1", "ord-unknown")
	require.ErrorIs(t, err, checkout.ErrOrderNotFound)
	require.Empty(t, f.orders.pending)
	require.Len(t, f.events, emitted)
}
