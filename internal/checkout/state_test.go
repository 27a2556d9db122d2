package checkout_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/storefront-checkout/internal/checkout"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

var fixedNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func sampleLines() []pricing.LineItem {
	return []pricing.LineItem{
		{ProductID: "p1", Slug: "argan-hair-oil", Title: "Argan Hair Oil", Quantity: 1, CurrentPrice: 450, Category: "Hair Care", MRP: "₹600.00"},
		{ProductID: "p2", Slug: "face-wash", Title: "Face Wash", Quantity: 1, CurrentPrice: 350, Category: "Skin"},
	}
}

func sampleState(t *testing.T) checkout.State {
	t.Helper()
	st, err := checkout.NewState("s1", "u1", sampleLines(), checkout.CartTotals{Subtotal: 800}, "", fixedNow)
	require.NoError(t, err)
	return st
}

func flat(code string, value float64) coupon.Instrument {
	return coupon.Instrument{Code: code, Kind: coupon.KindFlat, Value: value}
}

func TestNewStateRejectsEmptyCheckout(t *testing.T) {
	_, err := checkout.NewState("s1", "u1", nil, checkout.CartTotals{}, "", fixedNow)
	require.ErrorIs(t, err, pricing.ErrEmptyCart)

	_, err = checkout.NewState("s1", "u1", sampleLines(), checkout.CartTotals{Subtotal: 800}, "missing", fixedNow)
	require.ErrorIs(t, err, pricing.ErrEmptyCart)
}

func TestDecideIsIdempotent(t *testing.T) {
	st := sampleState(t)
	st, _ = st.ResolveBalance(0, 1200)
	st, err := st.RequestCoins(300)
	require.NoError(t, err)

	t1, d1, err := st.Decide(nil)
	require.NoError(t, err)
	t2, d2, err := st.Decide(nil)
	require.NoError(t, err)
	require.Equal(t, t1, t2)
	require.Equal(t, d1, d2)
	require.Equal(t, 30.0, d1.CoinDiscount)
	require.InDelta(t, 770.0, d1.GrandTotal, 1e-9)
}

func TestBuyNowUsesLocalSubtotal(t *testing.T) {
	st, err := checkout.NewState("s1", "u1", sampleLines(), checkout.CartTotals{Subtotal: 800}, "face-wash", fixedNow)
	require.NoError(t, err)
	totals, d, err := st.Decide(nil)
	require.NoError(t, err)
	require.Equal(t, pricing.ModeBuyNow, totals.Mode)
	require.Len(t, totals.Lines, 1)
	require.Equal(t, 350.0, d.Subtotal)
}

func TestQuantityChangeRevertsCOD(t *testing.T) {
	st := sampleState(t)
	st, err := st.SelectPayment(settlement.MethodCOD)
	require.NoError(t, err)
	require.Equal(t, settlement.TypeCOD, st.Payment.Type)

	st, err = st.WithQuantity("p1", 2)
	require.NoError(t, err)
	require.Equal(t, 1250.0, st.Cart.Subtotal)
	require.Equal(t, settlement.Selection{Method: settlement.MethodRazorpay, Type: settlement.TypePrepaid}, st.Payment)

	_, err = st.SelectPayment(settlement.MethodCOD)
	require.ErrorIs(t, err, settlement.ErrCODNotAllowed)

	_, err = st.WithQuantity("p1", 0)
	require.ErrorIs(t, err, checkout.ErrInvalidQuantity)
	_, err = st.WithQuantity("nope", 1)
	require.ErrorIs(t, err, checkout.ErrLineNotFound)
}

func TestStaleCouponResponseIsDropped(t *testing.T) {
	st := sampleState(t)
	st, ticket := st.BeginCoupon()
	st = st.RemoveCoupon()

	next, applied := st.ResolveCoupon(ticket, flat("SAVE100", 100))
	require.False(t, applied)
	require.Nil(t, next.Coupon)
	require.Equal(t, st, next)
}

func TestNewestCouponSubmissionWins(t *testing.T) {
	st := sampleState(t)
	st, first := st.BeginCoupon()
	st, second := st.BeginCoupon()

	st, applied := st.ResolveCoupon(second, flat("NEW", 50))
	require.True(t, applied)
	st, applied = st.ResolveCoupon(first, flat("OLD", 200))
	require.False(t, applied)
	require.Equal(t, "NEW", st.Coupon.Code)
	require.Equal(t, 50.0, st.CouponDiscount())
}

func TestCoinsFollowCouponChanges(t *testing.T) {
	st := sampleState(t)
	st, _ = st.ResolveBalance(0, 10000)
	st, err := st.RequestCoins(10000)
	require.NoError(t, err)
	require.Equal(t, 8000, st.Coins.Requested)
	require.Equal(t, settlement.MethodCoins, st.Payment.Method)

	st, ticket := st.BeginCoupon()
	st, _ = st.ResolveCoupon(ticket, flat("FLAT300", 300))
	require.Equal(t, 5000, st.Coins.Requested)
	_, d, err := st.Decide(nil)
	require.NoError(t, err)
	require.True(t, d.CoinOnly)
	require.Zero(t, d.GrandTotal)

	st = st.RemoveCoupon()
	require.Equal(t, 5000, st.Coins.Requested)
	_, d, err = st.Decide(nil)
	require.NoError(t, err)
	require.False(t, d.CoinOnly)
	require.Equal(t, 300.0, d.GrandTotal)
	require.Equal(t, settlement.Selection{Method: settlement.MethodRazorpay, Type: settlement.TypePrepaid}, st.Payment)
}

func TestBalanceRefreshOrdering(t *testing.T) {
	st := sampleState(t)
	st, older := st.BeginBalance()
	st, newer := st.BeginBalance()

	st, ok := st.ResolveBalance(newer, 400)
	require.True(t, ok)
	st, ok = st.ResolveBalance(older, 9000)
	require.False(t, ok)
	require.Equal(t, 400, st.Coins.Available)
}

func TestSelectPaymentRules(t *testing.T) {
	st := sampleState(t)
	_, err := st.SelectPayment(settlement.MethodCoins)
	require.ErrorIs(t, err, checkout.ErrCoinsDoNotCover)
	_, err = st.SelectPayment("paypal")
	require.ErrorIs(t, err, checkout.ErrUnknownMethod)

	st, err = st.SelectPayment(settlement.MethodRazorpay)
	require.NoError(t, err)
	_, d, err := st.Decide(nil)
	require.NoError(t, err)
	require.True(t, d.RequiresGatewayCharge)

	_, err = st.RequestCoins(-1)
	require.ErrorIs(t, err, checkout.ErrInvalidCoinCount)
}
