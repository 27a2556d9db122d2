package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/noah-isme/storefront-checkout/internal/cart"
	"github.com/noah-isme/storefront-checkout/internal/catalog"
	"github.com/noah-isme/storefront-checkout/internal/coins"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/coupon"
	"github.com/noah-isme/storefront-checkout/internal/events"
	"github.com/noah-isme/storefront-checkout/internal/obs"
	"github.com/noah-isme/storefront-checkout/internal/order"
	"github.com/noah-isme/storefront-checkout/internal/payment"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

// CartSource returns the user's cart as kept by the cart-state service.
type CartSource interface {
	Snapshot(ctx context.Context, userID string) (cart.Snapshot, error)
}

// CouponValidator validates coupon codes against the discount service.
type CouponValidator interface {
	Apply(ctx context.Context, code string, amount pricing.Money) (coupon.Instrument, error)
}

// BalanceSource reports a user's redeemable coins.
type BalanceSource interface {
	Balance(ctx context.Context, userID string) (int, error)
}

// CatalogSource returns the CSV catalog used for MRP fallback.
type CatalogSource interface {
	Products(ctx context.Context) (catalog.Index, error)
}

// GatewayLister lists configured payment gateways.
type GatewayLister interface {
	ListActive(ctx context.Context) ([]settlement.Gateway, error)
}

// OrderService creates orders and records abandoned payments.
type OrderService interface {
	Create(ctx context.Context, req order.Request) (order.Created, error)
	MarkPaymentPending(ctx context.Context, orderID, reason string) error
}

// Charger opens gateway charges.
type Charger interface {
	Charge(ctx context.Context, req payment.ChargeRequest) (payment.Charge, error)
}

// Locker serializes mutations of one session.
type Locker interface {
	WithLock(ctx context.Context, id string, fn func(context.Context) error) error
}

// Service orchestrates checkout sessions. Pricing lives in State; the service
// adds persistence, locking and collaborator calls.
type Service struct {
	Store         Store
	Locks         Locker
	Carts         CartSource
	Coupons       CouponValidator
	Wallet        BalanceSource
	Catalog       CatalogSource
	GatewayConfig GatewayLister
	Orders        OrderService
	Payments      Charger
	Events        *events.Bus
	Logger        zerolog.Logger
	Currency      string
	Now           func() time.Time
}

// StartInput selects what to check out. Lines and totals always come from the
// cart-state service; the caller only picks a single product for buy-now.
type StartInput struct {
	BuyNow string `json:"buyNow,omitempty"`
}

// Quote is a priced view of a session.
type Quote struct {
	State    State
	Totals   pricing.Totals
	Decision settlement.Decision
}

// PlaceOrderInput carries the addresses for order placement.
type PlaceOrderInput struct {
	ShippingAddress order.Address  `json:"shippingAddress"`
	BillingAddress  *order.Address `json:"billingAddress,omitempty"`
}

// Placement is the outcome of a successful order placement.
type Placement struct {
	OrderID  string               `json:"orderId"`
	Status   string               `json:"status"`
	Payment  settlement.Selection `json:"payment"`
	Charge   *payment.Charge      `json:"charge,omitempty"`
	Decision settlement.Decision  `json:"-"`
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) log() *zerolog.Logger {
	l := s.Logger.With().Str("component", "checkout").Logger()
	return &l
}

// lookup returns the catalog index, or nil when the catalog is unavailable.
// A missing catalog only degrades MRP display to the current price.
func (s *Service) lookup(ctx context.Context) pricing.MRPLookup {
	if s.Catalog == nil {
		return nil
	}
	idx, err := s.Catalog.Products(ctx)
	if err != nil {
		s.log().Warn().Err(err).Msg("catalog unavailable, falling back to current price for MRP")
		return nil
	}
	return idx
}

func (s *Service) withLock(ctx context.Context, id string, fn func(context.Context) error) error {
	if s.Locks == nil {
		return fn(ctx)
	}
	return s.Locks.WithLock(ctx, id, fn)
}

func (s *Service) load(ctx context.Context, userID, id string) (State, error) {
	st, err := s.Store.Get(ctx, id)
	if err != nil {
		return State{}, err
	}
	if st.UserID != userID {
		return State{}, ErrSessionNotFound
	}
	return st, nil
}

// mutate applies fn to the session under its lock and persists the result.
func (s *Service) mutate(ctx context.Context, userID, id string, fn func(State) (State, error)) (State, error) {
	var out State
	err := s.withLock(ctx, id, func(ctx context.Context) error {
		st, err := s.load(ctx, userID, id)
		if err != nil {
			return err
		}
		next, err := fn(st)
		if err != nil {
			return err
		}
		next.UpdatedAt = s.now()
		if err := s.Store.Save(ctx, next); err != nil {
			return err
		}
		out = next
		return nil
	})
	return out, err
}

func (s *Service) quote(ctx context.Context, st State) (Quote, error) {
	t, d, err := st.Decide(s.lookup(ctx))
	if err != nil {
		return Quote{}, err
	}
	obs.Inc(obs.CheckoutQuotesTotal, string(t.Mode))
	return Quote{State: st, Totals: t, Decision: d}, nil
}

// Start opens a session from the user's cart and coin balance. A whole-cart
// checkout is refused when the cart's subtotal disagrees with its items.
func (s *Service) Start(ctx context.Context, userID string, in StartInput) (Quote, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.Start")
	defer span.End()

	snap, err := s.Carts.Snapshot(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return Quote{}, fmt.Errorf("load cart: %w", err)
	}
	buyNow := strings.TrimSpace(in.BuyNow)
	if buyNow == "" {
		if err := snap.Check(); err != nil {
			s.log().Warn().Err(err).Str("user_id", userID).Msg("cart snapshot out of sync")
			return Quote{}, err
		}
	}
	totals := CartTotals{Subtotal: snap.Subtotal, Tax: snap.Tax, Total: snap.Total}
	st, err := NewState(uuid.NewString(), userID, snap.Lines, totals, buyNow, s.now())
	if err != nil {
		return Quote{}, err
	}
	span.SetAttributes(attribute.String("checkout.session_id", st.ID))
	balance, err := s.Wallet.Balance(ctx, userID)
	if err != nil {
		span.RecordError(err)
		return Quote{}, fmt.Errorf("fetch coin balance: %w", err)
	}
	st, _ = st.ResolveBalance(st.BalanceSeq, balance)
	if err := s.Store.Save(ctx, st); err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, st)
}

// Quote recomputes the session's settlement.
func (s *Service) Quote(ctx context.Context, userID, id string) (Quote, error) {
	st, err := s.load(ctx, userID, id)
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, st)
}

// SetQuantity changes a line quantity.
func (s *Service) SetQuantity(ctx context.Context, userID, id, productID string, qty int) (Quote, error) {
	st, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		return st.WithQuantity(productID, qty)
	})
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, st)
}

// ApplyCoupon validates code with the discount service. If the user changed
// the coupon while validation was in flight, the response is dropped and
// ErrSuperseded is returned.
func (s *Service) ApplyCoupon(ctx context.Context, userID, id, code string) (Quote, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return Quote{}, coupon.ErrCodeRequired
	}
	var (
		ticket   uint64
		subtotal pricing.Money
	)
	if _, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		st, ticket = st.BeginCoupon()
		subtotal = st.Subtotal()
		return st, nil
	}); err != nil {
		return Quote{}, err
	}

	inst, err := s.Coupons.Apply(ctx, code, subtotal)
	if err != nil {
		result := "error"
		if errors.Is(err, coupon.ErrInvalidCode) {
			result = "invalid"
		}
		obs.Inc(obs.CheckoutCouponTotal, result)
		return Quote{}, err
	}

	applied := false
	st, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		st, applied = st.ResolveCoupon(ticket, inst)
		return st, nil
	})
	if err != nil {
		return Quote{}, err
	}
	if !applied {
		obs.Inc(obs.CheckoutCouponTotal, "stale")
		s.log().Info().Str("session_id", id).Str("code", code).Msg("dropped stale coupon response")
		return Quote{}, ErrSuperseded
	}
	obs.Inc(obs.CheckoutCouponTotal, "applied")
	return s.quote(ctx, st)
}

// RemoveCoupon drops the coupon.
func (s *Service) RemoveCoupon(ctx context.Context, userID, id string) (Quote, error) {
	st, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		return st.RemoveCoupon(), nil
	})
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, st)
}

// SetCoins records a coin request. The stored value is clamped.
func (s *Service) SetCoins(ctx context.Context, userID, id string, requested int) (Quote, error) {
	st, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		return st.RequestCoins(requested)
	})
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, st)
}

// RefreshCoins refetches the wallet balance. A refresh overtaken by a newer
// one is dropped.
func (s *Service) RefreshCoins(ctx context.Context, userID, id string) (Quote, error) {
	var ticket uint64
	if _, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		st, ticket = st.BeginBalance()
		return st, nil
	}); err != nil {
		return Quote{}, err
	}
	balance, err := s.Wallet.Balance(ctx, userID)
	if err != nil {
		return Quote{}, fmt.Errorf("fetch coin balance: %w", err)
	}
	applied := false
	st, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		st, applied = st.ResolveBalance(ticket, balance)
		return st, nil
	})
	if err != nil {
		return Quote{}, err
	}
	if !applied {
		return Quote{}, ErrSuperseded
	}
	return s.quote(ctx, st)
}

// SelectPayment records the payment method.
func (s *Service) SelectPayment(ctx context.Context, userID, id string, method settlement.Method) (Quote, error) {
	st, err := s.mutate(ctx, userID, id, func(st State) (State, error) {
		return st.SelectPayment(method)
	})
	if err != nil {
		return Quote{}, err
	}
	return s.quote(ctx, st)
}

// Gateways lists configured gateways the session may use.
func (s *Service) Gateways(ctx context.Context, userID, id string) ([]settlement.Gateway, error) {
	st, err := s.load(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	_, d, err := st.Decide(nil)
	if err != nil {
		return nil, err
	}
	configured, err := s.GatewayConfig.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("list gateways: %w", err)
	}
	out := settlement.AvailableGateways(configured, d)
	if d.CoinOnly {
		out = append(out, settlement.Gateway{ID: string(settlement.MethodCoins), Name: "Coins", IsActive: true})
	}
	return out, nil
}

func validateAddresses(in PlaceOrderInput) (order.Address, *order.Address, error) {
	shipping := in.ShippingAddress.Normalize()
	fields := map[string]string{}
	if err := order.ValidateAddress(shipping); err != nil {
		var verr *order.ValidationError
		if !errors.As(err, &verr) {
			return order.Address{}, nil, err
		}
		for k, v := range verr.Fields {
			fields["shippingAddress."+k] = v
		}
	}
	var billing *order.Address
	if in.BillingAddress != nil {
		b := in.BillingAddress.Normalize()
		billing = &b
		if err := order.ValidateAddress(b); err != nil {
			var verr *order.ValidationError
			if !errors.As(err, &verr) {
				return order.Address{}, nil, err
			}
			for k, v := range verr.Fields {
				fields["billingAddress."+k] = v
			}
		}
	}
	if len(fields) > 0 {
		return order.Address{}, nil, &order.ValidationError{Fields: fields}
	}
	return shipping, billing, nil
}

// PlaceOrder validates the session, creates the order and opens a gateway
// charge when one is needed. If the charge fails after the order exists, the
// order is marked payment-pending and an UPSTREAM error carrying the order id
// is returned.
func (s *Service) PlaceOrder(ctx context.Context, userID, id string, in PlaceOrderInput) (Placement, error) {
	ctx, span := otel.Tracer("checkout.Service").Start(ctx, "CheckoutService.PlaceOrder")
	defer span.End()
	span.SetAttributes(attribute.String("checkout.session_id", id))

	shipping, billing, err := validateAddresses(in)
	if err != nil {
		return Placement{}, err
	}

	var placement Placement
	err = s.withLock(ctx, id, func(ctx context.Context) error {
		st, err := s.load(ctx, userID, id)
		if err != nil {
			return err
		}
		t, d, err := st.Decide(s.lookup(ctx))
		if err != nil {
			return err
		}
		sel := settlement.Reconcile(st.Payment, d)
		if err := settlement.ValidateSelection(sel, d); err != nil {
			return err
		}
		d = d.WithSelection(sel)
		method := string(sel.Method)

		couponCode := ""
		if st.Coupon != nil {
			couponCode = st.Coupon.Code
		}
		req := order.NewRequest(d, order.Params{
			UserID:     userID,
			Lines:      t.Lines,
			Shipping:   shipping,
			Billing:    billing,
			CouponCode: couponCode,
			Selection:  sel,
			Currency:   s.Currency,
		})
		created, err := s.Orders.Create(ctx, req)
		if err != nil {
			obs.Inc(obs.CheckoutOrdersTotal, method, "order_failed")
			span.RecordError(err)
			return fmt.Errorf("create order: %w", err)
		}
		span.SetAttributes(attribute.String("order.id", created.ID))
		if err := s.Store.RememberOrder(ctx, created.ID, userID); err != nil {
			s.log().Warn().Err(err).Str("order_id", created.ID).Msg("remember order owner")
		}
		placement = Placement{OrderID: created.ID, Status: created.Status, Payment: sel, Decision: d}

		if d.RequiresGatewayCharge {
			charge, chargeErr := s.Payments.Charge(ctx, payment.ChargeRequest{
				OrderID:  created.ID,
				Amount:   d.GrandTotal,
				Currency: s.Currency,
				Receipt:  created.ID,
				Notes:    map[string]string{"checkout_session": st.ID},
			})
			if chargeErr != nil {
				span.RecordError(chargeErr)
				obs.Inc(obs.CheckoutOrdersTotal, method, "charge_failed")
				return s.abandonPayment(ctx, created.ID, "charge_failed", chargeErr)
			}
			placement.Charge = &charge
		}

		obs.Inc(obs.CheckoutOrdersTotal, method, "placed")
		s.log().Info().
			Str("session_id", st.ID).
			Str("order_id", created.ID).
			Str("payment_method", method).
			Float64("total", pricing.Round2(d.GrandTotal)).
			Int("coins_used", d.CoinsUsed).
			Msg("order placed")
		s.emit(ctx, events.TopicOrderPlaced, created.ID, map[string]any{
			"orderId":       created.ID,
			"sessionId":     st.ID,
			"userId":        userID,
			"total":         pricing.Round2(d.GrandTotal),
			"paymentMethod": method,
			"coinsUsed":     d.CoinsUsed,
		})
		if err := s.Store.Delete(ctx, st.ID); err != nil {
			s.log().Warn().Err(err).Str("session_id", st.ID).Msg("delete checkout session")
		}
		return nil
	})
	if err != nil {
		return placement, err
	}
	return placement, nil
}

// abandonPayment moves the order to pending payment and builds the error
// returned to the client. Failing to mark the order is logged and joined.
func (s *Service) abandonPayment(ctx context.Context, orderID, reason string, cause error) error {
	markErr := s.Orders.MarkPaymentPending(ctx, orderID, reason)
	if markErr != nil {
		s.log().Error().Err(markErr).Str("order_id", orderID).Msg("mark order payment pending")
	} else {
		obs.Inc(obs.CheckoutPaymentPendingTotal, reason)
		s.emit(ctx, events.TopicPaymentPending, orderID, map[string]string{"orderId": orderID, "reason": reason})
	}
	s.log().Warn().Err(cause).Str("order_id", orderID).Str("reason", reason).Msg("payment not completed")
	return common.NewAppError("PAYMENT_NOT_COMPLETED", "Your order was created but payment could not be started. Please retry payment.", http.StatusBadGateway, errors.Join(cause, markErr)).
		WithDetails(map[string]string{"orderId": orderID})
}

// PaymentDismissed records that the hosted checkout was closed without paying.
// Only the user the order was placed for may do so; anyone else sees
// ErrOrderNotFound.
func (s *Service) PaymentDismissed(ctx context.Context, userID, orderID string) error {
	orderID = strings.TrimSpace(orderID)
	owner, err := s.Store.OrderOwner(ctx, orderID)
	if err != nil {
		return err
	}
	if owner != userID {
		return ErrOrderNotFound
	}
	if err := s.Orders.MarkPaymentPending(ctx, orderID, "payment_dismissed"); err != nil {
		return fmt.Errorf("mark payment pending: %w", err)
	}
	obs.Inc(obs.CheckoutPaymentPendingTotal, "payment_dismissed")
	s.emit(ctx, events.TopicPaymentPending, orderID, map[string]string{"orderId": orderID, "reason": "payment_dismissed"})
	return nil
}

func (s *Service) emit(ctx context.Context, topic, aggregateID string, payload any) {
	if s.Events == nil {
		return
	}
	if _, err := s.Events.Emit(ctx, topic, aggregateID, payload); err != nil {
		s.log().Warn().Err(err).Str("topic", topic).Msg("emit event")
	}
}

// coinsNotice explains why a coin request was reduced, or is empty.
func coinsNotice(requested int, r coins.Redemption) string {
	switch {
	case requested <= r.Requested:
		return ""
	case requested > r.Available:
		return coins.NoticeExceedsBalance
	default:
		return coins.NoticeExceedsOrder
	}
}
