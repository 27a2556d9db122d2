package checkout

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/storefront-checkout/internal/coins"
	"github.com/noah-isme/storefront-checkout/internal/common"
	"github.com/noah-isme/storefront-checkout/internal/pricing"
	"github.com/noah-isme/storefront-checkout/internal/security"
	"github.com/noah-isme/storefront-checkout/internal/settlement"
)

// Handler exposes checkout sessions over HTTP.
type Handler struct {
	Svc *Service
	// CouponLimit guards coupon submission, typically a rate limiter.
	CouponLimit func(http.Handler) http.Handler
	// Idempotency guards order placement.
	Idempotency func(http.Handler) http.Handler
}

// Routes mounts the checkout API. Callers must put the user id on the context.
func (h *Handler) Routes(r chi.Router) {
	passthrough := func(next http.Handler) http.Handler { return next }
	couponLimit, idem := h.CouponLimit, h.Idempotency
	if couponLimit == nil {
		couponLimit = passthrough
	}
	if idem == nil {
		idem = passthrough
	}

	r.Post("/sessions", h.Start)
	r.Route("/sessions/{id}", func(s chi.Router) {
		s.Get("/", h.Get)
		s.Patch("/items/{productId}", h.SetQuantity)
		s.With(couponLimit).Post("/coupon", h.ApplyCoupon)
		s.Delete("/coupon", h.RemoveCoupon)
		s.Put("/coins", h.SetCoins)
		s.Post("/coins/refresh", h.RefreshCoins)
		s.Put("/payment", h.SelectPayment)
		s.Get("/gateways", h.Gateways)
		s.With(idem).Post("/orders", h.PlaceOrder)
	})
	r.Post("/orders/{orderId}/payment-dismissed", h.PaymentDismissed)
}

type lineView struct {
	ProductID       string            `json:"productId"`
	Slug            string            `json:"productSlug"`
	Title           string            `json:"title"`
	Quantity        int               `json:"quantity"`
	UnitPrice       float64           `json:"unitPrice"`
	MRP             float64           `json:"mrp"`
	MRPSource       pricing.MRPSource `json:"mrpSource"`
	TaxRate         float64           `json:"taxRate"`
	Tax             float64           `json:"tax"`
	ProductDiscount float64           `json:"productDiscount"`
	Total           float64           `json:"total"`
}

type totalsView struct {
	MRPTotal              float64            `json:"mrpTotal"`
	ProductDiscount       float64            `json:"productDiscount"`
	Subtotal              float64            `json:"subtotal"`
	TaxTotal              float64            `json:"taxTotal"`
	CouponDiscount        float64            `json:"couponDiscount"`
	CoinDiscount          float64            `json:"coinDiscount"`
	Shipping              float64            `json:"shipping"`
	GrandTotal            float64            `json:"grandTotal"`
	PayableNow            float64            `json:"payableNow"`
	CoinOnly              bool               `json:"coinOnly"`
	CODAllowed            bool               `json:"codAllowed"`
	EligibleClasses       []settlement.Class `json:"eligiblePaymentMethods"`
	RequiresGatewayCharge bool               `json:"requiresGatewayCharge"`
}

type couponView struct {
	Code     string  `json:"code"`
	Kind     string  `json:"kind"`
	Value    float64 `json:"value"`
	Discount float64 `json:"discount"`
}

type quoteView struct {
	SessionID string               `json:"sessionId"`
	Mode      pricing.Mode         `json:"mode"`
	Lines     []lineView           `json:"lines"`
	Totals    totalsView           `json:"totals"`
	Coupon    *couponView          `json:"coupon,omitempty"`
	Coins     coins.Redemption     `json:"coins"`
	Payment   settlement.Selection `json:"payment"`
	Notice    string               `json:"notice,omitempty"`
}

func renderQuote(q Quote) quoteView {
	lines := make([]lineView, 0, len(q.Totals.Lines))
	for _, l := range q.Totals.Lines {
		lines = append(lines, lineView{
			ProductID:       l.Item.ProductID,
			Slug:            l.Item.Slug,
			Title:           l.Item.Title,
			Quantity:        l.Item.Quantity,
			UnitPrice:       pricing.Round2(l.Item.CurrentPrice),
			MRP:             pricing.Round2(l.MRP),
			MRPSource:       l.MRPSource,
			TaxRate:         l.TaxRate,
			Tax:             pricing.Round2(l.Tax),
			ProductDiscount: pricing.Round2(l.ProductDiscount),
			Total:           pricing.Round2(l.Total),
		})
	}
	d := q.Decision
	v := quoteView{
		SessionID: q.State.ID,
		Mode:      q.Totals.Mode,
		Lines:     lines,
		Totals: totalsView{
			MRPTotal:              pricing.Round2(d.MRPTotal),
			ProductDiscount:       pricing.Round2(d.ProductDiscount),
			Subtotal:              pricing.Round2(d.Subtotal),
			TaxTotal:              pricing.Round2(d.TaxTotal),
			CouponDiscount:        pricing.Round2(d.CouponDiscount),
			CoinDiscount:          pricing.Round2(d.CoinDiscount),
			Shipping:              pricing.Round2(d.Shipping),
			GrandTotal:            pricing.Round2(d.GrandTotal),
			PayableNow:            pricing.Round2(d.PayableNow),
			CoinOnly:              d.CoinOnly,
			CODAllowed:            d.CODAllowed(),
			EligibleClasses:       d.EligibleClasses,
			RequiresGatewayCharge: d.RequiresGatewayCharge,
		},
		Coins:   q.State.Coins,
		Payment: q.State.Payment,
	}
	if c := q.State.Coupon; c != nil {
		v.Coupon = &couponView{Code: c.Code, Kind: string(c.Kind), Value: c.Value, Discount: pricing.Round2(d.CouponDiscount)}
	}
	return v
}

func userID(r *http.Request) string {
	id, _ := common.UserID(r.Context())
	return id
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	common.WriteError(w, toAppError(err))
}

func (h *Handler) writeQuote(w http.ResponseWriter, status int, q Quote, err error) {
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, status, map[string]any{"data": renderQuote(q)})
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	return decodeBody(w, r, dst, false)
}

// decodeBody reads a JSON body into dst. With optional set an empty body
// leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, optional bool) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if optional && errors.Is(err, io.EOF) {
			return true
		}
		if security.IsTooLarge(err) {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return false
		}
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return false
	}
	return true
}

// Start handles POST /sessions. The body is optional.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	var in StartInput
	if !decodeBody(w, r, &in, true) {
		return
	}
	q, err := h.Svc.Start(r.Context(), userID(r), in)
	h.writeQuote(w, http.StatusCreated, q, err)
}

// Get handles GET /sessions/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	q, err := h.Svc.Quote(r.Context(), userID(r), chi.URLParam(r, "id"))
	h.writeQuote(w, http.StatusOK, q, err)
}

// SetQuantity handles PATCH /sessions/{id}/items/{productId}.
func (h *Handler) SetQuantity(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Quantity int `json:"quantity"`
	}
	if !decode(w, r, &body) {
		return
	}
	q, err := h.Svc.SetQuantity(r.Context(), userID(r), chi.URLParam(r, "id"), chi.URLParam(r, "productId"), body.Quantity)
	h.writeQuote(w, http.StatusOK, q, err)
}

// ApplyCoupon handles POST /sessions/{id}/coupon.
func (h *Handler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Code string `json:"code"`
	}
	if !decode(w, r, &body) {
		return
	}
	q, err := h.Svc.ApplyCoupon(r.Context(), userID(r), chi.URLParam(r, "id"), body.Code)
	h.writeQuote(w, http.StatusOK, q, err)
}

// RemoveCoupon handles DELETE /sessions/{id}/coupon.
func (h *Handler) RemoveCoupon(w http.ResponseWriter, r *http.Request) {
	q, err := h.Svc.RemoveCoupon(r.Context(), userID(r), chi.URLParam(r, "id"))
	h.writeQuote(w, http.StatusOK, q, err)
}

// SetCoins handles PUT /sessions/{id}/coins.
func (h *Handler) SetCoins(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Coins int `json:"coins"`
	}
	if !decode(w, r, &body) {
		return
	}
	q, err := h.Svc.SetCoins(r.Context(), userID(r), chi.URLParam(r, "id"), body.Coins)
	if err != nil {
		h.writeError(w, err)
		return
	}
	v := renderQuote(q)
	v.Notice = coinsNotice(body.Coins, q.State.Coins)
	common.JSON(w, http.StatusOK, map[string]any{"data": v})
}

// RefreshCoins handles POST /sessions/{id}/coins/refresh.
func (h *Handler) RefreshCoins(w http.ResponseWriter, r *http.Request) {
	q, err := h.Svc.RefreshCoins(r.Context(), userID(r), chi.URLParam(r, "id"))
	h.writeQuote(w, http.StatusOK, q, err)
}

// SelectPayment handles PUT /sessions/{id}/payment.
func (h *Handler) SelectPayment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Method string `json:"method"`
	}
	if !decode(w, r, &body) {
		return
	}
	method := settlement.Method(strings.ToLower(strings.TrimSpace(body.Method)))
	q, err := h.Svc.SelectPayment(r.Context(), userID(r), chi.URLParam(r, "id"), method)
	h.writeQuote(w, http.StatusOK, q, err)
}

// Gateways handles GET /sessions/{id}/gateways.
func (h *Handler) Gateways(w http.ResponseWriter, r *http.Request) {
	gateways, err := h.Svc.Gateways(r.Context(), userID(r), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": gateways})
}

// PlaceOrder handles POST /sessions/{id}/orders.
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var in PlaceOrderInput
	if !decode(w, r, &in) {
		return
	}
	placement, err := h.Svc.PlaceOrder(r.Context(), userID(r), chi.URLParam(r, "id"), in)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": map[string]any{
		"orderId":               placement.OrderID,
		"status":                placement.Status,
		"payment":               placement.Payment,
		"charge":                placement.Charge,
		"total":                 pricing.Round2(placement.Decision.GrandTotal),
		"requiresGatewayCharge": placement.Decision.RequiresGatewayCharge,
	}})
}

// PaymentDismissed handles POST /orders/{orderId}/payment-dismissed.
func (h *Handler) PaymentDismissed(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.PaymentDismissed(r.Context(), userID(r), chi.URLParam(r, "orderId")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
