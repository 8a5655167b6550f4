package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"securecheckout/internal/config"
	"securecheckout/internal/metrics"
	"securecheckout/internal/middleware"
	"securecheckout/internal/models"
	"securecheckout/internal/payment"
	"securecheckout/internal/pkg/utils"
	"securecheckout/internal/repository"
	"securecheckout/internal/session"
)

// CheckoutHandler serves the basket API and the gateway sign and reply endpoints.
type CheckoutHandler struct {
	repos    *Repos
	sessions session.Store
	builder  *payment.RequestBuilder
	replies  *payment.ReplyProcessor
	cfg      config.CheckoutConfig
	logger   *zap.Logger
}

// Repos bundles repositories for checkout handlers.
type Repos struct {
	Product *repository.ProductRepository
	Basket  *repository.BasketRepository
	Order   *repository.OrderRepository
}

func NewCheckoutHandler(
	repos *Repos,
	sessions session.Store,
	builder *payment.RequestBuilder,
	replies *payment.ReplyProcessor,
	cfg config.CheckoutConfig,
	logger *zap.Logger,
) *CheckoutHandler {
	return &CheckoutHandler{
		repos:    repos,
		sessions: sessions,
		builder:  builder,
		replies:  replies,
		cfg:      cfg,
		logger:   logger,
	}
}

type basketLine struct {
	ProductID uint   `json:"product_id"`
	SKU       string `json:"sku"`
	Title     string `json:"title"`
	Quantity  int    `json:"quantity"`
	UnitPrice string `json:"unit_price"`
	LineTotal string `json:"line_total"`
}

type basketResponse struct {
	ID       uint         `json:"id"`
	Status   string       `json:"status"`
	Currency string       `json:"currency"`
	Total    string       `json:"total"`
	Lines    []basketLine `json:"lines"`
}

func newBasketResponse(b *models.Basket) basketResponse {
	resp := basketResponse{
		ID:       b.ID,
		Status:   string(b.Status),
		Currency: b.Currency,
		Total:    payment.FormatAmount(b.Total(), b.Currency),
		Lines:    []basketLine{},
	}
	for _, l := range b.Lines {
		resp.Lines = append(resp.Lines, basketLine{
			ProductID: l.ProductID,
			SKU:       l.SKU,
			Title:     l.Title,
			Quantity:  l.Quantity,
			UnitPrice: payment.FormatAmount(l.UnitPriceInclTax(), b.Currency),
			LineTotal: payment.FormatAmount(l.LineTotal(), b.Currency),
		})
	}
	return resp
}

type signRequest struct {
	Total             string           `json:"total" form:"total"`
	ShippingMethod    string           `json:"shipping_method" form:"shipping_method"`
	Email             string           `json:"email" form:"email"`
	ShippingAddress   *payment.Address `json:"shipping_address"`
	BillingAddress    *payment.Address `json:"billing_address"`
	DeviceFingerprint string           `json:"device_fingerprint_id" form:"device_fingerprint_id"`
}

type signResponse struct {
	URL    string          `json:"url"`
	Fields []payment.Field `json:"fields"`
}

func errorJSON(c echo.Context, status int, msg string) error {
	return c.JSON(status, map[string]interface{}{
		"status": false,
		"msg":    msg,
	})
}

// ── Catalog ──────────────────────────────────────────────────────────

func (h *CheckoutHandler) ListProducts(c echo.Context) error {
	limit := utils.ParseInt(c.QueryParam("limit"), 0)
	products, err := h.repos.Product.FindAll(c.Request().Context(), limit)
	if err != nil {
		h.logger.Error("List products failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, products)
}

func (h *CheckoutHandler) GetProduct(c echo.Context) error {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid product id")
	}
	product, err := h.repos.Product.FindByID(c.Request().Context(), uint(id))
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "product not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, product)
}

// ── Basket ───────────────────────────────────────────────────────────

func (h *CheckoutHandler) GetBasket(c echo.Context) error {
	sess := middleware.SessionFrom(c)
	basket, err := h.activeBasket(c.Request().Context(), sess)
	if err != nil {
		h.logger.Error("Load basket failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, newBasketResponse(basket))
}

func (h *CheckoutHandler) AddProduct(c echo.Context) error {
	var req struct {
		ProductID uint `json:"product_id" form:"product_id"`
		Quantity  int  `json:"quantity" form:"quantity"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < 0 {
		return errorJSON(c, http.StatusBadRequest, "invalid quantity")
	}

	ctx := c.Request().Context()
	sess := middleware.SessionFrom(c)

	product, err := h.repos.Product.FindByID(ctx, req.ProductID)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "product not found")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}

	// A frozen basket is never edited; further additions go to a forked one.
	basket, err := h.repos.Basket.Editable(ctx, sess.BasketID, h.cfg.Currency)
	if err != nil {
		h.logger.Error("Open basket failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	if basket.ID != sess.BasketID {
		sess.BasketID = basket.ID
		if err := h.sessions.Save(ctx, sess); err != nil {
			h.logger.Error("Save session failed", zap.Error(err))
			return errorJSON(c, http.StatusInternalServerError, "internal error")
		}
	}

	if err := h.repos.Basket.AddProduct(ctx, basket.ID, product, req.Quantity); err != nil {
		h.logger.Warn("Add to basket failed", zap.Uint("basket_id", basket.ID), zap.Error(err))
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	basket, err = h.repos.Basket.Get(ctx, basket.ID)
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, newBasketResponse(basket))
}

// activeBasket returns the session's basket, opening a new one when there is none
// or the previous one already became an order.
func (h *CheckoutHandler) activeBasket(ctx context.Context, sess *session.Session) (*models.Basket, error) {
	if sess.BasketID != 0 {
		basket, err := h.repos.Basket.Get(ctx, sess.BasketID)
		if err == nil && basket.Status != models.BasketSubmitted {
			return basket, nil
		}
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
	}

	basket, err := h.repos.Basket.Create(ctx, h.cfg.Currency)
	if err != nil {
		return nil, err
	}
	sess.BasketID = basket.ID
	if err := h.sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return basket, nil
}

// ── Gateway ──────────────────────────────────────────────────────────

// SignAuthRequest builds the signed field set the payer's browser posts to the gateway.
func (h *CheckoutHandler) SignAuthRequest(c echo.Context) error {
	var req signRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "invalid request")
	}

	var claimed *decimal.Decimal
	if req.Total != "" {
		d, err := decimal.NewFromString(req.Total)
		if err != nil {
			return errorJSON(c, http.StatusBadRequest, "invalid total")
		}
		claimed = &d
	}
	shippingCode := req.ShippingMethod
	if shippingCode == "" {
		shippingCode = h.cfg.ShippingCode
	}

	ctx := c.Request().Context()
	sess := middleware.SessionFrom(c)
	basket, err := h.activeBasket(ctx, sess)
	if err != nil {
		h.logger.Error("Load basket failed", zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}

	signed, err := h.builder.Build(ctx, sess, payment.AuthorizationRequest{
		Basket:       basket,
		Shipping:     req.ShippingAddress,
		ShippingCode: shippingCode,
		Billing:      payment.BillingInfo{Email: req.Email, Address: req.BillingAddress},
		Client: payment.ClientContext{
			IPAddress:         c.RealIP(),
			DeviceFingerprint: req.DeviceFingerprint,
		},
		ClaimedTotal: claimed,
	})
	switch {
	case errors.Is(err, payment.ErrClientTamper):
		metrics.SignResult("tamper")
		h.logger.Warn("Authorization request refused", zap.Uint("basket_id", basket.ID), zap.Error(err))
		return errorJSON(c, http.StatusNotAcceptable, err.Error())
	case err != nil:
		metrics.SignResult("error")
		h.logger.Error("Authorization request failed", zap.Uint("basket_id", basket.ID), zap.Error(err))
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}

	metrics.SignResult("signed")
	return c.JSON(http.StatusOK, signResponse{URL: signed.URL, Fields: signed.Fields.List()})
}

// Reply receives the gateway reply relayed by the payer's browser.
func (h *CheckoutHandler) Reply(c echo.Context) error {
	start := time.Now()
	defer metrics.ObserveReply(start)

	params, err := c.FormParams()
	if err != nil {
		return c.String(http.StatusBadRequest, "invalid form")
	}
	fields := make(map[string]string, len(params))
	for k := range params {
		fields[k] = params.Get(k)
	}

	outcome, err := h.replies.Process(c.Request().Context(), middleware.SessionFrom(c), fields)
	metrics.ReplyResult(string(outcome.State))
	switch {
	case errors.Is(err, payment.ErrReplyRejected):
		return c.String(http.StatusBadRequest, "invalid gateway reply")
	case err != nil:
		h.logger.Error("Gateway reply processing failed", zap.String("reference", outcome.Reference), zap.Error(err))
		return c.String(http.StatusInternalServerError, "internal error")
	}

	if outcome.State == payment.StateAccepted {
		if !outcome.Duplicate {
			metrics.OrderPlaced()
		}
		return c.Redirect(http.StatusFound, h.cfg.ThankYouURL)
	}
	return c.Redirect(http.StatusFound, h.cfg.FailureURL)
}

// ThankYou shows the order most recently placed in this session.
func (h *CheckoutHandler) ThankYou(c echo.Context) error {
	sess := middleware.SessionFrom(c)
	if sess.OrderID == 0 {
		return errorJSON(c, http.StatusNotFound, "no order")
	}
	order, err := h.repos.Order.FindByID(c.Request().Context(), sess.OrderID)
	if errors.Is(err, repository.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "no order")
	}
	if err != nil {
		return errorJSON(c, http.StatusInternalServerError, "internal error")
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"number":   order.Number,
		"status":   order.Status,
		"total":    payment.FormatAmount(order.Total, order.Currency),
		"currency": order.Currency,
		"items":    order.NumItems(),
	})
}
