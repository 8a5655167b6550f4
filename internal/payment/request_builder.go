package payment

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"securecheckout/internal/models"
	"securecheckout/internal/session"
)

const (
	DefaultTransactionType = "authorization,create_payment_token"
	DefaultLocale          = "en"
)

// GatewayConfig describes the merchant's hosted-gateway profile.
type GatewayConfig struct {
	URL             string
	ProfileID       string
	AccessKey       string
	Locale          string
	TransactionType string
}

// AuthorizationRequest is the input for one outbound authorization.
// ClaimedTotal, when set, is the total the payer's page showed and must match exactly.
type AuthorizationRequest struct {
	Basket       *models.Basket
	Shipping     *Address
	ShippingCode string
	Billing      BillingInfo
	Client       ClientContext
	ClaimedTotal *decimal.Decimal
}

// SignedRequest is what the payer's browser posts to the gateway.
type SignedRequest struct {
	URL     string
	Fields  *FieldSet
	Pending *session.PendingAuthorization
}

// RequestBuilder assembles and signs outbound authorization requests.
type RequestBuilder struct {
	cfg        GatewayConfig
	signer     *Signer
	hooks      *HookChain
	baskets    BasketStore
	sessions   SessionSaver
	references ReferenceGenerator
	now        func() time.Time
	newUUID    func() string
	logger     *zap.Logger
}

type BuilderOption func(*RequestBuilder)

// WithClock overrides the source of signed_date_time.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *RequestBuilder) { b.now = now }
}

func WithReferenceGenerator(gen ReferenceGenerator) BuilderOption {
	return func(b *RequestBuilder) { b.references = gen }
}

func WithUUIDGenerator(gen func() string) BuilderOption {
	return func(b *RequestBuilder) { b.newUUID = gen }
}

func NewRequestBuilder(
	cfg GatewayConfig,
	signer *Signer,
	hooks *HookChain,
	baskets BasketStore,
	sessions SessionSaver,
	logger *zap.Logger,
	opts ...BuilderOption,
) (*RequestBuilder, error) {
	if cfg.Locale == "" {
		cfg.Locale = DefaultLocale
	}
	if cfg.TransactionType == "" {
		cfg.TransactionType = DefaultTransactionType
	}
	b := &RequestBuilder{
		cfg:      cfg,
		signer:   signer,
		hooks:    hooks,
		baskets:  baskets,
		sessions: sessions,
		now:      time.Now,
		newUUID:  uuid.NewString,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.references == nil {
		gen, err := NewReferenceGenerator(10)
		if err != nil {
			return nil, err
		}
		b.references = gen
	}
	return b, nil
}

// TransactionType returns the configured transaction type, which replies must echo.
func (b *RequestBuilder) TransactionType() string {
	return b.cfg.TransactionType
}

// Build checks the basket for tampering, runs the hooks, freezes the basket,
// records the pending authorization on sess and returns the signed field set.
func (b *RequestBuilder) Build(ctx context.Context, sess *session.Session, req AuthorizationRequest) (*SignedRequest, error) {
	basket := req.Basket
	if basket == nil || basket.IsEmpty() {
		return nil, ErrEmptyBasket
	}
	currency := basket.Currency

	// Tax annotations are recomputed from scratch on every build.
	for i := range basket.Lines {
		basket.Lines[i].UnitTax = decimal.Zero
	}
	if err := b.hooks.AdjustTotal(ctx, basket, req.Shipping); err != nil {
		return nil, err
	}
	amount := RoundAmount(basket.Total(), currency)

	if req.ClaimedTotal != nil && !RoundAmount(*req.ClaimedTotal, currency).Equal(amount) {
		b.logger.Warn("Claimed total does not match basket",
			zap.Uint("basket_id", basket.ID),
			zap.String("claimed", req.ClaimedTotal.String()),
			zap.String("computed", FormatAmount(amount, currency)),
		)
		return nil, ErrTotalMismatch
	}

	reference := b.reference(sess, basket.ID)

	fs := NewFieldSet()
	fs.SetSigned("access_key", b.cfg.AccessKey)
	fs.SetSigned("profile_id", b.cfg.ProfileID)
	fs.SetSigned("transaction_uuid", b.newUUID())
	fs.SetSigned(FieldSignedDateTime, b.now().UTC().Format(SignedDateTimeLayout))
	fs.SetSigned("locale", b.cfg.Locale)
	fs.SetSigned("transaction_type", b.cfg.TransactionType)
	fs.SetSigned("reference_number", reference)
	fs.SetSigned("amount", FormatAmount(amount, currency))
	fs.SetSigned("currency", currency)
	fs.SetSigned("payment_method", "card")
	fs.SetSigned("customer_ip_address", req.Client.IPAddress)
	fs.SetSigned("bill_to_email", req.Billing.Email)
	if req.Billing.Address != nil {
		setAddress(fs, "bill_to", req.Billing.Address, true)
	}
	if req.Shipping != nil {
		setAddress(fs, "ship_to", req.Shipping, true)
	}
	fs.SetSigned("line_item_count", strconv.Itoa(len(basket.Lines)))
	for i, line := range basket.Lines {
		prefix := "item_" + strconv.Itoa(i) + "_"
		fs.SetSigned(prefix+"name", line.Title)
		fs.SetSigned(prefix+"sku", line.SKU)
		fs.SetSigned(prefix+"quantity", strconv.Itoa(line.Quantity))
		fs.SetSigned(prefix+"unit_price", FormatAmount(line.UnitPriceInclTax(), currency))
	}

	extra, err := b.hooks.InjectFields(ctx, basket, req.Client)
	if err != nil {
		return nil, err
	}
	if err := b.addExtraFields(fs, extra); err != nil {
		return nil, err
	}

	// Card data goes straight from the browser to the gateway and is never signed.
	if req.Billing.Address == nil {
		setAddress(fs, "bill_to", &Address{}, false)
	}
	fs.SetUnsigned("card_type", "", true)
	fs.SetUnsigned("card_number", "", true)
	fs.SetUnsigned("card_expiry_date", "", true)
	fs.SetUnsigned("card_cvn", "", true)
	fs.SetUnsigned("device_fingerprint_id", req.Client.DeviceFingerprint, false)

	if err := b.baskets.Freeze(ctx, basket); err != nil {
		return nil, fmt.Errorf("freeze basket %d: %w", basket.ID, err)
	}

	pending := &session.PendingAuthorization{
		BasketID:     basket.ID,
		Reference:    reference,
		ShippingCode: req.ShippingCode,
		Amount:       amount,
		Currency:     currency,
	}
	sess.Pending = pending
	if err := b.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save pending authorization: %w", err)
	}

	if err := b.signer.SignFieldSet(fs); err != nil {
		return nil, err
	}

	b.logger.Info("Authorization request signed",
		zap.String("reference", reference),
		zap.Uint("basket_id", basket.ID),
		zap.String("amount", fs.Get("amount")),
		zap.String("currency", currency),
	)

	return &SignedRequest{URL: b.cfg.URL, Fields: fs, Pending: pending}, nil
}

// reference reuses a reference already recorded for this basket so a retried
// authorization keeps its order number.
func (b *RequestBuilder) reference(sess *session.Session, basketID uint) string {
	if p := sess.Pending; p != nil && p.Reference != "" && (p.BasketID == 0 || p.BasketID == basketID) {
		return p.Reference
	}
	return b.references()
}

func (b *RequestBuilder) addExtraFields(fs *FieldSet, extra map[string]string) error {
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if isOwnedField(fs, k) {
			return fmt.Errorf("%w: %q", ErrFieldCollision, k)
		}
	}
	for _, k := range keys {
		fs.SetSigned(k, extra[k])
	}
	return nil
}

func isOwnedField(fs *FieldSet, key string) bool {
	switch key {
	case FieldSignature, FieldSignedFieldNames, FieldUnsignedFieldNames, FieldSignedDateTime:
		return true
	}
	for _, prefix := range []string{"item_", "bill_to_", "ship_to_", "card_"} {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return fs.Has(key) || key == "device_fingerprint_id"
}

func setAddress(fs *FieldSet, prefix string, a *Address, signed bool) {
	values := [][2]string{
		{"forename", a.FirstName},
		{"surname", a.LastName},
		{"address_line1", a.Line1},
		{"address_line2", a.Line2},
		{"address_city", a.City},
		{"address_state", a.State},
		{"address_postal_code", a.PostalCode},
		{"address_country", a.Country},
		{"phone", a.Phone},
	}
	for _, kv := range values {
		key := prefix + "_" + kv[0]
		if signed {
			fs.SetSigned(key, kv[1])
		} else {
			fs.SetUnsigned(key, kv[1], true)
		}
	}
}
