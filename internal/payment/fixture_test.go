package payment_test

import (
	"context"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"securecheckout/internal/models"
	"securecheckout/internal/payment"
	"securecheckout/internal/repository"
	"securecheckout/internal/session"
	"securecheckout/internal/testutil"
)

const (
	testSecret    = "sandbox-secret"
	testReference = "10000042"
	testGateway   = "https://testsecureacceptance.cybersource.com/silent/pay"
)

var testNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recorder struct {
	mu     sync.Mutex
	orders []*models.Order
}

func (r *recorder) OrderPlaced(_ context.Context, o *models.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.orders = append(r.orders, o)
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.orders)
}

type fixture struct {
	db        *gorm.DB
	products  *repository.ProductRepository
	baskets   *repository.BasketRepository
	orders    *repository.OrderRepository
	sessions  *session.MemoryStore
	signer    *payment.Signer
	builder   *payment.RequestBuilder
	processor *payment.ReplyProcessor
	placed    *recorder
}

func newFixture(t *testing.T, opts ...payment.HookOption) *fixture {
	t.Helper()
	db := testutil.NewDB(t)
	f := &fixture{
		db:       db,
		products: repository.NewProductRepository(db),
		baskets:  repository.NewBasketRepository(db),
		orders:   repository.NewOrderRepository(db),
		sessions: session.NewMemoryStore(time.Hour),
		signer:   payment.NewSigner(testSecret),
		placed:   &recorder{},
	}
	opts = append(opts, payment.WithOrderPlacedListener(f.placed))
	hooks := payment.NewHookChain(opts...)
	logger := zap.NewNop()

	builder, err := payment.NewRequestBuilder(payment.GatewayConfig{
		URL:       testGateway,
		ProfileID: "profile",
		AccessKey: "access",
	}, f.signer, hooks, f.baskets, f.sessions, logger,
		payment.WithClock(func() time.Time { return testNow }),
		payment.WithReferenceGenerator(func() string { return testReference }),
		payment.WithUUIDGenerator(func() string { return "uuid-1" }),
	)
	require.NoError(t, err)
	f.builder = builder
	f.processor = payment.NewReplyProcessor(f.signer, builder.TransactionType(), f.baskets, f.orders, f.sessions, hooks, logger)
	return f
}

func (f *fixture) basket(t *testing.T, currency, price string, qty int) *models.Basket {
	t.Helper()
	ctx := context.Background()
	product := &models.Product{SKU: "SKU-" + price, Title: "Widget", Price: decimal.RequireFromString(price), Currency: currency}
	require.NoError(t, f.products.Create(ctx, product))
	basket, err := f.baskets.Create(ctx, currency)
	require.NoError(t, err)
	require.NoError(t, f.baskets.AddProduct(ctx, basket.ID, product, qty))
	basket, err = f.baskets.Get(ctx, basket.ID)
	require.NoError(t, err)
	return basket
}

func (f *fixture) sign(t *testing.T, sess *session.Session, basket *models.Basket) *payment.SignedRequest {
	t.Helper()
	req, err := f.builder.Build(context.Background(), sess, payment.AuthorizationRequest{
		Basket:       basket,
		ShippingCode: "free-shipping",
		Shipping:     &payment.Address{FirstName: "Cyber", LastName: "Source", Line1: "1295 Charleston Rd", City: "Mountain View", State: "CA", PostalCode: "94043", Country: "US"},
		Billing:      payment.BillingInfo{Email: "foo@example.com"},
		Client:       payment.ClientContext{IPAddress: "127.0.0.1"},
	})
	require.NoError(t, err)
	return req
}

// reply echoes the request as req_* fields, applies overrides and signs every field.
func (f *fixture) reply(req *payment.SignedRequest, overrides map[string]string) map[string]string {
	fields := map[string]string{}
	for k, v := range req.Fields.Values() {
		switch k {
		case payment.FieldSignature, payment.FieldSignedFieldNames, payment.FieldUnsignedFieldNames, "card_number", "card_cvn":
			continue
		}
		fields["req_"+k] = v
	}
	fields["req_card_number"] = "xxxxxxxxxxxx1111"
	fields["req_card_type"] = "001"
	fields["req_card_expiry_date"] = "12-2030"
	fields["decision"] = payment.DecisionAccept
	fields["reason_code"] = "100"
	fields["message"] = "Request was processed successfully."
	fields["transaction_id"] = "3633723898075000001"
	fields["request_token"] = "Ahj/7wSR8sYxolZgxwyeIkG7lw3ZNnDmLNjMqcSPOS4lfDoTAFLiV8OhM0HYaGAcBhM0PAs4"
	fields["payment_token"] = "4600379961546299901519"
	fields["auth_amount"] = req.Fields.Get("amount")
	fields["signed_date_time"] = testNow.Add(time.Minute).Format(payment.SignedDateTimeLayout)
	for k, v := range overrides {
		fields[k] = v
	}
	return signAll(f.signer, fields)
}

func signAll(s *payment.Signer, fields map[string]string) map[string]string {
	delete(fields, payment.FieldSignature)
	names := make([]string, 0, len(fields)+1)
	for k := range fields {
		if k != payment.FieldSignedFieldNames {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	names = append(names, payment.FieldSignedFieldNames)
	fields[payment.FieldSignedFieldNames] = strings.Join(names, ",")
	sig, err := s.Sign(fields, names)
	if err != nil {
		panic(err)
	}
	fields[payment.FieldSignature] = sig
	return fields
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.db.Model(model).Count(&n).Error)
	return n
}

func newSession(id string, basket *models.Basket) *session.Session {
	return &session.Session{ID: id, BasketID: basket.ID}
}

func nopLogger() *zap.Logger {
	return zap.NewNop()
}

func sequence(values ...string) payment.ReferenceGenerator {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		v := values[i%len(values)]
		i++
		return v
	}
}
