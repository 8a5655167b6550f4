package payment_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securecheckout/internal/models"
	"securecheckout/internal/payment"
)

func TestRequestBuilder_SignsBasket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)

	req := f.sign(t, sess, basket)

	assert.Equal(t, testGateway, req.URL)
	fs := req.Fields
	assert.Equal(t, "10.00", fs.Get("amount"))
	assert.Equal(t, "USD", fs.Get("currency"))
	assert.Equal(t, testReference, fs.Get("reference_number"))
	assert.Equal(t, payment.DefaultTransactionType, fs.Get("transaction_type"))
	assert.Equal(t, "en", fs.Get("locale"))
	assert.Equal(t, "card", fs.Get("payment_method"))
	assert.Equal(t, "127.0.0.1", fs.Get("customer_ip_address"))
	assert.Equal(t, "foo@example.com", fs.Get("bill_to_email"))
	assert.Equal(t, "Mountain View", fs.Get("ship_to_address_city"))
	assert.Equal(t, "2024-05-01T10:00:00Z", fs.Get("signed_date_time"))
	assert.Equal(t, "uuid-1", fs.Get("transaction_uuid"))
	assert.Equal(t, "1", fs.Get("line_item_count"))
	assert.Equal(t, "Widget", fs.Get("item_0_name"))
	assert.Equal(t, "1", fs.Get("item_0_quantity"))
	assert.Equal(t, "10.00", fs.Get("item_0_unit_price"))
	assert.Equal(t, "SKU-10.00", fs.Get("item_0_sku"))

	signed := fs.SignedNames()
	assert.Contains(t, signed, "amount")
	assert.Contains(t, signed, payment.FieldSignedFieldNames)
	assert.NotContains(t, signed, "card_number")
	assert.NotContains(t, signed, "device_fingerprint_id")
	assert.NotContains(t, signed, "bill_to_forename")
	assert.NoError(t, f.signer.Verify(fs.Values()))

	var editable []string
	for _, field := range fs.List() {
		if field.Editable {
			editable = append(editable, field.Key)
		}
	}
	assert.Contains(t, editable, "card_number")
	assert.Contains(t, editable, "bill_to_forename")
	assert.NotContains(t, editable, "amount")

	stored, err := f.baskets.Get(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BasketFrozen, stored.Status)

	loaded, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	require.NotNil(t, loaded.Pending)
	assert.Equal(t, testReference, loaded.Pending.Reference)
	assert.Equal(t, basket.ID, loaded.Pending.BasketID)
	assert.Equal(t, "free-shipping", loaded.Pending.ShippingCode)
	assert.Equal(t, "10.00", loaded.Pending.Amount.StringFixed(2))
}

func TestRequestBuilder_HooksAdjustTotalAndInjectFields(t *testing.T) {
	tax := payment.TotalHookFunc(func(_ context.Context, b *models.Basket, _ *payment.Address) error {
		for i := range b.Lines {
			b.Lines[i].UnitTax = decimal.RequireFromString("0.42")
		}
		return nil
	})
	custom := payment.FieldHookFunc(func(_ context.Context, extra map[string]string, _ *models.Basket, _ payment.ClientContext) error {
		extra["my_custom_field"] = "ABC"
		return nil
	})
	f := newFixture(t, payment.WithTotalHook(tax), payment.WithFieldHook(custom))
	basket := f.basket(t, "USD", "10.00", 1)

	req := f.sign(t, newSession("s1", basket), basket)

	assert.Equal(t, "10.42", req.Fields.Get("amount"))
	assert.Equal(t, "10.42", req.Fields.Get("item_0_unit_price"))
	assert.Equal(t, "ABC", req.Fields.Get("my_custom_field"))
	assert.Contains(t, req.Fields.SignedNames(), "my_custom_field")
	assert.NoError(t, f.signer.Verify(req.Fields.Values()))

	stored, err := f.baskets.Get(context.Background(), basket.ID)
	require.NoError(t, err)
	assert.Equal(t, "0.42", stored.Lines[0].UnitTax.StringFixed(2))
}

func TestRequestBuilder_RejectsEmptyBasket(t *testing.T) {
	f := newFixture(t)
	basket, err := f.baskets.Create(context.Background(), "USD")
	require.NoError(t, err)

	_, err = f.builder.Build(context.Background(), newSession("s1", basket), payment.AuthorizationRequest{Basket: basket})
	assert.ErrorIs(t, err, payment.ErrEmptyBasket)
	assert.ErrorIs(t, err, payment.ErrClientTamper)
}

func TestRequestBuilder_RejectsUnderstatedTotalBeforeSigning(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)
	claimed := decimal.RequireFromString("2.00")

	_, err := f.builder.Build(ctx, newSession("s1", basket), payment.AuthorizationRequest{
		Basket:       basket,
		ClaimedTotal: &claimed,
	})
	assert.ErrorIs(t, err, payment.ErrTotalMismatch)
	assert.ErrorIs(t, err, payment.ErrClientTamper)

	stored, err := f.baskets.Get(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BasketOpen, stored.Status)
	loaded, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Nil(t, loaded.Pending)
}

func TestRequestBuilder_AcceptsMatchingClaimedTotal(t *testing.T) {
	f := newFixture(t)
	basket := f.basket(t, "USD", "10.00", 1)
	claimed := decimal.RequireFromString("10")

	req, err := f.builder.Build(context.Background(), newSession("s1", basket), payment.AuthorizationRequest{
		Basket:       basket,
		ClaimedTotal: &claimed,
	})
	require.NoError(t, err)
	assert.Equal(t, "10.00", req.Fields.Get("amount"))
}

func TestRequestBuilder_FieldCollisionIsFatal(t *testing.T) {
	for _, key := range []string{"amount", "reference_number", "item_0_unit_price", "signed_field_names", "item_9_name"} {
		t.Run(key, func(t *testing.T) {
			hook := payment.FieldHookFunc(func(_ context.Context, extra map[string]string, _ *models.Basket, _ payment.ClientContext) error {
				extra[key] = "0.01"
				return nil
			})
			f := newFixture(t, payment.WithFieldHook(hook))
			ctx := context.Background()
			basket := f.basket(t, "USD", "10.00", 1)

			_, err := f.builder.Build(ctx, newSession("s1", basket), payment.AuthorizationRequest{Basket: basket})
			assert.ErrorIs(t, err, payment.ErrFieldCollision)

			stored, err := f.baskets.Get(ctx, basket.ID)
			require.NoError(t, err)
			assert.Equal(t, models.BasketOpen, stored.Status)
		})
	}
}

func TestRequestBuilder_HookFailureProducesNothing(t *testing.T) {
	boom := errors.New("tax service down")
	f := newFixture(t, payment.WithTotalHook(payment.TotalHookFunc(func(context.Context, *models.Basket, *payment.Address) error {
		return boom
	})))
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)

	req, err := f.builder.Build(ctx, newSession("s1", basket), payment.AuthorizationRequest{Basket: basket})
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, req)

	stored, err := f.baskets.Get(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BasketOpen, stored.Status)
}

func TestRequestBuilder_ZeroAmount(t *testing.T) {
	f := newFixture(t)
	basket := f.basket(t, "USD", "0.00", 1)

	req := f.sign(t, newSession("s1", basket), basket)
	assert.Equal(t, "0.00", req.Fields.Get("amount"))
	assert.Equal(t, "0.00", req.Fields.Get("item_0_unit_price"))
}

func TestRequestBuilder_ZeroDecimalCurrency(t *testing.T) {
	f := newFixture(t)
	basket := f.basket(t, "JPY", "1000", 2)

	req := f.sign(t, newSession("s1", basket), basket)
	assert.Equal(t, "2000", req.Fields.Get("amount"))
	assert.Equal(t, "1000", req.Fields.Get("item_0_unit_price"))
}

func TestRequestBuilder_RetryReusesReference(t *testing.T) {
	f := newFixture(t)
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)
	sess.Pending = nil

	builder, err := payment.NewRequestBuilder(payment.GatewayConfig{URL: testGateway}, f.signer, nil, f.baskets, f.sessions, nopLogger(),
		payment.WithReferenceGenerator(sequence("20000001", "20000002")))
	require.NoError(t, err)

	first, err := builder.Build(context.Background(), sess, payment.AuthorizationRequest{Basket: basket})
	require.NoError(t, err)
	second, err := builder.Build(context.Background(), sess, payment.AuthorizationRequest{Basket: basket})
	require.NoError(t, err)

	assert.Equal(t, "20000001", first.Fields.Get("reference_number"))
	assert.Equal(t, "20000001", second.Fields.Get("reference_number"))

	other := f.basket(t, "USD", "3.00", 1)
	third, err := builder.Build(context.Background(), sess, payment.AuthorizationRequest{Basket: other})
	require.NoError(t, err)
	assert.Equal(t, "20000002", third.Fields.Get("reference_number"))
}

func TestReferenceGenerator_Numeric(t *testing.T) {
	gen, err := payment.NewReferenceGenerator(10)
	require.NoError(t, err)
	ref := gen()
	assert.Len(t, ref, 10)
	assert.Regexp(t, `^[0-9]+$`, ref)
}
