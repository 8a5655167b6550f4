package payment_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securecheckout/internal/models"
	"securecheckout/internal/payment"
	"securecheckout/internal/session"
)

func TestReplyProcessor_AcceptCreatesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)
	req := f.sign(t, sess, basket)
	fields := f.reply(req, nil)

	outcome, err := f.processor.Process(ctx, sess, fields)
	require.NoError(t, err)

	assert.Equal(t, payment.StateAccepted, outcome.State)
	assert.False(t, outcome.Duplicate)
	order := outcome.Order
	require.NotNil(t, order)
	assert.Equal(t, testReference, order.Number)
	assert.Equal(t, models.OrderStatusAuthorized, order.Status)
	assert.Equal(t, "10.00", order.Total.StringFixed(2))
	assert.Equal(t, "free-shipping", order.ShippingCode)
	assert.Equal(t, basket.ID, order.BasketID)
	assert.Equal(t, 1, f.placed.count())

	assert.Nil(t, sess.Pending)
	assert.Equal(t, order.ID, sess.OrderID)
	assert.Zero(t, sess.BasketID)
	stored, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, order.ID, stored.OrderID)

	txn, err := f.orders.FindTransaction(ctx, fields["transaction_id"])
	require.NoError(t, err)
	assert.Equal(t, models.TxnTypeAuthorise, txn.TxnType)
	assert.Equal(t, "ACCEPT", txn.Status)
	assert.Equal(t, fields["request_token"], txn.RequestToken)
	assert.Equal(t, "10.00", txn.Amount.StringFixed(2))

	var log models.ReplyLog
	require.NoError(t, f.db.First(&log, txn.LogID).Error)
	logged, err := log.Fields()
	require.NoError(t, err)
	assert.Equal(t, fields, logged)

	var token models.PaymentToken
	require.NotNil(t, txn.TokenID)
	require.NoError(t, f.db.First(&token, *txn.TokenID).Error)
	assert.Equal(t, txn.LogID, token.LogID)
	assert.Equal(t, "xxxxxxxxxxxx1111", token.MaskedCardNumber)
	assert.Equal(t, "001", token.CardType)

	var source models.PaymentSource
	require.NoError(t, f.db.Where("order_id = ?", order.ID).First(&source).Error)
	assert.Equal(t, "USD", source.Currency)
	assert.Equal(t, "10.00", source.AmountAllocated.StringFixed(2))
	assert.True(t, source.AmountDebited.IsZero())

	var event models.PaymentEvent
	require.NoError(t, f.db.Preload("Quantities").Where("order_id = ?", order.ID).First(&event).Error)
	assert.Equal(t, "10.00", event.Amount.StringFixed(2))
	assert.Equal(t, fields["transaction_id"], event.Reference)
	total := 0
	for _, q := range event.Quantities {
		total += q.Quantity
	}
	assert.Equal(t, order.NumItems(), total)

	b, err := f.baskets.Get(ctx, basket.ID)
	require.NoError(t, err)
	assert.Equal(t, models.BasketSubmitted, b.Status)
}

func TestReplyProcessor_DuplicateReplyIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)
	fields := f.reply(f.sign(t, sess, basket), nil)

	first, err := f.processor.Process(ctx, sess, fields)
	require.NoError(t, err)

	second, err := f.processor.Process(ctx, sess, fields)
	require.NoError(t, err)
	assert.Equal(t, payment.StateAccepted, second.State)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.Order.ID, second.Order.ID)

	assert.Equal(t, 1, f.placed.count())
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, int64(1), f.count(t, &models.Transaction{}))
}

func TestReplyProcessor_ConcurrentDuplicates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)
	fields := f.reply(f.sign(t, sess, basket), nil)

	var wg sync.WaitGroup
	outcomes := make([]*payment.ReplyOutcome, 4)
	errs := make([]error, 4)
	for i := range outcomes {
		// each delivery carries its own copy of the session state
		pending := *sess.Pending
		copySess := &session.Session{ID: sess.ID, BasketID: sess.BasketID, Pending: &pending}
		wg.Add(1)
		go func(i int, s *session.Session) {
			defer wg.Done()
			outcomes[i], errs[i] = f.processor.Process(ctx, s, fields)
		}(i, copySess)
	}
	wg.Wait()

	fresh := 0
	for i := range outcomes {
		require.NoError(t, errs[i])
		assert.Equal(t, payment.StateAccepted, outcomes[i].State)
		if !outcomes[i].Duplicate {
			fresh++
		}
	}
	assert.Equal(t, 1, fresh)
	assert.Equal(t, 1, f.placed.count())
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, int64(1), f.count(t, &models.Transaction{}))
}

func TestReplyProcessor_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(f *fixture, sess *session.Session, fields map[string]string) map[string]string
		want   error
	}{
		{
			name: "amount forged after signing",
			mutate: func(_ *fixture, _ *session.Session, fields map[string]string) map[string]string {
				fields["req_amount"] = "2.00"
				fields["auth_amount"] = "2.00"
				return fields
			},
			want: payment.ErrSignatureInvalid,
		},
		{
			name: "signature tampered",
			mutate: func(_ *fixture, _ *session.Session, fields map[string]string) map[string]string {
				fields[payment.FieldSignature] = "abcd" + fields[payment.FieldSignature][4:]
				return fields
			},
			want: payment.ErrSignatureInvalid,
		},
		{
			name: "wrong transaction type",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				fields["req_transaction_type"] = "payment"
				return signAll(f.signer, fields)
			},
			want: payment.ErrUnexpectedTransactionType,
		},
		{
			name: "reference mismatch",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				fields["req_reference_number"] = "99999999"
				return signAll(f.signer, fields)
			},
			want: payment.ErrReferenceMismatch,
		},
		{
			name: "no pending authorization",
			mutate: func(_ *fixture, sess *session.Session, fields map[string]string) map[string]string {
				sess.Pending = nil
				return fields
			},
			want: payment.ErrNoPendingAuthorization,
		},
		{
			name: "signed amount differs from pending",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				fields["auth_amount"] = "2.00"
				return signAll(f.signer, fields)
			},
			want: payment.ErrAmountMismatch,
		},
		{
			name: "currency differs from pending",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				fields["req_currency"] = "EUR"
				return signAll(f.signer, fields)
			},
			want: payment.ErrAmountMismatch,
		},
		{
			name: "decision posted outside signed fields",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				return withUnsigned(f.signer, fields, "decision")
			},
			want: payment.ErrSignatureInvalid,
		},
		{
			name: "amount posted outside signed fields",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				return withUnsigned(f.signer, fields, "auth_amount", "req_amount")
			},
			want: payment.ErrSignatureInvalid,
		},
		{
			name: "transaction id posted outside signed fields",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				return withUnsigned(f.signer, fields, "transaction_id")
			},
			want: payment.ErrMissingTransactionID,
		},
		{
			name: "missing transaction id",
			mutate: func(f *fixture, _ *session.Session, fields map[string]string) map[string]string {
				delete(fields, "transaction_id")
				return signAll(f.signer, fields)
			},
			want: payment.ErrMissingTransactionID,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			basket := f.basket(t, "USD", "10.00", 1)
			sess := newSession("s1", basket)
			fields := tc.mutate(f, sess, f.reply(f.sign(t, sess, basket), nil))

			outcome, err := f.processor.Process(context.Background(), sess, fields)
			assert.ErrorIs(t, err, tc.want)
			assert.ErrorIs(t, err, payment.ErrReplyRejected)
			assert.Equal(t, payment.StateRejected, outcome.State)

			assert.Zero(t, f.count(t, &models.Order{}))
			assert.Zero(t, f.count(t, &models.Transaction{}))
			assert.Zero(t, f.count(t, &models.ReplyLog{}))
			assert.Zero(t, f.placed.count())
		})
	}
}

func TestReplyProcessor_DeclineHasNoSideEffects(t *testing.T) {
	for decision, state := range map[string]payment.ReplyState{
		"DECLINE": payment.StateDeclined,
		"CANCEL":  payment.StateDeclined,
		"ERROR":   payment.StateError,
	} {
		t.Run(decision, func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			basket := f.basket(t, "USD", "10.00", 1)
			sess := newSession("s1", basket)
			fields := f.reply(f.sign(t, sess, basket), map[string]string{"decision": decision, "reason_code": "481"})

			outcome, err := f.processor.Process(ctx, sess, fields)
			require.NoError(t, err)
			assert.Equal(t, state, outcome.State)
			assert.Nil(t, outcome.Order)

			assert.Zero(t, f.count(t, &models.Order{}))
			assert.Zero(t, f.count(t, &models.Transaction{}))
			assert.Zero(t, f.placed.count())
			assert.NotNil(t, sess.Pending)
		})
	}
}

func TestReplyProcessor_ReplayAfterResolutionFromSameSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)
	fields := f.reply(f.sign(t, sess, basket), nil)

	_, err := f.processor.Process(ctx, sess, fields)
	require.NoError(t, err)
	require.Nil(t, sess.Pending)

	// the stored session is what a later request would see
	reloaded, err := f.sessions.Load(ctx, "s1")
	require.NoError(t, err)
	outcome, err := f.processor.Process(ctx, reloaded, fields)
	require.NoError(t, err)
	assert.True(t, outcome.Duplicate)

	// a new transaction id for the resolved reference has nothing to settle
	other := signAll(f.signer, withField(fields, "transaction_id", "999"))
	_, err = f.processor.Process(ctx, reloaded, other)
	assert.ErrorIs(t, err, payment.ErrNoPendingAuthorization)
}

func TestReplyProcessor_ListenerFailureKeepsOrder(t *testing.T) {
	f := newFixture(t, payment.WithOrderPlacedListener(payment.OrderPlacedFunc(func(context.Context, *models.Order) error {
		return errors.New("mail server down")
	})))
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)

	outcome, err := f.processor.Process(context.Background(), sess, f.reply(f.sign(t, sess, basket), nil))
	require.NoError(t, err)
	assert.Equal(t, payment.StateAccepted, outcome.State)
	assert.Equal(t, int64(1), f.count(t, &models.Order{}))
	assert.Equal(t, 1, f.placed.count())
}

func TestReplyProcessor_ZeroAmountAcceptance(t *testing.T) {
	f := newFixture(t)
	basket := f.basket(t, "USD", "0.00", 1)
	sess := newSession("s1", basket)
	req := f.sign(t, sess, basket)
	require.Equal(t, "0.00", req.Fields.Get("amount"))

	outcome, err := f.processor.Process(context.Background(), sess, f.reply(req, nil))
	require.NoError(t, err)
	assert.Equal(t, payment.StateAccepted, outcome.State)
	assert.True(t, outcome.Order.Total.IsZero())
}

func TestGuard_ResolveUnseen(t *testing.T) {
	f := newFixture(t)
	order, err := payment.NewGuard(f.orders).Resolve(context.Background(), "unknown")
	require.NoError(t, err)
	assert.Nil(t, order)
}

func withField(in map[string]string, key, value string) map[string]string {
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	out[key] = value
	return out
}

func TestReplyProcessor_OutboundRequestReplayedAsReply(t *testing.T) {
	f := newFixture(t)
	basket := f.basket(t, "USD", "10.00", 1)
	sess := newSession("s1", basket)
	req := f.sign(t, sess, basket)

	// The payer's browser holds the merchant's own signature for the outbound
	// fields; posting it back with reply fields added must not verify as a reply.
	fields := req.Fields.Values()
	fields["decision"] = payment.DecisionAccept
	fields["transaction_id"] = "forged-1"
	fields["req_transaction_type"] = req.Fields.Get("transaction_type")
	fields["req_reference_number"] = req.Fields.Get("reference_number")
	fields["req_currency"] = "USD"
	fields["req_amount"] = "10.00"
	require.NoError(t, f.signer.Verify(fields))

	outcome, err := f.processor.Process(context.Background(), sess, fields)
	assert.ErrorIs(t, err, payment.ErrSignatureInvalid)
	assert.ErrorIs(t, err, payment.ErrReplyRejected)
	assert.Equal(t, payment.StateRejected, outcome.State)
	assert.Zero(t, f.count(t, &models.Order{}))
	assert.NotNil(t, sess.Pending)
}

// withUnsigned re-signs fields with names left out of signed_field_names while
// still posting their values.
func withUnsigned(s *payment.Signer, fields map[string]string, names ...string) map[string]string {
	kept := make(map[string]string, len(names))
	for _, name := range names {
		kept[name] = fields[name]
		delete(fields, name)
	}
	fields = signAll(s, fields)
	for name, v := range kept {
		fields[name] = v
	}
	return fields
}
