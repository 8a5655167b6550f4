package payment

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"securecheckout/internal/models"
	"securecheckout/internal/repository"
	"securecheckout/internal/session"
)

const (
	DecisionAccept = "ACCEPT"
	DecisionError  = "ERROR"
)

type ReplyState string

// signedReplyFields must be covered by the reply signature. A posted value for
// any of them outside signed_field_names is rejected, not ignored.
var signedReplyFields = []string{"decision", "req_transaction_type", "req_reference_number", "req_currency"}

const (
	StateReceived ReplyState = "Received"
	StateRejected ReplyState = "Rejected"
	StateVerified ReplyState = "Verified"
	StateAccepted ReplyState = "Accepted"
	StateDeclined ReplyState = "Declined"
	StateError    ReplyState = "Error"
)

// ReplyOutcome is the terminal state of one processed reply.
// Duplicate is set when the transaction id had already produced Order.
type ReplyOutcome struct {
	State     ReplyState
	Decision  string
	Reference string
	Order     *models.Order
	Duplicate bool
}

// ReplyProcessor verifies gateway replies and turns first-seen acceptances into orders.
type ReplyProcessor struct {
	signer          *Signer
	transactionType string
	baskets         BasketStore
	orders          OrderStore
	guard           *Guard
	sessions        SessionSaver
	hooks           *HookChain
	logger          *zap.Logger
}

func NewReplyProcessor(
	signer *Signer,
	transactionType string,
	baskets BasketStore,
	orders OrderStore,
	sessions SessionSaver,
	hooks *HookChain,
	logger *zap.Logger,
) *ReplyProcessor {
	if transactionType == "" {
		transactionType = DefaultTransactionType
	}
	return &ReplyProcessor{
		signer:          signer,
		transactionType: transactionType,
		baskets:         baskets,
		orders:          orders,
		guard:           NewGuard(orders),
		sessions:        sessions,
		hooks:           hooks,
		logger:          logger,
	}
}

// Process runs one reply through the state machine. Errors wrapping
// ErrReplyRejected leave no side effects; the outcome then has State Rejected.
// Declines are outcomes, not errors.
func (p *ReplyProcessor) Process(ctx context.Context, sess *session.Session, fields map[string]string) (*ReplyOutcome, error) {
	reference := fields["req_reference_number"]
	outcome := &ReplyOutcome{State: StateReceived, Decision: fields["decision"], Reference: reference}

	pending, signed, err := p.verify(sess, fields)
	if err != nil {
		outcome.State = StateRejected
		p.logger.Warn("Gateway reply rejected",
			zap.String("reference", reference),
			zap.String("transaction_id", fields["transaction_id"]),
			zap.Error(err),
		)
		return outcome, err
	}
	outcome.State = StateVerified
	outcome.Decision = signed["decision"]
	outcome.Reference = signed["req_reference_number"]

	if outcome.Decision != DecisionAccept {
		outcome.State = StateDeclined
		if outcome.Decision == DecisionError {
			outcome.State = StateError
		}
		p.logger.Info("Gateway reply declined",
			zap.String("reference", reference),
			zap.String("decision", outcome.Decision),
			zap.String("reason_code", signed["reason_code"]),
			zap.String("message", signed["message"]),
		)
		return outcome, nil
	}

	transactionID := signed["transaction_id"]
	if transactionID == "" {
		outcome.State = StateRejected
		return outcome, ErrMissingTransactionID
	}

	existing, err := p.guard.Resolve(ctx, transactionID)
	if err != nil {
		return outcome, fmt.Errorf("idempotency lookup: %w", err)
	}
	if existing != nil {
		return p.duplicate(ctx, sess, outcome, existing), nil
	}
	if pending == nil {
		outcome.State = StateRejected
		return outcome, ErrNoPendingAuthorization
	}

	order, err := p.place(ctx, pending, signed, fields)
	if err != nil {
		// A concurrent delivery of the same reply may have committed first.
		if errors.Is(err, repository.ErrDuplicateTransaction) || errors.Is(err, ErrBasketNotAwaitingAuthorize) {
			existing, gerr := p.guard.Resolve(ctx, transactionID)
			if gerr != nil {
				return outcome, fmt.Errorf("idempotency lookup: %w", gerr)
			}
			if existing != nil {
				return p.duplicate(ctx, sess, outcome, existing), nil
			}
		}
		if errors.Is(err, ErrReplyRejected) {
			outcome.State = StateRejected
		}
		return outcome, err
	}

	outcome.State = StateAccepted
	outcome.Order = order

	sess.Resolve(order.ID)
	if err := p.sessions.Save(ctx, sess); err != nil {
		p.logger.Error("Failed to save session after order placement",
			zap.String("order", order.Number), zap.Error(err))
	}

	for _, lerr := range p.hooks.NotifyOrderPlaced(ctx, order) {
		p.logger.Error("Order placed listener failed", zap.String("order", order.Number), zap.Error(lerr))
	}

	p.logger.Info("Order placed",
		zap.String("order", order.Number),
		zap.String("transaction_id", transactionID),
		zap.String("amount", FormatAmount(order.Total, order.Currency)),
	)
	return outcome, nil
}

// verify performs the Received -> Verified checks. It returns the pending
// authorization to settle, which is nil only when the session already resolved
// this reference and the reply can only be a replay, and the signed subset of
// fields every later step reads from.
func (p *ReplyProcessor) verify(sess *session.Session, fields map[string]string) (*session.PendingAuthorization, map[string]string, error) {
	if err := p.signer.Verify(fields); err != nil {
		return nil, nil, err
	}
	signed := SignedSubset(fields)
	for _, name := range signedReplyFields {
		if _, ok := signed[name]; !ok {
			return nil, nil, fmt.Errorf("%w: %s is not signed", ErrSignatureInvalid, name)
		}
	}
	if signed["auth_amount"] == "" && signed["req_amount"] == "" {
		return nil, nil, fmt.Errorf("%w: amount is not signed", ErrSignatureInvalid)
	}

	if got := signed["req_transaction_type"]; got != p.transactionType {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnexpectedTransactionType, got)
	}

	reference := signed["req_reference_number"]
	pending := sess.Pending
	if pending == nil {
		if sess.ResolvedReference != "" && sess.ResolvedReference == reference {
			return nil, signed, nil
		}
		return nil, nil, ErrNoPendingAuthorization
	}
	if pending.Reference != reference {
		return nil, nil, fmt.Errorf("%w: got %q, pending %q", ErrReferenceMismatch, reference, pending.Reference)
	}

	if signed["req_currency"] != pending.Currency {
		return nil, nil, fmt.Errorf("%w: currency %q", ErrAmountMismatch, signed["req_currency"])
	}
	raw := signed["auth_amount"]
	if raw == "" {
		raw = signed["req_amount"]
	}
	amount, err := ParseAmount(raw, pending.Currency)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %q", ErrAmountMismatch, raw)
	}
	if !amount.Equal(RoundAmount(pending.Amount, pending.Currency)) {
		return nil, nil, fmt.Errorf("%w: got %s, pending %s", ErrAmountMismatch,
			FormatAmount(amount, pending.Currency), FormatAmount(pending.Amount, pending.Currency))
	}
	return pending, signed, nil
}

// place persists the order from the signed fields; reply is kept verbatim in the log.
func (p *ReplyProcessor) place(ctx context.Context, pending *session.PendingAuthorization, signed, reply map[string]string) (*models.Order, error) {
	basket, err := p.baskets.Get(ctx, pending.BasketID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("%w: basket %d", ErrBasketNotAwaitingAuthorize, pending.BasketID)
	}
	if err != nil {
		return nil, err
	}
	if basket.Status != models.BasketFrozen {
		return nil, fmt.Errorf("%w: basket %d is %s", ErrBasketNotAwaitingAuthorize, basket.ID, basket.Status)
	}

	return p.orders.PlaceAuthorized(ctx, &repository.Placement{
		Basket:        basket,
		Number:        pending.Reference,
		ShippingCode:  pending.ShippingCode,
		Email:         signed["req_bill_to_email"],
		Currency:      pending.Currency,
		Amount:        RoundAmount(pending.Amount, pending.Currency),
		TransactionID: signed["transaction_id"],
		Decision:      signed["decision"],
		RequestToken:  signed["request_token"],
		Reply:         reply,
		Card: repository.CardDetails{
			Token:            signed["payment_token"],
			MaskedCardNumber: signed["req_card_number"],
			CardType:         signed["req_card_type"],
			Expiry:           signed["req_card_expiry_date"],
		},
	})
}

func (p *ReplyProcessor) duplicate(ctx context.Context, sess *session.Session, outcome *ReplyOutcome, order *models.Order) *ReplyOutcome {
	outcome.State = StateAccepted
	outcome.Order = order
	outcome.Duplicate = true

	if sess.Pending != nil && sess.Pending.Reference == order.Number {
		sess.Resolve(order.ID)
		if err := p.sessions.Save(ctx, sess); err != nil {
			p.logger.Error("Failed to save session", zap.Error(err))
		}
	}
	p.logger.Info("Duplicate gateway reply ignored",
		zap.String("order", order.Number),
		zap.String("reference", outcome.Reference),
	)
	return outcome
}
