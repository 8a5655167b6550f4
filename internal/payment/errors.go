package payment

import "errors"

// Umbrella errors. Every rejection wraps one of them so transports can map the
// whole family to one status code with errors.Is.
var (
	ErrClientTamper  = errors.New("client tamper detected")
	ErrReplyRejected = errors.New("reply rejected")
)

var (
	ErrEmptyBasket   = wrap(ErrClientTamper, "basket is empty")
	ErrTotalMismatch = wrap(ErrClientTamper, "claimed total does not match basket total")

	ErrSignatureInvalid           = wrap(ErrReplyRejected, "signature invalid")
	ErrUnexpectedTransactionType  = wrap(ErrReplyRejected, "unexpected transaction type")
	ErrNoPendingAuthorization     = wrap(ErrReplyRejected, "no pending authorization for session")
	ErrReferenceMismatch          = wrap(ErrReplyRejected, "reference number does not match pending authorization")
	ErrAmountMismatch             = wrap(ErrReplyRejected, "authorized amount does not match pending authorization")
	ErrMissingTransactionID       = wrap(ErrReplyRejected, "reply has no transaction id")
	ErrBasketNotAwaitingAuthorize = wrap(ErrReplyRejected, "basket is not awaiting authorization")
)

// ErrFieldCollision is returned when a field hook tries to set a field the
// request builder owns. It is a programming error in the hook.
var ErrFieldCollision = errors.New("field hook collides with builder-owned field")

type wrappedError struct {
	parent error
	msg    string
}

func wrap(parent error, msg string) error {
	return &wrappedError{parent: parent, msg: msg}
}

func (e *wrappedError) Error() string { return e.msg }

func (e *wrappedError) Unwrap() error { return e.parent }
