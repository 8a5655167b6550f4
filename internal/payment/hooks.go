package payment

import (
	"context"
	"fmt"

	"securecheckout/internal/models"
)

// TotalHook may set per-line tax or price annotations on the basket before the
// authorized amount is computed. Running it twice on the same basket must give the same result.
type TotalHook interface {
	AdjustTotal(ctx context.Context, basket *models.Basket, shipping *Address) error
}

type TotalHookFunc func(ctx context.Context, basket *models.Basket, shipping *Address) error

func (f TotalHookFunc) AdjustTotal(ctx context.Context, basket *models.Basket, shipping *Address) error {
	return f(ctx, basket, shipping)
}

// FieldHook adds extra signed fields to an outbound request.
type FieldHook interface {
	InjectFields(ctx context.Context, extra map[string]string, basket *models.Basket, client ClientContext) error
}

type FieldHookFunc func(ctx context.Context, extra map[string]string, basket *models.Basket, client ClientContext) error

func (f FieldHookFunc) InjectFields(ctx context.Context, extra map[string]string, basket *models.Basket, client ClientContext) error {
	return f(ctx, extra, basket, client)
}

// OrderPlacedListener observes orders created from an accepted reply.
type OrderPlacedListener interface {
	OrderPlaced(ctx context.Context, order *models.Order) error
}

type OrderPlacedFunc func(ctx context.Context, order *models.Order) error

func (f OrderPlacedFunc) OrderPlaced(ctx context.Context, order *models.Order) error {
	return f(ctx, order)
}

// HookChain holds the hooks registered at startup. It has no mutators, so the
// chain cannot change once built.
type HookChain struct {
	total  []TotalHook
	fields []FieldHook
	placed []OrderPlacedListener
}

type HookOption func(*HookChain)

func WithTotalHook(h TotalHook) HookOption {
	return func(c *HookChain) { c.total = append(c.total, h) }
}

func WithFieldHook(h FieldHook) HookOption {
	return func(c *HookChain) { c.fields = append(c.fields, h) }
}

func WithOrderPlacedListener(l OrderPlacedListener) HookOption {
	return func(c *HookChain) { c.placed = append(c.placed, l) }
}

// NewHookChain builds a chain; hooks run in the order their options are given.
func NewHookChain(opts ...HookOption) *HookChain {
	c := &HookChain{}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AdjustTotal runs the total hooks in order and stops at the first error.
func (c *HookChain) AdjustTotal(ctx context.Context, basket *models.Basket, shipping *Address) error {
	if c == nil {
		return nil
	}
	for i, h := range c.total {
		if err := h.AdjustTotal(ctx, basket, shipping); err != nil {
			return fmt.Errorf("total hook %d: %w", i, err)
		}
	}
	return nil
}

// InjectFields runs the field hooks in order over a fresh map and returns it.
func (c *HookChain) InjectFields(ctx context.Context, basket *models.Basket, client ClientContext) (map[string]string, error) {
	extra := make(map[string]string)
	if c == nil {
		return extra, nil
	}
	for i, h := range c.fields {
		if err := h.InjectFields(ctx, extra, basket, client); err != nil {
			return nil, fmt.Errorf("field hook %d: %w", i, err)
		}
	}
	return extra, nil
}

// NotifyOrderPlaced calls every listener and collects their errors.
// A failing listener does not stop the others.
func (c *HookChain) NotifyOrderPlaced(ctx context.Context, order *models.Order) []error {
	if c == nil {
		return nil
	}
	var errs []error
	for i, l := range c.placed {
		if err := l.OrderPlaced(ctx, order); err != nil {
			errs = append(errs, fmt.Errorf("order placed listener %d: %w", i, err))
		}
	}
	return errs
}
