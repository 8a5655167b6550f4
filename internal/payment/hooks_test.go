package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"securecheckout/internal/models"
)

func TestHookChain_RunsInRegistrationOrder(t *testing.T) {
	var calls []string
	record := func(name string) TotalHookFunc {
		return func(context.Context, *models.Basket, *Address) error {
			calls = append(calls, name)
			return nil
		}
	}
	chain := NewHookChain(WithTotalHook(record("first")), WithTotalHook(record("second")))

	require.NoError(t, chain.AdjustTotal(context.Background(), &models.Basket{}, nil))
	assert.Equal(t, []string{"first", "second"}, calls)
}

func TestHookChain_TotalHookErrorStopsChain(t *testing.T) {
	boom := errors.New("boom")
	called := false
	chain := NewHookChain(
		WithTotalHook(TotalHookFunc(func(context.Context, *models.Basket, *Address) error { return boom })),
		WithTotalHook(TotalHookFunc(func(context.Context, *models.Basket, *Address) error {
			called = true
			return nil
		})),
	)

	err := chain.AdjustTotal(context.Background(), &models.Basket{}, nil)
	assert.ErrorIs(t, err, boom)
	assert.False(t, called)
}

func TestHookChain_InjectFieldsSharesMap(t *testing.T) {
	chain := NewHookChain(
		WithFieldHook(FieldHookFunc(func(_ context.Context, extra map[string]string, _ *models.Basket, c ClientContext) error {
			extra["merchant_defined_data1"] = c.IPAddress
			return nil
		})),
		WithFieldHook(FieldHookFunc(func(_ context.Context, extra map[string]string, _ *models.Basket, _ ClientContext) error {
			extra["merchant_defined_data2"] = extra["merchant_defined_data1"] + "!"
			return nil
		})),
	)

	extra, err := chain.InjectFields(context.Background(), &models.Basket{}, ClientContext{IPAddress: "127.0.0.1"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"merchant_defined_data1": "127.0.0.1",
		"merchant_defined_data2": "127.0.0.1!",
	}, extra)
}

func TestHookChain_NotifyCollectsErrors(t *testing.T) {
	calls := 0
	chain := NewHookChain(
		WithOrderPlacedListener(OrderPlacedFunc(func(context.Context, *models.Order) error {
			calls++
			return errors.New("smtp down")
		})),
		WithOrderPlacedListener(OrderPlacedFunc(func(context.Context, *models.Order) error {
			calls++
			return nil
		})),
	)

	errs := chain.NotifyOrderPlaced(context.Background(), &models.Order{Number: "1"})
	assert.Len(t, errs, 1)
	assert.Equal(t, 2, calls)
}

func TestHookChain_NilIsEmpty(t *testing.T) {
	var chain *HookChain
	assert.NoError(t, chain.AdjustTotal(context.Background(), &models.Basket{}, nil))
	extra, err := chain.InjectFields(context.Background(), &models.Basket{}, ClientContext{})
	require.NoError(t, err)
	assert.Empty(t, extra)
	assert.Nil(t, chain.NotifyOrderPlaced(context.Background(), &models.Order{}))
}
