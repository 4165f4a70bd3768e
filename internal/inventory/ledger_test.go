package inventory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PortNumber53/storefront/backend/internal/events"
	"github.com/PortNumber53/storefront/backend/internal/logger"
	"github.com/PortNumber53/storefront/backend/internal/models"
	"github.com/PortNumber53/storefront/backend/internal/pricing"
	"github.com/PortNumber53/storefront/backend/internal/store"
)

// memStock mimics the clamped UPDATE the store issues.
type memStock struct {
	qty map[models.VariantKey]int
}

func (m *memStock) DecrementVariantStock(ctx context.Context, key models.VariantKey, delta int) (int, error) {
	q, ok := m.qty[key]
	if !ok {
		return 0, fmt.Errorf("store: decrement: %w", store.ErrNotFound)
	}
	q -= delta
	if q < 0 {
		q = 0
	}
	m.qty[key] = q
	return q, nil
}

func (m *memStock) SetVariantQuantity(ctx context.Context, key models.VariantKey, quantity int) error {
	if _, ok := m.qty[key]; !ok {
		return store.ErrNotFound
	}
	m.qty[key] = quantity
	return nil
}

var tee = models.VariantKey{ProductID: 1, Color: "red", Size: "M"}

func drain(sub *events.Subscription) []events.Event {
	var out []events.Event
	for {
		select {
		case ev := <-sub.C:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestDecrementNeverGoesNegative(t *testing.T) {
	stock := &memStock{qty: map[models.VariantKey]int{tee: 3}}
	l := NewLedger(stock, nil, 0, logger.Nop())

	for _, delta := range []int{1, 5, 2, 100} {
		q, err := l.Decrement(context.Background(), 1, "red", "M", delta)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, q, 0)
	}
	assert.Equal(t, 0, stock.qty[tee])
}

func TestOversellClampsAndPublishesLowStock(t *testing.T) {
	stock := &memStock{qty: map[models.VariantKey]int{tee: 1}}
	b := events.NewBroadcaster(logger.Nop())
	sub := b.Subscribe()
	defer sub.Close()
	l := NewLedger(stock, b, 0, logger.Nop())

	q, err := l.Decrement(context.Background(), 1, " red ", "M", 2)
	require.NoError(t, err)
	assert.Equal(t, 0, q)

	got := drain(sub)
	require.Len(t, got, 1)
	assert.Equal(t, events.TypeStockLow, got[0].Type)
	low := got[0].Payload.(LowStock)
	assert.Equal(t, 0, low.Quantity)
	assert.Equal(t, "red", low.Color)
}

func TestNoEventAboveThreshold(t *testing.T) {
	stock := &memStock{qty: map[models.VariantKey]int{tee: 20}}
	b := events.NewBroadcaster(logger.Nop())
	sub := b.Subscribe()
	defer sub.Close()
	l := NewLedger(stock, b, 5, logger.Nop())

	_, err := l.Decrement(context.Background(), 1, "red", "M", 2)
	require.NoError(t, err)
	assert.Empty(t, drain(sub))

	_, err = l.Decrement(context.Background(), 1, "red", "M", 13)
	require.NoError(t, err)
	assert.Len(t, drain(sub), 1)
}

func TestDecrementTxDefersNotification(t *testing.T) {
	stock := &memStock{qty: map[models.VariantKey]int{tee: 2}}
	b := events.NewBroadcaster(logger.Nop())
	sub := b.Subscribe()
	defer sub.Close()
	l := NewLedger(stock, b, 5, logger.Nop())

	adj, err := l.DecrementTx(context.Background(), stock, tee, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, adj.Quantity)
	assert.Empty(t, drain(sub))

	l.NotifyLow(context.Background(), adj)
	assert.Len(t, drain(sub), 1)
}

func TestDecrementErrors(t *testing.T) {
	l := NewLedger(&memStock{qty: map[models.VariantKey]int{tee: 2}}, nil, 0, logger.Nop())

	_, err := l.Decrement(context.Background(), 1, "red", "M", 0)
	assert.ErrorIs(t, err, pricing.ErrInvalidItem)

	_, err = l.Decrement(context.Background(), 1, "", "M", 1)
	assert.ErrorIs(t, err, pricing.ErrInvalidItem)

	_, err = l.Decrement(context.Background(), 2, "red", "M", 1)
	assert.ErrorIs(t, err, pricing.ErrVariantNotFound)
}

func TestSetQuantity(t *testing.T) {
	stock := &memStock{qty: map[models.VariantKey]int{tee: 2}}
	l := NewLedger(stock, nil, 0, logger.Nop())

	require.NoError(t, l.SetQuantity(context.Background(), tee, 40))
	assert.Equal(t, 40, stock.qty[tee])

	assert.ErrorIs(t, l.SetQuantity(context.Background(), tee, -1), pricing.ErrInvalidItem)
	assert.ErrorIs(t, l.SetQuantity(context.Background(), models.VariantKey{ProductID: 9, Color: "x", Size: "y"}, 1), pricing.ErrVariantNotFound)
}

type recordingAlerter struct {
	alerts []LowStock
	err    error
}

func (r *recordingAlerter) AlertLowStock(ctx context.Context, low LowStock) error {
	r.alerts = append(r.alerts, low)
	return r.err
}

func TestAlerterFailureDoesNotFailDecrement(t *testing.T) {
	stock := &memStock{qty: map[models.VariantKey]int{tee: 1}}
	alerter := &recordingAlerter{err: fmt.Errorf("queue down")}
	l := NewLedger(stock, nil, 2, logger.Nop())
	l.SetAlerter(alerter)

	q, err := l.Decrement(context.Background(), 1, "red", "M", 1)
	require.NoError(t, err)
	assert.Equal(t, 0, q)
	require.Len(t, alerter.alerts, 1)
	assert.Equal(t, 2, alerter.alerts[0].Threshold)
}
