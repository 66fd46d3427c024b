package allocation

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStockFetcher struct {
	usable   decimal.Decimal
	reserved decimal.Decimal
	err      error
	calls    int
}

func (f *stubStockFetcher) FetchStock(ctx context.Context, itemID, warehouseID string) (decimal.Decimal, decimal.Decimal, error) {
	f.calls++
	return f.usable, f.reserved, f.err
}

func TestStockLedger_Refresh(t *testing.T) {
	fetcher := &stubStockFetcher{usable: dec(80), reserved: dec(10)}
	ledger := NewStockLedger(fetcher)

	cell, err := ledger.Refresh(context.Background(), "item-1", "wh-1")
	require.NoError(t, err)

	assert.True(t, cell.Known)
	assert.True(t, cell.UsableQty.Equal(dec(80)))
	assert.True(t, cell.ReservedQty.Equal(dec(10)))
	assert.True(t, cell.AvailableQty().Equal(dec(70)))

	cached, ok := ledger.Cell("item-1", "wh-1")
	assert.True(t, ok)
	assert.Equal(t, cell, cached)
}

func TestStockLedger_RefreshFailureMarksCellUnknown(t *testing.T) {
	fetcher := &stubStockFetcher{err: errors.New("connection refused")}
	ledger := NewStockLedger(fetcher)

	cell, err := ledger.Refresh(context.Background(), "item-1", "wh-1")
	require.Error(t, err)

	assert.False(t, cell.Known)

	// The unknown cell is excluded from validation, not treated as zero
	// or infinite stock.
	view := ledger.Recompute("item-1", "wh-1", dec(10))
	assert.False(t, view.Known)
	assert.Equal(t, "stock unknown", view.Breakdown)
}

func TestStockLedger_RefreshRecoversAfterFailure(t *testing.T) {
	fetcher := &stubStockFetcher{err: errors.New("timeout")}
	ledger := NewStockLedger(fetcher)

	_, err := ledger.Refresh(context.Background(), "item-1", "wh-1")
	require.Error(t, err)

	fetcher.err = nil
	fetcher.usable = dec(40)
	fetcher.reserved = dec(5)

	cell, err := ledger.Refresh(context.Background(), "item-1", "wh-1")
	require.NoError(t, err)
	assert.True(t, cell.Known)
	assert.True(t, cell.AvailableQty().Equal(dec(35)))
}

func TestStockLedger_Recompute(t *testing.T) {
	fetcher := &stubStockFetcher{usable: dec(80), reserved: dec(10)}
	ledger := NewStockLedger(fetcher)
	_, err := ledger.Refresh(context.Background(), "item-1", "wh-1")
	require.NoError(t, err)

	tests := []struct {
		name      string
		allocated int64
		remaining int64
		tone      Tone
	}{
		{name: "nothing allocated", allocated: 0, remaining: 70, tone: ToneNeutral},
		{name: "partly allocated", allocated: 50, remaining: 20, tone: ToneWarning},
		{name: "fully drawn", allocated: 70, remaining: 0, tone: ToneDanger},
		{name: "over allocated clamps to zero", allocated: 90, remaining: 0, tone: ToneDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view := ledger.Recompute("item-1", "wh-1", dec(tt.allocated))
			assert.True(t, view.Known)
			assert.True(t, view.Remaining.Equal(dec(tt.remaining)),
				"remaining = %s, want %d", view.Remaining, tt.remaining)
			assert.Equal(t, tt.tone, view.Tone)
			assert.NotEmpty(t, view.Breakdown)
		})
	}
}

func TestStockLedger_RecomputeUnknownCell(t *testing.T) {
	ledger := NewStockLedger(&stubStockFetcher{})

	view := ledger.Recompute("item-9", "wh-9", dec(5))

	assert.False(t, view.Known)
	assert.Equal(t, ToneNeutral, view.Tone)
}

func TestStockCell_AvailableNeverNegative(t *testing.T) {
	cell := StockCell{UsableQty: dec(5), ReservedQty: dec(12), Known: true}
	assert.True(t, cell.AvailableQty().IsZero())
}
