package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drims/drims-backend/internal/packaging/allocation"
	"github.com/drims/drims-backend/internal/packaging/batchplan"
	"github.com/drims/drims-backend/internal/packaging/client"
	"github.com/drims/drims-backend/pkg/config"
	"github.com/drims/drims-backend/pkg/errors"
	"github.com/drims/drims-backend/pkg/logger"
)

// stubInventory serves canned inventory responses.
type stubInventory struct {
	cfg     *client.ItemConfig
	batches []batchplan.BatchStock
	usable  decimal.Decimal
	held    decimal.Decimal
	err     error
}

func (f *stubInventory) FetchStock(ctx context.Context, itemID, warehouseID string) (decimal.Decimal, decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, decimal.Zero, f.err
	}
	return f.usable, f.held, nil
}

func (f *stubInventory) GetItemConfig(ctx context.Context, itemID string) (*client.ItemConfig, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.cfg, nil
}

func (f *stubInventory) GetBatches(ctx context.Context, itemID, requiredUOM string) ([]batchplan.BatchStock, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.batches, nil
}

func (f *stubInventory) GetBatch(ctx context.Context, itemID, batchID string) (*batchplan.BatchStock, error) {
	for _, b := range f.batches {
		if b.BatchID == batchID {
			return &b, nil
		}
	}
	return nil, errors.NotFound("batch")
}

func dec(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func stockLot(id, warehouseID string, batchDate, expiry *time.Time, usable int64) batchplan.BatchStock {
	return batchplan.BatchStock{
		BatchID:     id,
		BatchNo:     "BN-" + id,
		ItemID:      "item-1",
		WarehouseID: warehouseID,
		BatchDate:   batchDate,
		ExpiryDate:  expiry,
		UsableQty:   dec(usable),
		UOMCode:     "BAG",
		Active:      true,
	}
}

func newDrawerService(inv InventoryAPI) *PackagingService {
	log := logger.New("packaging-service-test", "development")
	cfg := config.PackagingConfig{LockExpiry: 24 * time.Hour, ExpiryWarningDays: 30}
	return NewPackagingService(nil, nil, nil, nil, inv, nil, cfg, log)
}

func TestListDrawerBatches_FEFO(t *testing.T) {
	future := time.Now().AddDate(1, 0, 0)
	soon := time.Now().AddDate(0, 0, 10)
	inv := &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FEFO", CanExpire: true, IsBatched: true, DefaultUOM: "BAG"},
		batches: []batchplan.BatchStock{
			stockLot("batch-late", "wh-1", date("2026-01-01"), &future, 40),
			stockLot("batch-soon", "wh-1", date("2026-01-01"), &soon, 25),
			stockLot("batch-north", "wh-2", date("2026-01-05"), &future, 30),
		},
	}
	svc := newDrawerService(inv)

	listing, err := svc.ListDrawerBatches(context.Background(), "item-1", dec(50), "", nil)

	require.NoError(t, err)
	assert.Equal(t, "FEFO", listing.IssuanceOrder)
	assert.True(t, listing.CanExpire)

	// One lot per warehouse: the soonest-expiring lot stands in for wh-1.
	require.Len(t, listing.Batches, 2)
	assert.Equal(t, "batch-soon", listing.Batches[0].BatchID)
	assert.Equal(t, "batch-north", listing.Batches[1].BatchID)
	assert.True(t, listing.Batches[0].ExpiresSoon)
	assert.False(t, listing.Batches[1].ExpiresSoon)

	assert.True(t, listing.TotalAvailable.Equal(dec(55)))
	assert.True(t, listing.Shortfall.IsZero())
	assert.True(t, listing.CanFulfill)
}

func TestListDrawerBatches_PriorityGroupsSurviveTrimming(t *testing.T) {
	// batch-old is allocated, so it stays visible next to the earlier
	// lot, and keeps the group number assigned over the full sort order.
	inv := &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FIFO", IsBatched: true, DefaultUOM: "BAG"},
		batches: []batchplan.BatchStock{
			stockLot("batch-first", "wh-1", date("2026-01-01"), nil, 20),
			stockLot("batch-old", "wh-1", date("2026-02-01"), nil, 35),
		},
	}
	svc := newDrawerService(inv)

	listing, err := svc.ListDrawerBatches(context.Background(), "item-1", dec(40), "", []string{"batch-old"})

	require.NoError(t, err)
	require.Len(t, listing.Batches, 2)
	assert.Equal(t, 0, listing.Batches[0].PriorityGroup)
	assert.Equal(t, 1, listing.Batches[1].PriorityGroup)
	assert.True(t, listing.TotalAvailable.Equal(dec(55)))
}

func TestListDrawerBatches_Shortfall(t *testing.T) {
	inv := &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FIFO", IsBatched: true},
		batches: []batchplan.BatchStock{
			stockLot("batch-1", "wh-1", date("2026-01-01"), nil, 15),
		},
	}
	svc := newDrawerService(inv)

	listing, err := svc.ListDrawerBatches(context.Background(), "item-1", dec(40), "", nil)

	require.NoError(t, err)
	assert.True(t, listing.Shortfall.Equal(dec(25)))
	assert.False(t, listing.CanFulfill)
}

func TestGetStockCell(t *testing.T) {
	inv := &stubInventory{usable: dec(80), held: dec(10)}
	svc := newDrawerService(inv)

	cell, err := svc.GetStockCell(context.Background(), "item-1", "wh-1")

	require.NoError(t, err)
	assert.True(t, cell.AvailableQty.Equal(dec(70)))
}

func TestGetStockCell_OverReservedClampsToZero(t *testing.T) {
	inv := &stubInventory{usable: dec(10), held: dec(15)}
	svc := newDrawerService(inv)

	cell, err := svc.GetStockCell(context.Background(), "item-1", "wh-1")

	require.NoError(t, err)
	assert.True(t, cell.AvailableQty.IsZero())
}

func TestFetchBatches_DrivesSelectionSession(t *testing.T) {
	inv := &stubInventory{
		cfg: &client.ItemConfig{ItemID: "item-1", IssuanceOrder: "FIFO", IsBatched: true},
		batches: []batchplan.BatchStock{
			stockLot("batch-1", "wh-1", date("2026-01-01"), nil, 45),
		},
	}
	svc := newDrawerService(inv)

	store := allocation.NewStore()
	session := allocation.NewSession(store, svc)

	item := &allocation.Item{ItemID: "item-1", RequestedQty: dec(40), Status: allocation.StatusRequested}
	require.NoError(t, session.Open(context.Background(), item))
	require.Equal(t, allocation.SessionReady, session.State())

	applied, _, err := session.UseMax("batch-1")
	require.NoError(t, err)
	assert.True(t, applied.Equal(dec(40)))

	summary, err := session.Apply()
	require.NoError(t, err)
	assert.Equal(t, allocation.StatusFilled, summary.Status)
	assert.True(t, store.Total("item-1").Equal(dec(40)))
}
