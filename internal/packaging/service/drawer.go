package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/internal/packaging/allocation"
	"github.com/drims/drims-backend/internal/packaging/batchplan"
)

// BatchView is one drawer row.
type BatchView struct {
	BatchID       string          `json:"batch_id"`
	BatchNo       string          `json:"batch_no"`
	WarehouseID   string          `json:"warehouse_id"`
	WarehouseName string          `json:"warehouse_name"`
	BatchDate     *time.Time      `json:"batch_date"`
	ExpiryDate    *time.Time      `json:"expiry_date"`
	AvailableQty  decimal.Decimal `json:"available_qty"`
	PriorityGroup int             `json:"priority_group"`
	SizeSpec      string          `json:"size_spec"`
	UOMCode       string          `json:"uom_code"`
	ExpiresSoon   bool            `json:"expires_soon"`
}

// DrawerListing is the batch selection drawer payload for one item.
type DrawerListing struct {
	IssuanceOrder  string          `json:"issuance_order"`
	CanExpire      bool            `json:"can_expire"`
	IsBatched      bool            `json:"is_batched"`
	TotalAvailable decimal.Decimal `json:"total_available"`
	Shortfall      decimal.Decimal `json:"shortfall"`
	CanFulfill     bool            `json:"can_fulfill"`
	Batches        []BatchView     `json:"batches"`
}

// ListDrawerBatches builds the drawer listing for an item: batches sorted
// by the item's issuance order, trimmed to the already-allocated lots plus
// the top lot per warehouse, with priority groups assigned over the full
// sorted order so the mandatory pick sequence survives the trimming.
func (s *PackagingService) ListDrawerBatches(ctx context.Context, itemID string, remainingQty decimal.Decimal, requiredUOM string, allocatedBatchIDs []string) (*DrawerListing, error) {
	itemCfg, err := s.inventory.GetItemConfig(ctx, itemID)
	if err != nil {
		return nil, err
	}

	if requiredUOM == "" {
		requiredUOM = itemCfg.DefaultUOM
	}

	batches, err := s.inventory.GetBatches(ctx, itemID, requiredUOM)
	if err != nil {
		return nil, err
	}

	planCfg := batchplan.ItemConfig{
		ItemID:        itemID,
		IssuanceOrder: batchplan.IssuanceOrder(itemCfg.IssuanceOrder),
		CanExpire:     itemCfg.CanExpire,
		IsBatched:     itemCfg.IsBatched,
	}

	now := time.Now()
	sorted := batchplan.SortBatches(batches, planCfg, now)
	grouped := batchplan.AssignPriorityGroups(sorted, planCfg)

	groupByBatch := make(map[string]int, len(grouped))
	for _, g := range grouped {
		groupByBatch[g.BatchID] = g.PriorityGroup
	}

	plan := batchplan.LimitForDrawer(sorted, remainingQty, allocatedBatchIDs)

	warnBefore := now.AddDate(0, 0, s.cfg.ExpiryWarningDays)
	views := make([]BatchView, 0, len(plan.Batches))
	for _, b := range plan.Batches {
		views = append(views, BatchView{
			BatchID:       b.BatchID,
			BatchNo:       b.BatchNo,
			WarehouseID:   b.WarehouseID,
			WarehouseName: b.WarehouseName,
			BatchDate:     b.BatchDate,
			ExpiryDate:    b.ExpiryDate,
			AvailableQty:  b.AvailableQty(),
			PriorityGroup: groupByBatch[b.BatchID],
			SizeSpec:      b.SizeSpec,
			UOMCode:       b.UOMCode,
			ExpiresSoon:   itemCfg.CanExpire && b.ExpiryDate != nil && b.ExpiryDate.Before(warnBefore),
		})
	}

	return &DrawerListing{
		IssuanceOrder:  itemCfg.IssuanceOrder,
		CanExpire:      itemCfg.CanExpire,
		IsBatched:      itemCfg.IsBatched,
		TotalAvailable: plan.TotalAvailable,
		Shortfall:      plan.Shortfall,
		CanFulfill:     plan.CanFulfill(),
		Batches:        views,
	}, nil
}

// FetchBatches adapts the drawer listing to the batch selection session's
// fetcher interface.
func (s *PackagingService) FetchBatches(ctx context.Context, itemID string, remainingQty decimal.Decimal, requiredUOM string, allocatedBatchIDs []string) (*allocation.BatchListing, error) {
	listing, err := s.ListDrawerBatches(ctx, itemID, remainingQty, requiredUOM, allocatedBatchIDs)
	if err != nil {
		return nil, err
	}

	batches := make([]allocation.Batch, 0, len(listing.Batches))
	for _, b := range listing.Batches {
		batch := allocation.Batch{
			BatchID:       b.BatchID,
			BatchNo:       b.BatchNo,
			ItemID:        itemID,
			WarehouseID:   b.WarehouseID,
			WarehouseName: b.WarehouseName,
			ExpiryDate:    b.ExpiryDate,
			AvailableQty:  b.AvailableQty,
			PriorityGroup: b.PriorityGroup,
			SizeSpec:      b.SizeSpec,
			UOMCode:       b.UOMCode,
		}
		if b.BatchDate != nil {
			batch.BatchDate = *b.BatchDate
		}
		batches = append(batches, batch)
	}

	return &allocation.BatchListing{
		IssuanceOrder:  listing.IssuanceOrder,
		CanExpire:      listing.CanExpire,
		IsBatched:      listing.IsBatched,
		TotalAvailable: listing.TotalAvailable,
		Shortfall:      listing.Shortfall,
		CanFulfill:     listing.CanFulfill,
		Batches:        batches,
	}, nil
}
