package service

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/internal/packaging/allocation"
)

// SummaryItem is one row in the request summary.
type SummaryItem struct {
	ItemID       string          `json:"item_id"`
	RequestedQty decimal.Decimal `json:"requested_qty"`
	AllocatedQty decimal.Decimal `json:"allocated_qty"`
	Status       string          `json:"status"`
	StatusLabel  string          `json:"status_label"`
	StatusReason *string         `json:"status_reason,omitempty"`
}

// Summary is the per-request dashboard rollup.
type Summary struct {
	ReliefRequestID string            `json:"relief_request_id"`
	PackageStatus   string            `json:"package_status"`
	Rollup          allocation.Rollup `json:"rollup"`
	Items           []SummaryItem     `json:"items"`
}

// GetSummary builds the fulfillment rollup for a relief request from the
// persisted allocations.
func (s *PackagingService) GetSummary(ctx context.Context, reliefRequestID string) (*Summary, error) {
	pkg, err := s.packages.GetByReliefRequestID(ctx, reliefRequestID)
	if err != nil {
		return nil, err
	}

	items, err := s.packages.GetItems(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}

	allocated, err := s.allocations.ListByPackage(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}

	store := allocation.NewStore()
	byItem := make(map[string]map[string]decimal.Decimal)
	for _, a := range allocated {
		if byItem[a.ItemID] == nil {
			byItem[a.ItemID] = make(map[string]decimal.Decimal)
		}
		byItem[a.ItemID][a.BatchID] = a.Quantity
	}
	for itemID, entries := range byItem {
		store.Replace(itemID, entries)
	}

	engineItems := make([]allocation.Item, 0, len(items))
	rows := make([]SummaryItem, 0, len(items))
	for _, item := range items {
		status := allocation.StatusCode(item.Status)
		engineItems = append(engineItems, allocation.Item{
			ItemID:       item.ItemID,
			RequestedQty: item.RequestedQty,
			Status:       status,
		})
		rows = append(rows, SummaryItem{
			ItemID:       item.ItemID,
			RequestedQty: item.RequestedQty,
			AllocatedQty: store.Total(item.ItemID),
			Status:       item.Status,
			StatusLabel:  status.Label(),
			StatusReason: item.StatusReason,
		})
	}

	return &Summary{
		ReliefRequestID: reliefRequestID,
		PackageStatus:   pkg.Status,
		Rollup:          allocation.Aggregate(engineItems, store),
		Items:           rows,
	}, nil
}
