package batchplan

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/pkg/errors"
)

// ValidateAllocation checks a single requested draw against the live
// batch row. The batch must belong to the item, still be active and
// unexpired, and hold enough available stock.
func ValidateAllocation(batch BatchStock, itemID string, qty decimal.Decimal, today time.Time) error {
	if batch.ItemID != itemID {
		return errors.BadRequest(fmt.Sprintf("batch %s does not belong to item %s", batch.BatchNo, itemID))
	}
	if !batch.Active {
		return errors.BadRequest(fmt.Sprintf("batch %s is no longer active", batch.BatchNo))
	}
	if batch.Expired(today) {
		return errors.BadRequest(fmt.Sprintf("batch %s expired on %s", batch.BatchNo, batch.ExpiryDate.Format("2006-01-02")))
	}
	if !qty.IsPositive() {
		return errors.BadRequest("allocated quantity must be greater than zero")
	}
	if qty.GreaterThan(batch.AvailableQty()) {
		return errors.BadRequest(fmt.Sprintf(
			"allocated quantity %s exceeds available stock %s in batch %s",
			qty.String(), batch.AvailableQty().String(), batch.BatchNo))
	}
	return nil
}
