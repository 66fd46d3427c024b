package allocation

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Rollup counts items by allocation bucket for the dashboard.
type Rollup struct {
	Total       int `json:"total"`
	Filled      int `json:"filled"`
	Partial     int `json:"partial"`
	Unallocated int `json:"unallocated"`
}

// Aggregate recomputes the dashboard counts from the items and their
// current allocation totals in the store.
func Aggregate(items []Item, store *Store) Rollup {
	rollup := Rollup{Total: len(items)}

	for _, item := range items {
		total := store.Total(item.ItemID)
		switch {
		case total.IsZero() || total.IsNegative():
			rollup.Unallocated++
		case total.GreaterThanOrEqual(item.RequestedQty):
			rollup.Filled++
		default:
			rollup.Partial++
		}
	}

	return rollup
}

// StatusBucket is the list-filter bucket selector.
type StatusBucket string

const (
	BucketAll         StatusBucket = "all"
	BucketUnallocated StatusBucket = "unallocated"
	BucketPartial     StatusBucket = "partial"
	BucketFilled      StatusBucket = "filled"
)

// MatchesFilter decides row visibility: a case-insensitive substring match
// on name or SKU AND a bucket match, combined conjunctively. Pure function
// of the current allocation total.
func MatchesFilter(item Item, allocated decimal.Decimal, query string, bucket StatusBucket) bool {
	if query != "" {
		q := strings.ToLower(query)
		if !strings.Contains(strings.ToLower(item.Name), q) &&
			!strings.Contains(strings.ToLower(item.SKU), q) {
			return false
		}
	}

	switch bucket {
	case BucketUnallocated:
		return allocated.IsZero() || allocated.IsNegative()
	case BucketPartial:
		return allocated.IsPositive() && allocated.LessThan(item.RequestedQty)
	case BucketFilled:
		return allocated.IsPositive() && allocated.GreaterThanOrEqual(item.RequestedQty)
	default:
		return true
	}
}
