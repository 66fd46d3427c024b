package allocation

import "github.com/shopspring/decimal"

// AllowedCodes returns the canonical status set for an (allocated,
// requested) pair.
func AllowedCodes(allocated, requested decimal.Decimal) []StatusCode {
	switch {
	case allocated.IsZero() || allocated.IsNegative():
		return []StatusCode{StatusRequested, StatusDenied, StatusUnavailable, StatusWithdrawn}
	case allocated.LessThan(requested):
		return []StatusCode{StatusPartlyFilled, StatusLimitAllowed, StatusDenied, StatusUnavailable, StatusWithdrawn}
	default:
		return []StatusCode{StatusFilled, StatusLimitAllowed, StatusDenied, StatusUnavailable, StatusWithdrawn}
	}
}

// AutoStatus derives the automatic status for an (allocated, requested)
// pair: R when nothing is allocated, F when fully covered, P otherwise.
func AutoStatus(allocated, requested decimal.Decimal) StatusCode {
	switch {
	case allocated.IsZero() || allocated.IsNegative():
		return StatusRequested
	case allocated.GreaterThanOrEqual(requested):
		return StatusFilled
	default:
		return StatusPartlyFilled
	}
}

// Reconcile recomputes the item's status against the current allocation
// total and returns the status options to present. Auto statuses are
// replaced with the fresh auto status; manual statuses are sticky. A manual
// status that falls outside the canonical allowed set is preserved and
// appended to the options so the selection is never discarded. The reason
// field is cleared unless the final status requires one.
func Reconcile(item *Item, allocated decimal.Decimal) []StatusCode {
	allowed := AllowedCodes(allocated, item.RequestedQty)

	if item.Status == "" || item.Status.IsAuto() {
		item.Status = AutoStatus(allocated, item.RequestedQty)
	} else if !containsStatus(allowed, item.Status) {
		// Manual status no longer in the canonical set. Keep the human
		// decision and surface it as an extra option.
		allowed = append(allowed, item.Status)
	}

	if !item.Status.RequiresReason() {
		item.StatusReason = ""
	}

	return allowed
}

func containsStatus(codes []StatusCode, code StatusCode) bool {
	for _, c := range codes {
		if c == code {
			return true
		}
	}
	return false
}
