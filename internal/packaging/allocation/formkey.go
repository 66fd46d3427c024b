package allocation

import "strings"

// Form field naming for the preparation form. These encodings exist only at
// the form-serialization boundary; everything inside the engine works with
// structured (itemID, batchID) pairs.
const (
	batchAllocationPrefix = "batch_allocation_"
	statusPrefix          = "status_"
	statusReasonPrefix    = "status_reason_"
)

// BatchAllocationKey returns the form field name carrying the allocated
// quantity for one (item, batch) pair.
func BatchAllocationKey(itemID, batchID string) string {
	return batchAllocationPrefix + itemID + "_" + batchID
}

// BatchIDFromKey extracts the batch ID from a batch allocation field name
// belonging to the given item. Returns false when the key does not belong
// to the item.
func BatchIDFromKey(itemID, key string) (string, bool) {
	prefix := batchAllocationPrefix + itemID + "_"
	if !strings.HasPrefix(key, prefix) {
		return "", false
	}
	batchID := strings.TrimPrefix(key, prefix)
	if batchID == "" {
		return "", false
	}
	return batchID, true
}

// StatusKey returns the form field name carrying the item's status code.
func StatusKey(itemID string) string {
	return statusPrefix + itemID
}

// StatusReasonKey returns the form field name carrying the item's status
// reason.
func StatusReasonKey(itemID string) string {
	return statusReasonPrefix + itemID
}
