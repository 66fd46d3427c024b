package allocation

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestValidatePickOrder_LaterGroupBeforeEarlierIsFull(t *testing.T) {
	batches := []Batch{
		{BatchID: "batch-a", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(100)},
		{BatchID: "batch-b", WarehouseID: "wh-1", PriorityGroup: 1, AvailableQty: dec(50)},
	}
	allocations := map[string]decimal.Decimal{
		"batch-a": dec(60),
		"batch-b": dec(5),
	}

	result := ValidatePickOrder(batches, allocations)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{"batch-b"}, result.ViolatingBatchIDs)
	assert.Equal(t, 0, result.UnderfilledGroup)
	assert.True(t, result.RemainingInGroup.Equal(dec(40)))
	assert.Contains(t, result.Message, "40")
}

func TestValidatePickOrder_ValidWhenEarlierGroupIsFull(t *testing.T) {
	batches := []Batch{
		{BatchID: "batch-a", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(100)},
		{BatchID: "batch-b", WarehouseID: "wh-1", PriorityGroup: 1, AvailableQty: dec(50)},
	}
	allocations := map[string]decimal.Decimal{
		"batch-a": dec(100),
		"batch-b": dec(5),
	}

	result := ValidatePickOrder(batches, allocations)
	assert.True(t, result.Valid)
}

func TestValidatePickOrder_UnconstrainedWithoutDownstreamAllocation(t *testing.T) {
	batches := []Batch{
		{BatchID: "batch-a", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(100)},
		{BatchID: "batch-b", WarehouseID: "wh-1", PriorityGroup: 1, AvailableQty: dec(50)},
	}
	allocations := map[string]decimal.Decimal{
		"batch-a": dec(30),
	}

	result := ValidatePickOrder(batches, allocations)
	assert.True(t, result.Valid)
}

func TestValidatePickOrder_MultipleBatchesPerGroup(t *testing.T) {
	// Group 0 has two lots summing to 40 available; both must be drained
	// before group 1 holds anything.
	batches := []Batch{
		{BatchID: "batch-a1", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(25)},
		{BatchID: "batch-a2", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(15)},
		{BatchID: "batch-b", WarehouseID: "wh-1", PriorityGroup: 1, AvailableQty: dec(50)},
	}

	allocations := map[string]decimal.Decimal{
		"batch-a1": dec(25),
		"batch-b":  dec(10),
	}
	result := ValidatePickOrder(batches, allocations)
	assert.False(t, result.Valid)
	assert.True(t, result.RemainingInGroup.Equal(dec(15)))

	allocations["batch-a2"] = dec(15)
	result = ValidatePickOrder(batches, allocations)
	assert.True(t, result.Valid)
}

func TestValidatePickOrder_ViolationsAcrossSeveralLaterGroups(t *testing.T) {
	batches := []Batch{
		{BatchID: "batch-a", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(100)},
		{BatchID: "batch-b", WarehouseID: "wh-1", PriorityGroup: 1, AvailableQty: dec(50)},
		{BatchID: "batch-c", WarehouseID: "wh-1", PriorityGroup: 2, AvailableQty: dec(50)},
	}
	allocations := map[string]decimal.Decimal{
		"batch-b": dec(5),
		"batch-c": dec(5),
	}

	result := ValidatePickOrder(batches, allocations)

	assert.False(t, result.Valid)
	assert.Equal(t, []string{"batch-b", "batch-c"}, result.ViolatingBatchIDs)
	assert.True(t, result.RemainingInGroup.Equal(dec(100)))
}

func TestValidatePickOrder_NoAllocations(t *testing.T) {
	batches := []Batch{
		{BatchID: "batch-a", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(100)},
	}

	result := ValidatePickOrder(batches, nil)
	assert.True(t, result.Valid)
}

func TestValidatePickOrderByWarehouse_IndependentPerWarehouse(t *testing.T) {
	// Issuance priority binds within each warehouse only: drawing from
	// wh-2's group 1 is fine even though wh-1's group 0 has stock left.
	batches := []Batch{
		{BatchID: "batch-a", WarehouseID: "wh-1", PriorityGroup: 0, AvailableQty: dec(100)},
		{BatchID: "batch-b", WarehouseID: "wh-2", PriorityGroup: 0, AvailableQty: dec(30)},
		{BatchID: "batch-c", WarehouseID: "wh-2", PriorityGroup: 1, AvailableQty: dec(30)},
	}
	allocations := map[string]decimal.Decimal{
		"batch-b": dec(30),
		"batch-c": dec(10),
	}

	result := ValidatePickOrderByWarehouse(batches, allocations)
	assert.True(t, result.Valid)

	// But within wh-2 the rule still applies.
	allocations["batch-b"] = dec(20)
	result = ValidatePickOrderByWarehouse(batches, allocations)
	assert.False(t, result.Valid)
	assert.Equal(t, []string{"batch-c"}, result.ViolatingBatchIDs)
	assert.True(t, result.RemainingInGroup.Equal(dec(10)))
}
