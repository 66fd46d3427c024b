package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/drims/drims-backend/internal/packaging/allocation"
	"github.com/drims/drims-backend/internal/packaging/batchplan"
	"github.com/drims/drims-backend/internal/packaging/repository"
	"github.com/drims/drims-backend/pkg/errors"
)

// Form submission actions.
const (
	ActionSaveDraft          = "save_draft"
	ActionSubmitForApproval  = "submit_for_approval"
	ActionApproveAndDispatch = "approve_and_dispatch"
)

// Default reasons written when a manual status demands one and the
// fulfiller left the field blank.
const (
	defaultDeniedReason       = "denied during package preparation"
	defaultLimitAllowedReason = "approved below the requested quantity"
)

// ItemResult is the post-submission state of one package item.
type ItemResult struct {
	ItemID       string                  `json:"item_id"`
	RequestedQty decimal.Decimal         `json:"requested_qty"`
	AllocatedQty decimal.Decimal         `json:"allocated_qty"`
	Status       string                  `json:"status"`
	StatusLabel  string                  `json:"status_label"`
	StatusReason *string                 `json:"status_reason,omitempty"`
	AllowedCodes []allocation.StatusCode `json:"allowed_codes"`
}

// PrepareResult is the response for a processed preparation form.
type PrepareResult struct {
	ReliefRequestID string       `json:"relief_request_id"`
	Action          string       `json:"action"`
	PackageStatus   string       `json:"package_status"`
	Items           []ItemResult `json:"items"`
}

// itemPlan is the working state for one item while a form is processed.
type itemPlan struct {
	item        repository.PackageItem
	entries     map[string]decimal.Decimal
	batchByID   map[string]batchplan.BatchStock
	groups      []allocation.Batch
	status      allocation.StatusCode
	reason      *string
	allowed     []allocation.StatusCode
	allocatedBy map[string]decimal.Decimal // warehouse -> total
}

// PrepareRequest processes a preparation form submission. Validating
// actions (submit, dispatch) aggregate every failure into a single
// validation error; save_draft persists as-is.
func (s *PackagingService) PrepareRequest(ctx context.Context, reliefRequestID, userID, action string, form url.Values) (*PrepareResult, error) {
	switch action {
	case ActionSaveDraft, ActionSubmitForApproval, ActionApproveAndDispatch:
	default:
		return nil, errors.BadRequest(fmt.Sprintf("unknown action %q", action))
	}

	lock, err := s.locks.Acquire(ctx, reliefRequestID, userID, s.cfg.LockExpiry)
	if err != nil {
		return nil, err
	}
	s.publisher.PublishLockAcquired(ctx, lock)

	pkg, err := s.packages.GetByReliefRequestID(ctx, reliefRequestID)
	if err != nil {
		return nil, err
	}
	if pkg.Status == repository.PackageStatusDispatched || pkg.Status == repository.PackageStatusCancelled {
		return nil, errors.Conflict("package is already " + pkg.Status)
	}

	items, err := s.packages.GetItems(ctx, pkg.ID)
	if err != nil {
		return nil, err
	}

	validating := action != ActionSaveDraft
	details := make(map[string]string)
	store := allocation.NewStore()
	plans := make([]*itemPlan, 0, len(items))

	for _, item := range items {
		plan, err := s.buildItemPlan(ctx, item, form, store, validating, details)
		if err != nil {
			return nil, err
		}
		if action == ActionApproveAndDispatch {
			s.checkDispatchable(plan, details)
		}
		plans = append(plans, plan)
	}

	if validating && len(details) > 0 {
		return nil, errors.Validation(details)
	}

	if err := s.persistPlans(ctx, pkg, plans); err != nil {
		return nil, err
	}
	if err := s.reconcileReservations(ctx, reliefRequestID, plans); err != nil {
		return nil, err
	}

	if err := s.transition(ctx, pkg, reliefRequestID, userID, action); err != nil {
		return nil, err
	}

	results := make([]ItemResult, 0, len(plans))
	for _, plan := range plans {
		total := store.Total(plan.item.ItemID)
		results = append(results, ItemResult{
			ItemID:       plan.item.ItemID,
			RequestedQty: plan.item.RequestedQty,
			AllocatedQty: total,
			Status:       string(plan.status),
			StatusLabel:  plan.status.Label(),
			StatusReason: plan.reason,
			AllowedCodes: plan.allowed,
		})
	}

	return &PrepareResult{
		ReliefRequestID: reliefRequestID,
		Action:          action,
		PackageStatus:   pkg.Status,
		Items:           results,
	}, nil
}

// buildItemPlan parses one item's allocations and status from the form and
// validates them against live batch rows.
func (s *PackagingService) buildItemPlan(ctx context.Context, item repository.PackageItem, form url.Values, store *allocation.Store, validating bool, details map[string]string) (*itemPlan, error) {
	store.LoadFromForm(item.ItemID, form)
	entries := store.Entries(item.ItemID)

	plan := &itemPlan{
		item:        item,
		entries:     entries,
		batchByID:   make(map[string]batchplan.BatchStock),
		allocatedBy: make(map[string]decimal.Decimal),
	}

	itemCfg, err := s.inventory.GetItemConfig(ctx, item.ItemID)
	if err != nil {
		return nil, err
	}
	batches, err := s.inventory.GetBatches(ctx, item.ItemID, "")
	if err != nil {
		return nil, err
	}

	planCfg := batchplan.ItemConfig{
		ItemID:        item.ItemID,
		IssuanceOrder: batchplan.IssuanceOrder(itemCfg.IssuanceOrder),
		CanExpire:     itemCfg.CanExpire,
		IsBatched:     itemCfg.IsBatched,
	}

	now := time.Now()
	sorted := batchplan.SortBatches(batches, planCfg, now)
	grouped := batchplan.AssignPriorityGroups(sorted, planCfg)
	for _, g := range grouped {
		plan.batchByID[g.BatchID] = g.BatchStock
		batch := allocation.Batch{
			BatchID:       g.BatchID,
			ItemID:        g.ItemID,
			WarehouseID:   g.WarehouseID,
			AvailableQty:  g.AvailableQty(),
			PriorityGroup: g.PriorityGroup,
		}
		plan.groups = append(plan.groups, batch)
	}

	for batchID, qty := range entries {
		batch, ok := plan.batchByID[batchID]
		if !ok {
			if validating {
				details["batch_"+batchID] = "batch is not eligible for item " + item.ItemID
			}
			delete(entries, batchID)
			continue
		}

		if err := batchplan.ValidateAllocation(batch, item.ItemID, qty, now); err != nil {
			if validating {
				details["batch_"+batchID] = err.Error()
				continue
			}
			// Drafts clamp instead of failing, matching the live edit behavior.
			clamped := decimal.Min(qty, batch.AvailableQty())
			if !clamped.IsPositive() {
				delete(entries, batchID)
				continue
			}
			entries[batchID] = clamped
		}

		plan.allocatedBy[batch.WarehouseID] = plan.allocatedBy[batch.WarehouseID].Add(entries[batchID])
	}
	store.Replace(item.ItemID, entries)
	plan.entries = store.Entries(item.ItemID)

	if validating {
		if result := allocation.ValidatePickOrderByWarehouse(plan.groups, plan.entries); !result.Valid {
			details["item_"+item.ItemID+"_pick_order"] = result.Message
		}
	}

	total := store.Total(item.ItemID)
	if validating && total.GreaterThan(item.RequestedQty) {
		details["item_"+item.ItemID] = fmt.Sprintf(
			"allocated quantity %s exceeds requested quantity %s", total.String(), item.RequestedQty.String())
	}

	plan.resolveStatus(form, total, validating, details)
	return plan, nil
}

// resolveStatus reconciles the item's status with the submitted form fields.
func (p *itemPlan) resolveStatus(form url.Values, total decimal.Decimal, validating bool, details map[string]string) {
	raw := form.Get(allocation.StatusKey(p.item.ItemID))
	reason := form.Get(allocation.StatusReasonKey(p.item.ItemID))

	status := allocation.StatusCode(raw)
	if raw != "" && !status.IsValid() {
		if validating {
			details["item_"+p.item.ItemID+"_status"] = fmt.Sprintf("unknown status code %q", raw)
		}
		status = ""
	}
	if status == "" {
		status = allocation.StatusCode(p.item.Status)
	}

	aItem := allocation.Item{
		ItemID:       p.item.ItemID,
		RequestedQty: p.item.RequestedQty,
		Status:       status,
		StatusReason: reason,
	}
	p.allowed = allocation.Reconcile(&aItem, total)

	if aItem.Status.RequiresReason() && aItem.StatusReason == "" {
		switch aItem.Status {
		case allocation.StatusDenied:
			aItem.StatusReason = defaultDeniedReason
		case allocation.StatusLimitAllowed:
			aItem.StatusReason = defaultLimitAllowedReason
		}
	}

	p.status = aItem.Status
	if aItem.StatusReason != "" {
		r := aItem.StatusReason
		p.reason = &r
	}
}

// checkDispatchable flags items that block an approve_and_dispatch: every
// line must be fully allocated or carry a manual status explaining why not.
func (s *PackagingService) checkDispatchable(plan *itemPlan, details map[string]string) {
	total := decimal.Zero
	for _, qty := range plan.entries {
		total = total.Add(qty)
	}

	if total.GreaterThanOrEqual(plan.item.RequestedQty) {
		return
	}
	if plan.status.IsManual() {
		return
	}
	details["item_"+plan.item.ItemID+"_dispatch"] = fmt.Sprintf(
		"item %s is not fully allocated (%s of %s)", plan.item.ItemID, total.String(), plan.item.RequestedQty.String())
}

// persistPlans writes allocations and statuses for every item.
func (s *PackagingService) persistPlans(ctx context.Context, pkg *repository.Package, plans []*itemPlan) error {
	for _, plan := range plans {
		rows := make([]repository.BatchAllocation, 0, len(plan.entries))
		for batchID, qty := range plan.entries {
			batch := plan.batchByID[batchID]
			rows = append(rows, repository.BatchAllocation{
				WarehouseID: batch.WarehouseID,
				BatchID:     batchID,
				Quantity:    qty,
			})
		}
		if err := s.allocations.ReplaceForItem(ctx, pkg.ID, plan.item.ItemID, rows); err != nil {
			return err
		}
		if err := s.packages.UpdateItemStatus(ctx, pkg.ID, plan.item.ItemID, string(plan.status), plan.reason); err != nil {
			return err
		}
	}
	return nil
}

// reconcileReservations moves held stock to match the new allocations:
// upserts per (item, warehouse) totals and drops rows no longer backed by
// an allocation.
func (s *PackagingService) reconcileReservations(ctx context.Context, reliefRequestID string, plans []*itemPlan) error {
	desired := make(map[string]map[string]decimal.Decimal, len(plans))
	for _, plan := range plans {
		desired[plan.item.ItemID] = plan.allocatedBy
	}

	existing, err := s.reservations.ListByRequest(ctx, reliefRequestID)
	if err != nil {
		return err
	}

	// Release rows whose allocation went away.
	for _, res := range existing {
		if _, ok := desired[res.ItemID][res.WarehouseID]; ok {
			continue
		}
		if err := s.reservations.SetQuantity(ctx, reliefRequestID, res.ItemID, res.WarehouseID, decimal.Zero); err != nil {
			return err
		}
		s.publisher.PublishReservationReleased(ctx, res)
	}

	for itemID, byWarehouse := range desired {
		for warehouseID, qty := range byWarehouse {
			old, err := s.reservations.GetQuantity(ctx, reliefRequestID, itemID, warehouseID)
			if err != nil {
				return err
			}
			if old.Equal(qty) {
				continue
			}
			if err := s.reservations.SetQuantity(ctx, reliefRequestID, itemID, warehouseID, qty); err != nil {
				return err
			}
		}
	}
	return nil
}

// transition moves the package to the action's target status and publishes
// the lifecycle event.
func (s *PackagingService) transition(ctx context.Context, pkg *repository.Package, reliefRequestID, userID, action string) error {
	allocations, err := s.allocations.ListByPackage(ctx, pkg.ID)
	if err != nil {
		return err
	}

	switch action {
	case ActionSaveDraft:
		if pkg.Status != repository.PackageStatusDraft {
			if err := s.packages.UpdateStatus(ctx, pkg.ID, repository.PackageStatusDraft); err != nil {
				return err
			}
			pkg.Status = repository.PackageStatusDraft
		}
		s.publisher.PublishDraftSaved(ctx, reliefRequestID, userID, allocations)

	case ActionSubmitForApproval:
		if err := s.packages.UpdateStatus(ctx, pkg.ID, repository.PackageStatusSubmitted); err != nil {
			return err
		}
		pkg.Status = repository.PackageStatusSubmitted

		items, err := s.packages.GetItems(ctx, pkg.ID)
		if err != nil {
			return err
		}
		statuses := make(map[string]string, len(items))
		for _, item := range items {
			statuses[item.ItemID] = item.Status
		}
		s.publisher.PublishSubmitted(ctx, reliefRequestID, userID, allocations, statuses)

	case ActionApproveAndDispatch:
		if err := s.packages.UpdateStatus(ctx, pkg.ID, repository.PackageStatusDispatched); err != nil {
			return err
		}
		pkg.Status = repository.PackageStatusDispatched

		if err := s.commitReservations(ctx, reliefRequestID); err != nil {
			return err
		}
		if err := s.locks.Release(ctx, reliefRequestID, userID); err != nil {
			return err
		}
		s.publisher.PublishLockReleased(ctx, reliefRequestID, userID)
		s.publisher.PublishDispatched(ctx, reliefRequestID, userID, allocations)
	}
	return nil
}

// commitReservations converts held reservations into stock deductions:
// the inventory service applies the deduction when it consumes the
// committed events, then the rows are dropped here.
func (s *PackagingService) commitReservations(ctx context.Context, reliefRequestID string) error {
	reservations, err := s.reservations.ListByRequest(ctx, reliefRequestID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		s.publisher.PublishReservationCommitted(ctx, res)
	}
	return s.reservations.ReleaseAll(ctx, reliefRequestID)
}

// CancelRequest deletes draft allocations, releases reservations and the
// lock, and marks the package cancelled.
func (s *PackagingService) CancelRequest(ctx context.Context, reliefRequestID, userID string) error {
	pkg, err := s.packages.GetByReliefRequestID(ctx, reliefRequestID)
	if err != nil {
		return err
	}
	if pkg.Status == repository.PackageStatusDispatched {
		return errors.Conflict("package is already dispatched")
	}

	if err := s.allocations.DeleteByPackage(ctx, pkg.ID); err != nil {
		return err
	}

	reservations, err := s.reservations.ListByRequest(ctx, reliefRequestID)
	if err != nil {
		return err
	}
	for _, res := range reservations {
		s.publisher.PublishReservationReleased(ctx, res)
	}
	if err := s.reservations.ReleaseAll(ctx, reliefRequestID); err != nil {
		return err
	}

	if err := s.packages.UpdateStatus(ctx, pkg.ID, repository.PackageStatusCancelled); err != nil {
		return err
	}

	if err := s.locks.Release(ctx, reliefRequestID, userID); err != nil {
		return err
	}
	s.publisher.PublishLockReleased(ctx, reliefRequestID, userID)
	s.publisher.PublishCancelled(ctx, reliefRequestID, userID)

	s.logger.Info().
		Str("relief_request_id", reliefRequestID).
		Str("cancelled_by", userID).
		Msg("package preparation cancelled")
	return nil
}
