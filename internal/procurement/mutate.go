package procurement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// LineState is the authoritative state of a line item, re-read from the
// store immediately before a transition is planned.
type LineState struct {
	Ref      LineRef
	Supplier string
	Code     string
	Unit     string
	Note     string
	Required decimal.Decimal
	Status   Status
}

// ExpenseState is the current state of a general expense record
type ExpenseState struct {
	Quantity decimal.Decimal
	Unit     string
	Note     string
	Status   Status
}

// Plan is the outcome of a planned transition: the status to persist and
// the patches that bring the view in line with it.
type Plan struct {
	Status    Status
	Committed decimal.Decimal
	Patches   []Patch
}

// CheckIdentity verifies the re-read line item is still the one entry was
// built from.
func CheckIdentity(entry Requirement, line LineState) error {
	if !strings.EqualFold(strings.TrimSpace(line.Code), entry.Code) ||
		!strings.EqualFold(strings.TrimSpace(line.Supplier), entry.Supplier) {
		return LineError(KindIdentityMismatch, line.Ref, entry.Code,
			"line item now holds %s from %s, expected %s from %s",
			strings.TrimSpace(line.Code), strings.TrimSpace(line.Supplier), entry.Code, entry.Supplier)
	}
	return nil
}

// PlanLineTransition computes the status write and view patches for moving
// an order-backed entry to target. The patched rows are exactly what a fresh
// extraction of the written status yields.
func PlanLineTransition(entry Requirement, line LineState, target Target) (Plan, error) {
	if err := checkSource(entry, target); err != nil {
		return Plan{}, err
	}
	if err := CheckIdentity(entry, line); err != nil {
		return Plan{}, err
	}

	switch target {
	case TargetOrdered:
		return planOrder(entry, line)
	case TargetReceived:
		return planReceive(entry, line)
	case TargetRequired:
		return planRevert(entry, line)
	}
	return Plan{}, Errorf(KindInvalidTransition, "unknown target state %q", target)
}

func checkSource(entry Requirement, target Target) error {
	if entry.Bucket != target.SourceBucket() {
		return Errorf(KindInvalidTransition, "entry %s is %s and cannot move to %s", entry.ID, entry.Bucket, target)
	}
	return nil
}

func planOrder(entry Requirement, line LineState) (Plan, error) {
	required := line.Required
	if !required.IsPositive() {
		return Plan{}, LineError(KindInvalidTransition, line.Ref, entry.Code, "line item no longer requires material")
	}

	previous := line.Status.Committed(required)
	received := line.Status.Received(required)
	committed := required
	if entry.IsAdditional {
		committed = decimal.Min(previous.Add(entry.AdditionalQuantity), required)
	}
	if received.IsPositive() && !committed.GreaterThan(received) {
		return Plan{}, LineError(KindInvalidTransition, line.Ref, entry.Code, "nothing left to order beyond the received %s", received)
	}

	baseID := BaseID(entry.ID)
	additionalID := AdditionalID(baseID)
	plan := Plan{Status: OrderedAfterReceipt(committed, received), Committed: committed}

	if !entry.IsAdditional {
		plan.Patches = append(plan.Patches, Remove(BucketRequired, entry.ID))
	}
	if required.GreaterThan(committed) {
		plan.Patches = append(plan.Patches, Upsert(remainderRow(entry, line, committed)))
	} else {
		plan.Patches = append(plan.Patches, Remove(BucketRequired, additionalID))
	}

	// With a received baseline the Ordered row is the additional one; otherwise
	// the remainder merges into the base row.
	ordered := orderedLine(lineRow(entry, line, baseID), committed, received)
	stale := additionalID
	if ordered.IsAdditional {
		stale = baseID
	}
	plan.Patches = append(plan.Patches, Remove(BucketOrdered, stale), Upsert(ordered))
	return plan, nil
}

func planReceive(entry Requirement, line LineState) (Plan, error) {
	if !line.Status.IsOrdered() {
		return Plan{}, LineError(KindInvalidTransition, line.Ref, entry.Code, "line item is %s, not ordered", line.Status.Kind)
	}

	required := line.Required
	committed := line.Status.Committed(required)
	baseID := BaseID(entry.ID)
	additionalID := AdditionalID(baseID)

	plan := Plan{
		Status:    Received(committed),
		Committed: committed,
		Patches:   []Patch{Remove(BucketOrdered, baseID), Remove(BucketOrdered, additionalID)},
	}
	if required.GreaterThan(committed) {
		plan.Patches = append(plan.Patches, Upsert(remainderRow(entry, line, committed)))
	} else {
		plan.Patches = append(plan.Patches, Remove(BucketRequired, additionalID))
	}
	return plan, nil
}

func planRevert(entry Requirement, line LineState) (Plan, error) {
	if !line.Status.IsOrdered() {
		return Plan{}, LineError(KindInvalidTransition, line.Ref, entry.Code, "line item is %s, not ordered", line.Status.Kind)
	}

	required := line.Required
	baseID := BaseID(entry.ID)
	additionalID := AdditionalID(baseID)

	plan := Plan{Status: Required()}
	plan.Patches = append(plan.Patches,
		Remove(BucketOrdered, baseID),
		Remove(BucketOrdered, additionalID),
	)

	// Reverting an order placed after a receipt goes back to the received
	// baseline, never further.
	if baseline := line.Status.Received(required); baseline.IsPositive() {
		plan.Status = Received(baseline)
		plan.Committed = baseline
		if required.GreaterThan(baseline) {
			plan.Patches = append(plan.Patches, Upsert(remainderRow(entry, line, baseline)))
		} else {
			plan.Patches = append(plan.Patches, Remove(BucketRequired, additionalID))
		}
		return plan, nil
	}

	plan.Patches = append(plan.Patches, Remove(BucketRequired, additionalID))
	if required.IsPositive() {
		plan.Patches = append(plan.Patches, Upsert(requiredRow(entry, line, baseID)))
	}
	return plan, nil
}

// PlanExpenseTransition computes the status write and view patches for a
// general expense. Expenses have no siblings, so there is no identity check
// and no remainder.
func PlanExpenseTransition(entry Requirement, expense ExpenseState, target Target) (Plan, error) {
	if err := checkSource(entry, target); err != nil {
		return Plan{}, err
	}

	row := entry
	row.Unit = expense.Unit
	row.Note = expense.Note
	row.RequiredQuantity = expense.Quantity
	row.ExpenseQuantity = expense.Quantity
	row.OrderedQuantity = decimal.Zero

	switch target {
	case TargetOrdered:
		row.Bucket = BucketOrdered
		row.OrderedQuantity = expense.Quantity
		return Plan{
			Status:    Ordered(expense.Quantity),
			Committed: expense.Quantity,
			Patches:   []Patch{Remove(BucketRequired, entry.ID), Upsert(row)},
		}, nil
	case TargetReceived:
		committed := expense.Status.Committed(expense.Quantity)
		return Plan{
			Status:    Received(committed),
			Committed: committed,
			Patches:   []Patch{Remove(BucketOrdered, entry.ID)},
		}, nil
	case TargetRequired:
		row.Bucket = BucketRequired
		return Plan{
			Status:  Required(),
			Patches: []Patch{Remove(BucketOrdered, entry.ID), Upsert(row)},
		}, nil
	}
	return Plan{}, Errorf(KindInvalidTransition, "unknown target state %q", target)
}

func lineRow(entry Requirement, line LineState, id string) Requirement {
	ref := line.Ref
	return Requirement{
		ID:               id,
		Supplier:         entry.Supplier,
		Code:             entry.Code,
		Unit:             line.Unit,
		Note:             line.Note,
		Ref:              &ref,
		OrderNumber:      entry.OrderNumber,
		Customer:         entry.Customer,
		RequiredQuantity: line.Required,
	}
}

func requiredRow(entry Requirement, line LineState, id string) Requirement {
	row := lineRow(entry, line, id)
	row.Bucket = BucketRequired
	return row
}

func remainderRow(entry Requirement, line LineState, committed decimal.Decimal) Requirement {
	return additionalRow(lineRow(entry, line, BaseID(entry.ID)), committed)
}
