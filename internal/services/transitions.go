package services

import (
	"context"
	"time"

	"example.com/backstage/services/procurement/internal/messaging"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/procurement"
	"example.com/backstage/services/procurement/internal/repositories"

	"github.com/google/uuid"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// TransitionResult describes one applied transition
type TransitionResult struct {
	EntryID   string             `json:"entry_id"`
	Target    procurement.Target `json:"target"`
	Status    *string            `json:"status"`
	Committed decimal.Decimal    `json:"committed"`
}

// BulkResult reports how far a group transition got. Superseded members were
// removed from the view by an earlier member's transition. Remaining members
// were not attempted because Failed returned an error.
type BulkResult struct {
	Group      procurement.GroupKey `json:"group"`
	Target     procurement.Target   `json:"target"`
	Applied    []string             `json:"applied"`
	Superseded []string             `json:"superseded"`
	Failed     string               `json:"failed,omitempty"`
	Remaining  []string             `json:"remaining"`
}

// Transition moves a single entry to target. The backing record is re-read
// from the primary store before anything is written.
func (s *ProcurementService) Transition(ctx context.Context, entryID string, target procurement.Target) (result TransitionResult, err error) {
	start := time.Now()
	defer func() { s.metrics.Track(metrics.Transitions, start, err) }()

	txn := s.tracer.StartTransaction("transition-requirement")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "entry_id", entryID)
	s.tracer.AddAttribute(txn, "target", string(target))

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := lookup(s.currentView(), entryID, target)
	if err != nil {
		return TransitionResult{}, err
	}

	result, err = s.apply(ctx, txn, entry, target)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return TransitionResult{}, err
	}
	return result, nil
}

// BulkTransition applies target to every member of a group in view order,
// one member at a time with the same validation as Transition. The run stops
// at the first error and nothing already applied is rolled back.
func (s *ProcurementService) BulkTransition(ctx context.Context, key procurement.GroupKey, target procurement.Target) (result BulkResult, err error) {
	start := time.Now()
	defer func() { s.metrics.Track(metrics.BulkTransitions, start, err) }()

	txn := s.tracer.StartTransaction("bulk-transition-requirements")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "group", key.String())
	s.tracer.AddAttribute(txn, "target", string(target))

	s.mu.Lock()
	defer s.mu.Unlock()

	result = BulkResult{
		Group:      key,
		Target:     target,
		Applied:    []string{},
		Superseded: []string{},
		Remaining:  []string{},
	}

	bucket := target.SourceBucket()
	members := s.currentView().Members(bucket, key)
	if len(members) == 0 {
		return result, procurement.Errorf(procurement.KindNotFound, "group %s has no %s entries", key, bucket)
	}

	for i, member := range members {
		entry, ok := s.currentView().Get(bucket, member.ID)
		if !ok {
			result.Superseded = append(result.Superseded, member.ID)
			continue
		}

		if _, err := s.apply(ctx, txn, entry, target); err != nil {
			result.Failed = member.ID
			for _, rest := range members[i+1:] {
				result.Remaining = append(result.Remaining, rest.ID)
			}
			s.tracer.RecordError(txn, err)
			log.Warn().Err(err).
				Str("group", key.String()).
				Str("entry_id", member.ID).
				Int("applied", len(result.Applied)).
				Int("remaining", len(result.Remaining)).
				Msg("Bulk transition stopped")
			return result, err
		}
		result.Applied = append(result.Applied, member.ID)
	}

	log.Info().
		Str("group", key.String()).
		Str("target", string(target)).
		Int("applied", len(result.Applied)).
		Int("superseded", len(result.Superseded)).
		Msg("Bulk transition completed")
	return result, nil
}

func lookup(view procurement.View, entryID string, target procurement.Target) (procurement.Requirement, error) {
	source := target.SourceBucket()
	if entry, ok := view.Get(source, entryID); ok {
		return entry, nil
	}

	other := procurement.BucketOrdered
	if source == procurement.BucketOrdered {
		other = procurement.BucketRequired
	}
	if _, ok := view.Get(other, entryID); ok {
		return procurement.Requirement{}, procurement.Errorf(procurement.KindInvalidTransition,
			"entry %s is %s and cannot move to %s", entryID, other, target)
	}
	return procurement.Requirement{}, procurement.Errorf(procurement.KindNotFound, "entry %s is not tracked", entryID)
}

// apply runs the write protocol for one entry and patches the view. Callers
// hold s.mu.
func (s *ProcurementService) apply(ctx context.Context, txn *newrelic.Transaction, entry procurement.Requirement, target procurement.Target) (TransitionResult, error) {
	var (
		plan  procurement.Plan
		event *models.TransitionEvent
		err   error
	)
	if entry.IsGeneralExpense {
		plan, event, err = s.applyExpense(ctx, txn, entry, target)
	} else {
		plan, event, err = s.applyLine(ctx, txn, entry, target)
	}
	if err != nil {
		return TransitionResult{}, err
	}

	view := procurement.ApplyAll(s.currentView(), plan.Patches)
	s.setView(view)

	log.Info().
		Str("entry_id", entry.ID).
		Str("supplier", entry.Supplier).
		Str("code", entry.Code).
		Str("target", string(target)).
		Str("committed", plan.Committed.String()).
		Msg("Requirement transitioned")

	s.record(ctx, event)
	s.notify(notify.Event{
		Type:     notify.RequirementsChanged,
		EntryID:  entry.ID,
		OrderID:  stringValue(event.OrderID),
		Supplier: entry.Supplier,
		Code:     entry.Code,
		Target:   string(target),
	}, view)

	return TransitionResult{
		EntryID:   entry.ID,
		Target:    target,
		Status:    event.ToStatus,
		Committed: plan.Committed,
	}, nil
}

func (s *ProcurementService) applyLine(ctx context.Context, txn *newrelic.Transaction, entry procurement.Requirement, target procurement.Target) (procurement.Plan, *models.TransitionEvent, error) {
	if entry.Ref == nil {
		return procurement.Plan{}, nil, procurement.Errorf(procurement.KindInternal, "entry %s has no line item reference", entry.ID)
	}
	ref := *entry.Ref

	span := s.tracer.StartSpan("reload-order", txn)
	order, err := s.orders.Get(ctx, ref.OrderID)
	span.End()
	if errors.Is(err, repositories.ErrNotFound) {
		return procurement.Plan{}, nil, procurement.LineError(procurement.KindNotFound, ref, entry.Code, "work order not found")
	}
	if err != nil {
		return procurement.Plan{}, nil, errors.Wrapf(err, "failed to reload work order %s", ref.OrderID)
	}
	if order.IsTerminal() {
		return procurement.Plan{}, nil, procurement.LineError(procurement.KindInvalidTransition, ref, entry.Code,
			"work order is %s", order.Status)
	}

	// Positions are indexes into the item sequence as loaded, the same
	// numbering extraction used. The stored column may have gaps.
	idx := ref.Position
	if idx < 0 || idx >= len(order.Items) {
		return procurement.Plan{}, nil, procurement.LineError(procurement.KindNotFound, ref, entry.Code, "line item not found")
	}
	item := order.Items[idx]

	line := procurement.LineState{
		Ref:      ref,
		Supplier: item.Supplier,
		Code:     item.Code,
		Unit:     item.Unit,
		Note:     item.Note,
		Required: item.Quantity,
		Status:   procurement.DecodeStatus(item.ProcurementStatus),
	}
	plan, err := procurement.PlanLineTransition(entry, line, target)
	if err != nil {
		if procurement.KindOf(err) == procurement.KindIdentityMismatch {
			s.metrics.IncrementCounter(metrics.IdentityMismatch)
			log.Warn().Err(err).Str("entry_id", entry.ID).Str("order_id", ref.OrderID).Int("position", ref.Position).Msg("Line item identity mismatch")
		}
		return procurement.Plan{}, nil, err
	}

	status := procurement.EncodeStatus(plan.Status)
	items := make([]models.LineItem, len(order.Items))
	copy(items, order.Items)
	items[idx].ProcurementStatus = status

	span = s.tracer.StartSpan("persist-line-items", txn)
	err = s.orders.ReplaceLineItems(ctx, ref.OrderID, items)
	span.End()
	if errors.Is(err, repositories.ErrNotFound) {
		return procurement.Plan{}, nil, procurement.LineError(procurement.KindNotFound, ref, entry.Code, "work order not found")
	}
	if err != nil {
		return procurement.Plan{}, nil, errors.Wrapf(err, "failed to write status of %s", ref)
	}

	orderID, position := ref.OrderID, ref.Position
	return plan, &models.TransitionEvent{
		EntryID:    entry.ID,
		OrderID:    &orderID,
		Position:   &position,
		Supplier:   entry.Supplier,
		Code:       entry.Code,
		Target:     string(target),
		FromStatus: item.ProcurementStatus,
		ToStatus:   status,
		Quantity:   plan.Committed,
	}, nil
}

func (s *ProcurementService) applyExpense(ctx context.Context, txn *newrelic.Transaction, entry procurement.Requirement, target procurement.Target) (procurement.Plan, *models.TransitionEvent, error) {
	id, err := uuid.Parse(entry.ExpenseID)
	if err != nil {
		return procurement.Plan{}, nil, procurement.Errorf(procurement.KindInternal, "entry %s has an invalid expense id", entry.ID)
	}

	span := s.tracer.StartSpan("reload-expense", txn)
	expense, err := s.expenses.Get(ctx, id)
	span.End()
	if errors.Is(err, repositories.ErrNotFound) {
		return procurement.Plan{}, nil, procurement.Errorf(procurement.KindNotFound, "expense %s not found", id)
	}
	if err != nil {
		return procurement.Plan{}, nil, errors.Wrapf(err, "failed to reload expense %s", id)
	}

	plan, err := procurement.PlanExpenseTransition(entry, procurement.ExpenseState{
		Quantity: expense.Quantity,
		Unit:     expense.Unit,
		Note:     expense.Note,
		Status:   procurement.DecodeStatus(expense.ProcurementStatus),
	}, target)
	if err != nil {
		return procurement.Plan{}, nil, err
	}

	status := procurement.EncodeStatus(plan.Status)
	span = s.tracer.StartSpan("persist-expense-status", txn)
	err = s.expenses.UpdateStatus(ctx, id, status)
	span.End()
	if errors.Is(err, repositories.ErrNotFound) {
		return procurement.Plan{}, nil, procurement.Errorf(procurement.KindNotFound, "expense %s not found", id)
	}
	if err != nil {
		return procurement.Plan{}, nil, errors.Wrapf(err, "failed to write status of expense %s", id)
	}

	return plan, &models.TransitionEvent{
		EntryID:    entry.ID,
		ExpenseID:  &id,
		Supplier:   entry.Supplier,
		Code:       entry.Code,
		Target:     string(target),
		FromStatus: expense.ProcurementStatus,
		ToStatus:   status,
		Quantity:   plan.Committed,
	}, nil
}

// record appends the event to the transition log and publishes it. Neither
// failure undoes the transition.
func (s *ProcurementService) record(ctx context.Context, event *models.TransitionEvent) {
	if s.transitions != nil {
		if err := s.transitions.Append(ctx, event); err != nil {
			log.Error().Err(err).Str("entry_id", event.EntryID).Msg("Failed to append transition event")
		}
	}

	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, messaging.RequirementTransitioned, event); err != nil {
		s.metrics.RecordError(metrics.EventsPublished)
		log.Error().Err(err).Str("entry_id", event.EntryID).Msg("Failed to publish transition event")
		return
	}
	s.metrics.RecordSuccess(metrics.EventsPublished)
}

func stringValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
