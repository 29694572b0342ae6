package services

import (
	"context"
	"sync"
	"time"

	"example.com/backstage/services/procurement/internal/cache"
	"example.com/backstage/services/procurement/internal/messaging"
	"example.com/backstage/services/procurement/internal/metrics"
	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/procurement"
	"example.com/backstage/services/procurement/internal/repositories"
	"example.com/backstage/services/procurement/internal/tracing"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// OrderStore is the order-management collaborator
type OrderStore interface {
	ListActive(ctx context.Context) ([]models.WorkOrder, error)
	Get(ctx context.Context, id string) (*models.WorkOrder, error)
	ReplaceLineItems(ctx context.Context, orderID string, items []models.LineItem) error
}

// ExpenseStore persists general expenses
type ExpenseStore interface {
	List(ctx context.Context) ([]models.ExternalExpense, error)
	Get(ctx context.Context, id uuid.UUID) (*models.ExternalExpense, error)
	Create(ctx context.Context, expense *models.ExternalExpense) error
	Update(ctx context.Context, expense *models.ExternalExpense) error
	UpdateStatus(ctx context.Context, id uuid.UUID, status *string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

// CompanyStore lists the suppliers with a display priority
type CompanyStore interface {
	List(ctx context.Context) ([]models.Company, error)
}

// TransitionLog records applied transitions
type TransitionLog interface {
	Append(ctx context.Context, event *models.TransitionEvent) error
	ListForOrder(ctx context.Context, orderID string, limit int) ([]models.TransitionEvent, error)
}

// SnapshotIndexer receives the full view for search
type SnapshotIndexer interface {
	IndexSnapshot(ctx context.Context, rows []procurement.Requirement, snapshotAt time.Time) error
}

var (
	_ OrderStore    = (*repositories.OrderRepository)(nil)
	_ ExpenseStore  = (*repositories.ExpenseRepository)(nil)
	_ CompanyStore  = (*repositories.CompanyRepository)(nil)
	_ TransitionLog = (*repositories.TransitionRepository)(nil)
)

// ProcurementService owns the Required/Ordered view and every mutation of it
type ProcurementService struct {
	orders      OrderStore
	expenses    ExpenseStore
	companies   CompanyStore
	transitions TransitionLog

	cache     *cache.RedisCache
	publisher messaging.Publisher
	notifier  notify.Notifier
	indexer   SnapshotIndexer
	metrics   *metrics.Metrics
	tracer    tracing.Tracer
	validate  *validator.Validate

	// mu serializes writers: refreshes, transitions and expense edits
	mu sync.Mutex

	viewMu      sync.RWMutex
	view        procurement.View
	priorities  procurement.SupplierPriorities
	refreshedAt time.Time
}

// Option configures optional collaborators of the service
type Option func(*ProcurementService)

// WithCache caches supplier priorities in Redis
func WithCache(c *cache.RedisCache) Option {
	return func(s *ProcurementService) { s.cache = c }
}

// WithPublisher publishes transition events
func WithPublisher(p messaging.Publisher) Option {
	return func(s *ProcurementService) { s.publisher = p }
}

// WithNotifier pushes view changes to connected consoles
func WithNotifier(n notify.Notifier) Option {
	return func(s *ProcurementService) { s.notifier = n }
}

// WithIndexer enables IndexSnapshot
func WithIndexer(i SnapshotIndexer) Option {
	return func(s *ProcurementService) { s.indexer = i }
}

// WithMetrics records service metrics into m
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *ProcurementService) { s.metrics = m }
}

// WithTracer traces service calls
func WithTracer(t tracing.Tracer) Option {
	return func(s *ProcurementService) { s.tracer = t }
}

// NewProcurementService creates a new procurement service. The view is empty
// until the first Refresh.
func NewProcurementService(
	orders OrderStore,
	expenses ExpenseStore,
	companies CompanyStore,
	transitions TransitionLog,
	opts ...Option,
) *ProcurementService {
	s := &ProcurementService{
		orders:      orders,
		expenses:    expenses,
		companies:   companies,
		transitions: transitions,
		cache:       cache.Disabled(),
		metrics:     metrics.NewMetrics(),
		tracer:      tracing.Disabled(),
		validate:    newValidator(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Refresh rebuilds the whole view from the stores
func (s *ProcurementService) Refresh(ctx context.Context) (err error) {
	start := time.Now()
	defer func() { s.metrics.Track(metrics.Refreshes, start, err) }()

	txn := s.tracer.StartTransaction("refresh-requirements")
	defer s.tracer.EndTransaction(txn)

	s.mu.Lock()
	defer s.mu.Unlock()

	span := s.tracer.StartSpan("load-orders", txn)
	orders, err := s.orders.ListActive(ctx)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load work orders")
	}

	span = s.tracer.StartSpan("load-expenses", txn)
	expenses, err := s.expenses.List(ctx)
	span.End()
	if err != nil {
		s.tracer.RecordError(txn, err)
		return errors.Wrap(err, "failed to load expenses")
	}

	priorities, err := s.loadPriorities(ctx)
	if err != nil {
		s.tracer.RecordError(txn, err)
		return err
	}

	view := procurement.Reconcile(orders, expenses)

	s.viewMu.Lock()
	s.view = view
	s.priorities = priorities
	s.refreshedAt = time.Now().UTC()
	s.viewMu.Unlock()

	s.recordSize(view)
	log.Info().
		Int("orders", len(orders)).
		Int("expenses", len(expenses)).
		Int("required", view.Len(procurement.BucketRequired)).
		Int("ordered", view.Len(procurement.BucketOrdered)).
		Dur("duration", time.Since(start)).
		Msg("Requirements refreshed")

	s.notify(notify.Event{Type: notify.ViewRefreshed}, view)
	return nil
}

// RefreshOrder re-extracts a single order after it changed elsewhere. A
// missing or terminal order is dropped from the view.
func (s *ProcurementService) RefreshOrder(ctx context.Context, orderID string) error {
	txn := s.tracer.StartTransaction("refresh-order")
	defer s.tracer.EndTransaction(txn)
	s.tracer.AddAttribute(txn, "order_id", orderID)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.metrics.IncrementCounter(metrics.OrderChangesSeen)

	var rows []procurement.Requirement
	order, err := s.orders.Get(ctx, orderID)
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		log.Info().Str("order_id", orderID).Msg("Order no longer exists, dropping its requirements")
	case err != nil:
		s.tracer.RecordError(txn, err)
		return errors.Wrapf(err, "failed to reload work order %s", orderID)
	default:
		rows = procurement.ExtractOrder(order)
	}

	view := procurement.ReplaceOrder(s.currentView(), orderID, rows)
	s.setView(view)

	log.Debug().Str("order_id", orderID).Int("rows", len(rows)).Msg("Order requirements replaced")
	s.notify(notify.Event{Type: notify.RequirementsChanged, OrderID: orderID}, view)
	return nil
}

// RequiredView returns the Required bucket grouped by supplier and code
func (s *ProcurementService) RequiredView() []procurement.SupplierGroup {
	return s.Tree(procurement.BucketRequired)
}

// OrderedView returns the Ordered bucket grouped by supplier and code
func (s *ProcurementService) OrderedView() []procurement.SupplierGroup {
	return s.Tree(procurement.BucketOrdered)
}

// Tree aggregates bucket b of the current view
func (s *ProcurementService) Tree(b procurement.Bucket) []procurement.SupplierGroup {
	s.viewMu.RLock()
	view, priorities := s.view, s.priorities
	s.viewMu.RUnlock()
	return procurement.Aggregate(view.Rows(b), priorities)
}

// Snapshot returns every row of the current view, Required first, and the
// time of the last full refresh.
func (s *ProcurementService) Snapshot() ([]procurement.Requirement, time.Time) {
	s.viewMu.RLock()
	view, at := s.view, s.refreshedAt
	s.viewMu.RUnlock()
	rows := view.Rows(procurement.BucketRequired)
	return append(rows, view.Rows(procurement.BucketOrdered)...), at
}

// IndexSnapshot pushes the current view to the search index. A no-op
// without an indexer.
func (s *ProcurementService) IndexSnapshot(ctx context.Context) (err error) {
	if s.indexer == nil {
		return nil
	}
	start := time.Now()
	defer func() { s.metrics.Track(metrics.SnapshotsIndexed, start, err) }()

	rows, _ := s.Snapshot()
	if err := s.indexer.IndexSnapshot(ctx, rows, time.Now().UTC()); err != nil {
		return errors.Wrap(err, "failed to index requirement snapshot")
	}
	return nil
}

// ListTransitions returns the most recent transitions applied to an order
func (s *ProcurementService) ListTransitions(ctx context.Context, orderID string, limit int) ([]models.TransitionEvent, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	events, err := s.transitions.ListForOrder(ctx, orderID, limit)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list transitions for order %s", orderID)
	}
	return events, nil
}

func (s *ProcurementService) loadPriorities(ctx context.Context) (procurement.SupplierPriorities, error) {
	var priorities procurement.SupplierPriorities
	err := s.cache.Get(ctx, cache.SupplierPrioritiesKey, &priorities)
	if err == nil {
		s.metrics.IncrementCounter(metrics.SupplierCacheHits)
		return priorities, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		log.Warn().Err(err).Msg("Failed to read supplier priorities from cache")
	}

	companies, err := s.companies.List(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load companies")
	}
	priorities = procurement.NewSupplierPriorities(companies)

	if err := s.cache.Set(ctx, cache.SupplierPrioritiesKey, priorities, 0); err != nil {
		log.Warn().Err(err).Msg("Failed to cache supplier priorities")
	}
	return priorities, nil
}

func (s *ProcurementService) currentView() procurement.View {
	s.viewMu.RLock()
	defer s.viewMu.RUnlock()
	return s.view
}

func (s *ProcurementService) setView(view procurement.View) {
	s.viewMu.Lock()
	s.view = view
	s.viewMu.Unlock()
	s.recordSize(view)
}

func (s *ProcurementService) recordSize(view procurement.View) {
	s.metrics.SetGauge(metrics.RequiredEntries, int64(view.Len(procurement.BucketRequired)))
	s.metrics.SetGauge(metrics.OrderedEntries, int64(view.Len(procurement.BucketOrdered)))
}

func (s *ProcurementService) notify(evt notify.Event, view procurement.View) {
	if s.notifier == nil {
		return
	}
	evt.Required = view.Len(procurement.BucketRequired)
	evt.Ordered = view.Len(procurement.BucketOrdered)
	s.notifier.Notify(evt)
}
