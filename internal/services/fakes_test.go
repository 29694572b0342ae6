package services

import (
	"context"
	"sort"
	"sync"

	"example.com/backstage/services/procurement/internal/models"
	"example.com/backstage/services/procurement/internal/notify"
	"example.com/backstage/services/procurement/internal/repositories"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/mock"
)

// memOrders is an in-memory OrderStore
type memOrders struct {
	mu         sync.Mutex
	orders     map[string]*models.WorkOrder
	gets       int
	replaces   int
	replaceErr error
}

func newMemOrders(orders ...models.WorkOrder) *memOrders {
	m := &memOrders{orders: make(map[string]*models.WorkOrder)}
	for i := range orders {
		m.put(orders[i])
	}
	return m
}

func cloneOrder(o *models.WorkOrder) *models.WorkOrder {
	c := *o
	c.Items = make([]models.LineItem, len(o.Items))
	copy(c.Items, o.Items)
	return &c
}

func (m *memOrders) put(o models.WorkOrder) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orders[o.ID] = cloneOrder(&o)
}

func (m *memOrders) remove(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.orders, id)
}

// edit changes a stored line item in place, as order management would
func (m *memOrders) edit(id string, position int, fn func(*models.LineItem)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(&m.orders[id].Items[position])
}

func (m *memOrders) item(id string, position int) models.LineItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.orders[id].Items[position]
}

func (m *memOrders) ListActive(ctx context.Context) ([]models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.orders))
	for id := range m.orders {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var orders []models.WorkOrder
	for _, id := range ids {
		if !m.orders[id].IsTerminal() {
			orders = append(orders, *cloneOrder(m.orders[id]))
		}
	}
	return orders, nil
}

func (m *memOrders) Get(ctx context.Context, id string) (*models.WorkOrder, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	o, ok := m.orders[id]
	if !ok {
		return nil, errors.Wrap(repositories.ErrNotFound, "failed to get work order "+id)
	}
	return cloneOrder(o), nil
}

func (m *memOrders) ReplaceLineItems(ctx context.Context, orderID string, items []models.LineItem) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	o, ok := m.orders[orderID]
	if !ok {
		return errors.Wrap(repositories.ErrNotFound, "failed to replace line items of "+orderID)
	}
	m.replaces++
	o.Items = make([]models.LineItem, len(items))
	copy(o.Items, items)
	for i := range o.Items {
		o.Items[i].WorkOrderID = orderID
		o.Items[i].Position = i
	}
	return nil
}

// memExpenses is an in-memory ExpenseStore
type memExpenses struct {
	mu       sync.Mutex
	expenses map[uuid.UUID]*models.ExternalExpense
	order    []uuid.UUID
}

func newMemExpenses() *memExpenses {
	return &memExpenses{expenses: make(map[uuid.UUID]*models.ExternalExpense)}
}

func (m *memExpenses) List(ctx context.Context) ([]models.ExternalExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ExternalExpense
	for _, id := range m.order {
		if e, ok := m.expenses[id]; ok {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *memExpenses) Get(ctx context.Context, id uuid.UUID) (*models.ExternalExpense, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok {
		return nil, errors.Wrap(repositories.ErrNotFound, "failed to get expense")
	}
	c := *e
	return &c, nil
}

func (m *memExpenses) Create(ctx context.Context, expense *models.ExternalExpense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if expense.ID == uuid.Nil {
		expense.ID = uuid.New()
	}
	c := *expense
	m.expenses[expense.ID] = &c
	m.order = append(m.order, expense.ID)
	return nil
}

func (m *memExpenses) Update(ctx context.Context, expense *models.ExternalExpense) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[expense.ID]; !ok {
		return errors.Wrap(repositories.ErrNotFound, "failed to update expense")
	}
	c := *expense
	m.expenses[expense.ID] = &c
	return nil
}

func (m *memExpenses) UpdateStatus(ctx context.Context, id uuid.UUID, status *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.expenses[id]
	if !ok {
		return errors.Wrap(repositories.ErrNotFound, "failed to update expense status")
	}
	e.ProcurementStatus = status
	return nil
}

func (m *memExpenses) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.expenses[id]; !ok {
		return errors.Wrap(repositories.ErrNotFound, "failed to delete expense")
	}
	delete(m.expenses, id)
	return nil
}

func (m *memExpenses) status(id uuid.UUID) *string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.expenses[id].ProcurementStatus
}

type memCompanies struct {
	companies []models.Company
	lists     int
}

func (m *memCompanies) List(ctx context.Context) ([]models.Company, error) {
	m.lists++
	return m.companies, nil
}

type memLog struct {
	mu     sync.Mutex
	events []models.TransitionEvent
}

func (m *memLog) Append(ctx context.Context, event *models.TransitionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *event)
	return nil
}

func (m *memLog) ListForOrder(ctx context.Context, orderID string, limit int) ([]models.TransitionEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransitionEvent
	for i := len(m.events) - 1; i >= 0 && len(out) < limit; i-- {
		if e := m.events[i]; e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, e)
		}
	}
	return out, nil
}

// MockPublisher is a mock implementation of messaging.Publisher
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, eventType string, body interface{}) error {
	args := m.Called(ctx, eventType, body)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *recordingNotifier) Notify(evt notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, evt)
}

func (n *recordingNotifier) last() notify.Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.events[len(n.events)-1]
}
