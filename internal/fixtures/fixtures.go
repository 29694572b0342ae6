// Package fixtures loads work orders, suppliers and expenses from YAML so a
// console can be seeded without the order-management service.
package fixtures

import (
	"context"
	"io"
	"strings"

	"example.com/backstage/services/procurement/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// File is the YAML document layout
type File struct {
	Companies []Company `yaml:"companies"`
	Orders    []Order   `yaml:"orders"`
	Expenses  []Expense `yaml:"expenses"`
}

// Company fixture
type Company struct {
	Name         string `yaml:"name"`
	DisplayOrder int    `yaml:"display_order"`
}

// Order fixture. Items are stored in the listed order.
type Order struct {
	ID       string `yaml:"id"`
	Number   string `yaml:"number"`
	Customer string `yaml:"customer"`
	Status   string `yaml:"status"`
	Items    []Item `yaml:"items"`
}

// Item fixture. Quantity is a decimal string.
type Item struct {
	Supplier string  `yaml:"supplier"`
	Code     string  `yaml:"code"`
	Quantity string  `yaml:"quantity"`
	Unit     string  `yaml:"unit"`
	Status   *string `yaml:"status"`
	Note     string  `yaml:"note"`
}

// Expense fixture
type Expense struct {
	ID       string  `yaml:"id"`
	Supplier string  `yaml:"supplier"`
	Code     string  `yaml:"code"`
	Quantity string  `yaml:"quantity"`
	Unit     string  `yaml:"unit"`
	Price    string  `yaml:"price"`
	Tax      string  `yaml:"tax"`
	Status   *string `yaml:"status"`
	Note     string  `yaml:"note"`
}

// Set is a decoded fixture file
type Set struct {
	Companies []models.Company
	Orders    []models.WorkOrder
	Expenses  []models.ExternalExpense
}

// Load decodes a fixture document
func Load(r io.Reader) (*Set, error) {
	var file File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "failed to decode fixtures")
	}

	set := &Set{}
	for _, c := range file.Companies {
		if strings.TrimSpace(c.Name) == "" {
			return nil, errors.New("company without a name")
		}
		set.Companies = append(set.Companies, models.Company{Name: strings.TrimSpace(c.Name), DisplayOrder: c.DisplayOrder})
	}

	for _, o := range file.Orders {
		order, err := o.model()
		if err != nil {
			return nil, err
		}
		set.Orders = append(set.Orders, order)
	}

	for i, e := range file.Expenses {
		expense, err := e.model()
		if err != nil {
			return nil, errors.Wrapf(err, "expense %d", i+1)
		}
		set.Expenses = append(set.Expenses, expense)
	}
	return set, nil
}

func (o Order) model() (models.WorkOrder, error) {
	if strings.TrimSpace(o.ID) == "" {
		return models.WorkOrder{}, errors.New("order without an id")
	}
	order := models.WorkOrder{
		ID:       strings.TrimSpace(o.ID),
		Number:   o.Number,
		Customer: o.Customer,
		Status:   o.Status,
	}
	if order.Status == "" {
		order.Status = "new"
	}
	for position, item := range o.Items {
		quantity, err := parseDecimal(item.Quantity)
		if err != nil {
			return models.WorkOrder{}, errors.Wrapf(err, "order %s item %d", order.ID, position+1)
		}
		order.Items = append(order.Items, models.LineItem{
			WorkOrderID:       order.ID,
			Position:          position,
			Supplier:          item.Supplier,
			Code:              item.Code,
			Quantity:          quantity,
			Unit:              item.Unit,
			ProcurementStatus: item.Status,
			Note:              item.Note,
		})
	}
	return order, nil
}

func (e Expense) model() (models.ExternalExpense, error) {
	expense := models.ExternalExpense{
		Supplier:          e.Supplier,
		Code:              e.Code,
		Unit:              e.Unit,
		ProcurementStatus: e.Status,
		Note:              e.Note,
	}
	if e.ID != "" {
		id, err := uuid.Parse(e.ID)
		if err != nil {
			return expense, errors.Wrap(err, "invalid id")
		}
		expense.ID = id
	}

	var err error
	if expense.Quantity, err = parseDecimal(e.Quantity); err != nil {
		return expense, errors.Wrap(err, "quantity")
	}
	if expense.Price, err = parseDecimal(e.Price); err != nil {
		return expense, errors.Wrap(err, "price")
	}
	if expense.Tax, err = parseDecimal(e.Tax); err != nil {
		return expense, errors.Wrap(err, "tax")
	}
	return expense, nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "invalid quantity %q", s)
	}
	return d, nil
}

// OrderSaver stores work orders with their line items
type OrderSaver interface {
	Save(ctx context.Context, order *models.WorkOrder) error
}

// CompanyUpserter stores suppliers by name
type CompanyUpserter interface {
	Upsert(ctx context.Context, company *models.Company) error
}

// ExpenseCreator stores new expenses
type ExpenseCreator interface {
	Create(ctx context.Context, expense *models.ExternalExpense) error
}

// Counts reports what Import wrote
type Counts struct {
	Companies int
	Orders    int
	Expenses  int
}

// Import writes the set. Companies go first so priorities exist before orders
// reference them.
func Import(ctx context.Context, set *Set, companies CompanyUpserter, orders OrderSaver, expenses ExpenseCreator) (Counts, error) {
	var counts Counts
	for i := range set.Companies {
		if err := companies.Upsert(ctx, &set.Companies[i]); err != nil {
			return counts, errors.Wrapf(err, "failed to import company %s", set.Companies[i].Name)
		}
		counts.Companies++
	}
	for i := range set.Orders {
		if err := orders.Save(ctx, &set.Orders[i]); err != nil {
			return counts, errors.Wrapf(err, "failed to import order %s", set.Orders[i].ID)
		}
		counts.Orders++
	}
	for i := range set.Expenses {
		if err := expenses.Create(ctx, &set.Expenses[i]); err != nil {
			return counts, errors.Wrapf(err, "failed to import expense %d", i+1)
		}
		counts.Expenses++
	}
	return counts, nil
}
