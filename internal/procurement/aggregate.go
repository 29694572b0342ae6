package procurement

import (
	"sort"
	"strings"

	"example.com/backstage/services/procurement/internal/models"
	"github.com/shopspring/decimal"
)

// SupplierPriorities maps a normalized supplier name to its display order
type SupplierPriorities map[string]int

// NewSupplierPriorities builds the priority table from the companies list
func NewSupplierPriorities(companies []models.Company) SupplierPriorities {
	p := make(SupplierPriorities, len(companies))
	for _, c := range companies {
		name := normalizeSupplier(c.Name)
		if name == "" {
			continue
		}
		if existing, ok := p[name]; ok && existing <= c.DisplayOrder {
			continue
		}
		p[name] = c.DisplayOrder
	}
	return p
}

// Lookup returns the priority of supplier, matched case-insensitively
func (p SupplierPriorities) Lookup(supplier string) (int, bool) {
	priority, ok := p[normalizeSupplier(supplier)]
	return priority, ok
}

func normalizeSupplier(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CodeGroup is every row of one supplier for one material code
type CodeGroup struct {
	Key           GroupKey        `json:"key"`
	Members       []Requirement   `json:"members"`
	TotalQuantity decimal.Decimal `json:"total_quantity"`
	OrderCount    int             `json:"order_count"`
}

// SupplierGroup is one supplier's code groups
type SupplierGroup struct {
	Supplier string      `json:"supplier"`
	Priority *int        `json:"priority,omitempty"`
	Groups   []CodeGroup `json:"groups"`
}

// Aggregate groups one bucket's rows by supplier, then by material code.
// Suppliers with a known priority come first in priority order; ties and
// unknown suppliers fall back to alphabetical order.
func Aggregate(rows []Requirement, priorities SupplierPriorities) []SupplierGroup {
	bySupplier := make(map[string]*SupplierGroup)
	codeIndex := make(map[GroupKey]int)
	var suppliers []*SupplierGroup

	for _, row := range rows {
		sg, ok := bySupplier[row.Supplier]
		if !ok {
			sg = &SupplierGroup{Supplier: row.Supplier}
			if priority, known := priorities.Lookup(row.Supplier); known {
				p := priority
				sg.Priority = &p
			}
			bySupplier[row.Supplier] = sg
			suppliers = append(suppliers, sg)
		}

		key := row.Key()
		idx, ok := codeIndex[key]
		if !ok {
			idx = len(sg.Groups)
			codeIndex[key] = idx
			sg.Groups = append(sg.Groups, CodeGroup{Key: key})
		}
		sg.Groups[idx].Members = append(sg.Groups[idx].Members, row)
	}

	result := make([]SupplierGroup, 0, len(suppliers))
	for _, sg := range suppliers {
		for i := range sg.Groups {
			sg.Groups[i].TotalQuantity = totalQuantity(sg.Groups[i].Members)
			sg.Groups[i].OrderCount = orderCount(sg.Groups[i].Members)
		}
		sort.SliceStable(sg.Groups, func(i, j int) bool {
			return sg.Groups[i].Key.Code < sg.Groups[j].Key.Code
		})
		result = append(result, *sg)
	}

	sort.SliceStable(result, func(i, j int) bool {
		a, b := result[i], result[j]
		switch {
		case a.Priority != nil && b.Priority != nil && *a.Priority != *b.Priority:
			return *a.Priority < *b.Priority
		case a.Priority != nil && b.Priority == nil:
			return true
		case a.Priority == nil && b.Priority != nil:
			return false
		}
		return strings.ToLower(a.Supplier) < strings.ToLower(b.Supplier)
	})

	return result
}

// totalQuantity sums exactly what each member displays
func totalQuantity(members []Requirement) decimal.Decimal {
	total := decimal.Zero
	for _, m := range members {
		total = total.Add(m.DisplayQuantity())
	}
	return total
}

func orderCount(members []Requirement) int {
	seen := make(map[string]struct{})
	for _, m := range members {
		if m.Ref != nil {
			seen[m.Ref.OrderID] = struct{}{}
		}
	}
	return len(seen)
}

// FindGroup returns the code group for key, if any
func FindGroup(tree []SupplierGroup, key GroupKey) (CodeGroup, bool) {
	for _, sg := range tree {
		if sg.Supplier != key.Supplier {
			continue
		}
		for _, g := range sg.Groups {
			if g.Key == key {
				return g, true
			}
		}
	}
	return CodeGroup{}, false
}
