package procurement

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Persisted markers on a line item or expense procurement-status field.
const (
	orderedMarker  = "Ordered"
	receivedMarker = "Received"
	quantitySep    = ":"
	partSep        = ";"
)

// StatusKind is the procurement state carried by a status field
type StatusKind int

const (
	// StatusRequired means nothing is committed to a supplier yet
	StatusRequired StatusKind = iota
	// StatusOrdered carries an explicit committed quantity
	StatusOrdered
	// StatusLegacyOrdered is the bare "Ordered" marker written before quantities were recorded
	StatusLegacyOrdered
	// StatusReceived closes the procurement lifecycle for the quantity it carries
	StatusReceived
)

// String method for StatusKind enum
func (k StatusKind) String() string {
	switch k {
	case StatusRequired:
		return "Required"
	case StatusOrdered:
		return "Ordered"
	case StatusLegacyOrdered:
		return "LegacyOrdered"
	case StatusReceived:
		return "Received"
	default:
		return "Unknown"
	}
}

// Status is the decoded form of a procurement-status field.
// Quantity is only meaningful for StatusOrdered and StatusReceived with an
// explicit amount; HasQuantity reports whether one was present.
// ReceivedQuantity is the part of an Ordered quantity already received
// before the rest was ordered, written as "Ordered:<n>;Received:<m>".
type Status struct {
	Kind             StatusKind
	Quantity         decimal.Decimal
	HasQuantity      bool
	ReceivedQuantity decimal.Decimal
}

// Required returns the Required status
func Required() Status {
	return Status{Kind: StatusRequired}
}

// Ordered returns an Ordered status committing qty
func Ordered(qty decimal.Decimal) Status {
	return Status{Kind: StatusOrdered, Quantity: qty, HasQuantity: true}
}

// OrderedAfterReceipt returns an Ordered status committing qty of which
// received was delivered earlier
func OrderedAfterReceipt(qty, received decimal.Decimal) Status {
	s := Ordered(qty)
	if received.IsPositive() {
		s.ReceivedQuantity = received
	}
	return s
}

// Received returns a Received status closing qty
func Received(qty decimal.Decimal) Status {
	return Status{Kind: StatusReceived, Quantity: qty, HasQuantity: true}
}

// DecodeStatus parses a raw status field. It never fails: anything it does
// not recognise is Required.
func DecodeStatus(raw *string) Status {
	if raw == nil {
		return Required()
	}
	value := strings.TrimSpace(*raw)

	if head, tail, ok := strings.Cut(value, partSep); ok {
		return decodeOrderedAfterReceipt(strings.TrimSpace(head), strings.TrimSpace(tail))
	}

	switch {
	case value == orderedMarker:
		return Status{Kind: StatusLegacyOrdered}
	case value == receivedMarker:
		return Status{Kind: StatusReceived}
	case strings.HasPrefix(value, orderedMarker+quantitySep):
		if qty, ok := parseQuantity(value[len(orderedMarker+quantitySep):]); ok {
			return Ordered(qty)
		}
	case strings.HasPrefix(value, receivedMarker+quantitySep):
		if qty, ok := parseQuantity(value[len(receivedMarker+quantitySep):]); ok {
			return Received(qty)
		}
	}

	return Required()
}

// decodeOrderedAfterReceipt accepts only "Ordered:<n>;Received:<m>" with
// m <= n; anything else is Required.
func decodeOrderedAfterReceipt(head, tail string) Status {
	ordered, received := DecodeStatus(&head), DecodeStatus(&tail)
	if ordered.Kind != StatusOrdered || received.Kind != StatusReceived || !received.HasQuantity ||
		received.Quantity.GreaterThan(ordered.Quantity) {
		return Required()
	}
	return OrderedAfterReceipt(ordered.Quantity, received.Quantity)
}

func parseQuantity(s string) (decimal.Decimal, bool) {
	qty, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil || qty.IsNegative() {
		return decimal.Zero, false
	}
	return qty, true
}

// EncodeStatus serializes a status for persistence. Required encodes to nil.
func EncodeStatus(s Status) *string {
	var value string
	switch s.Kind {
	case StatusOrdered:
		value = orderedMarker + quantitySep + s.Quantity.String()
		if s.ReceivedQuantity.IsPositive() {
			value += partSep + receivedMarker + quantitySep + s.ReceivedQuantity.String()
		}
	case StatusLegacyOrdered:
		value = orderedMarker
	case StatusReceived:
		if !s.HasQuantity {
			value = receivedMarker
		} else {
			value = receivedMarker + quantitySep + s.Quantity.String()
		}
	default:
		return nil
	}
	return &value
}

// Committed resolves how much of required is spoken for under this status.
// Legacy and quantity-less markers commit the whole current requirement.
func (s Status) Committed(required decimal.Decimal) decimal.Decimal {
	switch s.Kind {
	case StatusOrdered, StatusReceived:
		if s.HasQuantity {
			return s.Quantity
		}
		return required
	case StatusLegacyOrdered:
		return required
	default:
		return decimal.Zero
	}
}

// Received resolves how much of required was already delivered: all of a
// Received status, or the baseline carried by an Ordered one.
func (s Status) Received(required decimal.Decimal) decimal.Decimal {
	switch s.Kind {
	case StatusReceived:
		return s.Committed(required)
	case StatusOrdered:
		return s.ReceivedQuantity
	default:
		return decimal.Zero
	}
}

// IsOrdered reports whether the status places the item in the Ordered bucket
func (s Status) IsOrdered() bool {
	return s.Kind == StatusOrdered || s.Kind == StatusLegacyOrdered
}
