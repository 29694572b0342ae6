package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

// Event types
const (
	RequirementTransitioned = "RequirementTransitioned"
	WorkOrderChanged        = "WorkOrderChanged"
	WorkOrderDeleted        = "WorkOrderDeleted"
)

// BusMessage is the envelope used on every procurement queue
type BusMessage struct {
	EventType string          `json:"eventType"`
	Data      json.RawMessage `json:"data"`
}

// OrderChange is published by order management whenever an order is edited
type OrderChange struct {
	OrderID string `json:"order_id"`
}

// OrderChangeHandler reacts to a changed or deleted order
type OrderChangeHandler func(ctx context.Context, orderID string) error

// OrderChangeProcessor decodes order-change messages
type OrderChangeProcessor struct {
	handle OrderChangeHandler
}

var _ MessageProcessor = (*OrderChangeProcessor)(nil)

// NewOrderChangeProcessor creates a processor calling handle for each changed order
func NewOrderChangeProcessor(handle OrderChangeHandler) *OrderChangeProcessor {
	return &OrderChangeProcessor{handle: handle}
}

// ProcessMessage implements MessageProcessor
func (p *OrderChangeProcessor) ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error {
	change, err := DecodeOrderChange(message.Body)
	if err != nil {
		return err
	}

	log.Debug().Str("order_id", change.OrderID).Str("message_id", message.MessageID).Msg("Processing order change")
	return p.handle(ctx, change.OrderID)
}

// DecodeOrderChange parses a message body. Malformed bodies are poison.
func DecodeOrderChange(body []byte) (OrderChange, error) {
	var msg BusMessage
	if err := json.Unmarshal(body, &msg); err != nil {
		return OrderChange{}, fmt.Errorf("%w: error unmarshalling message: %v", ErrPoison, err)
	}

	switch msg.EventType {
	case WorkOrderChanged, WorkOrderDeleted:
	default:
		return OrderChange{}, fmt.Errorf("%w: unknown event type %q", ErrPoison, msg.EventType)
	}

	var change OrderChange
	if err := json.Unmarshal(msg.Data, &change); err != nil {
		return OrderChange{}, fmt.Errorf("%w: error unmarshalling %s data: %v", ErrPoison, msg.EventType, err)
	}
	change.OrderID = strings.TrimSpace(change.OrderID)
	if change.OrderID == "" {
		return OrderChange{}, fmt.Errorf("%w: %s without order_id", ErrPoison, msg.EventType)
	}
	return change, nil
}
