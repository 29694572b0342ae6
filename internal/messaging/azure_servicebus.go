package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"example.com/backstage/services/procurement/config"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/rs/zerolog/log"
)

// Publisher sends procurement events to a queue
type Publisher interface {
	Publish(ctx context.Context, eventType string, body interface{}) error
	Close() error
}

// ServiceBusPublisher implements Publisher on an Azure Service Bus queue
type ServiceBusPublisher struct {
	client    *azservicebus.Client
	sender    *azservicebus.Sender
	queueName string
	source    string
}

var _ Publisher = (*ServiceBusPublisher)(nil)

// NewServiceBusPublisher creates a sender for the events queue
func NewServiceBusPublisher(cfg config.AzureConfig, source string) (*ServiceBusPublisher, error) {
	if cfg.QueueConnStr == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	sender, err := client.NewSender(cfg.EventsQueue, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus sender: %w", err)
	}

	return &ServiceBusPublisher{
		client:    client,
		sender:    sender,
		queueName: cfg.EventsQueue,
		source:    source,
	}, nil
}

// Publish sends body as a JSON message tagged with eventType
func (p *ServiceBusPublisher) Publish(ctx context.Context, eventType string, body interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal message body: %w", err)
	}

	contentType := "application/json"
	msg := &azservicebus.Message{
		Body:        data,
		ContentType: &contentType,
		Subject:     &eventType,
		ApplicationProperties: map[string]interface{}{
			"eventType": eventType,
			"source":    p.source,
			"time":      time.Now().UTC().Format(time.RFC3339),
		},
	}

	if err := p.sender.SendMessage(ctx, msg, nil); err != nil {
		return fmt.Errorf("failed to send message to %s: %w", p.queueName, err)
	}
	return nil
}

// Close closes the sender and the client
func (p *ServiceBusPublisher) Close() error {
	if p.sender != nil {
		if err := p.sender.Close(context.Background()); err != nil {
			return err
		}
	}
	if p.client != nil {
		return p.client.Close(context.Background())
	}
	return nil
}

// MessageProcessor handles one received message. Returning an error abandons
// the message so it is redelivered; ErrPoison dead-letters it.
type MessageProcessor interface {
	ProcessMessage(ctx context.Context, message *azservicebus.ReceivedMessage) error
}

// ErrPoison marks a message that can never be processed
var ErrPoison = errors.New("unprocessable message")

// Consumer receives messages from a queue
type Consumer struct {
	client      *azservicebus.Client
	receiver    *azservicebus.Receiver
	queueName   string
	maxMessages int
}

// NewConsumer creates a receiver for the order-change queue
func NewConsumer(cfg config.AzureConfig, maxMessages int) (*Consumer, error) {
	if cfg.QueueConnStr == "" {
		return nil, fmt.Errorf("Azure Service Bus connection string is empty")
	}

	client, err := azservicebus.NewClientFromConnectionString(cfg.QueueConnStr, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus client: %w", err)
	}

	receiver, err := client.NewReceiverForQueue(cfg.OrdersQueue, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create Service Bus receiver: %w", err)
	}

	if maxMessages <= 0 {
		maxMessages = 10
	}

	return &Consumer{
		client:      client,
		receiver:    receiver,
		queueName:   cfg.OrdersQueue,
		maxMessages: maxMessages,
	}, nil
}

// Run receives and settles messages until ctx is cancelled
func (c *Consumer) Run(ctx context.Context, processor MessageProcessor) error {
	log.Info().Str("queue", c.queueName).Msg("Starting Service Bus consumer")

	for {
		messages, err := c.receiver.ReceiveMessages(ctx, c.maxMessages, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			var sbErr *azservicebus.Error
			if errors.As(err, &sbErr) && sbErr.Code == azservicebus.CodeTimeout {
				continue
			}
			return fmt.Errorf("failed to receive messages from %s: %w", c.queueName, err)
		}

		for _, message := range messages {
			c.settle(ctx, message, processor.ProcessMessage(ctx, message))
		}
	}
}

func (c *Consumer) settle(ctx context.Context, message *azservicebus.ReceivedMessage, err error) {
	switch {
	case err == nil:
		if err := c.receiver.CompleteMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to complete message")
		}
	case errors.Is(err, ErrPoison):
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Dead-lettering message")
		reason := "unprocessable"
		description := err.Error()
		if err := c.receiver.DeadLetterMessage(ctx, message, &azservicebus.DeadLetterOptions{
			Reason:           &reason,
			ErrorDescription: &description,
		}); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to dead-letter message")
		}
	default:
		log.Error().Err(err).Str("message_id", message.MessageID).Msg("Error processing message")
		if err := c.receiver.AbandonMessage(ctx, message, nil); err != nil {
			log.Error().Err(err).Str("message_id", message.MessageID).Msg("Failed to abandon message")
		}
	}
}

// Close closes the receiver and the client
func (c *Consumer) Close() error {
	if c.receiver != nil {
		if err := c.receiver.Close(context.Background()); err != nil {
			return err
		}
	}
	if c.client != nil {
		return c.client.Close(context.Background())
	}
	return nil
}
