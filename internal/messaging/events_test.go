package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/messaging/azservicebus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeOrderChange(t *testing.T) {
	change, err := DecodeOrderChange([]byte(`{"eventType":"WorkOrderChanged","data":{"order_id":" o1 "}}`))
	require.NoError(t, err)
	assert.Equal(t, "o1", change.OrderID)

	_, err = DecodeOrderChange([]byte(`{"eventType":"WorkOrderDeleted","data":{"order_id":"o2"}}`))
	require.NoError(t, err)
}

func TestDecodeOrderChangePoison(t *testing.T) {
	for _, body := range []string{
		`not json`,
		`{"eventType":"InvoiceCreated","data":{}}`,
		`{"eventType":"WorkOrderChanged","data":{}}`,
		`{"eventType":"WorkOrderChanged","data":"o1"}`,
	} {
		_, err := DecodeOrderChange([]byte(body))
		require.ErrorIs(t, err, ErrPoison, body)
	}
}

func TestOrderChangeProcessor(t *testing.T) {
	var seen []string
	processor := NewOrderChangeProcessor(func(ctx context.Context, orderID string) error {
		seen = append(seen, orderID)
		if orderID == "fail" {
			return errors.New("store unavailable")
		}
		return nil
	})

	ok := &azservicebus.ReceivedMessage{MessageID: "1", Body: []byte(`{"eventType":"WorkOrderChanged","data":{"order_id":"o1"}}`)}
	require.NoError(t, processor.ProcessMessage(context.Background(), ok))

	failing := &azservicebus.ReceivedMessage{MessageID: "2", Body: []byte(`{"eventType":"WorkOrderChanged","data":{"order_id":"fail"}}`)}
	err := processor.ProcessMessage(context.Background(), failing)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrPoison))

	assert.Equal(t, []string{"o1", "fail"}, seen)
}
