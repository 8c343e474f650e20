package jobs

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActionRouting(t *testing.T) {
	tests := []struct {
		action Action
		kind   Kind
		queue  QueueName
	}{
		{NewOrderReminder(1), KindOrderReminder, QueueNotifications},
		{NewOrderLock(1), KindOrderLock, QueueOrders},
		{NewOrderLockedNotice(1), KindOrderLockedNotice, QueueNotifications},
		{NewOrderFulfilledNotice(1), KindOrderFulfilledNotice, QueueNotifications},
		{NewChargeSubscription(1), KindChargeSubscription, QueuePayments},
		{NewChargeOrderAddons(3), KindChargeOrderAddons, QueuePayments},
		{NewRefundPayment(1, decimal.NewFromInt(5), "cancelled"), KindRefundPayment, QueuePayments},
		{NewPaymentFailedNotice(1, 2, "declined"), KindPaymentFailedNotice, QueueNotifications},
		{NewSubscriptionCompleted(1), KindSubscriptionCompleted, QueueSubscriptions},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.kind, tt.action.Kind())
			assert.Equal(t, tt.queue, tt.action.Queue())

			data, err := Encode(tt.action)
			require.NoError(t, err)
			decoded, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, tt.kind, decoded.Kind())
		})
	}
}

func TestDecodeKeepsPayload(t *testing.T) {
	data, err := Encode(NewRefundPayment(42, decimal.RequireFromString("47.50"), "subscription cancelled"))
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	refund, ok := decoded.(RefundPayment)
	require.True(t, ok, "expected RefundPayment, got %T", decoded)
	assert.Equal(t, uint(42), refund.SubscriptionID)
	assert.Equal(t, "47.50", refund.Amount.StringFixed(2))
	assert.Equal(t, "subscription cancelled", refund.Reason)
}

func TestDecodeRejectsUnknownInput(t *testing.T) {
	_, err := Decode([]byte(`{"kind":"renew_subscription","payload":{}}`))
	assert.ErrorContains(t, err, "unknown action kind")

	_, err = Decode([]byte(`{"kind":"order_lock","payload":{"order_id":"seven"}}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	_, err = Encode(nil)
	assert.Error(t, err)
}
