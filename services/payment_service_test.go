package services

import (
	"context"
	"errors"
	"testing"

	"github.com/kendall-kelly/csa-share-api/catalog"
	"github.com/kendall-kelly/csa-share-api/jobs"
	"github.com/kendall-kelly/csa-share-api/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChargeSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "payer")
	sub, _ := env.subscribe(t, user.ID, catalog.FulfillmentPickup, 8)

	payment, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, payment.Status)
	// 8 x 23.75
	assert.True(t, payment.Amount.Equal(decimal.RequireFromString("190.00")), payment.Amount.String())
	assert.Equal(t, "pi_mock_"+ChargeKey(sub.ID), payment.ProcessorRef)

	t.Run("retry does not charge twice", func(t *testing.T) {
		again, err := env.payments.ChargeSubscription(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, payment.ID, again.ID)
		assert.Len(t, env.processor.Charges(), 1)

		payments, err := env.payments.ListSubscriptionPayments(ctx, sub.ID)
		require.NoError(t, err)
		assert.Len(t, payments, 1)
	})
}

func TestChargeSubscriptionDeclined(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "broke")
	env.processor.Decline["pm_card_visa"] = "insufficient funds"
	sub, _ := env.subscribe(t, user.ID, catalog.FulfillmentPickup, 4)

	payment, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentFailed, payment.Status)
	assert.Equal(t, "insufficient funds", payment.FailureReason)

	call, ok := env.scheduler.Get(PaymentFailedKey(payment.ID))
	require.True(t, ok)
	assert.Equal(t, jobs.NewPaymentFailedNotice(sub.ID, payment.ID, "insufficient funds"), call.Action)
}

func TestChargeSubscriptionTransientError(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "flaky")
	sub, _ := env.subscribe(t, user.ID, catalog.FulfillmentPickup, 4)

	env.processor.Err = errors.New("connection reset")
	_, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.Error(t, err)
	assert.False(t, IsDeclined(err))

	// the pending row is reused by the retry
	env.processor.Err = nil
	payment, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, payment.Status)

	var count int64
	env.db.Model(&models.Payment{}).Where("subscription_id = ?", sub.ID).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCancelBeforeChargeIsNeverBilled(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "early-quit")
	sub, _ := env.subscribe(t, user.ID, catalog.FulfillmentPickup, 4)

	_, err := env.subscriptions.CancelSubscription(ctx, sub.ID, user.ID)
	require.NoError(t, err)

	payment, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.NoError(t, err)
	assert.Nil(t, payment)
	assert.Empty(t, env.processor.Charges())

	payments, err := env.payments.ListSubscriptionPayments(ctx, sub.ID)
	require.NoError(t, err)
	assert.Empty(t, payments)

	_, queued := env.scheduler.Get(RefundKey(sub.ID))
	assert.False(t, queued)
}

func TestCancelAfterFailedChargeAttemptClosesPendingPayment(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "flaky-quit")
	sub, _ := env.subscribe(t, user.ID, catalog.FulfillmentPickup, 4)

	env.processor.Err = errors.New("connection reset")
	_, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.Error(t, err)
	env.processor.Err = nil

	_, err = env.subscriptions.CancelSubscription(ctx, sub.ID, user.ID)
	require.NoError(t, err)

	payment, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.NoError(t, err)
	require.NotNil(t, payment)
	assert.Equal(t, models.PaymentFailed, payment.Status)
	assert.Equal(t, "subscription cancelled before charge", payment.FailureReason)
	assert.Empty(t, env.processor.Charges())
}

func TestRefundSubscription(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.createUser(t, "refund")
	sub, _ := env.subscribe(t, user.ID, catalog.FulfillmentPickup, 4)

	_, err := env.payments.RefundSubscription(ctx, sub.ID, decimal.RequireFromString("25.00"))
	assert.ErrorIs(t, err, ErrPreconditionFailed)

	charge, err := env.payments.ChargeSubscription(ctx, sub.ID)
	require.NoError(t, err)

	refund, err := env.payments.RefundSubscription(ctx, sub.ID, decimal.RequireFromString("500.00"))
	require.NoError(t, err)
	assert.Equal(t, models.PaymentTypeRefund, refund.Type)
	assert.Equal(t, models.PaymentCompleted, refund.Status)
	assert.True(t, refund.Amount.Equal(charge.Amount), "refund is capped at the charge")

	var stored models.Payment
	require.NoError(t, env.db.First(&stored, charge.ID).Error)
	assert.Equal(t, models.PaymentRefunded, stored.Status)

	again, err := env.payments.RefundSubscription(ctx, sub.ID, decimal.RequireFromString("25.00"))
	require.NoError(t, err)
	assert.Equal(t, refund.ID, again.ID)
	assert.Len(t, env.processor.Refunds(), 1)
}

func TestToCents(t *testing.T) {
	assert.Equal(t, int64(2375), toCents(decimal.RequireFromString("23.75")))
	assert.Equal(t, int64(100), toCents(decimal.RequireFromString("0.999")))
}
