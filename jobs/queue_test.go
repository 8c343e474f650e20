package jobs

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDefaultQueueSpecs(t *testing.T) {
	want := map[QueueName]int{
		QueueOrders:        5,
		QueueNotifications: 3,
		QueuePayments:      2,
		QueueSubscriptions: 1,
	}

	specs := DefaultQueueSpecs()
	assert.Len(t, specs, len(want))
	for _, spec := range specs {
		assert.Equal(t, want[spec.Name], spec.Concurrency, string(spec.Name))
		assert.Equal(t, 3, spec.Retry.MaxAttempts)
	}
}

func TestRetryPolicyDelay(t *testing.T) {
	p := DefaultRetryPolicy()

	assert.Equal(t, 2*time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	assert.Equal(t, 8*time.Second, p.Delay(3))
	assert.Equal(t, time.Minute, p.Delay(10), "delay is capped")
}

func TestPermanent(t *testing.T) {
	base := errors.New("card declined")
	err := Permanent(base)

	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
	assert.Nil(t, Permanent(nil))
}
