package syncsched

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGate_BreaksAtMaxSyncErrors(t *testing.T) {
	assert.True(t, Gate(0, 3))
	assert.True(t, Gate(2, 3))
	assert.False(t, Gate(3, 3))
	assert.False(t, Gate(4, 3))
}

func TestBackoffDuration_ExponentialCappedAt30s(t *testing.T) {
	assert.Equal(t, time.Duration(0), backoffDuration(0))
	assert.Equal(t, time.Second, backoffDuration(1))
	assert.Equal(t, 2*time.Second, backoffDuration(2))
	assert.Equal(t, 4*time.Second, backoffDuration(3))
	assert.Equal(t, 16*time.Second, backoffDuration(5))
	assert.Equal(t, 30*time.Second, backoffDuration(6))
	assert.Equal(t, 30*time.Second, backoffDuration(20))
}

func TestSleepBackoff_InterruptibleByContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepBackoff(ctx, 6) // would otherwise sleep 30s
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestSleepBackoff_ZeroRetriesReturnsImmediately(t *testing.T) {
	err := sleepBackoff(context.Background(), 0)
	assert.NoError(t, err)
}
