package countdown_test

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/boddenberg/upsell-checkout-bfa/internal/countdown"
)

func newScheduler(t *testing.T, tick time.Duration) *countdown.Scheduler {
	t.Helper()
	s, err := countdown.NewScheduler(tick, nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })
	return s
}

func TestFormatMMSS(t *testing.T) {
	assert.Equal(t, "10:00", countdown.FormatMMSS(10*time.Minute))
	assert.Equal(t, "29:59", countdown.FormatMMSS(30*time.Minute-time.Second))
	assert.Equal(t, "00:09", countdown.FormatMMSS(9*time.Second))
	assert.Equal(t, "00:00", countdown.FormatMMSS(-time.Second))
}

func TestStart_RejectsNonPositive(t *testing.T) {
	s := newScheduler(t, 10*time.Millisecond)
	_, err := s.Start("offer", 0, nil)
	assert.ErrorIs(t, err, countdown.ErrInvalidDuration)
}

func TestCountdown_ExpiresExactlyOnce(t *testing.T) {
	s := newScheduler(t, 10*time.Millisecond)
	var fired int32

	c, err := s.Start("offer", 50*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, err)
	assert.False(t, c.Expired())

	require.Eventually(t, c.Expired, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
	assert.Equal(t, time.Duration(0), c.Remaining())
	assert.True(t, c.View().Expired)

	// cancelling after expiry is a no-op
	c.Cancel()
	assert.Equal(t, int32(1), atomic.LoadInt32(&fired))
}

func TestCountdown_TicksDown(t *testing.T) {
	s := newScheduler(t, 20*time.Millisecond)

	c, err := s.Start("pix", time.Second, nil)
	require.NoError(t, err)
	defer c.Cancel()

	assert.Equal(t, time.Second, c.Remaining())
	require.Eventually(t, func() bool { return c.Remaining() < time.Second }, time.Second, 5*time.Millisecond)
	assert.False(t, c.Expired())
	assert.Equal(t, "pix", c.View().Name)
}

func TestCountdown_CancelStopsExpiry(t *testing.T) {
	s := newScheduler(t, 10*time.Millisecond)
	var fired int32

	c, err := s.Start("pix", 40*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, err)

	c.Cancel()
	c.Cancel()
	time.Sleep(100 * time.Millisecond)

	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))
	assert.False(t, c.Expired())
}

func TestCountdown_PanickingHandlerIsContained(t *testing.T) {
	s := newScheduler(t, 10*time.Millisecond)

	c, err := s.Start("offer", 10*time.Millisecond, func() { panic("boom") })
	require.NoError(t, err)

	require.Eventually(t, c.Expired, time.Second, 5*time.Millisecond)

	// the scheduler keeps working afterwards
	var fired int32
	_, err = s.Start("again", 10*time.Millisecond, func() { atomic.AddInt32(&fired, 1) })
	require.NoError(t, err)
	require.Eventually(t, func() bool { return atomic.LoadInt32(&fired) == 1 }, time.Second, 5*time.Millisecond)
}
