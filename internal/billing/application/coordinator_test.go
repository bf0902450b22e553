package application

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/billingsim/internal/billing/domain"
)

// manualConnector completes connection attempts only when told to.
type manualConnector struct {
	mu       sync.Mutex
	ready    bool
	attempts int
	listener StateListener
	started  chan struct{}
}

func newManualConnector() *manualConnector {
	return &manualConnector{started: make(chan struct{}, 16)}
}

func (c *manualConnector) IsReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ready
}

func (c *manualConnector) StartConnection(listener StateListener) {
	c.mu.Lock()
	c.attempts++
	c.listener = listener
	c.mu.Unlock()
	c.started <- struct{}{}
}

func (c *manualConnector) finish(result domain.Result) {
	c.mu.Lock()
	c.ready = result.OK()
	l := c.listener
	c.mu.Unlock()
	l.OnSetupFinished(result)
}

func (c *manualConnector) Attempts() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attempts
}

type orderLog struct {
	mu    sync.Mutex
	order []int
}

func (l *orderLog) add(i int) func() {
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.order = append(l.order, i)
	}
}

func (l *orderLog) get() []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]int(nil), l.order...)
}

func TestCoordinator_QueuesBehindSingleAttempt(t *testing.T) {
	conn := newManualConnector()
	coord := NewCoordinator(conn, nil, nil)
	log := &orderLog{}

	coord.EnsureConnectedThen(log.add(1))
	coord.EnsureConnectedThen(log.add(2))
	coord.EnsureConnectedThen(log.add(3))

	assert.Empty(t, log.get(), "nothing runs before the attempt resolves")
	assert.Equal(t, 1, conn.Attempts())

	conn.finish(domain.NewResult(domain.ResponseOK))
	assert.Equal(t, []int{1, 2, 3}, log.get())

	coord.EnsureConnectedThen(log.add(4))
	assert.Equal(t, []int{1, 2, 3, 4}, log.get(), "connected client runs immediately")
	assert.Equal(t, 1, conn.Attempts())
}

func TestCoordinator_CallsDuringDrainKeepOrder(t *testing.T) {
	conn := newManualConnector()
	coord := NewCoordinator(conn, nil, nil)
	log := &orderLog{}

	coord.EnsureConnectedThen(func() {
		log.add(1)()
		coord.EnsureConnectedThen(log.add(4))
	})
	coord.EnsureConnectedThen(log.add(2))
	coord.EnsureConnectedThen(log.add(3))

	conn.finish(domain.NewResult(domain.ResponseOK))
	assert.Equal(t, []int{1, 2, 3, 4}, log.get())
	assert.Equal(t, 1, conn.Attempts())

	coord.EnsureConnectedThen(log.add(5))
	assert.Equal(t, []int{1, 2, 3, 4, 5}, log.get())
}

func TestCoordinator_ConcurrentCallersRunExactlyOnce(t *testing.T) {
	conn := newManualConnector()
	coord := NewCoordinator(conn, nil, nil)

	var runs atomic.Int32
	var wg sync.WaitGroup
	const callers = 50
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			coord.EnsureConnectedThen(func() { runs.Add(1) })
		}()
	}

	select {
	case <-conn.started:
	case <-time.After(time.Second):
		t.Fatal("no connection attempt started")
	}
	wg.Wait()

	conn.finish(domain.NewResult(domain.ResponseOK))
	assert.Equal(t, int32(callers), runs.Load())
	assert.Equal(t, 1, conn.Attempts())
}

func TestCoordinator_FailedAttemptStillDrains(t *testing.T) {
	conn := newManualConnector()
	observer := &setupRecorder{}
	coord := NewCoordinator(conn, observer, nil)
	log := &orderLog{}

	coord.EnsureConnectedThen(log.add(1))
	coord.EnsureConnectedThen(log.add(2))
	conn.finish(domain.NewResultf(domain.ResponseError, "broker down"))

	assert.Equal(t, []int{1, 2}, log.get())
	assert.Equal(t, domain.ResponseError, coord.LastResult().Code)
	assert.Equal(t, domain.ResponseError, observer.Last().Code)

	// The next call starts a fresh attempt.
	coord.EnsureConnectedThen(log.add(3))
	assert.Equal(t, 2, conn.Attempts())
	conn.finish(domain.NewResult(domain.ResponseOK))
	assert.Equal(t, []int{1, 2, 3}, log.get())
}

func TestCoordinator_WithRealClient(t *testing.T) {
	f := newFixture(t)
	observer := &setupRecorder{}
	coord := NewCoordinator(f.cl, observer, nil)

	ran := false
	coord.EnsureConnectedThen(func() {
		ran = true
		assert.True(t, f.cl.IsReady())
	})
	require.True(t, ran)

	f.cl.EndConnection()
	assert.Equal(t, 1, observer.disconnected)

	coord.EnsureConnectedThen(func() {
		assert.False(t, f.cl.IsReady())
	})
	assert.Equal(t, domain.ResponseDeveloperError, coord.LastResult().Code)
}
