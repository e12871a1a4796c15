package supervisor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-autopilot/internal/engine"
	"github.com/miradorstack/mirador-autopilot/internal/models"
	"github.com/miradorstack/mirador-autopilot/internal/utils"
)

type countingTicker struct {
	mu      sync.Mutex
	calls   map[string]int
	started chan string
	block   chan struct{}
}

func newCountingTicker() *countingTicker {
	return &countingTicker{calls: map[string]int{}}
}

func (c *countingTicker) Tick(ctx context.Context, service string) engine.TickReport {
	c.mu.Lock()
	c.calls[service]++
	c.mu.Unlock()
	if c.started != nil {
		c.started <- service
	}
	if c.block != nil {
		<-c.block
	}
	return engine.TickReport{Service: service, Path: models.PathNone, State: models.StateHealthy, Duration: time.Millisecond}
}

func (c *countingTicker) count(service string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[service]
}

func TestTriggerRunsHookThenTick(t *testing.T) {
	ticker := newCountingTicker()
	var hooked []string
	s := New(ticker, nil, Config{
		Services: []string{"checkout"},
		Logger:   utils.DiscardLogger(),
		OnTick:   func(_ context.Context, service string) { hooked = append(hooked, service) },
	})

	report, err := s.Trigger(context.Background(), "checkout")
	require.NoError(t, err)
	assert.Equal(t, models.StateHealthy, report.State)
	assert.Equal(t, []string{"checkout"}, hooked)
	assert.Equal(t, 1, ticker.count("checkout"))

	last, ok := s.Last("checkout")
	require.True(t, ok)
	assert.Equal(t, "checkout", last.Service)
}

func TestTriggerDropsWhileInFlight(t *testing.T) {
	ticker := newCountingTicker()
	ticker.started = make(chan string, 1)
	ticker.block = make(chan struct{})
	s := New(ticker, nil, Config{Services: []string{"checkout"}, Logger: utils.DiscardLogger()})

	done := make(chan error, 1)
	go func() {
		_, err := s.Trigger(context.Background(), "checkout")
		done <- err
	}()
	<-ticker.started

	_, err := s.Trigger(context.Background(), "checkout")
	assert.True(t, errors.Is(err, utils.ErrInFlight))

	close(ticker.block)
	require.NoError(t, <-done)
	assert.Equal(t, 1, ticker.count("checkout"))

	_, err = s.Trigger(context.Background(), "checkout")
	assert.NoError(t, err)
}

func TestTriggerCancelledContext(t *testing.T) {
	ticker := newCountingTicker()
	s := New(ticker, nil, Config{Services: []string{"checkout"}, Logger: utils.DiscardLogger()})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Trigger(ctx, "checkout")
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 0, ticker.count("checkout"))
}

func TestRunTicksEveryServiceUntilCancelled(t *testing.T) {
	ticker := newCountingTicker()
	s := New(ticker, nil, Config{
		Services: []string{"checkout", "cart"},
		Interval: 5 * time.Millisecond,
		Logger:   utils.DiscardLogger(),
	})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.Eventually(t, func() bool {
		return ticker.count("checkout") >= 2 && ticker.count("cart") >= 2
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("supervisor did not stop")
	}
}

func TestRunRequiresServices(t *testing.T) {
	s := New(newCountingTicker(), nil, Config{Logger: utils.DiscardLogger()})
	assert.Error(t, s.Run(context.Background()))
}
