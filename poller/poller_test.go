package poller

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeTicker struct {
	d       time.Duration
	ch      chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeClock struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTicker{d: d, ch: make(chan time.Time)}
	c.tickers = append(c.tickers, t)
	return t
}

func (c *fakeClock) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.tickers)
}

// latest returns the newest ticker created with period d.
func (c *fakeClock) latest(d time.Duration) *fakeTicker {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.tickers) - 1; i >= 0; i-- {
		if c.tickers[i].d == d {
			return c.tickers[i]
		}
	}
	return nil
}

// fire delivers one tick; it reports false when no loop is listening.
func fire(t *fakeTicker) bool {
	select {
	case t.ch <- time.Now():
		return true
	case <-time.After(200 * time.Millisecond):
		return false
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

// blockingRefresh counts calls and blocks each until released.
type blockingRefresh struct {
	calls   atomic.Int32
	applied atomic.Int32
	release chan struct{}
	mu      sync.Mutex
	targets []string
	silent  []bool
}

func newBlockingRefresh() *blockingRefresh {
	return &blockingRefresh{release: make(chan struct{})}
}

func (b *blockingRefresh) fn(ctx context.Context, target string, silent bool) error {
	b.calls.Add(1)
	b.mu.Lock()
	b.targets = append(b.targets, target)
	b.silent = append(b.silent, silent)
	b.mu.Unlock()
	<-b.release
	b.applied.Add(1)
	return nil
}

const interval = 30 * time.Second

func newTestPoller(t *testing.T) (*Poller, *fakeClock) {
	t.Helper()
	clock := &fakeClock{}
	p := New(context.Background(), interval, WithTickerFactory(clock.NewTicker))
	t.Cleanup(p.Close)
	return p, clock
}

func TestAtMostOneRefreshInFlight(t *testing.T) {
	p, clock := newTestPoller(t)
	r := newBlockingRefresh()
	p.Configure("a@example.test", interval, r.fn)

	tick := clock.latest(interval)
	if !fire(tick) {
		t.Fatal("refresh tick not delivered")
	}
	eventually(t, "first refresh", func() bool { return r.calls.Load() == 1 })

	for i := 0; i < 5; i++ {
		if !fire(tick) {
			t.Fatal("refresh tick not delivered")
		}
	}
	if err := p.ManualRefresh(context.Background()); err != nil {
		t.Fatalf("ManualRefresh while in flight: %v", err)
	}
	if ran, err := p.TryManualRefresh(context.Background()); ran || err != nil {
		t.Fatalf("TryManualRefresh while in flight = %v, %v; want skipped", ran, err)
	}
	if n := r.calls.Load(); n != 1 {
		t.Fatalf("refresh ran %d times during one in-flight call", n)
	}
	if !p.State().InFlight {
		t.Fatal("state should report in flight")
	}

	close(r.release)
	eventually(t, "in-flight release", func() bool { return !p.State().InFlight })

	if !fire(tick) {
		t.Fatal("refresh tick not delivered")
	}
	eventually(t, "second refresh", func() bool { return r.calls.Load() == 2 })

	r.mu.Lock()
	defer r.mu.Unlock()
	for i, silent := range r.silent {
		if !silent {
			t.Errorf("call %d: automatic refresh should be silent", i)
		}
	}
}

func TestDisableDuringInFlightRefresh(t *testing.T) {
	p, clock := newTestPoller(t)
	r := newBlockingRefresh()
	p.Configure("a@example.test", interval, r.fn)

	countdown := clock.latest(countdownStep)
	tick := clock.latest(interval)
	if !fire(tick) {
		t.Fatal("refresh tick not delivered")
	}
	eventually(t, "refresh start", func() bool { return r.calls.Load() == 1 })

	if p.Toggle() {
		t.Fatal("Toggle should disable")
	}
	eventually(t, "timers stopped", func() bool { return tick.stopped.Load() && countdown.stopped.Load() })
	if fire(tick) {
		t.Fatal("stopped timer still delivering ticks")
	}

	close(r.release)
	eventually(t, "in-flight result applied", func() bool { return r.applied.Load() == 1 })

	created := clock.count()
	p.Configure("b@example.test", interval, r.fn)
	if clock.count() != created || p.State().Enabled {
		t.Fatal("disabled poller must not start timers")
	}

	if !p.Toggle() {
		t.Fatal("Toggle should enable")
	}
	if clock.count() != created+2 {
		t.Fatalf("enable created %d tickers, want 2", clock.count()-created)
	}
	if s := p.State(); s.SecondsRemaining != 30 {
		t.Fatalf("countdown = %d after enable, want 30", s.SecondsRemaining)
	}
}

func TestCountdownWraps(t *testing.T) {
	clock := &fakeClock{}
	p := New(context.Background(), 3*time.Second, WithTickerFactory(clock.NewTicker))
	defer p.Close()
	p.Configure("a@example.test", 3*time.Second, func(context.Context, string, bool) error { return nil })

	countdown := clock.latest(countdownStep)
	for _, want := range []int{2, 1, 3, 2} {
		if !fire(countdown) {
			t.Fatal("countdown tick not delivered")
		}
		eventually(t, "countdown step", func() bool { return p.State().SecondsRemaining == want })
	}
}

func TestConfigureRestartsOnTargetChange(t *testing.T) {
	p, clock := newTestPoller(t)
	var mu sync.Mutex
	var seen []string
	record := func(_ context.Context, target string, _ bool) error {
		mu.Lock()
		seen = append(seen, target)
		mu.Unlock()
		return nil
	}

	p.Configure("a@example.test", interval, record)
	first := clock.latest(interval)
	firstCountdown := clock.latest(countdownStep)

	p.Configure("a@example.test", interval, record)
	if clock.count() != 2 {
		t.Fatalf("same target should not restart timers, have %d tickers", clock.count())
	}

	p.Configure("b@example.test", interval, record)
	eventually(t, "old timers stopped", func() bool { return first.stopped.Load() && firstCountdown.stopped.Load() })
	second := clock.latest(interval)
	if second == first {
		t.Fatal("target change should create new timers")
	}

	if !fire(second) {
		t.Fatal("refresh tick not delivered")
	}
	eventually(t, "refresh on new target", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	if seen[0] != "b@example.test" {
		t.Fatalf("refreshed %q, want b@example.test", seen[0])
	}
}

func TestLatestRefreshFuncIsUsed(t *testing.T) {
	p, _ := newTestPoller(t)
	var old, current atomic.Int32
	p.Configure("a@example.test", interval, func(context.Context, string, bool) error { old.Add(1); return nil })
	p.Configure("a@example.test", interval, func(context.Context, string, bool) error { current.Add(1); return nil })

	if err := p.ManualRefresh(context.Background()); err != nil {
		t.Fatalf("ManualRefresh: %v", err)
	}
	if old.Load() != 0 || current.Load() != 1 {
		t.Fatalf("old=%d current=%d, want the newest function only", old.Load(), current.Load())
	}
	if ran, err := p.TryManualRefresh(context.Background()); !ran || err != nil {
		t.Fatalf("TryManualRefresh = %v, %v; want ran", ran, err)
	}
	if current.Load() != 2 {
		t.Fatalf("current=%d after second refresh", current.Load())
	}
}

func TestManualRefreshErrorAndCountdownReset(t *testing.T) {
	p, clock := newTestPoller(t)
	boom := errors.New("backend down")
	var silentSeen atomic.Bool
	p.Configure("a@example.test", interval, func(_ context.Context, _ string, silent bool) error {
		if silent {
			silentSeen.Store(true)
		}
		return boom
	})

	countdown := clock.latest(countdownStep)
	for i := 0; i < 3; i++ {
		if !fire(countdown) {
			t.Fatal("countdown tick not delivered")
		}
	}
	eventually(t, "countdown moved", func() bool { return p.State().SecondsRemaining == 27 })

	if err := p.ManualRefresh(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("ManualRefresh err = %v, want %v", err, boom)
	}
	s := p.State()
	if s.SecondsRemaining != 30 || s.InFlight {
		t.Fatalf("state after failed manual refresh = %+v", s)
	}
	if silentSeen.Load() {
		t.Fatal("manual refresh must not be silent")
	}

	if !fire(clock.latest(interval)) {
		t.Fatal("refresh tick not delivered")
	}
	eventually(t, "silent failure swallowed", func() bool { return silentSeen.Load() && !p.State().InFlight })
}

func TestOnChangeReportsState(t *testing.T) {
	clock := &fakeClock{}
	states := make(chan State, 16)
	p := New(context.Background(), interval,
		WithTickerFactory(clock.NewTicker),
		WithEnabled(false),
		WithOnChange(func(s State) {
			select {
			case states <- s:
			default:
			}
		}))
	defer p.Close()

	p.Configure("a@example.test", interval, func(context.Context, string, bool) error { return nil })
	if clock.count() != 0 {
		t.Fatal("disabled poller started timers on Configure")
	}
	s := <-states
	if s.Target != "a@example.test" || s.Enabled {
		t.Fatalf("unexpected first state %+v", s)
	}
	p.Toggle()
	s = <-states
	if !s.Enabled || s.SecondsRemaining != 30 {
		t.Fatalf("unexpected state after enable %+v", s)
	}
}
