// Package poller drives periodic background refresh of one target (the
// selected address) and exposes a manual refresh sharing the same guard: at
// most one refresh runs at a time, however many ticks fire meanwhile.
package poller

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bassamadnan/tmpmail/metrics"
	"go.uber.org/zap"
)

const (
	DefaultInterval = 30 * time.Second
	countdownStep   = time.Second
)

// RefreshFunc refreshes target. silent is true for background ticks, whose
// errors are logged and never surfaced.
type RefreshFunc func(ctx context.Context, target string, silent bool) error

// State is a snapshot of the poller for display.
type State struct {
	Target           string
	Enabled          bool
	SecondsRemaining int
	InFlight         bool
}

// Ticker is the subset of time.Ticker the poller needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFactory func(d time.Duration) Ticker

type stdTicker struct{ *time.Ticker }

func (t stdTicker) C() <-chan time.Time { return t.Ticker.C }

func newStdTicker(d time.Duration) Ticker { return stdTicker{time.NewTicker(d)} }

type Poller struct {
	ctx       context.Context
	logger    *zap.Logger
	onChange  func(State)
	newTicker TickerFactory

	mu         sync.Mutex
	target     string
	interval   time.Duration
	enabled    bool
	remaining  int
	configured bool
	closed     bool
	// stop is the generation token of the running timer pair; nil when
	// no timers run. Tick handlers act only if it is still current.
	stop chan struct{}

	refresh  atomic.Pointer[RefreshFunc]
	inFlight atomic.Bool
	wg       sync.WaitGroup
}

type Option func(*Poller)

func WithLogger(l *zap.Logger) Option { return func(p *Poller) { p.logger = l } }

// WithOnChange registers a callback invoked after every state change. It may
// be called from timer goroutines.
func WithOnChange(fn func(State)) Option { return func(p *Poller) { p.onChange = fn } }

func WithTickerFactory(f TickerFactory) Option { return func(p *Poller) { p.newTicker = f } }

func WithEnabled(enabled bool) Option { return func(p *Poller) { p.enabled = enabled } }

// New returns a poller whose automatic refreshes run under ctx. Timers start
// on the first Configure.
func New(ctx context.Context, interval time.Duration, opts ...Option) *Poller {
	if interval < countdownStep {
		interval = DefaultInterval
	}
	p := &Poller{
		ctx:       ctx,
		logger:    zap.NewNop(),
		newTicker: newStdTicker,
		interval:  interval,
		enabled:   true,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.remaining = p.seconds()
	return p
}

func (p *Poller) seconds() int { return int(p.interval / countdownStep) }

func (p *Poller) stateLocked() State {
	return State{
		Target:           p.target,
		Enabled:          p.enabled,
		SecondsRemaining: p.remaining,
		InFlight:         p.inFlight.Load(),
	}
}

func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stateLocked()
}

func (p *Poller) notify(s State) {
	if p.onChange != nil {
		p.onChange(s)
	}
}

// Configure installs fn as the refresh operation and, when target or interval
// differ from the running configuration, restarts both timers with a fresh
// countdown. fn is always replaced so ticks never call a stale closure.
func (p *Poller) Configure(target string, interval time.Duration, fn RefreshFunc) {
	if fn != nil {
		p.refresh.Store(&fn)
	}
	if interval < countdownStep {
		interval = p.interval
	}

	p.mu.Lock()
	changed := !p.configured || target != p.target || interval != p.interval
	p.configured = true
	p.target = target
	p.interval = interval
	if changed {
		p.remaining = p.seconds()
		if p.enabled {
			p.restartLocked()
		}
	}
	state := p.stateLocked()
	p.mu.Unlock()

	if changed {
		p.logger.Debug("poller configured", zap.String("target", target), zap.Duration("interval", interval))
		p.notify(state)
	}
}

// Toggle flips automatic refresh and returns the new setting. Disabling stops
// both timers at once; an in-flight refresh still completes.
func (p *Poller) Toggle() bool {
	p.mu.Lock()
	p.enabled = !p.enabled
	p.remaining = p.seconds()
	if p.enabled {
		if p.configured {
			p.restartLocked()
		}
	} else {
		p.stopLocked()
	}
	enabled := p.enabled
	state := p.stateLocked()
	p.mu.Unlock()

	p.logger.Info("auto-refresh toggled", zap.Bool("enabled", enabled))
	p.notify(state)
	return enabled
}

// ManualRefresh runs a user-initiated refresh. It returns nil without doing
// anything when a refresh is already in flight. The countdown restarts when
// the call completes, whatever its outcome, and the error is returned.
func (p *Poller) ManualRefresh(ctx context.Context) error {
	_, err := p.TryManualRefresh(ctx)
	return err
}

// TryManualRefresh is ManualRefresh that also reports whether the refresh
// ran; ran is false when another refresh held the guard.
func (p *Poller) TryManualRefresh(ctx context.Context) (ran bool, err error) {
	if !p.inFlight.CompareAndSwap(false, true) {
		metrics.IncrementRefresh(false, "skipped")
		return false, nil
	}
	p.mu.Lock()
	target := p.target
	state := p.stateLocked()
	p.mu.Unlock()
	p.notify(state)

	defer p.finish(true)
	err = p.invoke(ctx, target, false)
	if err != nil {
		p.logger.Warn("manual refresh failed", zap.String("target", target), zap.Error(err))
	}
	return true, err
}

// Close stops the timers and waits for automatic refreshes to return.
func (p *Poller) Close() {
	p.mu.Lock()
	p.closed = true
	p.stopLocked()
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Poller) restartLocked() {
	p.stopLocked()
	if p.closed {
		return
	}
	stop := make(chan struct{})
	p.stop = stop
	countdown := p.newTicker(countdownStep)
	refresh := p.newTicker(p.interval)
	go p.loop(stop, countdown, refresh)
}

func (p *Poller) stopLocked() {
	if p.stop != nil {
		close(p.stop)
		p.stop = nil
	}
}

func (p *Poller) loop(stop chan struct{}, countdown, refresh Ticker) {
	defer countdown.Stop()
	defer refresh.Stop()
	for {
		select {
		case <-stop:
			return
		case <-countdown.C():
			p.countdownTick(stop)
		case <-refresh.C():
			p.autoTick(stop)
		}
	}
}

func (p *Poller) countdownTick(gen chan struct{}) {
	p.mu.Lock()
	if p.stop != gen {
		p.mu.Unlock()
		return
	}
	if p.remaining <= 1 {
		p.remaining = p.seconds()
	} else {
		p.remaining--
	}
	state := p.stateLocked()
	p.mu.Unlock()
	p.notify(state)
}

func (p *Poller) autoTick(gen chan struct{}) {
	p.mu.Lock()
	if p.stop != gen {
		p.mu.Unlock()
		return
	}
	if !p.inFlight.CompareAndSwap(false, true) {
		p.mu.Unlock()
		p.logger.Debug("refresh in flight, skipping tick")
		metrics.IncrementRefresh(true, "skipped")
		return
	}
	target := p.target
	state := p.stateLocked()
	p.wg.Add(1)
	p.mu.Unlock()
	p.notify(state)

	go func() {
		defer p.wg.Done()
		defer p.finish(false)
		if err := p.invoke(p.ctx, target, true); err != nil {
			p.logger.Error("auto-refresh failed", zap.String("target", target), zap.Error(err))
		}
	}()
}

func (p *Poller) invoke(ctx context.Context, target string, silent bool) error {
	fn := p.refresh.Load()
	if fn == nil {
		return nil
	}
	err := (*fn)(ctx, target, silent)
	outcome := "success"
	if err != nil {
		outcome = "failed"
	}
	metrics.IncrementRefresh(silent, outcome)
	return err
}

// finish releases the in-flight guard; manual refreshes also restart the
// countdown.
func (p *Poller) finish(resetCountdown bool) {
	p.mu.Lock()
	if resetCountdown {
		p.remaining = p.seconds()
	}
	p.inFlight.Store(false)
	state := p.stateLocked()
	p.mu.Unlock()
	p.notify(state)
}
