package tui

import (
	"context"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/inbox"
	"github.com/bassamadnan/tmpmail/poller"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"
)

const healthCheckInterval = 30 * time.Second

// StateFeed carries poller snapshots to the UI. It holds only the newest
// snapshot, so Publish never blocks the poller.
type StateFeed chan poller.State

func NewStateFeed() StateFeed { return make(StateFeed, 1) }

func (f StateFeed) Publish(s poller.State) {
	for {
		select {
		case f <- s:
			return
		default:
		}
		select {
		case <-f:
		default:
		}
	}
}

// waitForPollerCmd delivers the next poller snapshot tagged with gen; only
// the model of that generation re-queues it.
func waitForPollerCmd(feed <-chan poller.State, gen uint64) tea.Cmd {
	if feed == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-feed
		if !ok {
			return pollerClosedMsg{}
		}
		return pollerStateMsg{state: s, gen: gen}
	}
}

func statusTickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return StatusTickMsg{Time: t}
	})
}

func healthTickCmd() tea.Cmd {
	return tea.Tick(healthCheckInterval, func(time.Time) tea.Msg { return healthTickMsg{} })
}

// startupCmd loads the domain list and probes the backend concurrently.
func startupCmd(ctx context.Context, manager *inbox.Manager, health HealthChecker) tea.Cmd {
	return func() tea.Msg {
		var (
			domains   []string
			healthErr error
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			d, err := manager.Domains(gctx)
			if err != nil {
				return err
			}
			domains = d
			return nil
		})
		if health != nil {
			g.Go(func() error {
				_, healthErr = health.Health(gctx)
				return nil
			})
		}
		err := g.Wait()
		return startupMsg{domains: domains, err: err, healthErr: healthErr}
	}
}

func healthCmd(ctx context.Context, health HealthChecker) tea.Cmd {
	if health == nil {
		return nil
	}
	return func() tea.Msg {
		_, err := health.Health(ctx)
		return healthMsg{err: err}
	}
}

func generateCmd(ctx context.Context, manager *inbox.Manager, username, domain string) tea.Cmd {
	return func() tea.Msg {
		record, err := manager.Generate(ctx, username, domain)
		return generatedMsg{record: record, err: err}
	}
}

// manualRefreshCmd refreshes through the poller so it shares the in-flight
// guard with automatic ticks.
func manualRefreshCmd(ctx context.Context, p *poller.Poller, manager *inbox.Manager) tea.Cmd {
	return func() tea.Msg {
		ran, err := p.TryManualRefresh(ctx)
		if !ran {
			return refreshedMsg{skipped: true}
		}
		count := 0
		if rec, ok := manager.Selected(); ok {
			count = len(rec.Envelopes)
		}
		return refreshedMsg{count: count, err: err}
	}
}

func contentCmd(ctx context.Context, manager *inbox.Manager, uid api.UID) tea.Cmd {
	return func() tea.Msg {
		content, err := manager.Content(ctx, uid)
		return contentMsg{content: content, err: err}
	}
}

func attachmentsCmd(ctx context.Context, manager *inbox.Manager, uid api.UID) tea.Cmd {
	return func() tea.Msg {
		list, err := manager.Attachments(ctx, uid)
		return attachmentsMsg{attachments: list, err: err}
	}
}

func deleteCmd(ctx context.Context, manager *inbox.Manager, address string) tea.Cmd {
	return func() tea.Msg {
		return deletedMsg{address: address, err: manager.Delete(ctx, address)}
	}
}

func clearAllCmd(ctx context.Context, manager *inbox.Manager) tea.Cmd {
	return func() tea.Msg {
		return clearedMsg{err: manager.ClearAll(ctx)}
	}
}

func copyCmd(copyFn func(string) error, text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{err: copyFn(text)}
	}
}
