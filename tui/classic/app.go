// Package classic is the tview front end: an envelope list, a preview pane
// and a full-screen message view over the same manager and poller as the
// bubbletea UI.
package classic

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/apperror"
	"github.com/bassamadnan/tmpmail/inbox"
	"github.com/bassamadnan/tmpmail/poller"
	"github.com/bassamadnan/tmpmail/store"
	"github.com/bassamadnan/tmpmail/util"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"go.uber.org/zap"
)

const flashDuration = 4 * time.Second

type Options struct {
	Manager         *inbox.Manager
	Poller          *poller.Poller
	States          <-chan poller.State
	Copy            func(string) error
	RefreshInterval time.Duration
	Logger          *zap.Logger
}

type App struct {
	*tview.Application
	rootPages     *tview.Pages
	dashboardFlex *tview.Flex
	envelopeList  *EnvelopeListView
	previewPane   *PreviewPane
	focusedView   *FocusedView
	statusBar     *tview.TextView

	ctx      context.Context
	manager  *inbox.Manager
	poller   *poller.Poller
	states   <-chan poller.State
	copy     func(string) error
	interval time.Duration
	logger   *zap.Logger

	// Fields below are only touched on the tview event goroutine.
	pollState  poller.State
	previewUID api.UID
	flash      string
	flashSeq   int
}

func NewApp(ctx context.Context, opts Options) *App {
	a := &App{
		Application: tview.NewApplication(),
		ctx:         ctx,
		manager:     opts.Manager,
		poller:      opts.Poller,
		states:      opts.States,
		copy:        opts.Copy,
		interval:    opts.RefreshInterval,
		logger:      opts.Logger,
	}
	if a.copy == nil {
		a.copy = util.CopyToClipboard
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}

	a.envelopeList = NewEnvelopeListView(a)
	a.previewPane = NewPreviewPane()
	a.focusedView = NewFocusedView()

	a.dashboardFlex = tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.envelopeList.List, 0, 1, true).
		AddItem(a.previewPane, 0, 3, false)
	a.dashboardFlex.SetBackgroundColor(tcell.ColorDefault)

	a.statusBar = tview.NewTextView().
		SetDynamicColors(true).
		SetText(" [::d]Status: Initializing...").
		SetTextAlign(tview.AlignLeft)
	a.statusBar.SetBackgroundColor(tcell.ColorDefault)

	mainLayoutWithStatus := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.dashboardFlex, 0, 1, true).
		AddItem(a.statusBar, 1, 0, false)
	mainLayoutWithStatus.SetBackgroundColor(tcell.ColorDefault)

	a.rootPages = tview.NewPages().
		AddPage(PageDashboard, mainLayoutWithStatus, true, true).
		AddPage(PageFocused, a.focusedView, true, false)

	a.Application.SetRoot(a.rootPages, true).EnableMouse(true)
	a.setGlobalKeybindings()

	a.syncPoller()
	a.reload()
	return a
}

func (a *App) Run() error {
	go a.processStates()
	go a.updateStatusTimer()
	a.Application.SetFocus(a.envelopeList.List)
	return a.Application.Run()
}

func (a *App) setGlobalKeybindings() {
	a.Application.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyCtrlC {
			a.Stop()
			return nil
		}
		currentPage, _ := a.rootPages.GetFrontPage()
		if currentPage == PageConfirm {
			return event
		}
		if event.Rune() == 'q' || event.Rune() == 'Q' {
			a.Stop()
			return nil
		}
		if currentPage == PageFocused {
			if event.Key() == tcell.KeyEscape {
				a.ShowDashboardView()
				return nil
			}
			return event
		}

		switch event.Rune() {
		case 'r':
			a.refresh()
		case 'a':
			a.poller.Toggle()
		case '[', 'h':
			a.switchAddress(-1)
		case ']', 'l':
			a.switchAddress(1)
		case 'n':
			a.generate()
		case 'c':
			a.copyAddress()
		case 'd':
			a.confirmDelete()
		default:
			return event
		}
		return nil
	})
}

// processStates applies poller snapshots on the UI goroutine. When a refresh
// completes the envelope list is reloaded from the manager.
func (a *App) processStates() {
	for s := range a.states {
		state := s
		a.QueueUpdateDraw(func() {
			finished := a.pollState.InFlight && !state.InFlight
			a.pollState = state
			if finished {
				a.reload()
			}
			a.setStandardStatusMessage()
		})
	}
	a.logger.Debug("poller state feed closed")
}

func (a *App) updateStatusTimer() {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.QueueUpdateDraw(func() {
				a.retarget()
				a.setStandardStatusMessage()
			})
		}
	}
}

// retarget follows selection changes made outside the UI, such as the expiry
// sweep removing the selected address.
func (a *App) retarget() {
	target := ""
	if rec, ok := a.manager.Selected(); ok {
		target = rec.Address
	}
	if target == a.poller.State().Target {
		return
	}
	a.logger.Info("selection changed outside the UI", zap.String("address", target))
	a.syncPoller()
	a.previewUID = ""
	a.reload()
}

func (a *App) setStandardStatusMessage() {
	if a.flash != "" {
		a.statusBar.SetText(a.flash)
		return
	}
	address := ""
	if rec, ok := a.manager.Selected(); ok {
		address = rec.Address
	}
	a.statusBar.SetText(statusText(address, a.envelopeList.GetItemCount(), a.pollState, time.Now()))
}

func statusText(address string, count int, s poller.State, now time.Time) string {
	if address == "" {
		address = "no address"
	}
	auto := "[::d]Auto: off[::-]"
	if s.Enabled {
		auto = fmt.Sprintf("Auto: %ds", s.SecondsRemaining)
	}
	if s.InFlight {
		auto += " [yellow]refreshing...[-]"
	}
	return fmt.Sprintf(" [::b]%s[::-] | %s | %s | %d emails | [::b]r[::-]:Refresh [::b]a[::-]:Auto [::b]h/l[::-]:Address [::b]n[::-]:New [::b]c[::-]:Copy [::b]d[::-]:Delete [::b]Ent[::-]:Full [::b]Q[::-]:Quit",
		tview.Escape(address), auto, now.Format("15:04:05"), count)
}

// showFlash replaces the status line for a few seconds.
func (a *App) showFlash(text string) {
	a.flashSeq++
	seq := a.flashSeq
	a.flash = " " + text
	a.statusBar.SetText(a.flash)
	time.AfterFunc(flashDuration, func() {
		a.QueueUpdateDraw(func() {
			if a.flashSeq == seq {
				a.flash = ""
				a.setStandardStatusMessage()
			}
		})
	})
}

func (a *App) showSuccess(text string) {
	a.showFlash("[green]" + tview.Escape(text) + "[-]")
}

func (a *App) showError(err error) {
	a.logger.Warn("operation failed", zap.Error(err))
	a.showFlash("[red]" + tview.Escape(errorText(err)) + "[-]")
}

func errorText(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

func (a *App) syncPoller() {
	target := ""
	if rec, ok := a.manager.Selected(); ok {
		target = rec.Address
	}
	a.poller.Configure(target, a.interval, a.manager.RefreshFunc())
	a.pollState = a.poller.State()
}

// reload redraws the list for the selected address.
func (a *App) reload() {
	rec, ok := a.manager.Selected()
	if !ok {
		a.envelopeList.SetTitle("Inbox")
		a.envelopeList.SetEnvelopes(nil, time.Now())
		a.previewUID = ""
		a.previewPane.SetWelcomeMessage("")
		return
	}
	a.envelopeList.SetTitle(fmt.Sprintf("Inbox: %s", tview.Escape(util.TruncateText(rec.Address, 30))))
	a.envelopeList.SetEnvelopes(a.manager.Visible(rec), time.Now())
	if a.envelopeList.GetItemCount() == 0 {
		a.previewUID = ""
		a.previewPane.SetWelcomeMessage(rec.Address)
	}
}

func (a *App) refresh() {
	if a.pollState.InFlight {
		return
	}
	go func() {
		ran, err := a.poller.TryManualRefresh(a.ctx)
		if !ran {
			return
		}
		a.QueueUpdateDraw(func() {
			if err != nil {
				a.showError(err)
				return
			}
			a.reload()
			a.showSuccess(fmt.Sprintf("Emails refreshed successfully! Found %d emails.", a.envelopeList.GetItemCount()))
		})
	}()
}

func (a *App) switchAddress(delta int) {
	if a.manager.Len() < 2 {
		return
	}
	a.manager.SelectNext(delta)
	a.syncPoller()
	a.previewUID = ""
	a.reload()
	a.setStandardStatusMessage()
}

func (a *App) generate() {
	a.showFlash("Generating address...")
	go func() {
		var record store.AddressRecord
		domains, err := a.manager.Domains(a.ctx)
		if err == nil && len(domains) == 0 {
			err = apperror.New(apperror.KindService, "No domains available.", nil)
		}
		if err == nil {
			record, err = a.manager.Generate(a.ctx, "", domains[0])
		}
		a.QueueUpdateDraw(func() {
			if record.Address != "" {
				a.syncPoller()
				a.previewUID = ""
				a.reload()
			}
			if err != nil {
				a.showError(err)
				return
			}
			a.showSuccess("Email address generated successfully!")
		})
	}()
}

func (a *App) copyAddress() {
	rec, ok := a.manager.Selected()
	if !ok {
		return
	}
	if err := a.copy(rec.Address); err != nil {
		a.showError(err)
		return
	}
	a.showSuccess("Email copied to clipboard!")
}

func (a *App) confirmDelete() {
	rec, ok := a.manager.Selected()
	if !ok {
		return
	}
	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete %s?", rec.Address)).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(_ int, label string) {
			a.rootPages.RemovePage(PageConfirm)
			a.ShowDashboardView()
			if label != "Delete" {
				return
			}
			go func() {
				err := a.manager.Delete(a.ctx, rec.Address)
				a.QueueUpdateDraw(func() {
					a.syncPoller()
					a.previewUID = ""
					a.reload()
					if err != nil {
						a.showError(err)
						return
					}
					a.showSuccess("Email deleted successfully!")
				})
			}()
		})
	a.rootPages.AddPage(PageConfirm, modal, true, true)
	a.Application.SetFocus(modal)
}

// showPreview loads the message under the cursor into the preview pane.
func (a *App) showPreview(env api.Envelope) {
	if env.UID == a.previewUID {
		return
	}
	a.previewUID = env.UID
	a.previewPane.SetLoading(env)
	go func() {
		content, err := a.manager.Content(a.ctx, env.UID)
		a.QueueUpdateDraw(func() {
			if a.previewUID != env.UID {
				return
			}
			if err != nil {
				a.previewPane.SetError(errorText(err))
				return
			}
			a.previewPane.SetContent(content)
		})
	}()
}

func (a *App) openFocused(env api.Envelope) {
	go func() {
		content, err := a.manager.Content(a.ctx, env.UID)
		var attachments []api.Attachment
		if err == nil && content.HasAttachments {
			var attErr error
			attachments, attErr = a.manager.Attachments(a.ctx, env.UID)
			if attErr != nil {
				a.logger.Warn("list attachments", zap.String("uid", env.UID.String()), zap.Error(attErr))
			}
		}
		a.QueueUpdateDraw(func() {
			if err != nil {
				a.showError(err)
				return
			}
			a.ShowFocusedView(content, attachments)
		})
	}()
}

func (a *App) ShowFocusedView(content *api.Content, attachments []api.Attachment) {
	a.focusedView.SetContent(content, attachments)
	a.rootPages.SwitchToPage(PageFocused)
	a.Application.SetFocus(a.focusedView.textView)
}

func (a *App) ShowDashboardView() {
	a.rootPages.SwitchToPage(PageDashboard)
	a.Application.SetFocus(a.envelopeList.List)
}
