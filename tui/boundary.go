package tui

import (
	"fmt"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

// Factory builds a fresh root model, re-reading persisted state.
type Factory func() tea.Model

// Boundary wraps a root model and turns panics in Update or View into a
// fallback screen. From there r resumes the current model and R rebuilds it
// from the factory.
type Boundary struct {
	factory Factory
	model   tea.Model
	logger  *zap.Logger

	failure       any
	width, height int
}

func NewBoundary(factory Factory, logger *zap.Logger) *Boundary {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Boundary{factory: factory, model: factory(), logger: logger}
}

func (b *Boundary) Init() tea.Cmd {
	return b.model.Init()
}

// Failed reports whether the fallback screen is showing.
func (b *Boundary) Failed() bool { return b.failure != nil }

func (b *Boundary) fail(r any) {
	b.failure = r
	b.logger.Error("recovered from panic",
		zap.Any("panic", r),
		zap.ByteString("stack", debug.Stack()))
}

func (b *Boundary) Update(msg tea.Msg) (result tea.Model, cmd tea.Cmd) {
	if size, ok := msg.(tea.WindowSizeMsg); ok {
		b.width, b.height = size.Width, size.Height
	}
	if b.failure != nil {
		return b.updateFailed(msg)
	}

	defer func() {
		if r := recover(); r != nil {
			b.fail(r)
			result, cmd = b, nil
		}
	}()
	next, cmd := b.model.Update(msg)
	b.model = next
	return b, cmd
}

func (b *Boundary) updateFailed(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return b, nil
	}
	switch key.String() {
	case "ctrl+c", "q":
		return b, tea.Quit
	case "r":
		b.failure = nil
		b.logger.Info("resuming after panic")
		return b, b.resize()
	case "R":
		b.failure = nil
		b.model = b.factory()
		b.logger.Info("reloaded after panic")
		return b, tea.Batch(b.model.Init(), b.resize())
	}
	return b, nil
}

// resize replays the last known window size to the wrapped model.
func (b *Boundary) resize() tea.Cmd {
	if b.width == 0 && b.height == 0 {
		return nil
	}
	size := tea.WindowSizeMsg{Width: b.width, Height: b.height}
	return func() tea.Msg { return size }
}

func (b *Boundary) View() (view string) {
	if b.failure != nil {
		return b.fallback()
	}
	defer func() {
		if r := recover(); r != nil {
			b.fail(r)
			view = b.fallback()
		}
	}()
	return b.model.View()
}

func (b *Boundary) fallback() string {
	text := fmt.Sprintf("%s\n\nSomething went wrong.\n%v\n\n%s try again   %s reload   %s quit",
		BannerStyle.Render(appName),
		b.failure,
		KeyHintStyle.Render("[r]"),
		KeyHintStyle.Render("[R]"),
		KeyHintStyle.Render("[q]"))
	if b.width == 0 || b.height == 0 {
		return text
	}
	return lipgloss.Place(b.width, b.height, lipgloss.Center, lipgloss.Center, text)
}
