package tui

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/inbox"
	"github.com/bassamadnan/tmpmail/poller"
	"github.com/bassamadnan/tmpmail/util"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"go.uber.org/zap"
)

type viewState int

const (
	viewGenerate viewState = iota
	viewInbox
	viewContent
)

type confirmKind int

const (
	confirmNone confirmKind = iota
	confirmDelete
	confirmClear
)

const (
	appName            = "TEMP MAIL"
	envelopeItemHeight = 4
	maxUsernameLength  = 20
	defaultToast       = 3 * time.Second

	msgGenerated = "Email address generated successfully!"
	msgCopied    = "Email copied to clipboard!"
	msgDeleted   = "Email deleted successfully!"
	msgCleared   = "All emails cleared successfully!"
	msgRefreshed = "Emails refreshed successfully!"
	msgOffline   = "You are offline. Some features may not work."

	invalidUsername = "Username must be 3-20 characters, start with a letter, and contain only lowercase letters and numbers."
)

// modelGen numbers models so a rebuilt model can tell its own poller waiter
// from one left behind by its predecessor.
var modelGen atomic.Uint64

// HealthChecker probes the backend; *api.Client satisfies it.
type HealthChecker interface {
	Health(ctx context.Context) ([]byte, error)
}

type Options struct {
	Manager *inbox.Manager
	Poller  *poller.Poller
	// States delivers poller snapshots, usually a StateFeed fed by
	// poller.WithOnChange.
	States          <-chan poller.State
	Health          HealthChecker
	Copy            func(string) error
	RefreshInterval time.Duration
	ToastDuration   time.Duration
	Logger          *zap.Logger
}

type statusLine struct {
	text    string
	isError bool
	isTemp  bool
	seq     int
}

type Model struct {
	ctx             context.Context
	manager         *inbox.Manager
	poller          *poller.Poller
	states          <-chan poller.State
	health          HealthChecker
	copy            func(string) error
	refreshInterval time.Duration
	toastDuration   time.Duration
	logger          *zap.Logger
	gen             uint64

	currentView   viewState
	width, height int

	username   string
	inputErr   string
	domains    []string
	domainIdx  int
	generating bool

	selectedIdx   int
	pollState     poller.State
	confirm       confirmKind
	confirmTarget string
	loading       bool

	content         *api.Content
	contentUID      api.UID
	contentLines    []string
	contentScroll   int
	attachments     []api.Attachment
	showAttachments bool

	status  statusLine
	offline bool
}

func New(ctx context.Context, opts Options) Model {
	m := Model{
		ctx:             ctx,
		manager:         opts.Manager,
		poller:          opts.Poller,
		states:          opts.States,
		health:          opts.Health,
		copy:            opts.Copy,
		refreshInterval: opts.RefreshInterval,
		toastDuration:   opts.ToastDuration,
		logger:          opts.Logger,
		gen:             modelGen.Add(1),
		currentView:     viewGenerate,
	}
	if m.copy == nil {
		m.copy = util.CopyToClipboard
	}
	if m.toastDuration <= 0 {
		m.toastDuration = defaultToast
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	if m.manager.Len() > 0 {
		m.currentView = viewInbox
	}
	m.syncPoller()
	return m
}

func (m Model) Init() tea.Cmd {
	m.logger.Debug("tui model init")
	return tea.Batch(
		startupCmd(m.ctx, m.manager, m.health),
		statusTickCmd(time.Second),
		waitForPollerCmd(m.states, m.gen),
		healthTickCmd(),
	)
}

// syncPoller points the poller at the selected address.
func (m *Model) syncPoller() {
	target := ""
	if rec, ok := m.manager.Selected(); ok {
		target = rec.Address
	}
	m.poller.Configure(target, m.refreshInterval, m.manager.RefreshFunc())
	m.pollState = m.poller.State()
}

// retarget follows selection changes made outside the UI, such as the expiry
// sweep removing the selected address.
func (m *Model) retarget() {
	target := ""
	if rec, ok := m.manager.Selected(); ok {
		target = rec.Address
	}
	if target == m.poller.State().Target {
		return
	}
	m.logger.Info("selection changed outside the UI", zap.String("address", target))
	m.selectedIdx = 0
	m.syncPoller()
	if target == "" && m.currentView != viewGenerate {
		m.currentView = viewGenerate
		m.content = nil
		m.contentLines = nil
	}
}

func (m Model) visibleEnvelopes() []api.Envelope {
	rec, ok := m.manager.Selected()
	if !ok {
		return nil
	}
	return m.manager.Visible(rec)
}

func (m *Model) clampSelection() {
	n := len(m.visibleEnvelopes())
	if m.selectedIdx >= n {
		m.selectedIdx = n - 1
	}
	if m.selectedIdx < 0 {
		m.selectedIdx = 0
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
		if m.status.isError {
			m.status = statusLine{seq: m.status.seq}
		}
		if m.confirm != confirmNone {
			return m.updateConfirm(msg)
		}
		switch m.currentView {
		case viewGenerate:
			return m.updateGenerate(msg)
		case viewInbox:
			return m.updateInbox(msg)
		case viewContent:
			return m.updateContent(msg)
		}

	case pollerStateMsg:
		m.pollState = msg.state
		m.clampSelection()
		if msg.gen == m.gen {
			cmds = append(cmds, waitForPollerCmd(m.states, m.gen))
		}

	case pollerClosedMsg:
		m.logger.Debug("poller state feed closed")

	case startupMsg:
		if msg.err != nil {
			m.showError("Failed to load domains: "+errorText(msg.err), msg.err)
		} else {
			m.domains = msg.domains
			m.domainIdx = 0
		}
		switch {
		case msg.healthErr != nil:
			m.offline = isOffline(msg.healthErr)
		case msg.err == nil:
			m.offline = false
		}

	case healthMsg:
		m.offline = msg.err != nil && isOffline(msg.err)

	case healthTickMsg:
		cmds = append(cmds, healthCmd(m.ctx, m.health), healthTickCmd())

	case generatedMsg:
		m.generating = false
		if msg.record.Address == "" {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		m.offline = false
		m.username = ""
		m.inputErr = ""
		m.selectedIdx = 0
		m.currentView = viewInbox
		m.syncPoller()
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
		} else {
			cmds = append(cmds, m.showToast(msgGenerated))
		}

	case refreshedMsg:
		m.loading = false
		m.pollState = m.poller.State()
		if msg.skipped {
			break
		}
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		m.offline = false
		m.clampSelection()
		cmds = append(cmds, m.showToast(fmt.Sprintf("%s Found %d emails.", msgRefreshed, msg.count)))

	case contentMsg:
		m.loading = false
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		m.offline = false
		m.content = msg.content
		m.contentLines = contentBody(msg.content)
		m.contentScroll = 0
		m.attachments = nil
		m.showAttachments = false
		m.currentView = viewContent

	case attachmentsMsg:
		m.loading = false
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		m.attachments = msg.attachments
		m.showAttachments = true

	case deletedMsg:
		// The record leaves memory even when persisting fails.
		m.selectedIdx = 0
		m.syncPoller()
		if m.manager.Len() == 0 {
			m.currentView = viewGenerate
		}
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		cmds = append(cmds, m.showToast(msgDeleted))

	case clearedMsg:
		m.selectedIdx = 0
		m.currentView = viewGenerate
		m.syncPoller()
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		cmds = append(cmds, m.showToast(msgCleared))

	case copiedMsg:
		if msg.err != nil {
			m.showError(errorText(msg.err), msg.err)
			break
		}
		cmds = append(cmds, m.showToast(msgCopied))

	case StatusTickMsg:
		m.retarget()
		cmds = append(cmds, statusTickCmd(time.Second))

	case clearTempStatusMsg:
		if m.status.isTemp && m.status.seq == msg.seq {
			m.status = statusLine{seq: m.status.seq}
		}

	case ErrorMsg:
		m.showError(errorText(msg.Err), msg.Err)
	}

	return m, tea.Batch(cmds...)
}

func (m Model) updateGenerate(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		if m.generating {
			return m, nil
		}
		if m.username != "" && !util.ValidateUsername(m.username) {
			m.inputErr = invalidUsername
			return m, nil
		}
		m.generating = true
		return m, generateCmd(m.ctx, m.manager, m.username, m.currentDomain())
	case tea.KeyBackspace:
		if m.username != "" {
			_, size := utf8.DecodeLastRuneInString(m.username)
			m.username = m.username[:len(m.username)-size]
		}
	case tea.KeyTab:
		m.cycleDomain(1)
	case tea.KeyShiftTab:
		m.cycleDomain(-1)
	case tea.KeyCtrlR:
		m.username = util.RandomUsername()
	case tea.KeyEsc:
		if m.manager.Len() > 0 {
			m.currentView = viewInbox
		}
		return m, nil
	case tea.KeyRunes:
		for _, r := range strings.ToLower(string(msg.Runes)) {
			if utf8.RuneCountInString(m.username) >= maxUsernameLength {
				break
			}
			m.username += string(r)
		}
	default:
		return m, nil
	}
	m.inputErr = ""
	if m.username != "" && !util.ValidateUsername(m.username) {
		m.inputErr = invalidUsername
	}
	return m, nil
}

func (m Model) currentDomain() string {
	if len(m.domains) == 0 {
		return ""
	}
	return m.domains[m.domainIdx]
}

func (m *Model) cycleDomain(delta int) {
	n := len(m.domains)
	if n == 0 {
		return
	}
	m.domainIdx = ((m.domainIdx+delta)%n + n) % n
}

func (m Model) updateInbox(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	rec, ok := m.manager.Selected()
	envelopes := m.visibleEnvelopes()

	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "up", "k":
		if m.selectedIdx > 0 {
			m.selectedIdx--
		}
	case "down", "j":
		if m.selectedIdx < len(envelopes)-1 {
			m.selectedIdx++
		}
	case "enter":
		if m.loading || m.selectedIdx >= len(envelopes) {
			return m, nil
		}
		m.loading = true
		m.contentUID = envelopes[m.selectedIdx].UID
		return m, contentCmd(m.ctx, m.manager, m.contentUID)
	case "left", "h", "[":
		m.manager.SelectNext(-1)
		m.selectedIdx = 0
		m.syncPoller()
	case "right", "l", "]":
		m.manager.SelectNext(1)
		m.selectedIdx = 0
		m.syncPoller()
	case "c":
		if ok {
			return m, copyCmd(m.copy, rec.Address)
		}
	case "r":
		if m.loading || m.pollState.InFlight || !ok {
			return m, nil
		}
		m.loading = true
		return m, manualRefreshCmd(m.ctx, m.poller, m.manager)
	case "a":
		m.poller.Toggle()
		m.pollState = m.poller.State()
	case "n":
		m.currentView = viewGenerate
	case "d":
		if ok {
			m.confirm = confirmDelete
			m.confirmTarget = rec.Address
		}
	case "X":
		if ok {
			m.confirm = confirmClear
		}
	}
	return m, nil
}

func (m Model) updateConfirm(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y", "enter":
		kind, target := m.confirm, m.confirmTarget
		m.confirm, m.confirmTarget = confirmNone, ""
		if kind == confirmDelete {
			return m, deleteCmd(m.ctx, m.manager, target)
		}
		return m, clearAllCmd(m.ctx, m.manager)
	case "n", "N", "esc":
		m.confirm, m.confirmTarget = confirmNone, ""
	}
	return m, nil
}

func (m Model) updateContent(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	page := m.contentPageHeight()
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "esc", "backspace", "b":
		m.currentView = viewInbox
		m.content = nil
		m.contentLines = nil
		m.attachments = nil
		m.showAttachments = false
	case "up", "k":
		m.scrollContent(-1)
	case "down", "j":
		m.scrollContent(1)
	case "pgup":
		m.scrollContent(-page)
	case "pgdown", " ":
		m.scrollContent(page)
	case "t":
		if m.content != nil && m.content.HasAttachments && !m.loading {
			m.loading = true
			return m, attachmentsCmd(m.ctx, m.manager, m.contentUID)
		}
	}
	return m, nil
}

func (m *Model) scrollContent(delta int) {
	m.contentScroll += delta
	if maxScroll := len(m.contentLines) - 1; m.contentScroll > maxScroll {
		m.contentScroll = maxScroll
	}
	if m.contentScroll < 0 {
		m.contentScroll = 0
	}
}

func (m *Model) showToast(text string) tea.Cmd {
	m.status.seq++
	seq := m.status.seq
	m.status.text = text
	m.status.isError = false
	m.status.isTemp = true
	return tea.Tick(m.toastDuration, func(time.Time) tea.Msg {
		return clearTempStatusMsg{seq: seq}
	})
}

func (m *Model) showError(text string, err error) {
	m.status.seq++
	m.status.text = text
	m.status.isError = true
	m.status.isTemp = false
	if err != nil {
		m.logger.Warn("operation failed", zap.Error(err))
		if isOffline(err) {
			m.offline = true
		}
	}
}

func (m Model) standardStatus() string {
	hints := ""
	switch m.currentView {
	case viewGenerate:
		hints = "[Enter]:Generate | [Tab]:Domain | [Ctrl+R]:Random | [Esc]:Inbox | [Ctrl+C]:Quit"
	case viewInbox:
		hints = "[↑↓/jk]:Nav | [Enter]:Open | [←→]:Address | [r]:Refresh | [a]:Auto | [c]:Copy | [n]:New | [d]:Delete | [X]:Clear | [q]:Quit"
	case viewContent:
		hints = "[Esc]:Back | [↑↓/jk]:Scroll | [t]:Attachments | [q]:Quit"
	}
	return fmt.Sprintf(" %s | %d addresses | %s", time.Now().Format("15:04:05"), m.manager.Len(), hints)
}

func (m Model) contentPageHeight() int {
	h := m.height - 12
	if h < 1 {
		h = 1
	}
	return h
}

func (m Model) View() string {
	if m.width == 0 || m.height == 0 {
		return "Initializing terminal size..."
	}

	header := BannerStyle.Render(appName)
	if m.offline {
		header = lipgloss.JoinHorizontal(lipgloss.Top, header, "  ", OfflineStyle.Render(msgOffline))
	}
	statusBar := m.renderStatusBar()
	bodyHeight := m.height - lipgloss.Height(header) - lipgloss.Height(statusBar)
	if bodyHeight < 0 {
		bodyHeight = 0
	}

	var body string
	switch {
	case m.confirm != confirmNone:
		body = lipgloss.Place(m.width-2, bodyHeight, lipgloss.Center, lipgloss.Center, m.renderConfirm())
	case m.currentView == viewGenerate:
		body = m.renderGenerate(m.width - 2)
	case m.currentView == viewInbox:
		body = m.renderInbox(m.width-2, bodyHeight)
	case m.currentView == viewContent:
		body = m.renderContent(m.width-2, bodyHeight)
	}
	body = lipgloss.NewStyle().Height(bodyHeight).MaxHeight(bodyHeight).Render(body)

	return AppStyle.Render(lipgloss.JoinVertical(lipgloss.Left, header, body, statusBar))
}

func (m Model) renderGenerate(width int) string {
	var b strings.Builder
	b.WriteString("Create a temporary address\n\n")

	input := m.username
	if input == "" {
		input = DimStyle.Render("Enter username (optional)")
	}
	style := InputStyle
	if m.inputErr != "" {
		style = InputErrorStyle
	}
	boxWidth := width - 4
	if boxWidth > 40 {
		boxWidth = 40
	}
	if boxWidth < 10 {
		boxWidth = 10
	}
	b.WriteString(style.Width(boxWidth).Render(input + "▏"))
	b.WriteString("\n")
	if m.inputErr != "" {
		b.WriteString(ErrorTextStyle.Render(m.inputErr) + "\n")
	}

	domain := m.currentDomain()
	if domain == "" {
		domain = DimStyle.Render("loading domains...")
	}
	fmt.Fprintf(&b, "\n%s @%s\n", HeaderKeyStyle.Render("Domain:"), domain)
	if len(m.domains) > 1 {
		b.WriteString(DimStyle.Render(fmt.Sprintf("(%d/%d, Tab to change)", m.domainIdx+1, len(m.domains))) + "\n")
	}
	if m.generating {
		b.WriteString("\nGenerating...\n")
	}
	return b.String()
}

func (m Model) renderInbox(width, height int) string {
	rec, ok := m.manager.Selected()
	if !ok {
		return "No addresses yet. Press n to generate one."
	}

	var top strings.Builder
	position := ""
	for i, r := range m.manager.Records() {
		if r.Address == rec.Address {
			position = fmt.Sprintf(" (%d/%d)", i+1, m.manager.Len())
		}
	}
	top.WriteString(AddressStyle.Render(truncate(rec.Address, maxAddressDisplayLength)) + DimStyle.Render(position) + "\n")

	auto := "Auto-refresh: " + KeyHintStyle.Render("OFF")
	if m.pollState.Enabled {
		auto = fmt.Sprintf("Auto-refresh: %s · next in %ds", KeyHintStyle.Render("ON"), m.pollState.SecondsRemaining)
	}
	if m.pollState.InFlight || m.loading {
		auto += " · Refreshing..."
	}
	top.WriteString(auto + "\n")
	now := time.Now()
	checked := "never"
	if rec.LastChecked != nil {
		checked = util.FormatRelative(*rec.LastChecked, now)
	}
	top.WriteString(DimStyle.Render("Last checked: "+checked) + "\n")

	header := top.String()
	listHeight := height - lipgloss.Height(header)
	envelopes := m.manager.Visible(rec)
	if len(envelopes) == 0 {
		return header + "\nNo emails yet. Waiting for incoming mail..."
	}

	fit := listHeight / envelopeItemHeight
	if fit < 1 {
		fit = 1
	}
	start := 0
	if m.selectedIdx >= fit {
		start = m.selectedIdx - fit + 1
	}
	end := start + fit
	if end > len(envelopes) {
		end = len(envelopes)
	}
	itemWidth := width - EnvelopeItemStyle.GetHorizontalPadding() - 4
	if itemWidth < 10 {
		itemWidth = 10
	}
	items := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		items = append(items, formatEnvelopeListItem(envelopes[i], i == m.selectedIdx, itemWidth, now))
	}
	return header + strings.Join(items, "\n")
}

func (m Model) renderContent(width, height int) string {
	c := m.content
	if c == nil {
		return "No email content to display."
	}
	title := TitleStyle.Render("Email Content")

	var headers strings.Builder
	fmt.Fprintf(&headers, "%s %s\n", HeaderKeyStyle.Render("Subject:"), HeaderValStyle.Render(c.Subject))
	fmt.Fprintf(&headers, "%s %s\n", HeaderKeyStyle.Render("From:"), HeaderValStyle.Render(c.Sender))
	fmt.Fprintf(&headers, "%s %s\n", HeaderKeyStyle.Render("To:"), HeaderValStyle.Render(c.Recipient))
	dateStr := c.Date
	if t := c.Time(); !t.IsZero() {
		dateStr = t.Local().Format(time.RFC1123)
	}
	fmt.Fprintf(&headers, "%s %s\n", HeaderKeyStyle.Render("Date:"), HeaderValStyle.Render(dateStr))
	headers.WriteString(strings.Repeat(BoxHorizontal, width/2))

	var footer strings.Builder
	if c.HasAttachments {
		footer.WriteString(AttachmentStyle.Render(fmt.Sprintf("📎 This email has %d attachment(s)", c.AttachmentCount)))
		if !m.showAttachments {
			footer.WriteString(DimStyle.Render("  [t] list"))
		}
		for _, a := range m.attachments {
			fmt.Fprintf(&footer, "\n  %s  %s  %s", a.Filename, DimStyle.Render(a.ContentType), util.FormatFileSize(a.Size))
		}
	}

	renderedHeaders := headers.String()
	bodyHeight := height - lipgloss.Height(title) - lipgloss.Height(renderedHeaders) - ContentBoxStyle.GetVerticalFrameSize() - 1
	if footer.Len() > 0 {
		bodyHeight -= lipgloss.Height(footer.String())
	}
	if bodyHeight < 1 {
		bodyHeight = 1
	}
	start := m.contentScroll
	if start > len(m.contentLines) {
		start = len(m.contentLines)
	}
	end := start + bodyHeight
	if end > len(m.contentLines) {
		end = len(m.contentLines)
	}
	innerWidth := width - ContentBoxStyle.GetHorizontalFrameSize()
	if innerWidth < 1 {
		innerWidth = 1
	}
	visibleBody := lipgloss.NewStyle().Width(innerWidth).MaxHeight(bodyHeight).
		Render(strings.Join(m.contentLines[start:end], "\n"))

	parts := []string{title, renderedHeaders, BodyStyle.Render(visibleBody)}
	if footer.Len() > 0 {
		parts = append(parts, footer.String())
	}
	return ContentBoxStyle.Width(innerWidth).Render(lipgloss.JoinVertical(lipgloss.Left, parts...))
}

func (m Model) renderConfirm() string {
	question := "Delete all addresses? This cannot be undone."
	if m.confirm == confirmDelete {
		question = fmt.Sprintf("Delete %s?", m.confirmTarget)
	}
	return ConfirmStyle.Render(question + "\n\n" + KeyHintStyle.Render("[y]") + " confirm   " + KeyHintStyle.Render("[n]") + " cancel")
}

func (m Model) renderStatusBar() string {
	style := StatusBarNormalStyle
	text := m.status.text
	switch {
	case m.status.isError:
		style = StatusBarErrorStyle
	case m.status.isTemp:
		style = StatusBarSuccessStyle
	case text == "":
		text = m.standardStatus()
	}
	width := m.width - 2
	if width < 1 {
		width = 1
	}
	return style.Width(width).Render(truncate(text, width-2))
}
