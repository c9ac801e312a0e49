package classic

import (
	"fmt"
	"strings"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/util"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const (
	PageDashboard = "dashboard"
	PageFocused   = "focused"
	PageConfirm   = "confirm"
)

type EnvelopeListView struct {
	*tview.List
	app       *App
	envelopes []api.Envelope
}

func NewEnvelopeListView(app *App) *EnvelopeListView {
	list := tview.NewList().
		ShowSecondaryText(true).
		SetSecondaryTextColor(tcell.ColorDimGray)

	list.SetBackgroundColor(tcell.ColorDefault)
	list.SetSelectedStyle(tcell.StyleDefault.
		Foreground(tcell.ColorWhite).
		Background(tcell.ColorSteelBlue).
		Attributes(tcell.AttrBold))

	list.SetBorder(true).SetTitle("Inbox")

	elv := &EnvelopeListView{List: list, app: app}

	list.SetChangedFunc(func(index int, _ string, _ string, _ rune) {
		if elv.app == nil {
			return
		}
		if index >= 0 && index < len(elv.envelopes) {
			elv.app.showPreview(elv.envelopes[index])
		}
	})

	list.SetSelectedFunc(func(index int, _ string, _ string, _ rune) {
		if elv.app == nil {
			return
		}
		if index >= 0 && index < len(elv.envelopes) {
			elv.app.openFocused(elv.envelopes[index])
		}
	})

	return elv
}

// Current returns the envelope under the cursor.
func (elv *EnvelopeListView) Current() (api.Envelope, bool) {
	i := elv.List.GetCurrentItem()
	if i < 0 || i >= len(elv.envelopes) {
		return api.Envelope{}, false
	}
	return elv.envelopes[i], true
}

// SetEnvelopes replaces the list, keeping the cursor on the same message
// when it is still present.
func (elv *EnvelopeListView) SetEnvelopes(envelopes []api.Envelope, now time.Time) {
	current, hadCurrent := elv.Current()
	elv.envelopes = append([]api.Envelope(nil), envelopes...)

	elv.List.Clear()
	target := 0
	for i, env := range elv.envelopes {
		mainText, secondaryText := listItemText(env, now)
		elv.List.AddItem(mainText, secondaryText, 0, nil)
		if hadCurrent && env.UID == current.UID {
			target = i
		}
	}
	if elv.List.GetItemCount() > 0 {
		elv.List.SetCurrentItem(target)
	}
}

func listItemText(env api.Envelope, now time.Time) (string, string) {
	subject := env.Subject
	if subject == "" {
		subject = "(No Subject)"
	}
	subject = util.TruncateText(subject, 25)
	if env.HasAttachments {
		subject = "📎 " + subject
	}

	dateStr := "???"
	if t := env.Time(); !t.IsZero() {
		local := t.Local()
		if y, m, d := local.Date(); y == now.Year() && m == now.Month() && d == now.Day() {
			dateStr = local.Format("15:04")
		} else {
			dateStr = local.Format("Jan02")
		}
	}

	from := env.Sender
	if idx := strings.Index(from, "<"); idx > 0 {
		from = strings.TrimSpace(from[:idx])
	}
	from = util.TruncateText(strings.Trim(from, `"`), 15)

	mainText := "[white]" + tview.Escape(subject)
	secondaryText := fmt.Sprintf("[::d]%s · %s\n%s", tview.Escape(from), dateStr, strings.Repeat("─", 20))
	return mainText, secondaryText
}

// bodyText converts the HTML part to text when present, otherwise returns
// the text part.
func bodyText(c *api.Content) string {
	if c.HTMLContent != "" {
		if text, err := util.HTMLToText(c.HTMLContent); err == nil && strings.TrimSpace(text) != "" {
			return text
		}
	}
	if strings.TrimSpace(c.TextContent) == "" {
		return "No content available for this email."
	}
	return strings.ReplaceAll(c.TextContent, "\r\n", "\n")
}

func contentDate(c *api.Content) string {
	if t := c.Time(); !t.IsZero() {
		return t.Local().Format(time.RFC1123)
	}
	if c.Date == "" {
		return "N/A"
	}
	return c.Date
}

type PreviewPane struct {
	*tview.TextView
	isWelcome bool
}

func NewPreviewPane() *PreviewPane {
	tv := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	tv.SetBackgroundColor(tcell.ColorDefault)
	tv.SetBorder(true).SetTitle("Preview")
	return &PreviewPane{TextView: tv, isWelcome: true}
}

func (pp *PreviewPane) SetLoading(env api.Envelope) {
	pp.isWelcome = false
	pp.SetText("\n[::d]Loading message...[::-]").ScrollToBeginning()
	pp.SetTitle(fmt.Sprintf("Preview: %s", tview.Escape(util.TruncateText(env.Subject, 40))))
}

func (pp *PreviewPane) SetError(text string) {
	pp.isWelcome = false
	pp.SetText("\n[red]" + tview.Escape(text) + "[-]").ScrollToBeginning()
}

func (pp *PreviewPane) SetContent(c *api.Content) {
	pp.isWelcome = false
	var builder strings.Builder
	fmt.Fprintf(&builder, "[::b]From:[::-] %s\n", tview.Escape(c.Sender))
	fmt.Fprintf(&builder, "[::b]Date:[::-] %s\n", contentDate(c))
	fmt.Fprintf(&builder, "[::b]Subject:[::-] %s\n\n", tview.Escape(c.Subject))
	builder.WriteString(strings.Repeat("─", 60) + "\n\n")
	builder.WriteString(tview.Escape(bodyText(c)))
	pp.SetText(builder.String()).ScrollToBeginning().SetTextAlign(tview.AlignLeft)
	pp.SetTitle(fmt.Sprintf("Preview: %s", tview.Escape(util.TruncateText(c.Subject, 40))))
}

func (pp *PreviewPane) SetWelcomeMessage(address string) {
	pp.isWelcome = true
	text := "\n[lightblue::b]tmpmail[-::-]\n\n"
	if address == "" {
		text += "No address yet.\n\n[::d]Press n to generate one.\nPress Q or Ctrl+C to quit.[::-]"
	} else {
		text += fmt.Sprintf("Watching [::b]%s[::-]\n\n[::d]Navigate emails with ↑ ↓ keys.\nPress Enter to open in full view.\nPress r to refresh, a to toggle auto-refresh.[::-]", tview.Escape(address))
	}
	pp.SetText(text).ScrollToBeginning()
	pp.SetTitle("Home")
}

func (pp *PreviewPane) IsShowingWelcome() bool {
	return pp.isWelcome
}

type FocusedView struct {
	*tview.Frame
	textView *tview.TextView
}

func NewFocusedView() *FocusedView {
	textView := tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	textView.SetBackgroundColor(tcell.ColorDefault)

	frame := tview.NewFrame(textView).
		AddText("", true, tview.AlignCenter, tcell.ColorYellow).
		AddText("Press Esc to go back", false, tview.AlignCenter, tcell.ColorDimGray)
	frame.SetBorder(true).SetBackgroundColor(tcell.ColorDefault)

	return &FocusedView{Frame: frame, textView: textView}
}

func (fv *FocusedView) SetContent(c *api.Content, attachments []api.Attachment) {
	var builder strings.Builder
	fmt.Fprintf(&builder, "[::b]From:[::-] %s\n", tview.Escape(c.Sender))
	fmt.Fprintf(&builder, "[::b]To:[::-] %s\n", tview.Escape(c.Recipient))
	fmt.Fprintf(&builder, "[::b]Date:[::-] %s\n", contentDate(c))
	fmt.Fprintf(&builder, "[::b]Subject:[::-] %s\n", tview.Escape(c.Subject))
	if c.HasAttachments {
		fmt.Fprintf(&builder, "[::b]Attachments:[::-] %d\n", c.AttachmentCount)
		for _, a := range attachments {
			fmt.Fprintf(&builder, "  %s [::d]%s %s[::-]\n", tview.Escape(a.Filename), a.ContentType, util.FormatFileSize(a.Size))
		}
	}
	builder.WriteString("\n" + strings.Repeat("─", 70) + "\n\n")
	builder.WriteString(tview.Escape(bodyText(c)))
	fv.textView.SetText(builder.String()).ScrollToBeginning()
	fv.Frame.Clear().
		AddText(fmt.Sprintf("Subject: %s", util.TruncateText(c.Subject, 60)), true, tview.AlignCenter, tcell.ColorYellow).
		AddText("Press Esc to go back", false, tview.AlignCenter, tcell.ColorDimGray).
		SetPrimitive(fv.textView)
}
