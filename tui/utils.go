package tui

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/apperror"
	"github.com/bassamadnan/tmpmail/util"
	"github.com/charmbracelet/lipgloss"
)

const (
	maxAddressDisplayLength = 30
	maxSubjectDisplayLength = 40
)

// truncate shortens s to maxLen runes, adding "..." when cut.
func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	return util.TruncateText(s, maxLen)
}

// errorText is the user-facing text for err.
func errorText(err error) string {
	var appErr *apperror.Error
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}

// isOffline reports whether err means the backend could not be reached.
func isOffline(err error) bool {
	switch apperror.KindOf(err) {
	case apperror.KindNetwork, apperror.KindTimeout:
		return true
	}
	return false
}

func senderName(sender string) string {
	short := sender
	if idx := strings.Index(short, "<"); idx > 0 {
		short = strings.TrimSpace(short[:idx])
	}
	short = strings.Trim(short, `"`)
	if short == "" {
		return "(Unknown Sender)"
	}
	return short
}

func formatDateLine(date string, now time.Time) string {
	t := api.ParseDate(date)
	if t.IsZero() {
		if date == "" {
			return "Unknown date"
		}
		return date
	}
	return util.FormatRelative(t, now)
}

// formatEnvelopeListItem renders one envelope as a four-line box.
// itemContentTextWidth is the width of the text between the vertical bars.
func formatEnvelopeListItem(env api.Envelope, isSelected bool, itemContentTextWidth int, now time.Time) string {
	var boxCharStyle, subjectStyle, secondaryTextStyle, itemBlockStyle lipgloss.Style
	if isSelected {
		boxCharStyle = SelectedBoxCharStyle
		subjectStyle = SelectedSubjectStyle
		secondaryTextStyle = SelectedSecondaryTextStyle
		itemBlockStyle = SelectedEnvelopeItemStyle
	} else {
		boxCharStyle = NormalBoxCharStyle
		subjectStyle = NormalSubjectStyle
		secondaryTextStyle = NormalSecondaryTextStyle
		itemBlockStyle = EnvelopeItemStyle
	}

	subject := env.Subject
	if subject == "" {
		subject = "(No Subject)"
	}
	if env.HasAttachments {
		subject = "📎 " + subject
	}
	subjectWidth := itemContentTextWidth
	if subjectWidth > maxSubjectDisplayLength {
		subjectWidth = maxSubjectDisplayLength
	}
	paddedSubjectText := padRight(truncate(subject, subjectWidth), itemContentTextWidth)

	dateStr := formatDateLine(env.Date, now)
	from := senderName(env.Sender)
	maxFromLen := itemContentTextWidth - lipgloss.Width(dateStr) - 3
	var fromDate string
	if maxFromLen < 1 {
		fromDate = truncate(dateStr, itemContentTextWidth)
	} else {
		fromDate = fmt.Sprintf("%s · %s", truncate(from, maxFromLen), dateStr)
	}
	paddedFromDateText := padRight(fromDate, itemContentTextWidth)

	horizontalBar := strings.Repeat(BoxHorizontal, itemContentTextWidth+2)
	line1 := boxCharStyle.Render(BoxTopLeft + horizontalBar + BoxTopRight)
	line2 := fmt.Sprintf("%s %s %s",
		boxCharStyle.Render(BoxVertical),
		subjectStyle.Render(paddedSubjectText),
		boxCharStyle.Render(BoxVertical),
	)
	line3 := fmt.Sprintf("%s %s %s",
		boxCharStyle.Render(BoxVertical),
		secondaryTextStyle.Render(paddedFromDateText),
		boxCharStyle.Render(BoxVertical),
	)
	line4 := boxCharStyle.Render(BoxBottomLeft + horizontalBar + BoxBottomRight)
	return itemBlockStyle.Render(strings.Join([]string{line1, line2, line3, line4}, "\n"))
}

// padRight pads s with spaces to width display cells.
func padRight(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		return s + strings.Repeat(" ", gap)
	}
	return s
}

// contentBody renders the message body as plain lines: HTML converted to text
// when present, otherwise the text part.
func contentBody(c *api.Content) []string {
	if c == nil {
		return nil
	}
	body := ""
	if c.HTMLContent != "" {
		text, err := util.HTMLToText(c.HTMLContent)
		if err == nil {
			body = text
		}
	}
	if body == "" {
		body = c.TextContent
	}
	if strings.TrimSpace(body) == "" {
		return []string{"No content available for this email."}
	}
	return strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")
}
