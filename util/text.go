package util

import (
	"fmt"
	"math/rand/v2"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

const (
	UsernameMinLength = 3
	UsernameMaxLength = 20
)

var (
	usernamePattern = regexp.MustCompile(`^[a-z][a-z0-9]{2,19}$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// ValidateUsername reports whether s is 3-20 lowercase letters and digits
// starting with a letter.
func ValidateUsername(s string) bool {
	if len(s) < UsernameMinLength || len(s) > UsernameMaxLength {
		return false
	}
	return usernamePattern.MatchString(s)
}

func ValidateEmail(s string) bool {
	return emailPattern.MatchString(s)
}

var (
	adjectives = []string{
		"cool", "fast", "smart", "quick", "bright", "sharp", "swift", "bold",
		"clever", "wise", "brave", "calm", "eager", "fair", "kind", "neat",
	}
	nouns = []string{
		"user", "mail", "temp", "box", "inbox", "post", "msg", "note",
		"bird", "star", "moon", "wave", "fire", "wind", "rock", "tree",
	}
)

// RandomUsername returns adjective + noun + three digits, e.g. "swiftmoon042".
// The result always passes ValidateUsername.
func RandomUsername() string {
	return fmt.Sprintf("%s%s%03d",
		adjectives[rand.IntN(len(adjectives))],
		nouns[rand.IntN(len(nouns))],
		rand.IntN(1000))
}

// TruncateText shortens text to maxLen runes plus "...". When the cut leaves
// a space past 80% of maxLen, the cut moves back to that word boundary.
func TruncateText(text string, maxLen int) string {
	if text == "" || maxLen < 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	truncated := string(runes[:maxLen])
	lastSpace := strings.LastIndex(truncated, " ")
	if lastSpace >= 0 && float64(len([]rune(truncated[:lastSpace]))) > float64(maxLen)*0.8 {
		return truncated[:lastSpace] + "..."
	}
	return truncated + "..."
}

// FormatFileSize renders a byte count with binary units.
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 B"
	}
	return humanize.IBytes(uint64(bytes))
}

// FormatRelative renders t relative to now ("3 minutes ago"). Dates more than
// a week old are shown as a calendar date.
func FormatRelative(t, now time.Time) string {
	if t.IsZero() {
		return "Unknown date"
	}
	if now.Sub(t) > 7*24*time.Hour {
		return t.Local().Format("Jan 2, 2006")
	}
	return humanize.RelTime(t, now, "ago", "from now")
}
