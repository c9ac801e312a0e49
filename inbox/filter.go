package inbox

import (
	"strings"

	"github.com/bassamadnan/tmpmail/api"
)

// Filter hides envelopes by sender or subject keyword. Matching is
// case-insensitive substring matching.
type Filter struct {
	IgnoreSenders           []string
	IgnoreKeywordsInSubject []string
}

func (f Filter) Hides(e api.Envelope) bool {
	sender := strings.ToLower(e.Sender)
	for _, s := range f.IgnoreSenders {
		if s != "" && strings.Contains(sender, strings.ToLower(s)) {
			return true
		}
	}
	subject := strings.ToLower(e.Subject)
	for _, k := range f.IgnoreKeywordsInSubject {
		if k != "" && strings.Contains(subject, strings.ToLower(k)) {
			return true
		}
	}
	return false
}

// Apply returns the envelopes f does not hide, in order.
func (f Filter) Apply(envelopes []api.Envelope) []api.Envelope {
	if len(f.IgnoreSenders) == 0 && len(f.IgnoreKeywordsInSubject) == 0 {
		return envelopes
	}
	out := make([]api.Envelope, 0, len(envelopes))
	for _, e := range envelopes {
		if !f.Hides(e) {
			out = append(out, e)
		}
	}
	return out
}
