package tui

import (
	"time"

	"github.com/bassamadnan/tmpmail/api"
	"github.com/bassamadnan/tmpmail/poller"
	"github.com/bassamadnan/tmpmail/store"
)

// ErrorMsg reports a failure from a command.
type ErrorMsg struct{ Err error }

func (e ErrorMsg) Error() string { return e.Err.Error() }

// pollerStateMsg carries a snapshot read by the waiter of model generation gen.
type pollerStateMsg struct {
	state poller.State
	gen   uint64
}

// pollerClosedMsg means the state feed was closed.
type pollerClosedMsg struct{}

type startupMsg struct {
	domains   []string
	err       error
	healthErr error
}

type healthMsg struct{ err error }

type generatedMsg struct {
	record store.AddressRecord
	err    error
}

type refreshedMsg struct {
	count int
	err   error
	// skipped means another refresh was already running.
	skipped bool
}

type contentMsg struct {
	content *api.Content
	err     error
}

type attachmentsMsg struct {
	attachments []api.Attachment
	err         error
}

type deletedMsg struct {
	address string
	err     error
}

type clearedMsg struct{ err error }

type copiedMsg struct{ err error }

type StatusTickMsg struct{ Time time.Time }

type healthTickMsg struct{}

// clearTempStatusMsg clears the toast with the same sequence number.
type clearTempStatusMsg struct{ seq int }
