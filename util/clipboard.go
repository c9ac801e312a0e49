package util

import (
	"io"
	"os"

	"github.com/aymanbagabas/go-osc52/v2"
	"github.com/bassamadnan/tmpmail/apperror"
)

// CopyToClipboard places text on the system clipboard through the terminal's
// OSC52 escape sequence.
func CopyToClipboard(text string) error {
	return CopyTo(os.Stderr, text)
}

// CopyTo writes the OSC52 sequence for text to w. Inside tmux or screen the
// sequence is wrapped so it reaches the outer terminal.
func CopyTo(w io.Writer, text string) error {
	seq := osc52.New(text)
	switch {
	case os.Getenv("TMUX") != "":
		seq = seq.Tmux()
	case os.Getenv("STY") != "":
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(w); err != nil {
		return apperror.New(apperror.KindClipboard, "", err)
	}
	return nil
}
