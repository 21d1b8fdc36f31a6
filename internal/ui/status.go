package ui

import (
	"fmt"
	"io"
)

// Screen redraws a whole frame in place, for watch mode.
type Screen struct {
	out     io.Writer
	enabled bool
}

// NewScreen clears between frames only when enabled (a terminal); otherwise
// frames are separated by a blank line.
func NewScreen(out io.Writer, enabled bool) *Screen {
	return &Screen{out: out, enabled: enabled}
}

func (s *Screen) Draw(frame string) {
	if s.enabled {
		fmt.Fprint(s.out, "\033[H\033[2J")
	} else {
		fmt.Fprintln(s.out)
	}
	fmt.Fprintln(s.out, frame)
}
