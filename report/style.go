package report

import (
	"os"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

// Style applies terminal attributes.  The zero Style is plain text.

type Style struct {
	bold    *color.Color
	red     *color.Color
	boldRed *color.Color
}

// NewStyle returns a colouring style if enabled, otherwise a plain one.  The decision is made here
// and not by the color package's global terminal detection, so that output to files and to the
// REST API can be coloured or not on request.

func NewStyle(enabled bool) Style {
	if !enabled {
		return Style{}
	}
	s := Style{
		bold:    color.New(color.Bold),
		red:     color.New(color.FgRed),
		boldRed: color.New(color.Bold, color.FgRed),
	}
	s.bold.EnableColor()
	s.red.EnableColor()
	s.boldRed.EnableColor()
	return s
}

// AutoStyle colours only when f is a terminal and colour has not been turned off.

func AutoStyle(f *os.File, noColor bool) Style {
	fd := f.Fd()
	return NewStyle(!noColor && (isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)))
}

func (s Style) Enabled() bool {
	return s.bold != nil
}

func (s Style) Bold(x string) string {
	return apply(s.bold, x)
}

func (s Style) Red(x string) string {
	return apply(s.red, x)
}

func (s Style) BoldRed(x string) string {
	return apply(s.boldRed, x)
}

func apply(c *color.Color, x string) string {
	if c == nil || x == "" {
		return x
	}
	return c.Sprint(x)
}
