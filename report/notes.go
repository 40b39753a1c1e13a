package report

import (
	"strings"

	"github.com/mitchellh/go-wordwrap"

	"jobstats/notes"
)

const (
	noteWidth  = 78
	noteIndent = "    "
	noteBullet = "  * "
)

// FormatNote lays out a note: the first item is wrapped behind a bullet, later text items are
// wrapped at the same indentation, and reference items (links, commands) are set off on their own
// lines.  Every note is followed by an empty line.

func FormatNote(n notes.Note, st Style) string {
	var b strings.Builder
	for i, item := range n.Items {
		switch {
		case i == 0:
			b.WriteString(fill(item, noteBullet))
		case notes.IsReference(item):
			b.WriteString("\n" + noteIndent + "  " + item + "\n")
		case item == "\n":
			b.WriteString(item)
		default:
			b.WriteString(fill(item, noteIndent))
		}
	}
	text := b.String()
	switch n.Severity {
	case notes.Bold:
		text = st.Bold(text)
	case notes.BoldRed:
		text = st.BoldRed(text)
	}
	if len(n.Items) > 0 && notes.IsReference(n.Items[len(n.Items)-1]) {
		return text + "\n"
	}
	return text + "\n\n"
}

// FormatNotes concatenates the formatted notes.

func FormatNotes(ns []notes.Note, st Style) string {
	var b strings.Builder
	for _, n := range ns {
		b.WriteString(FormatNote(n, st))
	}
	return b.String()
}

func fill(text, firstIndent string) string {
	wrapped := wordwrap.WrapString(strings.Join(strings.Fields(text), " "), noteWidth-uint(len(noteIndent)))
	lines := strings.Split(wrapped, "\n")
	for i := range lines {
		if i == 0 {
			lines[i] = firstIndent + lines[i]
		} else {
			lines[i] = noteIndent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
