package editor

import (
	"fmt"

	"github.com/dirac-sh/dirac/history"
	"github.com/dirac-sh/dirac/term"
)

// searchLoop runs the incremental history search until the user accepts
// a match (Enter), cancels (Ctrl-G / Esc), or types a non-search key.
func (e *Editor) searchLoop(prompt string, dir history.Direction) {
	if e.hist == nil {
		return
	}

	saved := e.buf.String()
	query := ""
	matchAt := e.hist.Len() // search position, one past the newest
	if dir == history.Forward {
		matchAt = -1
	}
	found := false

	drawSearch := func() {
		label := "reverse-i-search"
		if dir == history.Forward {
			label = "i-search"
		}
		marker := ""
		if query != "" && !found {
			marker = "failing "
		}
		e.t.WriteString(fmt.Sprintf("\r\x1b[K(%s%s)`%s': %s", marker, label, query, e.buf.String()))
	}

	research := func(from int) {
		entry, ok := e.hist.Search(query, from, dir)
		found = ok
		if ok {
			matchAt = e.hist.Offset(entry.Index)
			e.buf.Set(entry.Text)
		}
	}

	drawSearch()
	for {
		key, err := e.t.ReadKey()
		if err != nil {
			break
		}

		switch {
		case key.Kind == term.KeyRune:
			query += string(key.Rune)
			// Widen from one past the current match so the match can
			// stay put while the query grows.
			if dir == history.Backward {
				research(matchAt + 1)
			} else {
				research(matchAt - 1)
			}

		case key.Kind == term.KeyBackspace:
			if query != "" {
				rs := []rune(query)
				query = string(rs[:len(rs)-1])
				if dir == history.Backward {
					matchAt = e.hist.Len()
				} else {
					matchAt = -1
				}
				if query != "" {
					research(matchAt)
				} else {
					found = false
					e.buf.Set(saved)
				}
			}

		case key == term.Ctrl('r'):
			dir = history.Backward
			research(matchAt)

		case key == term.Ctrl('s'):
			dir = history.Forward
			research(matchAt)

		case key == term.Ctrl('g') || key.Kind == term.KeyEsc:
			e.buf.Set(saved)
			e.render.dirty = true
			e.draw(prompt)
			return

		default:
			// Any other key leaves search mode with the match in the
			// buffer; the key is not replayed (same as the simplest
			// readline behavior for sequence keys).
			e.render.dirty = true
			e.draw(prompt)
			return
		}

		drawSearch()
	}

	e.render.dirty = true
	e.draw(prompt)
}
