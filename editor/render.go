package editor

import (
	"fmt"
	"strings"
)

// renderState remembers what is currently on screen so draw can repaint
// only the portion of the line that changed.
type renderState struct {
	line   string // last drawn buffer contents
	col    int    // last cursor column, relative to the line start
	width  int    // prompt visible width
	dirty  bool   // force a full repaint on the next draw
	listed int    // candidate rows currently displayed below the line
}

func (r *renderState) reset() {
	r.line = ""
	r.col = 0
	r.width = 0
	r.dirty = true
	r.listed = 0
}

// draw repaints the prompt line, then any decoration (matching-bracket
// highlight, completion list).
func (e *Editor) draw(prompt string) {
	line := e.buf.String()
	col := len(e.buf.Runes()[:e.buf.Pos()])
	pw := visibleWidth(prompt)

	var out strings.Builder

	switch {
	case e.render.dirty || pw != e.render.width:
		// Full repaint.
		out.WriteString("\r\x1b[K")
		out.WriteString(prompt)
		out.WriteString(line)
		moveCols(&out, runeLen(line), col)

	case line == e.render.line:
		// Only the cursor moved.
		moveFrom(&out, pw+e.render.col, pw+col)

	default:
		// Repaint from the first differing rune.
		diff := commonPrefix(e.render.line, line)
		moveFrom(&out, pw+e.render.col, pw+diff)
		out.WriteString("\x1b[K")
		out.WriteString(string([]rune(line)[diff:]))
		moveCols(&out, runeLen(line), col)
	}

	e.render.line = line
	e.render.col = col
	e.render.width = pw
	e.render.dirty = false

	e.decorateBracket(&out, prompt, line, col)
	e.drawList(&out)

	if out.Len() > 0 {
		e.t.WriteString(out.String())
	}
}

// decorateBracket repaints the bracket matching the one left of the
// cursor in inverse video. Highlight only, never auto-insertion.
func (e *Editor) decorateBracket(out *strings.Builder, prompt, line string, col int) {
	runes := []rune(line)
	if col == 0 || col > len(runes) {
		return
	}
	closer := runes[col-1]
	opener, ok := map[rune]rune{')': '(', ']': '[', '}': '{'}[closer]
	if !ok {
		return
	}
	depth := 0
	match := -1
	for i := col - 1; i >= 0; i-- {
		switch runes[i] {
		case closer:
			depth++
		case opener:
			depth--
			if depth == 0 {
				match = i
			}
		}
		if match >= 0 {
			break
		}
	}
	if match < 0 {
		return
	}

	pw := visibleWidth(prompt)
	moveFrom(out, pw+col, pw+match)
	fmt.Fprintf(out, "\x1b[7m%c\x1b[m", runes[match])
	moveFrom(out, pw+match+1, pw+col)
	// The SGR rewrite invalidates the diff state for the next draw.
	e.render.dirty = true
}

// drawList renders the completion candidates below the line, keeping
// the cursor where it was.
func (e *Editor) drawList(out *strings.Builder) {
	if len(e.listCands) == 0 {
		if e.render.listed > 0 {
			out.WriteString("\x1b[s\x1b[B\r\x1b[J\x1b[u")
			e.render.listed = 0
		}
		return
	}

	out.WriteString("\x1b[s")
	out.WriteString("\x1b[B\r\x1b[J\x1b[A")
	for i, c := range e.listCands {
		out.WriteString("\r\n")
		if i == e.listSel {
			fmt.Fprintf(out, "\x1b[7m %s \x1b[m", c.Display)
		} else {
			fmt.Fprintf(out, " %s ", c.Display)
		}
	}
	out.WriteString("\x1b[u")
	e.render.listed = len(e.listCands)
}

// moveFrom emits the cursor motion from column a to column b.
func moveFrom(out *strings.Builder, a, b int) {
	switch {
	case b < a:
		fmt.Fprintf(out, "\x1b[%dD", a-b)
	case b > a:
		fmt.Fprintf(out, "\x1b[%dC", b-a)
	}
}

// moveCols positions the cursor at col when the line was just written
// to its full length.
func moveCols(out *strings.Builder, lineLen, col int) {
	if back := lineLen - col; back > 0 {
		fmt.Fprintf(out, "\x1b[%dD", back)
	}
}

func runeLen(s string) int { return len([]rune(s)) }

// commonPrefix returns the length in runes of the shared prefix.
func commonPrefix(a, b string) int {
	ar, br := []rune(a), []rune(b)
	n := len(ar)
	if len(br) < n {
		n = len(br)
	}
	for i := 0; i < n; i++ {
		if ar[i] != br[i] {
			return i
		}
	}
	return n
}

// visibleWidth counts display cells, skipping ANSI SGR sequences so a
// colored prompt positions the cursor correctly.
func visibleWidth(s string) int {
	width := 0
	inEsc := false
	for _, r := range s {
		switch {
		case inEsc:
			if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') {
				inEsc = false
			}
		case r == 0x1b:
			inEsc = true
		default:
			width++
		}
	}
	return width
}
