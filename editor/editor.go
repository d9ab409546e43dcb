package editor

import (
	"errors"
	"io"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/history"
	"github.com/dirac-sh/dirac/term"
)

// ErrInterrupt is returned when the user cancels the line with Ctrl-C.
var ErrInterrupt = errors.New("interrupted")

// Term is the slice of the terminal adapter the editor renders through.
type Term interface {
	ReadKey() (term.Key, error)
	WriteString(string) (int, error)
}

// Completer produces candidates for the token under the cursor.
// start is the byte offset where the token begins; the accepted
// candidate's Insert text replaces line[start:cursor].
type Completer interface {
	Complete(line string, cursor int) (start int, cands []dirac.Candidate)
}

// Editor reads and edits one line at a time in raw mode.
type Editor struct {
	t       Term
	binds   *bindings
	bindSrc func(term.Key) (Op, bool)
	buf     *Buffer
	hist    *history.Store
	comp    Completer

	render renderState

	// history cycling state for the current line
	histPos int // offset into history, or -1 while editing the draft
	draft   string

	// completion list state
	listCands []dirac.Candidate
	listSel   int
	listStart int // byte offset of the token being completed

	preload string
}

// New returns an editor over t. hist and comp may be nil, which
// disables history cycling/search and completion respectively.
func New(t Term, hist *history.Store, comp Completer) *Editor {
	return &Editor{
		t:     t,
		binds: newBindings(),
		buf:   NewBuffer(),
		hist:  hist,
		comp:  comp,
	}
}

// Bind registers a key binding. Later registrations win on conflict,
// which makes this the binding extension point for plugins.
func (e *Editor) Bind(key term.Key, op Op) {
	e.binds.bind(key, op)
}

// SetBindingSource installs a lookup consulted before the built-in
// table on every key. Contributed bindings live behind it, so they
// appear and disappear with their plugin instead of being copied in.
func (e *Editor) SetBindingSource(fn func(term.Key) (Op, bool)) {
	e.bindSrc = fn
}

// Buffer exposes the underlying input buffer, mainly for tests.
func (e *Editor) Buffer() *Buffer { return e.buf }

// Preload seeds the next ReadLine with text, cursor at the end. Used
// when a suggested command comes back for editing.
func (e *Editor) Preload(text string) {
	e.preload = text
}

// ReadLine displays prompt and reads one line. It returns io.EOF on
// Ctrl-D over an empty line and ErrInterrupt on Ctrl-C.
func (e *Editor) ReadLine(prompt string) (string, error) {
	e.buf.Reset()
	if e.preload != "" {
		e.buf.Set(e.preload)
		e.preload = ""
	}
	e.histPos = -1
	e.draft = ""
	e.clearList()
	e.render.reset()
	e.draw(prompt)

	for {
		key, err := e.t.ReadKey()
		if err != nil {
			return "", err
		}

		if done, line, err := e.handleKey(prompt, key); done {
			return line, err
		}

		e.draw(prompt)
	}
}

// handleKey applies one key event. done is true when the read is over.
func (e *Editor) handleKey(prompt string, key term.Key) (done bool, line string, err error) {
	// An active completion list captures Tab and Enter.
	if len(e.listCands) > 0 {
		switch key.Kind {
		case term.KeyTab:
			e.listSel = (e.listSel + 1) % len(e.listCands)
			return false, "", nil
		case term.KeyEnter:
			e.acceptCandidate()
			return false, "", nil
		case term.KeyEsc:
			e.dismissList()
			return false, "", nil
		default:
			// Any edit key accepts the current selection first.
			e.acceptCandidate()
		}
	}

	switch {
	case key.Kind == term.KeyEnter:
		e.finishLine()
		return true, e.buf.String(), nil

	case key == term.Ctrl('c'):
		e.finishLine()
		return true, "", ErrInterrupt

	case key == term.Ctrl('d'):
		if e.buf.Len() == 0 {
			e.finishLine()
			return true, "", io.EOF
		}
		e.buf.DeleteForward()

	case key == term.Ctrl('l'):
		e.t.WriteString("\x1b[2J\x1b[H")
		e.render.reset()

	case key == term.Ctrl('r'):
		e.searchLoop(prompt, history.Backward)

	case key == term.Ctrl('s'):
		e.searchLoop(prompt, history.Forward)

	case key.Kind == term.KeyUp:
		e.cycleHistory(-1)

	case key.Kind == term.KeyDown:
		e.cycleHistory(+1)

	case key.Kind == term.KeyTab:
		e.startCompletion()

	default:
		if op, ok := e.lookupBinding(key); ok {
			op(e.buf)
		} else if key.Kind == term.KeyRune {
			e.buf.Insert(key.Rune)
		}
	}
	return false, "", nil
}

// lookupBinding checks the dynamic source first so a contributed
// binding can shadow a built-in one.
func (e *Editor) lookupBinding(key term.Key) (Op, bool) {
	if e.bindSrc != nil {
		if op, ok := e.bindSrc(key); ok {
			return op, true
		}
	}
	return e.binds.lookup(key)
}

// finishLine dismisses any candidate list and moves to a fresh row.
func (e *Editor) finishLine() {
	if len(e.listCands) > 0 {
		e.dismissList()
	}
	e.t.WriteString("\r\n")
}

// cycleHistory moves through history entries; dir is -1 for older,
// +1 for newer. The draft line is restored when cycling back past the
// newest entry.
func (e *Editor) cycleHistory(dir int) {
	if e.hist == nil || e.hist.Len() == 0 {
		return
	}

	switch {
	case dir < 0:
		if e.histPos == -1 {
			e.draft = e.buf.String()
			e.histPos = e.hist.Len()
		}
		if e.histPos == 0 {
			return
		}
		e.histPos--
	case dir > 0:
		if e.histPos == -1 {
			return
		}
		e.histPos++
		if e.histPos >= e.hist.Len() {
			e.histPos = -1
			e.buf.Set(e.draft)
			return
		}
	}

	if entry, ok := e.hist.At(e.histPos); ok {
		e.buf.Set(entry.Text)
	}
}

// startCompletion asks the completer for candidates. A single
// unambiguous candidate is inserted directly; multiple candidates open
// the selection list; zero candidates is a no-op.
func (e *Editor) startCompletion() {
	if e.comp == nil {
		return
	}
	line := e.buf.String()
	cursor := len(string(e.buf.Runes()[:e.buf.Pos()]))
	start, cands := e.comp.Complete(line, cursor)
	switch len(cands) {
	case 0:
		return
	case 1:
		e.spliceCandidate(start, cands[0])
	default:
		e.listCands = cands
		e.listSel = 0
		e.listStart = start
	}
}

// acceptCandidate inserts the selected candidate and closes the list.
func (e *Editor) acceptCandidate() {
	c := e.listCands[e.listSel]
	start := e.listStart
	e.dismissList()
	e.spliceCandidate(start, c)
}

// spliceCandidate replaces line[start:cursor] with the candidate text.
func (e *Editor) spliceCandidate(start int, c dirac.Candidate) {
	line := e.buf.String()
	cursor := len(string(e.buf.Runes()[:e.buf.Pos()]))
	if start < 0 || start > cursor || cursor > len(line) {
		return
	}
	e.buf.Set(line[:start] + c.Insert)
	// Keep any tail that followed the cursor, leaving the cursor at the
	// end of the inserted text.
	if tail := line[cursor:]; tail != "" {
		pos := e.buf.Pos()
		e.buf.InsertString(tail)
		e.buf.pos = pos
	}
}

// dismissList closes the candidate list and erases it from the screen.
func (e *Editor) dismissList() {
	e.clearList()
	e.t.WriteString("\x1b[s\x1b[B\r\x1b[J\x1b[u")
}

func (e *Editor) clearList() {
	e.listCands = nil
	e.listSel = 0
	e.listStart = 0
}
