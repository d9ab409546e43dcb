// Package editor is the line editor: an input buffer with cursor and
// undo tracking, emacs-style key bindings, and a minimal-repaint
// renderer over the terminal adapter.
package editor

import "unicode"

// Buffer is the in-progress input line. The cursor offset is always
// within [0, length]; every editing operation preserves that invariant.
type Buffer struct {
	runes []rune
	pos   int

	kill string // single-slot kill ring

	undo []snapshot
}

type snapshot struct {
	runes []rune
	pos   int
}

// maxUndo bounds the undo stack so a long session cannot grow it
// without limit.
const maxUndo = 256

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// String returns the buffer contents.
func (b *Buffer) String() string { return string(b.runes) }

// Runes returns the raw rune slice. Callers must not mutate it.
func (b *Buffer) Runes() []rune { return b.runes }

// Pos returns the cursor offset in runes.
func (b *Buffer) Pos() int { return b.pos }

// Len returns the buffer length in runes.
func (b *Buffer) Len() int { return len(b.runes) }

// save pushes an undo snapshot before a mutation.
func (b *Buffer) save() {
	snap := snapshot{runes: append([]rune(nil), b.runes...), pos: b.pos}
	b.undo = append(b.undo, snap)
	if len(b.undo) > maxUndo {
		b.undo = b.undo[1:]
	}
}

// clamp forces the cursor back into [0, len].
func (b *Buffer) clamp() {
	if b.pos < 0 {
		b.pos = 0
	}
	if b.pos > len(b.runes) {
		b.pos = len(b.runes)
	}
}

// Insert places r at the cursor and advances past it.
func (b *Buffer) Insert(r rune) {
	b.save()
	b.runes = append(b.runes, 0)
	copy(b.runes[b.pos+1:], b.runes[b.pos:])
	b.runes[b.pos] = r
	b.pos++
}

// InsertString places s at the cursor and advances past it.
func (b *Buffer) InsertString(s string) {
	if s == "" {
		return
	}
	b.save()
	rs := []rune(s)
	b.runes = append(b.runes, make([]rune, len(rs))...)
	copy(b.runes[b.pos+len(rs):], b.runes[b.pos:len(b.runes)-len(rs)])
	copy(b.runes[b.pos:], rs)
	b.pos += len(rs)
}

// Set replaces the whole buffer, placing the cursor at the end.
func (b *Buffer) Set(text string) {
	b.save()
	b.runes = []rune(text)
	b.pos = len(b.runes)
}

// DeleteBack removes the rune before the cursor.
func (b *Buffer) DeleteBack() {
	if b.pos == 0 {
		return
	}
	b.save()
	copy(b.runes[b.pos-1:], b.runes[b.pos:])
	b.runes = b.runes[:len(b.runes)-1]
	b.pos--
}

// DeleteForward removes the rune under the cursor.
func (b *Buffer) DeleteForward() {
	if b.pos >= len(b.runes) {
		return
	}
	b.save()
	copy(b.runes[b.pos:], b.runes[b.pos+1:])
	b.runes = b.runes[:len(b.runes)-1]
}

// MoveLeft steps the cursor one rune left.
func (b *Buffer) MoveLeft() {
	b.pos--
	b.clamp()
}

// MoveRight steps the cursor one rune right.
func (b *Buffer) MoveRight() {
	b.pos++
	b.clamp()
}

// MoveStart places the cursor at the line start.
func (b *Buffer) MoveStart() { b.pos = 0 }

// MoveEnd places the cursor at the line end.
func (b *Buffer) MoveEnd() { b.pos = len(b.runes) }

// MoveWordLeft steps the cursor to the start of the previous word.
func (b *Buffer) MoveWordLeft() {
	for b.pos > 0 && unicode.IsSpace(b.runes[b.pos-1]) {
		b.pos--
	}
	for b.pos > 0 && !unicode.IsSpace(b.runes[b.pos-1]) {
		b.pos--
	}
}

// MoveWordRight steps the cursor past the end of the next word.
func (b *Buffer) MoveWordRight() {
	n := len(b.runes)
	for b.pos < n && unicode.IsSpace(b.runes[b.pos]) {
		b.pos++
	}
	for b.pos < n && !unicode.IsSpace(b.runes[b.pos]) {
		b.pos++
	}
}

// KillToEnd removes from the cursor to the line end, saving the killed
// text in the kill slot.
func (b *Buffer) KillToEnd() {
	if b.pos >= len(b.runes) {
		return
	}
	b.save()
	b.kill = string(b.runes[b.pos:])
	b.runes = b.runes[:b.pos]
}

// KillToStart removes from the line start to the cursor.
func (b *Buffer) KillToStart() {
	if b.pos == 0 {
		return
	}
	b.save()
	b.kill = string(b.runes[:b.pos])
	b.runes = append(b.runes[:0], b.runes[b.pos:]...)
	b.pos = 0
}

// KillWordBack removes the word before the cursor.
func (b *Buffer) KillWordBack() {
	if b.pos == 0 {
		return
	}
	b.save()
	start := b.pos
	for start > 0 && unicode.IsSpace(b.runes[start-1]) {
		start--
	}
	for start > 0 && !unicode.IsSpace(b.runes[start-1]) {
		start--
	}
	b.kill = string(b.runes[start:b.pos])
	b.runes = append(b.runes[:start], b.runes[b.pos:]...)
	b.pos = start
}

// Yank inserts the most recent kill at the cursor. The kill slot holds
// only the latest kill, not a ring of arbitrary depth.
func (b *Buffer) Yank() {
	if b.kill == "" {
		return
	}
	b.InsertString(b.kill)
}

// Kill returns the current kill-slot contents.
func (b *Buffer) Kill() string { return b.kill }

// Undo restores the state before the most recent mutation.
func (b *Buffer) Undo() {
	if len(b.undo) == 0 {
		return
	}
	snap := b.undo[len(b.undo)-1]
	b.undo = b.undo[:len(b.undo)-1]
	b.runes = snap.runes
	b.pos = snap.pos
	b.clamp()
}

// Reset clears contents, cursor, and undo history; the kill slot
// survives so a kill can be yanked into the next line.
func (b *Buffer) Reset() {
	b.runes = b.runes[:0]
	b.pos = 0
	b.undo = b.undo[:0]
}
