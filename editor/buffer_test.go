package editor

import (
	"math/rand"
	"testing"
)

func TestCursorStaysInBounds(t *testing.T) {
	// Property check from the editor contract: after any sequence of
	// operations the cursor offset stays within [0, length].
	ops := []func(*Buffer){
		func(b *Buffer) { b.Insert('x') },
		func(b *Buffer) { b.InsertString("ab") },
		(*Buffer).DeleteBack,
		(*Buffer).DeleteForward,
		(*Buffer).MoveLeft,
		(*Buffer).MoveRight,
		(*Buffer).MoveStart,
		(*Buffer).MoveEnd,
		(*Buffer).MoveWordLeft,
		(*Buffer).MoveWordRight,
		(*Buffer).KillToEnd,
		(*Buffer).KillToStart,
		(*Buffer).KillWordBack,
		(*Buffer).Yank,
		(*Buffer).Undo,
	}

	rng := rand.New(rand.NewSource(1))
	b := NewBuffer()
	for i := 0; i < 5000; i++ {
		ops[rng.Intn(len(ops))](b)
		if b.Pos() < 0 || b.Pos() > b.Len() {
			t.Fatalf("op %d: cursor %d out of [0,%d]", i, b.Pos(), b.Len())
		}
	}
}

func TestInsertAtCursor(t *testing.T) {
	b := NewBuffer()
	b.InsertString("hello")
	b.MoveStart()
	b.MoveRight()
	b.Insert('X')
	if got := b.String(); got != "hXello" {
		t.Errorf("buffer = %q, want hXello", got)
	}
	if b.Pos() != 2 {
		t.Errorf("pos = %d, want 2", b.Pos())
	}
}

func TestDeleteBackAndForward(t *testing.T) {
	b := NewBuffer()
	b.InsertString("abc")
	b.MoveLeft()
	b.DeleteBack() // removes 'b'
	if got := b.String(); got != "ac" {
		t.Errorf("after DeleteBack: %q, want ac", got)
	}
	b.DeleteForward() // removes 'c'
	if got := b.String(); got != "a" {
		t.Errorf("after DeleteForward: %q, want a", got)
	}

	// No-ops at the boundaries.
	b.MoveStart()
	b.DeleteBack()
	b.MoveEnd()
	b.DeleteForward()
	if got := b.String(); got != "a" {
		t.Errorf("boundary deletes changed buffer: %q", got)
	}
}

func TestWordMotion(t *testing.T) {
	b := NewBuffer()
	b.InsertString("git commit -m msg")
	b.MoveWordLeft()
	if b.Pos() != 14 { // start of "msg"
		t.Errorf("pos = %d, want 14", b.Pos())
	}
	b.MoveWordLeft()
	if b.Pos() != 11 { // start of "-m"
		t.Errorf("pos = %d, want 11", b.Pos())
	}
	b.MoveWordRight()
	if b.Pos() != 13 { // end of "-m"
		t.Errorf("pos = %d, want 13", b.Pos())
	}
}

func TestKillYankSingleSlot(t *testing.T) {
	b := NewBuffer()
	b.InsertString("one two")
	b.MoveStart()
	b.MoveWordRight()
	b.KillToEnd()
	if got := b.String(); got != "one" {
		t.Errorf("after kill: %q, want one", got)
	}
	if b.Kill() != " two" {
		t.Errorf("kill slot = %q, want \" two\"", b.Kill())
	}

	// A second kill replaces the slot; yank retrieves only the latest.
	b.KillWordBack()
	if b.Kill() != "one" {
		t.Errorf("kill slot = %q, want one", b.Kill())
	}
	b.Yank()
	b.Yank()
	if got := b.String(); got != "oneone" {
		t.Errorf("after yanks: %q, want oneone", got)
	}
}

func TestKillWordBack(t *testing.T) {
	b := NewBuffer()
	b.InsertString("rm -rf build  ")
	b.KillWordBack()
	if got := b.String(); got != "rm -rf " {
		t.Errorf("after KillWordBack: %q, want \"rm -rf \"", got)
	}
}

func TestUndoRestoresPriorState(t *testing.T) {
	b := NewBuffer()
	b.InsertString("hello")
	b.KillToStart()
	if b.String() != "" {
		t.Fatalf("kill failed: %q", b.String())
	}
	b.Undo()
	if got := b.String(); got != "hello" {
		t.Errorf("after undo: %q, want hello", got)
	}
	if b.Pos() != 5 {
		t.Errorf("pos after undo = %d, want 5", b.Pos())
	}

	// Undo on an empty stack is a no-op.
	for i := 0; i < 10; i++ {
		b.Undo()
	}
	if b.Pos() < 0 || b.Pos() > b.Len() {
		t.Errorf("cursor out of bounds after undos: %d", b.Pos())
	}
}

func TestResetKeepsKillSlot(t *testing.T) {
	b := NewBuffer()
	b.InsertString("take this")
	b.MoveStart()
	b.KillToEnd()
	b.Reset()
	if b.Len() != 0 {
		t.Fatalf("reset left content: %q", b.String())
	}
	b.Yank()
	if got := b.String(); got != "take this" {
		t.Errorf("yank after reset: %q, want original kill", got)
	}
}
