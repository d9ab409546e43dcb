package editor

import "github.com/dirac-sh/dirac/term"

// Op is one editing operation applied to the buffer.
type Op func(*Buffer)

// Binding ties a key event to an editing operation.
type Binding struct {
	Key term.Key
	Do  Op
}

// bindings maps keys to operations. Registration order matters only on
// conflict: the most recently registered binding wins, which is what a
// straight map assignment gives us.
type bindings struct {
	table map[term.Key]Op
}

func newBindings() *bindings {
	b := &bindings{table: make(map[term.Key]Op)}
	for _, def := range defaultBindings {
		b.bind(def.Key, def.Do)
	}
	return b
}

func (b *bindings) bind(key term.Key, op Op) {
	b.table[key] = op
}

func (b *bindings) lookup(key term.Key) (Op, bool) {
	op, ok := b.table[key]
	return op, ok
}

// defaultBindings is the built-in emacs-style table. Plugins may layer
// additional bindings on top through Editor.Bind.
var defaultBindings = []Binding{
	{term.Key{Kind: term.KeyLeft}, (*Buffer).MoveLeft},
	{term.Key{Kind: term.KeyRight}, (*Buffer).MoveRight},
	{term.Key{Kind: term.KeyHome}, (*Buffer).MoveStart},
	{term.Key{Kind: term.KeyEnd}, (*Buffer).MoveEnd},
	{term.Key{Kind: term.KeyBackspace}, (*Buffer).DeleteBack},
	{term.Key{Kind: term.KeyDelete}, (*Buffer).DeleteForward},
	{term.Key{Kind: term.KeyWordLeft}, (*Buffer).MoveWordLeft},
	{term.Key{Kind: term.KeyWordRight}, (*Buffer).MoveWordRight},

	{term.Ctrl('a'), (*Buffer).MoveStart},
	{term.Ctrl('e'), (*Buffer).MoveEnd},
	{term.Ctrl('b'), (*Buffer).MoveLeft},
	{term.Ctrl('f'), (*Buffer).MoveRight},
	{term.Ctrl('k'), (*Buffer).KillToEnd},
	{term.Ctrl('u'), (*Buffer).KillToStart},
	{term.Ctrl('w'), (*Buffer).KillWordBack},
	{term.Ctrl('y'), (*Buffer).Yank},
	{term.Ctrl('_'), (*Buffer).Undo},

	{term.Alt('b'), (*Buffer).MoveWordLeft},
	{term.Alt('f'), (*Buffer).MoveWordRight},
	{term.Alt('\b'), (*Buffer).KillWordBack},
}
