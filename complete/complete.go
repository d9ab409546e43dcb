// Package complete produces completion candidates for the token under
// the cursor, drawing from the filesystem, command history, and
// plugin-contributed providers.
package complete

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/anmitsu/go-shlex"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/plugin"
)

// Provider produces candidates for one source. word is the token under
// the cursor, line and cursor give the full context.
type Provider interface {
	Complete(word, line string, cursor int) []dirac.Candidate
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(word, line string, cursor int) []dirac.Candidate

func (f ProviderFunc) Complete(word, line string, cursor int) []dirac.Candidate {
	return f(word, line, cursor)
}

// Engine fans a completion request out to its providers and to the
// plugin registry, then ranks and caps the merged candidates. It
// implements the line editor's completer contract.
type Engine struct {
	max       int
	providers []Provider
	reg       *plugin.Registry
}

// NewEngine creates an engine capping results at max candidates.
// reg may be nil when no plugin system is wired.
func NewEngine(max int, reg *plugin.Registry, providers ...Provider) *Engine {
	if max <= 0 {
		max = 20
	}
	return &Engine{max: max, providers: providers, reg: reg}
}

// Complete returns the replacement start offset and the ranked
// candidates for the token under the cursor. Equal inputs always
// produce equal outputs for unchanged underlying state.
func (e *Engine) Complete(line string, cursor int) (int, []dirac.Candidate) {
	if cursor > len(line) {
		cursor = len(line)
	}
	start, word := tokenAt(line, cursor)

	var merged []dirac.Candidate
	for _, p := range e.providers {
		merged = append(merged, p.Complete(word, line, cursor)...)
	}
	if e.reg != nil {
		for _, src := range e.reg.Completions() {
			merged = append(merged, callProvider(src, word, line, cursor)...)
		}
	}

	merged = rank(word, merged, e.max)
	return start, merged
}

// callProvider isolates one plugin provider: a panic yields no
// candidates instead of crashing the editor's completion path.
func callProvider(src plugin.CompletionSource, word, line string, cursor int) (cands []dirac.Candidate) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("completion provider panicked", "plugin", src.Plugin, "panic", rec)
			cands = nil
		}
	}()
	return src.Fn(word, line, cursor)
}

// tokenAt finds the token containing the cursor. The token starts after
// the last unquoted whitespace or pipeline operator before the cursor.
func tokenAt(line string, cursor int) (int, string) {
	prefix := line[:cursor]
	start := 0
	inSingle, inDouble := false, false
	for i := 0; i < len(prefix); i++ {
		c := prefix[i]
		switch {
		case c == '\\' && !inSingle:
			i++
		case c == '\'' && !inDouble:
			inSingle = !inSingle
		case c == '"' && !inSingle:
			inDouble = !inDouble
		case inSingle || inDouble:
		case c == ' ' || c == '\t' || c == '|' || c == ';' || c == '&' || c == '<' || c == '>':
			start = i + 1
		}
	}
	return start, prefix[start:]
}

// commandPosition reports whether the token starting at start names the
// command of its pipeline stage rather than an argument.
func commandPosition(line string, start int) bool {
	head := line[:start]
	// Anything after the last stage separator is a fresh stage.
	if i := strings.LastIndexAny(head, "|;&"); i >= 0 {
		head = head[i+1:]
	}
	words, err := shlex.Split(head, true)
	if err != nil {
		// Unbalanced quote while typing: fall back on raw fields.
		words = strings.Fields(head)
	}
	return len(words) == 0
}

// rank orders candidates: exact-prefix matches of the typed word first,
// then shorter insertions, then the order the providers produced them.
// Duplicates by insertion text are dropped, keeping the first.
func rank(word string, cands []dirac.Candidate, max int) []dirac.Candidate {
	type scored struct {
		c     dirac.Candidate
		exact bool
		pos   int
	}
	seen := make(map[string]bool, len(cands))
	out := make([]scored, 0, len(cands))
	for i, c := range cands {
		if c.Insert == "" || seen[c.Insert] {
			continue
		}
		seen[c.Insert] = true
		out = append(out, scored{c: c, exact: strings.HasPrefix(c.Insert, word), pos: i})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].exact != out[j].exact {
			return out[i].exact
		}
		if len(out[i].c.Insert) != len(out[j].c.Insert) {
			return len(out[i].c.Insert) < len(out[j].c.Insert)
		}
		return out[i].pos < out[j].pos
	})

	if len(out) > max {
		out = out[:max]
	}
	final := make([]dirac.Candidate, len(out))
	for i, s := range out {
		final[i] = s.c
	}
	return final
}
