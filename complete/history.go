package complete

import (
	"strings"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/history"
)

// HistoryProvider offers previously executed lines that extend what has
// been typed so far. It only fires when the cursor is at the end of the
// line, where completing the whole line makes sense.
type HistoryProvider struct {
	store *history.Store
	limit int
}

// NewHistoryProvider creates a provider scanning at most limit recent
// entries per request.
func NewHistoryProvider(store *history.Store, limit int) *HistoryProvider {
	if limit <= 0 {
		limit = 200
	}
	return &HistoryProvider{store: store, limit: limit}
}

func (p *HistoryProvider) Complete(word, line string, cursor int) []dirac.Candidate {
	if cursor != len(line) || strings.TrimSpace(line) == "" {
		return nil
	}

	var out []dirac.Candidate
	seen := make(map[string]bool)
	recent := p.store.Recent(p.limit)
	// Most recent first.
	for i := len(recent) - 1; i >= 0; i-- {
		text := recent[i]
		if text == line || !strings.HasPrefix(text, line) || seen[text] {
			continue
		}
		seen[text] = true
		// The editor replaces only the current token, so the insertion
		// is the matching suffix grafted onto the token under the cursor.
		out = append(out, dirac.Candidate{
			Display: text,
			Insert:  word + text[len(line):],
			Source:  dirac.SourceHistory,
		})
	}
	return out
}
