// Package recall keeps a small semantic index over command history so
// the translator can be shown past commands related to the current
// request. The index lives in memory and is rebuilt incrementally from
// the history store.
package recall

import (
	"context"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/hnsw"
)

const embedBatchSize = 32

// Index is an HNSW graph over redacted history commands.
type Index struct {
	vec    Vectorizer
	source func(n int) []string
	max    int
	ttl    time.Duration

	mu    sync.RWMutex
	graph *hnsw.Graph[string]
	texts map[string]string // command hash -> redacted text

	stopCh    chan struct{}
	closeOnce sync.Once
}

// New creates an index fed by source, which returns up to n recent
// command texts. max bounds how many commands stay indexed per refresh
// and ttl sets the background refresh interval.
func New(vec Vectorizer, source func(n int) []string, max int, ttl time.Duration) *Index {
	if max <= 0 {
		max = 500
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Index{
		vec:    vec,
		source: source,
		max:    max,
		ttl:    ttl,
		graph:  hnsw.NewGraph[string](),
		texts:  make(map[string]string),
		stopCh: make(chan struct{}),
	}
}

// Refresh embeds commands that are not yet in the graph. Batch failures
// are logged and skipped so one bad API call never poisons a refresh.
func (ix *Index) Refresh(ctx context.Context) error {
	cmds := ix.source(ix.max)
	if len(cmds) == 0 {
		return nil
	}

	type pending struct {
		hash string
		text string
	}
	var todo []pending
	seen := make(map[string]bool, len(cmds))
	ix.mu.RLock()
	for _, cmd := range cmds {
		h := hashText(cmd)
		if seen[h] {
			continue
		}
		seen[h] = true
		if _, ok := ix.graph.Lookup(h); !ok {
			todo = append(todo, pending{hash: h, text: cmd})
		}
	}
	ix.mu.RUnlock()

	if len(todo) == 0 {
		return nil
	}

	var nodes []hnsw.Node[string]
	redacted := make(map[string]string, len(todo))
	for i := 0; i < len(todo); i += embedBatchSize {
		end := min(i+embedBatchSize, len(todo))
		batch := todo[i:end]

		safe := make([]string, len(batch))
		for j, p := range batch {
			safe[j] = Redact(p.text)
		}
		vecs, err := ix.vec.EmbedBatch(ctx, safe)
		if err != nil {
			slog.Warn("recall batch embed failed", "count", len(batch), "error", err)
			continue
		}
		for j, p := range batch {
			nodes = append(nodes, hnsw.MakeNode(p.hash, vecs[j]))
			redacted[p.hash] = safe[j]
		}
	}

	if len(nodes) > 0 {
		ix.mu.Lock()
		ix.graph.Add(nodes...)
		for h, t := range redacted {
			ix.texts[h] = t
		}
		ix.mu.Unlock()
	}
	return nil
}

// Start runs an initial refresh and then refreshes every ttl until
// Close. It blocks; run it on its own goroutine.
func (ix *Index) Start(ctx context.Context) {
	if err := ix.Refresh(ctx); err != nil {
		slog.Warn("initial recall refresh failed", "error", err)
	}

	ticker := time.NewTicker(ix.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ix.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := ix.Refresh(ctx); err != nil {
				slog.Warn("recall refresh failed", "error", err)
			}
		}
	}
}

// Relevant returns up to k indexed commands most similar to query.
func (ix *Index) Relevant(ctx context.Context, query string, k int) ([]string, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := ix.vec.Embed(ctx, Redact(query))
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	if ix.graph.Len() == 0 {
		return nil, nil
	}
	var out []string
	for _, n := range ix.graph.Search(qv, k) {
		out = append(out, ix.texts[n.Key])
	}
	return out, nil
}

// Len returns the number of indexed commands.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.graph.Len()
}

// Close stops the refresh loop.
func (ix *Index) Close() {
	ix.closeOnce.Do(func() { close(ix.stopCh) })
}

func hashText(s string) string {
	return fmt.Sprintf("%x", sha256.Sum256([]byte(s)))
}
