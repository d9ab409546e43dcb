// Package plugin is the process-wide registry of shell extension
// points: key bindings, completion providers, resolvers, and pre/post
// execution hooks. Contributions are registered and unloaded as a unit
// per plugin, atomically with respect to concurrent lookups.
package plugin

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/editor"
	"github.com/dirac-sh/dirac/term"
)

// Capability names one extension point a plugin implements.
type Capability string

const (
	CapBindings   Capability = "bindings"
	CapCompletion Capability = "completion"
	CapResolver   Capability = "resolver"
	CapHooks      Capability = "hooks"
)

// CompleteFunc produces completion candidates for the token under the
// cursor. word is the token text, line/cursor give the full context.
type CompleteFunc func(word, line string, cursor int) []dirac.Candidate

// ResolveFunc turns a finalized input line into a command. handled is
// false when the resolver does not recognize the line, letting the
// next resolver try.
type ResolveFunc func(line string) (cmd *dirac.Command, handled bool, err error)

// PreExecFunc runs before a command is dispatched.
type PreExecFunc func(cmd *dirac.Command) error

// PostExecFunc runs after a command finishes with its exit status.
type PostExecFunc func(cmd *dirac.Command, status int) error

// Binding is a key binding contributed by a plugin.
type Binding struct {
	Key term.Key
	Do  editor.Op
}

// Contribution is the full set of extension-point entries one plugin
// registers.
type Contribution struct {
	Bindings    []Binding
	Completions []CompleteFunc
	Resolvers   []ResolveFunc
	PreExec     []PreExecFunc
	PostExec    []PostExecFunc
}

// Capabilities derives the capability set from the populated fields.
func (c Contribution) Capabilities() []Capability {
	var caps []Capability
	if len(c.Bindings) > 0 {
		caps = append(caps, CapBindings)
	}
	if len(c.Completions) > 0 {
		caps = append(caps, CapCompletion)
	}
	if len(c.Resolvers) > 0 {
		caps = append(caps, CapResolver)
	}
	if len(c.PreExec) > 0 || len(c.PostExec) > 0 {
		caps = append(caps, CapHooks)
	}
	return caps
}

// Handle identifies a loaded plugin. It is invalidated by Unload.
type Handle struct {
	name string
	seq  int
}

// Name returns the plugin name the handle was registered under.
func (h *Handle) Name() string { return h.name }

// entry is one loaded plugin's contribution plus its registration order.
type entry struct {
	handle  *Handle
	contrib Contribution
}

// Registry holds all loaded plugins. Lookup methods return snapshots in
// registration order so unload never exposes partial state.
type Registry struct {
	mu      sync.RWMutex
	seq     int
	entries []*entry
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds a plugin's contributions and returns its handle.
// Registering a name that is already loaded is an error.
func (r *Registry) Register(name string, contrib Contribution) (*Handle, error) {
	if name == "" {
		return nil, fmt.Errorf("plugin name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.entries {
		if e.handle.name == name {
			return nil, fmt.Errorf("plugin %q already registered", name)
		}
	}

	r.seq++
	h := &Handle{name: name, seq: r.seq}
	r.entries = append(r.entries, &entry{handle: h, contrib: contrib})
	slog.Info("plugin registered", "name", name, "capabilities", contrib.Capabilities())
	return h, nil
}

// Unload removes all of a plugin's contributions. The swap is atomic:
// concurrent lookups see either everything or nothing of the plugin.
func (r *Registry) Unload(h *Handle) bool {
	if h == nil {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, e := range r.entries {
		if e.handle == h {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			slog.Info("plugin unloaded", "name", h.name)
			return true
		}
	}
	return false
}

// Loaded returns the names of all loaded plugins in registration order.
func (r *Registry) Loaded() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.handle.name)
	}
	return names
}

// Bindings returns all contributed key bindings in registration order.
// The editor applies them in order, so later registrations win.
func (r *Registry) Bindings() []Binding {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Binding
	for _, e := range r.entries {
		out = append(out, e.contrib.Bindings...)
	}
	return out
}

// CompletionSource pairs a provider with the plugin it came from, so
// ranking can use registration order as a stable tie-break.
type CompletionSource struct {
	Plugin string
	Fn     CompleteFunc
}

// Completions returns all contributed completion providers in
// registration order.
func (r *Registry) Completions() []CompletionSource {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []CompletionSource
	for _, e := range r.entries {
		for _, fn := range e.contrib.Completions {
			out = append(out, CompletionSource{Plugin: e.handle.name, Fn: fn})
		}
	}
	return out
}

// Resolvers returns all contributed resolvers in registration order.
func (r *Registry) Resolvers() []ResolveFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []ResolveFunc
	for _, e := range r.entries {
		out = append(out, e.contrib.Resolvers...)
	}
	return out
}

// RunPreExec runs all pre-execution hooks synchronously in registration
// order. A failing hook is logged and skipped; it never aborts the
// dispatch.
func (r *Registry) RunPreExec(cmd *dirac.Command) {
	for _, e := range r.snapshot() {
		for _, hook := range e.contrib.PreExec {
			if err := runHook(func() error { return hook(cmd) }); err != nil {
				slog.Warn("pre-exec hook failed", "plugin", e.handle.name, "error", err)
			}
		}
	}
}

// RunPostExec runs all post-execution hooks with the final status.
func (r *Registry) RunPostExec(cmd *dirac.Command, status int) {
	for _, e := range r.snapshot() {
		for _, hook := range e.contrib.PostExec {
			if err := runHook(func() error { return hook(cmd, status) }); err != nil {
				slog.Warn("post-exec hook failed", "plugin", e.handle.name, "error", err)
			}
		}
	}
}

func (r *Registry) snapshot() []*entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]*entry(nil), r.entries...)
}

// runHook isolates a hook call, converting a panic into an error so one
// misbehaving plugin cannot take down the shell loop.
func runHook(fn func() error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("hook panic: %v", rec)
		}
	}()
	return fn()
}
