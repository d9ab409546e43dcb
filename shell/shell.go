// Package shell wires the terminal, editor, history, completion,
// resolver, translator, and job controller into the interactive loop.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/complete"
	"github.com/dirac-sh/dirac/editor"
	"github.com/dirac-sh/dirac/history"
	"github.com/dirac-sh/dirac/job"
	"github.com/dirac-sh/dirac/plugin"
	"github.com/dirac-sh/dirac/recall"
	"github.com/dirac-sh/dirac/resolve"
	"github.com/dirac-sh/dirac/term"
	"github.com/dirac-sh/dirac/translate"
)

const (
	recentForTranslator   = 10
	relevantForTranslator = 5
	listingMaxBytes       = 512
)

// Translator is the slice of the translate client the loop needs.
// Nil means natural-language input is reported as unresolvable.
type Translator interface {
	Translate(ctx context.Context, req dirac.TranslateRequest) (*dirac.TranslateResult, error)
}

// Shell is one interactive session.
type Shell struct {
	cfg  *dirac.Config
	tty  *term.Terminal
	out  io.Writer
	ed   *editor.Editor
	hist *history.Store
	dirs *complete.DirCache
	res  *resolve.Resolver
	tr   Translator
	idx  *recall.Index
	jobs *job.Controller
	reg  *plugin.Registry

	confirmFn func(*dirac.TranslateResult) confirmDecision

	cwd        string
	lastStatus int
	quit       bool
	exitCode   int

	// bgHist maps a background job ID to the history entry awaiting its
	// exit status.
	bgHist map[int]int
}

// New assembles a session over the given terminal. The translator and
// recall index are optional.
func New(cfg *dirac.Config, tty *term.Terminal, hist *history.Store) *Shell {
	reg := plugin.NewRegistry()

	dirs := complete.NewDirCache(time.Duration(cfg.Completion.DirTTLMinutes) * time.Minute)
	engine := complete.NewEngine(cfg.Completion.MaxCandidates, reg,
		complete.NewPathProvider(dirs, builtinNames()),
		complete.NewHistoryProvider(hist, 200),
	)

	cwd, err := os.Getwd()
	if err != nil {
		cwd = "/"
	}

	s := &Shell{
		cfg:  cfg,
		tty:  tty,
		out:  term.CRLF(tty),
		ed:   editor.New(tty, hist, engine),
		hist: hist,
		dirs: dirs,
		res:  resolve.New(reg, builtinNames()),
		jobs: job.NewController(int(tty.Fd())),
		reg:  reg,
		cwd:  cwd,
	}
	s.confirmFn = s.confirm
	s.ed.SetBindingSource(s.pluginBinding)
	return s
}

// SetTranslator wires the natural-language fallback.
func (s *Shell) SetTranslator(tr Translator) { s.tr = tr }

// SetRecall wires the semantic history index.
func (s *Shell) SetRecall(idx *recall.Index) { s.idx = idx }

// Registry exposes the plugin registry for load-time registration.
func (s *Shell) Registry() *plugin.Registry { return s.reg }

// Run drives the read-resolve-execute loop until exit. The returned
// code is the process exit code.
func (s *Shell) Run() int {
	s.banner()

	for !s.quit {
		s.reportBackground()

		if err := s.tty.EnterRaw(); err != nil {
			fmt.Fprintf(os.Stderr, "dirac: cannot enter raw mode: %v\n", err)
			return 2
		}
		line, err := s.ed.ReadLine(s.prompt())
		s.tty.LeaveRaw()

		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintln(s.out, "exit")
			s.quit = true
			continue
		case errors.Is(err, editor.ErrInterrupt):
			continue
		case err != nil:
			fmt.Fprintf(os.Stderr, "dirac: read: %v\n", err)
			return 2
		}

		if strings.TrimSpace(line) == "" {
			continue
		}
		s.handleLine(line)
	}

	s.shutdown()
	return s.exitCode
}

// handleLine resolves and executes one submitted line. Every failure is
// reported at the prompt; nothing here may take the loop down.
func (s *Shell) handleLine(line string) {
	cmd, err := s.res.Resolve(line)
	switch {
	case err == nil:
		s.execute(cmd)
	case errors.Is(err, resolve.ErrNeedsTranslation):
		s.translateLine(line)
	default:
		s.reportError(err)
	}
}

// translateLine runs the translator fallback and the confirmation flow.
func (s *Shell) translateLine(line string) {
	if s.tr == nil {
		fmt.Fprintf(s.out, "dirac: %s: command not found (translator not configured)\n", firstField(line))
		s.lastStatus = 127
		return
	}

	res, err := s.awaitTranslation(line)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(s.out, "^C")
			s.lastStatus = 130
			return
		}
		s.reportError(fmt.Errorf("translate: %w", err))
		s.lastStatus = 1
		return
	}

	switch s.confirmFn(res) {
	case confirmAccept:
		cmd, err := s.res.Resolve(res.Command)
		if err != nil {
			s.reportError(fmt.Errorf("suggested command did not resolve: %w", err))
			s.lastStatus = 1
			return
		}
		cmd.Translated = true
		s.execute(cmd)
	case confirmEdit:
		// The edited text re-enters the loop as a fresh literal line.
		s.ed.Preload(res.Command)
	case confirmReject:
	}
}

// awaitTranslation runs the translator in its own goroutine and keeps
// servicing keys while it is pending, so Ctrl-C cancels the request
// instead of waiting out the timeout.
func (s *Shell) awaitTranslation(line string) (*dirac.TranslateResult, error) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	type outcome struct {
		res *dirac.TranslateResult
		err error
	}
	ch := make(chan outcome, 1)
	req := s.translateRequest(line)
	go func() {
		res, err := s.tr.Translate(ctx, req)
		ch <- outcome{res, err}
	}()

	if s.tty == nil || s.tty.EnterRaw() != nil {
		o := <-ch
		return o.res, o.err
	}
	defer s.tty.LeaveRaw()

	for {
		select {
		case o := <-ch:
			return o.res, o.err
		default:
		}
		ready, err := s.tty.Pending(50 * time.Millisecond)
		if err != nil {
			o := <-ch
			return o.res, o.err
		}
		if !ready {
			continue
		}
		k, err := s.tty.ReadKey()
		if err == nil && k == term.Ctrl('c') {
			cancel()
			return nil, context.Canceled
		}
	}
}

// translateRequest snapshots shell context for one translation.
func (s *Shell) translateRequest(line string) dirac.TranslateRequest {
	req := dirac.TranslateRequest{
		Input:  line,
		Cwd:    s.cwd,
		OS:     runtime.GOOS,
		Recent: s.hist.Recent(recentForTranslator),
	}
	if listing := s.dirs.ListingLine(s.cwd, listingMaxBytes); listing != "" {
		req.Listing = strings.Fields(listing)
	}
	if s.idx != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if rel, err := s.idx.Relevant(ctx, line, relevantForTranslator); err == nil {
			req.Relevant = rel
		} else {
			slog.Debug("recall lookup failed", "error", err)
		}
	}
	return req
}

// execute runs one resolved command: builtins in-process, everything
// else through the job controller.
func (s *Shell) execute(cmd *dirac.Command) {
	if len(cmd.Stages) == 1 && isBuiltin(cmd.Stages[0].Argv[0]) {
		s.lastStatus = s.runBuiltin(cmd.Stages[0].Argv)
		s.record(cmd.Text, s.lastStatus)
		return
	}

	s.reg.RunPreExec(cmd)

	j, err := s.jobs.Dispatch(cmd)
	if err != nil {
		s.reportError(err)
		s.lastStatus = 127
		s.reg.RunPostExec(cmd, s.lastStatus)
		return
	}

	if cmd.Background {
		fmt.Fprintf(s.out, "[%d] %d\n", j.ID, j.Pgid)
		// Status is unknown until the job is reaped; reportBackground
		// backfills it through the saved entry index.
		if entry, ok := s.hist.Append(cmd.Text); ok {
			if s.bgHist == nil {
				s.bgHist = make(map[int]int)
			}
			s.bgHist[j.ID] = entry.Index
		}
		s.reg.RunPostExec(cmd, 0)
		return
	}

	status := s.jobs.WaitForeground(j)
	s.lastStatus = status
	s.record(cmd.Text, status)
	s.reg.RunPostExec(cmd, status)

	// A command may have changed what completion should offer here.
	s.dirs.Invalidate(s.cwd)
}

// record appends the executed text to history with its exit status.
// Translated commands record the command, never the NL input.
func (s *Shell) record(text string, status int) {
	if entry, ok := s.hist.Append(text); ok {
		s.hist.RecordExit(entry.Index, status)
	}
}

// reportBackground prints completed and stopped background jobs and
// backfills the exit status of finished ones into history.
func (s *Shell) reportBackground() {
	for _, j := range s.jobs.Poll() {
		if j.State == job.Done {
			if idx, ok := s.bgHist[j.ID]; ok {
				s.hist.RecordExit(idx, j.ExitStatus)
				delete(s.bgHist, j.ID)
			}
			fmt.Fprintf(s.out, "[%d]  Done(%d)  %s\n", j.ID, j.ExitStatus, j.Text)
		} else {
			fmt.Fprintf(s.out, "[%d]  %s  %s\n", j.ID, j.State, j.Text)
		}
	}
}

// prompt renders the configured prompt. \w expands to the working
// directory with the home prefix abbreviated, \W to its base name.
func (s *Shell) prompt() string {
	p := s.cfg.Prompt
	if p == "" {
		p = "dirac> "
	}
	p = strings.ReplaceAll(p, `\w`, abbreviateHome(s.cwd))
	p = strings.ReplaceAll(p, `\W`, filepath.Base(s.cwd))
	return p
}

func abbreviateHome(path string) string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return path
	}
	if path == home {
		return "~"
	}
	if strings.HasPrefix(path, home+string(os.PathSeparator)) {
		return "~" + path[len(home):]
	}
	return path
}

func (s *Shell) banner() {
	bold := color.New(color.Bold)
	fmt.Fprintf(s.out, "%s — type a command, or describe what you want\n", bold.Sprint("dirac"))
	fmt.Fprintf(s.out, "Ctrl-D or `exit` to leave\n\n")
}

// pluginBinding resolves a key against the registry at dispatch time,
// so contributed bindings vanish the moment their plugin unloads. The
// newest registration wins, and a panicking op is contained the same
// way a failing hook is.
func (s *Shell) pluginBinding(key term.Key) (editor.Op, bool) {
	binds := s.reg.Bindings()
	for i := len(binds) - 1; i >= 0; i-- {
		if binds[i].Key != key {
			continue
		}
		do := binds[i].Do
		return func(b *editor.Buffer) {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Warn("key binding panicked", "panic", rec)
				}
			}()
			do(b)
		}, true
	}
	return nil, false
}

func (s *Shell) reportError(err error) {
	fmt.Fprintf(s.out, "%s %v\n", color.RedString("dirac:"), err)
}

// shutdown releases session resources.
func (s *Shell) shutdown() {
	if s.idx != nil {
		s.idx.Close()
	}
	s.dirs.Close()
	s.jobs.Close()
	if err := s.hist.Close(); err != nil {
		slog.Warn("closing history", "error", err)
	}
}

func firstField(line string) string {
	if f := strings.Fields(line); len(f) > 0 {
		return f[0]
	}
	return line
}

// Translator wiring from config, kept here so cmd/dirac stays thin.
func ConfigureTranslator(s *Shell, cfg *dirac.Config) {
	tr, err := translate.New(cfg)
	if err != nil {
		slog.Info("translator disabled", "reason", err)
		return
	}
	s.SetTranslator(tr)
}

// ConfigureRecall starts the semantic history index when embedding is
// configured.
func ConfigureRecall(s *Shell, cfg *dirac.Config) {
	if !dirac.EmbeddingEnabled(cfg) {
		return
	}
	emb := recall.NewEmbedder(
		dirac.ResolveEmbeddingBaseURL(cfg),
		dirac.ResolveEmbeddingAPIKey(cfg),
		cfg.Embedding.Model,
	)
	idx := recall.New(emb, s.hist.Recent, cfg.Embedding.MaxCommands,
		time.Duration(cfg.Embedding.TTLMinutes)*time.Minute)
	go idx.Start(context.Background())
	s.SetRecall(idx)
}
