package shell

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/complete"
	"github.com/dirac-sh/dirac/editor"
	"github.com/dirac-sh/dirac/history"
	"github.com/dirac-sh/dirac/job"
	"github.com/dirac-sh/dirac/plugin"
	"github.com/dirac-sh/dirac/resolve"
	"github.com/dirac-sh/dirac/term"
)

// nullTerm satisfies the editor's terminal slice without a tty.
type nullTerm struct{}

func (nullTerm) ReadKey() (term.Key, error)      { return term.Key{}, errors.New("no input") }
func (nullTerm) WriteString(string) (int, error) { return 0, nil }

// newTestShell builds a session with an in-memory history, a sink for
// output, and no controlling terminal.
func newTestShell(t *testing.T) (*Shell, *strings.Builder) {
	t.Helper()
	out := &strings.Builder{}
	reg := plugin.NewRegistry()
	dirs := complete.NewDirCache(time.Minute)
	t.Cleanup(dirs.Close)

	s := &Shell{
		cfg:  &dirac.Config{Prompt: `dirac[\w]> `},
		out:  out,
		ed:   editor.New(nullTerm{}, nil, nil),
		hist: history.NewMemory(100),
		dirs: dirs,
		res:  resolve.New(reg, builtinNames()),
		jobs: job.NewController(-1),
		reg:  reg,
		cwd:  "/tmp",
	}
	s.confirmFn = func(*dirac.TranslateResult) confirmDecision { return confirmReject }
	s.ed.SetBindingSource(s.pluginBinding)
	t.Cleanup(func() { s.jobs.Close() })
	return s, out
}

func TestPromptExpansion(t *testing.T) {
	s, _ := newTestShell(t)
	s.cwd = "/var/log"
	if got := s.prompt(); got != "dirac[/var/log]> " {
		t.Fatalf("prompt = %q", got)
	}

	s.cfg.Prompt = `\W $ `
	if got := s.prompt(); got != "log $ " {
		t.Fatalf("prompt = %q", got)
	}

	s.cfg.Prompt = ""
	if got := s.prompt(); got != "dirac> " {
		t.Fatalf("fallback prompt = %q", got)
	}
}

func TestAbbreviateHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	if got := abbreviateHome(home); got != "~" {
		t.Fatalf("home = %q, want ~", got)
	}
	if got := abbreviateHome(filepath.Join(home, "src")); got != "~/src" {
		t.Fatalf("subdir = %q, want ~/src", got)
	}
	if got := abbreviateHome("/etc"); got != "/etc" {
		t.Fatalf("outside = %q, want /etc", got)
	}
}

func TestBuiltinCd(t *testing.T) {
	s, _ := newTestShell(t)
	dir := t.TempDir()

	if status := s.runBuiltin([]string{"cd", dir}); status != 0 {
		t.Fatalf("cd status = %d", status)
	}
	if s.cwd != dir {
		t.Fatalf("cwd = %q, want %q", s.cwd, dir)
	}
}

func TestBuiltinCdNearMiss(t *testing.T) {
	s, out := newTestShell(t)
	dir := t.TempDir()
	if err := os.Mkdir(filepath.Join(dir, "projects"), 0o755); err != nil {
		t.Fatal(err)
	}
	s.cwd = dir

	if status := s.runBuiltin([]string{"cd", "projects"}); status != 0 {
		t.Fatal("exact name should succeed")
	}
	s.cwd = dir

	if status := s.runBuiltin([]string{"cd", "projetcs"}); status != 1 {
		t.Fatal("typo should fail")
	}
	if !strings.Contains(out.String(), "did you mean projects?") {
		t.Fatalf("missing suggestion in %q", out.String())
	}
}

func TestBuiltinExitCode(t *testing.T) {
	s, _ := newTestShell(t)
	s.runBuiltin([]string{"exit", "4"})
	if !s.quit || s.exitCode != 4 {
		t.Fatalf("quit=%v exitCode=%d", s.quit, s.exitCode)
	}

	s2, _ := newTestShell(t)
	s2.lastStatus = 7
	s2.runBuiltin([]string{"exit"})
	if s2.exitCode != 7 {
		t.Fatalf("exit without arg should keep last status, got %d", s2.exitCode)
	}
}

func TestBuiltinHistoryOutput(t *testing.T) {
	s, out := newTestShell(t)
	entry, _ := s.hist.Append("make test")
	s.hist.RecordExit(entry.Index, 2)
	s.hist.Append("ls")

	s.runBuiltin([]string{"history"})
	text := out.String()
	if !strings.Contains(text, "make test  [exit 2]") {
		t.Fatalf("missing failed entry marker in %q", text)
	}
	if !strings.Contains(text, "ls") {
		t.Fatalf("missing entry in %q", text)
	}
}

func TestRecordBackfillsExit(t *testing.T) {
	s, _ := newTestShell(t)
	s.record("false", 1)
	entry, ok := s.hist.At(0)
	if !ok || entry.Status == nil || *entry.Status != 1 {
		t.Fatalf("entry = %+v", entry)
	}
}

func TestHandleLineExecutesLiteral(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	s, _ := newTestShell(t)
	s.handleLine("echo hello > " + out)

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "hello\n" {
		t.Fatalf("output = %q", data)
	}
	if s.lastStatus != 0 {
		t.Fatalf("status = %d", s.lastStatus)
	}
	if got := s.hist.Recent(1); len(got) != 1 || got[0] != "echo hello > "+out {
		t.Fatalf("history = %v", got)
	}
}

// fakeTranslator returns a fixed suggestion.
type fakeTranslator struct {
	res  dirac.TranslateResult
	err  error
	last dirac.TranslateRequest
}

func (f *fakeTranslator) Translate(ctx context.Context, req dirac.TranslateRequest) (*dirac.TranslateResult, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	r := f.res
	return &r, nil
}

func TestTranslateUnconfigured(t *testing.T) {
	s, out := newTestShell(t)
	s.handleLine("show me the largest files")
	if s.lastStatus != 127 {
		t.Fatalf("status = %d, want 127", s.lastStatus)
	}
	if !strings.Contains(out.String(), "command not found") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestTranslateAcceptExecutes(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "got.txt")

	s, _ := newTestShell(t)
	s.tr = &fakeTranslator{res: dirac.TranslateResult{
		Command:     "echo translated > " + out,
		Explanation: "writes a marker file",
	}}
	s.confirmFn = func(*dirac.TranslateResult) confirmDecision { return confirmAccept }

	s.handleLine("please write the marker file")

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "translated\n" {
		t.Fatalf("output = %q", data)
	}
	// History records the executed command, never the NL input.
	if got := s.hist.Recent(1); len(got) != 1 || got[0] != "echo translated > "+out {
		t.Fatalf("history = %v", got)
	}
}

func TestTranslateRejectRunsNothing(t *testing.T) {
	s, _ := newTestShell(t)
	s.tr = &fakeTranslator{res: dirac.TranslateResult{Command: "echo nope"}}
	s.confirmFn = func(*dirac.TranslateResult) confirmDecision { return confirmReject }

	s.handleLine("do something")
	if s.hist.Len() != 0 {
		t.Fatalf("rejected suggestion reached history: %v", s.hist.Recent(5))
	}
}

func TestTranslateEditPreloadsEditor(t *testing.T) {
	s, _ := newTestShell(t)
	s.tr = &fakeTranslator{res: dirac.TranslateResult{Command: "echo draft"}}
	s.confirmFn = func(*dirac.TranslateResult) confirmDecision { return confirmEdit }

	s.handleLine("do something")
	if s.hist.Len() != 0 {
		t.Fatal("edit should not execute anything")
	}
	// The suggestion is seeded into the next read.
	if got := s.ed.Buffer().String(); got != "" {
		t.Fatalf("buffer already populated: %q", got)
	}
}

func TestTranslateFailureReported(t *testing.T) {
	s, out := newTestShell(t)
	s.tr = &fakeTranslator{err: errors.New("model timed out")}

	s.handleLine("do something")
	if s.lastStatus != 1 {
		t.Fatalf("status = %d, want 1", s.lastStatus)
	}
	if !strings.Contains(out.String(), "model timed out") {
		t.Fatalf("output = %q", out.String())
	}
}

func TestTranslateRequestCarriesContext(t *testing.T) {
	s, _ := newTestShell(t)
	s.cwd = t.TempDir()
	if err := os.WriteFile(filepath.Join(s.cwd, "notes.md"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	s.hist.Append("git status")

	tr := &fakeTranslator{res: dirac.TranslateResult{Command: "true"}}
	s.tr = tr
	s.handleLine("what changed recently")

	if tr.last.Cwd != s.cwd {
		t.Fatalf("cwd = %q", tr.last.Cwd)
	}
	if len(tr.last.Listing) != 1 || tr.last.Listing[0] != "notes.md" {
		t.Fatalf("listing = %v", tr.last.Listing)
	}
	if len(tr.last.Recent) != 1 || tr.last.Recent[0] != "git status" {
		t.Fatalf("recent = %v", tr.last.Recent)
	}
	if tr.last.OS != runtime.GOOS {
		t.Fatalf("os = %q", tr.last.OS)
	}
}

func TestBackgroundExitStatusBackfilled(t *testing.T) {
	s, _ := newTestShell(t)
	s.handleLine(`sh -c "exit 5" &`)

	entry, ok := s.hist.At(0)
	if !ok || entry.Status != nil {
		t.Fatalf("entry = %+v, want recorded with status pending", entry)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		s.reportBackground()
		entry, _ = s.hist.At(0)
		if entry.Status != nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("background status never backfilled")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if *entry.Status != 5 {
		t.Fatalf("status = %d, want 5", *entry.Status)
	}
}

func TestPluginBindingFollowsRegistry(t *testing.T) {
	s, _ := newTestShell(t)
	h, err := s.reg.Register("caps", plugin.Contribution{
		Bindings: []plugin.Binding{
			{Key: term.Ctrl('g'), Do: func(b *editor.Buffer) { b.InsertString("!") }},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	op, ok := s.pluginBinding(term.Ctrl('g'))
	if !ok {
		t.Fatal("registered binding not found")
	}
	buf := editor.NewBuffer()
	op(buf)
	if buf.String() != "!" {
		t.Fatalf("buffer = %q, want !", buf.String())
	}

	s.reg.Unload(h)
	if _, ok := s.pluginBinding(term.Ctrl('g')); ok {
		t.Fatal("binding survived unload")
	}
}

func TestPluginBindingLaterRegistrationWins(t *testing.T) {
	s, _ := newTestShell(t)
	s.reg.Register("first", plugin.Contribution{
		Bindings: []plugin.Binding{
			{Key: term.Ctrl('g'), Do: func(b *editor.Buffer) { b.InsertString("old") }},
		},
	})
	s.reg.Register("second", plugin.Contribution{
		Bindings: []plugin.Binding{
			{Key: term.Ctrl('g'), Do: func(b *editor.Buffer) { b.InsertString("new") }},
		},
	})

	op, ok := s.pluginBinding(term.Ctrl('g'))
	if !ok {
		t.Fatal("binding not found")
	}
	buf := editor.NewBuffer()
	op(buf)
	if buf.String() != "new" {
		t.Fatalf("buffer = %q, want the newest registration", buf.String())
	}
}

func TestPluginBindingPanicContained(t *testing.T) {
	s, _ := newTestShell(t)
	s.reg.Register("crashy", plugin.Contribution{
		Bindings: []plugin.Binding{
			{Key: term.Ctrl('g'), Do: func(b *editor.Buffer) { panic("binding blew up") }},
		},
	})

	op, ok := s.pluginBinding(term.Ctrl('g'))
	if !ok {
		t.Fatal("binding not found")
	}
	op(editor.NewBuffer()) // must not panic through
}

func TestEditDistance(t *testing.T) {
	cases := []struct {
		a, b string
		want int
	}{
		{"", "", 0},
		{"abc", "abc", 0},
		{"projetcs", "projects", 2},
		{"doc", "docs", 1},
		{"a", "xyz", 3},
	}
	for _, tc := range cases {
		if got := editDistance(tc.a, tc.b); got != tc.want {
			t.Errorf("editDistance(%q, %q) = %d, want %d", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestPickJobSpec(t *testing.T) {
	s, out := newTestShell(t)
	if _, ok := s.pickJob(nil); ok {
		t.Fatal("no jobs: pick should fail")
	}
	if !strings.Contains(out.String(), "no current job") {
		t.Fatalf("output = %q", out.String())
	}
	if _, ok := s.pickJob([]string{"%9"}); ok {
		t.Fatal("unknown id should fail")
	}
}
