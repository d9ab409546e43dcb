package job

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dirac-sh/dirac"
)

// newTestController runs without a controlling terminal; handoff paths
// that need a tty are exercised only when one is attached.
func newTestController(t *testing.T) *Controller {
	t.Helper()
	c := NewController(-1)
	t.Cleanup(c.Close)
	return c
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestForegroundExitStatus(t *testing.T) {
	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text:   "exit 3",
		Stages: []dirac.Stage{{Argv: []string{"sh", "-c", "exit 3"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.WaitForeground(j); got != 3 {
		t.Fatalf("status = %d, want 3", got)
	}
	if len(c.Jobs()) != 0 {
		t.Fatal("finished job still in table")
	}
}

func TestPipelineStatusIsLastStage(t *testing.T) {
	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text: "false | true",
		Stages: []dirac.Stage{
			{Argv: []string{"false"}},
			{Argv: []string{"true"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.WaitForeground(j); got != 0 {
		t.Fatalf("status = %d, want 0 (last stage)", got)
	}
}

func TestPipelineLeaderExitsBeforeLaterStages(t *testing.T) {
	// The group leader exits immediately, but stays an unreaped zombie
	// until the wait below, so later stages can still join its group.
	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text: "true | sleep 0.05 | sh -c 'exit 4'",
		Stages: []dirac.Stage{
			{Argv: []string{"true"}},
			{Argv: []string{"sleep", "0.05"}},
			{Argv: []string{"sh", "-c", "exit 4"}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.WaitForeground(j); got != 4 {
		t.Fatalf("status = %d, want 4", got)
	}
}

func TestPipelinePlumbingAndRedirect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "out.txt")

	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text: "printf 'b\\na\\n' | sort > out.txt",
		Stages: []dirac.Stage{
			{Argv: []string{"printf", "b\na\n"}},
			{Argv: []string{"sort"}, Redirect: dirac.Redirect{Out: out}},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.WaitForeground(j); got != 0 {
		t.Fatalf("status = %d", got)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "a\nb\n" {
		t.Fatalf("output = %q", data)
	}
}

func TestInputRedirect(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.txt")
	out := filepath.Join(dir, "out.txt")
	if err := os.WriteFile(in, []byte("two words\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text: "wc -w < in.txt > out.txt",
		Stages: []dirac.Stage{{
			Argv:     []string{"wc", "-w"},
			Redirect: dirac.Redirect{In: in, Out: out},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.WaitForeground(j); got != 0 {
		t.Fatalf("status = %d", got)
	}
	data, _ := os.ReadFile(out)
	if strings.TrimSpace(string(data)) != "2" {
		t.Fatalf("wc output = %q", data)
	}
}

func TestAppendRedirect(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "log.txt")
	if err := os.WriteFile(out, []byte("first\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text: "echo second >> log.txt",
		Stages: []dirac.Stage{{
			Argv:     []string{"echo", "second"},
			Redirect: dirac.Redirect{Out: out, Append: true},
		}},
	})
	if err != nil {
		t.Fatal(err)
	}
	c.WaitForeground(j)

	data, _ := os.ReadFile(out)
	if string(data) != "first\nsecond\n" {
		t.Fatalf("file = %q", data)
	}
}

func TestBackgroundJobPolled(t *testing.T) {
	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text:       "true &",
		Background: true,
		Stages:     []dirac.Stage{{Argv: []string{"true"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if j.State != Running {
		t.Fatalf("state = %v, want Running", j.State)
	}

	var done *Job
	waitFor(t, "background completion", func() bool {
		for _, changed := range c.Poll() {
			if changed.ID == j.ID && changed.State == Done {
				done = changed
			}
		}
		return done != nil
	})
	if done.ExitStatus != 0 {
		t.Fatalf("exit = %d", done.ExitStatus)
	}
	if len(c.Jobs()) != 0 {
		t.Fatal("done job still listed")
	}
}

func TestStopAndResumeBackground(t *testing.T) {
	c := newTestController(t)
	j, err := c.Dispatch(&dirac.Command{
		Text:       "sleep 30 &",
		Background: true,
		Stages:     []dirac.Stage{{Argv: []string{"sleep", "30"}}},
	})
	if err != nil {
		t.Fatal(err)
	}
	defer unix.Kill(-j.Pgid, unix.SIGKILL)

	if err := unix.Kill(-j.Pgid, unix.SIGSTOP); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "stopped state", func() bool {
		c.Poll()
		return len(c.Jobs()) == 1 && c.Jobs()[0].State == Stopped
	})

	if _, err := c.Background(j.ID); err != nil {
		t.Fatal(err)
	}
	if j.State != Running {
		t.Fatalf("state after bg = %v, want Running", j.State)
	}

	if err := unix.Kill(-j.Pgid, unix.SIGTERM); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "termination", func() bool {
		for _, changed := range c.Poll() {
			if changed.ID == j.ID && changed.State == Done {
				if changed.ExitStatus != 128+int(unix.SIGTERM) {
					t.Fatalf("exit = %d", changed.ExitStatus)
				}
				return true
			}
		}
		return false
	})
}

func TestDispatchUnknownProgram(t *testing.T) {
	c := newTestController(t)
	_, err := c.Dispatch(&dirac.Command{
		Text:   "no-such-binary-xyz",
		Stages: []dirac.Stage{{Argv: []string{"no-such-binary-xyz"}}},
	})
	if err == nil {
		t.Fatal("expected start error")
	}
}

func TestDispatchEmptyCommand(t *testing.T) {
	c := newTestController(t)
	if _, err := c.Dispatch(&dirac.Command{Text: "x"}); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestLatestAndJobsOrder(t *testing.T) {
	c := newTestController(t)
	var jobs []*Job
	for i := 0; i < 2; i++ {
		j, err := c.Dispatch(&dirac.Command{
			Text:       "sleep 30 &",
			Background: true,
			Stages:     []dirac.Stage{{Argv: []string{"sleep", "30"}}},
		})
		if err != nil {
			t.Fatal(err)
		}
		jobs = append(jobs, j)
		defer unix.Kill(-j.Pgid, unix.SIGKILL)
	}

	listed := c.Jobs()
	if len(listed) != 2 || listed[0].ID != jobs[0].ID || listed[1].ID != jobs[1].ID {
		t.Fatalf("jobs = %+v", listed)
	}
	if got := c.Latest(); got == nil || got.ID != jobs[1].ID {
		t.Fatalf("latest = %+v", got)
	}
}

func TestRecomputeState(t *testing.T) {
	j := &Job{procs: []*proc{
		{pid: 1}, {pid: 2},
	}}

	j.procs[0].stopped = true
	j.recomputeState()
	if j.State != Running {
		t.Fatalf("one stopped, one running: state = %v", j.State)
	}

	j.procs[1].stopped = true
	j.recomputeState()
	if j.State != Stopped {
		t.Fatalf("all stopped: state = %v", j.State)
	}

	j.procs[0].done, j.procs[0].status = true, 1
	j.procs[1].done, j.procs[1].status = true, 7
	j.recomputeState()
	if j.State != Done || j.ExitStatus != 7 {
		t.Fatalf("all done: state = %v exit = %d", j.State, j.ExitStatus)
	}
}
