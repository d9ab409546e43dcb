// Package job runs resolved commands as POSIX jobs: one process group
// per pipeline, foreground terminal handoff, stop/continue, and
// non-blocking status collection for background jobs.
package job

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/dirac-sh/dirac"
)

// State is a job's lifecycle phase.
type State int

const (
	Running State = iota
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Running:
		return "Running"
	case Stopped:
		return "Stopped"
	case Done:
		return "Done"
	default:
		return "Unknown"
	}
}

// proc tracks one process of a pipeline.
type proc struct {
	pid     int
	status  int
	done    bool
	stopped bool
}

// Job is one dispatched pipeline.
type Job struct {
	ID         int
	Pgid       int
	Text       string
	Background bool
	State      State
	ExitStatus int

	procs []*proc
}

// Controller owns the job table and the terminal's foreground process
// group. All methods are safe for use from the shell loop goroutine
// plus signal-driven callers.
type Controller struct {
	ttyFd       int
	shellPgid   int
	interactive bool

	sigCh     chan os.Signal
	closeOnce sync.Once

	mu     sync.Mutex
	jobs   map[int]*Job
	nextID int
}

// NewController creates a controller for the given tty descriptor.
// ttyFd < 0 disables terminal handoff (non-interactive mode). Job
// control signals the shell must survive are ignored here.
func NewController(ttyFd int) *Controller {
	c := &Controller{
		ttyFd:       ttyFd,
		shellPgid:   unix.Getpgrp(),
		interactive: ttyFd >= 0,
		jobs:        make(map[int]*Job),
		sigCh:       make(chan os.Signal, 8),
	}
	// The shell writes to the tty and calls TIOCSPGRP while it is not
	// the foreground group; SIGTTOU/SIGTTIN would stop it. Catching
	// instead of SIG_IGN keeps default dispositions in children, so a
	// foreground job still dies on Ctrl-C.
	signal.Notify(c.sigCh, syscall.SIGTTOU, syscall.SIGTTIN, syscall.SIGINT, syscall.SIGQUIT)
	go func() {
		for range c.sigCh {
		}
	}()
	return c
}

// Close detaches the signal drain. Safe to call more than once.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		signal.Stop(c.sigCh)
		close(c.sigCh)
	})
}

// Dispatch starts every stage of cmd in a fresh process group. For a
// foreground job the group is handed the terminal before this returns;
// the caller then calls WaitForeground. Background jobs are registered
// in the job table and returned immediately.
func (c *Controller) Dispatch(cmd *dirac.Command) (*Job, error) {
	if cmd.Empty() {
		return nil, fmt.Errorf("no command to run")
	}

	c.mu.Lock()
	c.nextID++
	job := &Job{
		ID:         c.nextID,
		Text:       cmd.Text,
		Background: cmd.Background,
		State:      Running,
	}
	c.mu.Unlock()

	var prevRead *os.File
	var started []*exec.Cmd
	fail := func(err error) (*Job, error) {
		if prevRead != nil {
			prevRead.Close()
		}
		for _, e := range started {
			e.Process.Kill()
		}
		c.reapGroup(job)
		return nil, err
	}

	for i, stage := range cmd.Stages {
		last := i == len(cmd.Stages)-1

		ecmd := exec.Command(stage.Argv[0], stage.Argv[1:]...)
		ecmd.Stdin = os.Stdin
		ecmd.Stdout = os.Stdout
		ecmd.Stderr = os.Stderr

		if prevRead != nil {
			ecmd.Stdin = prevRead
		}

		// Parent-side descriptors to drop once the child holds them.
		var parentClose []*os.File
		var nextRead *os.File
		if !last {
			r, w, err := os.Pipe()
			if err != nil {
				return fail(fmt.Errorf("pipe: %w", err))
			}
			ecmd.Stdout = w
			nextRead = r
			parentClose = append(parentClose, w)
		}

		files, err := applyRedirect(ecmd, stage.Redirect)
		parentClose = append(parentClose, files...)
		closeAll := func() {
			for _, f := range parentClose {
				f.Close()
			}
		}
		if err != nil {
			closeAll()
			if nextRead != nil {
				nextRead.Close()
			}
			return fail(err)
		}

		ecmd.SysProcAttr = c.procAttr(job, i == 0)

		if err := ecmd.Start(); err != nil {
			closeAll()
			if nextRead != nil {
				nextRead.Close()
			}
			return fail(fmt.Errorf("start %s: %w", stage.Argv[0], err))
		}
		closeAll()
		if prevRead != nil {
			prevRead.Close()
		}
		prevRead = nextRead
		started = append(started, ecmd)

		if i == 0 {
			job.Pgid = ecmd.Process.Pid
		}
		job.procs = append(job.procs, &proc{pid: ecmd.Process.Pid})
	}
	if prevRead != nil {
		prevRead.Close()
	}

	c.mu.Lock()
	c.jobs[job.ID] = job
	c.mu.Unlock()

	if !cmd.Background {
		c.giveTerminal(job.Pgid)
	}
	slog.Debug("job dispatched", "id", job.ID, "pgid", job.Pgid, "background", cmd.Background)
	return job, nil
}

// procAttr builds the process-group attributes for one stage. The first
// foreground stage takes the terminal in the child, closing the race
// between exec and the shell's own handoff.
func (c *Controller) procAttr(job *Job, first bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true}
	if first {
		if c.interactive && !job.Background {
			attr.Foreground = true
			attr.Ctty = c.ttyFd
		}
		return attr
	}
	attr.Pgid = job.Pgid
	return attr
}

// applyRedirect opens redirection targets on the stage command. The
// returned files must be closed in the parent after Start.
func applyRedirect(ecmd *exec.Cmd, r dirac.Redirect) ([]*os.File, error) {
	var files []*os.File
	if r.In != "" {
		f, err := os.Open(r.In)
		if err != nil {
			return files, fmt.Errorf("redirect input: %w", err)
		}
		ecmd.Stdin = f
		files = append(files, f)
	}
	if r.Out != "" {
		flags := os.O_WRONLY | os.O_CREATE
		if r.Append {
			flags |= os.O_APPEND
		} else {
			flags |= os.O_TRUNC
		}
		f, err := os.OpenFile(r.Out, flags, 0o644)
		if err != nil {
			return files, fmt.Errorf("redirect output: %w", err)
		}
		ecmd.Stdout = f
		files = append(files, f)
	}
	return files, nil
}

// giveTerminal makes pgid the terminal's foreground process group.
func (c *Controller) giveTerminal(pgid int) {
	if !c.interactive {
		return
	}
	if err := unix.IoctlSetPointerInt(c.ttyFd, unix.TIOCSPGRP, pgid); err != nil {
		slog.Warn("terminal handoff failed", "pgid", pgid, "error", err)
	}
}

// reclaimTerminal returns the terminal to the shell's process group.
func (c *Controller) reclaimTerminal() {
	c.giveTerminal(c.shellPgid)
}
