package job

import (
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"
)

// WaitForeground blocks until the job finishes or stops, then returns
// the terminal to the shell. The returned status is the exit status of
// the last pipeline stage, or 128+signal when it was killed; a stopped
// job reports status 148 (128+SIGTSTP) like other shells.
func (c *Controller) WaitForeground(j *Job) int {
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-j.Pgid, &ws, unix.WUNTRACED, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			// ECHILD: everything already reaped.
			break
		}
		c.applyStatus(pid, ws)

		c.mu.Lock()
		state := j.State
		c.mu.Unlock()
		if state != Running {
			break
		}
	}

	c.reclaimTerminal()

	c.mu.Lock()
	defer c.mu.Unlock()
	if j.State == Done {
		delete(c.jobs, j.ID)
		return j.ExitStatus
	}
	// Stopped: keep it in the table for fg/bg.
	j.Background = true
	slog.Info("job stopped", "id", j.ID, "text", j.Text)
	return 148
}

// Poll reaps state changes of background jobs without blocking and
// returns the jobs that changed. Finished jobs leave the table; the
// caller reports them once.
func (c *Controller) Poll() []*Job {
	var changed []*Job
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-1, &ws, unix.WNOHANG|unix.WUNTRACED, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			break
		}
		if pid <= 0 {
			break
		}
		if j := c.applyStatus(pid, ws); j != nil {
			changed = append(changed, j)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	out := changed[:0]
	seen := make(map[int]bool)
	for _, j := range changed {
		if seen[j.ID] || j.State == Running {
			continue
		}
		seen[j.ID] = true
		out = append(out, j)
		if j.State == Done {
			delete(c.jobs, j.ID)
		}
	}
	return out
}

// Foreground resumes a job in the foreground and waits for it.
func (c *Controller) Foreground(id int) (int, error) {
	j, err := c.lookup(id)
	if err != nil {
		return 0, err
	}
	c.giveTerminal(j.Pgid)
	if err := c.resume(j); err != nil {
		c.reclaimTerminal()
		return 0, err
	}
	return c.WaitForeground(j), nil
}

// Background resumes a stopped job without giving it the terminal.
func (c *Controller) Background(id int) (*Job, error) {
	j, err := c.lookup(id)
	if err != nil {
		return nil, err
	}
	if err := c.resume(j); err != nil {
		return nil, err
	}
	return j, nil
}

func (c *Controller) resume(j *Job) error {
	if err := unix.Kill(-j.Pgid, unix.SIGCONT); err != nil {
		return fmt.Errorf("continue job %d: %w", j.ID, err)
	}
	c.mu.Lock()
	j.State = Running
	for _, p := range j.procs {
		p.stopped = false
	}
	c.mu.Unlock()
	return nil
}

// Jobs returns a snapshot of the job table ordered by id.
func (c *Controller) Jobs() []*Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Job, 0, len(c.jobs))
	for id := 1; id <= c.nextID; id++ {
		if j, ok := c.jobs[id]; ok {
			out = append(out, j)
		}
	}
	return out
}

// Latest returns the most recently created live job, or nil.
func (c *Controller) Latest() *Job {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id := c.nextID; id >= 1; id-- {
		if j, ok := c.jobs[id]; ok {
			return j
		}
	}
	return nil
}

func (c *Controller) lookup(id int) (*Job, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[id]
	if !ok {
		return nil, fmt.Errorf("no such job: %%%d", id)
	}
	return j, nil
}

// reapGroup drains children left over from a failed dispatch so they
// never linger as zombies.
func (c *Controller) reapGroup(j *Job) {
	if j.Pgid == 0 {
		return
	}
	for {
		var ws unix.WaitStatus
		pid, err := unix.Wait4(-j.Pgid, &ws, unix.WNOHANG, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			return
		}
		if pid <= 0 {
			return
		}
	}
}

// applyStatus records one wait status and recomputes the owning job's
// state. It returns the job when the status belonged to a tracked
// process.
func (c *Controller) applyStatus(pid int, ws unix.WaitStatus) *Job {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, j := range c.jobs {
		for _, p := range j.procs {
			if p.pid != pid {
				continue
			}
			switch {
			case ws.Stopped():
				p.stopped = true
			case ws.Signaled():
				p.done = true
				p.status = 128 + int(ws.Signal())
			case ws.Exited():
				p.done = true
				p.status = ws.ExitStatus()
			}
			j.recomputeState()
			return j
		}
	}
	slog.Debug("reaped untracked process", "pid", pid)
	return nil
}

// recomputeState derives the job state from its processes. Caller holds
// the controller lock.
func (j *Job) recomputeState() {
	allDone := true
	allStoppedOrDone := true
	for _, p := range j.procs {
		if p.done {
			continue
		}
		allDone = false
		if !p.stopped {
			allStoppedOrDone = false
		}
	}
	switch {
	case allDone:
		j.State = Done
		j.ExitStatus = j.procs[len(j.procs)-1].status
	case allStoppedOrDone:
		j.State = Stopped
	default:
		j.State = Running
	}
}
