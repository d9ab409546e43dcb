// Package term is the terminal I/O adapter: scoped raw-mode control on
// /dev/tty, key-event decoding, and control-sequence output helpers.
package term

import (
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// Terminal owns the controlling tty. It reads from /dev/tty so the
// shell keeps working when stdout is redirected.
type Terminal struct {
	tty  *os.File
	keys *Decoder

	mu    sync.Mutex
	saved *term.State // non-nil while raw mode is active
}

// Open opens /dev/tty. The terminal starts in cooked mode.
func Open() (*Terminal, error) {
	tty, err := os.OpenFile("/dev/tty", os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/tty: %w", err)
	}
	return &Terminal{tty: tty, keys: NewDecoder(tty)}, nil
}

// EnterRaw switches the tty to raw mode. It is a no-op when raw mode
// is already active.
func (t *Terminal) EnterRaw() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saved != nil {
		return nil
	}
	st, err := term.MakeRaw(int(t.tty.Fd()))
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	t.saved = st
	return nil
}

// LeaveRaw restores the saved terminal attributes. Safe to call on any
// exit path, any number of times.
func (t *Terminal) LeaveRaw() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.saved == nil {
		return nil
	}
	err := term.Restore(int(t.tty.Fd()), t.saved)
	t.saved = nil
	if err != nil {
		return fmt.Errorf("restore terminal: %w", err)
	}
	return nil
}

// Raw reports whether raw mode is currently active.
func (t *Terminal) Raw() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.saved != nil
}

// RestoreOnTermination restores cooked mode before the process dies on
// SIGTERM or SIGHUP, then re-raises the signal so the exit status
// still reports the signal. Without it, a kill delivered while raw
// mode is active would leave the tty with echo and ISIG off. The
// returned stop func detaches the handler.
func (t *Terminal) RestoreOnTermination() (stop func()) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGHUP)
	go func() {
		sig, ok := <-ch
		if !ok {
			return
		}
		t.LeaveRaw()
		signal.Stop(ch)
		if s, ok := sig.(syscall.Signal); ok {
			syscall.Kill(syscall.Getpid(), s)
		} else {
			os.Exit(1)
		}
	}()
	var once sync.Once
	return func() {
		once.Do(func() {
			signal.Stop(ch)
			close(ch)
		})
	}
}

// Close restores terminal state and closes the tty fd.
func (t *Terminal) Close() error {
	err := t.LeaveRaw()
	if cerr := t.tty.Close(); err == nil {
		err = cerr
	}
	return err
}

// ReadKey blocks until one decoded key event is available.
func (t *Terminal) ReadKey() (Key, error) {
	return t.keys.ReadKey()
}

// Pending reports whether input is available to read within the
// timeout, so a caller can keep servicing keys while waiting on
// something else.
func (t *Terminal) Pending(timeout time.Duration) (bool, error) {
	if t.keys.Buffered() > 0 {
		return true, nil
	}
	fds := []unix.PollFd{{Fd: int32(t.tty.Fd()), Events: unix.POLLIN}}
	for {
		n, err := unix.Poll(fds, int(timeout.Milliseconds()))
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return false, fmt.Errorf("poll tty: %w", err)
		}
		return n > 0, nil
	}
}

// Write emits raw bytes, control sequences included.
func (t *Terminal) Write(p []byte) (int, error) {
	return t.tty.Write(p)
}

// WriteString emits a string to the tty.
func (t *Terminal) WriteString(s string) (int, error) {
	return t.tty.WriteString(s)
}

// Fd returns the tty file descriptor, used for process-group handoff.
func (t *Terminal) Fd() int {
	return int(t.tty.Fd())
}

// Size returns the terminal width and height in cells.
func (t *Terminal) Size() (width, height int, err error) {
	return term.GetSize(int(t.tty.Fd()))
}

// ClearLine rewinds to column zero and clears to end of line.
func (t *Terminal) ClearLine() {
	t.tty.WriteString("\r\x1b[K")
}

// CursorBack moves the cursor n cells left.
func (t *Terminal) CursorBack(n int) {
	if n > 0 {
		fmt.Fprintf(t.tty, "\x1b[%dD", n)
	}
}

// ClearScreen clears the screen and homes the cursor.
func (t *Terminal) ClearScreen() {
	t.tty.WriteString("\x1b[2J\x1b[H")
}
