package shell

import (
	"fmt"

	"github.com/fatih/color"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/term"
)

type confirmDecision int

const (
	confirmReject confirmDecision = iota
	confirmAccept
	confirmEdit
)

// confirm shows a translated suggestion and reads a single-key
// decision. A suggestion is never executed without an explicit accept.
func (s *Shell) confirm(res *dirac.TranslateResult) confirmDecision {
	fmt.Fprintf(s.out, "  %s\n", color.New(color.FgGreen, color.Bold).Sprint(res.Command))
	if res.Explanation != "" {
		fmt.Fprintf(s.out, "  %s\n", color.New(color.Faint).Sprint(res.Explanation))
	}
	fmt.Fprintf(s.out, "run this? [y]es / [e]dit / [n]o: ")

	decision := s.readDecision()
	switch decision {
	case confirmAccept:
		fmt.Fprintln(s.out, "y")
	case confirmEdit:
		fmt.Fprintln(s.out, "e")
	default:
		fmt.Fprintln(s.out, "n")
	}
	return decision
}

// readDecision reads keys in raw mode until one maps to a decision.
// Anything that is not an explicit yes or edit rejects.
func (s *Shell) readDecision() confirmDecision {
	if err := s.tty.EnterRaw(); err != nil {
		return confirmReject
	}
	defer s.tty.LeaveRaw()

	for {
		key, err := s.tty.ReadKey()
		if err != nil {
			return confirmReject
		}
		switch {
		case key.Kind == term.KeyRune && (key.Rune == 'y' || key.Rune == 'Y' || key.Rune == 'a'):
			return confirmAccept
		case key.Kind == term.KeyRune && (key.Rune == 'e' || key.Rune == 'E'):
			return confirmEdit
		case key.Kind == term.KeyRune && (key.Rune == 'n' || key.Rune == 'N' || key.Rune == 'r'):
			return confirmReject
		case key.Kind == term.KeyEnter || key.Kind == term.KeyEsc || key == term.Ctrl('c'):
			return confirmReject
		}
	}
}
