package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/dirac-sh/dirac/job"
)

var builtins = map[string]bool{
	"cd":      true,
	"exit":    true,
	"jobs":    true,
	"fg":      true,
	"bg":      true,
	"history": true,
	"plugins": true,
}

func isBuiltin(name string) bool { return builtins[name] }

func builtinNames() []string {
	names := make([]string, 0, len(builtins))
	for n := range builtins {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// runBuiltin executes one builtin and returns its exit status.
func (s *Shell) runBuiltin(argv []string) int {
	switch argv[0] {
	case "cd":
		return s.builtinCd(argv[1:])
	case "exit":
		return s.builtinExit(argv[1:])
	case "jobs":
		return s.builtinJobs()
	case "fg":
		return s.builtinFg(argv[1:])
	case "bg":
		return s.builtinBg(argv[1:])
	case "history":
		return s.builtinHistory(argv[1:])
	case "plugins":
		return s.builtinPlugins()
	}
	return 127
}

func (s *Shell) builtinCd(args []string) int {
	target := ""
	switch len(args) {
	case 0:
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(s.out, "cd: cannot determine home directory")
			return 1
		}
		target = home
	case 1:
		target = args[0]
	default:
		fmt.Fprintln(s.out, "cd: too many arguments")
		return 1
	}

	if target == "-" {
		old := os.Getenv("OLDPWD")
		if old == "" {
			fmt.Fprintln(s.out, "cd: OLDPWD not set")
			return 1
		}
		target = old
		fmt.Fprintln(s.out, target)
	}

	if !filepath.IsAbs(target) {
		target = filepath.Join(s.cwd, target)
	}

	if err := os.Chdir(target); err != nil {
		msg := fmt.Sprintf("cd: %s: no such directory", args[0])
		if near := s.nearMiss(target); near != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", near)
		}
		fmt.Fprintln(s.out, msg)
		return 1
	}

	os.Setenv("OLDPWD", s.cwd)
	s.cwd = target
	os.Setenv("PWD", target)
	return 0
}

// nearMiss looks for a sibling directory within edit distance 2 of the
// missed path's final element.
func (s *Shell) nearMiss(target string) string {
	parent, want := filepath.Dir(target), filepath.Base(target)
	best, bestDist := "", 3
	for _, e := range s.dirs.Entries(parent) {
		if !e.Dir {
			continue
		}
		if d := editDistance(strings.ToLower(want), strings.ToLower(e.Name)); d < bestDist {
			best, bestDist = e.Name, d
		}
	}
	return best
}

func (s *Shell) builtinExit(args []string) int {
	s.quit = true
	s.exitCode = s.lastStatus
	if len(args) > 0 {
		if n, err := strconv.Atoi(args[0]); err == nil {
			s.exitCode = n
		}
	}
	return s.exitCode
}

func (s *Shell) builtinJobs() int {
	for _, j := range s.jobs.Jobs() {
		fmt.Fprintf(s.out, "[%d]  %-8s  %s\n", j.ID, j.State, j.Text)
	}
	return 0
}

func (s *Shell) builtinFg(args []string) int {
	j, ok := s.pickJob(args)
	if !ok {
		return 1
	}
	fmt.Fprintln(s.out, j.Text)
	status, err := s.jobs.Foreground(j.ID)
	if err != nil {
		s.reportError(err)
		return 1
	}
	return status
}

func (s *Shell) builtinBg(args []string) int {
	j, ok := s.pickJob(args)
	if !ok {
		return 1
	}
	resumed, err := s.jobs.Background(j.ID)
	if err != nil {
		s.reportError(err)
		return 1
	}
	fmt.Fprintf(s.out, "[%d]  %s &\n", resumed.ID, resumed.Text)
	return 0
}

// pickJob selects the job named by a %N or N argument, defaulting to
// the most recent one.
func (s *Shell) pickJob(args []string) (*job.Job, bool) {
	if len(args) == 0 {
		if j := s.jobs.Latest(); j != nil {
			return j, true
		}
		fmt.Fprintln(s.out, "no current job")
		return nil, false
	}
	spec := strings.TrimPrefix(args[0], "%")
	id, err := strconv.Atoi(spec)
	if err != nil {
		fmt.Fprintf(s.out, "invalid job spec: %s\n", args[0])
		return nil, false
	}
	for _, j := range s.jobs.Jobs() {
		if j.ID == id {
			return j, true
		}
	}
	fmt.Fprintf(s.out, "no such job: %%%d\n", id)
	return nil, false
}

func (s *Shell) builtinHistory(args []string) int {
	n := 20
	if len(args) > 0 {
		if v, err := strconv.Atoi(args[0]); err == nil && v > 0 {
			n = v
		}
	}

	total := s.hist.Len()
	start := total - n
	if start < 0 {
		start = 0
	}
	for i := start; i < total; i++ {
		entry, ok := s.hist.At(i)
		if !ok {
			continue
		}
		line := fmt.Sprintf("%5d  %s", entry.Index, entry.Text)
		if entry.Status != nil && *entry.Status != 0 {
			line += fmt.Sprintf("  [exit %d]", *entry.Status)
		}
		fmt.Fprintln(s.out, line)
	}
	return 0
}

func (s *Shell) builtinPlugins() int {
	loaded := s.reg.Loaded()
	if len(loaded) == 0 {
		fmt.Fprintln(s.out, "no plugins loaded")
		return 0
	}
	for _, name := range loaded {
		fmt.Fprintln(s.out, name)
	}
	return 0
}

// editDistance is a plain Levenshtein distance, small inputs only.
func editDistance(a, b string) int {
	ar, br := []rune(a), []rune(b)
	prev := make([]int, len(br)+1)
	cur := make([]int, len(br)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ar); i++ {
		cur[0] = i
		for j := 1; j <= len(br); j++ {
			cost := 1
			if ar[i-1] == br[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, min(cur[j-1]+1, prev[j-1]+cost))
		}
		prev, cur = cur, prev
	}
	return prev[len(br)]
}
