// Package resolve turns a finalized input line into a runnable command.
// Lines that parse as shell and name a known program resolve literally;
// everything else is handed to the translator by the shell loop.
package resolve

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"

	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/syntax"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/plugin"
)

// ErrNeedsTranslation reports that a line did not resolve to a runnable
// command and should be offered to the translator.
var ErrNeedsTranslation = errors.New("line does not resolve to a command")

// Resolver resolves input lines. Plugin resolvers get the first look,
// then the literal shell path.
type Resolver struct {
	reg      *plugin.Registry
	builtins map[string]bool
	lookPath func(string) (string, error)
	environ  func() []string
}

// New creates a resolver. reg may be nil. builtins are names the shell
// handles itself and therefore always resolve.
func New(reg *plugin.Registry, builtins []string) *Resolver {
	m := make(map[string]bool, len(builtins))
	for _, b := range builtins {
		m[b] = true
	}
	return &Resolver{
		reg:      reg,
		builtins: m,
		lookPath: exec.LookPath,
		environ:  os.Environ,
	}
}

// Resolve returns the command for line, or ErrNeedsTranslation when the
// line should go to the translator instead.
func (r *Resolver) Resolve(line string) (*dirac.Command, error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil, fmt.Errorf("empty line")
	}

	if r.reg != nil {
		for _, res := range r.reg.Resolvers() {
			cmd, handled, err := callResolver(res, line)
			if err != nil {
				return nil, fmt.Errorf("plugin resolver: %w", err)
			}
			if !handled {
				continue
			}
			if err := validCommand(cmd); err != nil {
				return nil, fmt.Errorf("plugin resolver: %w", err)
			}
			return cmd, nil
		}
	}

	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(line), "")
	if err != nil {
		// Not shell at all; almost certainly natural language.
		return nil, ErrNeedsTranslation
	}

	cmd, perr := r.build(prog, line)
	if perr == nil {
		if !r.known(cmd.Stages[0].Argv[0]) {
			return nil, ErrNeedsTranslation
		}
		return cmd, nil
	}

	// The line uses shell constructs beyond plain pipelines. If its
	// first program is known, defer the whole line to the user's shell
	// rather than the translator.
	if head := firstWord(prog); head != "" && r.known(head) {
		return shWrap(line), nil
	}
	return nil, ErrNeedsTranslation
}

// callResolver isolates one plugin resolver: a panicking resolver is
// logged and skipped rather than taking down the shell loop.
func callResolver(fn plugin.ResolveFunc, line string) (cmd *dirac.Command, handled bool, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Warn("plugin resolver panicked", "panic", rec)
			cmd, handled, err = nil, false, nil
		}
	}()
	return fn(line)
}

// validCommand rejects malformed plugin-built commands before they can
// reach the job controller.
func validCommand(cmd *dirac.Command) error {
	if cmd == nil || len(cmd.Stages) == 0 {
		return fmt.Errorf("resolved to an empty command")
	}
	for _, st := range cmd.Stages {
		if len(st.Argv) == 0 || st.Argv[0] == "" {
			return fmt.Errorf("resolved to a stage with no program")
		}
	}
	return nil
}

// errUnsupported marks shell constructs the direct pipeline builder
// does not handle.
var errUnsupported = errors.New("unsupported shell construct")

// build converts a parsed program into pipeline stages. It only accepts
// a single statement made of plain calls, pipes, and basic
// redirections; anything richer returns errUnsupported.
func (r *Resolver) build(prog *syntax.File, line string) (*dirac.Command, error) {
	if len(prog.Stmts) != 1 {
		return nil, errUnsupported
	}
	stmt := prog.Stmts[0]

	cmd := &dirac.Command{Text: line, Background: stmt.Background}
	if err := r.addStages(cmd, stmt); err != nil {
		return nil, err
	}
	if len(cmd.Stages) == 0 {
		return nil, errUnsupported
	}
	return cmd, nil
}

// addStages flattens a statement into pipeline stages, left to right.
func (r *Resolver) addStages(cmd *dirac.Command, stmt *syntax.Stmt) error {
	switch node := stmt.Cmd.(type) {
	case *syntax.BinaryCmd:
		if node.Op != syntax.Pipe {
			return errUnsupported
		}
		if len(stmt.Redirs) > 0 {
			return errUnsupported
		}
		if err := r.addStages(cmd, node.X); err != nil {
			return err
		}
		return r.addStages(cmd, node.Y)

	case *syntax.CallExpr:
		if len(node.Assigns) > 0 || len(node.Args) == 0 {
			return errUnsupported
		}
		stage := dirac.Stage{}
		for _, w := range node.Args {
			lit, err := r.expandWord(w)
			if err != nil {
				return errUnsupported
			}
			stage.Argv = append(stage.Argv, lit)
		}
		for _, redir := range stmt.Redirs {
			if redir.N != nil || redir.Word == nil {
				return errUnsupported
			}
			target, err := r.expandWord(redir.Word)
			if err != nil {
				return errUnsupported
			}
			switch redir.Op {
			case syntax.RdrIn:
				stage.Redirect.In = target
			case syntax.RdrOut:
				stage.Redirect.Out = target
			case syntax.AppOut:
				stage.Redirect.Out = target
				stage.Redirect.Append = true
			default:
				return errUnsupported
			}
		}
		cmd.Stages = append(cmd.Stages, stage)
		return nil

	default:
		return errUnsupported
	}
}

// expandWord resolves quotes, escapes, and $VAR references. Glob
// patterns pass through unexpanded; programs see them literally.
func (r *Resolver) expandWord(w *syntax.Word) (string, error) {
	cfg := &expand.Config{Env: expand.ListEnviron(r.environ()...)}
	return expand.Literal(cfg, w)
}

// known reports whether name would execute: a builtin, an explicit
// path, or a program on PATH.
func (r *Resolver) known(name string) bool {
	if name == "" {
		return false
	}
	if r.builtins[name] {
		return true
	}
	if strings.ContainsRune(name, '/') {
		info, err := os.Stat(name)
		return err == nil && !info.IsDir()
	}
	_, err := r.lookPath(name)
	return err == nil
}

// firstWord returns the first plain program name in the parsed line.
func firstWord(prog *syntax.File) string {
	var head string
	syntax.Walk(prog, func(node syntax.Node) bool {
		if head != "" {
			return false
		}
		if call, ok := node.(*syntax.CallExpr); ok && len(call.Args) > 0 {
			if lit := literalText(call.Args[0]); lit != "" {
				head = lit
				return false
			}
		}
		return true
	})
	return head
}

// literalText renders a word's unquoted literal parts.
func literalText(w *syntax.Word) string {
	var b strings.Builder
	for _, part := range w.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			b.WriteString(p.Value)
		case *syntax.SglQuoted:
			b.WriteString(p.Value)
		default:
			return ""
		}
	}
	return b.String()
}

// shWrap defers an entire line to the user's shell.
func shWrap(line string) *dirac.Command {
	sh := os.Getenv("SHELL")
	if sh == "" {
		sh = "/bin/sh"
	}
	return &dirac.Command{
		Text:   line,
		Stages: []dirac.Stage{{Argv: []string{sh, "-c", line}}},
	}
}
