package recall

import (
	"bytes"
	"regexp"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// keepVars are variable names safe to ship to an embedding or
// translation endpoint. Everything else is assumed sensitive.
var keepVars = map[string]bool{
	"HOME": true, "USER": true, "PWD": true, "OLDPWD": true,
	"SHELL": true, "PATH": true, "LANG": true, "TERM": true,
	"EDITOR": true, "PAGER": true, "HOSTNAME": true, "TMPDIR": true,
	"XDG_CONFIG_HOME": true, "XDG_DATA_HOME": true, "SHLVL": true,
	"COLUMNS": true, "LINES": true,
}

// keepParam reports whether a shell parameter reference may pass
// through unredacted: a safe variable or a special parameter like $?.
func keepParam(name string) bool {
	if keepVars[name] {
		return true
	}
	if len(name) == 1 && strings.ContainsAny(name, "?!#@*-$_0123456789") {
		return true
	}
	return false
}

// Redact rewrites a command so that sensitive variable references and
// assignment values never leave the machine. Commands that fail to
// parse fall back to pattern redaction.
func Redact(cmd string) string {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	prog, err := parser.Parse(strings.NewReader(cmd), "")
	if err != nil {
		return patternRedact(cmd)
	}

	syntax.Walk(prog, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.ParamExp:
			if n.Param != nil && !keepParam(n.Param.Value) {
				n.Param.Value = "REDACTED"
			}
		case *syntax.Assign:
			if n.Name != nil && !keepVars[n.Name.Value] && n.Value != nil {
				n.Value.Parts = []syntax.WordPart{&syntax.Lit{Value: "***"}}
			}
		}
		return true
	})

	var buf bytes.Buffer
	if err := syntax.NewPrinter().Print(&buf, prog); err != nil {
		return patternRedact(cmd)
	}
	return strings.TrimRight(buf.String(), "\n")
}

var (
	reVarRef = regexp.MustCompile(`\$\{?([A-Za-z_][A-Za-z0-9_]*)\}?`)
	reAssign = regexp.MustCompile(`\b([A-Za-z_][A-Za-z0-9_]*)=(\S+)`)
)

// patternRedact handles lines the shell parser rejects.
func patternRedact(cmd string) string {
	cmd = reVarRef.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reVarRef.FindStringSubmatch(m)[1]
		if keepParam(name) {
			return m
		}
		if strings.HasPrefix(m, "${") {
			return "${REDACTED}"
		}
		return "$REDACTED"
	})
	return reAssign.ReplaceAllStringFunc(cmd, func(m string) string {
		name := reAssign.FindStringSubmatch(m)[1]
		if keepVars[name] {
			return m
		}
		return name + "=***"
	})
}
