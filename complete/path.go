package complete

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dirac-sh/dirac"
)

// PathProvider completes filesystem paths, and command names when the
// cursor sits in command position. Listings come from the shared
// directory cache.
type PathProvider struct {
	cache    *DirCache
	builtins []string
	cwd      func() string
}

// NewPathProvider creates a path provider. builtins are offered
// alongside executables in command position.
func NewPathProvider(cache *DirCache, builtins []string) *PathProvider {
	return &PathProvider{
		cache:    cache,
		builtins: builtins,
		cwd: func() string {
			wd, err := os.Getwd()
			if err != nil {
				return "."
			}
			return wd
		},
	}
}

func (p *PathProvider) Complete(word, line string, cursor int) []dirac.Candidate {
	start := cursor - len(word)
	if commandPosition(line, start) && !strings.ContainsRune(word, '/') && !strings.HasPrefix(word, "~") {
		return p.commands(word)
	}
	return p.paths(word)
}

// commands completes builtins plus executables found on PATH.
func (p *PathProvider) commands(word string) []dirac.Candidate {
	var out []dirac.Candidate
	seen := make(map[string]bool)
	add := func(name string) {
		if !strings.HasPrefix(name, word) || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, dirac.Candidate{Display: name, Insert: name + " ", Source: dirac.SourcePath})
	}

	for _, b := range p.builtins {
		add(b)
	}
	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		if dir == "" {
			continue
		}
		for _, e := range p.cache.Entries(dir) {
			if !e.Dir {
				add(e.Name)
			}
		}
	}
	return out
}

// paths completes directory entries against the typed fragment. The
// insertion keeps the directory part the user already typed, so only
// the final path element is matched and replaced.
func (p *PathProvider) paths(word string) []dirac.Candidate {
	dirPart, frag := splitPath(word)

	scan := dirPart
	if scan == "" {
		scan = "."
	}
	scan = expandHome(scan)
	if !filepath.IsAbs(scan) {
		scan = filepath.Join(p.cwd(), scan)
	}

	var out []dirac.Candidate
	for _, e := range p.cache.Entries(scan) {
		if !strings.HasPrefix(e.Name, frag) {
			continue
		}
		// Hidden entries only when asked for.
		if strings.HasPrefix(e.Name, ".") && !strings.HasPrefix(frag, ".") {
			continue
		}
		insert := dirPart + e.Name
		display := e.Name
		if e.Dir {
			insert += "/"
			display += "/"
		} else {
			insert += " "
		}
		out = append(out, dirac.Candidate{Display: display, Insert: insert, Source: dirac.SourcePath})
	}
	return out
}

// splitPath splits a path fragment into its directory part (kept
// verbatim, trailing separator included) and the final element.
func splitPath(word string) (dir, frag string) {
	i := strings.LastIndexByte(word, '/')
	if i < 0 {
		return "", word
	}
	return word[:i+1], word[i+1:]
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
		}
	}
	return path
}
