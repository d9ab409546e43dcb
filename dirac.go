// Package dirac defines the shared data model for the dirac shell:
// completion candidates, resolved commands, and the request/response
// contract of the natural-language translator.
package dirac

// Source identifies where a completion candidate came from.
type Source string

const (
	// SourcePath marks candidates produced by the filesystem provider.
	SourcePath Source = "path"
	// SourceHistory marks candidates produced from command history.
	SourceHistory Source = "history"
	// SourcePlugin marks candidates contributed by a loaded plugin.
	SourcePlugin Source = "plugin"
)

// Candidate is one suggested completion for the token under the cursor.
type Candidate struct {
	// Display is the text shown in the candidate list.
	Display string
	// Insert is the text spliced into the buffer when the candidate
	// is selected. It replaces the token under the cursor.
	Insert string
	// Source tags the provider kind that produced the candidate.
	Source Source
}

// Redirect names the input/output targets of one pipeline stage.
// Empty fields mean the stream is inherited (or piped).
type Redirect struct {
	In     string // < path
	Out    string // > path
	Append bool   // >> instead of >
}

// Stage is one command of a pipeline: a program name, its arguments,
// and any file redirections attached to it.
type Stage struct {
	Argv     []string
	Redirect Redirect
}

// Command is a fully resolved command line, ready for dispatch.
type Command struct {
	Stages []Stage
	// Text is the literal command line recorded to history. For a
	// translated command this is the translator's output, never the
	// natural-language input.
	Text string
	// Background is set when the line ended with &.
	Background bool
	// Translated marks commands that originated from natural language.
	// A translated command is never dispatched without confirmation.
	Translated bool
}

// Empty reports whether the command has no stages to run.
func (c *Command) Empty() bool {
	return c == nil || len(c.Stages) == 0
}

// TranslateRequest carries one natural-language line to the translator
// together with a snapshot of shell context.
type TranslateRequest struct {
	// Input is the raw line the user typed.
	Input string
	// Cwd is the shell's working directory at the time of the request.
	Cwd string
	// OS tags the host platform (runtime.GOOS) so suggested commands
	// use the right flags.
	OS string
	// Listing is a bounded listing of Cwd, one name per entry.
	Listing []string
	// Recent is a bounded slice of the most recent history entries.
	Recent []string
	// Relevant holds semantically related history entries when the
	// recall index is enabled. May be empty.
	Relevant []string
}

// TranslateResult is a candidate command line returned by the translator.
type TranslateResult struct {
	// Command is the suggested shell command line.
	Command string
	// Explanation is a short description of what the command does,
	// shown in the confirmation prompt.
	Explanation string
}
