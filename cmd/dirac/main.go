// Command dirac is an interactive shell that falls back to a
// natural-language translator when a line does not resolve to a
// command.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dirac-sh/dirac"
	"github.com/dirac-sh/dirac/history"
	"github.com/dirac-sh/dirac/shell"
	"github.com/dirac-sh/dirac/term"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	var configPath string
	var debug bool
	code := 0

	root := &cobra.Command{
		Use:           "dirac",
		Short:         "an interactive shell with a natural-language fallback",
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			code = runShell(configPath, debug)
			return nil
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file (default: "+dirac.ConfigPath()+")")
	root.Flags().BoolVar(&debug, "debug", false, "log at debug level")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "print the dirac version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("dirac", version)
		},
	})

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "dirac:", err)
		return 1
	}
	return code
}

// runShell builds and runs one interactive session. Exit codes: 0 on a
// normal exit, 1 for startup failures, 2 when the terminal cannot be
// driven.
func runShell(configPath string, debug bool) int {
	var cfg *dirac.Config
	var err error
	if configPath != "" {
		cfg, err = dirac.LoadConfigFrom(configPath)
	} else {
		cfg, err = dirac.LoadConfig()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "dirac:", err)
		return 1
	}

	closeLog := setupLogging(debug)
	defer closeLog()

	tty, err := term.Open()
	if err != nil {
		fmt.Fprintln(os.Stderr, "dirac: cannot open terminal:", err)
		return 2
	}
	defer tty.Close()
	stopRestore := tty.RestoreOnTermination()
	defer stopRestore()

	hist := history.Open(dirac.HistoryPath(cfg), cfg.History.Limit)

	sh := shell.New(cfg, tty, hist)
	shell.ConfigureTranslator(sh, cfg)
	shell.ConfigureRecall(sh, cfg)

	slog.Info("session starting", "version", version)
	return sh.Run()
}

// setupLogging routes slog to a file under the state dir so log lines
// never tear the prompt. Failure to open the file keeps logging off.
func setupLogging(debug bool) func() {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}

	dir := dirac.StateDir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return func() {}
	}
	f, err := os.OpenFile(filepath.Join(dir, "dirac.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.SetDefault(slog.New(slog.DiscardHandler))
		return func() {}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: level})))
	return func() { f.Close() }
}
