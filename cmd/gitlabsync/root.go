// Package gitlabsync contains the Cobra command tree for the gitlab-sync CLI.
package gitlabsync

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/skaphos/gitlab-sync/internal/logging"
)

const unsupportedCommand = "command %q not supported, valid commands are init, sync, pull and push"

var (
	// Global flags
	flagVerbose int
	flagQuiet   bool
	flagConfig  string
	flagNoColor bool
	// colorOutputEnabled is set per command execution based on output format and TTY detection.
	colorOutputEnabled bool
	// exitCode tracks the highest severity observed during a command run.
	exitCode int
	// isTerminalFD is overridable in tests.
	isTerminalFD = term.IsTerminal
	// exitFunc is overridable in tests.
	exitFunc = os.Exit
)

var rootCmd = &cobra.Command{
	Use:   "gitlab-sync [init|sync|pull|push]",
	Short: "Mirror the repositories of a GitLab group onto local disk",
	Long: "gitlab-sync clones every non-archived project of a GitLab group and keeps each " +
		"default branch in sync with its canonical remote: pull, then push.",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Args: func(_ *cobra.Command, args []string) error {
		if len(args) > 0 {
			return fmt.Errorf(unsupportedCommand, args[0])
		}
		return nil
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		// `NO_COLOR` is a standard opt-out and should behave like --no-color.
		if strings.TrimSpace(os.Getenv("NO_COLOR")) != "" {
			flagNoColor = true
		}
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runMode(cmd, syncCmd.Name())
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v", "increase output verbosity")
	rootCmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only print warnings and errors")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "override config file path")
	rootCmd.PersistentFlags().BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate(versionTemplate())
	addRunFlags(rootCmd)
}

// Execute runs the root command.
func Execute() {
	exitFunc(ExecuteWithExitCode())
}

// ExecuteWithExitCode runs the root command and returns a shell-friendly exit code.
func ExecuteWithExitCode() int {
	exitCode = 0
	colorOutputEnabled = false
	if err := rootCmd.Execute(); err != nil {
		var logged loggedError
		if !errors.As(err, &logged) {
			fmt.Fprintln(rootCmd.ErrOrStderr(), err)
		}
		return 3
	}
	return exitCode
}

// loggedError marks fatal errors that were already written to the log.
type loggedError struct{ err error }

func (e loggedError) Error() string { return e.err.Error() }
func (e loggedError) Unwrap() error { return e.err }

func fatal(log logrus.FieldLogger, err error) error {
	log.Error(err.Error())
	return loggedError{err: err}
}

func raiseExitCode(code int) {
	// Keep the highest severity: 0 success, 1 warning, 2 error, 3 fatal.
	if code > exitCode {
		exitCode = code
	}
}

// consoleLogger returns a logger that only writes to stderr, for commands
// that run before a config file is available.
func consoleLogger(cmd *cobra.Command) *logrus.Logger {
	level, _ := logging.ParseLevel("", flagVerbose, flagQuiet)
	log, _ := logging.New(logging.Options{
		Console: cmd.ErrOrStderr(),
		Level:   level,
		Color:   isColorTerminal(cmd.ErrOrStderr()),
	})
	return log
}

func setColorOutputMode(cmd *cobra.Command, format string) {
	colorOutputEnabled = shouldUseColorOutput(cmd, format)
}

func shouldUseColorOutput(cmd *cobra.Command, format string) bool {
	if !isTabularFormat(format) {
		return false
	}
	return isColorTerminal(cmd.OutOrStdout())
}

func isColorTerminal(out io.Writer) bool {
	if flagNoColor {
		return false
	}
	file, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isTerminalFD(int(file.Fd()))
}

func isTabularFormat(format string) bool {
	return strings.EqualFold(strings.TrimSpace(format), "table")
}
