// Package main provides the flowcheck command line tool.
//
// flowcheck runs scripted browser workflows against a web application and
// reports one verdict per scenario. It is meant for CI pipelines: the exit code
// is 0 when every scenario passed, 1 when any failed and 2 when any could not
// be executed.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
}

func (e *exitError) Error() string {
	return fmt.Sprintf("exit status %d", e.code)
}

func main() {
	if err := newApp().rootCmd().Execute(); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}
}

// app holds the state shared by the commands.
type app struct {
	opts options

	// newDriver is replaced in tests
	newDriver driverFactory
}

func newApp() *app {
	return &app{newDriver: defaultDriver}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowcheck",
		Short: "Run scripted browser workflows and report a verdict per scenario",
		Long: `flowcheck drives a headless Chromium through scenario files (YAML) and
checks that each workflow reaches its expected outcome.

Every scenario runs in its own browser. Steps that cannot find or act on their
target may declare an alternate that is tried once. Exit codes: 0 all passed,
1 a scenario failed, 2 a scenario could not be executed.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	a.opts.bindPersistent(root)

	root.AddCommand(a.runCmd())
	root.AddCommand(a.validateCmd())
	root.AddCommand(versionCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the flowcheck version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowcheck %s\n", version)
		},
	}
}
