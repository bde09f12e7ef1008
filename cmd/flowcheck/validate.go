package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/entrhq/flowcheck/pkg/engine"
	"github.com/entrhq/flowcheck/pkg/report"
)

func (a *app) validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [path...]",
		Short: "Check the configuration and scenario files without running them",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				args = []string{"scenarios"}
			}
			return a.validate(cmd, args)
		},
	}
}

func (a *app) validate(cmd *cobra.Command, paths []string) error {
	cfg, err := a.opts.loadConfig(cmd)
	if err != nil {
		return err
	}
	console := report.NewLogger(report.ParseLogLevel(cfg.Logging.Verbosity), cmd.OutOrStdout(), a.opts.colorEnabled())

	all, selected, err := loadScenarios(cfg, paths)
	if err != nil {
		return err
	}

	console.Successf("Configuration valid (driver %s)", cfg.Driver)
	console.Successf("%d scenarios valid, %d selected", len(all), len(selected))
	for _, sc := range all {
		mark := " "
		if slices.ContainsFunc(selected, func(s engine.Scenario) bool { return s.Name == sc.Name }) {
			mark = "*"
		}
		console.Verbosef("%s %s (%d steps) %v", mark, sc.Name, len(sc.Steps), sc.Tags)
	}
	if len(selected) == 0 {
		return fmt.Errorf("no scenarios selected")
	}
	return nil
}
