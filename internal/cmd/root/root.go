// Copyright The tufci Authors
// SPDX-License-Identifier: Apache-2.0

package root

import (
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tufci/tufci/internal/cmd/build"
	"github.com/tufci/tufci/internal/cmd/createevents"
	"github.com/tufci/tufci/internal/cmd/dev"
	"github.com/tufci/tufci/internal/cmd/onlinesign"
	"github.com/tufci/tufci/internal/cmd/sign"
	"github.com/tufci/tufci/internal/cmd/status"
	"github.com/tufci/tufci/internal/cmd/updatetargets"
	"github.com/tufci/tufci/internal/cmd/version"
	"github.com/tufci/tufci/internal/display"
)

type options struct {
	noColor bool
	verbose bool
}

func (o *options) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().BoolVar(
		&o.noColor,
		"no-color",
		false,
		"turn off colored output",
	)

	cmd.PersistentFlags().BoolVar(
		&o.verbose,
		"verbose",
		false,
		"enable verbose logging",
	)
}

func (o *options) PreRun(_ *cobra.Command, _ []string) {
	output := os.Stdout
	isTerminal := isatty.IsTerminal(output.Fd()) || isatty.IsCygwinTerminal(output.Fd())
	if o.noColor || !isTerminal {
		display.DisableColor()
	}

	level := slog.LevelInfo
	if o.verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})))
}

func New() *cobra.Command {
	o := &options{}
	cmd := &cobra.Command{
		Use:   "tufci",
		Short: "Threshold-signed trust metadata repositories on CI",
		Long: `tufci maintains a TUF metadata repository whose signing decisions run through version control: offline roles are signed by their key holders in reviewed signing events, while automation keeps versions, expiries and the online roles current.

The commands fall into two groups: the signing event commands (status, sign, update-targets) evaluate and maintain the branch of one signing event, and the scheduled commands (create-events, online-sign, build) run the periodic repository automation.`,

		SilenceUsage:      true,
		DisableAutoGenTag: true,
		PersistentPreRun:  o.PreRun,
	}

	o.AddFlags(cmd)

	cmd.AddCommand(build.New())
	cmd.AddCommand(createevents.New())
	cmd.AddCommand(dev.New())
	cmd.AddCommand(onlinesign.New())
	cmd.AddCommand(sign.New())
	cmd.AddCommand(status.New())
	cmd.AddCommand(updatetargets.New())
	cmd.AddCommand(version.New())

	return cmd
}
