package main

import (
	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/sc/internal/logger"

	_ "github.com/alexisbeaulieu97/sc/internal/tools/shellstep"
)

func newRootCmd(log *logger.Logger) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sc",
		Short:         "sc drives a flowgraph of compilation tasks against a design manifest",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newRunCmd(log))
	cmd.AddCommand(newShowCmd(log))
	cmd.AddCommand(newVersionCmd())

	return cmd
}
