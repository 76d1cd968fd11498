package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/sc/internal/logger"
	"github.com/alexisbeaulieu97/sc/internal/schema"
)

// newShowCmd dumps a manifest in any of the serialization formats
// internal/schema/serialize.go supports (spec.md §4.1 "serialization").
func newShowCmd(log *logger.Logger) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "show <manifest.json>",
		Short: "Print a manifest in yaml, tcl, or csv form",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("read manifest: %w", err)
			}
			node, err := schema.DecodeJSON(data)
			if err != nil {
				return fmt.Errorf("decode manifest: %w", err)
			}

			var out []byte
			switch format {
			case "yaml":
				out, err = schema.MarshalYAML(node)
			case "tcl":
				out, err = schema.MarshalTCL(node)
			case "csv":
				out, err = schema.MarshalCSV(node)
			default:
				return fmt.Errorf("unknown format %q (want yaml, tcl, or csv)", format)
			}
			if err != nil {
				return fmt.Errorf("marshal manifest as %s: %w", format, err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}

	cmd.Flags().StringVar(&format, "format", "yaml", "output format: yaml, tcl, or csv")
	return cmd
}
