package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ooi3/ooi/internal/world"
)

func newWorldsCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "worlds",
		Short: "List the world servers",
		Long:  `Print the world server table, 1-indexed by world id, as text or yaml.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			servers := world.All()
			switch output {
			case "text":
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tADDRESS")
				for _, s := range servers {
					fmt.Fprintf(tw, "%d\t%s\n", s.ID, s.Address)
				}
				return tw.Flush()
			case "yaml":
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(servers); err != nil {
					return fmt.Errorf("failed to encode worlds: %w", err)
				}
				return enc.Close()
			default:
				return fmt.Errorf("invalid output %q: must be 'text' or 'yaml'", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "text", "output format (text or yaml)")
	return cmd
}
