package main

import (
	"encoding/json"

	"lmbridge/internal/host"
	"lmbridge/internal/skills"

	"github.com/spf13/cobra"
)

func newToolsCmd(_ *app) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "Print the tool descriptors sent to the host model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ts, err := skills.NewDefaultManager().Tools()
			if err != nil {
				return err
			}
			out := make([]host.ChatTool, 0, len(ts))
			for _, t := range ts {
				out = append(out, t.ChatTool())
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(out)
		},
	}
}
