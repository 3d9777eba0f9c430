package main

import (
	"errors"
	"fmt"
	"os"

	"lmbridge/internal/config"
	"lmbridge/internal/middleware"
	"lmbridge/internal/onboarding"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func newInitCmd(a *app) *cobra.Command {
	var (
		output string
		force  bool
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Choose a provider and model and write the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !force {
				if _, err := os.Stat(output); err == nil {
					return fmt.Errorf("%s already exists (use --force to overwrite)", output)
				}
			}

			ids := make([]string, 0)
			for _, mw := range middleware.Registered() {
				ids = append(ids, mw.ID())
			}
			opts := onboarding.Options{Middlewares: ids}
			if a.cfg.Provider == "ollama" {
				opts.OllamaURL = a.cfg.BaseURL
			}
			picked, err := onboarding.Run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), opts)
			if errors.Is(err, onboarding.ErrAborted) {
				fmt.Fprintln(cmd.ErrOrStderr(), "setup aborted, nothing written")
				return nil
			}
			if err != nil {
				return err
			}

			cfg := *a.cfg
			cfg.Provider = picked.Provider
			cfg.Model = picked.Model
			cfg.BaseURL = picked.BaseURL
			cfg.APIKey = picked.APIKey
			cfg.DisabledMiddlewares = picked.DisabledMiddlewares
			if err := config.Save(cfg, output); err != nil {
				return err
			}

			ok := lipgloss.NewRenderer(cmd.OutOrStdout()).NewStyle().Foreground(lipgloss.Color("42"))
			fmt.Fprintln(cmd.OutOrStdout(), ok.Render(fmt.Sprintf("wrote %s (provider=%s model=%s)", output, cfg.Provider, cfg.Model)))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", config.DefaultFile, "file to write")
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
