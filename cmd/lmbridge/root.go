package main

import (
	"log/slog"
	"os"

	"lmbridge/internal/config"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

type app struct {
	configPath string
	cfg        *config.Config
	logger     *slog.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "lmbridge",
		Short:         "Chat with a host language model through the langchaingo bridge",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// Load environment variables from .env if present
			_ = godotenv.Load()

			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			a.cfg = cfg
			a.logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.Level()}))
			slog.SetDefault(a.logger)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./lmbridge.yaml)")
	root.AddCommand(newChatCmd(a), newToolsCmd(a), newInitCmd(a))
	return root
}
