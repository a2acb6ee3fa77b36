package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// commandContext - общие флаги всех подкоманд.
type commandContext struct {
	apiURL  string
	token   string
	jsonOut bool
	timeout time.Duration
}

func (c *commandContext) client() *apiClient {
	return newAPIClient(c.apiURL, c.token, c.timeout)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}

	rootCmd := &cobra.Command{
		Use:           "storyctl",
		Short:         "Operator CLI for the storybook API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&ctx.apiURL, "api", envOr("ADMIN_API_URL", "http://localhost:8080"), "Base URL of the storybook API")
	rootCmd.PersistentFlags().StringVar(&ctx.token, "token", os.Getenv("STORYCTL_TOKEN"), "Bearer token (admin role for admin commands)")
	rootCmd.PersistentFlags().BoolVar(&ctx.jsonOut, "json", false, "Print raw JSON instead of a table")
	rootCmd.PersistentFlags().DurationVar(&ctx.timeout, "timeout", 30*time.Second, "HTTP request timeout")

	rootCmd.AddCommand(newMigrationCommand(ctx))
	rootCmd.AddCommand(newQuoteCommand(ctx))
	rootCmd.AddCommand(newCreditsCommand(ctx))

	return rootCmd
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
