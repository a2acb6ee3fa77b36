package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"storybook-server/internal/handler"
	"storybook-server/internal/rollout"
)

func newMigrationCommand(ctx *commandContext) *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "migration",
		Short: "Inspect and steer the legacy to next provider migration",
	}
	cmd.PersistentFlags().StringVarP(&kind, "kind", "k", rollout.KindText, "Operation family: text, image or audio")

	path := func(suffix string) string {
		p := "/admin/migration/" + strings.ToLower(kind)
		if suffix != "" {
			p += "/" + suffix
		}
		return p
	}

	run := func(cmd *cobra.Command, suffix string, body any) error {
		var status handler.MigrationStatusResponse
		var err error
		if body == nil && suffix == "" {
			err = ctx.client().get(cmd.Context(), path(""), &status)
		} else {
			err = ctx.client().post(cmd.Context(), path(suffix), body, &status)
		}
		if err != nil {
			return err
		}
		return printMigration(cmd, ctx, status)
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current migration config",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "", nil)
		},
	}

	var step int
	increaseCmd := &cobra.Command{
		Use:   "increase",
		Short: "Raise the share of users routed to the next provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "rollout", handler.RolloutRequest{Action: "increase", Step: step})
		},
	}
	increaseCmd.Flags().IntVar(&step, "step", 10, "Percentage points to add")

	decreaseCmd := &cobra.Command{
		Use:   "decrease",
		Short: "Lower the share of users routed to the next provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "rollout", handler.RolloutRequest{Action: "decrease", Step: step})
		},
	}
	decreaseCmd.Flags().IntVar(&step, "step", 10, "Percentage points to remove")

	presetCmd := &cobra.Command{
		Use:       "preset <name>",
		Short:     "Apply a named preset",
		Args:      cobra.ExactArgs(1),
		ValidArgs: rollout.PresetNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "preset", handler.PresetRequest{Name: args[0]})
		},
	}

	emergencyCmd := &cobra.Command{
		Use:   "emergency",
		Short: "Route everyone back to the legacy provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "emergency", struct{}{})
		},
	}

	completeCmd := &cobra.Command{
		Use:   "complete",
		Short: "Route everyone to the next provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "complete", struct{}{})
		},
	}

	cmd.AddCommand(statusCmd, increaseCmd, decreaseCmd, presetCmd, emergencyCmd, completeCmd)
	return cmd
}

func printMigration(cmd *cobra.Command, ctx *commandContext, status handler.MigrationStatusResponse) error {
	if ctx.jsonOut {
		return writeJSON(cmd, status)
	}
	c := status.Config
	rows := [][]string{
		{"kind", status.Kind},
		{"new backend", strconv.FormatBool(c.NewBackendEnabled)},
		{"rollout", fmt.Sprintf("%d%%", c.RolloutPercentage)},
		{"fallback to legacy", strconv.FormatBool(c.FallbackToLegacy)},
		{"force new in dev", strconv.FormatBool(c.ForceNewInDev)},
		{"logging", strconv.FormatBool(c.LoggingEnabled)},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Setting", "Value"}, rows, nil))
	return nil
}
