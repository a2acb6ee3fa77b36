package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"storybook-server/internal/ledger"
	"storybook-server/shared/models"
)

// quote считается локально той же функцией, что и списание на сервере.
func newQuoteCommand(ctx *commandContext) *cobra.Command {
	var length string
	var images, audio bool

	cmd := &cobra.Command{
		Use:   "quote",
		Short: "Show the credit cost of a story",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, ok := models.ParseStoryLength(length)
			if !ok {
				return fmt.Errorf("unknown story length %q (short, medium or long)", length)
			}
			q := ledger.Quote(parsed, images, audio)
			if ctx.jsonOut {
				return writeJSON(cmd, q)
			}
			rows := [][]string{
				{"length", string(q.StoryType)},
				{"chapters", strconv.Itoa(q.Chapters)},
				{"story cost", strconv.FormatInt(q.StoryCost, 10)},
				{"audio cost", strconv.FormatInt(q.AudioCost, 10)},
				{"total", strconv.FormatInt(q.TotalCost, 10)},
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Item", "Credits"}, rows, []columnAlignment{alignLeft, alignRight}))
			return nil
		},
	}
	cmd.Flags().StringVar(&length, "length", string(models.StoryLengthMedium), "Story length: short, medium or long")
	cmd.Flags().BoolVar(&images, "images", false, "Include an illustration per chapter")
	cmd.Flags().BoolVar(&audio, "audio", false, "Include narration per chapter")
	return cmd
}
