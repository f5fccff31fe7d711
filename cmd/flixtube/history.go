package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/model"
)

var historyCmd = &cobra.Command{
	Use:     "history",
	Short:   "List watched videos, newest first",
	GroupID: "viewing",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		videoID, _ := cmd.Flags().GetString("video")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		resp, err := historyClient.ListHistory(cmd.Context(), model.HistoryFilter{
			VideoID: videoID,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return fmt.Errorf("listing history: %w", err)
		}

		if jsonOutput {
			return printJSON(cmd.OutOrStdout(), resp)
		}
		printHistoryTable(cmd.OutOrStdout(), resp.Videos, resp.Total)
		return nil
	},
}

func init() {
	historyCmd.Flags().String("video", "", "only list views of this video ID")
	historyCmd.Flags().Int("limit", model.DefaultHistoryLimit, "maximum number of records")
	historyCmd.Flags().Int("offset", 0, "number of records to skip")
}
