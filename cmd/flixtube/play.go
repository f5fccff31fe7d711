package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/client"
)

var playCmd = &cobra.Command{
	Use:     "play <video-id>",
	Short:   "Play a video through the streaming service (counts as a view)",
	GroupID: "viewing",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		var w io.Writer = io.Discard
		if output != "" {
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		n, err := client.NewStreamingClient(streamingURL).Play(cmd.Context(), args[0], w)
		if err != nil {
			return fmt.Errorf("playing %s: %w", args[0], err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Streamed %s (%d bytes)\n", args[0], n)
		return nil
	},
}

func init() {
	playCmd.Flags().StringP("output", "o", "", "write the stream to this file instead of discarding it")
}
