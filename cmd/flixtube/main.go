package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/flixtube/internal/client"
	"github.com/alfredjeanlab/flixtube/internal/ui"
)

var (
	historyURL   string
	streamingURL string
	jsonOutput   bool
	noColor      bool

	historyClient client.HistoryClient
)

func defaultHistoryURL() string {
	if s := os.Getenv("FLIXTUBE_HISTORY_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

func defaultStreamingURL() string {
	if s := os.Getenv("FLIXTUBE_STREAMING_URL"); s != "" {
		return s
	}
	return "http://localhost:8081"
}

var rootCmd = &cobra.Command{
	Use:          "flixtube <command>",
	Short:        "Run and inspect the FlixTube view-tracking services",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.ForceNoColor()
		} else {
			ui.ConfigureColor()
		}
		historyClient = client.NewHTTPClient(historyURL)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if historyClient != nil {
			historyClient.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&historyURL, "history-url", defaultHistoryURL(), "history service URL")
	rootCmd.PersistentFlags().StringVar(&streamingURL, "streaming-url", defaultStreamingURL(), "streaming service URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddGroup(
		&cobra.Group{ID: "services", Title: "Services:"},
		&cobra.Group{ID: "viewing", Title: "Viewing:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	cobra.EnableCommandSorting = false
	rootCmd.SetHelpFunc(colorizedHelpFunc())

	// Services
	rootCmd.AddCommand(serveCmd)

	// Viewing
	rootCmd.AddCommand(playCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(historyCmd)

	// System
	rootCmd.AddCommand(healthCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
