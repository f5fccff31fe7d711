package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/alfredjeanlab/flixtube/internal/client"
	"github.com/alfredjeanlab/flixtube/internal/history"
	"github.com/alfredjeanlab/flixtube/internal/model"
	"github.com/alfredjeanlab/flixtube/internal/ui"
)

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

func printHistoryTable(w io.Writer, records []*model.HistoryRecord, total int) {
	if len(records) == 0 {
		fmt.Fprintln(w, ui.RenderMuted("No views recorded."))
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "WATCHED AT\tVIDEO\tRECORD")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\n",
			r.WatchedAt.Local().Format("2006-01-02 15:04:05"),
			r.VideoID,
			ui.RenderMuted(r.ID),
		)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d views (%d total)\n", len(records), total)
}

func printHealth(w io.Writer, h *client.HealthResponse) {
	fmt.Fprintf(w, "Health:      %s\n", ui.RenderStatus(h.Status, h.OK()))
	if h.Subscriber != "" {
		fmt.Fprintf(w, "Subscriber:  %s\n", ui.RenderStatus(h.Subscriber, h.Subscriber == history.StateConsuming.String()))
	}
	if h.Store != "" {
		fmt.Fprintf(w, "Store:       %s\n", ui.RenderStatus(h.Store, false))
	}
}
