package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/facegate/internal/store"
)

func outputJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}

func newTable(w io.Writer) *tabwriter.Writer {
	return tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
}

func formatTimestamp(t time.Time) string {
	return t.Local().Format(store.TimestampLayout)
}

// formatCheckout renders the checkout column of an event.
func formatCheckout(ev store.AttendanceEvent) string {
	if ev.CheckOutAt == nil {
		return "(in)"
	}
	return formatTimestamp(*ev.CheckOutAt)
}

// formatStay renders how long a session lasted, or has lasted so far.
func formatStay(ev store.AttendanceEvent, now time.Time) string {
	end := now
	if ev.CheckOutAt != nil {
		end = *ev.CheckOutAt
	}
	return end.Sub(ev.CheckInAt).Truncate(time.Minute).String()
}
