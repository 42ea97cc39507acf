package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/store"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Inspect the attendance ledger",
}

var attendanceStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "List members currently checked in",
	Args:  cobra.NoArgs,
	RunE:  runAttendanceStatus,
}

var attendanceHistoryCmd = &cobra.Command{
	Use:   "history <name>",
	Short: "Show all sessions of a member",
	Args:  cobra.ExactArgs(1),
	RunE:  runAttendanceHistory,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)
	attendanceCmd.AddCommand(attendanceStatusCmd, attendanceHistoryCmd)

	attendanceStatusCmd.Flags().Bool("json", false, "Output as JSON")
	attendanceHistoryCmd.Flags().Bool("json", false, "Output as JSON")
}

type eventOutput struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	CheckInAt  string `json:"check_in_at"`
	CheckOutAt string `json:"check_out_at,omitempty"`
}

func toEventOutputs(events []store.AttendanceEvent) []eventOutput {
	out := make([]eventOutput, 0, len(events))
	for _, ev := range events {
		eo := eventOutput{ID: ev.ID, Name: ev.MemberName, CheckInAt: formatTimestamp(ev.CheckInAt)}
		if ev.CheckOutAt != nil {
			eo.CheckOutAt = formatTimestamp(*ev.CheckOutAt)
		}
		out = append(out, eo)
	}
	return out
}

func runAttendanceStatus(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	open := a.orch.Ledger().OpenSessions()
	out := cmd.OutOrStdout()
	if mustGetBool(cmd, "json") {
		return outputJSON(out, toEventOutputs(open))
	}

	if len(open) == 0 {
		fmt.Fprintln(out, "Nobody is checked in")
		return nil
	}
	now := time.Now()
	w := newTable(out)
	fmt.Fprintln(w, "NAME\tSINCE\tFOR")
	for _, ev := range open {
		fmt.Fprintf(w, "%s\t%s\t%s\n", ev.MemberName, formatTimestamp(ev.CheckInAt), formatStay(ev, now))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d member(s) checked in\n", len(open))
	return nil
}

func runAttendanceHistory(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	history := a.orch.Ledger().History(args[0])
	out := cmd.OutOrStdout()
	if mustGetBool(cmd, "json") {
		return outputJSON(out, toEventOutputs(history))
	}

	if len(history) == 0 {
		fmt.Fprintf(out, "No sessions recorded for %s\n", args[0])
		return nil
	}
	now := time.Now()
	w := newTable(out)
	fmt.Fprintln(w, "CHECK IN\tCHECK OUT\tSTAY")
	for _, ev := range history {
		fmt.Fprintf(w, "%s\t%s\t%s\n", formatTimestamp(ev.CheckInAt), formatCheckout(ev), formatStay(ev, now))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d session(s)\n", len(history))
	return nil
}
