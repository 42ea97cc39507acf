package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/session"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify a face and check the member in",
	Long: `Identify the member behind a captured face and record their check-in.

The capture is either a file holding a pre-computed face encoding (--encoding)
or a photo sent to the face encoder (--image). The exit status tells the
result: 0 checked in, 2 not recognized, 3 already checked in.

Examples:
  facegate identify --image /tmp/frame.jpg
  facegate identify --encoding capture.json`,
	Args: cobra.NoArgs,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("encoding", "", "File with the face encoding as a JSON array")
	identifyCmd.Flags().String("image", "", "Photo to compute the face encoding from")
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	source, err := a.captureSource(mustGetString(cmd, "encoding"), mustGetString(cmd, "image"))
	if err != nil {
		return err
	}

	out := a.orch.CaptureAndProcess(ctx, source)
	printOutcome(cmd, out)
	return outcomeResult(out)
}

// printOutcome reports a non-failed outcome on stdout. Failures are printed
// by Execute.
func printOutcome(cmd *cobra.Command, out session.Outcome) {
	w := cmd.OutOrStdout()
	switch out.Kind {
	case session.Failed:
		return
	case session.CheckedIn, session.AlreadyPresent:
		fmt.Fprintln(w, out.String())
		if !out.Event.CheckInAt.IsZero() {
			fmt.Fprintf(w, "  Since: %s\n", formatTimestamp(out.Event.CheckInAt))
		}
	case session.CheckedOut:
		fmt.Fprintln(w, out.String())
		fmt.Fprintf(w, "  Stay: %s\n", formatStay(out.Event, *out.Event.CheckOutAt))
	default:
		fmt.Fprintln(w, out.String())
	}
}
