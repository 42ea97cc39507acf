package cmd

import (
	"github.com/spf13/cobra"
)

var checkinCmd = &cobra.Command{
	Use:   "checkin <name>",
	Short: "Check an enrolled member in by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckin,
}

var checkoutCmd = &cobra.Command{
	Use:   "checkout <name>",
	Short: "Check a member out by name",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckout,
}

func init() {
	rootCmd.AddCommand(checkinCmd, checkoutCmd)
}

func runCheckin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.orch.CheckIn(ctx, args[0])
	printOutcome(cmd, out)
	return outcomeResult(out)
}

func runCheckout(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.orch.CheckOut(ctx, args[0])
	printOutcome(cmd, out)
	return outcomeResult(out)
}
