package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/csvfile"
)

var memberCmd = &cobra.Command{
	Use:   "member",
	Short: "Manage enrolled members",
}

var memberEnrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a member with a face encoding",
	Long: `Enroll a new member. The face encoding is read from a file holding a
JSON array (--encoding) or computed by the face encoder from a photo (--image).

Examples:
  # Enroll from a pre-computed encoding
  facegate member enroll "Alice Novak" --encoding alice.json --goal "strength"

  # Enroll from a photo
  facegate member enroll "Alice Novak" --image alice.jpg --phone 555-0100`,
	Args: cobra.ExactArgs(1),
	RunE: runMemberEnroll,
}

var memberListCmd = &cobra.Command{
	Use:   "list",
	Short: "List members in enrollment order",
	Args:  cobra.NoArgs,
	RunE:  runMemberList,
}

var memberShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Show one member",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberShow,
}

var memberRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a member; attendance history is kept",
	Args:  cobra.ExactArgs(1),
	RunE:  runMemberRemove,
}

var memberUpdateCmd = &cobra.Command{
	Use:   "update <name>",
	Short: "Update a member's profile",
	Long: `Update the profile of an enrolled member. Only the given flags change;
the face encoding and enrollment date are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemberUpdate,
}

var memberImportCmd = &cobra.Command{
	Use:   "import <members.csv>",
	Short: "Bulk-enroll members from another members.csv",
	Long: `Enroll every member of an exported members.csv, keeping the original
join dates. Members whose names are already taken fail individually unless
--skip-existing is given.`,
	Args: cobra.ExactArgs(1),
	RunE: runMemberImport,
}

func init() {
	rootCmd.AddCommand(memberCmd)
	memberCmd.AddCommand(memberEnrollCmd, memberListCmd, memberShowCmd, memberRemoveCmd, memberUpdateCmd, memberImportCmd)

	memberEnrollCmd.Flags().String("encoding", "", "File with the face encoding as a JSON array")
	memberEnrollCmd.Flags().String("image", "", "Photo to compute the face encoding from")
	for _, c := range []*cobra.Command{memberEnrollCmd, memberUpdateCmd} {
		c.Flags().String("birth-date", "", "Birth date")
		c.Flags().String("phone", "", "Phone number")
		c.Flags().String("goal", "", "Training goal")
	}

	memberListCmd.Flags().String("search", "", "Only members whose name contains this text (case and diacritics insensitive)")
	memberListCmd.Flags().Bool("json", false, "Output as JSON")
	memberShowCmd.Flags().Bool("json", false, "Output as JSON")
	memberShowCmd.Flags().Bool("encoding", false, "Include the face encoding")

	memberImportCmd.Flags().Bool("skip-existing", false, "Skip members whose name is already enrolled")
}

func profileFromFlags(cmd *cobra.Command, current store.Profile) store.Profile {
	return store.Profile{
		BirthDate: stringIfChanged(cmd, "birth-date", current.BirthDate),
		Phone:     stringIfChanged(cmd, "phone", current.Phone),
		Goal:      stringIfChanged(cmd, "goal", current.Goal),
	}
}

func runMemberEnroll(cmd *cobra.Command, args []string) error {
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
	enc, err := a.orch.Capture(ctx, source)
	if err != nil {
		return err
	}

	name := strings.TrimSpace(args[0])
	if err := a.orch.Registry().Enroll(ctx, name, enc, profileFromFlags(cmd, store.Profile{})); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Enrolled %s (%d-dimensional encoding)\n", name, enc.Dim())
	return nil
}

type memberOutput struct {
	Name       string        `json:"name"`
	Profile    store.Profile `json:"profile"`
	EnrolledAt string        `json:"enrolled_at"`
	Dim        int           `json:"dim"`
	In         bool          `json:"in"`
	Encoding   []float64     `json:"encoding,omitempty"`
}

func runMemberList(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	members := a.orch.Registry().Search(mustGetString(cmd, "search"))
	ledger := a.orch.Ledger()
	out := cmd.OutOrStdout()

	if mustGetBool(cmd, "json") {
		result := make([]memberOutput, 0, len(members))
		for _, m := range members {
			result = append(result, memberOutput{
				Name:       m.Name,
				Profile:    m.Profile,
				EnrolledAt: formatTimestamp(m.EnrolledAt),
				Dim:        m.Encoding.Dim(),
				In:         ledger.IsIn(m.Name),
			})
		}
		return outputJSON(out, result)
	}

	if len(members) == 0 {
		fmt.Fprintln(out, "No members enrolled")
		return nil
	}
	w := newTable(out)
	fmt.Fprintln(w, "NAME\tJOINED\tPHONE\tGOAL\tIN")
	for _, m := range members {
		in := ""
		if ledger.IsIn(m.Name) {
			in = "yes"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", m.Name, formatTimestamp(m.EnrolledAt), m.Profile.Phone, m.Profile.Goal, in)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d member(s)\n", len(members))
	return nil
}

func runMemberShow(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	m, ok := a.orch.Registry().Get(args[0])
	if !ok {
		return fmt.Errorf("member %q: %w", args[0], registry.ErrNotFound)
	}

	mo := memberOutput{
		Name:       m.Name,
		Profile:    m.Profile,
		EnrolledAt: formatTimestamp(m.EnrolledAt),
		Dim:        m.Encoding.Dim(),
		In:         a.orch.Ledger().IsIn(m.Name),
	}
	if mustGetBool(cmd, "encoding") {
		mo.Encoding = m.Encoding
	}

	out := cmd.OutOrStdout()
	if mustGetBool(cmd, "json") {
		return outputJSON(out, mo)
	}
	fmt.Fprintf(out, "Name:       %s\n", mo.Name)
	fmt.Fprintf(out, "Joined:     %s\n", mo.EnrolledAt)
	fmt.Fprintf(out, "Birth date: %s\n", mo.Profile.BirthDate)
	fmt.Fprintf(out, "Phone:      %s\n", mo.Profile.Phone)
	fmt.Fprintf(out, "Goal:       %s\n", mo.Profile.Goal)
	fmt.Fprintf(out, "Encoding:   %d dimensions\n", mo.Dim)
	fmt.Fprintf(out, "Checked in: %t\n", mo.In)
	if mo.Encoding != nil {
		fmt.Fprintf(out, "%s\n", m.Encoding)
	}
	return nil
}

func runMemberRemove(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.orch.Registry().Remove(ctx, args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
	if a.orch.Ledger().IsIn(args[0]) {
		fmt.Fprintf(cmd.OutOrStdout(), "Note: %s still has an open session; check out by name to close it\n", args[0])
	}
	return nil
}

func runMemberUpdate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	reg := a.orch.Registry()
	m, ok := reg.Get(args[0])
	if !ok {
		return fmt.Errorf("member %q: %w", args[0], registry.ErrNotFound)
	}
	if err := reg.UpdateProfile(ctx, m.Name, profileFromFlags(cmd, m.Profile)); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", m.Name)
	return nil
}

func runMemberImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	source, err := csvfile.ReadMembers(args[0])
	if err != nil {
		return fmt.Errorf("reading %s: %w", args[0], err)
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	skipExisting := mustGetBool(cmd, "skip-existing")
	reg := a.orch.Registry()
	out := cmd.OutOrStdout()

	bar := progressbar.NewOptions(len(source),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Importing members"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("members"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var imported, skipped int
	var errs []error
	for _, m := range source {
		err := reg.Import(ctx, m)
		switch {
		case err == nil:
			imported++
		case skipExisting && errors.Is(err, registry.ErrDuplicateName):
			skipped++
		default:
			errs = append(errs, err)
			// A failed durable write leaves nothing to continue with.
			if errors.Is(err, store.ErrPersistence) {
				bar.Finish()
				return err
			}
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Fprintf(out, "\nImported %d member(s), skipped %d\n", imported, skipped)
	for _, err := range errs {
		fmt.Fprintf(out, "  %v\n", err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d member(s) failed to import", len(errs), len(source))
	}
	return nil
}
