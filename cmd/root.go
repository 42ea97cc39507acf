package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/facegate/internal/session"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "facegate",
	Short: "Face-recognition check-in for gym members",
	Long: `facegate keeps a registry of enrolled gym members and their face
encodings, identifies members from a captured face and records their
check-in and check-out times.

Data lives in members.csv and attendance.csv under DATA_DIR, or in
PostgreSQL when STORAGE_BACKEND=postgres.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// outcomeError carries a non-successful orchestrator outcome to Execute so
// that it can pick the exit status. The outcome has already been reported.
type outcomeError struct {
	out session.Outcome
}

func (e *outcomeError) Error() string { return e.out.String() }

func (e *outcomeError) Unwrap() error { return e.out.Err }

// outcomeResult turns an outcome into the command's return value.
func outcomeResult(out session.Outcome) error {
	if out.ExitCode() == session.ExitOK {
		return nil
	}
	return &outcomeError{out: out}
}

// exitCode returns the process status for an error returned by a command.
func exitCode(err error) int {
	if err == nil {
		return session.ExitOK
	}
	var oe *outcomeError
	if errors.As(err, &oe) {
		return oe.out.ExitCode()
	}
	return session.ExitCode(err)
}

func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var oe *outcomeError
	if !errors.As(err, &oe) || oe.out.Kind == session.Failed {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(exitCode(err))
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "YAML configuration file (overrides FACEGATE_CONFIG)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
	if configFile != "" {
		os.Setenv("FACEGATE_CONFIG", configFile)
	}
}
