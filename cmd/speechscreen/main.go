package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/alnah/go-speechscreen/internal/apierr"
	"github.com/alnah/go-speechscreen/internal/audio"
	"github.com/alnah/go-speechscreen/internal/audit"
	"github.com/alnah/go-speechscreen/internal/cli"
	"github.com/alnah/go-speechscreen/internal/config"
	"github.com/alnah/go-speechscreen/internal/features"
	"github.com/alnah/go-speechscreen/internal/ffmpeg"
	"github.com/alnah/go-speechscreen/internal/interrupt"
	"github.com/alnah/go-speechscreen/internal/lang"
	"github.com/alnah/go-speechscreen/internal/model"
	"github.com/alnah/go-speechscreen/internal/pipeline"
	"github.com/alnah/go-speechscreen/internal/transcribe"
)

// Injected at build time via ldflags.
var (
	version = "dev"
	commit  = "unknown"
)

// Process exit codes.
const (
	ExitOK           = 0
	ExitGeneral      = 1
	ExitUsage        = 2
	ExitSetup        = 3
	ExitValidation   = 4
	ExitUnclassified = 5
	ExitAudit        = 6
	ExitInterrupt    = interrupt.ExitInterrupt
)

func main() {
	// Load .env file if present (ignore error if missing).
	_ = godotenv.Load()

	// First Ctrl+C cancels the running request, a second one aborts.
	handler, ctx := interrupt.NewHandler(context.Background(), os.Stderr)
	defer handler.Stop()

	env := cli.DefaultEnv()

	rootCmd := &cobra.Command{
		Use:     "speechscreen",
		Short:   "Screen speech recordings for signs of Alzheimer's disease",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	rootCmd.AddCommand(cli.ClassifyCmd(env))
	rootCmd.AddCommand(cli.ServeCmd(env))
	rootCmd.AddCommand(cli.ModelCmd(env))
	rootCmd.AddCommand(cli.ConfigCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		handler.Stop()
		os.Exit(exitCode(err))
	}
}

// exitCode maps errors to process exit codes.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}

	if errors.Is(err, context.Canceled) {
		return ExitInterrupt
	}

	// Cobra doesn't expose typed errors for flag and argument parsing.
	if isCobraUsageError(err) {
		return ExitUsage
	}

	// Setup errors: the environment is not ready to classify anything.
	if errors.Is(err, ffmpeg.ErrNotFound) || errors.Is(err, transcribe.ErrAPIKeyMissing) ||
		errors.Is(err, model.ErrModelConfiguration) || errors.Is(err, config.ErrInvalid) ||
		errors.Is(err, config.ErrUnknownKey) || errors.Is(err, cli.ErrS3CredentialsMissing) ||
		errors.Is(err, apierr.ErrAuthFailed) || errors.Is(err, features.ErrSchemaDrift) {
		return ExitSetup
	}

	// Validation errors: this recording or request cannot be processed.
	if errors.Is(err, cli.ErrFileNotFound) || errors.Is(err, lang.ErrUnsupported) ||
		errors.Is(err, audio.ErrDecode) || errors.Is(err, audio.ErrNoSegments) ||
		errors.Is(err, audio.ErrTooLong) || errors.Is(err, pipeline.ErrNoAudio) ||
		errors.Is(err, pipeline.ErrInvalidRequestID) {
		return ExitValidation
	}

	if errors.Is(err, pipeline.ErrNoUsableSegments) {
		return ExitUnclassified
	}

	if errors.Is(err, audit.ErrAudit) || errors.Is(err, audit.ErrExists) {
		return ExitAudit
	}

	return ExitGeneral
}

// cobraUsageErrorPatterns contains error message substrings that indicate Cobra usage errors.
// These patterns are stable across Cobra versions (tested with v1.8+).
var cobraUsageErrorPatterns = []string{
	"required flag",
	"unknown flag",
	"unknown shorthand",
	"flag needs an argument",
	"invalid argument",
	"unknown command",
	"accepts ",
	"requires at least",
	"requires at most",
}

// isCobraUsageError checks if an error is a Cobra usage/parsing error.
func isCobraUsageError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range cobraUsageErrorPatterns {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
