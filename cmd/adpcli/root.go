package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/hrops/adp-api-client/pkg/auth"
	"github.com/hrops/adp-api-client/pkg/client"
	"github.com/hrops/adp-api-client/pkg/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagLogLevel string
	flagPretty   bool
	flagBaseURL  string
	flagTimeout  time.Duration
	flagOut      string
)

// newRootCmd builds the root command with all subcommands registered.
// Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "adpcli",
		Short:   "ADP Workforce Now API client",
		Long:    "Command-line client for the ADP Workforce Now API: paginated collection fetches and templated REST calls over OAuth2 client-credentials with mTLS.",
		Version: version,
		// Cobra's default error printing duplicates ours.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(flagLogLevel),
				Pretty: flagPretty,
				Output: os.Stderr,
			})
		},
	}

	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "human-readable console logging instead of JSON")
	cmd.PersistentFlags().StringVar(&flagBaseURL, "base-url", client.DefaultBaseURL, "API base URL")
	cmd.PersistentFlags().DurationVar(&flagTimeout, "timeout", client.DefaultTimeout, "per-request timeout")
	cmd.PersistentFlags().StringVarP(&flagOut, "out", "o", "", "write JSON output to file instead of stdout")

	cmd.AddCommand(newFetchCmd())
	cmd.AddCommand(newRestCmd())

	return cmd
}

// newAPIClient builds a client from environment credentials
// (CLIENT_ID, CLIENT_SECRET, CERT_PATH, KEY_PATH) and the global flags.
func newAPIClient() (*client.Client, error) {
	creds, err := auth.CredentialsFromEnv()
	if err != nil {
		return nil, err
	}

	return client.New(creds, client.Config{
		BaseURL: flagBaseURL,
		Timeout: flagTimeout,
	})
}

// writeOutput emits the result JSON to --out or stdout.
func writeOutput(data []byte) error {
	if flagOut == "" {
		_, err := fmt.Println(string(data))
		return err
	}
	return os.WriteFile(flagOut, data, 0o644)
}
