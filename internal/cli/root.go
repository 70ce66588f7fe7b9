package cli

import (
	"context"

	"github.com/lakekit-io/lakekit/internal/logging"
	"github.com/spf13/cobra"
)

var (
	recordsPath string
	storeType   string
	storeConfig map[string]string
	logLevel    string
)

var rootCmd = &cobra.Command{
	Use:   "lakekit",
	Short: "Declarative provisioning for lakehouse infrastructure",
	Long: `Lakekit converges declared provisioning graphs written in PKL.

It drives cloud resources and one-shot operations to a declared state:
  • Dependency-ordered, deterministic execution
  • Fingerprint-based change detection, no handler call when nothing changed
  • Failures isolate their dependents, independent branches still run
  • Re-running after a failure resumes where the last run stopped`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logLevel)
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ExecuteContext runs the root command under a cancellable context.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&recordsPath, "records", "", "Path to the apply record file (default: <project>/.lakekit/records.json)")
	rootCmd.PersistentFlags().StringVar(&storeType, "store", "local", "Record store backend: local or s3")
	rootCmd.PersistentFlags().StringToStringVar(&storeConfig, "store-config", nil, "Backend settings (format: key=value), e.g. bucket=my-records")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(destroyCmd)
	rootCmd.AddCommand(outputCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(versionCmd)
}
