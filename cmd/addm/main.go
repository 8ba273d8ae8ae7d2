package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "addm",
		Short: "Drift-diffusion model toolbox",
		Long: `addm simulates the drift-diffusion model (DDM) and the attentional
drift-diffusion model (aDDM), estimates their parameters from choices,
response times and fixations by parallel grid search, and corrects
empirical fixation-duration distributions for interruption bias.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.addm/config.yaml)")
	rootCmd.PersistentFlags().Bool("verbose", false, "Log progress and warnings to stderr")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")
	rootCmd.PersistentFlags().Uint64("seed", 0, "Run seed (0 uses the config seed, or the clock if that is 0 too)")
	rootCmd.PersistentFlags().Int("num-threads", 0, "Size of the worker pool (0 uses the config value)")

	rootCmd.AddCommand(
		newVersionCmd(),
		newDDMTestCmd(),
		newADDMTestCmd(),
		newFitCmd(),
		newTrueDistsCmd(),
		newSimulateCmd(),
		newRunsCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	notifySignals(sigCh)
	go func() {
		<-sigCh
		cancel()
	}()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
