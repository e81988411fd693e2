// Package cmd provides the command-line interface of chipctl.
package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

// flags are the persistent flags of the root command. Flags that are set
// override the environment.
type flags struct {
	envFiles   []string
	sim        string
	traceDB    string
	traceLog   bool
	arcTimeout time.Duration
}

// NewRootCmd builds the chipctl command tree.
func NewRootCmd() *cobra.Command {
	f := &flags{}

	rootCmd := &cobra.Command{
		Use:   "chipctl",
		Short: "chipctl detects, probes and serves accelerator chips.",
		Long: `chipctl detects the Grayskull, Wormhole and Blackhole chips of a ` +
			`host, reads and writes their memory, talks to their ARC firmware ` +
			`and walks the Ethernet mesh. Settings come from the environment ` +
			`and from a .env file.`,
		SilenceUsage: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringSliceVar(&f.envFiles, "env", nil,
		"env files to load instead of ./.env")
	pf.StringVar(&f.sim, "sim", "",
		`use a simulated host, "default" or e.g. "gs=1,wh=4,dead"`)
	pf.StringVar(&f.traceDB, "trace-db", "",
		"record accesses and ARC exchanges to this sqlite file")
	pf.BoolVar(&f.traceLog, "trace-log", false,
		"log accesses and ARC exchanges to stderr")
	pf.DurationVar(&f.arcTimeout, "arc-timeout", 0,
		"how long to wait for ARC answers")

	rootCmd.AddCommand(
		newScanCmd(f),
		newMeshCmd(f),
		newReadCmd(f),
		newWriteCmd(f),
		newArcCmd(f),
		newBootFSCmd(f),
		newServeCmd(f),
	)

	return rootCmd
}

// Execute runs chipctl and returns the exit code.
func Execute() int {
	if err := NewRootCmd().Execute(); err != nil {
		return 1
	}

	return 0
}
