package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	debug   bool
)

var rootCmd = &cobra.Command{
	Use:   "harness <topology.json> <gremlins.json> <checklist.json>",
	Short: "Run a resilience-test recipe against a service mesh",
	Long: `harness loads a topology, a gremlin recipe, and a checklist, drives the
described faults onto the mesh's fault-injection proxies, waits for the
operator to drive load, then runs the checklist against the log store and
reports PASS/FAIL for each check.`,
	Args: cobra.ExactArgs(3),
	RunE: runHarness,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to harness config YAML (optional)")
	if os.Getenv("GREMLINSDK_DEBUG") != "" {
		debug = true
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}
