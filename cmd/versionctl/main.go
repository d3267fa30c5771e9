// Command versionctl drives one-off and operational tasks against the
// versioning engine: retrofitting a pre-versioning graph tenant by tenant,
// and sweeping superseded source versions past a retention cutoff.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "versionctl",
		Short: "Operational tooling for the bitemporal versioning engine",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "versionengine.yaml", "path to the engine config file")

	root.AddCommand(newUpgradeCmd())
	root.AddCommand(newSweepCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
