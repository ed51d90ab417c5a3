package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"
)

var (
	// Global flags
	verbose    bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "seu",
	Short: "EEPROM single-event-upset scanner",
	Long: `Scan banks of EEPROMs on a radiation test board for bits that flip away
from the baseline value, and log cumulative per-device failure counts.

Examples:
  seu interfaces                                   # List USB-I2C bridges
  seu run --config rig.yaml --board 3              # Scan board 3 on the rig
  seu run --config rig.yaml --adapter simulator    # Rehearse without hardware
  seu summary --board 3                            # Latest counts from the log
  seu monitor --board 3                            # Follow a running scan`,
	Version:       "0.3.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command. Exit handlers registered by sinks run on
// both the success and the error path.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"rig configuration file (default $SEU_CONFIG)")
}
