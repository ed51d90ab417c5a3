package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/bus"
	"github.com/spf13/cobra"
)

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List available USB-I2C interfaces",
	Long: `Scan the host for CH341A USB-I2C bridges and print a summary of the
detected interfaces. The simulator is always listed. Use this to check the rig
is plugged in before starting a run.`,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	infos, err := bus.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	if len(infos) == 0 {
		fmt.Println("No interfaces found.")
		return nil
	}

	fmt.Println("Detected I2C interfaces:")
	for _, iface := range infos {
		if iface.Kind == bus.InterfaceKindSim {
			fmt.Printf("  - %s [%s]\n", iface.Label(), iface.Kind)
			continue
		}
		fmt.Printf("  - %s [%s] (VID:PID %04X:%04X)\n", iface.Label(), iface.Kind, iface.VendorID, iface.ProductID)
	}

	if verbose {
		printCH341Details()
	}
	return nil
}

// printCH341Details opens each bridge to read its string descriptors. Boards
// on a shared hub are told apart by serial number.
func printCH341Details() {
	devices, err := bus.EnumerateCH341()
	if err != nil {
		fmt.Printf("\nCould not open CH341 bridges: %v\n", err)
		return
	}
	if len(devices) == 0 {
		return
	}
	fmt.Println("\nCH341 bridges:")
	for _, d := range devices {
		serial := d.SerialNumber
		if serial == "" {
			serial = "(none)"
		}
		fmt.Printf("  - %s serial %s\n", d.Description, serial)
	}
}
