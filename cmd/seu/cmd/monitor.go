package cmd

import (
	"fmt"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSEU/internal/ui"
)

var (
	monitorBoard    int
	monitorDir      string
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor [log.csv]",
	Short: "Follow a scan log while a run writes to it",
	Long: `Open a terminal dashboard that re-reads the scan log on an interval and
shows the latest failure count of every device.

Keys: q quit, p pause, r refresh now.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().IntVarP(&monitorBoard, "board", "b", 0, "board number")
	monitorCmd.Flags().StringVarP(&monitorDir, "dir", "d", ".", "directory holding the log")
	monitorCmd.Flags().DurationVarP(&monitorInterval, "interval", "i", 2*time.Second, "refresh interval")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	path, err := logPath(cmd, args, monitorBoard, monitorDir)
	if err != nil {
		return err
	}

	m := ui.NewMonitor(path, filepath.Base(path), monitorInterval)
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("monitor: %w", err)
	}
	return nil
}
