package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/OpenTraceSEU/internal/ui"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

var (
	summaryBoard int
	summaryDir   string
)

var summaryCmd = &cobra.Command{
	Use:   "summary [log.csv]",
	Short: "Show the latest failure count of every device in a scan log",
	Long: `Read a scan log and print a bank by EEPROM grid of the most recent
failure counts. Excluded devices are shown as "--".

Examples:
  seu summary --board 3
  seu summary "runs/board 3 data.csv"`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)

	summaryCmd.Flags().IntVarP(&summaryBoard, "board", "b", 0, "board number")
	summaryCmd.Flags().StringVarP(&summaryDir, "dir", "d", ".", "directory holding the log")
}

func runSummary(cmd *cobra.Command, args []string) error {
	path, err := logPath(cmd, args, summaryBoard, summaryDir)
	if err != nil {
		return err
	}

	s, err := ui.SummarizeFile(path)
	if err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}

	fmt.Println(ui.RenderSummary(filepath.Base(path), s))
	return nil
}

// logPath resolves the log from an explicit argument or a board number.
func logPath(cmd *cobra.Command, args []string, board int, dir string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	if !cmd.Flags().Changed("board") {
		return "", fmt.Errorf("give a log file or --board")
	}
	return filepath.Join(dir, sink.FileName(board)), nil
}
