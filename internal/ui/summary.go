package ui

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/eeprom"
	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

// DeviceKey identifies a device in a log.
type DeviceKey struct {
	Bank int
	Slot int
}

// Summary is the latest state of every device found in the last run of a
// scan log.
type Summary struct {
	Latest   map[DeviceKey]sink.Record
	Banks    []int
	Slots    []int
	Runs     int // Runs appended to the log
	Passes   int // Records of the most-recorded device in the last run
	Elapsed  int // Largest elapsed time seen in the last run, seconds
	Total    int // Sum of the latest counts, excluded devices ignored
	Excluded int
}

// SummarizeRuns summarizes the last run. Earlier runs restart elapsed time
// and pass numbering, so they only contribute to the run count.
func SummarizeRuns(runs [][]sink.Record) Summary {
	if len(runs) == 0 {
		return Summarize(nil)
	}
	s := Summarize(runs[len(runs)-1])
	s.Runs = len(runs)
	return s
}

// Summarize reduces the records of one run to the last record per device.
// Records are assumed to be in file order.
func Summarize(records []sink.Record) Summary {
	s := Summary{Latest: make(map[DeviceKey]sink.Record)}
	if len(records) > 0 {
		s.Runs = 1
	}
	perDevice := make(map[DeviceKey]int)
	banks := make(map[int]bool)
	slots := make(map[int]bool)

	for _, rec := range records {
		key := DeviceKey{Bank: rec.Bank, Slot: rec.Slot}
		s.Latest[key] = rec
		perDevice[key]++
		banks[rec.Bank] = true
		slots[rec.Slot] = true
		s.Elapsed = max(s.Elapsed, rec.Elapsed)
	}

	for key, rec := range s.Latest {
		s.Passes = max(s.Passes, perDevice[key])
		if rec.Failures == eeprom.SentinelFailures {
			s.Excluded++
			continue
		}
		s.Total += rec.Failures
	}

	s.Banks = sortedKeys(banks)
	s.Slots = sortedKeys(slots)
	return s
}

// SummarizeFile reads and summarizes a CSV log.
func SummarizeFile(path string) (Summary, error) {
	f, err := os.Open(path)
	if err != nil {
		return Summary{}, err
	}
	defer f.Close()

	runs, err := sink.ReadRuns(f)
	if err != nil {
		return Summary{}, fmt.Errorf("read %s: %w", path, err)
	}
	return SummarizeRuns(runs), nil
}

// RenderSummary draws a bank by slot grid of the latest counts. Excluded
// devices show as "--" and sockets absent from the log stay blank.
func RenderSummary(title string, s Summary) string {
	const cellW = 7

	var sb strings.Builder
	sb.WriteString(titleStyle.Render(title) + "\n\n")

	if len(s.Latest) == 0 {
		sb.WriteString(dimStyle.Render("no records yet") + "\n")
		return panelStyle.Render(strings.TrimRight(sb.String(), "\n"))
	}

	sb.WriteString(headerStyle.Render(padRight("Bank", cellW)))
	for _, slot := range s.Slots {
		sb.WriteString(headerStyle.Render(padLeft(fmt.Sprintf("E%d", slot), cellW)))
	}
	sb.WriteString("\n")

	for _, bank := range s.Banks {
		sb.WriteString(labelStyle.Render(padRight(fmt.Sprintf("%d", bank), cellW)))
		for _, slot := range s.Slots {
			rec, ok := s.Latest[DeviceKey{Bank: bank, Slot: slot}]
			switch {
			case !ok:
				sb.WriteString(strings.Repeat(" ", cellW))
			case rec.Failures == eeprom.SentinelFailures:
				sb.WriteString(dimStyle.Render(padLeft("--", cellW)))
			default:
				sb.WriteString(failureStyle(rec.Failures).Render(padLeft(fmt.Sprintf("%d", rec.Failures), cellW)))
			}
		}
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render("Passes ") + valueStyle.Render(fmt.Sprintf("%d", s.Passes)) + "   ")
	sb.WriteString(labelStyle.Render("Elapsed ") + valueStyle.Render(formatElapsed(s.Elapsed)) + "   ")
	sb.WriteString(labelStyle.Render("Failures ") + failureStyle(s.Total).Render(fmt.Sprintf("%d", s.Total)))
	if s.Excluded > 0 {
		sb.WriteString("   " + labelStyle.Render("Excluded ") + dimStyle.Render(fmt.Sprintf("%d", s.Excluded)))
	}
	if s.Runs > 1 {
		sb.WriteString("\n" + dimStyle.Render(fmt.Sprintf("last of %d runs in this log", s.Runs)))
	}

	return panelStyle.Render(sb.String())
}

func formatElapsed(seconds int) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	sec := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, sec)
	}
	return fmt.Sprintf("%dm%02ds", m, sec)
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

func sortedKeys(set map[int]bool) []int {
	keys := make([]int, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Ints(keys)
	return keys
}
