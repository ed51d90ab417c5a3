package ui

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/OpenTraceLab/OpenTraceSEU/pkg/sink"
)

func sampleRecords() []sink.Record {
	return []sink.Record{
		{Elapsed: 10, Bank: 0, Slot: 0, Failures: 0},
		{Elapsed: 10, Bank: 0, Slot: 1, Failures: -1},
		{Elapsed: 11, Bank: 1, Slot: 0, Failures: 2},
		{Elapsed: 20, Bank: 0, Slot: 0, Failures: 3},
		{Elapsed: 20, Bank: 0, Slot: 1, Failures: -1},
		{Elapsed: 21, Bank: 1, Slot: 0, Failures: 5},
	}
}

func TestSummarizeKeepsLatestPerDevice(t *testing.T) {
	s := Summarize(sampleRecords())

	if s.Passes != 2 {
		t.Fatalf("expected 2 passes, got %d", s.Passes)
	}
	if s.Elapsed != 21 {
		t.Fatalf("expected elapsed 21, got %d", s.Elapsed)
	}
	if s.Total != 8 {
		t.Fatalf("expected total 8, got %d", s.Total)
	}
	if s.Excluded != 1 {
		t.Fatalf("expected 1 excluded device, got %d", s.Excluded)
	}
	if got := s.Latest[DeviceKey{Bank: 1, Slot: 0}].Failures; got != 5 {
		t.Fatalf("bank 1 slot 0 latest = %d, want 5", got)
	}
	if len(s.Banks) != 2 || len(s.Slots) != 2 {
		t.Fatalf("banks %v slots %v", s.Banks, s.Slots)
	}
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	if s.Passes != 0 || s.Total != 0 || len(s.Latest) != 0 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if out := RenderSummary("board 1", s); !strings.Contains(out, "no records yet") {
		t.Fatalf("empty render missing placeholder:\n%s", out)
	}
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary("board 3", Summarize(sampleRecords()))

	for _, want := range []string{"board 3", "E0", "E1", "--", "Passes", "0m21s"} {
		if !strings.Contains(out, want) {
			t.Errorf("render missing %q:\n%s", want, out)
		}
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := map[int]string{
		0:    "0m00s",
		59:   "0m59s",
		61:   "1m01s",
		3725: "1h02m05s",
	}
	for in, want := range tests {
		if got := formatElapsed(in); got != want {
			t.Errorf("formatElapsed(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestSummarizeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(1))
	data := sink.Header + "\n1, 0, 0, 0\n" + sink.Header + "\n2, 0, 0, 4\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := SummarizeFile(path)
	if err != nil {
		t.Fatalf("SummarizeFile: %v", err)
	}
	if s.Total != 4 || s.Passes != 1 || s.Runs != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}

	if _, err := SummarizeFile(filepath.Join(t.TempDir(), "missing.csv")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestSummarizeFileCountsOnlyTheLastRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(2))
	first := "10, 0, 0, 0\n10, 0, 1, 0\n20, 0, 0, 1\n20, 0, 1, 0\n30, 0, 0, 2\n30, 0, 1, 0\n"
	second := "5, 0, 0, 0\n5, 0, 1, 7\n"
	data := sink.Header + "\n" + first + sink.Header + "\n" + second
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := SummarizeFile(path)
	if err != nil {
		t.Fatalf("SummarizeFile: %v", err)
	}
	if s.Passes != 1 {
		t.Fatalf("expected 1 pass in the last run, got %d", s.Passes)
	}
	if s.Elapsed != 5 {
		t.Fatalf("expected elapsed 5 from the last run, got %d", s.Elapsed)
	}
	if s.Total != 7 || s.Runs != 2 {
		t.Fatalf("unexpected summary %+v", s)
	}
	if out := RenderSummary("board 2", s); !strings.Contains(out, "last of 2 runs") {
		t.Fatalf("render missing run count:\n%s", out)
	}
}

func TestSummarizeFileIgnoresEmptyTrailingRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), sink.FileName(3))
	data := sink.Header + "\n1, 0, 0, 0\n2, 0, 0, 3\n" + sink.Header + "\n"
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := SummarizeFile(path)
	if err != nil {
		t.Fatalf("SummarizeFile: %v", err)
	}
	if s.Passes != 2 || s.Total != 3 || s.Runs != 1 {
		t.Fatalf("unexpected summary %+v", s)
	}
}

func TestMonitorUpdate(t *testing.T) {
	m := NewMonitor("board 1 data.csv", "board 1", 0)

	next, _ := m.Update(summaryMsg{summary: Summarize(sampleRecords())})
	m = next.(Monitor)
	if m.Summary().Total != 8 {
		t.Fatalf("summary not applied, total %d", m.Summary().Total)
	}

	next, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	m = next.(Monitor)
	if !strings.Contains(m.View(), "paused") {
		t.Fatal("pause not shown")
	}

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Fatal("q should return tea.Quit")
	}
}
