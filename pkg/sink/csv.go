package sink

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// FileName returns the log file name for a board.
func FileName(board int) string {
	return fmt.Sprintf("board %d data.csv", board)
}

// CSV appends records to a text file. An existing file is appended to,
// never truncated.
type CSV struct {
	path string
	file *os.File
}

// NewCSV opens path for appending and writes the header row. A failure here
// means the run has nowhere to record and must not start.
func NewCSV(path string) (*CSV, error) {
	c := &CSV{path: path}
	if err := c.open(); err != nil {
		return nil, err
	}
	if _, err := fmt.Fprintln(c.file, Header); err != nil {
		c.file.Close()
		return nil, fmt.Errorf("sink: write header to %s: %w", path, err)
	}
	return c, nil
}

// Path returns the file path.
func (c *CSV) Path() string { return c.path }

func (c *CSV) open() error {
	file, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("sink: open %s: %w", c.path, err)
	}
	c.file = file
	return nil
}

func (c *CSV) Append(rec Record) error {
	if c.file == nil {
		return fmt.Errorf("sink: %s is closed", c.path)
	}
	if _, err := fmt.Fprintln(c.file, rec.String()); err != nil {
		return fmt.Errorf("sink: append to %s: %w", c.path, err)
	}
	return nil
}

// Reopen closes and reopens the file without writing a new header.
func (c *CSV) Reopen() error {
	if c.file != nil {
		_ = c.file.Close()
		c.file = nil
	}
	return c.open()
}

func (c *CSV) Close() error {
	if c.file == nil {
		return nil
	}
	err := c.file.Close()
	c.file = nil
	return err
}

// ReadCSV parses a log produced by CSV. Header rows, which repeat when
// several runs append to one file, and malformed rows are skipped.
func ReadCSV(r io.Reader) ([]Record, error) {
	runs, err := ReadRuns(r)
	var records []Record
	for _, run := range runs {
		records = append(records, run...)
	}
	return records, err
}

// ReadRuns parses a log produced by CSV and splits it at each header row, so
// every element holds the records of one run in file order. Runs that
// recorded nothing are left out.
func ReadRuns(r io.Reader) ([][]Record, error) {
	var runs [][]Record
	var current []Record
	flush := func() {
		if len(current) > 0 {
			runs = append(runs, current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == Header {
			flush()
			continue
		}
		if line == "" {
			continue
		}
		rec, err := ParseRecord(line)
		if err != nil {
			continue
		}
		current = append(current, rec)
	}
	flush()
	return runs, scanner.Err()
}

// ParseRecord parses one "elapsed, bank, eeprom, failures" row.
func ParseRecord(line string) (Record, error) {
	fields := strings.Split(line, ",")
	if len(fields) != 4 {
		return Record{}, fmt.Errorf("sink: expected 4 fields, got %d", len(fields))
	}
	var vals [4]int
	for i, f := range fields {
		v, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return Record{}, fmt.Errorf("sink: field %d: %w", i, err)
		}
		vals[i] = v
	}
	return Record{Elapsed: vals[0], Bank: vals[1], Slot: vals[2], Failures: vals[3]}, nil
}
