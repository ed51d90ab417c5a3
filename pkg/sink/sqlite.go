package sink

import (
	"database/sql"
	"fmt"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// DefaultBatchSize is how many records database sinks buffer before writing.
const DefaultBatchSize = 256

// SQLite mirrors records into a scan_records table, tagged with the run ID
// so several runs can share one database file.
type SQLite struct {
	*sql.DB
	statement *sql.Stmt

	path      string
	runID     string
	batchSize int
	pending   []Record
}

// NewSQLite opens (or creates) the database at path. An empty path picks a
// unique file name in the working directory.
func NewSQLite(path, runID string) (*SQLite, error) {
	if path == "" {
		path = "seu_scan_" + xid.New().String() + ".sqlite3"
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("sink: open sqlite %s: %w", path, err)
	}

	s := &SQLite{
		DB:        db,
		path:      path,
		runID:     runID,
		batchSize: DefaultBatchSize,
	}

	if err := s.createTable(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.prepareStatement(); err != nil {
		db.Close()
		return nil, err
	}

	atexit.Register(func() { _ = s.Flush() })

	return s, nil
}

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// SetBatchSize changes the flush threshold; values below 1 flush every record.
func (s *SQLite) SetBatchSize(n int) {
	s.batchSize = max(n, 1)
}

func (s *SQLite) createTable() error {
	_, err := s.Exec(`
		CREATE TABLE IF NOT EXISTS scan_records (
			run_id   TEXT    NOT NULL,
			elapsed  INTEGER NOT NULL,
			bank     INTEGER NOT NULL,
			eeprom   INTEGER NOT NULL,
			failures INTEGER NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("sink: create scan_records: %w", err)
	}
	return nil
}

func (s *SQLite) prepareStatement() error {
	stmt, err := s.Prepare(`
		INSERT INTO scan_records (run_id, elapsed, bank, eeprom, failures)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sink: prepare insert: %w", err)
	}
	s.statement = stmt
	return nil
}

func (s *SQLite) Append(rec Record) error {
	if s.DB == nil {
		return fmt.Errorf("sink: sqlite %s is closed", s.path)
	}
	s.pending = append(s.pending, rec)
	if len(s.pending) >= s.batchSize {
		return s.Flush()
	}
	return nil
}

// Flush writes all buffered records in one transaction.
func (s *SQLite) Flush() error {
	if len(s.pending) == 0 || s.DB == nil {
		return nil
	}

	tx, err := s.Begin()
	if err != nil {
		return fmt.Errorf("sink: begin: %w", err)
	}
	stmt := tx.Stmt(s.statement)
	for _, rec := range s.pending {
		if _, err := stmt.Exec(s.runID, rec.Elapsed, rec.Bank, rec.Slot, rec.Failures); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("sink: insert: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sink: commit: %w", err)
	}

	s.pending = s.pending[:0]
	return nil
}

// Records returns every stored record of a run in insertion order.
func (s *SQLite) Records(runID string) ([]Record, error) {
	rows, err := s.Query(`
		SELECT elapsed, bank, eeprom, failures FROM scan_records
		WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("sink: query: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Elapsed, &rec.Bank, &rec.Slot, &rec.Failures); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *SQLite) Close() error {
	if s.DB == nil {
		return nil
	}
	flushErr := s.Flush()
	_ = s.statement.Close()
	err := s.DB.Close()
	s.DB = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}
