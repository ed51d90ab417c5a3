package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
)

// ClickHouseConfig holds connection settings for the ClickHouse sink.
type ClickHouseConfig struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseTable is where the sink writes.
const ClickHouseTable = "seu_scan_records"

// ClickHouseSchema creates ClickHouseTable when missing.
const ClickHouseSchema = `
	CREATE TABLE IF NOT EXISTS ` + ClickHouseTable + ` (
		run_id      String,
		board       UInt32,
		recorded_at DateTime64(3),
		elapsed     UInt32,
		bank        UInt16,
		eeprom      UInt16,
		failures    Int32
	) ENGINE = MergeTree()
	ORDER BY (run_id, bank, eeprom, elapsed)
`

type clickHouseRow struct {
	recordedAt time.Time
	rec        Record
}

// ClickHouse batches records into ClickHouseTable.
type ClickHouse struct {
	conn      driver.Conn
	board     int
	runID     string
	batchSize int
	pending   []clickHouseRow
	now       func() time.Time
}

// DialClickHouse connects, pings, and makes sure the table exists.
func DialClickHouse(ctx context.Context, cfg ClickHouseConfig, board int, runID string) (*ClickHouse, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("sink: connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sink: ping ClickHouse at %s: %w", cfg.Addr, err)
	}
	if err := conn.Exec(ctx, ClickHouseSchema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sink: create %s: %w", ClickHouseTable, err)
	}

	return &ClickHouse{
		conn:      conn,
		board:     board,
		runID:     runID,
		batchSize: DefaultBatchSize,
		now:       time.Now,
	}, nil
}

func (c *ClickHouse) Append(rec Record) error {
	if c.conn == nil {
		return fmt.Errorf("sink: ClickHouse connection closed")
	}
	c.pending = append(c.pending, clickHouseRow{recordedAt: c.now(), rec: rec})
	if len(c.pending) >= c.batchSize {
		return c.Flush(context.Background())
	}
	return nil
}

// Flush sends buffered rows as one batch.
func (c *ClickHouse) Flush(ctx context.Context) error {
	if len(c.pending) == 0 || c.conn == nil {
		return nil
	}

	batch, err := c.conn.PrepareBatch(ctx, "INSERT INTO "+ClickHouseTable)
	if err != nil {
		return fmt.Errorf("sink: prepare batch: %w", err)
	}
	for _, row := range c.pending {
		if err := batch.Append(
			c.runID,
			uint32(c.board),
			row.recordedAt,
			uint32(row.rec.Elapsed),
			uint16(row.rec.Bank),
			uint16(row.rec.Slot),
			int32(row.rec.Failures),
		); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("sink: append row: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("sink: send batch: %w", err)
	}

	c.pending = c.pending[:0]
	return nil
}

func (c *ClickHouse) Close() error {
	if c.conn == nil {
		return nil
	}
	flushErr := c.Flush(context.Background())
	err := c.conn.Close()
	c.conn = nil
	if flushErr != nil {
		return flushErr
	}
	return err
}
