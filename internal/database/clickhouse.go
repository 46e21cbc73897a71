package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/hslarson/Dog-Bark-Detector/internal/models"
	"go.uber.org/zap"
)

// Config holds the ClickHouse connection settings
type Config struct {
	Addr     string
	Database string
	Username string
	Password string
}

// ClickHouseDB journals report batches. It is an uplink alongside the
// cloud channel and the broker.
type ClickHouseDB struct {
	conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(ctx context.Context, config Config, logger *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{config.Addr},
		Auth: clickhouse.Auth{
			Database: config.Database,
			Username: config.Username,
			Password: config.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	db := newWithConn(conn, logger)
	db.logger.Info("connected to ClickHouse", zap.String("addr", config.Addr))

	// Initialize schema
	if err := db.InitSchema(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

func newWithConn(conn driver.Conn, logger *zap.Logger) *ClickHouseDB {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClickHouseDB{conn: conn, logger: logger}
}

// InitSchema creates the necessary tables if they don't exist
func (db *ClickHouseDB) InitSchema(ctx context.Context) error {
	for _, tableSQL := range AllTables() {
		if err := db.conn.Exec(ctx, tableSQL); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	db.logger.Info("database schema initialized")
	return nil
}

// Name identifies the uplink in logs
func (db *ClickHouseDB) Name() string {
	return "clickhouse"
}

// SendBatch writes the report row and its event rows
func (db *ClickHouseDB) SendBatch(ctx context.Context, report models.ReportBatch) error {
	reports, err := db.conn.PrepareBatch(ctx, "INSERT INTO bark_reports")
	if err != nil {
		return fmt.Errorf("failed to prepare report insert: %w", err)
	}
	if err := reports.Append(
		report.ID,
		report.DeviceID,
		report.CreatedAt,
		uint32(report.Count),
		report.MaxPeakVolume(),
		report.MeanFrequency(),
	); err != nil {
		_ = reports.Abort()
		return fmt.Errorf("failed to append report row: %w", err)
	}
	if err := reports.Send(); err != nil {
		return fmt.Errorf("failed to insert report: %w", err)
	}

	if len(report.Events) == 0 {
		return nil
	}

	events, err := db.conn.PrepareBatch(ctx, "INSERT INTO bark_events")
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	for _, e := range report.Events {
		if err := events.Append(
			report.ID,
			report.DeviceID,
			e.Timestamp,
			e.PeakVolume,
			e.DominantFrequency,
			float64(e.Duration)/float64(time.Millisecond),
		); err != nil {
			_ = events.Abort()
			return fmt.Errorf("failed to append event row: %w", err)
		}
	}
	if err := events.Send(); err != nil {
		return fmt.Errorf("failed to insert events: %w", err)
	}

	db.logger.Debug("journaled report batch",
		zap.String("batch_id", report.ID),
		zap.Int("events", len(report.Events)))
	return nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	return db.conn.Close()
}
