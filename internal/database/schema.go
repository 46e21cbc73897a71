package database

// SQL schemas for all ClickHouse tables.
// Both tables use ReplacingMergeTree keyed by batch id, so a batch that is
// retried after a lost acknowledgement collapses into one row set.

const (
	// BarkReportsTableSQL creates the bark_reports table, one row per uplinked batch
	BarkReportsTableSQL = `
		CREATE TABLE IF NOT EXISTS bark_reports (
			batch_id String,
			device_id String,
			created_at DateTime64(3),
			bark_count UInt32,
			max_peak_volume Float64,
			mean_frequency Float64
		) ENGINE = ReplacingMergeTree()
		ORDER BY (device_id, batch_id)
		PARTITION BY toYYYYMM(created_at)
	`

	// BarkEventsTableSQL creates the bark_events table, one row per bark detail
	BarkEventsTableSQL = `
		CREATE TABLE IF NOT EXISTS bark_events (
			batch_id String,
			device_id String,
			timestamp DateTime64(3),
			peak_volume Float64,
			dominant_frequency Float64,
			duration_ms Float64
		) ENGINE = ReplacingMergeTree()
		ORDER BY (device_id, batch_id, timestamp)
		PARTITION BY toYYYYMM(timestamp)
	`
)

// AllTables returns all table creation SQL statements
func AllTables() []string {
	return []string{
		BarkReportsTableSQL,
		BarkEventsTableSQL,
	}
}
