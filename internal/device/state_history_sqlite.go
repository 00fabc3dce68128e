package device

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// historyTimeLayout is fixed-width so created_at sorts lexically.
	historyTimeLayout = "2006-01-02T15:04:05.000000Z"
)

// SQLiteStateHistoryRepository implements StateHistoryRepository on the
// state_history table.
type SQLiteStateHistoryRepository struct {
	db *sql.DB
}

// NewSQLiteStateHistoryRepository creates a new SQLite state history repository.
//
// Parameters:
//   - db: Open SQLite connection with the state_history migration applied
//
// Returns:
//   - *SQLiteStateHistoryRepository: Repository instance ready for use
func NewSQLiteStateHistoryRepository(db *sql.DB) *SQLiteStateHistoryRepository {
	return &SQLiteStateHistoryRepository{db: db}
}

// RecordStateChange inserts a new journal row. An empty source is stored as control.
func (r *SQLiteStateHistoryRepository) RecordStateChange(ctx context.Context, d Device, source Source) error {
	if source == "" {
		source = SourceControl
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO state_history (device_id, device_name, on_state, intensity, source, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		int(d.ID),
		d.Name,
		boolToInt(d.State.On),
		int(d.State.Intensity),
		string(source),
		time.Now().UTC().Format(historyTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting state history: %w", err)
	}

	return nil
}

// GetHistory returns recent journal rows for a device, ordered newest first.
//
// Parameters:
//   - ctx: Context for cancellation and timeout
//   - id: Device id
//   - limit: Maximum entries to return (default 50, max 200)
//
// Returns:
//   - []StateHistoryEntry: History entries ordered by created_at DESC
//   - error: nil on success, otherwise the underlying query error
func (r *SQLiteStateHistoryRepository) GetHistory(ctx context.Context, id ID, limit int) ([]StateHistoryEntry, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, device_id, device_name, on_state, intensity, source, created_at
		 FROM state_history
		 WHERE device_id = ?
		 ORDER BY created_at DESC, id DESC
		 LIMIT ?`,
		int(id),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying state history: %w", err)
	}
	defer rows.Close()

	entries := make([]StateHistoryEntry, 0, limit)
	for rows.Next() {
		var (
			entry     StateHistoryEntry
			deviceID  int
			onState   int
			intensity int
			source    string
			createdAt string
		)
		if err := rows.Scan(&entry.ID, &deviceID, &entry.DeviceName, &onState, &intensity, &source, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning state history: %w", err)
		}

		timestamp, err := parseHistoryTimestamp(createdAt)
		if err != nil {
			return nil, err
		}

		entry.DeviceID = ID(deviceID)
		entry.State = State{On: onState != 0, Intensity: uint8(intensity)}
		entry.Source = Source(source)
		entry.CreatedAt = timestamp
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating state history: %w", err)
	}

	return entries, nil
}

// PruneHistory deletes journal rows older than the given duration.
//
// Returns:
//   - int64: Number of rows deleted
//   - error: nil on success, otherwise the underlying database error
func (r *SQLiteStateHistoryRepository) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("olderThan must be positive")
	}

	cutoff := time.Now().UTC().Add(-olderThan).Format(historyTimeLayout)
	result, err := r.db.ExecContext(ctx, "DELETE FROM state_history WHERE created_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("deleting state history: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("checking rows affected: %w", err)
	}

	return rowsAffected, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// parseHistoryTimestamp parses a timestamp stored in SQLite.
func parseHistoryTimestamp(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, fmt.Errorf("created_at is empty")
	}

	timestamp, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing created_at: %w", err)
	}
	return timestamp, nil
}
