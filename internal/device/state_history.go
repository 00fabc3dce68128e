package device

import (
	"context"
	"time"
)

// StateHistoryEntry is one row of the state-change journal.
//
// The journal is an audit trail only; device state is never restored from it.
type StateHistoryEntry struct {
	// ID is the auto-incremented primary key for the history row.
	ID int64 `json:"id"`

	DeviceID   ID     `json:"device_id"`
	DeviceName string `json:"device_name"`
	State      State  `json:"state"`

	// Source identifies who caused the change (control or host).
	Source Source `json:"source"`

	// CreatedAt is the timestamp of the state change (UTC).
	CreatedAt time.Time `json:"created_at"`
}

// StateHistoryRepository stores and retrieves device state change history.
//
// Implementations must be thread-safe and use UTC timestamps.
type StateHistoryRepository interface {
	// RecordStateChange appends a journal row for a device.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - d: Device snapshot after the change
	//   - source: Origin of the change
	//
	// Returns:
	//   - error: nil on success, otherwise the underlying persistence error
	RecordStateChange(ctx context.Context, d Device, source Source) error

	// GetHistory returns recent journal rows for the device, newest first.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - id: Device id
	//   - limit: Maximum entries to return (implementation may clamp bounds)
	GetHistory(ctx context.Context, id ID, limit int) ([]StateHistoryEntry, error)
}
