package dispatch

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
)

// Journal returns a listener that appends every event to the
// state-change journal.
func Journal(repo device.StateHistoryRepository) Listener {
	return ListenerFunc(func(ctx context.Context, e Event) error {
		snapshot := device.Device{
			ID:        e.DeviceID,
			Name:      e.DeviceName,
			State:     e.State(),
			Reachable: true,
			UpdatedAt: e.At,
		}
		if err := repo.RecordStateChange(ctx, snapshot, e.Source); err != nil {
			return fmt.Errorf("journaling %s: %w", e.DeviceName, err)
		}
		return nil
	})
}

// Log returns a listener that logs every event at info level.
// Repeated states are logged at debug level.
func Log(logger Logger) Listener {
	return ListenerFunc(func(_ context.Context, e Event) error {
		args := []any{
			"device_id", e.DeviceID,
			"name", e.DeviceName,
			"on", e.On,
			"intensity", e.Intensity,
			"source", e.Source,
		}
		if e.Changed() {
			logger.Info("device state changed", args...)
		} else {
			logger.Debug("device state repeated", args...)
		}
		return nil
	})
}
