package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
)

// MeasurementDeviceState is the measurement written for every state change.
const MeasurementDeviceState = "device_state"

// WriteDeviceState records one applied state change.
//
// The point is tagged with the device id, name and change source and
// carries the on flag and intensity as fields. The write is non-blocking;
// data is batched and sent asynchronously.
func (c *Client) WriteDeviceState(e dispatch.Event) {
	if !c.IsConnected() {
		return
	}

	at := e.At
	if at.IsZero() {
		at = c.now()
	}

	c.writeAPI.WritePoint(write.NewPoint(
		MeasurementDeviceState,
		map[string]string{
			"device_id":   strconv.Itoa(int(e.DeviceID)),
			"device_name": e.DeviceName,
			"source":      string(e.Source),
		},
		map[string]interface{}{
			"on":        e.On,
			"intensity": int64(e.Intensity),
		},
		at,
	))
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Example:
//
//	client.WritePoint("responder_stats",
//	    map[string]string{"host": "fauxmo-01"},
//	    map[string]interface{}{"answered": 12, "ignored": 40})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, c.now())
}

// WritePointWithTime writes a custom point with a specific timestamp.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
