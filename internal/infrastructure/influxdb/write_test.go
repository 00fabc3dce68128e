package influxdb

import (
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-fauxmo/internal/device"
	"github.com/nerrad567/gray-logic-fauxmo/internal/dispatch"
	"github.com/nerrad567/gray-logic-fauxmo/internal/infrastructure/config"
)

// fakeWriter captures points instead of batching them.
type fakeWriter struct {
	points  []*write.Point
	flushes int
}

func (w *fakeWriter) WritePoint(p *write.Point) { w.points = append(w.points, p) }
func (w *fakeWriter) Flush()                    { w.flushes++ }

func newTestClient() (*Client, *fakeWriter) {
	w := &fakeWriter{}
	c := newClient(config.InfluxDBConfig{Enabled: true}, nil, w)
	c.now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	return c, w
}

func tags(p *write.Point) map[string]string {
	out := make(map[string]string)
	for _, t := range p.TagList() {
		out[t.Key] = t.Value
	}
	return out
}

func fields(p *write.Point) map[string]interface{} {
	out := make(map[string]interface{})
	for _, f := range p.FieldList() {
		out[f.Key] = f.Value
	}
	return out
}

func TestWriteDeviceState(t *testing.T) {
	tests := []struct {
		name     string
		event    dispatch.Event
		wantTags map[string]string
		wantOn   bool
		wantInt  int64
		wantTime time.Time
	}{
		{
			name: "control change",
			event: dispatch.Event{
				DeviceID: 2, DeviceName: "Heater", On: true, Intensity: 128,
				Source: device.SourceControl, At: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
			},
			wantTags: map[string]string{"device_id": "2", "device_name": "Heater", "source": "control"},
			wantOn:   true,
			wantInt:  128,
			wantTime: time.Date(2026, 3, 1, 8, 30, 0, 0, time.UTC),
		},
		{
			name:     "host push without timestamp",
			event:    dispatch.Event{DeviceID: 0, DeviceName: "Lamp", Source: device.SourceHost},
			wantTags: map[string]string{"device_id": "0", "device_name": "Lamp", "source": "host"},
			wantTime: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, w := newTestClient()
			c.WriteDeviceState(tt.event)

			if len(w.points) != 1 {
				t.Fatalf("points = %d, want 1", len(w.points))
			}
			p := w.points[0]
			if p.Name() != MeasurementDeviceState {
				t.Errorf("measurement = %q", p.Name())
			}
			got := tags(p)
			for k, v := range tt.wantTags {
				if got[k] != v {
					t.Errorf("tag %s = %q, want %q", k, got[k], v)
				}
			}
			f := fields(p)
			if f["on"] != tt.wantOn || f["intensity"] != tt.wantInt {
				t.Errorf("fields = %v", f)
			}
			if !p.Time().Equal(tt.wantTime) {
				t.Errorf("time = %v, want %v", p.Time(), tt.wantTime)
			}
		})
	}
}

func TestWrite_Disconnected(t *testing.T) {
	c, w := newTestClient()
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes on Close = %d, want 1", w.flushes)
	}

	c.WriteDeviceState(dispatch.Event{DeviceName: "Lamp"})
	c.WritePoint("responder_stats", nil, map[string]interface{}{"answered": 1})
	c.Flush()

	if len(w.points) != 0 {
		t.Errorf("points after Close = %d, want 0", len(w.points))
	}
	if w.flushes != 1 {
		t.Errorf("Flush after Close reached the writer")
	}
	if err := c.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestWritePoint(t *testing.T) {
	c, w := newTestClient()
	c.WritePoint("responder_stats", map[string]string{"host": "fauxmo-01"}, map[string]interface{}{"answered": 12})

	if len(w.points) != 1 || w.points[0].Name() != "responder_stats" {
		t.Fatalf("points = %v", w.points)
	}
	if !w.points[0].Time().Equal(c.now()) {
		t.Errorf("time = %v", w.points[0].Time())
	}
}

func TestWriteOptions(t *testing.T) {
	tests := []struct {
		name      string
		cfg       config.InfluxDBConfig
		wantBatch uint
		wantFlush uint
	}{
		{"defaults", config.InfluxDBConfig{}, 100, 10000},
		{"configured", config.InfluxDBConfig{BatchSize: 500, FlushInterval: 2}, 500, 2000},
		{"negative falls back", config.InfluxDBConfig{BatchSize: -1, FlushInterval: -5}, 100, 10000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := writeOptions(tt.cfg)
			if got := opts.BatchSize(); got != tt.wantBatch {
				t.Errorf("BatchSize() = %d, want %d", got, tt.wantBatch)
			}
			if got := opts.FlushInterval(); got != tt.wantFlush {
				t.Errorf("FlushInterval() = %d ms, want %d", got, tt.wantFlush)
			}
		})
	}
}
