// Package influxdb records device state changes as InfluxDB time series.
//
// It wraps the official influxdb-client-go v2 library. Every applied state
// change becomes one device_state point:
//
//	device_state,device_id=3,device_name=Lamp,source=control on=true,intensity=255i
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteDeviceState(event)
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval. Batch errors are delivered to the SetOnError callback;
// connection and health check errors are returned directly.
package influxdb
