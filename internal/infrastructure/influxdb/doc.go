// Package influxdb exports console telemetry to InfluxDB v2.
//
// Every telemetry sample becomes a "telemetry" point with one field per
// reported channel, and every committed setpoint becomes a
// "setpoint_command" point. Points are tagged with the device name.
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB, cfg.Device.Name)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // export switched off
//	}
//	defer client.Close()
//
//	client.WriteSample(sample)
//
// Writes never block. They are batched according to batch_size and
// flush_interval, and batch failures arrive through SetOnError.
package influxdb
