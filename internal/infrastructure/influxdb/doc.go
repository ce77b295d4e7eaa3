// Package influxdb provides InfluxDB connectivity for the control network
// historian.
//
// It wraps the official influxdb-client-go v2 library: connection with a
// ping check, non-blocking batched writes and health monitoring.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // historian off
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influx write", "error", err) })
//
// Points are batched (influxdb.batch_size) and flushed every
// influxdb.flush_interval seconds or on Close.
package influxdb
