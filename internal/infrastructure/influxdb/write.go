package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WritePoint queues p for the next batch. Points written after Close are
// dropped.
func (c *Client) WritePoint(p *write.Point) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(p)
	c.queued.Add(1)
}

// Write builds a point from its parts and queues it.
//
//	client.Write("loop_output",
//	    map[string]string{"loop_id": "tank-level", "type": "PID"},
//	    map[string]any{"output": 0.42, "error": -0.03},
//	    time.Now())
func (c *Client) Write(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	c.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
