package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// PropertyMeasurement is the measurement speaker property points go to.
const PropertyMeasurement = "sonos_property"

// WritePropertyMetric queues one property value for deviceID.
func (c *Client) WritePropertyMetric(deviceID, property string, value float64) {
	c.WritePoint(PropertyMeasurement,
		map[string]string{"device_id": deviceID, "property": property},
		map[string]any{"value": value},
		time.Now())
}

// WritePoint queues a point. It is dropped after Close.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, ts))
}
