package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementReadings = "slot_readings"
	MeasurementAlerts   = "slot_alerts"
)

// WriteReading queues a numeric slot reading. Non-blocking; points are
// batched and sent asynchronously. Dropped silently when not connected.
func (c *Client) WriteReading(slotNumber int, slotType, slotName string, value float64, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(readingPoint(slotNumber, slotType, slotName, value, at))
}

// WriteAlert queues a threshold alert event.
func (c *Client) WriteAlert(slotNumber int, alertType, message string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(alertPoint(slotNumber, alertType, message, at))
}

// WritePointWithTime queues a custom point.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]any, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}

// readingPoint tags by slot number and type. The name is a field because
// slots can be renamed and tags should stay stable.
func readingPoint(slotNumber int, slotType, slotName string, value float64, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementReadings,
		map[string]string{
			"slot": strconv.Itoa(slotNumber),
			"type": slotType,
		},
		map[string]any{
			"value": value,
			"name":  slotName,
		},
		at,
	)
}

func alertPoint(slotNumber int, alertType, message string, at time.Time) *write.Point {
	return write.NewPoint(
		MeasurementAlerts,
		map[string]string{
			"slot":       strconv.Itoa(slotNumber),
			"alert_type": alertType,
		},
		map[string]any{
			"message": message,
			"count":   1,
		},
		at,
	)
}
