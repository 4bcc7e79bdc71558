package adapter

import (
	"github.com/nerrad567/gray-logic-sonos/internal/speaker"
)

// Host receives everything a speaker host needs to mirror the registry.
// Calls may come from any goroutine and must not block for long.
type Host interface {
	PropertyChanged(deviceID string, p speaker.Property)
	ActionStatus(deviceID string, a speaker.ActionRecord)
	DeviceAdded(d speaker.Description)
	DeviceRemoved(deviceID string)
}

// MultiHost fans notifications out to several hosts in order.
type MultiHost []Host

func (m MultiHost) PropertyChanged(deviceID string, p speaker.Property) {
	for _, h := range m {
		h.PropertyChanged(deviceID, p)
	}
}

func (m MultiHost) ActionStatus(deviceID string, a speaker.ActionRecord) {
	for _, h := range m {
		h.ActionStatus(deviceID, a)
	}
}

func (m MultiHost) DeviceAdded(d speaker.Description) {
	for _, h := range m {
		h.DeviceAdded(d)
	}
}

func (m MultiHost) DeviceRemoved(deviceID string) {
	for _, h := range m {
		h.DeviceRemoved(deviceID)
	}
}

// PointWriter records one numeric property sample.
// *influxdb.Client implements it.
type PointWriter interface {
	WritePropertyMetric(deviceID, property string, value float64)
}

// MetricsHost writes numeric and boolean property changes to a PointWriter.
// Other notifications are ignored.
type MetricsHost struct {
	Writer PointWriter
}

// PropertyChanged writes integers and numbers as is and booleans as 0 or 1.
func (m MetricsHost) PropertyChanged(deviceID string, p speaker.Property) {
	var v float64
	switch x := p.Value.(type) {
	case bool:
		if x {
			v = 1
		}
	case int:
		v = float64(x)
	case float64:
		v = x
	default:
		return
	}
	m.Writer.WritePropertyMetric(deviceID, p.Name, v)
}

func (MetricsHost) ActionStatus(string, speaker.ActionRecord) {}
func (MetricsHost) DeviceAdded(speaker.Description)           {}
func (MetricsHost) DeviceRemoved(string)                      {}
