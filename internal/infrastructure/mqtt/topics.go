package mqtt

import "fmt"

// Topic scheme: graylogic/{category}/{protocol}/{id}.
const (
	// TopicPrefix is the root of every Gray Logic topic.
	TopicPrefix = "graylogic"

	// Protocol is the protocol segment used by this bridge.
	Protocol = "sonos"
)

// Topics builds the topics this bridge publishes and subscribes to.
//
//	mqtt.Topics{}.State("RINCON_000E58AABBCC01400")
//	// graylogic/state/sonos/RINCON_000E58AABBCC01400
type Topics struct{}

func topic(category, id string) string {
	return fmt.Sprintf("%s/%s/%s/%s", TopicPrefix, category, Protocol, id)
}

// State is the retained property snapshot of one speaker.
func (Topics) State(deviceID string) string { return topic("state", deviceID) }

// Discovery is the retained description of one speaker. An empty
// retained payload announces its removal.
func (Topics) Discovery(deviceID string) string { return topic("discovery", deviceID) }

// Command carries set_property and action commands for one speaker.
func (Topics) Command(deviceID string) string { return topic("command", deviceID) }

// Ack carries command acknowledgements for one speaker.
func (Topics) Ack(deviceID string) string { return topic("ack", deviceID) }

// Action carries action lifecycle updates for one speaker.
func (Topics) Action(deviceID string) string { return topic("action", deviceID) }

// Request carries bridge-level requests, keyed by request id.
func (Topics) Request(requestID string) string { return topic("request", requestID) }

// Response carries the reply to a request.
func (Topics) Response(requestID string) string { return topic("response", requestID) }

// Health is the retained bridge health topic, also used for the will.
func (Topics) Health() string {
	return fmt.Sprintf("%s/health/%s", TopicPrefix, Protocol)
}

// AllCommands matches commands for every speaker.
func (Topics) AllCommands() string { return topic("command", "+") }

// AllRequests matches every bridge request.
func (Topics) AllRequests() string { return topic("request", "+") }

// DeviceID returns the last segment of a per-device topic.
func (Topics) DeviceID(t string) string {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i] == '/' {
			return t[i+1:]
		}
	}
	return t
}
