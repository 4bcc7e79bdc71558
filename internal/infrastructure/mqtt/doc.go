// Package mqtt connects the Sonos bridge to the Gray Logic MQTT bus.
//
// It manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing with QoS and retention
//   - Wildcard subscriptions restored after reconnect
//   - A Last Will and Testament supplied by the caller
//
// # Topics
//
// Every topic follows graylogic/{category}/sonos/{id}:
//
//	graylogic/state/sonos/{device}       retained property snapshot
//	graylogic/discovery/sonos/{device}   retained description, empty on removal
//	graylogic/command/sonos/{device}     set_property and action commands
//	graylogic/ack/sonos/{device}         command acknowledgements
//	graylogic/action/sonos/{device}      action lifecycle
//	graylogic/request/sonos/{request}    bridge requests
//	graylogic/response/sonos/{request}   request replies
//	graylogic/health/sonos               retained health, will topic
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{Topic: mqtt.Topics{}.Health(), Payload: offline, QoS: 1})
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.AllCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(mqtt.Topics{}.DeviceID(topic), payload)
//	    })
package mqtt
