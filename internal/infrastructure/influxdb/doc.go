// Package influxdb records speaker property history in InfluxDB.
//
// It wraps influxdb-client-go v2 with the non-blocking, batched write API.
// Each numeric or boolean property change becomes one point:
//
//	sonos_property,device_id=<id>,property=volume value=35
//
// Booleans are written as 0 and 1 so they graph alongside levels.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	client.WritePropertyMetric("00-0E-58-AA-BB-CC:7", "volume", 35)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Write errors surface through
// the SetOnError callback.
package influxdb
