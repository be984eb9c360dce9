// Package mqtt connects the backend to the device broker.
//
// Devices publish readings, camera frames and status reports on the data,
// camera and status topics; the backend publishes slot commands on the
// control topic. Topic names come from config (mqtt.topics) and default to
// the iot/* set used by deployed devices.
//
//	device ──iot/data,iot/camera,iot/status──▶ broker ──▶ backend
//	device ◀──────────iot/control──────────── broker ◀── backend
//
// The client reconnects automatically with exponential backoff and restores
// its subscriptions. It announces itself with a retained online message on
// the presence topic and registers an offline Last Will there.
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := client.Topics()
//	err = client.Subscribe(topics.Data(), 1, func(topic string, payload []byte) error {
//	    return nil
//	})
//	err = client.Publish(topics.Control(), []byte(`{"slot":3,"command":1}`), 1, false)
package mqtt
