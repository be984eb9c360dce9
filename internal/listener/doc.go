// Package listener consumes device messages from the broker and routes them
// to the ingestor, the camera store and the device status map.
//
// A Listener is an owned value with an explicit lifecycle (New, Start, Stop).
// Transport callbacks only map a topic to a Channel; all decoding and
// dispatch happens in Route, which tests drive directly without a broker.
//
// Messages that cannot be decoded, or that name an unknown slot, are logged
// and dropped. Nothing is acknowledged back to devices.
package listener
