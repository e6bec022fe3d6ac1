// Package history records property changes of hosted endpoints.
//
// A Recorder watches endpoints through section listeners on their state
// and config sections and forwards each changed property to a sink,
// normally the InfluxDB client. The metadata section is never recorded:
// it describes the endpoint rather than anything that happens to it.
package history
