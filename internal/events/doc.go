// Package events provides the event model used to report channel lifecycle
// changes and occurrence status updates to interested parties.
//
// Producers emit events through an EventEmitter without knowing who
// consumes them. The Bus routes each event to the handlers registered for
// its type, and the Broker is a handler that fans events out to live
// subscribers, such as websocket clients of the operator UI.
package events
