// Package channel owns the single connection to the external messaging
// channel.
//
// A Session drives a Client through an explicit state machine
// (disconnected, initializing, awaiting_scan, authenticated, ready, fatal).
// Only a ready session accepts sends, and sends are serialized. Lifecycle
// changes are reported through an events.EventEmitter. ClassifyError isolates
// the string matching used to tell a broken channel apart from a rejected
// recipient.
package channel
