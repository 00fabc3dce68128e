// Package dispatch delivers applied device state changes to host listeners.
//
// It replaces a single state callback with an ordered listener list:
// per-device listeners and wildcard listeners share one registration order,
// each listener is isolated from the others' errors and panics, and events
// for the same device are never reordered.
package dispatch
