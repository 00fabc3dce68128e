// Package device provides the Device Registry and the state-change journal.
//
// The registry is the ordered, append-only set of virtual on/off appliances
// the responder advertises. Ids are assigned densely in registration order
// and never reused; names are unique ignoring case.
//
// # Lookups
//
// Control clients address devices either by id (the Hue light number minus
// one) or by name. Ref captures both forms:
//
//	d, err := registry.Resolve(device.ParseRef("Lamp"))
//	if errors.Is(err, device.ErrUnknownDevice) {
//	    // not found
//	}
//
// # Control requests
//
// ControlRequest.Apply encodes the switching rules voice clients rely on:
// an intensity alone switches the device, and switching on from zero
// intensity restores full intensity. Intensity is reported, never acted on.
//
// # Journal
//
// SQLiteStateHistoryRepository appends one row per accepted state change.
// It is an audit trail; nothing reads it back into the registry.
package device
