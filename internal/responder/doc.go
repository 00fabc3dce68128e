// Package responder ties discovery, the emulated bridge and the device
// registry into the component the host drives.
//
// The host calls OnTick every poll interval. Until the network status
// reports an address, ticks only poll readiness; the first ready address
// opens the bridge HTTP listener and binds discovery, after which each
// tick answers pending discovery searches within the tick budget.
// OnNetworkReady may also be called directly and is idempotent for the
// same address. A different address re-binds discovery and updates the
// advertised identity.
//
// Control requests arrive from the bridge server and are applied under a
// single lock, then dispatched to listeners with source "control". The
// host reflects external changes with SetDeviceState or PushState, which
// dispatch with source "host" so listeners can avoid echoing them back.
//
// Close releases both sockets. The responder cannot be restarted.
package responder
