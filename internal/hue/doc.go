// Package hue serves the HTTP surface of an emulated Philips Hue bridge.
//
// Voice clients fetch /description.xml from the LOCATION advertised by
// the discovery responder, register a user with POST /api, list the
// bridge's lights and switch them with PUT /api/{user}/lights/{n}/state.
// Every registered device is exposed as one light numbered id+1.
//
// The server does not own device state. It resolves and applies requests
// through a Backend, which is the responder in production and a fake in
// tests:
//
//	srv := hue.NewServer(backend, hue.NewIdentity(addr, 80))
//	if err := srv.Serve(ln); err != nil {
//	    return err
//	}
//	defer srv.Close()
//
// Requests are handled one at a time. Hue clients issue a handful of
// small requests and a state change must never interleave with a listing.
package hue
