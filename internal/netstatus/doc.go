// Package netstatus answers one question for the responder: has the host
// obtained a usable network address, and if so which one.
//
// Status is the single collaborator interface. InterfaceProbe derives the
// answer from the host's interfaces; Static serves a pinned address.
package netstatus
