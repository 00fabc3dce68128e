// Package hostlink connects the responder to a host application over MQTT.
//
// The link is a dispatcher listener in one direction and a command
// subscriber in the other:
//
//	responder ──dispatch──▶ Link ──▶ fauxmo/state/{id}   (retained)
//	                             ──▶ per-device trigger topics
//	host ──▶ fauxmo/command/{ref} ──▶ Link ──▶ responder.PushControl
//
// Trigger topics only see changes made by voice clients. Host pushes
// update the retained state but never re-fire a trigger, so a host that
// reacts to its own triggers cannot loop.
package hostlink
