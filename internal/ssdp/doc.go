// Package ssdp answers UPnP discovery searches for the emulated Hue bridge.
//
// Voice clients multicast an M-SEARCH to 239.255.255.250:1900 and listen
// for a few seconds. The Responder replies with the bridge's description
// URL on the same poll tick it sees the query. It can also announce itself
// with periodic NOTIFY messages.
//
// State machine:
//
//	Suspended --Bind--> Idle --query--> QueryReceived --reply--> ResponseSent --> Idle
//	    ^                                                                       |
//	    +------------------------------- Unbind --------------------------------+
package ssdp
