// Package session owns the peer session lifecycle: it opens the signaling
// channel, constructs and destroys the connectivity object, and funnels every
// asynchronous callback into one dispatch goroutine so the negotiation
// machine observes a strictly serialized event stream.
//
// The Manager is the engine's public surface. At most one session is active
// at a time; Connect/Disconnect/Reconnect move between them.
package session
