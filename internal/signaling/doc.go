// Package signaling implements the client side of the relay protocol: the
// JSON envelope schema exchanged with the signaling relay and a reconnectable
// WebSocket channel that speaks it.
//
// The package models the protocol surface only; interpreting envelopes is the
// negotiation machine's job.
package signaling
