// Package peer is the WebRTC-backed implementation of the negotiation
// package's Connectivity interface. It owns all pion/webrtc usage: API and
// SettingEngine construction, PeerConnection lifecycle, and the adapters that
// turn pion callbacks into Sink calls.
package peer
