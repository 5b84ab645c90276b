// Package negotiation contains the offer/answer state machine that drives a
// peer session from idle to a stable media transport.
//
// The machine is a pure state+event component: it owns no goroutines, takes
// no locks, and performs side effects only through the Connectivity handle
// and the envelope sender it is given. The session manager serializes every
// event into it, so no two transitions ever run concurrently.
package negotiation
