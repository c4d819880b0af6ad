// Package event carries prewarm's in-process notifications.
//
// The orchestrator publishes navigation and interaction events; the prefetch
// queue publishes per-load and depth events; the tier scheduler publishes an
// event each time a tier dispatches. Consumers (the interaction counter, the
// daemon's status endpoints, tests) subscribe without holding references to
// the publishers.
//
// Delivery is synchronous: Publish returns after every handler has run. A
// panicking handler is recovered and does not prevent delivery to the
// remaining handlers.
package event
