// Package monitor fans lifecycle events out to registered observers and keeps
// the counters, histograms, and gauges exported for periodic scraping.
//
// Dispatch is synchronous and in registration order so observers see events
// in the order the executor produced them. A panicking or failing observer is
// isolated and logged; it never aborts the invocation that produced the event.
package monitor
