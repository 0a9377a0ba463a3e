// Package engine runs the order-state synchronization cycle: decide between
// cache and live fetch, diff the fetched tree against the stored snapshot,
// persist the new state and its change records, and classify the outcome.
//
// Each order reference is an independent unit of work. A failure while
// checking or persisting one reference is captured in that reference's
// Result and never aborts the remaining references.
package engine
