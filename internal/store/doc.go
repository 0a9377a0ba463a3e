// Package store provides the single local installation store: current order
// snapshots, the append-only per-order change history, and the bearer token.
//
// SQLite is used with WAL mode and a single connection. The process is the
// only writer; every mutation is scoped to one order reference and runs in
// its own transaction, so a failure while persisting one reference never
// disturbs the rows of another.
package store
