// Package ledger persists dispatch decisions.
//
// BoltStore keeps one JSON record per decision in the "dispatches" bucket,
// keyed by UTC timestamp and order id so that keys sort chronologically.
// Memory is an in-process Store for tests and ledger-less runs.
package ledger
