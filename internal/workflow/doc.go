// Package workflow drives one batch: scan the source tree, diff every item
// against its meta sidecar, select items with pending work and encode them on
// a bounded worker pool.
//
// A Runner holds an exclusive lock on meta_dir for the whole batch so two
// processes never encode the same tree. Item failures stay local: the item
// keeps its pending actions and the batch moves on. Only storage faults
// (faults.ErrStorage) abort the run.
//
// Each run gets a UUID that tags its log lines, its ledger rows and its
// notifications. The Summary returned by Run is what the CLI prints.
package workflow
