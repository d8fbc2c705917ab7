// Package ledger records batch run history in SQLite.
//
// Every batch inserts a run row when it starts and closes it when it ends;
// each encoded item adds a result row with its outcome, failing step and
// error kind. The status command reads the latest result per item and the
// most recent runs.
//
// The ledger is an audit trail, not a source of truth: pending work is always
// derived from meta sidecars and artifact existence. Schema changes bump the
// version in schema.go; users delete the database to adopt the new schema.
package ledger
