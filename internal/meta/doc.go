// Package meta persists one JSON sidecar per media item.
//
// A Record holds the scan fingerprints of the item's source files, the set of
// pending actions, the source hash of the last successful encode and probed
// source details. Records remember the bytes they were loaded from, so Save
// only writes when something changed, and refuses to overwrite a sidecar
// modified by someone else after the load.
package meta
