// Package processed addresses encoded artifacts by content.
//
// Every artifact path is {hash}.{ext} in a flat directory, where hash is an
// order-independent digest of the item's source hash, the artifact kind, a
// per-kind salt and an optional ordinal. Membership is proven by recomputing
// the path and checking existence; there is no index. Artifacts are only ever
// published by moving a finished file into place.
package processed
