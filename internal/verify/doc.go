// Package verify checks the meta and processed trees against each other and
// against the source tree.
//
// Check mirrors what a downstream importer does before trusting an item: every
// record with a source hash must have its primary video, preview, subtitle
// track and thumbnails on disk, plus the tag copy when the item has a tag
// source. Records with missing artifacts are re-flagged with the matching
// pending actions so the next batch regenerates them.
//
// Prune removes processed files that no record's source hash derives. Items
// with pending work also keep the files of their current source content.
// Unmatched lists sidecars whose item has disappeared from the source tree.
// Check and Prune take the batch lock.
package verify
