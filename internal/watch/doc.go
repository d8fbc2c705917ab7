// Package watch keeps the processed tree in step with the source tree by
// running a batch at startup and again after every burst of filesystem
// changes under source_dir.
//
// Changes are debounced: a batch starts once the tree has been quiet for
// watch.debounce_seconds, so a large copy into the source tree triggers one
// batch rather than one per file. New subdirectories are watched as they
// appear. Batches never overlap; events that arrive while a batch runs
// schedule the next one.
package watch
