// Package scan discovers source media under a root directory and groups it
// into per-item collections.
//
// Files are matched against a fixed extension allow-list and grouped by base
// name. The highest ranked primary candidate (audio, then video, then a YAML
// manifest) names the item; a tie at the top rank rejects the item rather than
// guessing. Manifests pull in members with unrelated names, and a legacy
// tags.txt one level above a folder named "source" is attached as well.
//
// Content hashes are computed lazily, once per file, on first use.
package scan
