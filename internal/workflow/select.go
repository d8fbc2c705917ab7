package workflow

import (
	"sort"

	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
)

// filterNames returns the scanned items to consider. With no requested names
// every item qualifies in sorted order; otherwise requested names keep their
// order and names absent from the scan are returned as unknown.
func filterNames(scanned scan.Result, requested []string) (candidates, unknown []string) {
	if len(requested) == 0 {
		return scanned.Names(), nil
	}
	seen := make(map[string]struct{}, len(requested))
	for _, name := range requested {
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if _, ok := scanned.Collections[name]; ok {
			candidates = append(candidates, name)
		} else {
			unknown = append(unknown, name)
		}
	}
	return candidates, unknown
}

// NeedsWork reports whether rec has anything left to produce: pending
// actions, no source hash yet, or an expected artifact missing from the
// processed store. The tag copy is expected only when c has a tag source;
// a nil c checks the required artifacts alone.
func NeedsWork(rec *meta.Record, c *scan.Collection, store *processed.Store) bool {
	if rec == nil {
		return false
	}
	if len(rec.Actions) > 0 || rec.SourceHash == "" {
		return true
	}
	withTags := c != nil && c.File(scan.RoleTags) != nil
	return len(processed.Missing(store.Expected(rec.SourceHash, withTags))) > 0
}

func selectPending(candidates []string, scanned scan.Result, records map[string]*meta.Record, store *processed.Store) []string {
	var pending []string
	for _, name := range candidates {
		rec, ok := records[name]
		if !ok {
			continue
		}
		if NeedsWork(rec, scanned.Collections[name], store) {
			pending = append(pending, name)
		}
	}
	return pending
}

func sortNames(names []string) {
	sort.Strings(names)
}
