package meta

import (
	"bytes"
	"encoding/json"
	"slices"
	"time"

	"mediaprep/internal/scan"
)

// Action names an artifact kind awaiting regeneration.
type Action string

const (
	ActionVideo      Action = "video"
	ActionSubtitle   Action = "subtitle"
	ActionPreview    Action = "preview"
	ActionThumbnails Action = "thumbnails"
	ActionTags       Action = "tags"
)

// AllActions lists every action in pipeline order.
var AllActions = []Action{ActionVideo, ActionSubtitle, ActionPreview, ActionThumbnails, ActionTags}

// ActionsForRole returns the artifacts that depend on a source file of role.
func ActionsForRole(role scan.Role) []Action {
	switch role {
	case scan.RoleVideo, scan.RoleAudio, scan.RoleImage:
		return []Action{ActionVideo, ActionPreview, ActionThumbnails}
	case scan.RoleSubtitle:
		return []Action{ActionVideo, ActionSubtitle, ActionPreview}
	case scan.RoleTags:
		return []Action{ActionTags}
	default:
		return nil
	}
}

// FileScan is the fingerprint of one source file at its last scan.
type FileScan struct {
	MTime int64  `json:"mtime"`
	Hash  string `json:"hash"`
}

// SourceDetails holds probed technical metadata of the item's sources.
type SourceDetails struct {
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
	Codec    string  `json:"codec,omitempty"`
}

// Record is the persisted state of one item.
type Record struct {
	Name          string              `json:"-"`
	Scan          map[string]FileScan `json:"scan"`
	Actions       []Action            `json:"actions"`
	SourceHash    string              `json:"sourceHash,omitempty"`
	SourceDetails SourceDetails       `json:"sourceDetails,omitzero"`

	snapshot []byte
	loadedAt time.Time
}

func newRecord(name string) *Record {
	return &Record{Name: name, Scan: map[string]FileScan{}, Actions: []Action{}}
}

func (r *Record) normalize() {
	if r.Scan == nil {
		r.Scan = map[string]FileScan{}
	}
	if r.Actions == nil {
		r.Actions = []Action{}
	}
}

func (r *Record) encode() ([]byte, error) {
	r.normalize()
	return json.MarshalIndent(r, "", "  ")
}

// arm records the current content and load time as the baseline for Changed
// and for stale-write detection.
func (r *Record) arm(at time.Time) {
	r.snapshot, _ = r.encode()
	r.loadedAt = at
}

// Changed reports whether the record differs from what was loaded or last saved.
func (r *Record) Changed() bool {
	current, err := r.encode()
	if err != nil {
		return true
	}
	return !bytes.Equal(current, r.snapshot)
}

// LoadedAt returns the baseline time used for stale-write detection.
func (r *Record) LoadedAt() time.Time {
	return r.loadedAt
}

// HasAction reports whether a is pending.
func (r *Record) HasAction(a Action) bool {
	return slices.Contains(r.Actions, a)
}

// AddActions appends actions not already pending, keeping first-seen order.
func (r *Record) AddActions(actions ...Action) {
	for _, a := range actions {
		if !r.HasAction(a) {
			r.Actions = append(r.Actions, a)
		}
	}
}

// ClearActions empties the pending set.
func (r *Record) ClearActions() {
	r.Actions = []Action{}
}

// AssociateFileCollection diffs the collection against stored fingerprints.
// Files whose mtime is unchanged are skipped without hashing. A changed mtime
// triggers a content hash; only a changed hash flags dependent actions.
// It returns the names of files whose content changed.
func (r *Record) AssociateFileCollection(c *scan.Collection) ([]string, error) {
	r.normalize()
	var changed []string
	for _, f := range c.Files {
		current := r.Scan[f.Name]
		mtime := f.ModTime.Unix()
		if _, seen := r.Scan[f.Name]; seen && current.MTime == mtime {
			continue
		}
		hash, err := f.Hash()
		if err != nil {
			return changed, err
		}
		current.MTime = mtime
		if current.Hash == hash {
			r.Scan[f.Name] = current
			continue
		}
		current.Hash = hash
		r.Scan[f.Name] = current
		r.AddActions(ActionsForRole(f.Role())...)
		changed = append(changed, f.Name)
	}
	return changed, nil
}

// Clone returns a deep copy that shares the load baseline.
func (r *Record) Clone() *Record {
	out := *r
	out.Scan = make(map[string]FileScan, len(r.Scan))
	for k, v := range r.Scan {
		out.Scan[k] = v
	}
	out.Actions = slices.Clone(r.Actions)
	out.snapshot = slices.Clone(r.snapshot)
	return &out
}
