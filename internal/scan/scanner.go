package scan

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"mediaprep/internal/faults"
	"mediaprep/internal/fileutil"
	"mediaprep/internal/logging"
)

// ignorePattern matches leftovers of the legacy processed layout and dotfiles.
var ignorePattern = regexp.MustCompile(`^0\.mp4$|^0_generic\.mp4$|\.bak$|^\.|^0_video\.`)

const (
	legacySourceFolder = "source"
	legacyTagsFile     = "tags.txt"
)

// Collection is every source file belonging to one media item.
type Collection struct {
	Name    string
	Primary *SourceFile
	Files   []*SourceFile
}

// File returns the best member for role, or nil when the item has none.
// Higher ranked extensions win; ties go to the first path.
func (c *Collection) File(role Role) *SourceFile {
	var best *SourceFile
	for _, f := range c.Files {
		if f.Role() != role {
			continue
		}
		if best == nil || rankWithin(role, f.Ext) > rankWithin(role, best.Ext) {
			best = f
		}
	}
	return best
}

// hashRoles are the member roles whose content feeds the source hash.
var hashRoles = []Role{RoleVideo, RoleAudio, RoleImage, RoleSubtitle, RoleTags}

// SourceHash digests the content hashes of the chosen video, audio, image,
// subtitle and tag members. The manifest does not contribute.
func (c *Collection) SourceHash() (string, error) {
	hashes := make([]string, 0, len(hashRoles))
	for _, role := range hashRoles {
		f := c.File(role)
		if f == nil {
			continue
		}
		h, err := f.Hash()
		if err != nil {
			return "", fmt.Errorf("hash %s: %w", f.Name, err)
		}
		hashes = append(hashes, h)
	}
	return fileutil.HashSorted(hashes...), nil
}

// Rejection records an item excluded from the scan.
type Rejection struct {
	Name  string
	Paths []string
	Err   error
}

// Result is the outcome of one scan.
type Result struct {
	Collections map[string]*Collection
	Rejected    []Rejection
}

// Names returns collection names in sorted order.
func (r Result) Names() []string {
	names := make([]string, 0, len(r.Collections))
	for name := range r.Collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scanner walks a source tree.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner constructs a scanner that reports rejected items to logger.
func NewScanner(logger *slog.Logger) *Scanner {
	return &Scanner{logger: logging.NewComponentLogger(logger, "scan")}
}

type index struct {
	files    []*SourceFile
	byPath   map[string]*SourceFile
	byFolder map[string][]*SourceFile
}

// Scan enumerates root and returns one collection per item name.
func (s *Scanner) Scan(ctx context.Context, root string) (Result, error) {
	idx, err := s.walk(ctx, root)
	if err != nil {
		return Result{}, err
	}

	result := Result{Collections: make(map[string]*Collection)}
	primaries, rejected := s.locatePrimaries(idx)
	result.Rejected = append(result.Rejected, rejected...)

	for _, primary := range primaries {
		coll, err := s.collect(idx, primary)
		if err != nil {
			logging.WarnWithContext(s.logger, "item excluded from scan", "scan_item_failed",
				logging.String(logging.FieldItem, primary.Base),
				logging.String("path", primary.Path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "fix the manifest so every listed file exists"),
				logging.String(logging.FieldImpact, "item will not be encoded"),
			)
			result.Rejected = append(result.Rejected, Rejection{Name: primary.Base, Paths: []string{primary.Path}, Err: err})
			continue
		}
		result.Collections[coll.Name] = coll
	}
	sort.Slice(result.Rejected, func(i, j int) bool { return result.Rejected[i].Name < result.Rejected[j].Name })

	s.logger.Debug("scan complete",
		logging.String("root", root),
		logging.Int("files", len(idx.files)),
		logging.Int("items", len(result.Collections)),
		logging.Int("rejected", len(result.Rejected)),
	)
	return result, nil
}

func (s *Scanner) walk(ctx context.Context, root string) (*index, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, faults.Wrap(faults.ErrMissingSource, "scan", "open root", root, err)
	}
	if !info.IsDir() {
		return nil, faults.Wrap(faults.ErrMissingSource, "scan", "open root", root+" is not a directory", nil)
	}

	idx := &index{
		byPath:   make(map[string]*SourceFile),
		byFolder: make(map[string][]*SourceFile),
	}
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			s.logger.Warn("skipping unreadable path",
				logging.String("path", path),
				logging.Error(walkErr),
				logging.String(logging.FieldEventType, "scan_path_unreadable"),
			)
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || ignorePattern.MatchString(name) {
			return nil
		}
		if !allowed(filepath.Ext(name)) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		f := newSourceFile(path, info)
		idx.files = append(idx.files, f)
		idx.byPath[path] = f
		idx.byFolder[f.Folder] = append(idx.byFolder[f.Folder], f)
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		return nil, faults.Wrap(faults.ErrMissingSource, "scan", "walk", root, err)
	}
	return idx, nil
}

// locatePrimaries picks one primary per base name. When several files share
// the top tier for a name the item is rejected.
func (s *Scanner) locatePrimaries(idx *index) ([]*SourceFile, []Rejection) {
	candidates := make(map[string][]*SourceFile)
	for _, f := range idx.files {
		if primaryTier(f) < 0 {
			continue
		}
		candidates[f.Base] = append(candidates[f.Base], f)
	}

	names := make([]string, 0, len(candidates))
	for name := range candidates {
		names = append(names, name)
	}
	sort.Strings(names)

	var (
		primaries []*SourceFile
		rejected  []Rejection
	)
	for _, name := range names {
		top := -1
		var winners []*SourceFile
		for _, f := range candidates[name] {
			switch tier := primaryTier(f); {
			case tier > top:
				top = tier
				winners = []*SourceFile{f}
			case tier == top:
				winners = append(winners, f)
			}
		}
		if len(winners) == 1 {
			primaries = append(primaries, winners[0])
			continue
		}
		paths := make([]string, 0, len(winners))
		for _, f := range winners {
			paths = append(paths, f.Path)
		}
		err := faults.Wrap(faults.ErrScanAmbiguity, "scan", "select primary",
			fmt.Sprintf("%d candidates: %s", len(paths), strings.Join(paths, ", ")), nil)
		logging.WarnWithContext(s.logger, "multiple primary files; refusing to process item", "scan_ambiguous_primary",
			logging.String(logging.FieldItem, name),
			logging.Strings("paths", paths),
			logging.String(logging.FieldErrorHint, "rename or remove all but one primary file"),
			logging.String(logging.FieldImpact, "item will not be encoded"),
		)
		rejected = append(rejected, Rejection{Name: name, Paths: paths, Err: err})
	}
	return primaries, rejected
}

func (s *Scanner) collect(idx *index, primary *SourceFile) (*Collection, error) {
	members := map[string]*SourceFile{}
	for _, f := range idx.byFolder[primary.Folder] {
		if f.Base == primary.Base {
			members[f.Path] = f
		}
	}

	if primary.Role() == RoleManifest {
		names, err := readManifest(primary.Path)
		if err != nil {
			return nil, err
		}
		for _, name := range names {
			path := filepath.Clean(filepath.Join(primary.Folder, name))
			f, err := lookup(idx, path)
			if err != nil {
				return nil, faults.Wrap(faults.ErrParse, "scan", "resolve manifest member",
					fmt.Sprintf("%s lists %q", primary.Name, name), err)
			}
			members[f.Path] = f
		}
	}

	if filepath.Base(primary.Folder) == legacySourceFolder {
		tagsPath := filepath.Join(filepath.Dir(primary.Folder), legacyTagsFile)
		if f, err := lookup(idx, tagsPath); err == nil {
			members[f.Path] = f
		}
	}

	files := make([]*SourceFile, 0, len(members))
	for _, f := range members {
		files = append(files, f)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	return &Collection{Name: primary.Base, Primary: primary, Files: files}, nil
}

// lookup prefers the scanned entry so lazy hashes are shared, and falls back
// to stat for files outside the allow-list or scan root.
func lookup(idx *index, path string) (*SourceFile, error) {
	if f, ok := idx.byPath[path]; ok {
		return f, nil
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return newSourceFile(path, info), nil
}
