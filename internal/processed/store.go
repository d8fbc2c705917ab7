package processed

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"mediaprep/internal/faults"
	"mediaprep/internal/fileutil"
)

// Kind is an artifact type.
type Kind string

const (
	KindVideo    Kind = "video"
	KindPreview  Kind = "preview"
	KindSubtitle Kind = "srt"
	KindImage    Kind = "image"
	KindTags     Kind = "tags"
)

// ThumbnailCount is the fixed number of images extracted per item.
const ThumbnailCount = 4

type kindSpec struct {
	ext  string
	salt string
}

var kinds = map[Kind]kindSpec{
	KindVideo:    {ext: "mp4"},
	KindPreview:  {ext: "mp4"},
	KindSubtitle: {ext: "srt"},
	KindImage:    {ext: "jpg"},
	KindTags:     {ext: "txt"},
}

// Store resolves artifacts under a single flat directory.
type Store struct {
	dir string
}

// NewStore creates dir if needed. Failing to create it is a storage error.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "processed", "create root", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the artifact directory.
func (s *Store) Dir() string {
	return s.dir
}

// File returns the artifact handle for a kind without an ordinal.
func (s *Store) File(sourceHash string, kind Kind) File {
	return s.resolve(sourceHash, kind, "")
}

// Ordinal returns the artifact handle for the n-th file of a multi-file kind.
func (s *Store) Ordinal(sourceHash string, kind Kind, n int) File {
	return s.resolve(sourceHash, kind, strconv.Itoa(n))
}

// Thumbnails returns the handles of all thumbnail images in order.
func (s *Store) Thumbnails(sourceHash string) []File {
	out := make([]File, 0, ThumbnailCount)
	for i := 0; i < ThumbnailCount; i++ {
		out = append(out, s.Ordinal(sourceHash, KindImage, i))
	}
	return out
}

// Required returns the artifacts a downstream importer needs before it treats
// an item as complete: primary video, preview, subtitle track and thumbnails.
func (s *Store) Required(sourceHash string) []File {
	if sourceHash == "" {
		return nil
	}
	out := []File{
		s.File(sourceHash, KindVideo),
		s.File(sourceHash, KindPreview),
		s.File(sourceHash, KindSubtitle),
	}
	return append(out, s.Thumbnails(sourceHash)...)
}

// Expected is Required plus the tag copy when the item has a tag source.
func (s *Store) Expected(sourceHash string, withTags bool) []File {
	if !withTags {
		return s.Required(sourceHash)
	}
	return s.AllFor(sourceHash)
}

// AllFor returns every artifact an item may own, including the optional tag copy.
func (s *Store) AllFor(sourceHash string) []File {
	if sourceHash == "" {
		return nil
	}
	return append(s.Required(sourceHash), s.File(sourceHash, KindTags))
}

// Missing filters files down to those not present on disk.
func Missing(files []File) []File {
	var out []File
	for _, f := range files {
		if !f.Exists() {
			out = append(out, f)
		}
	}
	return out
}

func (s *Store) resolve(sourceHash string, kind Kind, ordinal string) File {
	spec, ok := kinds[kind]
	if !ok {
		spec = kindSpec{ext: "bin"}
	}
	hash := fileutil.HashSorted(sourceHash, string(kind), spec.salt, ordinal)
	return File{
		Kind:    kind,
		Ordinal: ordinal,
		Hash:    hash,
		Ext:     spec.ext,
		Path:    filepath.Join(s.dir, hash+"."+spec.ext),
	}
}

// Unreferenced lists files in the store whose name is not in keep. Hidden
// files and directories are ignored.
func (s *Store) Unreferenced(keep map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, faults.Wrap(faults.ErrStorage, "processed", "list", s.dir, err)
	}
	var out []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") {
			continue
		}
		path := filepath.Join(s.dir, name)
		if _, ok := keep[path]; ok {
			continue
		}
		out = append(out, path)
	}
	sort.Strings(out)
	return out, nil
}

// File is a handle to one content-addressed artifact.
type File struct {
	Kind    Kind
	Ordinal string
	Hash    string
	Ext     string
	Path    string
}

// Name returns the artifact's file name.
func (f File) Name() string {
	return filepath.Base(f.Path)
}

// Exists reports whether the artifact is on disk. The answer is advisory.
func (f File) Exists() bool {
	info, err := os.Stat(f.Path)
	return err == nil && info.Mode().IsRegular()
}

// Move publishes a finished file by relocating it onto the artifact path.
func (f File) Move(src string) error {
	if err := fileutil.MoveFile(src, f.Path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return faults.Wrap(faults.ErrMissingSource, "processed", "publish", fmt.Sprintf("%s from %s", f.Name(), src), err)
		}
		return faults.Wrap(faults.ErrStorage, "processed", "publish", f.Name(), err)
	}
	return nil
}

// Copy publishes a verbatim copy of src, leaving src in place.
func (f File) Copy(src string) error {
	if err := fileutil.CopyFileAtomic(src, f.Path, 0o644); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return faults.Wrap(faults.ErrMissingSource, "processed", "copy", fmt.Sprintf("%s from %s", f.Name(), src), err)
		}
		return faults.Wrap(faults.ErrStorage, "processed", "copy", f.Name(), err)
	}
	return nil
}
