package scan

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"mediaprep/internal/fileutil"
)

// Role classifies a member file by what it contributes to an item.
type Role string

const (
	RoleAudio    Role = "audio"
	RoleVideo    Role = "video"
	RoleImage    Role = "image"
	RoleSubtitle Role = "subtitle"
	RoleTags     Role = "tags"
	RoleManifest Role = "manifest"
	RoleOther    Role = "other"
)

// Extension lists are ordered lowest to highest rank.
var (
	AudioExts    = []string{"mp2", "ogg", "mp3", "flac"}
	VideoExts    = []string{"avi", "mpg", "mkv", "rm", "ogm", "mp4"}
	ManifestExts = []string{"yml", "yaml"}
	SubtitleExts = []string{"srt", "ssa"}
	TagExts      = []string{"txt"}
	ImageExts    = []string{"bmp", "png", "jpeg", "jpg"}
)

var roleExts = map[Role][]string{
	RoleAudio:    AudioExts,
	RoleVideo:    VideoExts,
	RoleManifest: ManifestExts,
	RoleSubtitle: SubtitleExts,
	RoleTags:     TagExts,
	RoleImage:    ImageExts,
}

// primaryTiers lists the roles that may name an item, lowest tier first.
var primaryTiers = []Role{RoleAudio, RoleVideo, RoleManifest}

var hashFile = fileutil.HashFile

// SourceFile is one discovered file. Everything except the content hash is
// fixed at scan time.
type SourceFile struct {
	Path    string
	Name    string
	Base    string
	Ext     string
	Folder  string
	ModTime time.Time
	Size    int64

	hashOnce sync.Once
	hash     string
	hashErr  error
}

func newSourceFile(path string, info os.FileInfo) *SourceFile {
	name := filepath.Base(path)
	ext := filepath.Ext(name)
	return &SourceFile{
		Path:    path,
		Name:    name,
		Base:    strings.TrimSuffix(name, ext),
		Ext:     strings.ToLower(strings.TrimPrefix(ext, ".")),
		Folder:  filepath.Dir(path),
		ModTime: info.ModTime(),
		Size:    info.Size(),
	}
}

// Role reports the file's role from its extension.
func (f *SourceFile) Role() Role {
	return RoleForExt(f.Ext)
}

// Hash returns the SHA-256 content hash, reading the file on first call only.
func (f *SourceFile) Hash() (string, error) {
	f.hashOnce.Do(func() {
		f.hash, f.hashErr = hashFile(f.Path)
	})
	return f.hash, f.hashErr
}

// RoleForExt maps a lower-case extension without the dot to its role.
func RoleForExt(ext string) Role {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for role, exts := range roleExts {
		if slices.Contains(exts, ext) {
			return role
		}
	}
	return RoleOther
}

// rankWithin orders files of one role; higher is preferred.
func rankWithin(role Role, ext string) int {
	return slices.Index(roleExts[role], ext)
}

func primaryTier(f *SourceFile) int {
	return slices.Index(primaryTiers, f.Role())
}

func allowed(ext string) bool {
	return RoleForExt(ext) != RoleOther
}
