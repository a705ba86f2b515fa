package metadata

import (
	"path"
	"strings"
	"time"
)

// UnknownChecksum is stored for records whose content hash has not been computed.
const UnknownChecksum = "UNKNOWN"

// DirectoryMimeType is the mimetype recorded for directory entries.
const DirectoryMimeType = "Directory"

// FileRecord is the persisted description of a file known to a repository.
//
// Path is the directory containing the file, relative to the repository root,
// always starting and ending with "/" (e.g. "/images/"). Name is the final
// path element ("foo.tif"). The repository root itself is recorded with
// Path "/" and an empty Name.
//
// Records are immutable once an ID has been assigned: stores never update an
// existing record in place.
type FileRecord struct {
	// ID is assigned by the store on Put. Zero means "not persisted".
	ID int64 `json:"id"`

	// Repository is the name of the owning repository.
	Repository string `json:"repository"`

	Name string `json:"name"`
	Path string `json:"path"`

	Size     int64     `json:"size"`
	Mtime    time.Time `json:"mtime"`
	MimeType string    `json:"mimetype"`
	Checksum string    `json:"checksum"`

	// Registered is the time the record was persisted.
	Registered time.Time `json:"registered"`
}

// FullPath returns the record's location relative to the repository root,
// e.g. "/images/foo.tif". The root record yields "/".
func (r *FileRecord) FullPath() string {
	return JoinRecordPath(r.Path, r.Name)
}

// IsRoot reports whether the record describes the repository root.
func (r *FileRecord) IsRoot() bool {
	return r.Path == "/" && r.Name == ""
}

// Clone returns a copy safe to hand to callers.
func (r *FileRecord) Clone() *FileRecord {
	if r == nil {
		return nil
	}
	c := *r
	return &c
}

// JoinRecordPath joins a record directory and name into a root-relative path.
func JoinRecordPath(dir, name string) string {
	if name == "" {
		return NormalizeRecordDir(dir)
	}
	return path.Join(NormalizeRecordDir(dir), name)
}

// NormalizeRecordDir returns dir in record form: slash separated, with a
// leading and trailing "/".
func NormalizeRecordDir(dir string) string {
	dir = path.Clean("/" + strings.TrimSpace(dir))
	if dir == "/" {
		return "/"
	}
	return dir + "/"
}
