// Package mimetype determines content types for repository files.
//
// Detection is two-staged: a filename heuristic first (a table of imaging
// formats the platform's mime database does not know, then the system mime
// database), falling back to content sniffing when the name says nothing.
package mimetype

import (
	"io"
	"mime"
	"path/filepath"
	"strings"

	sniff "github.com/gabriel-vasile/mimetype"
)

// Default is returned when neither the name nor the content identify a type.
const Default = "application/octet-stream"

// Directory is the type reported for directories.
const Directory = "Directory"

// extensions maps lowercase extensions (including compound ones) to types.
// Checked before the system database so results do not vary between hosts.
var extensions = map[string]string{
	".ome.tiff": "image/tiff",
	".ome.tif":  "image/tiff",
	".ome.xml":  "application/xml",
	".tif":      "image/tiff",
	".tiff":     "image/tiff",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".bmp":      "image/bmp",
	".dv":       "application/x-deltavision",
	".r3d":      "application/x-deltavision",
	".lsm":      "application/x-zeiss-lsm",
	".czi":      "application/x-zeiss-czi",
	".zvi":      "application/x-zeiss-zvi",
	".nd2":      "application/x-nikon-nd2",
	".lif":      "application/x-leica-lif",
	".ims":      "application/x-imaris",
	".ics":      "application/x-ics",
	".ids":      "application/x-ics",
	".dcm":      "application/dicom",
	".fits":     "application/fits",
	".txt":      "text/plain",
	".csv":      "text/csv",
	".xml":      "application/xml",
	".json":     "application/json",
	".pdf":      "application/pdf",
	".zip":      "application/zip",
}

// FromName guesses the type from a file name. Returns "" when unknown.
func FromName(name string) string {
	lower := strings.ToLower(filepath.Base(name))

	// Compound extensions first ("foo.ome.tif")
	if i := strings.Index(lower, "."); i >= 0 {
		for ext := lower[i:]; ext != ""; {
			if t, ok := extensions[ext]; ok {
				return t
			}
			next := strings.Index(ext[1:], ".")
			if next < 0 {
				break
			}
			ext = ext[next+1:]
		}
	}

	ext := filepath.Ext(lower)
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return stripParams(t)
	}
	return ""
}

// FromContent sniffs the type from the first bytes of r.
func FromContent(r io.Reader) (string, error) {
	m, err := sniff.DetectReader(r)
	if err != nil {
		return "", err
	}
	return stripParams(m.String()), nil
}

// Detect combines FromName and FromContent. open is only called when the name
// is inconclusive; a nil open skips sniffing.
func Detect(name string, open func() (io.ReadCloser, error)) (string, error) {
	if t := FromName(name); t != "" {
		return t, nil
	}
	if open == nil {
		return Default, nil
	}

	rc, err := open()
	if err != nil {
		return "", err
	}
	defer func() { _ = rc.Close() }()

	t, err := FromContent(rc)
	if err != nil {
		return "", err
	}
	if t == "" {
		return Default, nil
	}
	return t, nil
}

func stripParams(t string) string {
	if i := strings.IndexByte(t, ';'); i >= 0 {
		t = t[:i]
	}
	return strings.TrimSpace(t)
}
