package duckdb

import (
	"os"
	"time"
)

// FileFingerprint holds stat-based identity for a file.
type FileFingerprint struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// StatFile creates a FileFingerprint from an on-disk file.
func StatFile(path string) (FileFingerprint, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileFingerprint{}, err
	}
	return FileFingerprint{
		Path:    path,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}, nil
}

// StatFiles fingerprints every path, stopping at the first missing one.
func StatFiles(paths ...string) ([]FileFingerprint, error) {
	out := make([]FileFingerprint, 0, len(paths))
	for _, p := range paths {
		fp, err := StatFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, fp)
	}
	return out, nil
}

// Same reports whether two fingerprints describe the same file contents.
// Modification times are compared to the microsecond, the precision the
// store keeps.
func (f FileFingerprint) Same(o FileFingerprint) bool {
	return f.Size == o.Size && f.ModTime.UTC().Truncate(time.Microsecond).Equal(o.ModTime.UTC().Truncate(time.Microsecond))
}
