package metadata

import (
	"testing"
	"time"
)

func TestNormalizeRecordDir(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"images", "/images/"},
		{"/images", "/images/"},
		{"/images/", "/images/"},
		{"/a/b/../c//", "/a/c/"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeRecordDir(tt.in); got != tt.want {
				t.Errorf("NormalizeRecordDir(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestFileRecord_FullPath(t *testing.T) {
	rec := &FileRecord{Path: "/images/", Name: "foo.tif"}
	if got := rec.FullPath(); got != "/images/foo.tif" {
		t.Errorf("FullPath() = %q", got)
	}

	root := &FileRecord{Path: "/"}
	if !root.IsRoot() {
		t.Error("record with path / and no name should be the root")
	}
	if got := root.FullPath(); got != "/" {
		t.Errorf("root FullPath() = %q", got)
	}
}

func TestPrepareNewRecord(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	clock := func() time.Time { return now }

	rec, err := PrepareNewRecord(&FileRecord{Repository: "main", Path: "images", Name: "a.png"}, clock)
	if err != nil {
		t.Fatalf("PrepareNewRecord() error = %v", err)
	}
	if rec.Path != "/images/" {
		t.Errorf("Path = %q, want /images/", rec.Path)
	}
	if rec.Checksum != UnknownChecksum {
		t.Errorf("Checksum = %q, want %q", rec.Checksum, UnknownChecksum)
	}
	if !rec.Registered.Equal(now) {
		t.Errorf("Registered = %v, want %v", rec.Registered, now)
	}

	invalid := []*FileRecord{
		nil,
		{ID: 7, Repository: "main", Name: "x"},
		{Name: "x"},
		{Repository: "main", Path: "/images/"},
	}
	for i, in := range invalid {
		if _, err := PrepareNewRecord(in, clock); err == nil {
			t.Errorf("case %d: expected error", i)
		} else if se, ok := err.(*StoreError); !ok || se.Code != ErrInvalidArgument {
			t.Errorf("case %d: expected ErrInvalidArgument, got %v", i, err)
		}
	}
}
