package repository

import (
	"os"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// statCountingFs counts Stat calls.
type statCountingFs struct {
	afero.Fs
	stats atomic.Int32
}

func (f *statCountingFs) Stat(name string) (os.FileInfo, error) {
	f.stats.Add(1)
	return f.Fs.Stat(name)
}

func newTestResolver(t *testing.T) (*PathResolver, afero.Fs) {
	t.Helper()

	fsys := afero.NewMemMapFs()
	require.NoError(t, fsys.MkdirAll("/data/repo/images", 0o755))
	require.NoError(t, afero.WriteFile(fsys, "/data/repo/images/foo.tif", []byte("II*\x00"), 0o644))

	r, err := NewPathResolver(fsys, "/data/repo/")
	require.NoError(t, err)
	return r, fsys
}

func TestNewPathResolver(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/file", nil, 0o644))

	_, err := NewPathResolver(fsys, "")
	assert.Error(t, err)

	_, err = NewPathResolver(fsys, "/missing")
	assert.Error(t, err)

	_, err = NewPathResolver(fsys, "/file")
	assert.Error(t, err)
}

func TestCheckPath_RejectsEscapes(t *testing.T) {
	r, _ := newTestResolver(t)

	outside := []string{
		"/",
		"/data",
		"/data/rep",
		"/data/repo2",
		"/data/repository/x",
		"/data/repo/../repo2/x",
		"../x",
		"images/../../x",
		"/etc/passwd",
	}

	for _, p := range outside {
		t.Run(p, func(t *testing.T) {
			for _, mustExist := range []bool{true, false} {
				_, err := r.CheckPath(p, mustExist)
				require.Error(t, err)
				assert.True(t, IsValidation(err))
				assert.Equal(t, ErrPathEscape, CodeOf(err))
			}
		})
	}
}

func TestCheckPath_Empty(t *testing.T) {
	r, _ := newTestResolver(t)

	for _, p := range []string{"", "   "} {
		_, err := r.CheckPath(p, false)
		assert.Equal(t, ErrInvalidArgument, CodeOf(err))
		assert.True(t, IsValidation(err))
	}
}

func TestCheckPath_RootWithoutFilesystemAccess(t *testing.T) {
	r, fsys := newTestResolver(t)
	counting := &statCountingFs{Fs: fsys}
	r.fs = counting

	for _, p := range []string{"/data/repo", "/data/repo/", "/data/repo/images/..", ".", "images/.."} {
		for _, mustExist := range []bool{true, false} {
			got, err := r.CheckPath(p, mustExist)
			require.NoError(t, err, p)
			assert.Equal(t, "/data/repo", got)
		}
	}
	assert.Equal(t, int32(0), counting.stats.Load())
}

func TestCheckPath_MustExist(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		path    string
		want    string
		missing bool
	}{
		{"/data/repo/images/foo.tif", "/data/repo/images/foo.tif", false},
		{"images/foo.tif", "/data/repo/images/foo.tif", false},
		{"/data/repo/images/", "/data/repo/images", false},
		{"images//./foo.tif", "/data/repo/images/foo.tif", false},
		{"/data/repo/images/bar.tif", "/data/repo/images/bar.tif", true},
		{"missing/dir", "/data/repo/missing/dir", true},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, err := r.CheckPath(tt.path, false)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			got, err = r.CheckPath(tt.path, true)
			if tt.missing {
				assert.True(t, IsNotFound(err))
				assert.True(t, IsValidation(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRelative(t *testing.T) {
	r, _ := newTestResolver(t)

	tests := []struct {
		abs  string
		dir  string
		name string
	}{
		{"/data/repo", "/", ""},
		{"/data/repo/a.txt", "/", "a.txt"},
		{"/data/repo/images/foo.tif", "/images/", "foo.tif"},
		{"/data/repo/a/b/c", "/a/b/", "c"},
	}

	for _, tt := range tests {
		dir, name := r.Relative(tt.abs)
		assert.Equal(t, tt.dir, dir, tt.abs)
		assert.Equal(t, tt.name, name, tt.abs)
		assert.Equal(t, tt.abs, r.Abs(dir, name))
	}
	assert.Equal(t, "/images/foo.tif", r.RecordPath("/data/repo/images/foo.tif"))
}

func TestResolver_FilesystemRoot(t *testing.T) {
	fsys := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fsys, "/a.txt", nil, 0o644))

	r, err := NewPathResolver(fsys, "/")
	require.NoError(t, err)

	got, err := r.CheckPath("/a.txt", true)
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", got)

	dir, name := r.Relative(got)
	assert.Equal(t, "/", dir)
	assert.Equal(t, "a.txt", name)
}
