package mimetype

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromName(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     string
	}{
		{"tiff", "foo.tif", "image/tiff"},
		{"tiff upper case", "FOO.TIFF", "image/tiff"},
		{"ome tiff", "/data/repo/images/cells.ome.tif", "image/tiff"},
		{"deltavision", "stack.r3d", "application/x-deltavision"},
		{"png", "a.png", "image/png"},
		{"dotted dir", "/a.b/c.json", "application/json"},
		{"no extension", "README", ""},
		{"unknown extension", "foo.nosuchext", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FromName(tt.filename))
		})
	}
}

func TestFromContent(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	got, err := FromContent(bytes.NewReader(png))
	require.NoError(t, err)
	assert.Equal(t, "image/png", got)
}

func TestDetect(t *testing.T) {
	t.Run("name wins without opening", func(t *testing.T) {
		opened := false
		got, err := Detect("foo.tif", func() (io.ReadCloser, error) {
			opened = true
			return nil, errors.New("unexpected")
		})
		require.NoError(t, err)
		assert.Equal(t, "image/tiff", got)
		assert.False(t, opened)
	})

	t.Run("sniffs unknown names", func(t *testing.T) {
		got, err := Detect("blob", func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader([]byte("%PDF-1.4\n"))), nil
		})
		require.NoError(t, err)
		assert.Equal(t, "application/pdf", got)
	})

	t.Run("nil opener defaults", func(t *testing.T) {
		got, err := Detect("blob", nil)
		require.NoError(t, err)
		assert.Equal(t, Default, got)
	})

	t.Run("open error propagates", func(t *testing.T) {
		_, err := Detect("blob", func() (io.ReadCloser, error) {
			return nil, io.ErrUnexpectedEOF
		})
		assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	})
}
