package stream

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"io"
	"sync"

	// Registered image decoders
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/spf13/afero"
)

// Dimensions is the decoded image header of a pixel stream.
type Dimensions struct {
	Width      int    `json:"width"`
	Height     int    `json:"height"`
	Format     string `json:"format"`
	ColorModel string `json:"color_model"`
}

// DefaultMaxPixels bounds the images a pixel stream decodes in full
// (64 megapixels, 256 MiB as RGBA).
const DefaultMaxPixels int64 = 1 << 26

// PixelStream serves image data of one repository file.
//
// The header is decoded on the first Dimensions call and the full image on
// the first Region call; both are cached for the servant's lifetime.
type PixelStream struct {
	mu        sync.Mutex
	file      afero.File
	path      string
	maxPixels int64
	closed    bool

	dims *Dimensions
	img  *image.RGBA
}

// OpenPixels opens an existing image file read-only. Region refuses images
// with more than maxPixels pixels; maxPixels <= 0 uses DefaultMaxPixels.
func OpenPixels(fs afero.Fs, path string, maxPixels int64) (*PixelStream, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pixels %s: %w", path, err)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}
	return &PixelStream{file: f, path: path, maxPixels: maxPixels}, nil
}

func (s *PixelStream) Kind() Kind   { return KindPixels }
func (s *PixelStream) Path() string { return s.path }

func (s *PixelStream) Info() (Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Info{}, ErrClosed
	}
	fi, err := s.file.Stat()
	if err != nil {
		return Info{}, err
	}
	return Info{
		Path:  s.path,
		Size:  fi.Size(),
		Mtime: fi.ModTime(),
		Mode:  ModeRead,
		Kind:  KindPixels,
	}, nil
}

// Dimensions decodes the image header.
func (s *PixelStream) Dimensions() (Dimensions, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Dimensions{}, ErrClosed
	}
	return s.dimensionsLocked()
}

func (s *PixelStream) dimensionsLocked() (Dimensions, error) {
	if s.dims != nil {
		return *s.dims, nil
	}

	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return Dimensions{}, err
	}
	cfg, format, err := image.DecodeConfig(s.file)
	if err != nil {
		return Dimensions{}, fmt.Errorf("decode image header %s: %w", s.path, err)
	}

	s.dims = &Dimensions{
		Width:      cfg.Width,
		Height:     cfg.Height,
		Format:     format,
		ColorModel: colorModelName(cfg.ColorModel),
	}
	return *s.dims, nil
}

// CheckRegion reports whether the rectangle (x, y, w, h) is non-empty and lies
// within an image of the given dimensions. The comparisons do not overflow.
func CheckRegion(dims Dimensions, x, y, w, h int) error {
	if x < 0 || y < 0 || w <= 0 || h <= 0 ||
		x >= dims.Width || y >= dims.Height ||
		w > dims.Width-x || h > dims.Height-y {
		return fmt.Errorf("%w: (%d,%d %dx%d) outside %dx%d image",
			ErrInvalidRegion, x, y, w, h, dims.Width, dims.Height)
	}
	return nil
}

// Region returns the pixels of the rectangle (x, y, w, h) as 8-bit RGBA,
// row-major. The rectangle must lie within the image, and the image must not
// exceed the stream's pixel budget; both are checked against the header
// before anything is decoded.
func (s *PixelStream) Region(x, y, w, h int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}
	dims, err := s.dimensionsLocked()
	if err != nil {
		return nil, err
	}
	if err := CheckRegion(dims, x, y, w, h); err != nil {
		return nil, err
	}
	if int64(dims.Width) > s.maxPixels/int64(dims.Height) {
		return nil, fmt.Errorf("%w: %s is %dx%d, limit is %d pixels",
			ErrImageTooLarge, s.path, dims.Width, dims.Height, s.maxPixels)
	}
	if err := s.decodeLocked(); err != nil {
		return nil, err
	}

	rect := image.Rect(x, y, x+w, y+h)
	if !rect.In(s.img.Bounds()) {
		return nil, fmt.Errorf("%w: %v outside decoded bounds %v", ErrInvalidRegion, rect, s.img.Bounds())
	}

	out := make([]byte, 0, w*h*4)
	for row := rect.Min.Y; row < rect.Max.Y; row++ {
		start := s.img.PixOffset(rect.Min.X, row)
		out = append(out, s.img.Pix[start:start+w*4]...)
	}
	return out, nil
}

func (s *PixelStream) decodeLocked() error {
	if s.img != nil {
		return nil
	}
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	src, _, err := image.Decode(s.file)
	if err != nil {
		return fmt.Errorf("decode image %s: %w", s.path, err)
	}

	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	s.img = rgba
	return nil
}

func (s *PixelStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.img = nil
	return s.file.Close()
}

func colorModelName(m color.Model) string {
	if _, ok := m.(color.Palette); ok {
		return "paletted"
	}
	switch m {
	case color.RGBAModel:
		return "rgba"
	case color.RGBA64Model:
		return "rgba64"
	case color.NRGBAModel:
		return "nrgba"
	case color.NRGBA64Model:
		return "nrgba64"
	case color.GrayModel:
		return "gray"
	case color.Gray16Model:
		return "gray16"
	case color.YCbCrModel:
		return "ycbcr"
	case color.CMYKModel:
		return "cmyk"
	case color.AlphaModel:
		return "alpha"
	case color.Alpha16Model:
		return "alpha16"
	default:
		return "unknown"
	}
}
