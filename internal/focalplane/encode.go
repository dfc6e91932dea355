package focalplane

import (
	"image"
	"image/png"
	"io"
	"math"

	"github.com/rotisserie/eris"
	"golang.org/x/image/tiff"

	"github.com/sells-group/rayven/internal/model"
)

// Stretch maps flux to display intensity.
type Stretch string

const (
	StretchLinear Stretch = "linear"
	StretchLog    Stretch = "log"
)

// ParseStretch accepts "linear" or "log"; empty means linear.
func ParseStretch(s string) (Stretch, error) {
	switch Stretch(s) {
	case "", StretchLinear:
		return StretchLinear, nil
	case StretchLog:
		return StretchLog, nil
	default:
		return "", eris.Wrapf(model.ErrInvalidValue, "focalplane: stretch must be 'linear' or 'log', currently: %q", s)
	}
}

// Gray16 renders img as 16-bit grayscale, scaled so the brightest pixel is
// white. Negative flux renders black.
func Gray16(img *model.BinnedImage, stretch Stretch) *image.Gray16 {
	rows, cols := img.Dims()
	out := image.NewGray16(image.Rect(0, 0, cols, rows))
	peak := img.Max()
	if peak <= 0 {
		return out
	}

	norm := func(v float64) float64 { return v / peak }
	if stretch == StretchLog {
		// log1p over a 1e4 dynamic range.
		const k = 1e4
		norm = func(v float64) float64 { return math.Log1p(k*v/peak) / math.Log1p(k) }
	}

	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			v := img.At(r, c)
			if v <= 0 {
				continue
			}
			i := r*out.Stride + c*2
			p := uint16(math.Round(math.Min(norm(v), 1) * math.MaxUint16))
			out.Pix[i] = uint8(p >> 8)
			out.Pix[i+1] = uint8(p)
		}
	}
	return out
}

// EncodeTIFF writes img as a deflate-compressed 16-bit TIFF.
func EncodeTIFF(w io.Writer, img *model.BinnedImage, stretch Stretch) error {
	if err := tiff.Encode(w, Gray16(img, stretch), &tiff.Options{Compression: tiff.Deflate}); err != nil {
		return eris.Wrap(err, "focalplane: encode tiff")
	}
	return nil
}

// EncodePNG writes img as a 16-bit PNG.
func EncodePNG(w io.Writer, img *model.BinnedImage, stretch Stretch) error {
	if err := png.Encode(w, Gray16(img, stretch)); err != nil {
		return eris.Wrap(err, "focalplane: encode png")
	}
	return nil
}
