package focalplane

import (
	"image"
	"image/color"
	"image/jpeg"
	"io"

	"github.com/rotisserie/eris"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/sells-group/rayven/internal/model"
)

const captionHeight = 20

// RenderPreview draws img as a false-colour heat map with a caption strip
// underneath.
func RenderPreview(img *model.BinnedImage, stretch Stretch, caption string) *image.RGBA {
	g := Gray16(img, stretch)
	b := g.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()+captionHeight))

	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, heat(g.Gray16At(x, y).Y))
		}
	}
	for y := b.Dy(); y < b.Dy()+captionHeight; y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, color.RGBA{0, 0, 0, 255})
		}
	}

	d := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.RGBA{220, 220, 220, 255}),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(4, b.Dy()+15),
	}
	d.DrawString(caption)
	return out
}

// EncodePreviewJPEG writes a captioned preview as JPEG.
func EncodePreviewJPEG(w io.Writer, img *model.BinnedImage, stretch Stretch, caption string) error {
	if err := jpeg.Encode(w, RenderPreview(img, stretch, caption), &jpeg.Options{Quality: 90}); err != nil {
		return eris.Wrap(err, "focalplane: encode preview")
	}
	return nil
}

// heat maps intensity to black, red, yellow, white.
func heat(v uint16) color.RGBA {
	t := float64(v) / 65535
	var r, g, b float64
	switch {
	case t < 1.0/3:
		r = 3 * t
	case t < 2.0/3:
		r, g = 1, 3*t-1
	default:
		r, g, b = 1, 1, 3*t-2
	}
	return color.RGBA{uint8(r * 255), uint8(g * 255), uint8(b * 255), 255}
}
