package main

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/rayven/internal/focalplane"
	"github.com/sells-group/rayven/internal/model"
)

type imageFormat string

const (
	formatTIFF imageFormat = "tiff"
	formatPNG  imageFormat = "png"
	formatJPEG imageFormat = "jpeg"
)

// parseImageFormat accepts a format name; empty falls back to the file
// extension of path, then TIFF.
func parseImageFormat(name, path string) (imageFormat, error) {
	if name == "" {
		name = strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	}
	switch name {
	case "", "tif", "tiff":
		return formatTIFF, nil
	case "png":
		return formatPNG, nil
	case "jpg", "jpeg":
		return formatJPEG, nil
	default:
		return "", eris.Wrapf(model.ErrInvalidValue, "image format must be tiff, png or jpeg, currently: %q", name)
	}
}

func (f imageFormat) contentType() string {
	switch f {
	case formatPNG:
		return "image/png"
	case formatJPEG:
		return "image/jpeg"
	default:
		return "image/tiff"
	}
}

// encodeImage writes img in format f. JPEG output is the captioned preview.
func encodeImage(w io.Writer, f imageFormat, img *model.BinnedImage, stretch focalplane.Stretch, caption string) error {
	switch f {
	case formatPNG:
		return focalplane.EncodePNG(w, img, stretch)
	case formatJPEG:
		return focalplane.EncodePreviewJPEG(w, img, stretch, caption)
	default:
		return focalplane.EncodeTIFF(w, img, stretch)
	}
}

func writeImageFile(path string, f imageFormat, img *model.BinnedImage, stretch focalplane.Stretch, caption string) error {
	out, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "create %s", path)
	}
	if err := encodeImage(out, f, img, stretch, caption); err != nil {
		out.Close() //nolint:errcheck
		return err
	}
	if err := out.Close(); err != nil {
		return eris.Wrapf(err, "close %s", path)
	}
	return nil
}
