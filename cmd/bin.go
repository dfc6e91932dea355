package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/focalplane"
	"github.com/sells-group/rayven/internal/geometry"
	"github.com/sells-group/rayven/internal/model"
)

var (
	binRunID   string
	binOut     string
	binFormat  string
	binStretch string
	binBinsX   int
	binBinsY   int
)

var binCmd = &cobra.Command{
	Use:   "bin [ghost-id]",
	Short: "Bin a stored ghost or run onto the focal plane",
	Long:  "Recomputes the focal-plane image of one stored ghost, or with --run the scaled sum of every ghost of a run, and writes it as TIFF, PNG or a captioned JPEG preview.",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if (len(args) == 1) == (binRunID != "") {
			return eris.New("bin: give either a ghost id or --run")
		}
		if err := cfg.Validate("store"); err != nil {
			return err
		}
		format, err := parseImageFormat(binFormat, binOut)
		if err != nil {
			return err
		}
		stretch, err := focalplane.ParseStretch(binStretch)
		if err != nil {
			return err
		}
		cam, err := geometry.FromConfig(cfg.Geometry)
		if err != nil {
			return err
		}
		bins, err := binsFromFlags(binBinsX, binBinsY)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		binner := focalplane.NewBinner(cam)
		var (
			img     *model.BinnedImage
			caption string
		)
		if binRunID != "" {
			img, err = binRun(ctx, st, binner, binRunID, bins)
			caption = "run " + truncateID(binRunID)
		} else {
			var rec *model.GhostRecord
			rec, img, err = binGhost(ctx, st, binner, args[0], bins)
			if rec != nil {
				caption = fmt.Sprintf("star %d %s", rec.StarIndex, rec.Name)
			}
		}
		if err != nil {
			return err
		}

		if binOut == "" {
			return encodeImage(os.Stdout, format, img, stretch, caption)
		}
		if err := writeImageFile(binOut, format, img, stretch, caption); err != nil {
			return err
		}
		zap.L().Info("bin: wrote image",
			zap.String("path", binOut),
			zap.String("format", string(format)),
			zap.Float64("flux", img.Sum()),
		)
		return nil
	},
}

// ghostReader is the store subset needed to rebuild images.
type ghostReader interface {
	ListGhosts(ctx context.Context, runID string) ([]model.GhostRecord, error)
	GetGhost(ctx context.Context, ghostID string) (*model.GhostRecord, *model.Ghost, error)
}

// binsFromFlags applies the configured shape to unset dimensions and
// enforces binning.max_bins.
func binsFromFlags(nx, ny int) (focalplane.Bins, error) {
	if nx <= 0 {
		nx = cfg.Binning.BinsX
	}
	if ny <= 0 {
		ny = cfg.Binning.BinsY
	}
	bins := focalplane.Pair(nx, ny)
	if err := bins.Within(cfg.Binning.MaxBins); err != nil {
		return bins, eris.Wrap(err, "bin")
	}
	return bins, nil
}

// binGhost bins one stored ghost without scaling.
func binGhost(ctx context.Context, st ghostReader, binner *focalplane.Binner, ghostID string, bins focalplane.Bins) (*model.GhostRecord, *model.BinnedImage, error) {
	rec, g, err := st.GetGhost(ctx, ghostID)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "bin: load ghost %s", ghostID)
	}
	img, err := binner.Bin(*g, bins)
	if err != nil {
		return rec, nil, err
	}
	return rec, img, nil
}

// binRun sums every ghost of a run, each weighted by its star's scale.
func binRun(ctx context.Context, st ghostReader, binner *focalplane.Binner, runID string, bins focalplane.Bins) (*model.BinnedImage, error) {
	recs, err := st.ListGhosts(ctx, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "bin: list ghosts of run %s", runID)
	}
	out, err := binner.BinSamples(nil, nil, nil, bins)
	if err != nil {
		return nil, err
	}
	for _, r := range recs {
		_, g, err := st.GetGhost(ctx, r.ID)
		if err != nil {
			return nil, eris.Wrapf(err, "bin: load ghost %s", r.ID)
		}
		img, err := binner.Bin(*g, bins)
		if err != nil {
			return nil, err
		}
		if err := out.AddScaled(r.Scale, img); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func init() {
	binCmd.Flags().StringVar(&binRunID, "run", "", "bin every ghost of this run")
	binCmd.Flags().StringVarP(&binOut, "out", "o", "", "output file (default stdout)")
	binCmd.Flags().StringVar(&binFormat, "format", "", "tiff, png or jpeg (default from --out extension, then tiff)")
	binCmd.Flags().StringVar(&binStretch, "stretch", "linear", "image stretch: linear or log")
	binCmd.Flags().IntVar(&binBinsX, "bins-x", 0, "horizontal bins (default from config)")
	binCmd.Flags().IntVar(&binBinsY, "bins-y", 0, "vertical bins (default from config)")
	rootCmd.AddCommand(binCmd)
}
