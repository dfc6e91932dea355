package catalog

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
	"go.uber.org/zap"

	"github.com/sells-group/rayven/internal/model"
)

// ReadStars parses a CSV star catalog. The first row names the columns;
// angles are in degrees. Columns the catalog lacks are left zero, so the
// result should go through model.ValidateStarTable before use. A blank cell
// in a present required column is ErrInvalidValue; only detector_type may
// be blank.
func ReadStars(ctx context.Context, r io.Reader) (*model.StarTable, error) {
	rowCh, errCh := StreamCSV(ctx, r, CSVOptions{Comment: '#', TrimSpace: true})
	b := &starBuilder{}
	if err := drain(rowCh, errCh, b.add); err != nil {
		return nil, eris.Wrap(err, "catalog: read stars")
	}
	return b.table()
}

// ReadStarsXLSX parses an XLSX star catalog from its first sheet.
func ReadStarsXLSX(ctx context.Context, path string) (*model.StarTable, error) {
	rowCh, errCh := StreamXLSX(ctx, path, "")
	b := &starBuilder{}
	if err := drain(rowCh, errCh, b.add); err != nil {
		return nil, eris.Wrapf(err, "catalog: read stars %s", path)
	}
	return b.table()
}

// LoadStars reads a star catalog, picking the parser by file extension.
func LoadStars(ctx context.Context, path string) (*model.StarTable, error) {
	var (
		t   *model.StarTable
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".txt":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "catalog: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		t, err = ReadStars(ctx, f)
	case ".xlsx":
		t, err = ReadStarsXLSX(ctx, path)
	default:
		return nil, eris.Errorf("catalog: unsupported star catalog format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, err
	}

	zap.L().Debug("catalog: loaded stars",
		zap.String("path", path),
		zap.Int("stars", t.Len()),
		zap.Strings("columns", t.Columns()),
	)
	return t, nil
}

type starBuilder struct {
	header []string
	index  map[string]int
	rows   []model.StarRecord
	line   int
}

func (b *starBuilder) add(r Row) error {
	row := r.Fields
	b.line = r.Line
	if b.header == nil {
		if blank(row) {
			return nil
		}
		b.header = row
		b.index = make(map[string]int, len(row))
		for i, c := range row {
			b.index[strings.ToLower(strings.TrimSpace(c))] = i
		}
		return nil
	}
	if blank(row) {
		return nil
	}

	var rec model.StarRecord
	var err error
	if rec.RA, err = b.angle(row, model.ColRA); err != nil {
		return err
	}
	if rec.Dec, err = b.angle(row, model.ColDec); err != nil {
		return err
	}
	if rec.FaX, err = b.angle(row, model.ColFaX); err != nil {
		return err
	}
	if rec.FaY, err = b.angle(row, model.ColFaY); err != nil {
		return err
	}
	if rec.Mag, err = b.float(row, model.ColMag); err != nil {
		return err
	}
	if rec.Flux, err = b.float(row, model.ColFlux); err != nil {
		return err
	}
	rec.DetectorType = b.cell(row, model.ColDetectorType)
	b.rows = append(b.rows, rec)
	return nil
}

func (b *starBuilder) table() (*model.StarTable, error) {
	if b.header == nil {
		return nil, eris.New("catalog: star catalog is empty")
	}
	return model.NewStarTable(b.header, b.rows), nil
}

func (b *starBuilder) cell(row []string, col string) string {
	i, ok := b.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func (b *starBuilder) float(row []string, col string) (float64, error) {
	if _, ok := b.index[col]; !ok {
		return 0, nil
	}
	s := b.cell(row, col)
	if s == "" {
		return 0, eris.Wrapf(model.ErrInvalidValue, "catalog: line %d column %s: value is blank", b.line, col)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, eris.Wrapf(model.ErrInvalidValue, "catalog: line %d column %s: %q is not a number", b.line, col, s)
	}
	return v, nil
}

func (b *starBuilder) angle(row []string, col string) (unit.Angle, error) {
	deg, err := b.float(row, col)
	if err != nil {
		return 0, err
	}
	return unit.AngleFromDeg(deg), nil
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
