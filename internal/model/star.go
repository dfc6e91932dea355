package model

import (
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/soniakeys/unit"
)

// Catalog column names.
const (
	ColRA           = "ra"
	ColDec          = "dec"
	ColMag          = "mag"
	ColFlux         = "flux"
	ColFaX          = "fa_x"
	ColFaY          = "fa_y"
	ColDetectorType = "detector_type"
)

// RequiredColumns are the catalog columns every simulation needs.
var RequiredColumns = []string{ColRA, ColDec, ColMag, ColFlux, ColFaX, ColFaY}

// StarRecord is one row of a star source table. Catalogs carry angles in
// degrees; they are converted to unit.Angle on load and marshal as radians.
type StarRecord struct {
	RA           unit.Angle `json:"ra"`
	Dec          unit.Angle `json:"dec"`
	Mag          float64    `json:"mag"`
	Flux         float64    `json:"flux"`
	FaX          unit.Angle `json:"fa_x"`
	FaY          unit.Angle `json:"fa_y"`
	DetectorType string     `json:"detector_type,omitempty"`
}

// Table is anything that exposes named columns over a number of rows.
type Table interface {
	Columns() []string
	Len() int
}

// StarTable is the structured star source table. Columns records which
// catalog columns were present in the source; Rows holds parsed values.
type StarTable struct {
	columns  []string
	Rows     []StarRecord
	FluxUnit string
}

// NewStarTable builds a table from the source column names and parsed rows.
func NewStarTable(columns []string, rows []StarRecord) *StarTable {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(strings.TrimSpace(c))
	}
	return &StarTable{columns: cols, Rows: rows}
}

// Columns returns the source column names.
func (t *StarTable) Columns() []string {
	out := make([]string, len(t.columns))
	copy(out, t.columns)
	return out
}

// Len returns the number of stars.
func (t *StarTable) Len() int { return len(t.Rows) }

// HasColumn reports whether the named column was present in the source.
func (t *StarTable) HasColumn(name string) bool {
	for _, c := range t.columns {
		if c == name {
			return true
		}
	}
	return false
}

// Column returns the float values of a numeric column in row order.
func (t *StarTable) Column(name string) ([]float64, error) {
	out := make([]float64, len(t.Rows))
	for i, r := range t.Rows {
		switch name {
		case ColRA:
			out[i] = r.RA.Deg()
		case ColDec:
			out[i] = r.Dec.Deg()
		case ColMag:
			out[i] = r.Mag
		case ColFlux:
			out[i] = r.Flux
		case ColFaX:
			out[i] = r.FaX.Deg()
		case ColFaY:
			out[i] = r.FaY.Deg()
		default:
			return nil, eris.Wrapf(ErrInvalidValue, "star table: %q is not a numeric column", name)
		}
	}
	return out, nil
}

// ValidateStarTable checks that t is a *StarTable carrying every required
// column. The table is not modified.
func ValidateStarTable(t Table) error {
	st, ok := t.(*StarTable)
	if !ok || st == nil {
		return eris.Wrapf(ErrTableType, "star table must be a *model.StarTable, got %T", t)
	}

	var missing []string
	for _, col := range RequiredColumns {
		if !st.HasColumn(col) {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return eris.Wrapf(ErrMissingColumns, "star table is missing required column(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
