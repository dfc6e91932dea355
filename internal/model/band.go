package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Band is a camera filter identifier. The zero value means no filter, which
// selects the band-independent calibration configuration.
type Band string

const (
	BandNone Band = ""
	BandU    Band = "u"
	BandG    Band = "g"
	BandR    Band = "r"
	BandI    Band = "i"
	BandZ    Band = "z"
	BandY    Band = "y"
)

// Bands lists the filters in wavelength order.
var Bands = []Band{BandU, BandG, BandR, BandI, BandZ, BandY}

// Valid reports whether b is one of the six filters.
func (b Band) Valid() bool {
	for _, f := range Bands {
		if b == f {
			return true
		}
	}
	return false
}

func (b Band) String() string {
	if b == BandNone {
		return "none"
	}
	return string(b)
}

// ParseBand parses a filter identifier. An empty string or "none" yields
// BandNone; anything else outside u,g,r,i,z,y is an ErrInvalidValue.
func ParseBand(s string) (Band, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "none") {
		return BandNone, nil
	}
	b := Band(s)
	if !b.Valid() {
		return BandNone, eris.Wrapf(ErrInvalidValue, "band must be either 'u', 'g', 'r', 'i', 'z', 'y' or none, currently: %q", s)
	}
	return b, nil
}
