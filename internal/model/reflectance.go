package model

import (
	"math"
	"sort"

	"github.com/rotisserie/eris"
)

// ReflectanceMap maps a surface name, band-qualified filter key (e.g.
// "r_entrance") or detector type to a reflectance fraction in [0,1].
type ReflectanceMap map[string]float64

// Lookup returns the reflectance for key or an ErrMissingReflectance naming it.
func (m ReflectanceMap) Lookup(key string) (float64, error) {
	v, ok := m[key]
	if !ok {
		return 0, eris.Wrapf(ErrMissingReflectance, "reflectance: no value for key %q", key)
	}
	return v, nil
}

// Has reports whether key is present.
func (m ReflectanceMap) Has(key string) bool {
	_, ok := m[key]
	return ok
}

// Keys returns the keys in sorted order.
func (m ReflectanceMap) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Validate checks every value lies in [0,1].
func (m ReflectanceMap) Validate() error {
	for _, k := range m.Keys() {
		v := m[k]
		if math.IsNaN(v) || v < 0 || v > 1 {
			return eris.Wrapf(ErrInvalidValue, "reflectance: value for %q must be in [0,1], got %g", k, v)
		}
	}
	return nil
}
