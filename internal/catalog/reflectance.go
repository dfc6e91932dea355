package catalog

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/rayven/internal/model"
)

// LoadReflectance reads a reflectance table. YAML files hold a flat
// key: value mapping; CSV and XLSX files hold key,value rows with an
// optional header. The result is validated.
func LoadReflectance(ctx context.Context, path string) (model.ReflectanceMap, error) {
	var (
		m   model.ReflectanceMap
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		m, err = loadReflectanceYAML(path)
	case ".csv":
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil, eris.Wrapf(openErr, "catalog: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		rowCh, errCh := StreamCSV(ctx, f, CSVOptions{Comment: '#', TrimSpace: true})
		m, err = reflectanceFromRows(rowCh, errCh)
	case ".xlsx":
		rowCh, errCh := StreamXLSX(ctx, path, "")
		m, err = reflectanceFromRows(rowCh, errCh)
	default:
		return nil, eris.Errorf("catalog: unsupported reflectance format %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, eris.Wrapf(err, "catalog: load reflectance %s", path)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func loadReflectanceYAML(path string) (model.ReflectanceMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	m := model.ReflectanceMap{}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, eris.Wrap(err, "yaml")
	}
	return m, nil
}

func reflectanceFromRows(rowCh <-chan Row, errCh <-chan error) (model.ReflectanceMap, error) {
	m := model.ReflectanceMap{}
	first := true
	err := drain(rowCh, errCh, func(r Row) error {
		row := r.Fields
		if blank(row) {
			return nil
		}
		header := first
		first = false
		if len(row) < 2 {
			return eris.Errorf("line %d: want key,value", r.Line)
		}
		key := strings.TrimSpace(row[0])
		v, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			if header {
				return nil
			}
			return eris.Wrapf(model.ErrInvalidValue, "line %d: %q is not a number", r.Line, row[1])
		}
		if _, dup := m[key]; dup {
			return eris.Errorf("line %d: duplicate key %q", r.Line, key)
		}
		m[key] = v
		return nil
	})
	return m, err
}
