package optic

import (
	"io/fs"
	"os"

	"github.com/rotisserie/eris"
)

// Source loads base optical models by name, e.g. "LSST_r.yaml".
type Source interface {
	Load(name string) (*Model, error)
}

// FSSource loads model descriptions from a file system.
type FSSource struct {
	FS fs.FS
}

// DirSource loads model descriptions from files under dir.
func DirSource(dir string) FSSource {
	return FSSource{FS: os.DirFS(dir)}
}

// Load opens and decodes the named description.
func (s FSSource) Load(name string) (*Model, error) {
	f, err := s.FS.Open(name)
	if err != nil {
		return nil, eris.Wrapf(err, "optic: open model %q", name)
	}
	defer f.Close() //nolint:errcheck

	m, err := Decode(f)
	if err != nil {
		return nil, eris.Wrapf(err, "optic: load model %q", name)
	}
	return m, nil
}
