// Package ebuildtest provides small test-support fakes for exercising the
// instancing → graph → dispatch → orchestration pipeline without a real
// module-definition file or a real compiler, mirroring the shape of the
// teacher's internal/distritest/buildtest helper package (a support package
// purpose-built for its callers' tests).
package ebuildtest

import (
	"path/filepath"

	"github.com/yldrefruz/ebuild/internal/loader"
)

// MapLoader is an in-memory loader.Loader keyed by absolute path, for tests
// that want to describe a module graph directly in Go rather than on disk.
type MapLoader map[string][]loader.RawModule

// Load implements loader.Loader.
func (m MapLoader) Load(path string) ([]loader.RawModule, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	raws, ok := m[abs]
	if !ok {
		return nil, &loader.ModuleFileLoadError{Path: abs, Err: errNotFound{abs}}
	}
	return raws, nil
}

type errNotFound struct{ path string }

func (e errNotFound) Error() string { return "no module registered at " + e.path }
