package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path"
	"strings"

	"go.miragespace.co/inline/source"
)

// FSSource serves urls as paths inside a file system, typically the
// directory the page was read from.
type FSSource struct {
	fsys iofs.FS
}

var _ source.Source = (*FSSource)(nil)

func NewFSSource(fsys iofs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

func NewDirSource(dir string) *FSSource {
	return NewFSSource(os.DirFS(dir))
}

func (f *FSSource) Fetch(ctx context.Context, url string) ([]byte, error) {
	name := strings.TrimPrefix(url, "file://")
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	name = strings.TrimPrefix(path.Clean("/"+name), "/")

	b, err := iofs.ReadFile(f.fsys, name)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", source.ErrNotFound, url)
	}
	if err != nil {
		return nil, fmt.Errorf("source: reading %s: %w", name, err)
	}
	return b, nil
}
