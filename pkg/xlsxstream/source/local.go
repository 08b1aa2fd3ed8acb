package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

type localSource struct {
	path string
}

// Local returns a Source that streams a file from the local filesystem.
func Local(path string) Source {
	return &localSource{path: path}
}

func (s *localSource) Open(ctx context.Context) (io.ReadCloser, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, mapOpenErr(s.path, err)
	}
	return f, nil
}

func (s *localSource) Metadata(ctx context.Context) (Metadata, error) {
	info, err := os.Stat(s.path)
	if err != nil {
		return Metadata{}, mapOpenErr(s.path, err)
	}
	size := info.Size()
	return Metadata{
		Size:        &size,
		ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
		Origin:      OriginLocal,
	}, nil
}

func mapOpenErr(path string, err error) error {
	switch {
	case errors.Is(err, os.ErrNotExist):
		return xerrors.Wrap(xerrors.KindNotFound, fmt.Sprintf("file not found: %s", path), err)
	case errors.Is(err, os.ErrPermission):
		return xerrors.Wrap(xerrors.KindPermissionDenied, fmt.Sprintf("permission denied: %s", path), err)
	default:
		return xerrors.Wrap(xerrors.KindIOError, fmt.Sprintf("failed to open %s", path), err)
	}
}
