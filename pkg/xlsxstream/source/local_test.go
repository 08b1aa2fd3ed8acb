package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

func TestLocalOpenAndMetadata(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "book.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o644))

	src := Local(path)

	meta, err := src.Metadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta.Size)
	require.Equal(t, int64(len("payload")), *meta.Size)
	require.Equal(t, OriginLocal, meta.Origin)

	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "payload", string(got))
}

func TestLocalOpenMissingFile(t *testing.T) {
	src := Local(filepath.Join(t.TempDir(), "missing.xlsx"))

	_, err := src.Open(context.Background())
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindNotFound))
}
