package source

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

func TestResolveLocalPath(t *testing.T) {
	src, err := Resolve("/tmp/book.xlsx", nil, nil)
	require.NoError(t, err)
	require.IsType(t, &localSource{}, src)
}

func TestResolveHTTP(t *testing.T) {
	src, err := Resolve("https://example.com/book.xlsx", nil, nil)
	require.NoError(t, err)
	require.IsType(t, &httpSource{}, src)
}

func TestResolveS3(t *testing.T) {
	src, err := Resolve("s3://my-bucket/path/to/book.xlsx", nil, nil)
	require.NoError(t, err)
	require.IsType(t, &s3Source{}, src)
}

func TestResolveS3RejectsEmptyKey(t *testing.T) {
	_, err := Resolve("s3://my-bucket/", nil, nil)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindUnsupportedSource))
}

func TestResolveUnsupportedScheme(t *testing.T) {
	_, err := Resolve("ftp://example.com/book.xlsx", nil, nil)
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindUnsupportedSource))
}

func TestResolveWindowsDriveLetterIsLocal(t *testing.T) {
	src, err := Resolve(`C:\Users\me\book.xlsx`, nil, nil)
	require.NoError(t, err)
	require.IsType(t, &localSource{}, src)
}
