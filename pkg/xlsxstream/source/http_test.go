package source

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

func TestHTTPOpenSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Write([]byte("remote payload"))
	}))
	defer srv.Close()

	src := HTTP(srv.URL)
	rc, err := src.Open(context.Background())
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "remote payload", string(got))
}

func TestHTTPOpenNonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	src := HTTP(srv.URL)
	_, err := src.Open(context.Background())
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindHTTPStatus))
}

func TestHTTPTooManyRedirects(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, srv.URL+"/next", http.StatusFound)
	}))
	defer srv.Close()

	src := HTTP(srv.URL, WithMaxRedirects(1))
	_, err := src.Open(context.Background())
	require.Error(t, err)
	require.True(t, xerrors.Is(err, xerrors.KindTooManyRedirects))
}

func TestHTTPMetadataUsesContentLength(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "42")
		w.Header().Set("Content-Type", "text/plain")
	}))
	defer srv.Close()

	src := HTTP(srv.URL)
	meta, err := src.Metadata(context.Background())
	require.NoError(t, err)
	require.NotNil(t, meta.Size)
	require.Equal(t, int64(42), *meta.Size)
	require.Equal(t, "text/plain", meta.ContentType)
}
