package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

const defaultMaxRedirects = 5

// httpSource streams an xlsx workbook from an HTTP(S) URL with a single GET
// request, following up to maxRedirects redirects.
type httpSource struct {
	url          string
	headers      map[string]string
	timeout      time.Duration
	maxRedirects int
	client       *http.Client
}

// HTTPOption configures an HTTP Source.
type HTTPOption func(*httpSource)

// WithHeaders sets custom request headers on the HTTP source.
func WithHeaders(headers map[string]string) HTTPOption {
	return func(s *httpSource) { s.headers = headers }
}

// WithTimeout sets the timeout for each individual Read of the response
// body (default 30s); a value <= 0 disables it.
func WithTimeout(d time.Duration) HTTPOption {
	return func(s *httpSource) { s.timeout = d }
}

// WithMaxRedirects overrides the default redirect bound (default 5).
func WithMaxRedirects(n int) HTTPOption {
	return func(s *httpSource) { s.maxRedirects = n }
}

// WithHTTPClient overrides the underlying *http.Client, primarily for tests.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(s *httpSource) { s.client = c }
}

// HTTP returns a Source that streams the body of a single GET request to
// url.
func HTTP(url string, opts ...HTTPOption) Source {
	s := &httpSource{
		url:          url,
		timeout:      30 * time.Second,
		maxRedirects: defaultMaxRedirects,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		redirects := s.maxRedirects
		s.client = &http.Client{
			Timeout: 0, // per-chunk timeout is enforced by timeoutBody on each Read
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= redirects {
					return xerrors.New(xerrors.KindTooManyRedirects,
						fmt.Sprintf("exceeded %d redirects fetching %s", redirects, url))
				}
				return nil
			},
		}
	}
	return s
}

func (s *httpSource) newRequest(ctx context.Context, method string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.url, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.KindNetwork, "failed to build request", err)
	}
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func (s *httpSource) Open(ctx context.Context) (io.ReadCloser, error) {
	req, err := s.newRequest(ctx, http.MethodGet)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		if xerr, ok := err.(*xerrors.Error); ok {
			return nil, xerr
		}
		if urlErr, ok := asURLError(err); ok && urlErr != nil {
			if xerr, ok := urlErr.(*xerrors.Error); ok {
				return nil, xerr
			}
		}
		return nil, xerrors.Wrap(xerrors.KindNetwork, fmt.Sprintf("GET %s failed", s.url), err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := fmt.Sprintf("GET %s returned status %d", s.url, resp.StatusCode)
		resp.Body.Close()
		return nil, xerrors.New(xerrors.KindHTTPStatus, detail)
	}

	return &timeoutBody{body: resp.Body, timeout: s.timeout}, nil
}

func (s *httpSource) Metadata(ctx context.Context) (Metadata, error) {
	req, err := s.newRequest(ctx, http.MethodHead)
	if err != nil {
		return Metadata{}, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		// HEAD is best-effort; callers can still stream via Open even if
		// the server rejects HEAD.
		return Metadata{Origin: OriginHTTP}, nil
	}
	defer resp.Body.Close()

	md := Metadata{
		Origin:      OriginHTTP,
		ContentType: resp.Header.Get("Content-Type"),
	}
	if md.ContentType == "" {
		md.ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if cl := resp.Header.Get("Content-Length"); cl != "" {
		if n, err := strconv.ParseInt(cl, 10, 64); err == nil {
			md.Size = &n
		}
	}
	return md, nil
}

// timeoutBody enforces a per-chunk read timeout on an HTTP response body: if
// a single Read call stalls longer than timeout, the underlying body is
// closed so the stalled Read returns an error instead of blocking forever.
type timeoutBody struct {
	body    io.ReadCloser
	timeout time.Duration
}

func (t *timeoutBody) Read(p []byte) (int, error) {
	if t.timeout <= 0 {
		return t.body.Read(p)
	}

	timer := time.AfterFunc(t.timeout, func() { t.body.Close() })
	defer timer.Stop()

	n, err := t.body.Read(p)
	if err != nil && !timer.Stop() {
		return n, xerrors.Wrap(xerrors.KindTimeout, "read timed out", err)
	}
	return n, err
}

func (t *timeoutBody) Close() error {
	return t.body.Close()
}

// asURLError unwraps the *url.Error http.Client wraps transport/CheckRedirect
// errors in, so a *xerrors.Error produced by CheckRedirect survives the
// round trip to the caller.
func asURLError(err error) (error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if _, ok := err.(*xerrors.Error); ok {
			return err, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}
