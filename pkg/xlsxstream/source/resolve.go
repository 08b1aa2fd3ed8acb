package source

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

var s3BucketPattern = regexp.MustCompile(`^[a-z0-9.\-]{3,63}$`)

// Resolve picks the Source variant implied by uri's scheme:
//
//	s3://bucket/key        -> S3 object store
//	http://... | https://...  -> HTTP
//	anything else          -> local filesystem path
//
// An s3:// URI with a malformed bucket or empty key is rejected with
// xerrors.KindUnsupportedSource, the same kind used for an ambiguous or
// unrecognized scheme.
func Resolve(uri string, httpOpts []HTTPOption, s3Opts []S3Option) (Source, error) {
	parsed, err := url.Parse(uri)
	if err != nil || parsed.Scheme == "" {
		return Local(uri), nil
	}

	switch parsed.Scheme {
	case "s3":
		bucket := parsed.Host
		key := strings.TrimPrefix(parsed.Path, "/")
		if !s3BucketPattern.MatchString(bucket) || key == "" {
			return nil, xerrors.New(xerrors.KindUnsupportedSource,
				fmt.Sprintf("invalid S3 URI: %s (expected s3://bucket/key)", uri))
		}
		return S3(bucket, key, s3Opts...), nil
	case "http", "https":
		return HTTP(uri, httpOpts...), nil
	case "file":
		return Local(parsed.Path), nil
	default:
		// A single uppercase-drive-letter scheme like "C" from a Windows
		// path ("C:\foo.xlsx") parses with url.Parse as Scheme="c"; treat
		// any single-letter scheme as a local path rather than rejecting
		// it outright.
		if len(parsed.Scheme) == 1 {
			return Local(uri), nil
		}
		return nil, xerrors.New(xerrors.KindUnsupportedSource,
			fmt.Sprintf("unsupported source scheme %q in %s", parsed.Scheme, uri))
	}
}
