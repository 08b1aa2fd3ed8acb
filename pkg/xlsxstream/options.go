package xlsxstream

import (
	"github.com/sirupsen/logrus"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/source"
)

// defaultChunkSize is the read buffer size used when copying bytes out of a
// Source; matches the CLI's --chunk-size default.
const defaultChunkSize = 16 * 1024 * 1024

// WarningObserver receives non-fatal conditions encountered while reading a
// workbook, such as a duplicate sheet name resolved by keeping the first
// occurrence.
type WarningObserver func(Warning)

type config struct {
	chunkSize   int
	sheetName   string
	log         logrus.FieldLogger
	onWarning   WarningObserver
	httpOptions []source.HTTPOption
	s3Options   []source.S3Option
}

func newConfig() *config {
	return &config{
		chunkSize: defaultChunkSize,
		log:       logrus.StandardLogger(),
	}
}

// Option configures a Reader constructed by New.
type Option func(*config)

// WithChunkSize sets the buffer size used when copying bytes from the
// underlying Source; the buffer actually allocated is capped at 1 MiB.
// Values <= 0 are ignored.
func WithChunkSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithSheetName selects a worksheet by name. Without this option, the
// first sheet in workbook order is read.
func WithSheetName(name string) Option {
	return func(c *config) { c.sheetName = name }
}

// WithLogger overrides the default structured logger used for progress and
// diagnostic messages.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *config) {
		if log != nil {
			c.log = log
		}
	}
}

// WithWarningObserver registers a callback invoked for every non-fatal
// Warning raised while reading, such as a duplicate sheet name.
func WithWarningObserver(fn WarningObserver) Option {
	return func(c *config) { c.onWarning = fn }
}

// WithHTTPOptions forwards options to the HTTP source transport when the
// input URI resolves to http:// or https://.
func WithHTTPOptions(opts ...source.HTTPOption) Option {
	return func(c *config) { c.httpOptions = opts }
}

// WithS3Options forwards options to the S3 source transport when the input
// URI resolves to s3://.
func WithS3Options(opts ...source.S3Option) Option {
	return func(c *config) { c.s3Options = opts }
}
