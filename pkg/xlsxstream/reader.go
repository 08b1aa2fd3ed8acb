// Package xlsxstream streams rows out of an XLSX workbook without loading
// the workbook into memory, reading from local files, HTTP(S) URLs, or S3
// objects. It is organized as five components wired together by Reader:
// a Source abstraction over the three transports, a forward-only Streaming
// Unzipper, a Package Index pass that recovers the shared string table and
// worksheet directory, a Worksheet Streamer that turns worksheet XML into
// dense rows, and this Reader facade, which runs the two-pass orchestration
// and offers a CSV convenience on top of it.
package xlsxstream

import (
	"bufio"
	"context"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/archive"
	"github.com/brisktable/xlsxstream/pkg/xlsxstream/pkgindex"
	"github.com/brisktable/xlsxstream/pkg/xlsxstream/source"
	"github.com/brisktable/xlsxstream/pkg/xlsxstream/worksheet"
	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

// maxBufferedChunkSize caps the bufio.Reader wrapping each Source body:
// the configured chunk size is an upper bound on the raw read buffer, not
// a target, so a single oversized --chunk-size value can't force a
// multi-gigabyte allocation the way it would if used directly as a
// read-buffer size.
const maxBufferedChunkSize = 1 << 20

// Reader reads rows out of a single workbook, identified by a source URI.
// A Reader may be used for multiple StreamRows/ToCSV/Metadata calls. The
// Package Index pass runs once, on the first of those calls, and its result
// is cached on the Reader; each StreamRows/ToCSV call then opens its own
// fresh worksheet pass, since the underlying byte sources cannot rewind.
type Reader struct {
	uri string
	cfg *config

	// index is populated lazily on first access by either Metadata or
	// StreamRows, and reused by whichever is called second - the
	// "lazy sheet_names population" behavior carried over from the
	// reference implementation rather than eagerly indexing on New.
	index    *pkgindex.Index
	warnings []pkgindex.Warning
}

// Metadata describes a workbook without reading any row data.
type Metadata struct {
	SheetNames  []string
	Size        *int64
	ContentType string
}

// New constructs a Reader for the workbook at uri. uri may be a local
// filesystem path, an http(s):// URL, an s3://bucket/key URI, or a
// file:// URL; see source.Resolve for the exact grammar.
func New(uri string, opts ...Option) *Reader {
	cfg := newConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	return &Reader{uri: uri, cfg: cfg}
}

// Metadata returns the workbook's sheet names and, when the transport
// reports them, size and content type. It performs a Package Index pass on
// first call and caches the result for any subsequent StreamRows call on
// the same Reader.
func (r *Reader) Metadata(ctx context.Context) (Metadata, error) {
	src, err := r.resolveSource()
	if err != nil {
		return Metadata{}, err
	}

	meta, err := src.Metadata(ctx)
	if err != nil {
		r.cfg.log.WithError(err).Debug("source metadata unavailable")
	}

	if err := r.ensureIndex(ctx, src); err != nil {
		return Metadata{}, err
	}

	return Metadata{
		SheetNames:  r.index.SheetOrder,
		Size:        meta.Size,
		ContentType: meta.ContentType,
	}, nil
}

// RowIterator pulls dense rows out of a single worksheet pass. Next/Row/Err
// follow the bufio.Scanner convention also used by worksheet.Streamer and
// ukaji3-exstruct's own token-loop readers.
type RowIterator struct {
	ctx    context.Context
	stream *worksheet.Streamer
	body   io.ReadCloser
	err    error
}

// Next advances to the following row. It returns false once the context
// passed to StreamRows is done; Err then reports the context's error.
func (it *RowIterator) Next() bool {
	if err := it.ctx.Err(); err != nil {
		it.err = err
		return false
	}
	return it.stream.Next()
}

// Row returns the row most recently produced by Next.
func (it *RowIterator) Row() worksheet.Row { return it.stream.Row() }

// Err returns the first error encountered during iteration, if any.
func (it *RowIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.stream.Err()
}

// Close releases the underlying byte source. Callers must call Close once
// done with the iterator, typically via defer.
func (it *RowIterator) Close() error { return it.body.Close() }

// StreamRows opens a fresh pass over the source and returns an iterator
// over the selected worksheet's rows. It runs a Package Index pass first
// (reusing one cached by an earlier Metadata or StreamRows call on the same
// Reader), then opens a second, independent pass to stream the worksheet
// body: forward-only archive access cannot rewind from the worksheet back
// to the shared string table, so the two passes use two separate
// Source.Open calls.
func (r *Reader) StreamRows(ctx context.Context) (*RowIterator, error) {
	src, err := r.resolveSource()
	if err != nil {
		return nil, err
	}

	if err := r.ensureIndex(ctx, src); err != nil {
		return nil, err
	}

	sheetName, sheetPath, err := r.selectSheet()
	if err != nil {
		return nil, err
	}
	r.cfg.log.WithField("sheet", sheetName).Debug("starting worksheet pass")

	body, err := src.Open(ctx)
	if err != nil {
		return nil, err
	}

	zr := archive.NewReader(r.bufferedReader(body))
	for {
		member, err := zr.Next()
		if err == io.EOF {
			body.Close()
			return nil, xerrors.New(xerrors.KindSheetNotFound, sheetPath)
		}
		if err != nil {
			body.Close()
			return nil, err
		}
		if member.Name == sheetPath {
			break
		}
		if _, err := io.Copy(io.Discard, zr); err != nil {
			body.Close()
			return nil, err
		}
	}

	stream := worksheet.NewStreamer(zr, r.index.SharedStrings, r.cfg.log)
	return &RowIterator{ctx: ctx, stream: stream, body: body}, nil
}

// ToCSV streams the selected worksheet directly to w as CSV: comma
// delimiter, CRLF line terminator, double-quote enclosing any field that
// needs it, embedded quotes doubled. Numbers and booleans are written
// using the literal text recovered from the worksheet; empty cells become
// empty fields.
func (r *Reader) ToCSV(ctx context.Context, w io.Writer) error {
	it, err := r.StreamRows(ctx)
	if err != nil {
		return err
	}
	defer it.Close()

	cw := csv.NewWriter(w)
	cw.UseCRLF = true
	for it.Next() {
		row := it.Row()
		record := make([]string, len(row.Cells))
		for i, cell := range row.Cells {
			record[i] = cellText(cell)
		}
		if err := cw.Write(record); err != nil {
			return xerrors.Wrap(xerrors.KindSinkIO, "failed to write CSV record", err)
		}
	}
	if err := it.Err(); err != nil {
		return err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return xerrors.Wrap(xerrors.KindSinkIO, "failed to flush CSV output", err)
	}
	return nil
}

func cellText(c worksheet.Cell) string {
	switch c.Kind {
	case worksheet.CellEmpty:
		return ""
	case worksheet.CellBoolean:
		if c.Bool {
			return "1"
		}
		return "0"
	default:
		return c.Str
	}
}

// bufferedReader wraps body in a bufio.Reader sized to the Reader's
// configured chunk size (bounded by maxBufferedChunkSize), so small Read
// calls from the archive reader are served from that buffer instead of each
// reaching the transport. A Read larger than the buffer, made while the
// buffer is empty, goes to the transport directly at its own size.
func (r *Reader) bufferedReader(body io.Reader) io.Reader {
	size := r.cfg.chunkSize
	if size > maxBufferedChunkSize {
		size = maxBufferedChunkSize
	}
	return bufio.NewReaderSize(body, size)
}

// resolveSource builds the Source implied by the Reader's URI.
func (r *Reader) resolveSource() (source.Source, error) {
	return source.Resolve(r.uri, r.cfg.httpOptions, r.cfg.s3Options)
}

// ensureIndex runs the Package Index pass once, caching it on the Reader
// and forwarding any warnings to the configured observer.
func (r *Reader) ensureIndex(ctx context.Context, src source.Source) error {
	if r.index != nil {
		return nil
	}

	body, err := src.Open(ctx)
	if err != nil {
		return err
	}
	defer body.Close()

	idx, warnings, err := pkgindex.Build(ctx, r.bufferedReader(body), r.cfg.log)
	if err != nil {
		return err
	}

	r.index = &idx
	r.warnings = warnings
	r.emitWarnings()
	return nil
}

func (r *Reader) emitWarnings() {
	if r.cfg.onWarning == nil {
		return
	}
	for _, w := range r.warnings {
		kind := WarningDuplicateSheetName
		if w.Kind == pkgindex.WarningEmptyWorkbook {
			kind = WarningEmptyWorkbook
		}
		r.cfg.onWarning(Warning{Kind: kind, Detail: w.Detail})
	}
}

// selectSheet resolves the configured sheet name (or the first sheet in
// workbook order when none was requested) to its worksheet member path.
func (r *Reader) selectSheet() (name, path string, err error) {
	if len(r.index.SheetOrder) == 0 {
		return "", "", xerrors.New(xerrors.KindSheetNotFound, "workbook has no sheets")
	}

	name = r.cfg.sheetName
	if name == "" {
		name = r.index.SheetOrder[0]
	}

	path, ok := r.index.Sheets[name]
	if !ok {
		return "", "", xerrors.New(xerrors.KindSheetNotFound, fmt.Sprintf("sheet %q not found", name))
	}
	return name, path, nil
}
