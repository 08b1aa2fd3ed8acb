// Package archive implements a forward-only ZIP reader: it parses local file
// headers and member bodies as they arrive on an io.Reader, never consulting
// the trailing central directory. The byte sources this module reads from
// (HTTP bodies, S3 object bodies, even local files treated as a single
// forward scan) cannot cheaply seek to the end of the archive the way
// archive/zip's io.ReaderAt contract requires.
//
// The Reader/Member shape is modeled on archive/tar.Reader: call Next to
// advance to the following member, then Read its decompressed bytes; Next
// discards any unread bytes of the current member before returning.
package archive

import (
	"hash/crc32"
	"io"

	"github.com/klauspost/compress/flate"
	"golang.org/x/text/encoding/charmap"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

// Member describes one ZIP archive entry. Its bytes are read through the
// owning Reader's Read method, not through a field on Member itself, so
// that only one member's decompressor is ever live at a time.
type Member struct {
	// Name is the member's path within the archive, decoded as UTF-8 when
	// the general-purpose bit 11 flag is set, otherwise as ISO-8859-1.
	Name string
}

// Reader reads the members of a ZIP archive from a forward-only io.Reader.
type Reader struct {
	src io.Reader

	current    *localFileHeader
	crc        *crcReader // tees the member's decompressed output, never the compressed input
	flateClose io.Closer  // non-nil while a flate.Reader is live for the current member
	drained    bool
}

// NewReader returns an archive Reader that pulls member data from src as
// Next/Read are called.
func NewReader(src io.Reader) *Reader {
	return &Reader{src: src, drained: true}
}

// Next advances to the next member in the archive. It returns io.EOF once
// the archive's local file headers are exhausted (signaled by encountering
// the start of the central directory or the underlying stream's EOF).
func (r *Reader) Next() (*Member, error) {
	if err := r.drainCurrent(); err != nil {
		return nil, err
	}

	h, err := readLocalFileHeader(r.src)
	if err != nil {
		return nil, err
	}

	if h.flags&flagEncrypted != 0 {
		return nil, xerrors.New(xerrors.KindEncryptedEntry, string(h.name))
	}
	if h.method != methodStore && h.method != methodDeflate {
		return nil, xerrors.New(xerrors.KindUnsupportedMethod, string(h.name))
	}

	r.current = h
	r.drained = false
	r.flateClose = nil

	var compressed io.Reader
	if h.hasDataDescAhead {
		if h.method == methodStore {
			// A stored member with sizes deferred to a trailing data
			// descriptor has no self-terminating content, and the
			// descriptor's signature can collide with arbitrary stored
			// bytes, so its end cannot be located reliably from a
			// forward-only stream. Reject the combination instead of
			// guessing; real xlsx producers deflate their XML parts.
			return nil, xerrors.New(xerrors.KindUnsupportedMethod, string(h.name)+": stored entry with deferred size")
		}
		// The compressed size is unknown up front, so the compressed
		// stream can't be bounded with an io.LimitReader. Feed flate a
		// reader that only ever yields one byte per ReadByte call: flate's
		// bit reader prefers ReadByte when the source already provides one
		// (see compress/flate.NewReader's Reader-interface check) and never
		// looks ahead past the deflate stream's own end-of-block marker, so
		// r.src ends up positioned exactly at the start of the trailing
		// data descriptor once the member is fully read. A plain io.Reader
		// here would get wrapped in flate's internal bufio.Reader, which
		// pulls a full 4KiB ahead on the first read and swallows the
		// descriptor (and the following member's header) into a buffer
		// that's discarded once the flate.Reader itself is dropped.
		compressed = newByteReader(r.src)
	} else {
		compressed = io.LimitReader(r.src, int64(h.compressedSize))
	}

	var decompressed io.Reader
	switch h.method {
	case methodStore:
		decompressed = compressed
	case methodDeflate:
		fr := flate.NewReader(compressed)
		r.flateClose = fr
		decompressed = fr
	}

	// CRC-32 is defined over the member's uncompressed bytes (APPNOTE
	// §4.3.7), so it must tee the decompressor's output, not the still-
	// compressed bytes flowing into it.
	r.crc = newCRCReader(decompressed)

	return &Member{Name: decodeName(h.name, h.flags)}, nil
}

// Read reads decompressed bytes from the current member. It returns io.EOF
// at the member's end; call Next to advance. Reading past EOF without
// calling Next returns io.EOF again.
func (r *Reader) Read(p []byte) (int, error) {
	if r.crc == nil || r.drained {
		return 0, io.EOF
	}

	n, err := r.crc.Read(p)
	if err == io.EOF {
		if r.flateClose != nil {
			r.flateClose.Close()
			r.flateClose = nil
		}
		if verifyErr := r.verifyCRC(); verifyErr != nil {
			return n, verifyErr
		}
		r.drained = true
	} else if err != nil {
		return n, xerrors.Wrap(xerrors.KindUnexpectedEOF, "failed to decompress member", err)
	}
	return n, err
}

// verifyCRC checks the accumulated CRC-32 against the value declared in the
// local header, or in the trailing data descriptor when sizes were unknown
// up front.
func (r *Reader) verifyCRC() error {
	want := r.current.crc32
	if r.current.hasDataDescAhead {
		crc, _, _, err := readDataDescriptor(r.src, r.current.isZip64)
		if err != nil {
			return err
		}
		want = crc
	}
	if r.crc.Sum32() != want {
		return xerrors.New(xerrors.KindCRCMismatch, "checksum mismatch")
	}
	return nil
}

// drainCurrent discards any unread bytes of the member in progress so Next
// can find the following local file header, finalizing its CRC check in
// the process.
func (r *Reader) drainCurrent() error {
	if r.drained {
		return nil
	}
	if _, err := io.Copy(io.Discard, r); err != nil {
		return err
	}
	r.drained = true
	return nil
}

func decodeName(raw []byte, flags uint16) string {
	if flags&flagUTF8 != 0 {
		return string(raw)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(raw)
	if err != nil {
		return string(raw)
	}
	return string(decoded)
}

// byteReader adapts an io.Reader to also satisfy io.ByteReader without any
// internal look-ahead buffering: each ReadByte pulls exactly one byte from
// the underlying reader. flate.NewReader uses a source's ReadByte directly
// when available instead of wrapping it in its own buffered reader, so
// passing a byteReader guarantees the decompressor never consumes bytes
// past the compressed stream it's decoding - the property the data-
// descriptor path in Next depends on.
type byteReader struct {
	r   io.Reader
	buf [1]byte
}

func newByteReader(r io.Reader) *byteReader {
	return &byteReader{r: r}
}

func (b *byteReader) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

func (b *byteReader) ReadByte() (byte, error) {
	if _, err := io.ReadFull(b.r, b.buf[:]); err != nil {
		return 0, err
	}
	return b.buf[0], nil
}

// crcReader tees bytes read through it into a running CRC-32 checksum.
type crcReader struct {
	r   io.Reader
	crc uint32
}

func newCRCReader(r io.Reader) *crcReader {
	return &crcReader{r: r}
}

func (c *crcReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.crc = crc32.Update(c.crc, crc32.IEEETable, p[:n])
	}
	return n, err
}

func (c *crcReader) Sum32() uint32 {
	return c.crc
}
