package archive

import (
	"encoding/binary"
	"io"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

// ZIP local file header signature and fixed-size layout (APPNOTE 6.3.x
// §4.3.7). The central directory is never consulted: this reader only
// understands local file headers and the data descriptors that may follow a
// member's compressed data, because the byte source feeding it is
// forward-only and cannot seek to the trailing central directory.
const (
	localFileHeaderSig      = 0x04034b50
	dataDescriptorSig       = 0x08074b50
	centralDirectoryHeadSig = 0x02014b50

	zip64ExtraID = 0x0001

	methodStore   = 0
	methodDeflate = 8

	flagDataDescriptor = 1 << 3
	flagUTF8           = 1 << 11
	flagEncrypted      = 1 << 0
)

type localFileHeader struct {
	flags            uint16
	method           uint16
	crc32            uint32
	compressedSize   uint64
	uncompressedSize uint64
	nameLen          uint16
	extraLen         uint16
	name             []byte
	hasDataDescAhead bool
	isZip64          bool
}

// readLocalFileHeader reads one local file header (and its filename/extra
// field) from r. It returns (nil, io.EOF) once the archive transitions from
// local file headers into the central directory, which is the forward-only
// reader's normal end-of-archive signal, since there is no central
// directory record count to consult up front.
func readLocalFileHeader(r io.Reader) (*localFileHeader, error) {
	var sig uint32
	if err := binary.Read(r, binary.LittleEndian, &sig); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, xerrors.Wrap(xerrors.KindUnexpectedEOF, "failed to read local file header signature", err)
	}

	switch sig {
	case centralDirectoryHeadSig:
		return nil, io.EOF
	case localFileHeaderSig:
		// fallthrough to full parse below
	default:
		return nil, xerrors.New(xerrors.KindUnexpectedEOF, "unrecognized local file header signature")
	}

	var fixed [26]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnexpectedEOF, "truncated local file header", err)
	}

	h := &localFileHeader{
		flags:            binary.LittleEndian.Uint16(fixed[2:4]),
		method:           binary.LittleEndian.Uint16(fixed[4:6]),
		crc32:            binary.LittleEndian.Uint32(fixed[10:14]),
		compressedSize:   uint64(binary.LittleEndian.Uint32(fixed[14:18])),
		uncompressedSize: uint64(binary.LittleEndian.Uint32(fixed[18:22])),
		nameLen:          binary.LittleEndian.Uint16(fixed[22:24]),
		extraLen:         binary.LittleEndian.Uint16(fixed[24:26]),
	}
	h.hasDataDescAhead = h.flags&flagDataDescriptor != 0

	name := make([]byte, h.nameLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnexpectedEOF, "truncated local file header name", err)
	}
	h.name = name

	extra := make([]byte, h.extraLen)
	if _, err := io.ReadFull(r, extra); err != nil {
		return nil, xerrors.Wrap(xerrors.KindUnexpectedEOF, "truncated local file header extra field", err)
	}
	h.applyZIP64Extra(extra)

	return h, nil
}

// applyZIP64Extra overwrites compressedSize/uncompressedSize from the ZIP64
// extra field when the 32-bit header fields are at their overflow sentinel
// (0xFFFFFFFF), per APPNOTE 6.3.x §4.5.3.
func (h *localFileHeader) applyZIP64Extra(extra []byte) {
	const overflow32 = 0xFFFFFFFF
	if h.uncompressedSize != overflow32 && h.compressedSize != overflow32 {
		return
	}

	for len(extra) >= 4 {
		id := binary.LittleEndian.Uint16(extra[0:2])
		size := binary.LittleEndian.Uint16(extra[2:4])
		if len(extra) < int(4+size) {
			return
		}
		body := extra[4 : 4+size]
		if id == zip64ExtraID {
			h.isZip64 = true
			off := 0
			if h.uncompressedSize == overflow32 && off+8 <= len(body) {
				h.uncompressedSize = binary.LittleEndian.Uint64(body[off : off+8])
				off += 8
			}
			if h.compressedSize == overflow32 && off+8 <= len(body) {
				h.compressedSize = binary.LittleEndian.Uint64(body[off : off+8])
				off += 8
			}
			return
		}
		extra = extra[4+size:]
	}
}

// readDataDescriptor reads the optional trailing data descriptor present
// when flagDataDescriptor is set, returning the real CRC-32 and sizes that
// were unknown at header time.
//
// The 4-byte descriptor signature is optional per APPNOTE 6.3.x §4.3.9, but
// every common producer (the OOXML packager included) writes it, so this
// reader requires it to disambiguate the descriptor's length from a
// non-seekable stream; a ZIP64 descriptor lacking the signature word cannot
// be parsed unambiguously without buffering and is rejected as malformed.
func readDataDescriptor(r io.Reader, zip64 bool) (crc32 uint32, compressedSize, uncompressedSize uint64, err error) {
	var sig [4]byte
	if _, err = io.ReadFull(r, sig[:]); err != nil {
		return 0, 0, 0, xerrors.Wrap(xerrors.KindUnexpectedEOF, "truncated data descriptor", err)
	}
	if binary.LittleEndian.Uint32(sig[:]) != dataDescriptorSig {
		return 0, 0, 0, xerrors.New(xerrors.KindUnexpectedEOF, "data descriptor missing signature")
	}

	sizeFieldLen := 8
	if !zip64 {
		sizeFieldLen = 4
	}
	buf := make([]byte, 4+2*sizeFieldLen)
	if _, err = io.ReadFull(r, buf); err != nil {
		return 0, 0, 0, xerrors.Wrap(xerrors.KindUnexpectedEOF, "truncated data descriptor", err)
	}

	crc32 = binary.LittleEndian.Uint32(buf[0:4])
	if zip64 {
		compressedSize = binary.LittleEndian.Uint64(buf[4:12])
		uncompressedSize = binary.LittleEndian.Uint64(buf[12:20])
	} else {
		compressedSize = uint64(binary.LittleEndian.Uint32(buf[4:8]))
		uncompressedSize = uint64(binary.LittleEndian.Uint32(buf[8:12]))
	}
	return crc32, compressedSize, uncompressedSize, nil
}
