package xlsxstream

import "github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"

// Kind classifies a failure by category (source, archive, package, XML,
// sink). It is an alias of xerrors.Kind so that callers of this package
// never need to import the internal error package directly.
type Kind = xerrors.Kind

const (
	KindUnknown                  = xerrors.KindUnknown
	KindNotFound                 = xerrors.KindNotFound
	KindPermissionDenied         = xerrors.KindPermissionDenied
	KindUnsupportedSource        = xerrors.KindUnsupportedSource
	KindAuth                     = xerrors.KindAuth
	KindNetwork                  = xerrors.KindNetwork
	KindHTTPStatus               = xerrors.KindHTTPStatus
	KindTimeout                  = xerrors.KindTimeout
	KindTooManyRedirects         = xerrors.KindTooManyRedirects
	KindIOError                  = xerrors.KindIOError
	KindServiceError             = xerrors.KindServiceError
	KindUnexpectedEOF            = xerrors.KindUnexpectedEOF
	KindCRCMismatch              = xerrors.KindCRCMismatch
	KindUnsupportedMethod        = xerrors.KindUnsupportedMethod
	KindEncryptedEntry           = xerrors.KindEncryptedEntry
	KindSplitArchive             = xerrors.KindSplitArchive
	KindMissingWorkbookPart      = xerrors.KindMissingWorkbookPart
	KindMissingRelationshipsPart = xerrors.KindMissingRelationshipsPart
	KindSheetNotFound            = xerrors.KindSheetNotFound
	KindMalformedXML             = xerrors.KindMalformedXML
	KindSharedStringIndex        = xerrors.KindSharedStringIndex
	KindBadCellAddress           = xerrors.KindBadCellAddress
	KindSinkIO                   = xerrors.KindSinkIO
)

// Error is an alias of xerrors.Error: a Kind-tagged, wrap-compatible error.
type Error = xerrors.Error

// Is reports whether the first *Error found in err's wrap chain (err itself
// included) has the given Kind; Kinds of *Error values wrapped further down
// that chain are not considered.
func Is(err error, kind Kind) bool { return xerrors.Is(err, kind) }

// WarningKind classifies a non-fatal condition surfaced while reading a
// workbook.
type WarningKind int

const (
	WarningDuplicateSheetName WarningKind = iota
	WarningEmptyWorkbook
)

// Warning is a non-fatal condition observed while reading a workbook; it
// does not stop the read.
type Warning struct {
	Kind   WarningKind
	Detail string
}
