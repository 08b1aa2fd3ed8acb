// Package worksheet incrementally parses a single SpreadsheetML worksheet
// part (xl/worksheets/sheetN.xml) into dense rows, without buffering the
// sheet. The pull-iterator shape (Next/Row/Err) is grounded on
// database/sql.Rows and bufio.Scanner; the token-loop XML walk over <row>/
// <c>/<v>/<is> elements is grounded on the same
// encoding/xml.Decoder.Token idiom ukaji3-exstruct/pkg/exstruct/parser/
// shapes.go uses to walk drawing relationships.
package worksheet

import (
	"encoding/xml"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

// CellKind identifies how a cell's value should be interpreted.
type CellKind int

const (
	CellEmpty CellKind = iota
	CellNumber
	CellString
	CellBoolean
	CellError
)

// Cell is one worksheet cell's resolved value.
type Cell struct {
	Kind CellKind
	// Str holds the value for CellString, CellError (the error literal,
	// e.g. "#DIV/0!") and CellNumber (the raw numeric text, carried
	// through verbatim rather than parsed to float64: Open
	// Question #2: numbers pass through as the literal text Excel wrote,
	// so callers who want CSV output byte-identical to Excel's own export
	// aren't second-guessed by a float round-trip).
	Str  string
	Bool bool
}

// Row is one worksheet row, dense from column 1 through the highest
// populated column; columns with no corresponding <c> element are
// CellEmpty.
type Row struct {
	Index int
	Cells []Cell
}

// Streamer pulls rows out of a worksheet XML stream one at a time.
type Streamer struct {
	dec           *xml.Decoder
	sharedStrings []string
	log           logrus.FieldLogger

	row     Row
	err     error
	done    bool
	seen    int
	sawData bool
}

// NewStreamer returns a Streamer reading worksheet XML from r. sharedStrings
// resolves type="s" cell values and may be nil if the workbook has no
// shared string table.
func NewStreamer(r io.Reader, sharedStrings []string, log logrus.FieldLogger) *Streamer {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Streamer{
		dec:           xml.NewDecoder(r),
		sharedStrings: sharedStrings,
		log:           log,
	}
}

// Next advances to the following row, returning false at end-of-sheet or on
// error; callers must check Err after Next returns false.
func (s *Streamer) Next() bool {
	if s.done {
		return false
	}

	for {
		tok, err := s.dec.Token()
		if err == io.EOF {
			s.done = true
			return false
		}
		if err != nil {
			s.err = xerrors.Wrap(xerrors.KindMalformedXML, "worksheet", err)
			s.done = true
			return false
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "row" {
			continue
		}

		row, err := s.readRow(se)
		if err != nil {
			s.err = err
			s.done = true
			return false
		}
		s.row = row
		s.seen++
		s.logProgress()
		return true
	}
}

// Row returns the row most recently produced by Next.
func (s *Streamer) Row() Row { return s.row }

// Err returns the first error encountered, if any.
func (s *Streamer) Err() error { return s.err }

func (s *Streamer) logProgress() {
	const progressInterval = 10000
	if s.seen%progressInterval == 0 {
		s.log.WithField("rows", s.seen).Info("streaming worksheet rows")
	}
}

// readRow consumes one <row>...</row> element, producing a dense Row.
func (s *Streamer) readRow(start xml.StartElement) (Row, error) {
	rowIndex := 0
	for _, attr := range start.Attr {
		if attr.Name.Local == "r" {
			rowIndex = atoiSafe(attr.Value)
		}
	}

	sparse := map[int]Cell{}
	maxCol := 0
	lastCol := 0

	for {
		tok, err := s.dec.Token()
		if err != nil {
			return Row{}, xerrors.Wrap(xerrors.KindMalformedXML, "worksheet row", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local != "c" {
				continue
			}
			col, cell, err := s.readCell(t)
			if err != nil {
				return Row{}, err
			}
			if col == 0 {
				// No r attribute: assign the next column index after the
				// previously seen cell in this row. (An r attribute that
				// does not parse fails the row in readCell instead.)
				col = lastCol + 1
			}
			lastCol = col
			if col > maxCol {
				maxCol = col
			}
			sparse[col] = cell
		case xml.EndElement:
			if t.Name.Local == "row" {
				return densify(rowIndex, sparse, maxCol), nil
			}
		}
	}
}

// readCell consumes one <c>...</c> element (or self-closing <c/>), returning
// its 1-based column index and resolved value.
func (s *Streamer) readCell(start xml.StartElement) (int, Cell, error) {
	var addr, cellType string
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "r":
			addr = attr.Value
		case "t":
			cellType = attr.Value
		}
	}

	col := 0
	if addr != "" {
		idx, err := ColumnIndex(addr)
		if err != nil {
			return 0, Cell{}, err
		}
		col = idx
	}

	var rawValue string
	var inlineText string
	haveValue := false
	depth := 1

	for depth > 0 {
		tok, err := s.dec.Token()
		if err != nil {
			return 0, Cell{}, xerrors.Wrap(xerrors.KindMalformedXML, "worksheet cell", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Local == "v" {
				text, err := readCharData(s.dec, "v")
				if err != nil {
					return 0, Cell{}, err
				}
				rawValue = text
				haveValue = true
				depth--
			} else if t.Name.Local == "is" {
				text, err := readInlineString(s.dec)
				if err != nil {
					return 0, Cell{}, err
				}
				inlineText = text
				haveValue = true
				depth--
			}
		case xml.EndElement:
			depth--
		}
	}

	cell, err := s.resolveCell(cellType, rawValue, inlineText, haveValue)
	if err != nil {
		return 0, Cell{}, err
	}
	return col, cell, nil
}

// resolveCell dispatches on the cell's t attribute: s (shared string
// index), inlineStr (literal <is> text), str (formula result string,
// taken as-is), b (boolean "0"/"1"), e (error literal), and the
// default/absent case, a number carried through verbatim.
func (s *Streamer) resolveCell(cellType, rawValue, inlineText string, haveValue bool) (Cell, error) {
	if !haveValue {
		return Cell{Kind: CellEmpty}, nil
	}

	switch cellType {
	case "s":
		idx := atoiSafe(rawValue)
		if idx < 0 || idx >= len(s.sharedStrings) {
			return Cell{}, xerrors.New(xerrors.KindSharedStringIndex, rawValue)
		}
		return Cell{Kind: CellString, Str: s.sharedStrings[idx]}, nil
	case "inlineStr":
		return Cell{Kind: CellString, Str: inlineText}, nil
	case "str":
		return Cell{Kind: CellString, Str: rawValue}, nil
	case "b":
		return Cell{Kind: CellBoolean, Bool: rawValue == "1"}, nil
	case "e":
		return Cell{Kind: CellError, Str: rawValue}, nil
	default:
		return Cell{Kind: CellNumber, Str: rawValue}, nil
	}
}

// readCharData reads the text content of the element just entered (whose
// StartElement has already been consumed), up through its matching
// EndElement, concatenating CharData verbatim (no whitespace trimming,
// honoring the document's own xml:space handling).
func readCharData(dec *xml.Decoder, localName string) (string, error) {
	var data []byte
	for {
		tok, err := dec.Token()
		if err != nil {
			return "", xerrors.Wrap(xerrors.KindMalformedXML, localName, err)
		}
		switch t := tok.(type) {
		case xml.CharData:
			data = append(data, t...)
		case xml.EndElement:
			if t.Name.Local == localName {
				return string(data), nil
			}
		}
	}
}

// readInlineString reads an <is> element's concatenated <t> descendant
// text, mirroring the shared-string-table entry format.
func readInlineString(dec *xml.Decoder) (string, error) {
	var sb []byte
	depth := 1
	inT := false
	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", xerrors.Wrap(xerrors.KindMalformedXML, "inline string", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if t.Name.Local == "t" {
				inT = true
			}
		case xml.EndElement:
			depth--
			if t.Name.Local == "t" {
				inT = false
			}
		case xml.CharData:
			if inT {
				sb = append(sb, t...)
			}
		}
	}
	return string(sb), nil
}

// densify expands a sparse column->Cell map into a dense, 1-indexed-origin
// slice spanning columns 1..maxCol, filling gaps with CellEmpty.
func densify(rowIndex int, sparse map[int]Cell, maxCol int) Row {
	cells := make([]Cell, maxCol)
	for col, cell := range sparse {
		cells[col-1] = cell
	}
	return Row{Index: rowIndex, Cells: cells}
}

func atoiSafe(s string) int {
	n := 0
	neg := false
	for i, c := range s {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return 0
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
