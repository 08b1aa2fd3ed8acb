// Package pkgindex recovers the two artifacts a worksheet pass needs before
// it can start: the shared string table and the worksheet directory
// (sheet name -> internal member path). It drives a single forward pass
// over an xlsxstream/archive.Reader, grounded on the token-loop XML parsing
// idiom in ukaji3-exstruct/pkg/exstruct/parser/shapes.go
// (parseWorkbookSheets, parseWorkbookRels, readZipFile), generalized from
// "find one relationship" to "build the full sheet map and string table."
package pkgindex

import (
	"context"
	"encoding/xml"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/brisktable/xlsxstream/pkg/xlsxstream/archive"
	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

const (
	pathWorkbook     = "xl/workbook.xml"
	pathWorkbookRels = "xl/_rels/workbook.xml.rels"
	pathSharedStr    = "xl/sharedStrings.xml"
)

// worksheetRelType identifies the package relationship Type URI used for
// worksheet parts; relationships of any other Type are ignored when
// resolving the worksheet directory.
const worksheetRelType = "http://schemas.openxmlformats.org/officeDocument/2006/relationships/worksheet"

// Index holds the artifacts of a Package Index pass.
type Index struct {
	// SharedStrings is the workbook's deduplicated string pool, indexed
	// from zero.
	SharedStrings []string
	// Sheets maps user-visible sheet name to the resolved worksheet member
	// path (e.g. "xl/worksheets/sheet2.xml").
	Sheets map[string]string
	// SheetOrder lists sheet names in the order they appear in
	// xl/workbook.xml, used when the caller names no sheet.
	SheetOrder []string
}

// WarningKind identifies a non-fatal condition surfaced during indexing.
type WarningKind int

const (
	WarningDuplicateSheetName WarningKind = iota
	WarningEmptyWorkbook
)

// Warning is a non-fatal condition observed while building an Index.
type Warning struct {
	Kind   WarningKind
	Detail string
}

// Build performs the first streaming pass over r, an xlsx package byte
// stream, collecting the shared string table and the worksheet directory in
// one traversal. The archive is drained to completion even after all three
// target parts have been seen, so trailing members' CRC checks still run.
func Build(ctx context.Context, r io.Reader, log logrus.FieldLogger) (Index, []Warning, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}

	zr := archive.NewReader(r)

	var (
		workbookXML []byte
		relsXML     []byte
		sharedXML   []byte
		warnings    []Warning
	)

	for {
		if err := ctx.Err(); err != nil {
			return Index{}, nil, err
		}

		member, err := zr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Index{}, nil, err
		}

		switch member.Name {
		case pathWorkbook:
			workbookXML, err = io.ReadAll(zr)
		case pathWorkbookRels:
			relsXML, err = io.ReadAll(zr)
		case pathSharedStr:
			sharedXML, err = io.ReadAll(zr)
		default:
			_, err = io.Copy(io.Discard, zr)
		}
		if err != nil {
			return Index{}, nil, err
		}
	}

	if len(workbookXML) == 0 {
		return Index{}, nil, xerrors.New(xerrors.KindMissingWorkbookPart, pathWorkbook)
	}
	if len(relsXML) == 0 {
		return Index{}, nil, xerrors.New(xerrors.KindMissingRelationshipsPart, pathWorkbookRels)
	}

	sheetRIDs, sheetOrder, err := parseWorkbookSheets(workbookXML)
	if err != nil {
		return Index{}, nil, err
	}
	if len(sheetOrder) == 0 {
		warnings = append(warnings, Warning{Kind: WarningEmptyWorkbook, Detail: pathWorkbook})
	}

	targets, err := parseWorkbookRels(relsXML)
	if err != nil {
		return Index{}, nil, err
	}

	sheets := make(map[string]string, len(sheetOrder))
	seen := make(map[string]bool, len(sheetOrder))
	var dedupedOrder []string
	for _, name := range sheetOrder {
		if seen[name] {
			warnings = append(warnings, Warning{Kind: WarningDuplicateSheetName, Detail: name})
			continue
		}
		seen[name] = true

		rid := sheetRIDs[name]
		target, ok := targets[rid]
		if !ok {
			continue
		}
		sheets[name] = target
		dedupedOrder = append(dedupedOrder, name)
	}

	shared, err := parseSharedStrings(sharedXML)
	if err != nil {
		return Index{}, nil, err
	}

	log.WithFields(logrus.Fields{
		"shared_strings": len(shared),
		"sheets":         len(sheets),
	}).Debug("package index built")

	return Index{SharedStrings: shared, Sheets: sheets, SheetOrder: dedupedOrder}, warnings, nil
}

// parseWorkbookSheets enumerates <sheet> elements under <sheets> in
// xl/workbook.xml, returning the sheet-name -> relationship-id map and the
// document-order list of sheet names. Grounded on
// ukaji3-exstruct/pkg/exstruct/parser/shapes.go's parseWorkbookSheets, which
// does the inverse mapping (rId -> name) for a single lookup; this
// generalizes it to keep both directions and the full ordered list.
func parseWorkbookSheets(data []byte) (ridByName map[string]string, order []string, err error) {
	ridByName = make(map[string]string)
	dec := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		tok, terr := dec.Token()
		if terr == io.EOF {
			break
		}
		if terr != nil {
			return nil, nil, xerrors.Wrap(xerrors.KindMalformedXML, pathWorkbook, terr)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "sheet" {
			continue
		}

		var name, rid string
		for _, attr := range se.Attr {
			switch {
			case attr.Name.Local == "name":
				name = attr.Value
			case attr.Name.Local == "id":
				rid = attr.Value
			}
		}
		if name == "" {
			continue
		}
		order = append(order, name)
		if _, dup := ridByName[name]; rid != "" && !dup {
			// A duplicate name keeps the first occurrence's relationship.
			ridByName[name] = rid
		}
	}

	return ridByName, order, nil
}

// parseWorkbookRels enumerates <Relationship> elements in
// xl/_rels/workbook.xml.rels, returning relationship-id -> resolved member
// path for worksheet-typed relationships and for relationships with no Type
// attribute; every other Type is skipped. Grounded on
// ukaji3-exstruct/pkg/exstruct/parser/shapes.go's parseWorkbookRels /
// findDrawingRelationship token-loop idiom.
func parseWorkbookRels(data []byte) (map[string]string, error) {
	result := make(map[string]string)
	dec := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindMalformedXML, pathWorkbookRels, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "Relationship" {
			continue
		}

		var id, target, relType string
		for _, attr := range se.Attr {
			switch attr.Name.Local {
			case "Id":
				id = attr.Value
			case "Target":
				target = attr.Value
			case "Type":
				relType = attr.Value
			}
		}
		if id == "" || target == "" {
			continue
		}
		if relType != "" && relType != worksheetRelType {
			continue
		}
		result[id] = resolveTarget(target)
	}

	return result, nil
}

// resolveTarget resolves a relationship Target against the xl/ package
// directory: a leading slash makes the target absolute within the package,
// otherwise it is taken relative to xl/.
func resolveTarget(target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	target = strings.TrimPrefix(target, "./")
	return "xl/" + target
}

// parseSharedStrings parses xl/sharedStrings.xml into an ordered string
// table. Absence of the part (nil data) yields an empty table: a workbook
// with no shared strings simply never writes the part.
func parseSharedStrings(data []byte) ([]string, error) {
	if len(data) == 0 {
		return nil, nil
	}

	var strings_ []string
	dec := xml.NewDecoder(strings.NewReader(string(data)))

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindMalformedXML, pathSharedStr, err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "si" {
			continue
		}

		text, err := readSharedStringEntry(dec)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindMalformedXML, pathSharedStr, err)
		}
		strings_ = append(strings_, text)
	}

	return strings_, nil
}

// readSharedStringEntry concatenates the text of every descendant <t>
// element of an <si>, in document order, honoring xml:space="preserve" by
// never trimming.
func readSharedStringEntry(dec *xml.Decoder) (string, error) {
	var sb strings.Builder
	depth := 1
	inT := false

	for depth > 0 {
		tok, err := dec.Token()
		if err != nil {
			return "", err
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
				sb.Write(t)
			}
		}
	}

	return sb.String(), nil
}
