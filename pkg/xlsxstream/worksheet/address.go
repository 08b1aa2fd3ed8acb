package worksheet

import (
	"github.com/brisktable/xlsxstream/pkg/xlsxstream/xerrors"
)

// ColumnIndex decodes a cell address's column letters ("A", "Z", "AA",
// "XFD", ...) into a 1-based column number using bijective base-26 (A=1,
// ..., Z=26, AA=27, ...). addr may include the trailing row digits (e.g.
// "AA17"); only the leading letters are consumed.
func ColumnIndex(addr string) (int, error) {
	letters, _, ok := splitAddress(addr)
	if !ok {
		return 0, xerrors.New(xerrors.KindBadCellAddress, addr)
	}

	col := 0
	for _, c := range letters {
		if c < 'A' || c > 'Z' {
			return 0, xerrors.New(xerrors.KindBadCellAddress, addr)
		}
		col = col*26 + int(c-'A'+1)
	}
	if col == 0 {
		return 0, xerrors.New(xerrors.KindBadCellAddress, addr)
	}
	return col, nil
}

// splitAddress separates a cell address into its letter and digit runs,
// e.g. "AA17" -> ("AA", "17", true) and "AA" -> ("AA", "", true). It fails
// if the letter run is empty, if letters follow digits, or if the address
// contains characters outside A-Z/0-9.
func splitAddress(addr string) (letters, digits string, ok bool) {
	i := 0
	for i < len(addr) && addr[i] >= 'A' && addr[i] <= 'Z' {
		i++
	}
	if i == 0 {
		return "", "", false
	}
	letters = addr[:i]

	j := i
	for j < len(addr) && addr[j] >= '0' && addr[j] <= '9' {
		j++
	}
	if j != len(addr) {
		return "", "", false
	}
	digits = addr[i:j]

	return letters, digits, true
}
