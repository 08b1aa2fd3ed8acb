package worksheet

import "testing"

func TestColumnIndex(t *testing.T) {
	cases := map[string]int{
		"A1":    1,
		"Z1":    26,
		"AA1":   27,
		"AZ1":   52,
		"BA1":   53,
		"XFD1":  16384,
		"A":     1,
		"AA":    27,
	}
	for addr, want := range cases {
		got, err := ColumnIndex(addr)
		if err != nil {
			t.Fatalf("ColumnIndex(%q) returned error: %v", addr, err)
		}
		if got != want {
			t.Errorf("ColumnIndex(%q) = %d, want %d", addr, got, want)
		}
	}
}

func TestColumnIndexRejectsMalformed(t *testing.T) {
	for _, addr := range []string{"", "1A", "A1B", "a1", "123"} {
		if _, err := ColumnIndex(addr); err == nil {
			t.Errorf("ColumnIndex(%q) expected error, got nil", addr)
		}
	}
}
