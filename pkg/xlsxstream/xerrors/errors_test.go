package xerrors

import (
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapPreservesUnwrap(t *testing.T) {
	err := Wrap(KindIOError, "failed to read", io.ErrUnexpectedEOF)
	require.True(t, errors.Is(err, io.ErrUnexpectedEOF))
	require.True(t, Is(err, KindIOError))
}

func TestIsFalseForOtherKind(t *testing.T) {
	err := New(KindNotFound, "missing")
	require.False(t, Is(err, KindAuth))
}

func TestErrorMessageIncludesDetail(t *testing.T) {
	err := New(KindBadCellAddress, "ZZZ1234")
	require.Contains(t, err.Error(), "ZZZ1234")
}
