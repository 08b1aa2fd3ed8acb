package archive

import (
	"archive/zip"
	"bytes"
	"hash/crc32"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildDeflateZip constructs an in-memory ZIP archive via the stdlib
// writer, matching how the fixtures in pkgindex_test.go and
// reader_test.go build workbook packages. archive/zip.Writer always
// defers sizes to a trailing data descriptor for non-directory entries
// (it never seeks back to patch the local header), which exercises this
// reader's data-descriptor path for Deflate, the method real xlsx
// producers use for XML parts.
func buildDeflateZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// buildStoredZip constructs an in-memory ZIP archive of Stored (method 0)
// entries with sizes declared up front and no data descriptor, via
// zip.Writer's CreateRaw, which writes exactly the header fields given
// instead of deriving them from a streamed write. Ordinary zip.Writer
// output always sets the data-descriptor flag, which this reader
// deliberately rejects for Stored entries (see archive.go), so exercising
// the Stored happy path requires building headers this way.
func buildStoredZip(t *testing.T, order []string, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range order {
		content := []byte(files[name])
		w, err := zw.CreateRaw(&zip.FileHeader{
			Name:               name,
			Method:             zip.Store,
			Flags:              0,
			CRC32:              crc32.ChecksumIEEE(content),
			CompressedSize64:   uint64(len(content)),
			UncompressedSize64: uint64(len(content)),
		})
		require.NoError(t, err)
		_, err = w.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestReaderStoreMethod(t *testing.T) {
	data := buildStoredZip(t, []string{"hello.txt"}, map[string]string{
		"hello.txt": "hello, world",
	})

	r := NewReader(bytes.NewReader(data))
	member, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "hello.txt", member.Name)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "hello, world", string(got))

	_, err = r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderStoreWithDeferredSizeRejected(t *testing.T) {
	data := buildDeflateZip(t, map[string]string{"a.xml": "<x/>"})
	// Patch the method field (offset 8 in the local file header, right
	// after the 4-byte signature, 2-byte version and 2-byte flags fields) from Deflate to
	// Store while leaving the data-descriptor flag set, simulating the one
	// combination this reader refuses to guess at.
	methodOffset := 4 + 2 + 2
	require.Equal(t, byte(8), data[methodOffset])
	data[methodOffset] = 0

	r := NewReader(bytes.NewReader(data))
	_, err := r.Next()
	require.Error(t, err)
}

func TestReaderDeflateMethod(t *testing.T) {
	payload := "the quick brown fox jumps over the lazy dog, repeated for compressibility, " +
		"the quick brown fox jumps over the lazy dog"
	data := buildDeflateZip(t, map[string]string{"a.xml": payload})

	r := NewReader(bytes.NewReader(data))
	member, err := r.Next()
	require.NoError(t, err)
	require.Equal(t, "a.xml", member.Name)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload, string(got))
}

func TestReaderMultipleMembersInOrder(t *testing.T) {
	names := []string{"xl/workbook.xml", "xl/sharedStrings.xml", "xl/worksheets/sheet1.xml"}
	files := map[string]string{}
	for _, n := range names {
		files[n] = "<x/>"
	}
	data := buildStoredZip(t, names, files)

	r := NewReader(bytes.NewReader(data))
	var seen []string
	for {
		m, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		seen = append(seen, m.Name)
	}
	require.Equal(t, names, seen)
}

func TestReaderSkipsUnreadMemberOnNext(t *testing.T) {
	names := []string{"first.txt", "second.txt"}
	data := buildStoredZip(t, names, map[string]string{
		"first.txt":  "first contents",
		"second.txt": "second contents",
	})

	r := NewReader(bytes.NewReader(data))
	_, err := r.Next() // "first.txt", never Read from
	require.NoError(t, err)

	m2, err := r.Next() // drainCurrent must skip the rest of first.txt
	require.NoError(t, err)
	require.Equal(t, "second.txt", m2.Name)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "second contents", string(got))
}

func TestReaderDeflateMultipleMembersDoesNotSwallowDescriptor(t *testing.T) {
	// Regression test: a flate.Reader that over-reads past a member's
	// compressed stream into the trailing data descriptor (and the next
	// member's local file header) would either fail CRC verification or
	// report the wrong name/content for the second member. Two sizeable
	// Deflate members, in a fixed order, exercise exactly that boundary.
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	members := []struct{ name, content string }{
		{"first.xml", "first payload, repeated for compressibility, first payload"},
		{"second.xml", "second payload, also repeated for compressibility, second payload"},
	}
	for _, m := range members {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: m.name, Method: zip.Deflate})
		require.NoError(t, err)
		_, err = w.Write([]byte(m.content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())

	r := NewReader(bytes.NewReader(buf.Bytes()))
	for _, want := range members {
		m, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, want.name, m.Name)

		got, err := io.ReadAll(r)
		require.NoError(t, err)
		require.Equal(t, want.content, string(got))
	}

	_, err := r.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestReaderCRCMismatchDetected(t *testing.T) {
	data := buildStoredZip(t, []string{"a.txt"}, map[string]string{"a.txt": "unmodified"})

	idx := bytes.Index(data, []byte("unmodified"))
	require.GreaterOrEqual(t, idx, 0)
	corrupted := append([]byte{}, data...)
	corrupted[idx] = 'X'

	r := NewReader(bytes.NewReader(corrupted))
	_, err := r.Next()
	require.NoError(t, err)

	_, err = io.ReadAll(r)
	require.Error(t, err)
}

func TestReaderDeflateCRCIsOverUncompressedBytes(t *testing.T) {
	// CRC-32 in a ZIP local header is defined over the uncompressed data
	// (APPNOTE §4.3.7); for Deflate this test fails if the reader ever
	// sums the CRC over the still-compressed bytes instead, since those
	// differ from the declared value for any non-trivial payload.
	payload := "the quick brown fox jumps over the lazy dog, repeated for compressibility, " +
		"the quick brown fox jumps over the lazy dog, and once more for good measure"
	data := buildDeflateZip(t, map[string]string{"a.xml": payload})

	r := NewReader(bytes.NewReader(data))
	_, err := r.Next()
	require.NoError(t, err)

	got, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, payload, string(got))
}
