package compression

import (
	"bytes"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
)

func payload() []byte {
	b := make([]byte, 64*1024)
	for i := range b {
		b[i] = byte(i % 251)
	}
	return b
}

func compress(t *testing.T, format Format, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer

	var w io.WriteCloser
	var err error
	switch format {
	case FormatGzip:
		w = gzip.NewWriter(&buf)
	case FormatZstd:
		w, err = zstd.NewWriter(&buf)
	case FormatXz:
		w, err = xz.NewWriter(&buf)
	default:
		t.Fatalf("no writer for %s", format)
	}
	require.NoError(t, err)

	_, err = w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, FormatGzip, DetectFormat([]byte{0x1f, 0x8b, 0x08}))
	assert.Equal(t, FormatZstd, DetectFormat([]byte{0x28, 0xb5, 0x2f, 0xfd, 0x00}))
	assert.Equal(t, FormatXz, DetectFormat([]byte{0xfd, '7', 'z', 'X', 'Z', 0x00}))
	assert.Equal(t, FormatRaw, DetectFormat([]byte{0xeb, 0x3c, 0x90}))
	assert.Equal(t, FormatRaw, DetectFormat(nil))
}

func TestExpandToRaw(t *testing.T) {
	data := payload()

	for _, format := range []Format{FormatGzip, FormatZstd, FormatXz} {
		t.Run(string(format), func(t *testing.T) {
			fs := afero.NewMemMapFs()
			require.NoError(t, afero.WriteFile(fs, "/images/disk.img.z", compress(t, format, data), 0644))

			got, err := Detect(fs, "/images/disk.img.z")
			require.NoError(t, err)
			assert.Equal(t, format, got)

			rawPath, detected, expanded, err := ExpandToRaw(fs, "/images/disk.img.z", "/tmp/expand")
			require.NoError(t, err)
			assert.True(t, expanded)
			assert.Equal(t, format, detected)
			assert.NotEqual(t, "/images/disk.img.z", rawPath)

			out, err := afero.ReadFile(fs, rawPath)
			require.NoError(t, err)
			assert.Equal(t, data, out)
		})
	}
}

func TestExpandToRaw_RawPassThrough(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/disk.img", []byte{0xeb, 0x3c, 0x90, 'M', 'S', 'D', 'O', 'S'}, 0644))

	rawPath, format, expanded, err := ExpandToRaw(fs, "/disk.img", "/tmp/expand")
	require.NoError(t, err)
	assert.False(t, expanded)
	assert.Equal(t, FormatRaw, format)
	assert.Equal(t, "/disk.img", rawPath)

	exists, err := afero.DirExists(fs, "/tmp/expand")
	require.NoError(t, err)
	assert.False(t, exists, "raw images must not create the expansion dir")
}

func TestExpandToRaw_Errors(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, _, _, err := ExpandToRaw(fs, "/missing.img", "/tmp")
	require.Error(t, err)

	// gzip magic followed by garbage
	require.NoError(t, afero.WriteFile(fs, "/broken.gz", []byte{0x1f, 0x8b, 0x00, 0x01, 0x02}, 0644))
	_, _, _, err = ExpandToRaw(fs, "/broken.gz", "/tmp")
	require.Error(t, err)
}

func TestNewReader_Unsupported(t *testing.T) {
	_, err := NewReader("lz4", bytes.NewReader(nil))
	assert.Error(t, err)
}
