// Package compression detects compressed disk images and expands them to raw
// files so they can be opened as seekable byte sources.
package compression

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
	"github.com/spf13/afero"
	"github.com/ulikunitz/xz"
)

// Format is the container format of an image file.
type Format string

const (
	FormatRaw  Format = "raw"
	FormatGzip Format = "gzip"
	FormatZstd Format = "zstd"
	FormatXz   Format = "xz"
)

var magics = []struct {
	format Format
	magic  []byte
}{
	{FormatGzip, []byte{0x1f, 0x8b}},
	{FormatZstd, []byte{0x28, 0xb5, 0x2f, 0xfd}},
	{FormatXz, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}},
}

// headerLen is enough bytes to recognise every supported magic.
const headerLen = 6

// DetectFormat identifies the format from the leading bytes of a file.
// Anything unrecognised is FormatRaw.
func DetectFormat(header []byte) Format {
	for _, m := range magics {
		if bytes.HasPrefix(header, m.magic) {
			return m.format
		}
	}
	return FormatRaw
}

// Detect reads the header of path and identifies its format.
func Detect(fs afero.Fs, path string) (Format, error) {
	f, err := fs.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	header := make([]byte, headerLen)
	n, err := io.ReadFull(f, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("read header of %s: %w", path, err)
	}
	return DetectFormat(header[:n]), nil
}

// NewReader wraps r with a decompressor for format. FormatRaw passes r through.
func NewReader(format Format, r io.Reader) (io.ReadCloser, error) {
	switch format {
	case FormatRaw:
		return io.NopCloser(r), nil
	case FormatGzip:
		return gzip.NewReader(r)
	case FormatZstd:
		dec, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return dec.IOReadCloser(), nil
	case FormatXz:
		xr, err := xz.NewReader(r)
		if err != nil {
			return nil, err
		}
		return io.NopCloser(xr), nil
	default:
		return nil, fmt.Errorf("unsupported compression format %q", format)
	}
}

// ExpandToRaw decompresses srcPath into a new file under dstDir and returns
// its path. Raw images are not copied: the returned path is srcPath and
// expanded is false. The caller removes the expanded file when done.
func ExpandToRaw(fs afero.Fs, srcPath, dstDir string) (rawPath string, format Format, expanded bool, err error) {
	log := logger.Logger()

	format, err = Detect(fs, srcPath)
	if err != nil {
		return "", "", false, err
	}
	if format == FormatRaw {
		return srcPath, format, false, nil
	}

	log.Infof("Image %s is %s compressed, expanding to raw under %s", srcPath, format, dstDir)

	src, err := fs.Open(srcPath)
	if err != nil {
		return "", format, false, fmt.Errorf("open %s: %w", srcPath, err)
	}
	defer src.Close()

	dec, err := NewReader(format, src)
	if err != nil {
		return "", format, false, fmt.Errorf("init %s decoder: %w", format, err)
	}
	defer dec.Close()

	if err := fs.MkdirAll(dstDir, 0700); err != nil {
		return "", format, false, fmt.Errorf("create %s: %w", dstDir, err)
	}
	base := strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath))
	dst, err := afero.TempFile(fs, dstDir, base+"-*.raw")
	if err != nil {
		return "", format, false, fmt.Errorf("create raw file: %w", err)
	}

	n, copyErr := io.Copy(dst, dec)
	closeErr := dst.Close()
	if copyErr != nil || closeErr != nil {
		if rmErr := fs.Remove(dst.Name()); rmErr != nil {
			log.Warnf("Failed to remove partial raw image %s: %v", dst.Name(), rmErr)
		}
		if copyErr != nil {
			return "", format, false, fmt.Errorf("expand %s image: %w", format, copyErr)
		}
		return "", format, false, fmt.Errorf("close raw file: %w", closeErr)
	}

	log.Debugf("Expanded %s to %s (%d bytes)", srcPath, dst.Name(), n)
	return dst.Name(), format, true, nil
}
