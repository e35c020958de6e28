package imageinspect

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/open-edge-platform/fat16-inspector/internal/config"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16/fat16test"
	"github.com/spf13/afero"
)

func TestInspect_ReferenceVolume(t *testing.T) {
	d, fs := newTestInspector(t, Options{})
	img := fat16test.Image(fat16test.Reference, 0, 4096)
	writeFile(t, fs, testImagePath, img)

	got, err := d.Inspect(testImagePath, 0)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}

	if got.File != testImagePath {
		t.Fatalf("File=%q want %q", got.File, testImagePath)
	}
	if got.SizeBytes != int64(len(img)) {
		t.Fatalf("SizeBytes=%d want %d", got.SizeBytes, len(img))
	}
	if got.Compression != "" || got.SHA256 != "" {
		t.Fatalf("unexpected compression=%q sha=%q", got.Compression, got.SHA256)
	}
	if got.BootSector.OEMName != "MSDOS5.0" {
		t.Fatalf("OEMName=%q", got.BootSector.OEMName)
	}
	if got.Layout.Clusters != (fat16.ClusterRange{First: 2, Last: 708}) {
		t.Fatalf("Clusters=%+v want 2 - 708", got.Layout.Clusters)
	}
	if got.Layout.ClusterArea != (fat16.SectorRange{Start: 49, End: 2876}) {
		t.Fatalf("ClusterArea=%v", got.Layout.ClusterArea)
	}
}

func TestInspect_NonZeroOffset(t *testing.T) {
	d, fs := newTestInspector(t, Options{})
	writeFile(t, fs, testImagePath, fat16test.Image(fat16test.Reference, mib, mib+4096))

	got, err := d.Inspect(testImagePath, mib)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.BaseOffset != mib || got.BootSector.BaseOffset != mib {
		t.Fatalf("BaseOffset=%d/%d want %d", got.BaseOffset, got.BootSector.BaseOffset, mib)
	}

	// Layout sectors are relative to the volume, not the image.
	if got.Layout.Reserved != (fat16.SectorRange{Start: 0, End: 0}) {
		t.Fatalf("Reserved=%v", got.Layout.Reserved)
	}
}

func TestInspect_HashImage(t *testing.T) {
	d, fs := newTestInspector(t, Options{HashImages: true})
	img := fat16test.Image(fat16test.Reference, 0, 4096)
	writeFile(t, fs, testImagePath, img)

	got, err := d.Inspect(testImagePath, 0)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	sum := sha256.Sum256(img)
	if want := hex.EncodeToString(sum[:]); got.SHA256 != want {
		t.Fatalf("SHA256=%s want %s", got.SHA256, want)
	}
	// hashing must not move the read position used by the boot sector reader
	if got.BootSector.BytesPerSector != 512 {
		t.Fatalf("BytesPerSector=%d", got.BootSector.BytesPerSector)
	}
}

func TestInspect_GzipImage(t *testing.T) {
	d, fs := newTestInspector(t, Options{})
	img := fat16test.Image(fat16test.Reference, 0, 8192)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(img); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	writeFile(t, fs, "/images/disk.img.gz", buf.Bytes())

	got, err := d.Inspect("/images/disk.img.gz", 0)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Compression != "gzip" {
		t.Fatalf("Compression=%q want gzip", got.Compression)
	}
	if got.File != "/images/disk.img.gz" {
		t.Fatalf("File=%q", got.File)
	}
	if got.Layout.Clusters.Last != 708 {
		t.Fatalf("Clusters.Last=%d want 708", got.Layout.Clusters.Last)
	}

	// expanded copy is removed
	entries, err := afero.ReadDir(fs, "/tmp/expand")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned up: %d entries", len(entries))
	}
}

func TestInspect_CompressedUsesConfiguredTempDirOnFs(t *testing.T) {
	original := config.Global()
	defer config.SetGlobal(original)
	cfg := config.DefaultGlobalConfig()
	cfg.TempDir = "/virtual-tmp"
	config.SetGlobal(cfg)

	fs := afero.NewMemMapFs()
	d, err := NewInspectorFs(fs, Options{})
	if err != nil {
		t.Fatalf("NewInspectorFs: %v", err)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(fat16test.Image(fat16test.Reference, 0, 8192)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	writeFile(t, fs, "/images/disk.img.gz", buf.Bytes())

	got, err := d.Inspect("/images/disk.img.gz", 0)
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	if got.Compression != "gzip" {
		t.Fatalf("Compression=%q want gzip", got.Compression)
	}

	ok, err := afero.DirExists(fs, "/virtual-tmp/image-inspect")
	if err != nil || !ok {
		t.Fatalf("temp dir not created on the inspector filesystem: exists=%v err=%v", ok, err)
	}
	if _, err := os.Stat("/virtual-tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp dir created on the host: %v", err)
	}
}

func TestInspect_Errors(t *testing.T) {
	d, fs := newTestInspector(t, Options{})
	writeFile(t, fs, "/images/short.img", make([]byte, 20))
	writeFile(t, fs, "/images/zero.img", make([]byte, 512))
	if err := fs.MkdirAll("/images/dir", 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	tests := []struct {
		name     string
		path     string
		offset   int64
		sentinel error
		contains string
	}{
		{name: "missing file", path: "/images/missing.img", contains: "stat image"},
		{name: "directory", path: "/images/dir", contains: "is a directory"},
		{name: "short file", path: "/images/short.img", sentinel: fat16.ErrIO},
		{name: "offset past end", path: "/images/zero.img", offset: 4096, sentinel: fat16.ErrIO},
		{name: "zeroed boot sector", path: "/images/zero.img", sentinel: fat16.ErrInvalidLayout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := d.Inspect(tt.path, tt.offset)
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.sentinel != nil && !errors.Is(err, tt.sentinel) {
				t.Fatalf("err=%v want wrapping %v", err, tt.sentinel)
			}
			if tt.contains != "" && !strings.Contains(err.Error(), tt.contains) {
				t.Fatalf("err=%q want substring %q", err, tt.contains)
			}
		})
	}
}

func TestNewInspectorFs_Options(t *testing.T) {
	fs := afero.NewMemMapFs()

	if _, err := NewInspectorFs(fs, Options{Encoding: "no-such-charset"}); err == nil {
		t.Fatalf("expected error for unknown encoding")
	}
	if _, err := NewInspectorFs(fs, Options{Rounding: "nearest"}); err == nil {
		t.Fatalf("expected error for unknown rounding")
	}

	d, err := NewInspectorFs(fs, Options{Rounding: "CEIL", Encoding: "IBM437"})
	if err != nil {
		t.Fatalf("NewInspectorFs: %v", err)
	}
	if d.calc.Rounding != fat16.RoundCeil {
		t.Fatalf("Rounding=%q want ceil", d.calc.Rounding)
	}
}

func TestInspect_RoundingMode(t *testing.T) {
	g := fat16test.Reference
	g.RootEntryCount = 10

	for _, tc := range []struct {
		mode     fat16.RoundingMode
		rootDir  fat16.SectorRange
		clusters fat16.SectorRange
	}{
		{fat16.RoundTruncate, fat16.SectorRange{Start: 17, End: 16}, fat16.SectorRange{Start: 17, End: 2876}},
		{fat16.RoundCeil, fat16.SectorRange{Start: 17, End: 17}, fat16.SectorRange{Start: 18, End: 2877}},
	} {
		t.Run(string(tc.mode), func(t *testing.T) {
			d, fs := newTestInspector(t, Options{Rounding: tc.mode})
			writeFile(t, fs, testImagePath, fat16test.Image(g, 0, 1024))

			got, err := d.Inspect(testImagePath, 0)
			if err != nil {
				t.Fatalf("Inspect: %v", err)
			}
			if got.Layout.RootDir != tc.rootDir {
				t.Fatalf("RootDir=%v want %v", got.Layout.RootDir, tc.rootDir)
			}
			if got.Layout.ClusterArea != tc.clusters {
				t.Fatalf("ClusterArea=%v want %v", got.Layout.ClusterArea, tc.clusters)
			}
		})
	}
}
