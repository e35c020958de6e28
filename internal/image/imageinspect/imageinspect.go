package imageinspect

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/open-edge-platform/fat16-inspector/internal/config"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/compression"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// VolumeSummary holds the decoded boot sector and derived layout of one FAT16
// volume inside an image file.
type VolumeSummary struct {
	File        string `json:"file" yaml:"file"`
	SizeBytes   int64  `json:"sizeBytes" yaml:"sizeBytes"`
	Compression string `json:"compression,omitempty" yaml:"compression,omitempty"`
	SHA256      string `json:"sha256,omitempty" yaml:"sha256,omitempty"`

	BaseOffset int64                   `json:"baseOffset" yaml:"baseOffset"`
	BootSector *fat16.BootSectorFields `json:"bootSector" yaml:"bootSector"`
	Layout     *fat16.Layout           `json:"layout" yaml:"layout"`
}

// Options control how volumes are decoded.
type Options struct {
	// Encoding is the IANA name for the boot sector text fields.
	Encoding string
	// Rounding is applied to non-aligned root directory sizes.
	Rounding fat16.RoundingMode
	// HashImages computes the SHA256 of every inspected image.
	HashImages bool
	// TempDir receives expanded copies of compressed images. Empty uses the
	// configured temp directory.
	TempDir string
}

// Inspector reads FAT16 volumes from image files.
type Inspector struct {
	fs       afero.Fs
	opts     Options
	reader   *fat16.Reader
	calc     fat16.Calculator
	openDisk diskOpener
	logger   *zap.SugaredLogger
}

// NewInspector returns an Inspector on the host filesystem.
func NewInspector(opts Options) (*Inspector, error) {
	return NewInspectorFs(afero.NewOsFs(), opts)
}

// NewInspectorFs returns an Inspector reading images from fs. Partition
// tables and expanded copies of compressed images go through fs as well.
func NewInspectorFs(fs afero.Fs, opts Options) (*Inspector, error) {
	reader, err := fat16.NewReader(opts.Encoding)
	if err != nil {
		return nil, fmt.Errorf("text encoding: %w", err)
	}
	rounding, err := fat16.ParseRoundingMode(string(opts.Rounding))
	if err != nil {
		return nil, err
	}
	opts.Rounding = rounding

	return &Inspector{
		fs:       fs,
		opts:     opts,
		reader:   reader,
		calc:     fat16.Calculator{Rounding: rounding},
		openDisk: openDiskfs,
		logger:   logger.Logger(),
	}, nil
}

// Inspect decodes the FAT16 volume whose boot sector starts at baseOffset
// bytes into imagePath.
func (d *Inspector) Inspect(imagePath string, baseOffset int64) (*VolumeSummary, error) {
	d.logger.Infof("Inspecting image: %s, offset=%d, hashImages=%v", imagePath, baseOffset, d.opts.HashImages)

	img, err := d.prepareImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.cleanup()

	f, err := d.fs.Open(img.rawPath)
	if err != nil {
		return nil, fmt.Errorf("open image file: %w", err)
	}
	defer f.Close()

	sha := ""
	if d.opts.HashImages {
		d.logger.Infof("Computing SHA256 for image: %s", imagePath)
		sha, err = computeFileSHA256(f)
		if err != nil {
			return nil, fmt.Errorf("sha256 image: %w", err)
		}
	}

	summary, err := d.inspectVolume(f, baseOffset)
	if err != nil {
		return nil, err
	}

	// Use original path in the summary, not the expanded copy
	summary.File = imagePath
	summary.SizeBytes = img.sizeBytes
	summary.SHA256 = sha
	if img.format != compression.FormatRaw {
		summary.Compression = string(img.format)
	}
	return summary, nil
}

// inspectVolume runs the boot sector reader and layout calculator on an
// already opened source.
func (d *Inspector) inspectVolume(src io.ReadSeeker, baseOffset int64) (*VolumeSummary, error) {
	fields, err := d.reader.Read(src, baseOffset)
	if err != nil {
		return nil, fmt.Errorf("read boot sector at offset %d: %w", baseOffset, err)
	}

	layout, err := d.calc.Compute(fields)
	if err != nil {
		return nil, fmt.Errorf("compute layout at offset %d: %w", baseOffset, err)
	}
	d.logger.Debugf("Volume at offset %d: %d sectors, clusters %d - %d",
		baseOffset, fields.TotalSectors(), layout.Clusters.First, layout.Clusters.Last)

	return &VolumeSummary{
		BaseOffset: baseOffset,
		BootSector: fields,
		Layout:     layout,
	}, nil
}

// preparedImage is an image resolved to a raw file readable through the
// inspector's filesystem.
type preparedImage struct {
	rawPath   string
	sizeBytes int64
	format    compression.Format
	cleanup   func()
}

// prepareImage expands compressed images to a temporary raw file. The
// caller must invoke cleanup when done.
func (d *Inspector) prepareImage(imagePath string) (*preparedImage, error) {
	fi, err := d.fs.Stat(imagePath)
	if err != nil {
		return nil, fmt.Errorf("stat image: %w", err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("image path is a directory: %s", imagePath)
	}

	img := &preparedImage{
		rawPath:   imagePath,
		sizeBytes: fi.Size(),
		format:    compression.FormatRaw,
		cleanup:   func() {},
	}

	format, err := compression.Detect(d.fs, imagePath)
	if err != nil {
		d.logger.Warnf("Failed to detect image compression, assuming raw: %v", err)
		return img, nil
	}
	if format == compression.FormatRaw {
		return img, nil
	}

	tmpDir := d.opts.TempDir
	if tmpDir == "" {
		tmpDir, err = config.EnsureTempDirFs(d.fs, "image-inspect")
		if err != nil {
			return nil, fmt.Errorf("failed to create temp directory: %w", err)
		}
	}

	rawPath, format, expanded, err := compression.ExpandToRaw(d.fs, imagePath, tmpDir)
	if err != nil {
		return nil, fmt.Errorf("failed to expand %s image: %w", format, err)
	}
	img.format = format
	if expanded {
		img.rawPath = rawPath
		img.cleanup = func() {
			if err := d.fs.Remove(rawPath); err != nil {
				d.logger.Warnf("Failed to cleanup temporary expanded image: %v", err)
			}
		}
	}
	return img, nil
}

func computeFileSHA256(f io.ReadSeeker) (string, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}
