package imageinspect

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/diskfs/go-diskfs"
	diskfile "github.com/diskfs/go-diskfs/backend/file"
	"github.com/diskfs/go-diskfs/partition"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/compression"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/afero"
)

// Partition table types reported in PartitionTableSummary.Type.
const (
	TableGPT  = "gpt"
	TableMBR  = "mbr"
	TableNone = "none"
)

// GPT partition types that may carry a FAT16 volume.
const (
	gptTypeESP       = "C12A7328-F81F-11D2-BA4B-00A0C93EC93B"
	gptTypeBasicData = "EBD0A0A2-B9E5-4433-87C0-68B6B72699C7"
)

// File system constants
const (
	defaultSectorSize     = 512
	unrealisticSectorSize = 65535
)

// PartitionTableSummary holds information about the partition table of the disk image.
type PartitionTableSummary struct {
	Type               string             `json:"type" yaml:"type"`
	DiskGUID           string             `json:"diskGuid,omitempty" yaml:"diskGuid,omitempty"`
	LogicalSectorSize  int64              `json:"logicalSectorSize" yaml:"logicalSectorSize"`
	PhysicalSectorSize int64              `json:"physicalSectorSize,omitempty" yaml:"physicalSectorSize,omitempty"`
	Partitions         []PartitionSummary `json:"partitions" yaml:"partitions"`
}

// PartitionSummary holds information about a single partition in the disk image.
type PartitionSummary struct {
	Index       int    `json:"index" yaml:"index"`
	Name        string `json:"name,omitempty" yaml:"name,omitempty"`
	Type        string `json:"type" yaml:"type"`
	TypeName    string `json:"typeName,omitempty" yaml:"typeName,omitempty"`
	GUID        string `json:"guid,omitempty" yaml:"guid,omitempty"`
	StartLBA    uint64 `json:"startLba" yaml:"startLba"`
	EndLBA      uint64 `json:"endLba" yaml:"endLba"`
	SizeBytes   uint64 `json:"sizeBytes" yaml:"sizeBytes"`
	OffsetBytes int64  `json:"offsetBytes" yaml:"offsetBytes"`
}

// VolumeResult is the outcome of inspecting one partition.
type VolumeResult struct {
	Partition PartitionSummary `json:"partition" yaml:"partition"`
	Skipped   bool             `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Summary   *VolumeSummary   `json:"summary,omitempty" yaml:"summary,omitempty"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Notes     []string         `json:"notes,omitempty" yaml:"notes,omitempty"`

	// checkLabel requires the fs type label to start with FAT16
	checkLabel bool
	err        error
}

// Err returns the inspection error of this volume, if any. A result decoded
// from JSON or YAML only carries the message.
func (v *VolumeResult) Err() error {
	if v.err == nil && v.Error != "" {
		return errors.New(v.Error)
	}
	return v.err
}

// ScanResult holds every volume found in a disk image.
type ScanResult struct {
	File           string                `json:"file" yaml:"file"`
	SizeBytes      int64                 `json:"sizeBytes" yaml:"sizeBytes"`
	Compression    string                `json:"compression,omitempty" yaml:"compression,omitempty"`
	SHA256         string                `json:"sha256,omitempty" yaml:"sha256,omitempty"`
	PartitionTable PartitionTableSummary `json:"partitionTable" yaml:"partitionTable"`
	Volumes        []VolumeResult        `json:"volumes" yaml:"volumes"`
}

// Err aggregates the errors of all failed volumes. It is nil when every
// inspected volume succeeded.
func (r *ScanResult) Err() error {
	var result *multierror.Error
	for i := range r.Volumes {
		if err := r.Volumes[i].Err(); err != nil {
			result = multierror.Append(result, fmt.Errorf("partition %d: %w", r.Volumes[i].Partition.Index, err))
		}
	}
	return result.ErrorOrNil()
}

// ScanOptions control partition selection and parallelism.
type ScanOptions struct {
	// Workers is the number of volumes inspected concurrently.
	Workers int
	// AllPartitions inspects every partition regardless of its type.
	AllPartitions bool
	// Progress receives a progress bar when more than one volume is
	// inspected. Nil disables it.
	Progress io.Writer
}

// partitionTableReader is the part of a diskfs disk the scanner needs.
type partitionTableReader interface {
	GetPartitionTable() (partition.Table, error)
}

// diskOpener opens a raw image on fs for partition table access.
type diskOpener func(fs afero.Fs, path string) (disk partitionTableReader, logicalBlockSize int64, closeFn func() error, err error)

func openDiskfs(fs afero.Fs, path string) (partitionTableReader, int64, func() error, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, 0, nil, err
	}
	disk, err := diskfs.OpenBackend(diskfile.New(f, true), diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		f.Close()
		return nil, 0, nil, err
	}
	return disk, disk.LogicalBlocksize, disk.Close, nil
}

// Scan reads the partition table of imagePath and inspects every FAT16
// volume in it. A failing volume is recorded in its VolumeResult and never
// stops the others; see ScanResult.Err.
func (d *Inspector) Scan(imagePath string, opts ScanOptions) (*ScanResult, error) {
	d.logger.Infof("Scanning image: %s, workers=%d, all=%v", imagePath, opts.Workers, opts.AllPartitions)

	img, err := d.prepareImage(imagePath)
	if err != nil {
		return nil, err
	}
	defer img.cleanup()

	result := &ScanResult{
		File:      imagePath,
		SizeBytes: img.sizeBytes,
	}
	if img.format != compression.FormatRaw {
		result.Compression = string(img.format)
	}

	if d.opts.HashImages {
		f, err := d.fs.Open(img.rawPath)
		if err != nil {
			return nil, fmt.Errorf("open image file: %w", err)
		}
		result.SHA256, err = computeFileSHA256(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("sha256 image: %w", err)
		}
	}

	result.PartitionTable = d.readPartitionTable(img.rawPath, img.sizeBytes)
	result.Volumes = selectVolumes(result.PartitionTable, opts.AllPartitions)

	d.inspectVolumes(img.rawPath, result.Volumes, opts)

	for i := range result.Volumes {
		if v := &result.Volumes[i]; v.Summary != nil {
			v.Summary.File = imagePath
			v.Summary.SizeBytes = img.sizeBytes
			v.Summary.Compression = result.Compression
			v.Summary.SHA256 = result.SHA256
		}
	}
	return result, nil
}

// readPartitionTable summarizes the partition table. An image without one
// is treated as a single volume starting at offset 0.
func (d *Inspector) readPartitionTable(rawPath string, sizeBytes int64) PartitionTableSummary {
	whole := PartitionTableSummary{
		Type:              TableNone,
		LogicalSectorSize: defaultSectorSize,
		Partitions: []PartitionSummary{{
			Index:     1,
			Type:      TableNone,
			TypeName:  "whole image",
			EndLBA:    uint64(max(sizeBytes/defaultSectorSize-1, 0)),
			SizeBytes: uint64(sizeBytes),
		}},
	}

	disk, logicalBlockSize, closeFn, err := d.openDisk(d.fs, rawPath)
	if err != nil {
		d.logger.Warnf("Failed to open disk image %s, inspecting it as a single volume: %v", rawPath, err)
		return whole
	}
	defer func() {
		if err := closeFn(); err != nil {
			d.logger.Warnf("Failed to close disk image: %v", err)
		}
	}()

	if logicalBlockSize <= 0 || logicalBlockSize > unrealisticSectorSize {
		logicalBlockSize = defaultSectorSize
	}

	pt, err := disk.GetPartitionTable()
	if err != nil || pt == nil {
		d.logger.Infof("No partition table in %s, inspecting it as a single volume: %v", rawPath, err)
		return whole
	}

	summary, err := summarizePartitionTable(pt, logicalBlockSize)
	if err != nil {
		d.logger.Warnf("Unusable partition table in %s: %v", rawPath, err)
		return whole
	}
	if len(summary.Partitions) == 0 {
		d.logger.Infof("Partition table in %s lists no partitions, inspecting it as a single volume", rawPath)
		return whole
	}
	return summary
}

// summarizePartitionTable creates a PartitionTableSummary from a diskfs partition.Table.
func summarizePartitionTable(pt partition.Table, logicalBlockSize int64) (PartitionTableSummary, error) {
	ptSummary := PartitionTableSummary{
		LogicalSectorSize: logicalBlockSize,
		Partitions:        make([]PartitionSummary, 0),
	}

	switch t := pt.(type) {
	case *gpt.Table:
		ptSummary.Type = TableGPT
		ptSummary.DiskGUID = normalizeGUID(t.GUID)
		ptSummary.PhysicalSectorSize = int64(t.PhysicalSectorSize)
		if t.LogicalSectorSize > 0 {
			ptSummary.LogicalSectorSize = int64(t.LogicalSectorSize)
		}

		for _, p := range t.Partitions {
			if p == nil || (p.Start == 0 && p.End == 0) {
				continue
			}
			ptype := normalizeGUID(string(p.Type))
			ptSummary.Partitions = append(ptSummary.Partitions, PartitionSummary{
				Name:     p.Name,
				Type:     ptype,
				TypeName: gptTypeName(ptype),
				GUID:     normalizeGUID(p.GUID),
				StartLBA: p.Start,
				EndLBA:   p.End,
			})
		}

	case *mbr.Table:
		ptSummary.Type = TableMBR
		ptSummary.PhysicalSectorSize = int64(t.PhysicalSectorSize)
		if t.LogicalSectorSize > 0 {
			ptSummary.LogicalSectorSize = int64(t.LogicalSectorSize)
		}

		for _, p := range t.Partitions {
			if p == nil || p.Type == 0 || p.Size == 0 {
				continue
			}
			code := fmt.Sprintf("0x%02x", byte(p.Type))
			ptSummary.Partitions = append(ptSummary.Partitions, PartitionSummary{
				Type:     code,
				TypeName: mbrTypeName(code),
				StartLBA: uint64(p.Start),
				EndLBA:   uint64(p.Start) + uint64(p.Size) - 1,
			})
		}

	default:
		return PartitionTableSummary{}, fmt.Errorf("unsupported partition table type: %T", t)
	}

	sort.Slice(ptSummary.Partitions, func(i, j int) bool {
		return ptSummary.Partitions[i].StartLBA < ptSummary.Partitions[j].StartLBA
	})
	sectorSize := ptSummary.LogicalSectorSize
	for i := range ptSummary.Partitions {
		p := &ptSummary.Partitions[i]
		p.Index = i + 1
		p.SizeBytes = (p.EndLBA - p.StartLBA + 1) * uint64(sectorSize)
		p.OffsetBytes = int64(p.StartLBA) * sectorSize
	}

	return ptSummary, nil
}

// selectVolumes decides which partitions are inspected.
func selectVolumes(pt PartitionTableSummary, all bool) []VolumeResult {
	volumes := make([]VolumeResult, 0, len(pt.Partitions))
	for _, p := range pt.Partitions {
		v := VolumeResult{Partition: p}
		switch pt.Type {
		case TableNone:
		case TableMBR:
			if !all && !isFAT16MBRType(p.Type) {
				v.Skipped = true
				v.Notes = append(v.Notes, fmt.Sprintf("MBR type %s is not a FAT16 type", p.Type))
			}
		case TableGPT:
			if !all {
				if isFATCandidateGPTType(p.Type) {
					v.checkLabel = true
				} else {
					v.Skipped = true
					v.Notes = append(v.Notes, fmt.Sprintf("GPT type %s cannot hold a FAT16 volume", p.Type))
				}
			}
		}
		volumes = append(volumes, v)
	}
	return volumes
}

// inspectVolumes runs a pool of workers over the selected volumes. Each
// worker opens its own handle on the image.
func (d *Inspector) inspectVolumes(rawPath string, volumes []VolumeResult, opts ScanOptions) {
	pending := make([]int, 0, len(volumes))
	for i := range volumes {
		if !volumes[i].Skipped {
			pending = append(pending, i)
		}
	}
	if len(pending) == 0 {
		return
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(pending) {
		workers = len(pending)
	}

	var bar *progressbar.ProgressBar
	if opts.Progress != nil && len(pending) > 1 {
		bar = progressbar.NewOptions(len(pending),
			progressbar.OptionSetWriter(opts.Progress),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionShowCount(),
			progressbar.OptionThrottle(200*time.Millisecond),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetDescription("inspecting volumes"),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}

	jobs := make(chan int, len(pending))
	for _, i := range pending {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()

			f, openErr := d.fs.Open(rawPath)
			if openErr == nil {
				defer f.Close()
			}

			for i := range jobs {
				v := &volumes[i]
				if openErr != nil {
					v.fail(fmt.Errorf("open image file: %w", openErr))
				} else {
					d.inspectPartition(f, v)
				}
				if bar != nil {
					_ = bar.Add(1)
				}
			}
		}()
	}
	wg.Wait()

	if bar != nil {
		_ = bar.Finish()
	}
}

// inspectPartition decodes one selected volume. When v.checkLabel is set the
// raw type label is checked first and a non-FAT16 volume is skipped without
// decoding anything else.
func (d *Inspector) inspectPartition(src io.ReadSeeker, v *VolumeResult) {
	if v.checkLabel {
		label, err := fat16.ReadFSTypeLabel(src, v.Partition.OffsetBytes)
		if err != nil {
			d.logger.Warnf("Partition %d at offset %d: %v", v.Partition.Index, v.Partition.OffsetBytes, err)
			v.fail(fmt.Errorf("read type label at offset %d: %w", v.Partition.OffsetBytes, err))
			return
		}
		if !fat16.IsFAT16TypeLabel(label) {
			d.logger.Debugf("Partition %d: type label %q, skipping", v.Partition.Index, label)
			v.Skipped = true
			v.Notes = append(v.Notes, fmt.Sprintf("file system type label %q is not FAT16", label))
			return
		}
	}

	summary, err := d.inspectVolume(src, v.Partition.OffsetBytes)
	if err != nil {
		d.logger.Warnf("Partition %d at offset %d: %v", v.Partition.Index, v.Partition.OffsetBytes, err)
		v.fail(err)
		return
	}
	v.Summary = summary
}

func (v *VolumeResult) fail(err error) {
	v.err = err
	v.Error = err.Error()
}

// normalizeGUID returns the canonical upper-case form of a GUID string.
func normalizeGUID(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if u, err := uuid.Parse(s); err == nil {
		return strings.ToUpper(u.String())
	}
	return strings.ToUpper(s)
}

func isFAT16MBRType(code string) bool {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "0x04", "0x06", "0x0e", "0x14", "0x16", "0x1e":
		return true
	default:
		return false
	}
}

func isFATCandidateGPTType(guid string) bool {
	switch normalizeGUID(guid) {
	case gptTypeESP, gptTypeBasicData:
		return true
	default:
		return false
	}
}

func gptTypeName(guid string) string {
	switch normalizeGUID(guid) {
	case gptTypeESP:
		return "EFI System Partition"
	case gptTypeBasicData:
		return "Microsoft basic data"
	case "4F68BCE3-E8CD-4DB1-96E7-FBCAF984B709":
		return "Linux root (x86-64)"
	case "0FC63DAF-8483-4772-8E79-3D69D8477DE4":
		return "Linux filesystem"
	case "21686148-6449-6E6F-744E-656564454649":
		return "BIOS boot partition"
	default:
		return ""
	}
}

func mbrTypeName(code string) string {
	switch strings.ToLower(strings.TrimSpace(code)) {
	case "0x01":
		return "FAT12"
	case "0x04":
		return "FAT16 <32M"
	case "0x06":
		return "FAT16"
	case "0x07":
		return "HPFS/NTFS/exFAT"
	case "0x0b":
		return "W95 FAT32"
	case "0x0c":
		return "W95 FAT32 (LBA)"
	case "0x0e":
		return "W95 FAT16 (LBA)"
	case "0x14":
		return "Hidden FAT16 <32M"
	case "0x16":
		return "Hidden FAT16"
	case "0x1e":
		return "Hidden W95 FAT16 (LBA)"
	case "0x82":
		return "Linux swap"
	case "0x83":
		return "Linux filesystem"
	case "0xef":
		return "EFI (FAT-12/16/32)"
	default:
		return ""
	}
}
