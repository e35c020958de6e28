package imageinspect

import (
	"errors"
	"testing"

	"github.com/diskfs/go-diskfs/partition"
	"github.com/diskfs/go-diskfs/partition/gpt"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16/fat16test"
	"github.com/spf13/afero"
)

const (
	testImagePath = "/images/disk.img"
	mib           = 1 << 20
)

type fakeDiskAccessor struct {
	pt    partition.Table
	ptErr error

	calls struct {
		getPT int
		close int
	}
}

func (f *fakeDiskAccessor) GetPartitionTable() (partition.Table, error) {
	f.calls.getPT++
	if f.ptErr != nil {
		return nil, f.ptErr
	}
	return f.pt, nil
}

// fakeOpener returns a diskOpener serving disk. A nil disk fails to open.
func fakeOpener(disk *fakeDiskAccessor, blockSize int64) diskOpener {
	return func(afero.Fs, string) (partitionTableReader, int64, func() error, error) {
		if disk == nil {
			return nil, 0, nil, errors.New("not a disk image")
		}
		return disk, blockSize, func() error {
			disk.calls.close++
			return nil
		}, nil
	}
}

// newTestInspector returns an inspector on an in-memory filesystem.
func newTestInspector(t *testing.T, opts Options) (*Inspector, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	if opts.TempDir == "" {
		opts.TempDir = "/tmp/expand"
	}
	d, err := NewInspectorFs(fs, opts)
	if err != nil {
		t.Fatalf("NewInspectorFs: %v", err)
	}
	return d, fs
}

func writeFile(t *testing.T, fs afero.Fs, path string, data []byte) {
	t.Helper()
	if err := afero.WriteFile(fs, path, data, 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// diskWithVolumes builds an image of size bytes with the reference boot
// sector written at each offset.
func diskWithVolumes(size int, offsets ...int64) []byte {
	img := make([]byte, size)
	for _, off := range offsets {
		copy(img[off:], fat16test.BootSector(fat16test.Reference))
	}
	return img
}

func mbrTable(parts ...*mbr.Partition) *mbr.Table {
	return &mbr.Table{
		PhysicalSectorSize: 512,
		LogicalSectorSize:  512,
		Partitions:         parts,
	}
}

func gptTable(parts ...*gpt.Partition) *gpt.Table {
	return &gpt.Table{
		PhysicalSectorSize: 4096,
		LogicalSectorSize:  512,
		ProtectiveMBR:      true,
		GUID:               "5b1f6c2e-8d3a-4c1e-9f7a-2b6d0e4a1c3f",
		Partitions:         parts,
	}
}

func require(t *testing.T, cond bool, msg string, args ...any) {
	t.Helper()
	if !cond {
		t.Fatalf(msg, args...)
	}
}
