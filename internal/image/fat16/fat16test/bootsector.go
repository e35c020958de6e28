// Package fat16test builds synthetic FAT16 boot sectors and images for tests.
package fat16test

import (
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
)

// Geometry is the set of boot sector values a test controls.
type Geometry struct {
	OEMName           string
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	FATSizeSectors    uint16
	TotalSectors32    uint32
	VolumeID          uint32
	VolumeLabel       string
	FSTypeLabel       string
}

// Reference is the worked example geometry: a 1.44 MB floppy-sized volume.
var Reference = Geometry{
	OEMName:           "MSDOS5.0",
	BytesPerSector:    512,
	SectorsPerCluster: 4,
	ReservedSectors:   1,
	NumFATs:           2,
	RootEntryCount:    512,
	TotalSectors16:    2880,
	FATSizeSectors:    8,
	VolumeID:          0x1234ABCD,
	VolumeLabel:       "NO NAME    ",
	FSTypeLabel:       "FAT16   ",
}

// rawBootSector mirrors the on-disk FAT12/16 boot sector up to the file
// system type label. binary.Write packs it without padding.
type rawBootSector struct {
	JmpBoot           [3]byte
	OEMName           [8]byte
	BytesPerSector    uint16
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	RootEntryCount    uint16
	TotalSectors16    uint16
	Media             uint8
	FATSize16         uint16
	SectorsPerTrack   uint16
	NumHeads          uint16
	HiddenSectors     uint32
	TotalSectors32    uint32
	DriveNumber       uint8
	Reserved1         uint8
	BootSignature     uint8
	VolumeID          uint32
	VolumeLabel       [11]byte
	FSType            [8]byte
}

// BootSector returns a 512-byte boot sector for g, with the 0x55AA signature.
func BootSector(g Geometry) []byte {
	raw := rawBootSector{
		JmpBoot:           [3]byte{0xEB, 0x3C, 0x90},
		BytesPerSector:    g.BytesPerSector,
		SectorsPerCluster: g.SectorsPerCluster,
		ReservedSectors:   g.ReservedSectors,
		NumFATs:           g.NumFATs,
		RootEntryCount:    g.RootEntryCount,
		TotalSectors16:    g.TotalSectors16,
		Media:             0xF8,
		FATSize16:         g.FATSizeSectors,
		SectorsPerTrack:   63,
		NumHeads:          255,
		TotalSectors32:    g.TotalSectors32,
		DriveNumber:       0x80,
		BootSignature:     0x29,
		VolumeID:          g.VolumeID,
	}
	copy(raw.OEMName[:], padded(g.OEMName, 8))
	copy(raw.VolumeLabel[:], padded(g.VolumeLabel, 11))
	copy(raw.FSType[:], padded(g.FSTypeLabel, 8))

	sector := make([]byte, 512)
	if err := binary.Write(bytewriter.New(sector), binary.LittleEndian, &raw); err != nil {
		panic(fmt.Sprintf("fat16test: encode boot sector: %v", err))
	}
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}

// Image returns size bytes of zeroes with the boot sector of g written at
// baseOffset.
func Image(g Geometry, baseOffset int64, size int) []byte {
	img := make([]byte, size)
	copy(img[baseOffset:], BootSector(g))
	return img
}

func padded(s string, n int) []byte {
	b := []byte(s)
	for len(b) < n {
		b = append(b, ' ')
	}
	return b[:n]
}

// FAT32BootSector returns a FAT32 boot sector: both 16-bit size fields are
// zero and the type label lives at offset 82, so offset 54 holds reserved
// zero bytes.
func FAT32BootSector(totalSectors, fatSize uint32) []byte {
	sector := make([]byte, 512)
	copy(sector, []byte{0xEB, 0x58, 0x90})
	copy(sector[3:], "MSWIN4.1")
	binary.LittleEndian.PutUint16(sector[11:], 512)
	sector[13] = 8
	binary.LittleEndian.PutUint16(sector[14:], 32)
	sector[16] = 2
	sector[21] = 0xF8
	binary.LittleEndian.PutUint32(sector[32:], totalSectors)
	binary.LittleEndian.PutUint32(sector[36:], fatSize)
	binary.LittleEndian.PutUint32(sector[44:], 2)
	binary.LittleEndian.PutUint16(sector[48:], 1)
	binary.LittleEndian.PutUint16(sector[50:], 6)
	sector[64] = 0x80
	sector[66] = 0x29
	binary.LittleEndian.PutUint32(sector[67:], 0x5EED0001)
	copy(sector[71:], "EFI        ")
	copy(sector[82:], "FAT32   ")
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}

// NTFSBootSector returns an NTFS boot sector. Reserved sectors and the FAT
// fields are zero and offsets 40 to 63 hold 64-bit sector and cluster
// numbers rather than text.
func NTFSBootSector(totalSectors uint64) []byte {
	sector := make([]byte, 512)
	copy(sector, []byte{0xEB, 0x52, 0x90})
	copy(sector[3:], "NTFS    ")
	binary.LittleEndian.PutUint16(sector[11:], 512)
	sector[13] = 8
	sector[21] = 0xF8
	binary.LittleEndian.PutUint64(sector[40:], totalSectors)
	binary.LittleEndian.PutUint64(sector[48:], 0xC0FFEE)
	binary.LittleEndian.PutUint64(sector[56:], 0xFFFFFFFFFFFF0002)
	sector[64] = 0xF6
	sector[68] = 0x01
	binary.LittleEndian.PutUint64(sector[72:], 0x9ABCDEF012345678)
	sector[510] = 0x55
	sector[511] = 0xAA
	return sector
}
