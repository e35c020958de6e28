// Package fat16 decodes the boot sector of a FAT16 volume and derives its
// on-disk sector layout.
package fat16

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FSTypeFAT16 is the filesystem type the reader assumes. The type label in
// the boot sector is reported but never used for detection.
const FSTypeFAT16 = "FAT16"

// DirEntrySize is the size in bytes of one FAT directory entry.
const DirEntrySize = 32

// BootSectorFields holds the scalar fields of a FAT16 boot sector. It is
// populated once by Reader.Read and never mutated afterwards.
type BootSectorFields struct {
	BaseOffset int64  `json:"baseOffset" yaml:"baseOffset"` // byte offset of sector 0 in the image
	FSType     string `json:"fsType" yaml:"fsType"`
	Encoding   string `json:"encoding" yaml:"encoding"` // encoding used for the text fields

	OEMName           string `json:"oemName" yaml:"oemName"`
	BytesPerSector    uint16 `json:"bytesPerSector" yaml:"bytesPerSector"`
	SectorsPerCluster uint8  `json:"sectorsPerCluster" yaml:"sectorsPerCluster"`
	ReservedSectors   uint16 `json:"reservedSectors" yaml:"reservedSectors"`
	NumFATs           uint8  `json:"numFats" yaml:"numFats"`
	RootEntryCount    uint16 `json:"rootEntryCount" yaml:"rootEntryCount"`
	TotalSectors16    uint16 `json:"totalSectors16" yaml:"totalSectors16"`
	FATSizeSectors    uint16 `json:"fatSizeSectors" yaml:"fatSizeSectors"`
	// TotalSectors32 is only read when TotalSectors16 is zero.
	TotalSectors32 uint32 `json:"totalSectors32,omitempty" yaml:"totalSectors32,omitempty"`
	VolumeID       uint32 `json:"volumeId" yaml:"volumeId"`
	VolumeLabel    string `json:"volumeLabel" yaml:"volumeLabel"`
	FSTypeLabel    string `json:"fsTypeLabel" yaml:"fsTypeLabel"`
}

// TotalSectors returns the authoritative total sector count, sector 0 included.
func (f *BootSectorFields) TotalSectors() uint32 {
	if f.TotalSectors16 != 0 {
		return uint32(f.TotalSectors16)
	}
	return f.TotalSectors32
}

// UsableTotal is the index of the last sector of the volume.
func (f *BootSectorFields) UsableTotal() int64 {
	return int64(f.TotalSectors()) - 1
}

// VolumeIDHex formats the volume ID as 8 hexadecimal digits.
func (f *BootSectorFields) VolumeIDHex() string {
	return fmt.Sprintf("0x%08x", f.VolumeID)
}

type fieldDecoder func(f *BootSectorFields, b []byte, td *TextDecoder) error

// fieldSpec describes one boot sector field: where it lives relative to the
// base offset and how its bytes become a value.
type fieldSpec struct {
	name   string
	offset int64
	length int
	decode fieldDecoder
}

func u8Field(set func(*BootSectorFields, uint8)) fieldDecoder {
	return func(f *BootSectorFields, b []byte, _ *TextDecoder) error {
		set(f, b[0])
		return nil
	}
}

func u16Field(set func(*BootSectorFields, uint16)) fieldDecoder {
	return func(f *BootSectorFields, b []byte, _ *TextDecoder) error {
		set(f, binary.LittleEndian.Uint16(b))
		return nil
	}
}

func u32Field(set func(*BootSectorFields, uint32)) fieldDecoder {
	return func(f *BootSectorFields, b []byte, _ *TextDecoder) error {
		set(f, binary.LittleEndian.Uint32(b))
		return nil
	}
}

func textField(set func(*BootSectorFields, string)) fieldDecoder {
	return func(f *BootSectorFields, b []byte, td *TextDecoder) error {
		s, err := td.Decode(b)
		if err != nil {
			return err
		}
		set(f, s)
		return nil
	}
}

// fieldTable lists every field read unconditionally. Each entry is an
// independent random-access read.
var fieldTable = []fieldSpec{
	{"oem_name", 3, 8, textField(func(f *BootSectorFields, v string) { f.OEMName = v })},
	{"bytes_per_sector", 11, 2, u16Field(func(f *BootSectorFields, v uint16) { f.BytesPerSector = v })},
	{"sectors_per_cluster", 13, 1, u8Field(func(f *BootSectorFields, v uint8) { f.SectorsPerCluster = v })},
	{"reserved_sectors", 14, 2, u16Field(func(f *BootSectorFields, v uint16) { f.ReservedSectors = v })},
	{"num_fats", 16, 1, u8Field(func(f *BootSectorFields, v uint8) { f.NumFATs = v })},
	{"root_entry_count", 17, 2, u16Field(func(f *BootSectorFields, v uint16) { f.RootEntryCount = v })},
	{"total_sectors_16", 19, 2, u16Field(func(f *BootSectorFields, v uint16) { f.TotalSectors16 = v })},
	{"fat_size_sectors", 22, 2, u16Field(func(f *BootSectorFields, v uint16) { f.FATSizeSectors = v })},
	{"volume_id", 39, 4, u32Field(func(f *BootSectorFields, v uint32) { f.VolumeID = v })},
	{"volume_label", 43, 11, textField(func(f *BootSectorFields, v string) { f.VolumeLabel = v })},
	fsTypeLabelField,
}

var fsTypeLabelField = fieldSpec{
	"fs_type_label", 54, 8, textField(func(f *BootSectorFields, v string) { f.FSTypeLabel = v }),
}

// totalSectors32Field is only consulted when total_sectors_16 is zero.
var totalSectors32Field = fieldSpec{
	"total_sectors_32", 32, 4, u32Field(func(f *BootSectorFields, v uint32) { f.TotalSectors32 = v }),
}

// Reader extracts BootSectorFields from a seekable byte source.
type Reader struct {
	decoder *TextDecoder
}

// NewReader returns a Reader decoding text fields with the named encoding.
// An empty name selects DefaultEncoding.
func NewReader(encodingName string) (*Reader, error) {
	td, err := NewTextDecoder(encodingName)
	if err != nil {
		return nil, err
	}
	return &Reader{decoder: td}, nil
}

// ReadBootSector reads the boot sector at baseOffset using DefaultEncoding.
func ReadBootSector(src io.ReadSeeker, baseOffset int64) (*BootSectorFields, error) {
	r, err := NewReader(DefaultEncoding)
	if err != nil {
		return nil, err
	}
	return r.Read(src, baseOffset)
}

// Read decodes every boot sector field of the volume starting at baseOffset.
// The source is only borrowed; closing it is up to the caller.
func (r *Reader) Read(src io.ReadSeeker, baseOffset int64) (*BootSectorFields, error) {
	if baseOffset < 0 {
		return nil, &IOError{Offset: baseOffset, Err: fmt.Errorf("negative base offset")}
	}

	f := &BootSectorFields{
		BaseOffset: baseOffset,
		FSType:     FSTypeFAT16,
		Encoding:   r.decoder.Name(),
	}

	for _, spec := range fieldTable {
		if err := r.readField(src, baseOffset, spec, f); err != nil {
			return nil, err
		}
	}

	if f.TotalSectors16 == 0 {
		if err := r.readField(src, baseOffset, totalSectors32Field, f); err != nil {
			return nil, err
		}
	}

	return f, nil
}

// readField seeks to baseOffset+spec.offset, reads exactly spec.length bytes
// and decodes them into f. A short read is an IOError.
func (r *Reader) readField(src io.ReadSeeker, baseOffset int64, spec fieldSpec, f *BootSectorFields) error {
	buf, err := readRaw(src, baseOffset, spec)
	if err != nil {
		return err
	}

	abs := baseOffset + spec.offset
	if err := spec.decode(f, buf, r.decoder); err != nil {
		return &DecodeError{
			Field:    spec.name,
			Offset:   abs,
			Encoding: r.decoder.Name(),
			Raw:      buf,
			Err:      err,
		}
	}
	return nil
}

func readRaw(src io.ReadSeeker, baseOffset int64, spec fieldSpec) ([]byte, error) {
	abs := baseOffset + spec.offset

	if _, err := src.Seek(abs, io.SeekStart); err != nil {
		return nil, &IOError{Field: spec.name, Offset: abs, Length: spec.length, Err: err}
	}

	buf := make([]byte, spec.length)
	if _, err := io.ReadFull(src, buf); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, &IOError{Field: spec.name, Offset: abs, Length: spec.length, Err: err}
	}
	return buf, nil
}

// ReadFSTypeLabel returns the undecoded file system type label of the volume
// at baseOffset. No other field is read, so it works on boot sectors of any
// file system.
func ReadFSTypeLabel(src io.ReadSeeker, baseOffset int64) ([]byte, error) {
	if baseOffset < 0 {
		return nil, &IOError{Offset: baseOffset, Err: fmt.Errorf("negative base offset")}
	}
	return readRaw(src, baseOffset, fsTypeLabelField)
}

// IsFAT16TypeLabel reports whether a raw type label names FAT16.
func IsFAT16TypeLabel(label []byte) bool {
	return bytes.HasPrefix(bytes.TrimSpace(label), []byte(FSTypeFAT16))
}
