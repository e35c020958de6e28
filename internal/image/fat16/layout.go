package fat16

import (
	"fmt"
	"strings"
)

// FirstCluster is the number of the first data cluster. Clusters 0 and 1 are
// reserved in the FAT.
const FirstCluster = 2

// RoundingMode selects how a root directory size that is not a whole number
// of sectors is handled.
type RoundingMode string

const (
	// RoundTruncate carries the fractional root directory size through the
	// cluster arithmetic and truncates each reported boundary toward zero.
	RoundTruncate RoundingMode = "truncate"
	// RoundFloor rounds the root directory size down to whole sectors first.
	RoundFloor RoundingMode = "floor"
	// RoundCeil rounds the root directory size up to whole sectors first.
	RoundCeil RoundingMode = "ceil"
)

// ParseRoundingMode accepts "truncate", "floor" or "ceil". An empty string
// selects RoundTruncate.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch m := RoundingMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return RoundTruncate, nil
	case RoundTruncate, RoundFloor, RoundCeil:
		return m, nil
	default:
		return "", fmt.Errorf("unsupported rounding mode %q (supported: truncate, floor, ceil)", s)
	}
}

// SectorRange is an inclusive range of sector indices. End == Start-1 denotes
// an empty range.
type SectorRange struct {
	Start int64 `json:"start" yaml:"start"`
	End   int64 `json:"end" yaml:"end"`
}

// Len returns the number of sectors in the range.
func (r SectorRange) Len() int64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start + 1
}

// Empty reports whether the range holds no sectors.
func (r SectorRange) Empty() bool { return r.End < r.Start }

func (r SectorRange) String() string {
	return fmt.Sprintf("%d - %d", r.Start, r.End)
}

// ClusterRange is the inclusive range of cluster numbers in the cluster area.
type ClusterRange struct {
	First int64 `json:"first" yaml:"first"`
	Last  int64 `json:"last" yaml:"last"`
}

// Region is a named sector range, in on-disk order.
type Region struct {
	Name  string      `json:"name" yaml:"name"`
	Range SectorRange `json:"range" yaml:"range"`
}

// Layout is the region map of a FAT16 volume derived from its boot sector.
type Layout struct {
	Rounding RoundingMode `json:"rounding" yaml:"rounding"`

	TotalRange        SectorRange `json:"totalRange" yaml:"totalRange"`
	TotalRangeInImage SectorRange `json:"totalRangeInImage" yaml:"totalRangeInImage"`

	Reserved     SectorRange   `json:"reserved" yaml:"reserved"`
	FATs         []SectorRange `json:"fats" yaml:"fats"`
	DataArea     SectorRange   `json:"dataArea" yaml:"dataArea"`
	RootDir      SectorRange   `json:"rootDir" yaml:"rootDir"`
	ClusterArea  SectorRange   `json:"clusterArea" yaml:"clusterArea"`
	NonClustered SectorRange   `json:"nonClustered" yaml:"nonClustered"`

	SectorSize  uint32       `json:"sectorSize" yaml:"sectorSize"`
	ClusterSize uint32       `json:"clusterSize" yaml:"clusterSize"`
	Clusters    ClusterRange `json:"clusters" yaml:"clusters"`

	Notes []string `json:"notes,omitempty" yaml:"notes,omitempty"`
}

// Regions lists the non-overlapping regions of the volume in ascending order.
func (l *Layout) Regions() []Region {
	out := make([]Region, 0, len(l.FATs)+5)
	out = append(out, Region{Name: "reserved", Range: l.Reserved})
	for i, fat := range l.FATs {
		out = append(out, Region{Name: fmt.Sprintf("FAT%d", i), Range: fat})
	}
	out = append(out,
		Region{Name: "root_directory", Range: l.RootDir},
		Region{Name: "cluster_area", Range: l.ClusterArea},
		Region{Name: "non_clustered", Range: l.NonClustered},
	)
	return out
}

// Calculator derives a Layout from boot sector fields. The zero value uses
// RoundTruncate.
type Calculator struct {
	Rounding RoundingMode
}

// ComputeLayout derives the layout with RoundTruncate.
func ComputeLayout(f *BootSectorFields) (*Layout, error) {
	return Calculator{}.Compute(f)
}

// Compute is a pure function of f; computing twice yields identical layouts.
//
// Sector positions inside the data area are kept scaled by bytes_per_sector
// so the fractional root directory size is exact without floating point.
func (c Calculator) Compute(f *BootSectorFields) (*Layout, error) {
	if f == nil {
		return nil, invalidLayout("no boot sector fields")
	}

	rounding, err := ParseRoundingMode(string(c.Rounding))
	if err != nil {
		return nil, invalidLayout("%v", err)
	}

	switch {
	case f.BytesPerSector == 0:
		return nil, invalidLayout("bytes per sector is 0")
	case f.SectorsPerCluster == 0:
		return nil, invalidLayout("sectors per cluster is 0")
	case f.NumFATs == 0:
		return nil, invalidLayout("number of FATs is 0")
	case f.FATSizeSectors == 0:
		return nil, invalidLayout("FAT size is 0 sectors with %d FATs", f.NumFATs)
	case f.ReservedSectors == 0:
		return nil, invalidLayout("reserved area is empty; the boot sector must be reserved")
	case f.TotalSectors() == 0:
		return nil, invalidLayout("total sector count is 0")
	}

	l := &Layout{
		Rounding:    rounding,
		SectorSize:  uint32(f.BytesPerSector),
		ClusterSize: uint32(f.BytesPerSector) * uint32(f.SectorsPerCluster),
	}

	// 1. usable total
	usable := f.UsableTotal()
	l.TotalRange = SectorRange{Start: 0, End: usable}
	l.TotalRangeInImage = SectorRange{Start: 0, End: usable - 1}
	l.Notes = append(l.Notes, fmt.Sprintf(
		"Total Range in Image (0 - %d) subtracts one more sector than Total Range (0 - %d); both are reported unreconciled",
		usable-1, usable))

	// 2. reserved area
	l.Reserved = SectorRange{Start: 0, End: int64(f.ReservedSectors) - 1}

	// 3. FAT copies, back to back
	fatSize := int64(f.FATSizeSectors)
	offset := int64(f.ReservedSectors)
	l.FATs = make([]SectorRange, 0, f.NumFATs)
	for i := 0; i < int(f.NumFATs); i++ {
		l.FATs = append(l.FATs, SectorRange{Start: offset, End: offset + fatSize - 1})
		offset += fatSize
	}
	fatEnd := offset - 1

	// 4. data area
	if fatEnd >= usable {
		return nil, invalidLayout("FAT region ends at sector %d, past the last sector %d", fatEnd, usable)
	}
	l.DataArea = SectorRange{Start: fatEnd + 1, End: usable}

	// 5. root directory
	scale := int64(f.BytesPerSector)
	rootBytes := int64(f.RootEntryCount) * DirEntrySize
	rootScaled := rootBytes
	switch rounding {
	case RoundFloor:
		rootScaled = (rootBytes / scale) * scale
	case RoundCeil:
		rootScaled = ((rootBytes + scale - 1) / scale) * scale
	}
	if rootBytes%scale != 0 {
		l.Notes = append(l.Notes, fmt.Sprintf(
			"root directory holds %d bytes, not a whole number of %d-byte sectors (rounding: %s)",
			rootBytes, scale, rounding))
	}

	usableScaled := usable * scale
	rootEndScaled := fatEnd*scale + rootScaled
	if rootEndScaled > usableScaled {
		return nil, invalidLayout("root directory of %d entries runs past the last sector %d", f.RootEntryCount, usable)
	}
	l.RootDir = SectorRange{Start: l.DataArea.Start, End: rootEndScaled / scale}

	// 6. cluster area, trimmed to whole clusters
	clusterScaled := int64(f.SectorsPerCluster) * scale
	remainder := (usableScaled - rootEndScaled) % clusterScaled
	clusterEndScaled := usableScaled - remainder
	l.ClusterArea = SectorRange{Start: l.RootDir.End + 1, End: clusterEndScaled / scale}
	if l.ClusterArea.End <= l.RootDir.End {
		return nil, invalidLayout("cluster area ends at sector %d, before it starts at %d", l.ClusterArea.End, l.ClusterArea.Start)
	}

	// 7. trailing sectors too few for a cluster
	l.NonClustered = SectorRange{Start: l.ClusterArea.End + 1, End: usable}

	// 8. cluster numbers
	l.Clusters = ClusterRange{
		First: FirstCluster,
		Last:  FirstCluster + (clusterEndScaled-(rootEndScaled+scale))/clusterScaled,
	}

	return l, nil
}
