package imageinspect

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
)

// VolumeCompareResult represents the result of comparing two FAT16 volumes.
type VolumeCompareResult struct {
	SchemaVersion string `json:"schemaVersion,omitempty" yaml:"schemaVersion,omitempty"`

	From VolumeSummary `json:"from" yaml:"from"`
	To   VolumeSummary `json:"to" yaml:"to"`

	Equality Equality       `json:"equality" yaml:"equality"`
	Summary  CompareSummary `json:"summary,omitempty" yaml:"summary,omitempty"`
	Diff     VolumeDiff     `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// CompareSummary provides a high-level summary of differences between two volumes.
type CompareSummary struct {
	Changed bool `json:"changed,omitempty" yaml:"changed,omitempty"`

	ImageChanged      bool `json:"imageChanged,omitempty" yaml:"imageChanged,omitempty"`
	BootSectorChanged bool `json:"bootSectorChanged,omitempty" yaml:"bootSectorChanged,omitempty"`
	LayoutChanged     bool `json:"layoutChanged,omitempty" yaml:"layoutChanged,omitempty"`

	AddedCount    int `json:"addedCount,omitempty" yaml:"addedCount,omitempty"`
	RemovedCount  int `json:"removedCount,omitempty" yaml:"removedCount,omitempty"`
	ModifiedCount int `json:"modifiedCount,omitempty" yaml:"modifiedCount,omitempty"`
}

// VolumeDiff represents the differences between two VolumeSummary objects.
type VolumeDiff struct {
	Image      MetaDiff      `json:"image,omitempty" yaml:"image,omitempty"`
	BootSector []FieldChange `json:"bootSector,omitempty" yaml:"bootSector,omitempty"`
	Regions    RegionDiff    `json:"regions,omitempty" yaml:"regions,omitempty"`

	SectorSize  *ValueDiff[uint32]             `json:"sectorSize,omitempty" yaml:"sectorSize,omitempty"`
	ClusterSize *ValueDiff[uint32]             `json:"clusterSize,omitempty" yaml:"clusterSize,omitempty"`
	Clusters    *ValueDiff[fat16.ClusterRange] `json:"clusters,omitempty" yaml:"clusters,omitempty"`
}

// MetaDiff represents differences in image-level metadata.
type MetaDiff struct {
	SizeBytes  *ValueDiff[int64]  `json:"sizeBytes,omitempty" yaml:"sizeBytes,omitempty"`
	BaseOffset *ValueDiff[int64]  `json:"baseOffset,omitempty" yaml:"baseOffset,omitempty"`
	SHA256     *ValueDiff[string] `json:"sha256,omitempty" yaml:"sha256,omitempty"`
}

// RegionDiff represents added, removed and moved layout regions.
type RegionDiff struct {
	Added    []fat16.Region   `json:"added,omitempty" yaml:"added,omitempty"`
	Removed  []fat16.Region   `json:"removed,omitempty" yaml:"removed,omitempty"`
	Modified []ModifiedRegion `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// ModifiedRegion is a region present in both volumes at different sectors.
type ModifiedRegion struct {
	Name string            `json:"name" yaml:"name"`
	From fat16.SectorRange `json:"from" yaml:"from"`
	To   fat16.SectorRange `json:"to" yaml:"to"`
}

// EqualityClass represents the class of equality between two volumes.
type EqualityClass string

// Possible values for EqualityClass
const (
	EqualityBinary     EqualityClass = "binary_identical"
	EqualitySemantic   EqualityClass = "semantically_identical"
	EqualityUnverified EqualityClass = "semantically_identical_unverified"
	EqualityDifferent  EqualityClass = "different"
)

// Equality represents the equality assessment between two volumes.
type Equality struct {
	Class EqualityClass `json:"class" yaml:"class"`

	VolatileDiffs     int      `json:"volatileDiffs,omitempty" yaml:"volatileDiffs,omitempty"`
	MeaningfulDiffs   int      `json:"meaningfulDiffs,omitempty" yaml:"meaningfulDiffs,omitempty"`
	VolatileReasons   []string `json:"volatileReasons,omitempty" yaml:"volatileReasons,omitempty"`
	MeaningfulReasons []string `json:"meaningfulReasons,omitempty" yaml:"meaningfulReasons,omitempty"`
}

// ValueDiff represents a difference in a single value between two objects.
type ValueDiff[T any] struct {
	From T `json:"from" yaml:"from"`
	To   T `json:"to" yaml:"to"`
}

// FieldChange represents a change in a single field between two objects.
type FieldChange struct {
	Field string `json:"field" yaml:"field"`
	From  any    `json:"from,omitempty" yaml:"from,omitempty"`
	To    any    `json:"to,omitempty" yaml:"to,omitempty"`
}

// diffTally helps tally volatile vs meaningful diffs.
type diffTally struct {
	volatile   int
	meaningful int

	vReasons []string
	mReasons []string
}

func (t *diffTally) addVolatile(n int, reason string) {
	t.volatile += n
	if reason != "" {
		t.vReasons = append(t.vReasons, fmt.Sprintf("+%d %s", n, reason))
	}
}

func (t *diffTally) addMeaningful(n int, reason string) {
	t.meaningful += n
	if reason != "" {
		t.mReasons = append(t.mReasons, fmt.Sprintf("+%d %s", n, reason))
	}
}

// Boot sector fields that differ between two formats of the same geometry.
var volatileBootSectorFields = map[string]bool{
	"oemName":     true,
	"volumeId":    true,
	"volumeLabel": true,
	"encoding":    true,
}

// CompareVolumes compares two VolumeSummary objects and returns a structured diff.
func CompareVolumes(from, to *VolumeSummary) VolumeCompareResult {
	if from == nil || to == nil || from.BootSector == nil || to.BootSector == nil ||
		from.Layout == nil || to.Layout == nil {
		return VolumeCompareResult{
			SchemaVersion: "1",
			Equality:      Equality{Class: EqualityDifferent},
		}
	}

	res := VolumeCompareResult{
		SchemaVersion: "1",
		From:          *from,
		To:            *to,
	}

	// --- image meta ---
	res.Diff.Image = compareMeta(*from, *to)
	if res.Diff.Image.SizeBytes != nil || res.Diff.Image.BaseOffset != nil {
		res.Summary.ImageChanged = true
		res.Summary.Changed = true
	}

	// --- boot sector ---
	res.Diff.BootSector = appendBootSectorFieldChanges(nil, from.BootSector, to.BootSector)
	if len(res.Diff.BootSector) > 0 {
		res.Summary.BootSectorChanged = true
		res.Summary.Changed = true
		res.Summary.ModifiedCount += len(res.Diff.BootSector)
	}

	// --- layout ---
	fl, tl := from.Layout, to.Layout
	res.Diff.Regions = compareRegions(fl.Regions(), tl.Regions())
	if fl.SectorSize != tl.SectorSize {
		res.Diff.SectorSize = &ValueDiff[uint32]{From: fl.SectorSize, To: tl.SectorSize}
	}
	if fl.ClusterSize != tl.ClusterSize {
		res.Diff.ClusterSize = &ValueDiff[uint32]{From: fl.ClusterSize, To: tl.ClusterSize}
	}
	if fl.Clusters != tl.Clusters {
		res.Diff.Clusters = &ValueDiff[fat16.ClusterRange]{From: fl.Clusters, To: tl.Clusters}
	}
	rd := res.Diff.Regions
	if len(rd.Added) > 0 || len(rd.Removed) > 0 || len(rd.Modified) > 0 ||
		res.Diff.SectorSize != nil || res.Diff.ClusterSize != nil || res.Diff.Clusters != nil {
		res.Summary.LayoutChanged = true
		res.Summary.Changed = true
		res.Summary.AddedCount += len(rd.Added)
		res.Summary.RemovedCount += len(rd.Removed)
		res.Summary.ModifiedCount += len(rd.Modified)
	}

	res.Equality = computeEquality(from, to, res.Diff)
	return res
}

func computeEquality(from, to *VolumeSummary, d VolumeDiff) Equality {
	t := tallyDiffs(d)

	hashAvailable := strings.TrimSpace(from.SHA256) != "" && strings.TrimSpace(to.SHA256) != ""
	binaryIdentical := hashAvailable && from.SHA256 == to.SHA256

	eq := Equality{
		VolatileDiffs:     t.volatile,
		MeaningfulDiffs:   t.meaningful,
		MeaningfulReasons: t.mReasons,
		VolatileReasons:   t.vReasons,
	}

	switch {
	case binaryIdentical:
		eq.Class = EqualityBinary
	case t.meaningful == 0:
		if hashAvailable {
			eq.Class = EqualitySemantic
		} else {
			eq.Class = EqualityUnverified
		}
	default:
		eq.Class = EqualityDifferent
	}

	return eq
}

func compareMeta(from, to VolumeSummary) MetaDiff {
	var d MetaDiff
	if from.SizeBytes != to.SizeBytes {
		d.SizeBytes = &ValueDiff[int64]{From: from.SizeBytes, To: to.SizeBytes}
	}
	if from.BaseOffset != to.BaseOffset {
		d.BaseOffset = &ValueDiff[int64]{From: from.BaseOffset, To: to.BaseOffset}
	}
	if from.SHA256 != "" && to.SHA256 != "" && from.SHA256 != to.SHA256 {
		d.SHA256 = &ValueDiff[string]{From: from.SHA256, To: to.SHA256}
	}
	return d
}

func appendBootSectorFieldChanges(dst []FieldChange, a, b *fat16.BootSectorFields) []FieldChange {
	add := func(field string, from, to any) {
		dst = append(dst, FieldChange{Field: field, From: from, To: to})
	}

	if a.OEMName != b.OEMName {
		add("oemName", a.OEMName, b.OEMName)
	}
	if a.BytesPerSector != b.BytesPerSector {
		add("bytesPerSector", a.BytesPerSector, b.BytesPerSector)
	}
	if a.SectorsPerCluster != b.SectorsPerCluster {
		add("sectorsPerCluster", a.SectorsPerCluster, b.SectorsPerCluster)
	}
	if a.ReservedSectors != b.ReservedSectors {
		add("reservedSectors", a.ReservedSectors, b.ReservedSectors)
	}
	if a.NumFATs != b.NumFATs {
		add("numFats", a.NumFATs, b.NumFATs)
	}
	if a.RootEntryCount != b.RootEntryCount {
		add("rootEntryCount", a.RootEntryCount, b.RootEntryCount)
	}
	if a.TotalSectors() != b.TotalSectors() {
		add("totalSectors", a.TotalSectors(), b.TotalSectors())
	}
	if a.FATSizeSectors != b.FATSizeSectors {
		add("fatSizeSectors", a.FATSizeSectors, b.FATSizeSectors)
	}
	if a.VolumeID != b.VolumeID {
		add("volumeId", a.VolumeIDHex(), b.VolumeIDHex())
	}
	if a.VolumeLabel != b.VolumeLabel {
		add("volumeLabel", a.VolumeLabel, b.VolumeLabel)
	}
	if a.FSTypeLabel != b.FSTypeLabel {
		add("fsTypeLabel", a.FSTypeLabel, b.FSTypeLabel)
	}
	if a.Encoding != b.Encoding {
		add("encoding", a.Encoding, b.Encoding)
	}
	return dst
}

// compareRegions matches regions by name.
func compareRegions(from, to []fat16.Region) RegionDiff {
	var d RegionDiff

	toByName := make(map[string]fat16.SectorRange, len(to))
	for _, r := range to {
		toByName[r.Name] = r.Range
	}
	fromNames := make(map[string]bool, len(from))

	for _, r := range from {
		fromNames[r.Name] = true
		other, ok := toByName[r.Name]
		switch {
		case !ok:
			d.Removed = append(d.Removed, r)
		case other != r.Range:
			d.Modified = append(d.Modified, ModifiedRegion{Name: r.Name, From: r.Range, To: other})
		}
	}
	for _, r := range to {
		if !fromNames[r.Name] {
			d.Added = append(d.Added, r)
		}
	}
	return d
}

func tallyDiffs(d VolumeDiff) diffTally {
	var t diffTally

	if d.Image.SizeBytes != nil {
		t.addVolatile(1, "image size")
	}
	if d.Image.BaseOffset != nil {
		t.addVolatile(1, "volume offset")
	}

	for _, c := range d.BootSector {
		if volatileBootSectorFields[c.Field] {
			t.addVolatile(1, "boot sector "+c.Field)
		} else {
			t.addMeaningful(1, "boot sector "+c.Field)
		}
	}

	if n := len(d.Regions.Added); n > 0 {
		t.addMeaningful(n, "regions added")
	}
	if n := len(d.Regions.Removed); n > 0 {
		t.addMeaningful(n, "regions removed")
	}
	for _, m := range d.Regions.Modified {
		t.addMeaningful(1, "region "+m.Name)
	}
	if d.SectorSize != nil {
		t.addMeaningful(1, "sector size")
	}
	if d.ClusterSize != nil {
		t.addMeaningful(1, "cluster size")
	}
	if d.Clusters != nil {
		t.addMeaningful(1, "cluster range")
	}

	return t
}
