package imageinspect

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
)

const divider = "-------------------------------------------"

// PrintSummary prints the FAT16 volume report to the given writer.
func PrintSummary(w io.Writer, summary *VolumeSummary) {
	if summary == nil || summary.BootSector == nil || summary.Layout == nil {
		logger.Logger().Errorf("PrintSummary: summary is nil")
		return
	}
	bs, l := summary.BootSector, summary.Layout

	fmt.Fprintln(w, "FILE SYSTEM INFORMATION")
	fmt.Fprintln(w, divider)
	fmt.Fprintf(w, "File System Type: %s\n", bs.FSType)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "OEM Name: %s\n", bs.OEMName)
	fmt.Fprintf(w, "Volume ID: %s\n", bs.VolumeIDHex())
	fmt.Fprintf(w, "Volume Label (Boot Sector): %s\n", bs.VolumeLabel)
	fmt.Fprintln(w)
	fmt.Fprintf(w, "File System Type Label: %s\n", bs.FSTypeLabel)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "File System Layout (in sectors)")
	fmt.Fprintf(w, "Total Range: %s\n", l.TotalRange)
	fmt.Fprintf(w, "Total Range in Image: %s\n", l.TotalRangeInImage)
	fmt.Fprintf(w, "* Reserved: %s\n", l.Reserved)
	fmt.Fprintf(w, "** Boot Sector: %d\n", summary.BaseOffset)
	for i, fat := range l.FATs {
		fmt.Fprintf(w, "* FAT%d: %s\n", i, fat)
	}
	fmt.Fprintf(w, "* Data Area: %s\n", l.DataArea)
	fmt.Fprintf(w, "** Root Directory: %s\n", l.RootDir)
	fmt.Fprintf(w, "** Cluster Area: %s\n", l.ClusterArea)
	fmt.Fprintf(w, "** Non-clustered: %s\n", l.NonClustered)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "CONTENT INFORMATION")
	fmt.Fprintln(w, divider)
	fmt.Fprintf(w, "Sector Size: %d bytes\n", l.SectorSize)
	fmt.Fprintf(w, "Cluster Size: %d bytes\n", l.ClusterSize)
	fmt.Fprintf(w, "Total Cluster Range: %d - %d\n", l.Clusters.First, l.Clusters.Last)

	if summary.SHA256 != "" || summary.Compression != "" {
		fmt.Fprintln(w)
		kv := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if summary.Compression != "" {
			fmt.Fprintf(kv, "Image compression:\t%s\n", summary.Compression)
		}
		if summary.SHA256 != "" {
			fmt.Fprintf(kv, "Image SHA256:\t%s\n", summary.SHA256)
		}
		_ = kv.Flush()
	}

	printNotes(w, l.Notes)
}

// PrintScanSummary prints the partition table and one report per inspected
// volume.
func PrintScanSummary(w io.Writer, result *ScanResult) {
	if result == nil {
		logger.Logger().Errorf("PrintScanSummary: result is nil")
		return
	}

	fmt.Fprintln(w, "Disk Image Summary")
	fmt.Fprintln(w, "==================")
	kv := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(kv, "Image:\t%s\n", result.File)
	fmt.Fprintf(kv, "Size:\t%s (%d bytes)\n", humanBytes(result.SizeBytes), result.SizeBytes)
	if result.Compression != "" {
		fmt.Fprintf(kv, "Compression:\t%s\n", result.Compression)
	}
	if result.SHA256 != "" {
		fmt.Fprintf(kv, "SHA256:\t%s\n", result.SHA256)
	}
	_ = kv.Flush()

	pt := result.PartitionTable
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Partition Table")
	fmt.Fprintln(w, "---------------")
	kv = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(kv, "Type:\t%s\n", strings.ToUpper(emptyIfWhitespace(pt.Type)))
	if pt.DiskGUID != "" {
		fmt.Fprintf(kv, "Disk GUID:\t%s\n", pt.DiskGUID)
	}
	if pt.LogicalSectorSize > 0 {
		fmt.Fprintf(kv, "Logical sector size:\t%d bytes\n", pt.LogicalSectorSize)
	}
	_ = kv.Flush()

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Volumes")
	fmt.Fprintln(w, "-------")
	if len(result.Volumes) == 0 {
		fmt.Fprintln(w, "(none)")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDX\tNAME\tPTYPE\tPTYPE_NAME\tSTART(LBA)\tEND(LBA)\tSIZE\tSTATUS\tLABEL")
	for _, v := range result.Volumes {
		p := v.Partition
		label := "-"
		if v.Summary != nil {
			label = emptyIfWhitespace(v.Summary.BootSector.VolumeLabel)
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			p.Index,
			emptyIfWhitespace(p.Name),
			emptyIfWhitespace(p.Type),
			emptyIfWhitespace(p.TypeName),
			p.StartLBA,
			p.EndLBA,
			humanBytes(int64(p.SizeBytes)),
			volumeStatus(v),
			label,
		)
	}
	_ = tw.Flush()

	for _, v := range result.Volumes {
		fmt.Fprintln(w)
		switch {
		case v.Summary != nil:
			fmt.Fprintf(w, "Partition %d (offset %d)\n", v.Partition.Index, v.Partition.OffsetBytes)
			fmt.Fprintln(w)
			PrintSummary(w, v.Summary)
		case v.Error != "":
			fmt.Fprintf(w, "Partition %d: error: %s\n", v.Partition.Index, v.Error)
		default:
			fmt.Fprintf(w, "Partition %d: skipped\n", v.Partition.Index)
		}
		printNotes(w, v.Notes)
	}
}

func volumeStatus(v VolumeResult) string {
	switch {
	case v.Error != "":
		return "error"
	case v.Skipped:
		return "skipped"
	case v.Summary != nil:
		return "ok"
	default:
		return "-"
	}
}

func printNotes(w io.Writer, notes []string) {
	if len(notes) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	for _, note := range notes {
		fmt.Fprintf(w, "  - %s\n", note)
	}
}

// CompareTextOptions controls the text rendering of a compare result.
type CompareTextOptions struct {
	// Mode is "full", "diff" or "summary". Empty means "diff".
	Mode string
}

// RenderCompareText writes a human-readable comparison of two volumes.
func RenderCompareText(w io.Writer, r *VolumeCompareResult, opts CompareTextOptions) error {
	if r == nil {
		return fmt.Errorf("compare result is nil")
	}
	mode := strings.ToLower(strings.TrimSpace(opts.Mode))
	if mode == "" {
		mode = "diff"
	}
	if mode != "full" && mode != "diff" && mode != "summary" {
		return fmt.Errorf("invalid compare mode %q (expected full, diff or summary)", opts.Mode)
	}

	fmt.Fprintln(w, "Volume Comparison")
	fmt.Fprintln(w, "=================")
	kv := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(kv, "From:\t%s @ %d\n", emptyIfWhitespace(r.From.File), r.From.BaseOffset)
	fmt.Fprintf(kv, "To:\t%s @ %d\n", emptyIfWhitespace(r.To.File), r.To.BaseOffset)
	fmt.Fprintf(kv, "Equality:\t%s\n", r.Equality.Class)
	fmt.Fprintf(kv, "Changed:\t%t\n", r.Summary.Changed)
	_ = kv.Flush()

	if mode == "summary" {
		fmt.Fprintln(w)
		kv = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintf(kv, "Image changed:\t%t\n", r.Summary.ImageChanged)
		fmt.Fprintf(kv, "Boot sector changed:\t%t\n", r.Summary.BootSectorChanged)
		fmt.Fprintf(kv, "Layout changed:\t%t\n", r.Summary.LayoutChanged)
		fmt.Fprintf(kv, "Added / removed / modified:\t%d / %d / %d\n",
			r.Summary.AddedCount, r.Summary.RemovedCount, r.Summary.ModifiedCount)
		_ = kv.Flush()
		printReasons(w, r.Equality)
		return nil
	}

	if mode == "full" {
		for _, side := range []struct {
			title string
			v     *VolumeSummary
		}{{"From volume", &r.From}, {"To volume", &r.To}} {
			if side.v.BootSector == nil || side.v.Layout == nil {
				continue
			}
			fmt.Fprintln(w)
			fmt.Fprintln(w, side.title)
			fmt.Fprintln(w, strings.Repeat("-", len(side.title)))
			PrintSummary(w, side.v)
		}
	}

	if !r.Summary.Changed && r.Diff.Image.SHA256 == nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "No differences.")
		return nil
	}

	d := r.Diff
	if d.Image.SizeBytes != nil || d.Image.BaseOffset != nil || d.Image.SHA256 != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Image")
		fmt.Fprintln(w, "-----")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		if d.Image.SizeBytes != nil {
			fmt.Fprintf(tw, "size\t%d\t->\t%d\n", d.Image.SizeBytes.From, d.Image.SizeBytes.To)
		}
		if d.Image.BaseOffset != nil {
			fmt.Fprintf(tw, "offset\t%d\t->\t%d\n", d.Image.BaseOffset.From, d.Image.BaseOffset.To)
		}
		if d.Image.SHA256 != nil {
			fmt.Fprintf(tw, "sha256\t%s\t->\t%s\n", shortHash(d.Image.SHA256.From), shortHash(d.Image.SHA256.To))
		}
		_ = tw.Flush()
	}

	if len(d.BootSector) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Boot Sector")
		fmt.Fprintln(w, "-----------")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, c := range d.BootSector {
			fmt.Fprintf(tw, "%s\t%v\t->\t%v\n", c.Field, c.From, c.To)
		}
		_ = tw.Flush()
	}

	if hasLayoutDiff(d) {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Layout")
		fmt.Fprintln(w, "------")
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, m := range d.Regions.Modified {
			fmt.Fprintf(tw, "~ %s\t%s\t->\t%s\n", m.Name, m.From, m.To)
		}
		for _, r := range d.Regions.Added {
			fmt.Fprintf(tw, "+ %s\t\t\t%s\n", r.Name, r.Range)
		}
		for _, r := range d.Regions.Removed {
			fmt.Fprintf(tw, "- %s\t%s\t\t\n", r.Name, r.Range)
		}
		if d.SectorSize != nil {
			fmt.Fprintf(tw, "~ sector size\t%d\t->\t%d\n", d.SectorSize.From, d.SectorSize.To)
		}
		if d.ClusterSize != nil {
			fmt.Fprintf(tw, "~ cluster size\t%d\t->\t%d\n", d.ClusterSize.From, d.ClusterSize.To)
		}
		if d.Clusters != nil {
			fmt.Fprintf(tw, "~ clusters\t%s\t->\t%s\n", clusterRangeString(d.Clusters.From), clusterRangeString(d.Clusters.To))
		}
		_ = tw.Flush()
	}

	printReasons(w, r.Equality)
	return nil
}

func hasLayoutDiff(d VolumeDiff) bool {
	return len(d.Regions.Added) > 0 || len(d.Regions.Removed) > 0 || len(d.Regions.Modified) > 0 ||
		d.SectorSize != nil || d.ClusterSize != nil || d.Clusters != nil
}

func printReasons(w io.Writer, eq Equality) {
	if len(eq.MeaningfulReasons) == 0 && len(eq.VolatileReasons) == 0 {
		return
	}
	fmt.Fprintln(w)
	if len(eq.MeaningfulReasons) > 0 {
		fmt.Fprintf(w, "Meaningful differences (%d):\n", eq.MeaningfulDiffs)
		for _, r := range eq.MeaningfulReasons {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
	if len(eq.VolatileReasons) > 0 {
		fmt.Fprintf(w, "Volatile differences (%d):\n", eq.VolatileDiffs)
		for _, r := range eq.VolatileReasons {
			fmt.Fprintf(w, "  %s\n", r)
		}
	}
}

func clusterRangeString(c fat16.ClusterRange) string {
	return fmt.Sprintf("%d - %d", c.First, c.Last)
}

func humanBytes(n int64) string {
	if n < 0 {
		return fmt.Sprintf("%d B", n)
	}
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func emptyIfWhitespace(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return strings.TrimSpace(s)
}

func shortHash(s string) string {
	s = strings.TrimSpace(s)
	if len(s) <= 12 {
		return s
	}
	return s[:12]
}
