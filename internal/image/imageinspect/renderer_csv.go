package imageinspect

import (
	"fmt"
	"io"

	"github.com/gocarina/gocsv"
)

// regionRow is one CSV line of a volume layout.
type regionRow struct {
	Region  string `csv:"region"`
	Start   int64  `csv:"start"`
	End     int64  `csv:"end"`
	Sectors int64  `csv:"sectors"`
}

func regionRows(summary *VolumeSummary) []regionRow {
	regions := summary.Layout.Regions()
	rows := make([]regionRow, 0, len(regions))
	for _, r := range regions {
		rows = append(rows, regionRow{
			Region:  r.Name,
			Start:   r.Range.Start,
			End:     r.Range.End,
			Sectors: r.Range.Len(),
		})
	}
	return rows
}

// WriteRegionsCSV writes the layout regions of a volume as CSV with a
// region,start,end,sectors header.
func WriteRegionsCSV(w io.Writer, summary *VolumeSummary) error {
	if summary == nil || summary.Layout == nil {
		return fmt.Errorf("volume summary has no layout")
	}
	if err := gocsv.Marshal(regionRows(summary), w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// scanRegionRow prefixes a region row with the partition it belongs to.
type scanRegionRow struct {
	Partition int    `csv:"partition"`
	Offset    int64  `csv:"offset"`
	Region    string `csv:"region"`
	Start     int64  `csv:"start"`
	End       int64  `csv:"end"`
	Sectors   int64  `csv:"sectors"`
}

// WriteScanRegionsCSV writes the regions of every inspected volume of a scan.
func WriteScanRegionsCSV(w io.Writer, result *ScanResult) error {
	if result == nil {
		return fmt.Errorf("scan result is nil")
	}
	var rows []scanRegionRow
	for _, v := range result.Volumes {
		if v.Summary == nil || v.Summary.Layout == nil {
			continue
		}
		for _, r := range regionRows(v.Summary) {
			rows = append(rows, scanRegionRow{
				Partition: v.Partition.Index,
				Offset:    v.Partition.OffsetBytes,
				Region:    r.Region,
				Start:     r.Start,
				End:       r.End,
				Sectors:   r.Sectors,
			})
		}
	}
	if len(rows) == 0 {
		_, err := fmt.Fprintln(w, "partition,offset,region,start,end,sectors")
		return err
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}
