package main

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/open-edge-platform/fat16-inspector/internal/image/imageinspect"
)

func scanFixture(t *testing.T) *imageinspect.ScanResult {
	t.Helper()
	return &imageinspect.ScanResult{
		File:      "disk.img",
		SizeBytes: 8 << 20,
		PartitionTable: imageinspect.PartitionTableSummary{
			Type:              imageinspect.TableMBR,
			LogicalSectorSize: 512,
		},
		Volumes: []imageinspect.VolumeResult{
			{
				Partition: imageinspect.PartitionSummary{Index: 1, Type: "0x06", StartLBA: 2048, EndLBA: 4095, SizeBytes: 1 << 20, OffsetBytes: 1 << 20},
				Summary:   referenceSummary(t),
			},
			{
				Partition: imageinspect.PartitionSummary{Index: 2, Type: "0x0e", StartLBA: 4096, EndLBA: 6143, SizeBytes: 1 << 20, OffsetBytes: 2 << 20},
				Error:     "compute layout at offset 2097152: invalid layout: bytes per sector is 0",
			},
		},
	}
}

func TestCreateScanCommand(t *testing.T) {
	defer resetInspectFlags()

	cmd := createScanCommand()
	if cmd.Use != "scan [flags] IMAGE_FILE" {
		t.Errorf("unexpected Use %q", cmd.Use)
	}
	for name, def := range map[string]string{
		"format":   "text",
		"workers":  "1",
		"all":      "false",
		"strict":   "false",
		"encoding": "utf-8",
		"rounding": "truncate",
	} {
		f := cmd.Flags().Lookup(name)
		if f == nil {
			t.Fatalf("--%s flag should be registered", name)
		}
		if f.DefValue != def {
			t.Errorf("--%s default should be %q, got %q", name, def, f.DefValue)
		}
	}
}

func TestScanCommand_PassesOptions(t *testing.T) {
	defer resetInspectFlags()

	fake := &fakeInspector{scan: scanFixture(t)}
	useFake(fake)

	out, err := execCmd(t, createScanCommand(), "--workers", "4", "--all", "disk.img")
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, out)
	}
	if len(fake.scanCalls) != 1 {
		t.Fatalf("scan calls=%d want 1", len(fake.scanCalls))
	}
	got := fake.scanCalls[0]
	if got.Workers != 4 || !got.AllPartitions || got.Progress == nil {
		t.Fatalf("scan options=%+v", got)
	}
	for _, want := range []string{"Partition Table", "Type:                 MBR", "Partition 1 (offset 1048576)", "Partition 2: error:"} {
		if !strings.Contains(out, want) {
			t.Fatalf("output missing %q:\n%s", want, out)
		}
	}
}

func TestScanCommand_Strict(t *testing.T) {
	defer resetInspectFlags()

	useFake(&fakeInspector{scan: scanFixture(t)})
	if _, err := execCmd(t, createScanCommand(), "disk.img"); err != nil {
		t.Fatalf("non-strict scan should succeed: %v", err)
	}

	useFake(&fakeInspector{scan: scanFixture(t)})
	_, err := execCmd(t, createScanCommand(), "--strict", "disk.img")
	if err == nil {
		t.Fatalf("strict scan should fail")
	}
	if !strings.Contains(err.Error(), "partition 2") {
		t.Fatalf("err=%v", err)
	}
	if code := exitCode(err); code != exitFailure {
		t.Fatalf("exitCode=%d want %d", code, exitFailure)
	}
}

func TestScanCommand_Formats(t *testing.T) {
	defer resetInspectFlags()

	useFake(&fakeInspector{scan: scanFixture(t)})
	out, err := execCmd(t, createScanCommand(), "--format", "json", "disk.img")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	var got imageinspect.ScanResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("invalid json: %v\n%s", err, out)
	}
	if len(got.Volumes) != 2 || got.Volumes[1].Error == "" {
		t.Fatalf("volumes=%+v", got.Volumes)
	}
	if got.Err() == nil {
		t.Fatalf("decoded result lost the volume error")
	}

	useFake(&fakeInspector{scan: scanFixture(t)})
	out, err = execCmd(t, createScanCommand(), "--format", "csv", "disk.img")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if lines[0] != "partition,offset,region,start,end,sectors" || len(lines) != 7 {
		t.Fatalf("csv output:\n%s", out)
	}
}

func TestScanCommand_Errors(t *testing.T) {
	defer resetInspectFlags()

	tests := []struct {
		name string
		args []string
		fake *fakeInspector
		want int
	}{
		{"zero workers", []string{"--workers", "0", "disk.img"}, &fakeInspector{}, exitUsage},
		{"bad format", []string{"--format", "xml", "disk.img"}, &fakeInspector{}, exitUsage},
		{"no image", []string{}, &fakeInspector{}, exitUsage},
		{"scan fails", []string{"disk.img"}, &fakeInspector{err: errors.New("boom")}, exitFailure},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useFake(tt.fake)
			_, err := execCmd(t, createScanCommand(), tt.args...)
			if code := exitCode(err); code != tt.want {
				t.Fatalf("exitCode=%d want %d (err=%v)", code, tt.want, err)
			}
		})
	}
}
