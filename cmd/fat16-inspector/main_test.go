package main

import (
	"errors"
	"fmt"
	"io/fs"
	"testing"

	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
)

func TestParseOffset(t *testing.T) {
	tests := []struct {
		in      string
		want    int64
		wantErr bool
	}{
		{in: "0", want: 0},
		{in: "1048576", want: 1048576},
		{in: "0x200", want: 512},
		{in: "0X100000", want: 1 << 20},
		{in: "2048s", want: 2048 * 512},
		{in: "0x10s", want: 16 * 512},
		{in: " 63S ", want: 63 * 512},
		{in: "", wantErr: true},
		{in: "s", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "-1", wantErr: true},
		{in: "1.5", wantErr: true},
		{in: "1k", wantErr: true},
		{in: "99999999999999999999", wantErr: true},
		{in: "0x7fffffffffffffffs", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseOffset(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseOffset(%q) = %d, want error", tt.in, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOffset(%q): %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("parseOffset(%q) = %d, want %d", tt.in, got, tt.want)
			}
		})
	}
}

func TestOffsetValue(t *testing.T) {
	var v offsetValue
	if err := v.Set("4s"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if v.String() != "2048" || v.Type() != "offset" {
		t.Fatalf("value=%s type=%s", v.String(), v.Type())
	}
	if err := v.Set("nope"); err == nil {
		t.Fatalf("expected error")
	}
	if int64(v) != 2048 {
		t.Fatalf("failed Set changed the value to %d", v)
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitOK},
		{"usage", usageErrorf("bad flag"), exitUsage},
		{"wrapped usage", fmt.Errorf("outer: %w", &usageError{err: errors.New("x")}), exitUsage},
		{"io", fmt.Errorf("x: %w", &fat16.IOError{Field: "oem_name", Offset: 3, Length: 8, Err: errors.New("eof")}), exitIO},
		{"path", fmt.Errorf("stat image: %w", &fs.PathError{Op: "stat", Path: "x", Err: fs.ErrNotExist}), exitIO},
		{"decode", fmt.Errorf("x: %w", &fat16.DecodeError{Field: "volume_label", Err: errors.New("bad")}), exitDecode},
		{"layout", fmt.Errorf("x: %w", &fat16.InvalidLayoutError{Reason: "r"}), exitInvalidLayout},
		{"other", errors.New("boom"), exitFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Fatalf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}

func TestCreateRootCommand(t *testing.T) {
	defer resetInspectFlags()

	root := createRootCommand()
	for _, name := range []string{"inspect", "scan", "compare"} {
		if c, _, err := root.Find([]string{name}); err != nil || c.Name() != name {
			t.Fatalf("subcommand %s not registered", name)
		}
	}
	for _, name := range []string{"config", "log-level"} {
		if root.PersistentFlags().Lookup(name) == nil {
			t.Fatalf("--%s flag should be registered", name)
		}
	}
}
