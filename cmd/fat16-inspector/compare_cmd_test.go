package main

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestResolveDefaults(t *testing.T) {
	tests := []struct {
		format, mode         string
		wantFormat, wantMode string
	}{
		{"text", "", "text", "diff"},
		{"json", "", "json", "full"},
		{"JSON", "Summary", "json", "summary"},
		{"text", "full", "text", "full"},
	}
	for _, tt := range tests {
		f, m := resolveDefaults(tt.format, tt.mode)
		if f != tt.wantFormat || m != tt.wantMode {
			t.Errorf("resolveDefaults(%q, %q) = %q, %q; want %q, %q", tt.format, tt.mode, f, m, tt.wantFormat, tt.wantMode)
		}
	}
}

func TestCompareCommand_Offsets(t *testing.T) {
	defer resetInspectFlags()

	fake := &fakeInspector{summary: referenceSummary(t)}
	useFake(fake)

	out, err := execCmd(t, createCompareCommand(), "--offset-a", "0x100000", "--offset-b", "63s", "a.img", "b.img")
	if err != nil {
		t.Fatalf("execute: %v\n%s", err, out)
	}
	want := []inspectCall{{"a.img", 1 << 20}, {"b.img", 63 * 512}}
	if len(fake.calls) != 2 || fake.calls[0] != want[0] || fake.calls[1] != want[1] {
		t.Fatalf("calls=%+v want %+v", fake.calls, want)
	}
	// only the volume offset differs
	for _, s := range []string{"Equality:  semantically_identical_unverified", "offset  1048576  ->  32256"} {
		if !strings.Contains(out, s) {
			t.Fatalf("output missing %q:\n%s", s, out)
		}
	}
}

func TestCompareCommand_JSONModes(t *testing.T) {
	defer resetInspectFlags()

	tests := []struct {
		mode     string
		wantKeys []string
	}{
		{"", []string{"from", "to", "equality", "diff"}},
		{"full", []string{"from", "to", "equality"}},
		{"diff", []string{"equalityClass", "diff"}},
		{"summary", []string{"equalityClass", "summary"}},
	}

	for _, tt := range tests {
		t.Run("mode="+tt.mode, func(t *testing.T) {
			useFake(&fakeInspector{summary: referenceSummary(t)})
			args := []string{"--format", "json", "--pretty=false"}
			if tt.mode != "" {
				args = append(args, "--mode", tt.mode)
			}
			out, err := execCmd(t, createCompareCommand(), append(args, "a.img", "b.img")...)
			if err != nil {
				t.Fatalf("execute: %v", err)
			}
			var got map[string]any
			if err := json.Unmarshal([]byte(out), &got); err != nil {
				t.Fatalf("invalid json: %v\n%s", err, out)
			}
			for _, k := range tt.wantKeys {
				if _, ok := got[k]; !ok {
					t.Fatalf("json missing key %q: %s", k, out)
				}
			}
		})
	}
}

func TestCompareCommand_UsageErrors(t *testing.T) {
	defer resetInspectFlags()

	tests := []struct {
		name string
		args []string
	}{
		{"one image", []string{"a.img"}},
		{"bad mode", []string{"--mode", "verbose", "a.img", "b.img"}},
		{"yaml not supported", []string{"--format", "yaml", "a.img", "b.img"}},
		{"bad offset", []string{"--offset-a", "1.5k", "a.img", "b.img"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useFake(&fakeInspector{summary: referenceSummary(t)})
			_, err := execCmd(t, createRootCommand(), append([]string{"compare"}, tt.args...)...)
			if code := exitCode(err); code != exitUsage {
				t.Fatalf("exitCode=%d want %d (err=%v)", code, exitUsage, err)
			}
		})
	}
}
