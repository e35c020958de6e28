package main

import (
	"fmt"
	"strings"

	"github.com/open-edge-platform/fat16-inspector/internal/image/imageinspect"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Compare command flags
var (
	prettyDiffJSON bool   = true // Pretty-print JSON output
	outFormat      string        // "text" | "json"
	outMode        string = ""   // "full" | "diff" | "summary"
	offsetA        offsetValue
	offsetB        offsetValue
)

// createCompareCommand creates the compare subcommand
func createCompareCommand() *cobra.Command {
	compareCmd := &cobra.Command{
		Use:   "compare [flags] IMAGE_A IMAGE_B",
		Short: "compares the FAT16 volumes of two image files",
		Long: `Compare inspects one FAT16 volume in each image and reports the
differences in boot sector fields and layout regions. Volume ID, volume
label and OEM name differences are volatile: two volumes differing only
in those are semantically identical.`,
		Args: exactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			format, mode := resolveDefaults(outFormat, outMode)
			if err := validateFormat(format, "text", "json"); err != nil {
				return err
			}
			switch mode {
			case "full", "diff", "summary":
				return nil
			default:
				return usageErrorf("invalid --mode %q (expected full, diff or summary)", outMode)
			}
		},
		RunE:              executeCompare,
		ValidArgsFunction: imageFileCompletion,
	}

	offsetA, offsetB = 0, 0

	// Add flags
	compareCmd.Flags().BoolVar(&prettyDiffJSON, "pretty", true,
		"Pretty-print JSON output (only for --format json)")
	compareCmd.Flags().StringVar(&outFormat, "format", "text",
		"Output format: text or json")
	compareCmd.Flags().StringVar(&outMode, "mode", "",
		"Output mode: full, diff, or summary (default: diff for text, full for json)")
	compareCmd.Flags().Var(&offsetA, "offset-a",
		"Boot sector offset in IMAGE_A (bytes, 0x hex, or <n>s sectors)")
	compareCmd.Flags().Var(&offsetB, "offset-b",
		"Boot sector offset in IMAGE_B (bytes, 0x hex, or <n>s sectors)")
	addVolumeFlags(compareCmd)
	return compareCmd
}

func resolveDefaults(format, mode string) (string, string) {
	format = strings.ToLower(format)
	mode = strings.ToLower(mode)

	// Set default mode if not specified
	if mode == "" {
		if format == "json" {
			mode = "full"
		} else {
			mode = "diff"
		}
	}
	return format, mode
}

// executeCompare handles the compare command execution logic
func executeCompare(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	imageA, imageB := args[0], args[1]
	log.Infof("Comparing image files: (%s @ %d) & (%s @ %d)", imageA, offsetA, imageB, offsetB)

	inspector, err := buildInspector(cmd)
	if err != nil {
		return err
	}

	volumeA, err := inspector.Inspect(imageA, int64(offsetA))
	if err != nil {
		return fmt.Errorf("image inspection failed: %w", err)
	}
	volumeB, err := inspector.Inspect(imageB, int64(offsetB))
	if err != nil {
		return fmt.Errorf("image inspection failed: %w", err)
	}

	compareResult := imageinspect.CompareVolumes(volumeA, volumeB)

	format, mode := resolveDefaults(outFormat, outMode)

	switch format {
	case "json":
		var payload any
		switch mode {
		case "full":
			payload = &compareResult
		case "diff":
			payload = struct {
				EqualityClass string                  `json:"equalityClass"`
				Diff          imageinspect.VolumeDiff `json:"diff"`
			}{EqualityClass: string(compareResult.Equality.Class), Diff: compareResult.Diff}
		case "summary":
			payload = struct {
				EqualityClass string                      `json:"equalityClass"`
				Summary       imageinspect.CompareSummary `json:"summary"`
			}{EqualityClass: string(compareResult.Equality.Class), Summary: compareResult.Summary}
		}
		return writeStructured(cmd.OutOrStdout(), payload, "json", prettyDiffJSON)

	default:
		return imageinspect.RenderCompareText(cmd.OutOrStdout(), &compareResult,
			imageinspect.CompareTextOptions{Mode: mode})
	}
}
