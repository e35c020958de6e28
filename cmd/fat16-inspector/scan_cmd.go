package main

import (
	"fmt"

	"github.com/open-edge-platform/fat16-inspector/internal/config"
	"github.com/open-edge-platform/fat16-inspector/internal/image/imageinspect"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
	"github.com/spf13/cobra"
)

// Scan command flags
var (
	scanFormat  string = "text"
	scanPretty  bool
	scanWorkers int = 1
	scanAll     bool
	scanStrict  bool
)

// createScanCommand creates the scan subcommand
func createScanCommand() *cobra.Command {
	scanCmd := &cobra.Command{
		Use:   "scan [flags] IMAGE_FILE",
		Short: "inspects every FAT16 volume in a partitioned image",
		Long: `Scan reads the MBR or GPT partition table of IMAGE_FILE and inspects
each partition that can hold a FAT16 volume. An image without a partition
table is inspected as a single volume at offset 0. A failing volume is
reported and does not stop the others unless --strict is set.`,
		Args: exactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			scanFormat = resolveFormat(cmd, scanFormat)
			if err := validateFormat(scanFormat, "text", "json", "yaml", "csv"); err != nil {
				return err
			}
			if cmd.Flags().Changed("workers") && scanWorkers < 1 {
				return usageErrorf("--workers must be at least 1, got %d", scanWorkers)
			}
			return nil
		},
		RunE:              executeScan,
		ValidArgsFunction: imageFileCompletion,
	}

	scanCmd.Flags().StringVar(&scanFormat, "format", "text",
		"Output format: text, json, yaml or csv")
	scanCmd.Flags().BoolVar(&scanPretty, "pretty", false,
		"Pretty-print JSON output (only for --format json)")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 1,
		"Number of volumes inspected in parallel")
	scanCmd.Flags().BoolVar(&scanAll, "all", false,
		"Inspect every partition, not only those typed as FAT16")
	scanCmd.Flags().BoolVar(&scanStrict, "strict", false,
		"Fail when any volume cannot be inspected")
	addVolumeFlags(scanCmd)

	return scanCmd
}

// scanOptions merges the scan flags over the config file.
func scanOptions(cmd *cobra.Command) (imageinspect.ScanOptions, bool) {
	cfg := config.Global().Scan
	opts := imageinspect.ScanOptions{
		Workers:       cfg.Workers,
		AllPartitions: cfg.AllPartitions,
		Progress:      cmd.ErrOrStderr(),
	}
	strict := cfg.Strict

	if cmd.Flags().Changed("workers") {
		opts.Workers = scanWorkers
	}
	if cmd.Flags().Changed("all") {
		opts.AllPartitions = scanAll
	}
	if cmd.Flags().Changed("strict") {
		strict = scanStrict
	}
	return opts, strict
}

// executeScan handles the scan command execution logic
func executeScan(cmd *cobra.Command, args []string) error {
	log := logger.Logger()
	imageFile := args[0]

	opts, strict := scanOptions(cmd)
	log.Infof("Scanning image file: %s", imageFile)

	inspector, err := buildInspector(cmd)
	if err != nil {
		return err
	}

	result, err := inspector.Scan(imageFile, opts)
	if err != nil {
		return fmt.Errorf("image scan failed: %w", err)
	}

	if err := writeScanResult(cmd, result, scanFormat, scanPretty); err != nil {
		return err
	}

	if volErr := result.Err(); volErr != nil {
		if strict {
			return fmt.Errorf("scan failed: %w", volErr)
		}
		log.Warnf("Some volumes could not be inspected: %v", volErr)
	}
	return nil
}

func writeScanResult(cmd *cobra.Command, result *imageinspect.ScanResult, format string, pretty bool) error {
	out := cmd.OutOrStdout()

	switch format {
	case "text":
		imageinspect.PrintScanSummary(out, result)
		return nil
	case "csv":
		return imageinspect.WriteScanRegionsCSV(out, result)
	default:
		return writeStructured(out, result, format, pretty)
	}
}
