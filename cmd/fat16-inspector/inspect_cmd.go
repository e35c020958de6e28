package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/open-edge-platform/fat16-inspector/internal/config"
	"github.com/open-edge-platform/fat16-inspector/internal/image/fat16"
	"github.com/open-edge-platform/fat16-inspector/internal/image/imageinspect"
	"github.com/open-edge-platform/fat16-inspector/internal/utils/logger"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// cmd needs only these two methods.
type inspector interface {
	Inspect(imagePath string, baseOffset int64) (*imageinspect.VolumeSummary, error)
	Scan(imagePath string, opts imageinspect.ScanOptions) (*imageinspect.ScanResult, error)
}

// Allow tests to inject a fake inspector.
var newInspector = func(opts imageinspect.Options) (inspector, error) {
	d, err := imageinspect.NewInspector(opts)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// Volume decoding flags shared by inspect, scan and compare
var (
	textEncoding string // IANA name of the boot sector text encoding
	roundingMode string // truncate | floor | ceil
	hashImages   bool   // Compute SHA256 of the image
)

// Output format command flags
var (
	outputFormat string = "text" // Output format for the inspection results
	prettyJSON   bool   = false  // Pretty-print JSON output
)

func addVolumeFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&textEncoding, "encoding", "utf-8",
		"Encoding of the OEM name and label fields (IANA name, e.g. utf-8, IBM437)")
	cmd.Flags().StringVar(&roundingMode, "rounding", string(fat16.RoundTruncate),
		"Rounding of a root directory that is not a whole number of sectors: truncate, floor or ceil")
	cmd.Flags().BoolVar(&hashImages, "hash", false,
		"Compute the SHA256 of the image file")
}

func validateFormat(format string, supported ...string) error {
	for _, s := range supported {
		if format == s {
			return nil
		}
	}
	return usageErrorf("unsupported --format %q (supported: %v)", format, supported)
}

// createInspectCommand creates the inspect subcommand
func createInspectCommand() *cobra.Command {
	inspectCmd := &cobra.Command{
		Use:   "inspect [flags] OFFSET IMAGE_FILE",
		Short: "inspects the FAT16 volume at OFFSET in an image file",
		Long: `Inspect decodes the boot sector found OFFSET bytes into IMAGE_FILE
and prints the volume's layout in sectors, relative to the boot sector.
OFFSET is decimal bytes, 0x hexadecimal bytes, or a count of 512-byte
sectors with an "s" suffix. Images compressed with gzip, zstd or xz are
expanded to a temporary file first.`,
		Args: exactArgs(2),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			outputFormat = resolveFormat(cmd, outputFormat)
			return validateFormat(outputFormat, "text", "json", "yaml", "csv")
		},
		RunE: executeInspect,
		ValidArgsFunction: func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
			if len(args) == 0 {
				return nil, cobra.ShellCompDirectiveNoFileComp
			}
			return imageFileCompletion(cmd, args, toComplete)
		},
	}

	// Add flags
	inspectCmd.Flags().StringVar(&outputFormat, "format", "text",
		"Output format: text, json, yaml or csv")
	inspectCmd.Flags().BoolVar(&prettyJSON, "pretty", false,
		"Pretty-print JSON output (only for --format json)")
	addVolumeFlags(inspectCmd)

	return inspectCmd
}

// resolveFormat returns the configured format unless --format was given.
func resolveFormat(cmd *cobra.Command, flagValue string) string {
	if cmd.Flags().Changed("format") {
		return flagValue
	}
	return config.Global().Inspect.Format
}

// inspectorOptions merges the volume flags over the config file.
func inspectorOptions(cmd *cobra.Command) imageinspect.Options {
	cfg := config.Global()
	opts := imageinspect.Options{
		Encoding:   cfg.Inspect.Encoding,
		Rounding:   fat16.RoundingMode(cfg.Inspect.Rounding),
		HashImages: cfg.Inspect.Hash,
	}
	if cmd.Flags().Changed("encoding") {
		opts.Encoding = textEncoding
	}
	if cmd.Flags().Changed("rounding") {
		opts.Rounding = fat16.RoundingMode(roundingMode)
	}
	if cmd.Flags().Changed("hash") {
		opts.HashImages = hashImages
	}
	return opts
}

func buildInspector(cmd *cobra.Command) (inspector, error) {
	d, err := newInspector(inspectorOptions(cmd))
	if err != nil {
		return nil, &usageError{err: err}
	}
	return d, nil
}

// executeInspect handles the inspect command execution logic
func executeInspect(cmd *cobra.Command, args []string) error {
	log := logger.Logger()

	offset, err := parseOffset(args[0])
	if err != nil {
		return &usageError{err: err}
	}
	imageFile := args[1]
	log.Infof("Inspecting image file: %s at offset %d", imageFile, offset)

	inspector, err := buildInspector(cmd)
	if err != nil {
		return err
	}

	summary, err := inspector.Inspect(imageFile, offset)
	if err != nil {
		return fmt.Errorf("image inspection failed: %w", err)
	}

	return writeInspectionResult(cmd, summary, outputFormat, prettyJSON)
}

func writeInspectionResult(cmd *cobra.Command, summary *imageinspect.VolumeSummary, format string, pretty bool) error {
	out := cmd.OutOrStdout()

	switch format {
	case "text":
		imageinspect.PrintSummary(out, summary)
		return nil
	case "csv":
		return imageinspect.WriteRegionsCSV(out, summary)
	default:
		return writeStructured(out, summary, format, pretty)
	}
}

// writeStructured writes v as JSON or YAML.
func writeStructured(out io.Writer, v any, format string, pretty bool) error {
	switch format {
	case "json":
		var (
			b   []byte
			err error
		)
		if pretty {
			b, err = json.MarshalIndent(v, "", "  ")
		} else {
			b, err = json.Marshal(v)
		}
		if err != nil {
			return fmt.Errorf("marshal json: %w", err)
		}
		_, _ = fmt.Fprintln(out, string(b))
		return nil

	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		_, _ = fmt.Fprint(out, string(b))
		return nil

	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
