// -- internal/reporting/reporter.go --
package reporting

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	json "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"

	"github.com/xkilldash9x/slotrunner/api/schemas"
)

// Reporter writes a finished batch to an output.
type Reporter interface {
	// Write renders the batch report.
	Write(report *schemas.BatchReport) error
	// Close finalizes the report and closes any underlying file handle.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Formats lists the report formats New accepts.
var Formats = []string{"json", "text"}

// CheckFormat reports an error for formats New does not support.
func CheckFormat(format string) error {
	if !slices.Contains(Formats, format) {
		return fmt.Errorf("unsupported output format: %s", format)
	}
	return nil
}

// New creates a reporter for the given format ("json" or "text") writing to
// outputPath. An empty path or "stdout" writes to standard output.
func New(format, outputPath string) (Reporter, error) {
	if err := CheckFormat(format); err != nil {
		return nil, err
	}

	var writer io.WriteCloser
	if outputPath == "" || outputPath == "stdout" {
		writer = &nopWriteCloser{os.Stdout}
	} else {
		path, err := homedir.Expand(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to expand output path %s: %w", outputPath, err)
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create output directory for %s: %w", path, err)
		}
		f, err := os.Create(path)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", path, err)
		}
		writer = f
	}

	if format == "json" {
		return &JSONReporter{w: writer}, nil
	}
	return &TextReporter{w: writer}, nil
}

// JSONReporter encodes the whole batch as one indented JSON document.
type JSONReporter struct {
	w io.WriteCloser
}

func (r *JSONReporter) Write(report *schemas.BatchReport) error {
	enc := json.ConfigCompatibleWithStandardLibrary.NewEncoder(r.w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	return nil
}

func (r *JSONReporter) Close() error {
	return r.w.Close()
}

// TextReporter renders the console summary table.
type TextReporter struct {
	w io.WriteCloser
}

func (r *TextReporter) Write(report *schemas.BatchReport) error {
	return WriteSummary(r.w, report)
}

func (r *TextReporter) Close() error {
	return r.w.Close()
}
