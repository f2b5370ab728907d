// Package export writes deck records as JSON or flattened CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"
)

// Format represents the export format.
type Format string

const (
	// FormatJSON writes records with nested card lists.
	FormatJSON Format = "json"
	// FormatCSV writes one row per card entry.
	FormatCSV Format = "csv"
	// FormatSummaryCSV writes one row per deck record.
	FormatSummaryCSV Format = "summary"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatCSV, FormatSummaryCSV:
		return f, nil
	}
	return "", fmt.Errorf("unsupported export format: %s", s)
}

// Options holds configuration for file exports.
type Options struct {
	Format     Format
	FilePath   string
	PrettyJSON bool
	Overwrite  bool
}

// Exporter writes exports to a file.
type Exporter struct {
	opts Options
}

// NewExporter creates a new Exporter with the given options.
func NewExporter(opts Options) *Exporter {
	return &Exporter{opts: opts}
}

// Export writes data, a slice of structs for CSV, to the configured file.
func (e *Exporter) Export(data any) (err error) {
	file, err := e.createFile()
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()
	return ExportToWriter(file, e.opts.Format, data, e.opts.PrettyJSON)
}

// createFile creates the output file, honouring the overwrite setting.
func (e *Exporter) createFile() (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(e.opts.FilePath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if _, err := os.Stat(e.opts.FilePath); err == nil && !e.opts.Overwrite {
		return nil, fmt.Errorf("file already exists: %s (use overwrite option to replace)", e.opts.FilePath)
	}

	file, err := os.Create(e.opts.FilePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	return file, nil
}

// ExportToWriter writes data to w. JSON accepts any value; the CSV
// formats require a slice of structs.
func ExportToWriter(w io.Writer, format Format, data any, prettyJSON bool) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		if prettyJSON {
			encoder.SetIndent("", "  ")
		}
		return encoder.Encode(data)
	case FormatCSV, FormatSummaryCSV:
		return writeCSV(w, data)
	default:
		return fmt.Errorf("unsupported export format: %s", format)
	}
}

func writeCSV(w io.Writer, data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() != reflect.Slice {
		return fmt.Errorf("CSV export requires a slice, got %s", v.Kind())
	}

	elemType := v.Type().Elem()
	if elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		return fmt.Errorf("CSV export requires a slice of structs")
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeaders(elemType)); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		if elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		if err := writer.Write(csvRow(elem)); err != nil {
			return fmt.Errorf("failed to write CSV row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// csvHeaders uses the csv tag of each exported field, falling back to the
// field name. Fields tagged csv:"-" are skipped.
func csvHeaders(t reflect.Type) []string {
	var headers []string
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("csv")
		if !field.IsExported() || tag == "-" {
			continue
		}
		if tag == "" {
			tag = field.Name
		}
		headers = append(headers, tag)
	}
	return headers
}

func csvRow(v reflect.Value) []string {
	var row []string
	t := v.Type()
	for i := 0; i < v.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() || field.Tag.Get("csv") == "-" {
			continue
		}
		row = append(row, valueToString(v.Field(i)))
	}
	return row
}

func valueToString(v reflect.Value) string {
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return ""
		}
		v = v.Elem()
	}

	switch v.Kind() {
	case reflect.String:
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(v.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(v.Uint(), 10)
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', 4, 64)
	case reflect.Bool:
		return strconv.FormatBool(v.Bool())
	case reflect.Struct:
		if t, ok := v.Interface().(time.Time); ok {
			return t.Format(time.RFC3339)
		}
	}
	return fmt.Sprintf("%v", v.Interface())
}

// GenerateFilename returns a timestamped file name for an export.
func GenerateFilename(prefix string, format Format, now time.Time) string {
	ext := string(format)
	if format == FormatSummaryCSV {
		ext = "csv"
	}
	return fmt.Sprintf("%s_%s.%s", prefix, now.Format("20060102_150405"), ext)
}
