package report

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v3"

	"commentdedup/dedup"
)

// ExportFormat формат экспорта
type ExportFormat string

const (
	FormatJSON  ExportFormat = "json"
	FormatCSV   ExportFormat = "csv"
	FormatExcel ExportFormat = "excel"
	FormatYAML  ExportFormat = "yaml"
)

// FormatFromPath определяет формат по расширению файла
func FormatFromPath(path string) (ExportFormat, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".csv":
		return FormatCSV, nil
	case ".xlsx":
		return FormatExcel, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported export format: %q", filepath.Ext(path))
	}
}

const exportSheet = "Comments"

// exportedRecord запись в JSON-выгрузке
type exportedRecord struct {
	ID         int64           `json:"id"`
	Text       string          `json:"text"`
	Metadata   orderedMetadata `json:"metadata,omitempty"`
	MergedFrom []int64         `json:"merged_from,omitempty"`
	MergeCount int             `json:"merge_count,omitempty"`
}

// orderedMetadata объект JSON с полями в порядке колонок источника
type orderedMetadata dedup.Metadata

func (m orderedMetadata) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, f := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(f.Key)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(f.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// recordSource источник записей для выгрузки, обход в порядке ID
type recordSource interface {
	Each(fn func(dedup.Record) error) error
}

// recordList записи, уже собранные в памяти
type recordList []dedup.Record

func (l recordList) Each(fn func(dedup.Record) error) error {
	for _, r := range l {
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// Exporter выгружает очищенные записи
type Exporter struct {
	textField string
	columns   []string // колонки метаданных в порядке источника
}

// NewExporter создает экспортер. columns - заголовки источника;
// пустой список означает порядок первого появления полей в записях.
func NewExporter(columns []string, textField string) *Exporter {
	if textField == "" {
		textField = "text"
	}
	var meta []string
	for _, c := range columns {
		if !strings.EqualFold(c, textField) {
			meta = append(meta, c)
		}
	}
	return &Exporter{textField: textField, columns: meta}
}

// ExportRecords выгружает записи в файл, формат по расширению
func (e *Exporter) ExportRecords(path string, records []dedup.Record) error {
	return e.export(path, recordList(records))
}

// ExportStore выгружает записи хранилища в файл, не загружая их в память целиком
func (e *Exporter) ExportStore(path string, store RecordStore) error {
	return e.export(path, store)
}

func (e *Exporter) export(path string, source recordSource) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}
	if format == FormatYAML {
		return fmt.Errorf("records cannot be exported as %s", format)
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := e.write(file, format, source); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteRecords пишет записи в w в заданном формате
func (e *Exporter) WriteRecords(w io.Writer, format ExportFormat, records []dedup.Record) error {
	return e.write(w, format, recordList(records))
}

// WriteStore пишет записи хранилища в w в заданном формате
func (e *Exporter) WriteStore(w io.Writer, format ExportFormat, store RecordStore) error {
	return e.write(w, format, store)
}

func (e *Exporter) write(w io.Writer, format ExportFormat, source recordSource) error {
	switch format {
	case FormatJSON:
		return e.writeJSON(w, source)
	case FormatCSV:
		return e.writeCSV(w, source)
	case FormatExcel:
		return e.writeExcel(w, source)
	default:
		return fmt.Errorf("unsupported records format: %q", format)
	}
}

// metadataColumns колонки метаданных для выгрузки
func (e *Exporter) metadataColumns(source recordSource) ([]string, error) {
	if len(e.columns) > 0 {
		return e.columns, nil
	}
	seen := make(map[string]bool)
	var columns []string
	err := source.Each(func(r dedup.Record) error {
		for _, f := range r.Metadata {
			if !seen[f.Key] {
				seen[f.Key] = true
				columns = append(columns, f.Key)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	return columns, nil
}

func (e *Exporter) headers(meta []string) []string {
	headers := make([]string, 0, len(meta)+4)
	headers = append(headers, "id", e.textField)
	headers = append(headers, meta...)
	return append(headers, "merged_from", "merge_count")
}

func (e *Exporter) row(r dedup.Record, meta []string) []string {
	row := make([]string, 0, len(meta)+4)
	row = append(row, strconv.FormatInt(r.ID, 10), r.Text)
	for _, key := range meta {
		value, _ := r.Metadata.Get(key)
		row = append(row, value)
	}
	mergeCount := ""
	if r.MergeCount > 0 {
		mergeCount = strconv.Itoa(r.MergeCount)
	}
	return append(row, joinIDs(r.MergedFrom), mergeCount)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.FormatInt(id, 10)
	}
	return strings.Join(parts, ";")
}

// writeJSON пишет {"records": [...], "total": N} по одной записи
func (e *Exporter) writeJSON(w io.Writer, source recordSource) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString("{\n  \"records\": ["); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}

	total := 0
	err := source.Each(func(r dedup.Record) error {
		out := exportedRecord{ID: r.ID, Text: r.Text, MergedFrom: r.MergedFrom, MergeCount: r.MergeCount}
		if len(r.Metadata) > 0 {
			out.Metadata = orderedMetadata(r.Metadata)
		}
		data, err := json.MarshalIndent(out, "    ", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode record %d: %w", r.ID, err)
		}
		sep := ",\n    "
		if total == 0 {
			sep = "\n    "
		}
		total++
		bw.WriteString(sep)
		_, err = bw.Write(data)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}

	if total > 0 {
		bw.WriteString("\n  ")
	}
	fmt.Fprintf(bw, "],\n  \"total\": %d\n}\n", total)
	if err := bw.Flush(); err != nil {
		return fmt.Errorf("failed to write JSON: %w", err)
	}
	return nil
}

func (e *Exporter) writeCSV(w io.Writer, source recordSource) error {
	meta, err := e.metadataColumns(source)
	if err != nil {
		return err
	}
	writer := csv.NewWriter(w)

	if err := writer.Write(e.headers(meta)); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	err = source.Each(func(r dedup.Record) error {
		if err := writer.Write(e.row(r, meta)); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}

// writeExcel пишет записи потоково, чтобы не держать весь лист в памяти
func (e *Exporter) writeExcel(w io.Writer, source recordSource) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(f.GetSheetName(0), exportSheet); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}

	meta, err := e.metadataColumns(source)
	if err != nil {
		return err
	}
	headers := e.headers(meta)
	if err := sw.SetColWidth(2, 2, 60); err != nil {
		return fmt.Errorf("failed to set column width: %w", err)
	}

	headerRow := make([]interface{}, len(headers))
	for i, h := range headers {
		headerRow[i] = excelize.Cell{StyleID: headerStyle, Value: h}
	}
	if err := sw.SetRow("A1", headerRow); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}

	rowNum := 1
	err = source.Each(func(r dedup.Record) error {
		cells := e.row(r, meta)
		values := make([]interface{}, len(cells))
		values[0] = r.ID
		for j := 1; j < len(cells); j++ {
			values[j] = cells[j]
		}
		if r.MergeCount > 0 {
			values[len(values)-1] = r.MergeCount
		}

		rowNum++
		cell, _ := excelize.CoordinatesToCellName(1, rowNum)
		if err := sw.SetRow(cell, values); err != nil {
			return fmt.Errorf("failed to write row %d: %w", rowNum, err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write Excel file: %w", err)
	}
	return nil
}

// ExportReport сохраняет отчет в JSON или YAML по расширению
func ExportReport(path string, r *Report) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	if err := WriteReport(file, format, r); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// WriteReport пишет отчет в w
func WriteReport(w io.Writer, format ExportFormat, r *Report) error {
	switch format {
	case FormatJSON:
		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	case FormatYAML:
		encoder := yaml.NewEncoder(w)
		encoder.SetIndent(2)
		if err := encoder.Encode(r); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return encoder.Close()
	default:
		return fmt.Errorf("unsupported report format: %q", format)
	}
}
