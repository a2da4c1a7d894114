package importer

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// CSVOptions параметры CSV-источника
type CSVOptions struct {
	Delimiter rune   // по умолчанию ','
	Encoding  string // utf-8 (по умолчанию) или windows-1251
}

// CSVSource потоковый источник CSV/TSV-файла
type CSVSource struct {
	file    *os.File
	reader  *csv.Reader
	columns []string
	total   int64
	row     int64
}

// NewCSVSource открывает CSV-файл и читает строку заголовков
func NewCSVSource(path string, opts CSVOptions) (*CSVSource, error) {
	total, err := countDataLines(path)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open CSV file: %w", err)
	}

	decoded, err := decodingReader(file, opts.Encoding)
	if err != nil {
		file.Close()
		return nil, err
	}

	reader := csv.NewReader(decoded)
	reader.Comma = ','
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to read CSV headers: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}
	// Строки с другим числом полей считаются поврежденными
	reader.FieldsPerRecord = len(headers)

	return &CSVSource{
		file:    file,
		reader:  reader,
		columns: headers,
		total:   total,
	}, nil
}

// decodingReader оборачивает файл декодером кодировки; BOM UTF-8 отбрасывается
func decodingReader(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "utf-8", "utf8":
		return transform.NewReader(r, unicode.UTF8BOM.NewDecoder()), nil
	case "windows-1251", "cp1251":
		return transform.NewReader(r, charmap.Windows1251.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("unsupported encoding %q", encoding)
	}
}

// countDataLines приблизительное число строк данных (без заголовка)
func countDataLines(path string) (int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open CSV file: %w", err)
	}
	defer file.Close()

	var (
		lines    int64
		lastByte byte = '\n'
	)
	buf := make([]byte, 64*1024)
	for {
		n, err := file.Read(buf)
		if n > 0 {
			lines += int64(bytes.Count(buf[:n], []byte{'\n'}))
			lastByte = buf[n-1]
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("failed to scan CSV file: %w", err)
		}
	}
	if lastByte != '\n' {
		lines++
	}
	return max(lines-1, 0), nil
}

// Columns возвращает заголовки
func (s *CSVSource) Columns() []string {
	return s.columns
}

// ReadRow читает следующую запись CSV
func (s *CSVSource) ReadRow(ctx context.Context) ([]string, error) {
	record, err := s.reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, io.EOF
	}
	row := s.row
	s.row++

	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return nil, &RowError{Row: row, Err: err}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV row %d: %w", row, err)
	}
	return record, nil
}

// TotalHint число строк по подсчету переводов строк
func (s *CSVSource) TotalHint() int64 {
	return s.total
}

// Close закрывает файл
func (s *CSVSource) Close() error {
	return s.file.Close()
}
