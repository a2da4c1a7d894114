package importer

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"
)

// ExcelSource потоковый источник листа XLSX
type ExcelSource struct {
	file    *excelize.File
	rows    *excelize.Rows
	columns []string
	total   int64
	row     int64
}

// NewExcelSource открывает книгу и читает заголовки указанного листа
// (пустое имя - первый лист)
func NewExcelSource(path, sheet string) (*ExcelSource, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Excel file: %w", err)
	}

	if sheet == "" {
		sheet = f.GetSheetName(0)
	}
	if sheet == "" {
		f.Close()
		return nil, fmt.Errorf("no sheets found in Excel file")
	}

	rows, err := f.Rows(sheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
	}

	if !rows.Next() {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("sheet %q has no header row", sheet)
	}
	headers, err := rows.Columns()
	if err != nil {
		rows.Close()
		f.Close()
		return nil, fmt.Errorf("failed to read headers: %w", err)
	}
	for i, h := range headers {
		headers[i] = strings.TrimSpace(h)
	}

	return &ExcelSource{
		file:    f,
		rows:    rows,
		columns: headers,
		total:   sheetDataRows(f, sheet),
	}, nil
}

// sheetDataRows число строк данных по размерности листа, -1 если неизвестно
func sheetDataRows(f *excelize.File, sheet string) int64 {
	dimension, err := f.GetSheetDimension(sheet)
	if err != nil || dimension == "" {
		return -1
	}
	// Диапазон из одной ячейки пишут генераторы, не отслеживающие размер листа
	parts := strings.Split(dimension, ":")
	if len(parts) != 2 {
		return -1
	}
	_, lastRow, err := excelize.CellNameToCoordinates(parts[1])
	if err != nil {
		return -1
	}
	return int64(max(lastRow-1, 0))
}

// Columns возвращает заголовки
func (s *ExcelSource) Columns() []string {
	return s.columns
}

// ReadRow читает следующую строку листа
func (s *ExcelSource) ReadRow(ctx context.Context) ([]string, error) {
	if !s.rows.Next() {
		if err := s.rows.Error(); err != nil {
			return nil, fmt.Errorf("failed to iterate rows: %w", err)
		}
		return nil, io.EOF
	}

	row := s.row
	s.row++
	cells, err := s.rows.Columns()
	if err != nil {
		return nil, &RowError{Row: row, Err: err}
	}
	return cells, nil
}

// TotalHint число строк по размерности листа
func (s *ExcelSource) TotalHint() int64 {
	return s.total
}

// Close закрывает итератор и книгу
func (s *ExcelSource) Close() error {
	if err := s.rows.Close(); err != nil {
		s.file.Close()
		return err
	}
	return s.file.Close()
}
