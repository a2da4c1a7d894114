package importer

import (
	"context"
	"io"
)

// MemorySource источник над строками в памяти
type MemorySource struct {
	columns []string
	rows    [][]string
	pos     int
}

// NewMemorySource создает источник из заголовков и строк
func NewMemorySource(columns []string, rows [][]string) *MemorySource {
	return &MemorySource{columns: columns, rows: rows}
}

// NewTextSource создает источник с единственной колонкой text
func NewTextSource(texts []string) *MemorySource {
	rows := make([][]string, len(texts))
	for i, t := range texts {
		rows[i] = []string{t}
	}
	return NewMemorySource([]string{"text"}, rows)
}

// Columns возвращает заголовки
func (s *MemorySource) Columns() []string {
	return s.columns
}

// ReadRow возвращает следующую строку
func (s *MemorySource) ReadRow(ctx context.Context) ([]string, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// TotalHint точное число строк
func (s *MemorySource) TotalHint() int64 {
	return int64(len(s.rows))
}

// Close ничего не освобождает
func (s *MemorySource) Close() error {
	return nil
}
