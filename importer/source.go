package importer

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
)

// Source табличный источник записей: строка заголовков и строки данных.
// Последовательность конечна и не перезапускается без повторного открытия.
type Source interface {
	// Columns возвращает заголовки колонок
	Columns() []string
	// ReadRow читает следующую строку. Возвращает io.EOF в конце данных
	// и *RowError для поврежденной строки (позиция строки при этом расходуется).
	ReadRow(ctx context.Context) ([]string, error)
	// Close освобождает ресурсы источника
	Close() error
}

// TotalHinter источник, знающий (приблизительно) число строк данных
type TotalHinter interface {
	TotalHint() int64
}

// RowError ошибка разбора одной строки
type RowError struct {
	Row int64 // номер строки данных, начиная с 0
	Err error
}

// Error реализует интерфейс error
func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Unwrap возвращает вложенную ошибку
func (e *RowError) Unwrap() error {
	return e.Err
}

// OpenOptions параметры открытия файлового источника
type OpenOptions struct {
	Delimiter rune   // Разделитель CSV (по умолчанию по расширению)
	Encoding  string // Кодировка CSV: utf-8 или windows-1251
	Sheet     string // Лист XLSX (по умолчанию первый)
	Table     string // Таблица SQLite
}

// Open открывает источник по расширению файла
func Open(path string, opts OpenOptions) (Source, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".txt":
		return NewCSVSource(path, CSVOptions{Delimiter: opts.Delimiter, Encoding: opts.Encoding})
	case ".tsv":
		delimiter := opts.Delimiter
		if delimiter == 0 {
			delimiter = '\t'
		}
		return NewCSVSource(path, CSVOptions{Delimiter: delimiter, Encoding: opts.Encoding})
	case ".xlsx", ".xlsm":
		return NewExcelSource(path, opts.Sheet)
	case ".db", ".sqlite", ".sqlite3":
		return NewSQLiteSource(path, opts.Table)
	default:
		return nil, fmt.Errorf("unsupported source format %q", ext)
	}
}
