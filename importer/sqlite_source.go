package importer

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"regexp"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"
)

// sqlitePageSize число строк, читаемых одним запросом
const sqlitePageSize = 500

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSource источник над таблицей SQLite с постраничным чтением по rowid
type SQLiteSource struct {
	db      *sql.DB
	table   string
	columns []string
	total   int64

	page    [][]string
	pageErr []error
	pos     int
	lastID  int64
	row     int64
	done    bool
}

// NewSQLiteSource открывает базу и определяет колонки таблицы
func NewSQLiteSource(path, table string) (*SQLiteSource, error) {
	if table == "" {
		table = "comments"
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}

	db, err := sql.Open("sqlite3", "file:"+path+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteSource{db: db, table: table}
	if err := s.init(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteSource) init(ctx context.Context) error {
	query, args, err := sq.Select("*").From(s.table).Limit(0).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query table %s: %w", s.table, err)
	}
	columns, err := rows.Columns()
	rows.Close()
	if err != nil {
		return fmt.Errorf("failed to read columns: %w", err)
	}
	s.columns = columns

	query, args, err = sq.Select("COUNT(*)").From(s.table).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build count query: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&s.total); err != nil {
		return fmt.Errorf("failed to count rows: %w", err)
	}
	return nil
}

// Columns возвращает колонки таблицы
func (s *SQLiteSource) Columns() []string {
	return s.columns
}

// ReadRow возвращает следующую строку, при необходимости дочитывая страницу
func (s *SQLiteSource) ReadRow(ctx context.Context) ([]string, error) {
	if s.pos >= len(s.page) {
		if s.done {
			return nil, io.EOF
		}
		if err := s.fetchPage(ctx); err != nil {
			return nil, err
		}
		if len(s.page) == 0 {
			return nil, io.EOF
		}
	}

	row, rowErr := s.page[s.pos], s.pageErr[s.pos]
	s.pos++
	id := s.row
	s.row++
	if rowErr != nil {
		return nil, &RowError{Row: id, Err: rowErr}
	}
	return row, nil
}

// fetchPage читает следующую страницу строк после lastID
func (s *SQLiteSource) fetchPage(ctx context.Context) error {
	query, args, err := sq.Select("rowid", "*").
		From(s.table).
		Where(sq.Gt{"rowid": s.lastID}).
		OrderBy("rowid").
		Limit(sqlitePageSize).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build page query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query page: %w", err)
	}
	defer rows.Close()

	s.page = s.page[:0]
	s.pageErr = s.pageErr[:0]
	s.pos = 0

	for rows.Next() {
		var rowID int64
		values := make([]sql.NullString, len(s.columns))
		dest := make([]interface{}, 0, len(values)+1)
		dest = append(dest, &rowID)
		for i := range values {
			dest = append(dest, &values[i])
		}

		err := rows.Scan(dest...)
		if rowID > s.lastID {
			s.lastID = rowID
		}
		row := make([]string, len(values))
		for i, v := range values {
			row[i] = v.String
		}
		s.page = append(s.page, row)
		s.pageErr = append(s.pageErr, err)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate page: %w", err)
	}

	if len(s.page) < sqlitePageSize {
		s.done = true
	}
	return nil
}

// TotalHint число строк таблицы
func (s *SQLiteSource) TotalHint() int64 {
	return s.total
}

// Close закрывает соединение
func (s *SQLiteSource) Close() error {
	return s.db.Close()
}
