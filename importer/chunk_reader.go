package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"commentdedup/dedup"
)

// ChunkReaderOptions параметры нарезки источника на порции
type ChunkReaderOptions struct {
	TextField string // Колонка со свободным текстом
	Logger    *slog.Logger
}

// ChunkReader выдает порции записей ограниченного размера.
// Границы порций чисто позиционные; размер задается при каждом вызове Next.
type ChunkReader struct {
	source  Source
	columns []string
	textIdx int

	nextRow   int64
	nextBatch int
	done      bool
	logger    *slog.Logger
}

// NewChunkReader создает ChunkReader. Отсутствие текстовой колонки -
// ошибка конфигурации.
func NewChunkReader(source Source, opts ChunkReaderOptions) (*ChunkReader, error) {
	textField := opts.TextField
	if textField == "" {
		textField = "text"
	}

	columns := source.Columns()
	textIdx := -1
	for i, c := range columns {
		if strings.EqualFold(strings.TrimSpace(c), textField) {
			textIdx = i
			break
		}
	}
	if textIdx < 0 {
		return nil, dedup.NewConfigurationError(
			fmt.Sprintf("text field %q not found in source columns", textField), nil).
			WithDetail("columns", columns)
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ChunkReader{
		source:    source,
		columns:   columns,
		textIdx:   textIdx,
		nextBatch: 1,
		logger:    logger,
	}, nil
}

// Columns заголовки источника
func (r *ChunkReader) Columns() []string {
	return r.columns
}

// TotalHint ожидаемое число строк или -1, если источник его не знает
func (r *ChunkReader) TotalHint() int64 {
	if h, ok := r.source.(TotalHinter); ok {
		return h.TotalHint()
	}
	return -1
}

// Next читает следующую порцию из не более чем size строк.
// Поврежденные строки не прерывают порцию: она возвращается целиком
// с ошибкой SourceReadError в ReadErr. После конца данных возвращает io.EOF.
func (r *ChunkReader) Next(ctx context.Context, size int) (dedup.Batch, error) {
	if r.done {
		return dedup.Batch{}, io.EOF
	}
	if size < 1 {
		size = 1
	}

	batch := dedup.Batch{
		ID:      r.nextBatch,
		Offset:  r.nextRow,
		Records: make([]dedup.Record, 0, size),
	}

	var rowErrs []error
	for batch.Size < size {
		if err := ctx.Err(); err != nil {
			return dedup.Batch{}, err
		}

		row, err := r.source.ReadRow(ctx)
		if errors.Is(err, io.EOF) {
			r.done = true
			break
		}

		id := r.nextRow
		var rowErr *RowError
		switch {
		case errors.As(err, &rowErr):
			r.nextRow++
			batch.Size++
			rowErrs = append(rowErrs, err)
			continue
		case err != nil:
			// Источник больше не читается: текущая порция последняя
			r.done = true
			rowErrs = append(rowErrs, err)
		}
		if r.done {
			break
		}

		r.nextRow++
		batch.Size++
		batch.Records = append(batch.Records, r.toRecord(id, row))
	}

	if batch.Size == 0 && len(rowErrs) == 0 {
		return dedup.Batch{}, io.EOF
	}

	r.nextBatch++
	if len(rowErrs) > 0 {
		batch.ReadErr = dedup.NewSourceReadError(batch.ID, errors.Join(rowErrs...)).
			WithDetail("corrupt_rows", len(rowErrs))
		r.logger.Warn("[ChunkReader] corrupt chunk",
			"batch_id", batch.ID,
			"offset", batch.Offset,
			"size", batch.Size,
			"errors", len(rowErrs))
	}

	return batch, nil
}

// Close закрывает источник
func (r *ChunkReader) Close() error {
	return r.source.Close()
}

// toRecord превращает строку в запись: текстовая колонка и остальные поля по порядку
func (r *ChunkReader) toRecord(id int64, row []string) dedup.Record {
	rec := dedup.Record{ID: id}
	if len(r.columns) > 1 {
		rec.Metadata = make(dedup.Metadata, 0, len(r.columns)-1)
	}
	for i, column := range r.columns {
		value := ""
		if i < len(row) {
			value = row[i]
		}
		if i == r.textIdx {
			rec.Text = value
			continue
		}
		rec.Metadata = append(rec.Metadata, dedup.Field{Key: column, Value: value})
	}
	return rec
}
