// Package testdata генерирует синтетические наборы комментариев
// с известным числом повторов для нагрузочных прогонов и тестов.
package testdata

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/xuri/excelize/v2"
)

// Columns колонки генерируемого набора
var Columns = []string{"text", "author", "rating", "timestamp"}

// Options параметры генерации
type Options struct {
	Count         int     // Число строк
	DuplicateRate float64 // Доля строк, повторяющих текст более ранней строки
	VariantRate   float64 // Доля повторов, измененных регистром и пунктуацией
	Words         int     // Слов в предложении
	Seed          int64
}

// Dataset сгенерированный набор
type Dataset struct {
	Rows [][]string
	// Duplicates число строк, повторяющих более ранний текст (с точностью до нормализации)
	Duplicates int
	Variants   int
}

// Texts колонка text
func (d Dataset) Texts() []string {
	texts := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		texts[i] = row[0]
	}
	return texts
}

var punctuation = []string{"!!!", "...", "?!", " !!", "."}

// Generate создает набор. Одинаковый Seed дает одинаковый набор.
func Generate(opts Options) Dataset {
	if opts.Words <= 0 {
		opts.Words = 8
	}
	faker := gofakeit.New(opts.Seed)
	rnd := rand.New(rand.NewSource(opts.Seed))
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	ds := Dataset{Rows: make([][]string, opts.Count)}
	for i := 0; i < opts.Count; i++ {
		text := faker.Sentence(opts.Words)
		if i > 0 && rnd.Float64() < opts.DuplicateRate {
			text = ds.Rows[rnd.Intn(i)][0]
			ds.Duplicates++
			if rnd.Float64() < opts.VariantRate {
				text = variant(text, rnd)
				ds.Variants++
			}
		}
		ds.Rows[i] = []string{
			text,
			faker.Name(),
			strconv.Itoa(faker.Number(1, 5)),
			start.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
		}
	}
	return ds
}

// variant меняет регистр и концевую пунктуацию; после нормализации текст не меняется
func variant(text string, rnd *rand.Rand) string {
	base := strings.TrimRight(text, ".!?… ")
	if rnd.Intn(2) == 0 {
		base = strings.ToUpper(base)
	}
	return base + punctuation[rnd.Intn(len(punctuation))]
}

// WriteCSV пишет набор в CSV с заголовком
func WriteCSV(w io.Writer, ds Dataset) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(Columns); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := writer.WriteAll(ds.Rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}

// WriteExcel пишет набор на первый лист XLSX-файла
func WriteExcel(path string, ds Dataset) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to create stream writer: %w", err)
	}
	if err := sw.SetRow("A1", toCells(Columns)); err != nil {
		return err
	}
	for i, row := range ds.Rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, toCells(row)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return err
	}
	return f.SaveAs(path)
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// IsExcelPath XLSX ли целевой файл
func IsExcelPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xlsx")
}
