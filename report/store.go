package report

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/mattn/go-sqlite3"

	"commentdedup/dedup"
)

// RecordStore хранит записи сессии до выгрузки. Записи адресуются по ID,
// повторный Put с тем же ID заменяет запись.
type RecordStore interface {
	Put(records ...dedup.Record) error
	Get(id int64) (dedup.Record, bool, error)
	Delete(id int64) error
	// Each обходит записи в порядке ID. fn не должна обращаться к тому же хранилищу.
	Each(fn func(dedup.Record) error) error
}

// Collect читает все записи хранилища в срез
func Collect(store RecordStore) ([]dedup.Record, error) {
	var records []dedup.Record
	err := store.Each(func(r dedup.Record) error {
		records = append(records, r)
		return nil
	})
	return records, err
}

// Stores хранилища одной сессии
type Stores struct {
	// Records итоговые записи
	Records RecordStore
	// Unprocessed записи порций, не обработанных после всех попыток
	Unprocessed RecordStore
	// Members исходные записи участников групп
	Members RecordStore

	closer func() error
}

// NewMemoryStores хранилища в памяти
func NewMemoryStores() *Stores {
	return &Stores{
		Records:     NewMemoryStore(),
		Unprocessed: NewMemoryStore(),
		Members:     NewMemoryStore(),
	}
}

// Close освобождает хранилища и удаляет временные файлы
func (s *Stores) Close() error {
	if s == nil || s.closer == nil {
		return nil
	}
	closer := s.closer
	s.closer = nil
	return closer()
}

// MemoryStore хранилище в памяти
type MemoryStore struct {
	mu      sync.RWMutex
	records map[int64]dedup.Record
}

// NewMemoryStore создает пустое хранилище
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[int64]dedup.Record)}
}

func (m *MemoryStore) Put(records ...dedup.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range records {
		m.records[r.ID] = r
	}
	return nil
}

func (m *MemoryStore) Get(id int64) (dedup.Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	return r, ok, nil
}

func (m *MemoryStore) Delete(id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, id)
	return nil
}

func (m *MemoryStore) Each(fn func(dedup.Record) error) error {
	m.mu.RLock()
	ids := make([]int64, 0, len(m.records))
	for id := range m.records {
		ids = append(ids, id)
	}
	m.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		m.mu.RLock()
		r, ok := m.records[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

// spillRowsPerInsert строк в одном INSERT: два параметра на строку
const spillRowsPerInsert = 400

// SQLiteStore хранилище в таблице SQLite. Записи сериализуются в JSON.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore создает таблицу table в db
func NewSQLiteStore(db *sql.DB, table string) (*SQLiteStore, error) {
	query := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (id INTEGER PRIMARY KEY, data BLOB NOT NULL)`, table)
	if _, err := db.Exec(query); err != nil {
		return nil, fmt.Errorf("failed to create table %s: %w", table, err)
	}
	return &SQLiteStore{db: db, table: table}, nil
}

func (s *SQLiteStore) Put(records ...dedup.Record) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	for start := 0; start < len(records); start += spillRowsPerInsert {
		end := min(start+spillRowsPerInsert, len(records))
		insert := sq.Replace(s.table).Columns("id", "data")
		for _, r := range records[start:end] {
			data, err := json.Marshal(r)
			if err != nil {
				tx.Rollback()
				return fmt.Errorf("failed to encode record %d: %w", r.ID, err)
			}
			insert = insert.Values(r.ID, data)
		}
		if _, err := insert.RunWith(tx).Exec(); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to store records: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit records: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(id int64) (dedup.Record, bool, error) {
	var data []byte
	err := sq.Select("data").From(s.table).Where(sq.Eq{"id": id}).
		RunWith(s.db).QueryRow().Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return dedup.Record{}, false, nil
	}
	if err != nil {
		return dedup.Record{}, false, fmt.Errorf("failed to read record %d: %w", id, err)
	}

	var r dedup.Record
	if err := json.Unmarshal(data, &r); err != nil {
		return dedup.Record{}, false, fmt.Errorf("failed to decode record %d: %w", id, err)
	}
	return r, true, nil
}

func (s *SQLiteStore) Delete(id int64) error {
	if _, err := sq.Delete(s.table).Where(sq.Eq{"id": id}).RunWith(s.db).Exec(); err != nil {
		return fmt.Errorf("failed to delete record %d: %w", id, err)
	}
	return nil
}

func (s *SQLiteStore) Each(fn func(dedup.Record) error) error {
	rows, err := sq.Select("data").From(s.table).OrderBy("id").RunWith(s.db).Query()
	if err != nil {
		return fmt.Errorf("failed to scan %s: %w", s.table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return fmt.Errorf("failed to read row: %w", err)
		}
		var r dedup.Record
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("failed to decode record: %w", err)
		}
		if err := fn(r); err != nil {
			return err
		}
	}
	return rows.Err()
}

// OpenSpillStores создает хранилища во временном файле SQLite в каталоге dir
// (пусто - системный временный каталог). Close удаляет файл.
func OpenSpillStores(dir string) (*Stores, error) {
	file, err := os.CreateTemp(dir, "commentdedup-*.db")
	if err != nil {
		return nil, fmt.Errorf("failed to create spill file: %w", err)
	}
	path := file.Name()
	file.Close()

	db, err := sql.Open("sqlite3", "file:"+path+"?_journal_mode=OFF&_synchronous=OFF")
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to open spill database: %w", err)
	}
	// Одно соединение: запись и чтение идут из одного обработчика итогов
	db.SetMaxOpenConns(1)

	cleanup := func() error {
		closeErr := db.Close()
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
		return closeErr
	}

	stores := &Stores{closer: cleanup}
	for _, target := range []struct {
		table string
		store *RecordStore
	}{
		{"records", &stores.Records},
		{"unprocessed", &stores.Unprocessed},
		{"members", &stores.Members},
	} {
		store, err := NewSQLiteStore(db, target.table)
		if err != nil {
			cleanup()
			return nil, err
		}
		*target.store = store
	}
	return stores, nil
}
