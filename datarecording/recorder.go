// Package datarecording stores flat records, such as traced chip accesses and
// ARC exchanges, in an SQLite database.
package datarecording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"sort"
	"strings"
	"sync"

	// Registers the sqlite3 driver.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// TagKey is the struct tag that controls how a field is stored. The value
// "index" creates an index on the column.
const TagKey = "record"

// Recorder stores entries in tables. A table is defined by a sample struct;
// every field becomes a column of the same name.
type Recorder interface {
	// CreateTable creates a table shaped like sampleEntry. It panics if the
	// struct has a field that cannot be stored.
	CreateTable(tableName string, sampleEntry any)

	// InsertData buffers an entry for a table created earlier.
	InsertData(tableName string, entry any)

	// ListTables returns the names of the tables created.
	ListTables() []string

	// Flush writes the buffered entries.
	Flush() error

	// Close flushes and releases the database.
	Close() error
}

// DefaultBatchSize is the number of buffered entries that triggers a flush.
const DefaultBatchSize = 10000

type table struct {
	structType reflect.Type
	columns    []string
	entries    []any
}

type sqliteWriter struct {
	mu sync.Mutex

	db        *sql.DB
	tables    map[string]*table
	batchSize int
	buffered  int
	closed    bool
}

// New creates a recorder that writes to path + ".sqlite3". An empty path
// picks a unique name. An existing file is never overwritten.
func New(path string) (Recorder, error) {
	if path == "" {
		path = "chiplink_trace_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	if _, err := os.Stat(filename); err == nil {
		return nil, fmt.Errorf("recording %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filename, err)
	}

	fmt.Fprintf(os.Stderr, "Recording to %s\n", filename)

	return NewWithDB(db), nil
}

// NewWithDB creates a recorder on an open database. The recorder takes
// ownership of db. Pending entries are flushed when the program exits
// through atexit.
func NewWithDB(db *sql.DB) Recorder {
	w := &sqliteWriter{
		db:        db,
		tables:    make(map[string]*table),
		batchSize: DefaultBatchSize,
	}

	atexit.Register(func() { _ = w.Flush() })

	return w
}

func columnType(kind reflect.Kind) (string, bool) {
	switch kind {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return "INTEGER", true
	case reflect.Float32, reflect.Float64:
		return "REAL", true
	case reflect.String:
		return "TEXT", true
	default:
		return "", false
	}
}

func fieldType(f reflect.StructField) (string, error) {
	if f.Type.Kind() == reflect.Slice && f.Type.Elem().Kind() == reflect.Uint8 {
		return "BLOB", nil
	}

	t, ok := columnType(f.Type.Kind())
	if !ok {
		return "", fmt.Errorf("field %s has unsupported type %s", f.Name, f.Type)
	}

	return t, nil
}

func (w *sqliteWriter) CreateTable(tableName string, sampleEntry any) {
	st := reflect.TypeOf(sampleEntry)
	if st == nil || st.Kind() != reflect.Struct {
		panic(fmt.Sprintf("table %s: sample entry must be a struct", tableName))
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if _, exists := w.tables[tableName]; exists {
		panic(fmt.Sprintf("table %s already exists", tableName))
	}

	t := &table{structType: st}
	defs := make([]string, 0, st.NumField())

	var indexed []string

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if !f.IsExported() {
			panic(fmt.Sprintf("table %s: field %s is not exported", tableName, f.Name))
		}

		typ, err := fieldType(f)
		if err != nil {
			panic(fmt.Sprintf("table %s: %v", tableName, err))
		}

		t.columns = append(t.columns, f.Name)
		defs = append(defs, f.Name+" "+typ)

		if f.Tag.Get(TagKey) == "index" {
			indexed = append(indexed, f.Name)
		}
	}

	w.mustExecute(fmt.Sprintf("CREATE TABLE %s (\n\t%s\n);",
		tableName, strings.Join(defs, ",\n\t")))

	for _, col := range indexed {
		w.mustExecute(fmt.Sprintf("CREATE INDEX %s_%s ON %s (%s);",
			tableName, col, tableName, col))
	}

	w.tables[tableName] = t
}

func (w *sqliteWriter) InsertData(tableName string, entry any) {
	w.mu.Lock()

	t, exists := w.tables[tableName]
	if !exists {
		w.mu.Unlock()
		panic(fmt.Sprintf("table %s does not exist", tableName))
	}

	if reflect.TypeOf(entry) != t.structType {
		w.mu.Unlock()
		panic(fmt.Sprintf("table %s stores %s, got %T",
			tableName, t.structType, entry))
	}

	t.entries = append(t.entries, entry)
	w.buffered++
	full := w.buffered >= w.batchSize

	w.mu.Unlock()

	if full {
		if err := w.Flush(); err != nil {
			panic(err)
		}
	}
}

func (w *sqliteWriter) ListTables() []string {
	w.mu.Lock()
	defer w.mu.Unlock()

	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

func (w *sqliteWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.buffered == 0 || w.closed {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("starting flush: %w", err)
	}

	for name, t := range w.tables {
		if err := w.flushTable(tx, name, t); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing flush: %w", err)
	}

	for _, t := range w.tables {
		t.entries = nil
	}

	w.buffered = 0

	return nil
}

func (w *sqliteWriter) flushTable(tx *sql.Tx, name string, t *table) error {
	if len(t.entries) == 0 {
		return nil
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(t.columns)), ", ")

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		name, strings.Join(t.columns, ", "), marks))
	if err != nil {
		return fmt.Errorf("preparing insert into %s: %w", name, err)
	}
	defer stmt.Close()

	args := make([]any, len(t.columns))

	for _, e := range t.entries {
		v := reflect.ValueOf(e)
		for i := range args {
			args[i] = v.Field(i).Interface()
		}

		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("inserting into %s: %w", name, err)
		}
	}

	return nil
}

func (w *sqliteWriter) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}

	w.closed = true

	return w.db.Close()
}

func (w *sqliteWriter) mustExecute(query string) {
	if _, err := w.db.Exec(query); err != nil {
		panic(fmt.Errorf("executing %q: %w", query, err))
	}
}
