package database

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	ErrNotSelect    = errors.New("Only SELECT queries are allowed for security reasons")
	ErrUnknownTable = errors.New("unknown table")
	ErrBadQuery     = errors.New("unsupported query")
)

// Column describes one column of a table.
type Column struct {
	Name     string `json:"name"`
	Type     string `json:"type"`
	Nullable bool   `json:"nullable"`
	Primary  bool   `json:"primary,omitempty"`
}

// Row is one record, keyed by column name.
type Row map[string]any

type table struct {
	columns []Column
	rows    []Row
	nextID  int
}

// Store is a small in-memory table set. It understands enough SQL for
// single-table reads: SELECT cols FROM t [WHERE col = v] [LIMIT n].
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
}

// NewStore returns a store seeded with the users and posts tables.
func NewStore() *Store {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)

	return &Store{tables: map[string]*table{
		"users": {
			columns: []Column{
				{Name: "id", Type: "integer", Primary: true},
				{Name: "name", Type: "varchar(255)"},
				{Name: "email", Type: "varchar(255)"},
				{Name: "created_at", Type: "timestamp"},
			},
			rows: []Row{
				{"id": 1, "name": "John Doe", "email": "john@example.com", "created_at": now},
				{"id": 2, "name": "Jane Smith", "email": "jane@example.com", "created_at": now},
			},
			nextID: 3,
		},
		"posts": {
			columns: []Column{
				{Name: "id", Type: "integer", Primary: true},
				{Name: "user_id", Type: "integer"},
				{Name: "title", Type: "varchar(255)"},
				{Name: "content", Type: "text", Nullable: true},
				{Name: "created_at", Type: "timestamp"},
			},
			rows: []Row{
				{"id": 1, "user_id": 1, "title": "Hello", "content": "First post", "created_at": now},
			},
			nextID: 2,
		},
	}}
}

// Tables lists table names in sorted order.
func (store *Store) Tables() []string {
	store.mu.RLock()
	defer store.mu.RUnlock()

	names := make([]string, 0, len(store.tables))
	for name := range store.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Columns returns the columns of one table.
func (store *Store) Columns(name string) ([]Column, error) {
	store.mu.RLock()
	defer store.mu.RUnlock()

	t, ok := store.tables[name]
	if !ok {
		return nil, errors.Mark(errors.Newf("table %q", name), ErrUnknownTable)
	}
	return append([]Column(nil), t.columns...), nil
}

// Insert adds a record and returns its generated id. Unknown columns are
// rejected.
func (store *Store) Insert(name string, data map[string]any) (int, error) {
	store.mu.Lock()
	defer store.mu.Unlock()

	t, ok := store.tables[name]
	if !ok {
		return 0, errors.Mark(errors.Newf("table %q", name), ErrUnknownTable)
	}

	row := Row{}
	for key, value := range data {
		if !t.hasColumn(key) {
			return 0, errors.Newf("table %q has no column %q", name, key)
		}
		row[key] = value
	}

	id := t.nextID
	t.nextID++

	row["id"] = id
	if _, ok := row["created_at"]; !ok && t.hasColumn("created_at") {
		row["created_at"] = time.Now().UTC().Format(time.RFC3339)
	}

	t.rows = append(t.rows, row)
	return id, nil
}

func (t *table) hasColumn(name string) bool {
	for _, c := range t.columns {
		if c.Name == name {
			return true
		}
	}
	return false
}

var selectPattern = regexp.MustCompile(
	`(?is)^\s*select\s+(.+?)\s+from\s+([a-z_][a-z0-9_]*)` +
		`(?:\s+where\s+([a-z_][a-z0-9_]*)\s*=\s*('[^']*'|\$\d+|\?|[^\s;]+))?` +
		`(?:\s+limit\s+(\d+))?\s*;?\s*$`,
)

// Query runs a read-only statement. Placeholders ($1 or ?) are taken from
// params in order.
func (store *Store) Query(query string, params []any) ([]Row, error) {
	trimmed := strings.TrimSpace(query)
	if !strings.HasPrefix(strings.ToLower(trimmed), "select") {
		return nil, ErrNotSelect
	}

	m := selectPattern.FindStringSubmatch(trimmed)
	if m == nil {
		return nil, errors.Mark(errors.Newf("cannot parse %q", query), ErrBadQuery)
	}

	columns, tableName, whereCol, whereVal, limitStr := m[1], strings.ToLower(m[2]), m[3], m[4], m[5]

	store.mu.RLock()
	defer store.mu.RUnlock()

	t, ok := store.tables[tableName]
	if !ok {
		return nil, errors.Mark(errors.Newf("table %q", tableName), ErrUnknownTable)
	}

	projection, err := t.projection(columns)
	if err != nil {
		return nil, err
	}

	var want any
	if whereCol != "" {
		if !t.hasColumn(whereCol) {
			return nil, errors.Mark(errors.Newf("table %q has no column %q", tableName, whereCol), ErrBadQuery)
		}
		if want, err = literal(whereVal, params); err != nil {
			return nil, err
		}
	}

	limit := -1
	if limitStr != "" {
		limit, _ = strconv.Atoi(limitStr)
	}

	out := []Row{}
	for _, row := range t.rows {
		if limit >= 0 && len(out) >= limit {
			break
		}
		if whereCol != "" && fmt.Sprint(row[whereCol]) != fmt.Sprint(want) {
			continue
		}

		projected := Row{}
		for _, col := range projection {
			projected[col] = row[col]
		}
		out = append(out, projected)
	}

	return out, nil
}

func (t *table) projection(spec string) ([]string, error) {
	if strings.TrimSpace(spec) == "*" {
		cols := make([]string, len(t.columns))
		for i, c := range t.columns {
			cols[i] = c.Name
		}
		return cols, nil
	}

	var cols []string
	for _, part := range strings.Split(spec, ",") {
		col := strings.TrimSpace(part)
		if !t.hasColumn(col) {
			return nil, errors.Mark(errors.Newf("unknown column %q", col), ErrBadQuery)
		}
		cols = append(cols, col)
	}
	return cols, nil
}

func literal(token string, params []any) (any, error) {
	switch {
	case token == "?":
		if len(params) == 0 {
			return nil, errors.Mark(errors.New("missing value for placeholder"), ErrBadQuery)
		}
		return params[0], nil
	case strings.HasPrefix(token, "$"):
		n, err := strconv.Atoi(token[1:])
		if err != nil || n < 1 || n > len(params) {
			return nil, errors.Mark(errors.Newf("missing value for placeholder %s", token), ErrBadQuery)
		}
		return params[n-1], nil
	case strings.HasPrefix(token, "'"):
		return strings.Trim(token, "'"), nil
	default:
		if f, err := strconv.ParseFloat(token, 64); err == nil && f == float64(int(f)) {
			return int(f), nil
		}
		return token, nil
	}
}
