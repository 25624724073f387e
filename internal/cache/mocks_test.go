package cache

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"
)

// MockPgPool records executed SQL and serves scripted responses.
type MockPgPool struct {
	QueryFunc    func(sql string, args []any) (pgx.Rows, error)
	QueryRowFunc func(sql string, args []any) pgx.Row
	ExecFunc     func(sql string, args []any) (pgconn.CommandTag, error)

	Statements []string
	Args       [][]any
}

func (m *MockPgPool) record(sql string, args []any) {
	m.Statements = append(m.Statements, sql)
	m.Args = append(m.Args, args)
}

func (m *MockPgPool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.record(sql, args)
	if m.QueryFunc != nil {
		return m.QueryFunc(sql, args)
	}
	return &MockRows{}, nil
}

func (m *MockPgPool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.record(sql, args)
	if m.QueryRowFunc != nil {
		return m.QueryRowFunc(sql, args)
	}
	return &MockRow{}
}

func (m *MockPgPool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.record(sql, args)
	if m.ExecFunc != nil {
		return m.ExecFunc(sql, args)
	}
	return pgconn.CommandTag{}, nil
}

// MockRow scans preset values, or returns Err.
type MockRow struct {
	Values []any
	Err    error
}

func (m *MockRow) Scan(dest ...any) error {
	if m.Err != nil {
		return m.Err
	}
	for i, d := range dest {
		if i >= len(m.Values) {
			break
		}
		assign(d, m.Values[i])
	}
	return nil
}

// MockRows yields preset rows.
type MockRows struct {
	Data [][]any
	idx  int
}

func (m *MockRows) Next() bool {
	if m.idx >= len(m.Data) {
		return false
	}
	m.idx++
	return true
}

func (m *MockRows) Scan(dest ...any) error {
	row := m.Data[m.idx-1]
	for i, d := range dest {
		if i >= len(row) {
			break
		}
		assign(d, row[i])
	}
	return nil
}

func (m *MockRows) Close()                                       {}
func (m *MockRows) Err() error                                   { return nil }
func (m *MockRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (m *MockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *MockRows) Values() ([]any, error)                       { return nil, nil }
func (m *MockRows) RawValues() [][]byte                          { return nil }
func (m *MockRows) Conn() *pgx.Conn                              { return nil }

func assign(dest, val any) {
	switch d := dest.(type) {
	case *int64:
		switch v := val.(type) {
		case int64:
			*d = v
		case int:
			*d = int64(v)
		}
	case *int:
		switch v := val.(type) {
		case int:
			*d = v
		case int64:
			*d = int(v)
		}
	case *float64:
		if v, ok := val.(float64); ok {
			*d = v
		}
	case *string:
		if v, ok := val.(string); ok {
			*d = v
		}
	case *bool:
		if v, ok := val.(bool); ok {
			*d = v
		}
	case *time.Time:
		if v, ok := val.(time.Time); ok {
			*d = v
		}
	}
}

// MockRedis implements the RedisClient interface with an in-memory map.
type MockRedis struct {
	KV   map[string]string
	Sets map[string]map[string]bool
}

func NewMockRedis() *MockRedis {
	return &MockRedis{KV: make(map[string]string), Sets: make(map[string]map[string]bool)}
}

func (m *MockRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	if v, ok := m.KV[key]; ok {
		return redis.NewStringResult(v, nil)
	}
	return redis.NewStringResult("", redis.Nil)
}

func (m *MockRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	if s, ok := value.(string); ok {
		m.KV[key] = s
	}
	return redis.NewStatusResult("OK", nil)
}

func (m *MockRedis) SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	set, ok := m.Sets[key]
	if !ok {
		set = make(map[string]bool)
		m.Sets[key] = set
	}
	for _, member := range members {
		if s, ok := member.(string); ok {
			set[s] = true
		}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}

func (m *MockRedis) SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd {
	set := m.Sets[key]
	for _, member := range members {
		if s, ok := member.(string); ok {
			delete(set, s)
		}
	}
	return redis.NewIntResult(int64(len(members)), nil)
}
