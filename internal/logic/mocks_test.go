package logic

import (
	"context"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rhythmstats/ranking-api/internal/models"
)

// MockDB records executed SQL, serves scripted responses and hands out
// transactions that delegate back to it.
type MockDB struct {
	QueryFunc    func(sql string, args []any) (pgx.Rows, error)
	QueryRowFunc func(sql string, args []any) pgx.Row
	ExecFunc     func(sql string, args []any) (pgconn.CommandTag, error)

	Statements []string
	Args       [][]any
	LastTx     *MockTx
}

func (m *MockDB) record(sql string, args []any) {
	m.Statements = append(m.Statements, sql)
	m.Args = append(m.Args, args)
}

func (m *MockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	m.record(sql, args)
	if m.QueryFunc != nil {
		return m.QueryFunc(sql, args)
	}
	return &MockRows{}, nil
}

func (m *MockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.record(sql, args)
	if m.QueryRowFunc != nil {
		return m.QueryRowFunc(sql, args)
	}
	return &MockRow{}
}

func (m *MockDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	m.record(sql, args)
	if m.ExecFunc != nil {
		return m.ExecFunc(sql, args)
	}
	return pgconn.CommandTag{}, nil
}

func (m *MockDB) Begin(ctx context.Context) (pgx.Tx, error) {
	m.LastTx = &MockTx{db: m}
	return m.LastTx, nil
}

// MockTx delegates queries to its MockDB and tracks commit state.
type MockTx struct {
	pgx.Tx
	db         *MockDB
	Committed  bool
	RolledBack bool
}

func (t *MockTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.db.Query(ctx, sql, args...)
}

func (t *MockTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.db.QueryRow(ctx, sql, args...)
}

func (t *MockTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.db.Exec(ctx, sql, args...)
}

func (t *MockTx) Commit(ctx context.Context) error {
	t.Committed = true
	return nil
}

func (t *MockTx) Rollback(ctx context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
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

// assign copies a scripted value into a scan destination, tolerating the
// typed ints and nullable pointers the real rows carry.
func assign(dest, val any) {
	dv := reflect.ValueOf(dest).Elem()
	if val == nil {
		dv.Set(reflect.Zero(dv.Type()))
		return
	}
	vv := reflect.ValueOf(val)
	switch {
	case vv.Type().AssignableTo(dv.Type()):
		dv.Set(vv)
	case dv.Kind() == reflect.Ptr && vv.Type().AssignableTo(dv.Type().Elem()):
		p := reflect.New(dv.Type().Elem())
		p.Elem().Set(vv)
		dv.Set(p)
	case vv.Type().ConvertibleTo(dv.Type()):
		dv.Set(vv.Convert(dv.Type()))
	}
}

// leaderboardRow lays out a leaderboard in column order, with an empty
// filter unless the test encodes one.
func leaderboardRow(lb *models.Leaderboard, filter []byte) []any {
	if filter == nil {
		filter = []byte("{}")
	}
	return []any{lb.ID, lb.Name, lb.Description, lb.Gamemode, lb.ScoreSet, lb.Access,
		lb.OwnerID, lb.AllowPastScores, lb.Archived, lb.Decay, lb.NotifyChannel,
		filter, lb.MemberCount, lb.CreatedAt}
}

func membershipRowValues(m *models.Membership) []any {
	return []any{m.ID, m.LeaderboardID, m.UserID, m.PP, m.ScoreCount, m.Rank, m.JoinedAt}
}

// hydratedScoreRow lays out a score plus its joined beatmap and totals in
// the hydrated query's column order. perf and nochoke are float64 or nil.
func hydratedScoreRow(sc *models.Score, perf, nochoke any) []any {
	bm := sc.Beatmap
	return []any{sc.ID, sc.UserID, sc.BeatmapID, sc.Gamemode, sc.Mods,
		sc.Count300, sc.Count100, sc.Count50, sc.CountMiss, sc.Combo,
		sc.Result, sc.Mutation, nil, sc.CreatedAt,
		perf, nochoke,
		bm.ID, bm.Gamemode, bm.Status, bm.Artist, bm.Title, bm.Version,
		bm.MaxCombo, bm.DifficultyTotal, bm.ApprovedAt}
}
