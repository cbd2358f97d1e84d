package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathomdata/fathom/pkg/datasource"
	"github.com/fathomdata/fathom/pkg/duck"
	"github.com/fathomdata/fathom/pkg/fault"
)

// fakeNative is a query-capable source that records what it was asked to
// run.
type fakeNative struct {
	name    string
	expr    string
	lastSQL string
	result  *datasource.QueryResult
	err     error
}

func (f *fakeNative) Name() string { return f.name }

func (f *fakeNative) Describe(ctx context.Context) (*datasource.Table, error) {
	return &datasource.Table{Name: f.name}, nil
}

func (f *fakeNative) TableExpression() string { return f.expr }

func (f *fakeNative) RunQuery(ctx context.Context, sql string) (*datasource.QueryResult, error) {
	f.lastSQL = sql
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func newTestRouter(t *testing.T) *Router {
	t.Helper()
	engine, err := duck.NewEngine(nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = engine.Close() })

	r, err := New(Config{Engine: engine})
	require.NoError(t, err)
	return r
}

func TestRouteWithoutSources(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Route(context.Background(), "SELECT 1", nil)
	require.ErrorIs(t, err, ErrNoDataSources)
	require.Equal(t, fault.KindConfiguration, fault.KindOf(err))
}

func TestRouteForwardsToNativeExecutor(t *testing.T) {
	native := &fakeNative{
		name:   "users",
		expr:   "analytics.users",
		result: &datasource.QueryResult{Columns: []string{"n"}, Count: 1},
	}
	r := newTestRouter(t)

	result, err := r.Route(context.Background(), "SELECT count(*) AS n FROM users", []datasource.Source{native})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.Equal(t, "SELECT count(*) AS n FROM analytics.users", native.lastSQL)
}

func TestRouteRejectsMultipleNativeExecutors(t *testing.T) {
	a := &fakeNative{name: "users", expr: "db.users"}
	b := &fakeNative{name: "orders", expr: "db.orders"}
	r := newTestRouter(t)

	_, err := r.Route(context.Background(), "SELECT * FROM users", []datasource.Source{a, b})
	require.Error(t, err)
	require.Equal(t, fault.KindDispatch, fault.KindOf(err))
}

func TestRouteUnknownTableIsDispatchError(t *testing.T) {
	native := &fakeNative{name: "users", expr: "db.users"}
	r := newTestRouter(t)

	_, err := r.Route(context.Background(), "SELECT * FROM ghosts", []datasource.Source{native})
	require.Error(t, err)
	require.Equal(t, fault.KindDispatch, fault.KindOf(err))
}

func TestRouteNativeErrorPropagates(t *testing.T) {
	native := &fakeNative{
		name: "users",
		expr: "db.users",
		err:  fault.New(fault.KindDispatch, "backend rejected query"),
	}
	r := newTestRouter(t)

	_, err := r.Route(context.Background(), "SELECT * FROM users", []datasource.Source{native})
	require.Error(t, err)
	require.Equal(t, fault.KindDispatch, fault.KindOf(err))
}

func TestRouteRunsMemorySourcesOnEmbeddedEngine(t *testing.T) {
	people := datasource.NewMemorySource(&datasource.Table{
		Name: "people",
		Columns: []datasource.Column{
			{Name: "name", Type: "VARCHAR"},
			{Name: "age", Type: "DOUBLE"},
		},
		Rows: [][]any{
			{"ada", 36.0},
			{"grace", 45.0},
		},
	})
	r := newTestRouter(t)

	result, err := r.Route(context.Background(), "SELECT count(*) AS n FROM people", []datasource.Source{people})
	require.NoError(t, err)
	require.Equal(t, 1, result.Count)
	require.EqualValues(t, 2, result.Rows[0]["n"])
}

// With no query-capable source registered, a query joining two logical
// names is answered entirely by the embedded engine.
func TestRouteJoinsTwoMemorySourcesOnEmbeddedEngine(t *testing.T) {
	people := datasource.NewMemorySource(&datasource.Table{
		Name: "people",
		Columns: []datasource.Column{
			{Name: "name", Type: "VARCHAR"},
			{Name: "city_id", Type: "BIGINT"},
		},
		Rows: [][]any{
			{"ada", int64(1)},
			{"grace", int64(2)},
			{"edsger", int64(1)},
		},
	})
	cities := datasource.NewMemorySource(&datasource.Table{
		Name: "cities",
		Columns: []datasource.Column{
			{Name: "id", Type: "BIGINT"},
			{Name: "city", Type: "VARCHAR"},
		},
		Rows: [][]any{
			{int64(1), "london"},
			{int64(2), "new york"},
		},
	})
	r := newTestRouter(t)

	result, err := r.Route(context.Background(),
		"SELECT cities.city AS city, count(*) AS n FROM people JOIN cities ON people.city_id = cities.id GROUP BY cities.city ORDER BY n DESC, city",
		[]datasource.Source{people, cities})
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Equal(t, "london", result.Rows[0]["city"])
	require.EqualValues(t, 2, result.Rows[0]["n"])
	require.Equal(t, "new york", result.Rows[1]["city"])
	require.EqualValues(t, 1, result.Rows[1]["n"])
}
