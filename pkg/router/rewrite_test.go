package router

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathomdata/fathom/pkg/fault"
)

func TestExtractTableRefs(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{
			name:  "simple select",
			query: "SELECT * FROM users",
			want:  []string{"users"},
		},
		{
			name:  "join",
			query: "SELECT * FROM orders o JOIN users u ON o.user_id = u.id",
			want:  []string{"orders", "users"},
		},
		{
			name:  "case insensitive keywords",
			query: "select count(*) from Events",
			want:  []string{"Events"},
		},
		{
			name:  "qualified name",
			query: "SELECT * FROM public.users",
			want:  []string{"public.users"},
		},
		{
			name:  "duplicate references collapse",
			query: "SELECT * FROM users UNION SELECT * FROM users",
			want:  []string{"users"},
		},
		{
			name:  "keyword inside string literal is ignored",
			query: "SELECT * FROM users WHERE note = 'copied from backups'",
			want:  []string{"users"},
		},
		{
			name:  "no tables",
			query: "SELECT 1",
			want:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := extractTableRefs(tt.query)
			require.ElementsMatch(t, tt.want, got)
		})
	}
}

func TestRewriteQuery(t *testing.T) {
	mapping := map[string]string{
		"users":  "analytics.users",
		"orders": "orders",
	}

	t.Run("substitutes mapped references", func(t *testing.T) {
		got, err := rewriteQuery("SELECT * FROM users JOIN orders ON users.id = orders.user_id", mapping)
		require.NoError(t, err)
		require.Equal(t, "SELECT * FROM analytics.users JOIN orders ON analytics.users.id = orders.user_id", got)
	})

	t.Run("identity mappings are left alone", func(t *testing.T) {
		got, err := rewriteQuery("SELECT * FROM orders", mapping)
		require.NoError(t, err)
		require.Equal(t, "SELECT * FROM orders", got)
	})

	t.Run("string literals are not rewritten", func(t *testing.T) {
		got, err := rewriteQuery("SELECT * FROM users WHERE name = 'users'", mapping)
		require.NoError(t, err)
		require.Equal(t, "SELECT * FROM analytics.users WHERE name = 'users'", got)
	})

	t.Run("unknown reference is a dispatch error", func(t *testing.T) {
		_, err := rewriteQuery("SELECT * FROM ghosts", mapping)
		require.Error(t, err)
		require.Equal(t, fault.KindDispatch, fault.KindOf(err))
		require.Contains(t, err.Error(), "ghosts")
	})
}

func TestReplaceIdentHonorsEscapedQuotes(t *testing.T) {
	got := replaceIdent("SELECT * FROM users WHERE note = 'it''s a users thing' AND users.id > 0", "users", "db.users")
	require.Equal(t, "SELECT * FROM db.users WHERE note = 'it''s a users thing' AND db.users.id > 0", got)
}
