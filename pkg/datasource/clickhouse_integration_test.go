package datasource

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/require"
	tcch "github.com/testcontainers/testcontainers-go/modules/clickhouse"
)

func TestClickHouseSourceIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container-backed test in short mode")
	}

	ctx := context.Background()

	container, err := tcch.Run(ctx, "clickhouse/clickhouse-server:latest",
		tcch.WithDatabase("testdb"),
		tcch.WithUsername("default"),
		tcch.WithPassword("password"),
	)
	require.NoError(t, err)
	defer func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to cleanup clickhouse container: %v", err)
		}
	}()

	host, err := container.Host(ctx)
	require.NoError(t, err)
	mappedPort, err := container.MappedPort(ctx, nat.Port("9000/tcp"))
	require.NoError(t, err)

	conn := openClickHouse(t, ctx, fmt.Sprintf("%s:%s", host, mappedPort.Port()))
	defer conn.Close()

	require.NoError(t, conn.Exec(ctx, `
		CREATE TABLE testdb.events (
			id UInt64,
			kind String,
			value Float64
		) ENGINE = MergeTree ORDER BY id
	`))
	require.NoError(t, conn.Exec(ctx, `
		INSERT INTO testdb.events VALUES (1, 'click', 0.5), (2, 'view', 1.5), (3, 'click', 2.0)
	`))

	src := NewClickHouseSource(conn, "events", "testdb", "events")
	require.Equal(t, "testdb.events", src.TableExpression())

	table, err := src.Describe(ctx)
	require.NoError(t, err)
	require.Len(t, table.Columns, 3)
	require.Equal(t, "id", table.Columns[0].Name)
	require.Equal(t, "UInt64", table.Columns[0].Type)

	result, err := src.RunQuery(ctx, "SELECT kind, count() AS n FROM testdb.events GROUP BY kind ORDER BY kind")
	require.NoError(t, err)
	require.Equal(t, 2, result.Count)
	require.Equal(t, []string{"kind", "n"}, result.Columns)
	require.Equal(t, "click", result.Rows[0]["kind"])

	_, err = src.RunQuery(ctx, "SELECT nope FROM testdb.events")
	require.Error(t, err)
}

// openClickHouse retries the initial connection because the server may
// accept TCP before it is ready to complete the native handshake.
func openClickHouse(t *testing.T, ctx context.Context, addr string) driver.Conn {
	t.Helper()

	var conn driver.Conn
	var lastErr error
	for attempt := 1; attempt <= 3; attempt++ {
		var err error
		conn, err = clickhouse.Open(&clickhouse.Options{
			Addr: []string{addr},
			Auth: clickhouse.Auth{
				Database: "testdb",
				Username: "default",
				Password: "password",
			},
		})
		if err == nil {
			err = conn.Ping(ctx)
		}
		if err == nil {
			return conn
		}
		lastErr = err
		time.Sleep(time.Duration(attempt) * 500 * time.Millisecond)
	}
	t.Fatalf("failed to connect to clickhouse at %s: %v", addr, lastErr)
	return nil
}
