package postgres

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readMigration(t *testing.T, r io.ReadCloser) string {
	t.Helper()
	defer r.Close()
	body, err := io.ReadAll(r)
	require.NoError(t, err)
	return string(body)
}

func TestMigrationsArePairedAndOrdered(t *testing.T) {
	t.Parallel()

	src, err := Migrations()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	var versions []uint
	version, err := src.First()
	require.NoError(t, err)
	for {
		versions = append(versions, version)
		up, _, err := src.ReadUp(version)
		require.NoError(t, err, "version %d has no up migration", version)
		assert.NotEmpty(t, strings.TrimSpace(readMigration(t, up)))
		down, _, err := src.ReadDown(version)
		require.NoError(t, err, "version %d has no down migration", version)
		assert.NotEmpty(t, strings.TrimSpace(readMigration(t, down)))

		next, err := src.Next(version)
		if errors.Is(err, fs.ErrNotExist) {
			break
		}
		require.NoError(t, err)
		version = next
	}
	assert.Equal(t, []uint{1, 2}, versions)
}

func TestInitialMigrationCoversQueriedColumns(t *testing.T) {
	t.Parallel()

	src, err := Migrations()
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	up, _, err := src.ReadUp(1)
	require.NoError(t, err)
	ddl := readMigration(t, up)

	for _, table := range []string{"sources", "discovered_candidates", "links", "scan_runs"} {
		assert.Contains(t, ddl, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	for _, column := range strings.Split(sourceColumns, ",") {
		assert.Contains(t, ddl, strings.TrimSpace(column)+" ")
	}
}

func TestMigrateRequiresDSN(t *testing.T) {
	t.Parallel()

	err := Migrate(context.Background(), "", zap.NewNop())
	require.Error(t, err)
}

func TestMigrateReportsUnreachableDatabase(t *testing.T) {
	t.Parallel()

	err := Migrate(context.Background(), "postgres://forumwatch@127.0.0.1:1/forumwatch?sslmode=disable&connect_timeout=1", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping database")
}
