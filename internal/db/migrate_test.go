package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/toko", migrateURL("postgres://u:p@localhost:5432/toko"))
	require.Equal(t, "pgx5://localhost/toko", migrateURL("postgresql://localhost/toko"))
	require.Equal(t, "pgx5://already", migrateURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)
	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestSchemaGuardsCartOwnershipAndSnapshots(t *testing.T) {
	data, err := fs.ReadFile(migrationFiles, "migrations/000001_init.up.sql")
	require.NoError(t, err)
	schema := string(data)
	require.Contains(t, schema, "CHECK (num_nonnulls(user_id, anon_id) = 1)")
	require.Contains(t, schema, "UNIQUE (cart_id, product_id)")
	require.Contains(t, schema, "ON DELETE SET NULL")
	require.Contains(t, schema, "orders_snapshot_immutable")
}
