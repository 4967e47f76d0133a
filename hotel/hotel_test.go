package hotel

import (
	"io/fs"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/trevex/tenantscope"
)

func TestPolicy(t *testing.T) {
	for entity := range Schema {
		entry, ok := Policy.Lookup(entity)
		require.True(t, ok, entity)
		if entry.Scoping != tenantscope.ScopeUnscoped {
			require.NotEmpty(t, entry.TenantField, entity)
		}
	}

	guest, _ := Policy.Lookup(Guest)
	require.Equal(t, tenantscope.ScopeAssociative, guest.Scoping)
	require.Equal(t, tenantscope.AnyRelated, guest.Match)
	require.Equal(t, TenantField, guest.TenantField)

	property, _ := Policy.Lookup(Property)
	require.Equal(t, tenantscope.IDField, property.TenantField)
}

func TestMigrationsCoverSchema(t *testing.T) {
	for name, migrations := range map[string]fs.FS{
		"postgres": PostgresMigrations,
		"sqlite":   SQLiteMigrations,
	} {
		t.Run(name, func(t *testing.T) {
			files, err := fs.Glob(migrations, "*.sql")
			require.NoError(t, err)
			require.NotEmpty(t, files)

			all := ""
			for _, file := range files {
				if strings.HasSuffix(file, ".down.sql") {
					continue
				}
				b, err := fs.ReadFile(migrations, file)
				require.NoError(t, err)
				all += string(b)
			}
			for _, entity := range Schema {
				require.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+entity.Table+" (")
				for _, column := range entity.Columns() {
					require.Contains(t, all, strconv.Quote(column), entity.Table)
				}
			}
		})
	}
}
