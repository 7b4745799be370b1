package schema

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryConsistency(t *testing.T) {
	for _, table := range Tables {
		require.NotEmpty(t, table.Columns, table.Name)
		require.NotEmpty(t, table.PrimaryKey, table.Name)
		assert.Contains(t, table.DDL, "CREATE TABLE IF NOT EXISTS "+table.Name)

		// Declared keys must be loadable columns.
		cols := map[string]bool{}
		for _, c := range table.Columns {
			cols[c] = true
		}
		for _, k := range table.PrimaryKey {
			assert.True(t, cols[k], "%s: primary key column %s not in column list", table.Name, k)
		}
		if table.VersionKey != "" {
			assert.True(t, cols[table.VersionKey], table.Name)
		}
		if table.TombstoneCol != "" {
			assert.True(t, cols[table.TombstoneCol], table.Name)
		}
	}
}

func TestLoadOrderCoversRegistry(t *testing.T) {
	for _, name := range NormalizedTables {
		_, ok := ByName(name)
		assert.True(t, ok, name)
	}
	// Parent tables load before their children.
	pos := map[string]int{}
	for i, name := range NormalizedTables {
		pos[name] = i
	}
	for _, name := range NormalizedTables {
		table, _ := ByName(name)
		if table.Parent != "" {
			assert.Less(t, pos[table.Parent], pos[name], "%s must load after %s", name, table.Parent)
		}
	}
}

func TestChildTablesDeleteSafeOrder(t *testing.T) {
	assert.NotContains(t, ChildTables, CaseMaster)
	// drug_substance references drug, so it must be deleted first.
	var subIdx, drugIdx int
	for i, name := range ChildTables {
		switch name {
		case DrugSubstance:
			subIdx = i
		case Drug:
			drugIdx = i
		}
	}
	assert.Less(t, subIdx, drugIdx)
}

func TestKnownTable(t *testing.T) {
	assert.True(t, KnownTable(CaseMaster))
	assert.True(t, KnownTable(FileHistory))
	assert.False(t, KnownTable("pg_catalog"))
	assert.False(t, KnownTable(strings.ToUpper(CaseMaster)))
}
