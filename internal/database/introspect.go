package database

import (
	"context"
	"fmt"

	"github.com/pharmovig/icsr-ingest/internal/schema"
)

// Version-key and tombstone conventions: a table that carries a column with
// these names participates in versioned merging. Discovery is driven by the
// live schema so the merge logic works for any table following the
// convention, not a hard-coded list.
const (
	versionKeyColumn = "receiptdate"
	tombstoneColumn  = "is_nullified"
)

// introspectTable reads the merge-relevant metadata of one table from the
// live catalog: its column set and primary key. The table name must belong
// to the registry allow-list; introspected identifiers are trusted but the
// guard keeps a misconfigured search_path from steering SQL generation.
func (l *PostgresLoader) introspectTable(ctx context.Context, q queryer, name string) (tableMeta, error) {
	if !schema.KnownTable(name) {
		return tableMeta{}, fmt.Errorf("table %s is not part of the destination schema", name)
	}

	l.metaMu.Lock()
	cached, ok := l.metaCache[name]
	l.metaMu.Unlock()
	if ok {
		return cached, nil
	}

	meta := tableMeta{Name: name}

	rows, err := q.Query(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, name)
	if err != nil {
		return tableMeta{}, fmt.Errorf("introspecting columns of %s: %w", name, err)
	}
	defer rows.Close()
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return tableMeta{}, fmt.Errorf("scanning column of %s: %w", name, err)
		}
		meta.Columns = append(meta.Columns, col)
		switch col {
		case versionKeyColumn:
			meta.VersionKey = col
		case tombstoneColumn:
			meta.TombstoneCol = col
		}
	}
	if err := rows.Err(); err != nil {
		return tableMeta{}, fmt.Errorf("iterating columns of %s: %w", name, err)
	}
	if len(meta.Columns) == 0 {
		return tableMeta{}, fmt.Errorf("table %s does not exist", name)
	}

	pkRows, err := q.Query(ctx, `
		SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY (i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary
		ORDER BY array_position(i.indkey, a.attnum)`, name)
	if err != nil {
		return tableMeta{}, fmt.Errorf("introspecting primary key of %s: %w", name, err)
	}
	defer pkRows.Close()
	for pkRows.Next() {
		var col string
		if err := pkRows.Scan(&col); err != nil {
			return tableMeta{}, fmt.Errorf("scanning primary key of %s: %w", name, err)
		}
		meta.PrimaryKey = append(meta.PrimaryKey, col)
	}
	if err := pkRows.Err(); err != nil {
		return tableMeta{}, fmt.Errorf("iterating primary key of %s: %w", name, err)
	}
	if len(meta.PrimaryKey) == 0 {
		// Registry fallback keeps the merge functional on backends that
		// hide pg_index from the connecting role.
		if reg, ok := schema.ByName(name); ok {
			meta.PrimaryKey = reg.PrimaryKey
		}
	}

	l.metaMu.Lock()
	l.metaCache[name] = meta
	l.metaMu.Unlock()
	return meta, nil
}
