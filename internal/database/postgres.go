package database

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/internal/normalize"
	"github.com/pharmovig/icsr-ingest/internal/schema"
)

// queryer is the subset of pgx shared by pools and transactions.
type queryer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func ConnectDB(ctx context.Context, connStr string) (*pgxpool.Pool, error) {
	dbpool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	return dbpool, nil
}

// PostgresLoader implements Loader on PostgreSQL with transaction-scoped
// staging tables, COPY-protocol bulk loads, and version-aware merges.
// Concurrent workers are safe sharing one loader: each file's load runs
// on its own pooled connection, and temp staging tables live in that
// session's private schema, so two sessions can both hold a
// "staging_case_master" without colliding.
type PostgresLoader struct {
	pool   *pgxpool.Pool
	policy TombstonePolicy
	log    zerolog.Logger

	metaMu    sync.Mutex
	metaCache map[string]tableMeta
}

func NewPostgresLoader(pool *pgxpool.Pool, policy TombstonePolicy, log zerolog.Logger) *PostgresLoader {
	if policy == "" {
		policy = TombstoneAdvance
	}
	return &PostgresLoader{
		pool:      pool,
		policy:    policy,
		log:       log.With().Str("component", "loader").Logger(),
		metaCache: make(map[string]tableMeta),
	}
}

func (l *PostgresLoader) Close() { l.pool.Close() }

// CreateAllTables applies the destination schema idempotently: data tables
// in parent-first order, then the file history table.
func (l *PostgresLoader) CreateAllTables(ctx context.Context) error {
	for _, table := range schema.Tables {
		if _, err := l.pool.Exec(ctx, table.DDL); err != nil {
			return fmt.Errorf("error creating table %s: %w", table.Name, err)
		}
	}
	if _, err := l.pool.Exec(ctx, schema.HistoryDDL); err != nil {
		return fmt.Errorf("error creating history table: %w", err)
	}
	l.log.Info().Msg("destination schema ready")
	return nil
}

// GetCompletedFileHashes returns the content hashes already loaded, queried
// once per run to compute the delta-mode skip set.
func (l *PostgresLoader) GetCompletedFileHashes(ctx context.Context) (map[string]bool, error) {
	rows, err := l.pool.Query(ctx,
		`SELECT file_hash FROM etl_file_history WHERE status = $1`, StatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("error querying completed file hashes: %w", err)
	}
	defer rows.Close()

	hashes := make(map[string]bool)
	for rows.Next() {
		var h string
		if err := rows.Scan(&h); err != nil {
			return nil, fmt.Errorf("error scanning file hash: %w", err)
		}
		hashes[h] = true
	}
	return hashes, rows.Err()
}

// RecordFileStatus upserts one history row keyed by content hash in its own
// implicit transaction. Used standalone for quarantine statuses and for the
// independent failure record written after a rollback.
func (l *PostgresLoader) RecordFileStatus(ctx context.Context, hash, filename, status string, rows int) error {
	return recordFileStatus(ctx, l.pool, hash, filename, status, rows)
}

func recordFileStatus(ctx context.Context, q queryer, hash, filename, status string, rows int) error {
	_, err := q.Exec(ctx, `
		INSERT INTO etl_file_history (filename, file_hash, status, rows_processed)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_hash) DO UPDATE
		SET filename = EXCLUDED.filename,
			status = EXCLUDED.status,
			rows_processed = EXCLUDED.rows_processed,
			load_timestamp = NOW();`,
		filename, hash, status, rows)
	if err != nil {
		return fmt.Errorf("error recording file status %q for %s: %w", status, filename, err)
	}
	return nil
}

// ResetTargets truncates the destination tables for schemaType ("audit"
// truncates the audit log only, anything else the normalized projection).
func (l *PostgresLoader) ResetTargets(ctx context.Context, schemaType string) error {
	if schemaType == "audit" {
		return l.truncateTargets(ctx, []string{schema.AuditLog})
	}
	return l.truncateTargets(ctx, schema.NormalizedTables)
}

// LoadNormalized applies one file's normalized row batches as a single
// transaction: mark the file running, retire child rows of the arriving
// cases, stage+copy+merge each non-empty table parent-first, mark the file
// completed, commit. On any failure the data transaction rolls back and a
// second, independent transaction records the failure, so the outcome is
// durably observable either way. The mode only affects merge input, not
// behavior here; full-refresh truncation happens once per run via
// ResetTargets.
func (l *PostgresLoader) LoadNormalized(ctx context.Context, batch *normalize.Batch, mode, path, hash string) (int, error) {
	total := 0
	err := l.inTransaction(ctx, path, hash, func(tx pgx.Tx) error {
		if err := l.retireChildRows(ctx, tx, batch.ReportIDs); err != nil {
			return &models.LoadError{Err: err}
		}
		for _, table := range schema.NormalizedTables {
			rows := batch.Rows[table]
			if len(rows) == 0 {
				continue
			}
			reg, _ := schema.ByName(table)
			if err := l.loadTable(ctx, tx, table, reg.Columns, rows); err != nil {
				return &models.LoadError{Table: table, Err: err}
			}
			total += len(rows)
		}
		return recordFileStatus(ctx, tx, hash, path, StatusCompleted, total)
	})
	if err != nil {
		return 0, err
	}
	l.log.Info().Str("file", path).Int("rows", total).Msg("normalized load committed")
	return total, nil
}

// LoadAudit applies one file's audit rows in a single transaction with the
// same merge semantics. audit_log versions by receiptdate but carries no
// tombstone column, so nullifications overwrite like any newer revision.
func (l *PostgresLoader) LoadAudit(ctx context.Context, rows []models.AuditRow, mode, path, hash string) (int, error) {
	total := 0
	err := l.inTransaction(ctx, path, hash, func(tx pgx.Tx) error {
		if len(rows) > 0 {
			reg, _ := schema.ByName(schema.AuditLog)
			data := make([][]any, len(rows))
			for i, r := range rows {
				data[i] = []any{r.SafetyReportID, r.ReceiptDate, r.ReceiveDate, r.Payload, r.PayloadHash}
			}
			if err := l.loadTable(ctx, tx, schema.AuditLog, reg.Columns, data); err != nil {
				return &models.LoadError{Table: schema.AuditLog, Err: err}
			}
			total = len(rows)
		}
		return recordFileStatus(ctx, tx, hash, path, StatusCompleted, total)
	})
	if err != nil {
		return 0, err
	}
	l.log.Info().Str("file", path).Int("rows", total).Msg("audit load committed")
	return total, nil
}

// inTransaction runs fn inside one data transaction that opens by marking
// the file running. Failure rolls back and records the failed status on a
// fresh connection.
func (l *PostgresLoader) inTransaction(ctx context.Context, path, hash string, fn func(pgx.Tx) error) error {
	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return &models.LoadError{Err: fmt.Errorf("error beginning transaction: %w", err)}
	}

	if err := recordFileStatus(ctx, tx, hash, path, StatusRunning, 0); err != nil {
		l.rollback(ctx, tx, path)
		return &models.LoadError{Err: err}
	}
	if err := fn(tx); err != nil {
		l.rollback(ctx, tx, path)
		l.recordFailure(ctx, hash, path)
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		l.recordFailure(ctx, hash, path)
		return &models.LoadError{Err: fmt.Errorf("error committing transaction: %w", err)}
	}
	return nil
}

func (l *PostgresLoader) rollback(ctx context.Context, tx pgx.Tx, path string) {
	if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
		l.log.Error().Err(err).Str("file", path).Msg("error rolling back transaction")
	}
}

func (l *PostgresLoader) recordFailure(ctx context.Context, hash, path string) {
	if err := l.RecordFileStatus(ctx, hash, path, StatusFailed, 0); err != nil {
		l.log.Error().Err(err).Str("file", path).Msg("could not record failure status")
	}
}

// loadTable stages, bulk-loads, and merges one table's rows inside tx.
// columns is the staged column order; server-defaulted columns outside it
// keep their defaults through the merge.
func (l *PostgresLoader) loadTable(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	staging, err := l.prepareStaging(ctx, tx, table)
	if err != nil {
		return err
	}

	n, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("unable to copy rows to staging table %s: %w", staging, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("staging table %s received %d of %d rows", staging, n, len(rows))
	}

	meta, err := l.introspectTable(ctx, tx, table)
	if err != nil {
		return err
	}
	meta.Columns = columns

	if _, err := tx.Exec(ctx, buildUpsertSQL(meta, staging, l.policy)); err != nil {
		return fmt.Errorf("error merging staging table into %s: %w", table, err)
	}
	return nil
}

// prepareStaging creates the transaction-scoped staging twin of table.
func (l *PostgresLoader) prepareStaging(ctx context.Context, tx pgx.Tx, table string) (string, error) {
	if !schema.KnownTable(table) {
		return "", fmt.Errorf("table %s is not part of the destination schema", table)
	}
	staging := "staging_" + table
	query := fmt.Sprintf(`CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP;`,
		pgx.Identifier{staging}.Sanitize(), pgx.Identifier{table}.Sanitize())
	if _, err := tx.Exec(ctx, query); err != nil {
		return "", fmt.Errorf("error creating staging table for %s: %w", table, err)
	}
	return staging, nil
}

// retireChildRows deletes child-table rows belonging to the arriving
// reports so an amendment that drops a reaction or drug does not leave the
// stale row behind. case_master itself is merged, never deleted.
func (l *PostgresLoader) retireChildRows(ctx context.Context, tx pgx.Tx, reportIDs []string) error {
	if len(reportIDs) == 0 {
		return nil
	}
	for _, table := range schema.ChildTables {
		query := fmt.Sprintf(`DELETE FROM %s WHERE safetyreportid = ANY($1);`,
			pgx.Identifier{table}.Sanitize())
		if _, err := tx.Exec(ctx, query, reportIDs); err != nil {
			return fmt.Errorf("error retiring rows of %s: %w", table, err)
		}
	}
	return nil
}

// truncateTargets empties the given tables as one committed statement,
// children first via CASCADE. Full refresh never touches history rows.
func (l *PostgresLoader) truncateTargets(ctx context.Context, tables []string) error {
	idents := make([]string, len(tables))
	for i, table := range tables {
		if !schema.KnownTable(table) {
			return fmt.Errorf("table %s is not part of the destination schema", table)
		}
		idents[i] = pgx.Identifier{table}.Sanitize()
	}
	query := fmt.Sprintf(`TRUNCATE %s CASCADE;`, strings.Join(idents, ", "))
	if _, err := l.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("error truncating target tables: %w", err)
	}
	l.log.Warn().Strs("tables", tables).Msg("full refresh: target tables truncated")
	return nil
}

// RecentHistory returns the newest history rows for the status API.
func (l *PostgresLoader) RecentHistory(ctx context.Context, limit int) ([]FileHistoryRow, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := l.pool.Query(ctx, `
		SELECT id, filename, file_hash, status, COALESCE(rows_processed, 0), load_timestamp
		FROM etl_file_history
		ORDER BY load_timestamp DESC
		LIMIT $1;`, limit)
	if err != nil {
		return nil, fmt.Errorf("error querying file history: %w", err)
	}
	defer rows.Close()

	var out []FileHistoryRow
	for rows.Next() {
		var r FileHistoryRow
		if err := rows.Scan(&r.ID, &r.Filename, &r.FileHash, &r.Status, &r.RowsProcessed, &r.LoadTimestamp); err != nil {
			return nil, fmt.Errorf("error scanning history row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// CaseSummary returns one case with its child-row counts, or nil when the
// report is not loaded.
func (l *PostgresLoader) CaseSummary(ctx context.Context, reportID string) (*CaseSummary, error) {
	var s CaseSummary
	err := l.pool.QueryRow(ctx, `
		SELECT m.safetyreportid,
			COALESCE(m.receiptdate, ''),
			m.is_nullified,
			COALESCE(m.senderidentifier, ''),
			(SELECT COUNT(*) FROM reaction r WHERE r.safetyreportid = m.safetyreportid),
			(SELECT COUNT(*) FROM drug d WHERE d.safetyreportid = m.safetyreportid),
			(SELECT COUNT(*) FROM test_result t WHERE t.safetyreportid = m.safetyreportid)
		FROM case_master m
		WHERE m.safetyreportid = $1;`, reportID).
		Scan(&s.SafetyReportID, &s.ReceiptDate, &s.Nullified, &s.SenderID,
			&s.ReactionCount, &s.DrugCount, &s.TestCount)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("error querying case %s: %w", reportID, err)
	}
	return &s, nil
}
