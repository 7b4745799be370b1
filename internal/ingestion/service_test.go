package ingestion

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/pharmovig/icsr-ingest/internal/config"
	"github.com/pharmovig/icsr-ingest/internal/database"
	"github.com/pharmovig/icsr-ingest/internal/models"
	"github.com/pharmovig/icsr-ingest/internal/normalize"
	"github.com/pharmovig/icsr-ingest/pkg/blob"
	"github.com/pharmovig/icsr-ingest/pkg/checksum"
)

// MockLoader is a mock implementation of the database.Loader interface.
type MockLoader struct {
	mock.Mock
}

func (m *MockLoader) CreateAllTables(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockLoader) GetCompletedFileHashes(ctx context.Context) (map[string]bool, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]bool), args.Error(1)
}

func (m *MockLoader) ResetTargets(ctx context.Context, schemaType string) error {
	args := m.Called(ctx, schemaType)
	return args.Error(0)
}

func (m *MockLoader) LoadNormalized(ctx context.Context, batch *normalize.Batch, mode, path, hash string) (int, error) {
	args := m.Called(ctx, batch, mode, path, hash)
	return args.Int(0), args.Error(1)
}

func (m *MockLoader) LoadAudit(ctx context.Context, rows []models.AuditRow, mode, path, hash string) (int, error) {
	args := m.Called(ctx, rows, mode, path, hash)
	return args.Int(0), args.Error(1)
}

func (m *MockLoader) RecordFileStatus(ctx context.Context, hash, filename, status string, rows int) error {
	args := m.Called(ctx, hash, filename, status, rows)
	return args.Error(0)
}

func (m *MockLoader) RecentHistory(ctx context.Context, limit int) ([]database.FileHistoryRow, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]database.FileHistoryRow), args.Error(1)
}

func (m *MockLoader) CaseSummary(ctx context.Context, reportID string) (*database.CaseSummary, error) {
	args := m.Called(ctx, reportID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*database.CaseSummary), args.Error(1)
}

func (m *MockLoader) Close() { m.Called() }

const validCaseXML = `<ichicsr>
	<safetyreport>
		<safetyreportid>GB-TEST-0001</safetyreportid>
		<receiptdate>20240115</receiptdate>
	</safetyreport>
</ichicsr>`

func newTestService(t *testing.T, loader database.Loader, sourceDir, quarantineDir string) *Service {
	t.Helper()
	cfg := &config.Config{
		SourceURI:       sourceDir,
		QuarantineURI:   quarantineDir,
		SchemaType:      config.SchemaNormalized,
		LoadMode:        database.ModeDelta,
		NumWorkers:      2,
		TombstonePolicy: "advance",
	}
	fs := blob.NewFilesystem()
	return NewService(cfg, loader, fs, fs, zerolog.Nop())
}

func writeSourceFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestExecuteLoadsPendingFile(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	path := writeSourceFile(t, sourceDir, "batch1.xml", validCaseXML)
	hash, err := checksum.SHA256File(path)
	require.NoError(t, err)

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{}, nil)
	loader.On("LoadNormalized", mock.Anything, mock.Anything, database.ModeDelta, path, hash).Return(2, nil)

	summary, err := newTestService(t, loader, sourceDir, quarantineDir).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Discovered)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 2, summary.Rows)
	loader.AssertExpectations(t)
}

func TestExecuteSkipsAlreadyLoadedContent(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	path := writeSourceFile(t, sourceDir, "batch1.xml", validCaseXML)
	hash, err := checksum.SHA256File(path)
	require.NoError(t, err)

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{hash: true}, nil)

	summary, err := newTestService(t, loader, sourceDir, quarantineDir).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Skipped)
	assert.Equal(t, 0, summary.Completed)
	loader.AssertNotCalled(t, "LoadNormalized", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteQuarantinesUnparseableFile(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	writeSourceFile(t, sourceDir, "garbage.xml", "not xml at all")

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{}, nil)
	loader.On("RecordFileStatus", mock.Anything, mock.Anything, mock.Anything, database.StatusQuarantined, 0).Return(nil)

	summary, err := newTestService(t, loader, sourceDir, quarantineDir).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Quarantined)
	assert.Equal(t, 0, summary.Completed)
	loader.AssertExpectations(t)

	// The quarantine copy and its sidecar must both exist, and the source
	// file must be gone so the next run does not rediscover it.
	_, err = os.Stat(filepath.Join(quarantineDir, "garbage.xml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(sourceDir, "garbage.xml"))
	assert.True(t, os.IsNotExist(err))
	meta, err := os.ReadFile(filepath.Join(quarantineDir, "garbage.xml.meta.json"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), "structural_parse_error")
	assert.Contains(t, string(meta), summary.RunID)
}

func TestExecuteFileWithOnlyRecordErrorsStillCompletes(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	badCase := `<ichicsr><safetyreport><receiptdate>20240101</receiptdate></safetyreport></ichicsr>`
	path := writeSourceFile(t, sourceDir, "noid.xml", badCase)

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{}, nil)
	loader.On("LoadNormalized", mock.Anything, mock.Anything, database.ModeDelta, path, mock.Anything).Return(0, nil)

	summary, err := newTestService(t, loader, sourceDir, quarantineDir).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 0, summary.Quarantined)
	loader.AssertExpectations(t)
}

func TestExecuteLoadFailureBecomesFailedOutcome(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	writeSourceFile(t, sourceDir, "batch1.xml", validCaseXML)

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{}, nil)
	loader.On("LoadNormalized", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(0, &models.LoadError{Table: "case_master"})
	loader.On("RecordFileStatus", mock.Anything, mock.Anything, mock.Anything, database.StatusFailed, 0).Return(nil)

	summary, err := newTestService(t, loader, sourceDir, quarantineDir).Execute(context.Background())
	require.NoError(t, err, "a file's load failure must not abort the run")

	assert.Equal(t, 1, summary.Failed)
	require.Len(t, summary.Outcomes, 1)
	assert.Error(t, summary.Outcomes[0].Err)
	loader.AssertExpectations(t)

	// A failed load leaves the same quarantine artifacts as a rejected
	// file: the moved file plus its sidecar, with the source gone.
	_, err = os.Stat(filepath.Join(quarantineDir, "batch1.xml"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(sourceDir, "batch1.xml"))
	assert.True(t, os.IsNotExist(err))
	meta, err := os.ReadFile(filepath.Join(quarantineDir, "batch1.xml.meta.json"))
	require.NoError(t, err)
	assert.Contains(t, string(meta), "load_error")
}

func TestExecuteDiscoveryFailureAbortsRun(t *testing.T) {
	loader := new(MockLoader)
	svc := newTestService(t, loader, filepath.Join(t.TempDir(), "does-not-exist"), t.TempDir())

	_, err := svc.Execute(context.Background())
	require.Error(t, err)
	var discErr *models.DiscoveryError
	assert.ErrorAs(t, err, &discErr)
	loader.AssertNotCalled(t, "GetCompletedFileHashes", mock.Anything)
}

func TestExecuteFullModeResetsOnceAndSkipsNothing(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	a := writeSourceFile(t, sourceDir, "a.xml", validCaseXML)
	b := writeSourceFile(t, sourceDir, "b.xml", strings.Replace(validCaseXML, "GB-TEST-0001", "GB-TEST-0002", 1))

	loader := new(MockLoader)
	loader.On("ResetTargets", mock.Anything, config.SchemaNormalized).Return(nil).Once()
	loader.On("LoadNormalized", mock.Anything, mock.Anything, database.ModeFull, a, mock.Anything).Return(1, nil)
	loader.On("LoadNormalized", mock.Anything, mock.Anything, database.ModeFull, b, mock.Anything).Return(1, nil)

	svc := newTestService(t, loader, sourceDir, quarantineDir)
	svc.cfg.LoadMode = database.ModeFull

	summary, err := svc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Completed)
	assert.Equal(t, 0, summary.Skipped)
	loader.AssertExpectations(t)
	loader.AssertNotCalled(t, "GetCompletedFileHashes", mock.Anything)
}

func TestExecuteAuditSchemaUsesAuditLoad(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	path := writeSourceFile(t, sourceDir, "batch1.xml", validCaseXML)

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{}, nil)
	loader.On("LoadAudit", mock.Anything, mock.Anything, database.ModeDelta, path, mock.Anything).Return(1, nil)

	svc := newTestService(t, loader, sourceDir, quarantineDir)
	svc.cfg.SchemaType = config.SchemaAudit

	summary, err := svc.Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Rows)
	loader.AssertExpectations(t)
	loader.AssertNotCalled(t, "LoadNormalized", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestExecuteIndependentFilesOneBadOneGood(t *testing.T) {
	sourceDir, quarantineDir := t.TempDir(), t.TempDir()
	good := writeSourceFile(t, sourceDir, "good.xml", validCaseXML)
	writeSourceFile(t, sourceDir, "bad.xml", "garbage")

	loader := new(MockLoader)
	loader.On("GetCompletedFileHashes", mock.Anything).Return(map[string]bool{}, nil)
	loader.On("LoadNormalized", mock.Anything, mock.Anything, database.ModeDelta, good, mock.Anything).Return(1, nil)
	loader.On("RecordFileStatus", mock.Anything, mock.Anything, mock.Anything, database.StatusQuarantined, 0).Return(nil)

	summary, err := newTestService(t, loader, sourceDir, quarantineDir).Execute(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Discovered)
	assert.Equal(t, 1, summary.Completed)
	assert.Equal(t, 1, summary.Quarantined)
	loader.AssertExpectations(t)
}
