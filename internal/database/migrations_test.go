package database

import (
	"path/filepath"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
)

func TestApplyMigrationsBackfillsRecordStatus(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&mirror.Record{}, &mirror.Diagnostic{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	pushed := mirror.Record{PageID: "page-pushed", MessageID: 42, Status: ""}
	pending := mirror.Record{PageID: "page-pending", Status: ""}
	if err := database.Create(&pushed).Error; err != nil {
		testContext.Fatalf("failed to insert record: %v", err)
	}
	if err := database.Create(&pending).Error; err != nil {
		testContext.Fatalf("failed to insert record: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var storedPushed mirror.Record
	if err := database.Where("page_id = ?", "page-pushed").Take(&storedPushed).Error; err != nil {
		testContext.Fatalf("failed to reload record: %v", err)
	}
	if storedPushed.Status != mirror.StatusSynced {
		testContext.Fatalf("expected pushed record to backfill as synced, got %q", storedPushed.Status)
	}
	var storedPending mirror.Record
	if err := database.Where("page_id = ?", "page-pending").Take(&storedPending).Error; err != nil {
		testContext.Fatalf("failed to reload record: %v", err)
	}
	if storedPending.Status != mirror.StatusSkipped {
		testContext.Fatalf("expected pending record to backfill as skipped, got %q", storedPending.Status)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillRecordStatus).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestOpenSQLiteRequiresPath(testContext *testing.T) {
	if _, err := OpenSQLite("", zap.NewNop()); err == nil {
		testContext.Fatalf("expected error for empty path")
	}
}

func TestOpenSQLiteIsIdempotent(testContext *testing.T) {
	databasePath := filepath.Join(testContext.TempDir(), "pagepin.db")
	first, err := OpenSQLite(databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("first open failed: %v", err)
	}
	sqlDB, err := first.DB()
	if err != nil {
		testContext.Fatalf("failed to unwrap db: %v", err)
	}
	if err := sqlDB.Close(); err != nil {
		testContext.Fatalf("failed to close db: %v", err)
	}
	if _, err := OpenSQLite(databasePath, zap.NewNop()); err != nil {
		testContext.Fatalf("second open failed: %v", err)
	}
}
