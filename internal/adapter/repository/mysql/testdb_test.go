package mysql

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"loan-proposal-service/internal/domain/proposal"
	"loan-proposal-service/internal/infrastructure/db"
	"loan-proposal-service/pkg/id"
)

// openTestDB creates an in-memory sqlite DB with the full schema. One
// connection only, since every sqlite :memory: connection is its own database.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent), TranslateError: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return gdb
}

func makeProposal(status proposal.Status, taxID string) *proposal.Proposal {
	return &proposal.Proposal{
		PublicID:        id.NewID32(),
		Status:          status,
		ClientName:      "Maria Silva",
		ClientTaxID:     taxID,
		RequestedAmount: decimal.NewFromInt(10000),
		TermMonths:      12,
		MonthlyRate:     decimal.RequireFromString("2.5"),
		OriginationFee:  decimal.RequireFromString("180.00"),
		StatusUpdatedAt: time.Now().UTC(),
	}
}
