package repositories

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"

	"github.com/remap-keys/remap-backend/internal/db/models"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { mockDB.Close() })
	return sqlx.NewDb(mockDB, "sqlmock"), mock
}

func definitionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "author_type", "author_uid", "organization_id", "name", "vendor_id",
		"product_id", "product_name", "status", "reject_reason", "json",
		"firmware_code_place", "qmk_repository_first_pull_request_url",
		"forked_repository_url", "forked_repository_evidence",
		"other_place_how_to_get", "other_place_source_code_evidence",
		"other_place_publisher_evidence", "contact_information",
		"created_at", "updated_at",
	})
}

func TestDefinitionRepository_GetByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDefinitionRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM keyboard_definitions WHERE id = \$1`).
		WithArgs("d1").
		WillReturnRows(definitionRows().AddRow(
			"d1", "individual", "u1", nil, "Lunakey", 0x5954, 1, "Lunakey Mini",
			"in_review", nil, "{}", nil, nil, nil, nil, nil, nil, nil, nil, now, now))

	def, err := repo.GetByID(context.Background(), "d1")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if def == nil || def.ID != "d1" || def.VendorID != 0x5954 || def.Status != models.DefinitionStatusInReview {
		t.Errorf("def = %+v", def)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestDefinitionRepository_GetByID_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDefinitionRepository(db)

	mock.ExpectQuery(`FROM keyboard_definitions WHERE id = \$1`).
		WithArgs("gone").
		WillReturnError(sql.ErrNoRows)

	def, err := repo.GetByID(context.Background(), "gone")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if def != nil {
		t.Errorf("def = %+v, want nil for not-found", def)
	}
}

func TestDefinitionRepository_ListByVendorProduct(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDefinitionRepository(db)

	now := time.Now()
	mock.ExpectQuery(`FROM keyboard_definitions WHERE vendor_id = \$1 AND product_id = \$2`).
		WithArgs(0x5954, 1).
		WillReturnRows(definitionRows().
			AddRow("d1", "individual", "u1", nil, "Lunakey", 0x5954, 1, "Lunakey Mini",
				"approved", nil, "{}", nil, nil, nil, nil, nil, nil, nil, nil, now, now).
			AddRow("d2", "individual", "u2", nil, "Lunakey", 0x5954, 1, "Lunakey Mini",
				"in_review", nil, "{}", nil, nil, nil, nil, nil, nil, nil, nil, now, now))

	defs, err := repo.ListByVendorProduct(context.Background(), 0x5954, 1)
	if err != nil {
		t.Fatalf("ListByVendorProduct: %v", err)
	}
	if len(defs) != 2 || defs[0].ID != "d1" || defs[1].ID != "d2" {
		t.Errorf("defs = %+v", defs)
	}
}

func TestDefinitionRepository_CountsByStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDefinitionRepository(db)

	mock.ExpectQuery(`SELECT status, COUNT\(\*\) FROM keyboard_definitions GROUP BY status`).
		WillReturnRows(sqlmock.NewRows([]string{"status", "count"}).
			AddRow("draft", 3).
			AddRow("approved", 7))

	counts, err := repo.CountsByStatus(context.Background())
	if err != nil {
		t.Fatalf("CountsByStatus: %v", err)
	}
	if counts["draft"] != 3 || counts["approved"] != 7 || len(counts) != 2 {
		t.Errorf("counts = %v", counts)
	}
}

func TestDefinitionRepository_UpdateStatus(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDefinitionRepository(db)

	reason := "duplicate"
	mock.ExpectExec(`UPDATE keyboard_definitions`).
		WithArgs("d1", "rejected", reason).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "d1", "rejected", &reason); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
}

func TestDefinitionRepository_UpdateStatus_Missing(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewDefinitionRepository(db)

	mock.ExpectExec(`UPDATE keyboard_definitions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateStatus(context.Background(), "gone", "approved", nil); err == nil {
		t.Error("UpdateStatus on a missing row must fail")
	}
}
