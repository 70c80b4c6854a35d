package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/remap-keys/remap-backend/internal/db/models"
)

func TestBuildTaskRepository_HasUnfinished(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBuildTaskRepository(db)

	mock.ExpectQuery(`SELECT EXISTS`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.HasUnfinished(context.Background(), "u1")
	if err != nil {
		t.Fatalf("HasUnfinished: %v", err)
	}
	if !exists {
		t.Error("exists = false, want true")
	}
}

func TestBuildTaskRepository_CreateExclusive(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBuildTaskRepository(db)

	projectID := "proj-1"
	now := time.Now()
	mock.ExpectQuery(`INSERT INTO build_tasks`).
		WithArgs("u1", nil, projectID).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "status", "firmware_file_path", "stdout", "stderr", "created_at", "updated_at",
		}).AddRow("task-1", "waiting", "", "", "", now, now))

	task := &models.BuildTask{UID: "u1", ProjectID: &projectID}
	if err := repo.CreateExclusive(context.Background(), task); err != nil {
		t.Fatalf("CreateExclusive: %v", err)
	}
	if task.ID != "task-1" || task.Status != models.BuildTaskStatusWaiting {
		t.Errorf("task = %+v", task)
	}
}

func TestBuildTaskRepository_CreateExclusive_UniqueViolation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBuildTaskRepository(db)

	mock.ExpectQuery(`INSERT INTO build_tasks`).
		WillReturnError(&pq.Error{Code: "23505"})

	task := &models.BuildTask{UID: "u1"}
	err := repo.CreateExclusive(context.Background(), task)
	if !errors.Is(err, ErrUnfinishedTaskExists) {
		t.Errorf("err = %v, want ErrUnfinishedTaskExists", err)
	}
}
