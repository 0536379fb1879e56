package department_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"go-orgtree/internal/department"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func setupRepoTest(t *testing.T) (department.Repository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	assert.NoError(t, err)
	return department.NewRepository(nil, db), mock, db
}

func TestDepartmentRepo_Create(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	createdAt := time.Now()
	mock.ExpectQuery(`INSERT INTO departments`).
		WithArgs("Engineering", nil).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at"}).AddRow(1, createdAt))

	dept := &department.Department{Name: "Engineering"}
	err := repo.Create(context.Background(), dept)

	assert.NoError(t, err)
	assert.Equal(t, uint(1), dept.ID)
	assert.Equal(t, createdAt, dept.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepo_FindByIDForUpdate(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	t.Run("found", func(t *testing.T) {
		mock.ExpectQuery(`SELECT id, name, parent_id, created_at FROM departments WHERE id = \$1 FOR UPDATE`).
			WithArgs(uint(2)).
			WillReturnRows(sqlmock.NewRows([]string{"id", "name", "parent_id", "created_at"}).
				AddRow(2, "Backend", 1, time.Now()))

		dept, err := repo.FindByIDForUpdate(context.Background(), 2)

		assert.NoError(t, err)
		assert.Equal(t, "Backend", dept.Name)
		assert.Equal(t, uint(1), *dept.ParentID)
	})

	t.Run("missing row", func(t *testing.T) {
		mock.ExpectQuery(`FOR UPDATE`).
			WithArgs(uint(404)).
			WillReturnError(sql.ErrNoRows)

		_, err := repo.FindByIDForUpdate(context.Background(), 404)

		assert.ErrorIs(t, err, sql.ErrNoRows)
	})
}

func TestDepartmentRepo_DescendantIDs(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	mock.ExpectQuery(`WITH RECURSIVE subtree`).
		WithArgs(uint(1), 100).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3).AddRow(4))

	ids, err := repo.DescendantIDs(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, []uint{2, 3, 4}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepo_HasCycle(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("new department never cycles", func(t *testing.T) {
		cycle, err := repo.HasCycle(ctx, nil, uintPtr(1))

		assert.NoError(t, err)
		assert.False(t, cycle)
	})

	t.Run("moving to root never cycles", func(t *testing.T) {
		cycle, err := repo.HasCycle(ctx, uintPtr(1), nil)

		assert.NoError(t, err)
		assert.False(t, cycle)
	})

	t.Run("self parent cycles", func(t *testing.T) {
		cycle, err := repo.HasCycle(ctx, uintPtr(1), uintPtr(1))

		assert.NoError(t, err)
		assert.True(t, cycle)
	})

	t.Run("descendant parent cycles", func(t *testing.T) {
		mock.ExpectQuery(`WITH RECURSIVE subtree`).
			WithArgs(uint(1), 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3))

		cycle, err := repo.HasCycle(ctx, uintPtr(1), uintPtr(3))

		assert.NoError(t, err)
		assert.True(t, cycle)
	})

	t.Run("unrelated parent does not cycle", func(t *testing.T) {
		mock.ExpectQuery(`WITH RECURSIVE subtree`).
			WithArgs(uint(1), 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3))

		cycle, err := repo.HasCycle(ctx, uintPtr(1), uintPtr(9))

		assert.NoError(t, err)
		assert.False(t, cycle)
	})
}

func TestDepartmentRepo_UpdateFields(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	ctx := context.Background()

	t.Run("name and parent in column order", func(t *testing.T) {
		mock.ExpectExec(`UPDATE departments SET name = \$1, parent_id = \$2 WHERE id = \$3`).
			WithArgs("Platform", uintPtr(5), uint(1)).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.UpdateFields(ctx, 1, map[string]any{"name": "Platform", "parent_id": uintPtr(5)})

		assert.NoError(t, err)
	})

	t.Run("zero rows affected", func(t *testing.T) {
		mock.ExpectExec(`UPDATE departments SET name = \$1 WHERE id = \$2`).
			WithArgs("Ghost", uint(404)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateFields(ctx, 404, map[string]any{"name": "Ghost"})

		assert.ErrorIs(t, err, sql.ErrNoRows)
	})

	t.Run("empty update map is a no-op", func(t *testing.T) {
		err := repo.UpdateFields(ctx, 1, map[string]any{})

		assert.NoError(t, err)
	})
}

func TestDepartmentRepo_DeleteWithCascade(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	t.Run("removes subtree and its employees", func(t *testing.T) {
		mock.ExpectQuery(`WITH RECURSIVE subtree`).
			WithArgs(uint(1), 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2).AddRow(3))
		mock.ExpectExec(`DELETE FROM employees WHERE department_id IN \(\$1, \$2, \$3\)`).
			WithArgs(uint(1), uint(2), uint(3)).
			WillReturnResult(sqlmock.NewResult(0, 5))
		mock.ExpectExec(`DELETE FROM departments WHERE id IN \(\$1, \$2, \$3\)`).
			WithArgs(uint(1), uint(2), uint(3)).
			WillReturnResult(sqlmock.NewResult(0, 3))

		ok, err := repo.DeleteWithCascade(context.Background(), 1)

		assert.NoError(t, err)
		assert.True(t, ok)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing department", func(t *testing.T) {
		mock.ExpectQuery(`WITH RECURSIVE subtree`).
			WithArgs(uint(404), 100).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectExec(`DELETE FROM employees`).
			WithArgs(uint(404)).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(`DELETE FROM departments`).
			WithArgs(uint(404)).
			WillReturnResult(sqlmock.NewResult(0, 0))

		ok, err := repo.DeleteWithCascade(context.Background(), 404)

		assert.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDepartmentRepo_DeleteWithoutCascade(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE employees SET department_id = NULL WHERE department_id = \$1`).
		WithArgs(uint(2)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`DELETE FROM departments WHERE id = \$1`).
		WithArgs(uint(2)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := repo.DeleteWithoutCascade(context.Background(), 2)

	assert.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDepartmentRepo_ReparentChildren(t *testing.T) {
	repo, mock, db := setupRepoTest(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE departments SET parent_id = \$1 WHERE parent_id = \$2`).
		WithArgs(uintPtr(1), uint(2)).
		WillReturnResult(sqlmock.NewResult(0, 3))

	err := repo.ReparentChildren(context.Background(), 2, uintPtr(1))

	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
