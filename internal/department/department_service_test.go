package department_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go-orgtree/internal/department"
	departmenterrors "go-orgtree/internal/department/errors"
	"go-orgtree/internal/employee"
	"go-orgtree/internal/shared/apperror"

	departmentMock "go-orgtree/internal/department/mock"
	employeeMock "go-orgtree/internal/employee/mock"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"
)

type serviceDeps struct {
	db        *sql.DB
	sqlMock   sqlmock.Sqlmock
	service   department.Service
	repo      *departmentMock.MockRepository
	employees *employeeMock.MockRepository
	redismock redismock.ClientMock
}

func setupServiceTest(t *testing.T) *serviceDeps {
	ctrl := gomock.NewController(t)

	db, sqlMock, _ := sqlmock.New()
	dbRedis, redisMock := redismock.NewClientMock()
	repo := departmentMock.NewMockRepository(ctrl)
	employees := employeeMock.NewMockRepository(ctrl)

	svc := department.NewService(db, repo, employees, dbRedis)

	return &serviceDeps{
		db:        db,
		sqlMock:   sqlMock,
		service:   svc,
		repo:      repo,
		employees: employees,
		redismock: redisMock,
	}
}

func expectTx(t *testing.T, mock sqlmock.Sqlmock, commit bool) {
	t.Helper()
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func uintPtr(v uint) *uint { return &v }

func TestDepartmentService_Create(t *testing.T) {
	deps := setupServiceTest(t)
	defer deps.db.Close()

	ctx := context.Background()

	t.Run("success without parent", func(t *testing.T) {
		req := department.CreateDepartmentRequest{Name: "  Engineering  "}

		deps.repo.EXPECT().
			HasCycle(ctx, nil, nil).
			Return(false, nil)

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().
			WithTx(gomock.Any()).
			Return(deps.repo)

		deps.repo.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, d *department.Department) error {
				assert.Equal(t, "Engineering", d.Name)
				assert.Nil(t, d.ParentID)
				d.ID = 1
				d.CreatedAt = time.Now()
				return nil
			})

		resp, err := deps.service.Create(ctx, req)

		assert.NoError(t, err)
		assert.Equal(t, uint(1), resp.ID)
		assert.Equal(t, "Engineering", resp.Name)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("success under existing parent", func(t *testing.T) {
		req := department.CreateDepartmentRequest{Name: "Backend", ParentID: uintPtr(1)}

		deps.repo.EXPECT().Exists(ctx, uint(1)).Return(true, nil)
		deps.repo.EXPECT().HasCycle(ctx, nil, req.ParentID).Return(false, nil)

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			Create(ctx, gomock.Any()).
			DoAndReturn(func(ctx context.Context, d *department.Department) error {
				assert.Equal(t, uint(1), *d.ParentID)
				d.ID = 2
				return nil
			})

		resp, err := deps.service.Create(ctx, req)

		assert.NoError(t, err)
		assert.Equal(t, uint(2), resp.ID)
	})

	t.Run("parent does not exist", func(t *testing.T) {
		req := department.CreateDepartmentRequest{Name: "Orphan", ParentID: uintPtr(99)}

		deps.repo.EXPECT().Exists(ctx, uint(99)).Return(false, nil)

		_, err := deps.service.Create(ctx, req)

		assert.ErrorIs(t, err, departmenterrors.ErrParentNotFound)
	})

	t.Run("blank name rejected", func(t *testing.T) {
		_, err := deps.service.Create(ctx, department.CreateDepartmentRequest{Name: "   "})

		assert.ErrorIs(t, err, departmenterrors.ErrNameLength)
	})

	t.Run("name over limit rejected", func(t *testing.T) {
		req := department.CreateDepartmentRequest{Name: strings.Repeat("x", 251)}

		_, err := deps.service.Create(ctx, req)

		assert.ErrorIs(t, err, departmenterrors.ErrNameLength)
	})

	t.Run("repo error rolls back", func(t *testing.T) {
		req := department.CreateDepartmentRequest{Name: "Sales"}

		deps.repo.EXPECT().HasCycle(ctx, nil, nil).Return(false, nil)

		expectTx(t, deps.sqlMock, false)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			Create(ctx, gomock.Any()).
			Return(errors.New("db error"))

		_, err := deps.service.Create(ctx, req)

		assert.Error(t, err)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})
}

func TestDepartmentService_GetSubtree(t *testing.T) {
	ctx := context.Background()

	t.Run("cache hit skips repository", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		cached := department.DepartmentTreeResponse{
			Department: department.DepartmentResponse{ID: 1, Name: "Engineering"},
			Children:   []department.DepartmentResponse{},
		}
		jsonResp, _ := json.Marshal(cached)

		deps.redismock.ExpectGet("departments:subtree:ver").SetVal("3")
		deps.redismock.
			ExpectGet(fmt.Sprintf("departments:subtree:v3:%d:%d:%t", 1, 0, false)).
			SetVal(string(jsonResp))

		resp, err := deps.service.GetSubtree(ctx, 1, department.GetSubtreeOptions{})

		assert.NoError(t, err)
		assert.Equal(t, "Engineering", resp.Department.Name)
		deps.repo.EXPECT().FindByID(gomock.Any(), gomock.Any()).Times(0)
	})

	t.Run("depth zero returns no children", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)

		resp, err := deps.service.GetSubtree(ctx, 1, department.GetSubtreeOptions{Depth: 0})

		assert.NoError(t, err)
		assert.Equal(t, uint(1), resp.Department.ID)
		assert.Empty(t, resp.Children)
		assert.Nil(t, resp.Employees)
	})

	t.Run("depth one collects direct children only", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)
		deps.repo.EXPECT().
			FindChildren(ctx, uint(1)).
			Return([]department.Department{
				{ID: 2, Name: "Backend", ParentID: uintPtr(1)},
				{ID: 3, Name: "Frontend", ParentID: uintPtr(1)},
			}, nil)

		resp, err := deps.service.GetSubtree(ctx, 1, department.GetSubtreeOptions{Depth: 1})

		assert.NoError(t, err)
		assert.Len(t, resp.Children, 2)
		assert.Equal(t, uint(2), resp.Children[0].ID)
		assert.Equal(t, uint(3), resp.Children[1].ID)
	})

	t.Run("depth is clamped to five levels", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		// Chain 1 -> 2 -> 3 -> 4 -> 5 -> 6 -> 7; only five levels below the
		// root may be visited regardless of the requested depth.
		deps.repo.EXPECT().
			FindByID(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "L0"}, nil)
		for i := uint(1); i <= 5; i++ {
			child := department.Department{ID: i + 1, Name: fmt.Sprintf("L%d", i), ParentID: uintPtr(i)}
			deps.repo.EXPECT().
				FindChildren(ctx, i).
				Return([]department.Department{child}, nil)
		}

		resp, err := deps.service.GetSubtree(ctx, 1, department.GetSubtreeOptions{Depth: 99})

		assert.NoError(t, err)
		assert.Len(t, resp.Children, 5)
		assert.Equal(t, uint(6), resp.Children[4].ID)
	})

	t.Run("negative depth behaves like zero", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)

		resp, err := deps.service.GetSubtree(ctx, 1, department.GetSubtreeOptions{Depth: -3})

		assert.NoError(t, err)
		assert.Empty(t, resp.Children)
	})

	t.Run("employees sorted by created_at across departments", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		earlier := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		later := earlier.Add(48 * time.Hour)

		deps.repo.EXPECT().
			FindByID(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)
		deps.repo.EXPECT().
			FindChildren(ctx, uint(1)).
			Return([]department.Department{{ID: 2, Name: "Backend", ParentID: uintPtr(1)}}, nil)
		deps.employees.EXPECT().
			FindAllByDepartment(ctx, uint(1)).
			Return([]employee.Employee{
				{ID: 10, FullName: "Root Later", DepartmentID: uintPtr(1), CreatedAt: later},
			}, nil)
		deps.employees.EXPECT().
			FindAllByDepartment(ctx, uint(2)).
			Return([]employee.Employee{
				{ID: 20, FullName: "Child Earlier", DepartmentID: uintPtr(2), CreatedAt: earlier},
			}, nil)

		resp, err := deps.service.GetSubtree(ctx, 1, department.GetSubtreeOptions{
			Depth:            1,
			IncludeEmployees: true,
		})

		assert.NoError(t, err)
		if assert.NotNil(t, resp.Employees) {
			assert.Len(t, *resp.Employees, 2)
			assert.Equal(t, "Child Earlier", (*resp.Employees)[0].FullName)
			assert.Equal(t, "Root Later", (*resp.Employees)[1].FullName)
		}
	})

	t.Run("department not found", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(404)).
			Return(nil, sql.ErrNoRows)

		_, err := deps.service.GetSubtree(ctx, 404, department.GetSubtreeOptions{})

		assert.ErrorIs(t, err, departmenterrors.ErrDepartmentNotFound)
	})
}

func TestDepartmentService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("rename", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)
		deps.repo.EXPECT().
			UpdateFields(ctx, uint(1), map[string]any{"name": "Platform"}).
			Return(nil)

		name := "Platform"
		resp, err := deps.service.Update(ctx, 1, department.UpdateDepartmentRequest{Name: &name})

		assert.NoError(t, err)
		assert.Equal(t, "Platform", resp.Name)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("move under new parent", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(3)).
			Return(&department.Department{ID: 3, Name: "Frontend", ParentID: uintPtr(1)}, nil)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend", ParentID: uintPtr(1)}, nil)
		deps.repo.EXPECT().
			HasCycle(ctx, uintPtr(3), uintPtr(2)).
			Return(false, nil)
		deps.repo.EXPECT().
			UpdateFields(ctx, uint(3), gomock.Any()).
			Return(nil)

		resp, err := deps.service.Update(ctx, 3, department.UpdateDepartmentRequest{
			ParentID: department.OptionalParent{Set: true, Value: uintPtr(2)},
		})

		assert.NoError(t, err)
		assert.Equal(t, uint(2), *resp.ParentID)
	})

	t.Run("move that would close a cycle is rejected", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, false)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend", ParentID: uintPtr(1)}, nil)
		deps.repo.EXPECT().
			HasCycle(ctx, uintPtr(1), uintPtr(2)).
			Return(true, nil)

		_, err := deps.service.Update(ctx, 1, department.UpdateDepartmentRequest{
			ParentID: department.OptionalParent{Set: true, Value: uintPtr(2)},
		})

		assert.ErrorIs(t, err, departmenterrors.ErrDepartmentCycle)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("explicit null parent moves to root", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend", ParentID: uintPtr(1)}, nil)
		deps.repo.EXPECT().
			HasCycle(ctx, uintPtr(2), nil).
			Return(false, nil)
		deps.repo.EXPECT().
			UpdateFields(ctx, uint(2), gomock.Any()).
			Return(nil)

		resp, err := deps.service.Update(ctx, 2, department.UpdateDepartmentRequest{
			ParentID: department.OptionalParent{Set: true, Value: nil},
		})

		assert.NoError(t, err)
		assert.Nil(t, resp.ParentID)
	})

	t.Run("no-op commits without writes", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering", ParentID: uintPtr(5)}, nil)

		name := "Engineering"
		resp, err := deps.service.Update(ctx, 1, department.UpdateDepartmentRequest{
			Name:     &name,
			ParentID: department.OptionalParent{Set: true, Value: uintPtr(5)},
		})

		assert.NoError(t, err)
		assert.Equal(t, "Engineering", resp.Name)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("department not found", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, false)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(404)).
			Return(nil, sql.ErrNoRows)

		name := "Ghost"
		_, err := deps.service.Update(ctx, 404, department.UpdateDepartmentRequest{Name: &name})

		assert.ErrorIs(t, err, departmenterrors.ErrDepartmentNotFound)
	})

	t.Run("new parent not found", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		expectTx(t, deps.sqlMock, false)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(1)).
			Return(&department.Department{ID: 1, Name: "Engineering"}, nil)
		deps.repo.EXPECT().
			FindByIDForUpdate(ctx, uint(99)).
			Return(nil, sql.ErrNoRows)

		_, err := deps.service.Update(ctx, 1, department.UpdateDepartmentRequest{
			ParentID: department.OptionalParent{Set: true, Value: uintPtr(99)},
		})

		assert.ErrorIs(t, err, departmenterrors.ErrParentNotFound)
	})
}

func TestDepartmentService_DeleteCascade(t *testing.T) {
	ctx := context.Background()

	t.Run("success", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().Exists(ctx, uint(1)).Return(true, nil)

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.repo.EXPECT().DeleteWithCascade(ctx, uint(1)).Return(true, nil)

		err := deps.service.Delete(ctx, 1, department.DeleteModeCascade, nil)

		assert.NoError(t, err)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("department not found", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().Exists(ctx, uint(404)).Return(false, nil)

		err := deps.service.Delete(ctx, 404, department.DeleteModeCascade, nil)

		assert.ErrorIs(t, err, departmenterrors.ErrDepartmentNotFound)
	})

	t.Run("reassign target not allowed", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		err := deps.service.Delete(ctx, 1, department.DeleteModeCascade, uintPtr(2))

		assert.ErrorIs(t, err, departmenterrors.ErrReassignTargetNotAllowed)
	})

	t.Run("invalid mode", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		err := deps.service.Delete(ctx, 1, department.DeleteMode("purge"), nil)

		assert.ErrorIs(t, err, departmenterrors.ErrInvalidDeleteMode)
	})
}

func TestDepartmentService_DeleteReassign(t *testing.T) {
	ctx := context.Background()

	t.Run("success moves employees and reparents children", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend", ParentID: uintPtr(1)}, nil)
		deps.repo.EXPECT().Exists(ctx, uint(3)).Return(true, nil)

		expectTx(t, deps.sqlMock, true)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.employees.EXPECT().WithTx(gomock.Any()).Return(deps.employees)
		deps.employees.EXPECT().
			ReassignAll(ctx, uint(2), uint(3)).
			Return(int64(4), nil)
		deps.repo.EXPECT().
			ReparentChildren(ctx, uint(2), uintPtr(1)).
			Return(nil)
		deps.repo.EXPECT().DeleteWithoutCascade(ctx, uint(2)).Return(true, nil)

		err := deps.service.Delete(ctx, 2, department.DeleteModeReassign, uintPtr(3))

		assert.NoError(t, err)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})

	t.Run("missing target", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend"}, nil)

		err := deps.service.Delete(ctx, 2, department.DeleteModeReassign, nil)

		var appErr *apperror.AppError
		if assert.ErrorAs(t, err, &appErr) {
			assert.Equal(t, apperror.CodeInvalidInput, appErr.Code)
		}
	})

	t.Run("only the department missing yields not found", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(404)).
			Return(nil, sql.ErrNoRows)
		deps.repo.EXPECT().Exists(ctx, uint(3)).Return(true, nil)

		err := deps.service.Delete(ctx, 404, department.DeleteModeReassign, uintPtr(3))

		assert.ErrorIs(t, err, departmenterrors.ErrDepartmentNotFound)
	})

	t.Run("all violations reported together", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(404)).
			Return(nil, sql.ErrNoRows)
		deps.repo.EXPECT().Exists(ctx, uint(99)).Return(false, nil)

		err := deps.service.Delete(ctx, 404, department.DeleteModeReassign, uintPtr(99))

		var appErr *apperror.AppError
		if assert.ErrorAs(t, err, &appErr) {
			assert.Contains(t, appErr.Message, "department 404 does not exist")
			assert.Contains(t, appErr.Message, "reassign target department 99 does not exist")
		}
	})

	t.Run("target equals the department being deleted", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend"}, nil)

		err := deps.service.Delete(ctx, 2, department.DeleteModeReassign, uintPtr(2))

		var appErr *apperror.AppError
		if assert.ErrorAs(t, err, &appErr) {
			assert.Contains(t, appErr.Message, "department being deleted")
		}
	})

	t.Run("reassign failure rolls back", func(t *testing.T) {
		deps := setupServiceTest(t)
		defer deps.db.Close()

		deps.repo.EXPECT().
			FindByID(ctx, uint(2)).
			Return(&department.Department{ID: 2, Name: "Backend", ParentID: uintPtr(1)}, nil)
		deps.repo.EXPECT().Exists(ctx, uint(3)).Return(true, nil)

		expectTx(t, deps.sqlMock, false)

		deps.repo.EXPECT().WithTx(gomock.Any()).Return(deps.repo)
		deps.employees.EXPECT().WithTx(gomock.Any()).Return(deps.employees)
		deps.employees.EXPECT().
			ReassignAll(ctx, uint(2), uint(3)).
			Return(int64(0), errors.New("db error"))

		err := deps.service.Delete(ctx, 2, department.DeleteModeReassign, uintPtr(3))

		assert.Error(t, err)
		assert.NoError(t, deps.sqlMock.ExpectationsWereMet())
	})
}
