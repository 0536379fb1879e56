package department

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	departmenterrors "go-orgtree/internal/department/errors"
	"go-orgtree/internal/employee"
	"go-orgtree/internal/events"
	"go-orgtree/internal/messaging/kafka"
	"go-orgtree/internal/shared/apperror"
	"go-orgtree/internal/shared/contextutil"
	"go-orgtree/internal/shared/treecache"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	nameMaxLength = 250

	// maxSubtreeDepth caps one GET to five levels of descendants; anything
	// outside [0, maxSubtreeDepth] is clamped, not rejected.
	maxSubtreeDepth = 5

	subtreeCacheTTL = 5 * time.Minute
)

//go:generate mockgen -source=department_service.go -destination=mock/department_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, req CreateDepartmentRequest) (DepartmentResponse, error)
	GetSubtree(ctx context.Context, id uint, opts GetSubtreeOptions) (DepartmentTreeResponse, error)
	Update(ctx context.Context, id uint, req UpdateDepartmentRequest) (DepartmentResponse, error)
	Delete(ctx context.Context, id uint, mode DeleteMode, reassignToID *uint) error
}

type service struct {
	db        *sql.DB
	repo      Repository
	employees employee.Repository
	outbox    kafka.OutboxRepository
	rdb       *redis.Client
	sf        *singleflight.Group
	logger    *zap.Logger
}

func NewService(
	db *sql.DB,
	repo Repository,
	employees employee.Repository,
	rdb *redis.Client,
	logger ...*zap.Logger,
) Service {
	return NewServiceWithOutbox(db, repo, employees, nil, rdb, logger...)
}

func NewServiceWithOutbox(
	db *sql.DB,
	repo Repository,
	employees employee.Repository,
	outboxRepo kafka.OutboxRepository,
	rdb *redis.Client,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("department.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("department.service")
	}
	return &service{
		db:        db,
		repo:      repo,
		employees: employees,
		outbox:    outboxRepo,
		rdb:       rdb,
		sf:        &singleflight.Group{},
		logger:    l,
	}
}

func (s *service) Create(ctx context.Context, req CreateDepartmentRequest) (DepartmentResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	s.logger.Debug("create department requested", zap.String("request_id", rid))

	name, err := normalizeName(req.Name)
	if err != nil {
		return DepartmentResponse{}, err
	}

	// Reject a dangling parent instead of silently creating an orphan root.
	if req.ParentID != nil {
		exists, err := s.repo.Exists(ctx, *req.ParentID)
		if err != nil {
			s.logger.Error("create department parent probe failed", zap.Error(err))
			return DepartmentResponse{}, err
		}
		if !exists {
			return DepartmentResponse{}, departmenterrors.ErrParentNotFound
		}
	}

	// A brand-new node can never close a loop; the check stays for symmetry
	// with Update so every parent-pointer write goes through the same guard.
	cycle, err := s.repo.HasCycle(ctx, nil, req.ParentID)
	if err != nil {
		return DepartmentResponse{}, err
	}
	if cycle {
		return DepartmentResponse{}, departmenterrors.ErrDepartmentCycle
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("create department begin tx failed", zap.String("request_id", rid), zap.Error(err))
		return DepartmentResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	dept := &Department{Name: name, ParentID: req.ParentID}
	if err := qtx.Create(ctx, dept); err != nil {
		s.logger.Error("create department persist failed", zap.Error(err))
		return DepartmentResponse{}, mapRepositoryError(err)
	}

	if s.outbox != nil {
		event := events.DepartmentCreatedEvent{
			EventType:    "department_created",
			RequestID:    rid,
			DepartmentID: dept.ID,
			ParentID:     dept.ParentID,
			OccurredAt:   time.Now().UTC(),
		}
		if err := s.enqueueEvent(ctx, tx, dept.ID, event.EventType, event); err != nil {
			return DepartmentResponse{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("create department commit failed", zap.String("request_id", rid), zap.Error(err))
		return DepartmentResponse{}, err
	}

	s.invalidateCache(ctx)

	s.logger.Info("create department success",
		zap.String("request_id", rid),
		zap.Uint("department_id", dept.ID),
	)

	return mapToResponse(*dept), nil
}

func (s *service) GetSubtree(ctx context.Context, id uint, opts GetSubtreeOptions) (DepartmentTreeResponse, error) {
	depth := opts.Depth
	if depth < 0 {
		depth = 0
	}
	if depth > maxSubtreeDepth {
		depth = maxSubtreeDepth
	}

	cacheKey := treecache.SubtreeKey(treecache.Version(ctx, s.rdb), id, depth, opts.IncludeEmployees)

	if s.rdb != nil {
		if cached, err := s.rdb.Get(ctx, cacheKey).Result(); err == nil {
			var resp DepartmentTreeResponse
			if json.Unmarshal([]byte(cached), &resp) == nil {
				return resp, nil
			}
		}
	}

	v, err, _ := s.sf.Do(cacheKey, func() (interface{}, error) {
		resp, err := s.buildSubtree(ctx, id, depth, opts.IncludeEmployees)
		if err != nil {
			return DepartmentTreeResponse{}, err
		}

		if s.rdb != nil {
			if jsonData, err := json.Marshal(resp); err == nil {
				s.rdb.Set(ctx, cacheKey, jsonData, subtreeCacheTTL)
			}
		}

		return resp, nil
	})
	if err != nil {
		return DepartmentTreeResponse{}, err
	}

	return v.(DepartmentTreeResponse), nil
}

// buildSubtree walks the tree breadth-first, one FindChildren call per
// frontier node, consuming one depth level per round. The root itself never
// appears in Children.
func (s *service) buildSubtree(ctx context.Context, id uint, depth int, includeEmployees bool) (DepartmentTreeResponse, error) {
	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return DepartmentTreeResponse{}, mapRepositoryError(err)
	}

	var collected []Department
	frontier := []uint{id}
	for level := 0; level < depth && len(frontier) > 0; level++ {
		var next []uint
		for _, nodeID := range frontier {
			children, err := s.repo.FindChildren(ctx, nodeID)
			if err != nil {
				return DepartmentTreeResponse{}, mapRepositoryError(err)
			}
			for _, child := range children {
				collected = append(collected, child)
				next = append(next, child.ID)
			}
		}
		frontier = next
	}

	resp := DepartmentTreeResponse{
		Department: mapToResponse(*dept),
		Children:   make([]DepartmentResponse, 0, len(collected)),
	}
	for _, child := range collected {
		resp.Children = append(resp.Children, mapToResponse(child))
	}

	if includeEmployees {
		deptIDs := make([]uint, 0, len(collected)+1)
		deptIDs = append(deptIDs, id)
		for _, child := range collected {
			deptIDs = append(deptIDs, child.ID)
		}

		var all []employee.Employee
		for _, deptID := range deptIDs {
			empls, err := s.employees.FindAllByDepartment(ctx, deptID)
			if err != nil {
				return DepartmentTreeResponse{}, err
			}
			all = append(all, empls...)
		}

		// created_at ascending, id as the stable tie-break
		sort.SliceStable(all, func(i, j int) bool {
			if !all[i].CreatedAt.Equal(all[j].CreatedAt) {
				return all[i].CreatedAt.Before(all[j].CreatedAt)
			}
			return all[i].ID < all[j].ID
		})

		list := make([]employee.EmployeeResponse, 0, len(all))
		for _, empl := range all {
			list = append(list, employee.ToResponse(empl))
		}
		resp.Employees = &list
	}

	return resp, nil
}

func (s *service) Update(ctx context.Context, id uint, req UpdateDepartmentRequest) (DepartmentResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	s.logger.Debug("update department requested",
		zap.String("request_id", rid),
		zap.Uint("department_id", id),
	)

	var name string
	if req.Name != nil {
		normalized, err := normalizeName(*req.Name)
		if err != nil {
			return DepartmentResponse{}, err
		}
		name = normalized
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("update department begin tx failed", zap.Error(err))
		return DepartmentResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	// Row lock: the cycle check below and the parent write must not be
	// interleaved with a concurrent move of the same department.
	dept, err := qtx.FindByIDForUpdate(ctx, id)
	if err != nil {
		return DepartmentResponse{}, mapRepositoryError(err)
	}

	updates := map[string]any{}

	if req.Name != nil && name != dept.Name {
		updates["name"] = name
	}

	if req.ParentID.Set && !equalUintPtr(dept.ParentID, req.ParentID.Value) {
		newParent := req.ParentID.Value
		if newParent != nil {
			// Lock the prospective parent too so it cannot be re-parented
			// under us between the cycle check and the write.
			if _, err := qtx.FindByIDForUpdate(ctx, *newParent); err != nil {
				if err == sql.ErrNoRows {
					return DepartmentResponse{}, departmenterrors.ErrParentNotFound
				}
				return DepartmentResponse{}, err
			}
		}

		cycle, err := qtx.HasCycle(ctx, &id, newParent)
		if err != nil {
			return DepartmentResponse{}, err
		}
		if cycle {
			s.logger.Warn("update department rejected: cycle",
				zap.Uint("department_id", id),
			)
			return DepartmentResponse{}, departmenterrors.ErrDepartmentCycle
		}

		updates["parent_id"] = newParent
	}

	if len(updates) == 0 {
		// Nothing changed; commit to release the lock.
		if err := tx.Commit(); err != nil {
			return DepartmentResponse{}, err
		}
		return mapToResponse(*dept), nil
	}

	if err := qtx.UpdateFields(ctx, id, updates); err != nil {
		s.logger.Error("update department persist failed", zap.Error(err))
		return DepartmentResponse{}, mapRepositoryError(err)
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("update department commit failed", zap.Error(err))
		return DepartmentResponse{}, err
	}

	s.invalidateCache(ctx)

	if v, ok := updates["name"]; ok {
		dept.Name = v.(string)
	}
	if v, ok := updates["parent_id"]; ok {
		dept.ParentID = v.(*uint)
	}

	s.logger.Info("update department success",
		zap.String("request_id", rid),
		zap.Uint("department_id", id),
	)

	return mapToResponse(*dept), nil
}

func (s *service) Delete(ctx context.Context, id uint, mode DeleteMode, reassignToID *uint) error {
	rid := contextutil.GetRequestID(ctx)
	s.logger.Debug("delete department requested",
		zap.String("request_id", rid),
		zap.Uint("department_id", id),
		zap.String("mode", string(mode)),
	)

	switch mode {
	case DeleteModeCascade:
		return s.deleteCascade(ctx, id, reassignToID, rid)
	case DeleteModeReassign:
		return s.deleteReassign(ctx, id, reassignToID, rid)
	default:
		return departmenterrors.ErrInvalidDeleteMode
	}
}

func (s *service) deleteCascade(ctx context.Context, id uint, reassignToID *uint, rid string) error {
	if reassignToID != nil {
		return departmenterrors.ErrReassignTargetNotAllowed
	}

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return departmenterrors.ErrDepartmentNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("delete department begin tx failed", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	ok, err := s.repo.WithTx(tx).DeleteWithCascade(ctx, id)
	if err != nil {
		s.logger.Error("cascade delete failed", zap.Error(err))
		return mapRepositoryError(err)
	}
	if !ok {
		return departmenterrors.ErrDepartmentNotFound
	}

	if s.outbox != nil {
		event := events.DepartmentDeletedEvent{
			EventType:    "department_deleted",
			RequestID:    rid,
			DepartmentID: id,
			Mode:         string(DeleteModeCascade),
			OccurredAt:   time.Now().UTC(),
		}
		if err := s.enqueueEvent(ctx, tx, id, event.EventType, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("delete department commit failed", zap.Error(err))
		return err
	}

	s.invalidateCache(ctx)

	s.logger.Info("cascade delete success",
		zap.String("request_id", rid),
		zap.Uint("department_id", id),
	)
	return nil
}

func (s *service) deleteReassign(ctx context.Context, id uint, reassignToID *uint, rid string) error {
	// Preconditions are accumulated, not failed fast, so the caller sees
	// every violation at once.
	var problems []string
	deptMissing := false

	if reassignToID == nil {
		problems = append(problems, departmenterrors.ErrReassignTargetRequired.Message)
	}

	dept, err := s.repo.FindByID(ctx, id)
	if err != nil {
		mapped := mapRepositoryError(err)
		if mapped != departmenterrors.ErrDepartmentNotFound {
			return mapped
		}
		deptMissing = true
		problems = append(problems, fmt.Sprintf("department %d does not exist", id))
	}

	if reassignToID != nil {
		if *reassignToID == id {
			problems = append(problems, "cannot reassign employees to the department being deleted")
		} else {
			exists, err := s.repo.Exists(ctx, *reassignToID)
			if err != nil {
				return err
			}
			if !exists {
				problems = append(problems, fmt.Sprintf("reassign target department %d does not exist", *reassignToID))
			}
		}
	}

	if len(problems) > 0 {
		if deptMissing && len(problems) == 1 {
			return departmenterrors.ErrDepartmentNotFound
		}
		return apperror.New(
			apperror.CodeInvalidInput,
			strings.Join(problems, "; "),
			departmenterrors.ErrReassignTargetRequired.HTTPStatus,
		)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("delete department begin tx failed", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	etx := s.employees.WithTx(tx)

	moved, err := etx.ReassignAll(ctx, id, *reassignToID)
	if err != nil {
		s.logger.Error("reassign employees failed", zap.Error(err))
		return err
	}

	// Children climb to the deleted department's own parent so the tree
	// stays connected instead of leaving orphaned roots behind.
	if err := qtx.ReparentChildren(ctx, id, dept.ParentID); err != nil {
		s.logger.Error("reparent children failed", zap.Error(err))
		return err
	}

	ok, err := qtx.DeleteWithoutCascade(ctx, id)
	if err != nil {
		s.logger.Error("delete department failed", zap.Error(err))
		return mapRepositoryError(err)
	}
	if !ok {
		return departmenterrors.ErrDepartmentNotFound
	}

	if s.outbox != nil {
		event := events.DepartmentDeletedEvent{
			EventType:    "department_deleted",
			RequestID:    rid,
			DepartmentID: id,
			Mode:         string(DeleteModeReassign),
			ReassignedTo: reassignToID,
			OccurredAt:   time.Now().UTC(),
		}
		if err := s.enqueueEvent(ctx, tx, id, event.EventType, event); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("delete department commit failed", zap.Error(err))
		return err
	}

	s.invalidateCache(ctx)

	s.logger.Info("reassign delete success",
		zap.String("request_id", rid),
		zap.Uint("department_id", id),
		zap.Uint("reassigned_to", *reassignToID),
		zap.Int64("employees_moved", moved),
	)
	return nil
}

func (s *service) enqueueEvent(ctx context.Context, tx *sql.Tx, departmentID uint, eventType string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("marshal event failed", zap.Error(err))
		return err
	}
	if err := s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
		ID:            uuid.NewString(),
		RequestID:     contextutil.GetRequestID(ctx),
		AggregateType: "department",
		AggregateID:   strconv.FormatUint(uint64(departmentID), 10),
		EventType:     eventType,
		Topic:         events.DepartmentLifecycleTopic,
		Payload:       payload,
		Status:        kafka.OutboxStatusPending,
	}); err != nil {
		s.logger.Error("outbox persist failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *service) invalidateCache(ctx context.Context) {
	if err := treecache.Invalidate(ctx, s.rdb); err != nil {
		s.logger.Error("invalidate subtree cache failed", zap.Error(err))
	}
}

func mapToResponse(dept Department) DepartmentResponse {
	return DepartmentResponse{
		ID:        dept.ID,
		Name:      dept.Name,
		ParentID:  dept.ParentID,
		CreatedAt: dept.CreatedAt,
	}
}

func normalizeName(raw string) (string, error) {
	value := strings.TrimSpace(raw)
	length := utf8.RuneCountInString(value)
	if length < 1 || length > nameMaxLength {
		return "", departmenterrors.ErrNameLength
	}
	return value, nil
}

func equalUintPtr(a, b *uint) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
