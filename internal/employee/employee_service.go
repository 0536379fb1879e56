package employee

import (
	"context"
	"database/sql"
	"encoding/json"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	employeeerrors "go-orgtree/internal/employee/errors"
	"go-orgtree/internal/events"
	"go-orgtree/internal/messaging/kafka"
	"go-orgtree/internal/shared/apperror"
	"go-orgtree/internal/shared/contextutil"
	"go-orgtree/internal/shared/treecache"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const nameMaxLength = 250

//go:generate mockgen -source=employee_service.go -destination=mock/employee_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, departmentID uint, req CreateEmployeeRequest) (EmployeeResponse, error)
	GetByID(ctx context.Context, id uint) (EmployeeResponse, error)
	Delete(ctx context.Context, id uint) error
}

type service struct {
	db     *sql.DB
	repo   Repository
	outbox kafka.OutboxRepository
	rdb    *redis.Client
	logger *zap.Logger
}

func NewService(db *sql.DB, repo Repository, rdb *redis.Client, logger ...*zap.Logger) Service {
	return NewServiceWithOutbox(db, repo, nil, rdb, logger...)
}

func NewServiceWithOutbox(
	db *sql.DB,
	repo Repository,
	outboxRepo kafka.OutboxRepository,
	rdb *redis.Client,
	logger ...*zap.Logger,
) Service {
	l := zap.L().Named("employee.service")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("employee.service")
	}
	return &service{
		db:     db,
		repo:   repo,
		outbox: outboxRepo,
		rdb:    rdb,
		logger: l,
	}
}

func (s *service) Create(
	ctx context.Context,
	departmentID uint,
	req CreateEmployeeRequest,
) (EmployeeResponse, error) {
	rid := contextutil.GetRequestID(ctx)
	s.logger.Debug("create employee requested",
		zap.String("request_id", rid),
		zap.Uint("department_id", departmentID),
	)

	fullName, err := normalizeRequired(req.FullName, employeeerrors.ErrNameLength)
	if err != nil {
		return EmployeeResponse{}, err
	}
	position, err := normalizeRequired(req.Position, employeeerrors.ErrPositionLength)
	if err != nil {
		return EmployeeResponse{}, err
	}

	var hiredAt *time.Time
	if req.HiredAt != "" {
		parsed, err := time.Parse("2006-01-02", req.HiredAt)
		if err != nil {
			s.logger.Warn("create employee invalid hired_at",
				zap.String("hired_at", req.HiredAt),
				zap.Error(err),
			)
			return EmployeeResponse{}, employeeerrors.ErrInvalidHiredAt
		}
		hiredAt = &parsed
	}

	// Referential validation is the service's job; the store stays dumb.
	exists, err := s.repo.DepartmentExists(ctx, departmentID)
	if err != nil {
		s.logger.Error("create employee department probe failed", zap.Error(err))
		return EmployeeResponse{}, err
	}
	if !exists {
		return EmployeeResponse{}, employeeerrors.ErrDepartmentNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("create employee begin tx failed", zap.String("request_id", rid), zap.Error(err))
		return EmployeeResponse{}, err
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)

	empl := &Employee{
		DepartmentID: &departmentID,
		FullName:     fullName,
		Position:     position,
		HiredAt:      hiredAt,
	}

	if err := qtx.Create(ctx, empl); err != nil {
		s.logger.Error("create employee persist failed", zap.Error(err))
		return EmployeeResponse{}, mapRepositoryError(err)
	}

	if s.outbox != nil {
		event := events.EmployeeCreatedEvent{
			EventType:    "employee_created",
			RequestID:    rid,
			EmployeeID:   empl.ID,
			DepartmentID: departmentID,
			OccurredAt:   time.Now().UTC(),
		}
		payload, err := json.Marshal(event)
		if err != nil {
			s.logger.Error("marshal event failed", zap.String("request_id", rid), zap.Error(err))
			return EmployeeResponse{}, err
		}
		if err := s.outbox.WithTx(tx).Create(ctx, kafka.OutboxEvent{
			ID:            uuid.NewString(),
			RequestID:     rid,
			AggregateType: "employee",
			AggregateID:   uintString(empl.ID),
			EventType:     event.EventType,
			Topic:         events.EmployeeLifecycleTopic,
			Payload:       payload,
			Status:        kafka.OutboxStatusPending,
		}); err != nil {
			s.logger.Error("create employee outbox persist failed", zap.Error(err))
			return EmployeeResponse{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("create employee commit failed", zap.String("request_id", rid), zap.Error(err))
		return EmployeeResponse{}, err
	}

	if err := treecache.Invalidate(ctx, s.rdb); err != nil {
		s.logger.Error("invalidate subtree cache failed", zap.Error(err))
	}

	s.logger.Info("create employee success",
		zap.String("request_id", rid),
		zap.Uint("employee_id", empl.ID),
	)

	return ToResponse(*empl), nil
}

func (s *service) GetByID(ctx context.Context, id uint) (EmployeeResponse, error) {
	empl, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return EmployeeResponse{}, mapRepositoryError(err)
	}
	return ToResponse(*empl), nil
}

func (s *service) Delete(ctx context.Context, id uint) error {
	s.logger.Debug("delete employee requested", zap.Uint("employee_id", id))

	exists, err := s.repo.Exists(ctx, id)
	if err != nil {
		s.logger.Error("delete employee probe failed", zap.Error(err))
		return err
	}
	if !exists {
		return employeeerrors.ErrEmployeeNotFound
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		s.logger.Error("delete employee begin tx failed", zap.Error(err))
		return err
	}
	defer tx.Rollback()

	ok, err := s.repo.WithTx(tx).Delete(ctx, id)
	if err != nil {
		s.logger.Error("delete employee failed", zap.Error(err))
		return mapRepositoryError(err)
	}
	if !ok {
		return employeeerrors.ErrEmployeeNotFound
	}

	if err := tx.Commit(); err != nil {
		s.logger.Error("delete employee commit failed", zap.Error(err))
		return err
	}

	if err := treecache.Invalidate(ctx, s.rdb); err != nil {
		s.logger.Error("invalidate subtree cache failed", zap.Error(err))
	}

	s.logger.Info("delete employee success", zap.Uint("employee_id", id))
	return nil
}

func normalizeRequired(raw string, lengthErr *apperror.AppError) (string, error) {
	value := strings.TrimSpace(raw)
	length := utf8.RuneCountInString(value)
	if length < 1 || length > nameMaxLength {
		return "", lengthErr
	}
	return value, nil
}

func uintString(v uint) string {
	return strconv.FormatUint(uint64(v), 10)
}
