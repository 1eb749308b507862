package affiliates

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase   = errors.New("database handle is required")
	errMissingIDProvider = errors.New("id provider is required")
	noOpLogger           = zap.NewNop()
)

const (
	opServiceNew  = "affiliates.service.new"
	opList        = "affiliates.list"
	opGet         = "affiliates.get"
	opCreate      = "affiliates.create"
	opApprove     = "affiliates.approve"
	opSuspend     = "affiliates.suspend"
	opPatchStatus = "affiliates.patch_status"
	opDelete      = "affiliates.delete"
	opSummary     = "affiliates.summary"
	opSeed        = "affiliates.seed"

	reasonMissingDatabase = "missing_database"
	reasonInvalidID       = "invalid_id"
	reasonInvalidRequest  = "invalid_request"
	reasonNotFound        = "not_found"
	reasonDuplicateEmail  = "duplicate_email"
	reasonQueryFailed     = "query_failed"
	reasonSaveFailed      = "save_failed"
	reasonIDFailed        = "id_generation_failed"

	queryID        = "id = ?"
	queryEmail     = "email = ?"
	orderJoinDesc  = "join_date DESC, id ASC"
	summarySelectQ = "COUNT(*) AS total, " +
		"COALESCE(SUM(CASE WHEN status = ? THEN 1 ELSE 0 END), 0) AS active, " +
		"COALESCE(SUM(revenue), 0) AS revenue, " +
		"COALESCE(SUM(clicks), 0) AS clicks, " +
		"COALESCE(AVG(conversion_rate), 0) AS average_rate"
)

// ServiceConfig describes the dependencies required by the affiliate store.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	IDProvider IDProvider
	Logger     *zap.Logger
}

// Service owns the persisted affiliate list and is the source of truth behind the REST API.
type Service struct {
	db         *gorm.DB
	clock      func() time.Time
	idProvider IDProvider
	logger     *zap.Logger
}

// NewService validates the configuration and constructs the store.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, reasonMissingDatabase, errMissingDatabase)
	}
	if cfg.IDProvider == nil {
		return nil, newServiceError(opServiceNew, "missing_id_provider", errMissingIDProvider)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:         cfg.Database,
		clock:      clock,
		idProvider: cfg.IDProvider,
		logger:     logger,
	}, nil
}

// List returns every affiliate, newest first.
func (s *Service) List(ctx context.Context) ([]Record, error) {
	if s.db == nil {
		return nil, s.fail(opList, reasonMissingDatabase, errMissingDatabase)
	}
	records := make([]Record, 0)
	if err := s.db.WithContext(ctx).Order(orderJoinDesc).Find(&records).Error; err != nil {
		return nil, s.fail(opList, reasonQueryFailed, err)
	}
	return records, nil
}

// Get loads a single affiliate.
func (s *Service) Get(ctx context.Context, id AffiliateID) (Record, error) {
	if s.db == nil {
		return Record{}, s.fail(opGet, reasonMissingDatabase, errMissingDatabase)
	}
	var record Record
	err := s.db.WithContext(ctx).Where(queryID, id.String()).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Record{}, newServiceError(opGet, reasonNotFound, ErrAffiliateNotFound)
	}
	if err != nil {
		return Record{}, s.fail(opGet, reasonQueryFailed, err, zap.String("affiliate_id", id.String()))
	}
	return record, nil
}

// Create validates and persists a new affiliate. The join date is the current time.
func (s *Service) Create(ctx context.Context, request CreateRequest) (Record, error) {
	if s.db == nil {
		return Record{}, s.fail(opCreate, reasonMissingDatabase, errMissingDatabase)
	}
	if err := request.Validate(); err != nil {
		return Record{}, newServiceError(opCreate, reasonInvalidRequest, err)
	}

	status, _ := ParseStatus(string(request.Status))
	email := strings.ToLower(strings.TrimSpace(request.Email))

	var created Record
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Record{}).Where(queryEmail, email).Count(&existing).Error; err != nil {
			return s.fail(opCreate, reasonQueryFailed, err)
		}
		if existing > 0 {
			return newServiceError(opCreate, reasonDuplicateEmail, ErrDuplicateEmail)
		}

		id, err := s.idProvider.NewID()
		if err != nil {
			return s.fail(opCreate, reasonIDFailed, err)
		}

		now := s.clock().UTC()
		created = Record{
			ID:             id,
			Name:           strings.TrimSpace(request.Name),
			Email:          email,
			Status:         status,
			Revenue:        request.InitialMetrics.Revenue,
			Clicks:         request.InitialMetrics.Clicks,
			ConversionRate: request.InitialMetrics.ConversionRate,
			JoinDate:       now,
		}
		switch status {
		case StatusActive:
			created.ApprovedAt = &now
		case StatusSuspended:
			created.SuspendedAt = &now
		}

		if err := tx.Create(&created).Error; err != nil {
			return s.fail(opCreate, reasonSaveFailed, err, zap.String("affiliate_id", id))
		}
		return nil
	})
	if txErr != nil {
		return Record{}, txErr
	}

	s.logger.Info("affiliate created", zap.String("affiliate_id", created.ID), zap.String("status", created.Status.String()))
	return created, nil
}

// Approve activates the affiliate and stamps the approval time.
func (s *Service) Approve(ctx context.Context, id AffiliateID) (Record, error) {
	return s.mutate(ctx, opApprove, id, func(record *Record, now time.Time) {
		record.Status = StatusActive
		record.ApprovedAt = &now
		record.SuspendedAt = nil
	})
}

// Suspend blocks the affiliate and stamps the suspension time.
func (s *Service) Suspend(ctx context.Context, id AffiliateID) (Record, error) {
	return s.mutate(ctx, opSuspend, id, func(record *Record, now time.Time) {
		record.Status = StatusSuspended
		record.SuspendedAt = &now
	})
}

// PatchStatus sets the status directly and clears the timestamps the patch names.
func (s *Service) PatchStatus(ctx context.Context, id AffiliateID, patch StatusPatch) (Record, error) {
	if _, err := ParseStatus(string(patch.Status)); err != nil {
		return Record{}, newServiceError(opPatchStatus, reasonInvalidRequest, &ValidationError{Fields: map[string]string{fieldStatus: messageStatusInvalid}})
	}
	return s.mutate(ctx, opPatchStatus, id, func(record *Record, _ time.Time) {
		record.Status = patch.Status
		if patch.ClearApproval {
			record.ApprovedAt = nil
		}
		if patch.ClearSuspension {
			record.SuspendedAt = nil
		}
	})
}

// Delete removes the affiliate permanently.
func (s *Service) Delete(ctx context.Context, id AffiliateID) error {
	if s.db == nil {
		return s.fail(opDelete, reasonMissingDatabase, errMissingDatabase)
	}
	result := s.db.WithContext(ctx).Where(queryID, id.String()).Delete(&Record{})
	if result.Error != nil {
		return s.fail(opDelete, reasonSaveFailed, result.Error, zap.String("affiliate_id", id.String()))
	}
	if result.RowsAffected == 0 {
		return newServiceError(opDelete, reasonNotFound, ErrAffiliateNotFound)
	}
	s.logger.Info("affiliate deleted", zap.String("affiliate_id", id.String()))
	return nil
}

// Summary aggregates KPI totals across all affiliates.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	if s.db == nil {
		return Summary{}, s.fail(opSummary, reasonMissingDatabase, errMissingDatabase)
	}
	var row struct {
		Total       int64
		Active      int64
		Revenue     float64
		Clicks      int64
		AverageRate float64
	}
	if err := s.db.WithContext(ctx).Model(&Record{}).Select(summarySelectQ, StatusActive).Scan(&row).Error; err != nil {
		return Summary{}, s.fail(opSummary, reasonQueryFailed, err)
	}
	return Summary{
		TotalAffiliates:       row.Total,
		ActiveAffiliates:      row.Active,
		TotalRevenue:          row.Revenue,
		TotalClicks:           row.Clicks,
		AverageConversionRate: row.AverageRate,
	}, nil
}

// Seed inserts the provided affiliates when the table is empty and reports how many were written.
func (s *Service) Seed(ctx context.Context, records []Record) (int, error) {
	if s.db == nil {
		return 0, s.fail(opSeed, reasonMissingDatabase, errMissingDatabase)
	}
	inserted := 0
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&Record{}).Count(&existing).Error; err != nil {
			return s.fail(opSeed, reasonQueryFailed, err)
		}
		if existing > 0 {
			return nil
		}
		for _, record := range records {
			request := CreateRequest{
				Name:   record.Name,
				Email:  record.Email,
				Status: record.Status,
				InitialMetrics: InitialMetrics{
					Revenue:        record.Revenue,
					Clicks:         record.Clicks,
					ConversionRate: record.ConversionRate,
				},
			}
			if request.Status == "" {
				request.Status = StatusActive
			}
			if err := request.Validate(); err != nil {
				return newServiceError(opSeed, reasonInvalidRequest, err)
			}
			if record.ID == "" {
				id, err := s.idProvider.NewID()
				if err != nil {
					return s.fail(opSeed, reasonIDFailed, err)
				}
				record.ID = id
			}
			if record.JoinDate.IsZero() {
				record.JoinDate = s.clock().UTC()
			}
			record.Status = request.Status
			record.Email = strings.ToLower(strings.TrimSpace(record.Email))
			if err := tx.Create(&record).Error; err != nil {
				return s.fail(opSeed, reasonSaveFailed, err, zap.String("affiliate_id", record.ID))
			}
			inserted++
		}
		return nil
	})
	if txErr != nil {
		return 0, txErr
	}
	return inserted, nil
}

func (s *Service) mutate(ctx context.Context, operation string, id AffiliateID, apply func(*Record, time.Time)) (Record, error) {
	if s.db == nil {
		return Record{}, s.fail(operation, reasonMissingDatabase, errMissingDatabase)
	}
	if _, err := NewAffiliateID(id.String()); err != nil {
		return Record{}, newServiceError(operation, reasonInvalidID, err)
	}

	var updated Record
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where(queryID, id.String()).Take(&updated).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return newServiceError(operation, reasonNotFound, ErrAffiliateNotFound)
		}
		if err != nil {
			return s.fail(operation, reasonQueryFailed, err, zap.String("affiliate_id", id.String()))
		}
		apply(&updated, s.clock().UTC())
		if err := tx.Save(&updated).Error; err != nil {
			return s.fail(operation, reasonSaveFailed, err, zap.String("affiliate_id", id.String()))
		}
		return nil
	})
	if txErr != nil {
		return Record{}, txErr
	}

	s.logger.Info("affiliate status changed",
		zap.String("operation", operation),
		zap.String("affiliate_id", updated.ID),
		zap.String("status", updated.Status.String()))
	return updated, nil
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) fail(operation, reason string, err error, fields ...zap.Field) error {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("affiliates service error", attrs...)
	return newServiceError(operation, reason, err)
}
