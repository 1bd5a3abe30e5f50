package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/noah-isme/uce-api/internal/models"
	appErrors "github.com/noah-isme/uce-api/pkg/errors"
)

type activityStore interface {
	FindByID(ctx context.Context, id int64) (*models.ActivityDetail, error)
	List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, int, error)
	UpdateStatus(ctx context.Context, id int64, status models.ActivityStatus) error
}

// ActivityService serves the activities spawned by fully approved proposals.
type ActivityService struct {
	store  activityStore
	logger *zap.Logger
}

// NewActivityService constructs ActivityService.
func NewActivityService(store activityStore, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{store: store, logger: logger}
}

// Get returns one activity.
func (s *ActivityService) Get(ctx context.Context, id int64) (*models.ActivityDetail, error) {
	activity, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}

// List returns activities with pagination metadata.
func (s *ActivityService) List(ctx context.Context, filter models.ActivityFilter) ([]models.ActivityDetail, *models.Pagination, error) {
	activities, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list activities")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return activities, pagination, nil
}

// UpdateStatus moves an activity forward through UPCOMING, ONGOING and
// COMPLETED.
func (s *ActivityService) UpdateStatus(ctx context.Context, id int64, status models.ActivityStatus) (*models.ActivityDetail, error) {
	switch status {
	case models.ActivityStatusUpcoming, models.ActivityStatusOngoing, models.ActivityStatusCompleted:
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "status must be UPCOMING, ONGOING or COMPLETED")
	}
	if _, err := s.store.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "activity not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update activity status")
	}
	activity, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load activity")
	}
	return activity, nil
}
