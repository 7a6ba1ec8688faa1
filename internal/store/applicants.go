package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"visa-slot-backend/internal/model"
)

func (s *gormStore) ListApplicants(ctx context.Context, f ListFilter) ([]model.Applicant, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Applicant{})
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count applicants: %w", err)
	}
	var applicants []model.Applicant
	if err := q.Order("created_at ASC").Limit(clampLimit(f.Limit)).Find(&applicants).Error; err != nil {
		return nil, 0, fmt.Errorf("list applicants: %w", err)
	}
	return applicants, total, nil
}

func (s *gormStore) GetApplicant(ctx context.Context, id string) (model.Applicant, error) {
	a, err := getRecord[model.Applicant](ctx, s.db, "id = ?", id)
	if err != nil {
		return a, fmt.Errorf("get applicant %s: %w", id, err)
	}
	return a, nil
}

func (s *gormStore) PrimaryApplicant(ctx context.Context) (model.Applicant, error) {
	a, err := getRecord[model.Applicant](ctx, s.db, "is_primary = ?", true)
	if err != nil {
		return a, fmt.Errorf("get primary applicant: %w", err)
	}
	return a, nil
}

// CreateApplicant inserts a. A primary applicant demotes the previous one in the same transaction.
func (s *gormStore) CreateApplicant(ctx context.Context, a *model.Applicant) error {
	if err := createRecord(ctx, s.db, a, a.IsPrimary); err != nil {
		return fmt.Errorf("create applicant: %w", err)
	}
	return nil
}

// UpdateApplicant writes only the fields present in patch.
func (s *gormStore) UpdateApplicant(ctx context.Context, id string, patch model.ApplicantPatch) (model.Applicant, error) {
	a, err := patchRecord[model.Applicant](ctx, s.db, id, patch.Columns())
	if err != nil {
		return a, fmt.Errorf("update applicant: %w", err)
	}
	return a, nil
}

func (s *gormStore) SetPrimaryApplicant(ctx context.Context, id string) (model.Applicant, error) {
	a, err := markPrimary[model.Applicant](ctx, s.db, id)
	if err != nil {
		return a, fmt.Errorf("set primary applicant: %w", err)
	}
	return a, nil
}

func (s *gormStore) DeleteApplicant(ctx context.Context, id string) error {
	if err := deleteRecord[model.Applicant](ctx, s.db, id); err != nil {
		return fmt.Errorf("delete applicant %s: %w", id, err)
	}
	return nil
}
