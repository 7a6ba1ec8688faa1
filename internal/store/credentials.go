package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"visa-slot-backend/internal/model"
)

func (s *gormStore) ListCredentials(ctx context.Context, f ListFilter) ([]model.Credential, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.Credential{})
	if f.ActiveOnly {
		q = q.Where("is_active = ?", true)
	}
	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count credentials: %w", err)
	}
	var creds []model.Credential
	if err := q.Order("created_at ASC").Limit(clampLimit(f.Limit)).Find(&creds).Error; err != nil {
		return nil, 0, fmt.Errorf("list credentials: %w", err)
	}
	return creds, total, nil
}

func (s *gormStore) GetCredential(ctx context.Context, id string) (model.Credential, error) {
	c, err := getRecord[model.Credential](ctx, s.db, "id = ?", id)
	if err != nil {
		return c, fmt.Errorf("get credential %s: %w", id, err)
	}
	return c, nil
}

func (s *gormStore) PrimaryCredential(ctx context.Context) (model.Credential, error) {
	c, err := getRecord[model.Credential](ctx, s.db, "is_primary = ?", true)
	if err != nil {
		return c, fmt.Errorf("get primary credential: %w", err)
	}
	return c, nil
}

// CreateCredential inserts c. A primary credential demotes the previous one in the same transaction.
func (s *gormStore) CreateCredential(ctx context.Context, c *model.Credential) error {
	if err := createRecord(ctx, s.db, c, c.IsPrimary); err != nil {
		return fmt.Errorf("create credential: %w", err)
	}
	return nil
}

// UpdateCredential writes only the fields present in patch; attempt counters are never touched.
func (s *gormStore) UpdateCredential(ctx context.Context, id string, patch model.CredentialPatch) (model.Credential, error) {
	c, err := patchRecord[model.Credential](ctx, s.db, id, patch.Columns())
	if err != nil {
		return c, fmt.Errorf("update credential: %w", err)
	}
	return c, nil
}

func (s *gormStore) SetPrimaryCredential(ctx context.Context, id string) (model.Credential, error) {
	c, err := markPrimary[model.Credential](ctx, s.db, id)
	if err != nil {
		return c, fmt.Errorf("set primary credential: %w", err)
	}
	return c, nil
}

func (s *gormStore) DeleteCredential(ctx context.Context, id string) error {
	if err := deleteRecord[model.Credential](ctx, s.db, id); err != nil {
		return fmt.Errorf("delete credential %s: %w", id, err)
	}
	return nil
}
