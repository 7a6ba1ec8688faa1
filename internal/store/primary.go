package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// clearPrimary unsets is_primary on every row of T except keepID.
func clearPrimary[T any](tx *gorm.DB, keepID string) error {
	return tx.Model(new(T)).
		Where("is_primary = ? AND id <> ?", true, keepID).
		Update("is_primary", false).Error
}

// markPrimary makes id the only primary row of T in one transaction.
func markPrimary[T any](ctx context.Context, db *gorm.DB, id string) (T, error) {
	var out T
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := clearPrimary[T](tx, id); err != nil {
			return fmt.Errorf("clear previous primary: %w", err)
		}
		res := tx.Model(new(T)).Where("id = ?", id).Update("is_primary", true)
		if res.Error != nil {
			return fmt.Errorf("set primary %s: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return tx.First(&out, "id = ?", id).Error
	})
	return out, err
}

// patchRecord applies cols to the row id of T, clearing any other primary first
// when the patch promotes this row.
func patchRecord[T any](ctx context.Context, db *gorm.DB, id string, cols map[string]any) (T, error) {
	var out T
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&out, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%s: %w", id, ErrNotFound)
			}
			return err
		}
		if promote, ok := cols["is_primary"].(bool); ok && promote {
			if err := clearPrimary[T](tx, id); err != nil {
				return fmt.Errorf("clear previous primary: %w", err)
			}
		}
		if len(cols) > 0 {
			if err := tx.Model(new(T)).Where("id = ?", id).Updates(cols).Error; err != nil {
				return fmt.Errorf("update %s: %w", id, err)
			}
		}
		return tx.First(&out, "id = ?", id).Error
	})
	return out, err
}

// createRecord inserts rec, clearing any other primary first when rec is primary.
func createRecord[T any](ctx context.Context, db *gorm.DB, rec *T, primary bool) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if primary {
			if err := clearPrimary[T](tx, ""); err != nil {
				return fmt.Errorf("clear previous primary: %w", err)
			}
		}
		return tx.Create(rec).Error
	})
}

// getRecord loads one row of T by id.
func getRecord[T any](ctx context.Context, db *gorm.DB, query string, args ...any) (T, error) {
	var out T
	if err := db.WithContext(ctx).Where(query, args...).First(&out).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return out, ErrNotFound
		}
		return out, err
	}
	return out, nil
}

// deleteRecord removes the row id of T.
func deleteRecord[T any](ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).Where("id = ?", id).Delete(new(T))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
