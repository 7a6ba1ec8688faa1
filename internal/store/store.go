package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"visa-slot-backend/internal/model"
)

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// AppendLog inserts an audit entry. Entries are never updated afterwards.
func (s *gormStore) AppendLog(ctx context.Context, entry *model.SystemLog) error {
	if !entry.Level.Valid() {
		return fmt.Errorf("append log: invalid level %q", entry.Level)
	}
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

// ListLogs returns the newest entries first together with the total matching count.
func (s *gormStore) ListLogs(ctx context.Context, f LogFilter) ([]model.SystemLog, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.SystemLog{})
	if f.Level != "" {
		q = q.Where("level = ?", f.Level)
	}
	if f.Step != "" {
		q = q.Where("step = ?", f.Step)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count logs: %w", err)
	}
	var logs []model.SystemLog
	if err := q.Order("timestamp DESC").Limit(clampLimit(f.Limit)).Find(&logs).Error; err != nil {
		return nil, 0, fmt.Errorf("list logs: %w", err)
	}
	return logs, total, nil
}

// LoadSystemConfig returns the singleton configuration, creating the default row on first use.
func (s *gormStore) LoadSystemConfig(ctx context.Context) (model.SystemConfig, error) {
	var cfg model.SystemConfig
	err := s.db.WithContext(ctx).First(&cfg, "id = ?", model.SystemConfigID).Error
	if err == nil {
		return cfg, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.SystemConfig{}, fmt.Errorf("load system config: %w", err)
	}

	cfg = model.DefaultSystemConfig()
	if err := s.db.WithContext(ctx).Create(&cfg).Error; err != nil {
		return model.SystemConfig{}, fmt.Errorf("create system config: %w", err)
	}
	return cfg, nil
}

// SaveSystemConfig upserts the singleton configuration.
func (s *gormStore) SaveSystemConfig(ctx context.Context, cfg model.SystemConfig) error {
	cfg.ID = model.SystemConfigID
	if err := s.db.WithContext(ctx).Save(&cfg).Error; err != nil {
		return fmt.Errorf("save system config: %w", err)
	}
	return nil
}

// InsertSlots records newly discovered slots.
func (s *gormStore) InsertSlots(ctx context.Context, slots []model.AppointmentSlot) error {
	if len(slots) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Create(&slots).Error; err != nil {
		return fmt.Errorf("insert %d slots: %w", len(slots), err)
	}
	return nil
}

// TransitionSlot moves a slot to status to with a single compare-and-update on its
// current status, so concurrent writers can never move it twice or back to available.
func (s *gormStore) TransitionSlot(ctx context.Context, id string, to model.SlotStatus, details datatypes.JSONMap) error {
	from := sourcesOf(to)
	if len(from) == 0 {
		return fmt.Errorf("%w: nothing may move to %q", ErrSlotTransition, to)
	}

	updates := map[string]any{"status": to}
	if details != nil {
		updates["booking_details"] = details
	}
	res := s.db.WithContext(ctx).
		Model(&model.AppointmentSlot{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return fmt.Errorf("transition slot %s to %s: %w", id, to, res.Error)
	}
	if res.RowsAffected == 1 {
		return nil
	}

	var current model.AppointmentSlot
	if err := s.db.WithContext(ctx).Select("status").First(&current, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("slot %s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("lookup slot %s: %w", id, err)
	}
	return fmt.Errorf("%w: slot %s is %s, cannot become %s", ErrSlotTransition, id, current.Status, to)
}

// ListSlots returns the newest slots first together with the total matching count.
func (s *gormStore) ListSlots(ctx context.Context, f SlotFilter) ([]model.AppointmentSlot, int64, error) {
	q := s.db.WithContext(ctx).Model(&model.AppointmentSlot{})
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}

	var total int64
	if err := q.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("count slots: %w", err)
	}
	var slots []model.AppointmentSlot
	if err := q.Order("found_at DESC").Limit(clampLimit(f.Limit)).Find(&slots).Error; err != nil {
		return nil, 0, fmt.Errorf("list slots: %w", err)
	}
	return slots, total, nil
}

// RecordCredentialAttempt bumps the attempt counters of one credential in a single
// UPDATE so concurrent operator edits are never overwritten.
func (s *gormStore) RecordCredentialAttempt(ctx context.Context, id string, success bool, at time.Time) error {
	inc := 0
	if success {
		inc = 1
	}
	res := s.db.WithContext(ctx).
		Model(&model.Credential{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"total_attempts":      gorm.Expr("total_attempts + ?", 1),
			"successful_attempts": gorm.Expr("successful_attempts + ?", inc),
			"last_used":           at,
		})
	if res.Error != nil {
		return fmt.Errorf("record attempt for credential %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("credential %s: %w", id, ErrNotFound)
	}
	return nil
}
