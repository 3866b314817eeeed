package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// SequenceRepository 编号序列仓库
type SequenceRepository struct {
	db *gorm.DB
}

// NewSequenceRepository 创建序列仓库
func NewSequenceRepository(db *gorm.DB) *SequenceRepository {
	return &SequenceRepository{db: db}
}

// Next 事务内原子取号：对序列行加锁后读取并递增
// 两个并发调用方不可能拿到相同的号；事务回滚产生的空洞可以接受。
func (r *SequenceRepository) Next(ctx context.Context, tx *gorm.DB, series string) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	var seq entity.NumberSequence
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("series = ?", series).
		First(&seq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("number series %q not registered: %w", series, ErrNotFound)
		}
		return 0, err
	}

	value := seq.NextValue
	seq.NextValue++
	seq.UpdatedAt = time.Now()
	if err := tx.WithContext(ctx).Save(&seq).Error; err != nil {
		return 0, err
	}
	return value, nil
}

// Get 查看序列当前状态
func (r *SequenceRepository) Get(ctx context.Context, series string) (*entity.NumberSequence, error) {
	var seq entity.NumberSequence
	err := r.db.WithContext(ctx).Where("series = ?", series).First(&seq).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &seq, nil
}

// Ensure 注册序列（已存在则不动）
func (r *SequenceRepository) Ensure(ctx context.Context, seq *entity.NumberSequence) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seq).Error
}
