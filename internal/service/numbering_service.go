package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// NumberingService 定制件编号服务
//
// 每个号段一条序列行，取号通过行锁递增，跨请求原子。
// 铸出的号立即注册为目录零件，之后与标准件一样可查。
type NumberingService struct {
	seqRepo     *repository.SequenceRepository
	catalogRepo *repository.CatalogRepository
	logger      *zap.Logger
}

// NewNumberingService 创建编号服务
func NewNumberingService(
	seqRepo *repository.SequenceRepository,
	catalogRepo *repository.CatalogRepository,
	logger *zap.Logger,
) *NumberingService {
	return &NumberingService{seqRepo: seqRepo, catalogRepo: catalogRepo, logger: logger}
}

// Mint 事务内从号段取唯一递增编号
func (s *NumberingService) Mint(ctx context.Context, tx *gorm.DB, series string) (string, error) {
	seq, err := s.seqRepo.Get(ctx, series)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", fmt.Errorf("series %q: %w", series, ErrNotFound)
		}
		return "", fmt.Errorf("load series %q: %w", series, err)
	}
	value, err := s.seqRepo.Next(ctx, tx, series)
	if err != nil {
		return "", fmt.Errorf("next number in series %q: %w", series, err)
	}
	return FormatPartNumber(seq.Prefix, seq.Padding, value), nil
}

// FormatPartNumber 组装零件号：前缀-序号（可配置补零宽度）
func FormatPartNumber(prefix string, padding int, value int64) string {
	if padding > 0 {
		return fmt.Sprintf("%s-%0*d", prefix, padding, value)
	}
	return fmt.Sprintf("%s-%d", prefix, value)
}

// MintPartRequest 定制件合成请求
type MintPartRequest struct {
	Series       string
	Name         string
	CategoryID   string
	Unit         string
	FeatureKey   string
	FeatureValue string
	Description  string
	CreatedBy    string
}

// MintCustomPart 事务内合成定制件并注册为一等目录零件
func (s *NumberingService) MintCustomPart(ctx context.Context, tx *gorm.DB, req MintPartRequest) (*entity.Part, error) {
	partNumber, err := s.Mint(ctx, tx, req.Series)
	if err != nil {
		return nil, err
	}

	unit := req.Unit
	if unit == "" {
		unit = "pcs"
	}

	now := time.Now()
	part := &entity.Part{
		PartNumber:   partNumber,
		Name:         req.Name,
		CategoryID:   req.CategoryID,
		Status:       entity.PartStatusActive,
		Unit:         unit,
		UnitCost:     decimal.Zero,
		UnitWeight:   decimal.Zero,
		IsCustom:     true,
		FeatureKey:   req.FeatureKey,
		FeatureValue: req.FeatureValue,
		Description:  req.Description,
		CreatedBy:    req.CreatedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.catalogRepo.CreatePart(ctx, tx, part); err != nil {
		return nil, fmt.Errorf("register custom part %s: %w", partNumber, err)
	}

	s.logger.Info("custom part minted",
		zap.String("part_number", partNumber),
		zap.String("feature_key", req.FeatureKey),
		zap.String("feature_value", req.FeatureValue),
	)
	return part, nil
}
