package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// BOMService BOM合成服务
//
// Generate是编排入口：锁配置行、检查订单阶段可变性、校验配置、
// 展开目录组件、按需合成定制件、替代旧Active BOM，全部在一个事务内完成。
type BOMService struct {
	db            *gorm.DB
	bomRepo       *repository.BOMRepository
	configRepo    *repository.ConfigurationRepository
	orderRepo     *repository.OrderRepository
	ruleRepo      *repository.RuleRepository
	catalogRepo   *repository.CatalogRepository
	auditRepo     *repository.AuditRepository
	catalogSvc    *CatalogService
	validationSvc *ValidationService
	numberingSvc  *NumberingService
	customSeries  string
	logger        *zap.Logger
}

// NewBOMService 创建BOM服务
func NewBOMService(
	db *gorm.DB,
	repos *repository.Repositories,
	catalogSvc *CatalogService,
	validationSvc *ValidationService,
	numberingSvc *NumberingService,
	customSeries string,
	logger *zap.Logger,
) *BOMService {
	if customSeries == "" {
		customSeries = "700"
	}
	return &BOMService{
		db:            db,
		bomRepo:       repos.BOM,
		configRepo:    repos.Configuration,
		orderRepo:     repos.Order,
		ruleRepo:      repos.Rule,
		catalogRepo:   repos.Catalog,
		auditRepo:     repos.Audit,
		catalogSvc:    catalogSvc,
		validationSvc: validationSvc,
		numberingSvc:  numberingSvc,
		customSeries:  customSeries,
		logger:        logger,
	}
}

// BOMResult BOM生成结果
type BOMResult struct {
	Success         bool              `json:"success"`
	BOMID           string            `json:"bom_id,omitempty"`
	SupersededBOMID string            `json:"superseded_bom_id,omitempty"`
	TotalParts      int               `json:"total_parts"`
	CustomParts     int               `json:"custom_parts"`
	TotalCost       decimal.Decimal   `json:"total_cost"`
	TotalWeight     decimal.Decimal   `json:"total_weight"`
	GenerationMs    int64             `json:"generation_ms"`
	Validation      *ValidationResult `json:"validation,omitempty"`
}

// Generate 为配置生成BOM
//
// 配置行锁让同一配置上的并发生成请求串行化，任何时刻至多一个BOM是Active。
// override=true时允许管理员在不可变阶段重新生成，作为独立审计动作记录。
// 任何目录引用缺失或环都会整体回滚，不会留下孤儿行项。
func (s *BOMService) Generate(ctx context.Context, configurationID string, actor Actor, override bool) (*BOMResult, error) {
	start := time.Now()
	var result *BOMResult

	err := s.db.Transaction(func(tx *gorm.DB) error {
		config, err := s.configRepo.FindForUpdate(ctx, tx, configurationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("configuration %s: %w", configurationID, ErrNotFound)
			}
			return fmt.Errorf("lock configuration: %w", err)
		}

		item, err := s.orderRepo.FindItemByConfiguration(ctx, tx, configurationID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("order item for configuration %s: %w", configurationID, ErrNotFound)
			}
			return fmt.Errorf("find order item: %w", err)
		}
		order, err := s.orderRepo.FindForUpdate(ctx, tx, item.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}

		if !entity.MutablePhase(order.CurrentPhase) {
			if !override {
				return fmt.Errorf("order %s is in phase %s, configuration is frozen: %w",
					order.ID, order.CurrentPhase, ErrConflict)
			}
			if !actor.IsAdmin() {
				return fmt.Errorf("override regeneration requires admin role: %w", ErrAuthorization)
			}
			if err := s.auditRepo.Create(ctx, tx, &entity.AuditEvent{
				Actor:      actor.ID,
				ActorName:  actor.Name,
				Action:     entity.AuditActionAdminOverride,
				EntityType: "configuration",
				EntityID:   config.ID,
				After:      entity.JSONB{"order_phase": order.CurrentPhase, "operation": "regenerate_bom"},
			}); err != nil {
				return fmt.Errorf("audit override: %w", err)
			}
		}

		validation, err := s.validationSvc.ValidateAndStore(ctx, tx, config)
		if err != nil {
			return err
		}
		if !validation.IsValid {
			// 校验标记落库，但不产生BOM
			result = &BOMResult{Success: false, Validation: validation}
			return nil
		}

		assembly, err := s.catalogRepo.FindAssemblyByID(ctx, tx, config.AssemblyID)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return fmt.Errorf("assembly %s: %w", config.AssemblyID, ErrNotFound)
			}
			return fmt.Errorf("find assembly: %w", err)
		}

		now := time.Now()
		components, err := s.catalogSvc.Expand(ctx, tx, config.AssemblyID, now)
		if err != nil {
			return err
		}

		selectionRules, err := s.ruleRepo.ListForScope(ctx, tx,
			config.AssemblyID, assembly.CategoryID, entity.RuleKindComponentSelection)
		if err != nil {
			return fmt.Errorf("load selection rules: %w", err)
		}

		version, err := s.bomRepo.MaxVersion(ctx, tx, config.ID)
		if err != nil {
			return fmt.Errorf("bom version: %w", err)
		}

		header := &entity.BOMHeader{
			ConfigurationID: config.ID,
			OrderItemID:     item.ID,
			AssemblyID:      config.AssemblyID,
			Version:         version + 1,
			Status:          entity.BOMStatusDraft,
			GeneratedBy:     actor.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.bomRepo.CreateHeader(ctx, tx, header); err != nil {
			return fmt.Errorf("create bom header: %w", err)
		}

		lines, err := s.buildLines(ctx, tx, header, config, components, selectionRules, actor)
		if err != nil {
			return err
		}
		if err := s.bomRepo.CreateItems(ctx, tx, lines); err != nil {
			return fmt.Errorf("create bom lines: %w", err)
		}

		totalCost := decimal.Zero
		totalWeight := decimal.Zero
		customCount := 0
		for _, line := range lines {
			totalCost = totalCost.Add(line.ExtendedCost)
			totalWeight = totalWeight.Add(line.ExtendedWeight)
			if line.IsCustom {
				customCount++
			}
		}

		supersededID, err := s.bomRepo.SupersedeActive(ctx, tx, config.ID)
		if err != nil {
			return fmt.Errorf("supersede active bom: %w", err)
		}
		if supersededID != "" {
			if err := s.auditRepo.Create(ctx, tx, &entity.AuditEvent{
				Actor:      actor.ID,
				ActorName:  actor.Name,
				Action:     entity.AuditActionBOMSuperseded,
				EntityType: "bom",
				EntityID:   supersededID,
				After:      entity.JSONB{"superseded_by": header.ID},
			}); err != nil {
				return fmt.Errorf("audit bom supersede: %w", err)
			}
		}

		header.Status = entity.BOMStatusActive
		header.TotalParts = len(lines)
		header.CustomParts = customCount
		header.TotalCost = totalCost
		header.TotalWeight = totalWeight
		header.GenerationMs = time.Since(start).Milliseconds()
		header.UpdatedAt = time.Now()
		if err := s.bomRepo.UpdateHeader(ctx, tx, header); err != nil {
			return fmt.Errorf("finalize bom header: %w", err)
		}

		item.ActiveBOMID = header.ID
		item.UpdatedAt = time.Now()
		if err := s.orderRepo.UpdateItem(ctx, tx, item); err != nil {
			return fmt.Errorf("update order item: %w", err)
		}

		if err := s.auditRepo.Create(ctx, tx, &entity.AuditEvent{
			Actor:      actor.ID,
			ActorName:  actor.Name,
			Action:     entity.AuditActionBOMGenerated,
			EntityType: "bom",
			EntityID:   header.ID,
			Before:     entity.JSONB{"superseded_bom_id": supersededID},
			After: entity.JSONB{
				"configuration_id": config.ID,
				"version":          header.Version,
				"total_parts":      header.TotalParts,
				"custom_parts":     header.CustomParts,
				"total_cost":       header.TotalCost.String(),
			},
		}); err != nil {
			return fmt.Errorf("audit bom generation: %w", err)
		}

		result = &BOMResult{
			Success:         true,
			BOMID:           header.ID,
			SupersededBOMID: supersededID,
			TotalParts:      header.TotalParts,
			CustomParts:     header.CustomParts,
			TotalCost:       totalCost,
			TotalWeight:     totalWeight,
			GenerationMs:    header.GenerationMs,
			Validation:      validation,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Success {
		s.logger.Info("bom generated",
			zap.String("bom_id", result.BOMID),
			zap.String("configuration_id", configurationID),
			zap.Int("total_parts", result.TotalParts),
			zap.Int("custom_parts", result.CustomParts),
			zap.Int64("generation_ms", result.GenerationMs),
		)
	}
	return result, nil
}

// buildLines 构建BOM行项：目录组件在前，特征驱动的定制/选配行在后，行号稳定递增
func (s *BOMService) buildLines(
	ctx context.Context,
	tx *gorm.DB,
	header *entity.BOMHeader,
	config *entity.Configuration,
	components []ExpandedComponent,
	selectionRules []entity.ConfigurationRule,
	actor Actor,
) ([]entity.BOMLineItem, error) {
	// 选配组件只有在组件选择规则命中时才进入BOM
	includeComponent := make(map[string]bool)
	for _, rule := range selectionRules {
		componentID := paramString(rule.Params, "component_id")
		if componentID == "" {
			continue
		}
		if _, triggered := selectionValue(rule.Params, config.Selections); triggered {
			includeComponent[componentID] = true
		}
	}

	now := time.Now()
	var lines []entity.BOMLineItem
	lineNo := 0

	appendLine := func(line entity.BOMLineItem) {
		lineNo++
		line.BOMHeaderID = header.ID
		line.LineNumber = lineNo
		line.CreatedAt = now
		lines = append(lines, line)
	}

	for _, comp := range components {
		if comp.Optional && !includeComponent[comp.ComponentID] {
			continue
		}
		adjusted, extCost, extWeight := extendLine(comp.BaseQuantity, comp.WasteFactor, comp.UnitCost, comp.UnitWeight)
		appendLine(entity.BOMLineItem{
			ComponentID:      comp.ComponentID,
			ComponentType:    comp.ComponentType,
			PartNumber:       comp.PartNumber,
			Name:             comp.Name,
			BaseQuantity:     comp.BaseQuantity,
			WasteFactor:      comp.WasteFactor,
			AdjustedQuantity: adjusted,
			Unit:             comp.Unit,
			UnitCost:         comp.UnitCost,
			ExtendedCost:     extCost,
			UnitWeight:       comp.UnitWeight,
			ExtendedWeight:   extWeight,
			IsCustom:         comp.IsCustom,
		})
	}

	// 特征驱动行：配置选项映射到目录特征，无匹配且允许时合成定制件
	for _, rule := range selectionRules {
		featureKey := paramString(rule.Params, "feature_key")
		if featureKey == "" {
			continue
		}
		value, triggered := selectionValue(rule.Params, config.Selections)
		if !triggered {
			continue
		}
		featureValue := formatSelectionValue(value)

		part, err := s.catalogRepo.FindPartByFeature(ctx, tx, featureKey, featureValue)
		if err != nil {
			if !errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("find part by feature %s=%s: %w", featureKey, featureValue, err)
			}
			if !paramBool(rule.Params, "allow_custom") {
				return nil, fmt.Errorf("no catalog part for %s=%s and rule %q forbids custom synthesis: %w",
					featureKey, featureValue, rule.Name, ErrDataIntegrity)
			}
			series := paramString(rule.Params, "series")
			if series == "" {
				series = s.customSeries
			}
			name := paramString(rule.Params, "name")
			if name == "" {
				name = fmt.Sprintf("Custom %s %s", featureKey, featureValue)
			}
			part, err = s.numberingSvc.MintCustomPart(ctx, tx, MintPartRequest{
				Series:       series,
				Name:         name,
				CategoryID:   paramString(rule.Params, "category_id"),
				Unit:         paramString(rule.Params, "unit"),
				FeatureKey:   featureKey,
				FeatureValue: featureValue,
				Description:  fmt.Sprintf("Synthesized for configuration %s", config.ID),
				CreatedBy:    actor.ID,
			})
			if err != nil {
				return nil, err
			}
		}

		quantity := decimal.NewFromInt(1)
		if q, ok := paramFloat(rule.Params, "quantity"); ok {
			quantity = decimal.NewFromFloat(q)
		}
		// 新合成的定制件没有目录成本，extended沿用零成本
		adjusted, extCost, extWeight := extendLine(quantity, decimal.Zero, part.UnitCost, part.UnitWeight)
		appendLine(entity.BOMLineItem{
			ComponentID:      part.ID,
			ComponentType:    entity.ComponentTypePart,
			PartNumber:       part.PartNumber,
			Name:             part.Name,
			BaseQuantity:     quantity,
			WasteFactor:      decimal.Zero,
			AdjustedQuantity: adjusted,
			Unit:             part.Unit,
			UnitCost:         part.UnitCost,
			ExtendedCost:     extCost,
			UnitWeight:       part.UnitWeight,
			ExtendedWeight:   extWeight,
			IsCustom:         part.IsCustom,
		})
	}

	return lines, nil
}

// extendLine 数量与成本算术：adjusted = base*(1+waste)，extended = adjusted*unit
func extendLine(base, waste, unitCost, unitWeight decimal.Decimal) (adjusted, extCost, extWeight decimal.Decimal) {
	adjusted = base.Mul(decimal.NewFromInt(1).Add(waste))
	extCost = adjusted.Mul(unitCost)
	extWeight = adjusted.Mul(unitWeight)
	return adjusted, extCost, extWeight
}

// selectionValue 评估组件选择规则的触发条件，返回选项值
// equals参数存在时要求精确匹配，否则选项值为真值即触发。
func selectionValue(params entity.JSONB, selections entity.JSONB) (interface{}, bool) {
	field := paramString(params, "field")
	if field == "" {
		return nil, false
	}
	value, present := selections[field]
	if !present {
		return nil, false
	}
	if expected, ok := params["equals"]; ok {
		return value, looseEqual(value, expected)
	}
	return value, truthy(value)
}

// truthy JSON选项值的真值判断
func truthy(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		return t != "" && t != "none" && t != "false"
	default:
		f, ok := toFloat(v)
		return ok && f != 0
	}
}

// formatSelectionValue 选项值转目录特征值：整数不带小数点
func formatSelectionValue(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Get BOM详情（含行项）
func (s *BOMService) Get(ctx context.Context, id string) (*entity.BOMHeader, error) {
	bom, err := s.bomRepo.GetByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("bom %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return bom, nil
}

// ListVersions 配置的BOM版本列表
func (s *BOMService) ListVersions(ctx context.Context, configurationID string) ([]entity.BOMHeader, error) {
	return s.bomRepo.ListVersions(ctx, configurationID)
}

// ExportExcel 导出BOM为xlsx
func (s *BOMService) ExportExcel(ctx context.Context, id string) (*bytes.Buffer, string, error) {
	bom, err := s.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	defer f.Close()

	sheet := "BOM"
	f.SetSheetName("Sheet1", sheet)

	headers := []string{"Line", "Part Number", "Name", "Type", "Base Qty", "Waste Factor",
		"Adjusted Qty", "Unit", "Unit Cost", "Extended Cost", "Custom"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(sheet, cell, h)
	}

	for i, line := range bom.Items {
		row := i + 2
		values := []interface{}{
			line.LineNumber, line.PartNumber, line.Name, line.ComponentType,
			line.BaseQuantity.InexactFloat64(), line.WasteFactor.InexactFloat64(),
			line.AdjustedQuantity.InexactFloat64(), line.Unit,
			line.UnitCost.InexactFloat64(), line.ExtendedCost.InexactFloat64(),
			line.IsCustom,
		}
		for j, v := range values {
			cell, _ := excelize.CoordinatesToCellName(j+1, row)
			f.SetCellValue(sheet, cell, v)
		}
	}

	totalRow := len(bom.Items) + 3
	f.SetCellValue(sheet, fmt.Sprintf("A%d", totalRow), "Total")
	f.SetCellValue(sheet, fmt.Sprintf("J%d", totalRow), bom.TotalCost.InexactFloat64())

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("write excel: %w", err)
	}
	filename := fmt.Sprintf("bom_%s_v%d.xlsx", bom.AssemblyID, bom.Version)
	return buf, filename, nil
}
