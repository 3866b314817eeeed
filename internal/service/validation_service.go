package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ValidationService 配置校验服务
type ValidationService struct {
	ruleRepo    *repository.RuleRepository
	catalogRepo *repository.CatalogRepository
	configRepo  *repository.ConfigurationRepository
	logger      *zap.Logger
}

// NewValidationService 创建校验服务
func NewValidationService(
	ruleRepo *repository.RuleRepository,
	catalogRepo *repository.CatalogRepository,
	configRepo *repository.ConfigurationRepository,
	logger *zap.Logger,
) *ValidationService {
	return &ValidationService{
		ruleRepo:    ruleRepo,
		catalogRepo: catalogRepo,
		configRepo:  configRepo,
		logger:      logger,
	}
}

// ValidationResult 校验结果
type ValidationResult struct {
	IsValid  bool                   `json:"is_valid"`
	Errors   []entity.RuleViolation `json:"errors"`
	Warnings []entity.RuleViolation `json:"warnings"`
}

// Validate 校验配置，不落库
func (s *ValidationService) Validate(ctx context.Context, config *entity.Configuration) (*ValidationResult, error) {
	rules, err := s.loadRules(ctx, nil, config.AssemblyID)
	if err != nil {
		return nil, err
	}
	result := evaluateRules(rules, config.Selections)
	return result, nil
}

// ValidateAndStore 事务内校验配置并将结果写回配置行
func (s *ValidationService) ValidateAndStore(ctx context.Context, tx *gorm.DB, config *entity.Configuration) (*ValidationResult, error) {
	rules, err := s.loadRules(ctx, tx, config.AssemblyID)
	if err != nil {
		return nil, err
	}
	result := evaluateRules(rules, config.Selections)

	now := time.Now()
	config.IsValid = result.IsValid
	config.Errors = result.Errors
	config.Warnings = result.Warnings
	config.ValidatedAt = &now
	config.UpdatedAt = now
	if err := s.configRepo.Update(ctx, tx, config); err != nil {
		return nil, fmt.Errorf("store validation result: %w", err)
	}
	return result, nil
}

// loadRules 加载配置所属装配体/类别范围内的规则
func (s *ValidationService) loadRules(ctx context.Context, tx *gorm.DB, assemblyID string) ([]entity.ConfigurationRule, error) {
	assembly, err := s.catalogRepo.FindAssemblyByID(ctx, tx, assemblyID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("assembly %s: %w", assemblyID, ErrNotFound)
		}
		return nil, fmt.Errorf("find assembly: %w", err)
	}
	rules, err := s.ruleRepo.ListForScope(ctx, tx, assemblyID, assembly.CategoryID)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	return rules, nil
}

// ListRules 规则列表（管理接口）
func (s *ValidationService) ListRules(ctx context.Context, kind string) ([]entity.ConfigurationRule, error) {
	return s.ruleRepo.List(ctx, kind)
}

// GetRule 规则详情
func (s *ValidationService) GetRule(ctx context.Context, id string) (*entity.ConfigurationRule, error) {
	rule, err := s.ruleRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("rule %s: %w", id, ErrNotFound)
		}
		return nil, err
	}
	return rule, nil
}

// CreateRule 创建规则。Kind必须属于封闭集合。
func (s *ValidationService) CreateRule(ctx context.Context, rule *entity.ConfigurationRule) error {
	if err := validRuleKind(rule.Kind); err != nil {
		return err
	}
	if rule.Status == "" {
		rule.Status = entity.RuleStatusActive
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now
	return s.ruleRepo.Create(ctx, rule)
}

// UpdateRule 更新规则
func (s *ValidationService) UpdateRule(ctx context.Context, rule *entity.ConfigurationRule) error {
	if err := validRuleKind(rule.Kind); err != nil {
		return err
	}
	rule.UpdatedAt = time.Now()
	return s.ruleRepo.Update(ctx, rule)
}

func validRuleKind(kind string) error {
	switch kind {
	case entity.RuleKindValidation, entity.RuleKindCompatibility,
		entity.RuleKindComponentSelection, entity.RuleKindPricing:
		return nil
	}
	return fmt.Errorf("unknown rule kind %q: %w", kind, ErrDataIntegrity)
}

// evaluateRules 按优先级顺序评估全部规则
// 每条规则独立评估，不短路：阻断规则失败进errors并置IsValid=false，
// 非阻断规则失败只进warnings。相同输入和规则必然产生相同结果。
func evaluateRules(rules []entity.ConfigurationRule, selections entity.JSONB) *ValidationResult {
	result := &ValidationResult{
		IsValid:  true,
		Errors:   []entity.RuleViolation{},
		Warnings: []entity.RuleViolation{},
	}

	for _, rule := range rules {
		// 组件选择规则由合成器消费，不参与校验
		if rule.Kind == entity.RuleKindComponentSelection {
			continue
		}

		violated, field := evaluateRule(rule, selections)
		if !violated {
			continue
		}

		violation := entity.RuleViolation{
			Rule:    rule.Name,
			Field:   field,
			Message: rule.Message,
		}
		if rule.IsBlocking {
			result.Errors = append(result.Errors, violation)
			result.IsValid = false
		} else {
			result.Warnings = append(result.Warnings, violation)
		}
	}

	return result
}

// evaluateRule 评估单条规则，返回是否违反及相关字段
func evaluateRule(rule entity.ConfigurationRule, selections entity.JSONB) (bool, string) {
	switch rule.Kind {
	case entity.RuleKindValidation:
		return evaluateBounds(rule.Params, selections)
	case entity.RuleKindCompatibility:
		return evaluateCompatibility(rule.Params, selections)
	case entity.RuleKindPricing:
		return evaluateBounds(rule.Params, selections)
	default:
		return false, ""
	}
}

// evaluateBounds 数值边界/必填检查
// params: {field, min?, max?, required?}
func evaluateBounds(params entity.JSONB, selections entity.JSONB) (bool, string) {
	field := paramString(params, "field")
	if field == "" {
		return false, ""
	}

	raw, present := selections[field]
	if !present {
		if paramBool(params, "required") {
			return true, field
		}
		return false, field
	}

	value, numeric := toFloat(raw)
	if !numeric {
		return false, field
	}
	if min, ok := paramFloat(params, "min"); ok && value < min {
		return true, field
	}
	if max, ok := paramFloat(params, "max"); ok && value > max {
		return true, field
	}
	return false, field
}

// evaluateCompatibility 跨特性兼容检查
// params: {when_field, when_equals, field, min?, max?, forbidden?}
// 前提条件不满足时规则不触发。
func evaluateCompatibility(params entity.JSONB, selections entity.JSONB) (bool, string) {
	whenField := paramString(params, "when_field")
	if whenField == "" {
		return false, ""
	}

	actual, present := selections[whenField]
	if !present {
		return false, whenField
	}
	if expected, ok := params["when_equals"]; ok && !looseEqual(actual, expected) {
		return false, whenField
	}

	field := paramString(params, "field")
	if field == "" {
		return false, whenField
	}

	raw, present := selections[field]
	if !present {
		return false, field
	}
	if forbidden, ok := params["forbidden"]; ok && looseEqual(raw, forbidden) {
		return true, field
	}

	value, numeric := toFloat(raw)
	if !numeric {
		return false, field
	}
	if min, ok := paramFloat(params, "min"); ok && value < min {
		return true, field
	}
	if max, ok := paramFloat(params, "max"); ok && value > max {
		return true, field
	}
	return false, field
}

// paramString 从规则参数取字符串
func paramString(params entity.JSONB, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// paramFloat 从规则参数取数值
func paramFloat(params entity.JSONB, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// paramBool 从规则参数取布尔
func paramBool(params entity.JSONB, key string) bool {
	if v, ok := params[key].(bool); ok {
		return v
	}
	return false
}

// toFloat JSON反序列化后的数值统一转float64
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// looseEqual JSON值的宽松比较：数值按数值比，其余按字面比
func looseEqual(a, b interface{}) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
