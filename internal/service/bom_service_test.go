package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"github.com/steelfab/oms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type bomFixture struct {
	db       *gorm.DB
	repos    *repository.Repositories
	services *Services
	assembly *entity.Assembly
	order    *entity.Order
	item     *entity.OrderItem
	actor    Actor
}

// setupBOMFixture 构建一个双槽水槽工作台目录：
// 4条腿 + 2张台面板（25%损耗）+ 可选挂板（特征驱动，支持定制合成）
func setupBOMFixture(t *testing.T, selections entity.JSONB) *bomFixture {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	services := NewServices(db, repos, nil, "700", zap.NewNop())
	ctx := context.Background()

	category := &entity.Category{Code: "SINK", Name: "Stainless Sinks"}
	require.NoError(t, repos.Catalog.CreateCategory(ctx, category))

	leg := &entity.Part{
		PartNumber: "100-0001", Name: "Leg 34in", CategoryID: category.ID,
		Status: entity.PartStatusActive, Unit: "pcs",
		UnitCost: decimal.NewFromInt(10), UnitWeight: decimal.NewFromInt(2),
	}
	sheet := &entity.Part{
		PartNumber: "100-0002", Name: "Worktop Sheet", CategoryID: category.ID,
		Status: entity.PartStatusActive, Unit: "pcs",
		UnitCost: decimal.NewFromInt(20), UnitWeight: decimal.NewFromInt(5),
	}
	pegboard48 := &entity.Part{
		PartNumber: "100-0003", Name: "Pegboard 48in", CategoryID: category.ID,
		Status: entity.PartStatusActive, Unit: "pcs",
		UnitCost: decimal.NewFromInt(30), UnitWeight: decimal.NewFromInt(6),
		FeatureKey: "pegboard_size", FeatureValue: "48",
	}
	for _, p := range []*entity.Part{leg, sheet, pegboard48} {
		require.NoError(t, repos.Catalog.CreatePart(ctx, nil, p))
	}

	assembly := &entity.Assembly{
		Code: "SINK-2B", Name: "Two Basin Sink Station", CategoryID: category.ID,
		Status: entity.AssemblyStatusActive,
	}
	require.NoError(t, repos.Catalog.CreateAssembly(ctx, assembly))

	components := []*entity.AssemblyComponent{
		{
			AssemblyID: assembly.ID, ComponentID: leg.ID,
			ComponentType: entity.ComponentTypePart, Sequence: 1,
			BaseQuantity: decimal.NewFromInt(4), WasteFactor: decimal.Zero,
		},
		{
			AssemblyID: assembly.ID, ComponentID: sheet.ID,
			ComponentType: entity.ComponentTypePart, Sequence: 2,
			BaseQuantity: decimal.NewFromInt(2), WasteFactor: decimal.NewFromFloat(0.25),
		},
	}
	for _, c := range components {
		require.NoError(t, repos.Catalog.CreateComponent(ctx, c))
	}

	rules := []*entity.ConfigurationRule{
		{
			Name: "basin_count_range", Kind: entity.RuleKindValidation,
			Priority: 10, IsBlocking: true,
			Params:  entity.JSONB{"field": "basin_count", "min": float64(1), "max": float64(3), "required": true},
			Message: "basin count must be between 1 and 3",
			Status:  entity.RuleStatusActive,
		},
		{
			Name: "pegboard_selection", Kind: entity.RuleKindComponentSelection,
			Priority: 50, IsBlocking: false,
			Params: entity.JSONB{
				"field": "pegboard_size", "feature_key": "pegboard_size",
				"allow_custom": true, "quantity": float64(1), "unit": "pcs",
			},
			Status: entity.RuleStatusActive,
		},
	}
	for _, r := range rules {
		require.NoError(t, repos.Rule.Create(ctx, r))
	}

	require.NoError(t, repos.Sequence.Ensure(ctx, &entity.NumberSequence{
		Series: "700", Prefix: "700", NextValue: 1000,
	}))

	actor := Actor{ID: "u-sales", Name: "Sales User", Roles: []string{"sales"}}
	order, err := services.Order.CreateOrder(ctx, CreateOrderRequest{CustomerName: "Acme Kitchens"}, actor)
	require.NoError(t, err)
	item, err := services.Order.AddItem(ctx, order.ID, AddItemRequest{
		AssemblyID: assembly.ID,
		Selections: selections,
	}, actor)
	require.NoError(t, err)

	return &bomFixture{
		db: db, repos: repos, services: services,
		assembly: assembly, order: order, item: item, actor: actor,
	}
}

func TestGenerateBOMWasteArithmetic(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count": float64(2),
		"sink_length": float64(48),
	})
	ctx := context.Background()

	result, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.TotalParts)
	assert.Equal(t, 0, result.CustomParts)
	assert.Empty(t, result.SupersededBOMID)

	bom, err := f.services.BOM.Get(ctx, result.BOMID)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusActive, bom.Status)
	assert.Equal(t, 1, bom.Version)
	require.Len(t, bom.Items, 2)

	// 腿：4 × (1+0) = 4，成本 4×10 = 40
	legLine := bom.Items[0]
	assert.True(t, legLine.AdjustedQuantity.Equal(decimal.NewFromInt(4)))
	assert.True(t, legLine.ExtendedCost.Equal(decimal.NewFromInt(40)))

	// 台面板：2 × (1+0.25) = 2.5，成本 2.5×20 = 50
	sheetLine := bom.Items[1]
	assert.True(t, sheetLine.AdjustedQuantity.Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, sheetLine.ExtendedCost.Equal(decimal.NewFromInt(50)))

	assert.True(t, result.TotalCost.Equal(decimal.NewFromInt(90)))
	// 重量：4×2 + 2.5×5 = 20.5
	assert.True(t, result.TotalWeight.Equal(decimal.NewFromFloat(20.5)))

	// 订单行指向新Active BOM
	item, err := f.repos.Order.FindItemByID(ctx, f.item.ID)
	require.NoError(t, err)
	assert.Equal(t, result.BOMID, item.ActiveBOMID)
}

func TestGenerateBOMCustomPartMint(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count":   float64(2),
		"pegboard_size": float64(53),
	})
	ctx := context.Background()

	result, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 3, result.TotalParts)
	assert.Equal(t, 1, result.CustomParts)

	// 定制件已注册为一等目录零件，编号来自700系列
	part, err := f.repos.Catalog.FindPartByFeature(ctx, nil, "pegboard_size", "53")
	require.NoError(t, err)
	assert.Equal(t, "700-1000", part.PartNumber)
	assert.True(t, part.IsCustom)

	bom, err := f.services.BOM.Get(ctx, result.BOMID)
	require.NoError(t, err)
	custom := bom.Items[len(bom.Items)-1]
	assert.True(t, custom.IsCustom)
	assert.Equal(t, part.ID, custom.ComponentID)
}

func TestGenerateBOMCustomPartIdempotent(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count":   float64(2),
		"pegboard_size": float64(53),
	})
	ctx := context.Background()

	first, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	require.True(t, first.Success)

	second, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	require.True(t, second.Success)

	// 重复生成不会再铸新号：定制件只有一个
	customParts, err := f.repos.Catalog.ListParts(ctx, "", true)
	require.NoError(t, err)
	require.Len(t, customParts, 1)
	assert.Equal(t, "700-1000", customParts[0].PartNumber)

	// 旧BOM被替代，新BOM成为唯一Active
	assert.Equal(t, first.BOMID, second.SupersededBOMID)
	assert.Equal(t, 2, f.countBOMs(t, entity.BOMStatusSuperseded)+f.countBOMs(t, entity.BOMStatusActive))
	assert.Equal(t, 1, f.countBOMs(t, entity.BOMStatusActive))

	old, err := f.services.BOM.Get(ctx, first.BOMID)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusSuperseded, old.Status)
	assert.NotNil(t, old.SupersededAt)
}

func TestGenerateBOMStandardFeatureMatch(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count":   float64(2),
		"pegboard_size": float64(48),
	})
	ctx := context.Background()

	result, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	require.True(t, result.Success)
	assert.Equal(t, 3, result.TotalParts)
	// 48寸挂板是标准件，不触发定制合成
	assert.Equal(t, 0, result.CustomParts)

	customParts, err := f.repos.Catalog.ListParts(ctx, "", true)
	require.NoError(t, err)
	assert.Empty(t, customParts)
}

func TestGenerateBOMInvalidConfiguration(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count": float64(4),
	})
	ctx := context.Background()

	result, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.BOMID)
	require.NotNil(t, result.Validation)
	require.Len(t, result.Validation.Errors, 1)
	assert.Equal(t, "basin_count_range", result.Validation.Errors[0].Rule)

	// 校验标记落库，但没有任何BOM产生
	config, err := f.services.Order.GetConfiguration(ctx, f.item.ConfigurationID)
	require.NoError(t, err)
	assert.False(t, config.IsValid)
	assert.NotNil(t, config.ValidatedAt)
	assert.Equal(t, 0, f.countBOMs(t, ""))
}

func TestGenerateBOMFrozenPhase(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count": float64(2),
	})
	ctx := context.Background()

	// 订单推进到不可变阶段
	require.NoError(t, f.db.Model(&entity.Order{}).
		Where("id = ?", f.order.ID).
		Update("current_phase", entity.PhaseApproval).Error)

	_, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.ErrorIs(t, err, ErrConflict)

	// 非管理员带override仍被拒绝
	_, err = f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, true)
	require.ErrorIs(t, err, ErrAuthorization)

	// 管理员override成功，并留下独立审计记录
	admin := Actor{ID: "u-admin", Name: "Admin", Roles: []string{RoleAdmin}}
	result, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, admin, true)
	require.NoError(t, err)
	require.True(t, result.Success)

	events, err := f.repos.Audit.ListByEntity(ctx, "configuration", f.item.ConfigurationID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.AuditActionAdminOverride, events[0].Action)
}

func TestGenerateBOMAuditTrail(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{
		"basin_count": float64(2),
	})
	ctx := context.Background()

	result, err := f.services.BOM.Generate(ctx, f.item.ConfigurationID, f.actor, false)
	require.NoError(t, err)
	require.True(t, result.Success)

	events, err := f.repos.Audit.ListByEntity(ctx, "bom", result.BOMID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, entity.AuditActionBOMGenerated, events[0].Action)
}

func TestGenerateBOMMissingConfiguration(t *testing.T) {
	f := setupBOMFixture(t, entity.JSONB{"basin_count": float64(2)})

	_, err := f.services.BOM.Generate(context.Background(), "no-such-config", f.actor, false)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestExtendLine(t *testing.T) {
	adjusted, extCost, extWeight := extendLine(
		decimal.NewFromInt(2),          // base
		decimal.NewFromFloat(0.25),     // waste
		decimal.NewFromFloat(20),       // unit cost
		decimal.NewFromFloat(5),        // unit weight
	)
	assert.True(t, adjusted.Equal(decimal.NewFromFloat(2.5)))
	assert.True(t, extCost.Equal(decimal.NewFromInt(50)))
	assert.True(t, extWeight.Equal(decimal.NewFromFloat(12.5)))
}

func TestExtendLineZeroWaste(t *testing.T) {
	adjusted, extCost, _ := extendLine(
		decimal.NewFromInt(4), decimal.Zero,
		decimal.NewFromInt(10), decimal.Zero,
	)
	assert.True(t, adjusted.Equal(decimal.NewFromInt(4)))
	assert.True(t, extCost.Equal(decimal.NewFromInt(40)))
}

func TestSelectionValue(t *testing.T) {
	selections := entity.JSONB{
		"pegboard_size": float64(53),
		"has_lifter":    true,
		"finish":        "none",
	}

	// 数值真值触发并返回原值
	v, triggered := selectionValue(entity.JSONB{"field": "pegboard_size"}, selections)
	assert.True(t, triggered)
	assert.Equal(t, float64(53), v)

	// equals存在时要求精确匹配
	_, triggered = selectionValue(entity.JSONB{"field": "pegboard_size", "equals": float64(48)}, selections)
	assert.False(t, triggered)
	_, triggered = selectionValue(entity.JSONB{"field": "pegboard_size", "equals": float64(53)}, selections)
	assert.True(t, triggered)

	// 缺失字段不触发
	_, triggered = selectionValue(entity.JSONB{"field": "missing"}, selections)
	assert.False(t, triggered)

	// "none"按假值处理
	_, triggered = selectionValue(entity.JSONB{"field": "finish"}, selections)
	assert.False(t, triggered)

	_, triggered = selectionValue(entity.JSONB{"field": "has_lifter"}, selections)
	assert.True(t, triggered)
}

func TestFormatSelectionValue(t *testing.T) {
	assert.Equal(t, "53", formatSelectionValue(float64(53)))
	assert.Equal(t, "53.5", formatSelectionValue(float64(53.5)))
	assert.Equal(t, "brushed", formatSelectionValue("brushed"))
	assert.Equal(t, "true", formatSelectionValue(true))
}

func (f *bomFixture) countBOMs(t *testing.T, status string) int {
	t.Helper()
	var count int64
	query := f.db.Model(&entity.BOMHeader{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	require.NoError(t, query.Count(&count).Error)
	return int(count)
}
