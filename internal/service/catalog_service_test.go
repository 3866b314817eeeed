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

func TestDetectCycleAcyclicGraph(t *testing.T) {
	adjacency := map[string][]string{
		"workstation": {"frame", "sink"},
		"frame":       {"leg"},
		"sink":        {"basin"},
	}
	assert.Nil(t, detectCycle(adjacency, "workstation"))
}

func TestDetectCycleDirectCycle(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"b"},
		"b": {"a"},
	}
	cycle := detectCycle(adjacency, "a")
	require.NotNil(t, cycle)
	assert.Equal(t, []string{"a", "b", "a"}, cycle)
}

func TestDetectCycleSelfReference(t *testing.T) {
	adjacency := map[string][]string{
		"a": {"a"},
	}
	cycle := detectCycle(adjacency, "a")
	require.NotNil(t, cycle)
	assert.Equal(t, []string{"a", "a"}, cycle)
}

func TestDetectCycleDeepCycle(t *testing.T) {
	adjacency := map[string][]string{
		"root": {"x"},
		"x":    {"y"},
		"y":    {"z"},
		"z":    {"x"},
	}
	cycle := detectCycle(adjacency, "root")
	require.NotNil(t, cycle)
	assert.Equal(t, []string{"x", "y", "z", "x"}, cycle)
}

func TestDetectCycleSharedComponentNotCycle(t *testing.T) {
	// 菱形依赖：两条路径到达同一节点不是环
	adjacency := map[string][]string{
		"root":  {"left", "right"},
		"left":  {"shared"},
		"right": {"shared"},
	}
	assert.Nil(t, detectCycle(adjacency, "root"))
}

func TestDetectCycleIgnoresDisconnectedCycle(t *testing.T) {
	// root不可达的环不影响root的展开
	adjacency := map[string][]string{
		"root": {"leaf"},
		"m":    {"n"},
		"n":    {"m"},
	}
	assert.Nil(t, detectCycle(adjacency, "root"))
}

func TestCatalogReadsSeeTransactionSnapshot(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	ctx := context.Background()

	category := &entity.Category{Code: "SINK", Name: "Stainless Sinks"}
	require.NoError(t, repos.Catalog.CreateCategory(ctx, category))

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		part := &entity.Part{
			PartNumber: "100-0009", Name: "Drain Fitting", CategoryID: category.ID,
			Status: entity.PartStatusActive, Unit: "pcs",
		}
		if err := repos.Catalog.CreatePart(ctx, tx, part); err != nil {
			return err
		}

		// 事务内通过tx读到自己的未提交写
		got, err := repos.Catalog.FindPartByID(ctx, tx, part.ID)
		require.NoError(t, err)
		assert.Equal(t, "100-0009", got.PartNumber)

		// 默认连接看不到未提交行
		_, err = repos.Catalog.FindPartByID(ctx, nil, part.ID)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	}))
}

func TestUnitCost(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	svc := NewCatalogService(repos.Catalog, zap.NewNop())
	ctx := context.Background()

	category := &entity.Category{Code: "SINK", Name: "Stainless Sinks"}
	require.NoError(t, repos.Catalog.CreateCategory(ctx, category))

	part := &entity.Part{
		PartNumber: "100-0001", Name: "Leg 34in", CategoryID: category.ID,
		Status: entity.PartStatusActive, Unit: "pcs",
		UnitCost: decimal.NewFromInt(10), UnitWeight: decimal.NewFromInt(2),
	}
	require.NoError(t, repos.Catalog.CreatePart(ctx, nil, part))

	assembly := &entity.Assembly{
		Code: "SINK-2B", Name: "Two Basin Sink Station", CategoryID: category.ID,
		Status:       entity.AssemblyStatusActive,
		StandardCost: decimal.NewFromInt(250), StandardWeight: decimal.NewFromInt(80),
	}
	require.NoError(t, repos.Catalog.CreateAssembly(ctx, assembly))

	cost, weight, err := svc.UnitCost(ctx, nil, part.ID, entity.ComponentTypePart)
	require.NoError(t, err)
	assert.True(t, cost.Equal(decimal.NewFromInt(10)))
	assert.True(t, weight.Equal(decimal.NewFromInt(2)))

	cost, weight, err = svc.UnitCost(ctx, nil, assembly.ID, entity.ComponentTypeAssembly)
	require.NoError(t, err)
	assert.True(t, cost.Equal(decimal.NewFromInt(250)))
	assert.True(t, weight.Equal(decimal.NewFromInt(80)))

	_, _, err = svc.UnitCost(ctx, nil, "missing", entity.ComponentTypePart)
	assert.ErrorIs(t, err, ErrNotFound)

	_, _, err = svc.UnitCost(ctx, nil, part.ID, "WIDGET")
	assert.ErrorIs(t, err, ErrDataIntegrity)
}
