package handler

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/repository"
	"github.com/steelfab/oms/internal/service"
	"github.com/steelfab/oms/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type orderTestEnv struct {
	router   *gin.Engine
	repos    *repository.Repositories
	assembly *entity.Assembly
}

func setupOrderTest(t *testing.T) *orderTestEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	ctx := context.Background()

	repos := repository.NewRepositories(db)
	services := service.NewServices(db, repos, nil, "700", zap.NewNop())
	handlers := NewHandlers(services)

	// 目录种子：一个带腿的装配体 + 数量边界规则
	category := &entity.Category{Code: "SINK", Name: "Sinks"}
	require.NoError(t, repos.Catalog.CreateCategory(ctx, category))
	leg := &entity.Part{
		PartNumber: "100-0001", Name: "Leg", CategoryID: category.ID,
		Status: entity.PartStatusActive, Unit: "pcs",
		UnitCost: decimal.NewFromInt(10),
	}
	require.NoError(t, repos.Catalog.CreatePart(ctx, nil, leg))
	assembly := &entity.Assembly{Code: "SINK-1B", Name: "Single Basin", CategoryID: category.ID, Status: entity.AssemblyStatusActive}
	require.NoError(t, repos.Catalog.CreateAssembly(ctx, assembly))
	require.NoError(t, repos.Catalog.CreateComponent(ctx, &entity.AssemblyComponent{
		AssemblyID: assembly.ID, ComponentID: leg.ID,
		ComponentType: entity.ComponentTypePart, Sequence: 1,
		BaseQuantity: decimal.NewFromInt(4),
	}))
	require.NoError(t, repos.Rule.Create(ctx, &entity.ConfigurationRule{
		Name: "basin_count_range", Kind: entity.RuleKindValidation,
		Priority: 10, IsBlocking: true,
		Params:  entity.JSONB{"field": "basin_count", "min": float64(1), "max": float64(3), "required": true},
		Message: "basin count must be between 1 and 3",
		Status:  entity.RuleStatusActive,
	}))
	require.NoError(t, repos.Sequence.Ensure(ctx, &entity.NumberSequence{
		Series: "700", Prefix: "700", NextValue: 1000,
	}))

	router := testutil.SetupRouter()
	api := testutil.AuthGroup(router, "/api/v1")
	api.POST("/orders", handlers.Order.Create)
	api.GET("/orders/:id", handlers.Order.Get)
	api.POST("/orders/:id/items", handlers.Order.AddItem)
	api.POST("/orders/:id/transition", handlers.Order.Transition)
	api.GET("/orders/:id/history", handlers.Order.History)
	api.POST("/configurations/:id/validate", handlers.Order.ValidateConfiguration)
	api.POST("/configurations/:id/bom", handlers.BOM.Generate)
	api.GET("/boms/:id", handlers.BOM.Get)

	return &orderTestEnv{router: router, repos: repos, assembly: assembly}
}

func TestOrderAPIRequiresAuth(t *testing.T) {
	env := setupOrderTest(t)

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"customer_name": "Acme"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestOrderConfigureToBOMFlow(t *testing.T) {
	env := setupOrderTest(t)
	token := testutil.GenerateTestToken("u-sales", "Sales", []string{"sales"})

	// 创建订单
	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"customer_name": "Acme Kitchens"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	order := testutil.ParseResponse(w)["data"].(map[string]interface{})
	orderID := order["id"].(string)
	assert.Equal(t, "DRAFT", order["current_phase"])
	assert.Contains(t, order["order_number"], "SO-")

	// 添加订单行（含选型）
	w = testutil.DoRequest(env.router, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/items", orderID),
		map[string]interface{}{
			"assembly_id": env.assembly.ID,
			"selections":  map[string]interface{}{"basin_count": 2},
		}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	item := testutil.ParseResponse(w)["data"].(map[string]interface{})
	configID := item["configuration_id"].(string)
	require.NotEmpty(t, configID)

	// 校验配置
	w = testutil.DoRequest(env.router, http.MethodPost,
		fmt.Sprintf("/api/v1/configurations/%s/validate", configID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	validation := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, true, validation["is_valid"])

	// 生成BOM
	w = testutil.DoRequest(env.router, http.MethodPost,
		fmt.Sprintf("/api/v1/configurations/%s/bom", configID), nil, token)
	require.Equal(t, http.StatusCreated, w.Code)
	bomResult := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, true, bomResult["success"])
	bomID := bomResult["bom_id"].(string)

	// 查询BOM
	w = testutil.DoRequest(env.router, http.MethodGet, "/api/v1/boms/"+bomID, nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	bom := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, "active", bom["status"])
}

func TestOrderInvalidConfigurationReturnsViolations(t *testing.T) {
	env := setupOrderTest(t)
	token := testutil.GenerateTestToken("u-sales", "Sales", []string{"sales"})

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"customer_name": "Acme"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(env.router, http.MethodPost, fmt.Sprintf("/api/v1/orders/%s/items", orderID),
		map[string]interface{}{
			"assembly_id": env.assembly.ID,
			"selections":  map[string]interface{}{"basin_count": 4},
		}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	configID := testutil.ParseResponse(w)["data"].(map[string]interface{})["configuration_id"].(string)

	// 生成请求成功返回，但结果标记失败并携带违规明细
	w = testutil.DoRequest(env.router, http.MethodPost,
		fmt.Sprintf("/api/v1/configurations/%s/bom", configID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	result := testutil.ParseResponse(w)["data"].(map[string]interface{})
	assert.Equal(t, false, result["success"])
	validation := result["validation"].(map[string]interface{})
	assert.Equal(t, false, validation["is_valid"])
	assert.Len(t, validation["errors"], 1)
}

func TestOrderTransitionEndpoint(t *testing.T) {
	env := setupOrderTest(t)
	token := testutil.GenerateTestToken("u-sales", "Sales", []string{"sales"})

	w := testutil.DoRequest(env.router, http.MethodPost, "/api/v1/orders",
		map[string]interface{}{"customer_name": "Acme"}, token)
	require.Equal(t, http.StatusCreated, w.Code)
	orderID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	// 合法转移
	w = testutil.DoRequest(env.router, http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%s/transition", orderID),
		map[string]interface{}{"target": "CONFIGURATION"}, token)
	require.Equal(t, http.StatusOK, w.Code)

	// 跳阶段被拒绝，409
	w = testutil.DoRequest(env.router, http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%s/transition", orderID),
		map[string]interface{}{"target": "PRODUCTION"}, token)
	assert.Equal(t, http.StatusConflict, w.Code)

	// 越权转移被拒绝，403
	w = testutil.DoRequest(env.router, http.MethodPost,
		fmt.Sprintf("/api/v1/orders/%s/transition", orderID),
		map[string]interface{}{"target": "APPROVAL"}, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 历史只有一次成功转移
	w = testutil.DoRequest(env.router, http.MethodGet,
		fmt.Sprintf("/api/v1/orders/%s/history", orderID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	history := testutil.ParseResponse(w)["data"].([]interface{})
	assert.Len(t, history, 1)
}
