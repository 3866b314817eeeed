package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/service"
)

// OrderHandler 订单与配置处理器
type OrderHandler struct {
	orderSvc      *service.OrderService
	validationSvc *service.ValidationService
	lifecycleSvc  *service.LifecycleService
}

// NewOrderHandler 创建订单处理器
func NewOrderHandler(
	orderSvc *service.OrderService,
	validationSvc *service.ValidationService,
	lifecycleSvc *service.LifecycleService,
) *OrderHandler {
	return &OrderHandler{
		orderSvc:      orderSvc,
		validationSvc: validationSvc,
		lifecycleSvc:  lifecycleSvc,
	}
}

// Create 创建订单
func (h *OrderHandler) Create(c *gin.Context) {
	var req service.CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	order, err := h.orderSvc.CreateOrder(c.Request.Context(), req, GetActor(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, order)
}

// Get 订单详情
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.orderSvc.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, order)
}

// List 订单列表
func (h *OrderHandler) List(c *gin.Context) {
	page, pageSize := GetPagination(c)
	orders, total, err := h.orderSvc.ListOrders(c.Request.Context(), c.Query("phase"), page, pageSize)
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}
	Success(c, ListResponse{
		Items: orders,
		Pagination: &Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      int(total),
			TotalPages: totalPages,
		},
	})
}

// AddItem 添加订单行
func (h *OrderHandler) AddItem(c *gin.Context) {
	var req service.AddItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	item, err := h.orderSvc.AddItem(c.Request.Context(), c.Param("id"), req, GetActor(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, item)
}

// TransitionRequest 阶段转移请求
type TransitionRequest struct {
	Target string `json:"target" binding:"required"`
	Reason string `json:"reason"`
}

// Transition 执行阶段转移
func (h *OrderHandler) Transition(c *gin.Context) {
	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	result, err := h.lifecycleSvc.Transition(c.Request.Context(), c.Param("id"), req.Target, GetActor(c), req.Reason)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// History 阶段历史
func (h *OrderHandler) History(c *gin.Context) {
	history, err := h.lifecycleSvc.History(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, history)
}

// ProductionTasks 生产任务列表
func (h *OrderHandler) ProductionTasks(c *gin.Context) {
	tasks, err := h.lifecycleSvc.ProductionTasks(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, tasks)
}

// QCChecklist 质检清单
func (h *OrderHandler) QCChecklist(c *gin.Context) {
	items, err := h.lifecycleSvc.QCChecklist(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, items)
}

// GetConfiguration 配置详情
func (h *OrderHandler) GetConfiguration(c *gin.Context) {
	config, err := h.orderSvc.GetConfiguration(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, config)
}

// UpdateConfigurationRequest 更新配置选型请求
type UpdateConfigurationRequest struct {
	Selections entity.JSONB `json:"selections" binding:"required"`
}

// UpdateConfiguration 更新配置选型
func (h *OrderHandler) UpdateConfiguration(c *gin.Context) {
	var req UpdateConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	config, err := h.orderSvc.UpdateConfiguration(c.Request.Context(), c.Param("id"), req.Selections)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, config)
}

// ReviseConfiguration 派生配置新版本
func (h *OrderHandler) ReviseConfiguration(c *gin.Context) {
	var req UpdateConfigurationRequest
	// 选型可省略，省略时复制父版本
	_ = c.ShouldBindJSON(&req)
	config, err := h.orderSvc.ReviseConfiguration(c.Request.Context(), c.Param("id"), req.Selections, GetActor(c))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, config)
}

// ValidateConfiguration 校验配置（只读，不落库）
func (h *OrderHandler) ValidateConfiguration(c *gin.Context) {
	config, err := h.orderSvc.GetConfiguration(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	result, err := h.validationSvc.Validate(c.Request.Context(), config)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, result)
}

// ListConfigurationVersions 订单行的配置版本链
func (h *OrderHandler) ListConfigurationVersions(c *gin.Context) {
	versions, err := h.orderSvc.ListConfigurationVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, versions)
}

// ListRules 规则列表
func (h *OrderHandler) ListRules(c *gin.Context) {
	rules, err := h.validationSvc.ListRules(c.Request.Context(), c.Query("kind"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, rules)
}

// CreateRule 创建规则
func (h *OrderHandler) CreateRule(c *gin.Context) {
	var rule entity.ConfigurationRule
	if err := c.ShouldBindJSON(&rule); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.validationSvc.CreateRule(c.Request.Context(), &rule); err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, rule)
}

// UpdateRule 更新规则
func (h *OrderHandler) UpdateRule(c *gin.Context) {
	rule, err := h.validationSvc.GetRule(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if err := c.ShouldBindJSON(rule); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	rule.ID = c.Param("id")
	if err := h.validationSvc.UpdateRule(c.Request.Context(), rule); err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, rule)
}
