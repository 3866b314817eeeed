package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/steelfab/oms/internal/model/entity"
	"github.com/steelfab/oms/internal/service"
)

// CatalogHandler 目录处理器
type CatalogHandler struct {
	svc *service.CatalogService
}

// NewCatalogHandler 创建目录处理器
func NewCatalogHandler(svc *service.CatalogService) *CatalogHandler {
	return &CatalogHandler{svc: svc}
}

// ListCategories 类别列表
func (h *CatalogHandler) ListCategories(c *gin.Context) {
	categories, err := h.svc.ListCategories(c.Request.Context())
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, categories)
}

// CreateCategory 创建类别
func (h *CatalogHandler) CreateCategory(c *gin.Context) {
	var category entity.Category
	if err := c.ShouldBindJSON(&category); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CreateCategory(c.Request.Context(), &category); err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, category)
}

// ListAssemblies 装配体列表
func (h *CatalogHandler) ListAssemblies(c *gin.Context) {
	assemblies, err := h.svc.ListAssemblies(c.Request.Context(), c.Query("category_id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, assemblies)
}

// GetAssembly 装配体详情
func (h *CatalogHandler) GetAssembly(c *gin.Context) {
	assembly, err := h.svc.GetAssembly(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, assembly)
}

// CreateAssembly 创建装配体
func (h *CatalogHandler) CreateAssembly(c *gin.Context) {
	var assembly entity.Assembly
	if err := c.ShouldBindJSON(&assembly); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CreateAssembly(c.Request.Context(), &assembly); err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, assembly)
}

// AddComponent 给装配体添加组件边
func (h *CatalogHandler) AddComponent(c *gin.Context) {
	var component entity.AssemblyComponent
	if err := c.ShouldBindJSON(&component); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	component.AssemblyID = c.Param("id")
	if err := h.svc.AddComponent(c.Request.Context(), &component); err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, component)
}

// Expand 展开装配体组件（单层，按当前时间过滤生效窗口）
func (h *CatalogHandler) Expand(c *gin.Context) {
	components, err := h.svc.Expand(c.Request.Context(), nil, c.Param("id"), time.Now())
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, components)
}

// ListParts 零件列表
func (h *CatalogHandler) ListParts(c *gin.Context) {
	parts, err := h.svc.ListParts(c.Request.Context(),
		c.Query("category_id"), c.Query("custom") == "true")
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, parts)
}

// CreatePart 创建零件
func (h *CatalogHandler) CreatePart(c *gin.Context) {
	var part entity.Part
	if err := c.ShouldBindJSON(&part); err != nil {
		BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if err := h.svc.CreatePart(c.Request.Context(), &part); err != nil {
		HandleServiceError(c, err)
		return
	}
	Created(c, part)
}
