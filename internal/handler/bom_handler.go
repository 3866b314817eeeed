package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/steelfab/oms/internal/service"
)

// BOMHandler BOM处理器
type BOMHandler struct {
	svc *service.BOMService
}

// NewBOMHandler 创建BOM处理器
func NewBOMHandler(svc *service.BOMService) *BOMHandler {
	return &BOMHandler{svc: svc}
}

// Generate 为配置生成BOM
//
// 配置未通过校验时返回200，携带success=false和违规明细；
// 订单处于不可变阶段时返回409，除非管理员带override=true。
func (h *BOMHandler) Generate(c *gin.Context) {
	configurationID := c.Param("id")
	if configurationID == "" {
		BadRequest(c, "Configuration ID is required")
		return
	}
	override := c.Query("override") == "true"

	result, err := h.svc.Generate(c.Request.Context(), configurationID, GetActor(c), override)
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	if result.Success {
		Created(c, result)
		return
	}
	Success(c, result)
}

// Get BOM详情
func (h *BOMHandler) Get(c *gin.Context) {
	bom, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	Success(c, bom)
}

// ListVersions 配置的BOM版本列表
func (h *BOMHandler) ListVersions(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("id"))
	if err != nil {
		InternalError(c, err.Error())
		return
	}
	Success(c, versions)
}

// Export 导出BOM为xlsx
func (h *BOMHandler) Export(c *gin.Context) {
	buf, filename, err := h.svc.ExportExcel(c.Request.Context(), c.Param("id"))
	if err != nil {
		HandleServiceError(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
