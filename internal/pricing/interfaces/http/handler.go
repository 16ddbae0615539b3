package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/wyfcoding/fdpricer/health"
	"github.com/wyfcoding/fdpricer/internal/pricing/application"
	"github.com/wyfcoding/fdpricer/logging"
	"github.com/wyfcoding/fdpricer/response"
	"github.com/wyfcoding/fdpricer/xerrors"
)

// PricingHandler HTTP 处理器
// 负责处理与定价相关的 HTTP 请求
type PricingHandler struct {
	svc      *application.PricingService
	service  string
	checkers map[string]health.Checker
}

// NewPricingHandler 创建 HTTP 处理器实例, checkers 用于 /health。
func NewPricingHandler(svc *application.PricingService, service string, checkers map[string]health.Checker) *PricingHandler {
	return &PricingHandler{svc: svc, service: service, checkers: checkers}
}

// RegisterRoutes 注册路由
func (h *PricingHandler) RegisterRoutes(router gin.IRouter) {
	api := router.Group("/v1")
	{
		api.POST("/price", h.Price)
		api.POST("/price/batch", h.PriceBatch)
		api.POST("/surface", h.Surface)
		api.POST("/boundary", h.Boundary)
		api.GET("/reference", h.Reference)
	}
	router.GET("/health", h.Health)
}

// BatchRequest 批量定价请求
type BatchRequest struct {
	Items []application.PriceRequest `json:"items" binding:"required"`
}

// Price 单个合约定价
func (h *PricingHandler) Price(c *gin.Context) {
	var req application.PriceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := h.svc.Price(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "failed to price option", err)
		return
	}
	response.Success(c, res)
}

// PriceBatch 批量定价, 单条失败不影响整体响应。
func (h *PricingHandler) PriceBatch(c *gin.Context) {
	var req BatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	items, err := h.svc.PriceBatch(c.Request.Context(), req.Items)
	if err != nil {
		h.fail(c, "failed to price batch", err)
		return
	}
	response.Success(c, gin.H{"items": items})
}

// Surface 返回价格曲面
func (h *PricingHandler) Surface(c *gin.Context) {
	var req application.SurfaceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := h.svc.Surface(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "failed to build surface", err)
		return
	}
	response.Success(c, res)
}

// Boundary 返回美式自由边界
func (h *PricingHandler) Boundary(c *gin.Context) {
	var req application.BoundaryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := h.svc.Boundary(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "failed to extract boundary", err)
		return
	}
	response.Success(c, res)
}

// Reference 返回解析解与二叉树参考价
func (h *PricingHandler) Reference(c *gin.Context) {
	var req application.ReferenceRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.ErrorWithStatus(c, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	res, err := h.svc.Reference(c.Request.Context(), req)
	if err != nil {
		h.fail(c, "failed to compute reference prices", err)
		return
	}
	response.Success(c, res)
}

// Health 执行依赖检查, 任一失败时返回 503。
func (h *PricingHandler) Health(c *gin.Context) {
	rep := health.Run(c.Request.Context(), h.checkers, 2*time.Second)
	status := http.StatusOK
	if !rep.Healthy() {
		status = http.StatusServiceUnavailable
		logging.Warn(c.Request.Context(), "health check failed", "service", h.service, "failed", rep.Failed())
	}
	c.JSON(status, gin.H{
		"status":    rep.Status,
		"service":   h.service,
		"checks":    rep.Checks,
		"timestamp": rep.Timestamp,
	})
}

func (h *PricingHandler) fail(c *gin.Context, msg string, err error) {
	if e, ok := xerrors.FromError(err); !ok || e.HTTPStatus() >= http.StatusInternalServerError {
		logging.Error(c.Request.Context(), msg, "error", err)
	}
	response.Error(c, err)
}
