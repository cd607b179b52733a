package controller

import (
	"github.com/gin-gonic/gin"

	"vendor_audit_backend/internal/service"
	"vendor_audit_backend/internal/util"
)

type SyncController struct {
	AssessmentService *service.AssessmentService
}

func NewSyncController(assessmentService *service.AssessmentService) *SyncController {
	return &SyncController{AssessmentService: assessmentService}
}

// Status godoc
// @Summary 同步状态
// @Description 离线队列深度、同步错误、熔断器计数和连通性
// @Tags 同步
// @Produce  json
// @Success 200 {object} util.Response{data=service.SyncState} "成功"
// @Router /api/sync/status [get]
func (c *SyncController) Status(ctx *gin.Context) {
	util.Success(ctx, c.AssessmentService.SyncStatus())
}

// Retry godoc
// @Summary 手动重试同步
// @Description 清零退避等待，立即尝试排空离线队列
// @Tags 同步
// @Produce  json
// @Success 200 {object} util.Response{data=service.SyncState} "成功"
// @Router /api/sync/retry [post]
func (c *SyncController) Retry(ctx *gin.Context) {
	c.AssessmentService.RetrySync()
	util.Success(ctx, c.AssessmentService.SyncStatus())
}
