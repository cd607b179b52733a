package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"vendor_audit_backend/internal/connectivity"
	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/util"
)

type HealthController struct {
	Store   docstore.Store
	Monitor *connectivity.Monitor
}

func NewHealthController(store docstore.Store, monitor *connectivity.Monitor) *HealthController {
	return &HealthController{Store: store, Monitor: monitor}
}

// @Summary 健康检查
// @Description 检查服务和文档存储状态
// @Tags 系统
// @Produce json
// @Success 200 {object} util.Response
// @Router /health [get]
func (c *HealthController) HealthCheck(ctx *gin.Context) {
	store := "up"
	if err := c.Store.Ping(ctx.Request.Context()); err != nil {
		store = "down"
	}

	online := c.Monitor == nil || c.Monitor.Online()

	if store == "down" && !online {
		util.Error(ctx, http.StatusServiceUnavailable, "Document store unavailable")
		return
	}

	util.Success(ctx, gin.H{
		"status": "ok",
		"components": gin.H{
			"docstore": store,
			"online":   online,
		},
	})
}
