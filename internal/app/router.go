package app

import (
	"vendor_audit_backend/docs"
	"vendor_audit_backend/internal/config"
	"vendor_audit_backend/internal/middleware"
	"vendor_audit_backend/internal/model"

	"vendor_audit_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		authGroup.GET("/me", c.auth.Me)

		// 检查表：读取对所有登录用户开放
		authGroup.GET("/forms", c.form.List)
		authGroup.GET("/forms/:formCode", c.form.Get)

		// 评估编辑：审核员和管理员
		assessments := authGroup.Group("/assessments")
		assessments.Use(middleware.RoleMiddleware(model.Auditor, model.Reviewer))
		{
			assessments.POST("", c.assessment.Start)
			assessments.GET("", c.assessment.List)
			assessments.GET("/:id", c.assessment.Get)
			assessments.PUT("/:id/answers/:ckItem", c.assessment.UpdateAnswer)
			assessments.POST("/:id/answers/:ckItem/confirm", c.assessment.ConfirmAnswer)
			assessments.POST("/:id/answers/:ckItem/files", c.attachment.Upload)
			assessments.DELETE("/:id/answers/:ckItem/files/:fileId", c.attachment.Delete)
			assessments.POST("/:id/flush", c.assessment.Flush)
			assessments.POST("/:id/submit", c.assessment.Submit)
			assessments.DELETE("/:id", c.assessment.Delete)
		}

		// 审批：评审角色
		review := authGroup.Group("/assessments")
		review.Use(middleware.RoleMiddleware(model.Reviewer))
		{
			review.POST("/:id/approve", c.assessment.Approve)
			review.POST("/:id/reject", c.assessment.Reject)
		}

		// 同步状态对所有登录用户可见
		syncGroup := authGroup.Group("/sync")
		{
			syncGroup.GET("/status", c.sync.Status)
			syncGroup.POST("/retry", c.sync.Retry)
		}
	}

	// 3. 管理端：检查表维护
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg), middleware.RoleMiddleware(model.Admin))
	{
		admin.PUT("/forms", c.form.Upsert)
	}
}
