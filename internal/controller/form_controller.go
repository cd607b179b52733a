package controller

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/service"
	"vendor_audit_backend/internal/util"
)

type FormController struct {
	FormService *service.FormService
}

func NewFormController(formService *service.FormService) *FormController {
	return &FormController{FormService: formService}
}

// List godoc
// @Summary 检查表列表
// @Tags 检查表
// @Produce  json
// @Success 200 {object} util.Response{data=[]model.FormDefinition} "成功"
// @Router /api/forms [get]
func (c *FormController) List(ctx *gin.Context) {
	forms, err := c.FormService.List(ctx.Request.Context())
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, forms)
}

// Get godoc
// @Summary 查询检查表定义
// @Description 不带 version 时返回最新版本
// @Tags 检查表
// @Produce  json
// @Param   formCode path string true "检查表编号"
// @Param   version query int false "版本号"
// @Success 200 {object} util.Response{data=model.FormDefinition} "成功"
// @Failure 404 {object} util.Response "检查表不存在"
// @Router /api/forms/{formCode} [get]
func (c *FormController) Get(ctx *gin.Context) {
	version, _ := strconv.Atoi(ctx.DefaultQuery("version", "0"))
	form, err := c.FormService.Get(ctx.Request.Context(), ctx.Param("formCode"), version)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, form)
}

// Upsert godoc
// @Summary 维护检查表定义
// @Description 管理端写入或更新检查表，同编号同版本覆盖
// @Tags 检查表
// @Accept  json
// @Produce  json
// @Param   body body model.FormDefinition true "检查表定义"
// @Success 200 {object} util.Response "成功"
// @Failure 400 {object} util.Response "定义不合法"
// @Router /api/forms [put]
func (c *FormController) Upsert(ctx *gin.Context) {
	var form model.FormDefinition
	if err := ctx.ShouldBindJSON(&form); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	if err := c.FormService.Upsert(ctx.Request.Context(), &form); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
