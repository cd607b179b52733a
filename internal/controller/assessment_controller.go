package controller

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"

	"vendor_audit_backend/internal/lifecycle"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/service"
	"vendor_audit_backend/internal/util"
	"vendor_audit_backend/pkg/circuitbreaker"
)

type AssessmentController struct {
	AssessmentService *service.AssessmentService
}

func NewAssessmentController(assessmentService *service.AssessmentService) *AssessmentController {
	return &AssessmentController{AssessmentService: assessmentService}
}

// respondError 评估域错误到 HTTP 状态码的统一映射
func respondError(ctx *gin.Context, err error) {
	var missing *lifecycle.MissingMetadataError
	switch {
	case util.IsValidation(err):
		util.BadRequest(ctx, err.Error())
	case errors.As(err, &missing):
		util.BadRequest(ctx, missing.Error())
	case errors.Is(err, lifecycle.ErrConfirmIncomplete):
		util.BadRequest(ctx, "确认前需要填写分数和说明")
	case errors.Is(err, lifecycle.ErrNotCompleted):
		util.Conflict(ctx, "评估尚未完成，不能提交")
	case errors.Is(err, lifecycle.ErrLocked):
		util.Conflict(ctx, "评估已提交，禁止修改")
	case errors.Is(err, lifecycle.ErrIllegalTransition):
		util.Conflict(ctx, err.Error())
	case errors.Is(err, util.ErrAssessmentNotFound), errors.Is(err, util.ErrFormNotFound):
		util.NotFound(ctx)
	case errors.Is(err, circuitbreaker.ErrCircuitOpen):
		util.ServiceUnavailable(ctx, "存储暂时不可用，请稍后重试")
	default:
		util.LogInternalError(ctx, err)
	}
}

// Start godoc
// @Summary 新建评估
// @Description 为指定供应商按检查表新建一份评估，旧的活跃评估自动废止
// @Tags 评估
// @Accept  json
// @Produce  json
// @Param   body body service.StartInput true "评估初始信息"
// @Success 201 {object} util.Response{data=model.Assessment} "创建成功"
// @Failure 400 {object} util.Response "请求参数错误"
// @Failure 404 {object} util.Response "检查表不存在"
// @Failure 503 {object} util.Response "存储不可用"
// @Router /api/assessments [post]
func (c *AssessmentController) Start(ctx *gin.Context) {
	var in service.StartInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	a, err := c.AssessmentService.Start(ctx.Request.Context(), in)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, a)
}

// Get godoc
// @Summary 查询单份评估
// @Description 优先返回编辑会话里的最新内存版
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Failure 404 {object} util.Response "评估不存在"
// @Router /api/assessments/{id} [get]
func (c *AssessmentController) Get(ctx *gin.Context) {
	a, err := c.AssessmentService.Get(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// List godoc
// @Summary 评估列表
// @Tags 评估
// @Produce  json
// @Param   vendorCode query string false "供应商编号"
// @Param   status query string false "评估状态"
// @Param   limit query int false "返回条数上限"
// @Success 200 {object} util.Response{data=[]model.Assessment} "成功"
// @Router /api/assessments [get]
func (c *AssessmentController) List(ctx *gin.Context) {
	limit, _ := strconv.Atoi(ctx.DefaultQuery("limit", "0"))
	list, err := c.AssessmentService.List(
		ctx.Request.Context(),
		ctx.Query("vendorCode"),
		model.AssessmentStatus(ctx.Query("status")),
		limit,
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// UpdateAnswer godoc
// @Summary 写入检查项作答
// @Description 更新单项作答并实时重算分数与状态，落盘走防抖自动保存
// @Tags 评估
// @Accept  json
// @Produce  json
// @Param   id path string true "评估ID"
// @Param   ckItem path string true "检查项 key"
// @Param   body body service.AnswerInput true "作答内容"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Failure 400 {object} util.Response "分数不合法"
// @Failure 409 {object} util.Response "评估已锁定"
// @Router /api/assessments/{id}/answers/{ckItem} [put]
func (c *AssessmentController) UpdateAnswer(ctx *gin.Context) {
	var in service.AnswerInput
	if err := ctx.ShouldBindJSON(&in); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	in.CkItem = ctx.Param("ckItem")

	a, err := c.AssessmentService.UpdateAnswer(ctx.Request.Context(), ctx.Param("id"), in)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// ConfirmAnswer godoc
// @Summary 确认检查项
// @Description 把单题标记为已确认，要求分数和说明齐全
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Param   ckItem path string true "检查项 key"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Failure 400 {object} util.Response "分数或说明缺失"
// @Router /api/assessments/{id}/answers/{ckItem}/confirm [post]
func (c *AssessmentController) ConfirmAnswer(ctx *gin.Context) {
	a, err := c.AssessmentService.ConfirmAnswer(ctx.Request.Context(), ctx.Param("id"), ctx.Param("ckItem"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// Flush godoc
// @Summary 立即保存
// @Description 取消防抖等待，把未落盘的编辑立刻写出
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Router /api/assessments/{id}/flush [post]
func (c *AssessmentController) Flush(ctx *gin.Context) {
	a, err := c.AssessmentService.Flush(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// Submit godoc
// @Summary 提交评估
// @Description 完成态 + 元数据齐全才允许提交；离线时以高优先级排队
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Success 200 {object} util.Response{data=repository.SubmitResult} "成功"
// @Failure 400 {object} util.Response "元数据缺失"
// @Failure 409 {object} util.Response "状态不允许提交"
// @Router /api/assessments/{id}/submit [post]
func (c *AssessmentController) Submit(ctx *gin.Context) {
	result, err := c.AssessmentService.Submit(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, result)
}

// Approve godoc
// @Summary 审批通过
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Failure 409 {object} util.Response "状态不允许审批"
// @Router /api/assessments/{id}/approve [post]
func (c *AssessmentController) Approve(ctx *gin.Context) {
	a, err := c.AssessmentService.Approve(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// Reject godoc
// @Summary 驳回评估
// @Description 驳回后评估回到可编辑状态
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Success 200 {object} util.Response{data=model.Assessment} "成功"
// @Router /api/assessments/{id}/reject [post]
func (c *AssessmentController) Reject(ctx *gin.Context) {
	a, err := c.AssessmentService.Reject(ctx.Request.Context(), ctx.Param("id"))
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, a)
}

// Delete godoc
// @Summary 删除评估
// @Tags 评估
// @Produce  json
// @Param   id path string true "评估ID"
// @Success 200 {object} util.Response "成功"
// @Router /api/assessments/{id} [delete]
func (c *AssessmentController) Delete(ctx *gin.Context) {
	if err := c.AssessmentService.Delete(ctx.Request.Context(), ctx.Param("id")); err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
