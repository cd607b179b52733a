package controller

import (
	"github.com/gin-gonic/gin"

	"vendor_audit_backend/internal/service"
	"vendor_audit_backend/internal/util"
)

type AttachmentController struct {
	AttachmentService *service.AttachmentService
}

func NewAttachmentController(attachmentService *service.AttachmentService) *AttachmentController {
	return &AttachmentController{AttachmentService: attachmentService}
}

// Upload godoc
// @Summary 上传检查项附件
// @Description 附件本体进对象存储，作答里只记录描述符
// @Tags 附件
// @Accept  multipart/form-data
// @Produce  json
// @Param   id path string true "评估ID"
// @Param   ckItem path string true "检查项 key"
// @Param   file formData file true "附件文件"
// @Success 201 {object} util.Response{data=model.AttachmentFile} "上传成功"
// @Failure 400 {object} util.Response "文件类型或大小不合法"
// @Failure 409 {object} util.Response "评估已锁定"
// @Router /api/assessments/{id}/answers/{ckItem}/files [post]
func (c *AttachmentController) Upload(ctx *gin.Context) {
	header, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "缺少 file 字段: "+err.Error())
		return
	}

	src, err := header.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = util.MimeOctetStream
	}

	file, err := c.AttachmentService.Attach(
		ctx.Request.Context(),
		ctx.Param("id"),
		ctx.Param("ckItem"),
		header.Filename,
		src,
		header.Size,
		contentType,
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Created(ctx, file)
}

// Delete godoc
// @Summary 删除检查项附件
// @Tags 附件
// @Produce  json
// @Param   id path string true "评估ID"
// @Param   ckItem path string true "检查项 key"
// @Param   fileId path string true "附件ID"
// @Success 200 {object} util.Response "删除成功"
// @Failure 404 {object} util.Response "附件不存在"
// @Router /api/assessments/{id}/answers/{ckItem}/files/{fileId} [delete]
func (c *AttachmentController) Delete(ctx *gin.Context) {
	err := c.AttachmentService.Detach(
		ctx.Request.Context(),
		ctx.Param("id"),
		ctx.Param("ckItem"),
		ctx.Param("fileId"),
	)
	if err != nil {
		respondError(ctx, err)
		return
	}
	util.Success(ctx, nil)
}
