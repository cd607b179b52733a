package service

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/lifecycle"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/util"
)

// 单个附件上限 10MB，检查项照片和整改证明用不到更大的
const maxAttachmentSize = 10 << 20

// AttachmentService 把证据文件挂到检查项作答上。
// 文件本体进对象存储，评估文档里只存描述符。
type AttachmentService struct {
	Storage     *StorageService
	Assessments *AssessmentService
	Log         *zap.Logger
}

func NewAttachmentService(storage *StorageService, assessments *AssessmentService, log *zap.Logger) *AttachmentService {
	return &AttachmentService{Storage: storage, Assessments: assessments, Log: log}
}

func allowedMime(contentType string) bool {
	if strings.HasPrefix(contentType, util.MimeImage) {
		return true
	}
	return contentType == util.MimePDF
}

func objectKey(assessmentID, ckItem, fileID, name string) string {
	ext := filepath.Ext(name)
	return fmt.Sprintf("attachments/%s/%s/%s%s", assessmentID, ckItem, fileID, ext)
}

// Attach 上传附件并写入作答的文件列表
func (s *AttachmentService) Attach(ctx context.Context, assessmentID, ckItem, name string, reader io.Reader, size int64, contentType string) (*model.AttachmentFile, error) {
	if size > maxAttachmentSize {
		return nil, util.NewValidationError("file", fmt.Sprintf("附件超过大小上限 %dMB", maxAttachmentSize>>20))
	}
	if !allowedMime(contentType) {
		return nil, util.NewValidationError("file", "只接受图片或 PDF 附件")
	}

	sess, err := s.Assessments.session(ctx, assessmentID)
	if err != nil {
		return nil, err
	}

	s.Assessments.mu.Lock()
	a := sess.current
	if err := lifecycle.EnsureEditable(a); err != nil {
		s.Assessments.mu.Unlock()
		return nil, err
	}
	ans := a.AnswerFor(ckItem)
	if ans == nil {
		s.Assessments.mu.Unlock()
		return nil, util.NewValidationError("ckItem", "检查项不存在: "+ckItem)
	}
	s.Assessments.mu.Unlock()

	file := &model.AttachmentFile{
		ID:   uuid.New().String(),
		Name: name,
		Size: size,
		Mime: contentType,
	}

	// 对象存储不在防抖路径上，上传失败直接报给调用方
	url, err := s.Storage.Upload(ctx, objectKey(assessmentID, ckItem, file.ID, name), reader, size, contentType)
	if err != nil {
		return nil, err
	}
	file.URL = url

	s.Assessments.mu.Lock()
	ans = sess.current.AnswerFor(ckItem)
	if ans == nil {
		s.Assessments.mu.Unlock()
		return nil, util.NewValidationError("ckItem", "检查项不存在: "+ckItem)
	}
	ans.Files = append(ans.Files, *file)
	sess.deb.Update(cloneAssessment(sess.current))
	s.Assessments.mu.Unlock()

	return file, nil
}

// Detach 删除附件：先摘描述符，再尽力清理对象存储
func (s *AttachmentService) Detach(ctx context.Context, assessmentID, ckItem, fileID string) error {
	sess, err := s.Assessments.session(ctx, assessmentID)
	if err != nil {
		return err
	}

	s.Assessments.mu.Lock()
	a := sess.current
	if err := lifecycle.EnsureEditable(a); err != nil {
		s.Assessments.mu.Unlock()
		return err
	}
	ans := a.AnswerFor(ckItem)
	if ans == nil {
		s.Assessments.mu.Unlock()
		return util.NewValidationError("ckItem", "检查项不存在: "+ckItem)
	}

	var removed *model.AttachmentFile
	for i := range ans.Files {
		if ans.Files[i].ID == fileID {
			f := ans.Files[i]
			removed = &f
			ans.Files = append(ans.Files[:i], ans.Files[i+1:]...)
			break
		}
	}
	if removed == nil {
		s.Assessments.mu.Unlock()
		return util.NewValidationError("fileId", "附件不存在: "+fileID)
	}
	sess.deb.Update(cloneAssessment(a))
	s.Assessments.mu.Unlock()

	if err := s.Storage.Delete(ctx, objectKey(assessmentID, ckItem, fileID, removed.Name)); err != nil && s.Log != nil {
		// 孤儿对象可以事后清理，不影响评估数据
		s.Log.Warn("attachment object cleanup failed",
			zap.String("assessmentId", assessmentID), zap.String("fileId", fileID), zap.Error(err))
	}
	return nil
}
