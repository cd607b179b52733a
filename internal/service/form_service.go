package service

import (
	"context"

	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/repository"
	"vendor_audit_backend/internal/util"
)

// FormService 检查表定义的读取和维护
type FormService struct {
	FormRepo *repository.FormRepository
}

func NewFormService(formRepo *repository.FormRepository) *FormService {
	return &FormService{FormRepo: formRepo}
}

func (s *FormService) Get(ctx context.Context, formCode string, version int) (*model.FormDefinition, error) {
	return s.FormRepo.FindByCode(ctx, formCode, version)
}

func (s *FormService) List(ctx context.Context) ([]*model.FormDefinition, error) {
	return s.FormRepo.List(ctx)
}

// Upsert 管理端维护检查表，校验后写入
func (s *FormService) Upsert(ctx context.Context, form *model.FormDefinition) error {
	if form.FormCode == "" {
		return util.NewValidationError("formCode", "检查表编号不能为空")
	}
	if form.Version <= 0 {
		return util.NewValidationError("version", "版本号必须大于 0")
	}
	if len(form.Fields) == 0 {
		return util.NewValidationError("fields", "检查表至少包含一个检查项")
	}
	seen := make(map[string]bool, len(form.Fields))
	for _, field := range form.Fields {
		if field.CkItem == "" {
			return util.NewValidationError("fields", "检查项 key 不能为空")
		}
		if seen[field.CkItem] {
			return util.NewValidationError("fields", "检查项 key 重复: "+field.CkItem)
		}
		seen[field.CkItem] = true
		if field.FScore < 0 {
			return util.NewValidationError("fields", "加权系数不能为负: "+field.CkItem)
		}
	}
	return s.FormRepo.Upsert(ctx, form)
}
