package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"vendor_audit_backend/internal/model"
)

var (
	// ErrLocked 提交后和批准后禁止任何答案或元数据修改
	ErrLocked = errors.New("assessment is locked and cannot be modified")
	// ErrNotCompleted 只有 completed 状态才允许提交
	ErrNotCompleted = errors.New("assessment must be completed before submit")
	// ErrConfirmIncomplete 确认完成要求分数和说明均已填写
	ErrConfirmIncomplete = errors.New("cannot confirm answer without score and comment")
	// ErrIllegalTransition 非法状态迁移
	ErrIllegalTransition = errors.New("illegal status transition")
)

// MissingMetadataError 提交前必填元数据缺失
type MissingMetadataError struct {
	Fields []string
}

func (e *MissingMetadataError) Error() string {
	return "missing required metadata: " + strings.Join(e.Fields, ", ")
}

// legalTransitions 评估生命周期的合法迁移表。
// rejected 后允许继续编辑，submitted/approved 为锁定态。
var legalTransitions = map[model.AssessmentStatus][]model.AssessmentStatus{
	model.StatusNotStarted: {model.StatusInProgress},
	model.StatusInProgress: {model.StatusCompleted},
	model.StatusCompleted:  {model.StatusInProgress, model.StatusSubmitted},
	model.StatusSubmitted:  {model.StatusApproved, model.StatusRejected},
	model.StatusRejected:   {model.StatusInProgress},
}

// ValidateTransition 校验一次显式状态迁移
func ValidateTransition(from, to model.AssessmentStatus) error {
	if from == to {
		return nil
	}
	for _, allowed := range legalTransitions[from] {
		if allowed == to {
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, from, to)
}

// DeriveStatus 从作答和确认情况推导编辑期状态。
// submitted 及之后的显式状态不在这里推导。
func DeriveStatus(answers []model.Answer, requiredItems []string) model.AssessmentStatus {
	answered := false
	for i := range answers {
		if answers[i].Answered() {
			answered = true
			break
		}
	}
	if !answered {
		return model.StatusNotStarted
	}

	if len(requiredItems) == 0 {
		// 检查表没有声明必答项时，以全部已作答检查项确认完成为准
		for i := range answers {
			if answers[i].Answered() && !answers[i].IsFinish {
				return model.StatusInProgress
			}
		}
		return model.StatusCompleted
	}

	confirmed := make(map[string]bool, len(answers))
	for i := range answers {
		if answers[i].IsFinish {
			confirmed[answers[i].CkItem] = true
		}
	}
	for _, item := range requiredItems {
		if !confirmed[item] {
			return model.StatusInProgress
		}
	}
	return model.StatusCompleted
}

// EnsureEditable 锁定态的评估拒绝一切写入
func EnsureEditable(a *model.Assessment) error {
	if a.IsApproved || a.Locked() {
		return ErrLocked
	}
	return nil
}

// Confirm 把一条作答标记为确认完成，分数或说明为空时拒绝
func Confirm(ans *model.Answer) error {
	if ans.Score == "" || strings.TrimSpace(ans.Comment) == "" {
		return ErrConfirmIncomplete
	}
	ans.IsFinish = true
	return nil
}

// Unconfirm 清除确认标记，评估随之回退到 in-progress
func Unconfirm(ans *model.Answer) {
	ans.IsFinish = false
}

// submitRequired 提交前必填的元数据字段
func MissingSubmitFields(a *model.Assessment) []string {
	var missing []string
	if strings.TrimSpace(a.Auditor.Name) == "" {
		missing = append(missing, "auditor.name")
	}
	if strings.TrimSpace(a.Auditee.Name) == "" {
		missing = append(missing, "auditee.name")
	}
	if a.RiskLevel == model.RiskUnset {
		missing = append(missing, "riskLevel")
	}
	if strings.TrimSpace(a.WorkingArea) == "" {
		missing = append(missing, "workingArea")
	}
	if strings.TrimSpace(a.Category) == "" {
		missing = append(missing, "category")
	}
	return missing
}

// Submit 把 completed 状态的评估置为 submitted
func Submit(a *model.Assessment, now time.Time) error {
	if a.Locked() {
		return ErrLocked
	}
	if a.Status != model.StatusCompleted {
		return ErrNotCompleted
	}
	if missing := MissingSubmitFields(a); len(missing) > 0 {
		return &MissingMetadataError{Fields: missing}
	}
	if err := ValidateTransition(a.Status, model.StatusSubmitted); err != nil {
		return err
	}
	a.Status = model.StatusSubmitted
	a.SubmittedAt = &now
	return nil
}

// Approve 审核通过，之后评估不可再修改
func Approve(a *model.Assessment, now time.Time) error {
	if err := ValidateTransition(a.Status, model.StatusApproved); err != nil {
		return err
	}
	a.Status = model.StatusApproved
	a.IsApproved = true
	a.IsFinished = true
	a.FinishedAt = &now
	return nil
}

// Reject 审核退回，评估重新开放编辑
func Reject(a *model.Assessment, now time.Time) error {
	if err := ValidateTransition(a.Status, model.StatusRejected); err != nil {
		return err
	}
	a.Status = model.StatusRejected
	a.SubmittedAt = nil
	return nil
}
