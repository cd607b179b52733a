package model

import (
	"time"
)

// RiskLevel 风险等级，由平均分划分；未答题时为空
type RiskLevel string

const (
	RiskLow      RiskLevel = "Low"
	RiskModerate RiskLevel = "Moderate"
	RiskHigh     RiskLevel = "High"
	RiskUnset    RiskLevel = ""
)

// AssessmentStatus 评估生命周期状态
type AssessmentStatus string

const (
	StatusNotStarted AssessmentStatus = "not-started"
	StatusInProgress AssessmentStatus = "in-progress"
	StatusCompleted  AssessmentStatus = "completed"
	StatusSubmitted  AssessmentStatus = "submitted"
	StatusApproved   AssessmentStatus = "approved"
	StatusRejected   AssessmentStatus = "rejected"
)

// ScoreNA 该题不适用，不计入分子也不计入分母
const ScoreNA = "n/a"

// Contact 审核人信息
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Auditee 被审核方联系人
type Auditee struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Position string `json:"position"`
}

// AttachmentFile 答案附件描述，内容本体存在对象存储
type AttachmentFile struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Size             int64   `json:"size"`
	Mime             string  `json:"mime"`
	URL              string  `json:"url,omitempty"`
	Data             string  `json:"data,omitempty"`
	CompressionRatio float64 `json:"compressionRatio,omitempty"`
}

// Answer 单个检查项的作答
// isFinish=true 要求 score 和 comment 均非空，由引擎强制
type Answer struct {
	CkItem   string           `json:"ckItem"`
	Score    string           `json:"score"` // "0" | "1" | "2" | "n/a" | ""
	Comment  string           `json:"comment"`
	Action   string           `json:"action"`
	IsFinish bool             `json:"isFinish"`
	Files    []AttachmentFile `json:"files,omitempty"`
}

// Answered 是否已打分
func (a *Answer) Answered() bool {
	return a.Score != ""
}

// Assessment 一次针对某供应商、某版本检查表的评估文档。
// 不走 gorm 表结构，作为 JSON 文档持久化到 docstore。
// swagger:model Assessment
type Assessment struct {
	ID          string           `json:"assessmentId,omitempty"`
	VendorCode  string           `json:"vendorCode"`
	FormCode    string           `json:"formCode"`
	FormVersion int              `json:"formVersion"`
	RiskLevel   RiskLevel        `json:"riskLevel,omitempty"`
	WorkingArea string           `json:"workingArea,omitempty"`
	Category    string           `json:"category,omitempty"`
	Auditor     Contact          `json:"auditor"`
	Auditee     Auditee          `json:"auditee"`
	Status      AssessmentStatus `json:"status"`
	IsApproved  bool             `json:"isApproved"`
	IsFinished  bool             `json:"isFinished"`
	IsActive    bool             `json:"isActive"`
	TotalScore  float64          `json:"totalScore"`
	AvgScore    float64          `json:"avgScore"`
	MaxScore    float64          `json:"maxScore"`
	Revision    int64            `json:"revision"` // 每次写入自增，预留乐观锁对比
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
	SubmittedAt *time.Time       `json:"submittedAt,omitempty"`
	FinishedAt  *time.Time       `json:"finishedAt,omitempty"`
	Answers     []Answer         `json:"answers"`
}

// AnswerFor 按检查项 key 取作答，不存在时返回 nil
func (a *Assessment) AnswerFor(ckItem string) *Answer {
	for i := range a.Answers {
		if a.Answers[i].CkItem == ckItem {
			return &a.Answers[i]
		}
	}
	return nil
}

// Locked 提交后和批准后禁止一切修改
func (a *Assessment) Locked() bool {
	return a.Status == StatusSubmitted || a.Status == StatusApproved
}

// VendorSummary 供应商维度的分数汇总文档，提交时尽力重算
type VendorSummary struct {
	VendorCode   string    `json:"vendorCode"`
	Assessments  int       `json:"assessments"`
	AvgScore     float64   `json:"avgScore"`
	LatestRisk   RiskLevel `json:"latestRisk,omitempty"`
	LastSubmit   time.Time `json:"lastSubmit"`
	RecomputedAt time.Time `json:"recomputedAt"`
}
