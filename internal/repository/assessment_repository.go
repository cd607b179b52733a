package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/lifecycle"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/scoring"
	"vendor_audit_backend/internal/util"
	"vendor_audit_backend/pkg/circuitbreaker"
)

// AssessmentRepository 负责评估文档的持久化编排。
// 所有远端读写都过熔断器；文档消失时重建而不是报错。
type AssessmentRepository struct {
	Store   docstore.Store
	Breaker *circuitbreaker.Breaker
	Log     *zap.Logger
	clock   func() time.Time
}

func NewAssessmentRepository(store docstore.Store, breaker *circuitbreaker.Breaker, log *zap.Logger) *AssessmentRepository {
	return &AssessmentRepository{
		Store:   store,
		Breaker: breaker,
		Log:     log,
		clock:   time.Now,
	}
}

// decodeAssessment 存储边界的形状校验，未知形状显式拒绝
func decodeAssessment(id string, data json.RawMessage) (*model.Assessment, error) {
	var a model.Assessment
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, &docstore.ConflictError{
			Collection: util.CollectionAssessments,
			ID:         id,
			Reason:     "unexpected document shape: " + err.Error(),
		}
	}
	if a.VendorCode == "" || a.FormCode == "" {
		return nil, &docstore.ConflictError{
			Collection: util.CollectionAssessments,
			ID:         id,
			Reason:     "document missing vendorCode/formCode",
		}
	}
	a.ID = id
	return &a, nil
}

// normalize 写入前整理负载：剔除空值字段，时间统一为 UTC
func normalize(a *model.Assessment) (json.RawMessage, error) {
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	if a.SubmittedAt != nil {
		t := a.SubmittedAt.UTC()
		a.SubmittedAt = &t
	}
	if a.FinishedAt != nil {
		t := a.FinishedAt.UTC()
		a.FinishedAt = &t
	}

	raw, err := json.Marshal(a)
	if err != nil {
		return nil, err
	}
	var m map[string]interface{}
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for k, v := range m {
		if v == nil {
			delete(m, k)
		}
	}
	delete(m, "assessmentId") // 文档 id 由存储负责
	return json.Marshal(m)
}

func (r *AssessmentRepository) FindByID(ctx context.Context, id string) (*model.Assessment, error) {
	data, err := circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) (json.RawMessage, error) {
		return r.Store.GetDocument(ctx, util.CollectionAssessments, id)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, util.ErrAssessmentNotFound
	}
	if err != nil {
		return nil, err
	}
	return decodeAssessment(id, data)
}

// FindActive 取某供应商某检查表当前唯一的活跃评估
func (r *AssessmentRepository) FindActive(ctx context.Context, vendorCode, formCode string) (*model.Assessment, error) {
	docs, err := circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) ([]docstore.Document, error) {
		return r.Store.QueryDocuments(ctx, util.CollectionAssessments, docstore.Query{
			Filters: []docstore.Filter{
				{Field: "vendorCode", Value: vendorCode},
				{Field: "formCode", Value: formCode},
				{Field: "isActive", Value: true},
			},
			Limit: 1,
		})
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, util.ErrAssessmentNotFound
	}
	return decodeAssessment(docs[0].ID, docs[0].Data)
}

func (r *AssessmentRepository) List(ctx context.Context, vendorCode string, status model.AssessmentStatus, limit int) ([]*model.Assessment, error) {
	var filters []docstore.Filter
	if vendorCode != "" {
		filters = append(filters, docstore.Filter{Field: "vendorCode", Value: vendorCode})
	}
	if status != "" {
		filters = append(filters, docstore.Filter{Field: "status", Value: string(status)})
	}

	docs, err := circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) ([]docstore.Document, error) {
		return r.Store.QueryDocuments(ctx, util.CollectionAssessments, docstore.Query{
			Filters: filters,
			Limit:   limit,
		})
	})
	if err != nil {
		return nil, err
	}

	out := make([]*model.Assessment, 0, len(docs))
	for _, doc := range docs {
		a, err := decodeAssessment(doc.ID, doc.Data)
		if err != nil {
			// 形状异常的文档跳过并告警，不拖垮整页列表
			if r.Log != nil {
				r.Log.Warn("skipping malformed assessment document",
					zap.String("docId", doc.ID), zap.Error(err))
			}
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// Save 新建或更新评估文档。
// 新建时废止同一 (vendorCode, formCode) 下先前的活跃评估；
// 更新时先确认文档还在，被并发删除则原地重建。
func (r *AssessmentRepository) Save(ctx context.Context, a *model.Assessment) (*model.Assessment, error) {
	now := r.clock()
	a.UpdatedAt = now

	if a.ID == "" {
		return r.create(ctx, a, now)
	}

	a.Revision++
	data, err := normalize(a)
	if err != nil {
		return nil, err
	}

	// 全量保存必须整体覆盖：normalize 剔除了空值字段，
	// 合并写会让被清空的字段（如驳回后的 submittedAt）残留在存储里
	err = r.Breaker.Execute(ctx, func(ctx context.Context) error {
		return r.Store.ReplaceDocument(ctx, util.CollectionAssessments, a.ID, data)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		// 文档在别处被删掉了，重建而不是报错
		if r.Log != nil {
			r.Log.Warn("assessment document vanished, re-creating",
				zap.String("docId", a.ID), zap.String("vendorCode", a.VendorCode))
		}
		a.ID = ""
		return r.create(ctx, a, now)
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (r *AssessmentRepository) create(ctx context.Context, a *model.Assessment, now time.Time) (*model.Assessment, error) {
	if err := r.supersedeActive(ctx, a.VendorCode, a.FormCode); err != nil {
		return nil, err
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.IsActive = true
	if a.Status == "" {
		a.Status = model.StatusNotStarted
	}
	a.Revision++

	data, err := normalize(a)
	if err != nil {
		return nil, err
	}

	id, err := circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) (string, error) {
		return r.Store.CreateDocument(ctx, util.CollectionAssessments, data)
	})
	if err != nil {
		return nil, err
	}
	a.ID = id
	return a, nil
}

// supersedeActive 同一供应商同一检查表只允许一份活跃评估
func (r *AssessmentRepository) supersedeActive(ctx context.Context, vendorCode, formCode string) error {
	docs, err := circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) ([]docstore.Document, error) {
		return r.Store.QueryDocuments(ctx, util.CollectionAssessments, docstore.Query{
			Filters: []docstore.Filter{
				{Field: "vendorCode", Value: vendorCode},
				{Field: "formCode", Value: formCode},
				{Field: "isActive", Value: true},
			},
		})
	})
	if err != nil {
		return err
	}

	for _, doc := range docs {
		patch := []byte(`{"isActive":false}`)
		err := r.Breaker.Execute(ctx, func(ctx context.Context) error {
			return r.Store.UpdateDocument(ctx, util.CollectionAssessments, doc.ID, patch)
		})
		if err != nil && !errors.Is(err, docstore.ErrNotFound) {
			return fmt.Errorf("supersede %s: %w", doc.ID, err)
		}
	}
	return nil
}

// SubmitResult 汇总重算是尽力而为，失败不回滚提交
type SubmitResult struct {
	Assessment *model.Assessment `json:"assessment"`
	SummaryErr error             `json:"-"`
}

// Submit 提交评估：状态门禁 + 元数据校验 + 落盘 + 汇总重算
func (r *AssessmentRepository) Submit(ctx context.Context, a *model.Assessment) (*SubmitResult, error) {
	if err := lifecycle.Submit(a, r.clock()); err != nil {
		return nil, err
	}

	saved, err := r.Save(ctx, a)
	if err != nil {
		return nil, err
	}

	result := &SubmitResult{Assessment: saved}
	if err := r.RecomputeSummary(ctx, saved.VendorCode); err != nil {
		result.SummaryErr = err
		if r.Log != nil {
			r.Log.Error("summary recomputation failed after submit",
				zap.String("vendorCode", saved.VendorCode), zap.Error(err))
		}
	}
	return result, nil
}

// RecomputeSummary 重算某供应商的分数汇总文档
func (r *AssessmentRepository) RecomputeSummary(ctx context.Context, vendorCode string) error {
	assessments, err := r.List(ctx, vendorCode, "", 0)
	if err != nil {
		return err
	}

	summary := model.VendorSummary{
		VendorCode:   vendorCode,
		RecomputedAt: r.clock().UTC(),
	}
	var sum float64
	for _, a := range assessments {
		if a.Status != model.StatusSubmitted && a.Status != model.StatusApproved {
			continue
		}
		summary.Assessments++
		sum += a.AvgScore
		if a.SubmittedAt != nil && a.SubmittedAt.After(summary.LastSubmit) {
			summary.LastSubmit = *a.SubmittedAt
			summary.LatestRisk = scoring.ClassifyRisk(a.AvgScore)
		}
	}
	if summary.Assessments > 0 {
		summary.AvgScore = sum / float64(summary.Assessments)
	}

	data, err := json.Marshal(summary)
	if err != nil {
		return err
	}

	return r.Breaker.Execute(ctx, func(ctx context.Context) error {
		existing, err := r.Store.QueryDocuments(ctx, util.CollectionSummaries, docstore.Query{
			Filters: []docstore.Filter{{Field: "vendorCode", Value: vendorCode}},
			Limit:   1,
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return r.Store.ReplaceDocument(ctx, util.CollectionSummaries, existing[0].ID, data)
		}
		_, err = r.Store.CreateDocument(ctx, util.CollectionSummaries, data)
		return err
	})
}

func (r *AssessmentRepository) Delete(ctx context.Context, id string) error {
	err := r.Breaker.Execute(ctx, func(ctx context.Context) error {
		return r.Store.DeleteDocument(ctx, util.CollectionAssessments, id)
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return util.ErrAssessmentNotFound
	}
	return err
}

// Execute 回放一条离线变更，实现 offline.Executor。
// update 撞上文档消失时按 create 重建；delete 幂等。
func (r *AssessmentRepository) Execute(ctx context.Context, action *model.PendingAction) error {
	switch action.Type {
	case model.ActionCreate:
		_, err := circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) (string, error) {
			return r.Store.CreateDocument(ctx, action.Collection, action.Payload)
		})
		return err
	case model.ActionUpdate:
		// 队列里存的是全量文档，重放时整体覆盖
		err := r.Breaker.Execute(ctx, func(ctx context.Context) error {
			return r.Store.ReplaceDocument(ctx, action.Collection, action.Resource, action.Payload)
		})
		if errors.Is(err, docstore.ErrNotFound) {
			_, err = circuitbreaker.Do(ctx, r.Breaker, func(ctx context.Context) (string, error) {
				return r.Store.CreateDocument(ctx, action.Collection, action.Payload)
			})
		}
		return err
	case model.ActionDelete:
		err := r.Breaker.Execute(ctx, func(ctx context.Context) error {
			return r.Store.DeleteDocument(ctx, action.Collection, action.Resource)
		})
		if errors.Is(err, docstore.ErrNotFound) {
			return nil
		}
		return err
	default:
		return fmt.Errorf("unknown action type: %s", action.Type)
	}
}
