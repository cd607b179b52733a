package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/config"
	"vendor_audit_backend/internal/connectivity"
	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/lifecycle"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/offline"
	"vendor_audit_backend/internal/repository"
	"vendor_audit_backend/internal/util"
	"vendor_audit_backend/pkg/circuitbreaker"
)

type serviceFixture struct {
	store   *docstore.MemoryStore
	repo    *repository.AssessmentRepository
	queue   *offline.Queue
	monitor *connectivity.Monitor
	svc     *AssessmentService
}

func newFixture(t *testing.T) *serviceFixture {
	t.Helper()

	store := docstore.NewMemoryStore()
	log := zap.NewNop()
	breaker := circuitbreaker.New(circuitbreaker.Config{Name: "test", FailureThreshold: 1000})
	repo := repository.NewAssessmentRepository(store, breaker, log)
	formRepo := repository.NewFormRepository(store, nil, log)
	queue := offline.NewQueue(offline.Config{
		MaxRetries:  3,
		BackoffBase: 10 * time.Millisecond,
	}, repo, log)
	monitor := connectivity.NewMonitor(nil, time.Minute, time.Second, log)
	monitor.SetOnline(true)

	cfg := &config.Config{}
	cfg.Engine.AutosaveDelayMS = 30
	cfg.Engine.SaveTimeoutSec = 5

	svc := NewAssessmentService(repo, formRepo, queue, monitor, cfg, log)
	t.Cleanup(func() { svc.Shutdown(context.Background()) })

	seedSafetyForm(t, store)
	return &serviceFixture{store: store, repo: repo, queue: queue, monitor: monitor, svc: svc}
}

func seedSafetyForm(t *testing.T, store *docstore.MemoryStore) {
	t.Helper()
	form := &model.FormDefinition{
		FormCode: "SAFETY-01",
		Version:  1,
		Fields: []model.FormField{
			{CkItem: "fire-exits", FScore: 1, Required: true},
			{CkItem: "ppe-usage", FScore: 1, Required: true},
		},
	}
	data, err := json.Marshal(form)
	require.NoError(t, err)
	_, err = store.CreateDocument(context.Background(), util.CollectionForms, data)
	require.NoError(t, err)
}

func startInput() StartInput {
	return StartInput{
		VendorCode:  "V001",
		FormCode:    "SAFETY-01",
		FormVersion: 1,
		RiskLevel:   "Low",
		WorkingArea: "warehouse",
		Category:    "annual",
		Auditor:     model.Contact{Name: "张伟"},
		Auditee:     model.Auditee{Name: "供应商甲"},
	}
}

func TestStartPrefillsAnswers(t *testing.T) {
	fx := newFixture(t)

	a, err := fx.svc.Start(context.Background(), startInput())
	require.NoError(t, err)
	assert.NotEmpty(t, a.ID)
	assert.Equal(t, model.StatusNotStarted, a.Status)
	require.Len(t, a.Answers, 2)
	assert.Equal(t, "fire-exits", a.Answers[0].CkItem)
	assert.False(t, a.Answers[0].Answered())
}

func TestUpdateAnswerRescoresAndDerivesStatus(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	got, err := fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "2", Comment: "出口畅通"})
	require.NoError(t, err)
	assert.Equal(t, model.StatusInProgress, got.Status)
	assert.InDelta(t, 2, got.TotalScore, 1e-9)
	assert.InDelta(t, 2, got.AvgScore, 1e-9)
	assert.InDelta(t, 2, got.MaxScore, 1e-9)

	// n/a 不计入分子也不计入分母
	got, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "ppe-usage", Score: model.ScoreNA, Comment: "不涉及"})
	require.NoError(t, err)
	assert.InDelta(t, 2, got.TotalScore, 1e-9)
	assert.InDelta(t, 2, got.AvgScore, 1e-9)
	assert.InDelta(t, 2, got.MaxScore, 1e-9)

	// 必答项全部确认后进入 completed
	_, err = fx.svc.ConfirmAnswer(ctx, a.ID, "fire-exits")
	require.NoError(t, err)
	got, err = fx.svc.ConfirmAnswer(ctx, a.ID, "ppe-usage")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
}

func TestUpdateAnswerRejectsBadScore(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "5"})
	assert.True(t, util.IsValidation(err))
}

func TestConfirmRequiresScoreAndComment(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "1"})
	require.NoError(t, err)

	_, err = fx.svc.ConfirmAnswer(ctx, a.ID, "fire-exits")
	assert.ErrorIs(t, err, lifecycle.ErrConfirmIncomplete)
}

func TestFlushPersistsPendingEdits(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "2", Comment: "ok"})
	require.NoError(t, err)

	_, err = fx.svc.Flush(ctx, a.ID)
	require.NoError(t, err)

	stored, err := fx.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.AnswerFor("fire-exits"))
	assert.Equal(t, "2", stored.AnswerFor("fire-exits").Score)
}

func TestAutosaveFiresAfterQuietPeriod(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "1", Comment: "ok"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := fx.repo.FindByID(ctx, a.ID)
		if err != nil {
			return false
		}
		ans := stored.AnswerFor("fire-exits")
		return ans != nil && ans.Score == "1"
	}, 2*time.Second, 10*time.Millisecond)
}

func completeAssessment(t *testing.T, fx *serviceFixture) *model.Assessment {
	t.Helper()
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	for _, item := range []string{"fire-exits", "ppe-usage"} {
		_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: item, Score: "2", Comment: "合格"})
		require.NoError(t, err)
		_, err = fx.svc.ConfirmAnswer(ctx, a.ID, item)
		require.NoError(t, err)
	}
	return a
}

func TestSubmitHappyPath(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a := completeAssessment(t, fx)

	result, err := fx.svc.Submit(ctx, a.ID)
	require.NoError(t, err)
	require.NoError(t, result.SummaryErr)
	assert.Equal(t, model.StatusSubmitted, result.Assessment.Status)
	require.NotNil(t, result.Assessment.SubmittedAt)

	// 提交后锁定
	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "0"})
	assert.ErrorIs(t, err, lifecycle.ErrLocked)

	// 供应商汇总已重算
	docs, err := fx.store.QueryDocuments(ctx, util.CollectionSummaries, docstore.Query{
		Filters: []docstore.Filter{{Field: "vendorCode", Value: "V001"}},
	})
	require.NoError(t, err)
	assert.Len(t, docs, 1)
}

func TestSubmitRejectsIncomplete(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a, err := fx.svc.Start(ctx, startInput())
	require.NoError(t, err)

	_, err = fx.svc.Submit(ctx, a.ID)
	assert.ErrorIs(t, err, lifecycle.ErrNotCompleted)
}

func TestSubmitRequiresMetadata(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	in := startInput()
	in.WorkingArea = ""
	a, err := fx.svc.Start(ctx, in)
	require.NoError(t, err)

	for _, item := range []string{"fire-exits", "ppe-usage"} {
		_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: item, Score: "2", Comment: "合格"})
		require.NoError(t, err)
		_, err = fx.svc.ConfirmAnswer(ctx, a.ID, item)
		require.NoError(t, err)
	}

	_, err = fx.svc.Submit(ctx, a.ID)
	var missing *lifecycle.MissingMetadataError
	require.ErrorAs(t, err, &missing)
	assert.Contains(t, missing.Fields, "workingArea")
}

func TestOfflineEditQueuesAction(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a := completeAssessment(t, fx)
	_, err := fx.svc.Flush(ctx, a.ID)
	require.NoError(t, err)

	// 断网：评估写入开始失败
	fx.store.Hook = func(op, collection string) error {
		if collection == util.CollectionAssessments {
			return errors.New("connection refused")
		}
		return nil
	}

	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "1", Comment: "复查"})
	require.NoError(t, err)
	_, err = fx.svc.Flush(ctx, a.ID)
	require.NoError(t, err)

	snap := fx.queue.Snapshot()
	require.Len(t, snap.PendingActions, 1)
	assert.Equal(t, model.ActionUpdate, snap.PendingActions[0].Type)
	assert.Equal(t, a.ID, snap.PendingActions[0].Resource)
}

func TestOfflineSubmitQueuesHighPriority(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	a := completeAssessment(t, fx)
	_, err := fx.svc.Flush(ctx, a.ID)
	require.NoError(t, err)

	fx.store.Hook = func(op, collection string) error {
		if collection == util.CollectionAssessments {
			return errors.New("connection refused")
		}
		return nil
	}

	result, err := fx.svc.Submit(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusSubmitted, result.Assessment.Status)

	snap := fx.queue.Snapshot()
	require.NotEmpty(t, snap.PendingActions)
	found := false
	for _, pa := range snap.PendingActions {
		if pa.Priority == model.PriorityHigh {
			found = true
		}
	}
	assert.True(t, found, "submission should be queued with high priority")

	// 会话里的状态已是 submitted，继续编辑被拒绝
	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "0"})
	assert.ErrorIs(t, err, lifecycle.ErrLocked)
}

func TestQueueReplaysAfterReconnect(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	connCh := fx.monitor.Subscribe()
	fx.queue.Start(connCh)
	t.Cleanup(fx.queue.Stop)

	a := completeAssessment(t, fx)
	_, err := fx.svc.Flush(ctx, a.ID)
	require.NoError(t, err)

	fx.store.Hook = func(op, collection string) error {
		if collection == util.CollectionAssessments {
			return errors.New("connection refused")
		}
		return nil
	}
	fx.monitor.SetOnline(false)

	_, err = fx.svc.UpdateAnswer(ctx, a.ID, AnswerInput{CkItem: "fire-exits", Score: "0", Comment: "复查不合格"})
	require.NoError(t, err)
	_, err = fx.svc.Flush(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, fx.queue.Snapshot().PendingActions, 1)

	// 恢复连通，队列自动回放
	fx.store.Hook = nil
	fx.monitor.SetOnline(true)

	require.Eventually(t, func() bool {
		return len(fx.queue.Snapshot().PendingActions) == 0
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := fx.repo.FindByID(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "0", stored.AnswerFor("fire-exits").Score)
}

func TestSyncStatusExposesEngineState(t *testing.T) {
	fx := newFixture(t)

	state := fx.svc.SyncStatus()
	assert.True(t, state.Online)
	assert.Empty(t, state.Queue.PendingActions)
	assert.Equal(t, "closed", state.Breaker.State)
}
