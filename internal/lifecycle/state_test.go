package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendor_audit_backend/internal/model"
)

func completedAssessment() *model.Assessment {
	return &model.Assessment{
		VendorCode:  "V001",
		FormCode:    "F01",
		RiskLevel:   model.RiskLow,
		WorkingArea: "仓储",
		Category:    "safety",
		Auditor:     model.Contact{Name: "张三"},
		Auditee:     model.Auditee{Name: "李四"},
		Status:      model.StatusCompleted,
		Answers: []model.Answer{
			{CkItem: "ck1", Score: "2", Comment: "ok", IsFinish: true},
		},
	}
}

func TestDeriveStatus(t *testing.T) {
	required := []string{"ck1", "ck2"}

	t.Run("no scores means not started", func(t *testing.T) {
		answers := []model.Answer{{CkItem: "ck1"}, {CkItem: "ck2"}}
		assert.Equal(t, model.StatusNotStarted, DeriveStatus(answers, required))
	})

	t.Run("first score moves to in progress", func(t *testing.T) {
		answers := []model.Answer{{CkItem: "ck1", Score: "1"}, {CkItem: "ck2"}}
		assert.Equal(t, model.StatusInProgress, DeriveStatus(answers, required))
	})

	t.Run("all required confirmed means completed", func(t *testing.T) {
		answers := []model.Answer{
			{CkItem: "ck1", Score: "2", Comment: "ok", IsFinish: true},
			{CkItem: "ck2", Score: "n/a", Comment: "不适用", IsFinish: true},
		}
		assert.Equal(t, model.StatusCompleted, DeriveStatus(answers, required))
	})

	t.Run("clearing a confirmation regresses to in progress", func(t *testing.T) {
		answers := []model.Answer{
			{CkItem: "ck1", Score: "2", Comment: "ok", IsFinish: true},
			{CkItem: "ck2", Score: "1", Comment: "ok", IsFinish: false},
		}
		assert.Equal(t, model.StatusInProgress, DeriveStatus(answers, required))
	})
}

func TestConfirm_RequiresScoreAndComment(t *testing.T) {
	ans := &model.Answer{CkItem: "ck1", Comment: "说明"}
	assert.ErrorIs(t, Confirm(ans), ErrConfirmIncomplete)
	assert.False(t, ans.IsFinish)

	ans.Score = "1"
	ans.Comment = "   "
	assert.ErrorIs(t, Confirm(ans), ErrConfirmIncomplete)

	ans.Comment = "现场检查通过"
	require.NoError(t, Confirm(ans))
	assert.True(t, ans.IsFinish)
}

func TestEnsureEditable_LockedStates(t *testing.T) {
	a := completedAssessment()
	require.NoError(t, EnsureEditable(a))

	a.Status = model.StatusSubmitted
	assert.ErrorIs(t, EnsureEditable(a), ErrLocked)

	a.Status = model.StatusApproved
	a.IsApproved = true
	assert.ErrorIs(t, EnsureEditable(a), ErrLocked)

	// 退回后重新开放编辑
	a.Status = model.StatusRejected
	a.IsApproved = false
	assert.NoError(t, EnsureEditable(a))
}

func TestSubmit(t *testing.T) {
	now := time.Now()

	t.Run("requires completed", func(t *testing.T) {
		a := completedAssessment()
		a.Status = model.StatusInProgress
		assert.ErrorIs(t, Submit(a, now), ErrNotCompleted)
	})

	t.Run("requires metadata", func(t *testing.T) {
		a := completedAssessment()
		a.RiskLevel = model.RiskUnset
		a.WorkingArea = ""
		err := Submit(a, now)
		var mm *MissingMetadataError
		require.ErrorAs(t, err, &mm)
		assert.ElementsMatch(t, []string{"riskLevel", "workingArea"}, mm.Fields)
	})

	t.Run("happy path", func(t *testing.T) {
		a := completedAssessment()
		require.NoError(t, Submit(a, now))
		assert.Equal(t, model.StatusSubmitted, a.Status)
		require.NotNil(t, a.SubmittedAt)
		assert.Equal(t, now, *a.SubmittedAt)
	})

	t.Run("double submit rejected", func(t *testing.T) {
		a := completedAssessment()
		require.NoError(t, Submit(a, now))
		assert.ErrorIs(t, Submit(a, now), ErrLocked)
	})
}

func TestApproveAndReject(t *testing.T) {
	now := time.Now()

	t.Run("approve only from submitted", func(t *testing.T) {
		a := completedAssessment()
		assert.ErrorIs(t, Approve(a, now), ErrIllegalTransition)

		require.NoError(t, Submit(a, now))
		require.NoError(t, Approve(a, now))
		assert.True(t, a.IsApproved)
		assert.True(t, a.IsFinished)
		require.NotNil(t, a.FinishedAt)
		assert.ErrorIs(t, EnsureEditable(a), ErrLocked)
	})

	t.Run("reject reopens editing", func(t *testing.T) {
		a := completedAssessment()
		require.NoError(t, Submit(a, now))
		require.NoError(t, Reject(a, now))
		assert.Equal(t, model.StatusRejected, a.Status)
		assert.Nil(t, a.SubmittedAt)
		assert.NoError(t, EnsureEditable(a))
	})
}

func TestValidateTransition(t *testing.T) {
	assert.NoError(t, ValidateTransition(model.StatusCompleted, model.StatusInProgress))
	assert.NoError(t, ValidateTransition(model.StatusInProgress, model.StatusInProgress))
	assert.ErrorIs(t, ValidateTransition(model.StatusApproved, model.StatusInProgress), ErrIllegalTransition)
	assert.ErrorIs(t, ValidateTransition(model.StatusNotStarted, model.StatusSubmitted), ErrIllegalTransition)
}
