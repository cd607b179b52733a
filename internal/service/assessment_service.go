package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/autosave"
	"vendor_audit_backend/internal/config"
	"vendor_audit_backend/internal/connectivity"
	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/lifecycle"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/offline"
	"vendor_audit_backend/internal/repository"
	"vendor_audit_backend/internal/scoring"
	"vendor_audit_backend/internal/util"
	"vendor_audit_backend/pkg/circuitbreaker"
)

// AssessmentService 评估编辑引擎。
// 每份在编评估挂一个防抖保存会话，编辑先改内存、
// 实时重算分数和状态，落盘交给防抖器；
// 存储瞬断或熔断打开时变更转入离线队列等待回放。
type AssessmentService struct {
	Repo     *repository.AssessmentRepository
	FormRepo *repository.FormRepository
	Queue    *offline.Queue
	Monitor  *connectivity.Monitor
	Cfg      *config.Config
	Log      *zap.Logger

	mu       sync.Mutex
	sessions map[string]*editSession
}

// editSession 单份评估的编辑会话
type editSession struct {
	current *model.Assessment
	form    *model.FormDefinition
	deb     *autosave.Debouncer[*model.Assessment]
}

func NewAssessmentService(
	repo *repository.AssessmentRepository,
	formRepo *repository.FormRepository,
	queue *offline.Queue,
	monitor *connectivity.Monitor,
	cfg *config.Config,
	log *zap.Logger,
) *AssessmentService {
	return &AssessmentService{
		Repo:     repo,
		FormRepo: formRepo,
		Queue:    queue,
		Monitor:  monitor,
		Cfg:      cfg,
		Log:      log,
		sessions: make(map[string]*editSession),
	}
}

// StartInput 新建评估的入参
type StartInput struct {
	VendorCode  string        `json:"vendorCode" binding:"required"`
	FormCode    string        `json:"formCode" binding:"required"`
	FormVersion int           `json:"formVersion"`
	RiskLevel   string        `json:"riskLevel"`
	WorkingArea string        `json:"workingArea"`
	Category    string        `json:"category"`
	Auditor     model.Contact `json:"auditor"`
	Auditee     model.Auditee `json:"auditee"`
}

// Start 新建一份评估，按检查表定义预置空白作答
func (s *AssessmentService) Start(ctx context.Context, in StartInput) (*model.Assessment, error) {
	form, err := s.FormRepo.FindByCode(ctx, in.FormCode, in.FormVersion)
	if err != nil {
		return nil, err
	}

	answers := make([]model.Answer, 0, len(form.Fields))
	for _, field := range form.Fields {
		answers = append(answers, model.Answer{CkItem: field.CkItem})
	}

	a := &model.Assessment{
		VendorCode:  in.VendorCode,
		FormCode:    form.FormCode,
		FormVersion: form.Version,
		RiskLevel:   model.RiskLevel(in.RiskLevel),
		WorkingArea: in.WorkingArea,
		Category:    in.Category,
		Auditor:     in.Auditor,
		Auditee:     in.Auditee,
		Status:      model.StatusNotStarted,
		Answers:     answers,
	}

	saved, err := s.Repo.Save(ctx, a)
	if err != nil {
		return nil, err
	}
	return saved, nil
}

// Get 读一份评估，优先返回会话里的内存版（含未落盘的编辑）
func (s *AssessmentService) Get(ctx context.Context, id string) (*model.Assessment, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		a := cloneAssessment(sess.current)
		s.mu.Unlock()
		return a, nil
	}
	s.mu.Unlock()

	return s.Repo.FindByID(ctx, id)
}

func (s *AssessmentService) List(ctx context.Context, vendorCode string, status model.AssessmentStatus, limit int) ([]*model.Assessment, error) {
	return s.Repo.List(ctx, vendorCode, status, limit)
}

// AnswerInput 单题作答入参
type AnswerInput struct {
	CkItem  string `json:"ckItem"`
	Score   string `json:"score"`
	Comment string `json:"comment"`
	Action  string `json:"action"`
}

// UpdateAnswer 写入单项作答：改内存、重算分数与状态、排防抖保存
func (s *AssessmentService) UpdateAnswer(ctx context.Context, id string, in AnswerInput) (*model.Assessment, error) {
	if in.CkItem == "" {
		return nil, util.NewValidationError("ckItem", "不能为空")
	}
	if err := validateScore(in.Score); err != nil {
		return nil, err
	}

	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := sess.current
	if err := lifecycle.EnsureEditable(a); err != nil {
		return nil, err
	}

	ans := a.AnswerFor(in.CkItem)
	if ans == nil {
		a.Answers = append(a.Answers, model.Answer{CkItem: in.CkItem})
		ans = &a.Answers[len(a.Answers)-1]
	}
	ans.Score = in.Score
	ans.Comment = in.Comment
	ans.Action = in.Action
	if ans.IsFinish && (ans.Score == "" || ans.Comment == "") {
		// 内容被清空后确认标记自动失效
		lifecycle.Unconfirm(ans)
	}

	s.rescoreLocked(sess)
	sess.deb.Update(cloneAssessment(a))
	return cloneAssessment(a), nil
}

// ConfirmAnswer 把单题标记为已确认，要求分数和备注齐全
func (s *AssessmentService) ConfirmAnswer(ctx context.Context, id, ckItem string) (*model.Assessment, error) {
	sess, err := s.session(ctx, id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	a := sess.current
	if err := lifecycle.EnsureEditable(a); err != nil {
		return nil, err
	}

	ans := a.AnswerFor(ckItem)
	if ans == nil {
		return nil, util.NewValidationError("ckItem", "检查项不存在: "+ckItem)
	}
	if err := lifecycle.Confirm(ans); err != nil {
		return nil, err
	}

	s.rescoreLocked(sess)
	sess.deb.Update(cloneAssessment(a))
	return cloneAssessment(a), nil
}

// Flush 立刻落盘，取消等待中的防抖窗口
func (s *AssessmentService) Flush(ctx context.Context, id string) (*model.Assessment, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return s.Repo.FindByID(ctx, id)
	}

	if err := sess.deb.SaveNow(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneAssessment(sess.current), nil
}

// Submit 提交评估。先确保未落盘的编辑全部写出，
// 再走状态门禁；存储瞬断时提交以高优先级进离线队列。
func (s *AssessmentService) Submit(ctx context.Context, id string) (*repository.SubmitResult, error) {
	if _, err := s.Flush(ctx, id); err != nil && !isTransient(err) {
		return nil, err
	}

	a, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	result, err := s.Repo.Submit(ctx, a)
	if err == nil {
		s.closeSession(id)
		return result, nil
	}
	if !isTransient(err) {
		return nil, err
	}

	// 离线提交：门禁校验时状态已迁移到 submitted，持久化交给队列回放
	if qerr := s.enqueue(a, model.PriorityHigh); qerr != nil {
		return nil, qerr
	}
	// 会话切到已提交状态，后续编辑会被锁定检查挡掉
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		sess.current = cloneAssessment(a)
	}
	s.mu.Unlock()
	if s.Log != nil {
		s.Log.Warn("submission queued for later sync",
			zap.String("assessmentId", id), zap.Error(err))
	}
	return &repository.SubmitResult{Assessment: cloneAssessment(a)}, nil
}

// Approve 审批通过，评审角色专用
func (s *AssessmentService) Approve(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Approve(a, time.Now()); err != nil {
		return nil, err
	}
	return s.Repo.Save(ctx, a)
}

// Reject 驳回，评估回到可编辑状态
func (s *AssessmentService) Reject(ctx context.Context, id string) (*model.Assessment, error) {
	a, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := lifecycle.Reject(a, time.Now()); err != nil {
		return nil, err
	}
	return s.Repo.Save(ctx, a)
}

func (s *AssessmentService) Delete(ctx context.Context, id string) error {
	s.closeSession(id)
	err := s.Repo.Delete(ctx, id)
	if isTransient(err) {
		s.Queue.Enqueue(model.PendingAction{
			ID:         uuid.New().String(),
			Type:       model.ActionDelete,
			Collection: util.CollectionAssessments,
			Resource:   id,
			Priority:   model.PriorityNormal,
		})
		return nil
	}
	return err
}

// SyncState 同步状态汇总：队列、熔断器、连通性
type SyncState struct {
	Queue   offline.Snapshot       `json:"queue"`
	Breaker circuitbreaker.Metrics `json:"breaker"`
	Online  bool                   `json:"online"`
}

func (s *AssessmentService) SyncStatus() SyncState {
	return SyncState{
		Queue:   s.Queue.Snapshot(),
		Breaker: s.Repo.Breaker.Snapshot(),
		Online:  s.Monitor.Online(),
	}
}

// RetrySync 清空退避计时，立刻尝试排空队列
func (s *AssessmentService) RetrySync() {
	s.Queue.RetryNow()
}

// Shutdown 优雅停机：把所有会话里未落盘的编辑写出
func (s *AssessmentService) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		if _, err := s.Flush(ctx, id); err != nil && s.Log != nil {
			s.Log.Error("flush on shutdown failed",
				zap.String("assessmentId", id), zap.Error(err))
		}
		s.closeSession(id)
	}
}

// session 取或建编辑会话，会话持有最新内存版和防抖器
func (s *AssessmentService) session(ctx context.Context, id string) (*editSession, error) {
	s.mu.Lock()
	if sess, ok := s.sessions[id]; ok {
		s.mu.Unlock()
		return sess, nil
	}
	s.mu.Unlock()

	// 会话不存在时从存储加载，不持锁做 I/O
	a, err := s.Repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	form, err := s.FormRepo.FindByCode(ctx, a.FormCode, a.FormVersion)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[id]; ok {
		return sess, nil
	}

	sess := &editSession{current: a, form: form}
	sess.deb = autosave.New(s.saveFunc(id), autosave.Config[*model.Assessment]{
		Delay:       s.Cfg.Engine.AutosaveDelay(),
		SaveTimeout: s.Cfg.Engine.SaveTimeout(),
		Equal: func(x, y *model.Assessment) bool {
			if x == nil || y == nil {
				return x == y
			}
			xb, _ := json.Marshal(x)
			yb, _ := json.Marshal(y)
			return string(xb) == string(yb)
		},
		OnError: func(err error) {
			if s.Log != nil {
				s.Log.Error("autosave failed", zap.String("assessmentId", id), zap.Error(err))
			}
		},
		OnSaved: func(a *model.Assessment, at time.Time) {
			s.updateSessionState(id, a)
		},
	})
	s.sessions[id] = sess
	return sess, nil
}

// saveFunc 防抖器的落盘回调。瞬时失败转离线队列，
// 对防抖器而言视为成功，不阻塞后续编辑。
func (s *AssessmentService) saveFunc(id string) autosave.SaveFunc[*model.Assessment] {
	return func(ctx context.Context, a *model.Assessment) error {
		saved, err := s.Repo.Save(ctx, a)
		if err == nil {
			s.updateSessionState(id, saved)
			return nil
		}
		if isTransient(err) {
			return s.enqueue(a, model.PriorityNormal)
		}
		return err
	}
}

// enqueue 把评估当前状态打包成离线变更
func (s *AssessmentService) enqueue(a *model.Assessment, priority model.ActionPriority) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return err
	}
	actionType := model.ActionUpdate
	resource := a.ID
	if resource == "" {
		actionType = model.ActionCreate
		resource = a.VendorCode + "/" + a.FormCode
	}
	s.Queue.Enqueue(model.PendingAction{
		ID:         uuid.New().String(),
		Type:       actionType,
		Collection: util.CollectionAssessments,
		Resource:   resource,
		Payload:    payload,
		Priority:   priority,
	})
	return nil
}

func (s *AssessmentService) rescoreLocked(sess *editSession) {
	a := sess.current
	totals := scoring.ComputeTotals(a.Answers, sess.form.Weights())
	a.TotalScore = totals.Total
	a.AvgScore = totals.Average
	a.MaxScore = totals.Max
	a.Status = lifecycle.DeriveStatus(a.Answers, sess.form.RequiredItems())
}

func (s *AssessmentService) updateSessionState(id string, a *model.Assessment) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return
	}
	// 只同步服务端字段，别覆盖更晚的本地编辑
	sess.current.ID = a.ID
	sess.current.Revision = a.Revision
	sess.current.UpdatedAt = a.UpdatedAt
	sess.current.CreatedAt = a.CreatedAt
}

func (s *AssessmentService) closeSession(id string) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
	}
	s.mu.Unlock()
	if ok {
		sess.deb.Close()
	}
}

func validateScore(score string) error {
	switch score {
	case "", "0", "1", "2", model.ScoreNA:
		return nil
	default:
		return util.NewValidationError("score", "分数只允许 0/1/2/n/a 或留空")
	}
}

// isTransient 判断错误是否值得排队重试。
// 校验错误和业务拒绝直接返回给调用方，不进队列。
func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) {
		return true
	}
	return docstore.IsStoreError(err)
}

func cloneAssessment(a *model.Assessment) *model.Assessment {
	if a == nil {
		return nil
	}
	cp := *a
	cp.Answers = make([]model.Answer, len(a.Answers))
	copy(cp.Answers, a.Answers)
	for i := range cp.Answers {
		if len(a.Answers[i].Files) > 0 {
			cp.Answers[i].Files = append([]model.AttachmentFile(nil), a.Answers[i].Files...)
		}
	}
	if a.SubmittedAt != nil {
		t := *a.SubmittedAt
		cp.SubmittedAt = &t
	}
	if a.FinishedAt != nil {
		t := *a.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
