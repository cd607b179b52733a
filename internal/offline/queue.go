package offline

import (
	"context"
	"sort"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/model"
)

// Executor 执行一条挂起变更，由仓储层实现（写操作过熔断器）
type Executor interface {
	Execute(ctx context.Context, action *model.PendingAction) error
}

type Config struct {
	MaxRetries     int           // 超过后进入 SyncErrors，不再自动重试
	BackoffBase    time.Duration // 第 n 次重试延迟 BackoffBase * 2^n
	MaxQueueSize   int           // 超出后逐出最旧的 pending
	MaxErrors      int           // SyncErrors 上限，超出丢最旧
	DrainInterval  time.Duration // 周期性排空间隔
	ActionTimeout  time.Duration // 单条变更的执行超时
	Clock          func() time.Time
	// OnDepthChange / OnSyncError 指标回调
	OnDepthChange func(depth int)
	OnSyncError   func()
}

func (c *Config) withDefaults() {
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.MaxQueueSize <= 0 {
		c.MaxQueueSize = 100
	}
	if c.MaxErrors <= 0 {
		c.MaxErrors = 50
	}
	if c.DrainInterval <= 0 {
		c.DrainInterval = 30 * time.Second
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 10 * time.Second
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
}

// Snapshot 队列可观测状态，供 UI 绑定
type Snapshot struct {
	PendingActions []model.PendingAction `json:"pendingActions"`
	IsSyncing      bool                  `json:"isSyncing"`
	SyncErrors     []model.SyncError     `json:"syncErrors"`
	LastSync       *time.Time            `json:"lastSync,omitempty"`
	Online         bool                  `json:"online"`
}

type queuedAction struct {
	action model.PendingAction
	seq    uint64 // 入队序号，优先级相同时保持 FIFO
}

// Queue 离线变更队列。上线或周期触发时按优先级 + FIFO 排空，
// 指数退避重试，重试耗尽的变更进入有界错误列表，绝不静默丢弃。
type Queue struct {
	cfg  Config
	exec Executor
	log  *zap.Logger

	mu       chan struct{} // 容量 1，当互斥锁用，避免 drain 持锁执行 I/O 时写成死锁
	actions  []*queuedAction
	errors   []model.SyncError
	syncing  bool
	online   bool
	lastSync time.Time
	seq      uint64

	// 已成功执行的变更 id，防止同一条被重复回放
	executed *lru.Cache[string, time.Time]

	wake    chan struct{}
	stop    chan struct{}
	done    chan struct{}
	started bool
}

func NewQueue(cfg Config, exec Executor, log *zap.Logger) *Queue {
	cfg.withDefaults()
	executed, _ := lru.New[string, time.Time](256)
	q := &Queue{
		cfg:      cfg,
		exec:     exec,
		log:      log,
		mu:       make(chan struct{}, 1),
		online:   true,
		executed: executed,
		wake:     make(chan struct{}, 1),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	return q
}

func (q *Queue) lock()   { q.mu <- struct{}{} }
func (q *Queue) unlock() { <-q.mu }

// Enqueue 入队一条挂起变更。同一资源的同类变更合并为最新负载，
// 保留原队列位置；队列满时逐出最旧的 pending 并告警。
func (q *Queue) Enqueue(action model.PendingAction) {
	now := q.cfg.Clock()
	if action.ID == "" {
		action.ID = model.GenerateUUID()
	}
	if action.Priority == "" {
		action.Priority = model.PriorityNormal
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = now
	}
	action.State = model.ActionPending
	action.NextAttempt = now

	if _, done := q.executed.Get(action.ID); done {
		return
	}

	q.lock()
	key := action.CoalesceKey()
	coalesced := false
	for _, qa := range q.actions {
		if qa.action.CoalesceKey() == key && qa.action.State != model.ActionExecuting {
			// 离线期间对同一资源的多次编辑只回放最终负载
			qa.action.Payload = action.Payload
			qa.action.Priority = action.Priority
			coalesced = true
			break
		}
	}
	if !coalesced {
		if len(q.actions) >= q.cfg.MaxQueueSize {
			evicted := q.actions[0]
			q.actions = q.actions[1:]
			if q.log != nil {
				q.log.Warn("offline queue full, evicting oldest action",
					zap.String("actionId", evicted.action.ID),
					zap.String("type", string(evicted.action.Type)),
					zap.String("resource", evicted.action.Resource))
			}
		}
		q.seq++
		q.actions = append(q.actions, &queuedAction{action: action, seq: q.seq})
	}
	depth := len(q.actions)
	online := q.online
	q.unlock()

	q.reportDepth(depth)
	if online {
		q.signalWake()
	}
}

// RetryNow 手动触发排空，清零所有退避等待
func (q *Queue) RetryNow() {
	now := q.cfg.Clock()
	q.lock()
	for _, qa := range q.actions {
		if qa.action.State == model.ActionPending {
			qa.action.NextAttempt = now
		}
	}
	q.unlock()
	q.signalWake()
}

func (q *Queue) Snapshot() Snapshot {
	q.lock()
	defer q.unlock()

	snap := Snapshot{
		IsSyncing:      q.syncing,
		Online:         q.online,
		PendingActions: make([]model.PendingAction, len(q.actions)),
		SyncErrors:     append([]model.SyncError(nil), q.errors...),
	}
	for i, qa := range q.actions {
		snap.PendingActions[i] = qa.action
	}
	if !q.lastSync.IsZero() {
		t := q.lastSync
		snap.LastSync = &t
	}
	return snap
}

// Start 启动消费循环，connCh 来自 connectivity.Monitor
func (q *Queue) Start(connCh <-chan bool) {
	q.lock()
	if q.started {
		q.unlock()
		return
	}
	q.started = true
	q.unlock()
	go q.run(connCh)
}

func (q *Queue) run(connCh <-chan bool) {
	defer close(q.done)
	timer := time.NewTimer(q.cfg.DrainInterval)
	defer timer.Stop()

	for {
		select {
		case <-q.stop:
			return
		case online, ok := <-connCh:
			if !ok {
				connCh = nil
				continue
			}
			q.lock()
			q.online = online
			q.unlock()
			if online {
				q.drain()
			}
		case <-q.wake:
			q.drain()
		case <-timer.C:
			q.drain()
		}

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(q.nextDelay())
	}
}

// nextDelay 距最近一次到期重试的等待时间，封顶为周期间隔
func (q *Queue) nextDelay() time.Duration {
	now := q.cfg.Clock()
	delay := q.cfg.DrainInterval

	q.lock()
	defer q.unlock()
	for _, qa := range q.actions {
		if qa.action.State != model.ActionPending {
			continue
		}
		d := qa.action.NextAttempt.Sub(now)
		if d < time.Millisecond {
			d = time.Millisecond
		}
		if d < delay {
			delay = d
		}
	}
	return delay
}

// drain 按优先级 + FIFO 依次执行到期的 pending 变更
func (q *Queue) drain() {
	q.lock()
	if !q.online || q.syncing {
		q.unlock()
		return
	}
	q.syncing = true
	q.unlock()

	defer func() {
		q.lock()
		q.syncing = false
		q.unlock()
	}()

	for {
		select {
		case <-q.stop:
			return
		default:
		}

		qa := q.takeDue()
		if qa == nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), q.cfg.ActionTimeout)
		err := q.exec.Execute(ctx, &qa.action)
		cancel()

		if err == nil {
			q.complete(qa)
			continue
		}
		q.handleFailure(qa, err)
	}
}

// takeDue 取出下一条到期的 pending，标记 executing
func (q *Queue) takeDue() *queuedAction {
	now := q.cfg.Clock()
	q.lock()
	defer q.unlock()

	var due []*queuedAction
	for _, qa := range q.actions {
		if qa.action.State == model.ActionPending && !qa.action.NextAttempt.After(now) {
			due = append(due, qa)
		}
	}
	if len(due) == 0 || !q.online {
		return nil
	}
	sort.SliceStable(due, func(i, j int) bool {
		ri, rj := due[i].action.Priority.Rank(), due[j].action.Priority.Rank()
		if ri != rj {
			return ri < rj
		}
		return due[i].seq < due[j].seq
	})
	picked := due[0]
	picked.action.State = model.ActionExecuting
	return picked
}

func (q *Queue) complete(qa *queuedAction) {
	now := q.cfg.Clock()
	q.lock()
	q.remove(qa)
	q.lastSync = now
	depth := len(q.actions)
	q.unlock()

	q.executed.Add(qa.action.ID, now)
	q.reportDepth(depth)
	if q.log != nil {
		q.log.Debug("offline action replayed",
			zap.String("actionId", qa.action.ID),
			zap.String("type", string(qa.action.Type)))
	}
}

func (q *Queue) handleFailure(qa *queuedAction, err error) {
	now := q.cfg.Clock()
	q.lock()
	defer q.unlock()

	a := &qa.action
	if a.RetryCount < q.cfg.MaxRetries-1 {
		// 退避延迟按失败前的重试次数算：base * 2^n
		delay := q.cfg.BackoffBase << uint(a.RetryCount)
		a.RetryCount++
		a.State = model.ActionPending
		a.NextAttempt = now.Add(delay)
		if q.log != nil {
			q.log.Warn("offline action failed, retrying",
				zap.String("actionId", a.ID),
				zap.Int("retryCount", a.RetryCount),
				zap.Duration("backoff", delay),
				zap.Error(err))
		}
		return
	}

	// 重试预算耗尽，转入可见错误列表
	a.State = model.ActionFailed
	q.remove(qa)
	q.errors = append(q.errors, model.SyncError{
		ActionID: a.ID,
		Type:     a.Type,
		Resource: a.Resource,
		Message:  err.Error(),
		Retries:  a.RetryCount + 1,
		FailedAt: now,
	})
	if len(q.errors) > q.cfg.MaxErrors {
		q.errors = q.errors[len(q.errors)-q.cfg.MaxErrors:]
	}
	if q.cfg.OnSyncError != nil {
		q.cfg.OnSyncError()
	}
	q.reportDepthLocked()
	if q.log != nil {
		q.log.Error("offline action moved to sync errors",
			zap.String("actionId", a.ID),
			zap.String("resource", a.Resource),
			zap.Error(err))
	}
}

// remove 调用方需持锁
func (q *Queue) remove(target *queuedAction) {
	for i, qa := range q.actions {
		if qa == target {
			q.actions = append(q.actions[:i], q.actions[i+1:]...)
			return
		}
	}
}

func (q *Queue) reportDepth(depth int) {
	if q.cfg.OnDepthChange != nil {
		q.cfg.OnDepthChange(depth)
	}
}

// reportDepthLocked 调用方需持锁
func (q *Queue) reportDepthLocked() {
	if q.cfg.OnDepthChange != nil {
		q.cfg.OnDepthChange(len(q.actions))
	}
}

func (q *Queue) signalWake() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Stop 停止消费循环。已经发出的执行会跑完，不做中途取消
func (q *Queue) Stop() {
	q.lock()
	started := q.started
	q.unlock()

	select {
	case <-q.stop:
	default:
		close(q.stop)
	}
	if started {
		<-q.done
	}
}
