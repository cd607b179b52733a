package offline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/model"
)

type execCall struct {
	id string
	at time.Time
}

// fakeExecutor 按 action id 预设失败次数
type fakeExecutor struct {
	mu        sync.Mutex
	calls     []execCall
	failures  map[string]int
	failAll   bool
	execErr   error
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		failures: make(map[string]int),
		execErr:  errors.New("store unavailable"),
	}
}

func (f *fakeExecutor) Execute(ctx context.Context, a *model.PendingAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, execCall{id: a.ID, at: time.Now()})
	if f.failAll {
		return f.execErr
	}
	if n := f.failures[a.ID]; n > 0 {
		f.failures[a.ID] = n - 1
		return f.execErr
	}
	return nil
}

func (f *fakeExecutor) callTimes(id string) []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []time.Time
	for _, c := range f.calls {
		if c.id == id {
			out = append(out, c.at)
		}
	}
	return out
}

func (f *fakeExecutor) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeExecutor) callOrder() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.id
	}
	return out
}

func action(id, resource string, prio model.ActionPriority) model.PendingAction {
	return model.PendingAction{
		ID:       id,
		Type:     model.ActionUpdate,
		Resource: resource,
		Payload:  []byte(`{}`),
		Priority: prio,
	}
}

func startQueue(t *testing.T, cfg Config, exec Executor) (*Queue, chan bool) {
	t.Helper()
	q := NewQueue(cfg, exec, zap.NewNop())
	conn := make(chan bool, 1)
	q.Start(conn)
	t.Cleanup(q.Stop)
	return q, conn
}

func TestQueue_CoalescesSameResource(t *testing.T) {
	exec := newFakeExecutor()
	q := NewQueue(Config{}, exec, zap.NewNop())

	a := action("a1", "doc-1", model.PriorityNormal)
	a.Payload = []byte(`{"rev":1}`)
	q.Enqueue(a)
	b := action("a2", "doc-1", model.PriorityNormal)
	b.Payload = []byte(`{"rev":2}`)
	q.Enqueue(b)

	snap := q.Snapshot()
	require.Len(t, snap.PendingActions, 1)
	assert.Equal(t, "a1", snap.PendingActions[0].ID)
	assert.JSONEq(t, `{"rev":2}`, string(snap.PendingActions[0].Payload))
}

func TestQueue_PriorityOrderWithinDrain(t *testing.T) {
	exec := newFakeExecutor()
	q := NewQueue(Config{}, exec, zap.NewNop())

	// 先不启动循环，攒满后再启动保证一次排空
	q.Enqueue(action("low", "r1", model.PriorityLow))
	q.Enqueue(action("normal", "r2", model.PriorityNormal))
	q.Enqueue(action("high", "r3", model.PriorityHigh))
	q.Enqueue(action("normal2", "r4", model.PriorityNormal))

	conn := make(chan bool, 1)
	q.Start(conn)
	defer q.Stop()
	q.RetryNow()

	require.Eventually(t, func() bool { return exec.callCount() == 4 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"high", "normal", "normal2", "low"}, exec.callOrder())
}

func TestQueue_RetryWithExponentialBackoff(t *testing.T) {
	exec := newFakeExecutor()
	exec.failures["a1"] = 2 // 失败两次后成功
	q, _ := startQueue(t, Config{MaxRetries: 3, BackoffBase: 60 * time.Millisecond}, exec)

	q.Enqueue(action("a1", "doc-1", model.PriorityNormal))

	require.Eventually(t, func() bool { return len(exec.callTimes("a1")) == 3 }, 3*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return len(q.Snapshot().PendingActions) == 0 }, time.Second, 5*time.Millisecond)

	times := exec.callTimes("a1")
	first := times[1].Sub(times[0])
	second := times[2].Sub(times[1])
	assert.GreaterOrEqual(t, first, 55*time.Millisecond, "第一次重试按 base*2^0 退避")
	assert.GreaterOrEqual(t, second, 110*time.Millisecond, "第二次重试按 base*2^1 退避")

	snap := q.Snapshot()
	assert.Empty(t, snap.SyncErrors)
	require.NotNil(t, snap.LastSync)
}

func TestQueue_ExhaustedRetriesMoveToSyncErrors(t *testing.T) {
	exec := newFakeExecutor()
	exec.failAll = true
	errorsSeen := 0
	q, _ := startQueue(t, Config{
		MaxRetries:  3,
		BackoffBase: 10 * time.Millisecond,
		OnSyncError: func() { errorsSeen++ },
	}, exec)

	q.Enqueue(action("doomed", "doc-1", model.PriorityNormal))

	require.Eventually(t, func() bool { return len(q.Snapshot().SyncErrors) == 1 }, 3*time.Second, 5*time.Millisecond)

	snap := q.Snapshot()
	assert.Empty(t, snap.PendingActions)
	se := snap.SyncErrors[0]
	assert.Equal(t, "doomed", se.ActionID)
	assert.Equal(t, 3, se.Retries)
	assert.Contains(t, se.Message, "store unavailable")
	assert.Equal(t, 3, len(exec.callTimes("doomed")))
	assert.Equal(t, 1, errorsSeen)
}

func TestQueue_OfflineHoldsUntilOnline(t *testing.T) {
	exec := newFakeExecutor()
	q, conn := startQueue(t, Config{DrainInterval: 20 * time.Millisecond}, exec)

	conn <- false
	require.Eventually(t, func() bool { return !q.Snapshot().Online }, time.Second, 5*time.Millisecond)

	q.Enqueue(action("a1", "doc-1", model.PriorityNormal))
	time.Sleep(80 * time.Millisecond)
	assert.Zero(t, exec.callCount(), "离线期间不应执行")

	conn <- true
	require.Eventually(t, func() bool { return exec.callCount() == 1 }, time.Second, 5*time.Millisecond)
	assert.Empty(t, q.Snapshot().PendingActions)
}

func TestQueue_EvictsOldestWhenFull(t *testing.T) {
	exec := newFakeExecutor()
	q := NewQueue(Config{MaxQueueSize: 2}, exec, zap.NewNop())

	q.Enqueue(action("a1", "r1", model.PriorityNormal))
	q.Enqueue(action("a2", "r2", model.PriorityNormal))
	q.Enqueue(action("a3", "r3", model.PriorityNormal))

	snap := q.Snapshot()
	require.Len(t, snap.PendingActions, 2)
	assert.Equal(t, "a2", snap.PendingActions[0].ID)
	assert.Equal(t, "a3", snap.PendingActions[1].ID)
}

func TestQueue_DoesNotReplayExecutedAction(t *testing.T) {
	exec := newFakeExecutor()
	q, _ := startQueue(t, Config{}, exec)

	q.Enqueue(action("a1", "doc-1", model.PriorityNormal))
	require.Eventually(t, func() bool { return exec.callCount() == 1 }, time.Second, 5*time.Millisecond)

	// 同一条变更重复入队应被去重
	q.Enqueue(action("a1", "doc-1", model.PriorityNormal))
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, exec.callCount())
}

func TestQueue_DepthCallback(t *testing.T) {
	exec := newFakeExecutor()
	var mu sync.Mutex
	var depths []int
	q := NewQueue(Config{OnDepthChange: func(d int) {
		mu.Lock()
		depths = append(depths, d)
		mu.Unlock()
	}}, exec, zap.NewNop())

	q.Enqueue(action("a1", "r1", model.PriorityNormal))
	q.Enqueue(action("a2", "r2", model.PriorityNormal))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2}, depths)
}
