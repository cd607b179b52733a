package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrCircuitOpen 熔断器打开时的快速失败错误，调用方可据此与业务错误区分
var ErrCircuitOpen = errors.New("circuit breaker is open")

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

type Config struct {
	Name             string
	FailureThreshold int           // 监控窗口内连续失败多少次后打开
	ResetTimeout     time.Duration // 打开后多久进入半开
	MonitorWindow    time.Duration // 失败计数的滚动窗口
	Clock            func() time.Time
	// OnStateChange 状态迁移回调，用于接 prometheus 指标
	OnStateChange func(name string, from, to State)
}

// Metrics 随时可读的计数快照，成功失败都会更新平均耗时
type Metrics struct {
	State      string        `json:"state"`
	Successes  uint64        `json:"successes"`
	Failures   uint64        `json:"failures"`
	AvgLatency time.Duration `json:"avgLatency"`
}

// Breaker 包裹任意远程操作的熔断器。
// closed -> open -> half-open -> closed，半开时只放行一次试探调用。
type Breaker struct {
	cfg Config
	now func() time.Time

	mu            sync.Mutex
	state         State
	recentFails   []time.Time
	openedAt      time.Time
	trialInFlight bool

	successes  uint64
	failures   uint64
	avgLatency float64 // 纳秒，累计平均
	calls      uint64
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	if cfg.MonitorWindow <= 0 {
		cfg.MonitorWindow = time.Minute
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Breaker{cfg: cfg, now: now}
}

// Execute 执行 op 并按结果维护状态。底层错误原样抛回，
// 只有 open 快速失败时返回 ErrCircuitOpen。
func (b *Breaker) Execute(ctx context.Context, op func(context.Context) error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	start := b.now()
	err := op(ctx)
	b.afterCall(start, err)
	return err
}

// Do 带返回值的泛型封装
func Do[T any](ctx context.Context, b *Breaker, op func(context.Context) (T, error)) (T, error) {
	var result T
	err := b.Execute(ctx, func(ctx context.Context) error {
		var opErr error
		result, opErr = op(ctx)
		return opErr
	})
	return result, err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.transition(StateHalfOpen)
		b.trialInFlight = true
		return nil
	case StateHalfOpen:
		if b.trialInFlight {
			return ErrCircuitOpen
		}
		b.trialInFlight = true
		return nil
	default:
		return nil
	}
}

func (b *Breaker) afterCall(start time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	latency := float64(b.now().Sub(start))
	b.calls++
	b.avgLatency += (latency - b.avgLatency) / float64(b.calls)

	if err == nil {
		b.successes++
		if b.state == StateHalfOpen {
			b.trialInFlight = false
			b.recentFails = nil
			b.transition(StateClosed)
		}
		return
	}

	b.failures++
	switch b.state {
	case StateHalfOpen:
		// 试探失败，重新打开并重置冷却时间
		b.trialInFlight = false
		b.openedAt = b.now()
		b.transition(StateOpen)
	case StateClosed:
		now := b.now()
		b.recentFails = append(b.recentFails, now)
		b.pruneWindow(now)
		if len(b.recentFails) >= b.cfg.FailureThreshold {
			b.openedAt = now
			b.recentFails = nil
			b.transition(StateOpen)
		}
	}
}

// pruneWindow 只保留监控窗口内的失败记录
func (b *Breaker) pruneWindow(now time.Time) {
	cutoff := now.Add(-b.cfg.MonitorWindow)
	kept := b.recentFails[:0]
	for _, t := range b.recentFails {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.recentFails = kept
}

func (b *Breaker) transition(to State) {
	from := b.state
	if from == to {
		return
	}
	b.state = to
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(b.cfg.Name, from, to)
	}
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) Snapshot() Metrics {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Metrics{
		State:      b.state.String(),
		Successes:  b.successes,
		Failures:   b.failures,
		AvgLatency: time.Duration(b.avgLatency),
	}
}
