package autosave

import (
	"context"
	"reflect"
	"sync"
	"time"
)

// SaveFunc 实际的持久化调用
type SaveFunc[T any] func(ctx context.Context, value T) error

type Config[T any] struct {
	Delay       time.Duration // 最后一次变更后多久触发保存
	SaveTimeout time.Duration
	// Equal 判断负载是否有实质变化，没变化就静默跳过
	Equal   func(a, b T) bool
	OnError func(err error)
	OnSaved func(value T, at time.Time)
	Clock   func() time.Time
}

// Debouncer 把连续的本地编辑合并成一次延迟保存。
// 纯 debounce：窗口内新变更会取消并重启计时器。
// 任一时刻最多一个保存在途；窗口在途中到期时，
// 等在途保存落定后再用最新值补一次，不会形成请求风暴。
type Debouncer[T any] struct {
	cfg  Config[T]
	save SaveFunc[T]

	mu        sync.Mutex
	cond      *sync.Cond
	timer     *time.Timer
	latest    T
	hasValue  bool
	lastValue T
	hasSaved  bool
	saving    bool
	rerun     bool
	lastSaved time.Time
	closed    bool
}

func New[T any](save SaveFunc[T], cfg Config[T]) *Debouncer[T] {
	if cfg.Delay <= 0 {
		cfg.Delay = 2 * time.Second
	}
	if cfg.SaveTimeout <= 0 {
		cfg.SaveTimeout = 15 * time.Second
	}
	if cfg.Equal == nil {
		cfg.Equal = func(a, b T) bool { return reflect.DeepEqual(a, b) }
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	d := &Debouncer[T]{cfg: cfg, save: save}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Update 记录最新值并重启防抖计时器
func (d *Debouncer[T]) Update(value T) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.latest = value
	d.hasValue = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.cfg.Delay, d.fire)
}

func (d *Debouncer[T]) fire() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	if d.saving {
		// 在途保存落定后用最新值补跑一次
		d.rerun = true
		return
	}
	d.startSaveLocked()
}

// startSaveLocked 调用方需持锁。值与上次成功保存相同时静默跳过。
func (d *Debouncer[T]) startSaveLocked() {
	if !d.hasValue {
		return
	}
	if d.hasSaved && d.cfg.Equal(d.latest, d.lastValue) {
		return
	}
	value := d.latest
	d.saving = true

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.SaveTimeout)
		err := d.save(ctx, value)
		cancel()
		d.settle(value, err)
	}()
}

func (d *Debouncer[T]) settle(value T, err error) {
	d.mu.Lock()
	d.saving = false
	closed := d.closed

	if err == nil {
		d.lastValue = value
		d.hasSaved = true
		d.lastSaved = d.cfg.Clock()
	}

	rerun := d.rerun
	d.rerun = false
	if rerun && !closed {
		d.startSaveLocked()
	}
	d.cond.Broadcast()
	d.mu.Unlock()

	if closed {
		// 消费方已卸载，结果丢弃
		return
	}
	if err != nil {
		if d.cfg.OnError != nil {
			d.cfg.OnError(err)
		}
		return
	}
	if d.cfg.OnSaved != nil {
		d.cfg.OnSaved(value, d.lastSaved)
	}
}

// SaveNow 立即落盘：取消挂起的计时器，等在途保存落定后
// 同步保存最新值。没有实质变化时直接返回 nil。
func (d *Debouncer[T]) SaveNow(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	for d.saving {
		d.cond.Wait()
	}
	if !d.hasValue || (d.hasSaved && d.cfg.Equal(d.latest, d.lastValue)) {
		d.mu.Unlock()
		return nil
	}
	value := d.latest
	d.saving = true
	d.mu.Unlock()

	err := d.save(ctx, value)

	d.mu.Lock()
	d.saving = false
	if err == nil {
		d.lastValue = value
		d.hasSaved = true
		d.lastSaved = d.cfg.Clock()
	}
	rerun := d.rerun
	d.rerun = false
	if rerun && err == nil && d.hasValue && !d.cfg.Equal(d.latest, d.lastValue) {
		d.startSaveLocked()
	}
	d.cond.Broadcast()
	d.mu.Unlock()
	return err
}

func (d *Debouncer[T]) IsSaving() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.saving
}

// LastSaved 最近一次成功保存的时间，从未成功时为零值
func (d *Debouncer[T]) LastSaved() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lastSaved
}

// Close 取消挂起的计时器并停止后续保存。
// 已经发出的保存会自己跑完，结果不再回调。
func (d *Debouncer[T]) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}
