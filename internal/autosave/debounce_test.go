package autosave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSaver struct {
	mu     sync.Mutex
	values []string
	times  []time.Time
	block  chan struct{} // 非 nil 时保存会阻塞直到通道关闭
	err    error
}

func (r *recordingSaver) save(ctx context.Context, v string) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values = append(r.values, v)
	r.times = append(r.times, time.Now())
	return r.err
}

func (r *recordingSaver) saved() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.values...)
}

func TestDebounce_CoalescesRapidChanges(t *testing.T) {
	saver := &recordingSaver{}
	d := New(saver.save, Config[string]{Delay: 200 * time.Millisecond})
	defer d.Close()

	start := time.Now()
	d.Update("v1")
	time.Sleep(100 * time.Millisecond)
	d.Update("v2")
	time.Sleep(50 * time.Millisecond)
	d.Update("v3")

	require.Eventually(t, func() bool { return len(saver.saved()) == 1 }, 2*time.Second, 5*time.Millisecond)
	time.Sleep(250 * time.Millisecond) // 确认不会再触发第二次

	values := saver.saved()
	require.Len(t, values, 1)
	assert.Equal(t, "v3", values[0])

	saver.mu.Lock()
	elapsed := saver.times[0].Sub(start)
	saver.mu.Unlock()
	// 最后一次变更在 t≈150ms，保存应落在 t≈350ms 附近
	assert.GreaterOrEqual(t, elapsed, 340*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestDebounce_SingleInFlightWithTrailingRerun(t *testing.T) {
	saver := &recordingSaver{block: make(chan struct{})}
	d := New(saver.save, Config[string]{Delay: 30 * time.Millisecond})
	defer d.Close()

	d.Update("v1")
	time.Sleep(60 * time.Millisecond) // 第一次保存进入在途并阻塞

	d.Update("v2")
	time.Sleep(60 * time.Millisecond) // 第二个窗口到期，此时仍有在途保存
	assert.True(t, d.IsSaving())

	close(saver.block)
	require.Eventually(t, func() bool { return len(saver.saved()) == 2 }, 2*time.Second, 5*time.Millisecond)

	values := saver.saved()
	assert.Equal(t, []string{"v1", "v2"}, values, "落定后用最新值补跑一次")
}

func TestDebounce_SkipsWhenValueUnchanged(t *testing.T) {
	saver := &recordingSaver{}
	d := New(saver.save, Config[string]{Delay: 20 * time.Millisecond})
	defer d.Close()

	d.Update("same")
	require.Eventually(t, func() bool { return len(saver.saved()) == 1 }, time.Second, 5*time.Millisecond)

	d.Update("same")
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, saver.saved(), 1, "无实质变化不应重复保存")
}

func TestDebounce_SaveNowFlushesImmediately(t *testing.T) {
	saver := &recordingSaver{}
	d := New(saver.save, Config[string]{Delay: 10 * time.Second})
	defer d.Close()

	d.Update("v1")
	require.NoError(t, d.SaveNow(context.Background()))

	assert.Equal(t, []string{"v1"}, saver.saved())
	assert.False(t, d.LastSaved().IsZero())

	// 计时器已取消，不会再有第二次
	time.Sleep(50 * time.Millisecond)
	assert.Len(t, saver.saved(), 1)
}

func TestDebounce_ErrorReportedNotRetried(t *testing.T) {
	saveErr := errors.New("store down")
	saver := &recordingSaver{err: saveErr}
	var mu sync.Mutex
	var reported []error
	d := New(saver.save, Config[string]{
		Delay: 20 * time.Millisecond,
		OnError: func(err error) {
			mu.Lock()
			reported = append(reported, err)
			mu.Unlock()
		},
	})
	defer d.Close()

	d.Update("v1")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(reported) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	assert.ErrorIs(t, reported[0], saveErr)
	mu.Unlock()
	time.Sleep(80 * time.Millisecond)
	assert.Len(t, saver.saved(), 1, "自动保存自身不重试")
	assert.True(t, d.LastSaved().IsZero())

	// 手动重试走 SaveNow
	saver.mu.Lock()
	saver.err = nil
	saver.mu.Unlock()
	assert.NoError(t, d.SaveNow(context.Background()))
	assert.Len(t, saver.saved(), 2)
}

func TestDebounce_CloseCancelsPendingTimer(t *testing.T) {
	saver := &recordingSaver{}
	d := New(saver.save, Config[string]{Delay: 30 * time.Millisecond})

	d.Update("v1")
	d.Close()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, saver.saved())
}

func TestDebounce_OnSavedCallback(t *testing.T) {
	saver := &recordingSaver{}
	var mu sync.Mutex
	var savedAt time.Time
	d := New(saver.save, Config[string]{
		Delay: 20 * time.Millisecond,
		OnSaved: func(v string, at time.Time) {
			mu.Lock()
			savedAt = at
			mu.Unlock()
		},
	})
	defer d.Close()

	d.Update("v1")
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return !savedAt.IsZero()
	}, time.Second, 5*time.Millisecond)
}
