package connectivity

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pinger 探测远端存储可达性
type Pinger interface {
	Ping(ctx context.Context) error
}

// Monitor 周期探测在线状态，状态翻转时广播给订阅方。
// 订阅通道带缓冲，广播从不阻塞探测循环。
type Monitor struct {
	pinger   Pinger
	interval time.Duration
	timeout  time.Duration
	log      *zap.Logger

	mu     sync.Mutex
	online bool
	subs   []chan bool

	stop    chan struct{}
	done    chan struct{}
	started bool
}

func NewMonitor(pinger Pinger, interval, timeout time.Duration, log *zap.Logger) *Monitor {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Monitor{
		pinger:   pinger,
		interval: interval,
		timeout:  timeout,
		log:      log,
		online:   true,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Subscribe 返回状态翻转通知通道，true=上线 false=离线
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}

func (m *Monitor) Online() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline 手动翻转状态，探测循环和测试共用
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	if m.online == online {
		m.mu.Unlock()
		return
	}
	m.online = online
	subs := make([]chan bool, len(m.subs))
	copy(subs, m.subs)
	m.mu.Unlock()

	if m.log != nil {
		if online {
			m.log.Info("connectivity restored")
		} else {
			m.log.Warn("connectivity lost")
		}
	}

	for _, ch := range subs {
		select {
		case ch <- online:
		default:
			// 订阅方没消费上一条，丢弃旧通知补发最新状态
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- online:
			default:
			}
		}
	}
}

// Start 启动探测循环
func (m *Monitor) Start() {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-m.stop:
				return
			case <-ticker.C:
				m.probe()
			}
		}
	}()
}

func (m *Monitor) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()
	err := m.pinger.Ping(ctx)
	m.SetOnline(err == nil)
}

func (m *Monitor) Stop() {
	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	select {
	case <-m.stop:
	default:
		close(m.stop)
	}
	if started {
		<-m.done
	}
}
