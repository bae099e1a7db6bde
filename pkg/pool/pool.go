// Package pool 提供固定容量的資源池 (Resource Pool)。
// 資源在建構時一次全部建立 (Eager)，之後只在借出/歸還之間流轉，
// 不會隨請求建立或銷毀；唯一的例外是健康檢查失敗時的汰換。
package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrPoolClosed 資源池已關閉
	ErrPoolClosed = errors.New("pool is closed")

	// ErrAcquireTimeout 等待資源超時
	ErrAcquireTimeout = errors.New("acquire resource timeout")
)

// DialFunc 建立一個新的資源
type DialFunc[T any] func(ctx context.Context) (T, error)

// Pool 管理固定數量的可重用資源。
// 它是執行緒安全的 (Thread-safe)，並保證同時被借出的資源數不超過容量。
//
// 內部結構:
//
//	slots: 容量權杖。Acquire 先取得權杖，Release 歸還權杖，
//	       藉此讓臨界區維持 O(1) 且與池大小無關。
//	idle:  閒置資源清單，僅在持有權杖後存取。
//	dial:  資源建立函式，啟動時與汰換失效資源時使用。
type Pool[T any] struct {
	dial  DialFunc[T]
	ping  func(ctx context.Context, res T) error
	close func(res T) error

	slots chan struct{}
	mu    sync.Mutex
	idle  []T

	acquireTimeout time.Duration
	closed         bool
}

// Option 定義了 Pool 的配置選項函數
type Option[T any] func(*Pool[T])

// WithPing 設定借出前的健康檢查。
// 檢查失敗的資源會被關閉並透過 dial 重建，而非原樣回到池中。
func WithPing[T any](ping func(ctx context.Context, res T) error) Option[T] {
	return func(p *Pool[T]) {
		p.ping = ping
	}
}

// WithCloser 設定資源的關閉函式 (池關閉與汰換失效資源時呼叫)
func WithCloser[T any](fn func(res T) error) Option[T] {
	return func(p *Pool[T]) {
		p.close = fn
	}
}

// WithAcquireTimeout 設定 Acquire 的等待上限。
// 未設定時 Acquire 只受呼叫端 context 約束。
func WithAcquireTimeout[T any](d time.Duration) Option[T] {
	return func(p *Pool[T]) {
		p.acquireTimeout = d
	}
}

// New 建立並回傳一個新的資源池。
// 會立刻建立 size 個資源，任一失敗即視為致命錯誤:
// 已建立的資源會被關閉，並回傳錯誤讓呼叫端中止啟動。
//
// 參數:
//
//	ctx: 建構用上下文 (傳遞給 dial)
//	size: 池容量 (必須 > 0)
//	dial: 資源建立函式
//	opts: 可選配置
//
// 回傳值:
//
//	*Pool[T]: 資源池實例
//	error: 建構失敗
func New[T any](ctx context.Context, size int, dial DialFunc[T], opts ...Option[T]) (*Pool[T], error) {
	if size <= 0 {
		return nil, fmt.Errorf("pool size must be positive, got %d", size)
	}
	if dial == nil {
		return nil, errors.New("pool dial func is required")
	}

	p := &Pool[T]{
		dial:  dial,
		slots: make(chan struct{}, size),
		idle:  make([]T, 0, size),
	}
	for _, opt := range opts {
		opt(p)
	}

	for i := 0; i < size; i++ {
		res, err := dial(ctx)
		if err != nil {
			p.closeIdle()
			return nil, fmt.Errorf("failed to dial resource %d/%d: %w", i+1, size, err)
		}
		p.idle = append(p.idle, res)
		p.slots <- struct{}{}
	}

	return p, nil
}

// Cap 回傳池容量
func (p *Pool[T]) Cap() int {
	return cap(p.slots)
}

// Acquire 借出一個資源，池耗盡時阻塞直到有人歸還。
// 等待期間遵守 ctx 取消；若設定了 acquireTimeout，超時回傳 ErrAcquireTimeout。
//
// 呼叫端必須在每一條離開路徑上以 Release 歸還，否則容量會永久減少。
func (p *Pool[T]) Acquire(ctx context.Context) (T, error) {
	var zero T

	if p.isClosed() {
		return zero, ErrPoolClosed
	}

	caller := ctx
	if p.acquireTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.acquireTimeout)
		defer cancel()
	}

	// 先取得容量權杖；多個等待者由 runtime 的 channel 接收佇列排隊喚醒
	select {
	case <-p.slots:
	case <-ctx.Done():
		// 只有池自己加的 deadline 才回報 ErrAcquireTimeout，
		// 呼叫端自己的取消/逾時原樣往上傳
		if p.acquireTimeout > 0 && caller.Err() == nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrAcquireTimeout
		}
		return zero, ctx.Err()
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return zero, ErrPoolClosed
	}
	var res T
	var found bool
	if n := len(p.idle); n > 0 {
		res = p.idle[n-1]
		p.idle = p.idle[:n-1]
		found = true
	}
	p.mu.Unlock()

	// 閒置清單可能比權杖數少: 先前汰換失敗留下的空缺，在這裡補建
	if !found {
		fresh, derr := p.dial(ctx)
		if derr != nil {
			p.slots <- struct{}{}
			return zero, fmt.Errorf("failed to refill pool slot: %w", derr)
		}
		return fresh, nil
	}

	if p.ping != nil {
		if err := p.ping(ctx, res); err != nil {
			// 資源已失效: 關閉並重建，權杖仍在手上所以容量不變
			if p.close != nil {
				_ = p.close(res)
			}
			fresh, derr := p.dial(ctx)
			if derr != nil {
				p.slots <- struct{}{}
				return zero, fmt.Errorf("failed to replace unhealthy resource: %w", derr)
			}
			return fresh, nil
		}
	}

	return res, nil
}

// Release 將資源歸還給池，並喚醒一個等待中的 Acquire (如果有)。
// 每次成功的 Acquire 必須恰好對應一次 Release。
func (p *Pool[T]) Release(res T) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		if p.close != nil {
			_ = p.close(res)
		}
		return
	}
	p.idle = append(p.idle, res)
	p.mu.Unlock()

	p.slots <- struct{}{}
}

// Close 關閉資源池中的所有閒置資源。
// 之後的 Acquire 回傳 ErrPoolClosed；仍在外面的資源會在 Release 時被關閉。
func (p *Pool[T]) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	return p.closeIdle()
}

// closeIdle 關閉目前所有閒置資源，回傳第一個發生的錯誤
func (p *Pool[T]) closeIdle() error {
	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	var firstErr error
	for _, res := range idle {
		if p.close == nil {
			continue
		}
		if err := p.close(res); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (p *Pool[T]) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
