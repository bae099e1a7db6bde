package pool

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeConn 模擬一條後端 Session
type fakeConn struct {
	id      int
	healthy atomic.Bool
	closed  atomic.Bool
}

// fakeDialer 記錄建立次數的 dial 函式
type fakeDialer struct {
	count atomic.Int32
	fail  atomic.Bool
}

func (d *fakeDialer) dial(ctx context.Context) (*fakeConn, error) {
	if d.fail.Load() {
		return nil, errors.New("backend unreachable")
	}
	conn := &fakeConn{id: int(d.count.Add(1))}
	conn.healthy.Store(true)
	return conn, nil
}

func newFakePool(t *testing.T, size int, d *fakeDialer, opts ...Option[*fakeConn]) *Pool[*fakeConn] {
	t.Helper()
	opts = append(opts, WithCloser[*fakeConn](func(c *fakeConn) error {
		c.closed.Store(true)
		return nil
	}))
	p, err := New(context.Background(), size, d.dial, opts...)
	require.NoError(t, err)
	return p
}

// TestNewDialsEagerly 驗證資源在建構時一次全部建立
func TestNewDialsEagerly(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 4, d)
	defer p.Close()

	assert.Equal(t, int32(4), d.count.Load())
	assert.Equal(t, 4, p.Cap())
}

// TestNewDialFailureIsFatal 驗證任一資源建立失敗即回報錯誤並關閉已建立的資源
func TestNewDialFailureIsFatal(t *testing.T) {
	created := make([]*fakeConn, 0, 2)
	dial := func(ctx context.Context) (*fakeConn, error) {
		if len(created) == 2 {
			return nil, errors.New("backend unreachable")
		}
		conn := &fakeConn{id: len(created) + 1}
		created = append(created, conn)
		return conn, nil
	}

	_, err := New(context.Background(), 3, dial, WithCloser[*fakeConn](func(c *fakeConn) error {
		c.closed.Store(true)
		return nil
	}))
	require.Error(t, err)

	// 啟動失敗不可洩漏已建立的資源
	for _, conn := range created {
		assert.True(t, conn.closed.Load())
	}
}

// TestAcquireReleaseRoundTrip 驗證借出與歸還的基本流程
func TestAcquireReleaseRoundTrip(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 2, d)
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.NotNil(t, conn)

	p.Release(conn)

	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(again)

	// 歸還後資源會被重用，不會建立新的
	assert.Equal(t, int32(2), d.count.Load())
}

// TestCapacityBound 驗證同時被借出的資源數永遠不超過容量
func TestCapacityBound(t *testing.T) {
	const size = 3
	const workers = 30

	d := &fakeDialer{}
	p := newFakePool(t, size, d)
	defer p.Close()

	var current, peak atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := p.Acquire(context.Background())
			if err != nil {
				t.Error(err)
				return
			}

			now := current.Add(1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			current.Add(-1)

			p.Release(conn)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.Equal(t, int32(size), d.count.Load())
}

// TestAcquireBlocksUntilRelease 驗證池耗盡時 Acquire 阻塞，歸還後恰好喚醒一個等待者
func TestAcquireBlocksUntilRelease(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 1, d)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	got := make(chan *fakeConn, 1)
	go func() {
		conn, err := p.Acquire(context.Background())
		if err != nil {
			t.Error(err)
			return
		}
		got <- conn
	}()

	select {
	case <-got:
		t.Fatal("acquire should block while pool is exhausted")
	case <-time.After(50 * time.Millisecond):
	}

	p.Release(held)

	select {
	case conn := <-got:
		p.Release(conn)
	case <-time.After(time.Second):
		t.Fatal("waiter was not woken after release")
	}
}

// TestAcquireTimeout 驗證等待超過 acquireTimeout 回傳 ErrAcquireTimeout 而非永久阻塞
func TestAcquireTimeout(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 1, d, WithAcquireTimeout[*fakeConn](30*time.Millisecond))
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrAcquireTimeout)
}

// TestCallerDeadlineIsNotPoolTimeout 呼叫端自己的 deadline 到期時回傳 ctx.Err()，
// 不可偽裝成池層級的 ErrAcquireTimeout
func TestCallerDeadlineIsNotPoolTimeout(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 1, d) // 未設定 acquireTimeout
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, ErrAcquireTimeout)
}

// TestAcquireContextCancel 驗證等待期間遵守呼叫端的取消
func TestAcquireContextCancel(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 1, d)
	defer p.Close()

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(held)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err = p.Acquire(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

// TestPingReplacesUnhealthy 驗證健康檢查失敗的資源會被汰換而非原樣借出
func TestPingReplacesUnhealthy(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 1, d, WithPing[*fakeConn](func(ctx context.Context, c *fakeConn) error {
		if !c.healthy.Load() {
			return errors.New("connection severed")
		}
		return nil
	}))
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	first := conn.id
	conn.healthy.Store(false) // 模擬連線中途斷裂
	p.Release(conn)

	replacement, err := p.Acquire(context.Background())
	require.NoError(t, err)
	defer p.Release(replacement)

	assert.NotEqual(t, first, replacement.id)
	assert.True(t, conn.closed.Load())
	assert.Equal(t, int32(2), d.count.Load())
}

// TestPingReplaceDialFailureKeepsCapacity 驗證汰換失敗時容量權杖會被歸還
func TestPingReplaceDialFailureKeepsCapacity(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 1, d, WithPing[*fakeConn](func(ctx context.Context, c *fakeConn) error {
		if !c.healthy.Load() {
			return errors.New("connection severed")
		}
		return nil
	}))
	defer p.Close()

	conn, err := p.Acquire(context.Background())
	require.NoError(t, err)
	conn.healthy.Store(false)
	p.Release(conn)

	d.fail.Store(true)
	_, err = p.Acquire(context.Background())
	require.Error(t, err)

	// 汰換失敗後後端恢復，池必須仍可借出
	d.fail.Store(false)
	recovered, err := p.Acquire(context.Background())
	require.NoError(t, err)
	p.Release(recovered)
}

// TestClose 驗證關閉後拒絕借出、閒置資源被關閉、遲到的歸還也被關閉
func TestClose(t *testing.T) {
	d := &fakeDialer{}
	p := newFakePool(t, 2, d)

	held, err := p.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, p.Close())

	_, err = p.Acquire(context.Background())
	assert.ErrorIs(t, err, ErrPoolClosed)

	p.Release(held)
	assert.True(t, held.closed.Load())
}
