package transport

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/taoyao-code/actisense-sdk/internal/ring"
)

// Loopback 回环传输：发送的字节可回灌到接收队列（可开关），
// 支持直接注入"收到的"字节，面向报文、保留消息边界。测试套件依赖它。
type Loopback struct {
	rx     *ring.MessageRing
	open   atomic.Bool
	closed atomic.Bool
	echo   atomic.Bool
}

// NewLoopback 创建回环传输；maxPending 为接收队列最大消息条数
func NewLoopback(maxPending int) *Loopback {
	l := &Loopback{rx: ring.NewMessageRing(maxPending)}
	l.echo.Store(true)
	return l
}

// SetEcho 开关发送回灌
func (l *Loopback) SetEcho(on bool) { l.echo.Store(on) }

// InjectReceive 直接注入一条"收到的"消息；队列满或已关闭返回 false
func (l *Loopback) InjectReceive(p []byte) bool {
	return l.rx.Enqueue(p)
}

// AsyncOpen 打开传输；重复打开以 ErrAlreadyOpen 完成
func (l *Loopback) AsyncOpen(_ context.Context, done OpenCompletion) {
	if !l.open.CompareAndSwap(false, true) {
		done(ErrAlreadyOpen)
		return
	}
	done(nil)
}

// AsyncSend 提交发送；echo 打开时整条消息进入接收队列
func (l *Loopback) AsyncSend(p []byte, done SendCompletion) {
	if !l.open.Load() || l.closed.Load() {
		done(0, ErrNotOpen)
		return
	}
	if l.echo.Load() {
		if !l.rx.Enqueue(p) {
			done(0, ErrRateLimited)
			return
		}
	}
	done(len(p), nil)
}

// AsyncRecv 等待下一条消息；传输关闭时以 ErrClosed 完成
func (l *Loopback) AsyncRecv(done RecvCompletion) {
	go func() {
		for {
			msg, ok := l.rx.DequeueWait(100 * time.Millisecond)
			if ok {
				done(msg, nil)
				return
			}
			if l.closed.Load() {
				done(nil, ErrClosed)
				return
			}
		}
	}()
}

// Close 幂等关闭；唤醒并取消全部在途接收
func (l *Loopback) Close() error {
	if !l.closed.CompareAndSwap(false, true) {
		return nil
	}
	l.open.Store(false)
	l.rx.Close()
	return nil
}

// IsOpen 观测是否打开
func (l *Loopback) IsOpen() bool { return l.open.Load() && !l.closed.Load() }

// Kind 返回 loopback
func (l *Loopback) Kind() Kind { return KindLoopback }
