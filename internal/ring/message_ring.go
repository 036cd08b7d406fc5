package ring

import (
	"sync"
	"time"
)

// MessageRing 有界的消息队列（每条消息为一个字节切片，保留消息边界）
// 面向报文的传输实现使用：一次收到的数据块即一条消息
// 满时 Enqueue 拒绝并返回 false，由调用方上报限流错误
type MessageRing struct {
	mu         sync.Mutex
	cond       *sync.Cond
	msgs       [][]byte
	maxCount   int
	totalBytes int
	closed     bool
}

// NewMessageRing 创建消息环，maxCount 为最大消息条数（<=0 时取64）
func NewMessageRing(maxCount int) *MessageRing {
	if maxCount <= 0 {
		maxCount = 64
	}
	m := &MessageRing{maxCount: maxCount}
	m.cond = sync.NewCond(&m.mu)
	return m
}

// Enqueue 入队一条消息（拷贝一份，避免调用方复用底层切片）
// 队列满或已关闭时返回 false
func (m *MessageRing) Enqueue(msg []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || len(m.msgs) >= m.maxCount {
		return false
	}
	dup := make([]byte, len(msg))
	copy(dup, msg)
	m.msgs = append(m.msgs, dup)
	m.totalBytes += len(dup)
	m.cond.Signal()
	return true
}

// Dequeue 非阻塞出队，队列为空时返回 (nil, false)
func (m *MessageRing) Dequeue() ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dequeueLocked()
}

// DequeueWait 阻塞出队，最多等待 timeout；超时或队列关闭时返回 (nil, false)
func (m *MessageRing) DequeueWait(timeout time.Duration) ([]byte, bool) {
	deadline := time.Now().Add(timeout)

	m.mu.Lock()
	defer m.mu.Unlock()

	for len(m.msgs) == 0 && !m.closed {
		remain := time.Until(deadline)
		if remain <= 0 {
			return nil, false
		}
		// sync.Cond 不支持带超时等待，用定时 Broadcast 唤醒
		t := time.AfterFunc(remain, func() { m.cond.Broadcast() })
		m.cond.Wait()
		t.Stop()
		if time.Now().After(deadline) && len(m.msgs) == 0 {
			return nil, false
		}
	}
	return m.dequeueLocked()
}

func (m *MessageRing) dequeueLocked() ([]byte, bool) {
	if len(m.msgs) == 0 {
		return nil, false
	}
	msg := m.msgs[0]
	m.msgs = m.msgs[1:]
	m.totalBytes -= len(msg)
	return msg, true
}

// Len 当前消息条数
func (m *MessageRing) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

// TotalBytes 队列中全部消息的字节总数
func (m *MessageRing) TotalBytes() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalBytes
}

// Close 关闭队列并唤醒全部等待者；之后 Enqueue 返回 false
func (m *MessageRing) Close() {
	m.mu.Lock()
	m.closed = true
	m.cond.Broadcast()
	m.mu.Unlock()
}
