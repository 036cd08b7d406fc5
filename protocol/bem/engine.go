package bem

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/taoyao-code/actisense-sdk/protocol/bst"
)

// Status 完成回调的结果分类
type Status uint8

const (
	// StatusOK 收到响应且设备错误码为0
	StatusOK Status = iota
	// StatusDeviceError 收到响应但设备返回非零错误码
	StatusDeviceError
	// StatusTimeout 超时未收到响应
	StatusTimeout
	// StatusCanceled 会话关闭或请求被同键新请求顶替
	StatusCanceled
)

// ResponseCallback 请求完成回调。
// resp 仅在 StatusOK / StatusDeviceError 时非 nil。
// 可能在接收协程或执行超时扫描的协程上触发，实现方须按并发调用对待。
type ResponseCallback func(resp *Response, st Status, msg string)

// pendingRequest 在途请求表项，从注册存活到关联/超时/取消之一
type pendingRequest struct {
	bemID  byte
	seqID  byte
	sentAt time.Time
	// timeout 自注册时刻起按单调时钟计量
	timeout time.Duration
	cb      ResponseCallback
}

// Engine BEM 请求/响应引擎：命令编码、响应解码、在途请求关联与超时。
// 在途表由接收协程与任意发送方协程共享，短临界区互斥保护；
// 回调一律在临界区外触发，防止重入死锁。
type Engine struct {
	mu      sync.Mutex
	pending map[uint16]pendingRequest
	nextSeq byte

	commandsSent        atomic.Uint64
	responsesReceived   atomic.Uint64
	responsesCorrelated atomic.Uint64

	log *zap.Logger
}

// NewEngine 创建引擎
func NewEngine(log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		pending: make(map[uint16]pendingRequest),
		log:     log.With(zap.String("component", "bem")),
	}
}

// 关联键：(响应 BST 标识, BEM 标识)。序列号不参与——多设备可能复用序列号，
// 该二元组才是协议契约。同键重复请求按后写者生效，前一请求以 Canceled 完成。
func responseKey(respBstID, bemID byte) uint16 {
	return uint16(respBstID)<<8 | uint16(bemID)
}

// EncodeCommand 编码命令并计数
func (e *Engine) EncodeCommand(cmd Command) ([]byte, error) {
	frame, err := EncodeCommand(cmd)
	if err != nil {
		return nil, err
	}
	e.commandsSent.Add(1)
	return frame, nil
}

// RegisterRequest 登记在途请求并返回新分配的8位序列号。
// 键为命令标识映射出的响应标识加 bemID；sentAt 取当前单调时钟。
func (e *Engine) RegisterRequest(bemID, cmdBstID byte, timeout time.Duration, cb ResponseCallback) byte {
	key := responseKey(bst.ResponseIDFor(cmdBstID), bemID)

	e.mu.Lock()
	e.nextSeq++
	seq := e.nextSeq
	displaced, hadPrev := e.pending[key]
	e.pending[key] = pendingRequest{
		bemID:   bemID,
		seqID:   seq,
		sentAt:  time.Now(),
		timeout: timeout,
		cb:      cb,
	}
	e.mu.Unlock()

	if hadPrev {
		e.log.Warn("pending request displaced by same correlation key",
			zap.Uint8("bem_id", bemID), zap.Uint8("seq_id", displaced.seqID))
		if displaced.cb != nil {
			displaced.cb(nil, StatusCanceled, "displaced by newer request with same correlation key")
		}
	}
	return seq
}

// CorrelateResponse 按关联键匹配在途请求。
// 命中：移除表项、在锁外触发回调并返回 true；未命中返回 false 且不改动表。
func (e *Engine) CorrelateResponse(resp *Response) bool {
	e.responsesReceived.Add(1)
	key := responseKey(resp.BstID, resp.BemID)

	e.mu.Lock()
	req, ok := e.pending[key]
	if ok {
		delete(e.pending, key)
	}
	e.mu.Unlock()

	if !ok {
		return false
	}
	e.responsesCorrelated.Add(1)

	if req.cb != nil {
		if resp.ErrorCode != 0 {
			req.cb(resp, StatusDeviceError, fmt.Sprintf("device returned error code %d", resp.ErrorCode))
		} else {
			req.cb(resp, StatusOK, "")
		}
	}
	return true
}

// ProcessTimeouts 扫描在途表，移除超时表项并以 Timeout 完成，返回清理条数
func (e *Engine) ProcessTimeouts() int {
	now := time.Now()

	e.mu.Lock()
	var expired []pendingRequest
	for key, req := range e.pending {
		if now.Sub(req.sentAt) >= req.timeout {
			expired = append(expired, req)
			delete(e.pending, key)
		}
	}
	e.mu.Unlock()

	for _, req := range expired {
		e.log.Debug("pending request timed out",
			zap.Uint8("bem_id", req.bemID), zap.Uint8("seq_id", req.seqID))
		if req.cb != nil {
			req.cb(nil, StatusTimeout, "request timed out")
		}
	}
	return len(expired)
}

// ClearPendingRequests 以 Canceled 完成全部在途请求并清空表（会话关闭路径）
func (e *Engine) ClearPendingRequests() {
	e.mu.Lock()
	var all []pendingRequest
	for _, req := range e.pending {
		all = append(all, req)
	}
	e.pending = make(map[uint16]pendingRequest)
	e.mu.Unlock()

	for _, req := range all {
		if req.cb != nil {
			req.cb(nil, StatusCanceled, "session closed")
		}
	}
}

// PendingCount 当前在途请求数
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// CommandsSent 已编码发出的命令数
func (e *Engine) CommandsSent() uint64 { return e.commandsSent.Load() }

// ResponsesReceived 已解码的响应数（含主动上报）
func (e *Engine) ResponsesReceived() uint64 { return e.responsesReceived.Load() }

// ResponsesCorrelated 成功关联到在途请求的响应数
func (e *Engine) ResponsesCorrelated() uint64 { return e.responsesCorrelated.Load() }
