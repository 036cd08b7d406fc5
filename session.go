// Package actisense 是 Actisense 网关设备 SDK 的公共入口。
// 会话持有一个传输，驱动接收循环，把分层协议管线
// （BDTP 封帧 -> BST 解码 -> BEM 关联）的产物以类型化事件回调给应用。
package actisense

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taoyao-code/actisense-sdk/internal/metrics"
	"github.com/taoyao-code/actisense-sdk/protocol/bdtp"
	"github.com/taoyao-code/actisense-sdk/protocol/bem"
	"github.com/taoyao-code/actisense-sdk/protocol/bst"
	"github.com/taoyao-code/actisense-sdk/transport"
)

// DefaultSweepInterval 空闲时超时扫描的默认节拍
const DefaultSweepInterval = 5 * time.Millisecond

// BemCompletion BEM 请求完成回调。
// 可能在接收协程（关联命中）或超时扫描所在协程触发，按并发调用对待。
type BemCompletion func(resp *bem.Response, kind ErrorKind, msg string)

// SendCompletion 发送完成回调
type SendCompletion func(n int, kind ErrorKind)

// Option 会话可选配置
type Option func(*Session)

// WithLogger 指定日志器；缺省为 zap.NewNop()
func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithMetrics 挂接 Prometheus 指标
func WithMetrics(m *metrics.SdkMetrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithSweepInterval 指定超时扫描节拍
func WithSweepInterval(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.sweepInterval = d
		}
	}
}

// WithMaxFrameSize 指定 BDTP 去转义载荷上限
func WithMaxFrameSize(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.maxFrameSize = n
		}
	}
}

// Session 一条打开的设备会话。独占一个接收协程；
// 发送与请求 API 可在任意协程调用。
type Session struct {
	id      string
	tr      transport.Transport
	framer  *bdtp.Parser
	engine  *bem.Engine
	onEvent EventCallback
	onError ErrorCallback

	log     *zap.Logger
	metrics *metrics.SdkMetrics

	sweepInterval time.Duration
	maxFrameSize  int

	running atomic.Bool
	closed  atomic.Bool
	stopC   chan struct{}
	wg      sync.WaitGroup
}

type recvResult struct {
	data []byte
	err  error
}

// NewSession 基于已打开的传输创建会话并启动接收循环。
// 传输的所有权移交给会话：Close 时一并关闭。
func NewSession(tr transport.Transport, onEvent EventCallback, onError ErrorCallback, opts ...Option) *Session {
	s := &Session{
		id:            uuid.NewString(),
		tr:            tr,
		onEvent:       onEvent,
		onError:       onError,
		log:           zap.NewNop(),
		sweepInterval: DefaultSweepInterval,
		stopC:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("session_id", s.id))
	s.framer = bdtp.NewParser(s.maxFrameSize, s.log.With(zap.String("component", "bdtp")))
	s.engine = bem.NewEngine(s.log)

	s.running.Store(true)
	s.wg.Add(1)
	go s.receiveLoop()
	s.log.Info("session started", zap.String("transport", string(tr.Kind())))
	return s
}

// receiveLoop 接收循环：同一时刻至多一个在途接收（硬性契约，
// 防止多接收共用缓冲造成别名）；每次完成后链式提交下一个接收，
// 并在收包后与空闲节拍上扫描超时。
func (s *Session) receiveLoop() {
	defer s.wg.Done()

	recvC := make(chan recvResult, 1)
	submit := func() {
		s.tr.AsyncRecv(func(data []byte, err error) {
			recvC <- recvResult{data: data, err: err}
		})
	}
	submit()

	ticker := time.NewTicker(s.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopC:
			return

		case r := <-recvC:
			if r.err != nil {
				if !s.closed.Load() {
					// 传输关闭是终止性的：停止循环并标记未连接
					s.log.Warn("transport receive failed", zap.Error(r.err))
					s.emitError(kindFromTransportErr(r.err), r.err.Error())
				}
				s.running.Store(false)
				return
			}
			if s.metrics != nil {
				s.metrics.TransportBytesReceived.Add(float64(len(r.data)))
			}
			s.framer.Parse(r.data, s.handleDatagram, s.handleFrameError)
			s.sweepTimeouts()
			submit()

		case <-ticker.C:
			s.sweepTimeouts()
		}
	}
}

func (s *Session) sweepTimeouts() {
	n := s.engine.ProcessTimeouts()
	if n > 0 && s.metrics != nil {
		s.metrics.BemTimeouts.Add(float64(n))
		s.metrics.PendingRequests.Set(float64(s.engine.PendingCount()))
	}
}

// handleDatagram 处理一条完整 Datagram：BEM 响应走关联路径，
// 未命中在途请求的响应作为未经请求事件上抛；其余走 BST 解码。
func (s *Session) handleDatagram(dg bst.Datagram) {
	if s.metrics != nil {
		s.metrics.FramesReceived.Inc()
	}

	if bst.IsBemResponse(dg.ID) {
		resp, err := bem.DecodeResponse(dg)
		if err != nil {
			s.emitError(MalformedFrame, err.Error())
			return
		}
		if s.metrics != nil {
			s.metrics.BemResponsesReceived.Inc()
		}
		if s.engine.CorrelateResponse(resp) {
			if s.metrics != nil {
				s.metrics.BemResponsesCorrelated.Inc()
				s.metrics.PendingRequests.Set(float64(s.engine.PendingCount()))
			}
			return
		}
		// 未经请求的响应：先上抛报文事件，再展开已知的状态上报
		s.emitEvent(&ParsedMessageEvent{Protocol: "bem", MessageType: resp.Name(), Payload: resp})
		if resp.BemID == bem.CmdSystemStatus {
			s.emitSystemStatus(resp)
		}
		return
	}

	frame, err := bst.Decode(dg)
	if err != nil {
		if s.metrics != nil {
			s.metrics.BstDecodeTotal.WithLabelValues("error").Inc()
		}
		s.emitError(MalformedFrame, err.Error())
		return
	}
	if s.metrics != nil {
		s.metrics.BstDecodeTotal.WithLabelValues("ok").Inc()
	}
	s.emitEvent(&ParsedMessageEvent{Protocol: "bst", MessageType: frame.Name(), Payload: frame})
}

// emitSystemStatus 将 F2H 状态上报展开为设备状态键值事件
func (s *Session) emitSystemStatus(resp *bem.Response) {
	st, err := bem.DecodeSystemStatus(resp.Data)
	if err != nil {
		s.log.Debug("system status decode failed", zap.Error(err))
		return
	}
	if st.OperatingMode != nil {
		s.emitEvent(&DeviceStatusEvent{Key: "operating_mode", Value: st.OperatingMode.String()})
	}
	if st.CanStatus != nil {
		s.emitEvent(&DeviceStatusEvent{Key: "can_rx_errors", Value: fmt.Sprintf("%d", st.CanStatus.RxErrorCount)})
		s.emitEvent(&DeviceStatusEvent{Key: "can_tx_errors", Value: fmt.Sprintf("%d", st.CanStatus.TxErrorCount)})
	}
}

// handleFrameError 封帧层错误统一按 MalformedFrame 上报；
// 解析器自行恢复并继续处理后续字节
func (s *Session) handleFrameError(err error) {
	if s.metrics != nil {
		s.metrics.FramesDropped.Inc()
	}
	s.emitError(MalformedFrame, err.Error())
}

func (s *Session) emitEvent(ev Event) {
	if s.onEvent != nil {
		s.onEvent(ev)
	}
}

func (s *Session) emitError(kind ErrorKind, msg string) {
	if s.onError != nil {
		s.onError(kind, msg)
	}
}

// IsConnected 会话在运行且传输打开
func (s *Session) IsConnected() bool {
	return s.running.Load() && s.tr.IsOpen()
}

// AsyncSend 发送一段载荷。
// protocolTag 为 "bst" 时按 Type-1 载荷追加零和校验并 BDTP 封帧；
// "bdtp" 时认为载荷已带校验，仅封帧转义；其余标记原样发送。
// 传输关闭时以 NotConnected 拒绝。
func (s *Session) AsyncSend(protocolTag string, payload []byte, done SendCompletion) {
	if !s.IsConnected() {
		if done != nil {
			done(0, NotConnected)
		}
		return
	}
	var out []byte
	switch protocolTag {
	case "bst":
		out = bdtp.EncodeType1Payload(payload)
	case "bdtp":
		out = bdtp.EncodePayload(payload)
	default:
		out = payload
	}
	s.tr.AsyncSend(out, func(n int, err error) {
		if err == nil && s.metrics != nil {
			s.metrics.TransportBytesSent.Add(float64(n))
		}
		if done != nil {
			done(n, kindFromTransportErr(err))
		}
	})
}

// SendBemCommand 编码并发送 BEM 命令，先登记在途请求再交给传输。
// 编码失败时同步以 InvalidArgument 完成且不登记；
// 发送失败经会话错误回调上报，在途请求保持登记并按超时完成，
// 以维持恰好一次完成的不变量。返回分配的序列号。
func (s *Session) SendBemCommand(cmd bem.Command, timeout time.Duration, cb BemCompletion) byte {
	if !s.IsConnected() {
		if cb != nil {
			cb(nil, NotConnected, NotConnected.Message())
		}
		return 0
	}
	frame, err := s.engine.EncodeCommand(cmd)
	if err != nil {
		if cb != nil {
			cb(nil, InvalidArgument, err.Error())
		}
		return 0
	}

	seq := s.engine.RegisterRequest(cmd.BemID, cmd.BstID, timeout, func(resp *bem.Response, st bem.Status, msg string) {
		if cb != nil {
			cb(resp, kindFromBemStatus(st), msg)
		}
	})
	if s.metrics != nil {
		s.metrics.PendingRequests.Set(float64(s.engine.PendingCount()))
	}

	s.tr.AsyncSend(frame, func(n int, err error) {
		if err != nil {
			s.log.Warn("bem command send failed", zap.Uint8("bem_id", cmd.BemID), zap.Error(err))
			s.emitError(kindFromTransportErr(err), err.Error())
			return
		}
		if s.metrics != nil {
			s.metrics.TransportBytesSent.Add(float64(n))
		}
	})
	return seq
}

// GetOperatingMode 读取设备工作模式的便捷封装
func (s *Session) GetOperatingMode(timeout time.Duration, cb BemCompletion) byte {
	return s.SendBemCommand(bem.BuildGetOperatingMode(), timeout, cb)
}

// SetOperatingMode 设置设备工作模式的便捷封装。
// 响应会回显新模式，SDK 不校验回显与请求一致，由调用方决定。
func (s *Session) SetOperatingMode(mode bem.OperatingMode, timeout time.Duration, cb BemCompletion) byte {
	return s.SendBemCommand(bem.BuildSetOperatingMode(mode), timeout, cb)
}

// Close 幂等关闭：通知接收循环退出并等待、取消全部在途请求、关闭传输
func (s *Session) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.running.Store(false)
	close(s.stopC)
	s.wg.Wait()
	s.engine.ClearPendingRequests()
	_ = s.tr.Close()
	s.log.Info("session closed",
		zap.Uint64("frames_received", s.FramesReceived()),
		zap.Uint64("frames_dropped", s.FramesDropped()))
}

// FramesReceived 成功解出的 BDTP 帧数
func (s *Session) FramesReceived() uint64 { return s.framer.FramesReceived() }

// FramesDropped 因协议错误丢弃的帧数
func (s *Session) FramesDropped() uint64 { return s.framer.FramesDropped() }

// BemResponsesReceived 已解码的 BEM 响应数
func (s *Session) BemResponsesReceived() uint64 { return s.engine.ResponsesReceived() }

// BemResponsesCorrelated 成功关联的 BEM 响应数
func (s *Session) BemResponsesCorrelated() uint64 { return s.engine.ResponsesCorrelated() }

// PendingRequests 当前在途请求数
func (s *Session) PendingRequests() int { return s.engine.PendingCount() }
