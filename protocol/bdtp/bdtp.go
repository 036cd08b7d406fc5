// Package bdtp 实现 BDTP (Binary Data Transfer Protocol) 字节级封帧。
// 帧格式：DLE STX <转义后载荷> DLE ETX，载荷内字面量 0x10 以 DLE DLE 传输。
package bdtp

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/taoyao-code/actisense-sdk/protocol/bst"
)

// BDTP 控制字节
const (
	DLE = 0x10
	STX = 0x02
	ETX = 0x03
)

// DefaultMaxFrameSize 去转义后载荷的默认上限。
// Type-2 记录最大可达约1800字节，上限取2048防止未终结帧耗尽内存。
const DefaultMaxFrameSize = 2048

var (
	// ErrFrameAborted 帧内再次出现 DLE STX，当前帧被丢弃
	ErrFrameAborted = errors.New("frame aborted by new frame start")
	// ErrInvalidEscape DLE 后跟随非法字节
	ErrInvalidEscape = errors.New("invalid escape sequence")
	// ErrFrameTooLarge 在读到 DLE ETX 之前超过载荷上限
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")
)

type state uint8

const (
	stateIdle state = iota
	stateGotDLE
	stateInFrame
	stateInFrameGotDLE
)

// DatagramEmitter 每解出一条完整 Datagram 调用一次
type DatagramEmitter func(bst.Datagram)

// ErrorEmitter 每检测到一次协议错误调用一次；解析器丢弃当前帧后继续
type ErrorEmitter func(error)

// Parser DLE/STX/ETX 封帧状态机。增量消费输入，可跨多次 Parse 调用续接半帧。
// 非并发安全：由会话接收协程独占驱动，计数器可被其他协程读取。
type Parser struct {
	state          state
	buf            []byte
	maxFrameSize   int
	framesReceived atomic.Uint64
	framesDropped  atomic.Uint64
	log            *zap.Logger
}

// NewParser 创建封帧解析器；maxFrameSize<=0 时取 DefaultMaxFrameSize
func NewParser(maxFrameSize int, log *zap.Logger) *Parser {
	if maxFrameSize <= 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Parser{
		buf:          make([]byte, 0, maxFrameSize),
		maxFrameSize: maxFrameSize,
		log:          log,
	}
}

// Parse 消费全部输入字节，返回消费数（恒等于 len(data)）。
// 每解出一帧调用 emit；每次协议错误调用 emitErr 并丢弃当前半帧。
func (p *Parser) Parse(data []byte, emit DatagramEmitter, emitErr ErrorEmitter) int {
	for _, b := range data {
		switch p.state {
		case stateIdle:
			if b == DLE {
				p.state = stateGotDLE
			}
			// 空闲状态丢弃其余字节

		case stateGotDLE:
			switch b {
			case STX:
				p.state = stateInFrame
				p.buf = p.buf[:0]
			case DLE:
				// 帧外连续 DLE，保持状态等待 STX
				p.log.Warn("double DLE outside frame")
			default:
				p.state = stateIdle
			}

		case stateInFrame:
			if b == DLE {
				p.state = stateInFrameGotDLE
				break
			}
			if !p.appendByte(b, emitErr) {
				p.state = stateIdle
			}

		case stateInFrameGotDLE:
			switch b {
			case ETX:
				p.completeFrame(emit, emitErr)
				p.state = stateIdle
			case DLE:
				// 转义的字面量 0x10
				if p.appendByte(DLE, emitErr) {
					p.state = stateInFrame
				} else {
					p.state = stateIdle
				}
			case STX:
				// 帧内再见 DLE STX：丢弃当前帧，立即开始新帧
				p.log.Debug("frame aborted by new DLE STX", zap.Int("buffered", len(p.buf)))
				p.dropFrame(emitErr, fmt.Errorf("%w: %d bytes buffered", ErrFrameAborted, len(p.buf)))
				p.state = stateInFrame
				p.buf = p.buf[:0]
			default:
				p.dropFrame(emitErr, fmt.Errorf("%w: DLE 0x%02X", ErrInvalidEscape, b))
				p.state = stateIdle
			}
		}
	}
	return len(data)
}

// appendByte 追加一个去转义后的载荷字节，超限时丢帧并返回 false
func (p *Parser) appendByte(b byte, emitErr ErrorEmitter) bool {
	if len(p.buf) >= p.maxFrameSize {
		p.dropFrame(emitErr, fmt.Errorf("%w: limit %d", ErrFrameTooLarge, p.maxFrameSize))
		return false
	}
	p.buf = append(p.buf, b)
	return true
}

// completeFrame 将缓冲的去转义载荷交给 BST 层提取 Datagram
func (p *Parser) completeFrame(emit DatagramEmitter, emitErr ErrorEmitter) {
	dg, err := bst.ParseDatagram(p.buf)
	if err != nil {
		p.framesDropped.Add(1)
		if emitErr != nil {
			emitErr(fmt.Errorf("bst datagram: %w", err))
		}
		p.buf = p.buf[:0]
		return
	}
	// Datagram.Body 引用解析缓冲，向上传递前拷贝
	body := make([]byte, len(dg.Body))
	copy(body, dg.Body)
	dg.Body = body

	p.framesReceived.Add(1)
	p.log.Debug("frame complete", zap.Uint8("bst_id", dg.ID), zap.Int("body", len(dg.Body)))
	if emit != nil {
		emit(dg)
	}
	p.buf = p.buf[:0]
}

func (p *Parser) dropFrame(emitErr ErrorEmitter, err error) {
	p.framesDropped.Add(1)
	p.buf = p.buf[:0]
	if emitErr != nil {
		emitErr(err)
	}
}

// Reset 回到空闲状态并清空半帧缓冲
func (p *Parser) Reset() {
	p.state = stateIdle
	p.buf = p.buf[:0]
}

// FramesReceived 成功解出的帧数
func (p *Parser) FramesReceived() uint64 { return p.framesReceived.Load() }

// FramesDropped 因协议错误丢弃的帧数
func (p *Parser) FramesDropped() uint64 { return p.framesDropped.Load() }

// EncodePayload 将已带校验的原始 BST 载荷封帧：
// DLE STX 前缀、字面量 DLE 双写转义、DLE ETX 结尾
func EncodePayload(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+4+len(payload)/16)
	out = append(out, DLE, STX)
	for _, b := range payload {
		if b == DLE {
			out = append(out, DLE)
		}
		out = append(out, b)
	}
	out = append(out, DLE, ETX)
	return out
}

// EncodeType1Payload 为 Type-1 载荷（id,len,body）追加零和校验字节后封帧
func EncodeType1Payload(payload []byte) []byte {
	withCks := make([]byte, 0, len(payload)+1)
	withCks = append(withCks, payload...)
	withCks = append(withCks, bst.Checksum(payload))
	return EncodePayload(withCks)
}

// EncodeDatagram 便捷封装：构造 Type-1 载荷（id,len,body）、追加零和校验并封帧
func EncodeDatagram(dg bst.Datagram) []byte {
	return EncodeType1Payload(bst.EncodeDatagramPayload(dg))
}
