// Package transport 定义会话消费的抽象字节流传输，
// 以及内建的串口与回环实现。实现方可以面向字节也可以面向报文，
// 会话把每次接收回调的载荷视作"若干字节"喂给 BDTP 封帧层。
package transport

import (
	"context"
	"errors"
)

// Kind 传输类型标记
type Kind string

const (
	KindSerial   Kind = "serial"
	KindTCP      Kind = "tcp"
	KindUDP      Kind = "udp"
	KindLoopback Kind = "loopback"
)

var (
	// ErrClosed 传输已关闭；在途收发以此错误完成
	ErrClosed = errors.New("transport closed")
	// ErrNotOpen 传输尚未打开
	ErrNotOpen = errors.New("transport not open")
	// ErrAlreadyOpen 重复打开
	ErrAlreadyOpen = errors.New("transport already open")
	// ErrRateLimited 发送被限速或接收队列已满
	ErrRateLimited = errors.New("rate limited")
)

// OpenCompletion 打开完成回调，恰好触发一次
type OpenCompletion func(err error)

// SendCompletion 发送完成回调，恰好触发一次；大写可能被拆分，
// 短写配合 ErrRateLimited 上报背压
type SendCompletion func(n int, err error)

// RecvCompletion 接收完成回调，恰好触发一次：有数据可用或传输关闭时触发
type RecvCompletion func(data []byte, err error)

// Transport 会话消费的异步传输契约。
// 回调可能在传输内部协程上触发；实现须保证每次操作的回调恰好一次。
type Transport interface {
	// AsyncOpen 发起连接，完成时回调一次
	AsyncOpen(ctx context.Context, done OpenCompletion)
	// AsyncSend 提交一次发送
	AsyncSend(p []byte, done SendCompletion)
	// AsyncRecv 请求下一块可用数据；会话保证同一时刻至多一个在途接收
	AsyncRecv(done RecvCompletion)
	// Close 同步且幂等；取消全部在途收发
	Close() error
	// IsOpen 观测当前是否打开
	IsOpen() bool
	// Kind 返回传输类型标记
	Kind() Kind
}
