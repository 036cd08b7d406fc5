package actisense

import (
	"errors"

	"github.com/taoyao-code/actisense-sdk/protocol/bem"
	"github.com/taoyao-code/actisense-sdk/transport"
)

// ErrorKind SDK 统一错误分类。每个操作恰好产生或上报一个分类，
// 并对应一条固定的可读消息。
type ErrorKind int

const (
	Ok ErrorKind = iota
	TransportOpenFailed
	TransportIo
	TransportClosed
	Timeout
	ProtocolMismatch
	MalformedFrame
	ChecksumError
	UnsupportedOperation
	Canceled
	RateLimited
	InvalidArgument
	NotConnected
	AlreadyConnected
	Internal
)

// String 返回分类标签名
func (k ErrorKind) String() string {
	switch k {
	case Ok:
		return "Ok"
	case TransportOpenFailed:
		return "TransportOpenFailed"
	case TransportIo:
		return "TransportIo"
	case TransportClosed:
		return "TransportClosed"
	case Timeout:
		return "Timeout"
	case ProtocolMismatch:
		return "ProtocolMismatch"
	case MalformedFrame:
		return "MalformedFrame"
	case ChecksumError:
		return "ChecksumError"
	case UnsupportedOperation:
		return "UnsupportedOperation"
	case Canceled:
		return "Canceled"
	case RateLimited:
		return "RateLimited"
	case InvalidArgument:
		return "InvalidArgument"
	case NotConnected:
		return "NotConnected"
	case AlreadyConnected:
		return "AlreadyConnected"
	case Internal:
		return "Internal"
	}
	return "Unknown"
}

// Message 返回分类的固定可读消息
func (k ErrorKind) Message() string {
	switch k {
	case Ok:
		return "success"
	case TransportOpenFailed:
		return "failed to open transport"
	case TransportIo:
		return "transport I/O error"
	case TransportClosed:
		return "transport closed"
	case Timeout:
		return "operation timed out"
	case ProtocolMismatch:
		return "protocol mismatch"
	case MalformedFrame:
		return "malformed frame"
	case ChecksumError:
		return "checksum validation failed"
	case UnsupportedOperation:
		return "operation not supported by device"
	case Canceled:
		return "operation canceled"
	case RateLimited:
		return "rate limited"
	case InvalidArgument:
		return "invalid argument"
	case NotConnected:
		return "not connected"
	case AlreadyConnected:
		return "already connected"
	case Internal:
		return "internal error"
	}
	return "unknown error"
}

// kindFromTransportErr 将传输层错误映射到 ErrorKind
func kindFromTransportErr(err error) ErrorKind {
	switch {
	case err == nil:
		return Ok
	case errors.Is(err, transport.ErrClosed):
		return TransportClosed
	case errors.Is(err, transport.ErrNotOpen):
		return NotConnected
	case errors.Is(err, transport.ErrAlreadyOpen):
		return AlreadyConnected
	case errors.Is(err, transport.ErrRateLimited):
		return RateLimited
	}
	return TransportIo
}

// kindFromBemStatus 将 BEM 引擎完成状态映射到 ErrorKind
func kindFromBemStatus(st bem.Status) ErrorKind {
	switch st {
	case bem.StatusOK:
		return Ok
	case bem.StatusDeviceError:
		return UnsupportedOperation
	case bem.StatusTimeout:
		return Timeout
	case bem.StatusCanceled:
		return Canceled
	}
	return Internal
}
