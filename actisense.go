package actisense

import (
	"context"

	"github.com/taoyao-code/actisense-sdk/transport"
)

// SerialConfig 串口会话配置
type SerialConfig = transport.SerialConfig

// OpenSerialSession 打开串口传输并启动会话。
// 打开失败时返回 nil，并以 TransportOpenFailed 触发 onError。
func OpenSerialSession(cfg SerialConfig, onEvent EventCallback, onError ErrorCallback, opts ...Option) *Session {
	tr := transport.NewSerial(cfg, nil)
	errC := make(chan error, 1)
	tr.AsyncOpen(context.Background(), func(err error) { errC <- err })
	if err := <-errC; err != nil {
		if onError != nil {
			onError(TransportOpenFailed, err.Error())
		}
		return nil
	}
	return NewSession(tr, onEvent, onError, opts...)
}
