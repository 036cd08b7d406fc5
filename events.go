package actisense

// 事件按从传输解码的顺序投递到用户回调。
// 回调在观察到事件的线程上同步触发（接收协程或超时扫描协程），
// 回调内不得调用会与短临界区互锁的会话操作。

// ParsedMessageEvent 解码完成的协议报文事件。
// Protocol 为 "bst" 或 "bem"；Payload 是 bst.Frame 变体之一或 *bem.Response。
type ParsedMessageEvent struct {
	Protocol    string
	MessageType string
	Payload     any
}

// DeviceStatusEvent 设备状态键值事件（来自 F2H 系统状态上报等）
type DeviceStatusEvent struct {
	Key   string
	Value string
}

// Event 事件的和类型：*ParsedMessageEvent 或 *DeviceStatusEvent
type Event any

// EventCallback 事件回调
type EventCallback func(ev Event)

// ErrorCallback 会话级错误回调
type ErrorCallback func(kind ErrorKind, msg string)
