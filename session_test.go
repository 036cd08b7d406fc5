package actisense

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taoyao-code/actisense-sdk/protocol/bdtp"
	"github.com/taoyao-code/actisense-sdk/protocol/bem"
	"github.com/taoyao-code/actisense-sdk/protocol/bst"
	"github.com/taoyao-code/actisense-sdk/transport"
)

type errEntry struct {
	kind ErrorKind
	msg  string
}

func newLoopbackSession(t *testing.T, echo bool) (*Session, *transport.Loopback, chan Event, chan errEntry) {
	t.Helper()

	lb := transport.NewLoopback(32)
	lb.SetEcho(echo)
	openC := make(chan error, 1)
	lb.AsyncOpen(context.Background(), func(err error) { openC <- err })
	require.NoError(t, <-openC)

	events := make(chan Event, 32)
	errs := make(chan errEntry, 32)
	sess := NewSession(lb,
		func(ev Event) { events <- ev },
		func(kind ErrorKind, msg string) { errs <- errEntry{kind, msg} },
	)
	t.Cleanup(sess.Close)
	return sess, lb, events, errs
}

func waitEvent(t *testing.T, events chan Event) Event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("等待事件超时")
		return nil
	}
}

func TestSessionDeliversBst93Event(t *testing.T) {
	sess, lb, events, errs := newLoopbackSession(t, false)

	body := []byte{0x06, 0x01, 0xF8, 0x01, 0xFF, 0x23, 0xE8, 0x03, 0x00, 0x00, 0x03, 0x11, 0x22, 0x33}
	require.True(t, lb.InjectReceive(bdtp.EncodeDatagram(bst.Datagram{ID: bst.IDN2KReceived, Body: body})))

	ev := waitEvent(t, events)
	pm, ok := ev.(*ParsedMessageEvent)
	require.True(t, ok, "expected ParsedMessageEvent, got %T", ev)
	assert.Equal(t, "bst", pm.Protocol)
	assert.Equal(t, "N2K_Gateway_Message", pm.MessageType)

	f, ok := pm.Payload.(*bst.Bst93Frame)
	require.True(t, ok)
	assert.Equal(t, uint32(0x1F801), f.PGN)
	assert.Equal(t, uint8(0x23), f.Source)

	assert.Empty(t, errs)
	assert.Eventually(t, func() bool { return sess.FramesReceived() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionGetOperatingModeCorrelation(t *testing.T) {
	sess, lb, _, _ := newLoopbackSession(t, false)

	type result struct {
		resp *bem.Response
		kind ErrorKind
	}
	done := make(chan result, 1)
	sess.GetOperatingMode(5*time.Second, func(resp *bem.Response, kind ErrorKind, msg string) {
		done <- result{resp, kind}
	})
	require.Equal(t, 1, sess.PendingRequests())

	// 设备响应：bemID=0x11 seq=0 model=0x000E serial=1 error=0 payload=[01 02]
	respBody := []byte{0x11, 0x00, 0x0E, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x02}
	require.True(t, lb.InjectReceive(bdtp.EncodeDatagram(bst.Datagram{ID: bst.IDBemResponseA0, Body: respBody})))

	select {
	case r := <-done:
		assert.Equal(t, Ok, r.kind)
		require.NotNil(t, r.resp)
		assert.Equal(t, []byte{0x01, 0x02}, r.resp.Data)
		mode, err := bem.DecodeOperatingMode(r.resp.Data)
		require.NoError(t, err)
		assert.Equal(t, bem.OperatingMode(0x0201), mode)
	case <-time.After(2 * time.Second):
		t.Fatal("关联未完成")
	}

	assert.Equal(t, 0, sess.PendingRequests())
	assert.Equal(t, uint64(1), sess.BemResponsesReceived())
	assert.Equal(t, uint64(1), sess.BemResponsesCorrelated())
}

func TestSessionRequestTimeout(t *testing.T) {
	sess, _, _, _ := newLoopbackSession(t, false)

	done := make(chan ErrorKind, 1)
	start := time.Now()
	sess.GetOperatingMode(100*time.Millisecond, func(resp *bem.Response, kind ErrorKind, msg string) {
		assert.Nil(t, resp)
		done <- kind
	})

	select {
	case kind := <-done:
		assert.Equal(t, Timeout, kind)
		assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	case <-time.After(2 * time.Second):
		t.Fatal("超时扫描未触发完成")
	}
	assert.Equal(t, 0, sess.PendingRequests())
}

func TestSessionUnsolicitedSystemStatus(t *testing.T) {
	_, lb, events, _ := newLoopbackSession(t, false)

	// bemID=0xF2 的主动上报：12字节头 + 状态载荷（含 CAN 状态与工作模式）
	body := []byte{0xF2, 0x00, 0x0E, 0x00, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00}
	body = append(body,
		0x01, 10, 20, 0, 0, 30, 5, // 1 个独立缓冲
		0x00,       // 0 个统一缓冲
		1, 2, 0x04, // CAN 状态
		0x00, 0x02, // 工作模式 512
	)
	require.True(t, lb.InjectReceive(bdtp.EncodeDatagram(bst.Datagram{ID: bst.IDBemResponseA0, Body: body})))

	ev := waitEvent(t, events)
	pm, ok := ev.(*ParsedMessageEvent)
	require.True(t, ok, "expected ParsedMessageEvent, got %T", ev)
	assert.Equal(t, "bem", pm.Protocol)
	assert.Equal(t, "BEM_Response_F2", pm.MessageType)
	resp, ok := pm.Payload.(*bem.Response)
	require.True(t, ok)
	assert.Equal(t, byte(0xF2), resp.BemID)

	// 已知状态上报随后展开为设备状态事件
	st := waitEvent(t, events)
	ds, ok := st.(*DeviceStatusEvent)
	require.True(t, ok, "expected DeviceStatusEvent, got %T", st)
	assert.Equal(t, "operating_mode", ds.Key)
	assert.Equal(t, "Normal", ds.Value)
}

func TestSessionMalformedFrameRecovery(t *testing.T) {
	sess, lb, events, errs := newLoopbackSession(t, false)

	// 被 DLE STX 打断的帧 + 一条完整帧：错误一次，事件一次
	aborted := []byte{0x10, 0x02, 0xAA, 0xBB}
	valid := bdtp.EncodeDatagram(bst.Datagram{ID: bst.IDN2KReceived,
		Body: []byte{0x06, 0x01, 0xF8, 0x01, 0xFF, 0x23, 0x00, 0x00, 0x00, 0x00, 0x00}})
	require.True(t, lb.InjectReceive(append(aborted, valid...)))

	select {
	case e := <-errs:
		assert.Equal(t, MalformedFrame, e.kind)
	case <-time.After(2 * time.Second):
		t.Fatal("未上报 MalformedFrame")
	}
	ev := waitEvent(t, events)
	_, ok := ev.(*ParsedMessageEvent)
	assert.True(t, ok)
	assert.Eventually(t, func() bool { return sess.FramesDropped() == 1 }, time.Second, 5*time.Millisecond)
}

func TestSessionChecksumFailureReported(t *testing.T) {
	sess, lb, events, errs := newLoopbackSession(t, false)

	// 校验不为零和的帧被丢弃并按 MalformedFrame 上报
	require.True(t, lb.InjectReceive([]byte{0x10, 0x02, 0x93, 0x01, 0xAB, 0xFF, 0x10, 0x03}))

	select {
	case e := <-errs:
		assert.Equal(t, MalformedFrame, e.kind)
		assert.Contains(t, e.msg, "checksum")
	case <-time.After(2 * time.Second):
		t.Fatal("未上报 MalformedFrame")
	}
	assert.Empty(t, events)
	assert.Equal(t, uint64(0), sess.FramesReceived())
}

func TestSessionAsyncSendPipelineRoundTrip(t *testing.T) {
	// echo 打开：发送经 BDTP 封帧回灌，再经接收管线还原为事件
	sess, _, events, errs := newLoopbackSession(t, true)

	payload, err := bst.Encode94(6, 0x1F801, bst.BroadcastAddress, []byte{0xAA, 0xBB})
	require.NoError(t, err)

	sendDone := make(chan ErrorKind, 1)
	sess.AsyncSend("bst", payload, func(n int, kind ErrorKind) { sendDone <- kind })
	assert.Equal(t, Ok, <-sendDone)

	ev := waitEvent(t, events)
	pm, ok := ev.(*ParsedMessageEvent)
	require.True(t, ok, "expected ParsedMessageEvent, got %T", ev)
	assert.Equal(t, "N2K_Transmit_Message", pm.MessageType)

	f, ok := pm.Payload.(*bst.Bst94Frame)
	require.True(t, ok)
	assert.Equal(t, uint32(0x1F801), f.PGN)
	assert.Equal(t, []byte{0xAA, 0xBB}, f.Data)
	assert.Empty(t, errs)
}

func TestSessionCloseCancelsPending(t *testing.T) {
	lb := transport.NewLoopback(8)
	openC := make(chan error, 1)
	lb.AsyncOpen(context.Background(), func(err error) { openC <- err })
	require.NoError(t, <-openC)

	sess := NewSession(lb, nil, nil)

	done := make(chan ErrorKind, 1)
	sess.GetOperatingMode(time.Hour, func(resp *bem.Response, kind ErrorKind, msg string) {
		done <- kind
	})
	require.Equal(t, 1, sess.PendingRequests())

	sess.Close()
	select {
	case kind := <-done:
		assert.Equal(t, Canceled, kind)
	case <-time.After(2 * time.Second):
		t.Fatal("Close 未取消在途请求")
	}
	assert.False(t, sess.IsConnected())

	// 幂等
	sess.Close()
}

func TestSessionSendWhenNotConnected(t *testing.T) {
	sess, _, _, _ := newLoopbackSession(t, false)
	sess.Close()

	done := make(chan ErrorKind, 1)
	sess.AsyncSend("bst", []byte{0x94, 0x00}, func(n int, kind ErrorKind) { done <- kind })
	assert.Equal(t, NotConnected, <-done)

	bemDone := make(chan ErrorKind, 1)
	sess.SendBemCommand(bem.BuildGetOperatingMode(), time.Second, func(resp *bem.Response, kind ErrorKind, msg string) {
		bemDone <- kind
	})
	assert.Equal(t, NotConnected, <-bemDone)
	assert.Equal(t, 0, sess.PendingRequests())
}

func TestSessionInvalidCommandArgument(t *testing.T) {
	sess, _, _, _ := newLoopbackSession(t, false)

	done := make(chan ErrorKind, 1)
	sess.SendBemCommand(bem.Command{BstID: 0x93, BemID: 0x11}, time.Second,
		func(resp *bem.Response, kind ErrorKind, msg string) { done <- kind })

	// 编码失败同步完成且不登记
	assert.Equal(t, InvalidArgument, <-done)
	assert.Equal(t, 0, sess.PendingRequests())
}
